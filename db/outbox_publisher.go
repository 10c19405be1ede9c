package db

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"ticketing/entity"
	"ticketing/pubsub/bus"
	"ticketing/pubsub/outbox"
)

// OutboxEventPublisher publishes events through the outbox table of the
// transaction carried by the context, so events are sent only if it commits.
type OutboxEventPublisher struct {
	logger watermill.LoggerAdapter
}

func NewOutboxEventPublisher(logger watermill.LoggerAdapter) *OutboxEventPublisher {
	if logger == nil {
		panic("missing logger")
	}

	return &OutboxEventPublisher{logger: logger}
}

func (p *OutboxEventPublisher) Publish(ctx context.Context, event entity.PublicEvent) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("publishing %T requires a transaction", event)
	}

	publisher, err := outbox.NewPublisherForTx(tx.Tx, p.logger)
	if err != nil {
		return err
	}

	eventBus, err := bus.NewEventBus(publisher)
	if err != nil {
		return fmt.Errorf("could not create event bus: %w", err)
	}

	if err := eventBus.Publish(ctx, event); err != nil {
		return fmt.Errorf("could not publish %T: %w", event, err)
	}

	return nil
}
