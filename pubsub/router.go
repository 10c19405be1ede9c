package pubsub

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"ticketing/entity"
	"ticketing/pubsub/bus"
	"ticketing/pubsub/command"
	"ticketing/pubsub/event"
	"ticketing/pubsub/poison"
)

type EventLog interface {
	StoreEvent(ctx context.Context, event entity.DataLakeEvent) error
}

func NewWatermillRouter(
	redisClient *redis.Client,
	redisPublisher message.Publisher,
	eventProcessorConfig cqrs.EventProcessorConfig,
	eventHandler event.Handler,
	commandProcessorConfig cqrs.CommandProcessorConfig,
	commandHandler command.Handler,
	eventLog EventLog,
	watermillLogger watermill.LoggerAdapter,
) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermillLogger)
	if err != nil {
		return nil, fmt.Errorf("could not create router: %w", err)
	}

	poisonQueue, err := poison.NewMiddleware(redisPublisher)
	if err != nil {
		return nil, err
	}

	useMiddlewares(router, poisonQueue, watermillLogger)

	eventProcessor, err := cqrs.NewEventProcessorWithConfig(router, eventProcessorConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create event processor: %w", err)
	}

	err = eventProcessor.AddHandlers(
		eventHandler.SendClaimConfirmationHandler(),
		eventHandler.SendTransferInvitationHandler(),
		eventHandler.SendPaymentReceiptHandler(),
		eventHandler.SendExpirationNoticeHandler(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not add handlers to event processor: %w", err)
	}

	commandProcessor, err := cqrs.NewCommandProcessorWithConfig(router, commandProcessorConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create command processor: %w", err)
	}

	err = commandProcessor.AddHandlers(
		commandHandler.SyncPurchaseOrdersHandler(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not add handlers to command processor: %w", err)
	}

	marshaler := bus.Marshaler()

	router.AddNoPublisherHandler(
		"events_splitter",
		bus.EventsTopic,
		NewRedisSubscriber(redisClient, "svc-ticketing.events_splitter", watermillLogger),
		func(msg *message.Message) error {
			eventName := marshaler.NameFromMessage(msg)
			if eventName == "" {
				return fmt.Errorf("could not get event name from message")
			}

			return redisPublisher.Publish(bus.EventTopic(eventName), msg)
		},
	)

	router.AddNoPublisherHandler(
		"store_to_event_log",
		bus.EventsTopic,
		NewRedisSubscriber(redisClient, "svc-ticketing.store_to_event_log", watermillLogger),
		func(msg *message.Message) error {
			eventName := marshaler.NameFromMessage(msg)
			if eventName == "" {
				return fmt.Errorf("could not get event name from message")
			}

			// only the header is needed, the payload is stored as is
			type Event struct {
				Header entity.EventHeader `json:"header"`
			}

			var e Event
			if err := marshaler.Unmarshal(msg, &e); err != nil {
				return fmt.Errorf("could not unmarshal event: %w", err)
			}

			return eventLog.StoreEvent(
				msg.Context(),
				entity.DataLakeEvent{
					ID:          e.Header.ID,
					PublishedAt: e.Header.PublishedAt,
					Name:        eventName,
					Payload:     msg.Payload,
				},
			)
		},
	)

	return router, nil
}
