package poison

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/redis/go-redis/v9"

	"ticketing/entity"
)

// Topic receives messages whose handlers kept failing after all retries.
const Topic = "poison_queue"

type Message struct {
	ID       string
	StreamID string
	Reason   string
	Topic    string
	Handler  string
	Payload  []byte
	Metadata message.Metadata
}

// Queue inspects and drains the poison queue stream directly, without a consumer group,
// so browsing it does not move any offsets.
type Queue struct {
	rdb         *redis.Client
	publisher   message.Publisher
	unmarshaler redisstream.Unmarshaller
}

func NewQueue(rdb *redis.Client, publisher message.Publisher) *Queue {
	if rdb == nil {
		panic("missing redis client")
	}
	if publisher == nil {
		panic("missing publisher")
	}

	return &Queue{
		rdb:         rdb,
		publisher:   publisher,
		unmarshaler: redisstream.DefaultMarshallerUnmarshaller{},
	}
}

// NewMiddleware moves messages that failed with any error to the poison queue.
func NewMiddleware(publisher message.Publisher) (message.HandlerMiddleware, error) {
	pq, err := middleware.PoisonQueue(publisher, Topic)
	if err != nil {
		return nil, fmt.Errorf("could not create poison queue middleware: %w", err)
	}

	return pq, nil
}

func (q *Queue) List(ctx context.Context) ([]Message, error) {
	entries, err := q.rdb.XRange(ctx, Topic, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("could not read poison queue: %w", err)
	}

	messages := make([]Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := q.unmarshaler.Unmarshal(entry.Values)
		if err != nil {
			return nil, fmt.Errorf("could not unmarshal poisoned message %s: %w", entry.ID, err)
		}

		messages = append(messages, Message{
			ID:       msg.UUID,
			StreamID: entry.ID,
			Reason:   msg.Metadata.Get(middleware.ReasonForPoisonedKey),
			Topic:    msg.Metadata.Get(middleware.PoisonedTopicKey),
			Handler:  msg.Metadata.Get(middleware.PoisonedHandlerKey),
			Payload:  msg.Payload,
			Metadata: msg.Metadata,
		})
	}

	return messages, nil
}

func (q *Queue) Remove(ctx context.Context, messageID string) error {
	msg, err := q.find(ctx, messageID)
	if err != nil {
		return err
	}

	if err := q.rdb.XDel(ctx, Topic, msg.StreamID).Err(); err != nil {
		return fmt.Errorf("could not remove message %s: %w", messageID, err)
	}

	return nil
}

// Requeue publishes the message back to the topic it was poisoned on and removes it
// from the poison queue.
func (q *Queue) Requeue(ctx context.Context, messageID string) error {
	msg, err := q.find(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Topic == "" {
		return entity.FailedPrecondition("message %s has no original topic", messageID)
	}

	republished := message.NewMessage(msg.ID, msg.Payload)
	for k, v := range msg.Metadata {
		republished.Metadata.Set(k, v)
	}
	for _, key := range []string{
		middleware.ReasonForPoisonedKey,
		middleware.PoisonedTopicKey,
		middleware.PoisonedHandlerKey,
		middleware.PoisonedSubscriberKey,
	} {
		delete(republished.Metadata, key)
	}

	if err := q.publisher.Publish(msg.Topic, republished); err != nil {
		return fmt.Errorf("could not republish message %s: %w", messageID, err)
	}

	if err := q.rdb.XDel(ctx, Topic, msg.StreamID).Err(); err != nil {
		return fmt.Errorf("could not remove message %s: %w", messageID, err)
	}

	return nil
}

func (q *Queue) find(ctx context.Context, messageID string) (Message, error) {
	messages, err := q.List(ctx)
	if err != nil {
		return Message{}, err
	}

	for _, msg := range messages {
		if msg.ID == messageID {
			return msg, nil
		}
	}

	return Message{}, entity.NotFound("message %s not found in poison queue", messageID)
}
