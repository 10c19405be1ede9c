package bus

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"

	"ticketing/entity"
)

// EventsTopic receives every public event. It is stored in the event log and
// split into per-event topics.
const EventsTopic = "events"

func NewEventBus(pub message.Publisher) (*cqrs.EventBus, error) {
	return cqrs.NewEventBusWithConfig(pub, cqrs.EventBusConfig{
		GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
			event, ok := params.Event.(entity.PublicEvent)
			if !ok {
				return "", fmt.Errorf("invalid event type: %T doesn't implement entity.PublicEvent", params.Event)
			}

			if event.IsInternal() {
				return InternalEventTopic(params.EventName), nil
			}

			return EventsTopic, nil
		},
		Marshaler: Marshaler(),
	})
}

func EventTopic(eventName string) string {
	return "events." + eventName
}

func InternalEventTopic(eventName string) string {
	return "internal-events.ticketing." + eventName
}

func Marshaler() cqrs.JSONMarshaler {
	return cqrs.JSONMarshaler{
		GenerateName: cqrs.StructName,
	}
}
