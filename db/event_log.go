package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"ticketing/entity"
)

// EventLog keeps every public event for audit and replay.
type EventLog struct {
	db *sqlx.DB
}

func NewEventLog(db *sqlx.DB) EventLog {
	if db == nil {
		panic("db is nil")
	}

	return EventLog{db: db}
}

func (s EventLog) StoreEvent(ctx context.Context, event entity.DataLakeEvent) error {
	_, err := s.db.NamedExecContext(
		ctx,
		`
			INSERT INTO
			    events (event_id, published_at, event_name, event_payload)
			VALUES
			    (:event_id, :published_at, :event_name, :event_payload)`,
		event,
	)
	if isUniqueViolation(err) {
		// re-delivery
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not store %s event in event log: %w", event.ID, err)
	}

	return nil
}

func (s EventLog) GetEvents(ctx context.Context, eventName string) ([]entity.DataLakeEvent, error) {
	var events []entity.DataLakeEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT event_id, published_at, event_name, event_payload
		FROM events
		WHERE $1 = '' OR event_name = $1
		ORDER BY published_at ASC
	`, eventName)
	if err != nil {
		return nil, fmt.Errorf("could not get events from event log: %w", err)
	}

	return events, nil
}
