package entity

import (
	"time"

	"github.com/google/uuid"
)

type PublicEvent interface {
	IsInternal() bool
}

type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func NewEventHeader() EventHeader {
	return EventHeader{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

func NewEventHeaderWithIdempotencyKey(idempotencyKey string) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

type TicketsClaimed_v1 struct {
	Header EventHeader `json:"header"`

	PurchaseOrderID string   `json:"purchase_order_id"`
	EventID         string   `json:"event_id"`
	UserID          string   `json:"user_id"`
	UserEmail       string   `json:"user_email"`
	UserTicketIDs   []string `json:"user_ticket_ids"`
}

func (TicketsClaimed_v1) IsInternal() bool { return false }

type TicketTransferRequested_v1 struct {
	Header EventHeader `json:"header"`

	TransferID      string    `json:"transfer_id"`
	UserTicketID    string    `json:"user_ticket_id"`
	SenderUserID    string    `json:"sender_user_id"`
	SenderEmail     string    `json:"sender_email"`
	RecipientUserID string    `json:"recipient_user_id"`
	RecipientEmail  string    `json:"recipient_email"`
	RecipientName   string    `json:"recipient_name"`
	Message         string    `json:"message"`
	ExpiresAt       time.Time `json:"expires_at"`
}

func (TicketTransferRequested_v1) IsInternal() bool { return false }

type PurchaseOrderPaid_v1 struct {
	Header EventHeader `json:"header"`

	PurchaseOrderID string `json:"purchase_order_id"`
	UserID          string `json:"user_id"`
	UserEmail       string `json:"user_email"`
	TotalPriceCents int64  `json:"total_price_cents"`
	CurrencyCode    string `json:"currency_code"`
}

func (PurchaseOrderPaid_v1) IsInternal() bool { return false }

type PurchaseOrderExpired_v1 struct {
	Header EventHeader `json:"header"`

	PurchaseOrderID        string   `json:"purchase_order_id"`
	UserID                 string   `json:"user_id"`
	UserEmail              string   `json:"user_email"`
	CancelledUserTicketIDs []string `json:"cancelled_user_ticket_ids"`
}

func (PurchaseOrderExpired_v1) IsInternal() bool { return false }

// DataLakeEvent is a published event as stored in the event log.
type DataLakeEvent struct {
	ID          string    `db:"event_id"`
	PublishedAt time.Time `db:"published_at"`
	Name        string    `db:"event_name"`
	Payload     []byte    `db:"event_payload"`
}
