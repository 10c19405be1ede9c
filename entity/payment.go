package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentProduct is a priced item that has to exist on a payment platform
// before it can be part of a payment link.
type PaymentProduct struct {
	ItemID          string
	Name            string
	UnitAmountCents int64
	CurrencyCode    string
}

type PaymentLinkItem struct {
	ProductRef string
	Quantity   int
}

type RedirectURLs struct {
	Success string
	Failure string
	Pending string
}

type PaymentLink struct {
	ReferenceID string
	URL         string
	Status      string
	ExpiresAt   time.Time
	TotalAmount decimal.Decimal
}

// ProviderPaymentStatus is what a payment platform reports for a payment link.
type ProviderPaymentStatus struct {
	Paid        bool
	OrderStatus string
}

// CentsToAmount converts minor units to a decimal amount.
func CentsToAmount(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func AmountToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Notification is a message handed to the notification service.
type Notification struct {
	IdempotencyKey string            `json:"idempotency_key"`
	To             string            `json:"to"`
	Template       string            `json:"template"`
	Data           map[string]string `json:"data"`
}
