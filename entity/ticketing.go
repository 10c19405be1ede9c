package entity

import (
	"time"

	"github.com/lib/pq"
	"github.com/samber/lo"
)

const WaitlistTag = "waitlist"

type User struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	Name         string `db:"name"`
	IsSuperAdmin bool   `db:"is_super_admin"`
}

type Event struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	StartDateTime time.Time `db:"start_date_time"`
	IsActive      bool      `db:"is_active"`
}

func (e Event) HasStarted(now time.Time) bool {
	return !now.Before(e.StartDateTime)
}

type Currency struct {
	ID   string `db:"id"`
	Code string `db:"code"`
}

// Price is the unit price of a ticket template or add-on in one currency.
type Price struct {
	CurrencyID   string `db:"currency_id"`
	CurrencyCode string `db:"currency_code"`
	AmountCents  int64  `db:"amount_cents"`
}

func PriceFor(prices []Price, currencyID string) (Price, bool) {
	return lo.Find(prices, func(p Price) bool {
		return p.CurrencyID == currencyID
	})
}

type TicketTemplate struct {
	ID                string         `db:"id"`
	EventID           string         `db:"event_id"`
	Name              string         `db:"name"`
	IsFree            bool           `db:"is_free"`
	RequiresApproval  bool           `db:"requires_approval"`
	Quantity          *int           `db:"quantity"`
	MaxTicketsPerUser *int           `db:"max_tickets_per_user"`
	Tags              pq.StringArray `db:"tags"`

	Prices []Price `db:"-"`
}

func (t TicketTemplate) IsWaitlist() bool {
	return lo.Contains(t.Tags, WaitlistTag)
}

// InitialApprovalStatus is the status a freshly claimed seat of this template starts in.
func (t TicketTemplate) InitialApprovalStatus() ApprovalStatus {
	if t.IsFree && !t.RequiresApproval {
		return ApprovalStatusApproved
	}
	return ApprovalStatusPending
}

type AddonTicket struct {
	AddonID          string `db:"addon_id"`
	TicketTemplateID string `db:"ticket_template_id"`
	OrderDisplay     int    `db:"order_display"`
}

type Addon struct {
	ID           string `db:"id"`
	EventID      string `db:"event_id"`
	Name         string `db:"name"`
	IsFree       bool   `db:"is_free"`
	IsUnlimited  bool   `db:"is_unlimited"`
	TotalStock   *int   `db:"total_stock"`
	MaxPerTicket *int   `db:"max_per_ticket"`

	Prices      []Price           `db:"-"`
	Tickets     []AddonTicket     `db:"-"`
	Constraints []AddonConstraint `db:"-"`
}

func (a Addon) IsAvailableFor(ticketTemplateID string) bool {
	return lo.ContainsBy(a.Tickets, func(t AddonTicket) bool {
		return t.TicketTemplateID == ticketTemplateID
	})
}

func (a Addon) TicketTemplateIDs() []string {
	return lo.Map(a.Tickets, func(t AddonTicket, _ int) string {
		return t.TicketTemplateID
	})
}

// ValidatePricing checks that a free add-on carries no prices.
func (a Addon) ValidatePricing() error {
	if a.IsFree && len(a.Prices) > 0 {
		return InvalidArgument("addon %s is free but has %d prices", a.ID, len(a.Prices))
	}
	return nil
}

type AddonConstraint struct {
	ID             string         `db:"id"`
	AddonID        string         `db:"addon_id"`
	RelatedAddonID string         `db:"related_addon_id"`
	ConstraintType ConstraintType `db:"constraint_type"`
}

type UserTicket struct {
	ID               string           `db:"id"`
	UserID           string           `db:"user_id"`
	TicketTemplateID string           `db:"ticket_template_id"`
	PurchaseOrderID  string           `db:"purchase_order_id"`
	ApprovalStatus   ApprovalStatus   `db:"approval_status"`
	RedemptionStatus RedemptionStatus `db:"redemption_status"`
	CreatedAt        time.Time        `db:"created_at"`
	DeletedAt        *time.Time       `db:"deleted_at"`
}

type UserTicketAddon struct {
	ID               string              `db:"id"`
	UserTicketID     string              `db:"user_ticket_id"`
	AddonID          string              `db:"addon_id"`
	PurchaseOrderID  string              `db:"purchase_order_id"`
	Quantity         int                 `db:"quantity"`
	ApprovalStatus   AddonApprovalStatus `db:"approval_status"`
	RedemptionStatus RedemptionStatus    `db:"redemption_status"`
	UnitPriceInCents int64               `db:"unit_price_in_cents"`
	CreatedAt        time.Time           `db:"created_at"`
}

type PurchaseOrder struct {
	ID                  string                     `db:"id"`
	UserID              string                     `db:"user_id"`
	Status              PurchaseOrderStatus        `db:"status"`
	PaymentStatus       PurchaseOrderPaymentStatus `db:"payment_status"`
	PaymentPlatform     *PaymentPlatform           `db:"payment_platform"`
	ExternalReferenceID *string                    `db:"external_reference_id"`
	PaymentLink         *string                    `db:"payment_link"`
	ExternalStatus      *string                    `db:"external_status"`
	CurrencyID          *string                    `db:"currency_id"`
	TotalPriceCents     *int64                     `db:"total_price_cents"`
	ExpiresAt           *time.Time                 `db:"expires_at"`
	CreatedAt           time.Time                  `db:"created_at"`
}

func NewPurchaseOrder(id, userID string, createdAt time.Time) PurchaseOrder {
	return PurchaseOrder{
		ID:            id,
		UserID:        userID,
		Status:        PurchaseOrderStatusOpen,
		PaymentStatus: PaymentStatusUnpaid,
		CreatedAt:     createdAt,
	}
}

func (p PurchaseOrder) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

type UserTicketTransfer struct {
	ID              string         `db:"id"`
	UserTicketID    string         `db:"user_ticket_id"`
	SenderUserID    string         `db:"sender_user_id"`
	RecipientUserID string         `db:"recipient_user_id"`
	Status          TransferStatus `db:"status"`
	TransferMessage *string        `db:"transfer_message"`
	ExpirationDate  time.Time      `db:"expiration_date"`
	IsReturn        bool           `db:"is_return"`
	CreatedAt       time.Time      `db:"created_at"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	User User
}

func (a Actor) IsSuperAdmin() bool {
	return a.User.IsSuperAdmin
}
