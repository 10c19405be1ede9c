package payment_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"ticketing/clock"
	"ticketing/entity"
	"ticketing/gateway"
	"ticketing/mocks"
	"ticketing/payment"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store       *mocks.Store
	stripe      *gateway.PaymentProviderMock
	mercadoPago *gateway.PaymentProviderMock
	payments    *payment.Orchestrator

	buyer entity.User
	event entity.Event
	usd   entity.Currency
	clp   entity.Currency
	eur   entity.Currency
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := mocks.NewStore()
	f := &fixture{
		store:       store,
		stripe:      gateway.NewPaymentProviderMock(entity.PaymentPlatformStripe),
		mercadoPago: gateway.NewPaymentProviderMock(entity.PaymentPlatformMercadoPago),
	}

	f.payments = payment.NewOrchestrator(
		store,
		store,
		store,
		store,
		store,
		store,
		[]payment.Provider{f.stripe, f.mercadoPago},
		clock.NewFixed(now),
		payment.Config{
			RedirectURLs:   entity.RedirectURLs{Success: "https://tickets.example.com/ok"},
			PaymentLinkTTL: 30 * time.Minute,
		},
	)

	f.buyer = store.AddUser(entity.User{ID: uuid.NewString(), Email: "buyer@example.com"})
	f.event = store.AddEvent(entity.Event{ID: uuid.NewString(), StartDateTime: now.Add(30 * 24 * time.Hour), IsActive: true})
	f.usd = store.AddCurrency(entity.Currency{ID: uuid.NewString(), Code: "USD"})
	f.clp = store.AddCurrency(entity.Currency{ID: uuid.NewString(), Code: "CLP"})
	f.eur = store.AddCurrency(entity.Currency{ID: uuid.NewString(), Code: "EUR"})

	return f
}

func (f *fixture) actor() entity.Actor {
	return entity.Actor{User: f.buyer}
}

func (f *fixture) freeTicket() entity.TicketTemplate {
	return f.store.AddTicketTemplate(entity.TicketTemplate{ID: uuid.NewString(), EventID: f.event.ID, Name: "Free", IsFree: true})
}

func (f *fixture) paidTicket(prices ...entity.Price) entity.TicketTemplate {
	return f.store.AddTicketTemplate(entity.TicketTemplate{
		ID:      uuid.NewString(),
		EventID: f.event.ID,
		Name:    "VIP",
		Prices:  prices,
	})
}

func (f *fixture) paidAddon(ticketTemplateID string, prices ...entity.Price) entity.Addon {
	return f.store.AddAddon(entity.Addon{
		ID:          uuid.NewString(),
		EventID:     f.event.ID,
		Name:        "Parking",
		IsUnlimited: true,
		Prices:      prices,
		Tickets:     []entity.AddonTicket{{TicketTemplateID: ticketTemplateID}},
	})
}

// order seeds an open purchase order of the buyer holding one seat of each template.
func (f *fixture) order(templates ...entity.TicketTemplate) (entity.PurchaseOrder, []entity.UserTicket) {
	po := entity.NewPurchaseOrder(uuid.NewString(), f.buyer.ID, now.Add(-time.Minute))
	f.store.AddPurchaseOrder(po)

	var tickets []entity.UserTicket
	for _, template := range templates {
		ticket := entity.UserTicket{
			ID:               uuid.NewString(),
			UserID:           f.buyer.ID,
			TicketTemplateID: template.ID,
			PurchaseOrderID:  po.ID,
			ApprovalStatus:   template.InitialApprovalStatus(),
			RedemptionStatus: entity.RedemptionStatusPending,
			CreatedAt:        po.CreatedAt,
		}
		f.store.AddUserTicket(ticket)
		tickets = append(tickets, ticket)
	}

	return po, tickets
}

func (f *fixture) withAddon(ticket entity.UserTicket, addon entity.Addon, quantity int) entity.UserTicketAddon {
	a := entity.UserTicketAddon{
		ID:               uuid.NewString(),
		UserTicketID:     ticket.ID,
		AddonID:          addon.ID,
		PurchaseOrderID:  ticket.PurchaseOrderID,
		Quantity:         quantity,
		ApprovalStatus:   entity.AddonApprovalStatusPending,
		RedemptionStatus: entity.RedemptionStatusPending,
		CreatedAt:        now,
	}
	f.store.AddUserTicketAddon(a)
	return a
}

func price(currency entity.Currency, cents int64) entity.Price {
	return entity.Price{CurrencyID: currency.ID, AmountCents: cents}
}
