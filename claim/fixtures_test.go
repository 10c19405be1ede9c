package claim_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"ticketing/claim"
	"ticketing/clock"
	"ticketing/entity"
	"ticketing/gateway"
	"ticketing/mocks"
	"ticketing/payment"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *mocks.Store
	clock   clock.Clock
	buyer   entity.User
	event   entity.Event
	usd     entity.Currency
	stripe  *gateway.PaymentProviderMock
	claims  *claim.Orchestrator
	tickets *claim.TicketService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := mocks.NewStore()
	clk := clock.NewFixed(now)

	f := &fixture{
		store:  store,
		clock:  clk,
		stripe: gateway.NewPaymentProviderMock(entity.PaymentPlatformStripe),
	}

	f.buyer = store.AddUser(entity.User{ID: uuid.NewString(), Email: "buyer@example.com", Name: "Buyer"})
	f.event = store.AddEvent(entity.Event{
		ID:            uuid.NewString(),
		Name:          "Gophercon",
		StartDateTime: now.Add(30 * 24 * time.Hour),
		IsActive:      true,
	})
	f.usd = store.AddCurrency(entity.Currency{ID: uuid.NewString(), Code: "USD"})

	payments := payment.NewOrchestrator(
		store,
		store,
		store,
		store,
		store,
		store,
		[]payment.Provider{f.stripe},
		clk,
		payment.Config{PaymentLinkTTL: time.Hour},
	)
	recipients := claim.NewRecipientResolver(store)

	f.claims = claim.NewOrchestrator(store, store, store, store, recipients, store, payments, clk, 7*24*time.Hour)
	f.tickets = claim.NewTicketService(store, store, store, recipients, store, clk, 7*24*time.Hour)

	return f
}

func (f *fixture) actor() entity.Actor {
	return entity.Actor{User: f.buyer}
}

func (f *fixture) ticket(modifiers ...func(*entity.TicketTemplate)) entity.TicketTemplate {
	template := entity.TicketTemplate{
		ID:      uuid.NewString(),
		EventID: f.event.ID,
		Name:    "General admission",
		IsFree:  true,
	}
	for _, m := range modifiers {
		m(&template)
	}
	return f.store.AddTicketTemplate(template)
}

func (f *fixture) addon(ticketTemplateIDs []string, modifiers ...func(*entity.Addon)) entity.Addon {
	addon := entity.Addon{
		ID:          uuid.NewString(),
		EventID:     f.event.ID,
		Name:        "T-shirt",
		IsFree:      true,
		IsUnlimited: true,
	}
	for i, id := range ticketTemplateIDs {
		addon.Tickets = append(addon.Tickets, entity.AddonTicket{TicketTemplateID: id, OrderDisplay: i})
	}
	for _, m := range modifiers {
		m(&addon)
	}
	return f.store.AddAddon(addon)
}

func (f *fixture) pricedInUSD(cents int64) []entity.Price {
	return []entity.Price{{CurrencyID: f.usd.ID, AmountCents: cents}}
}

func (f *fixture) claim(t *testing.T, req claim.Request) claim.Result {
	t.Helper()

	result, err := f.claims.Claim(context.Background(), f.actor(), req)
	require.NoError(t, err)

	return result
}

func seat(addons ...claim.AddonRequest) claim.ItemDetails {
	return claim.ItemDetails{Addons: addons}
}

func one(addonID string) claim.AddonRequest {
	return claim.AddonRequest{AddonID: addonID, Quantity: 1}
}
