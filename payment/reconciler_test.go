package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketing/entity"
	"ticketing/payment"
)

// linkedOrder seeds a purchase order that already has a payment link on the platform.
func (f *fixture) linkedOrder(platform entity.PaymentPlatform, expiresAt time.Time) (entity.PurchaseOrder, []entity.UserTicket) {
	po, tickets := f.order(f.paidTicket(price(f.usd, 1000)), f.paidTicket(price(f.usd, 1000)))

	po.PaymentPlatform = lo.ToPtr(platform)
	po.ExternalReferenceID = lo.ToPtr(string(platform) + "-ref-" + po.ID)
	po.PaymentLink = lo.ToPtr("https://pay.example.com/" + po.ID)
	po.ExternalStatus = lo.ToPtr("pending")
	po.CurrencyID = lo.ToPtr(f.usd.ID)
	po.TotalPriceCents = lo.ToPtr(int64(2000))
	po.ExpiresAt = lo.ToPtr(expiresAt)
	f.store.AddPurchaseOrder(po)

	return po, tickets
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	paid, paidTickets := f.linkedOrder(entity.PaymentPlatformStripe, now.Add(time.Hour))
	paidAddon := f.withAddon(paidTickets[0], f.paidAddon(paidTickets[0].TicketTemplateID, price(f.usd, 100)), 1)
	f.stripe.SetStatus(*paid.ExternalReferenceID, entity.ProviderPaymentStatus{Paid: true, OrderStatus: "complete"})

	expired, expiredTickets := f.linkedOrder(entity.PaymentPlatformMercadoPago, now.Add(-time.Minute))

	waiting, _ := f.linkedOrder(entity.PaymentPlatformStripe, now.Add(time.Hour))

	opened, _ := f.linkedOrder(entity.PaymentPlatformMercadoPago, now.Add(time.Hour))
	f.mercadoPago.SetStatus(*opened.ExternalReferenceID, entity.ProviderPaymentStatus{OrderStatus: "payment_in_process"})

	summary, err := f.payments.Reconcile(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Processed)
	assert.Equal(t, map[string]int{
		payment.OutcomePaid:          1,
		payment.OutcomeExpired:       1,
		payment.OutcomeUnchanged:     1,
		payment.OutcomeStatusChanged: 1,
	}, summary.Outcomes)

	t.Run("paid", func(t *testing.T) {
		po, _ := f.store.PurchaseOrder(paid.ID)
		assert.Equal(t, entity.PurchaseOrderStatusComplete, po.Status)
		assert.Equal(t, entity.PaymentStatusPaid, po.PaymentStatus)
		assert.Equal(t, "complete", lo.FromPtr(po.ExternalStatus))

		for _, ticket := range f.store.UserTickets() {
			if ticket.PurchaseOrderID == paid.ID {
				assert.Equal(t, entity.ApprovalStatusApproved, ticket.ApprovalStatus)
			}
		}
		addon, _ := lo.Find(f.store.UserTicketAddons(), func(a entity.UserTicketAddon) bool { return a.ID == paidAddon.ID })
		assert.Equal(t, entity.AddonApprovalStatusApproved, addon.ApprovalStatus)

		event, ok := lo.Find(f.store.PublishedEvents(), func(e entity.PublicEvent) bool {
			p, ok := e.(entity.PurchaseOrderPaid_v1)
			return ok && p.PurchaseOrderID == paid.ID
		})
		require.True(t, ok)
		assert.Equal(t, "paid-"+paid.ID, event.(entity.PurchaseOrderPaid_v1).Header.IdempotencyKey)
		assert.Equal(t, "USD", event.(entity.PurchaseOrderPaid_v1).CurrencyCode)
		assert.Equal(t, f.buyer.Email, event.(entity.PurchaseOrderPaid_v1).UserEmail)
	})

	t.Run("expired", func(t *testing.T) {
		po, _ := f.store.PurchaseOrder(expired.ID)
		assert.Equal(t, entity.PurchaseOrderStatusExpired, po.Status)
		assert.Equal(t, entity.PaymentStatusUnpaid, po.PaymentStatus)

		for _, ticket := range f.store.UserTickets() {
			if ticket.PurchaseOrderID == expired.ID {
				assert.Equal(t, entity.ApprovalStatusCancelled, ticket.ApprovalStatus)
				assert.NotNil(t, ticket.DeletedAt)
			}
		}

		event, ok := lo.Find(f.store.PublishedEvents(), func(e entity.PublicEvent) bool {
			_, ok := e.(entity.PurchaseOrderExpired_v1)
			return ok
		})
		require.True(t, ok)
		assert.ElementsMatch(
			t,
			lo.Map(expiredTickets, func(t entity.UserTicket, _ int) string { return t.ID }),
			event.(entity.PurchaseOrderExpired_v1).CancelledUserTicketIDs,
		)
	})

	t.Run("waiting", func(t *testing.T) {
		po, _ := f.store.PurchaseOrder(waiting.ID)
		assert.Equal(t, waiting, po)
	})

	t.Run("status_changed", func(t *testing.T) {
		po, _ := f.store.PurchaseOrder(opened.ID)
		assert.Equal(t, entity.PurchaseOrderStatusOpen, po.Status)
		assert.Equal(t, "payment_in_process", lo.FromPtr(po.ExternalStatus))
	})

	t.Run("second_run_is_idempotent", func(t *testing.T) {
		published := len(f.store.PublishedEvents())

		summary, err := f.payments.Reconcile(ctx)
		require.NoError(t, err)

		assert.Equal(t, 2, summary.Processed)
		assert.Equal(t, map[string]int{payment.OutcomeUnchanged: 2}, summary.Outcomes)
		assert.Len(t, f.store.PublishedEvents(), published)
	})
}

func TestReconcile_paid_order_keeps_manual_approval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	template := f.store.AddTicketTemplate(entity.TicketTemplate{
		ID:               uuid.NewString(),
		EventID:          f.event.ID,
		Name:             "Speaker",
		RequiresApproval: true,
		Prices:           []entity.Price{price(f.usd, 1500)},
	})
	po, tickets := f.order(template)
	addon := f.withAddon(tickets[0], f.paidAddon(template.ID, price(f.usd, 200)), 1)

	_, err := f.payments.GeneratePaymentLink(ctx, f.actor(), po.ID, f.usd.ID)
	require.NoError(t, err)
	linked, _ := f.store.PurchaseOrder(po.ID)
	f.stripe.SetStatus(*linked.ExternalReferenceID, entity.ProviderPaymentStatus{Paid: true, OrderStatus: "complete"})

	_, err = f.payments.Reconcile(ctx)
	require.NoError(t, err)

	paid, _ := f.store.PurchaseOrder(po.ID)
	assert.Equal(t, entity.PaymentStatusPaid, paid.PaymentStatus)

	ticket, _ := lo.Find(f.store.UserTickets(), func(t entity.UserTicket) bool { return t.ID == tickets[0].ID })
	assert.Equal(t, entity.ApprovalStatusPending, ticket.ApprovalStatus)

	ticketAddon, _ := lo.Find(f.store.UserTicketAddons(), func(a entity.UserTicketAddon) bool { return a.ID == addon.ID })
	assert.Equal(t, entity.AddonApprovalStatusPending, ticketAddon.ApprovalStatus)
}

func TestReconcile_paid_transferred_seat_becomes_gifted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	po, tickets := f.linkedOrder(entity.PaymentPlatformStripe, now.Add(time.Hour))
	recipient := f.store.AddUser(entity.User{ID: uuid.NewString(), Email: "friend@example.com"})
	require.NoError(t, f.store.CreateTransfer(ctx, entity.UserTicketTransfer{
		ID:              uuid.NewString(),
		UserTicketID:    tickets[0].ID,
		SenderUserID:    f.buyer.ID,
		RecipientUserID: recipient.ID,
		Status:          entity.TransferStatusPending,
		ExpirationDate:  now.Add(7 * 24 * time.Hour),
		CreatedAt:       now,
	}))
	addon := f.withAddon(tickets[0], f.paidAddon(tickets[0].TicketTemplateID, price(f.usd, 100)), 1)
	f.stripe.SetStatus(*po.ExternalReferenceID, entity.ProviderPaymentStatus{Paid: true, OrderStatus: "complete"})

	_, err := f.payments.Reconcile(ctx)
	require.NoError(t, err)

	statuses := map[string]entity.ApprovalStatus{}
	for _, ticket := range f.store.UserTickets() {
		statuses[ticket.ID] = ticket.ApprovalStatus
	}
	assert.Equal(t, entity.ApprovalStatusGifted, statuses[tickets[0].ID])
	assert.Equal(t, entity.ApprovalStatusApproved, statuses[tickets[1].ID])

	ticketAddon, _ := lo.Find(f.store.UserTicketAddons(), func(a entity.UserTicketAddon) bool { return a.ID == addon.ID })
	assert.Equal(t, entity.AddonApprovalStatusApproved, ticketAddon.ApprovalStatus)
}

func TestReconcile_order_without_link(t *testing.T) {
	f := newFixture(t)
	po, _ := f.order(f.paidTicket(price(f.usd, 1000)))

	summary, err := f.payments.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]int{payment.OutcomeUnchanged: 1}, summary.Outcomes)
	assert.Equal(t, 0, f.stripe.StatusRequests)

	stored, _ := f.store.PurchaseOrder(po.ID)
	assert.Equal(t, po, stored)
}

func TestReconcile_continues_after_failure(t *testing.T) {
	f := newFixture(t)

	f.linkedOrder(entity.PaymentPlatformStripe, now.Add(time.Hour))
	f.stripe.GetStatusErr = errors.New("stripe unavailable")

	paid, _ := f.linkedOrder(entity.PaymentPlatformMercadoPago, now.Add(time.Hour))
	f.mercadoPago.SetStatus(*paid.ExternalReferenceID, entity.ProviderPaymentStatus{Paid: true, OrderStatus: "paid"})

	summary, err := f.payments.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, map[string]int{payment.OutcomeFailed: 1, payment.OutcomePaid: 1}, summary.Outcomes)

	stored, _ := f.store.PurchaseOrder(paid.ID)
	assert.Equal(t, entity.PaymentStatusPaid, stored.PaymentStatus)
}

func TestReconcile_failed_update_rolls_back(t *testing.T) {
	f := newFixture(t)

	paid, _ := f.linkedOrder(entity.PaymentPlatformStripe, now.Add(time.Hour))
	f.stripe.SetStatus(*paid.ExternalReferenceID, entity.ProviderPaymentStatus{Paid: true, OrderStatus: "complete"})
	f.store.Failures["Publish"] = errors.New("outbox unavailable")

	summary, err := f.payments.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{payment.OutcomeFailed: 1}, summary.Outcomes)

	stored, _ := f.store.PurchaseOrder(paid.ID)
	assert.Equal(t, entity.PaymentStatusUnpaid, stored.PaymentStatus)
	for _, ticket := range f.store.UserTickets() {
		assert.Equal(t, entity.ApprovalStatusPending, ticket.ApprovalStatus)
	}
}
