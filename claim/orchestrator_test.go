package claim_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketing/claim"
	"ticketing/entity"
)

func TestClaim_approval_status(t *testing.T) {
	f := newFixture(t)

	free := f.ticket()
	needsApproval := f.ticket(func(t *entity.TicketTemplate) { t.RequiresApproval = true })
	paid := f.ticket(func(t *entity.TicketTemplate) {
		t.IsFree = false
		t.Prices = f.pricedInUSD(1500)
	})

	testCases := []struct {
		Name     string
		Template entity.TicketTemplate
		Expected entity.ApprovalStatus
	}{
		{Name: "free_ticket", Template: free, Expected: entity.ApprovalStatusApproved},
		{Name: "ticket_requiring_approval", Template: needsApproval, Expected: entity.ApprovalStatusPending},
		{Name: "paid_ticket", Template: paid, Expected: entity.ApprovalStatusPending},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			result := f.claim(t, claim.Request{Items: []claim.Item{{TicketID: tc.Template.ID, Quantity: 1}}})
			require.False(t, result.Failed(), "claim failed: %+v", result.Error)
			require.Len(t, result.TicketIDs, 1)

			ticket, ok := lo.Find(f.store.UserTickets(), func(t entity.UserTicket) bool { return t.ID == result.TicketIDs[0] })
			require.True(t, ok)
			assert.Equal(t, tc.Expected, ticket.ApprovalStatus)
			assert.Equal(t, f.buyer.ID, ticket.UserID)
			assert.Equal(t, result.PurchaseOrder.ID, ticket.PurchaseOrderID)
		})
	}
}

func TestClaim_creates_purchase_order_and_event(t *testing.T) {
	f := newFixture(t)
	template := f.ticket()

	result := f.claim(t, claim.Request{Items: []claim.Item{{TicketID: template.ID, Quantity: 3}}})
	require.False(t, result.Failed())

	po, ok := f.store.PurchaseOrder(result.PurchaseOrder.ID)
	require.True(t, ok)
	assert.Equal(t, entity.PurchaseOrderStatusOpen, po.Status)
	assert.Equal(t, entity.PaymentStatusUnpaid, po.PaymentStatus)
	assert.Equal(t, f.buyer.ID, po.UserID)
	assert.Len(t, result.TicketIDs, 3)

	events := f.store.PublishedEvents()
	require.Len(t, events, 1)
	claimed, ok := events[0].(entity.TicketsClaimed_v1)
	require.True(t, ok)
	assert.Equal(t, po.ID, claimed.PurchaseOrderID)
	assert.Equal(t, f.event.ID, claimed.EventID)
	assert.ElementsMatch(t, result.TicketIDs, claimed.UserTicketIDs)
	assert.Equal(t, "claim-"+po.ID, claimed.Header.IdempotencyKey)
}

func TestClaim_addon_constraints(t *testing.T) {
	f := newFixture(t)
	template := f.ticket()
	x := f.addon([]string{template.ID})
	y := f.addon([]string{template.ID})
	z := f.addon([]string{template.ID})

	f.store.AddConstraint(entity.AddonConstraint{AddonID: x.ID, RelatedAddonID: y.ID, ConstraintType: entity.ConstraintTypeDependency})
	f.store.AddConstraint(entity.AddonConstraint{AddonID: x.ID, RelatedAddonID: z.ID, ConstraintType: entity.ConstraintTypeMutualExclusion})

	t.Run("missing_dependency", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{
			TicketID: template.ID, Quantity: 1, ItemsDetails: []claim.ItemDetails{seat(one(x.ID))},
		}}})

		require.True(t, result.Failed())
		assert.Equal(t, entity.KindFailedPrecondition, result.Error.Kind)
		assert.Contains(t, result.Error.ErrorMessage, y.ID)
	})

	t.Run("mutually_exclusive", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{
			TicketID: template.ID, Quantity: 1, ItemsDetails: []claim.ItemDetails{seat(one(x.ID), one(y.ID), one(z.ID))},
		}}})

		require.True(t, result.Failed())
		assert.Equal(t, entity.KindFailedPrecondition, result.Error.Kind)
		assert.Contains(t, result.Error.ErrorMessage, "mutually exclusive")
	})

	t.Run("constraints_apply_per_seat", func(t *testing.T) {
		// y on another seat does not satisfy x
		result := f.claim(t, claim.Request{Items: []claim.Item{{
			TicketID: template.ID, Quantity: 2, ItemsDetails: []claim.ItemDetails{seat(one(x.ID)), seat(one(y.ID))},
		}}})

		require.True(t, result.Failed())
		assert.Equal(t, entity.KindFailedPrecondition, result.Error.Kind)
	})

	t.Run("satisfied", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{
			TicketID: template.ID, Quantity: 1, ItemsDetails: []claim.ItemDetails{seat(one(x.ID), one(y.ID))},
		}}})
		require.False(t, result.Failed(), "claim failed: %+v", result.Error)

		addons := lo.Filter(f.store.UserTicketAddons(), func(a entity.UserTicketAddon, _ int) bool {
			return a.PurchaseOrderID == result.PurchaseOrder.ID
		})
		require.Len(t, addons, 2)
		for _, a := range addons {
			assert.Equal(t, entity.AddonApprovalStatusApproved, a.ApprovalStatus)
			assert.Equal(t, result.TicketIDs[0], a.UserTicketID)
		}
	})

	assert.Equal(t, 1, len(f.store.PurchaseOrders()))
}

func TestClaim_addon_rules(t *testing.T) {
	f := newFixture(t)
	template := f.ticket()
	other := f.ticket()
	needsApproval := f.ticket(func(t *entity.TicketTemplate) { t.RequiresApproval = true })

	onlyOther := f.addon([]string{other.ID})
	paidAddon := f.addon([]string{template.ID}, func(a *entity.Addon) {
		a.IsFree = false
		a.Prices = f.pricedInUSD(500)
	})
	shared := f.addon([]string{template.ID, needsApproval.ID})

	t.Run("addon_not_available_for_ticket", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{
			TicketID: template.ID, Quantity: 1, ItemsDetails: []claim.ItemDetails{seat(one(onlyOther.ID))},
		}}})

		require.True(t, result.Failed())
		assert.Equal(t, entity.KindInvalidArgument, result.Error.Kind)
	})

	t.Run("paid_addon_requires_currency", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{
			TicketID: template.ID, Quantity: 1, ItemsDetails: []claim.ItemDetails{seat(one(paidAddon.ID))},
		}}})

		require.True(t, result.Failed())
		assert.Equal(t, entity.KindInvalidArgument, result.Error.Kind)
		assert.Contains(t, result.Error.ErrorMessage, "currency is required")
	})

	t.Run("free_addon_of_pending_ticket_is_pending", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{
			TicketID: needsApproval.ID, Quantity: 1, ItemsDetails: []claim.ItemDetails{seat(one(shared.ID))},
		}}})
		require.False(t, result.Failed(), "claim failed: %+v", result.Error)

		addon, ok := lo.Find(f.store.UserTicketAddons(), func(a entity.UserTicketAddon) bool {
			return a.PurchaseOrderID == result.PurchaseOrder.ID
		})
		require.True(t, ok)
		assert.Equal(t, entity.AddonApprovalStatusPending, addon.ApprovalStatus)
	})

	t.Run("unknown_addon", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{
			TicketID: template.ID, Quantity: 1, ItemsDetails: []claim.ItemDetails{seat(one("6f1f8b8e-0000-4000-8000-000000000000"))},
		}}})

		require.True(t, result.Failed())
		assert.Equal(t, entity.KindNotFound, result.Error.Kind)
	})
}

func TestClaim_capacity(t *testing.T) {
	f := newFixture(t)

	limited := f.ticket(func(t *entity.TicketTemplate) { t.Quantity = lo.ToPtr(5) })
	perUser := f.ticket(func(t *entity.TicketTemplate) { t.MaxTicketsPerUser = lo.ToPtr(2) })
	waitlist := f.ticket(func(t *entity.TicketTemplate) { t.Tags = []string{entity.WaitlistTag} })

	t.Run("sold_out_claim_persists_nothing", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{TicketID: limited.ID, Quantity: 6}}})

		require.True(t, result.Failed())
		assert.Equal(t, entity.KindFailedPrecondition, result.Error.Kind)
		assert.Empty(t, f.store.PurchaseOrders())
		assert.Empty(t, f.store.UserTickets())
	})

	t.Run("per_user_limit_counts_previous_claims", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{TicketID: perUser.ID, Quantity: 2}}})
		require.False(t, result.Failed(), "claim failed: %+v", result.Error)

		result = f.claim(t, claim.Request{Items: []claim.Item{{TicketID: perUser.ID, Quantity: 1}}})
		require.True(t, result.Failed())
		assert.Contains(t, result.Error.ErrorMessage, "at most 2 tickets per user")
	})

	t.Run("waitlist_ticket", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{TicketID: waitlist.ID, Quantity: 1}}})

		require.True(t, result.Failed())
		assert.Contains(t, result.Error.ErrorMessage, "waitlist")
	})

	t.Run("addon_stock", func(t *testing.T) {
		f := newFixture(t)
		template := f.ticket()
		stocked := f.addon([]string{template.ID}, func(a *entity.Addon) {
			a.IsUnlimited = false
			a.TotalStock = lo.ToPtr(2)
		})

		result := f.claim(t, claim.Request{Items: []claim.Item{{
			TicketID: template.ID, Quantity: 2, ItemsDetails: []claim.ItemDetails{seat(one(stocked.ID)), seat(one(stocked.ID))},
		}}})
		require.False(t, result.Failed(), "claim failed: %+v", result.Error)

		result = f.claim(t, claim.Request{Items: []claim.Item{{
			TicketID: template.ID, Quantity: 1, ItemsDetails: []claim.ItemDetails{seat(one(stocked.ID))},
		}}})
		require.True(t, result.Failed())
		assert.Contains(t, result.Error.ErrorMessage, "not enough stock")
	})

	t.Run("max_per_ticket", func(t *testing.T) {
		f := newFixture(t)
		template := f.ticket()
		limitedPerSeat := f.addon([]string{template.ID}, func(a *entity.Addon) { a.MaxPerTicket = lo.ToPtr(1) })

		result := f.claim(t, claim.Request{Items: []claim.Item{{
			TicketID:     template.ID,
			Quantity:     1,
			ItemsDetails: []claim.ItemDetails{seat(claim.AddonRequest{AddonID: limitedPerSeat.ID, Quantity: 2})},
		}}})

		require.True(t, result.Failed())
		assert.Contains(t, result.Error.ErrorMessage, "at most 1 per ticket")
	})

}

func TestClaim_concurrent_claims_respect_capacity(t *testing.T) {
	f := newFixture(t)
	template := f.ticket(func(t *entity.TicketTemplate) { t.Quantity = lo.ToPtr(5) })

	var wg sync.WaitGroup
	var lock sync.Mutex
	succeeded := 0

	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			result, err := f.claims.Claim(context.Background(), f.actor(), claim.Request{
				Items: []claim.Item{{TicketID: template.ID, Quantity: 1}},
			})
			if err != nil || result.Failed() {
				return
			}

			lock.Lock()
			succeeded++
			lock.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Len(t, f.store.UserTickets(), 5)
}

func TestClaim_event_state(t *testing.T) {
	f := newFixture(t)

	inactive := f.store.AddEvent(entity.Event{ID: "8c5e7d5c-0000-4000-8000-000000000001", StartDateTime: now.Add(24 * time.Hour), IsActive: false})
	started := f.store.AddEvent(entity.Event{ID: "8c5e7d5c-0000-4000-8000-000000000002", StartDateTime: now, IsActive: true})

	inactiveTicket := f.ticket(func(t *entity.TicketTemplate) { t.EventID = inactive.ID })
	startedTicket := f.ticket(func(t *entity.TicketTemplate) { t.EventID = started.ID })
	regular := f.ticket()

	t.Run("inactive_event", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{TicketID: inactiveTicket.ID, Quantity: 1}}})
		require.True(t, result.Failed())
		assert.Contains(t, result.Error.ErrorMessage, "is not active")
	})

	t.Run("inactive_event_super_admin", func(t *testing.T) {
		admin := f.store.AddUser(entity.User{ID: "8c5e7d5c-0000-4000-8000-0000000000aa", Email: "admin@example.com", IsSuperAdmin: true})

		result, err := f.claims.Claim(context.Background(), entity.Actor{User: admin}, claim.Request{
			Items: []claim.Item{{TicketID: inactiveTicket.ID, Quantity: 1}},
		})
		require.NoError(t, err)
		assert.False(t, result.Failed(), "claim failed: %+v", result.Error)
	})

	t.Run("started_event", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{TicketID: startedTicket.ID, Quantity: 1}}})
		require.True(t, result.Failed())
		assert.Contains(t, result.Error.ErrorMessage, "has already started")
	})

	t.Run("tickets_of_different_events", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{
			{TicketID: regular.ID, Quantity: 1},
			{TicketID: inactiveTicket.ID, Quantity: 1},
		}})
		require.True(t, result.Failed())
		assert.Equal(t, entity.KindInvalidArgument, result.Error.Kind)
	})

	t.Run("unknown_ticket", func(t *testing.T) {
		result := f.claim(t, claim.Request{Items: []claim.Item{{TicketID: "8c5e7d5c-0000-4000-8000-0000000000ff", Quantity: 1}}})
		require.True(t, result.Failed())
		assert.Equal(t, entity.KindNotFound, result.Error.Kind)
	})
}

func TestClaim_with_transfer(t *testing.T) {
	f := newFixture(t)
	template := f.ticket()

	message := "enjoy"
	result := f.claim(t, claim.Request{Items: []claim.Item{{
		TicketID: template.ID,
		Quantity: 2,
		ItemsDetails: []claim.ItemDetails{{
			TransferInfo: &claim.TransferInfo{Email: "Friend@Example.com", Name: "Friend", Message: &message},
		}},
	}}})
	require.False(t, result.Failed(), "claim failed: %+v", result.Error)

	recipient, err := f.store.GetUserByEmail(context.Background(), "friend@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Friend", recipient.Name)

	transfers := f.store.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, recipient.ID, transfers[0].RecipientUserID)
	assert.Equal(t, f.buyer.ID, transfers[0].SenderUserID)
	assert.Equal(t, entity.TransferStatusPending, transfers[0].Status)
	assert.Equal(t, now.Add(7*24*time.Hour), transfers[0].ExpirationDate)

	statuses := lo.Map(f.store.UserTickets(), func(t entity.UserTicket, _ int) entity.ApprovalStatus { return t.ApprovalStatus })
	assert.ElementsMatch(t, []entity.ApprovalStatus{entity.ApprovalStatusGifted, entity.ApprovalStatusApproved}, statuses)

	events := f.store.PublishedEvents()
	require.Len(t, events, 2)
	requested, ok := events[1].(entity.TicketTransferRequested_v1)
	require.True(t, ok)
	assert.Equal(t, "friend@example.com", requested.RecipientEmail)
	assert.Equal(t, "enjoy", requested.Message)
}

func TestClaim_transfer_to_self(t *testing.T) {
	f := newFixture(t)
	template := f.ticket()

	result := f.claim(t, claim.Request{Items: []claim.Item{{
		TicketID:     template.ID,
		Quantity:     1,
		ItemsDetails: []claim.ItemDetails{{TransferInfo: &claim.TransferInfo{Email: " BUYER@example.com"}}},
	}}})

	require.True(t, result.Failed())
	assert.Equal(t, entity.KindInvalidArgument, result.Error.Kind)
	assert.Empty(t, f.store.PurchaseOrders())
}

func TestClaim_failure_rolls_back_everything(t *testing.T) {
	f := newFixture(t)
	template := f.ticket()
	addon := f.addon([]string{template.ID})

	f.store.Failures["CreateTransfer"] = errors.New("connection reset")

	_, err := f.claims.Claim(context.Background(), f.actor(), claim.Request{Items: []claim.Item{{
		TicketID: template.ID,
		Quantity: 1,
		ItemsDetails: []claim.ItemDetails{{
			TransferInfo: &claim.TransferInfo{Email: "friend@example.com"},
			Addons:       []claim.AddonRequest{one(addon.ID)},
		}},
	}}})
	require.Error(t, err)
	assert.Equal(t, entity.KindInternal, entity.KindOf(err))

	assert.Empty(t, f.store.PurchaseOrders())
	assert.Empty(t, f.store.UserTickets())
	assert.Empty(t, f.store.UserTicketAddons())
	assert.Empty(t, f.store.Transfers())
	assert.Empty(t, f.store.PublishedEvents())
	assert.Equal(t, 1, f.store.Rollbacks)

	_, err = f.store.GetUserByEmail(context.Background(), "friend@example.com")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestClaim_publish_failure_rolls_back(t *testing.T) {
	f := newFixture(t)
	template := f.ticket()

	f.store.Failures["Publish"] = errors.New("outbox unavailable")

	_, err := f.claims.Claim(context.Background(), f.actor(), claim.Request{Items: []claim.Item{{TicketID: template.ID, Quantity: 1}}})
	require.Error(t, err)

	assert.Empty(t, f.store.PurchaseOrders())
	assert.Empty(t, f.store.UserTickets())
}

func TestClaim_with_currency_creates_payment_link(t *testing.T) {
	f := newFixture(t)
	template := f.ticket(func(t *entity.TicketTemplate) {
		t.IsFree = false
		t.Prices = f.pricedInUSD(2000)
	})
	addon := f.addon([]string{template.ID}, func(a *entity.Addon) {
		a.IsFree = false
		a.Prices = f.pricedInUSD(500)
	})

	result := f.claim(t, claim.Request{
		Items: []claim.Item{{
			TicketID:     template.ID,
			Quantity:     2,
			ItemsDetails: []claim.ItemDetails{seat(claim.AddonRequest{AddonID: addon.ID, Quantity: 2})},
		}},
		CurrencyID: &f.usd.ID,
	})
	require.False(t, result.Failed(), "claim failed: %+v", result.Error)

	po := result.PurchaseOrder
	assert.Equal(t, entity.PaymentStatusUnpaid, po.PaymentStatus)
	require.NotNil(t, po.PaymentPlatform)
	assert.Equal(t, entity.PaymentPlatformStripe, *po.PaymentPlatform)
	require.NotNil(t, po.PaymentLink)
	require.NotNil(t, po.TotalPriceCents)
	assert.Equal(t, int64(2*2000+2*500), *po.TotalPriceCents)
	require.NotNil(t, po.ExpiresAt)
	assert.Equal(t, now.Add(time.Hour), *po.ExpiresAt)

	items, ok := f.stripe.LinkItems(po.ID)
	require.True(t, ok)
	assert.Len(t, items, 2)

	stored, _ := f.store.PurchaseOrder(po.ID)
	assert.Equal(t, po, stored)

	ticketAddon, ok := lo.Find(f.store.UserTicketAddons(), func(a entity.UserTicketAddon) bool { return a.AddonID == addon.ID })
	require.True(t, ok)
	assert.Equal(t, int64(500), ticketAddon.UnitPriceInCents)
}
