package claim_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketing/claim"
	"ticketing/entity"
)

func (f *fixture) ownedTicket(template entity.TicketTemplate, status entity.ApprovalStatus) entity.UserTicket {
	ticket := entity.UserTicket{
		ID:               uuid.NewString(),
		UserID:           f.buyer.ID,
		TicketTemplateID: template.ID,
		PurchaseOrderID:  uuid.NewString(),
		ApprovalStatus:   status,
		RedemptionStatus: entity.RedemptionStatusPending,
		CreatedAt:        now,
	}
	f.store.AddUserTicket(ticket)
	return ticket
}

func (f *fixture) ticketAddon(ticket entity.UserTicket, addon entity.Addon) entity.UserTicketAddon {
	a := entity.UserTicketAddon{
		ID:               uuid.NewString(),
		UserTicketID:     ticket.ID,
		AddonID:          addon.ID,
		PurchaseOrderID:  ticket.PurchaseOrderID,
		Quantity:         1,
		ApprovalStatus:   entity.AddonApprovalStatusApproved,
		RedemptionStatus: entity.RedemptionStatusPending,
		CreatedAt:        now,
	}
	f.store.AddUserTicketAddon(a)
	return a
}

func TestTicketService_RequestTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("supersedes_pending_transfer", func(t *testing.T) {
		f := newFixture(t)
		ticket := f.ownedTicket(f.ticket(), entity.ApprovalStatusApproved)

		first, err := f.tickets.RequestTransfer(ctx, f.actor(), ticket.ID, claim.TransferInfo{Email: "first@example.com"})
		require.NoError(t, err)

		second, err := f.tickets.RequestTransfer(ctx, f.actor(), ticket.ID, claim.TransferInfo{Email: "second@example.com"})
		require.NoError(t, err)

		transfers := lo.KeyBy(f.store.Transfers(), func(t entity.UserTicketTransfer) string { return t.ID })
		assert.Equal(t, entity.TransferStatusCancelled, transfers[first.ID].Status)
		assert.Equal(t, entity.TransferStatusPending, transfers[second.ID].Status)
		assert.Equal(t, now.Add(7*24*time.Hour), second.ExpirationDate)

		stored, _ := lo.Find(f.store.UserTickets(), func(t entity.UserTicket) bool { return t.ID == ticket.ID })
		assert.Equal(t, entity.ApprovalStatusTransferPending, stored.ApprovalStatus)

		assert.Len(t, f.store.PublishedEvents(), 2)
	})

	t.Run("gifted_ticket_stays_gifted", func(t *testing.T) {
		f := newFixture(t)
		ticket := f.ownedTicket(f.ticket(), entity.ApprovalStatusGifted)

		_, err := f.tickets.RequestTransfer(ctx, f.actor(), ticket.ID, claim.TransferInfo{Email: "friend@example.com"})
		require.NoError(t, err)

		stored, _ := lo.Find(f.store.UserTickets(), func(t entity.UserTicket) bool { return t.ID == ticket.ID })
		assert.Equal(t, entity.ApprovalStatusGifted, stored.ApprovalStatus)
	})

	testCases := []struct {
		Name         string
		Status       entity.ApprovalStatus
		Email        string
		Actor        func(f *fixture) entity.Actor
		ExpectedKind entity.ErrorKind
	}{
		{
			Name:         "pending_ticket",
			Status:       entity.ApprovalStatusPending,
			Email:        "friend@example.com",
			ExpectedKind: entity.KindFailedPrecondition,
		},
		{
			Name:         "transfer_to_self",
			Status:       entity.ApprovalStatusApproved,
			Email:        "Buyer@Example.com",
			ExpectedKind: entity.KindInvalidArgument,
		},
		{
			Name:   "not_the_owner",
			Status: entity.ApprovalStatusApproved,
			Email:  "friend@example.com",
			Actor: func(f *fixture) entity.Actor {
				return entity.Actor{User: f.store.AddUser(entity.User{ID: uuid.NewString(), Email: "stranger@example.com"})}
			},
			ExpectedKind: entity.KindUnauthorized,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			f := newFixture(t)
			ticket := f.ownedTicket(f.ticket(), tc.Status)

			actor := f.actor()
			if tc.Actor != nil {
				actor = tc.Actor(f)
			}

			_, err := f.tickets.RequestTransfer(ctx, actor, ticket.ID, claim.TransferInfo{Email: tc.Email})
			require.Error(t, err)
			assert.Equal(t, tc.ExpectedKind, entity.KindOf(err))
			assert.Empty(t, f.store.Transfers())
		})
	}

	t.Run("invalid_ticket_id", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.tickets.RequestTransfer(ctx, f.actor(), "42", claim.TransferInfo{Email: "friend@example.com"})
		assert.Equal(t, entity.KindInvalidArgument, entity.KindOf(err))
	})
}

func TestTicketService_CancelAddons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	template := f.ticket()
	x := f.addon([]string{template.ID})
	y := f.addon([]string{template.ID})
	f.store.AddConstraint(entity.AddonConstraint{AddonID: x.ID, RelatedAddonID: y.ID, ConstraintType: entity.ConstraintTypeDependency})

	ticket := f.ownedTicket(template, entity.ApprovalStatusApproved)
	withX := f.ticketAddon(ticket, x)
	withY := f.ticketAddon(ticket, y)

	_, err := f.tickets.CancelAddons(ctx, f.actor(), ticket.ID, []string{withY.ID})
	require.Error(t, err)
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))

	_, err = f.tickets.CancelAddons(ctx, f.actor(), ticket.ID, []string{uuid.NewString()})
	assert.Equal(t, entity.KindNotFound, entity.KindOf(err))

	cancelled, err := f.tickets.CancelAddons(ctx, f.actor(), ticket.ID, []string{withX.ID})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, entity.AddonApprovalStatusCancelled, cancelled[0].ApprovalStatus)

	_, err = f.tickets.CancelAddons(ctx, f.actor(), ticket.ID, []string{withY.ID})
	require.NoError(t, err)

	_, err = f.tickets.CancelAddons(ctx, f.actor(), ticket.ID, []string{withY.ID})
	assert.Equal(t, entity.KindFailedPrecondition, entity.KindOf(err))

	for _, a := range f.store.UserTicketAddons() {
		assert.Equal(t, entity.AddonApprovalStatusCancelled, a.ApprovalStatus)
	}
}

func TestTicketService_CancelAddons_both_at_once(t *testing.T) {
	f := newFixture(t)

	template := f.ticket()
	x := f.addon([]string{template.ID})
	y := f.addon([]string{template.ID})
	f.store.AddConstraint(entity.AddonConstraint{AddonID: x.ID, RelatedAddonID: y.ID, ConstraintType: entity.ConstraintTypeDependency})

	ticket := f.ownedTicket(template, entity.ApprovalStatusApproved)
	withX := f.ticketAddon(ticket, x)
	withY := f.ticketAddon(ticket, y)

	cancelled, err := f.tickets.CancelAddons(context.Background(), f.actor(), ticket.ID, []string{withY.ID, withX.ID})
	require.NoError(t, err)
	assert.Len(t, cancelled, 2)
}
