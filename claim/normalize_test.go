package claim_test

import (
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketing/claim"
	"ticketing/entity"
)

func TestNormalize(t *testing.T) {
	ticketA := uuid.NewString()
	ticketB := uuid.NewString()
	addonX := uuid.NewString()
	addonY := uuid.NewString()

	t.Run("aggregates_items_of_the_same_ticket", func(t *testing.T) {
		normalized, err := claim.Normalize([]claim.Item{
			{TicketID: ticketA, Quantity: 1, ItemsDetails: []claim.ItemDetails{{
				Addons: []claim.AddonRequest{{AddonID: addonX, Quantity: 1}},
			}}},
			{TicketID: ticketB, Quantity: 2},
			{TicketID: ticketA, Quantity: 2, ItemsDetails: []claim.ItemDetails{{
				Addons: []claim.AddonRequest{{AddonID: addonY, Quantity: 1}},
			}}},
		})
		require.NoError(t, err)

		require.Len(t, normalized, 2)
		assert.Equal(t, 3, normalized[ticketA].Quantity)
		assert.Len(t, normalized[ticketA].ItemDetails, 2)
		assert.Equal(t, 2, normalized[ticketB].Quantity)
		assert.Empty(t, normalized[ticketB].ItemDetails)

		expectedAddons := []string{addonX, addonY}
		if addonY < addonX {
			expectedAddons = []string{addonY, addonX}
		}
		assert.Equal(t, expectedAddons, normalized.AddonIDs())
	})

	t.Run("merges_repeated_addons_of_a_seat", func(t *testing.T) {
		normalized, err := claim.Normalize([]claim.Item{
			{TicketID: ticketA, Quantity: 1, ItemsDetails: []claim.ItemDetails{{
				Addons: []claim.AddonRequest{
					{AddonID: addonX, Quantity: 1},
					{AddonID: addonY, Quantity: 1},
					{AddonID: addonX, Quantity: 2},
				},
			}}},
		})
		require.NoError(t, err)

		assert.Equal(t, []claim.AddonRequest{
			{AddonID: addonX, Quantity: 3},
			{AddonID: addonY, Quantity: 1},
		}, normalized[ticketA].ItemDetails[0].Addons)
	})

	t.Run("normalizes_transfer_email", func(t *testing.T) {
		normalized, err := claim.Normalize([]claim.Item{
			{TicketID: ticketA, Quantity: 1, ItemsDetails: []claim.ItemDetails{{
				TransferInfo: &claim.TransferInfo{Email: "  Friend@Example.COM ", Name: " Friend "},
			}}},
		})
		require.NoError(t, err)

		assert.Equal(t, []claim.TransferInfo{{Email: "friend@example.com", Name: "Friend"}}, normalized.Transfers())
	})

	t.Run("canonical_ticket_id", func(t *testing.T) {
		normalized, err := claim.Normalize([]claim.Item{
			{TicketID: strings.ToUpper(ticketA), Quantity: 1},
			{TicketID: ticketA, Quantity: 1},
		})
		require.NoError(t, err)

		assert.Equal(t, []string{ticketA}, normalized.TicketTemplateIDs())
		assert.Equal(t, 2, normalized[ticketA].Quantity)
	})

	testCases := []struct {
		Name          string
		Items         []claim.Item
		ExpectedError string
	}{
		{
			Name:          "no_items",
			ExpectedError: "claim must contain at least one item",
		},
		{
			Name:          "invalid_ticket_id",
			Items:         []claim.Item{{TicketID: "not-a-uuid", Quantity: 1}},
			ExpectedError: `invalid ticket id "not-a-uuid"`,
		},
		{
			Name:          "zero_quantity",
			Items:         []claim.Item{{TicketID: ticketA, Quantity: 0}},
			ExpectedError: "must be greater than 0",
		},
		{
			Name: "more_details_than_tickets",
			Items: []claim.Item{
				{TicketID: ticketA, Quantity: 1, ItemsDetails: []claim.ItemDetails{{}, {}}},
			},
			ExpectedError: "has 2 item details but only 1 tickets requested",
		},
		{
			Name: "invalid_transfer_email",
			Items: []claim.Item{
				{TicketID: ticketA, Quantity: 1, ItemsDetails: []claim.ItemDetails{{
					TransferInfo: &claim.TransferInfo{Email: "nobody"},
				}}},
			},
			ExpectedError: `invalid transfer email "nobody"`,
		},
		{
			Name: "invalid_addon_quantity",
			Items: []claim.Item{
				{TicketID: ticketA, Quantity: 1, ItemsDetails: []claim.ItemDetails{{
					Addons: []claim.AddonRequest{{AddonID: addonX, Quantity: -1}},
				}}},
			},
			ExpectedError: "quantity for addon",
		},
		{
			Name: "overflowing_ticket_quantity",
			Items: []claim.Item{
				{TicketID: ticketA, Quantity: math.MaxInt},
				{TicketID: ticketA, Quantity: 2},
			},
			ExpectedError: "cannot claim more than 500 tickets",
		},
		{
			Name: "aggregated_ticket_quantity_above_limit",
			Items: []claim.Item{
				{TicketID: ticketA, Quantity: claim.MaxTicketsPerClaim},
				{TicketID: ticketA, Quantity: 1},
			},
			ExpectedError: "cannot claim more than 500 tickets",
		},
		{
			Name: "merged_addon_quantity_above_limit",
			Items: []claim.Item{
				{TicketID: ticketA, Quantity: 1, ItemsDetails: []claim.ItemDetails{{
					Addons: []claim.AddonRequest{
						{AddonID: addonX, Quantity: claim.MaxAddonQuantityPerSeat},
						{AddonID: addonX, Quantity: 1},
					},
				}}},
			},
			ExpectedError: "cannot claim more than 100 of addon",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := claim.Normalize(tc.Items)
			require.Error(t, err)
			assert.Equal(t, entity.KindInvalidArgument, entity.KindOf(err))
			assert.Contains(t, err.Error(), tc.ExpectedError)
		})
	}
}
