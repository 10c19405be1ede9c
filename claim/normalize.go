package claim

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"ticketing/entity"
)

type AddonRequest struct {
	AddonID  string
	Quantity int
}

type TransferInfo struct {
	Email   string
	Name    string
	Message *string
}

// ItemDetails describes one seat of a claimed ticket type.
type ItemDetails struct {
	TransferInfo *TransferInfo
	Addons       []AddonRequest
}

type Item struct {
	TicketID     string
	Quantity     int
	ItemsDetails []ItemDetails
}

type Request struct {
	Items []Item
	// CurrencyID requests a payment link in this currency once the claim is persisted.
	CurrencyID *string
}

// TicketClaim is the canonical claim of one ticket type: Quantity seats, the first
// len(ItemDetails) of which carry per-seat details.
type TicketClaim struct {
	TicketTemplateID string
	Quantity         int
	ItemDetails      []ItemDetails
}

type Normalized map[string]TicketClaim

func (n Normalized) TicketTemplateIDs() []string {
	ids := lo.Keys(n)
	sort.Strings(ids)
	return ids
}

// Claims returns the ticket claims in ticket template id order.
func (n Normalized) Claims() []TicketClaim {
	return lo.Map(n.TicketTemplateIDs(), func(id string, _ int) TicketClaim {
		return n[id]
	})
}

func (n Normalized) AddonIDs() []string {
	var ids []string
	for _, c := range n {
		for _, d := range c.ItemDetails {
			for _, a := range d.Addons {
				ids = append(ids, a.AddonID)
			}
		}
	}
	ids = lo.Uniq(ids)
	sort.Strings(ids)
	return ids
}

func (n Normalized) Transfers() []TransferInfo {
	var transfers []TransferInfo
	for _, c := range n.Claims() {
		for _, d := range c.ItemDetails {
			if d.TransferInfo != nil {
				transfers = append(transfers, *d.TransferInfo)
			}
		}
	}
	return transfers
}

const (
	// MaxTicketsPerClaim caps the seats of one ticket type in a single claim.
	MaxTicketsPerClaim = 500
	// MaxAddonQuantityPerSeat caps the quantity of one add-on on a single seat.
	MaxAddonQuantityPerSeat = 100
)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Normalize aggregates claim items per ticket type.
func Normalize(items []Item) (Normalized, error) {
	if len(items) == 0 {
		return nil, entity.InvalidArgument("claim must contain at least one item")
	}

	normalized := Normalized{}

	for _, item := range items {
		id, err := uuid.Parse(item.TicketID)
		if err != nil {
			return nil, entity.InvalidArgument("invalid ticket id %q", item.TicketID)
		}
		if item.Quantity <= 0 {
			return nil, entity.InvalidArgument("quantity for ticket %s must be greater than 0", item.TicketID)
		}
		if item.Quantity > MaxTicketsPerClaim {
			return nil, entity.InvalidArgument("cannot claim more than %d tickets of %s at once", MaxTicketsPerClaim, item.TicketID)
		}

		details := make([]ItemDetails, 0, len(item.ItemsDetails))
		for _, d := range item.ItemsDetails {
			nd, err := normalizeDetails(d)
			if err != nil {
				return nil, err
			}
			details = append(details, nd)
		}

		key := id.String()
		c := normalized[key]
		c.TicketTemplateID = key
		// both operands are capped, so the sum cannot overflow
		c.Quantity += item.Quantity
		if c.Quantity > MaxTicketsPerClaim {
			return nil, entity.InvalidArgument("cannot claim more than %d tickets of %s at once", MaxTicketsPerClaim, key)
		}
		c.ItemDetails = append(c.ItemDetails, details...)
		normalized[key] = c
	}

	for _, c := range normalized {
		if len(c.ItemDetails) > c.Quantity {
			return nil, entity.InvalidArgument(
				"ticket %s has %d item details but only %d tickets requested",
				c.TicketTemplateID,
				len(c.ItemDetails),
				c.Quantity,
			)
		}
	}

	return normalized, nil
}

func normalizeDetails(d ItemDetails) (ItemDetails, error) {
	var out ItemDetails

	if d.TransferInfo != nil {
		email := NormalizeEmail(d.TransferInfo.Email)
		if email == "" || !strings.Contains(email, "@") {
			return ItemDetails{}, entity.InvalidArgument("invalid transfer email %q", d.TransferInfo.Email)
		}
		out.TransferInfo = &TransferInfo{
			Email:   email,
			Name:    strings.TrimSpace(d.TransferInfo.Name),
			Message: d.TransferInfo.Message,
		}
	}

	quantities := map[string]int{}
	var order []string
	for _, a := range d.Addons {
		id, err := uuid.Parse(a.AddonID)
		if err != nil {
			return ItemDetails{}, entity.InvalidArgument("invalid addon id %q", a.AddonID)
		}
		if a.Quantity <= 0 {
			return ItemDetails{}, entity.InvalidArgument("quantity for addon %s must be greater than 0", a.AddonID)
		}
		if a.Quantity > MaxAddonQuantityPerSeat {
			return ItemDetails{}, entity.InvalidArgument("cannot claim more than %d of addon %s per ticket", MaxAddonQuantityPerSeat, a.AddonID)
		}

		key := id.String()
		if _, ok := quantities[key]; !ok {
			order = append(order, key)
		}
		quantities[key] += a.Quantity
		if quantities[key] > MaxAddonQuantityPerSeat {
			return ItemDetails{}, entity.InvalidArgument("cannot claim more than %d of addon %s per ticket", MaxAddonQuantityPerSeat, key)
		}
	}

	for _, id := range order {
		out.Addons = append(out.Addons, AddonRequest{AddonID: id, Quantity: quantities[id]})
	}

	return out, nil
}
