package claim

import (
	"ticketing/entity"
)

// TicketUsage is the state of one ticket template as seen by a claim.
type TicketUsage struct {
	Template       entity.TicketTemplate
	Reserved       int
	ReservedByUser int
	Requested      int
}

// AddonUsage is the state of one add-on as seen by a claim. Reserved is a sum of
// quantities, not a row count.
type AddonUsage struct {
	Addon     entity.Addon
	Reserved  int
	Requested int
}

// AddonPerTicketUsage tracks the largest quantity of an add-on on a single seat of the
// buyer for one ticket template.
type AddonPerTicketUsage struct {
	Addon            entity.Addon
	TicketTemplateID string
	MaxPerSeat       int
}

type CapacityCheck struct {
	Tickets   []TicketUsage
	Addons    []AddonUsage
	PerTicket []AddonPerTicketUsage
}

// VerifyCapacity decides whether the usage stays within the configured limits.
// The same check runs before persisting a claim (Requested set, counts excluding the claim)
// and after (Requested zero, counts including the claim).
func VerifyCapacity(check CapacityCheck) error {
	for _, t := range check.Tickets {
		if err := verifyTicket(t); err != nil {
			return err
		}
	}

	for _, a := range check.Addons {
		if a.Addon.IsUnlimited || a.Addon.TotalStock == nil {
			continue
		}
		if a.Reserved+a.Requested > *a.Addon.TotalStock {
			return entity.FailedPrecondition(
				"not enough stock for addon %s: %d requested, %d available",
				a.Addon.ID,
				a.Requested,
				max(*a.Addon.TotalStock-a.Reserved, 0),
			)
		}
	}

	for _, p := range check.PerTicket {
		if p.Addon.MaxPerTicket == nil {
			continue
		}
		if p.MaxPerSeat > *p.Addon.MaxPerTicket {
			return entity.FailedPrecondition(
				"addon %s allows at most %d per ticket %s",
				p.Addon.ID,
				*p.Addon.MaxPerTicket,
				p.TicketTemplateID,
			)
		}
	}

	return nil
}

func verifyTicket(t TicketUsage) error {
	if t.Template.IsWaitlist() {
		return entity.FailedPrecondition("ticket %s is a waitlist ticket and cannot be claimed", t.Template.ID)
	}

	if t.Template.Quantity != nil && t.Reserved+t.Requested > *t.Template.Quantity {
		return entity.FailedPrecondition(
			"not enough tickets available for %s: %d requested, %d available",
			t.Template.ID,
			t.Requested,
			max(*t.Template.Quantity-t.Reserved, 0),
		)
	}

	if t.Template.MaxTicketsPerUser != nil && t.ReservedByUser+t.Requested > *t.Template.MaxTicketsPerUser {
		return entity.FailedPrecondition(
			"ticket %s allows at most %d tickets per user",
			t.Template.ID,
			*t.Template.MaxTicketsPerUser,
		)
	}

	return nil
}
