package claim

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"ticketing/clock"
	"ticketing/entity"
	"ticketing/metrics"
)

type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Catalog interface {
	GetEvent(ctx context.Context, eventID string) (entity.Event, error)
	GetTicketTemplates(ctx context.Context, ids []string) ([]entity.TicketTemplate, error)
	GetAddons(ctx context.Context, ids []string) ([]entity.Addon, error)
	LockTicketTemplates(ctx context.Context, ids []string) error
	LockAddons(ctx context.Context, ids []string) error
}

type TicketsRepository interface {
	CountReservedTickets(ctx context.Context, ticketTemplateID string) (int, error)
	CountReservedTicketsByUser(ctx context.Context, ticketTemplateID, userID string) (int, error)
	SumReservedAddonQuantity(ctx context.Context, addonID string) (int, error)
	MaxAddonQuantityPerTicketByUser(ctx context.Context, addonID, ticketTemplateID, userID string) (int, error)
	CreateUserTickets(ctx context.Context, tickets []entity.UserTicket) error
	CreateUserTicketAddons(ctx context.Context, addons []entity.UserTicketAddon) error
	CreateTransfer(ctx context.Context, transfer entity.UserTicketTransfer) error
}

type PurchaseOrdersRepository interface {
	CreatePurchaseOrder(ctx context.Context, po entity.PurchaseOrder) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event entity.PublicEvent) error
}

type PaymentLinkGenerator interface {
	GeneratePaymentLink(ctx context.Context, actor entity.Actor, purchaseOrderID, currencyID string) (entity.PurchaseOrder, error)
}

// ClaimError is an expected business failure of a claim.
type ClaimError struct {
	Kind         entity.ErrorKind
	ErrorMessage string
}

// Result holds either the created purchase order or a ClaimError.
type Result struct {
	PurchaseOrder entity.PurchaseOrder
	TicketIDs     []string
	Error         *ClaimError
}

func (r Result) Failed() bool {
	return r.Error != nil
}

type Orchestrator struct {
	txManager    TxManager
	catalog      Catalog
	tickets      TicketsRepository
	orders       PurchaseOrdersRepository
	recipients   *RecipientResolver
	publisher    EventPublisher
	paymentLinks PaymentLinkGenerator
	clock        clock.Clock
	transferTTL  time.Duration
}

func NewOrchestrator(
	txManager TxManager,
	catalog Catalog,
	tickets TicketsRepository,
	orders PurchaseOrdersRepository,
	recipients *RecipientResolver,
	publisher EventPublisher,
	paymentLinks PaymentLinkGenerator,
	clk clock.Clock,
	transferTTL time.Duration,
) *Orchestrator {
	if txManager == nil {
		panic("missing txManager")
	}
	if catalog == nil {
		panic("missing catalog")
	}
	if tickets == nil {
		panic("missing tickets")
	}
	if orders == nil {
		panic("missing orders")
	}
	if recipients == nil {
		panic("missing recipients")
	}
	if publisher == nil {
		panic("missing publisher")
	}
	if paymentLinks == nil {
		panic("missing paymentLinks")
	}
	if clk == nil {
		panic("missing clock")
	}

	return &Orchestrator{
		txManager:    txManager,
		catalog:      catalog,
		tickets:      tickets,
		orders:       orders,
		recipients:   recipients,
		publisher:    publisher,
		paymentLinks: paymentLinks,
		clock:        clk,
		transferTTL:  transferTTL,
	}
}

// claimState is what one claim attempt accumulates while moving through its stages.
type claimState struct {
	actor      entity.Actor
	request    Request
	normalized Normalized

	event     entity.Event
	templates map[string]entity.TicketTemplate
	addons    map[string]entity.Addon

	purchaseOrder entity.PurchaseOrder
	userTickets   []entity.UserTicket
	ticketAddons  []entity.UserTicketAddon
	transfers     []pendingTransfer
}

type pendingTransfer struct {
	transfer  entity.UserTicketTransfer
	recipient entity.User
}

// Claim allocates the requested tickets and add-ons in one transaction.
// Expected business failures are reported in Result.Error; the returned error is
// reserved for unexpected failures.
func (o *Orchestrator) Claim(ctx context.Context, actor entity.Actor, req Request) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.ClaimDuration.Observe(time.Since(start).Seconds())
	}()

	logger := log.FromContext(ctx).WithField("user_id", actor.User.ID)

	state := &claimState{actor: actor, request: req}

	err := o.claim(ctx, state)
	if err != nil {
		if entity.IsExpected(err) {
			metrics.ClaimsTotal.With(prometheus.Labels{"result": string(entity.KindOf(err))}).Inc()
			logger.WithField("kind", entity.KindOf(err)).Infof("Claim rejected: %s", entity.MessageOf(err))

			return Result{Error: &ClaimError{
				Kind:         entity.KindOf(err),
				ErrorMessage: entity.MessageOf(err),
			}}, nil
		}

		metrics.ClaimsTotal.With(prometheus.Labels{"result": string(entity.KindOf(err))}).Inc()
		logger.WithError(err).Error("Claim failed")

		return Result{}, err
	}

	metrics.ClaimsTotal.With(prometheus.Labels{"result": "ok"}).Inc()
	logger.WithFields(logrus.Fields{
		"purchase_order_id": state.purchaseOrder.ID,
		"tickets":           len(state.userTickets),
	}).Info("Tickets claimed")

	return Result{
		PurchaseOrder: state.purchaseOrder,
		TicketIDs:     lo.Map(state.userTickets, func(t entity.UserTicket, _ int) string { return t.ID }),
	}, nil
}

func (o *Orchestrator) claim(ctx context.Context, state *claimState) error {
	normalized, err := Normalize(state.request.Items)
	if err != nil {
		return err
	}
	state.normalized = normalized

	return o.txManager.InTx(ctx, func(ctx context.Context) error {
		if err := o.loadMetadata(ctx, state); err != nil {
			return err
		}
		if err := o.validateEventAndTickets(state); err != nil {
			return err
		}
		if err := o.validateAddons(state); err != nil {
			return err
		}
		if err := o.verifyCapacity(ctx, state, "pre"); err != nil {
			return err
		}
		if err := o.buildRows(ctx, state); err != nil {
			return err
		}
		if err := o.persist(ctx, state); err != nil {
			return err
		}
		if err := o.postVerify(ctx, state); err != nil {
			return err
		}
		if state.request.CurrencyID != nil {
			po, err := o.paymentLinks.GeneratePaymentLink(ctx, state.actor, state.purchaseOrder.ID, *state.request.CurrencyID)
			if err != nil {
				return err
			}
			state.purchaseOrder = po
		}

		return o.publishEvents(ctx, state)
	})
}

func (o *Orchestrator) loadMetadata(ctx context.Context, state *claimState) error {
	templateIDs := state.normalized.TicketTemplateIDs()

	templates, err := o.catalog.GetTicketTemplates(ctx, templateIDs)
	if err != nil {
		return fmt.Errorf("could not get ticket templates: %w", err)
	}
	state.templates = lo.KeyBy(templates, func(t entity.TicketTemplate) string { return t.ID })

	if missing := missingIDs(templateIDs, state.templates); len(missing) > 0 {
		return entity.NotFound("tickets %s not found", strings.Join(missing, ", "))
	}

	eventIDs := lo.Uniq(lo.Map(templates, func(t entity.TicketTemplate, _ int) string { return t.EventID }))
	if len(eventIDs) > 1 {
		return entity.InvalidArgument("all tickets of a claim must belong to the same event")
	}

	state.event, err = o.catalog.GetEvent(ctx, eventIDs[0])
	if err != nil {
		return fmt.Errorf("could not get event: %w", err)
	}

	addonIDs := state.normalized.AddonIDs()
	if len(addonIDs) == 0 {
		state.addons = map[string]entity.Addon{}
		return nil
	}

	addons, err := o.catalog.GetAddons(ctx, addonIDs)
	if err != nil {
		return fmt.Errorf("could not get addons: %w", err)
	}
	state.addons = lo.KeyBy(addons, func(a entity.Addon) string { return a.ID })

	if missing := missingIDs(addonIDs, state.addons); len(missing) > 0 {
		return entity.NotFound("addons %s not found", strings.Join(missing, ", "))
	}

	return nil
}

func (o *Orchestrator) validateEventAndTickets(state *claimState) error {
	if !state.event.IsActive && !state.actor.IsSuperAdmin() {
		return entity.FailedPrecondition("event %s is not active", state.event.ID)
	}
	if state.event.HasStarted(o.clock.Now()) {
		return entity.FailedPrecondition("event %s has already started", state.event.ID)
	}

	requester := NormalizeEmail(state.actor.User.Email)
	for _, transfer := range state.normalized.Transfers() {
		if transfer.Email == requester {
			return entity.InvalidArgument("cannot transfer a ticket to yourself")
		}
	}

	for _, id := range state.normalized.TicketTemplateIDs() {
		if state.templates[id].IsWaitlist() {
			return entity.FailedPrecondition("ticket %s is a waitlist ticket and cannot be claimed", id)
		}
	}

	return nil
}

func (o *Orchestrator) validateAddons(state *claimState) error {
	for _, addon := range state.addons {
		if addon.EventID != state.event.ID {
			return entity.InvalidArgument("addon %s does not belong to event %s", addon.ID, state.event.ID)
		}
		if err := addon.ValidatePricing(); err != nil {
			return err
		}
		if !addon.IsFree && state.request.CurrencyID == nil {
			return entity.InvalidArgument("addon %s is not free, a currency is required", addon.ID)
		}
	}

	for _, c := range state.normalized.Claims() {
		for _, details := range c.ItemDetails {
			if err := o.validateSeatAddons(c.TicketTemplateID, details.Addons, state.addons); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateSeatAddons enforces the directly declared constraints of the add-ons requested
// for a single seat.
func (o *Orchestrator) validateSeatAddons(ticketTemplateID string, requests []AddonRequest, addons map[string]entity.Addon) error {
	requested := lo.SliceToMap(requests, func(r AddonRequest) (string, struct{}) {
		return r.AddonID, struct{}{}
	})

	for _, r := range requests {
		addon := addons[r.AddonID]
		if !addon.IsAvailableFor(ticketTemplateID) {
			return entity.InvalidArgument("addon %s is not available for ticket %s", addon.ID, ticketTemplateID)
		}

		for _, c := range addon.Constraints {
			_, present := requested[c.RelatedAddonID]

			switch c.ConstraintType {
			case entity.ConstraintTypeDependency:
				if !present {
					return entity.FailedPrecondition("addon %s requires addon %s", addon.ID, c.RelatedAddonID)
				}
			case entity.ConstraintTypeMutualExclusion:
				if present {
					return entity.FailedPrecondition(
						"addons %s and %s are mutually exclusive",
						addon.ID,
						c.RelatedAddonID,
					)
				}
			}
		}
	}

	return nil
}

func (o *Orchestrator) verifyCapacity(ctx context.Context, state *claimState, stage string) error {
	check, err := o.capacityCheck(ctx, state, stage == "pre")
	if err != nil {
		return err
	}

	if err := VerifyCapacity(check); err != nil {
		metrics.CapacityRejections.With(prometheus.Labels{"stage": stage}).Inc()
		return err
	}

	return nil
}

// capacityCheck reads current usage. Before persisting, the claim's own demand is added
// as Requested; afterwards the counts already include it.
func (o *Orchestrator) capacityCheck(ctx context.Context, state *claimState, includeRequested bool) (CapacityCheck, error) {
	var check CapacityCheck
	userID := state.actor.User.ID

	for _, c := range state.normalized.Claims() {
		reserved, err := o.tickets.CountReservedTickets(ctx, c.TicketTemplateID)
		if err != nil {
			return CapacityCheck{}, fmt.Errorf("could not count reserved tickets: %w", err)
		}
		reservedByUser, err := o.tickets.CountReservedTicketsByUser(ctx, c.TicketTemplateID, userID)
		if err != nil {
			return CapacityCheck{}, fmt.Errorf("could not count reserved tickets of user: %w", err)
		}

		usage := TicketUsage{
			Template:       state.templates[c.TicketTemplateID],
			Reserved:       reserved,
			ReservedByUser: reservedByUser,
		}
		if includeRequested {
			usage.Requested = c.Quantity
		}
		check.Tickets = append(check.Tickets, usage)
	}

	requestedAddons := map[string]int{}
	requestedPerSeat := map[[2]string]int{}
	for _, c := range state.normalized.Claims() {
		for _, d := range c.ItemDetails {
			for _, a := range d.Addons {
				requestedAddons[a.AddonID] += a.Quantity
				key := [2]string{a.AddonID, c.TicketTemplateID}
				requestedPerSeat[key] = max(requestedPerSeat[key], a.Quantity)
			}
		}
	}

	for _, addonID := range state.normalized.AddonIDs() {
		reserved, err := o.tickets.SumReservedAddonQuantity(ctx, addonID)
		if err != nil {
			return CapacityCheck{}, fmt.Errorf("could not sum reserved addons: %w", err)
		}

		usage := AddonUsage{Addon: state.addons[addonID], Reserved: reserved}
		if includeRequested {
			usage.Requested = requestedAddons[addonID]
		}
		check.Addons = append(check.Addons, usage)
	}

	keys := lo.Keys(requestedPerSeat)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, key := range keys {
		perSeat := requestedPerSeat[key]
		if !includeRequested {
			existing, err := o.tickets.MaxAddonQuantityPerTicketByUser(ctx, key[0], key[1], userID)
			if err != nil {
				return CapacityCheck{}, fmt.Errorf("could not get addon quantity per ticket: %w", err)
			}
			perSeat = existing
		}

		check.PerTicket = append(check.PerTicket, AddonPerTicketUsage{
			Addon:            state.addons[key[0]],
			TicketTemplateID: key[1],
			MaxPerSeat:       perSeat,
		})
	}

	return check, nil
}

func (o *Orchestrator) buildRows(ctx context.Context, state *claimState) error {
	now := o.clock.Now()
	state.purchaseOrder = entity.NewPurchaseOrder(uuid.NewString(), state.actor.User.ID, now)

	for _, c := range state.normalized.Claims() {
		template := state.templates[c.TicketTemplateID]

		for i := 0; i < c.Quantity; i++ {
			ticket := entity.UserTicket{
				ID:               uuid.NewString(),
				UserID:           state.actor.User.ID,
				TicketTemplateID: template.ID,
				PurchaseOrderID:  state.purchaseOrder.ID,
				ApprovalStatus:   template.InitialApprovalStatus(),
				RedemptionStatus: entity.RedemptionStatusPending,
				CreatedAt:        now,
			}

			if i < len(c.ItemDetails) {
				details := c.ItemDetails[i]

				if details.TransferInfo != nil {
					transfer, err := o.buildTransfer(ctx, state, &ticket, *details.TransferInfo, now)
					if err != nil {
						return err
					}
					state.transfers = append(state.transfers, transfer)
				}

				for _, a := range details.Addons {
					state.ticketAddons = append(state.ticketAddons, buildTicketAddon(ticket, state.addons[a.AddonID], a.Quantity, now))
				}
			}

			state.userTickets = append(state.userTickets, ticket)
		}
	}

	return nil
}

func (o *Orchestrator) buildTransfer(
	ctx context.Context,
	state *claimState,
	ticket *entity.UserTicket,
	info TransferInfo,
	now time.Time,
) (pendingTransfer, error) {
	recipient, err := o.recipients.Resolve(ctx, info)
	if err != nil {
		return pendingTransfer{}, fmt.Errorf("could not resolve transfer recipient: %w", err)
	}

	// an accessible seat becomes a gift until the recipient accepts it
	if ticket.ApprovalStatus == entity.ApprovalStatusApproved {
		ticket.ApprovalStatus = entity.ApprovalStatusGifted
	}

	return pendingTransfer{
		transfer: entity.UserTicketTransfer{
			ID:              uuid.NewString(),
			UserTicketID:    ticket.ID,
			SenderUserID:    state.actor.User.ID,
			RecipientUserID: recipient.ID,
			Status:          entity.TransferStatusPending,
			TransferMessage: info.Message,
			ExpirationDate:  now.Add(o.transferTTL),
			CreatedAt:       now,
		},
		recipient: recipient,
	}, nil
}

func buildTicketAddon(ticket entity.UserTicket, addon entity.Addon, quantity int, now time.Time) entity.UserTicketAddon {
	status := entity.AddonApprovalStatusPending
	if addon.IsFree && ticket.ApprovalStatus != entity.ApprovalStatusPending {
		status = entity.AddonApprovalStatusApproved
	}

	return entity.UserTicketAddon{
		ID:               uuid.NewString(),
		UserTicketID:     ticket.ID,
		AddonID:          addon.ID,
		PurchaseOrderID:  ticket.PurchaseOrderID,
		Quantity:         quantity,
		ApprovalStatus:   status,
		RedemptionStatus: entity.RedemptionStatusPending,
		// priced once a currency is chosen
		UnitPriceInCents: 0,
		CreatedAt:        now,
	}
}

func (o *Orchestrator) persist(ctx context.Context, state *claimState) error {
	if err := o.orders.CreatePurchaseOrder(ctx, state.purchaseOrder); err != nil {
		return fmt.Errorf("could not create purchase order: %w", err)
	}
	if err := o.tickets.CreateUserTickets(ctx, state.userTickets); err != nil {
		return fmt.Errorf("could not create user tickets: %w", err)
	}
	if len(state.ticketAddons) > 0 {
		if err := o.tickets.CreateUserTicketAddons(ctx, state.ticketAddons); err != nil {
			return fmt.Errorf("could not create user ticket addons: %w", err)
		}
	}
	for _, t := range state.transfers {
		if err := o.tickets.CreateTransfer(ctx, t.transfer); err != nil {
			return fmt.Errorf("could not create transfer: %w", err)
		}
	}

	return nil
}

// postVerify locks the capacity bearing rows, so the counts it reads include every
// concurrent claim that committed before it.
func (o *Orchestrator) postVerify(ctx context.Context, state *claimState) error {
	if err := o.catalog.LockTicketTemplates(ctx, state.normalized.TicketTemplateIDs()); err != nil {
		return fmt.Errorf("could not lock ticket templates: %w", err)
	}
	if addonIDs := state.normalized.AddonIDs(); len(addonIDs) > 0 {
		if err := o.catalog.LockAddons(ctx, addonIDs); err != nil {
			return fmt.Errorf("could not lock addons: %w", err)
		}
	}

	return o.verifyCapacity(ctx, state, "post")
}

func (o *Orchestrator) publishEvents(ctx context.Context, state *claimState) error {
	err := o.publisher.Publish(ctx, entity.TicketsClaimed_v1{
		Header:          entity.NewEventHeaderWithIdempotencyKey("claim-" + state.purchaseOrder.ID),
		PurchaseOrderID: state.purchaseOrder.ID,
		EventID:         state.event.ID,
		UserID:          state.actor.User.ID,
		UserEmail:       state.actor.User.Email,
		UserTicketIDs:   lo.Map(state.userTickets, func(t entity.UserTicket, _ int) string { return t.ID }),
	})
	if err != nil {
		return fmt.Errorf("could not publish tickets claimed event: %w", err)
	}

	for _, t := range state.transfers {
		if err := o.publisher.Publish(ctx, transferRequested(t.transfer, state.actor.User, t.recipient)); err != nil {
			return fmt.Errorf("could not publish transfer requested event: %w", err)
		}
	}

	return nil
}

func transferRequested(t entity.UserTicketTransfer, sender, recipient entity.User) entity.TicketTransferRequested_v1 {
	return entity.TicketTransferRequested_v1{
		Header:          entity.NewEventHeaderWithIdempotencyKey("transfer-" + t.ID),
		TransferID:      t.ID,
		UserTicketID:    t.UserTicketID,
		SenderUserID:    sender.ID,
		SenderEmail:     sender.Email,
		RecipientUserID: recipient.ID,
		RecipientEmail:  recipient.Email,
		RecipientName:   recipient.Name,
		Message:         lo.FromPtr(t.TransferMessage),
		ExpiresAt:       t.ExpirationDate,
	}
}

func missingIDs[T any](ids []string, found map[string]T) []string {
	return lo.Filter(ids, func(id string, _ int) bool {
		_, ok := found[id]
		return !ok
	})
}
