package mocks

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"ticketing/entity"
)

type inTxKey struct{}

type storeData struct {
	users        map[string]entity.User
	currencies   map[string]entity.Currency
	events       map[string]entity.Event
	templates    map[string]entity.TicketTemplate
	addons       map[string]entity.Addon
	constraints  []entity.AddonConstraint
	orders       map[string]entity.PurchaseOrder
	tickets      []entity.UserTicket
	ticketAddons []entity.UserTicketAddon
	transfers    []entity.UserTicketTransfer
	published    []entity.PublicEvent
}

func (d storeData) clone() storeData {
	return storeData{
		users:        maps.Clone(d.users),
		currencies:   maps.Clone(d.currencies),
		events:       maps.Clone(d.events),
		templates:    maps.Clone(d.templates),
		addons:       maps.Clone(d.addons),
		constraints:  slices.Clone(d.constraints),
		orders:       maps.Clone(d.orders),
		tickets:      slices.Clone(d.tickets),
		ticketAddons: slices.Clone(d.ticketAddons),
		transfers:    slices.Clone(d.transfers),
		published:    slices.Clone(d.published),
	}
}

// Store is an in-memory implementation of the repositories, transaction manager and
// event publisher. Transactions are serialized and a failed one restores the state
// it started from, published events included.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data storeData

	// Failures makes the named method return the error.
	Failures map[string]error

	Commits   int
	Rollbacks int
}

func NewStore() *Store {
	return &Store{
		data: storeData{
			users:      map[string]entity.User{},
			currencies: map[string]entity.Currency{},
			events:     map[string]entity.Event{},
			templates:  map[string]entity.TicketTemplate{},
			addons:     map[string]entity.Addon{},
			orders:     map[string]entity.PurchaseOrder{},
		},
		Failures: map[string]error{},
	}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.Rollbacks++
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.Commits++
	s.mu.Unlock()

	return nil
}

func (s *Store) fail(method string) error {
	return s.Failures[method]
}

func (s *Store) requireTx(ctx context.Context, what string) error {
	if ctx.Value(inTxKey{}) == nil {
		return fmt.Errorf("%s requires a transaction", what)
	}
	return nil
}

// seeding

func (s *Store) AddUser(u entity.User) entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	s.data.users[u.ID] = u
	return u
}

func (s *Store) AddCurrency(c entity.Currency) entity.Currency {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.currencies[c.ID] = c
	return c
}

func (s *Store) AddEvent(e entity.Event) entity.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.events[e.ID] = e
	return e
}

func (s *Store) AddTicketTemplate(t entity.TicketTemplate) entity.TicketTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Prices = s.withCurrencyCodes(t.Prices)
	s.data.templates[t.ID] = t
	return t
}

func (s *Store) AddAddon(a entity.Addon) entity.Addon {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Prices = s.withCurrencyCodes(a.Prices)
	for i := range a.Tickets {
		a.Tickets[i].AddonID = a.ID
	}
	a.Constraints = nil
	s.data.addons[a.ID] = a
	return a
}

func (s *Store) AddConstraint(c entity.AddonConstraint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = fmt.Sprintf("constraint-%d", len(s.data.constraints)+1)
	}
	s.data.constraints = append(s.data.constraints, c)
}

func (s *Store) AddPurchaseOrder(po entity.PurchaseOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.orders[po.ID] = po
}

func (s *Store) AddUserTicket(t entity.UserTicket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.tickets = append(s.data.tickets, t)
}

func (s *Store) AddUserTicketAddon(a entity.UserTicketAddon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ticketAddons = append(s.data.ticketAddons, a)
}

func (s *Store) withCurrencyCodes(prices []entity.Price) []entity.Price {
	return lo.Map(prices, func(p entity.Price, _ int) entity.Price {
		if p.CurrencyCode == "" {
			p.CurrencyCode = s.data.currencies[p.CurrencyID].Code
		}
		return p
	})
}

// inspection

func (s *Store) PurchaseOrder(id string) (entity.PurchaseOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.data.orders[id]
	return po, ok
}

func (s *Store) PurchaseOrders() []entity.PurchaseOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Values(s.data.orders)
}

func (s *Store) UserTickets() []entity.UserTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.tickets)
}

func (s *Store) UserTicketAddons() []entity.UserTicketAddon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.ticketAddons)
}

func (s *Store) Transfers() []entity.UserTicketTransfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.transfers)
}

func (s *Store) Constraints() []entity.AddonConstraint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.constraints)
}

func (s *Store) PublishedEvents() []entity.PublicEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.published)
}

// event publisher

func (s *Store) Publish(ctx context.Context, event entity.PublicEvent) error {
	if err := s.fail("Publish"); err != nil {
		return err
	}
	if err := s.requireTx(ctx, "publishing"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.published = append(s.data.published, event)
	return nil
}

// users

func (s *Store) GetUser(_ context.Context, id string) (entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	if !ok {
		return entity.User{}, entity.NotFound("user %s not found", id)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userByEmail(email)
}

func (s *Store) userByEmail(email string) (entity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.data.users {
		if u.Email == email {
			return u, nil
		}
	}
	return entity.User{}, entity.NotFound("user with email %s not found", email)
}

func (s *Store) CreateUserIfNotExists(_ context.Context, user entity.User) (entity.User, error) {
	if err := s.fail("CreateUserIfNotExists"); err != nil {
		return entity.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, err := s.userByEmail(user.Email); err == nil {
		return existing, nil
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	s.data.users[user.ID] = user
	return user, nil
}

// catalog

func (s *Store) GetEvent(_ context.Context, eventID string) (entity.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data.events[eventID]
	if !ok {
		return entity.Event{}, entity.NotFound("event %s not found", eventID)
	}
	return e, nil
}

func (s *Store) GetCurrency(_ context.Context, id string) (entity.Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.currencies[id]
	if !ok {
		return entity.Currency{}, entity.NotFound("currency %s not found", id)
	}
	return c, nil
}

func (s *Store) GetTicketTemplates(_ context.Context, ids []string) ([]entity.TicketTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var templates []entity.TicketTemplate
	for _, id := range lo.Uniq(ids) {
		if t, ok := s.data.templates[id]; ok {
			templates = append(templates, t)
		}
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

func (s *Store) GetAddons(_ context.Context, ids []string) ([]entity.Addon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addonsByIDs(ids), nil
}

func (s *Store) addonsByIDs(ids []string) []entity.Addon {
	var addons []entity.Addon
	for _, id := range lo.Uniq(ids) {
		a, ok := s.data.addons[id]
		if !ok {
			continue
		}
		a.Constraints = lo.Filter(s.data.constraints, func(c entity.AddonConstraint, _ int) bool {
			return c.AddonID == id
		})
		addons = append(addons, a)
	}
	sort.Slice(addons, func(i, j int) bool { return addons[i].ID < addons[j].ID })
	return addons
}

func (s *Store) FindCommonAddons(_ context.Context, ticketTemplateIDs []string) ([]entity.Addon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticketTemplateIDs = lo.Uniq(ticketTemplateIDs)
	if len(ticketTemplateIDs) == 0 {
		return nil, nil
	}

	var ids []string
	for id, a := range s.data.addons {
		if lo.Every(a.TicketTemplateIDs(), ticketTemplateIDs) {
			ids = append(ids, id)
		}
	}
	return s.addonsByIDs(ids), nil
}

func (s *Store) GetConstraintsAmong(_ context.Context, addonIDs []string) ([]entity.AddonConstraint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.data.constraints, func(c entity.AddonConstraint, _ int) bool {
		return lo.Contains(addonIDs, c.AddonID) && lo.Contains(addonIDs, c.RelatedAddonID)
	}), nil
}

func (s *Store) ReplaceAddonConstraints(_ context.Context, addonID string, constraints []entity.AddonConstraint) error {
	if err := s.fail("ReplaceAddonConstraints"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.constraints = append(
		lo.Filter(s.data.constraints, func(c entity.AddonConstraint, _ int) bool { return c.AddonID != addonID }),
		constraints...,
	)
	return nil
}

func (s *Store) LockTicketTemplates(ctx context.Context, _ []string) error {
	return s.requireTx(ctx, "locking ticket templates")
}

func (s *Store) LockAddons(ctx context.Context, _ []string) error {
	return s.requireTx(ctx, "locking addons")
}

// user tickets

func (s *Store) isLiveTicket(id string) bool {
	t, ok := lo.Find(s.data.tickets, func(t entity.UserTicket) bool { return t.ID == id })
	return ok && t.DeletedAt == nil
}

func (s *Store) CountReservedTickets(_ context.Context, ticketTemplateID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.CountBy(s.data.tickets, func(t entity.UserTicket) bool {
		return t.TicketTemplateID == ticketTemplateID && t.ApprovalStatus.IsReserved() && t.DeletedAt == nil
	}), nil
}

func (s *Store) CountReservedTicketsByUser(_ context.Context, ticketTemplateID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.CountBy(s.data.tickets, func(t entity.UserTicket) bool {
		return t.TicketTemplateID == ticketTemplateID && t.UserID == userID && t.ApprovalStatus.IsReserved() && t.DeletedAt == nil
	}), nil
}

func (s *Store) SumReservedAddonQuantity(_ context.Context, addonID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for _, a := range s.data.ticketAddons {
		if a.AddonID == addonID && lo.Contains(entity.ReservedAddonStatuses, a.ApprovalStatus) && s.isLiveTicket(a.UserTicketID) {
			sum += a.Quantity
		}
	}
	return sum, nil
}

func (s *Store) MaxAddonQuantityPerTicketByUser(_ context.Context, addonID, ticketTemplateID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	perTicket := map[string]int{}
	for _, a := range s.data.ticketAddons {
		if a.AddonID != addonID || !lo.Contains(entity.ReservedAddonStatuses, a.ApprovalStatus) {
			continue
		}
		t, ok := lo.Find(s.data.tickets, func(t entity.UserTicket) bool { return t.ID == a.UserTicketID })
		if !ok || t.DeletedAt != nil || t.TicketTemplateID != ticketTemplateID || t.UserID != userID {
			continue
		}
		perTicket[t.ID] += a.Quantity
	}

	maxQuantity := 0
	for _, q := range perTicket {
		maxQuantity = max(maxQuantity, q)
	}
	return maxQuantity, nil
}

func (s *Store) CreateUserTickets(_ context.Context, tickets []entity.UserTicket) error {
	if err := s.fail("CreateUserTickets"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.tickets = append(s.data.tickets, tickets...)
	return nil
}

func (s *Store) CreateUserTicketAddons(_ context.Context, addons []entity.UserTicketAddon) error {
	if err := s.fail("CreateUserTicketAddons"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ticketAddons = append(s.data.ticketAddons, addons...)
	return nil
}

func (s *Store) CreateTransfer(_ context.Context, transfer entity.UserTicketTransfer) error {
	if err := s.fail("CreateTransfer"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.transfers = append(s.data.transfers, transfer)
	return nil
}

func (s *Store) CancelPendingTransfers(_ context.Context, userTicketID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled := 0
	for i, t := range s.data.transfers {
		if t.UserTicketID == userTicketID && t.Status == entity.TransferStatusPending {
			s.data.transfers[i].Status = entity.TransferStatusCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *Store) GetUserTicketForUpdate(ctx context.Context, id string) (entity.UserTicket, error) {
	if err := s.requireTx(ctx, "locking a user ticket"); err != nil {
		return entity.UserTicket{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := lo.Find(s.data.tickets, func(t entity.UserTicket) bool { return t.ID == id })
	if !ok {
		return entity.UserTicket{}, entity.NotFound("ticket %s not found", id)
	}
	return t, nil
}

func (s *Store) UpdateUserTicketApprovalStatus(_ context.Context, id string, status entity.ApprovalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.tickets {
		if s.data.tickets[i].ID == id {
			s.data.tickets[i].ApprovalStatus = status
		}
	}
	return nil
}

func (s *Store) ListUserTicketsByPurchaseOrder(_ context.Context, purchaseOrderID string) ([]entity.UserTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.data.tickets, func(t entity.UserTicket, _ int) bool {
		return t.PurchaseOrderID == purchaseOrderID
	}), nil
}

func (s *Store) ListUserTicketAddons(_ context.Context, userTicketID string) ([]entity.UserTicketAddon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.data.ticketAddons, func(a entity.UserTicketAddon, _ int) bool {
		return a.UserTicketID == userTicketID
	}), nil
}

func (s *Store) ListUserTicketAddonsByPurchaseOrder(_ context.Context, purchaseOrderID string) ([]entity.UserTicketAddon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.data.ticketAddons, func(a entity.UserTicketAddon, _ int) bool {
		return a.PurchaseOrderID == purchaseOrderID
	}), nil
}

func (s *Store) CancelUserTicketAddons(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.ticketAddons {
		if lo.Contains(ids, s.data.ticketAddons[i].ID) {
			s.data.ticketAddons[i].ApprovalStatus = entity.AddonApprovalStatusCancelled
		}
	}
	return nil
}

func (s *Store) SetAddonUnitPrices(_ context.Context, unitPrices map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.ticketAddons {
		if cents, ok := unitPrices[s.data.ticketAddons[i].ID]; ok {
			s.data.ticketAddons[i].UnitPriceInCents = cents
		}
	}
	return nil
}

func (s *Store) ApprovePendingByPurchaseOrder(_ context.Context, purchaseOrderID string) error {
	if err := s.fail("ApprovePendingByPurchaseOrder"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.data.tickets {
		if t.PurchaseOrderID != purchaseOrderID || t.ApprovalStatus != entity.ApprovalStatusPending || t.DeletedAt != nil {
			continue
		}
		if s.data.templates[t.TicketTemplateID].RequiresApproval {
			continue
		}
		status := entity.ApprovalStatusApproved
		if lo.ContainsBy(s.data.transfers, func(tr entity.UserTicketTransfer) bool {
			return tr.UserTicketID == t.ID && tr.Status == entity.TransferStatusPending
		}) {
			status = entity.ApprovalStatusGifted
		}
		s.data.tickets[i].ApprovalStatus = status
	}
	for i, a := range s.data.ticketAddons {
		if a.PurchaseOrderID != purchaseOrderID || a.ApprovalStatus != entity.AddonApprovalStatusPending {
			continue
		}
		ticket, ok := lo.Find(s.data.tickets, func(t entity.UserTicket) bool { return t.ID == a.UserTicketID })
		if !ok || ticket.DeletedAt != nil || !lo.Contains(entity.AccessibleStatuses, ticket.ApprovalStatus) {
			continue
		}
		s.data.ticketAddons[i].ApprovalStatus = entity.AddonApprovalStatusApproved
	}
	return nil
}

func (s *Store) CancelByPurchaseOrder(_ context.Context, purchaseOrderID string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for i, t := range s.data.tickets {
		if t.PurchaseOrderID != purchaseOrderID || t.DeletedAt != nil {
			continue
		}
		s.data.tickets[i].ApprovalStatus = entity.ApprovalStatusCancelled
		s.data.tickets[i].DeletedAt = lo.ToPtr(at)
		ids = append(ids, t.ID)
	}
	for i, a := range s.data.ticketAddons {
		if a.PurchaseOrderID == purchaseOrderID {
			s.data.ticketAddons[i].ApprovalStatus = entity.AddonApprovalStatusCancelled
		}
	}
	return ids, nil
}

// purchase orders

func (s *Store) CreatePurchaseOrder(_ context.Context, po entity.PurchaseOrder) error {
	if err := s.fail("CreatePurchaseOrder"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.orders[po.ID] = po
	return nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (entity.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.data.orders[id]
	if !ok {
		return entity.PurchaseOrder{}, entity.NotFound("purchase order %s not found", id)
	}
	return po, nil
}

func (s *Store) GetPurchaseOrderForUpdate(ctx context.Context, id string) (entity.PurchaseOrder, error) {
	if err := s.requireTx(ctx, "locking a purchase order"); err != nil {
		return entity.PurchaseOrder{}, err
	}
	return s.GetPurchaseOrder(ctx, id)
}

func (s *Store) UpdatePurchaseOrder(_ context.Context, po entity.PurchaseOrder) error {
	if err := s.fail("UpdatePurchaseOrder"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.orders[po.ID]; !ok {
		return entity.NotFound("purchase order %s not found", po.ID)
	}
	s.data.orders[po.ID] = po
	return nil
}

func (s *Store) ListUnpaidPurchaseOrders(_ context.Context) ([]entity.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := lo.Filter(lo.Values(s.data.orders), func(po entity.PurchaseOrder, _ int) bool {
		return po.Status == entity.PurchaseOrderStatusOpen && po.PaymentStatus == entity.PaymentStatusUnpaid
	})
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
	return orders, nil
}
