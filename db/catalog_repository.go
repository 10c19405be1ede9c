package db

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"ticketing/entity"
)

// CatalogRepository reads events, ticket templates, add-ons and their constraints.
type CatalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	if db == nil {
		panic("db is nil")
	}

	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetEvent(ctx context.Context, eventID string) (entity.Event, error) {
	var event entity.Event
	err := executorFor(ctx, r.db).GetContext(ctx, &event, `
		SELECT id, name, start_date_time, is_active
		FROM ticketing_events
		WHERE id = $1
	`, eventID)
	if err != nil {
		return entity.Event{}, notFoundOr(err, "event %s not found", eventID)
	}

	return event, nil
}

func (r *CatalogRepository) GetCurrency(ctx context.Context, id string) (entity.Currency, error) {
	var currency entity.Currency
	err := executorFor(ctx, r.db).GetContext(ctx, &currency, `SELECT id, code FROM currencies WHERE id = $1`, id)
	if err != nil {
		return entity.Currency{}, notFoundOr(err, "currency %s not found", id)
	}

	return currency, nil
}

func (r *CatalogRepository) GetTicketTemplates(ctx context.Context, ids []string) ([]entity.TicketTemplate, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	exec := executorFor(ctx, r.db)

	var templates []entity.TicketTemplate
	err := exec.SelectContext(ctx, &templates, `
		SELECT id, event_id, name, is_free, requires_approval, quantity, max_tickets_per_user, tags
		FROM ticket_templates
		WHERE id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("could not select ticket templates: %w", err)
	}

	type priceRow struct {
		entity.Price
		TicketTemplateID string `db:"ticket_template_id"`
	}
	var prices []priceRow
	err = exec.SelectContext(ctx, &prices, `
		SELECT p.ticket_template_id, p.currency_id, c.code AS currency_code, p.amount_cents
		FROM ticket_prices p
		JOIN currencies c ON c.id = p.currency_id
		WHERE p.ticket_template_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("could not select ticket prices: %w", err)
	}

	byTemplate := lo.GroupBy(prices, func(p priceRow) string { return p.TicketTemplateID })
	for i := range templates {
		templates[i].Prices = lo.Map(byTemplate[templates[i].ID], func(p priceRow, _ int) entity.Price { return p.Price })
	}

	return templates, nil
}

// GetAddons returns add-ons with their prices, ticket associations and outgoing constraints.
func (r *CatalogRepository) GetAddons(ctx context.Context, ids []string) ([]entity.Addon, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	exec := executorFor(ctx, r.db)

	var addons []entity.Addon
	err := exec.SelectContext(ctx, &addons, `
		SELECT id, event_id, name, is_free, is_unlimited, total_stock, max_per_ticket
		FROM addons
		WHERE id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("could not select addons: %w", err)
	}

	type priceRow struct {
		entity.Price
		AddonID string `db:"addon_id"`
	}
	var prices []priceRow
	err = exec.SelectContext(ctx, &prices, `
		SELECT p.addon_id, p.currency_id, c.code AS currency_code, p.amount_cents
		FROM addon_prices p
		JOIN currencies c ON c.id = p.currency_id
		WHERE p.addon_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("could not select addon prices: %w", err)
	}

	var tickets []entity.AddonTicket
	err = exec.SelectContext(ctx, &tickets, `
		SELECT addon_id, ticket_template_id, order_display
		FROM addon_tickets
		WHERE addon_id = ANY($1)
		ORDER BY order_display, ticket_template_id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("could not select addon tickets: %w", err)
	}

	var constraints []entity.AddonConstraint
	err = exec.SelectContext(ctx, &constraints, `
		SELECT id, addon_id, related_addon_id, constraint_type
		FROM addon_constraints
		WHERE addon_id = ANY($1)
		ORDER BY related_addon_id, constraint_type
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("could not select addon constraints: %w", err)
	}

	pricesByAddon := lo.GroupBy(prices, func(p priceRow) string { return p.AddonID })
	ticketsByAddon := lo.GroupBy(tickets, func(t entity.AddonTicket) string { return t.AddonID })
	constraintsByAddon := lo.GroupBy(constraints, func(c entity.AddonConstraint) string { return c.AddonID })

	for i := range addons {
		id := addons[i].ID
		addons[i].Prices = lo.Map(pricesByAddon[id], func(p priceRow, _ int) entity.Price { return p.Price })
		addons[i].Tickets = ticketsByAddon[id]
		addons[i].Constraints = constraintsByAddon[id]
	}

	return addons, nil
}

// FindCommonAddons returns the add-ons associated with every one of the given ticket templates.
func (r *CatalogRepository) FindCommonAddons(ctx context.Context, ticketTemplateIDs []string) ([]entity.Addon, error) {
	ticketTemplateIDs = lo.Uniq(ticketTemplateIDs)
	if len(ticketTemplateIDs) == 0 {
		return nil, nil
	}

	var ids []string
	err := executorFor(ctx, r.db).SelectContext(ctx, &ids, `
		SELECT addon_id
		FROM addon_tickets
		WHERE ticket_template_id = ANY($1)
		GROUP BY addon_id
		HAVING COUNT(DISTINCT ticket_template_id) = $2
	`, pq.Array(ticketTemplateIDs), len(ticketTemplateIDs))
	if err != nil {
		return nil, fmt.Errorf("could not select common addons: %w", err)
	}

	return r.GetAddons(ctx, ids)
}

// GetConstraintsAmong returns constraints whose both ends are in addonIDs.
func (r *CatalogRepository) GetConstraintsAmong(ctx context.Context, addonIDs []string) ([]entity.AddonConstraint, error) {
	var constraints []entity.AddonConstraint
	err := executorFor(ctx, r.db).SelectContext(ctx, &constraints, `
		SELECT id, addon_id, related_addon_id, constraint_type
		FROM addon_constraints
		WHERE addon_id = ANY($1) AND related_addon_id = ANY($1)
		ORDER BY addon_id, related_addon_id, constraint_type
	`, pq.Array(addonIDs))
	if err != nil {
		return nil, fmt.Errorf("could not select addon constraints: %w", err)
	}

	return constraints, nil
}

func (r *CatalogRepository) ReplaceAddonConstraints(
	ctx context.Context,
	addonID string,
	constraints []entity.AddonConstraint,
) error {
	exec := executorFor(ctx, r.db)

	_, err := exec.ExecContext(ctx, `DELETE FROM addon_constraints WHERE addon_id = $1`, addonID)
	if err != nil {
		return fmt.Errorf("could not delete addon constraints: %w", err)
	}

	if len(constraints) == 0 {
		return nil
	}

	_, err = exec.NamedExecContext(ctx, `
		INSERT INTO addon_constraints (id, addon_id, related_addon_id, constraint_type)
		VALUES (:id, :addon_id, :related_addon_id, :constraint_type)
	`, constraints)
	if err != nil {
		return fmt.Errorf("could not insert addon constraints: %w", err)
	}

	return nil
}

// LockTicketTemplates takes row locks on the templates in id order.
// FOR NO KEY UPDATE does not conflict with the key share locks taken by
// foreign keys of freshly inserted user tickets.
func (r *CatalogRepository) LockTicketTemplates(ctx context.Context, ids []string) error {
	return r.lockRows(ctx, "ticket_templates", ids)
}

func (r *CatalogRepository) LockAddons(ctx context.Context, ids []string) error {
	return r.lockRows(ctx, "addons", ids)
}

func (r *CatalogRepository) lockRows(ctx context.Context, table string, ids []string) error {
	if txFromContext(ctx) == nil {
		return fmt.Errorf("locking %s requires a transaction", table)
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var locked []string
	err := executorFor(ctx, r.db).SelectContext(
		ctx,
		&locked,
		`SELECT id FROM `+table+` WHERE id = ANY($1) ORDER BY id FOR NO KEY UPDATE`,
		pq.Array(sorted),
	)
	if err != nil {
		return fmt.Errorf("could not lock %s: %w", table, err)
	}

	return nil
}

func (r *CatalogRepository) CreateEvent(ctx context.Context, event entity.Event) error {
	_, err := executorFor(ctx, r.db).NamedExecContext(ctx, `
		INSERT INTO ticketing_events (id, name, start_date_time, is_active)
		VALUES (:id, :name, :start_date_time, :is_active)
	`, event)
	if err != nil {
		return fmt.Errorf("could not create event: %w", err)
	}
	return nil
}

func (r *CatalogRepository) CreateCurrency(ctx context.Context, currency entity.Currency) error {
	_, err := executorFor(ctx, r.db).NamedExecContext(ctx, `
		INSERT INTO currencies (id, code) VALUES (:id, :code)
	`, currency)
	if err != nil {
		return fmt.Errorf("could not create currency: %w", err)
	}
	return nil
}

func (r *CatalogRepository) CreateTicketTemplate(ctx context.Context, template entity.TicketTemplate) error {
	exec := executorFor(ctx, r.db)

	if template.Tags == nil {
		template.Tags = pq.StringArray{}
	}

	_, err := exec.NamedExecContext(ctx, `
		INSERT INTO ticket_templates
			(id, event_id, name, is_free, requires_approval, quantity, max_tickets_per_user, tags)
		VALUES
			(:id, :event_id, :name, :is_free, :requires_approval, :quantity, :max_tickets_per_user, :tags)
	`, template)
	if err != nil {
		return fmt.Errorf("could not create ticket template: %w", err)
	}

	for _, p := range template.Prices {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO ticket_prices (ticket_template_id, currency_id, amount_cents) VALUES ($1, $2, $3)
		`, template.ID, p.CurrencyID, p.AmountCents)
		if err != nil {
			return fmt.Errorf("could not create ticket price: %w", err)
		}
	}

	return nil
}

// CreateAddon stores an add-on with its prices and ticket associations.
func (r *CatalogRepository) CreateAddon(ctx context.Context, addon entity.Addon) error {
	if err := addon.ValidatePricing(); err != nil {
		return err
	}

	exec := executorFor(ctx, r.db)

	_, err := exec.NamedExecContext(ctx, `
		INSERT INTO addons (id, event_id, name, is_free, is_unlimited, total_stock, max_per_ticket)
		VALUES (:id, :event_id, :name, :is_free, :is_unlimited, :total_stock, :max_per_ticket)
	`, addon)
	if err != nil {
		return fmt.Errorf("could not create addon: %w", err)
	}

	for _, p := range addon.Prices {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO addon_prices (addon_id, currency_id, amount_cents) VALUES ($1, $2, $3)
		`, addon.ID, p.CurrencyID, p.AmountCents)
		if err != nil {
			return fmt.Errorf("could not create addon price: %w", err)
		}
	}

	for _, t := range addon.Tickets {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO addon_tickets (addon_id, ticket_template_id, order_display) VALUES ($1, $2, $3)
		`, addon.ID, t.TicketTemplateID, t.OrderDisplay)
		if err != nil {
			return fmt.Errorf("could not create addon ticket: %w", err)
		}
	}

	return nil
}
