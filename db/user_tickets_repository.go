package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"ticketing/entity"
)

type UserTicketsRepository struct {
	db *sqlx.DB
}

func NewUserTicketsRepository(db *sqlx.DB) *UserTicketsRepository {
	if db == nil {
		panic("db is nil")
	}

	return &UserTicketsRepository{db: db}
}

func reservedStatuses() interface{} {
	return pq.Array(lo.Map(entity.ReservedStatuses, func(s entity.ApprovalStatus, _ int) string { return string(s) }))
}

func accessibleStatuses() interface{} {
	return pq.Array(lo.Map(entity.AccessibleStatuses, func(s entity.ApprovalStatus, _ int) string { return string(s) }))
}

func reservedAddonStatuses() interface{} {
	return pq.Array(lo.Map(entity.ReservedAddonStatuses, func(s entity.AddonApprovalStatus, _ int) string { return string(s) }))
}

func (r *UserTicketsRepository) CountReservedTickets(ctx context.Context, ticketTemplateID string) (int, error) {
	var count int
	err := executorFor(ctx, r.db).GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM user_tickets
		WHERE ticket_template_id = $1
			AND approval_status = ANY($2)
			AND deleted_at IS NULL
	`, ticketTemplateID, reservedStatuses())
	if err != nil {
		return 0, fmt.Errorf("could not count reserved tickets: %w", err)
	}

	return count, nil
}

func (r *UserTicketsRepository) CountReservedTicketsByUser(ctx context.Context, ticketTemplateID, userID string) (int, error) {
	var count int
	err := executorFor(ctx, r.db).GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM user_tickets
		WHERE ticket_template_id = $1
			AND user_id = $2
			AND approval_status = ANY($3)
			AND deleted_at IS NULL
	`, ticketTemplateID, userID, reservedStatuses())
	if err != nil {
		return 0, fmt.Errorf("could not count reserved tickets of user: %w", err)
	}

	return count, nil
}

func (r *UserTicketsRepository) SumReservedAddonQuantity(ctx context.Context, addonID string) (int, error) {
	var sum int
	err := executorFor(ctx, r.db).GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(a.quantity), 0)
		FROM user_ticket_addons a
		JOIN user_tickets t ON t.id = a.user_ticket_id
		WHERE a.addon_id = $1
			AND a.approval_status = ANY($2)
			AND t.deleted_at IS NULL
	`, addonID, reservedAddonStatuses())
	if err != nil {
		return 0, fmt.Errorf("could not sum reserved addons: %w", err)
	}

	return sum, nil
}

// MaxAddonQuantityPerTicketByUser returns the largest reserved quantity of the add-on on a
// single ticket of the user for the ticket template.
func (r *UserTicketsRepository) MaxAddonQuantityPerTicketByUser(
	ctx context.Context,
	addonID string,
	ticketTemplateID string,
	userID string,
) (int, error) {
	var quantity int
	err := executorFor(ctx, r.db).GetContext(ctx, &quantity, `
		SELECT COALESCE(MAX(per_ticket.quantity), 0)
		FROM (
			SELECT SUM(a.quantity) AS quantity
			FROM user_ticket_addons a
			JOIN user_tickets t ON t.id = a.user_ticket_id
			WHERE a.addon_id = $1
				AND t.ticket_template_id = $2
				AND t.user_id = $3
				AND a.approval_status = ANY($4)
				AND t.deleted_at IS NULL
			GROUP BY a.user_ticket_id
		) per_ticket
	`, addonID, ticketTemplateID, userID, reservedAddonStatuses())
	if err != nil {
		return 0, fmt.Errorf("could not get addon quantity per ticket: %w", err)
	}

	return quantity, nil
}

func (r *UserTicketsRepository) CreateUserTickets(ctx context.Context, tickets []entity.UserTicket) error {
	if len(tickets) == 0 {
		return nil
	}

	_, err := executorFor(ctx, r.db).NamedExecContext(ctx, `
		INSERT INTO user_tickets
			(id, user_id, ticket_template_id, purchase_order_id, approval_status, redemption_status, created_at)
		VALUES
			(:id, :user_id, :ticket_template_id, :purchase_order_id, :approval_status, :redemption_status, :created_at)
	`, tickets)
	if err != nil {
		return fmt.Errorf("could not insert user tickets: %w", err)
	}

	return nil
}

func (r *UserTicketsRepository) CreateUserTicketAddons(ctx context.Context, addons []entity.UserTicketAddon) error {
	if len(addons) == 0 {
		return nil
	}

	_, err := executorFor(ctx, r.db).NamedExecContext(ctx, `
		INSERT INTO user_ticket_addons
			(id, user_ticket_id, addon_id, purchase_order_id, quantity, approval_status,
			 redemption_status, unit_price_in_cents, created_at)
		VALUES
			(:id, :user_ticket_id, :addon_id, :purchase_order_id, :quantity, :approval_status,
			 :redemption_status, :unit_price_in_cents, :created_at)
	`, addons)
	if err != nil {
		return fmt.Errorf("could not insert user ticket addons: %w", err)
	}

	return nil
}

func (r *UserTicketsRepository) CreateTransfer(ctx context.Context, transfer entity.UserTicketTransfer) error {
	_, err := executorFor(ctx, r.db).NamedExecContext(ctx, `
		INSERT INTO user_ticket_transfers
			(id, user_ticket_id, sender_user_id, recipient_user_id, status, transfer_message,
			 expiration_date, is_return, created_at)
		VALUES
			(:id, :user_ticket_id, :sender_user_id, :recipient_user_id, :status, :transfer_message,
			 :expiration_date, :is_return, :created_at)
	`, transfer)
	if err != nil {
		return fmt.Errorf("could not insert transfer: %w", err)
	}

	return nil
}

// CancelPendingTransfers cancels the pending transfers of a ticket and returns how many there were.
func (r *UserTicketsRepository) CancelPendingTransfers(ctx context.Context, userTicketID string) (int, error) {
	res, err := executorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE user_ticket_transfers
		SET status = $1
		WHERE user_ticket_id = $2 AND status = $3
	`, entity.TransferStatusCancelled, userTicketID, entity.TransferStatusPending)
	if err != nil {
		return 0, fmt.Errorf("could not cancel pending transfers: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(affected), nil
}

func (r *UserTicketsRepository) ListTransfers(ctx context.Context, userTicketID string) ([]entity.UserTicketTransfer, error) {
	var transfers []entity.UserTicketTransfer
	err := executorFor(ctx, r.db).SelectContext(ctx, &transfers, `
		SELECT id, user_ticket_id, sender_user_id, recipient_user_id, status, transfer_message,
			expiration_date, is_return, created_at
		FROM user_ticket_transfers
		WHERE user_ticket_id = $1
		ORDER BY created_at, id
	`, userTicketID)
	if err != nil {
		return nil, fmt.Errorf("could not select transfers: %w", err)
	}

	return transfers, nil
}

const userTicketColumns = `id, user_id, ticket_template_id, purchase_order_id, approval_status,
	redemption_status, created_at, deleted_at`

func (r *UserTicketsRepository) GetUserTicketForUpdate(ctx context.Context, id string) (entity.UserTicket, error) {
	var ticket entity.UserTicket
	err := executorFor(ctx, r.db).GetContext(ctx, &ticket, `
		SELECT `+userTicketColumns+`
		FROM user_tickets
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		return entity.UserTicket{}, notFoundOr(err, "ticket %s not found", id)
	}

	return ticket, nil
}

func (r *UserTicketsRepository) UpdateUserTicketApprovalStatus(ctx context.Context, id string, status entity.ApprovalStatus) error {
	_, err := executorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE user_tickets SET approval_status = $1 WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("could not update ticket status: %w", err)
	}

	return nil
}

func (r *UserTicketsRepository) ListUserTicketsByPurchaseOrder(ctx context.Context, purchaseOrderID string) ([]entity.UserTicket, error) {
	var tickets []entity.UserTicket
	err := executorFor(ctx, r.db).SelectContext(ctx, &tickets, `
		SELECT `+userTicketColumns+`
		FROM user_tickets
		WHERE purchase_order_id = $1
		ORDER BY created_at, id
	`, purchaseOrderID)
	if err != nil {
		return nil, fmt.Errorf("could not select user tickets: %w", err)
	}

	return tickets, nil
}

const userTicketAddonColumns = `id, user_ticket_id, addon_id, purchase_order_id, quantity, approval_status,
	redemption_status, unit_price_in_cents, created_at`

func (r *UserTicketsRepository) ListUserTicketAddons(ctx context.Context, userTicketID string) ([]entity.UserTicketAddon, error) {
	var addons []entity.UserTicketAddon
	err := executorFor(ctx, r.db).SelectContext(ctx, &addons, `
		SELECT `+userTicketAddonColumns+`
		FROM user_ticket_addons
		WHERE user_ticket_id = $1
		ORDER BY created_at, id
	`, userTicketID)
	if err != nil {
		return nil, fmt.Errorf("could not select user ticket addons: %w", err)
	}

	return addons, nil
}

func (r *UserTicketsRepository) ListUserTicketAddonsByPurchaseOrder(ctx context.Context, purchaseOrderID string) ([]entity.UserTicketAddon, error) {
	var addons []entity.UserTicketAddon
	err := executorFor(ctx, r.db).SelectContext(ctx, &addons, `
		SELECT `+userTicketAddonColumns+`
		FROM user_ticket_addons
		WHERE purchase_order_id = $1
		ORDER BY created_at, id
	`, purchaseOrderID)
	if err != nil {
		return nil, fmt.Errorf("could not select user ticket addons: %w", err)
	}

	return addons, nil
}

func (r *UserTicketsRepository) CancelUserTicketAddons(ctx context.Context, ids []string) error {
	_, err := executorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE user_ticket_addons SET approval_status = $1 WHERE id = ANY($2)
	`, entity.AddonApprovalStatusCancelled, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("could not cancel user ticket addons: %w", err)
	}

	return nil
}

// SetAddonUnitPrices snapshots add-on prices, keyed by user ticket add-on id.
func (r *UserTicketsRepository) SetAddonUnitPrices(ctx context.Context, unitPrices map[string]int64) error {
	exec := executorFor(ctx, r.db)

	for id, cents := range unitPrices {
		_, err := exec.ExecContext(ctx, `
			UPDATE user_ticket_addons SET unit_price_in_cents = $1 WHERE id = $2
		`, cents, id)
		if err != nil {
			return fmt.Errorf("could not set addon unit price: %w", err)
		}
	}

	return nil
}

// ApprovePendingByPurchaseOrder approves the pending items of a paid purchase order.
// Tickets of templates that require manual approval stay pending, and so do their add-ons.
// A ticket with a pending transfer becomes gifted instead of approved.
func (r *UserTicketsRepository) ApprovePendingByPurchaseOrder(ctx context.Context, purchaseOrderID string) error {
	exec := executorFor(ctx, r.db)

	_, err := exec.ExecContext(ctx, `
		UPDATE user_tickets t
		SET approval_status = CASE
			WHEN EXISTS (
				SELECT 1 FROM user_ticket_transfers tr
				WHERE tr.user_ticket_id = t.id AND tr.status = $1
			) THEN $2
			ELSE $3
		END
		FROM ticket_templates tt
		WHERE tt.id = t.ticket_template_id
			AND t.purchase_order_id = $4
			AND t.approval_status = $5
			AND tt.requires_approval = FALSE
			AND t.deleted_at IS NULL
	`,
		entity.TransferStatusPending,
		entity.ApprovalStatusGifted,
		entity.ApprovalStatusApproved,
		purchaseOrderID,
		entity.ApprovalStatusPending,
	)
	if err != nil {
		return fmt.Errorf("could not approve user tickets: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		UPDATE user_ticket_addons a
		SET approval_status = $1
		FROM user_tickets t
		WHERE t.id = a.user_ticket_id
			AND a.purchase_order_id = $2
			AND a.approval_status = $3
			AND t.approval_status = ANY($4)
			AND t.deleted_at IS NULL
	`, entity.AddonApprovalStatusApproved, purchaseOrderID, entity.AddonApprovalStatusPending, accessibleStatuses())
	if err != nil {
		return fmt.Errorf("could not approve user ticket addons: %w", err)
	}

	return nil
}

// CancelByPurchaseOrder cancels and soft deletes the tickets of a purchase order together with
// their add-ons. It returns the ids of the cancelled tickets.
func (r *UserTicketsRepository) CancelByPurchaseOrder(ctx context.Context, purchaseOrderID string, at time.Time) ([]string, error) {
	exec := executorFor(ctx, r.db)

	var ids []string
	err := exec.SelectContext(ctx, &ids, `
		UPDATE user_tickets
		SET approval_status = $1, deleted_at = $2
		WHERE purchase_order_id = $3 AND deleted_at IS NULL
		RETURNING id
	`, entity.ApprovalStatusCancelled, at, purchaseOrderID)
	if err != nil {
		return nil, fmt.Errorf("could not cancel user tickets: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		UPDATE user_ticket_addons
		SET approval_status = $1
		WHERE purchase_order_id = $2
	`, entity.AddonApprovalStatusCancelled, purchaseOrderID)
	if err != nil {
		return nil, fmt.Errorf("could not cancel user ticket addons: %w", err)
	}

	return ids, nil
}
