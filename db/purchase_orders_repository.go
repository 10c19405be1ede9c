package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"ticketing/entity"
)

type PurchaseOrdersRepository struct {
	db *sqlx.DB
}

func NewPurchaseOrdersRepository(db *sqlx.DB) *PurchaseOrdersRepository {
	if db == nil {
		panic("db is nil")
	}

	return &PurchaseOrdersRepository{db: db}
}

const purchaseOrderColumns = `id, user_id, status, payment_status, payment_platform, external_reference_id,
	payment_link, external_status, currency_id, total_price_cents, expires_at, created_at`

func (r *PurchaseOrdersRepository) CreatePurchaseOrder(ctx context.Context, po entity.PurchaseOrder) error {
	_, err := executorFor(ctx, r.db).NamedExecContext(ctx, `
		INSERT INTO purchase_orders (`+purchaseOrderColumns+`)
		VALUES
			(:id, :user_id, :status, :payment_status, :payment_platform, :external_reference_id,
			 :payment_link, :external_status, :currency_id, :total_price_cents, :expires_at, :created_at)
	`, po)
	if err != nil {
		return fmt.Errorf("could not insert purchase order: %w", err)
	}

	return nil
}

func (r *PurchaseOrdersRepository) GetPurchaseOrder(ctx context.Context, id string) (entity.PurchaseOrder, error) {
	return r.get(ctx, id, "")
}

func (r *PurchaseOrdersRepository) GetPurchaseOrderForUpdate(ctx context.Context, id string) (entity.PurchaseOrder, error) {
	return r.get(ctx, id, "FOR UPDATE")
}

func (r *PurchaseOrdersRepository) get(ctx context.Context, id string, lock string) (entity.PurchaseOrder, error) {
	var po entity.PurchaseOrder
	err := executorFor(ctx, r.db).GetContext(ctx, &po, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE id = $1
	`+lock, id)
	if err != nil {
		return entity.PurchaseOrder{}, notFoundOr(err, "purchase order %s not found", id)
	}

	return po, nil
}

func (r *PurchaseOrdersRepository) UpdatePurchaseOrder(ctx context.Context, po entity.PurchaseOrder) error {
	res, err := executorFor(ctx, r.db).NamedExecContext(ctx, `
		UPDATE purchase_orders
		SET
			status = :status,
			payment_status = :payment_status,
			payment_platform = :payment_platform,
			external_reference_id = :external_reference_id,
			payment_link = :payment_link,
			external_status = :external_status,
			currency_id = :currency_id,
			total_price_cents = :total_price_cents,
			expires_at = :expires_at
		WHERE id = :id
	`, po)
	if err != nil {
		return fmt.Errorf("could not update purchase order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return entity.NotFound("purchase order %s not found", po.ID)
	}

	return nil
}

// ListUnpaidPurchaseOrders returns open orders still waiting for payment, oldest first.
func (r *PurchaseOrdersRepository) ListUnpaidPurchaseOrders(ctx context.Context) ([]entity.PurchaseOrder, error) {
	var orders []entity.PurchaseOrder
	err := executorFor(ctx, r.db).SelectContext(ctx, &orders, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE payment_status = $1 AND status = $2
		ORDER BY created_at, id
	`, entity.PaymentStatusUnpaid, entity.PurchaseOrderStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("could not select unpaid purchase orders: %w", err)
	}

	return orders, nil
}
