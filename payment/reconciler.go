package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	"ticketing/entity"
	"ticketing/metrics"
)

const (
	OutcomeUnchanged     = "unchanged"
	OutcomeStatusChanged = "status_changed"
	OutcomePaid          = "paid"
	OutcomeExpired       = "expired"
	OutcomeFailed        = "failed"
)

type ReconciliationSummary struct {
	Processed int
	Outcomes  map[string]int
}

// Reconcile walks every unpaid purchase order once: it records the status reported by the
// payment platform, completes paid orders and expires past-due ones.
// A failure on one order is logged and does not stop the others.
func (o *Orchestrator) Reconcile(ctx context.Context) (ReconciliationSummary, error) {
	orders, err := o.orders.ListUnpaidPurchaseOrders(ctx)
	if err != nil {
		return ReconciliationSummary{}, fmt.Errorf("could not list unpaid purchase orders: %w", err)
	}

	summary := ReconciliationSummary{Outcomes: map[string]int{}}

	for _, po := range orders {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		outcome, err := o.reconcileOne(ctx, po)
		if err != nil {
			outcome = OutcomeFailed
			log.FromContext(ctx).
				WithError(err).
				WithField("purchase_order_id", po.ID).
				Error("Could not reconcile purchase order")
		}

		summary.Processed++
		summary.Outcomes[outcome]++
		metrics.PurchaseOrdersReconciled.With(prometheus.Labels{"outcome": outcome}).Inc()
	}

	log.FromContext(ctx).WithField("outcomes", summary.Outcomes).Infof("Reconciled %d purchase orders", summary.Processed)

	return summary, nil
}

func (o *Orchestrator) reconcileOne(ctx context.Context, po entity.PurchaseOrder) (string, error) {
	var observed *entity.ProviderPaymentStatus

	// the platform is queried outside of the transaction, so no row lock is held during the call
	if po.PaymentPlatform != nil && po.ExternalReferenceID != nil {
		provider, ok := o.providers[*po.PaymentPlatform]
		if !ok {
			return "", fmt.Errorf("no payment provider configured for %s", *po.PaymentPlatform)
		}

		status, err := provider.GetPaymentStatus(ctx, *po.ExternalReferenceID)
		if err != nil {
			return "", fmt.Errorf("could not get payment status: %w", err)
		}
		observed = &status
	}

	outcome := OutcomeUnchanged

	err := o.txManager.InTx(ctx, func(ctx context.Context) error {
		current, err := o.orders.GetPurchaseOrderForUpdate(ctx, po.ID)
		if err != nil {
			return fmt.Errorf("could not get purchase order: %w", err)
		}
		if current.Status != entity.PurchaseOrderStatusOpen || current.PaymentStatus != entity.PaymentStatusUnpaid {
			return nil
		}

		if observed != nil && observed.Paid {
			outcome = OutcomePaid
			return o.markPaid(ctx, current, observed.OrderStatus)
		}

		if current.IsExpired(o.clock.Now()) {
			outcome = OutcomeExpired
			return o.expire(ctx, current, observed)
		}

		if observed != nil && lo.FromPtr(current.ExternalStatus) != observed.OrderStatus {
			outcome = OutcomeStatusChanged
			current.ExternalStatus = lo.ToPtr(observed.OrderStatus)
			return o.orders.UpdatePurchaseOrder(ctx, current)
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return outcome, nil
}

func (o *Orchestrator) markPaid(ctx context.Context, po entity.PurchaseOrder, externalStatus string) error {
	po.Status = entity.PurchaseOrderStatusComplete
	po.PaymentStatus = entity.PaymentStatusPaid
	po.ExternalStatus = lo.ToPtr(externalStatus)

	if err := o.orders.UpdatePurchaseOrder(ctx, po); err != nil {
		return fmt.Errorf("could not update purchase order: %w", err)
	}
	if err := o.items.ApprovePendingByPurchaseOrder(ctx, po.ID); err != nil {
		return fmt.Errorf("could not approve purchase order items: %w", err)
	}

	user, err := o.users.GetUser(ctx, po.UserID)
	if err != nil {
		return fmt.Errorf("could not get purchase order owner: %w", err)
	}

	currencyCode := ""
	if po.CurrencyID != nil {
		currency, err := o.catalog.GetCurrency(ctx, *po.CurrencyID)
		if err != nil && !errors.Is(err, entity.ErrNotFound) {
			return fmt.Errorf("could not get currency: %w", err)
		}
		currencyCode = currency.Code
	}

	return o.publisher.Publish(ctx, entity.PurchaseOrderPaid_v1{
		Header:          entity.NewEventHeaderWithIdempotencyKey("paid-" + po.ID),
		PurchaseOrderID: po.ID,
		UserID:          user.ID,
		UserEmail:       user.Email,
		TotalPriceCents: lo.FromPtr(po.TotalPriceCents),
		CurrencyCode:    currencyCode,
	})
}

func (o *Orchestrator) expire(ctx context.Context, po entity.PurchaseOrder, observed *entity.ProviderPaymentStatus) error {
	po.Status = entity.PurchaseOrderStatusExpired
	if observed != nil {
		po.ExternalStatus = lo.ToPtr(observed.OrderStatus)
	}

	if err := o.orders.UpdatePurchaseOrder(ctx, po); err != nil {
		return fmt.Errorf("could not update purchase order: %w", err)
	}

	cancelled, err := o.items.CancelByPurchaseOrder(ctx, po.ID, o.clock.Now())
	if err != nil {
		return fmt.Errorf("could not cancel purchase order items: %w", err)
	}

	user, err := o.users.GetUser(ctx, po.UserID)
	if err != nil {
		return fmt.Errorf("could not get purchase order owner: %w", err)
	}

	return o.publisher.Publish(ctx, entity.PurchaseOrderExpired_v1{
		Header:                 entity.NewEventHeaderWithIdempotencyKey("expired-" + po.ID),
		PurchaseOrderID:        po.ID,
		UserID:                 user.ID,
		UserEmail:              user.Email,
		CancelledUserTicketIDs: cancelled,
	})
}
