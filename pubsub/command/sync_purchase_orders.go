package command

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"ticketing/entity"
)

func (h Handler) SyncPurchaseOrdersHandler() cqrs.CommandHandler {
	return cqrs.NewCommandHandler(
		"SyncPurchaseOrdersHandler",
		func(ctx context.Context, command *entity.SyncPurchaseOrders) error {
			log.FromContext(ctx).WithField("command_id", command.Header.ID).Info("Syncing purchase orders")

			if _, err := h.reconciler.Reconcile(ctx); err != nil {
				return fmt.Errorf("could not reconcile purchase orders: %w", err)
			}

			return nil
		},
	)
}
