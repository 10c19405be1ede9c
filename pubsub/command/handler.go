package command

import (
	"context"

	"ticketing/payment"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (payment.ReconciliationSummary, error)
}

type Handler struct {
	reconciler Reconciler
}

func NewHandler(reconciler Reconciler) Handler {
	if reconciler == nil {
		panic("missing reconciler")
	}

	return Handler{reconciler: reconciler}
}
