package command_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketing/entity"
	"ticketing/payment"
	"ticketing/pubsub/command"
)

type reconcilerStub struct {
	calls int
	err   error
}

func (r *reconcilerStub) Reconcile(ctx context.Context) (payment.ReconciliationSummary, error) {
	r.calls++
	return payment.ReconciliationSummary{}, r.err
}

func TestSyncPurchaseOrdersHandler(t *testing.T) {
	reconciler := &reconcilerStub{}
	h := command.NewHandler(reconciler).SyncPurchaseOrdersHandler()

	require.NoError(t, h.Handle(context.Background(), &entity.SyncPurchaseOrders{Header: entity.NewEventHeader()}))
	assert.Equal(t, 1, reconciler.calls)

	reconciler.err = errors.New("database is down")
	err := h.Handle(context.Background(), &entity.SyncPurchaseOrders{Header: entity.NewEventHeader()})
	require.Error(t, err)
	assert.Equal(t, 2, reconciler.calls)
}
