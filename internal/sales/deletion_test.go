package sales_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/testing/memstore"
)

// deliveredOrder builds an order with one fully delivered item of 10 against a
// lot whose available counter reads 40, plus an invoice and a partial payment.
func deliveredOrder(t *testing.T) (*memstore.Engine, inventory.StockLot, sales.Order) {
	t.Helper()
	e, lot := setup(t)
	order := createOrder(t, e, lot.ID, 10, 5)
	deliver(t, e, order, 10)
	require.InDelta(t, 90.0, e.Store.Lot(lot.ID).QuantityAvailable, 0.001)
	e.Store.SetLotAvailable(lot.ID, 40)
	e.Store.AddInvoice(order.ID)
	pay(t, e, order.ID, 20)
	return e, lot, order
}

func TestDeleteOrderNeedsConfirmation(t *testing.T) {
	e, lot, order := deliveredOrder(t)

	result, err := e.Orders.DeleteOrder(context.Background(), order.ID, sales.DeleteOptions{}, clerk)
	require.ErrorIs(t, err, shared.ErrConfirmationRequired)
	require.Equal(t, sales.DeletionPlan{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		LineItems:         1,
		DeliveredItems:    1,
		QuantityToRestore: 10,
		Payments:          1,
		Invoices:          1,
		Dispatches:        1,
	}, result.Plan)

	require.InDelta(t, 40.0, e.Store.Lot(lot.ID).QuantityAvailable, 0.001)
	_, err = e.Orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
}

func TestDeleteOrderRestoresDeliveredQuantityAndDependents(t *testing.T) {
	e, lot, order := deliveredOrder(t)
	ctx := context.Background()

	result, err := e.Orders.DeleteOrder(ctx, order.ID, sales.DeleteOptions{Confirm: true}, clerk)
	require.NoError(t, err)
	require.Len(t, result.CompletedSteps, 8)
	require.InDelta(t, 10.0, result.QuantityRestored, 0.001)

	require.InDelta(t, 50.0, e.Store.Lot(lot.ID).QuantityAvailable, 0.001)
	require.Equal(t, map[string]int{"invoices": 0}, e.Store.Counts(order.ID))
	_, err = e.Orders.GetOrder(ctx, order.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.InDelta(t, 100.0, forSale(t, e, lot.ID), 0.001)

	events := e.Store.Events(order.ID)
	require.Equal(t, audit.OrderDeleted, events[len(events)-1].EventType)
}

func TestDeleteOrderReportsFailingStepAndResumes(t *testing.T) {
	e, lot, order := deliveredOrder(t)
	ctx := context.Background()
	e.Store.Fail("DeleteInvoices", errors.New("invoice store offline"))

	result, err := e.Orders.DeleteOrder(ctx, order.ID, sales.DeleteOptions{Confirm: true}, clerk)
	var stepErr *sales.StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, 3, stepErr.Step)
	require.Equal(t, sales.StepDeleteInvoices, stepErr.Name)
	require.Equal(t, []string{sales.StepRestoreInventory, sales.StepDeleteAccountingEntries}, result.CompletedSteps)
	require.Equal(t, []int64{order.ID}, e.Retries.Scheduled())
	require.InDelta(t, 50.0, e.Store.Lot(lot.ID).QuantityAvailable, 0.001)

	partial, err := e.Orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, partial.DeletionStartedAt)
	_, total, err := e.Orders.ListOrders(ctx, sales.ListFilter{})
	require.NoError(t, err)
	require.Zero(t, total, "partially deleted orders are hidden from listings")
	_, err = e.Orders.SetOnHold(ctx, order.ID, "late", clerk)
	require.ErrorIs(t, err, shared.ErrDeletionInProgress)

	e.Store.Heal("DeleteInvoices")
	e.Clock.Advance(10 * time.Minute)
	found, finished, err := e.Orders.ReconcileDeletions(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, found)
	require.Equal(t, 1, finished)

	require.InDelta(t, 50.0, e.Store.Lot(lot.ID).QuantityAvailable, 0.001, "restoration runs once")
	_, err = e.Orders.GetOrder(ctx, order.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = e.Orders.ResumeDeletion(ctx, order.ID)
	require.NoError(t, err, "resuming a finished deletion is a no-op")
}

func TestReconcileSkipsFreshDeletions(t *testing.T) {
	e, _, order := deliveredOrder(t)
	ctx := context.Background()
	e.Store.Fail("DeleteOrder", errors.New("timeout"))

	_, err := e.Orders.DeleteOrder(ctx, order.ID, sales.DeleteOptions{Confirm: true}, clerk)
	require.Error(t, err)

	found, finished, err := e.Orders.ReconcileDeletions(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, found)
	require.Zero(t, finished)
}

func TestLockedOrderIsNeverDeleted(t *testing.T) {
	e, order, _ := lockedOrder(t)

	_, err := e.Orders.DeleteOrder(context.Background(), order.ID, sales.DeleteOptions{Confirm: true}, clerk)
	require.ErrorIs(t, err, shared.ErrOrderLocked)
	require.Equal(t, 1, e.Store.Counts(order.ID)["orders"])
}
