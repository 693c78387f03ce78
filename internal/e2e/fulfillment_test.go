package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/delivery"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/payments"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/testing/memstore"
)

var (
	start = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	staff = shared.Actor{ID: 1, Name: "Sari"}
)

func lot(t *testing.T, e *memstore.Engine, created float64) inventory.StockLot {
	t.Helper()
	l, err := e.Inventory.CreateLot(context.Background(), inventory.CreateLotRequest{
		ProductType:     "Abon Sapi",
		BatchReference:  "AS-0901",
		Unit:            "kg",
		QuantityCreated: created,
	})
	require.NoError(t, err)
	return l
}

func orderFor(e *memstore.Engine, lotID int64, qty, price float64) (sales.Order, error) {
	return e.Orders.CreateOrder(context.Background(), sales.CreateOrderRequest{
		CustomerID: 1,
		Items:      []sales.ItemInput{{StockLotID: lotID, Quantity: qty, UnitPrice: price}},
	}, staff)
}

func forSale(t *testing.T, e *memstore.Engine, lotID int64) float64 {
	t.Helper()
	v, err := e.Inventory.AvailableForSale(context.Background(), inventory.AvailabilityQuery{StockLotID: lotID})
	require.NoError(t, err)
	return v
}

func TestReservationDeliveryAndShortfall(t *testing.T) {
	e := memstore.NewEngine(start)
	ctx := context.Background()
	l := lot(t, e, 100)

	first, err := orderFor(e, l.ID, 40, 10)
	require.NoError(t, err)
	res, ok := e.Store.Reservation(first.Items[0].ID)
	require.True(t, ok)
	require.InDelta(t, 40.0, res.QuantityReserved, 0.001)
	require.InDelta(t, 60.0, forSale(t, e, l.ID), 0.001)

	_, err = e.Deliveries.RecordDelivery(ctx, delivery.RecordDeliveryInput{
		OrderID:           first.ID,
		LineItemID:        first.Items[0].ID,
		QuantityDelivered: 25,
	}, staff)
	require.NoError(t, err)
	require.InDelta(t, 75.0, e.Store.Lot(l.ID).QuantityAvailable, 0.001)
	got, err := e.Orders.GetOrder(ctx, first.ID)
	require.NoError(t, err)
	require.InDelta(t, 25.0, got.Items[0].QuantityDelivered, 0.001)

	// 100 created, 25 delivered, 15 still reserved.
	require.InDelta(t, 60.0, forSale(t, e, l.ID), 0.001)

	_, err = orderFor(e, l.ID, 80, 10)
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)
	require.Contains(t, err.Error(), "requested 80 kg")
	require.Contains(t, err.Error(), "available 60 kg")
	require.InDelta(t, 60.0, forSale(t, e, l.ID), 0.001, "a rejected reservation writes nothing")

	display, err := e.Inventory.AvailableForDisplay(ctx, l.ID)
	require.NoError(t, err)
	require.InDelta(t, 75.0, display, 0.001)
}

func TestAvailabilityIsMonotonicAndRecoversOnDeletion(t *testing.T) {
	e := memstore.NewEngine(start)
	ctx := context.Background()
	l := lot(t, e, 100)

	previous := forSale(t, e, l.ID)
	var orders []sales.Order
	for _, qty := range []float64{10, 20, 30} {
		o, err := orderFor(e, l.ID, qty, 1)
		require.NoError(t, err)
		orders = append(orders, o)
		now := forSale(t, e, l.ID)
		require.LessOrEqual(t, now, previous)
		previous = now
	}
	require.InDelta(t, 40.0, previous, 0.001)

	_, err := e.Deliveries.RecordDelivery(ctx, delivery.RecordDeliveryInput{
		OrderID:           orders[1].ID,
		LineItemID:        orders[1].Items[0].ID,
		QuantityDelivered: 20,
	}, staff)
	require.NoError(t, err)
	require.InDelta(t, 40.0, forSale(t, e, l.ID), 0.001, "delivery converts a reservation")

	_, err = e.Orders.DeleteOrder(ctx, orders[1].ID, sales.DeleteOptions{Confirm: true}, staff)
	require.NoError(t, err)
	require.InDelta(t, 60.0, forSale(t, e, l.ID), 0.001)
	require.InDelta(t, 100.0, e.Store.Lot(l.ID).QuantityAvailable, 0.001)
}

func TestLotCounterStaysWithinBounds(t *testing.T) {
	e := memstore.NewEngine(start)
	ctx := context.Background()
	l := lot(t, e, 30)
	o, err := orderFor(e, l.ID, 30, 5)
	require.NoError(t, err)

	for _, qty := range []float64{10, 30, 20, 30} {
		_, err := e.Deliveries.RecordDelivery(ctx, delivery.RecordDeliveryInput{
			OrderID:           o.ID,
			LineItemID:        o.Items[0].ID,
			QuantityDelivered: qty,
		}, staff)
		require.NoError(t, err)
		counter := e.Store.Lot(l.ID).QuantityAvailable
		require.GreaterOrEqual(t, counter, 0.0)
		require.LessOrEqual(t, counter, 30.0)
	}

	_, err = e.Orders.DeleteOrder(ctx, o.ID, sales.DeleteOptions{Confirm: true}, staff)
	require.NoError(t, err)
	require.InDelta(t, 30.0, e.Store.Lot(l.ID).QuantityAvailable, 0.001, "restoration is capped at the created quantity")
}

func TestOrderLifecycleEndToEnd(t *testing.T) {
	e := memstore.NewEngine(start)
	ctx := context.Background()
	l := lot(t, e, 100)

	o, err := orderFor(e, l.ID, 10, 100)
	require.NoError(t, err)
	_, err = e.Orders.SetDiscount(ctx, o.ID, 100, staff)
	require.NoError(t, err)
	_, err = e.Orders.UpdateStatus(ctx, o.ID, sales.StatusReadyForPayment, staff)
	require.NoError(t, err)

	_, err = e.Payments.CreatePayment(ctx, o.ID, payments.PaymentRequest{
		AmountReceived: 899.99,
		PaymentDate:    start,
		Mode:           payments.ModeBankTransfer,
	}, staff)
	require.NoError(t, err)
	got, err := e.Orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, sales.PaymentPartial, got.PaymentStatus)
	_, err = e.Orders.Lock(ctx, o.ID, staff)
	require.ErrorIs(t, err, shared.ErrOrderNotCompleted)

	_, err = e.Payments.CreatePayment(ctx, o.ID, payments.PaymentRequest{
		AmountReceived: 0.01,
		PaymentDate:    start,
		Mode:           payments.ModeCash,
	}, staff)
	require.NoError(t, err)
	got, err = e.Orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, sales.PaymentFull, got.PaymentStatus)
	require.Equal(t, sales.StatusCompleted, got.Status)

	_, err = e.Orders.Lock(ctx, o.ID, staff)
	require.NoError(t, err)
	e.Clock.Advance(8 * 24 * time.Hour)
	_, err = e.Orders.Unlock(ctx, o.ID, "correction", staff)
	require.ErrorIs(t, err, shared.ErrUnlockWindowExpired)
	_, err = e.Orders.DeleteOrder(ctx, o.ID, sales.DeleteOptions{Confirm: true}, staff)
	require.ErrorIs(t, err, shared.ErrOrderLocked)

	timeline, err := e.Audit.Timeline(ctx, audit.TimelineFilters{OrderID: o.ID})
	require.NoError(t, err)
	require.Equal(t, audit.OrderLocked, timeline.Events[0].EventType)
}
