package delivery_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/delivery"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/payments"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/testing/memstore"
)

var (
	start  = time.Date(2025, 7, 1, 7, 0, 0, 0, time.UTC)
	driver = shared.Actor{ID: 11, Name: "Agus"}
)

func setup(t *testing.T) (*memstore.Engine, inventory.StockLot) {
	t.Helper()
	e := memstore.NewEngine(start)
	lot, err := e.Inventory.CreateLot(context.Background(), inventory.CreateLotRequest{
		ProductType:     "Kecap Manis",
		BatchReference:  "KM-07",
		Unit:            "bottle",
		QuantityCreated: 100,
	})
	require.NoError(t, err)
	return e, lot
}

func order(t *testing.T, e *memstore.Engine, lotID int64, qty float64) sales.Order {
	t.Helper()
	o, err := e.Orders.CreateOrder(context.Background(), sales.CreateOrderRequest{
		CustomerID: 4,
		Items:      []sales.ItemInput{{StockLotID: lotID, Quantity: qty, UnitPrice: 10}},
	}, driver)
	require.NoError(t, err)
	return o
}

func record(e *memstore.Engine, o sales.Order, qty float64) (delivery.DeliveryResult, error) {
	return e.Deliveries.RecordDelivery(context.Background(), delivery.RecordDeliveryInput{
		OrderID:           o.ID,
		LineItemID:        o.Items[0].ID,
		QuantityDelivered: qty,
	}, driver)
}

func TestRecordDeliveryConsumesCounterAndAppendsDispatch(t *testing.T) {
	e, lot := setup(t)
	o := order(t, e, lot.ID, 40)

	res, err := record(e, o, 15)
	require.NoError(t, err)
	require.InDelta(t, 15.0, res.Delta, 0.001)
	require.NotNil(t, res.Dispatch)
	require.True(t, res.Dispatch.DeliveryDate.Equal(start))

	res, err = record(e, o, 40)
	require.NoError(t, err)
	require.InDelta(t, 25.0, res.Delta, 0.001)

	require.InDelta(t, 60.0, e.Store.Lot(lot.ID).QuantityAvailable, 0.001)
	list, err := e.Deliveries.ListDispatches(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.InDelta(t, 40.0, list[1].CumulativeDelivered, 0.001)

	forSale, err := e.Inventory.AvailableForSale(context.Background(), inventory.AvailabilityQuery{StockLotID: lot.ID})
	require.NoError(t, err)
	require.InDelta(t, 60.0, forSale, 0.001, "delivered quantity no longer counts as reserved")
}

func TestRecordDeliveryRangeCheck(t *testing.T) {
	e, lot := setup(t)
	o := order(t, e, lot.ID, 10)

	_, err := record(e, o, 10.5)
	require.ErrorIs(t, err, shared.ErrInvalidDeliveryRange)
	_, err = record(e, o, -1)
	require.ErrorIs(t, err, shared.ErrInvalidDeliveryRange)

	_, err = e.Deliveries.RecordDelivery(context.Background(), delivery.RecordDeliveryInput{
		OrderID:           o.ID,
		LineItemID:        9999,
		QuantityDelivered: 1,
	}, driver)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordDeliveryUnchangedQuantityIsNoop(t *testing.T) {
	e, lot := setup(t)
	o := order(t, e, lot.ID, 10)
	_, err := record(e, o, 4)
	require.NoError(t, err)

	res, err := record(e, o, 4)
	require.NoError(t, err)
	require.Nil(t, res.Dispatch)
	require.Zero(t, res.Delta)

	n, err := e.Deliveries.CountDispatches(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestReducingDeliveryKeepsCounter(t *testing.T) {
	e, lot := setup(t)
	o := order(t, e, lot.ID, 10)
	_, err := record(e, o, 8)
	require.NoError(t, err)
	require.InDelta(t, 92.0, e.Store.Lot(lot.ID).QuantityAvailable, 0.001)

	res, err := record(e, o, 5)
	require.NoError(t, err)
	require.InDelta(t, -3.0, res.Delta, 0.001)
	require.InDelta(t, 92.0, e.Store.Lot(lot.ID).QuantityAvailable, 0.001)
}

// A completed order has released its reservation, so another order may have
// taken the stock it still owes.
func TestRecordDeliveryReportsShortfall(t *testing.T) {
	e, lot := setup(t)
	ctx := context.Background()
	paid := order(t, e, lot.ID, 40)
	_, err := e.Payments.CreatePayment(ctx, paid.ID, payments.PaymentRequest{
		AmountReceived: 400,
		PaymentDate:    start,
		Mode:           payments.ModeCash,
	}, driver)
	require.NoError(t, err)
	order(t, e, lot.ID, 90)

	_, err = record(e, paid, 40)
	require.ErrorIs(t, err, shared.ErrInsufficientInventory)
	require.Contains(t, err.Error(), "available 10 bottle")
	require.InDelta(t, 100.0, e.Store.Lot(lot.ID).QuantityAvailable, 0.001)

	_, err = record(e, paid, 10)
	require.NoError(t, err)
}

func TestRecordDeliveryRejectsLockedOrder(t *testing.T) {
	e, lot := setup(t)
	ctx := context.Background()
	o := order(t, e, lot.ID, 5)
	_, err := e.Payments.CreatePayment(ctx, o.ID, payments.PaymentRequest{
		AmountReceived: 50,
		PaymentDate:    start,
		Mode:           payments.ModeCard,
	}, driver)
	require.NoError(t, err)
	_, err = e.Orders.Lock(ctx, o.ID, driver)
	require.NoError(t, err)

	_, err = record(e, o, 5)
	require.ErrorIs(t, err, shared.ErrOrderLocked)
}

func TestRecordDeliveryFailureLeavesStateUntouched(t *testing.T) {
	e, lot := setup(t)
	o := order(t, e, lot.ID, 10)
	e.Store.Fail("ApplyDelivery", errors.New("connection reset"))

	_, err := record(e, o, 6)
	require.Error(t, err)
	require.InDelta(t, 100.0, e.Store.Lot(lot.ID).QuantityAvailable, 0.001)

	got, err := e.Orders.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Zero(t, got.Items[0].QuantityDelivered)
}

func TestRecordDeliveryStoresEvidence(t *testing.T) {
	e, lot := setup(t)
	dir := filepath.Join(t.TempDir(), "evidence")
	store, err := delivery.NewLocalEvidenceStore(dir)
	require.NoError(t, err)
	e.Deliveries.SetEvidenceStore(store)
	o := order(t, e, lot.ID, 10)
	date := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	res, err := e.Deliveries.RecordDelivery(context.Background(), delivery.RecordDeliveryInput{
		OrderID:           o.ID,
		LineItemID:        o.Items[0].ID,
		QuantityDelivered: 10,
		DeliveryDate:      &date,
		Evidence:          strings.NewReader("signed note"),
		EvidenceName:      "Surat Jalan.PDF",
	}, driver)
	require.NoError(t, err)
	require.True(t, res.Dispatch.DeliveryDate.Equal(date))
	require.True(t, strings.HasSuffix(res.Dispatch.EvidenceRef, ".pdf"))

	body, err := os.ReadFile(filepath.Join(dir, res.Dispatch.EvidenceRef))
	require.NoError(t, err)
	require.Equal(t, "signed note", string(body))
}

func TestRecordDeliveryDiscardsEvidenceWhenApplyFails(t *testing.T) {
	e, lot := setup(t)
	dir := t.TempDir()
	store, err := delivery.NewLocalEvidenceStore(dir)
	require.NoError(t, err)
	e.Deliveries.SetEvidenceStore(store)
	o := order(t, e, lot.ID, 10)
	e.Store.Fail("ApplyDelivery", shared.ErrConflict)

	_, err = e.Deliveries.RecordDelivery(context.Background(), delivery.RecordDeliveryInput{
		OrderID:           o.ID,
		LineItemID:        o.Items[0].ID,
		QuantityDelivered: 4,
		Evidence:          strings.NewReader("signed note"),
		EvidenceName:      "note.jpg",
	}, driver)
	require.ErrorIs(t, err, shared.ErrConflict)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLocalEvidenceStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := delivery.NewLocalEvidenceStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Save(ctx, "proof.png", strings.NewReader("png"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, ref))
	_, err = os.Stat(filepath.Join(dir, ref))
	require.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, store.Delete(ctx, ref))
	require.Error(t, store.Delete(ctx, "../outside.png"))
}

func TestNewLocalEvidenceStoreNeedsDirectory(t *testing.T) {
	_, err := delivery.NewLocalEvidenceStore(" ")
	require.Error(t, err)
}
