package perf

import (
	"context"
	"sort"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/delivery"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/testing/memstore"
)

var (
	start = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	staff = shared.Actor{ID: 3, Name: "Rina"}
)

func newLot(t *testing.T, e *memstore.Engine, created float64) inventory.StockLot {
	t.Helper()
	lot, err := e.Inventory.CreateLot(context.Background(), inventory.CreateLotRequest{
		ProductType:     "Sambal",
		BatchReference:  "SB-0602",
		Unit:            "jar",
		QuantityCreated: created,
	})
	if err != nil {
		t.Fatalf("create lot: %v", err)
	}
	return lot
}

func newOrder(t *testing.T, e *memstore.Engine, lotID int64, qty float64) sales.Order {
	t.Helper()
	order, err := e.Orders.CreateOrder(context.Background(), sales.CreateOrderRequest{
		CustomerID: 1,
		Items:      []sales.ItemInput{{StockLotID: lotID, Quantity: qty, UnitPrice: 12}},
	}, staff)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func TestReservationLatencyTargets(t *testing.T) {
	e := memstore.NewEngine(start)
	lot := newLot(t, e, 10000)

	samples := make([]time.Duration, 0, 200)
	for range 200 {
		began := time.Now()
		order := newOrder(t, e, lot.ID, 2)
		if _, err := e.Orders.UpdateItem(context.Background(), order.ID, order.Items[0].ID,
			sales.ItemInput{StockLotID: lot.ID, Quantity: 3, UnitPrice: 12}, staff); err != nil {
			t.Fatalf("update item: %v", err)
		}
		samples = append(samples, time.Since(began))
	}

	if p95 := percentile95(samples); p95 > 50*time.Millisecond {
		t.Fatalf("create+replace latency regression: p95=%s threshold=50ms", p95)
	}

	sale, err := e.Inventory.AvailableForSale(context.Background(), inventory.AvailabilityQuery{StockLotID: lot.ID})
	if err != nil {
		t.Fatalf("available for sale: %v", err)
	}
	if sale != 10000-600 {
		t.Fatalf("available for sale = %v, want 9400", sale)
	}
}

func TestConcurrentDeliveriesKeepCounterConsistent(t *testing.T) {
	e := memstore.NewEngine(start)
	lot := newLot(t, e, 500)

	orders := make([]sales.Order, 0, 40)
	for range 40 {
		orders = append(orders, newOrder(t, e, lot.ID, 10))
	}

	g, ctx := errgroup.WithContext(context.Background())
	for i, order := range orders {
		g.Go(func() error {
			_, err := e.Deliveries.RecordDelivery(ctx, delivery.RecordDeliveryInput{
				OrderID:           order.ID,
				LineItemID:        order.Items[0].ID,
				QuantityDelivered: float64(i%10 + 1),
			}, staff)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("deliveries: %v", err)
	}

	delivered := 0.0
	for _, order := range orders {
		got, err := e.Orders.GetOrder(context.Background(), order.ID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		delivered += got.Items[0].QuantityDelivered
	}
	if delivered != 220 {
		t.Fatalf("delivered = %v, want 220", delivered)
	}
	if got := e.Store.Lot(lot.ID).QuantityAvailable; got != 500-delivered {
		t.Fatalf("available = %v, want %v", got, 500-delivered)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
