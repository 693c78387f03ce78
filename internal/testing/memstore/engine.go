package memstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/delivery"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/payments"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
)

// Clock is a settable time source shared by every service of an Engine.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock { return &Clock{now: t} }

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// RetryRecorder collects scheduled deletion retries.
type RetryRecorder struct {
	mu  sync.Mutex
	ids []int64
}

func (r *RetryRecorder) ScheduleDeletionRetry(_ context.Context, orderID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, orderID)
	return nil
}

// Scheduled returns the order ids queued so far.
func (r *RetryRecorder) Scheduled() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

// Engine wires every service onto one Store the way the server does.
type Engine struct {
	Store      *Store
	Clock      *Clock
	Retries    *RetryRecorder
	Inventory  *inventory.Service
	Orders     *sales.Service
	Deliveries *delivery.Service
	Payments   *payments.Service
	Audit      *audit.Service
}

// NewEngine builds an engine whose clock starts at start.
func NewEngine(start time.Time) *Engine {
	logger := slog.New(slog.DiscardHandler)
	store := New()
	clock := NewClock(start)
	store.SetClock(clock.Now)

	auditSvc := audit.NewService(store.Audit(), logger)
	auditSvc.SetClock(clock.Now)

	stock := inventory.NewService(store.Inventory(), logger)
	orders := sales.NewService(store.Orders(), stock, sales.NewRedisNumberGenerator(nil, store.Orders(), logger), logger)
	orders.SetClock(clock.Now)
	orders.SetAuditRecorder(auditSvc)

	pay := payments.NewService(store.Payments(), orders, logger)
	pay.SetAccountingLedger(store.Ledger())
	pay.SetAuditRecorder(auditSvc)

	deliveries := delivery.NewService(store.Deliveries(), orders, stock, logger)
	deliveries.SetClock(clock.Now)
	deliveries.SetAuditRecorder(auditSvc)

	retries := &RetryRecorder{}
	orders.SetPaymentLedger(pay)
	orders.SetDispatchLog(deliveries)
	orders.SetRetryScheduler(retries)

	return &Engine{
		Store:      store,
		Clock:      clock,
		Retries:    retries,
		Inventory:  stock,
		Orders:     orders,
		Deliveries: deliveries,
		Payments:   pay,
		Audit:      auditSvc,
	}
}
