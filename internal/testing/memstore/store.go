// Package memstore is an in-memory backend implementing every repository
// port, used by service and end-to-end tests. Faults can be injected per
// operation name to exercise partial failures.
package memstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/delivery"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/payments"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

const epsilon = 1e-9

// Store holds every table behind one mutex.
type Store struct {
	mu           sync.Mutex
	seq          int64
	now          func() time.Time
	faults       map[string]error
	lots         map[int64]inventory.StockLot
	reservations map[int64]inventory.Reservation
	orders       map[int64]sales.Order
	items        map[int64]sales.LineItem
	invoices     map[int64]int
	dispatches   []delivery.Dispatch
	payments     map[int64]payments.Payment
	entries      map[int64]payments.AccountingEntry
	events       []audit.Event
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:          time.Now,
		faults:       map[string]error{},
		lots:         map[int64]inventory.StockLot{},
		reservations: map[int64]inventory.Reservation{},
		orders:       map[int64]sales.Order{},
		items:        map[int64]sales.LineItem{},
		invoices:     map[int64]int{},
		payments:     map[int64]payments.Payment{},
		entries:      map[int64]payments.AccountingEntry{},
	}
}

// SetClock overrides the timestamp source for created rows.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Fail makes the named operation return err until Heal is called.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// Heal clears an injected fault.
func (s *Store) Heal(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faults, op)
}

// Inventory returns the inventory.RepositoryPort view.
func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{s} }

// Orders returns the sales.RepositoryPort view.
func (s *Store) Orders() *OrderRepo { return &OrderRepo{s} }

// Deliveries returns the delivery.RepositoryPort view.
func (s *Store) Deliveries() *DeliveryRepo { return &DeliveryRepo{s} }

// Payments returns the payments.RepositoryPort view.
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{s} }

// Ledger returns the payments.AccountingLedger view.
func (s *Store) Ledger() *Ledger { return &Ledger{s} }

// Audit returns the audit.Repository view.
func (s *Store) Audit() *AuditRepo { return &AuditRepo{s} }

// ============================================================================
// INSPECTION HELPERS
// ============================================================================

// Lot returns a lot regardless of faults.
func (s *Store) Lot(id int64) inventory.StockLot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lots[id]
}

// SetLotAvailable overwrites a lot's available counter.
func (s *Store) SetLotAvailable(id int64, qty float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot := s.lots[id]
	lot.QuantityAvailable = qty
	s.lots[id] = lot
}

// AddInvoice attaches an invoice row to an order.
func (s *Store) AddInvoice(orderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[orderID]++
}

// Reservation reports the reservation held by a line item.
func (s *Store) Reservation(lineItemID int64) (inventory.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[lineItemID]
	return res, ok
}

// Counts reports the rows left for an order across dependent tables.
func (s *Store) Counts(orderID int64) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{"invoices": s.invoices[orderID]}
	if _, ok := s.orders[orderID]; ok {
		out["orders"] = 1
	}
	for _, it := range s.items {
		if it.OrderID == orderID {
			out["items"]++
		}
	}
	for _, r := range s.reservations {
		if r.OrderID == orderID {
			out["reservations"]++
		}
	}
	for _, d := range s.dispatches {
		if d.OrderID == orderID {
			out["dispatches"]++
		}
	}
	for _, p := range s.payments {
		if p.OrderID == orderID {
			out["payments"]++
		}
	}
	for _, e := range s.entries {
		if e.OrderID == orderID {
			out["entries"]++
		}
	}
	return out
}

// Events returns the recorded audit events of an order, oldest first.
func (s *Store) Events(orderID int64) []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) fault(op string) error {
	if err, ok := s.faults[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, shared.ErrNotFound)
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func page[T any](rows []T, pageNum, perPage int) []T {
	pageNum, perPage = shared.NormalizePage(pageNum, perPage)
	start := (pageNum - 1) * perPage
	if start >= len(rows) {
		return nil
	}
	end := start + perPage
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}
