package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// OrderRepo implements sales.RepositoryPort.
type OrderRepo struct{ s *Store }

var _ sales.RepositoryPort = (*OrderRepo)(nil)

// ============================================================================
// ORDERS
// ============================================================================

func (r *OrderRepo) CreateOrder(_ context.Context, o sales.Order) (sales.Order, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateOrder"); err != nil {
		return sales.Order{}, err
	}
	for _, existing := range s.orders {
		if existing.OrderNumber == o.OrderNumber {
			return sales.Order{}, fmt.Errorf("%s: %w", o.OrderNumber, sales.ErrDuplicateOrderNumber)
		}
	}
	o.ID = s.nextID()
	o.TotalAmount = 0
	o.Items = nil
	o.CreatedAt = s.now().UTC()
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = o
	return o, nil
}

func (r *OrderRepo) GetOrder(_ context.Context, id int64) (sales.Order, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetOrder"); err != nil {
		return sales.Order{}, err
	}
	o, ok := s.orders[id]
	if !ok {
		return sales.Order{}, notFound("order", id)
	}
	return o, nil
}

func (r *OrderRepo) ListOrders(_ context.Context, f sales.ListFilter) ([]sales.Order, int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []sales.Order
	for _, o := range s.orders {
		switch {
		case o.DeletionStartedAt != nil:
		case f.Status != "" && o.Status != f.Status:
		case f.CustomerID > 0 && o.CustomerID != f.CustomerID:
		case f.OnHold != nil && o.IsOnHold != *f.OnHold:
		case f.Locked != nil && o.IsLocked != *f.Locked:
		default:
			rows = append(rows, o)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].OrderDate.Equal(rows[j].OrderDate) {
			return rows[i].OrderDate.After(rows[j].OrderDate)
		}
		return rows[i].ID > rows[j].ID
	})
	return page(rows, f.Page, f.PerPage), len(rows), nil
}

func (r *OrderRepo) UpdateOrder(_ context.Context, o sales.Order) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpdateOrder"); err != nil {
		return err
	}
	cur, ok := s.orders[o.ID]
	if !ok {
		return notFound("order", o.ID)
	}
	cur.Status = o.Status
	cur.PaymentStatus = o.PaymentStatus
	cur.IsOnHold, cur.HoldReason, cur.HeldBy, cur.HeldAt = o.IsOnHold, o.HoldReason, o.HeldBy, o.HeldAt
	cur.IsLocked, cur.LockedAt, cur.LockedBy, cur.UnlockDeadline = o.IsLocked, o.LockedAt, o.LockedBy, o.UnlockDeadline
	cur.DiscountAmount = o.DiscountAmount
	cur.CompletedAt = o.CompletedAt
	cur.UpdatedAt = s.now().UTC()
	s.orders[o.ID] = cur
	return nil
}

func (r *OrderRepo) MarkDeletionStarted(_ context.Context, id int64, at time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("MarkDeletionStarted"); err != nil {
		return err
	}
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	if o.DeletionStartedAt == nil {
		o.DeletionStartedAt = &at
		s.orders[id] = o
	}
	return nil
}

func (r *OrderRepo) ListStaleDeletions(_ context.Context, before time.Time) ([]int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, id := range sortedKeys(s.orders) {
		if at := s.orders[id].DeletionStartedAt; at != nil && at.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *OrderRepo) BackfillCompletion(_ context.Context) ([]int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, id := range sortedKeys(s.orders) {
		o := s.orders[id]
		if o.Status != sales.StatusCompleted || o.CompletedAt != nil {
			continue
		}
		stamp := o.UpdatedAt
		var last time.Time
		for _, p := range s.payments {
			if p.OrderID == id && p.PaymentDate.After(last) {
				last = p.PaymentDate
			}
		}
		if !last.IsZero() {
			stamp = last
		}
		o.CompletedAt = &stamp
		s.orders[id] = o
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *OrderRepo) MaxOrderSequence(_ context.Context) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("MaxOrderSequence"); err != nil {
		return 0, err
	}
	var max int64
	for _, o := range s.orders {
		if n, ok := sales.ParseOrderNumber(o.OrderNumber); ok && n > max {
			max = n
		}
	}
	return max, nil
}

// ============================================================================
// LINE ITEMS
// ============================================================================

func (r *OrderRepo) ListItems(_ context.Context, orderID int64) ([]sales.LineItem, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sales.LineItem
	for _, id := range sortedKeys(s.items) {
		if it := s.items[id]; it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *OrderRepo) GetItem(_ context.Context, orderID, itemID int64) (sales.LineItem, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok || it.OrderID != orderID {
		return sales.LineItem{}, notFound("line item", itemID)
	}
	return it, nil
}

func (r *OrderRepo) InsertItem(_ context.Context, li sales.LineItem) (sales.LineItem, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertItem"); err != nil {
		return sales.LineItem{}, err
	}
	li.ID = s.nextID()
	li.QuantityDelivered = 0
	li.CreatedAt = s.now().UTC()
	li.UpdatedAt = li.CreatedAt
	s.items[li.ID] = li
	return li, nil
}

func (r *OrderRepo) UpdateItem(_ context.Context, li sales.LineItem) (sales.LineItem, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpdateItem"); err != nil {
		return sales.LineItem{}, err
	}
	cur, ok := s.items[li.ID]
	if !ok {
		return sales.LineItem{}, notFound("line item", li.ID)
	}
	if cur.QuantityDelivered > epsilon {
		return sales.LineItem{}, fmt.Errorf("line item %d: %w", li.ID, shared.ErrConflict)
	}
	cur.StockLotID, cur.Quantity, cur.UnitPrice, cur.LineTotal = li.StockLotID, li.Quantity, li.UnitPrice, li.LineTotal
	cur.UpdatedAt = s.now().UTC()
	s.items[li.ID] = cur
	return cur, nil
}

func (r *OrderRepo) DeleteItem(_ context.Context, itemID int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, itemID)
	return nil
}

func (r *OrderRepo) RecomputeTotal(_ context.Context, orderID int64) (float64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("RecomputeTotal"); err != nil {
		return 0, err
	}
	o, ok := s.orders[orderID]
	if !ok {
		return 0, notFound("order", orderID)
	}
	var total float64
	for _, it := range s.items {
		if it.OrderID == orderID {
			total += it.LineTotal
		}
	}
	o.TotalAmount = math.Round(total*100) / 100
	s.orders[orderID] = o
	return o.TotalAmount, nil
}

// ============================================================================
// DELETION
// ============================================================================

func (r *OrderRepo) RestoreDeliveredItem(_ context.Context, li sales.LineItem) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("RestoreDeliveredItem"); err != nil {
		return false, err
	}
	cur, ok := s.items[li.ID]
	if !ok || cur.InventoryRestored {
		return false, nil
	}
	lot, ok := s.lots[cur.StockLotID]
	if !ok {
		return false, notFound("stock lot", cur.StockLotID)
	}
	lot.QuantityAvailable = math.Min(lot.QuantityAvailable+cur.QuantityDelivered, lot.QuantityCreated)
	s.lots[lot.ID] = lot
	cur.InventoryRestored = true
	s.items[cur.ID] = cur
	return true, nil
}

func (r *OrderRepo) CountInvoices(_ context.Context, orderID int64) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoices[orderID], nil
}

func (r *OrderRepo) DeleteInvoices(_ context.Context, orderID int64) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DeleteInvoices"); err != nil {
		return 0, err
	}
	n := s.invoices[orderID]
	delete(s.invoices, orderID)
	return int64(n), nil
}

func (r *OrderRepo) DeleteItems(_ context.Context, orderID int64) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DeleteItems"); err != nil {
		return 0, err
	}
	var n int64
	for id, it := range s.items {
		if it.OrderID == orderID {
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

func (r *OrderRepo) DeleteOrder(_ context.Context, orderID int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DeleteOrder"); err != nil {
		return err
	}
	if _, ok := s.orders[orderID]; !ok {
		return notFound("order", orderID)
	}
	delete(s.orders, orderID)
	return nil
}
