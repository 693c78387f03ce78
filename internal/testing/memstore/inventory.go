package memstore

import (
	"context"
	"math"
	"strings"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
)

// InventoryRepo implements inventory.RepositoryPort.
type InventoryRepo struct{ s *Store }

var _ inventory.RepositoryPort = (*InventoryRepo)(nil)

func (r *InventoryRepo) CreateLot(_ context.Context, lot inventory.StockLot) (inventory.StockLot, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateLot"); err != nil {
		return inventory.StockLot{}, err
	}
	lot.ID = s.nextID()
	lot.CreatedAt = s.now().UTC()
	lot.UpdatedAt = lot.CreatedAt
	s.lots[lot.ID] = lot
	return lot, nil
}

func (r *InventoryRepo) GetLot(_ context.Context, id int64) (inventory.StockLot, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetLot"); err != nil {
		return inventory.StockLot{}, err
	}
	lot, ok := s.lots[id]
	if !ok {
		return inventory.StockLot{}, notFound("stock lot", id)
	}
	return lot, nil
}

func (r *InventoryRepo) ListLots(_ context.Context, filter inventory.LotFilter) ([]inventory.StockLot, int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []inventory.StockLot
	for _, id := range sortedKeys(s.lots) {
		lot := s.lots[id]
		if pt := strings.TrimSpace(filter.ProductType); pt != "" && lot.ProductType != pt {
			continue
		}
		rows = append(rows, lot)
	}
	return page(rows, filter.Page, filter.PerPage), len(rows), nil
}

func (r *InventoryRepo) AddWaste(_ context.Context, lotID int64, qty float64) (inventory.StockLot, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[lotID]
	if !ok {
		return inventory.StockLot{}, notFound("stock lot", lotID)
	}
	lot.QuantityWasted = math.Min(lot.QuantityWasted+qty, lot.QuantityCreated)
	lot.UpdatedAt = s.now().UTC()
	s.lots[lotID] = lot
	return lot, nil
}

func (r *InventoryRepo) SumDelivered(_ context.Context, lotID int64) (float64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("SumDelivered"); err != nil {
		return 0, err
	}
	var total float64
	for _, it := range s.items {
		if it.StockLotID == lotID {
			total += it.QuantityDelivered
		}
	}
	return total, nil
}

func (r *InventoryRepo) SumOutstandingReserved(_ context.Context, q inventory.AvailabilityQuery) (float64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, res := range s.reservations {
		if res.StockLotID != q.StockLotID {
			continue
		}
		if q.ExcludeOrderID != 0 && res.OrderID == q.ExcludeOrderID {
			continue
		}
		if q.ExcludeLineItemID != 0 && res.LineItemID == q.ExcludeLineItemID {
			continue
		}
		order, ok := s.orders[res.OrderID]
		if !ok || order.Status == sales.StatusCompleted {
			continue
		}
		total += math.Max(res.QuantityReserved-s.items[res.LineItemID].QuantityDelivered, 0)
	}
	return total, nil
}

func (r *InventoryRepo) GetReservation(_ context.Context, lineItemID int64) (inventory.Reservation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[lineItemID]
	if !ok {
		return inventory.Reservation{}, notFound("reservation", lineItemID)
	}
	return res, nil
}

func (r *InventoryRepo) PutReservation(_ context.Context, res inventory.Reservation) (inventory.Reservation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("PutReservation"); err != nil {
		return inventory.Reservation{}, err
	}
	res.ID = s.nextID()
	res.CreatedAt = s.now().UTC()
	s.reservations[res.LineItemID] = res
	return res, nil
}

func (r *InventoryRepo) DeleteReservation(_ context.Context, lineItemID int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DeleteReservation"); err != nil {
		return err
	}
	delete(s.reservations, lineItemID)
	return nil
}

func (r *InventoryRepo) DeleteOrderReservations(_ context.Context, orderID int64) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DeleteOrderReservations"); err != nil {
		return 0, err
	}
	var n int64
	for id, res := range s.reservations {
		if res.OrderID == orderID {
			delete(s.reservations, id)
			n++
		}
	}
	return n, nil
}
