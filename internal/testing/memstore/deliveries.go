package memstore

import (
	"context"
	"fmt"
	"math"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/delivery"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// DeliveryRepo implements delivery.RepositoryPort.
type DeliveryRepo struct{ s *Store }

var _ delivery.RepositoryPort = (*DeliveryRepo)(nil)

func (r *DeliveryRepo) ApplyDelivery(_ context.Context, d delivery.Dispatch, previous float64) (delivery.Dispatch, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ApplyDelivery"); err != nil {
		return delivery.Dispatch{}, err
	}
	item, ok := s.items[d.LineItemID]
	if !ok {
		return delivery.Dispatch{}, notFound("line item", d.LineItemID)
	}
	if math.Abs(item.QuantityDelivered-previous) > epsilon {
		return delivery.Dispatch{}, fmt.Errorf("line item %d: %w", d.LineItemID, shared.ErrConflict)
	}
	if d.QuantityDelivered > 0 {
		lot, ok := s.lots[d.StockLotID]
		if !ok {
			return delivery.Dispatch{}, notFound("stock lot", d.StockLotID)
		}
		lot.QuantityAvailable = math.Max(lot.QuantityAvailable-d.QuantityDelivered, 0)
		s.lots[lot.ID] = lot
	}
	item.QuantityDelivered = d.CumulativeDelivered
	item.UpdatedAt = s.now().UTC()
	s.items[item.ID] = item

	d.ID = s.nextID()
	d.CreatedAt = s.now().UTC()
	s.dispatches = append(s.dispatches, d)
	return d, nil
}

func (r *DeliveryRepo) ListDispatches(_ context.Context, orderID int64) ([]delivery.Dispatch, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []delivery.Dispatch
	for _, d := range s.dispatches {
		if d.OrderID == orderID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *DeliveryRepo) CountDispatches(ctx context.Context, orderID int64) (int, error) {
	rows, err := r.ListDispatches(ctx, orderID)
	return len(rows), err
}

func (r *DeliveryRepo) PurgeDispatches(_ context.Context, orderID int64) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("PurgeDispatches"); err != nil {
		return 0, err
	}
	kept := s.dispatches[:0]
	var n int64
	for _, d := range s.dispatches {
		if d.OrderID == orderID {
			n++
			continue
		}
		kept = append(kept, d)
	}
	s.dispatches = kept
	return n, nil
}
