package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

const epsilon = 1e-9

// RepositoryPort abstracts delivery persistence.
type RepositoryPort interface {
	// ApplyDelivery moves the item from previous to d.CumulativeDelivered,
	// consumes a positive delta from the lot's available counter and appends d,
	// all in one transaction. It fails with shared.ErrConflict when the item no
	// longer holds previous.
	ApplyDelivery(ctx context.Context, d Dispatch, previous float64) (Dispatch, error)
	ListDispatches(ctx context.Context, orderID int64) ([]Dispatch, error)
	CountDispatches(ctx context.Context, orderID int64) (int, error)
	PurgeDispatches(ctx context.Context, orderID int64) (int64, error)
}

// OrderReader loads orders with their items.
type OrderReader interface {
	GetOrder(ctx context.Context, id int64) (sales.Order, error)
}

// Stock is the availability side of the inventory ledger.
type Stock interface {
	GetLot(ctx context.Context, id int64) (inventory.StockLot, error)
	AvailableForSale(ctx context.Context, q inventory.AvailabilityQuery) (float64, error)
	Shortage(lot inventory.StockLot, requested, available float64) error
}

// Observer receives domain signals for metrics.
type Observer interface {
	DeliveryRecorded(delta float64)
}

// Service records deliveries against order line items.
type Service struct {
	repo     RepositoryPort
	orders   OrderReader
	stock    Stock
	evidence EvidenceStore
	audit    sales.AuditRecorder
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a delivery service.
func NewService(repo RepositoryPort, orders OrderReader, stock Stock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, orders: orders, stock: stock, logger: logger, now: time.Now}
}

func (s *Service) SetEvidenceStore(e EvidenceStore) { s.evidence = e }
func (s *Service) SetAuditRecorder(a sales.AuditRecorder) { s.audit = a }
func (s *Service) SetObserver(o Observer) { s.observer = o }

// SetClock overrides the wall clock used for default delivery dates.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RecordDelivery sets an item's cumulative delivered quantity. Increases are
// checked against reservation-aware availability, excluding the item's own
// reservation, and consume the lot's available counter. Decreases pass the
// range check but leave the counter untouched. An unchanged quantity is a no-op.
func (s *Service) RecordDelivery(ctx context.Context, in RecordDeliveryInput, actor shared.Actor) (DeliveryResult, error) {
	if math.IsNaN(in.QuantityDelivered) {
		return DeliveryResult{}, fmt.Errorf("%w: delivered quantity required", shared.ErrValidation)
	}
	order, err := s.orders.GetOrder(ctx, in.OrderID)
	if err != nil {
		return DeliveryResult{}, err
	}
	if err := sales.EnsureMutable(order); err != nil {
		return DeliveryResult{}, err
	}
	item, ok := findItem(order, in.LineItemID)
	if !ok {
		return DeliveryResult{}, fmt.Errorf("line item %d: %w", in.LineItemID, shared.ErrNotFound)
	}
	if in.QuantityDelivered < 0 || in.QuantityDelivered > item.Quantity+epsilon {
		return DeliveryResult{}, fmt.Errorf("%w: %g outside 0..%g for line item %d",
			shared.ErrInvalidDeliveryRange, in.QuantityDelivered, item.Quantity, item.ID)
	}

	delta := in.QuantityDelivered - item.QuantityDelivered
	result := DeliveryResult{LineItemID: item.ID, QuantityDelivered: item.QuantityDelivered}
	if math.Abs(delta) <= epsilon {
		return result, nil
	}
	if delta > 0 {
		if err := s.ensureDeliverable(ctx, item, delta); err != nil {
			return DeliveryResult{}, err
		}
	} else {
		s.logger.Warn("delivered quantity reduced without restoring inventory",
			slog.Int64("order_id", order.ID),
			slog.Int64("line_item_id", item.ID),
			slog.Float64("delta", delta))
	}

	date := s.now().UTC()
	if in.DeliveryDate != nil && !in.DeliveryDate.IsZero() {
		date = in.DeliveryDate.UTC()
	}
	var ref string
	if in.Evidence != nil && s.evidence != nil {
		ref, err = s.evidence.Save(ctx, in.EvidenceName, in.Evidence)
		if err != nil {
			return DeliveryResult{}, fmt.Errorf("store delivery evidence: %w", err)
		}
	}

	dispatch, err := s.repo.ApplyDelivery(ctx, Dispatch{
		OrderID:             order.ID,
		LineItemID:          item.ID,
		StockLotID:          item.StockLotID,
		QuantityDelivered:   delta,
		CumulativeDelivered: in.QuantityDelivered,
		DeliveryDate:        date,
		EvidenceRef:         ref,
		RecordedBy:          actor.String(),
	}, item.QuantityDelivered)
	if err != nil {
		if ref != "" {
			if derr := s.evidence.Delete(ctx, ref); derr != nil {
				s.logger.Warn("discard delivery evidence", slog.String("evidence_ref", ref), slog.Any("error", derr))
			}
		}
		return DeliveryResult{}, fmt.Errorf("record delivery: %w", err)
	}

	if s.observer != nil {
		s.observer.DeliveryRecorded(delta)
	}
	s.record(ctx, audit.ActorEvent(order.ID, audit.DeliveryRecorded, actor, map[string]any{
		"line_item_id": item.ID,
		"stock_lot_id": item.StockLotID,
		"from":         item.QuantityDelivered,
		"to":           in.QuantityDelivered,
		"evidence_ref": ref,
	}))
	result.QuantityDelivered = in.QuantityDelivered
	result.Delta = delta
	result.Dispatch = &dispatch
	return result, nil
}

// ListDispatches returns the delivery history of an order.
func (s *Service) ListDispatches(ctx context.Context, orderID int64) ([]Dispatch, error) {
	if _, err := s.orders.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListDispatches(ctx, orderID)
}

// CountDispatches reports how many dispatches an order has.
func (s *Service) CountDispatches(ctx context.Context, orderID int64) (int, error) {
	return s.repo.CountDispatches(ctx, orderID)
}

// PurgeDispatches removes an order's delivery history.
func (s *Service) PurgeDispatches(ctx context.Context, orderID int64) (int64, error) {
	return s.repo.PurgeDispatches(ctx, orderID)
}

func (s *Service) ensureDeliverable(ctx context.Context, item sales.LineItem, delta float64) error {
	lot, err := s.stock.GetLot(ctx, item.StockLotID)
	if err != nil {
		return err
	}
	available, err := s.stock.AvailableForSale(ctx, inventory.AvailabilityQuery{
		StockLotID:        item.StockLotID,
		ExcludeLineItemID: item.ID,
	})
	if err != nil {
		return fmt.Errorf("available for sale: %w", err)
	}
	if delta > available+epsilon {
		return s.stock.Shortage(lot, delta, available)
	}
	return nil
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("audit record failed", slog.String("event_type", event.EventType), slog.Any("error", err))
	}
}

func findItem(o sales.Order, itemID int64) (sales.LineItem, bool) {
	for _, it := range o.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return sales.LineItem{}, false
}
