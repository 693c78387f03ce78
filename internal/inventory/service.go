package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// epsilon absorbs float noise in quantity comparisons.
const epsilon = 1e-9

// RepositoryPort abstracts lot and reservation persistence.
type RepositoryPort interface {
	CreateLot(ctx context.Context, lot StockLot) (StockLot, error)
	GetLot(ctx context.Context, id int64) (StockLot, error)
	ListLots(ctx context.Context, filter LotFilter) ([]StockLot, int, error)
	AddWaste(ctx context.Context, lotID int64, qty float64) (StockLot, error)

	// SumDelivered totals quantity delivered across every line item drawing on the lot.
	SumDelivered(ctx context.Context, lotID int64) (float64, error)
	// SumOutstandingReserved totals max(reserved - delivered, 0) over reservations on
	// the lot whose order is not COMPLETED, skipping the excluded order and item.
	SumOutstandingReserved(ctx context.Context, q AvailabilityQuery) (float64, error)

	GetReservation(ctx context.Context, lineItemID int64) (Reservation, error)
	// PutReservation removes any reservation of the line item and inserts res as one unit.
	PutReservation(ctx context.Context, res Reservation) (Reservation, error)
	DeleteReservation(ctx context.Context, lineItemID int64) error
	DeleteOrderReservations(ctx context.Context, orderID int64) (int64, error)
}

// Observer receives domain signals for metrics.
type Observer interface {
	ReservationRejected()
}

// Service implements the inventory ledger and the reservation manager.
type Service struct {
	repo     RepositoryPort
	logger   *slog.Logger
	observer Observer
	printer  *message.Printer
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, printer: message.NewPrinter(language.English)}
}

// SetObserver wires a metrics observer.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// CreateLot registers a produced lot with its available counter at full quantity.
func (s *Service) CreateLot(ctx context.Context, req CreateLotRequest) (StockLot, error) {
	if strings.TrimSpace(req.ProductType) == "" || strings.TrimSpace(req.Unit) == "" {
		return StockLot{}, fmt.Errorf("%w: product type and unit required", shared.ErrValidation)
	}
	if req.QuantityCreated <= 0 {
		return StockLot{}, fmt.Errorf("%w: quantity created must be positive", shared.ErrValidation)
	}
	return s.repo.CreateLot(ctx, StockLot{
		ProductType:       strings.TrimSpace(req.ProductType),
		BatchReference:    strings.TrimSpace(req.BatchReference),
		Unit:              strings.TrimSpace(req.Unit),
		QuantityCreated:   req.QuantityCreated,
		QuantityAvailable: req.QuantityCreated,
	})
}

// GetLot returns a lot by id.
func (s *Service) GetLot(ctx context.Context, id int64) (StockLot, error) {
	return s.repo.GetLot(ctx, id)
}

// ListLots pages through lots.
func (s *Service) ListLots(ctx context.Context, filter LotFilter) ([]StockLot, int, error) {
	return s.repo.ListLots(ctx, filter)
}

// RecordWaste books discarded quantity; it lowers display availability only.
func (s *Service) RecordWaste(ctx context.Context, lotID int64, req RecordWasteRequest) (StockLot, error) {
	if req.Quantity <= 0 {
		return StockLot{}, fmt.Errorf("%w: waste quantity must be positive", shared.ErrValidation)
	}
	lot, err := s.repo.GetLot(ctx, lotID)
	if err != nil {
		return StockLot{}, err
	}
	display, err := s.displayAvailable(ctx, lot)
	if err != nil {
		return StockLot{}, err
	}
	if req.Quantity > display+epsilon {
		return StockLot{}, s.shortage(lot, req.Quantity, display)
	}
	return s.repo.AddWaste(ctx, lotID, req.Quantity)
}

// AvailableForDisplay is the creation-time check: produced minus delivered minus
// recorded waste. Live reservations are ignored, matching what a catalog shows.
func (s *Service) AvailableForDisplay(ctx context.Context, lotID int64) (float64, error) {
	lot, err := s.repo.GetLot(ctx, lotID)
	if err != nil {
		return 0, err
	}
	return s.displayAvailable(ctx, lot)
}

// AvailableForSale is the reservation-aware check: produced minus delivered minus
// outstanding reservations of uncompleted orders. Waste is not subtracted.
func (s *Service) AvailableForSale(ctx context.Context, q AvailabilityQuery) (float64, error) {
	lot, err := s.repo.GetLot(ctx, q.StockLotID)
	if err != nil {
		return 0, err
	}
	return s.saleAvailable(ctx, lot, q)
}

// Availability returns both figures with their components.
func (s *Service) Availability(ctx context.Context, lotID int64) (Availability, error) {
	lot, err := s.repo.GetLot(ctx, lotID)
	if err != nil {
		return Availability{}, err
	}
	delivered, err := s.repo.SumDelivered(ctx, lotID)
	if err != nil {
		return Availability{}, fmt.Errorf("sum delivered: %w", err)
	}
	reserved, err := s.repo.SumOutstandingReserved(ctx, AvailabilityQuery{StockLotID: lotID})
	if err != nil {
		return Availability{}, fmt.Errorf("sum reserved: %w", err)
	}
	return Availability{
		StockLotID:        lot.ID,
		Unit:              lot.Unit,
		QuantityCreated:   lot.QuantityCreated,
		QuantityAvailable: lot.QuantityAvailable,
		Delivered:         delivered,
		Reserved:          reserved,
		Wasted:            lot.QuantityWasted,
		ForSale:           floor(lot.QuantityCreated - delivered - reserved),
		ForDisplay:        floor(lot.QuantityCreated - delivered - lot.QuantityWasted),
	}, nil
}

// EnsureReservable validates qty against both availability figures without writing.
// The reservation-aware figure excludes the line item's own reservation.
func (s *Service) EnsureReservable(ctx context.Context, lotID, lineItemID int64, qty float64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	lot, err := s.repo.GetLot(ctx, lotID)
	if err != nil {
		return err
	}
	display, err := s.displayAvailable(ctx, lot)
	if err != nil {
		return err
	}
	sale, err := s.saleAvailable(ctx, lot, AvailabilityQuery{StockLotID: lotID, ExcludeLineItemID: lineItemID})
	if err != nil {
		return err
	}
	available := math.Min(display, sale)
	if qty > available+epsilon {
		if s.observer != nil {
			s.observer.ReservationRejected()
		}
		return s.shortage(lot, qty, available)
	}
	return nil
}

// Reserve validates and writes a reservation for a line item.
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (Reservation, error) {
	if in.OrderID == 0 || in.LineItemID == 0 || in.StockLotID == 0 {
		return Reservation{}, fmt.Errorf("%w: order, line item and lot required", shared.ErrValidation)
	}
	if in.Quantity <= 0 {
		return Reservation{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if in.Delivered < 0 || in.Delivered > in.Quantity+epsilon {
		return Reservation{}, fmt.Errorf("%w: delivered portion out of range", shared.ErrValidation)
	}
	if outstanding := in.Quantity - in.Delivered; outstanding > epsilon {
		if err := s.EnsureReservable(ctx, in.StockLotID, in.LineItemID, outstanding); err != nil {
			return Reservation{}, err
		}
	}
	return s.repo.PutReservation(ctx, Reservation{
		OrderID:          in.OrderID,
		LineItemID:       in.LineItemID,
		StockLotID:       in.StockLotID,
		QuantityReserved: in.Quantity,
	})
}

// Replace swaps a line item's reservation to a new lot and quantity. The old row is
// removed and the new one inserted atomically with respect to the item.
func (s *Service) Replace(ctx context.Context, in ReplaceInput) (Reservation, error) {
	if in.OrderID == 0 || in.LineItemID == 0 || in.StockLotID == 0 {
		return Reservation{}, fmt.Errorf("%w: order, line item and lot required", shared.ErrValidation)
	}
	if err := s.EnsureReservable(ctx, in.StockLotID, in.LineItemID, in.Quantity); err != nil {
		return Reservation{}, err
	}
	return s.repo.PutReservation(ctx, Reservation{
		OrderID:          in.OrderID,
		LineItemID:       in.LineItemID,
		StockLotID:       in.StockLotID,
		QuantityReserved: in.Quantity,
	})
}

// Restore writes back a reservation captured before a failed edit. It skips
// the availability check since the reservation held before the edit began.
func (s *Service) Restore(ctx context.Context, res Reservation) error {
	if _, err := s.repo.PutReservation(ctx, res); err != nil {
		return fmt.Errorf("restore reservation: %w", err)
	}
	return nil
}

// Release deletes the reservation for a line item. Missing reservations are ignored.
func (s *Service) Release(ctx context.Context, lineItemID int64) error {
	if err := s.repo.DeleteReservation(ctx, lineItemID); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

// ReleaseOrder deletes every reservation of an order.
func (s *Service) ReleaseOrder(ctx context.Context, orderID int64) (int64, error) {
	n, err := s.repo.DeleteOrderReservations(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("release order reservations: %w", err)
	}
	if n > 0 {
		s.logger.Debug("released order reservations", slog.Int64("order_id", orderID), slog.Int64("count", n))
	}
	return n, nil
}

// GetReservation returns the reservation held by a line item.
func (s *Service) GetReservation(ctx context.Context, lineItemID int64) (Reservation, error) {
	return s.repo.GetReservation(ctx, lineItemID)
}

func (s *Service) displayAvailable(ctx context.Context, lot StockLot) (float64, error) {
	delivered, err := s.repo.SumDelivered(ctx, lot.ID)
	if err != nil {
		return 0, fmt.Errorf("sum delivered: %w", err)
	}
	return floor(lot.QuantityCreated - delivered - lot.QuantityWasted), nil
}

func (s *Service) saleAvailable(ctx context.Context, lot StockLot, q AvailabilityQuery) (float64, error) {
	delivered, err := s.repo.SumDelivered(ctx, lot.ID)
	if err != nil {
		return 0, fmt.Errorf("sum delivered: %w", err)
	}
	q.StockLotID = lot.ID
	reserved, err := s.repo.SumOutstandingReserved(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("sum reserved: %w", err)
	}
	return floor(lot.QuantityCreated - delivered - reserved), nil
}

// shortage builds the InsufficientInventory error naming amounts, lot and unit.
func (s *Service) shortage(lot StockLot, requested, available float64) error {
	return fmt.Errorf("%w: requested %s %s from lot %s, available %s %s",
		shared.ErrInsufficientInventory,
		s.formatQty(requested), lot.Unit,
		lot.Label(),
		s.formatQty(available), lot.Unit,
	)
}

// Shortage exposes the shortfall message for callers validating against their own figure.
func (s *Service) Shortage(lot StockLot, requested, available float64) error {
	return s.shortage(lot, requested, available)
}

func (s *Service) formatQty(v float64) string {
	return s.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
}

func floor(v float64) float64 {
	if v < epsilon {
		return 0
	}
	return v
}
