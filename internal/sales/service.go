package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// DefaultUnlockGrace is how long a locked order may still be unlocked.
const DefaultUnlockGrace = 7 * 24 * time.Hour

const (
	// epsilon absorbs float noise in quantity comparisons.
	epsilon         = 1e-9
	numberAttempts  = 3
	listConcurrency = 8
)

// ErrDuplicateOrderNumber is returned by the repository when a generated number is taken.
var ErrDuplicateOrderNumber = errors.New("order number already in use")

// RepositoryPort abstracts order persistence.
type RepositoryPort interface {
	CreateOrder(ctx context.Context, order Order) (Order, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error)
	// UpdateOrder writes the mutable header fields of order.
	UpdateOrder(ctx context.Context, order Order) error
	MarkDeletionStarted(ctx context.Context, id int64, at time.Time) error
	ListStaleDeletions(ctx context.Context, before time.Time) ([]int64, error)
	// BackfillCompletion stamps completed_at on COMPLETED orders missing it from
	// their latest payment date and returns the touched ids.
	BackfillCompletion(ctx context.Context) ([]int64, error)
	MaxOrderSequence(ctx context.Context) (int64, error)

	ListItems(ctx context.Context, orderID int64) ([]LineItem, error)
	GetItem(ctx context.Context, orderID, itemID int64) (LineItem, error)
	InsertItem(ctx context.Context, item LineItem) (LineItem, error)
	UpdateItem(ctx context.Context, item LineItem) (LineItem, error)
	DeleteItem(ctx context.Context, itemID int64) error
	// RecomputeTotal sets total_amount to the sum of line totals and returns it.
	RecomputeTotal(ctx context.Context, orderID int64) (float64, error)

	// RestoreDeliveredItem returns the item's delivered quantity to its lot and
	// flags the item restored in one transaction. Already-restored items report false.
	RestoreDeliveredItem(ctx context.Context, item LineItem) (bool, error)
	CountInvoices(ctx context.Context, orderID int64) (int, error)
	DeleteInvoices(ctx context.Context, orderID int64) (int64, error)
	DeleteItems(ctx context.Context, orderID int64) (int64, error)
	DeleteOrder(ctx context.Context, orderID int64) error
}

// Reservations is the reservation manager as seen by orders.
type Reservations interface {
	EnsureReservable(ctx context.Context, lotID, lineItemID int64, qty float64) error
	Reserve(ctx context.Context, in inventory.ReserveInput) (inventory.Reservation, error)
	Replace(ctx context.Context, in inventory.ReplaceInput) (inventory.Reservation, error)
	Release(ctx context.Context, lineItemID int64) error
	ReleaseOrder(ctx context.Context, orderID int64) (int64, error)
	GetReservation(ctx context.Context, lineItemID int64) (inventory.Reservation, error)
	Restore(ctx context.Context, res inventory.Reservation) error
}

// PaymentLedger is the slice of the payment ledger orders depend on.
type PaymentLedger interface {
	DeriveStatus(ctx context.Context, orderID int64, actor shared.Actor) (PaymentStatus, error)
	CountPayments(ctx context.Context, orderID int64) (int, error)
	PurgeAccountingEntries(ctx context.Context, orderID int64) (int64, error)
	PurgePayments(ctx context.Context, orderID int64) (int64, error)
}

// DispatchLog is the delivery history cleared on deletion.
type DispatchLog interface {
	CountDispatches(ctx context.Context, orderID int64) (int, error)
	PurgeDispatches(ctx context.Context, orderID int64) (int64, error)
}

// AuditRecorder appends audit events.
type AuditRecorder interface {
	Record(ctx context.Context, event audit.Event) error
}

// NumberGenerator issues human readable order numbers.
type NumberGenerator interface {
	Next(ctx context.Context) (string, error)
}

// CustomerDirectory resolves customer types.
type CustomerDirectory interface {
	CustomerType(ctx context.Context, customerID int64) (string, error)
}

// RetryScheduler queues a background retry of a failed deletion.
type RetryScheduler interface {
	ScheduleDeletionRetry(ctx context.Context, orderID int64) error
}

// Observer receives domain signals for metrics.
type Observer interface {
	OrderCreated()
	OrderCompleted()
	DeletionStepFailed(step string)
}

// Service implements the order line editor, lifecycle state machine and
// deletion workflow.
type Service struct {
	repo        RepositoryPort
	stock       Reservations
	numbers     NumberGenerator
	logger      *slog.Logger
	audit       AuditRecorder
	payments    PaymentLedger
	dispatches  DispatchLog
	customers   CustomerDirectory
	retries     RetryScheduler
	observer    Observer
	now         func() time.Time
	unlockGrace time.Duration
}

// NewService constructs the order service.
func NewService(repo RepositoryPort, stock Reservations, numbers NumberGenerator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		stock:       stock,
		numbers:     numbers,
		logger:      logger,
		now:         time.Now,
		unlockGrace: DefaultUnlockGrace,
	}
}

func (s *Service) SetAuditRecorder(a AuditRecorder) { s.audit = a }
func (s *Service) SetPaymentLedger(p PaymentLedger) { s.payments = p }
func (s *Service) SetDispatchLog(d DispatchLog) { s.dispatches = d }
func (s *Service) SetCustomerDirectory(c CustomerDirectory) { s.customers = c }
func (s *Service) SetRetryScheduler(r RetryScheduler) { s.retries = r }
func (s *Service) SetObserver(o Observer) { s.observer = o }

// SetClock overrides the wall clock used for hold, lock and deletion stamps.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetUnlockGrace overrides the unlock window length.
func (s *Service) SetUnlockGrace(d time.Duration) {
	if d > 0 {
		s.unlockGrace = d
	}
}

// EnsureMutable rejects writes to locked or partially deleted orders.
func EnsureMutable(o Order) error {
	if o.IsLocked {
		return fmt.Errorf("order %s: %w", o.OrderNumber, shared.ErrOrderLocked)
	}
	if o.DeletionStartedAt != nil {
		return fmt.Errorf("order %s: %w", o.OrderNumber, shared.ErrDeletionInProgress)
	}
	return nil
}

// ============================================================================
// ORDER OPERATIONS
// ============================================================================

// CreateOrder opens an order and reserves its initial items. Validation of every
// item, including the per-lot aggregate quantity, happens before the first write.
// A failure after the header is written surfaces as *StepError.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest, actor shared.Actor) (Order, error) {
	if req.CustomerID <= 0 {
		return Order{}, fmt.Errorf("%w: customer required", shared.ErrValidation)
	}
	if req.DiscountAmount < 0 {
		return Order{}, fmt.Errorf("%w: discount must not be negative", shared.ErrValidation)
	}
	perLot := make(map[int64]float64)
	var gross float64
	for i, in := range req.Items {
		if err := in.validate(); err != nil {
			return Order{}, fmt.Errorf("%w: item %d: %v", shared.ErrValidation, i+1, err)
		}
		perLot[in.StockLotID] += in.Quantity
		gross += lineTotal(in.Quantity, in.UnitPrice)
	}
	if req.DiscountAmount > gross+epsilon {
		return Order{}, fmt.Errorf("%w: discount exceeds order total", shared.ErrValidation)
	}
	if s.customers != nil {
		if _, err := s.customers.CustomerType(ctx, req.CustomerID); err != nil {
			return Order{}, fmt.Errorf("customer %d: %w", req.CustomerID, err)
		}
	}
	for lotID, qty := range perLot {
		if err := s.stock.EnsureReservable(ctx, lotID, 0, qty); err != nil {
			return Order{}, err
		}
	}

	orderDate := s.now().UTC()
	if req.OrderDate != nil {
		orderDate = req.OrderDate.UTC()
	}
	order, err := s.insertOrder(ctx, Order{
		CustomerID:     req.CustomerID,
		OrderDate:      orderDate,
		Status:         StatusCreated,
		PaymentStatus:  PaymentPending,
		DiscountAmount: req.DiscountAmount,
		CreatedBy:      actor.String(),
	})
	if err != nil {
		return Order{}, &StepError{Step: 1, Name: "create order", Err: err}
	}

	for i, in := range req.Items {
		if _, err := s.addItem(ctx, order.ID, in); err != nil {
			return order, &StepError{OrderID: order.ID, Step: i + 2, Name: fmt.Sprintf("add item %d", i+1), Err: err}
		}
	}
	if len(req.Items) > 0 {
		if _, err := s.repo.RecomputeTotal(ctx, order.ID); err != nil {
			return order, &StepError{OrderID: order.ID, Step: len(req.Items) + 2, Name: "recompute total", Err: err}
		}
	}

	s.record(ctx, audit.ActorEvent(order.ID, audit.OrderCreated, actor, map[string]any{
		"order_number": order.OrderNumber,
		"items":        len(req.Items),
	}))
	if s.observer != nil {
		s.observer.OrderCreated()
	}
	return s.GetOrder(ctx, order.ID)
}

func (s *Service) insertOrder(ctx context.Context, order Order) (Order, error) {
	var lastErr error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		number, err := s.numbers.Next(ctx)
		if err != nil {
			return Order{}, fmt.Errorf("generate order number: %w", err)
		}
		order.OrderNumber = number
		created, err := s.repo.CreateOrder(ctx, order)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, ErrDuplicateOrderNumber) {
			return Order{}, err
		}
		lastErr = err
		s.logger.Warn("order number collision", slog.String("order_number", number))
	}
	return Order{}, lastErr
}

// GetOrder returns the order header with its items.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	var (
		order Order
		items []LineItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		order, err = s.repo.GetOrder(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = s.repo.ListItems(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return Order{}, err
	}
	order.Items = items
	return order, nil
}

// ListOrders pages through order headers.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	return s.repo.ListOrders(ctx, filter)
}

// ListExtended pages through orders with delivery, payment and customer tags.
func (s *Service) ListExtended(ctx context.Context, filter ListFilter) ([]OrderSummary, int, error) {
	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	summaries := make([]OrderSummary, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i := range orders {
		i := i
		g.Go(func() error {
			items, err := s.repo.ListItems(gctx, orders[i].ID)
			if err != nil {
				return fmt.Errorf("order %d items: %w", orders[i].ID, err)
			}
			var customerType string
			if s.customers != nil {
				customerType, err = s.customers.CustomerType(gctx, orders[i].CustomerID)
				if err != nil && !errors.Is(err, shared.ErrNotFound) {
					return fmt.Errorf("order %d customer: %w", orders[i].ID, err)
				}
			}
			summaries[i] = summarize(orders[i], items, customerType, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

func summarize(o Order, items []LineItem, customerType string, now time.Time) OrderSummary {
	sum := OrderSummary{Order: o, CustomerType: customerType, Tags: []string{}}
	for _, it := range items {
		sum.QuantityOrdered += it.Quantity
		sum.QuantityDelivered += it.QuantityDelivered
	}
	if o.IsOnHold {
		sum.Tags = append(sum.Tags, TagOnHold)
	}
	if o.IsLocked {
		sum.Tags = append(sum.Tags, TagLocked)
		if o.UnlockDeadline != nil && now.Before(*o.UnlockDeadline) {
			sum.Tags = append(sum.Tags, TagUnlockWindowOpen)
		}
	}
	switch {
	case sum.QuantityOrdered > 0 && sum.QuantityDelivered >= sum.QuantityOrdered-epsilon:
		sum.Tags = append(sum.Tags, TagFullyDelivered)
	case sum.QuantityDelivered > epsilon:
		sum.Tags = append(sum.Tags, TagPartiallyDelivered)
	}
	switch o.PaymentStatus {
	case PaymentFull:
		sum.Tags = append(sum.Tags, TagPaid)
	case PaymentPartial:
		sum.Tags = append(sum.Tags, TagPartiallyPaid)
	default:
		sum.Tags = append(sum.Tags, TagUnpaid)
	}
	if customerType != "" {
		sum.Tags = append(sum.Tags, customerType)
	}
	return sum
}

// SetDiscount changes the order discount and re-derives payment status.
func (s *Service) SetDiscount(ctx context.Context, orderID int64, amount float64, actor shared.Actor) (Order, error) {
	if amount < 0 || math.IsNaN(amount) {
		return Order{}, fmt.Errorf("%w: discount must not be negative", shared.ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := EnsureMutable(order); err != nil {
		return Order{}, err
	}
	if amount > order.TotalAmount+epsilon {
		return Order{}, fmt.Errorf("%w: discount exceeds order total", shared.ErrValidation)
	}
	previous := order.DiscountAmount
	order.DiscountAmount = amount
	order.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return Order{}, fmt.Errorf("update discount: %w", err)
	}
	s.rederive(ctx, orderID, actor)
	s.record(ctx, audit.ActorEvent(orderID, audit.OrderDiscountChanged, actor, map[string]any{
		"from": previous,
		"to":   amount,
	}))
	return s.GetOrder(ctx, orderID)
}

// rederive refreshes the cached payment status after the net total moved.
// A failure leaves the cached status stale until the next payment mutation.
func (s *Service) rederive(ctx context.Context, orderID int64, actor shared.Actor) {
	if s.payments == nil {
		return
	}
	if _, err := s.payments.DeriveStatus(ctx, orderID, actor); err != nil {
		s.logger.Warn("re-derive payment status", slog.Int64("order_id", orderID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("audit record failed",
			slog.String("event_type", event.EventType),
			slog.Int64("order_id", event.OrderID),
			slog.Any("error", err))
	}
}

func lineTotal(qty, price float64) float64 {
	return math.Round(qty*price*100) / 100
}
