package payments

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

const idempotencyModule = "payments.create"

// RepositoryPort defines data access methods for payments.
type RepositoryPort interface {
	Create(ctx context.Context, p Payment) (Payment, error)
	Get(ctx context.Context, orderID, id int64) (Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Payment, error)
	Update(ctx context.Context, p Payment) (Payment, error)
	Delete(ctx context.Context, id int64) error
	SumReceived(ctx context.Context, orderID int64) (float64, error)
	CountByOrder(ctx context.Context, orderID int64) (int, error)
	DeleteByOrder(ctx context.Context, orderID int64) (int64, error)
}

// AccountingLedger is the external ledger mirroring payments.
type AccountingLedger interface {
	CreateEntry(ctx context.Context, entry AccountingEntry) error
	UpsertEntry(ctx context.Context, entry AccountingEntry) error
	DeleteEntriesForOrder(ctx context.Context, orderID int64) (int64, error)
}

// OrderPort is the order side of payment status derivation.
type OrderPort interface {
	GetOrder(ctx context.Context, id int64) (sales.Order, error)
	ApplyPaymentStatus(ctx context.Context, orderID int64, ps sales.PaymentStatus, actor shared.Actor) (sales.Order, error)
}

// IdempotencyClaimer deduplicates client supplied request keys.
type IdempotencyClaimer interface {
	Claim(ctx context.Context, module, key string) error
	Release(ctx context.Context, module, key string) error
}

// Service handles the payment ledger.
type Service struct {
	repo        RepositoryPort
	orders      OrderPort
	ledger      AccountingLedger
	audit       sales.AuditRecorder
	idempotency IdempotencyClaimer
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, orders OrderPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, orders: orders, logger: logger}
}

func (s *Service) SetAccountingLedger(l AccountingLedger) { s.ledger = l }
func (s *Service) SetAuditRecorder(a sales.AuditRecorder) { s.audit = a }
func (s *Service) SetIdempotencyStore(c IdempotencyClaimer) { s.idempotency = c }

// Derive computes the payment status of a net total given the amount paid.
// An order is fully paid once less than Tolerance remains outstanding, so a
// shortfall of a whole cent is still a partial payment. The outstanding
// amount is compared in thousandths so float residue cannot hide a cent.
func Derive(totalAmount, discountAmount, totalPaid float64) sales.PaymentStatus {
	outstanding := math.Round((totalAmount - discountAmount - totalPaid) * 1000)
	switch {
	case totalPaid == 0:
		return sales.PaymentPending
	case outstanding < math.Round(Tolerance*1000):
		return sales.PaymentFull
	default:
		return sales.PaymentPartial
	}
}

// CreatePayment records a payment, mirrors it to the ledger and re-derives status.
func (s *Service) CreatePayment(ctx context.Context, orderID int64, req PaymentRequest, actor shared.Actor) (Payment, error) {
	if err := validateRequest(req); err != nil {
		return Payment{}, err
	}
	if _, err := s.mutableOrder(ctx, orderID); err != nil {
		return Payment{}, err
	}
	claimed := false
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" && s.idempotency != nil {
		if err := s.idempotency.Claim(ctx, idempotencyModule, key); err != nil {
			return Payment{}, err
		}
		claimed = true
	}

	payment, err := s.repo.Create(ctx, Payment{
		OrderID:        orderID,
		AmountReceived: req.AmountReceived,
		PaymentDate:    req.PaymentDate.UTC(),
		Mode:           strings.ToUpper(req.Mode),
		Reference:      strings.TrimSpace(req.Reference),
		PaidTo:         strings.TrimSpace(req.PaidTo),
		CreatedBy:      actor.String(),
	})
	if err != nil {
		if claimed {
			if rerr := s.idempotency.Release(ctx, idempotencyModule, req.IdempotencyKey); rerr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", rerr))
			}
		}
		return Payment{}, fmt.Errorf("create payment: %w", err)
	}

	if s.ledger != nil {
		if err := s.ledger.CreateEntry(ctx, entryFor(payment)); err != nil {
			s.logger.Warn("accounting mirror create failed", slog.Int64("payment_id", payment.ID), slog.Any("error", err))
		}
	}
	if _, err := s.DeriveStatus(ctx, orderID, actor); err != nil {
		return payment, err
	}
	s.record(ctx, audit.ActorEvent(orderID, audit.PaymentCreated, actor, map[string]any{
		"payment_id": payment.ID,
		"amount":     payment.AmountReceived,
		"mode":       payment.Mode,
	}))
	return payment, nil
}

// UpdatePayment replaces a payment's fields and upserts its mirror entry.
func (s *Service) UpdatePayment(ctx context.Context, orderID, paymentID int64, req PaymentRequest, actor shared.Actor) (Payment, error) {
	if err := validateRequest(req); err != nil {
		return Payment{}, err
	}
	if _, err := s.mutableOrder(ctx, orderID); err != nil {
		return Payment{}, err
	}
	existing, err := s.repo.Get(ctx, orderID, paymentID)
	if err != nil {
		return Payment{}, err
	}
	previous := existing.AmountReceived
	existing.AmountReceived = req.AmountReceived
	existing.PaymentDate = req.PaymentDate.UTC()
	existing.Mode = strings.ToUpper(req.Mode)
	existing.Reference = strings.TrimSpace(req.Reference)
	existing.PaidTo = strings.TrimSpace(req.PaidTo)
	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		return Payment{}, fmt.Errorf("update payment: %w", err)
	}
	if s.ledger != nil {
		if err := s.ledger.UpsertEntry(ctx, entryFor(updated)); err != nil {
			s.logger.Warn("accounting mirror upsert failed", slog.Int64("payment_id", updated.ID), slog.Any("error", err))
		}
	}
	if _, err := s.DeriveStatus(ctx, orderID, actor); err != nil {
		return updated, err
	}
	s.record(ctx, audit.ActorEvent(orderID, audit.PaymentUpdated, actor, map[string]any{
		"payment_id": updated.ID,
		"from":       previous,
		"to":         updated.AmountReceived,
	}))
	return updated, nil
}

// DeletePayment removes a payment. Its accounting entry is left to the ledger owner.
func (s *Service) DeletePayment(ctx context.Context, orderID, paymentID int64, actor shared.Actor) error {
	if _, err := s.mutableOrder(ctx, orderID); err != nil {
		return err
	}
	existing, err := s.repo.Get(ctx, orderID, paymentID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, paymentID); err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if _, err := s.DeriveStatus(ctx, orderID, actor); err != nil {
		return err
	}
	s.record(ctx, audit.ActorEvent(orderID, audit.PaymentDeleted, actor, map[string]any{
		"payment_id": paymentID,
		"amount":     existing.AmountReceived,
	}))
	return nil
}

// ListPayments returns an order's payments.
func (s *Service) ListPayments(ctx context.Context, orderID int64) ([]Payment, error) {
	if _, err := s.orders.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListByOrder(ctx, orderID)
}

// Status computes the payment status without writing it.
func (s *Service) Status(ctx context.Context, orderID int64) (StatusView, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return StatusView{}, err
	}
	paid, err := s.repo.SumReceived(ctx, orderID)
	if err != nil {
		return StatusView{}, fmt.Errorf("sum payments: %w", err)
	}
	return StatusView{
		OrderID:        orderID,
		TotalAmount:    order.TotalAmount,
		DiscountAmount: order.DiscountAmount,
		NetTotal:       order.NetTotal(),
		TotalPaid:      paid,
		Outstanding:    math.Max(order.NetTotal()-paid, 0),
		Status:         Derive(order.TotalAmount, order.DiscountAmount, paid),
	}, nil
}

// DeriveStatus recomputes the payment status and caches it on the order.
// Running it twice without a payment change yields the same result.
func (s *Service) DeriveStatus(ctx context.Context, orderID int64, actor shared.Actor) (sales.PaymentStatus, error) {
	view, err := s.Status(ctx, orderID)
	if err != nil {
		return "", err
	}
	if _, err := s.orders.ApplyPaymentStatus(ctx, orderID, view.Status, actor); err != nil {
		return "", fmt.Errorf("apply payment status: %w", err)
	}
	return view.Status, nil
}

// CountPayments reports how many payments an order has.
func (s *Service) CountPayments(ctx context.Context, orderID int64) (int, error) {
	return s.repo.CountByOrder(ctx, orderID)
}

// PurgeAccountingEntries removes the ledger entries mirroring an order's payments.
func (s *Service) PurgeAccountingEntries(ctx context.Context, orderID int64) (int64, error) {
	if s.ledger == nil {
		return 0, nil
	}
	return s.ledger.DeleteEntriesForOrder(ctx, orderID)
}

// PurgePayments removes every payment of an order without re-deriving status.
func (s *Service) PurgePayments(ctx context.Context, orderID int64) (int64, error) {
	return s.repo.DeleteByOrder(ctx, orderID)
}

func (s *Service) mutableOrder(ctx context.Context, orderID int64) (sales.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return sales.Order{}, err
	}
	if err := sales.EnsureMutable(order); err != nil {
		return sales.Order{}, err
	}
	return order, nil
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("audit record failed", slog.String("event_type", event.EventType), slog.Any("error", err))
	}
}

func validateRequest(req PaymentRequest) error {
	if req.AmountReceived <= 0 || math.IsNaN(req.AmountReceived) {
		return fmt.Errorf("%w: amount received must be positive", shared.ErrValidation)
	}
	if req.PaymentDate.IsZero() {
		return fmt.Errorf("%w: payment date required", shared.ErrValidation)
	}
	switch strings.ToUpper(req.Mode) {
	case ModeCash, ModeBankTransfer, ModeCheque, ModeCard, ModeOther:
	default:
		return fmt.Errorf("%w: unknown payment mode %q", shared.ErrValidation, req.Mode)
	}
	return nil
}
