package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// ============================================================================
// HOLD
// ============================================================================

// SetOnHold flags the order as held with a mandatory reason.
func (s *Service) SetOnHold(ctx context.Context, orderID int64, reason string, actor shared.Actor) (Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Order{}, fmt.Errorf("%w: hold reason required", shared.ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := EnsureMutable(order); err != nil {
		return Order{}, err
	}
	if order.IsOnHold {
		return Order{}, fmt.Errorf("order %s: %w", order.OrderNumber, shared.ErrAlreadyOnHold)
	}
	now := s.now().UTC()
	order.IsOnHold = true
	order.HoldReason = reason
	order.HeldBy = actor.String()
	order.HeldAt = &now
	order.UpdatedAt = now
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return Order{}, fmt.Errorf("set hold: %w", err)
	}
	s.record(ctx, audit.ActorEvent(orderID, audit.OrderHeld, actor, map[string]any{"reason": reason}))
	return order, nil
}

// RemoveHold clears the hold flag.
func (s *Service) RemoveHold(ctx context.Context, orderID int64, actor shared.Actor) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := EnsureMutable(order); err != nil {
		return Order{}, err
	}
	if !order.IsOnHold {
		return Order{}, fmt.Errorf("order %s: %w", order.OrderNumber, shared.ErrNotOnHold)
	}
	previous := order.HoldReason
	order.IsOnHold = false
	order.HoldReason = ""
	order.HeldBy = ""
	order.HeldAt = nil
	order.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return Order{}, fmt.Errorf("remove hold: %w", err)
	}
	s.record(ctx, audit.ActorEvent(orderID, audit.OrderHoldRemoved, actor, map[string]any{"previous_reason": previous}))
	return order, nil
}

// ============================================================================
// STATUS
// ============================================================================

// UpdateStatus moves an order between CREATED and READY_FOR_PAYMENT. COMPLETED
// is only ever derived from payments.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, status Status, actor shared.Actor) (Order, error) {
	status = Status(strings.ToUpper(strings.TrimSpace(string(status))))
	switch status {
	case StatusCreated, StatusReadyForPayment:
	case StatusCompleted:
		return Order{}, fmt.Errorf("%w: COMPLETED is derived from full payment", shared.ErrInvalidManualTransition)
	default:
		return Order{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, status)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := EnsureMutable(order); err != nil {
		return Order{}, err
	}
	if order.Status == StatusCompleted {
		return Order{}, fmt.Errorf("%w: order %s is completed", shared.ErrInvalidManualTransition, order.OrderNumber)
	}
	if order.Status == status {
		return order, nil
	}
	previous := order.Status
	order.Status = status
	order.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return Order{}, fmt.Errorf("update status: %w", err)
	}
	s.record(ctx, audit.ActorEvent(orderID, audit.OrderStatusChanged, actor, map[string]any{
		"from": string(previous),
		"to":   string(status),
	}))
	return order, nil
}

// ApplyPaymentStatus caches a freshly derived payment status. Reaching FULL
// completes the order and releases its reservations; falling below FULL reopens
// a completed order and re-reserves its undelivered quantity best-effort.
func (s *Service) ApplyPaymentStatus(ctx context.Context, orderID int64, ps PaymentStatus, actor shared.Actor) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	completing := ps == PaymentFull && order.Status != StatusCompleted
	reopening := ps != PaymentFull && order.Status == StatusCompleted
	if order.PaymentStatus == ps && !completing && !reopening {
		return order, nil
	}

	now := s.now().UTC()
	order.PaymentStatus = ps
	order.UpdatedAt = now
	switch {
	case completing:
		order.Status = StatusCompleted
		order.CompletedAt = &now
	case reopening:
		order.Status = StatusReadyForPayment
		order.CompletedAt = nil
	}
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return Order{}, fmt.Errorf("apply payment status: %w", err)
	}

	switch {
	case completing:
		if _, err := s.stock.ReleaseOrder(ctx, orderID); err != nil {
			s.logger.Warn("release reservations on completion", slog.Int64("order_id", orderID), slog.Any("error", err))
		}
		if s.observer != nil {
			s.observer.OrderCompleted()
		}
		s.record(ctx, audit.ActorEvent(orderID, audit.OrderCompleted, actor, map[string]any{"payment_status": string(ps)}))
	case reopening:
		s.reinstateReservations(ctx, orderID)
		s.record(ctx, audit.ActorEvent(orderID, audit.OrderReopened, actor, map[string]any{"payment_status": string(ps)}))
	}
	return order, nil
}

func (s *Service) reinstateReservations(ctx context.Context, orderID int64) {
	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		s.logger.Warn("list items for re-reservation", slog.Int64("order_id", orderID), slog.Any("error", err))
		return
	}
	for _, it := range items {
		if it.Undelivered() <= epsilon {
			continue
		}
		_, err := s.stock.Reserve(ctx, inventory.ReserveInput{
			OrderID:    orderID,
			LineItemID: it.ID,
			StockLotID: it.StockLotID,
			Quantity:   it.Quantity,
			Delivered:  it.QuantityDelivered,
		})
		if err != nil {
			s.logger.Warn("re-reserve reopened item",
				slog.Int64("order_id", orderID),
				slog.Int64("line_item_id", it.ID),
				slog.Any("error", err))
		}
	}
}

// BackfillCompletion stamps missing completion timestamps on completed orders.
func (s *Service) BackfillCompletion(ctx context.Context, actor shared.Actor) (int, error) {
	ids, err := s.repo.BackfillCompletion(ctx)
	if err != nil {
		return 0, fmt.Errorf("backfill completion: %w", err)
	}
	for _, id := range ids {
		s.record(ctx, audit.ActorEvent(id, audit.CompletionBackfilled, actor, nil))
	}
	if len(ids) > 0 {
		s.logger.Info("completion timestamps backfilled", slog.Int("count", len(ids)))
	}
	return len(ids), nil
}

// ============================================================================
// LOCK
// ============================================================================

// Lock freezes a completed order and opens the unlock grace window.
func (s *Service) Lock(ctx context.Context, orderID int64, actor shared.Actor) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.IsLocked {
		return Order{}, fmt.Errorf("order %s: %w", order.OrderNumber, shared.ErrAlreadyLocked)
	}
	if order.DeletionStartedAt != nil {
		return Order{}, fmt.Errorf("order %s: %w", order.OrderNumber, shared.ErrDeletionInProgress)
	}
	if !lockable(order) {
		return Order{}, fmt.Errorf("order %s: %w", order.OrderNumber, shared.ErrOrderNotCompleted)
	}
	now := s.now().UTC()
	deadline := now.Add(s.unlockGrace)
	order.IsLocked = true
	order.LockedAt = &now
	order.LockedBy = actor.String()
	order.UnlockDeadline = &deadline
	order.UpdatedAt = now
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return Order{}, fmt.Errorf("lock order: %w", err)
	}
	s.record(ctx, audit.ActorEvent(orderID, audit.OrderLocked, actor, map[string]any{
		"unlock_deadline": deadline.Format(time.RFC3339),
	}))
	return order, nil
}

// Unlock reverses a lock while the grace window is still open. The deadline
// itself is already outside the window.
func (s *Service) Unlock(ctx context.Context, orderID int64, reason string, actor shared.Actor) (Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Order{}, fmt.Errorf("%w: unlock reason required", shared.ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !order.IsLocked {
		return Order{}, fmt.Errorf("order %s: %w", order.OrderNumber, shared.ErrNotLocked)
	}
	now := s.now().UTC()
	if !withinWindow(order, now) {
		return Order{}, fmt.Errorf("order %s: %w", order.OrderNumber, shared.ErrUnlockWindowExpired)
	}
	lockedBy := order.LockedBy
	order.IsLocked = false
	order.LockedAt = nil
	order.LockedBy = ""
	order.UnlockDeadline = nil
	order.UpdatedAt = now
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return Order{}, fmt.Errorf("unlock order: %w", err)
	}
	s.record(ctx, audit.ActorEvent(orderID, audit.OrderUnlocked, actor, map[string]any{
		"reason":    reason,
		"locked_by": lockedBy,
	}))
	return order, nil
}

// LockInfo reports lock metadata and the remaining unlock window.
func (s *Service) LockInfo(ctx context.Context, orderID int64) (LockInfo, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return LockInfo{}, err
	}
	now := s.now().UTC()
	info := LockInfo{
		OrderID:        order.ID,
		IsLocked:       order.IsLocked,
		LockedAt:       order.LockedAt,
		LockedBy:       order.LockedBy,
		UnlockDeadline: order.UnlockDeadline,
		CanLock:        !order.IsLocked && order.DeletionStartedAt == nil && lockable(order),
	}
	if order.IsLocked && withinWindow(order, now) {
		info.CanUnlock = true
		info.RemainingSeconds = int64(order.UnlockDeadline.Sub(now) / time.Second)
	}
	return info, nil
}

func lockable(o Order) bool {
	return o.Status == StatusCompleted || o.PaymentStatus == PaymentFull
}

func withinWindow(o Order, now time.Time) bool {
	return o.UnlockDeadline != nil && now.Before(*o.UnlockDeadline)
}
