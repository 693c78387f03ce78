package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Deletion step names in execution order.
const (
	StepRestoreInventory        = "restore_inventory"
	StepDeleteAccountingEntries = "delete_accounting_entries"
	StepDeleteInvoices          = "delete_invoices"
	StepDeleteDispatches        = "delete_dispatches"
	StepReleaseReservations     = "release_reservations"
	StepDeletePayments          = "delete_payments"
	StepDeleteLineItems         = "delete_line_items"
	StepDeleteOrder             = "delete_order"
)

type deletionStep struct {
	name string
	run  func(ctx context.Context, order Order, res *DeletionResult) error
}

func (s *Service) deletionSteps() []deletionStep {
	return []deletionStep{
		{StepRestoreInventory, s.restoreInventory},
		{StepDeleteAccountingEntries, func(ctx context.Context, o Order, _ *DeletionResult) error {
			if s.payments == nil {
				return nil
			}
			_, err := s.payments.PurgeAccountingEntries(ctx, o.ID)
			return err
		}},
		{StepDeleteInvoices, func(ctx context.Context, o Order, _ *DeletionResult) error {
			_, err := s.repo.DeleteInvoices(ctx, o.ID)
			return err
		}},
		{StepDeleteDispatches, func(ctx context.Context, o Order, _ *DeletionResult) error {
			if s.dispatches == nil {
				return nil
			}
			_, err := s.dispatches.PurgeDispatches(ctx, o.ID)
			return err
		}},
		{StepReleaseReservations, func(ctx context.Context, o Order, _ *DeletionResult) error {
			_, err := s.stock.ReleaseOrder(ctx, o.ID)
			return err
		}},
		{StepDeletePayments, func(ctx context.Context, o Order, _ *DeletionResult) error {
			if s.payments == nil {
				return nil
			}
			_, err := s.payments.PurgePayments(ctx, o.ID)
			return err
		}},
		{StepDeleteLineItems, func(ctx context.Context, o Order, _ *DeletionResult) error {
			_, err := s.repo.DeleteItems(ctx, o.ID)
			return err
		}},
		{StepDeleteOrder, func(ctx context.Context, o Order, _ *DeletionResult) error {
			err := s.repo.DeleteOrder(ctx, o.ID)
			if errors.Is(err, shared.ErrNotFound) {
				return nil
			}
			return err
		}},
	}
}

// PlanDeletion counts what deleting the order would touch without writing.
func (s *Service) PlanDeletion(ctx context.Context, orderID int64) (DeletionPlan, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return DeletionPlan{}, err
	}
	return s.plan(ctx, order)
}

func (s *Service) plan(ctx context.Context, order Order) (DeletionPlan, error) {
	plan := DeletionPlan{OrderID: order.ID, OrderNumber: order.OrderNumber, LineItems: len(order.Items)}
	for _, it := range order.Items {
		if it.QuantityDelivered > epsilon && !it.InventoryRestored {
			plan.DeliveredItems++
			plan.QuantityToRestore += it.QuantityDelivered
		}
	}
	var err error
	if plan.Invoices, err = s.repo.CountInvoices(ctx, order.ID); err != nil {
		return DeletionPlan{}, fmt.Errorf("count invoices: %w", err)
	}
	if s.payments != nil {
		if plan.Payments, err = s.payments.CountPayments(ctx, order.ID); err != nil {
			return DeletionPlan{}, fmt.Errorf("count payments: %w", err)
		}
	}
	if s.dispatches != nil {
		if plan.Dispatches, err = s.dispatches.CountDispatches(ctx, order.ID); err != nil {
			return DeletionPlan{}, fmt.Errorf("count dispatches: %w", err)
		}
	}
	return plan, nil
}

// DeleteOrder unwinds an order and everything that depends on it. Without
// opts.Confirm it only returns the plan together with ErrConfirmationRequired.
// Locked orders are never deleted. A failed step is reported as *StepError,
// earlier steps stay committed and a background retry is queued.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64, opts DeleteOptions, actor shared.Actor) (DeletionResult, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return DeletionResult{}, err
	}
	if order.IsLocked {
		return DeletionResult{}, fmt.Errorf("order %s: %w", order.OrderNumber, shared.ErrOrderLocked)
	}
	plan, err := s.plan(ctx, order)
	if err != nil {
		return DeletionResult{}, err
	}
	if !opts.Confirm {
		return DeletionResult{Plan: plan}, fmt.Errorf("delete order %s: %w", order.OrderNumber, shared.ErrConfirmationRequired)
	}

	if order.DeletionStartedAt == nil {
		now := s.now().UTC()
		if err := s.repo.MarkDeletionStarted(ctx, orderID, now); err != nil {
			return DeletionResult{Plan: plan}, fmt.Errorf("mark deletion started: %w", err)
		}
		order.DeletionStartedAt = &now
		s.record(ctx, audit.ActorEvent(orderID, audit.DeletionStarted, actor, map[string]any{
			"order_number":        order.OrderNumber,
			"quantity_to_restore": plan.QuantityToRestore,
		}))
	}

	result := DeletionResult{Plan: plan}
	if err := s.runDeletion(ctx, order, &result, actor); err != nil {
		if s.retries != nil {
			if rerr := s.retries.ScheduleDeletionRetry(ctx, orderID); rerr != nil {
				s.logger.Warn("schedule deletion retry", slog.Int64("order_id", orderID), slog.Any("error", rerr))
			}
		}
		return result, err
	}
	return result, nil
}

// ResumeDeletion reruns the deletion of an order whose deletion already
// started. Orders that are already gone count as done.
func (s *Service) ResumeDeletion(ctx context.Context, orderID int64) (DeletionResult, error) {
	order, err := s.GetOrder(ctx, orderID)
	if errors.Is(err, shared.ErrNotFound) {
		return DeletionResult{}, nil
	}
	if err != nil {
		return DeletionResult{}, err
	}
	if order.DeletionStartedAt == nil {
		return DeletionResult{}, fmt.Errorf("%w: order %s has no deletion in progress", shared.ErrValidation, order.OrderNumber)
	}
	plan, err := s.plan(ctx, order)
	if err != nil {
		return DeletionResult{}, err
	}
	result := DeletionResult{Plan: plan}
	return result, s.runDeletion(ctx, order, &result, shared.SystemActor)
}

// ReconcileDeletions resumes deletions started before now-staleAfter and
// returns how many were found and how many finished.
func (s *Service) ReconcileDeletions(ctx context.Context, staleAfter time.Duration) (found, finished int, err error) {
	ids, err := s.repo.ListStaleDeletions(ctx, s.now().UTC().Add(-staleAfter))
	if err != nil {
		return 0, 0, fmt.Errorf("list stale deletions: %w", err)
	}
	for _, id := range ids {
		if _, err := s.ResumeDeletion(ctx, id); err != nil {
			s.logger.Warn("partially deleted order still pending",
				slog.Int64("order_id", id),
				slog.Any("error", err))
			continue
		}
		finished++
	}
	if len(ids) > 0 {
		s.logger.Info("deletion reconciliation", slog.Int("found", len(ids)), slog.Int("finished", finished))
	}
	return len(ids), finished, nil
}

func (s *Service) runDeletion(ctx context.Context, order Order, result *DeletionResult, actor shared.Actor) error {
	for i, step := range s.deletionSteps() {
		if err := step.run(ctx, order, result); err != nil {
			stepErr := &StepError{OrderID: order.ID, Step: i + 1, Name: step.name, Err: err}
			s.logger.Error("order deletion step failed",
				slog.Int64("order_id", order.ID),
				slog.Int("step", i+1),
				slog.String("name", step.name),
				slog.Any("error", err))
			if s.observer != nil {
				s.observer.DeletionStepFailed(step.name)
			}
			s.record(ctx, audit.ActorEvent(order.ID, audit.DeletionStepFailed, actor, map[string]any{
				"step":  i + 1,
				"name":  step.name,
				"error": err.Error(),
			}))
			return stepErr
		}
		result.CompletedSteps = append(result.CompletedSteps, step.name)
	}
	s.record(ctx, audit.ActorEvent(order.ID, audit.OrderDeleted, actor, map[string]any{
		"order_number":      order.OrderNumber,
		"quantity_restored": result.QuantityRestored,
	}))
	return nil
}

// restoreInventory returns each delivered quantity to its lot once. The
// per-item restored flag makes reruns skip items already handled.
func (s *Service) restoreInventory(ctx context.Context, order Order, res *DeletionResult) error {
	for _, it := range order.Items {
		if it.QuantityDelivered <= epsilon || it.InventoryRestored {
			continue
		}
		restored, err := s.repo.RestoreDeliveredItem(ctx, it)
		if err != nil {
			return fmt.Errorf("line item %d: %w", it.ID, err)
		}
		if restored {
			res.QuantityRestored += it.QuantityDelivered
		}
	}
	return nil
}
