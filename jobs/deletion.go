package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-fulfillment/internal/jobs"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
)

// DefaultStaleAfter is how long a started deletion may sit before the
// reconciliation sweep resumes it.
const DefaultStaleAfter = 15 * time.Minute

// DeletionResumer resumes partially deleted orders.
type DeletionResumer interface {
	ResumeDeletion(ctx context.Context, orderID int64) (sales.DeletionResult, error)
	ReconcileDeletions(ctx context.Context, staleAfter time.Duration) (found, finished int, err error)
}

// DeletionJob finishes order deletions that stopped at a failed step.
type DeletionJob struct {
	Orders     DeletionResumer
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	StaleAfter time.Duration
}

// NewDeletionJob initialises the deletion handlers.
func NewDeletionJob(orders DeletionResumer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeletionJob {
	return &DeletionJob{Orders: orders, Logger: logger, Metrics: metrics, StaleAfter: DefaultStaleAfter}
}

// HandleReconcile sweeps every deletion started before the stale threshold.
func (j *DeletionJob) HandleReconcile(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Orders == nil {
		return errors.New("deletion reconcile: handler not configured")
	}
	var payload DeletionReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("deletion reconcile payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	staleAfter := payload.StaleAfter
	if staleAfter <= 0 {
		staleAfter = j.StaleAfter
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	tracker := j.Metrics.Track(TaskDeletionReconcile)
	defer func() { err = tracker.End(err) }()

	found, finished, err := j.Orders.ReconcileDeletions(ctx, staleAfter)
	if err != nil {
		j.logger().Error("deletion reconcile failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskDeletionReconcile, "finished", finished)
	j.Metrics.SetBacklog(TaskDeletionReconcile, found-finished)
	if found > finished {
		j.logger().Warn("partially deleted orders remain",
			slog.Int("found", found),
			slog.Int("finished", finished),
			slog.Duration("stale_after", staleAfter))
	}
	return nil
}

// HandleRetry resumes one order's deletion. A failure is returned so asynq
// retries it with backoff.
func (j *DeletionJob) HandleRetry(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Orders == nil {
		return errors.New("deletion retry: handler not configured")
	}
	var payload DeletionRetryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.OrderID <= 0 {
		return fmt.Errorf("deletion retry payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskDeletionRetry)
	defer func() { err = tracker.End(err) }()

	result, err := j.Orders.ResumeDeletion(ctx, payload.OrderID)
	if err != nil {
		j.logger().Warn("deletion retry failed", slog.Int64("order_id", payload.OrderID), slog.Any("error", err))
		return err
	}
	j.logger().Info("deletion resumed",
		slog.Int64("order_id", payload.OrderID),
		slog.Int("steps", len(result.CompletedSteps)))
	return nil
}

func (j *DeletionJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
