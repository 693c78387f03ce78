package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDeletionReconcile scans for order deletions that stalled part way.
	TaskDeletionReconcile = "orders:deletion:reconcile"
	// TaskDeletionRetry resumes the deletion of a single order.
	TaskDeletionRetry = "orders:deletion:retry"
	// TaskIdempotencyCleanup drops expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DeletionReconcilePayload configures a reconciliation sweep.
type DeletionReconcilePayload struct {
	StaleAfter time.Duration `json:"stale_after"`
}

// DeletionRetryPayload identifies the order whose deletion is resumed.
type DeletionRetryPayload struct {
	OrderID int64 `json:"order_id"`
}

// IdempotencyCleanupPayload sets how long keys are retained.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewDeletionReconcileTask constructs the reconciliation task.
func NewDeletionReconcileTask(staleAfter time.Duration) (*asynq.Task, error) {
	return newTask(TaskDeletionReconcile, DeletionReconcilePayload{StaleAfter: staleAfter})
}

// NewDeletionRetryTask constructs the per-order retry task.
func NewDeletionRetryTask(orderID int64) (*asynq.Task, error) {
	if orderID <= 0 {
		return nil, fmt.Errorf("deletion retry: invalid order id %d", orderID)
	}
	return newTask(TaskDeletionRetry, DeletionRetryPayload{OrderID: orderID})
}

// NewIdempotencyCleanupTask constructs the key cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{Retention: retention})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data), nil
}
