package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
	"github.com/odyssey-erp/odyssey-fulfillment/jobs"
)

type stubOrders struct {
	plan      sales.DeletionPlan
	deleteErr error
	deleted   []int64
	actor     shared.Actor
	found     int
	finished  int
}

func (s *stubOrders) PlanDeletion(_ context.Context, orderID int64) (sales.DeletionPlan, error) {
	if s.plan.OrderID != orderID {
		return sales.DeletionPlan{}, shared.ErrNotFound
	}
	return s.plan, nil
}

func (s *stubOrders) DeleteOrder(_ context.Context, orderID int64, opts sales.DeleteOptions, actor shared.Actor) (sales.DeletionResult, error) {
	if !opts.Confirm {
		return sales.DeletionResult{Plan: s.plan}, shared.ErrConfirmationRequired
	}
	s.deleted = append(s.deleted, orderID)
	s.actor = actor
	if s.deleteErr != nil {
		return sales.DeletionResult{Plan: s.plan, CompletedSteps: []string{sales.StepRestoreInventory}}, s.deleteErr
	}
	return sales.DeletionResult{
		Plan:             s.plan,
		CompletedSteps:   []string{sales.StepRestoreInventory, sales.StepDeleteOrder},
		QuantityRestored: s.plan.QuantityToRestore,
	}, nil
}

func (s *stubOrders) ReconcileDeletions(context.Context, time.Duration) (int, int, error) {
	return s.found, s.finished, nil
}

func (s *stubOrders) BackfillCompletion(context.Context, shared.Actor) (int, error) {
	return 3, nil
}

func newStub() *stubOrders {
	return &stubOrders{plan: sales.DeletionPlan{
		OrderID:           7,
		OrderNumber:       "ORD-000007",
		LineItems:         2,
		DeliveredItems:    1,
		QuantityToRestore: 12.5,
		Payments:          1,
	}}
}

func TestDeleteCommandDryRunPrintsPlanOnly(t *testing.T) {
	orders := newStub()
	c, err := NewOrdersCLI(orders, shared.Actor{})
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := c.DeleteCommand(context.Background(), DeleteOptions{OrderID: 7, JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Zero(t, code)
	require.Empty(t, stderr.String())
	require.Empty(t, orders.deleted)

	var summary DeleteSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, DeleteModeDry, summary.Mode)
	require.Equal(t, 12.5, summary.Plan.QuantityToRestore)
}

func TestDeleteCommandApplyNeedsConfirmation(t *testing.T) {
	orders := newStub()
	c, err := NewOrdersCLI(orders, shared.Actor{})
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := c.DeleteCommand(context.Background(), DeleteOptions{
		OrderID: 7,
		Mode:    DeleteModeApply,
		Stdout:  stdout,
		Stderr:  stderr,
		Stdin:   strings.NewReader("no\n"),
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "cancelled")
	require.Empty(t, orders.deleted)
	require.Contains(t, stdout.String(), "Deleting order ORD-000007")
}

func TestDeleteCommandApplyDeletes(t *testing.T) {
	orders := newStub()
	c, err := NewOrdersCLI(orders, shared.Actor{ID: 9, Name: "ops"})
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := c.DeleteCommand(context.Background(), DeleteOptions{
		OrderID: 7,
		Mode:    DeleteModeApply,
		Stdout:  stdout,
		Stderr:  stderr,
		Confirm: func(io.Reader, io.Writer) (bool, error) { return true, nil },
	})
	require.Zero(t, code)
	require.Equal(t, []int64{7}, orders.deleted)
	require.Equal(t, "ops", orders.actor.Name)
	require.Contains(t, stdout.String(), "12.500 returned to stock")
}

func TestDeleteCommandReportsFailedStep(t *testing.T) {
	orders := newStub()
	orders.deleteErr = &sales.StepError{OrderID: 7, Step: 2, Name: sales.StepDeleteAccountingEntries, Err: errors.New("db down")}
	c, err := NewOrdersCLI(orders, shared.Actor{})
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := c.DeleteCommand(context.Background(), DeleteOptions{
		OrderID:    7,
		Mode:       DeleteModeApply,
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
		Confirm:    func(io.Reader, io.Writer) (bool, error) { return true, nil },
	})
	require.Equal(t, 10, code)
	require.Contains(t, stderr.String(), "db down")

	var summary DeleteSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, sales.StepDeleteAccountingEntries, summary.FailedStep)
	require.Equal(t, []string{sales.StepRestoreInventory}, summary.CompletedSteps)
}

func TestDeleteCommandValidatesInput(t *testing.T) {
	c, err := NewOrdersCLI(newStub(), shared.Actor{})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, c.DeleteCommand(context.Background(), DeleteOptions{Stdout: io.Discard, Stderr: stderr}))
	require.Contains(t, stderr.String(), "--order is required")

	stderr.Reset()
	require.Equal(t, 1, c.DeleteCommand(context.Background(), DeleteOptions{OrderID: 7, Mode: "force", Stdout: io.Discard, Stderr: stderr}))
	require.Contains(t, stderr.String(), "invalid mode")

	stderr.Reset()
	require.Equal(t, 1, c.DeleteCommand(context.Background(), DeleteOptions{OrderID: 99, Stdout: io.Discard, Stderr: stderr}))
	require.Contains(t, stderr.String(), "not found")
}

func TestReconcileCommandExitCodes(t *testing.T) {
	orders := newStub()
	orders.found, orders.finished = 2, 1
	c, err := NewOrdersCLI(orders, shared.Actor{})
	require.NoError(t, err)

	out := new(bytes.Buffer)
	require.Equal(t, 10, c.ReconcileCommand(context.Background(), time.Minute, out, io.Discard))
	require.Contains(t, out.String(), "found: 2, finished: 1")

	orders.finished = 2
	require.Zero(t, c.ReconcileCommand(context.Background(), time.Minute, io.Discard, io.Discard))
}

func TestBackfillCommand(t *testing.T) {
	c, err := NewOrdersCLI(newStub(), shared.Actor{})
	require.NoError(t, err)

	out := new(bytes.Buffer)
	require.Zero(t, c.BackfillCommand(context.Background(), out, io.Discard))
	require.Contains(t, out.String(), "backfilled: 3")
}

func TestTaskForKnownJobs(t *testing.T) {
	task, err := TaskFor(JobDeletionReconcile, 0)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskDeletionReconcile, task.Type())

	task, err = TaskFor(JobIdempotencyCleanup, time.Hour)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())

	_, err = TaskFor("warmup", 0)
	require.Error(t, err)
}
