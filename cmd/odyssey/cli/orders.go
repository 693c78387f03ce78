package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// OrderOps is the slice of the order service the operator commands use.
type OrderOps interface {
	PlanDeletion(ctx context.Context, orderID int64) (sales.DeletionPlan, error)
	DeleteOrder(ctx context.Context, orderID int64, opts sales.DeleteOptions, actor shared.Actor) (sales.DeletionResult, error)
	ReconcileDeletions(ctx context.Context, staleAfter time.Duration) (found, finished int, err error)
	BackfillCompletion(ctx context.Context, actor shared.Actor) (int, error)
}

// OrdersCLI offers operator helpers around order deletion and completion data.
type OrdersCLI struct {
	orders OrderOps
	actor  shared.Actor
}

// NewOrdersCLI constructs the helper. Writes are attributed to actor.
func NewOrdersCLI(orders OrderOps, actor shared.Actor) (*OrdersCLI, error) {
	if orders == nil {
		return nil, errors.New("orders cli: order service required")
	}
	if actor.Name == "" && actor.ID == 0 {
		actor = shared.SystemActor
	}
	return &OrdersCLI{orders: orders, actor: actor}, nil
}

// DeleteMode enumerates supported execution strategies.
type DeleteMode string

const (
	// DeleteModeDry prints the plan without writing.
	DeleteModeDry DeleteMode = "dry"
	// DeleteModeApply deletes after confirmation.
	DeleteModeApply DeleteMode = "apply"
)

// DeleteOptions configures the delete command.
type DeleteOptions struct {
	OrderID    int64
	Mode       DeleteMode
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
	Stdin      io.Reader
	Confirm    func(io.Reader, io.Writer) (bool, error)
}

// DeleteSummary is the structured outcome of the delete command.
type DeleteSummary struct {
	Mode             DeleteMode         `json:"mode"`
	Plan             sales.DeletionPlan `json:"plan"`
	CompletedSteps   []string           `json:"completed_steps,omitempty"`
	QuantityRestored float64            `json:"quantity_restored,omitempty"`
	FailedStep       string             `json:"failed_step,omitempty"`
}

// DeleteCommand previews or runs an order deletion. It exits 10 when a step
// failed and a retry is left pending.
func (c *OrdersCLI) DeleteCommand(ctx context.Context, opts DeleteOptions) int {
	opts = withStreams(opts)
	if opts.OrderID <= 0 {
		fmt.Fprintln(opts.Stderr, "orders delete: --order is required and must be positive")
		return 1
	}
	if opts.Mode == "" {
		opts.Mode = DeleteModeDry
	}
	mode := DeleteMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case DeleteModeDry, DeleteModeApply:
	default:
		fmt.Fprintf(opts.Stderr, "orders delete: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return 1
	}

	plan, err := c.orders.PlanDeletion(ctx, opts.OrderID)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "orders delete: %v\n", err)
		return 1
	}
	summary := DeleteSummary{Mode: mode, Plan: plan}
	if mode == DeleteModeDry {
		return writeDeleteOutput(opts, summary)
	}

	if !opts.JSONOutput {
		renderPlanHuman(opts.Stdout, plan)
	}
	confirm := opts.Confirm
	if confirm == nil {
		confirm = defaultDeleteConfirm
	}
	ok, err := confirm(opts.Stdin, opts.Stdout)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "orders delete: confirmation failed: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(opts.Stderr, "orders delete: cancelled by user")
		return 1
	}

	result, err := c.orders.DeleteOrder(ctx, opts.OrderID, sales.DeleteOptions{Confirm: true}, c.actor)
	summary.CompletedSteps = result.CompletedSteps
	summary.QuantityRestored = result.QuantityRestored
	var stepErr *sales.StepError
	if errors.As(err, &stepErr) {
		summary.FailedStep = stepErr.Name
		fmt.Fprintf(opts.Stderr, "orders delete: %v\n", err)
		if code := writeDeleteOutput(opts, summary); code != 0 {
			return code
		}
		return 10
	}
	if err != nil {
		fmt.Fprintf(opts.Stderr, "orders delete: %v\n", err)
		return 1
	}
	return writeDeleteOutput(opts, summary)
}

// ReconcileCommand resumes stale deletions. It exits 10 when some remain pending.
func (c *OrdersCLI) ReconcileCommand(ctx context.Context, staleAfter time.Duration, out, errOut io.Writer) int {
	found, finished, err := c.orders.ReconcileDeletions(ctx, staleAfter)
	if err != nil {
		fmt.Fprintf(errOut, "orders reconcile: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Stale deletions found: %d, finished: %d\n", found, finished)
	if finished < found {
		return 10
	}
	return 0
}

// BackfillCommand stamps missing completion timestamps.
func (c *OrdersCLI) BackfillCommand(ctx context.Context, out, errOut io.Writer) int {
	n, err := c.orders.BackfillCompletion(ctx, c.actor)
	if err != nil {
		fmt.Fprintf(errOut, "orders backfill: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Completion timestamps backfilled: %d\n", n)
	return 0
}

func withStreams(opts DeleteOptions) DeleteOptions {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	return opts
}

func writeDeleteOutput(opts DeleteOptions, summary DeleteSummary) int {
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "orders delete: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	if summary.Mode == DeleteModeDry {
		renderPlanHuman(opts.Stdout, summary.Plan)
		return 0
	}
	if len(summary.CompletedSteps) > 0 {
		fmt.Fprintf(opts.Stdout, "Completed steps: %s\n", strings.Join(summary.CompletedSteps, ", "))
	}
	if summary.FailedStep != "" {
		fmt.Fprintf(opts.Stdout, "Failed at %s; a background retry is scheduled.\n", summary.FailedStep)
		return 0
	}
	fmt.Fprintf(opts.Stdout, "Order %s deleted, %.3f returned to stock.\n", summary.Plan.OrderNumber, summary.QuantityRestored)
	return 0
}

func renderPlanHuman(out io.Writer, plan sales.DeletionPlan) {
	fmt.Fprintf(out, "Deleting order %s (#%d) will remove:\n", plan.OrderNumber, plan.OrderID)
	fmt.Fprintf(out, " - %d line item(s), %d delivered\n", plan.LineItems, plan.DeliveredItems)
	fmt.Fprintf(out, " - %d payment(s) and their accounting entries\n", plan.Payments)
	fmt.Fprintf(out, " - %d invoice(s)\n", plan.Invoices)
	fmt.Fprintf(out, " - %d dispatch record(s)\n", plan.Dispatches)
	if plan.QuantityToRestore > 0 {
		fmt.Fprintf(out, "Delivered quantity %.3f returns to stock.\n", plan.QuantityToRestore)
	}
}

func defaultDeleteConfirm(r io.Reader, w io.Writer) (bool, error) {
	fmt.Fprint(w, "Delete this order? Type YES to confirm: ")
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "YES"), nil
}
