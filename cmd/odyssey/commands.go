package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/odyssey-erp/odyssey-fulfillment/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/app"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

const usage = `usage:
  odyssey                                   run the HTTP server
  odyssey migrate                           apply the database schema
  odyssey orders delete -order ID [-mode dry|apply] [-json]
  odyssey orders reconcile [-stale 15m]
  odyssey orders backfill-completion
  odyssey jobs trigger deletion-reconcile|idempotency-cleanup [-window D]
  odyssey jobs stats`

// runCommand executes an operator subcommand and returns the exit code.
func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 1 && args[0] == "migrate" {
		return runMigrate(ctx, cfg, logger)
	}
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	switch args[0] {
	case "orders":
		return runOrders(ctx, cfg, logger, args[1], args[2:])
	case "jobs":
		return runJobs(ctx, cfg, args[1], args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}

func runMigrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, err := db.New(ctx, cfg.PGDSN, db.WithApplicationName(db.ApplicationName+"-cli"))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	logger.Info("schema applied")
	return 0
}

func runOrders(ctx context.Context, cfg *app.Config, logger *slog.Logger, sub string, args []string) int {
	fs := flag.NewFlagSet("orders "+sub, flag.ContinueOnError)
	orderID := fs.Int64("order", 0, "order id")
	mode := fs.String("mode", string(cli.DeleteModeDry), "dry or apply")
	jsonOut := fs.Bool("json", false, "print JSON")
	stale := fs.Duration("stale", cfg.ReconcileStaleAfter, "resume deletions started before this age")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.WithApplicationName(db.ApplicationName+"-cli"))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	services, err := app.BuildServices(app.ServiceDeps{Config: cfg, Logger: logger, Pool: pool})
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		return 1
	}
	defer services.Close()

	ops, err := cli.NewOrdersCLI(services.Orders, shared.Actor{Name: "cli"})
	if err != nil {
		logger.Error("init orders cli", slog.Any("error", err))
		return 1
	}
	switch sub {
	case "delete":
		return ops.DeleteCommand(ctx, cli.DeleteOptions{
			OrderID:    *orderID,
			Mode:       cli.DeleteMode(*mode),
			JSONOutput: *jsonOut,
		})
	case "reconcile":
		return ops.ReconcileCommand(ctx, *stale, os.Stdout, os.Stderr)
	case "backfill-completion":
		return ops.BackfillCommand(ctx, os.Stdout, os.Stderr)
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}

func runJobs(ctx context.Context, cfg *app.Config, sub string, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.Redis())
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer jobsCLI.Close()

	switch sub {
	case "trigger":
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, usage)
			return 2
		}
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		window := fs.Duration("window", 0, "stale age or retention; zero uses the job default")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[0], *window)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "enqueued %s as %s\n", info.Type, info.ID)
		return 0
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		scheduled, err := jobsCLI.ListScheduled(ctx, 20)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		ids := make([]string, 0, len(scheduled))
		for _, t := range scheduled {
			ids = append(ids, t.ID)
		}
		out := map[string]any{"queue": stats, "scheduled": ids}
		if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}
