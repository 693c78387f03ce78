package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/customers"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/delivery"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/observability"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/payments"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

var (
	_ inventory.Observer = (*observability.Metrics)(nil)
	_ sales.Observer     = (*observability.Metrics)(nil)
	_ delivery.Observer  = (*observability.Metrics)(nil)
)

// Services is the wired set of domain services backed by Postgres and Redis.
type Services struct {
	Customers   *customers.Service
	Inventory   *inventory.Service
	Orders      *sales.Service
	Payments    *payments.Service
	Deliveries  *delivery.Service
	Audit       *audit.Service
	Idempotency *shared.IdempotencyStore

	kafka *audit.KafkaPublisher
}

// ServiceDeps collects the infrastructure BuildServices wires onto.
type ServiceDeps struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Retries sales.RetryScheduler
}

// BuildServices constructs every domain service and connects their ports.
func BuildServices(deps ServiceDeps) (*Services, error) {
	cfg, logger, pool := deps.Config, deps.Logger, deps.Pool
	if cfg == nil || pool == nil {
		return nil, errors.New("app: config and pool are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	auditSvc := audit.NewService(audit.NewRepository(pool), logger)
	var kafka *audit.KafkaPublisher
	if cfg.KafkaEnabled() {
		kafka = audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		auditSvc.AddPublisher(kafka)
	}

	customerSvc := customers.NewService(customers.NewRepository(pool))

	stock := inventory.NewService(inventory.NewRepository(pool), logger)

	orderRepo := sales.NewRepository(pool)
	orders := sales.NewService(orderRepo, stock, sales.NewRedisNumberGenerator(deps.Redis, orderRepo, logger), logger)
	orders.SetAuditRecorder(auditSvc)
	orders.SetCustomerDirectory(customerSvc)
	orders.SetUnlockGrace(cfg.UnlockGrace)
	if deps.Retries != nil {
		orders.SetRetryScheduler(deps.Retries)
	}

	idempotency := shared.NewIdempotencyStore(pool)
	pay := payments.NewService(payments.NewRepository(pool), orders, logger)
	pay.SetAccountingLedger(payments.NewLedger(pool))
	pay.SetAuditRecorder(auditSvc)
	pay.SetIdempotencyStore(idempotency)

	deliveries := delivery.NewService(delivery.NewRepository(pool), orders, stock, logger)
	deliveries.SetAuditRecorder(auditSvc)
	evidence, err := delivery.NewLocalEvidenceStore(cfg.EvidenceDir)
	if err != nil {
		return nil, fmt.Errorf("app: evidence store: %w", err)
	}
	deliveries.SetEvidenceStore(evidence)

	orders.SetPaymentLedger(pay)
	orders.SetDispatchLog(deliveries)

	if deps.Metrics != nil {
		stock.SetObserver(deps.Metrics)
		orders.SetObserver(deps.Metrics)
		deliveries.SetObserver(deps.Metrics)
	}

	return &Services{
		Customers:   customerSvc,
		Inventory:   stock,
		Orders:      orders,
		Payments:    pay,
		Deliveries:  deliveries,
		Audit:       auditSvc,
		Idempotency: idempotency,
		kafka:       kafka,
	}, nil
}

// Close flushes the audit publisher when one is configured.
func (s *Services) Close() error {
	if s == nil || s.kafka == nil {
		return nil
	}
	return s.kafka.Close()
}
