package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Repository persists and queries audit events.
type Repository interface {
	Insert(ctx context.Context, event Event) error
	Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Event, error)
	All(ctx context.Context, filters TimelineFilters) ([]Event, error)
}

// Publisher forwards recorded events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Service records and serves the audit trail.
type Service struct {
	repo       Repository
	publishers []Publisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs the audit service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// AddPublisher registers a downstream publisher.
func (s *Service) AddPublisher(p Publisher) {
	if p != nil {
		s.publishers = append(s.publishers, p)
	}
}

// SetClock overrides the timestamp source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Record appends an event. Publisher failures are logged and never returned.
func (s *Service) Record(ctx context.Context, event Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if event.OrderID <= 0 || strings.TrimSpace(event.EventType) == "" {
		return fmt.Errorf("%w: audit event requires order and type", shared.ErrValidation)
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if event.Actor == "" {
		event.Actor = shared.SystemActor.String()
	}
	if err := s.repo.Insert(ctx, event); err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	for _, p := range s.publishers {
		if err := p.Publish(ctx, event); err != nil {
			s.logger.Warn("audit publish failed",
				slog.String("event_type", event.EventType),
				slog.Int64("order_id", event.OrderID),
				slog.Any("error", err))
		}
	}
	return nil
}

// Timeline returns a page of an order's events, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Window(ctx, filters, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if rows == nil {
		rows = []Event{}
	}
	return Result{Events: rows, Paging: paging}, nil
}

// Export returns every event matching filters without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.All(ctx, filters)
}

// ActorEvent builds an event attributed to actor.
func ActorEvent(orderID int64, eventType string, actor shared.Actor, detail map[string]any) Event {
	return Event{
		OrderID:   orderID,
		EventType: eventType,
		Actor:     actor.String(),
		ActorID:   actor.ID,
		Detail:    detail,
	}
}
