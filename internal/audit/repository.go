package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository stores events in the audit_events table.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Insert appends one event.
func (r *PgRepository) Insert(ctx context.Context, event Event) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("encode detail: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_events (id, order_id, event_type, actor, actor_id, occurred_at, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.OrderID, event.EventType, event.Actor, optionalInt(event.ActorID), event.Timestamp, detail)
	return err
}

// Window returns one page of matching events, newest first.
func (r *PgRepository) Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Event, error) {
	where, args := buildWhere(filters)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT id, order_id, event_type, actor, actor_id, occurred_at, detail
		FROM audit_events WHERE %s ORDER BY occurred_at DESC, id LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	return r.query(ctx, query, args...)
}

// All returns every matching event in chronological order.
func (r *PgRepository) All(ctx context.Context, filters TimelineFilters) ([]Event, error) {
	where, args := buildWhere(filters)
	return r.query(ctx, `SELECT id, order_id, event_type, actor, actor_id, occurred_at, detail
		FROM audit_events WHERE `+where+` ORDER BY occurred_at, id`, args...)
}

func (r *PgRepository) query(ctx context.Context, sql string, args ...any) ([]Event, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var (
			ev      Event
			actorID pgtype.Int8
			detail  []byte
		)
		if err := row.Scan(&ev.ID, &ev.OrderID, &ev.EventType, &ev.Actor, &actorID, &ev.Timestamp, &detail); err != nil {
			return Event{}, err
		}
		if actorID.Valid {
			ev.ActorID = actorID.Int64
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &ev.Detail); err != nil {
				return Event{}, fmt.Errorf("decode detail: %w", err)
			}
		}
		return ev, nil
	})
}

func buildWhere(filters TimelineFilters) (string, []any) {
	clauses := []string{"TRUE"}
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filters.OrderID > 0 {
		add("order_id = $%d", filters.OrderID)
	}
	if t := strings.TrimSpace(filters.EventType); t != "" {
		add("event_type = $%d", t)
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("occurred_at <= $%d", filters.To)
	}
	return strings.Join(clauses, " AND "), args
}

func optionalInt(v int64) pgtype.Int8 {
	if v == 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: v, Valid: true}
}
