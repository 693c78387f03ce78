package memstore

import (
	"context"
	"sort"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
)

// AuditRepo implements audit.Repository.
type AuditRepo struct{ s *Store }

var _ audit.Repository = (*AuditRepo)(nil)

func (r *AuditRepo) Insert(_ context.Context, e audit.Event) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertAudit"); err != nil {
		return err
	}
	s.events = append(s.events, e)
	return nil
}

func (r *AuditRepo) Window(ctx context.Context, f audit.TimelineFilters, limit, offset int) ([]audit.Event, error) {
	rows, err := r.All(ctx, f)
	if err != nil || offset >= len(rows) {
		return nil, err
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *AuditRepo) All(_ context.Context, f audit.TimelineFilters) ([]audit.Event, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		switch {
		case f.OrderID > 0 && e.OrderID != f.OrderID:
		case f.EventType != "" && e.EventType != f.EventType:
		case !f.From.IsZero() && e.Timestamp.Before(f.From):
		case !f.To.IsZero() && e.Timestamp.After(f.To):
		default:
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}
