package memstore

import (
	"context"
	"sort"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/payments"
)

// PaymentRepo implements payments.RepositoryPort.
type PaymentRepo struct{ s *Store }

var _ payments.RepositoryPort = (*PaymentRepo)(nil)

func (r *PaymentRepo) Create(_ context.Context, p payments.Payment) (payments.Payment, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreatePayment"); err != nil {
		return payments.Payment{}, err
	}
	p.ID = s.nextID()
	p.CreatedAt = s.now().UTC()
	p.UpdatedAt = p.CreatedAt
	s.payments[p.ID] = p
	return p, nil
}

func (r *PaymentRepo) Get(_ context.Context, orderID, id int64) (payments.Payment, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.OrderID != orderID {
		return payments.Payment{}, notFound("payment", id)
	}
	return p, nil
}

func (r *PaymentRepo) ListByOrder(_ context.Context, orderID int64) ([]payments.Payment, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []payments.Payment
	for _, p := range s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].PaymentDate.Before(out[j].PaymentDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *PaymentRepo) Update(_ context.Context, p payments.Payment) (payments.Payment, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.payments[p.ID]
	if !ok {
		return payments.Payment{}, notFound("payment", p.ID)
	}
	cur.AmountReceived, cur.PaymentDate, cur.Mode = p.AmountReceived, p.PaymentDate, p.Mode
	cur.Reference, cur.PaidTo = p.Reference, p.PaidTo
	cur.UpdatedAt = s.now().UTC()
	s.payments[p.ID] = cur
	return cur, nil
}

func (r *PaymentRepo) Delete(_ context.Context, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[id]; !ok {
		return notFound("payment", id)
	}
	delete(s.payments, id)
	return nil
}

func (r *PaymentRepo) SumReceived(_ context.Context, orderID int64) (float64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, p := range s.payments {
		if p.OrderID == orderID {
			total += p.AmountReceived
		}
	}
	return total, nil
}

func (r *PaymentRepo) CountByOrder(ctx context.Context, orderID int64) (int, error) {
	rows, err := r.ListByOrder(ctx, orderID)
	return len(rows), err
}

func (r *PaymentRepo) DeleteByOrder(_ context.Context, orderID int64) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DeletePayments"); err != nil {
		return 0, err
	}
	var n int64
	for id, p := range s.payments {
		if p.OrderID == orderID {
			delete(s.payments, id)
			n++
		}
	}
	return n, nil
}

// Ledger implements payments.AccountingLedger.
type Ledger struct{ s *Store }

var _ payments.AccountingLedger = (*Ledger)(nil)

func (l *Ledger) CreateEntry(_ context.Context, e payments.AccountingEntry) error {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateEntry"); err != nil {
		return err
	}
	if _, ok := s.entries[e.PaymentID]; !ok {
		s.entries[e.PaymentID] = e
	}
	return nil
}

func (l *Ledger) UpsertEntry(_ context.Context, e payments.AccountingEntry) error {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpsertEntry"); err != nil {
		return err
	}
	s.entries[e.PaymentID] = e
	return nil
}

func (l *Ledger) DeleteEntriesForOrder(_ context.Context, orderID int64) (int64, error) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DeleteEntriesForOrder"); err != nil {
		return 0, err
	}
	var n int64
	for id, e := range s.entries {
		if e.OrderID == orderID {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Entry returns the mirror entry of a payment.
func (l *Ledger) Entry(paymentID int64) (payments.AccountingEntry, bool) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	e, ok := l.s.entries[paymentID]
	return e, ok
}
