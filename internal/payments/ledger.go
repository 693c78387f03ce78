package payments

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgLedger keeps accounting entries one-to-one with payments.
type PgLedger struct {
	pool *pgxpool.Pool
}

// NewLedger constructs PgLedger.
func NewLedger(pool *pgxpool.Pool) *PgLedger {
	return &PgLedger{pool: pool}
}

// CreateEntry books the entry for a new payment. A second call for the same payment is a no-op.
func (l *PgLedger) CreateEntry(ctx context.Context, e AccountingEntry) error {
	_, err := l.pool.Exec(ctx, `INSERT INTO accounting_entries (payment_id, order_id, amount, entry_date, method, reference)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (payment_id) DO NOTHING`,
		e.PaymentID, e.OrderID, e.Amount, e.EntryDate, e.Method, e.Reference)
	return err
}

// UpsertEntry mirrors amount, date, method and reference of an edited payment.
func (l *PgLedger) UpsertEntry(ctx context.Context, e AccountingEntry) error {
	_, err := l.pool.Exec(ctx, `INSERT INTO accounting_entries (payment_id, order_id, amount, entry_date, method, reference)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (payment_id) DO UPDATE
		SET amount = EXCLUDED.amount, entry_date = EXCLUDED.entry_date,
		    method = EXCLUDED.method, reference = EXCLUDED.reference, updated_at = NOW()`,
		e.PaymentID, e.OrderID, e.Amount, e.EntryDate, e.Method, e.Reference)
	return err
}

// DeleteEntriesForOrder removes every entry tied to the order's payments.
func (l *PgLedger) DeleteEntriesForOrder(ctx context.Context, orderID int64) (int64, error) {
	tag, err := l.pool.Exec(ctx, `DELETE FROM accounting_entries WHERE order_id = $1`, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
