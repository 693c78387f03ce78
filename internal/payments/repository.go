package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Repository persists payments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const paymentColumns = `id, order_id, amount_received::float8, payment_date, mode,
	COALESCE(reference, ''), COALESCE(paid_to, ''), created_by, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.AmountReceived, &p.PaymentDate, &p.Mode,
		&p.Reference, &p.PaidTo, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, fmt.Errorf("payment: %w", shared.ErrNotFound)
		}
		return Payment{}, err
	}
	return p, nil
}

func (r *Repository) Create(ctx context.Context, p Payment) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `INSERT INTO payments (order_id, amount_received, payment_date, mode, reference, paid_to, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7) RETURNING `+paymentColumns,
		p.OrderID, p.AmountReceived, p.PaymentDate, p.Mode, p.Reference, p.PaidTo, p.CreatedBy))
}

func (r *Repository) Get(ctx context.Context, orderID, id int64) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND order_id = $2`, id, orderID))
}

func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY payment_date, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) Update(ctx context.Context, p Payment) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `UPDATE payments
		SET amount_received = $2, payment_date = $3, mode = $4, reference = NULLIF($5, ''), paid_to = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $1 RETURNING `+paymentColumns,
		p.ID, p.AmountReceived, p.PaymentDate, p.Mode, p.Reference, p.PaidTo))
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *Repository) SumReceived(ctx context.Context, orderID int64) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount_received), 0)::float8 FROM payments WHERE order_id = $1`, orderID).Scan(&total)
	return total, err
}

func (r *Repository) CountByOrder(ctx context.Context, orderID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE order_id = $1`, orderID).Scan(&n)
	return n, err
}

func (r *Repository) DeleteByOrder(ctx context.Context, orderID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payments WHERE order_id = $1`, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
