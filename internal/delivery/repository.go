package delivery

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Repository provides PostgreSQL backed persistence for deliveries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const dispatchColumns = `id, order_id, line_item_id, stock_lot_id, quantity_delivered::float8,
	cumulative_delivered::float8, delivery_date, COALESCE(evidence_ref, ''), recorded_by, created_at`

func scanDispatch(row pgx.Row) (Dispatch, error) {
	var d Dispatch
	err := row.Scan(&d.ID, &d.OrderID, &d.LineItemID, &d.StockLotID, &d.QuantityDelivered,
		&d.CumulativeDelivered, &d.DeliveryDate, &d.EvidenceRef, &d.RecordedBy, &d.CreatedAt)
	return d, err
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

func (r *Repository) ApplyDelivery(ctx context.Context, d Dispatch, previous float64) (Dispatch, error) {
	var out Dispatch
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE order_line_items
			SET quantity_delivered = $2, updated_at = NOW()
			WHERE id = $1 AND quantity_delivered = $3`,
			d.LineItemID, d.CumulativeDelivered, previous)
		if err != nil {
			return fmt.Errorf("update delivered quantity: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("line item %d: %w", d.LineItemID, shared.ErrConflict)
		}
		if d.QuantityDelivered > 0 {
			if err := inventory.ConsumeAvailable(ctx, tx, d.StockLotID, d.QuantityDelivered); err != nil {
				return err
			}
		}
		out, err = scanDispatch(tx.QueryRow(ctx, `INSERT INTO delivery_dispatches
			(order_id, line_item_id, stock_lot_id, quantity_delivered, cumulative_delivered, delivery_date, evidence_ref, recorded_by)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
			RETURNING `+dispatchColumns,
			d.OrderID, d.LineItemID, d.StockLotID, d.QuantityDelivered, d.CumulativeDelivered,
			d.DeliveryDate, d.EvidenceRef, d.RecordedBy))
		if err != nil {
			return fmt.Errorf("insert dispatch: %w", err)
		}
		return nil
	})
	return out, err
}

// ============================================================================
// QUERIES
// ============================================================================

func (r *Repository) ListDispatches(ctx context.Context, orderID int64) ([]Dispatch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+dispatchColumns+`
		FROM delivery_dispatches WHERE order_id = $1 ORDER BY delivery_date, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) CountDispatches(ctx context.Context, orderID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_dispatches WHERE order_id = $1`, orderID).Scan(&n)
	return n, err
}

func (r *Repository) PurgeDispatches(ctx context.Context, orderID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM delivery_dispatches WHERE order_id = $1`, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
