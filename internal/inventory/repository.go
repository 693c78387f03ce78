package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Repository persists lots and reservations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const lotColumns = `id, product_type, batch_reference, unit, quantity_created::float8,
	quantity_available::float8, quantity_wasted::float8, created_at, updated_at`

func scanLot(row pgx.Row) (StockLot, error) {
	var lot StockLot
	err := row.Scan(&lot.ID, &lot.ProductType, &lot.BatchReference, &lot.Unit, &lot.QuantityCreated,
		&lot.QuantityAvailable, &lot.QuantityWasted, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLot{}, fmt.Errorf("stock lot: %w", shared.ErrNotFound)
		}
		return StockLot{}, err
	}
	return lot, nil
}

func (r *Repository) CreateLot(ctx context.Context, lot StockLot) (StockLot, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO stock_lots (product_type, batch_reference, unit, quantity_created, quantity_available, quantity_wasted)
		VALUES ($1, $2, $3, $4, $5, 0) RETURNING `+lotColumns,
		lot.ProductType, lot.BatchReference, lot.Unit, lot.QuantityCreated, lot.QuantityAvailable)
	return scanLot(row)
}

func (r *Repository) GetLot(ctx context.Context, id int64) (StockLot, error) {
	return scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM stock_lots WHERE id = $1`, id))
}

func (r *Repository) ListLots(ctx context.Context, filter LotFilter) ([]StockLot, int, error) {
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	where := "TRUE"
	args := []any{}
	if pt := strings.TrimSpace(filter.ProductType); pt != "" {
		args = append(args, pt)
		where = "product_type = $1"
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_lots WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`SELECT %s FROM stock_lots WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		lotColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var lots []StockLot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, 0, err
		}
		lots = append(lots, lot)
	}
	return lots, total, rows.Err()
}

func (r *Repository) AddWaste(ctx context.Context, lotID int64, qty float64) (StockLot, error) {
	row := r.pool.QueryRow(ctx, `UPDATE stock_lots
		SET quantity_wasted = LEAST(quantity_wasted + $2, quantity_created), updated_at = NOW()
		WHERE id = $1 RETURNING `+lotColumns, lotID, qty)
	return scanLot(row)
}

func (r *Repository) SumDelivered(ctx context.Context, lotID int64) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_delivered), 0)::float8
		FROM order_line_items WHERE stock_lot_id = $1`, lotID).Scan(&total)
	return total, err
}

func (r *Repository) SumOutstandingReserved(ctx context.Context, q AvailabilityQuery) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(GREATEST(res.quantity_reserved - COALESCE(li.quantity_delivered, 0), 0)), 0)::float8
		FROM reservations res
		JOIN orders o ON o.id = res.order_id
		LEFT JOIN order_line_items li ON li.id = res.line_item_id
		WHERE res.stock_lot_id = $1
		  AND o.status <> 'COMPLETED'
		  AND ($2::bigint = 0 OR res.order_id <> $2)
		  AND ($3::bigint = 0 OR res.line_item_id <> $3)`,
		q.StockLotID, q.ExcludeOrderID, q.ExcludeLineItemID).Scan(&total)
	return total, err
}

const reservationColumns = `id, order_id, line_item_id, stock_lot_id, quantity_reserved::float8, created_at`

func scanReservation(row pgx.Row) (Reservation, error) {
	var res Reservation
	if err := row.Scan(&res.ID, &res.OrderID, &res.LineItemID, &res.StockLotID, &res.QuantityReserved, &res.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, fmt.Errorf("reservation: %w", shared.ErrNotFound)
		}
		return Reservation{}, err
	}
	return res, nil
}

func (r *Repository) GetReservation(ctx context.Context, lineItemID int64) (Reservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE line_item_id = $1`, lineItemID))
}

func (r *Repository) PutReservation(ctx context.Context, res Reservation) (Reservation, error) {
	var out Reservation
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM reservations WHERE line_item_id = $1`, res.LineItemID); err != nil {
			return fmt.Errorf("delete prior reservation: %w", err)
		}
		var err error
		out, err = scanReservation(tx.QueryRow(ctx, `INSERT INTO reservations (order_id, line_item_id, stock_lot_id, quantity_reserved)
			VALUES ($1, $2, $3, $4) RETURNING `+reservationColumns,
			res.OrderID, res.LineItemID, res.StockLotID, res.QuantityReserved))
		return err
	})
	return out, err
}

func (r *Repository) DeleteReservation(ctx context.Context, lineItemID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM reservations WHERE line_item_id = $1`, lineItemID)
	return err
}

func (r *Repository) DeleteOrderReservations(ctx context.Context, orderID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reservations WHERE order_id = $1`, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ConsumeAvailable decrements a lot's available counter by qty in a single
// update expression, flooring at zero. It runs on the caller's transaction.
func ConsumeAvailable(ctx context.Context, q db.Querier, lotID int64, qty float64) error {
	tag, err := q.Exec(ctx, `UPDATE stock_lots
		SET quantity_available = GREATEST(quantity_available - $2, 0), updated_at = NOW()
		WHERE id = $1`, lotID, qty)
	if err != nil {
		return fmt.Errorf("consume available: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock lot %d: %w", lotID, shared.ErrNotFound)
	}
	return nil
}

// RestoreAvailable increments a lot's available counter by qty in a single
// update expression, capped at the produced quantity.
func RestoreAvailable(ctx context.Context, q db.Querier, lotID int64, qty float64) error {
	tag, err := q.Exec(ctx, `UPDATE stock_lots
		SET quantity_available = LEAST(quantity_available + $2, quantity_created), updated_at = NOW()
		WHERE id = $1`, lotID, qty)
	if err != nil {
		return fmt.Errorf("restore available: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock lot %d: %w", lotID, shared.ErrNotFound)
	}
	return nil
}
