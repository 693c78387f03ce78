package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Repository provides PostgreSQL backed persistence for orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ============================================================================
// ORDER OPERATIONS
// ============================================================================

const orderColumns = `id, order_number, customer_id, order_date, status, payment_status,
	is_on_hold, COALESCE(hold_reason, ''), COALESCE(held_by, ''), held_at,
	is_locked, locked_at, COALESCE(locked_by, ''), unlock_deadline,
	discount_amount::float8, total_amount::float8, completed_at, deletion_started_at,
	created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.OrderDate, &o.Status, &o.PaymentStatus,
		&o.IsOnHold, &o.HoldReason, &o.HeldBy, &o.HeldAt,
		&o.IsLocked, &o.LockedAt, &o.LockedBy, &o.UnlockDeadline,
		&o.DiscountAmount, &o.TotalAmount, &o.CompletedAt, &o.DeletionStartedAt,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("order: %w", shared.ErrNotFound)
		}
		return Order{}, err
	}
	return o, nil
}

func (r *Repository) CreateOrder(ctx context.Context, o Order) (Order, error) {
	created, err := scanOrder(r.pool.QueryRow(ctx, `INSERT INTO orders
		(order_number, customer_id, order_date, status, payment_status, discount_amount, total_amount, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7) RETURNING `+orderColumns,
		o.OrderNumber, o.CustomerID, o.OrderDate, o.Status, o.PaymentStatus, o.DiscountAmount, o.CreatedBy))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "orders_order_number_key" {
			return Order{}, fmt.Errorf("%s: %w", o.OrderNumber, ErrDuplicateOrderNumber)
		}
		return Order{}, err
	}
	return created, nil
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	clauses := []string{"deletion_started_at IS NULL"}
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.CustomerID > 0 {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.OnHold != nil {
		add("is_on_hold = $%d", *filter.OnHold)
	}
	if filter.Locked != nil {
		add("is_locked = $%d", *filter.Locked)
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY order_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *Repository) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET
			status = $2, payment_status = $3,
			is_on_hold = $4, hold_reason = NULLIF($5, ''), held_by = NULLIF($6, ''), held_at = $7,
			is_locked = $8, locked_at = $9, locked_by = NULLIF($10, ''), unlock_deadline = $11,
			discount_amount = $12, completed_at = $13, updated_at = NOW()
		WHERE id = $1`,
		o.ID, o.Status, o.PaymentStatus,
		o.IsOnHold, o.HoldReason, o.HeldBy, o.HeldAt,
		o.IsLocked, o.LockedAt, o.LockedBy, o.UnlockDeadline,
		o.DiscountAmount, o.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", o.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *Repository) MarkDeletionStarted(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE orders SET deletion_started_at = COALESCE(deletion_started_at, $2) WHERE id = $1`, id, at)
	return err
}

func (r *Repository) ListStaleDeletions(ctx context.Context, before time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM orders WHERE deletion_started_at IS NOT NULL AND deletion_started_at < $1 ORDER BY id`, before)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *Repository) BackfillCompletion(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `UPDATE orders o
		SET completed_at = COALESCE(p.last_paid, o.updated_at), updated_at = NOW()
		FROM (
			SELECT o2.id, MAX(pay.payment_date) AS last_paid
			FROM orders o2 LEFT JOIN payments pay ON pay.order_id = o2.id
			WHERE o2.status = 'COMPLETED' AND o2.completed_at IS NULL
			GROUP BY o2.id
		) p
		WHERE o.id = p.id
		RETURNING o.id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *Repository) MaxOrderSequence(ctx context.Context) (int64, error) {
	var max int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM 5) AS bigint)), 0)
		FROM orders WHERE order_number ~ '^ORD-[0-9]+$'`).Scan(&max)
	return max, err
}

// ============================================================================
// LINE ITEM OPERATIONS
// ============================================================================

const itemColumns = `id, order_id, stock_lot_id, quantity::float8, unit_price::float8, line_total::float8,
	quantity_delivered::float8, inventory_restored, created_at, updated_at`

func scanItem(row pgx.Row) (LineItem, error) {
	var li LineItem
	err := row.Scan(&li.ID, &li.OrderID, &li.StockLotID, &li.Quantity, &li.UnitPrice, &li.LineTotal,
		&li.QuantityDelivered, &li.InventoryRestored, &li.CreatedAt, &li.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineItem{}, fmt.Errorf("line item: %w", shared.ErrNotFound)
		}
		return LineItem{}, err
	}
	return li, nil
}

func (r *Repository) ListItems(ctx context.Context, orderID int64) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM order_line_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		li, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func (r *Repository) GetItem(ctx context.Context, orderID, itemID int64) (LineItem, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM order_line_items WHERE id = $1 AND order_id = $2`, itemID, orderID))
}

func (r *Repository) InsertItem(ctx context.Context, li LineItem) (LineItem, error) {
	return scanItem(r.pool.QueryRow(ctx, `INSERT INTO order_line_items
		(order_id, stock_lot_id, quantity, unit_price, line_total, quantity_delivered)
		VALUES ($1, $2, $3, $4, $5, 0) RETURNING `+itemColumns,
		li.OrderID, li.StockLotID, li.Quantity, li.UnitPrice, li.LineTotal))
}

// UpdateItem rewrites an undelivered item; a concurrent delivery makes it miss.
func (r *Repository) UpdateItem(ctx context.Context, li LineItem) (LineItem, error) {
	updated, err := scanItem(r.pool.QueryRow(ctx, `UPDATE order_line_items
		SET stock_lot_id = $2, quantity = $3, unit_price = $4, line_total = $5, updated_at = NOW()
		WHERE id = $1 AND quantity_delivered = 0 RETURNING `+itemColumns,
		li.ID, li.StockLotID, li.Quantity, li.UnitPrice, li.LineTotal))
	if errors.Is(err, shared.ErrNotFound) {
		return LineItem{}, fmt.Errorf("line item %d: %w", li.ID, shared.ErrConflict)
	}
	return updated, err
}

func (r *Repository) DeleteItem(ctx context.Context, itemID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM order_line_items WHERE id = $1`, itemID)
	return err
}

func (r *Repository) RecomputeTotal(ctx context.Context, orderID int64) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `UPDATE orders
		SET total_amount = (SELECT COALESCE(SUM(line_total), 0) FROM order_line_items WHERE order_id = $1), updated_at = NOW()
		WHERE id = $1 RETURNING total_amount::float8`, orderID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("order %d: %w", orderID, shared.ErrNotFound)
	}
	return total, err
}

// ============================================================================
// DELETION
// ============================================================================

func (r *Repository) RestoreDeliveredItem(ctx context.Context, li LineItem) (bool, error) {
	var restored bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE order_line_items SET inventory_restored = TRUE, updated_at = NOW()
			WHERE id = $1 AND NOT inventory_restored`, li.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		restored = true
		return inventory.RestoreAvailable(ctx, tx, li.StockLotID, li.QuantityDelivered)
	})
	return restored, err
}

func (r *Repository) CountInvoices(ctx context.Context, orderID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE order_id = $1`, orderID).Scan(&n)
	return n, err
}

func (r *Repository) DeleteInvoices(ctx context.Context, orderID int64) (int64, error) {
	return r.deleteWhere(ctx, `DELETE FROM invoices WHERE order_id = $1`, orderID)
}

func (r *Repository) DeleteItems(ctx context.Context, orderID int64) (int64, error) {
	return r.deleteWhere(ctx, `DELETE FROM order_line_items WHERE order_id = $1`, orderID)
}

func (r *Repository) DeleteOrder(ctx context.Context, orderID int64) error {
	n, err := r.deleteWhere(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %d: %w", orderID, shared.ErrNotFound)
	}
	return nil
}

func (r *Repository) deleteWhere(ctx context.Context, sql string, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, sql, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
