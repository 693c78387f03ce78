package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const customerColumns = `id, code, name, customer_type, email, phone, address, is_active, created_by, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.CustomerType, &c.Email, &c.Phone, &c.Address,
		&c.IsActive, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("customer: %w", shared.ErrNotFound)
	}
	return c, err
}

func (r *repository) Get(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (r *repository) GetByCode(ctx context.Context, code string) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE code = $1`, code))
}

func (r *repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	page, perPage := shared.NormalizePage(req.Page, req.PerPage)
	clauses := []string{"TRUE"}
	var args []any
	if s := strings.TrimSpace(req.Search); s != "" {
		args = append(args, "%"+s+"%")
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args), len(args)))
	}
	if t := strings.TrimSpace(req.CustomerType); t != "" {
		args = append(args, strings.ToUpper(t))
		clauses = append(clauses, fmt.Sprintf("customer_type = $%d", len(args)))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM customers WHERE %s ORDER BY name LIMIT $%d OFFSET $%d`,
		customerColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Customer) (Customer, error) {
	created, err := scanCustomer(r.pool.QueryRow(ctx, `INSERT INTO customers (code, name, customer_type, email, phone, address, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+customerColumns,
		c.Code, c.Name, c.CustomerType, c.Email, c.Phone, c.Address, c.IsActive, c.CreatedBy))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Customer{}, fmt.Errorf("%w: %s", ErrAlreadyExists, c.Code)
		}
		return Customer{}, err
	}
	return created, nil
}

func (r *repository) NextCode(ctx context.Context) (string, error) {
	var next int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(code FROM 6) AS bigint)), 0) + 1
		FROM customers WHERE code ~ '^CUST-[0-9]+$'`).Scan(&next)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CUST-%05d", next), nil
}
