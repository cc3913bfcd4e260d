package orders

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// TxRepository exposes transactional persistence helpers.
type TxRepository interface {
	NextNumber(ctx context.Context) (string, error)
	EnsureProducts(ctx context.Context, ids []int64) error
	Insert(ctx context.Context, p Order) (Order, error)
	LoadForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateHeader(ctx context.Context, p Order) (Order, error)
	ReplaceItems(ctx context.Context, orderID int64, items []Item) ([]Item, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	Delete(ctx context.Context, id int64) error
}

// Repository persists orders.
type Repository struct {
	pool db.Beginner
}

// NewRepository builds a repository.
func NewRepository(pool db.Beginner) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps fn within a tenant-scoped transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		return fn(db.ContextWithTx(ctx, tx), &txRepo{tx: tx, tenantID: tenantID})
	})
}

const orderColumns = `id, tenant_id, number, customer_name, order_date, status, subtotal, tax_rate,
	tax_amount, total_amount, notes, created_by, created_at, updated_at`

const itemColumns = `id, line_no, product_id, description, quantity, unit_price, amount`

func scanOrder(row pgx.Row) (Order, error) {
	var p Order
	var status string
	err := row.Scan(&p.ID, &p.TenantID, &p.Number, &p.CustomerName, &p.OrderDate.Time, &status, &p.Subtotal, &p.TaxRate,
		&p.TaxAmount, &p.TotalAmount, &p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	p.Status = Status(status)
	return p, err
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.LineNo, &it.ProductID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Amount)
	return it, err
}

// List returns order headers.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Order, int, error) {
	var (
		out   []Order
		total int
	)
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		where := ` WHERE tenant_id = $1`
		args := []any{tenantID}
		if filters.Status != "" {
			args = append(args, string(filters.Status))
			where += ` AND status = $` + strconv.Itoa(len(args))
		}
		if filters.From != nil {
			args = append(args, *filters.From)
			where += ` AND order_date >= $` + strconv.Itoa(len(args))
		}
		if filters.To != nil {
			args = append(args, *filters.To)
			where += ` AND order_date <= $` + strconv.Itoa(len(args))
		}
		if filters.Customer != "" {
			args = append(args, "%"+filters.Customer+"%")
			where += ` AND customer_name ILIKE $` + strconv.Itoa(len(args))
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("orders: count: %w", err)
		}
		args = append(args, filters.Limit, filters.Offset)
		rows, err := tx.Query(ctx, `SELECT `+orderColumns+` FROM orders`+where+
			` ORDER BY order_date DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
		if err != nil {
			return fmt.Errorf("orders: list: %w", err)
		}
		defer rows.Close()
		out = make([]Order, 0)
		for rows.Next() {
			p, err := scanOrder(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, total, err
}

// Get loads a order with items.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	var p Order
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		p, err = (&txRepo{tx: tx, tenantID: tenantID}).load(ctx, id, "")
		return err
	})
	return p, err
}

type txRepo struct {
	tx       pgx.Tx
	tenantID int64
}

func (t *txRepo) load(ctx context.Context, id int64, lock string) (Order, error) {
	p, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders
WHERE tenant_id = $1 AND id = $2`+lock, t.tenantID, id))
	if db.IsNoRows(err) {
		return Order{}, shared.NotFound("order", id)
	}
	if err != nil {
		return Order{}, err
	}
	p.Items, err = t.items(ctx, id)
	return p, err
}

func (t *txRepo) items(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+itemColumns+` FROM order_items
WHERE tenant_id = $1 AND order_id = $2 ORDER BY line_no`, t.tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: items: %w", err)
	}
	defer rows.Close()
	items := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (t *txRepo) NextNumber(ctx context.Context) (string, error) {
	return db.NextNumber(ctx, t.tx, t.tenantID, shared.PrefixOrder)
}

func (t *txRepo) EnsureProducts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var found int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE tenant_id = $1 AND id = ANY($2)`, t.tenantID, ids).Scan(&found); err != nil {
		return fmt.Errorf("orders: check products: %w", err)
	}
	if found != len(ids) {
		return shared.Invalid("unknown product referenced by item")
	}
	return nil
}

func (t *txRepo) Insert(ctx context.Context, p Order) (Order, error) {
	created, err := scanOrder(t.tx.QueryRow(ctx, `
INSERT INTO orders (tenant_id, number, customer_name, order_date, status, subtotal, tax_rate, tax_amount, total_amount, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING `+orderColumns,
		t.tenantID, p.Number, p.CustomerName, p.OrderDate.Time, string(p.Status), p.Subtotal, p.TaxRate,
		p.TaxAmount, p.TotalAmount, p.Notes, p.CreatedBy))
	if db.IsUniqueViolation(err) {
		return Order{}, shared.Conflict("order number %s already used", p.Number)
	}
	if err != nil {
		return Order{}, err
	}
	created.Items, err = t.insertItems(ctx, created.ID, p.Items)
	return created, err
}

func (t *txRepo) insertItems(ctx context.Context, orderID int64, items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		row := t.tx.QueryRow(ctx, `
INSERT INTO order_items (order_id, tenant_id, line_no, product_id, description, quantity, unit_price, amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+itemColumns,
			orderID, t.tenantID, it.LineNo, it.ProductID, it.Description, it.Quantity, it.UnitPrice, it.Amount)
		saved, err := scanItem(row)
		if err != nil {
			return nil, fmt.Errorf("orders: insert item %d: %w", it.LineNo, err)
		}
		out = append(out, saved)
	}
	return out, nil
}

func (t *txRepo) LoadForUpdate(ctx context.Context, id int64) (Order, error) {
	return t.load(ctx, id, " FOR UPDATE")
}

func (t *txRepo) UpdateHeader(ctx context.Context, p Order) (Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `
UPDATE orders SET customer_name = $3, order_date = $4, subtotal = $5, tax_rate = $6,
	tax_amount = $7, total_amount = $8, notes = $9, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+orderColumns,
		t.tenantID, p.ID, p.CustomerName, p.OrderDate.Time, p.Subtotal, p.TaxRate, p.TaxAmount, p.TotalAmount, p.Notes))
}

func (t *txRepo) ReplaceItems(ctx context.Context, orderID int64, items []Item) ([]Item, error) {
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE tenant_id = $1 AND order_id = $2`, t.tenantID, orderID); err != nil {
		return nil, fmt.Errorf("orders: clear items: %w", err)
	}
	return t.insertItems(ctx, orderID, items)
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		t.tenantID, id, string(status))
	return err
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE tenant_id = $1 AND id = $2`, t.tenantID, id)
	return err
}
