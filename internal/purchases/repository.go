package purchases

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
	Insert(ctx context.Context, p Purchase) (Purchase, error)
	LoadForUpdate(ctx context.Context, id int64) (Purchase, error)
	UpdateHeader(ctx context.Context, p Purchase) (Purchase, error)
	ReplaceItems(ctx context.Context, purchaseID int64, items []Item) ([]Item, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	Delete(ctx context.Context, id int64) error
}

// Repository persists purchases.
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

const purchaseColumns = `id, tenant_id, number, supplier_name, purchase_date, status, subtotal, tax_rate,
	tax_amount, total_amount, notes, created_by, created_at, updated_at`

const itemColumns = `id, line_no, product_id, description, quantity, unit_price, amount`

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	var status string
	err := row.Scan(&p.ID, &p.TenantID, &p.Number, &p.SupplierName, &p.PurchaseDate.Time, &status, &p.Subtotal, &p.TaxRate,
		&p.TaxAmount, &p.TotalAmount, &p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	p.Status = Status(status)
	return p, err
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.LineNo, &it.ProductID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Amount)
	return it, err
}

// List returns purchase headers.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Purchase, int, error) {
	var (
		out   []Purchase
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
			where += ` AND purchase_date >= $` + strconv.Itoa(len(args))
		}
		if filters.To != nil {
			args = append(args, *filters.To)
			where += ` AND purchase_date <= $` + strconv.Itoa(len(args))
		}
		if filters.Supplier != "" {
			args = append(args, "%"+filters.Supplier+"%")
			where += ` AND supplier_name ILIKE $` + strconv.Itoa(len(args))
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM purchases`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("purchases: count: %w", err)
		}
		args = append(args, filters.Limit, filters.Offset)
		rows, err := tx.Query(ctx, `SELECT `+purchaseColumns+` FROM purchases`+where+
			` ORDER BY purchase_date DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
		if err != nil {
			return fmt.Errorf("purchases: list: %w", err)
		}
		defer rows.Close()
		out = make([]Purchase, 0)
		for rows.Next() {
			p, err := scanPurchase(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, total, err
}

// Get loads a purchase with items.
func (r *Repository) Get(ctx context.Context, id int64) (Purchase, error) {
	var p Purchase
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

func (t *txRepo) load(ctx context.Context, id int64, lock string) (Purchase, error) {
	p, err := scanPurchase(t.tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases
WHERE tenant_id = $1 AND id = $2`+lock, t.tenantID, id))
	if db.IsNoRows(err) {
		return Purchase{}, shared.NotFound("purchase", id)
	}
	if err != nil {
		return Purchase{}, err
	}
	p.Items, err = t.items(ctx, id)
	return p, err
}

func (t *txRepo) items(ctx context.Context, purchaseID int64) ([]Item, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+itemColumns+` FROM purchase_items
WHERE tenant_id = $1 AND purchase_id = $2 ORDER BY line_no`, t.tenantID, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("purchases: items: %w", err)
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
	return db.NextNumber(ctx, t.tx, t.tenantID, shared.PrefixPurchase)
}

func (t *txRepo) EnsureProducts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var found int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE tenant_id = $1 AND id = ANY($2)`, t.tenantID, ids).Scan(&found); err != nil {
		return fmt.Errorf("purchases: check products: %w", err)
	}
	if found != len(ids) {
		return shared.Invalid("unknown product referenced by item")
	}
	return nil
}

func (t *txRepo) Insert(ctx context.Context, p Purchase) (Purchase, error) {
	created, err := scanPurchase(t.tx.QueryRow(ctx, `
INSERT INTO purchases (tenant_id, number, supplier_name, purchase_date, status, subtotal, tax_rate, tax_amount, total_amount, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING `+purchaseColumns,
		t.tenantID, p.Number, p.SupplierName, p.PurchaseDate.Time, string(p.Status), p.Subtotal, p.TaxRate,
		p.TaxAmount, p.TotalAmount, p.Notes, p.CreatedBy))
	if db.IsUniqueViolation(err) {
		return Purchase{}, shared.Conflict("purchase number %s already used", p.Number)
	}
	if err != nil {
		return Purchase{}, err
	}
	created.Items, err = t.insertItems(ctx, created.ID, p.Items)
	return created, err
}

func (t *txRepo) insertItems(ctx context.Context, purchaseID int64, items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		row := t.tx.QueryRow(ctx, `
INSERT INTO purchase_items (purchase_id, tenant_id, line_no, product_id, description, quantity, unit_price, amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+itemColumns,
			purchaseID, t.tenantID, it.LineNo, it.ProductID, it.Description, it.Quantity, it.UnitPrice, it.Amount)
		saved, err := scanItem(row)
		if err != nil {
			return nil, fmt.Errorf("purchases: insert item %d: %w", it.LineNo, err)
		}
		out = append(out, saved)
	}
	return out, nil
}

func (t *txRepo) LoadForUpdate(ctx context.Context, id int64) (Purchase, error) {
	return t.load(ctx, id, " FOR UPDATE")
}

func (t *txRepo) UpdateHeader(ctx context.Context, p Purchase) (Purchase, error) {
	return scanPurchase(t.tx.QueryRow(ctx, `
UPDATE purchases SET supplier_name = $3, purchase_date = $4, subtotal = $5, tax_rate = $6,
	tax_amount = $7, total_amount = $8, notes = $9, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+purchaseColumns,
		t.tenantID, p.ID, p.SupplierName, p.PurchaseDate.Time, p.Subtotal, p.TaxRate, p.TaxAmount, p.TotalAmount, p.Notes))
}

func (t *txRepo) ReplaceItems(ctx context.Context, purchaseID int64, items []Item) ([]Item, error) {
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_items WHERE tenant_id = $1 AND purchase_id = $2`, t.tenantID, purchaseID); err != nil {
		return nil, fmt.Errorf("purchases: clear items: %w", err)
	}
	return t.insertItems(ctx, purchaseID, items)
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchases SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		t.tenantID, id, string(status))
	return err
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchases WHERE tenant_id = $1 AND id = $2`, t.tenantID, id)
	if db.IsForeignKeyViolation(err) {
		return shared.Conflict("purchase %d has goods receipts", id)
	}
	return err
}
