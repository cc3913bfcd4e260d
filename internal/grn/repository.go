package grn

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/purchases"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// TxRepository exposes transactional persistence helpers.
type TxRepository interface {
	NextNumber(ctx context.Context) (string, error)
	LoadPurchase(ctx context.Context, purchaseID int64) (PurchaseRef, error)
	MarkPurchaseReceived(ctx context.Context, purchaseID int64) error
	Insert(ctx context.Context, g GRN) (GRN, error)
	LoadForUpdate(ctx context.Context, id int64) (GRN, error)
	UpdateHeader(ctx context.Context, g GRN) (GRN, error)
	UpdateLines(ctx context.Context, grnID int64, items []Item) error
	Settle(ctx context.Context, g GRN) (GRN, error)
	Delete(ctx context.Context, id int64) error
}

// Repository persists goods receipts.
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

const grnColumns = `id, tenant_id, number, purchase_id, received_date, status, total_accepted_qty, total_rejected_qty,
	total_accepted_value, total_rejected_value, notes, received_by, created_at, updated_at`

const itemColumns = `id, line_no, purchase_item_id, description, ordered_qty, received_qty, accepted_qty, rejected_qty, unit_price`

func scanGRN(row pgx.Row) (GRN, error) {
	var g GRN
	var status string
	err := row.Scan(&g.ID, &g.TenantID, &g.Number, &g.PurchaseID, &g.ReceivedDate.Time, &status,
		&g.TotalAcceptedQty, &g.TotalRejectedQty, &g.TotalAcceptedValue, &g.TotalRejectedValue,
		&g.Notes, &g.ReceivedBy, &g.CreatedAt, &g.UpdatedAt)
	g.Status = Status(status)
	return g, err
}

// List returns receipt headers.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]GRN, int, error) {
	var (
		out   []GRN
		total int
	)
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		where := ` WHERE tenant_id = $1`
		args := []any{tenantID}
		if filters.PurchaseID > 0 {
			args = append(args, filters.PurchaseID)
			where += ` AND purchase_id = $` + strconv.Itoa(len(args))
		}
		if filters.Status != "" {
			args = append(args, string(filters.Status))
			where += ` AND status = $` + strconv.Itoa(len(args))
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM grns`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("grn: count: %w", err)
		}
		args = append(args, filters.Limit, filters.Offset)
		rows, err := tx.Query(ctx, `SELECT `+grnColumns+` FROM grns`+where+
			` ORDER BY received_date DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
		if err != nil {
			return fmt.Errorf("grn: list: %w", err)
		}
		defer rows.Close()
		out = make([]GRN, 0)
		for rows.Next() {
			g, err := scanGRN(rows)
			if err != nil {
				return err
			}
			out = append(out, g)
		}
		return rows.Err()
	})
	return out, total, err
}

// Get loads a receipt with items.
func (r *Repository) Get(ctx context.Context, id int64) (GRN, error) {
	var g GRN
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		g, err = (&txRepo{tx: tx, tenantID: tenantID}).load(ctx, id, "")
		return err
	})
	return g, err
}

type txRepo struct {
	tx       pgx.Tx
	tenantID int64
}

func (t *txRepo) NextNumber(ctx context.Context) (string, error) {
	return db.NextNumber(ctx, t.tx, t.tenantID, shared.PrefixGRN)
}

func (t *txRepo) LoadPurchase(ctx context.Context, purchaseID int64) (PurchaseRef, error) {
	ref := PurchaseRef{ID: purchaseID}
	var status string
	err := t.tx.QueryRow(ctx, `SELECT status, purchase_date FROM purchases WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		t.tenantID, purchaseID).Scan(&status, &ref.PurchaseDate.Time)
	if db.IsNoRows(err) {
		return PurchaseRef{}, shared.NotFound("purchase", purchaseID)
	}
	if err != nil {
		return PurchaseRef{}, err
	}
	ref.Status = purchases.Status(status)
	rows, err := t.tx.Query(ctx, `SELECT id, line_no, product_id, description, quantity, unit_price, amount
FROM purchase_items WHERE tenant_id = $1 AND purchase_id = $2 ORDER BY line_no`, t.tenantID, purchaseID)
	if err != nil {
		return PurchaseRef{}, fmt.Errorf("grn: purchase items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it purchases.Item
		if err := rows.Scan(&it.ID, &it.LineNo, &it.ProductID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Amount); err != nil {
			return PurchaseRef{}, err
		}
		ref.Items = append(ref.Items, it)
	}
	return ref, rows.Err()
}

func (t *txRepo) MarkPurchaseReceived(ctx context.Context, purchaseID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchases SET status = $3, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2 AND status = $4`,
		t.tenantID, purchaseID, string(purchases.StatusReceived), string(purchases.StatusOrdered))
	return err
}

func (t *txRepo) load(ctx context.Context, id int64, lock string) (GRN, error) {
	g, err := scanGRN(t.tx.QueryRow(ctx, `SELECT `+grnColumns+` FROM grns WHERE tenant_id = $1 AND id = $2`+lock,
		t.tenantID, id))
	if db.IsNoRows(err) {
		return GRN{}, shared.NotFound("grn", id)
	}
	if err != nil {
		return GRN{}, err
	}
	rows, err := t.tx.Query(ctx, `SELECT `+itemColumns+` FROM grn_items
WHERE tenant_id = $1 AND grn_id = $2 ORDER BY line_no`, t.tenantID, id)
	if err != nil {
		return GRN{}, fmt.Errorf("grn: items: %w", err)
	}
	defer rows.Close()
	g.Items = make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.LineNo, &it.PurchaseItemID, &it.Description, &it.OrderedQty,
			&it.ReceivedQty, &it.AcceptedQty, &it.RejectedQty, &it.UnitPrice); err != nil {
			return GRN{}, err
		}
		g.Items = append(g.Items, it)
	}
	return g, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, g GRN) (GRN, error) {
	created, err := scanGRN(t.tx.QueryRow(ctx, `
INSERT INTO grns (tenant_id, number, purchase_id, received_date, status, total_accepted_qty, total_rejected_qty,
	total_accepted_value, total_rejected_value, notes, received_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING `+grnColumns,
		t.tenantID, g.Number, g.PurchaseID, g.ReceivedDate.Time, string(g.Status), g.TotalAcceptedQty, g.TotalRejectedQty,
		g.TotalAcceptedValue, g.TotalRejectedValue, g.Notes, g.ReceivedBy))
	if db.IsUniqueViolation(err) {
		return GRN{}, shared.Conflict("receipt number %s already used", g.Number)
	}
	if err != nil {
		return GRN{}, err
	}
	created.Items = make([]Item, 0, len(g.Items))
	for _, it := range g.Items {
		err := t.tx.QueryRow(ctx, `
INSERT INTO grn_items (grn_id, tenant_id, line_no, purchase_item_id, description, ordered_qty, received_qty, accepted_qty, rejected_qty, unit_price)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`, created.ID, t.tenantID, it.LineNo, it.PurchaseItemID, it.Description, it.OrderedQty,
			it.ReceivedQty, it.AcceptedQty, it.RejectedQty, it.UnitPrice).Scan(&it.ID)
		if err != nil {
			return GRN{}, fmt.Errorf("grn: insert line %d: %w", it.LineNo, err)
		}
		created.Items = append(created.Items, it)
	}
	return created, nil
}

func (t *txRepo) LoadForUpdate(ctx context.Context, id int64) (GRN, error) {
	return t.load(ctx, id, " FOR UPDATE")
}

func (t *txRepo) UpdateHeader(ctx context.Context, g GRN) (GRN, error) {
	return scanGRN(t.tx.QueryRow(ctx, `
UPDATE grns SET received_date = $3, notes = $4, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+grnColumns, t.tenantID, g.ID, g.ReceivedDate.Time, g.Notes))
}

func (t *txRepo) UpdateLines(ctx context.Context, grnID int64, items []Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`UPDATE grn_items SET accepted_qty = $4, rejected_qty = $5
WHERE tenant_id = $1 AND grn_id = $2 AND line_no = $3`, t.tenantID, grnID, it.LineNo, it.AcceptedQty, it.RejectedQty)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) Settle(ctx context.Context, g GRN) (GRN, error) {
	return scanGRN(t.tx.QueryRow(ctx, `
UPDATE grns SET status = $3, total_accepted_qty = $4, total_rejected_qty = $5,
	total_accepted_value = $6, total_rejected_value = $7, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+grnColumns, t.tenantID, g.ID, string(g.Status), g.TotalAcceptedQty, g.TotalRejectedQty,
		g.TotalAcceptedValue, g.TotalRejectedValue))
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM grns WHERE tenant_id = $1 AND id = $2`, t.tenantID, id)
	if db.IsForeignKeyViolation(err) {
		return shared.Conflict("receipt %d has quality inspections", id)
	}
	return err
}
