package bom

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
	NextVersion(ctx context.Context, productID int64) (int, error)
	Insert(ctx context.Context, b BOM) (BOM, error)
	LoadForUpdate(ctx context.Context, id int64) (BOM, error)
	UpdateHeader(ctx context.Context, b BOM) (BOM, error)
	ReplaceComponents(ctx context.Context, bomID int64, components []Component) ([]Component, error)
	InsertComponent(ctx context.Context, bomID int64, c Component) (Component, error)
	DeleteComponent(ctx context.Context, bomID int64, lineNo int) error
	ObsoleteActive(ctx context.Context, productID int64) (*BOM, error)
	Delete(ctx context.Context, id int64) error
}

// Repository persists bills of materials.
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

const bomColumns = `id, tenant_id, number, product_id, version, status, description, total_cost, created_by, created_at, updated_at`

const componentColumns = `id, line_no, component_product_id, quantity, unit, scrap_percent, unit_cost, extended_cost`

func scanBOM(row pgx.Row) (BOM, error) {
	var b BOM
	var status string
	err := row.Scan(&b.ID, &b.TenantID, &b.Number, &b.ProductID, &b.Version, &status, &b.Description,
		&b.TotalCost, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	b.Status = Status(status)
	return b, err
}

func scanComponent(row pgx.Row) (Component, error) {
	var c Component
	err := row.Scan(&c.ID, &c.LineNo, &c.ComponentProductID, &c.Quantity, &c.Unit, &c.ScrapPercent, &c.UnitCost, &c.ExtendedCost)
	return c, err
}

func (r *Repository) List(ctx context.Context, filters ListFilters) ([]BOM, int, error) {
	var (
		out   []BOM
		total int
	)
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		where := ` WHERE tenant_id = $1`
		args := []any{tenantID}
		if filters.ProductID > 0 {
			args = append(args, filters.ProductID)
			where += ` AND product_id = $` + strconv.Itoa(len(args))
		}
		if filters.Status != "" {
			args = append(args, string(filters.Status))
			where += ` AND status = $` + strconv.Itoa(len(args))
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM boms`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("bom: count: %w", err)
		}
		args = append(args, filters.Limit, filters.Offset)
		rows, err := tx.Query(ctx, `SELECT `+bomColumns+` FROM boms`+where+
			` ORDER BY product_id, version DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
		if err != nil {
			return fmt.Errorf("bom: list: %w", err)
		}
		defer rows.Close()
		out = make([]BOM, 0)
		for rows.Next() {
			b, err := scanBOM(rows)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	return out, total, err
}

func (r *Repository) Get(ctx context.Context, id int64) (BOM, error) {
	var b BOM
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		b, err = (&txRepo{tx: tx, tenantID: tenantID}).load(ctx, id, "")
		return err
	})
	return b, err
}

type txRepo struct {
	tx       pgx.Tx
	tenantID int64
}

func (t *txRepo) NextNumber(ctx context.Context) (string, error) {
	return db.NextNumber(ctx, t.tx, t.tenantID, shared.PrefixBOM)
}

func (t *txRepo) NextVersion(ctx context.Context, productID int64) (int, error) {
	var version int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM boms WHERE tenant_id = $1 AND product_id = $2`,
		t.tenantID, productID).Scan(&version)
	return version, err
}

func (t *txRepo) load(ctx context.Context, id int64, lock string) (BOM, error) {
	b, err := scanBOM(t.tx.QueryRow(ctx, `SELECT `+bomColumns+` FROM boms WHERE tenant_id = $1 AND id = $2`+lock,
		t.tenantID, id))
	if db.IsNoRows(err) {
		return BOM{}, shared.NotFound("bom", id)
	}
	if err != nil {
		return BOM{}, err
	}
	rows, err := t.tx.Query(ctx, `SELECT `+componentColumns+` FROM bom_components
WHERE tenant_id = $1 AND bom_id = $2 ORDER BY line_no`, t.tenantID, id)
	if err != nil {
		return BOM{}, fmt.Errorf("bom: components: %w", err)
	}
	defer rows.Close()
	b.Components = make([]Component, 0)
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return BOM{}, err
		}
		b.Components = append(b.Components, c)
	}
	return b, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, b BOM) (BOM, error) {
	created, err := scanBOM(t.tx.QueryRow(ctx, `
INSERT INTO boms (tenant_id, number, product_id, version, status, description, total_cost, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+bomColumns,
		t.tenantID, b.Number, b.ProductID, b.Version, string(b.Status), b.Description, b.TotalCost, b.CreatedBy))
	if db.IsUniqueViolation(err) {
		return BOM{}, shared.Conflict("product %d already has BOM version %d", b.ProductID, b.Version)
	}
	if err != nil {
		return BOM{}, err
	}
	created.Components = make([]Component, 0, len(b.Components))
	for _, c := range b.Components {
		saved, err := t.InsertComponent(ctx, created.ID, c)
		if err != nil {
			return BOM{}, err
		}
		created.Components = append(created.Components, saved)
	}
	return created, nil
}

func (t *txRepo) LoadForUpdate(ctx context.Context, id int64) (BOM, error) {
	return t.load(ctx, id, " FOR UPDATE")
}

func (t *txRepo) UpdateHeader(ctx context.Context, b BOM) (BOM, error) {
	updated, err := scanBOM(t.tx.QueryRow(ctx, `
UPDATE boms SET status = $3, description = $4, total_cost = $5, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+bomColumns, t.tenantID, b.ID, string(b.Status), b.Description, b.TotalCost))
	if db.IsUniqueViolation(err) {
		return BOM{}, shared.Conflict("product %d already has an active BOM", b.ProductID)
	}
	return updated, err
}

func (t *txRepo) ReplaceComponents(ctx context.Context, bomID int64, components []Component) ([]Component, error) {
	if _, err := t.tx.Exec(ctx, `DELETE FROM bom_components WHERE tenant_id = $1 AND bom_id = $2`, t.tenantID, bomID); err != nil {
		return nil, fmt.Errorf("bom: clear components: %w", err)
	}
	out := make([]Component, 0, len(components))
	for _, c := range components {
		saved, err := t.InsertComponent(ctx, bomID, c)
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func (t *txRepo) InsertComponent(ctx context.Context, bomID int64, c Component) (Component, error) {
	saved, err := scanComponent(t.tx.QueryRow(ctx, `
INSERT INTO bom_components (bom_id, tenant_id, line_no, component_product_id, quantity, unit, scrap_percent, unit_cost, extended_cost)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+componentColumns,
		bomID, t.tenantID, c.LineNo, c.ComponentProductID, c.Quantity, c.Unit, c.ScrapPercent, c.UnitCost, c.ExtendedCost))
	if err != nil {
		return Component{}, fmt.Errorf("bom: insert component %d: %w", c.LineNo, err)
	}
	return saved, nil
}

func (t *txRepo) DeleteComponent(ctx context.Context, bomID int64, lineNo int) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM bom_components WHERE tenant_id = $1 AND bom_id = $2 AND line_no = $3`,
		t.tenantID, bomID, lineNo)
	return err
}

func (t *txRepo) ObsoleteActive(ctx context.Context, productID int64) (*BOM, error) {
	b, err := scanBOM(t.tx.QueryRow(ctx, `
UPDATE boms SET status = 'obsolete', updated_at = NOW()
WHERE tenant_id = $1 AND product_id = $2 AND status = 'active'
RETURNING `+bomColumns, t.tenantID, productID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM boms WHERE tenant_id = $1 AND id = $2`, t.tenantID, id)
	return err
}
