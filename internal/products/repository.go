package products

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, product Product) (Product, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool db.Beginner
}

func NewRepository(pool db.Beginner) Repository {
	return &repository{pool: pool}
}

const productColumns = `id, tenant_id, code, name, unit, standard_cost, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.Code, &p.Name, &p.Unit, &p.StandardCost, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	var (
		items []Product
		total int
	)
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		where := ` WHERE tenant_id = $1`
		args := []any{tenantID}
		if filters.Search != "" {
			args = append(args, "%"+filters.Search+"%")
			n := strconv.Itoa(len(args))
			where += ` AND (name ILIKE $` + n + ` OR code ILIKE $` + n + `)`
		}
		if filters.IsActive != nil {
			args = append(args, *filters.IsActive)
			where += ` AND is_active = $` + strconv.Itoa(len(args))
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("products: count: %w", err)
		}
		args = append(args, filters.Limit, filters.Offset)
		rows, err := tx.Query(ctx, `SELECT `+productColumns+` FROM products`+where+
			` ORDER BY code LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
		if err != nil {
			return fmt.Errorf("products: list: %w", err)
		}
		defer rows.Close()
		items = make([]Product, 0)
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return err
			}
			items = append(items, p)
		}
		return rows.Err()
	})
	return items, total, err
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		p, err = scanProduct(tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id = $1 AND id = $2`, tenantID, id))
		if db.IsNoRows(err) {
			return shared.NotFound("product", id)
		}
		return err
	})
	return p, err
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	var created Product
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		created, err = scanProduct(tx.QueryRow(ctx, `
INSERT INTO products (tenant_id, code, name, unit, standard_cost, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+productColumns, tenantID, product.Code, product.Name, product.Unit, product.StandardCost, product.IsActive))
		if db.IsUniqueViolation(err) {
			return shared.Conflict("product code %q already exists", product.Code)
		}
		return err
	})
	return created, err
}

func (r *repository) Update(ctx context.Context, product Product) (Product, error) {
	var updated Product
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		updated, err = scanProduct(tx.QueryRow(ctx, `
UPDATE products SET name = $3, unit = $4, standard_cost = $5, is_active = $6, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+productColumns, tenantID, product.ID, product.Name, product.Unit, product.StandardCost, product.IsActive))
		if db.IsNoRows(err) {
			return shared.NotFound("product", product.ID)
		}
		return err
	})
	return updated, err
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	return db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		tag, err := tx.Exec(ctx, `DELETE FROM products WHERE tenant_id = $1 AND id = $2`, tenantID, id)
		if db.IsForeignKeyViolation(err) {
			return shared.Conflict("product %d is referenced by other documents", id)
		}
		if err != nil {
			return fmt.Errorf("products: delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.NotFound("product", id)
		}
		return nil
	})
}
