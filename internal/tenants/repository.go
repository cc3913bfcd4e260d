package tenants

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// DB is the subset of *pgxpool.Pool used by Repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists tenants. The tenants table is global, so no tenant scope applies.
type Repository struct {
	db DB
}

// NewRepository constructs a Repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

const tenantColumns = `id, code, name, status, created_at, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	var status string
	if err := row.Scan(&t.ID, &t.Code, &t.Name, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Tenant{}, err
	}
	t.Status = Status(status)
	return t, nil
}

// List returns tenants ordered by code.
func (r *Repository) List(ctx context.Context, params shared.ListParams) ([]Tenant, error) {
	rows, err := r.db.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY code LIMIT $1 OFFSET $2`, params.Limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("tenants: list: %w", err)
	}
	defer rows.Close()
	out := make([]Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get loads a tenant by id.
func (r *Repository) Get(ctx context.Context, id int64) (Tenant, error) {
	t, err := scanTenant(r.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return Tenant{}, shared.NotFound("tenant", id)
	}
	return t, err
}

// GetByCode loads a tenant by code.
func (r *Repository) GetByCode(ctx context.Context, code string) (Tenant, error) {
	t, err := scanTenant(r.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE code = $1`, code))
	if db.IsNoRows(err) {
		return Tenant{}, shared.NotFound("tenant", code)
	}
	return t, err
}

// Create inserts a tenant.
func (r *Repository) Create(ctx context.Context, in CreateInput) (Tenant, error) {
	t, err := scanTenant(r.db.QueryRow(ctx,
		`INSERT INTO tenants (code, name, status) VALUES ($1, $2, $3) RETURNING `+tenantColumns,
		in.Code, in.Name, string(StatusActive)))
	if db.IsUniqueViolation(err) {
		return Tenant{}, shared.Conflict("tenant code %q already exists", in.Code)
	}
	return t, err
}

// Update writes name and status.
func (r *Repository) Update(ctx context.Context, t Tenant) (Tenant, error) {
	updated, err := scanTenant(r.db.QueryRow(ctx,
		`UPDATE tenants SET name = $2, status = $3, updated_at = NOW() WHERE id = $1 RETURNING `+tenantColumns,
		t.ID, t.Name, string(t.Status)))
	if db.IsNoRows(err) {
		return Tenant{}, shared.NotFound("tenant", t.ID)
	}
	return updated, err
}

// Delete removes the tenant row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("tenants: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("tenant", id)
	}
	return nil
}
