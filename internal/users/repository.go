package users

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool db.Beginner
}

// NewRepository constructs a repository.
func NewRepository(pool db.Beginner) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, tenant_id, email, name, role, is_active, last_login_at, created_at, updated_at, password_hash`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt, &u.PasswordHash)
	return u, err
}

// List returns users ordered by id.
func (r *Repository) List(ctx context.Context, params shared.ListParams) ([]User, error) {
	var out []User
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		rows, err := tx.Query(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
			tenantID, params.Limit, params.Offset)
		if err != nil {
			return fmt.Errorf("users: list: %w", err)
		}
		defer rows.Close()
		out = make([]User, 0)
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	return out, err
}

// Get loads one user.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	var u User
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		u, err = scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND id = $2`, tenantID, id))
		if db.IsNoRows(err) {
			return shared.NotFound("user", id)
		}
		return err
	})
	return u, err
}

// FindByEmail loads a user by case-insensitive email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		u, err = scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND lower(email) = lower($2)`, tenantID, email))
		if db.IsNoRows(err) {
			return shared.NotFound("user", email)
		}
		return err
	})
	return u, err
}

// Create inserts a user.
func (r *Repository) Create(ctx context.Context, u User) (User, error) {
	var created User
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		created, err = scanUser(tx.QueryRow(ctx, `
INSERT INTO users (tenant_id, email, name, role, password_hash, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+userColumns, tenantID, u.Email, u.Name, u.Role, u.PasswordHash, u.IsActive))
		if db.IsUniqueViolation(err) {
			return shared.Conflict("email %s already registered", u.Email)
		}
		return err
	})
	return created, err
}

// Update writes mutable columns.
func (r *Repository) Update(ctx context.Context, u User) (User, error) {
	var updated User
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		updated, err = scanUser(tx.QueryRow(ctx, `
UPDATE users SET name = $3, role = $4, is_active = $5, password_hash = $6, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+userColumns, tenantID, u.ID, u.Name, u.Role, u.IsActive, u.PasswordHash))
		if db.IsNoRows(err) {
			return shared.NotFound("user", u.ID)
		}
		return err
	})
	return updated, err
}

// Delete removes a user.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE tenant_id = $1 AND id = $2`, tenantID, id)
		if err != nil {
			return fmt.Errorf("users: delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.NotFound("user", id)
		}
		return nil
	})
}

// TouchLogin stamps last_login_at.
func (r *Repository) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	return db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		_, err := tx.Exec(ctx, `UPDATE users SET last_login_at = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, at)
		return err
	})
}
