package periods

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// TxRepository exposes the statements that run inside a period transaction.
type TxRepository interface {
	LockTenant(ctx context.Context) error
	FindOverlapping(ctx context.Context, start, end time.Time) (*Period, error)
	Insert(ctx context.Context, in CreatePeriodInput) (Period, error)
	LoadForUpdate(ctx context.Context, id int64) (Period, error)
	SetClosed(ctx context.Context, id, userID int64, at time.Time) (Period, error)
	SetReopened(ctx context.Context, id, userID int64, at time.Time) (Period, error)
	UpdateDetails(ctx context.Context, id int64, name, notes string) (Period, error)
	CountPosted(ctx context.Context, start, end time.Time) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// Repository persists accounting periods for the tenant in context.
type Repository struct {
	pool db.Beginner
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool db.Beginner) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a tenant-scoped transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		return fn(db.ContextWithTx(ctx, tx), &txRepo{tx: tx, tenantID: tenantID})
	})
}

const periodColumns = `id, tenant_id, name, start_date, end_date, status, notes,
	closed_by, closed_at, reopened_by, reopened_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var status string
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.StartDate.Time, &p.EndDate.Time, &status, &p.Notes,
		&p.ClosedBy, &p.ClosedAt, &p.ReopenedBy, &p.ReopenedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Period{}, err
	}
	p.Status = Status(status)
	return p, nil
}

func scanOptional(row pgx.Row) (*Period, error) {
	p, err := scanPeriod(row)
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns the tenant's periods, newest start date first.
func (r *Repository) List(ctx context.Context) ([]Period, error) {
	var out []Period
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		rows, err := tx.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE tenant_id = $1 ORDER BY start_date DESC`, tenantID)
		if err != nil {
			return fmt.Errorf("periods: list: %w", err)
		}
		defer rows.Close()
		out = make([]Period, 0)
		for rows.Next() {
			p, err := scanPeriod(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

// Get loads a single period.
func (r *Repository) Get(ctx context.Context, id int64) (Period, error) {
	var p Period
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		p, err = scanPeriod(tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE tenant_id = $1 AND id = $2`, tenantID, id))
		if db.IsNoRows(err) {
			return shared.NotFound("accounting period", id)
		}
		return err
	})
	return p, err
}

// FindOpenContaining returns the open period covering date, or nil.
func (r *Repository) FindOpenContaining(ctx context.Context, date time.Time) (*Period, error) {
	var p *Period
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		p, err = scanOptional(tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE tenant_id = $1 AND status = 'open' AND $2::date BETWEEN start_date AND end_date
LIMIT 1`, tenantID, date))
		return err
	})
	return p, err
}

// HasClosedContaining reports whether a closed period covers date. The covering
// period is share-locked, so when ctx carries a posting transaction a concurrent
// close or reopen waits for that posting to finish.
func (r *Repository) HasClosedContaining(ctx context.Context, date time.Time) (bool, error) {
	var closed bool
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM accounting_periods
WHERE tenant_id = $1 AND $2::date BETWEEN start_date AND end_date
FOR SHARE`, tenantID, date).Scan(&status)
		if db.IsNoRows(err) {
			return nil
		}
		if err != nil {
			return err
		}
		closed = Status(status) == StatusClosed
		return nil
	})
	return closed, err
}

type txRepo struct {
	tx       pgx.Tx
	tenantID int64
}

// LockTenant serialises period creation per tenant for the rest of the transaction.
func (r *txRepo) LockTenant(ctx context.Context) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('accounting_periods:' || $1::text, 0))`, r.tenantID)
	return err
}

func (r *txRepo) FindOverlapping(ctx context.Context, start, end time.Time) (*Period, error) {
	return scanOptional(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE tenant_id = $1 AND start_date <= $3::date AND $2::date <= end_date
ORDER BY start_date LIMIT 1`, r.tenantID, start, end))
}

func (r *txRepo) Insert(ctx context.Context, in CreatePeriodInput) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `
INSERT INTO accounting_periods (tenant_id, name, start_date, end_date, status, notes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+periodColumns, r.tenantID, in.Name, in.StartDate.Time, in.EndDate.Time, string(StatusOpen), in.Notes))
	if db.IsExclusionViolation(err) {
		return Period{}, shared.Invalid("period overlaps an existing period")
	}
	return p, err
}

func (r *txRepo) LoadForUpdate(ctx context.Context, id int64) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, r.tenantID, id))
	if db.IsNoRows(err) {
		return Period{}, shared.NotFound("accounting period", id)
	}
	return p, err
}

func (r *txRepo) SetClosed(ctx context.Context, id, userID int64, at time.Time) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `
UPDATE accounting_periods SET status = 'closed', closed_by = $3, closed_at = $4, updated_at = $4
WHERE tenant_id = $1 AND id = $2
RETURNING `+periodColumns, r.tenantID, id, userID, at))
}

func (r *txRepo) SetReopened(ctx context.Context, id, userID int64, at time.Time) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `
UPDATE accounting_periods SET status = 'open', reopened_by = $3, reopened_at = $4, updated_at = $4
WHERE tenant_id = $1 AND id = $2
RETURNING `+periodColumns, r.tenantID, id, userID, at))
}

func (r *txRepo) UpdateDetails(ctx context.Context, id int64, name, notes string) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `
UPDATE accounting_periods SET name = $3, notes = $4, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+periodColumns, r.tenantID, id, name, notes))
}

func (r *txRepo) CountPosted(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM posted_transactions
WHERE tenant_id = $1 AND posted_on BETWEEN $2::date AND $3::date`, r.tenantID, start, end).Scan(&n)
	return n, err
}

func (r *txRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM accounting_periods WHERE tenant_id = $1 AND id = $2`, r.tenantID, id)
	return err
}
