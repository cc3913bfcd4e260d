package forecast

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
	Insert(ctx context.Context, f Forecast) (Forecast, error)
	LoadForUpdate(ctx context.Context, id int64) (Forecast, error)
	UpdateHeader(ctx context.Context, f Forecast) (Forecast, error)
	UpdateLine(ctx context.Context, forecastID int64, line Line) error
	Delete(ctx context.Context, id int64) error
}

// Repository persists forecasts.
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

const forecastColumns = `id, tenant_id, number, product_id, method, horizon, alpha, window_size, status, notes,
	created_by, created_at, updated_at`

func scanForecast(row pgx.Row) (Forecast, error) {
	var f Forecast
	var method, status string
	err := row.Scan(&f.ID, &f.TenantID, &f.Number, &f.ProductID, &method, &f.Horizon, &f.Alpha, &f.WindowSize,
		&status, &f.Notes, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	f.Method = Method(method)
	f.Status = Status(status)
	return f, err
}

func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Forecast, int, error) {
	var (
		out   []Forecast
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
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM forecasts`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("forecast: count: %w", err)
		}
		args = append(args, filters.Limit, filters.Offset)
		rows, err := tx.Query(ctx, `SELECT `+forecastColumns+` FROM forecasts`+where+
			` ORDER BY id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
		if err != nil {
			return fmt.Errorf("forecast: list: %w", err)
		}
		defer rows.Close()
		out = make([]Forecast, 0)
		for rows.Next() {
			f, err := scanForecast(rows)
			if err != nil {
				return err
			}
			out = append(out, f)
		}
		return rows.Err()
	})
	return out, total, err
}

func (r *Repository) Get(ctx context.Context, id int64) (Forecast, error) {
	var f Forecast
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		var err error
		f, err = (&txRepo{tx: tx, tenantID: tenantID}).load(ctx, id, "")
		return err
	})
	return f, err
}

type txRepo struct {
	tx       pgx.Tx
	tenantID int64
}

func (t *txRepo) NextNumber(ctx context.Context) (string, error) {
	return db.NextNumber(ctx, t.tx, t.tenantID, shared.PrefixForecast)
}

func (t *txRepo) load(ctx context.Context, id int64, lock string) (Forecast, error) {
	f, err := scanForecast(t.tx.QueryRow(ctx, `SELECT `+forecastColumns+` FROM forecasts WHERE tenant_id = $1 AND id = $2`+lock,
		t.tenantID, id))
	if db.IsNoRows(err) {
		return Forecast{}, shared.NotFound("forecast", id)
	}
	if err != nil {
		return Forecast{}, err
	}
	rows, err := t.tx.Query(ctx, `SELECT id, line_no, period_start, forecast_qty, actual_qty, accuracy_percent
FROM forecast_lines WHERE tenant_id = $1 AND forecast_id = $2 ORDER BY line_no`, t.tenantID, id)
	if err != nil {
		return Forecast{}, fmt.Errorf("forecast: lines: %w", err)
	}
	defer rows.Close()
	f.Lines = make([]Line, 0)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.LineNo, &l.PeriodStart.Time, &l.ForecastQty, &l.ActualQty, &l.AccuracyPercent); err != nil {
			return Forecast{}, err
		}
		f.Lines = append(f.Lines, l)
	}
	return f, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, f Forecast) (Forecast, error) {
	created, err := scanForecast(t.tx.QueryRow(ctx, `
INSERT INTO forecasts (tenant_id, number, product_id, method, horizon, alpha, window_size, status, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+forecastColumns,
		t.tenantID, f.Number, f.ProductID, string(f.Method), f.Horizon, f.Alpha, f.WindowSize, string(f.Status), f.Notes, f.CreatedBy))
	if db.IsUniqueViolation(err) {
		return Forecast{}, shared.Conflict("forecast number %s already used", f.Number)
	}
	if err != nil {
		return Forecast{}, err
	}
	created.Lines = make([]Line, 0, len(f.Lines))
	for _, l := range f.Lines {
		err := t.tx.QueryRow(ctx, `
INSERT INTO forecast_lines (forecast_id, tenant_id, line_no, period_start, forecast_qty)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, created.ID, t.tenantID, l.LineNo, l.PeriodStart.Time, l.ForecastQty).Scan(&l.ID)
		if err != nil {
			return Forecast{}, fmt.Errorf("forecast: insert line %d: %w", l.LineNo, err)
		}
		created.Lines = append(created.Lines, l)
	}
	return created, nil
}

func (t *txRepo) LoadForUpdate(ctx context.Context, id int64) (Forecast, error) {
	return t.load(ctx, id, " FOR UPDATE")
}

func (t *txRepo) UpdateHeader(ctx context.Context, f Forecast) (Forecast, error) {
	return scanForecast(t.tx.QueryRow(ctx, `
UPDATE forecasts SET status = $3, notes = $4, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+forecastColumns, t.tenantID, f.ID, string(f.Status), f.Notes))
}

func (t *txRepo) UpdateLine(ctx context.Context, forecastID int64, line Line) error {
	_, err := t.tx.Exec(ctx, `
UPDATE forecast_lines SET actual_qty = $4, accuracy_percent = $5
WHERE tenant_id = $1 AND forecast_id = $2 AND id = $3`, t.tenantID, forecastID, line.ID, line.ActualQty, line.AccuracyPercent)
	return err
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM forecasts WHERE tenant_id = $1 AND id = $2`, t.tenantID, id)
	return err
}
