package budget

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
	Insert(ctx context.Context, b Budget) (Budget, error)
	LoadForUpdate(ctx context.Context, id int64) (Budget, error)
	UpdateHeader(ctx context.Context, b Budget) (Budget, error)
	ReplaceLines(ctx context.Context, budgetID int64, lines []Line) ([]Line, error)
	UpdateLine(ctx context.Context, line Line) error
	Delete(ctx context.Context, id int64) error
}

// Repository persists budgets.
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

const budgetColumns = `id, tenant_id, number, name, fiscal_year, department, status, total_budget, total_actual,
	total_variance, variance_percent, notes, approved_by, approved_at, created_by, created_at, updated_at`

const lineColumns = `id, line_no, account_code, description, budget_amount, actual_amount, variance, variance_percent`

func scanBudget(row pgx.Row) (Budget, error) {
	var b Budget
	var status string
	err := row.Scan(&b.ID, &b.TenantID, &b.Number, &b.Name, &b.FiscalYear, &b.Department, &status,
		&b.TotalBudget, &b.TotalActual, &b.TotalVariance, &b.VariancePercent, &b.Notes,
		&b.ApprovedBy, &b.ApprovedAt, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	b.Status = Status(status)
	return b, err
}

func scanLine(row pgx.Row) (Line, error) {
	var l Line
	err := row.Scan(&l.ID, &l.LineNo, &l.AccountCode, &l.Description, &l.BudgetAmount, &l.ActualAmount,
		&l.Variance, &l.VariancePercent)
	return l, err
}

// List returns budget headers.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Budget, int, error) {
	var (
		out   []Budget
		total int
	)
	err := db.Scope(ctx, r.pool, func(tx pgx.Tx, tenantID int64) error {
		where := ` WHERE tenant_id = $1`
		args := []any{tenantID}
		if filters.FiscalYear > 0 {
			args = append(args, filters.FiscalYear)
			where += ` AND fiscal_year = $` + strconv.Itoa(len(args))
		}
		if filters.Department != "" {
			args = append(args, filters.Department)
			where += ` AND department = $` + strconv.Itoa(len(args))
		}
		if filters.Status != "" {
			args = append(args, string(filters.Status))
			where += ` AND status = $` + strconv.Itoa(len(args))
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM budgets`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("budget: count: %w", err)
		}
		args = append(args, filters.Limit, filters.Offset)
		rows, err := tx.Query(ctx, `SELECT `+budgetColumns+` FROM budgets`+where+
			` ORDER BY fiscal_year DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
		if err != nil {
			return fmt.Errorf("budget: list: %w", err)
		}
		defer rows.Close()
		out = make([]Budget, 0)
		for rows.Next() {
			b, err := scanBudget(rows)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	return out, total, err
}

// Get loads a budget with lines.
func (r *Repository) Get(ctx context.Context, id int64) (Budget, error) {
	var b Budget
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
	return db.NextNumber(ctx, t.tx, t.tenantID, shared.PrefixBudget)
}

func (t *txRepo) load(ctx context.Context, id int64, lock string) (Budget, error) {
	b, err := scanBudget(t.tx.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE tenant_id = $1 AND id = $2`+lock,
		t.tenantID, id))
	if db.IsNoRows(err) {
		return Budget{}, shared.NotFound("budget", id)
	}
	if err != nil {
		return Budget{}, err
	}
	rows, err := t.tx.Query(ctx, `SELECT `+lineColumns+` FROM budget_lines
WHERE tenant_id = $1 AND budget_id = $2 ORDER BY line_no`, t.tenantID, id)
	if err != nil {
		return Budget{}, fmt.Errorf("budget: lines: %w", err)
	}
	defer rows.Close()
	b.Lines = make([]Line, 0)
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return Budget{}, err
		}
		b.Lines = append(b.Lines, l)
	}
	return b, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, b Budget) (Budget, error) {
	created, err := scanBudget(t.tx.QueryRow(ctx, `
INSERT INTO budgets (tenant_id, number, name, fiscal_year, department, status, total_budget, total_actual,
	total_variance, variance_percent, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING `+budgetColumns,
		t.tenantID, b.Number, b.Name, b.FiscalYear, b.Department, string(b.Status), b.TotalBudget, b.TotalActual,
		b.TotalVariance, b.VariancePercent, b.Notes, b.CreatedBy))
	if db.IsUniqueViolation(err) {
		return Budget{}, shared.Conflict("budget number %s already used", b.Number)
	}
	if err != nil {
		return Budget{}, err
	}
	created.Lines, err = t.insertLines(ctx, created.ID, b.Lines)
	return created, err
}

func (t *txRepo) insertLines(ctx context.Context, budgetID int64, lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		saved, err := scanLine(t.tx.QueryRow(ctx, `
INSERT INTO budget_lines (budget_id, tenant_id, line_no, account_code, description, budget_amount, actual_amount, variance, variance_percent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+lineColumns,
			budgetID, t.tenantID, l.LineNo, l.AccountCode, l.Description, l.BudgetAmount, l.ActualAmount, l.Variance, l.VariancePercent))
		if err != nil {
			return nil, fmt.Errorf("budget: insert line %d: %w", l.LineNo, err)
		}
		out = append(out, saved)
	}
	return out, nil
}

func (t *txRepo) LoadForUpdate(ctx context.Context, id int64) (Budget, error) {
	return t.load(ctx, id, " FOR UPDATE")
}

func (t *txRepo) UpdateHeader(ctx context.Context, b Budget) (Budget, error) {
	return scanBudget(t.tx.QueryRow(ctx, `
UPDATE budgets SET name = $3, fiscal_year = $4, department = $5, status = $6, total_budget = $7,
	total_actual = $8, total_variance = $9, variance_percent = $10, notes = $11, approved_by = $12,
	approved_at = $13, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+budgetColumns,
		t.tenantID, b.ID, b.Name, b.FiscalYear, b.Department, string(b.Status), b.TotalBudget,
		b.TotalActual, b.TotalVariance, b.VariancePercent, b.Notes, b.ApprovedBy, b.ApprovedAt))
}

func (t *txRepo) ReplaceLines(ctx context.Context, budgetID int64, lines []Line) ([]Line, error) {
	if _, err := t.tx.Exec(ctx, `DELETE FROM budget_lines WHERE tenant_id = $1 AND budget_id = $2`, t.tenantID, budgetID); err != nil {
		return nil, fmt.Errorf("budget: clear lines: %w", err)
	}
	return t.insertLines(ctx, budgetID, lines)
}

func (t *txRepo) UpdateLine(ctx context.Context, line Line) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE budget_lines SET actual_amount = $3, variance = $4, variance_percent = $5
WHERE tenant_id = $1 AND id = $2`, t.tenantID, line.ID, line.ActualAmount, line.Variance, line.VariancePercent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("budget line", line.ID)
	}
	return nil
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM budgets WHERE tenant_id = $1 AND id = $2`, t.tenantID, id)
	return err
}
