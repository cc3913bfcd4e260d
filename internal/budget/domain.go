package budget

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status is the approval state of a budget.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusClosed   Status = "closed"
)

// Budget is a departmental budget for one fiscal year.
type Budget struct {
	ID              int64           `json:"id"`
	TenantID        int64           `json:"tenant_id"`
	Number          string          `json:"number"`
	Name            string          `json:"name"`
	FiscalYear      int             `json:"fiscal_year"`
	Department      string          `json:"department"`
	Status          Status          `json:"status"`
	TotalBudget     decimal.Decimal `json:"total_budget"`
	TotalActual     decimal.Decimal `json:"total_actual"`
	TotalVariance   decimal.Decimal `json:"total_variance"`
	VariancePercent decimal.Decimal `json:"variance_percent"`
	Notes           string          `json:"notes"`
	ApprovedBy      *int64          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	CreatedBy       *int64          `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Lines           []Line          `json:"lines,omitempty"`
}

// Line is one account allocation within a budget.
type Line struct {
	ID              int64           `json:"id"`
	LineNo          int             `json:"line_no"`
	AccountCode     string          `json:"account_code"`
	Description     string          `json:"description"`
	BudgetAmount    decimal.Decimal `json:"budget_amount"`
	ActualAmount    decimal.Decimal `json:"actual_amount"`
	Variance        decimal.Decimal `json:"variance"`
	VariancePercent decimal.Decimal `json:"variance_percent"`
}

type LineInput struct {
	AccountCode  string          `json:"account_code" validate:"required,max=32"`
	Description  string          `json:"description" validate:"max=500"`
	BudgetAmount decimal.Decimal `json:"budget_amount"`
	ActualAmount decimal.Decimal `json:"actual_amount"`
}

type CreateInput struct {
	Name       string      `json:"name" validate:"required,max=200"`
	FiscalYear int         `json:"fiscal_year" validate:"required,min=1900,max=9999"`
	Department string      `json:"department" validate:"max=100"`
	Notes      string      `json:"notes" validate:"max=2000"`
	Lines      []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// UpdateInput patches a draft budget. A non-nil Lines replaces every line.
type UpdateInput struct {
	Name       *string     `json:"name" validate:"omitempty,max=200"`
	FiscalYear *int        `json:"fiscal_year" validate:"omitempty,min=1900,max=9999"`
	Department *string     `json:"department" validate:"omitempty,max=100"`
	Notes      *string     `json:"notes" validate:"omitempty,max=2000"`
	Lines      []LineInput `json:"lines" validate:"omitempty,min=1,dive"`
}

type ActualInput struct {
	ActualAmount decimal.Decimal `json:"actual_amount"`
}

type ListFilters struct {
	FiscalYear int
	Department string
	Status     Status
	Limit      int
	Offset     int
}

func buildLines(inputs []LineInput) ([]Line, error) {
	if len(inputs) == 0 {
		return nil, shared.Invalid("at least one line required")
	}
	lines := make([]Line, 0, len(inputs))
	for i, in := range inputs {
		code := strings.TrimSpace(in.AccountCode)
		if code == "" {
			return nil, shared.Invalid("line %d: account code required", i+1)
		}
		if in.BudgetAmount.IsNegative() || in.ActualAmount.IsNegative() {
			return nil, shared.Invalid("line %d: amounts must not be negative", i+1)
		}
		line := Line{
			LineNo:       i + 1,
			AccountCode:  code,
			Description:  strings.TrimSpace(in.Description),
			BudgetAmount: shared.RoundMoney(in.BudgetAmount),
			ActualAmount: shared.RoundMoney(in.ActualAmount),
		}
		line.refresh()
		lines = append(lines, line)
	}
	return lines, nil
}

func (l *Line) refresh() {
	v := CalculateVariance(l.BudgetAmount, l.ActualAmount)
	l.Variance = v.Amount
	l.VariancePercent = v.Percent
}

// applyTotals recomputes header totals from lines.
func applyTotals(b *Budget) {
	budget, actual := decimal.Zero, decimal.Zero
	for _, l := range b.Lines {
		budget = budget.Add(l.BudgetAmount)
		actual = actual.Add(l.ActualAmount)
	}
	v := CalculateVariance(budget, actual)
	b.TotalBudget = budget
	b.TotalActual = actual
	b.TotalVariance = v.Amount
	b.VariancePercent = v.Percent
}
