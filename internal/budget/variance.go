package budget

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Variance is budget minus actual with its share of the budget.
type Variance struct {
	Budget  decimal.Decimal `json:"budget"`
	Actual  decimal.Decimal `json:"actual"`
	Amount  decimal.Decimal `json:"variance"`
	Percent decimal.Decimal `json:"variance_percent"`
}

// CalculateVariance returns budget − actual and variance / budget × 100
// rounded to 2 dp. The percentage is zero when the budget is zero.
func CalculateVariance(budget, actual decimal.Decimal) Variance {
	amount := budget.Sub(actual)
	return Variance{
		Budget:  budget,
		Actual:  actual,
		Amount:  amount,
		Percent: shared.Percent(amount, budget),
	}
}

// Thresholds flag report rows whose absolute variance reaches either limit.
type Thresholds struct {
	Amount  *decimal.Decimal
	Percent *decimal.Decimal
}

// ReportRow is one budget line ranked by variance.
type ReportRow struct {
	LineNo          int             `json:"line_no"`
	AccountCode     string          `json:"account_code"`
	Description     string          `json:"description"`
	BudgetAmount    decimal.Decimal `json:"budget_amount"`
	ActualAmount    decimal.Decimal `json:"actual_amount"`
	Variance        decimal.Decimal `json:"variance"`
	VariancePercent decimal.Decimal `json:"variance_percent"`
	Flagged         bool            `json:"flagged"`
}

// RankVariance orders lines by absolute variance, largest first, and flags
// rows over the thresholds.
func RankVariance(lines []Line, th Thresholds) []ReportRow {
	rows := make([]ReportRow, 0, len(lines))
	for _, l := range lines {
		v := CalculateVariance(l.BudgetAmount, l.ActualAmount)
		row := ReportRow{
			LineNo:          l.LineNo,
			AccountCode:     l.AccountCode,
			Description:     l.Description,
			BudgetAmount:    l.BudgetAmount,
			ActualAmount:    l.ActualAmount,
			Variance:        v.Amount,
			VariancePercent: v.Percent,
		}
		row.Flagged = exceedsThreshold(row, th)
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Variance.Abs().GreaterThan(rows[j].Variance.Abs())
	})
	return rows
}

func exceedsThreshold(row ReportRow, th Thresholds) bool {
	if th.Amount != nil && row.Variance.Abs().GreaterThanOrEqual(*th.Amount) {
		return true
	}
	if th.Percent != nil && row.VariancePercent.Abs().GreaterThanOrEqual(*th.Percent) {
		return true
	}
	return false
}
