// Package forecast projects product demand from history and tracks accuracy.
package forecast

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Method selects how quantities are projected.
type Method string

const (
	MethodManual               Method = "manual"
	MethodMovingAverage        Method = "moving_average"
	MethodExponentialSmoothing Method = "exponential_smoothing"
)

// Status is the lifecycle of a forecast.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// DefaultWindow is used by moving averages when no window is given.
const DefaultWindow = 3

// Forecast is a demand projection for one product.
type Forecast struct {
	ID         int64            `json:"id"`
	TenantID   int64            `json:"tenant_id"`
	Number     string           `json:"number"`
	ProductID  int64            `json:"product_id"`
	Method     Method           `json:"method"`
	Horizon    int              `json:"horizon"`
	Alpha      *decimal.Decimal `json:"alpha,omitempty"`
	WindowSize *int             `json:"window_size,omitempty"`
	Status     Status           `json:"status"`
	Notes      string           `json:"notes"`
	CreatedBy  *int64           `json:"created_by,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Lines      []Line           `json:"lines,omitempty"`
}

// Line is the projection for one period.
type Line struct {
	ID              int64            `json:"id"`
	LineNo          int              `json:"line_no"`
	PeriodStart     shared.Date      `json:"period_start"`
	ForecastQty     decimal.Decimal  `json:"forecast_qty"`
	ActualQty       *decimal.Decimal `json:"actual_qty,omitempty"`
	AccuracyPercent *decimal.Decimal `json:"accuracy_percent,omitempty"`
}

// LineInput is a manually entered period.
type LineInput struct {
	PeriodStart shared.Date     `json:"period_start"`
	ForecastQty decimal.Decimal `json:"forecast_qty"`
}

// CreateInput stores a manual forecast with explicit lines.
type CreateInput struct {
	ProductID int64       `json:"product_id" validate:"required,gt=0"`
	Notes     string      `json:"notes" validate:"max=2000"`
	Lines     []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// GenerateInput projects Horizon monthly periods from StartPeriod.
// Manual generation takes Quantities verbatim.
type GenerateInput struct {
	ProductID   int64             `json:"product_id" validate:"required,gt=0"`
	Method      Method            `json:"method" validate:"required,oneof=manual moving_average exponential_smoothing"`
	History     []decimal.Decimal `json:"history"`
	Quantities  []decimal.Decimal `json:"quantities"`
	Horizon     int               `json:"horizon" validate:"required,min=1,max=120"`
	Alpha       *decimal.Decimal  `json:"alpha"`
	Window      int               `json:"window" validate:"omitempty,min=1"`
	StartPeriod shared.Date       `json:"start_period"`
	Notes       string            `json:"notes" validate:"max=2000"`
}

// UpdateInput edits notes or moves the forecast along its lifecycle.
type UpdateInput struct {
	Notes  *string `json:"notes" validate:"omitempty,max=2000"`
	Status *Status `json:"status"`
}

type ActualInput struct {
	ActualQty decimal.Decimal `json:"actual_qty"`
}

type ListFilters struct {
	ProductID int64
	Status    Status
	Limit     int
	Offset    int
}

func canTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusActive || to == StatusArchived
	case StatusActive:
		return to == StatusArchived
	}
	return false
}

// monthlyLines spreads quantities over consecutive months from start.
func monthlyLines(start shared.Date, qty []decimal.Decimal) []Line {
	lines := make([]Line, 0, len(qty))
	for i, q := range qty {
		lines = append(lines, Line{
			LineNo:      i + 1,
			PeriodStart: shared.DateOf(start.AddDate(0, i, 0)),
			ForecastQty: q,
		})
	}
	return lines
}

func repeat(q decimal.Decimal, n int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = q
	}
	return out
}

func checkNonNegative(label string, values []decimal.Decimal) error {
	for i, v := range values {
		if v.IsNegative() {
			return shared.Invalid("%s[%d] must not be negative", label, i)
		}
	}
	return nil
}
