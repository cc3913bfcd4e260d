package forecast

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const qtyPlaces = 4

// MovingAverage returns the mean of the last window points of history.
func MovingAverage(history []decimal.Decimal, window int) (decimal.Decimal, error) {
	if window <= 0 {
		return decimal.Zero, shared.Invalid("window must be positive")
	}
	if len(history) < window {
		return decimal.Zero, shared.Invalid("moving average over %d periods needs at least %d history points, got %d", window, window, len(history))
	}
	sum := decimal.Zero
	for _, v := range history[len(history)-window:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(window))).Round(qtyPlaces), nil
}

// ExponentialSmoothing returns the smoothed level after the last point,
// seeded with the first observation.
func ExponentialSmoothing(history []decimal.Decimal, alpha decimal.Decimal) (decimal.Decimal, error) {
	if !alpha.IsPositive() || alpha.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, shared.Invalid("alpha must be in (0, 1]")
	}
	if len(history) == 0 {
		return decimal.Zero, shared.Invalid("exponential smoothing needs history")
	}
	level := history[0]
	rest := decimal.NewFromInt(1).Sub(alpha)
	for _, v := range history[1:] {
		level = alpha.Mul(v).Add(rest.Mul(level))
	}
	return level.Round(qtyPlaces), nil
}

// Accuracy scores a forecast against the actual quantity:
// 100 − |actual − forecast| / actual × 100, floored at zero.
func Accuracy(forecast, actual decimal.Decimal) decimal.Decimal {
	if actual.IsZero() {
		if forecast.IsZero() {
			return shared.Hundred
		}
		return decimal.Zero
	}
	miss := actual.Sub(forecast).Abs().Div(actual).Mul(shared.Hundred)
	acc := shared.Hundred.Sub(miss)
	if acc.IsNegative() {
		return decimal.Zero
	}
	return acc.Round(2)
}
