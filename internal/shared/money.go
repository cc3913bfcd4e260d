package shared

import "github.com/shopspring/decimal"

// Hundred is 100 as a decimal, used for percentages.
var Hundred = decimal.NewFromInt(100)

// RoundMoney rounds to two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineAmount returns quantity × unit price rounded to cents.
func LineAmount(qty, unitPrice decimal.Decimal) decimal.Decimal {
	return RoundMoney(qty.Mul(unitPrice))
}

// TaxAmount returns subtotal × rate% rounded to cents.
func TaxAmount(subtotal, ratePercent decimal.Decimal) decimal.Decimal {
	return RoundMoney(subtotal.Mul(ratePercent).Div(Hundred))
}

// Percent returns part / whole × 100 rounded to 2 dp, zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(Hundred).Round(2)
}

// Totals holds the header amounts derived from line amounts.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals sums already-rounded line amounts and applies the tax rate.
func ComputeTotals(lineAmounts []decimal.Decimal, taxRatePercent decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, amount := range lineAmounts {
		subtotal = subtotal.Add(amount)
	}
	tax := TaxAmount(subtotal, taxRatePercent)
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}
}
