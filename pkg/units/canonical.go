// Package units provides canonical billing units and money helpers.
package units

import "github.com/shopspring/decimal"

// HoursPerMonth is the standard billing assumption (24 * 365 / 12).
const HoursPerMonth = 730

// MonthsPerYear is used to annualize monthly figures.
const MonthsPerYear = 12

// UnitHour is the retail catalog's unit of measure for hourly meters.
const UnitHour = "1 Hour"

// DefaultCurrency is the currency all lookups are made in.
const DefaultCurrency = "USD"

// FallbackUnitPrice is the hourly price used when no catalog record matches.
var FallbackUnitPrice = decimal.RequireFromString("0.10")

// USD formats an amount with two decimals.
func USD(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// UnitPrice formats a per-unit price with four decimals.
func UnitPrice(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}

// AnnualFromMonthly multiplies a monthly amount by twelve.
func AnnualFromMonthly(monthly float64) float64 {
	return decimal.NewFromFloat(monthly).Mul(decimal.NewFromInt(MonthsPerYear)).InexactFloat64()
}

// Sum adds amounts exactly.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.InexactFloat64()
}
