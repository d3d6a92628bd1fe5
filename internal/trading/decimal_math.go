package trading

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	decOne      = decimal.NewFromInt(1)
	decHundred  = decimal.NewFromInt(100)
	decimalEps  = decimal.NewFromFloat(1e-8)
	decimalZero = decimal.Zero
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimalZero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// pctOf returns (cur-base)/base*100, or zero when base is not positive.
func pctOf(cur, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimalZero
	}
	return cur.Sub(base).Div(base).Mul(decHundred)
}

// trailingStopFor is the price at which a position anchored at highest is
// stopped out after giving back pct percent.
func trailingStopFor(highest decimal.Decimal, pct float64) decimal.Decimal {
	if !highest.IsPositive() || pct <= 0 {
		return decimalZero
	}
	factor := decOne.Sub(decFromFloat(pct).Div(decHundred))
	return highest.Mul(factor)
}

// remainingAfter applies a sell of pct percent of the current balance to a
// position holding remaining percent of its original size.
func remainingAfter(remaining, pct float64) float64 {
	if remaining <= 0 {
		remaining = 100
	}
	left := decFromFloat(remaining).Mul(decOne.Sub(decFromFloat(pct).Div(decHundred)))
	if left.Cmp(decimalEps) <= 0 {
		return 0
	}
	return decToFloat(left.Round(6))
}

// realizedPnL returns the absolute result and its percentage of allocation.
func realizedPnL(proceeds, allocation float64) (float64, float64) {
	alloc := decFromFloat(allocation)
	pnl := decFromFloat(proceeds).Sub(alloc)
	if !alloc.IsPositive() {
		return decToFloat(pnl), 0
	}
	return decToFloat(pnl), decToFloat(pnl.Div(alloc).Mul(decHundred).Round(4))
}
