package ledger

import (
	"math"

	"github.com/shopspring/decimal"
)

// finite reports whether v can be held by a decimal and stored as JSON.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// notional is price × quantity computed in decimal.
func notional(price, quantity float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(quantity))
}

func debit(balance float64, amount decimal.Decimal) float64 {
	f, _ := decimal.NewFromFloat(balance).Sub(amount).Float64()
	return f
}

func credit(balance float64, amount decimal.Decimal) float64 {
	f, _ := decimal.NewFromFloat(balance).Add(amount).Float64()
	return f
}
