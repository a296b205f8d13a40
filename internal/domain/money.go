package domain

import "github.com/shopspring/decimal"

// AmountScale is the number of fractional digits balances are stored with.
const AmountScale = 2

// ValidAmount reports whether a is a positive amount representable at AmountScale.
func ValidAmount(a decimal.Decimal) bool {
	if !a.IsPositive() {
		return false
	}
	return a.Equal(a.Truncate(AmountScale))
}
