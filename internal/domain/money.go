package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DollarsToCents converts a float64 amount to int64 cents. Amounts carry
// at most 2 decimal places; anything finer is rejected rather than
// silently rounded. Going through decimal sidesteps float representation
// artifacts (1.10 arrives as 1.1, not 1.0999...).
func DollarsToCents(f float64) (int64, error) {
	cents := decimal.NewFromFloat(f).Shift(2)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("monetary values must have at most 2 decimal places")
	}
	return cents.IntPart(), nil
}

// CentsToDollars converts an int64 cents value to a float64 amount.
func CentsToDollars(c int64) float64 {
	return decimal.New(c, -2).InexactFloat64()
}
