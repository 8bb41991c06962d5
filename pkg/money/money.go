// Package money converts decimal prices to the integer minor units the
// payment gateway expects.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ToCents rounds amount to the nearest cent, half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromCents converts minor units back to a two-place decimal.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// LineTotalCents is unit price times quantity in cents. The unit price is
// rounded first so totals agree with what the gateway charged per unit.
func LineTotalCents(unitPrice decimal.Decimal, quantity int) int64 {
	return ToCents(unitPrice) * int64(quantity)
}

// FormatCents renders cents as a dollar string for notifications.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
