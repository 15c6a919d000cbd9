// Package ledger holds the arithmetic, numbering and error vocabulary shared by
// the stock and cash engines.
package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Round2 rounds a monetary amount to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FloorZero clamps negative amounts to zero.
func FloorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ParseAmount parses a user supplied monetary amount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, Invalid("amount", "amount required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, Invalid("amount", fmt.Sprintf("%q is not a number", raw))
	}
	return d, nil
}

// LineTotal multiplies a unit price by an integer quantity, rounded to cents.
func LineTotal(unitPrice decimal.Decimal, qty int64) decimal.Decimal {
	return Round2(unitPrice.Mul(decimal.NewFromInt(qty)))
}

// FormatAmount renders an amount with two fraction digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
