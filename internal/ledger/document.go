package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Operation tags the document mutation being executed.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// DateLayout is the wire format of document dates.
const DateLayout = "2006-01-02"

// DocumentDate parses an optional YYYY-MM-DD date, falling back to today.
func DocumentDate(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, Invalid("date", "must be formatted as YYYY-MM-DD")
	}
	return t, nil
}

// Reverse undoes a document's effect on a counterparty. Both figures are
// floored at zero.
func Reverse(totalPurchases, balance, total, remaining decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return FloorZero(totalPurchases.Sub(total)), FloorZero(balance.Sub(remaining))
}

// ValidateMoney rejects negative discount or paid amounts and a discount
// larger than the subtotal.
func ValidateMoney(subtotal, discount, paid decimal.Decimal) error {
	if discount.IsNegative() {
		return Invalid("discount", "must not be negative")
	}
	if paid.IsNegative() {
		return Invalid("paid", "must not be negative")
	}
	if discount.GreaterThan(subtotal) {
		return Invalid("discount", "must not exceed subtotal")
	}
	return nil
}
