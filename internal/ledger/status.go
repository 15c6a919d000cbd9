package ledger

import "github.com/shopspring/decimal"

// Status is the payment state of a sale or purchase.
type Status string

const (
	StatusPaid    Status = "paid"
	StatusPartial Status = "partial"
	StatusUnpaid  Status = "unpaid"
)

// DeriveStatus maps outstanding and paid amounts to a payment status.
func DeriveStatus(remaining, paid decimal.Decimal) Status {
	if !remaining.IsPositive() {
		return StatusPaid
	}
	if paid.IsPositive() {
		return StatusPartial
	}
	return StatusUnpaid
}

// Totals is the computed money summary of a document.
type Totals struct {
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
	Paid      decimal.Decimal
	Remaining decimal.Decimal
	Status    Status
}

// ComputeTotals derives total, remaining and status from a subtotal.
// Inputs are rounded to cents first. Remaining never goes below zero;
// overpayment is not tracked as credit.
func ComputeTotals(subtotal, discount, paid decimal.Decimal) Totals {
	subtotal, discount, paid = Round2(subtotal), Round2(discount), Round2(paid)
	total := subtotal.Sub(discount)
	remaining := FloorZero(total.Sub(paid))
	return Totals{
		Subtotal:  subtotal,
		Discount:  discount,
		Total:     total,
		Paid:      paid,
		Remaining: remaining,
		Status:    DeriveStatus(remaining, paid),
	}
}
