package ledger

import "fmt"

// DefaultNumberWidth is the zero padding applied to generated numbers.
const DefaultNumberWidth = 3

// Document and entity prefixes.
const (
	PrefixSaleInvoice     = "INV"
	PrefixPurchaseInvoice = "PUR"
	PrefixProduct         = "PROD"
	PrefixCustomer        = "CUST"
	PrefixSupplier        = "SUPP"
	PrefixCategory        = "CAT"
)

// NextInvoiceNumber returns the invoice number following existingCount issued
// invoices of one document kind. Numbers are never reused or renumbered.
func NextInvoiceNumber(prefix string, existingCount int64, width int) string {
	return padded(prefix, existingCount+1, width)
}

// NextEntityCode derives a master data code from the highest existing id.
func NextEntityCode(prefix string, maxExistingID int64, width int) string {
	return padded(prefix, maxExistingID+1, width)
}

func padded(prefix string, n int64, width int) string {
	if width <= 0 {
		width = DefaultNumberWidth
	}
	if n < 1 {
		n = 1
	}
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}
