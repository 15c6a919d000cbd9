package shared

import "fmt"

// InvoiceLockKey builds redis keys guarding invoice numbering per document kind.
func InvoiceLockKey(kind string) string {
	return fmt.Sprintf("ledger:invoice:%s:lock", kind)
}
