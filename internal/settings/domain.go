// Package settings stores store-wide key/value preferences such as the store
// name printed on invoices and the default stock alert level.
package settings

import (
	"fmt"
	"net/http"
	"time"

	"github.com/odyssey-erp/storeledger/internal/ledger"
)

// Well known keys with typed values.
const (
	KeyStoreName     = "store_name"
	KeyStoreAddress  = "store_address"
	KeyStorePhone    = "store_phone"
	KeyMinStockAlert = "min_stock_alert"
	KeyVATRate       = "vat_rate"
)

// Setting is one stored preference.
type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Change sets one key to a value, creating the key when it is new.
type Change struct {
	Key   string `json:"key" validate:"required,max=100"`
	Value string `json:"value" validate:"max=2000"`
}

// UpdateInput is the payload of a bulk update.
type UpdateInput struct {
	Settings []Change     `json:"settings" validate:"required,min=1,max=50,dive"`
	Actor    ledger.Actor `json:"-"`
}

// KeyNotFoundError reports a key with no stored value.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string        { return fmt.Sprintf("setting %q not found", e.Key) }
func (e *KeyNotFoundError) Is(target error) bool { return target == ledger.ErrNotFound }
func (e *KeyNotFoundError) Status() int          { return http.StatusNotFound }
func (e *KeyNotFoundError) Title() string        { return "Not Found" }
