package purchases

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/ledger"
)

// Document kind used for numbering, locks and references.
const Kind = "purchase"

// Movement reasons recorded against purchase stock changes.
const (
	ReasonCreated = "purchase"
	ReasonDeleted = "purchase_deleted"
	ReasonEdited  = "purchase_edited"
)

// Purchase is a committed purchase header with its lines.
type Purchase struct {
	ID            int64           `json:"id"`
	InvoiceNo     string          `json:"invoice_no"`
	SupplierID    *int64          `json:"supplier_id,omitempty"`
	SupplierName  string          `json:"supplier_name"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	Paid          decimal.Decimal `json:"paid"`
	Remaining     decimal.Decimal `json:"remaining"`
	Status        ledger.Status   `json:"status"`
	PaymentMethod *string         `json:"payment_method,omitempty"`
	Notes         string          `json:"notes"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []Item          `json:"items"`
}

// Item is a purchase line carrying product and supplier snapshots.
type Item struct {
	ID           int64           `json:"id"`
	PurchaseID   int64           `json:"purchase_id"`
	ProductID    *int64          `json:"product_id,omitempty"`
	ProductName  string          `json:"product_name"`
	SupplierID   *int64          `json:"supplier_id,omitempty"`
	SupplierName string          `json:"supplier_name"`
	Quantity     int64           `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Total        decimal.Decimal `json:"total"`
}

// Supplier is the balance-bearing part of a supplier record.
type Supplier struct {
	ID             int64
	Name           string
	TotalPurchases decimal.Decimal
	Balance        decimal.Decimal
}

// LineInput is one requested purchase line.
type LineInput struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  int64            `json:"quantity" validate:"required,gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price" validate:"required"`
}

// Input carries the fields of a create or update request.
type Input struct {
	Items         []LineInput     `json:"items" validate:"required,min=1,dive"`
	SupplierID    *int64          `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
	SupplierName  string          `json:"supplier_name" validate:"max=200"`
	PurchaseDate  string          `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	Discount      decimal.Decimal `json:"discount"`
	Paid          decimal.Decimal `json:"paid"`
	PaymentMethod string          `json:"payment_method" validate:"max=50"`
	Notes         string          `json:"notes"`

	Actor          ledger.Actor `json:"-"`
	IdempotencyKey string       `json:"-"`
}

// Result is a committed purchase plus the affordability warning, if any.
type Result struct {
	Purchase
	Warning string `json:"warning,omitempty"`
}
