package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/ledger"
)

// ============================================================================
// SALE
// ============================================================================

// Document kind used for numbering, locks and references.
const Kind = "sale"

// Movement reasons recorded against sale stock changes.
const (
	ReasonCreated = "sale"
	ReasonDeleted = "sale_deleted"
	ReasonEdited  = "sale_edited"
)

// Sale is a committed sale header with its lines.
type Sale struct {
	ID            int64           `json:"id"`
	InvoiceNo     string          `json:"invoice_no"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	CustomerName  string          `json:"customer_name"`
	SaleDate      time.Time       `json:"sale_date"`
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

// Item is a sale line. ProductID becomes nil once the product is deleted;
// ProductName keeps the snapshot.
type Item struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id"`
	ProductID   *int64          `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// Customer is the balance-bearing part of a customer record.
type Customer struct {
	ID             int64
	Name           string
	TotalPurchases decimal.Decimal
	Balance        decimal.Decimal
}

// ============================================================================
// INPUT
// ============================================================================

// LineInput is one requested sale line. UnitPrice defaults to the product's
// sale price when omitted.
type LineInput struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  int64            `json:"quantity" validate:"required,gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// Input carries the fields of a create or update request.
type Input struct {
	Items         []LineInput     `json:"items" validate:"required,min=1,dive"`
	CustomerID    *int64          `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	CustomerName  string          `json:"customer_name" validate:"max=200"`
	SaleDate      string          `json:"sale_date" validate:"omitempty,datetime=2006-01-02"`
	Discount      decimal.Decimal `json:"discount"`
	Paid          decimal.Decimal `json:"paid"`
	PaymentMethod string          `json:"payment_method" validate:"max=50"`
	Notes         string          `json:"notes"`

	Actor          ledger.Actor `json:"-"`
	IdempotencyKey string       `json:"-"`
}
