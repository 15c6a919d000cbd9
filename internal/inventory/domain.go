package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// MovementType enumerates the causes of a stock change.
type MovementType string

const (
	MovementSale             MovementType = "sale"
	MovementSaleReversal     MovementType = "sale_reversal"
	MovementPurchase         MovementType = "purchase"
	MovementPurchaseReversal MovementType = "purchase_reversal"
	MovementAdd              MovementType = "add"
	MovementSubtract         MovementType = "subtract"
	MovementSet              MovementType = "set"
)

// ReferenceAdjustment tags movements produced by manual adjustments.
const ReferenceAdjustment = "adjustment"

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementSale, MovementSaleReversal, MovementPurchase, MovementPurchaseReversal,
		MovementAdd, MovementSubtract, MovementSet:
		return true
	}
	return false
}

// Product is the stock-bearing part of a catalogue entry.
type Product struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Quantity      int64           `json:"quantity"`
	MinQuantity   int64           `json:"min_quantity"`
	SupplierID    *int64          `json:"supplier_id,omitempty"`
}

// Movement is an immutable stock change record.
type Movement struct {
	ID             int64        `json:"id"`
	ProductID      int64        `json:"product_id"`
	Type           MovementType `json:"movement_type"`
	QuantityBefore int64        `json:"quantity_before"`
	QuantityChange int64        `json:"quantity_change"`
	QuantityAfter  int64        `json:"quantity_after"`
	Reason         string       `json:"reason"`
	ReferenceType  string       `json:"reference_type"`
	ReferenceID    *int64       `json:"reference_id,omitempty"`
	Notes          string       `json:"notes"`
	CreatedBy      string       `json:"created_by"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Consistent reports whether before + change = after.
func (m Movement) Consistent() bool {
	return m.QuantityBefore+m.QuantityChange == m.QuantityAfter
}

// RecordInput describes one stock change.
type RecordInput struct {
	ProductID     int64
	Type          MovementType
	Change        int64
	Reason        string
	ReferenceType string
	ReferenceID   *int64
	Notes         string
	Actor         string
}

// AdjustmentInput captures a manual stock adjustment.
type AdjustmentInput struct {
	ProductID int64        `json:"product_id" validate:"required,gt=0"`
	Kind      MovementType `json:"type" validate:"required,oneof=add subtract set"`
	Quantity  int64        `json:"quantity" validate:"gte=0"`
	Reason    string       `json:"reason" validate:"max=100"`
	Notes     string       `json:"notes"`
	Actor     ledger.Actor `json:"-"`
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID *int64
	Page      shared.Page
}

// IntegrityReport lists rows breaking stock invariants.
type IntegrityReport struct {
	InconsistentMovements []int64 `json:"inconsistent_movements"`
	NegativeProducts      []int64 `json:"negative_products"`
}

// Violations counts every offending row.
func (r IntegrityReport) Violations() int {
	return len(r.InconsistentMovements) + len(r.NegativeProducts)
}
