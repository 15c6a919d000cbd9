package cash

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// TransactionType enumerates register movements.
type TransactionType string

const (
	TypeDeposit         TransactionType = "deposit"
	TypeWithdrawal      TransactionType = "withdrawal"
	TypeSaleIncome      TransactionType = "sale_income"
	TypePurchaseExpense TransactionType = "purchase_expense"
	TypeSaleRefund      TransactionType = "sale_refund"
	TypePurchaseRefund  TransactionType = "purchase_refund"
)

// Reference types attached to cash rows.
const (
	ReferenceManual   = "manual"
	ReferenceSale     = "sale"
	ReferencePurchase = "purchase"
)

// Sign returns +1 for inflows and -1 for outflows.
func (t TransactionType) Sign() (int, error) {
	switch t {
	case TypeDeposit, TypeSaleIncome, TypePurchaseRefund:
		return 1, nil
	case TypeWithdrawal, TypePurchaseExpense, TypeSaleRefund:
		return -1, nil
	}
	return 0, &ledger.UnknownTransactionTypeError{Type: string(t)}
}

// ParseTransactionType validates a raw type name.
func ParseTransactionType(raw string) (TransactionType, error) {
	t := TransactionType(raw)
	if _, err := t.Sign(); err != nil {
		return "", err
	}
	return t, nil
}

// Transaction is an immutable register row.
type Transaction struct {
	ID            int64           `json:"id"`
	Type          TransactionType `json:"transaction_type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   *int64          `json:"reference_id,omitempty"`
	Description   string          `json:"description"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PostInput describes a register posting.
type PostInput struct {
	Type          TransactionType
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   *int64
	Description   string
	Actor         string
}

// Affordability is the outcome of an outflow check.
type Affordability struct {
	Allowed  bool            `json:"allowed"`
	Balance  decimal.Decimal `json:"balance"`
	Required decimal.Decimal `json:"required"`
	Shortage decimal.Decimal `json:"shortage"`
	Warning  string          `json:"warning,omitempty"`
}

// MovementInput is the payload of a manual deposit or withdrawal.
type MovementInput struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
	Actor       ledger.Actor    `json:"-"`
}

// Filter narrows transaction listings.
type Filter struct {
	Type *TransactionType
	Page shared.Page
}

// ChainReport lists rows that break the running balance.
type ChainReport struct {
	Checked          int             `json:"checked"`
	Broken           []int64         `json:"broken"`
	LastBalance      decimal.Decimal `json:"last_balance"`
	RegisterBalance  decimal.Decimal `json:"register_balance"`
	RegisterMismatch bool            `json:"register_mismatch"`
}

// Violations counts broken rows plus a register mismatch.
func (r ChainReport) Violations() int {
	n := len(r.Broken)
	if r.RegisterMismatch {
		n++
	}
	return n
}
