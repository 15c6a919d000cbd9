package ledger

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates an id that does not resolve.
	ErrNotFound = errors.New("ledger: not found")
	// ErrInsufficientStock indicates a movement that would drive stock below zero.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrInsufficientCash indicates a cash outflow the register cannot cover.
	ErrInsufficientCash = errors.New("ledger: insufficient cash")
	// ErrInvalidAmount indicates a non positive amount.
	ErrInvalidAmount = errors.New("ledger: amount must be greater than zero")
	// ErrUnknownTransactionType indicates an unsupported cash transaction type.
	ErrUnknownTransactionType = errors.New("ledger: unknown transaction type")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("ledger: validation failed")
)

// NotFoundError reports the entity whose id did not resolve.
type NotFoundError struct {
	Entity string
	ID     int64
}

// NewNotFound builds a NotFoundError.
func NewNotFound(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
func (e *NotFoundError) Status() int          { return http.StatusNotFound }
func (e *NotFoundError) Title() string        { return "Not Found" }

// InsufficientStockError carries the available and requested quantities.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int64
	Requested   int64
	Reason      string
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	msg := fmt.Sprintf("insufficient stock for %s: available %d, requested %d", name, e.Available, e.Requested)
	if e.Reason != "" {
		msg = e.Reason + ": " + msg
	}
	return msg
}

// Shortage is the missing quantity.
func (e *InsufficientStockError) Shortage() int64 { return e.Requested - e.Available }

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }
func (e *InsufficientStockError) Status() int          { return http.StatusConflict }
func (e *InsufficientStockError) Title() string        { return "Insufficient Stock" }

// InsufficientCashError carries the register shortage.
type InsufficientCashError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

// Shortage is the uncovered part of the required amount.
func (e *InsufficientCashError) Shortage() decimal.Decimal {
	return FloorZero(e.Required.Sub(e.Available))
}

func (e *InsufficientCashError) Error() string {
	return ShortageMessage(e.Available, e.Required)
}

func (e *InsufficientCashError) Is(target error) bool { return target == ErrInsufficientCash }
func (e *InsufficientCashError) Status() int          { return http.StatusConflict }
func (e *InsufficientCashError) Title() string        { return "Insufficient Cash" }

// ShortageMessage formats the register shortage shown to callers.
func ShortageMessage(available, required decimal.Decimal) string {
	return fmt.Sprintf("insufficient cash: available %s, required %s, shortage %s",
		FormatAmount(available), FormatAmount(required), FormatAmount(FloorZero(required.Sub(available))))
}

// InvalidAmountError rejects a non positive amount.
type InvalidAmountError struct {
	Amount decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("amount must be greater than zero, got %s", e.Amount.String())
}

func (e *InvalidAmountError) Is(target error) bool { return target == ErrInvalidAmount }
func (e *InvalidAmountError) Status() int          { return http.StatusBadRequest }
func (e *InvalidAmountError) Title() string        { return "Invalid Amount" }

// UnknownTransactionTypeError rejects an unsupported cash type.
type UnknownTransactionTypeError struct {
	Type string
}

func (e *UnknownTransactionTypeError) Error() string {
	return fmt.Sprintf("unknown transaction type %q", e.Type)
}

func (e *UnknownTransactionTypeError) Is(target error) bool { return target == ErrUnknownTransactionType }
func (e *UnknownTransactionTypeError) Status() int          { return http.StatusBadRequest }
func (e *UnknownTransactionTypeError) Title() string        { return "Unknown Transaction Type" }

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

// Invalid builds a ValidationError.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
func (e *ValidationError) Status() int          { return http.StatusBadRequest }
func (e *ValidationError) Title() string        { return "Validation Failed" }
