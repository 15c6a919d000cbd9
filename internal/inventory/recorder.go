package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/storeledger/internal/ledger"
)

// StockStore is the transactional storage a Recorder writes through.
// GetProductForUpdate must lock the row until the surrounding transaction ends
// and return a ledger.NotFoundError when the product does not exist.
type StockStore interface {
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	SetProductQuantity(ctx context.Context, id, quantity int64) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
}

// Recorder appends movements and applies them to product quantity.
type Recorder struct {
	now func() time.Time
}

// NewRecorder constructs a Recorder using the wall clock.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Record applies in.Change to the product and appends the movement row.
// Any change that would leave the quantity below zero is refused.
func (r *Recorder) Record(ctx context.Context, store StockStore, in RecordInput) (Movement, error) {
	if !in.Type.Valid() {
		return Movement{}, ledger.Invalid("movement_type", fmt.Sprintf("unknown movement type %q", in.Type))
	}
	if in.Change == 0 && in.Type != MovementSet {
		return Movement{}, ledger.Invalid("quantity", "quantity change must not be zero")
	}
	product, err := store.GetProductForUpdate(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	after := product.Quantity + in.Change
	if after < 0 {
		return Movement{}, &ledger.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.Quantity,
			Requested:   -in.Change,
		}
	}
	now := time.Now
	if r != nil && r.now != nil {
		now = r.now
	}
	movement, err := store.InsertMovement(ctx, Movement{
		ProductID:      product.ID,
		Type:           in.Type,
		QuantityBefore: product.Quantity,
		QuantityChange: in.Change,
		QuantityAfter:  after,
		Reason:         in.Reason,
		ReferenceType:  in.ReferenceType,
		ReferenceID:    in.ReferenceID,
		Notes:          in.Notes,
		CreatedBy:      in.Actor,
		CreatedAt:      now().UTC(),
	})
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	if err := store.SetProductQuantity(ctx, product.ID, after); err != nil {
		return Movement{}, fmt.Errorf("inventory: update quantity: %w", err)
	}
	return movement, nil
}
