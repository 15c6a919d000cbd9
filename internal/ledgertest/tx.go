package ledgertest

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/inventory"
	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/purchases"
	"github.com/odyssey-erp/storeledger/internal/sales"
)

// Tx is a unit of work over a private copy of the store state. It satisfies
// sales.TxRepository, purchases.TxRepository and inventory.TxRepository.
type Tx struct {
	store *Store
	state *state
}

// ============================================================================
// STOCK
// ============================================================================

func (tx *Tx) GetProductForUpdate(ctx context.Context, id int64) (inventory.Product, error) {
	p, ok := tx.state.products[id]
	if !ok {
		return inventory.Product{}, ledger.NewNotFound("product", id)
	}
	return p, nil
}

func (tx *Tx) SetProductQuantity(ctx context.Context, id, quantity int64) error {
	p, ok := tx.state.products[id]
	if !ok {
		return ledger.NewNotFound("product", id)
	}
	p.Quantity = quantity
	tx.state.products[id] = p
	return nil
}

func (tx *Tx) InsertMovement(ctx context.Context, m inventory.Movement) (inventory.Movement, error) {
	m.ID = tx.state.id()
	tx.state.movements = append(tx.state.movements, m)
	return m, nil
}

// ============================================================================
// CASH
// ============================================================================

func (tx *Tx) LastBalance(ctx context.Context) (decimal.Decimal, error) {
	return lastBalance(tx.state), nil
}

func (tx *Tx) LockRegister(ctx context.Context) error {
	if tx.store.RegisterLockErr != nil {
		return tx.store.RegisterLockErr
	}
	if tx.store.FailRegisterLock {
		return ErrInjected
	}
	return nil
}

func (tx *Tx) InsertTransaction(ctx context.Context, txn cash.Transaction) (cash.Transaction, error) {
	if tx.store.FailCashAppends {
		return cash.Transaction{}, ErrInjected
	}
	txn.ID = tx.state.id()
	tx.state.cash = append(tx.state.cash, txn)
	tx.state.register = txn.BalanceAfter
	return txn, nil
}

// Savepoint runs fn on a nested copy and folds it back only on success.
func (tx *Tx) Savepoint(ctx context.Context, fn func(context.Context, cash.Store) error) error {
	nested := &Tx{store: tx.store, state: tx.state.clone()}
	if err := fn(ctx, nested); err != nil {
		return err
	}
	tx.state = nested.state
	return nil
}

// ============================================================================
// DOCUMENTS
// ============================================================================

func (tx *Tx) ClaimInvoiceSequence(ctx context.Context, kind string) (int64, error) {
	issued, ok := tx.state.sequences[kind]
	if !ok {
		return 0, fmt.Errorf("ledgertest: unknown sequence %q", kind)
	}
	tx.state.sequences[kind] = issued + 1
	return issued, nil
}

func (tx *Tx) GetCustomerForUpdate(ctx context.Context, id int64) (sales.Customer, error) {
	c, ok := tx.state.customers[id]
	if !ok {
		return sales.Customer{}, ledger.NewNotFound("customer", id)
	}
	return c, nil
}

func (tx *Tx) UpdateCustomerTotals(ctx context.Context, id int64, totalPurchases, balance decimal.Decimal) error {
	c := tx.state.customers[id]
	c.TotalPurchases, c.Balance = totalPurchases, balance
	tx.state.customers[id] = c
	return nil
}

func (tx *Tx) InsertSale(ctx context.Context, sale sales.Sale) (int64, error) {
	sale.ID = tx.state.id()
	sale.Items = nil
	tx.state.sales[sale.ID] = sale
	return sale.ID, nil
}

func (tx *Tx) InsertSaleItems(ctx context.Context, saleID int64, items []sales.Item) ([]sales.Item, error) {
	sale, ok := tx.state.sales[saleID]
	if !ok {
		return nil, ledger.NewNotFound("sale", saleID)
	}
	out := make([]sales.Item, len(items))
	for i, item := range items {
		item.ID = tx.state.id()
		item.SaleID = saleID
		out[i] = item
	}
	sale.Items = append(append([]sales.Item(nil), sale.Items...), out...)
	tx.state.sales[saleID] = sale
	return out, nil
}

func (tx *Tx) GetSaleForUpdate(ctx context.Context, id int64) (sales.Sale, error) {
	sale, ok := tx.state.sales[id]
	if !ok {
		return sales.Sale{}, ledger.NewNotFound("sale", id)
	}
	sale.Items = append([]sales.Item(nil), sale.Items...)
	return sale, nil
}

func (tx *Tx) UpdateSale(ctx context.Context, sale sales.Sale) error {
	stored, ok := tx.state.sales[sale.ID]
	if !ok {
		return ledger.NewNotFound("sale", sale.ID)
	}
	sale.Items = stored.Items
	tx.state.sales[sale.ID] = sale
	return nil
}

func (tx *Tx) DeleteSaleItems(ctx context.Context, saleID int64) error {
	sale := tx.state.sales[saleID]
	sale.Items = nil
	tx.state.sales[saleID] = sale
	return nil
}

func (tx *Tx) DeleteSale(ctx context.Context, id int64) error {
	if _, ok := tx.state.sales[id]; !ok {
		return ledger.NewNotFound("sale", id)
	}
	delete(tx.state.sales, id)
	return nil
}

func (tx *Tx) GetSupplier(ctx context.Context, id int64) (purchases.Supplier, error) {
	return tx.GetSupplierForUpdate(ctx, id)
}

func (tx *Tx) GetSupplierForUpdate(ctx context.Context, id int64) (purchases.Supplier, error) {
	s, ok := tx.state.suppliers[id]
	if !ok {
		return purchases.Supplier{}, ledger.NewNotFound("supplier", id)
	}
	return s, nil
}

func (tx *Tx) UpdateSupplierTotals(ctx context.Context, id int64, totalPurchases, balance decimal.Decimal) error {
	s := tx.state.suppliers[id]
	s.TotalPurchases, s.Balance = totalPurchases, balance
	tx.state.suppliers[id] = s
	return nil
}

func (tx *Tx) InsertPurchase(ctx context.Context, p purchases.Purchase) (int64, error) {
	p.ID = tx.state.id()
	p.Items = nil
	tx.state.purchases[p.ID] = p
	return p.ID, nil
}

func (tx *Tx) InsertPurchaseItems(ctx context.Context, purchaseID int64, items []purchases.Item) ([]purchases.Item, error) {
	p, ok := tx.state.purchases[purchaseID]
	if !ok {
		return nil, ledger.NewNotFound("purchase", purchaseID)
	}
	out := make([]purchases.Item, len(items))
	for i, item := range items {
		item.ID = tx.state.id()
		item.PurchaseID = purchaseID
		out[i] = item
	}
	p.Items = append(append([]purchases.Item(nil), p.Items...), out...)
	tx.state.purchases[purchaseID] = p
	return out, nil
}

func (tx *Tx) GetPurchaseForUpdate(ctx context.Context, id int64) (purchases.Purchase, error) {
	p, ok := tx.state.purchases[id]
	if !ok {
		return purchases.Purchase{}, ledger.NewNotFound("purchase", id)
	}
	p.Items = append([]purchases.Item(nil), p.Items...)
	return p, nil
}

func (tx *Tx) UpdatePurchase(ctx context.Context, p purchases.Purchase) error {
	stored, ok := tx.state.purchases[p.ID]
	if !ok {
		return ledger.NewNotFound("purchase", p.ID)
	}
	p.Items = stored.Items
	tx.state.purchases[p.ID] = p
	return nil
}

func (tx *Tx) DeletePurchaseItems(ctx context.Context, purchaseID int64) error {
	p := tx.state.purchases[purchaseID]
	p.Items = nil
	tx.state.purchases[purchaseID] = p
	return nil
}

func (tx *Tx) DeletePurchase(ctx context.Context, id int64) error {
	if _, ok := tx.state.purchases[id]; !ok {
		return ledger.NewNotFound("purchase", id)
	}
	delete(tx.state.purchases, id)
	return nil
}

var (
	_ sales.TxRepository     = (*Tx)(nil)
	_ purchases.TxRepository = (*Tx)(nil)
	_ inventory.TxRepository = (*Tx)(nil)
	_ cash.Store             = (*Tx)(nil)
)
