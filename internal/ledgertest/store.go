// Package ledgertest provides an in-memory transactional store implementing
// the repository ports of the inventory, cash, sales and purchases packages.
// Every WithTx works on a deep copy of the state and publishes it only when
// the callback succeeds, so rollback behaviour matches PostgreSQL.
package ledgertest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/inventory"
	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/purchases"
	"github.com/odyssey-erp/storeledger/internal/sales"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("ledgertest: injected failure")

type state struct {
	products  map[int64]inventory.Product
	movements []inventory.Movement
	customers map[int64]sales.Customer
	suppliers map[int64]purchases.Supplier
	sales     map[int64]sales.Sale
	purchases map[int64]purchases.Purchase
	cash      []cash.Transaction
	register  decimal.Decimal
	sequences map[string]int64
	nextID    int64
}

func newState() *state {
	return &state{
		products:  make(map[int64]inventory.Product),
		customers: make(map[int64]sales.Customer),
		suppliers: make(map[int64]purchases.Supplier),
		sales:     make(map[int64]sales.Sale),
		purchases: make(map[int64]purchases.Purchase),
		register:  decimal.Zero,
		sequences: map[string]int64{sales.Kind: 0, purchases.Kind: 0},
	}
}

func (s *state) clone() *state {
	c := &state{
		products:  make(map[int64]inventory.Product, len(s.products)),
		movements: append([]inventory.Movement(nil), s.movements...),
		customers: make(map[int64]sales.Customer, len(s.customers)),
		suppliers: make(map[int64]purchases.Supplier, len(s.suppliers)),
		sales:     make(map[int64]sales.Sale, len(s.sales)),
		purchases: make(map[int64]purchases.Purchase, len(s.purchases)),
		cash:      append([]cash.Transaction(nil), s.cash...),
		register:  s.register,
		sequences: make(map[string]int64, len(s.sequences)),
		nextID:    s.nextID,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.suppliers {
		c.suppliers[k] = v
	}
	for k, v := range s.sales {
		v.Items = append([]sales.Item(nil), v.Items...)
		c.sales[k] = v
	}
	for k, v := range s.purchases {
		v.Items = append([]purchases.Item(nil), v.Items...)
		c.purchases[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store is the in-memory database.
type Store struct {
	mu    sync.Mutex
	state *state

	// FailCashAppends makes every cash insert fail.
	FailCashAppends bool
	// FailRegisterLock makes every register lock fail.
	FailRegisterLock bool
	// RegisterLockErr, when set, is returned by every register lock instead
	// of ErrInjected.
	RegisterLockErr error

	bumps int
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) withTx(fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Tx{store: s, state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *Store) read(fn func(*state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// Bump counts report cache invalidations.
func (s *Store) Bump(ctx context.Context) error {
	s.mu.Lock()
	s.bumps++
	s.mu.Unlock()
	return nil
}

// Bumps returns the number of cache invalidations seen.
func (s *Store) Bumps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bumps
}

// ============================================================================
// SEEDING AND INSPECTION
// ============================================================================

// AddProduct inserts a product and returns its id.
func (s *Store) AddProduct(p inventory.Product) int64 {
	var id int64
	s.read(func(st *state) {
		id = st.id()
		p.ID = id
		st.products[id] = p
	})
	return id
}

// AddCustomer inserts a customer with zero balances.
func (s *Store) AddCustomer(name string) int64 {
	var id int64
	s.read(func(st *state) {
		id = st.id()
		st.customers[id] = sales.Customer{ID: id, Name: name, TotalPurchases: decimal.Zero, Balance: decimal.Zero}
	})
	return id
}

// AddSupplier inserts a supplier with zero balances.
func (s *Store) AddSupplier(name string) int64 {
	var id int64
	s.read(func(st *state) {
		id = st.id()
		st.suppliers[id] = purchases.Supplier{ID: id, Name: name, TotalPurchases: decimal.Zero, Balance: decimal.Zero}
	})
	return id
}

// RemoveProduct deletes a product, nulling references on lines.
func (s *Store) RemoveProduct(id int64) {
	s.read(func(st *state) {
		delete(st.products, id)
		for k, sale := range st.sales {
			for i := range sale.Items {
				if sale.Items[i].ProductID != nil && *sale.Items[i].ProductID == id {
					sale.Items[i].ProductID = nil
				}
			}
			st.sales[k] = sale
		}
		for k, p := range st.purchases {
			for i := range p.Items {
				if p.Items[i].ProductID != nil && *p.Items[i].ProductID == id {
					p.Items[i].ProductID = nil
				}
			}
			st.purchases[k] = p
		}
	})
}

// RemoveCustomer deletes a customer, nulling references on sales.
func (s *Store) RemoveCustomer(id int64) {
	s.read(func(st *state) {
		delete(st.customers, id)
		for k, sale := range st.sales {
			if sale.CustomerID != nil && *sale.CustomerID == id {
				sale.CustomerID = nil
				st.sales[k] = sale
			}
		}
	})
}

// Product returns a product snapshot.
func (s *Store) Product(id int64) inventory.Product {
	var p inventory.Product
	s.read(func(st *state) { p = st.products[id] })
	return p
}

// Customer returns a customer snapshot.
func (s *Store) Customer(id int64) sales.Customer {
	var c sales.Customer
	s.read(func(st *state) { c = st.customers[id] })
	return c
}

// Supplier returns a supplier snapshot.
func (s *Store) Supplier(id int64) purchases.Supplier {
	var c purchases.Supplier
	s.read(func(st *state) { c = st.suppliers[id] })
	return c
}

// Movements returns every movement in insertion order.
func (s *Store) Movements() []inventory.Movement {
	var out []inventory.Movement
	s.read(func(st *state) { out = append(out, st.movements...) })
	return out
}

// CashTransactions returns every cash row in insertion order.
func (s *Store) CashTransactions() []cash.Transaction {
	var out []cash.Transaction
	s.read(func(st *state) { out = append(out, st.cash...) })
	return out
}

// SaleCount returns the number of stored sales.
func (s *Store) SaleCount() int {
	var n int
	s.read(func(st *state) { n = len(st.sales) })
	return n
}

// PurchaseCount returns the number of stored purchases.
func (s *Store) PurchaseCount() int {
	var n int
	s.read(func(st *state) { n = len(st.purchases) })
	return n
}

// ============================================================================
// ADAPTERS
// ============================================================================

// Sales adapts the store to sales.RepositoryPort.
func (s *Store) Sales() sales.RepositoryPort { return salesRepo{s} }

// Purchases adapts the store to purchases.RepositoryPort.
func (s *Store) Purchases() purchases.RepositoryPort { return purchasesRepo{s} }

// Cash adapts the store to cash.RepositoryPort.
func (s *Store) Cash() cash.RepositoryPort { return cashRepo{s} }

// Inventory adapts the store to inventory.RepositoryPort.
func (s *Store) Inventory() inventory.RepositoryPort { return inventoryRepo{s} }

type salesRepo struct{ s *Store }

func (r salesRepo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

func (r salesRepo) GetSale(ctx context.Context, id int64) (sales.Sale, error) {
	var (
		sale sales.Sale
		ok   bool
	)
	r.s.read(func(st *state) { sale, ok = st.sales[id] })
	if !ok {
		return sales.Sale{}, ledger.NewNotFound("sale", id)
	}
	return sale, nil
}

func (r salesRepo) ListSales(ctx context.Context, page shared.Page) ([]sales.Sale, error) {
	var out []sales.Sale
	r.s.read(func(st *state) {
		for _, sale := range st.sales {
			out = append(out, sale)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	start, end := page.Window(len(out))
	return out[start:end], nil
}

type purchasesRepo struct{ s *Store }

func (r purchasesRepo) WithTx(ctx context.Context, fn func(context.Context, purchases.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

func (r purchasesRepo) GetPurchase(ctx context.Context, id int64) (purchases.Purchase, error) {
	var (
		p  purchases.Purchase
		ok bool
	)
	r.s.read(func(st *state) { p, ok = st.purchases[id] })
	if !ok {
		return purchases.Purchase{}, ledger.NewNotFound("purchase", id)
	}
	return p, nil
}

func (r purchasesRepo) ListPurchases(ctx context.Context, page shared.Page) ([]purchases.Purchase, error) {
	var out []purchases.Purchase
	r.s.read(func(st *state) {
		for _, p := range st.purchases {
			out = append(out, p)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	start, end := page.Window(len(out))
	return out[start:end], nil
}

type cashRepo struct{ s *Store }

func (r cashRepo) WithTx(ctx context.Context, fn func(context.Context, cash.Store) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

func (r cashRepo) LastBalance(ctx context.Context) (decimal.Decimal, error) {
	var bal decimal.Decimal
	r.s.read(func(st *state) { bal = lastBalance(st) })
	return bal, nil
}

func (r cashRepo) ListTransactions(ctx context.Context, filter cash.Filter) ([]cash.Transaction, error) {
	var out []cash.Transaction
	r.s.read(func(st *state) {
		for i := len(st.cash) - 1; i >= 0; i-- {
			if filter.Type != nil && st.cash[i].Type != *filter.Type {
				continue
			}
			out = append(out, st.cash[i])
		}
	})
	start, end := filter.Page.Window(len(out))
	return out[start:end], nil
}

func (r cashRepo) ScanChain(ctx context.Context, fn func(cash.Transaction) error) error {
	for _, txn := range r.s.CashTransactions() {
		if err := fn(txn); err != nil {
			return err
		}
	}
	return nil
}

func (r cashRepo) RegisterBalance(ctx context.Context) (decimal.Decimal, error) {
	var bal decimal.Decimal
	r.s.read(func(st *state) { bal = st.register })
	return bal, nil
}

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

func (r inventoryRepo) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	var out []inventory.Movement
	r.s.read(func(st *state) {
		for i := len(st.movements) - 1; i >= 0; i-- {
			m := st.movements[i]
			if filter.ProductID != nil && m.ProductID != *filter.ProductID {
				continue
			}
			out = append(out, m)
		}
	})
	start, end := filter.Page.Window(len(out))
	return out[start:end], nil
}

func (r inventoryRepo) InconsistentMovements(ctx context.Context) ([]int64, error) {
	var ids []int64
	for _, m := range r.s.Movements() {
		if !m.Consistent() {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (r inventoryRepo) NegativeProducts(ctx context.Context) ([]int64, error) {
	var ids []int64
	r.s.read(func(st *state) {
		for id, p := range st.products {
			if p.Quantity < 0 {
				ids = append(ids, id)
			}
		}
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func lastBalance(st *state) decimal.Decimal {
	if len(st.cash) == 0 {
		return decimal.Zero
	}
	return st.cash[len(st.cash)-1].BalanceAfter
}

// SeedCash appends a capital deposit so the register starts at balance.
func (s *Store) SeedCash(amount decimal.Decimal) {
	s.read(func(st *state) {
		before := lastBalance(st)
		after := before.Add(amount)
		st.cash = append(st.cash, cash.Transaction{
			ID:            st.id(),
			Type:          cash.TypeDeposit,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			ReferenceType: cash.ReferenceManual,
			Description:   "Capital deposit",
		})
		st.register = after
	})
}
