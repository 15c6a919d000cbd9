package sales_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/inventory"
	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/ledgertest"
	"github.com/odyssey-erp/storeledger/internal/platform/db"
	"github.com/odyssey-erp/storeledger/internal/sales"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

type failureCounter struct {
	mu    sync.Mutex
	count map[string]int
}

func (f *failureCounter) CashPostFailed(referenceType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count == nil {
		f.count = make(map[string]int)
	}
	f.count[referenceType]++
}

type metricsStub struct {
	ops []ledger.Operation
}

func (m *metricsStub) DocumentCommitted(kind string, op ledger.Operation) {
	m.ops = append(m.ops, op)
}

type auditStub struct {
	logs []shared.AuditLog
}

func (a *auditStub) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type idempotencyStub struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (s *idempotencyStub) CheckAndInsert(ctx context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]bool)
	}
	if s.keys[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[module+":"+key] = true
	return nil
}

func (s *idempotencyStub) Delete(ctx context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, module+":"+key)
	return nil
}

type fixture struct {
	store    *ledgertest.Store
	svc      *sales.Service
	failures *failureCounter
	metrics  *metricsStub
	audit    *auditStub
	keys     *idempotencyStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    ledgertest.New(),
		failures: &failureCounter{},
		metrics:  &metricsStub{},
		audit:    &auditStub{},
		keys:     &idempotencyStub{},
	}
	register := cash.NewRegister(cash.RegisterConfig{Failures: f.failures})
	f.svc = sales.NewService(sales.Dependencies{
		Repo:        f.store.Sales(),
		Register:    register,
		Audit:       f.audit,
		Idempotency: f.keys,
		Cache:       f.store,
		Metrics:     f.metrics,
	}, sales.Config{Clock: func() time.Time { return fixedNow }})
	return f
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func line(productID, qty int64) sales.LineInput {
	return sales.LineInput{ProductID: productID, Quantity: qty}
}

func requireInvariants(t *testing.T, store *ledgertest.Store) {
	t.Helper()
	negative, err := store.Inventory().NegativeProducts(context.Background())
	require.NoError(t, err)
	require.Empty(t, negative)
	for _, m := range store.Movements() {
		require.True(t, m.Consistent(), "movement %d", m.ID)
	}
}

func TestCreateDrawsStock(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("50"), Quantity: 10})

	sale, err := f.svc.Create(context.Background(), sales.Input{
		Items: []sales.LineInput{line(p, 3)},
		Actor: ledger.Actor{Username: "kasir", Role: "cashier"},
	})
	require.NoError(t, err)
	require.Equal(t, "INV001", sale.InvoiceNo)
	require.True(t, sale.Total.Equal(amount("150")))
	require.Equal(t, ledger.StatusUnpaid, sale.Status)
	require.Equal(t, sales.DefaultWalkInCustomer, sale.CustomerName)
	require.Nil(t, sale.PaymentMethod)
	require.True(t, sale.SaleDate.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)))
	require.Len(t, sale.Items, 1)
	require.True(t, sale.Items[0].UnitPrice.Equal(amount("50")))

	require.Equal(t, int64(7), f.store.Product(p).Quantity)
	movements := f.store.Movements()
	require.Len(t, movements, 1)
	m := movements[0]
	require.Equal(t, inventory.MovementSale, m.Type)
	require.Equal(t, int64(10), m.QuantityBefore)
	require.Equal(t, int64(-3), m.QuantityChange)
	require.Equal(t, int64(7), m.QuantityAfter)
	require.Equal(t, sales.Kind, m.ReferenceType)
	require.Equal(t, sale.ID, *m.ReferenceID)
	require.Equal(t, "kasir", m.CreatedBy)

	require.Empty(t, f.store.CashTransactions())
	require.Equal(t, []ledger.Operation{ledger.OpCreate}, f.metrics.ops)
	require.Len(t, f.audit.logs, 1)
	require.Equal(t, "sale:create", f.audit.logs[0].Action)
	require.Equal(t, 1, f.store.Bumps())
	requireInvariants(t, f.store)
}

func TestCreateInsufficientStockLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("50"), Quantity: 7})

	_, err := f.svc.Create(context.Background(), sales.Input{Items: []sales.LineInput{line(p, 10)}})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	var stockErr *ledger.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, int64(7), stockErr.Available)
	require.Equal(t, int64(10), stockErr.Requested)
	require.Equal(t, "Widget", stockErr.ProductName)

	require.Equal(t, int64(7), f.store.Product(p).Quantity)
	require.Empty(t, f.store.Movements())
	require.Zero(t, f.store.SaleCount())
	require.Empty(t, f.metrics.ops)

	sale, err := f.svc.Create(context.Background(), sales.Input{Items: []sales.LineInput{line(p, 7)}})
	require.NoError(t, err)
	require.Equal(t, "INV001", sale.InvoiceNo)
}

func TestCreateAggregatesRepeatedProducts(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("5"), Quantity: 10})

	_, err := f.svc.Create(context.Background(), sales.Input{Items: []sales.LineInput{line(p, 6), line(p, 6)}})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.Equal(t, int64(10), f.store.Product(p).Quantity)
	require.Empty(t, f.store.Movements())
}

func TestCreatePartialPayment(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("50"), Quantity: 10})
	c := f.store.AddCustomer("Budi")
	f.store.SeedCash(amount("100"))

	sale, err := f.svc.Create(context.Background(), sales.Input{
		Items:         []sales.LineInput{line(p, 2)},
		CustomerID:    &c,
		Discount:      amount("20"),
		Paid:          amount("30"),
		PaymentMethod: "cash",
		Actor:         ledger.Actor{Username: "kasir"},
	})
	require.NoError(t, err)
	require.True(t, sale.Subtotal.Equal(amount("100")))
	require.True(t, sale.Total.Equal(amount("80")))
	require.True(t, sale.Remaining.Equal(amount("50")))
	require.Equal(t, ledger.StatusPartial, sale.Status)
	require.Equal(t, "Budi", sale.CustomerName)
	require.NotNil(t, sale.PaymentMethod)
	require.Equal(t, "cash", *sale.PaymentMethod)

	customer := f.store.Customer(c)
	require.True(t, customer.TotalPurchases.Equal(amount("80")))
	require.True(t, customer.Balance.Equal(amount("50")))

	rows := f.store.CashTransactions()
	require.Len(t, rows, 2)
	income := rows[1]
	require.Equal(t, cash.TypeSaleIncome, income.Type)
	require.True(t, income.Amount.Equal(amount("30")))
	require.True(t, income.BalanceBefore.Equal(amount("100")))
	require.True(t, income.BalanceAfter.Equal(amount("130")))
	require.Equal(t, cash.ReferenceSale, income.ReferenceType)
	require.Equal(t, sale.ID, *income.ReferenceID)
	require.Equal(t, "Sale - invoice INV001", income.Description)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("10"), Quantity: 10})
	ctx := context.Background()
	missing := int64(999)
	negative := amount("-1")

	cases := map[string]sales.Input{
		"no items":          {},
		"zero quantity":     {Items: []sales.LineInput{line(p, 0)}},
		"bad date":          {Items: []sales.LineInput{line(p, 1)}, SaleDate: "15/03/2024"},
		"negative price":    {Items: []sales.LineInput{{ProductID: p, Quantity: 1, UnitPrice: &negative}}},
		"discount too high": {Items: []sales.LineInput{line(p, 1)}, Discount: amount("11")},
		"negative paid":     {Items: []sales.LineInput{line(p, 1)}, Paid: amount("-5")},
		"bad key":           {Items: []sales.LineInput{line(p, 1)}, IdempotencyKey: "not-a-uuid"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, input)
			require.ErrorIs(t, err, ledger.ErrValidation)
		})
	}

	_, err := f.svc.Create(ctx, sales.Input{Items: []sales.LineInput{line(p, 1)}, CustomerID: &missing})
	require.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = f.svc.Create(ctx, sales.Input{Items: []sales.LineInput{line(missing, 1)}})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	require.Equal(t, int64(10), f.store.Product(p).Quantity)
	require.Zero(t, f.store.SaleCount())
}

func TestCreateExplicitPriceAndDate(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("50"), Quantity: 10})
	free := decimal.Zero
	custom := amount("12.345")

	sale, err := f.svc.Create(context.Background(), sales.Input{
		Items:        []sales.LineInput{{ProductID: p, Quantity: 2, UnitPrice: &custom}, {ProductID: p, Quantity: 1, UnitPrice: &free}},
		CustomerName: "  Siti  ",
		SaleDate:     "2024-01-02",
	})
	require.NoError(t, err)
	require.Equal(t, "Siti", sale.CustomerName)
	require.True(t, sale.SaleDate.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.True(t, sale.Items[0].Total.Equal(amount("24.69")))
	require.True(t, sale.Items[1].Total.IsZero())
	require.True(t, sale.Total.Equal(amount("24.69")))
}

func TestDeleteRestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("50"), Quantity: 10})
	q := f.store.AddProduct(inventory.Product{Name: "Gadget", SalePrice: amount("7.5"), Quantity: 4})
	c := f.store.AddCustomer("Budi")
	baseline := f.store.Customer(c)

	sale, err := f.svc.Create(ctx, sales.Input{
		Items:      []sales.LineInput{line(p, 3), line(q, 4)},
		CustomerID: &c,
		Paid:       amount("20"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), f.store.Product(q).Quantity)

	require.NoError(t, f.svc.Delete(ctx, sale.ID, ledger.Actor{Username: "admin", Role: "admin"}))
	require.Equal(t, int64(10), f.store.Product(p).Quantity)
	require.Equal(t, int64(4), f.store.Product(q).Quantity)
	customer := f.store.Customer(c)
	require.True(t, customer.Balance.Equal(baseline.Balance))
	require.True(t, customer.TotalPurchases.Equal(baseline.TotalPurchases))

	require.Len(t, f.store.Movements(), 4)
	for _, m := range f.store.Movements()[2:] {
		require.Equal(t, inventory.MovementSaleReversal, m.Type)
		require.Equal(t, sales.ReasonDeleted, m.Reason)
	}
	require.Len(t, f.store.CashTransactions(), 1, "cash rows are never rolled back by delete")

	_, err = f.svc.Get(ctx, sale.ID)
	require.ErrorIs(t, err, ledger.ErrNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, sale.ID, ledger.Actor{}), ledger.ErrNotFound)
	require.Equal(t, []ledger.Operation{ledger.OpCreate, ledger.OpDelete}, f.metrics.ops)
	requireInvariants(t, f.store)

	next, err := f.svc.Create(ctx, sales.Input{Items: []sales.LineInput{line(p, 1)}})
	require.NoError(t, err)
	require.Equal(t, "INV002", next.InvoiceNo)
}

func TestDeleteSkipsRemovedReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("50"), Quantity: 10})
	q := f.store.AddProduct(inventory.Product{Name: "Gadget", SalePrice: amount("5"), Quantity: 10})
	c := f.store.AddCustomer("Budi")

	sale, err := f.svc.Create(ctx, sales.Input{Items: []sales.LineInput{line(p, 2), line(q, 2)}, CustomerID: &c})
	require.NoError(t, err)
	f.store.RemoveProduct(p)
	f.store.RemoveCustomer(c)

	require.NoError(t, f.svc.Delete(ctx, sale.ID, ledger.Actor{}))
	require.Equal(t, int64(10), f.store.Product(q).Quantity)
	require.Len(t, f.store.Movements(), 3)
}

func TestDeleteFloorsCustomerBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("50"), Quantity: 10})
	c := f.store.AddCustomer("Budi")

	sale, err := f.svc.Create(ctx, sales.Input{Items: []sales.LineInput{line(p, 2)}, CustomerID: &c})
	require.NoError(t, err)
	require.NoError(t, f.store.Sales().WithTx(ctx, func(ctx context.Context, tx sales.TxRepository) error {
		return tx.UpdateCustomerTotals(ctx, c, amount("30"), amount("40"))
	}))

	require.NoError(t, f.svc.Delete(ctx, sale.ID, ledger.Actor{}))
	customer := f.store.Customer(c)
	require.True(t, customer.TotalPurchases.IsZero())
	require.True(t, customer.Balance.IsZero())
}

func TestUpdateEqualsFreshCreate(t *testing.T) {
	ctx := context.Background()
	seed := func(f *fixture) (int64, int64, int64) {
		p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("50"), Quantity: 10})
		q := f.store.AddProduct(inventory.Product{Name: "Gadget", SalePrice: amount("8"), Quantity: 6})
		c := f.store.AddCustomer("Budi")
		return p, q, c
	}
	second := func(p, q, c int64) sales.Input {
		return sales.Input{
			Items:      []sales.LineInput{line(q, 5), line(p, 1)},
			CustomerID: &c,
			Discount:   amount("4"),
			Paid:       amount("50"),
		}
	}

	edited := newFixture(t)
	p, q, c := seed(edited)
	sale, err := edited.svc.Create(ctx, sales.Input{Items: []sales.LineInput{line(p, 9)}, CustomerID: &c, Paid: amount("100")})
	require.NoError(t, err)
	updated, err := edited.svc.Update(ctx, sale.ID, second(p, q, c))
	require.NoError(t, err)
	require.Equal(t, sale.InvoiceNo, updated.InvoiceNo)
	require.Equal(t, sale.ID, updated.ID)

	fresh := newFixture(t)
	fp, fq, fc := seed(fresh)
	created, err := fresh.svc.Create(ctx, second(fp, fq, fc))
	require.NoError(t, err)

	require.Equal(t, fresh.store.Product(fp).Quantity, edited.store.Product(p).Quantity)
	require.Equal(t, fresh.store.Product(fq).Quantity, edited.store.Product(q).Quantity)
	require.True(t, fresh.store.Customer(fc).Balance.Equal(edited.store.Customer(c).Balance))
	require.True(t, fresh.store.Customer(fc).TotalPurchases.Equal(edited.store.Customer(c).TotalPurchases))
	require.True(t, created.Total.Equal(updated.Total))
	require.Equal(t, created.Status, updated.Status)

	for _, m := range edited.store.Movements()[1:] {
		require.Equal(t, sales.ReasonEdited, m.Reason)
	}
	require.Len(t, edited.store.CashTransactions(), 1, "edit does not post cash")
	requireInvariants(t, edited.store)
}

func TestUpdateCanReuseOwnStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("50"), Quantity: 10})

	sale, err := f.svc.Create(ctx, sales.Input{Items: []sales.LineInput{line(p, 8)}})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, sale.ID, sales.Input{Items: []sales.LineInput{line(p, 10)}})
	require.NoError(t, err)
	require.Equal(t, int64(0), f.store.Product(p).Quantity)

	_, err = f.svc.Update(ctx, sale.ID, sales.Input{Items: []sales.LineInput{line(p, 11)}})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.Equal(t, int64(0), f.store.Product(p).Quantity)
	stored, err := f.svc.Get(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), stored.Items[0].Quantity)
}

func TestCashPostIsBestEffort(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("50"), Quantity: 10})
	f.store.FailCashAppends = true

	sale, err := f.svc.Create(context.Background(), sales.Input{Items: []sales.LineInput{line(p, 1)}, Paid: amount("50")})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPaid, sale.Status)
	require.Equal(t, 1, f.store.SaleCount())
	require.Equal(t, int64(9), f.store.Product(p).Quantity)
	require.Empty(t, f.store.CashTransactions())
	require.Equal(t, 1, f.failures.count[cash.ReferenceSale])
}

func TestCashPostConflictFailsSale(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("50"), Quantity: 10})
	f.store.RegisterLockErr = db.NewConflictError(ledgertest.ErrInjected)
	key := uuid.NewString()

	_, err := f.svc.Create(context.Background(), sales.Input{Items: []sales.LineInput{line(p, 1)}, Paid: amount("50"), IdempotencyKey: key})
	require.ErrorIs(t, err, db.ErrConflict)
	require.Zero(t, f.store.SaleCount())
	require.Equal(t, int64(10), f.store.Product(p).Quantity)
	require.Empty(t, f.store.Movements())
	require.Empty(t, f.failures.count)
	require.Zero(t, f.store.Bumps())

	f.store.RegisterLockErr = nil
	_, err = f.svc.Create(context.Background(), sales.Input{Items: []sales.LineInput{line(p, 1)}, Paid: amount("50"), IdempotencyKey: key})
	require.NoError(t, err, "a conflicted create releases its key")
	require.Len(t, f.store.CashTransactions(), 1)
}

func TestIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("50"), Quantity: 1})
	key := uuid.NewString()

	_, err := f.svc.Create(ctx, sales.Input{Items: []sales.LineInput{line(p, 2)}, IdempotencyKey: key})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	_, err = f.svc.Create(ctx, sales.Input{Items: []sales.LineInput{line(p, 1)}, IdempotencyKey: key})
	require.NoError(t, err, "a failed create releases its key")

	_, err = f.svc.Create(ctx, sales.Input{Items: []sales.LineInput{line(p, 1)}, IdempotencyKey: key})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, 1, f.store.SaleCount())
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("1"), Quantity: 10})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded  int
		unexpected []error
		invoices   = make(map[string]bool)
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, err := f.svc.Create(context.Background(), sales.Input{Items: []sales.LineInput{line(p, 1)}, Paid: amount("1")})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, ledger.ErrInsufficientStock) {
					unexpected = append(unexpected, err)
				}
				return
			}
			succeeded++
			invoices[sale.InvoiceNo] = true
		}()
	}
	wg.Wait()

	require.Empty(t, unexpected)
	require.Equal(t, 10, succeeded)
	require.Len(t, invoices, 10)
	require.Equal(t, int64(0), f.store.Product(p).Quantity)
	requireInvariants(t, f.store)

	report, err := cash.NewService(f.store.Cash(), nil, nil, nil, nil).CheckChain(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Violations())
	require.True(t, report.LastBalance.Equal(amount("10")))
}

func TestListPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.store.AddProduct(inventory.Product{Name: "Widget", SalePrice: amount("1"), Quantity: 10})
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, sales.Input{Items: []sales.LineInput{line(p, 1)}})
		require.NoError(t, err)
	}

	list, err := f.svc.List(ctx, shared.Page{Offset: 1, Limit: 5})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "INV002", list[0].InvoiceNo)
	require.Equal(t, "INV001", list[1].InvoiceNo)
}
