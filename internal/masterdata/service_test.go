package masterdata

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

type memoryRepo struct {
	maxID      map[Entity]int64
	categories map[int64]Category
	parties    map[Entity]map[int64]Party
	products   map[int64]Product
	bumps      int
	audits     []shared.AuditLog
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		maxID:      make(map[Entity]int64),
		categories: make(map[int64]Category),
		parties:    map[Entity]map[int64]Party{EntityCustomer: {}, EntitySupplier: {}},
		products:   make(map[int64]Product),
	}
}

func (m *memoryRepo) Bump(ctx context.Context) error { m.bumps++; return nil }

func (m *memoryRepo) Record(ctx context.Context, log shared.AuditLog) error {
	m.audits = append(m.audits, log)
	return nil
}

func (m *memoryRepo) MaxID(ctx context.Context, entity Entity) (int64, error) {
	return m.maxID[entity], nil
}

func (m *memoryRepo) next(entity Entity) int64 {
	m.maxID[entity]++
	return m.maxID[entity]
}

func (m *memoryRepo) codeTaken(entity Entity, id int64, code string) bool {
	switch entity {
	case EntityProduct:
		for _, p := range m.products {
			if p.ID != id && p.Code == code {
				return true
			}
		}
	case EntityCategory:
		for _, c := range m.categories {
			if c.ID != id && c.Code == code {
				return true
			}
		}
	default:
		for _, p := range m.parties[entity] {
			if p.ID != id && p.Code == code {
				return true
			}
		}
	}
	return false
}

func matches(search, code, name string) bool {
	return search == "" || strings.Contains(strings.ToLower(name), strings.ToLower(search)) || strings.Contains(strings.ToLower(code), strings.ToLower(search))
}

func (m *memoryRepo) ListCategories(ctx context.Context, f ListFilters) ([]Category, int, error) {
	var out []Category
	for id := int64(1); id <= m.maxID[EntityCategory]; id++ {
		if c, ok := m.categories[id]; ok && matches(f.Search, c.Code, c.Name) {
			out = append(out, c)
		}
	}
	start, end := f.Page.Window(len(out))
	return out[start:end], len(out), nil
}

func (m *memoryRepo) GetCategory(ctx context.Context, id int64) (Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return Category{}, ledger.NewNotFound("category", id)
	}
	return c, nil
}

func (m *memoryRepo) CreateCategory(ctx context.Context, c Category) (Category, error) {
	if m.codeTaken(EntityCategory, 0, c.Code) {
		return Category{}, &DuplicateCodeError{Entity: EntityCategory, Code: c.Code}
	}
	c.ID = m.next(EntityCategory)
	m.categories[c.ID] = c
	return c, nil
}

func (m *memoryRepo) UpdateCategory(ctx context.Context, c Category) error {
	if m.codeTaken(EntityCategory, c.ID, c.Code) {
		return &DuplicateCodeError{Entity: EntityCategory, Code: c.Code}
	}
	m.categories[c.ID] = c
	return nil
}

func (m *memoryRepo) DeleteCategory(ctx context.Context, id int64) error {
	if _, ok := m.categories[id]; !ok {
		return ledger.NewNotFound("category", id)
	}
	delete(m.categories, id)
	for pid, p := range m.products {
		if p.CategoryID != nil && *p.CategoryID == id {
			p.CategoryID = nil
			m.products[pid] = p
		}
	}
	return nil
}

func (m *memoryRepo) ListParties(ctx context.Context, entity Entity, f ListFilters) ([]Party, int, error) {
	var out []Party
	for id := int64(1); id <= m.maxID[entity]; id++ {
		if p, ok := m.parties[entity][id]; ok && matches(f.Search, p.Code, p.Name) {
			out = append(out, p)
		}
	}
	start, end := f.Page.Window(len(out))
	return out[start:end], len(out), nil
}

func (m *memoryRepo) GetParty(ctx context.Context, entity Entity, id int64) (Party, error) {
	p, ok := m.parties[entity][id]
	if !ok {
		return Party{}, ledger.NewNotFound(entity.Singular(), id)
	}
	return p, nil
}

func (m *memoryRepo) CreateParty(ctx context.Context, entity Entity, p Party) (Party, error) {
	if m.codeTaken(entity, 0, p.Code) {
		return Party{}, &DuplicateCodeError{Entity: entity, Code: p.Code}
	}
	p.ID = m.next(entity)
	m.parties[entity][p.ID] = p
	return p, nil
}

func (m *memoryRepo) UpdateParty(ctx context.Context, entity Entity, p Party) error {
	m.parties[entity][p.ID] = p
	return nil
}

func (m *memoryRepo) DeleteParty(ctx context.Context, entity Entity, id int64) error {
	if _, ok := m.parties[entity][id]; !ok {
		return ledger.NewNotFound(entity.Singular(), id)
	}
	delete(m.parties[entity], id)
	return nil
}

func (m *memoryRepo) ListProducts(ctx context.Context, f ListFilters) ([]Product, int, error) {
	var out []Product
	for id := int64(1); id <= m.maxID[EntityProduct]; id++ {
		if p, ok := m.products[id]; ok && matches(f.Search, p.Code, p.Name) {
			out = append(out, p)
		}
	}
	start, end := f.Page.Window(len(out))
	return out[start:end], len(out), nil
}

func (m *memoryRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, ledger.NewNotFound("product", id)
	}
	return p, nil
}

func (m *memoryRepo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if m.codeTaken(EntityProduct, 0, p.Code) {
		return Product{}, &DuplicateCodeError{Entity: EntityProduct, Code: p.Code}
	}
	p.ID = m.next(EntityProduct)
	m.products[p.ID] = p
	return p, nil
}

func (m *memoryRepo) UpdateProduct(ctx context.Context, p Product) error {
	stored, ok := m.products[p.ID]
	if !ok {
		return ledger.NewNotFound("product", p.ID)
	}
	p.Quantity = stored.Quantity
	m.products[p.ID] = p
	return nil
}

func (m *memoryRepo) DeleteProduct(ctx context.Context, id int64) error {
	if _, ok := m.products[id]; !ok {
		return ledger.NewNotFound("product", id)
	}
	delete(m.products, id)
	return nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, repo, repo, nil), repo
}

func TestCreateProductGeneratesCodeAndZeroStock(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	actor := ledger.Actor{Username: "owner"}

	first, err := svc.CreateProduct(ctx, Product{Name: " Kopi Bubuk ", SalePrice: decimal.RequireFromString("12.505"), Quantity: 40}, actor)
	require.NoError(t, err)
	require.Equal(t, "PROD001", first.Code)
	require.Equal(t, "Kopi Bubuk", first.Name)
	require.Equal(t, int64(0), first.Quantity)
	require.True(t, first.SalePrice.Equal(decimal.RequireFromString("12.51")))

	second, err := svc.CreateProduct(ctx, Product{Name: "Teh"}, actor)
	require.NoError(t, err)
	require.Equal(t, "PROD002", second.Code)

	custom, err := svc.CreateProduct(ctx, Product{Name: "Gula", Code: "SKU-9"}, actor)
	require.NoError(t, err)
	require.Equal(t, "SKU-9", custom.Code)

	_, err = svc.CreateProduct(ctx, Product{Name: "Gula Aren", Code: "SKU-9"}, actor)
	var dup *DuplicateCodeError
	require.ErrorAs(t, err, &dup)

	require.Equal(t, 3, repo.bumps)
	require.Len(t, repo.audits, 3)
	require.Equal(t, "product:create", repo.audits[0].Action)
}

func TestUpdateProductKeepsQuantity(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, Product{Name: "Kopi"}, ledger.Actor{})
	require.NoError(t, err)
	stored := repo.products[p.ID]
	stored.Quantity = 25
	repo.products[p.ID] = stored

	updated, err := svc.UpdateProduct(ctx, p.ID, Product{Name: "Kopi Arabika", Quantity: 999, MinQuantity: 3}, ledger.Actor{})
	require.NoError(t, err)
	require.Equal(t, int64(25), updated.Quantity)
	require.Equal(t, "Kopi Arabika", updated.Name)
	require.Equal(t, p.Code, updated.Code)
	require.Equal(t, int64(3), updated.MinQuantity)

	_, err = svc.UpdateProduct(ctx, 404, Product{Name: "x"}, ledger.Actor{})
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestProductValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, Product{Name: "  "}, ledger.Actor{})
	require.ErrorIs(t, err, ledger.ErrValidation)
	_, err = svc.CreateProduct(ctx, Product{Name: "Kopi", PurchasePrice: decimal.NewFromInt(-1)}, ledger.Actor{})
	require.ErrorIs(t, err, ledger.ErrValidation)
	_, err = svc.CreateProduct(ctx, Product{Name: "Kopi", MinQuantity: -2}, ledger.Actor{})
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func TestPartiesKeepRunningTotals(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	customer, err := svc.CreateParty(ctx, EntityCustomer, Party{Name: "Budi", Balance: decimal.NewFromInt(50)}, ledger.Actor{})
	require.NoError(t, err)
	require.Equal(t, "CUST001", customer.Code)
	require.True(t, customer.Balance.IsZero())

	supplier, err := svc.CreateParty(ctx, EntitySupplier, Party{Name: "PT Sumber"}, ledger.Actor{})
	require.NoError(t, err)
	require.Equal(t, "SUPP001", supplier.Code)

	stored := repo.parties[EntityCustomer][customer.ID]
	stored.Balance = decimal.NewFromInt(75)
	stored.TotalPurchases = decimal.NewFromInt(120)
	repo.parties[EntityCustomer][customer.ID] = stored

	updated, err := svc.UpdateParty(ctx, EntityCustomer, customer.ID, Party{Name: "Budi S", Email: "budi@example.com"}, ledger.Actor{})
	require.NoError(t, err)
	require.True(t, updated.Balance.Equal(decimal.NewFromInt(75)))
	require.True(t, updated.TotalPurchases.Equal(decimal.NewFromInt(120)))
	require.Equal(t, "CUST001", updated.Code)

	_, err = svc.UpdateParty(ctx, EntityCustomer, customer.ID, Party{Name: "Budi", Email: "not-an-email"}, ledger.Actor{})
	require.ErrorIs(t, err, ledger.ErrValidation)
	_, err = svc.CreateParty(ctx, EntityProduct, Party{Name: "x"}, ledger.Actor{})
	require.ErrorIs(t, err, ledger.ErrValidation)

	require.NoError(t, svc.DeleteParty(ctx, EntitySupplier, supplier.ID, ledger.Actor{}))
	_, err = svc.GetParty(ctx, EntitySupplier, supplier.ID)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCategoriesAndListing(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	drinks, err := svc.CreateCategory(ctx, Category{Name: "Minuman"}, ledger.Actor{})
	require.NoError(t, err)
	require.Equal(t, "CAT001", drinks.Code)

	for _, name := range []string{"Kopi", "Teh", "Kopi Susu"} {
		_, err := svc.CreateProduct(ctx, Product{Name: name, CategoryID: &drinks.ID}, ledger.Actor{})
		require.NoError(t, err)
	}

	list, total, err := svc.ListProducts(ctx, ListFilters{Search: "kopi"})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, list, 2)

	page, total, err := svc.ListProducts(ctx, ListFilters{Page: shared.Page{Offset: 2, Limit: 5}})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, page, 1)

	require.NoError(t, svc.DeleteCategory(ctx, drinks.ID, ledger.Actor{}))
	for _, p := range repo.products {
		require.Nil(t, p.CategoryID)
	}
	require.ErrorIs(t, svc.DeleteCategory(ctx, drinks.ID, ledger.Actor{}), ledger.ErrNotFound)
}
