package masterdata

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// DuplicateCodeError reports a code already used within an entity.
type DuplicateCodeError struct {
	Entity Entity
	Code   string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("%s code %q already exists", e.Entity.Singular(), e.Code)
}
func (e *DuplicateCodeError) Status() int   { return http.StatusConflict }
func (e *DuplicateCodeError) Title() string { return "Duplicate Code" }

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheBumper invalidates derived report caches after a change.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service implements master data business logic.
type Service struct {
	repo   Repository
	audit  AuditPort
	cache  CacheBumper
	logger *slog.Logger
	width  int
}

// NewService creates a new master data service.
func NewService(repo Repository, audit AuditPort, cache CacheBumper, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, logger: logger, width: ledger.DefaultNumberWidth}
}

// Category operations

func (s *Service) ListCategories(ctx context.Context, filters ListFilters) ([]Category, int, error) {
	return s.repo.ListCategories(ctx, normalize(filters))
}

func (s *Service) GetCategory(ctx context.Context, id int64) (Category, error) {
	return s.repo.GetCategory(ctx, id)
}

func (s *Service) CreateCategory(ctx context.Context, category Category, actor ledger.Actor) (Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if err := shared.ValidateStruct(category); err != nil {
		return Category{}, err
	}
	code, err := s.code(ctx, EntityCategory, category.Code)
	if err != nil {
		return Category{}, err
	}
	category.Code = code
	created, err := s.repo.CreateCategory(ctx, category)
	if err != nil {
		return Category{}, err
	}
	s.changed(ctx, EntityCategory, ledger.OpCreate, created.ID, created.Code, actor)
	return created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id int64, category Category, actor ledger.Actor) (Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if err := shared.ValidateStruct(category); err != nil {
		return Category{}, err
	}
	existing, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	category.ID = id
	category.CreatedAt = existing.CreatedAt
	if strings.TrimSpace(category.Code) == "" {
		category.Code = existing.Code
	}
	if err := s.repo.UpdateCategory(ctx, category); err != nil {
		return Category{}, err
	}
	s.changed(ctx, EntityCategory, ledger.OpUpdate, id, category.Code, actor)
	return s.repo.GetCategory(ctx, id)
}

// DeleteCategory removes a category; its products become uncategorised.
func (s *Service) DeleteCategory(ctx context.Context, id int64, actor ledger.Actor) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, EntityCategory, ledger.OpDelete, id, "", actor)
	return nil
}

// Customer and supplier operations

func (s *Service) ListParties(ctx context.Context, entity Entity, filters ListFilters) ([]Party, int, error) {
	if err := partyEntity(entity); err != nil {
		return nil, 0, err
	}
	return s.repo.ListParties(ctx, entity, normalize(filters))
}

func (s *Service) GetParty(ctx context.Context, entity Entity, id int64) (Party, error) {
	if err := partyEntity(entity); err != nil {
		return Party{}, err
	}
	return s.repo.GetParty(ctx, entity, id)
}

// CreateParty stores a customer or supplier with zero running totals.
func (s *Service) CreateParty(ctx context.Context, entity Entity, party Party, actor ledger.Actor) (Party, error) {
	if err := partyEntity(entity); err != nil {
		return Party{}, err
	}
	party.Name = strings.TrimSpace(party.Name)
	if err := shared.ValidateStruct(party); err != nil {
		return Party{}, err
	}
	code, err := s.code(ctx, entity, party.Code)
	if err != nil {
		return Party{}, err
	}
	party.Code = code
	party.TotalPurchases, party.Balance = decimal.Zero, decimal.Zero
	created, err := s.repo.CreateParty(ctx, entity, party)
	if err != nil {
		return Party{}, err
	}
	s.changed(ctx, entity, ledger.OpCreate, created.ID, created.Code, actor)
	return created, nil
}

// UpdateParty edits contact fields. Running totals are left untouched.
func (s *Service) UpdateParty(ctx context.Context, entity Entity, id int64, party Party, actor ledger.Actor) (Party, error) {
	if err := partyEntity(entity); err != nil {
		return Party{}, err
	}
	party.Name = strings.TrimSpace(party.Name)
	if err := shared.ValidateStruct(party); err != nil {
		return Party{}, err
	}
	existing, err := s.repo.GetParty(ctx, entity, id)
	if err != nil {
		return Party{}, err
	}
	party.ID = id
	party.TotalPurchases, party.Balance = existing.TotalPurchases, existing.Balance
	party.CreatedAt = existing.CreatedAt
	if strings.TrimSpace(party.Code) == "" {
		party.Code = existing.Code
	}
	if err := s.repo.UpdateParty(ctx, entity, party); err != nil {
		return Party{}, err
	}
	s.changed(ctx, entity, ledger.OpUpdate, id, party.Code, actor)
	return s.repo.GetParty(ctx, entity, id)
}

// DeleteParty removes a customer or supplier. Documents keep the name
// snapshot and lose the reference.
func (s *Service) DeleteParty(ctx context.Context, entity Entity, id int64, actor ledger.Actor) error {
	if err := partyEntity(entity); err != nil {
		return err
	}
	if err := s.repo.DeleteParty(ctx, entity, id); err != nil {
		return err
	}
	s.changed(ctx, entity, ledger.OpDelete, id, "", actor)
	return nil
}

// Product operations

func (s *Service) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, normalize(filters))
}

func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// CreateProduct stores a product with zero stock. Opening stock is entered
// through a purchase or an inventory adjustment.
func (s *Service) CreateProduct(ctx context.Context, product Product, actor ledger.Actor) (Product, error) {
	if err := validateProduct(&product); err != nil {
		return Product{}, err
	}
	code, err := s.code(ctx, EntityProduct, product.Code)
	if err != nil {
		return Product{}, err
	}
	product.Code = code
	product.Quantity = 0
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return Product{}, err
	}
	s.changed(ctx, EntityProduct, ledger.OpCreate, created.ID, created.Code, actor)
	return created, nil
}

// UpdateProduct edits catalogue fields. Quantity is never written here.
func (s *Service) UpdateProduct(ctx context.Context, id int64, product Product, actor ledger.Actor) (Product, error) {
	if err := validateProduct(&product); err != nil {
		return Product{}, err
	}
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	product.ID = id
	product.Quantity = existing.Quantity
	product.CreatedAt = existing.CreatedAt
	if strings.TrimSpace(product.Code) == "" {
		product.Code = existing.Code
	}
	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return Product{}, err
	}
	s.changed(ctx, EntityProduct, ledger.OpUpdate, id, product.Code, actor)
	return s.repo.GetProduct(ctx, id)
}

// DeleteProduct removes a product. Sale and purchase lines keep the name
// snapshot; movements keep the product id.
func (s *Service) DeleteProduct(ctx context.Context, id int64, actor ledger.Actor) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, EntityProduct, ledger.OpDelete, id, "", actor)
	return nil
}

func validateProduct(product *Product) error {
	product.Name = strings.TrimSpace(product.Name)
	if err := shared.ValidateStruct(product); err != nil {
		return err
	}
	if product.PurchasePrice.IsNegative() {
		return ledger.Invalid("purchase_price", "must not be negative")
	}
	if product.SalePrice.IsNegative() {
		return ledger.Invalid("sale_price", "must not be negative")
	}
	product.PurchasePrice = ledger.Round2(product.PurchasePrice)
	product.SalePrice = ledger.Round2(product.SalePrice)
	return nil
}

func partyEntity(entity Entity) error {
	if entity != EntityCustomer && entity != EntitySupplier {
		return ledger.Invalid("entity", fmt.Sprintf("%q is not a customer or supplier table", entity))
	}
	return nil
}

// code keeps a caller supplied code or derives the next one from the highest
// stored id.
func (s *Service) code(ctx context.Context, entity Entity, requested string) (string, error) {
	if code := strings.TrimSpace(requested); code != "" {
		return code, nil
	}
	maxID, err := s.repo.MaxID(ctx, entity)
	if err != nil {
		return "", fmt.Errorf("masterdata: next %s code: %w", entity.Singular(), err)
	}
	return ledger.NextEntityCode(entity.Prefix(), maxID, s.width), nil
}

func normalize(filters ListFilters) ListFilters {
	filters.Search = strings.TrimSpace(filters.Search)
	filters.Page = shared.NewPage(filters.Page.Offset, filters.Page.Limit)
	return filters
}

func (s *Service) changed(ctx context.Context, entity Entity, op ledger.Operation, id int64, code string, actor ledger.Actor) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor.Username,
			Action:   fmt.Sprintf("%s:%s", entity.Singular(), op),
			Entity:   entity.Singular(),
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"code": code},
		})
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump report cache", slog.Any("error", err))
		}
	}
}
