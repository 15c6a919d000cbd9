package masterdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// Entity names a master data table.
type Entity string

const (
	EntityProduct  Entity = "products"
	EntityCustomer Entity = "customers"
	EntitySupplier Entity = "suppliers"
	EntityCategory Entity = "categories"
)

// Prefix returns the generated code prefix of the entity.
func (e Entity) Prefix() string {
	switch e {
	case EntityProduct:
		return ledger.PrefixProduct
	case EntityCustomer:
		return ledger.PrefixCustomer
	case EntitySupplier:
		return ledger.PrefixSupplier
	default:
		return ledger.PrefixCategory
	}
}

// Singular returns the entity name used in errors and audit logs.
func (e Entity) Singular() string {
	switch e {
	case EntityProduct:
		return "product"
	case EntityCustomer:
		return "customer"
	case EntitySupplier:
		return "supplier"
	default:
		return "category"
	}
}

// ListFilters represents standard list filters.
type ListFilters struct {
	Search string
	Page   shared.Page
}

// Category groups products.
type Category struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code" validate:"max=50"`
	Name        string    `json:"name" validate:"required,max=100"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Party is a customer or supplier. TotalPurchases and Balance are maintained
// by sales and purchases and are read-only here.
type Party struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code" validate:"max=50"`
	Name           string          `json:"name" validate:"required,max=200"`
	Phone          string          `json:"phone" validate:"max=20"`
	Email          string          `json:"email" validate:"omitempty,email,max=100"`
	Address        string          `json:"address"`
	Notes          string          `json:"notes"`
	TotalPurchases decimal.Decimal `json:"total_purchases"`
	Balance        decimal.Decimal `json:"balance"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Product is a stock-keeping item. Quantity only changes through inventory
// movements.
type Product struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code" validate:"max=50"`
	Name          string          `json:"name" validate:"required,max=200"`
	CategoryID    *int64          `json:"category_id,omitempty" validate:"omitempty,gt=0"`
	SupplierID    *int64          `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Quantity      int64           `json:"quantity"`
	MinQuantity   int64           `json:"min_quantity" validate:"gte=0"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Repository interface for master data operations.
type Repository interface {
	// MaxID returns the highest id ever stored in the entity's table.
	MaxID(ctx context.Context, entity Entity) (int64, error)

	ListCategories(ctx context.Context, filters ListFilters) ([]Category, int, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	CreateCategory(ctx context.Context, category Category) (Category, error)
	UpdateCategory(ctx context.Context, category Category) error
	DeleteCategory(ctx context.Context, id int64) error

	ListParties(ctx context.Context, entity Entity, filters ListFilters) ([]Party, int, error)
	GetParty(ctx context.Context, entity Entity, id int64) (Party, error)
	CreateParty(ctx context.Context, entity Entity, party Party) (Party, error)
	UpdateParty(ctx context.Context, entity Entity, party Party) error
	DeleteParty(ctx context.Context, entity Entity, id int64) error

	ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)
	// UpdateProduct writes every column except quantity.
	UpdateProduct(ctx context.Context, product Product) error
	DeleteProduct(ctx context.Context, id int64) error
}
