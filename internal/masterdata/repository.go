package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/platform/db"
)

// repository implements Repository over PostgreSQL.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new master data repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const searchClause = `($1 = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%')`

func (r *repository) MaxID(ctx context.Context, entity Entity) (int64, error) {
	var maxID int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM `+table(entity)).Scan(&maxID)
	return maxID, err
}

func (r *repository) count(ctx context.Context, entity Entity, search string) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table(entity)+` WHERE `+searchClause, search).Scan(&total)
	return total, err
}

// mapWriteError turns constraint violations into caller errors.
func mapWriteError(entity Entity, code string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return &DuplicateCodeError{Entity: entity, Code: code}
	case db.IsForeignKeyViolation(err):
		return ledger.Invalid("reference", "category or supplier does not exist")
	default:
		return err
	}
}

func notFound(entity Entity, id int64, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.NewNotFound(entity.Singular(), id)
	}
	return err
}

func affected(entity Entity, id int64, n int64) error {
	if n == 0 {
		return ledger.NewNotFound(entity.Singular(), id)
	}
	return nil
}

// ============================================================================
// CATEGORIES
// ============================================================================

const categoryColumns = `id, code, name, description, created_at, updated_at`

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *repository) ListCategories(ctx context.Context, filters ListFilters) ([]Category, int, error) {
	total, err := r.count(ctx, EntityCategory, filters.Search)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories WHERE `+searchClause+`
		ORDER BY name OFFSET $2 LIMIT $3`, filters.Search, filters.Page.Offset, filters.Page.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) GetCategory(ctx context.Context, id int64) (Category, error) {
	c, err := scanCategory(r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	return c, notFound(EntityCategory, id, err)
}

func (r *repository) CreateCategory(ctx context.Context, c Category) (Category, error) {
	created, err := scanCategory(r.pool.QueryRow(ctx, `INSERT INTO categories (code, name, description)
		VALUES ($1, $2, $3) RETURNING `+categoryColumns, c.Code, c.Name, c.Description))
	return created, mapWriteError(EntityCategory, c.Code, err)
}

func (r *repository) UpdateCategory(ctx context.Context, c Category) error {
	tag, err := r.pool.Exec(ctx, `UPDATE categories SET code = $2, name = $3, description = $4, updated_at = NOW()
		WHERE id = $1`, c.ID, c.Code, c.Name, c.Description)
	if err != nil {
		return mapWriteError(EntityCategory, c.Code, err)
	}
	return affected(EntityCategory, c.ID, tag.RowsAffected())
}

func (r *repository) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affected(EntityCategory, id, tag.RowsAffected())
}

// ============================================================================
// CUSTOMERS AND SUPPLIERS
// ============================================================================

const partyColumns = `id, code, name, phone, email, address, notes, total_purchases, balance, created_at, updated_at`

func scanParty(row pgx.Row) (Party, error) {
	var p Party
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Phone, &p.Email, &p.Address, &p.Notes,
		&p.TotalPurchases, &p.Balance, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func table(entity Entity) string {
	return pgx.Identifier{string(entity)}.Sanitize()
}

func (r *repository) ListParties(ctx context.Context, entity Entity, filters ListFilters) ([]Party, int, error) {
	total, err := r.count(ctx, entity, filters.Search)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+partyColumns+` FROM `+table(entity)+` WHERE `+searchClause+`
		ORDER BY name OFFSET $2 LIMIT $3`, filters.Search, filters.Page.Offset, filters.Page.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repository) GetParty(ctx context.Context, entity Entity, id int64) (Party, error) {
	p, err := scanParty(r.pool.QueryRow(ctx, `SELECT `+partyColumns+` FROM `+table(entity)+` WHERE id = $1`, id))
	return p, notFound(entity, id, err)
}

func (r *repository) CreateParty(ctx context.Context, entity Entity, p Party) (Party, error) {
	created, err := scanParty(r.pool.QueryRow(ctx, `INSERT INTO `+table(entity)+` (code, name, phone, email, address, notes)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+partyColumns,
		p.Code, p.Name, p.Phone, p.Email, p.Address, p.Notes))
	return created, mapWriteError(entity, p.Code, err)
}

// UpdateParty leaves total_purchases and balance to the document services.
func (r *repository) UpdateParty(ctx context.Context, entity Entity, p Party) error {
	tag, err := r.pool.Exec(ctx, `UPDATE `+table(entity)+`
		SET code = $2, name = $3, phone = $4, email = $5, address = $6, notes = $7, updated_at = NOW()
		WHERE id = $1`, p.ID, p.Code, p.Name, p.Phone, p.Email, p.Address, p.Notes)
	if err != nil {
		return mapWriteError(entity, p.Code, err)
	}
	return affected(entity, p.ID, tag.RowsAffected())
}

func (r *repository) DeleteParty(ctx context.Context, entity Entity, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+table(entity)+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affected(entity, id, tag.RowsAffected())
}

// ============================================================================
// PRODUCTS
// ============================================================================

const productColumns = `id, code, name, category_id, supplier_id, purchase_price, sale_price, quantity, min_quantity, description, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.CategoryID, &p.SupplierID, &p.PurchasePrice, &p.SalePrice,
		&p.Quantity, &p.MinQuantity, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	total, err := r.count(ctx, EntityProduct, filters.Search)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE `+searchClause+`
		ORDER BY name OFFSET $2 LIMIT $3`, filters.Search, filters.Page.Offset, filters.Page.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	return p, notFound(EntityProduct, id, err)
}

func (r *repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	created, err := scanProduct(r.pool.QueryRow(ctx, `INSERT INTO products
		(code, name, category_id, supplier_id, purchase_price, sale_price, quantity, min_quantity, description)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8) RETURNING `+productColumns,
		p.Code, p.Name, p.CategoryID, p.SupplierID, p.PurchasePrice, p.SalePrice, p.MinQuantity, p.Description))
	return created, mapWriteError(EntityProduct, p.Code, err)
}

func (r *repository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products
		SET code = $2, name = $3, category_id = $4, supplier_id = $5, purchase_price = $6, sale_price = $7,
		    min_quantity = $8, description = $9, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Code, p.Name, p.CategoryID, p.SupplierID, p.PurchasePrice, p.SalePrice, p.MinQuantity, p.Description)
	if err != nil {
		return mapWriteError(EntityProduct, p.Code, err)
	}
	return affected(EntityProduct, p.ID, tag.RowsAffected())
}

func (r *repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affected(EntityProduct, id, tag.RowsAffected())
}
