package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// StockTx implements StockStore over an open transaction. Sales and purchases
// embed it so every movement goes through the same statements.
type StockTx struct {
	q db.Querier
}

// NewStockTx wraps a transaction.
func NewStockTx(q db.Querier) *StockTx {
	return &StockTx{q: q}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewStockTx(tx))
	})
}

const productColumns = `id, code, name, purchase_price, sale_price, quantity, min_quantity, supplier_id`

// GetProductForUpdate locks the product row.
func (t *StockTx) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	row := t.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.PurchasePrice, &p.SalePrice, &p.Quantity, &p.MinQuantity, &p.SupplierID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ledger.NewNotFound("product", id)
	}
	return p, err
}

// SetProductQuantity writes the new on-hand quantity.
func (t *StockTx) SetProductQuantity(ctx context.Context, id, quantity int64) error {
	tag, err := t.q.Exec(ctx, `UPDATE products SET quantity = $2, updated_at = NOW() WHERE id = $1`, id, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.NewNotFound("product", id)
	}
	return nil
}

// InsertMovement appends a movement row.
func (t *StockTx) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO inventory_movements
		(product_id, movement_type, quantity_before, quantity_change, quantity_after, reason, reference_type, reference_id, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		m.ProductID, string(m.Type), m.QuantityBefore, m.QuantityChange, m.QuantityAfter,
		m.Reason, m.ReferenceType, m.ReferenceID, m.Notes, m.CreatedBy, m.CreatedAt,
	).Scan(&m.ID)
	return m, err
}

// ListMovements returns movements newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	query := `SELECT id, product_id, movement_type, quantity_before, quantity_change, quantity_after,
		reason, reference_type, reference_id, notes, created_by, created_at
		FROM inventory_movements
		WHERE ($1::bigint IS NULL OR product_id = $1)
		ORDER BY id DESC
		OFFSET $2 LIMIT $3`
	rows, err := r.pool.Query(ctx, query, filter.ProductID, filter.Page.Offset, filter.Page.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		var kind string
		if err := rows.Scan(&m.ID, &m.ProductID, &kind, &m.QuantityBefore, &m.QuantityChange, &m.QuantityAfter,
			&m.Reason, &m.ReferenceType, &m.ReferenceID, &m.Notes, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

// InconsistentMovements returns ids of movements where before + change != after.
func (r *Repository) InconsistentMovements(ctx context.Context) ([]int64, error) {
	return r.ids(ctx, `SELECT id FROM inventory_movements WHERE quantity_before + quantity_change <> quantity_after ORDER BY id`)
}

// NegativeProducts returns ids of products holding a negative quantity.
func (r *Repository) NegativeProducts(ctx context.Context) ([]int64, error) {
	return r.ids(ctx, `SELECT id FROM products WHERE quantity < 0 ORDER BY id`)
}

func (r *Repository) ids(ctx context.Context, query string) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("inventory: collect ids: %w", err)
	}
	return ids, nil
}
