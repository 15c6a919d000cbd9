package purchases

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/inventory"
	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/platform/db"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence for purchases.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	*inventory.StockTx
	*cash.StoreTx
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{StockTx: inventory.NewStockTx(tx), StoreTx: cash.NewStoreTx(tx), tx: tx})
	})
}

// ============================================================================
// SEQUENCES AND SUPPLIERS
// ============================================================================

func (t *txRepo) ClaimInvoiceSequence(ctx context.Context, kind string) (int64, error) {
	var issued int64
	err := t.tx.QueryRow(ctx, `UPDATE document_sequences SET issued = issued + 1 WHERE kind = $1 RETURNING issued - 1`, kind).Scan(&issued)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("document sequence %q missing", kind)
	}
	return issued, err
}

func (t *txRepo) getSupplier(ctx context.Context, query string, id int64) (Supplier, error) {
	var s Supplier
	err := t.tx.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.TotalPurchases, &s.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ledger.NewNotFound("supplier", id)
	}
	return s, err
}

func (t *txRepo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return t.getSupplier(ctx, `SELECT id, name, total_purchases, balance FROM suppliers WHERE id = $1`, id)
}

func (t *txRepo) GetSupplierForUpdate(ctx context.Context, id int64) (Supplier, error) {
	return t.getSupplier(ctx, `SELECT id, name, total_purchases, balance FROM suppliers WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepo) UpdateSupplierTotals(ctx context.Context, id int64, totalPurchases, balance decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE suppliers SET total_purchases = $2, balance = $3, updated_at = NOW() WHERE id = $1`, id, totalPurchases, balance)
	return err
}

// ============================================================================
// PURCHASES
// ============================================================================

func (t *txRepo) InsertPurchase(ctx context.Context, p Purchase) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchases
		(invoice_no, supplier_id, supplier_name, purchase_date, subtotal, discount, total, paid, remaining, status, payment_method, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		p.InvoiceNo, p.SupplierID, p.SupplierName, p.PurchaseDate, p.Subtotal, p.Discount, p.Total, p.Paid, p.Remaining,
		string(p.Status), p.PaymentMethod, p.Notes, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) InsertPurchaseItems(ctx context.Context, purchaseID int64, items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		item.PurchaseID = purchaseID
		err := t.tx.QueryRow(ctx, `INSERT INTO purchase_items
			(purchase_id, product_id, product_name, supplier_id, supplier_name, quantity, unit_price, total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			purchaseID, item.ProductID, item.ProductName, item.SupplierID, item.SupplierName, item.Quantity, item.UnitPrice, item.Total,
		).Scan(&item.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (t *txRepo) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error) {
	p, err := scanPurchase(t.tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, ledger.NewNotFound("purchase", id)
	}
	if err != nil {
		return Purchase{}, err
	}
	p.Items, err = loadItems(ctx, t.tx, id)
	return p, err
}

func (t *txRepo) UpdatePurchase(ctx context.Context, p Purchase) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchases SET supplier_id = $2, supplier_name = $3, purchase_date = $4, subtotal = $5, discount = $6,
		total = $7, paid = $8, remaining = $9, status = $10, payment_method = $11, notes = $12, updated_at = $13
		WHERE id = $1`,
		p.ID, p.SupplierID, p.SupplierName, p.PurchaseDate, p.Subtotal, p.Discount, p.Total, p.Paid, p.Remaining,
		string(p.Status), p.PaymentMethod, p.Notes, p.UpdatedAt)
	return err
}

func (t *txRepo) DeletePurchaseItems(ctx context.Context, purchaseID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_items WHERE purchase_id = $1`, purchaseID)
	return err
}

func (t *txRepo) DeletePurchase(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchases WHERE id = $1`, id)
	return err
}

// ============================================================================
// READS
// ============================================================================

const purchaseColumns = `id, invoice_no, supplier_id, supplier_name, purchase_date, subtotal, discount, total, paid, remaining,
	status, payment_method, notes, created_by, created_at, updated_at`

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	var status string
	err := row.Scan(&p.ID, &p.InvoiceNo, &p.SupplierID, &p.SupplierName, &p.PurchaseDate, &p.Subtotal, &p.Discount,
		&p.Total, &p.Paid, &p.Remaining, &status, &p.PaymentMethod, &p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	p.Status = ledger.Status(status)
	return p, err
}

func loadItems(ctx context.Context, q db.Querier, purchaseID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_id, product_id, product_name, supplier_id, supplier_name, quantity, unit_price, total
		FROM purchase_items WHERE purchase_id = $1 ORDER BY id`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PurchaseID, &it.ProductID, &it.ProductName, &it.SupplierID, &it.SupplierName,
			&it.Quantity, &it.UnitPrice, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetPurchase returns a purchase with its lines.
func (r *Repository) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	p, err := scanPurchase(r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, ledger.NewNotFound("purchase", id)
	}
	if err != nil {
		return Purchase{}, err
	}
	p.Items, err = loadItems(ctx, r.pool, id)
	return p, err
}

// ListPurchases returns headers newest first, without lines.
func (r *Repository) ListPurchases(ctx context.Context, page shared.Page) ([]Purchase, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+purchaseColumns+` FROM purchases ORDER BY id DESC OFFSET $1 LIMIT $2`, page.Offset, page.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
