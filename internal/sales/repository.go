package sales

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

// Repository provides PostgreSQL backed persistence for sales.
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
// SEQUENCES AND CUSTOMERS
// ============================================================================

func (t *txRepo) ClaimInvoiceSequence(ctx context.Context, kind string) (int64, error) {
	var issued int64
	err := t.tx.QueryRow(ctx, `UPDATE document_sequences SET issued = issued + 1 WHERE kind = $1 RETURNING issued - 1`, kind).Scan(&issued)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("document sequence %q missing", kind)
	}
	return issued, err
}

func (t *txRepo) GetCustomerForUpdate(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := t.tx.QueryRow(ctx, `SELECT id, name, total_purchases, balance FROM customers WHERE id = $1 FOR UPDATE`, id).
		Scan(&c.ID, &c.Name, &c.TotalPurchases, &c.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ledger.NewNotFound("customer", id)
	}
	return c, err
}

func (t *txRepo) UpdateCustomerTotals(ctx context.Context, id int64, totalPurchases, balance decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE customers SET total_purchases = $2, balance = $3, updated_at = NOW() WHERE id = $1`, id, totalPurchases, balance)
	return err
}

// ============================================================================
// SALES
// ============================================================================

func (t *txRepo) InsertSale(ctx context.Context, s Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sales
		(invoice_no, customer_id, customer_name, sale_date, subtotal, discount, total, paid, remaining, status, payment_method, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		s.InvoiceNo, s.CustomerID, s.CustomerName, s.SaleDate, s.Subtotal, s.Discount, s.Total, s.Paid, s.Remaining,
		string(s.Status), s.PaymentMethod, s.Notes, s.CreatedBy, s.CreatedAt, s.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) InsertSaleItems(ctx context.Context, saleID int64, items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		item.SaleID = saleID
		err := t.tx.QueryRow(ctx, `INSERT INTO sale_items (sale_id, product_id, product_name, quantity, unit_price, total)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			saleID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Total,
		).Scan(&item.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (t *txRepo) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(t.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ledger.NewNotFound("sale", id)
	}
	if err != nil {
		return Sale{}, err
	}
	sale.Items, err = loadItems(ctx, t.tx, id)
	return sale, err
}

func (t *txRepo) UpdateSale(ctx context.Context, s Sale) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales SET customer_id = $2, customer_name = $3, sale_date = $4, subtotal = $5, discount = $6,
		total = $7, paid = $8, remaining = $9, status = $10, payment_method = $11, notes = $12, updated_at = $13
		WHERE id = $1`,
		s.ID, s.CustomerID, s.CustomerName, s.SaleDate, s.Subtotal, s.Discount, s.Total, s.Paid, s.Remaining,
		string(s.Status), s.PaymentMethod, s.Notes, s.UpdatedAt)
	return err
}

func (t *txRepo) DeleteSaleItems(ctx context.Context, saleID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
	return err
}

func (t *txRepo) DeleteSale(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	return err
}

// ============================================================================
// READS
// ============================================================================

const saleColumns = `id, invoice_no, customer_id, customer_name, sale_date, subtotal, discount, total, paid, remaining,
	status, payment_method, notes, created_by, created_at, updated_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var status string
	err := row.Scan(&s.ID, &s.InvoiceNo, &s.CustomerID, &s.CustomerName, &s.SaleDate, &s.Subtotal, &s.Discount,
		&s.Total, &s.Paid, &s.Remaining, &status, &s.PaymentMethod, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	s.Status = ledger.Status(status)
	return s, err
}

func loadItems(ctx context.Context, q db.Querier, saleID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, sale_id, product_id, product_name, quantity, unit_price, total
		FROM sale_items WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetSale returns a sale with its lines.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ledger.NewNotFound("sale", id)
	}
	if err != nil {
		return Sale{}, err
	}
	sale.Items, err = loadItems(ctx, r.pool, id)
	return sale, err
}

// ListSales returns headers newest first, without lines.
func (r *Repository) ListSales(ctx context.Context, page shared.Page) ([]Sale, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY id DESC OFFSET $1 LIMIT $2`, page.Offset, page.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
