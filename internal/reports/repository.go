package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository executes report queries against PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Counts gathers the dashboard aggregates. Today's profit is valued at each
// product's current purchase price.
func (r *PGRepository) Counts(ctx context.Context, today time.Time) (Counts, error) {
	var c Counts
	err := r.pool.QueryRow(ctx, `SELECT
		(SELECT COALESCE(SUM(total), 0) FROM sales),
		(SELECT COUNT(*) FROM products),
		(SELECT COUNT(*) FROM customers),
		(SELECT COALESCE(SUM((si.unit_price - p.purchase_price) * si.quantity), 0)
			FROM sale_items si
			JOIN sales s ON s.id = si.sale_id
			JOIN products p ON p.id = si.product_id
			WHERE s.sale_date = $1),
		(SELECT COUNT(*) FROM products WHERE quantity <= min_quantity)`, today,
	).Scan(&c.TotalSales, &c.TotalProducts, &c.TotalCustomers, &c.TodayProfit, &c.LowStockCount)
	return c, err
}

// StockLevels lists every product with its category name.
func (r *PGRepository) StockLevels(ctx context.Context) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.name, c.name, p.quantity, p.min_quantity, p.purchase_price, p.sale_price
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		ORDER BY p.quantity ASC, p.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockLevel
	for rows.Next() {
		var l StockLevel
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &l.Category, &l.Quantity, &l.MinQuantity, &l.PurchasePrice, &l.SalePrice); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ProfitTotals sums sales between the optional dates, inclusive.
func (r *PGRepository) ProfitTotals(ctx context.Context, from, to *time.Time) (ProfitTotals, error) {
	var t ProfitTotals
	err := r.pool.QueryRow(ctx, `WITH scoped AS (
			SELECT id, subtotal, discount FROM sales
			WHERE ($1::date IS NULL OR sale_date >= $1) AND ($2::date IS NULL OR sale_date <= $2)
		)
		SELECT
			COALESCE((SELECT SUM(subtotal) FROM scoped), 0),
			COALESCE((SELECT SUM(discount) FROM scoped), 0),
			COALESCE((SELECT SUM(p.purchase_price * si.quantity)
				FROM sale_items si
				JOIN scoped s ON s.id = si.sale_id
				JOIN products p ON p.id = si.product_id), 0),
			(SELECT COUNT(*) FROM scoped)`, from, to,
	).Scan(&t.Subtotal, &t.Discount, &t.Cost, &t.SalesCount)
	return t, err
}

// DailySales groups sales per calendar day. Days without sales are absent.
func (r *PGRepository) DailySales(ctx context.Context, from, to time.Time) ([]DailySales, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.sale_date,
			SUM(s.total),
			COALESCE(SUM(lp.profit), 0),
			COUNT(*)
		FROM sales s
		LEFT JOIN LATERAL (
			SELECT SUM((si.unit_price - p.purchase_price) * si.quantity) AS profit
			FROM sale_items si
			JOIN products p ON p.id = si.product_id
			WHERE si.sale_id = s.id
		) lp ON TRUE
		WHERE s.sale_date BETWEEN $1 AND $2
		GROUP BY s.sale_date
		ORDER BY s.sale_date`, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailySales, error) {
		var d DailySales
		err := row.Scan(&d.Day, &d.Sales, &d.Profit, &d.Orders)
		return d, err
	})
}

// TopProducts ranks sold lines by revenue. Lines whose product was deleted
// group under a nil id.
func (r *PGRepository) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	rows, err := r.pool.Query(ctx, `SELECT si.product_id,
			COALESCE(MAX(p.name), 'Unknown'),
			SUM(si.quantity),
			SUM(si.total),
			COALESCE(SUM((si.unit_price - p.purchase_price) * si.quantity), 0)
		FROM sale_items si
		LEFT JOIN products p ON p.id = si.product_id
		GROUP BY si.product_id
		ORDER BY SUM(si.total) DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TopProduct, error) {
		var p TopProduct
		err := row.Scan(&p.ProductID, &p.Name, &p.QuantitySold, &p.Revenue, &p.Profit)
		return p, err
	})
}

// TopCustomers ranks customers by lifetime purchases.
func (r *PGRepository) TopCustomers(ctx context.Context, limit int) ([]TopCustomer, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, c.total_purchases, c.balance,
			COUNT(s.id), MAX(s.created_at)
		FROM customers c
		LEFT JOIN sales s ON s.customer_id = c.id
		GROUP BY c.id
		ORDER BY c.total_purchases DESC, c.id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TopCustomer, error) {
		var c TopCustomer
		err := row.Scan(&c.ID, &c.Name, &c.TotalPurchases, &c.Balance, &c.OrdersCount, &c.LastPurchase)
		return c, err
	})
}

// KPITotals sums revenue per window, the lifetime profit inputs and the open
// customer and supplier balances in one round trip.
func (r *PGRepository) KPITotals(ctx context.Context, w KPIWindows) (KPITotals, error) {
	var t KPITotals
	err := r.pool.QueryRow(ctx, `SELECT
		COALESCE(SUM(total), 0),
		COALESCE(SUM(total) FILTER (WHERE sale_date = $1), 0),
		COALESCE(SUM(total) FILTER (WHERE sale_date >= $2), 0),
		COALESCE(SUM(total) FILTER (WHERE sale_date >= $3), 0),
		COALESCE(SUM(total) FILTER (WHERE sale_date BETWEEN $4 AND $5), 0),
		COALESCE(SUM(subtotal), 0),
		COALESCE(SUM(discount), 0),
		COALESCE((SELECT SUM(p.purchase_price * si.quantity)
			FROM sale_items si
			JOIN products p ON p.id = si.product_id), 0),
		COUNT(*),
		COUNT(*) FILTER (WHERE sale_date >= $3),
		COUNT(*) FILTER (WHERE sale_date BETWEEN $4 AND $5),
		(SELECT COALESCE(SUM(balance), 0) FROM customers),
		(SELECT COALESCE(SUM(balance), 0) FROM suppliers)
		FROM sales`, w.Today, w.WeekStart, w.MonthStart, w.LastMonthStart, w.LastMonthEnd,
	).Scan(&t.TotalRevenue, &t.TodayRevenue, &t.WeekRevenue, &t.MonthRevenue, &t.LastMonthRevenue,
		&t.Subtotal, &t.Discount, &t.Cost, &t.TotalOrders, &t.MonthOrders, &t.LastMonthOrders,
		&t.Receivables, &t.Payables)
	return t, err
}
