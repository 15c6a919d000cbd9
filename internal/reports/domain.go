package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockStatus classifies a product's on-hand quantity against its minimum.
type StockStatus string

const (
	StockOut     StockStatus = "out"
	StockVeryLow StockStatus = "very_low"
	StockLow     StockStatus = "low"
	StockGood    StockStatus = "good"
)

// ClassifyStock maps quantity and minimum to a status. Very low means at or
// below half the minimum.
func ClassifyStock(quantity, minQuantity int64) StockStatus {
	switch {
	case quantity <= 0:
		return StockOut
	case quantity*2 <= minQuantity:
		return StockVeryLow
	case quantity <= minQuantity:
		return StockLow
	default:
		return StockGood
	}
}

// Dashboard is the landing page summary.
type Dashboard struct {
	TotalSales     decimal.Decimal `json:"total_sales"`
	TotalProducts  int             `json:"total_products"`
	TotalCustomers int             `json:"total_customers"`
	TodayProfit    decimal.Decimal `json:"today_profit"`
	LowStockCount  int             `json:"low_stock_count"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
}

// Counts holds the aggregates behind Dashboard that come from SQL.
type Counts struct {
	TotalSales     decimal.Decimal
	TotalProducts  int
	TotalCustomers int
	TodayProfit    decimal.Decimal
	LowStockCount  int
}

// StockLevel is one product's stock and pricing snapshot.
type StockLevel struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Category      *string         `json:"category,omitempty"`
	Quantity      int64           `json:"quantity"`
	MinQuantity   int64           `json:"min_quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
}

// LowStockItem is a product at or below its minimum quantity.
type LowStockItem struct {
	ID          int64       `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Category    *string     `json:"category,omitempty"`
	Quantity    int64       `json:"quantity"`
	MinQuantity int64       `json:"min_quantity"`
	Status      StockStatus `json:"status"`
}

// ProfitTotals are the raw sums behind a profit report.
type ProfitTotals struct {
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Cost       decimal.Decimal
	SalesCount int
}

// Profit values cost at each product's current purchase price.
type Profit struct {
	From          *time.Time      `json:"from,omitempty"`
	To            *time.Time      `json:"to,omitempty"`
	TotalSales    decimal.Decimal `json:"total_sales"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	GrossProfit   decimal.Decimal `json:"gross_profit"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	NetProfit     decimal.Decimal `json:"net_profit"`
	SalesCount    int             `json:"sales_count"`
}

// StockHealth counts products per coarse stock status.
type StockHealth struct {
	Good int `json:"good"`
	Low  int `json:"low"`
	Out  int `json:"out"`
}

// InventoryValue values stock at purchase and sale prices.
type InventoryValue struct {
	TotalItems      int             `json:"total_items"`
	TotalQuantity   int64           `json:"total_quantity"`
	TotalCostValue  decimal.Decimal `json:"total_cost_value"`
	TotalSaleValue  decimal.Decimal `json:"total_sale_value"`
	PotentialProfit decimal.Decimal `json:"potential_profit"`
	StockHealth     StockHealth     `json:"stock_health"`
}

// DailySales aggregates sales of one calendar day.
type DailySales struct {
	Day    time.Time
	Sales  decimal.Decimal
	Profit decimal.Decimal
	Orders int
}

// TrendPoint is one day of a sales trend.
type TrendPoint struct {
	Date   string          `json:"date"`
	Sales  decimal.Decimal `json:"sales"`
	Profit decimal.Decimal `json:"profit"`
	Orders int             `json:"orders"`
}

// SalesTrend is a gap-filled daily series ending today.
type SalesTrend struct {
	Period string       `json:"period"`
	Days   int          `json:"days"`
	Data   []TrendPoint `json:"data"`
}

// TopProduct ranks products by revenue. ProductID is nil for lines whose
// product was deleted.
type TopProduct struct {
	ProductID    *int64          `json:"product_id,omitempty"`
	Name         string          `json:"name"`
	QuantitySold int64           `json:"quantity_sold"`
	Revenue      decimal.Decimal `json:"revenue"`
	Profit       decimal.Decimal `json:"profit"`
}

// TopCustomer ranks customers by lifetime purchases.
type TopCustomer struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	TotalPurchases decimal.Decimal `json:"total_purchases"`
	OrdersCount    int             `json:"orders_count"`
	Balance        decimal.Decimal `json:"balance"`
	LastPurchase   *time.Time      `json:"last_purchase,omitempty"`
}

// KPIWindows are the calendar bounds a KPI snapshot compares.
type KPIWindows struct {
	Today          time.Time
	WeekStart      time.Time
	MonthStart     time.Time
	LastMonthStart time.Time
	LastMonthEnd   time.Time
}

// NewKPIWindows derives the windows around today: the last seven days, the
// current month to date and the whole previous month.
func NewKPIWindows(today time.Time) KPIWindows {
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonthEnd := monthStart.AddDate(0, 0, -1)
	return KPIWindows{
		Today:          today,
		WeekStart:      today.AddDate(0, 0, -7),
		MonthStart:     monthStart,
		LastMonthStart: time.Date(lastMonthEnd.Year(), lastMonthEnd.Month(), 1, 0, 0, 0, 0, time.UTC),
		LastMonthEnd:   lastMonthEnd,
	}
}

// KPITotals are the raw sums behind a KPI snapshot.
type KPITotals struct {
	TotalRevenue     decimal.Decimal
	TodayRevenue     decimal.Decimal
	WeekRevenue      decimal.Decimal
	MonthRevenue     decimal.Decimal
	LastMonthRevenue decimal.Decimal
	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	Cost             decimal.Decimal
	TotalOrders      int
	MonthOrders      int
	LastMonthOrders  int
	Receivables      decimal.Decimal
	Payables         decimal.Decimal
}

// KPIs is the business health snapshot. Margins and growth are percentages.
type KPIs struct {
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	TodayRevenue       decimal.Decimal `json:"today_revenue"`
	ThisWeekRevenue    decimal.Decimal `json:"this_week_revenue"`
	ThisMonthRevenue   decimal.Decimal `json:"this_month_revenue"`
	GrossProfitMargin  decimal.Decimal `json:"gross_profit_margin"`
	NetProfitMargin    decimal.Decimal `json:"net_profit_margin"`
	AverageOrderValue  decimal.Decimal `json:"average_order_value"`
	TotalOrders        int             `json:"total_orders"`
	PendingReceivables decimal.Decimal `json:"pending_receivables"`
	PendingPayables    decimal.Decimal `json:"pending_payables"`
	InventoryValue     decimal.Decimal `json:"inventory_value"`
	InventoryItems     int             `json:"inventory_items"`
	LowStockItems      int             `json:"low_stock_items"`
	OutOfStockItems    int             `json:"out_of_stock_items"`
	RevenueGrowth      decimal.Decimal `json:"revenue_growth"`
	OrdersGrowth       decimal.Decimal `json:"orders_growth"`
}
