package reports

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/ledger"
)

// Report names used in cache keys and metrics.
const (
	ReportDashboard      = "dashboard"
	ReportLowStock       = "low_stock"
	ReportProfit         = "profit"
	ReportInventoryValue = "inventory_value"
	ReportTopProducts    = "top_products"
	ReportTopCustomers   = "top_customers"
	ReportSalesTrend     = "sales_trend"
	ReportKPIs           = "kpis"
)

// Limits applied to caller supplied sizes.
const (
	DefaultTopLimit  = 10
	MaxTopLimit      = 100
	DefaultTrendDays = 30
	MaxTrendDays     = 365
)

// Repository exposes the aggregate queries reports rely on.
type Repository interface {
	Counts(ctx context.Context, today time.Time) (Counts, error)
	StockLevels(ctx context.Context) ([]StockLevel, error)
	ProfitTotals(ctx context.Context, from, to *time.Time) (ProfitTotals, error)
	DailySales(ctx context.Context, from, to time.Time) ([]DailySales, error)
	TopProducts(ctx context.Context, limit int) ([]TopProduct, error)
	TopCustomers(ctx context.Context, limit int) ([]TopCustomer, error)
	KPITotals(ctx context.Context, w KPIWindows) (KPITotals, error)
}

// MetricsPort records cache effectiveness.
type MetricsPort interface {
	ReportCacheResult(report string, hit bool)
}

// Service coordinates report query execution with the cache layer.
type Service struct {
	repo     Repository
	balances cash.BalanceReader
	cache    *Cache
	metrics  MetricsPort
	logger   *slog.Logger
	group    singleflight.Group
	clock    func() time.Time
}

// NewService wires a Repository with a Cache helper. cache may be nil.
func NewService(repo Repository, balances cash.BalanceReader, cache *Cache, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, balances: balances, cache: cache, metrics: metrics, logger: logger, clock: time.Now}
}

// Bump invalidates every cached report.
func (s *Service) Bump(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) today() time.Time {
	now := s.clock().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Dashboard returns the landing page summary.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	today := s.today()
	return fetch(ctx, s, ReportDashboard, []string{today.Format(ledger.DateLayout)}, func(ctx context.Context) (Dashboard, error) {
		counts, err := s.repo.Counts(ctx, today)
		if err != nil {
			return Dashboard{}, err
		}
		balance := decimal.Zero
		if s.balances != nil {
			if balance, err = s.balances.LastBalance(ctx); err != nil {
				return Dashboard{}, err
			}
		}
		return Dashboard{
			TotalSales:     counts.TotalSales,
			TotalProducts:  counts.TotalProducts,
			TotalCustomers: counts.TotalCustomers,
			TodayProfit:    ledger.Round2(counts.TodayProfit),
			LowStockCount:  counts.LowStockCount,
			CashBalance:    balance,
		}, nil
	})
}

// LowStock lists products at or below their minimum quantity.
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	return fetch(ctx, s, ReportLowStock, nil, func(ctx context.Context) ([]LowStockItem, error) {
		levels, err := s.repo.StockLevels(ctx)
		if err != nil {
			return nil, err
		}
		items := []LowStockItem{}
		for _, l := range levels {
			status := ClassifyStock(l.Quantity, l.MinQuantity)
			if status == StockGood {
				continue
			}
			items = append(items, LowStockItem{
				ID:          l.ID,
				Code:        l.Code,
				Name:        l.Name,
				Category:    l.Category,
				Quantity:    l.Quantity,
				MinQuantity: l.MinQuantity,
				Status:      status,
			})
		}
		return items, nil
	})
}

// Profit summarises sales between the optional dates, inclusive.
func (s *Service) Profit(ctx context.Context, from, to *time.Time) (Profit, error) {
	if from != nil && to != nil && to.Before(*from) {
		return Profit{}, ledger.Invalid("to", "must not be before from")
	}
	parts := []string{dateToken(from), dateToken(to)}
	return fetch(ctx, s, ReportProfit, parts, func(ctx context.Context) (Profit, error) {
		totals, err := s.repo.ProfitTotals(ctx, from, to)
		if err != nil {
			return Profit{}, err
		}
		gross := totals.Subtotal.Sub(totals.Cost)
		return Profit{
			From:          from,
			To:            to,
			TotalSales:    totals.Subtotal,
			TotalCost:     ledger.Round2(totals.Cost),
			GrossProfit:   ledger.Round2(gross),
			TotalDiscount: totals.Discount,
			NetProfit:     ledger.Round2(gross.Sub(totals.Discount)),
			SalesCount:    totals.SalesCount,
		}, nil
	})
}

// InventoryValue values on-hand stock.
func (s *Service) InventoryValue(ctx context.Context) (InventoryValue, error) {
	return fetch(ctx, s, ReportInventoryValue, nil, func(ctx context.Context) (InventoryValue, error) {
		levels, err := s.repo.StockLevels(ctx)
		if err != nil {
			return InventoryValue{}, err
		}
		out := InventoryValue{TotalItems: len(levels), TotalCostValue: decimal.Zero, TotalSaleValue: decimal.Zero}
		for _, l := range levels {
			out.TotalQuantity += l.Quantity
			out.TotalCostValue = out.TotalCostValue.Add(ledger.LineTotal(l.PurchasePrice, l.Quantity))
			out.TotalSaleValue = out.TotalSaleValue.Add(ledger.LineTotal(l.SalePrice, l.Quantity))
			switch ClassifyStock(l.Quantity, l.MinQuantity) {
			case StockOut:
				out.StockHealth.Out++
			case StockGood:
				out.StockHealth.Good++
			default:
				out.StockHealth.Low++
			}
		}
		out.PotentialProfit = out.TotalSaleValue.Sub(out.TotalCostValue)
		return out, nil
	})
}

// TopProducts ranks products by revenue.
func (s *Service) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	limit = clamp(limit, DefaultTopLimit, MaxTopLimit)
	return fetch(ctx, s, ReportTopProducts, []string{strconv.Itoa(limit)}, func(ctx context.Context) ([]TopProduct, error) {
		rows, err := s.repo.TopProducts(ctx, limit)
		if rows == nil && err == nil {
			rows = []TopProduct{}
		}
		return rows, err
	})
}

// TopCustomers ranks customers by lifetime purchases.
func (s *Service) TopCustomers(ctx context.Context, limit int) ([]TopCustomer, error) {
	limit = clamp(limit, DefaultTopLimit, MaxTopLimit)
	return fetch(ctx, s, ReportTopCustomers, []string{strconv.Itoa(limit)}, func(ctx context.Context) ([]TopCustomer, error) {
		rows, err := s.repo.TopCustomers(ctx, limit)
		if rows == nil && err == nil {
			rows = []TopCustomer{}
		}
		return rows, err
	})
}

// SalesTrend returns one point per day from today-days through today, with
// zero points for days without sales.
func (s *Service) SalesTrend(ctx context.Context, days int) (SalesTrend, error) {
	days = clamp(days, DefaultTrendDays, MaxTrendDays)
	today := s.today()
	from := today.AddDate(0, 0, -days)
	parts := []string{today.Format(ledger.DateLayout), strconv.Itoa(days)}
	return fetch(ctx, s, ReportSalesTrend, parts, func(ctx context.Context) (SalesTrend, error) {
		rows, err := s.repo.DailySales(ctx, from, today)
		if err != nil {
			return SalesTrend{}, err
		}
		return FillTrend(rows, from, today, days), nil
	})
}

// KPIs returns the business health snapshot for today.
func (s *Service) KPIs(ctx context.Context) (KPIs, error) {
	today := s.today()
	return fetch(ctx, s, ReportKPIs, []string{today.Format(ledger.DateLayout)}, func(ctx context.Context) (KPIs, error) {
		totals, err := s.repo.KPITotals(ctx, NewKPIWindows(today))
		if err != nil {
			return KPIs{}, err
		}
		value, err := s.InventoryValue(ctx)
		if err != nil {
			return KPIs{}, err
		}
		return ComputeKPIs(totals, value), nil
	})
}

var hundred = decimal.NewFromInt(100)

// ComputeKPIs derives margins, averages and month over month growth. Ratios
// with a zero denominator report zero.
func ComputeKPIs(t KPITotals, value InventoryValue) KPIs {
	gross := t.Subtotal.Sub(t.Cost)
	net := gross.Sub(t.Discount)
	out := KPIs{
		TotalRevenue:       t.TotalRevenue,
		TodayRevenue:       t.TodayRevenue,
		ThisWeekRevenue:    t.WeekRevenue,
		ThisMonthRevenue:   t.MonthRevenue,
		GrossProfitMargin:  percent(gross, t.TotalRevenue),
		NetProfitMargin:    percent(net, t.TotalRevenue),
		AverageOrderValue:  decimal.Zero,
		TotalOrders:        t.TotalOrders,
		PendingReceivables: t.Receivables,
		PendingPayables:    t.Payables,
		InventoryValue:     value.TotalCostValue,
		InventoryItems:     value.TotalItems,
		LowStockItems:      value.StockHealth.Low,
		OutOfStockItems:    value.StockHealth.Out,
		RevenueGrowth:      percent(t.MonthRevenue.Sub(t.LastMonthRevenue), t.LastMonthRevenue),
		OrdersGrowth:       percent(decimal.NewFromInt(int64(t.MonthOrders-t.LastMonthOrders)), decimal.NewFromInt(int64(t.LastMonthOrders))),
	}
	if t.TotalOrders > 0 {
		out.AverageOrderValue = ledger.Round2(t.TotalRevenue.Div(decimal.NewFromInt(int64(t.TotalOrders))))
	}
	return out
}

func percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return ledger.Round2(part.Div(whole).Mul(hundred))
}

// FillTrend lays rows onto a contiguous daily series between from and to.
func FillTrend(rows []DailySales, from, to time.Time, days int) SalesTrend {
	byDay := make(map[string]DailySales, len(rows))
	for _, r := range rows {
		byDay[r.Day.Format(ledger.DateLayout)] = r
	}
	trend := SalesTrend{Period: "daily", Days: days}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(ledger.DateLayout)
		point := TrendPoint{Date: key, Sales: decimal.Zero, Profit: decimal.Zero}
		if r, ok := byDay[key]; ok {
			point.Sales, point.Profit, point.Orders = r.Sales, ledger.Round2(r.Profit), r.Orders
		}
		trend.Data = append(trend.Data, point)
	}
	return trend
}

// fetch serves a report from the versioned cache, coalescing concurrent
// builds of the same key. Cache failures fall back to a direct build.
func fetch[T any](ctx context.Context, s *Service, report string, parts []string, loader func(context.Context) (T, error)) (T, error) {
	var zero T
	key, err := s.cache.BuildKey(ctx, append([]string{report}, parts...)...)
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.String("report", report), slog.Any("error", err))
		return loader(ctx)
	}
	resultChan := s.group.DoChan(key, func() (any, error) {
		var (
			out     T
			loaded  T
			built   bool
			loadErr error
		)
		hit, err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			loaded, loadErr = loader(ctx)
			built = loadErr == nil
			return loaded, loadErr
		})
		if loadErr != nil {
			return nil, loadErr
		}
		if err != nil {
			s.logger.Warn("report cache unavailable", slog.String("report", report), slog.Any("error", err))
			if built {
				return loaded, nil
			}
			return loader(ctx)
		}
		if s.metrics != nil {
			s.metrics.ReportCacheResult(report, hit)
		}
		return out, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func dateToken(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(ledger.DateLayout)
}
