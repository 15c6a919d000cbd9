package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/storeledger/internal/ledger"
)

type mockRepo struct {
	counts      Counts
	countsCalls int
	levels      []StockLevel
	levelCalls  int
	totals      ProfitTotals
	totalsErr   error
	totalsCalls int
	daily       []DailySales
	dailyFrom   time.Time
	dailyTo     time.Time
	products    []TopProduct
	topLimit    int
	customers   []TopCustomer
	kpis        KPITotals
	kpiWindows  KPIWindows
	kpiCalls    int
}

func (m *mockRepo) Counts(ctx context.Context, today time.Time) (Counts, error) {
	m.countsCalls++
	return m.counts, nil
}

func (m *mockRepo) StockLevels(ctx context.Context) ([]StockLevel, error) {
	m.levelCalls++
	return m.levels, nil
}

func (m *mockRepo) ProfitTotals(ctx context.Context, from, to *time.Time) (ProfitTotals, error) {
	m.totalsCalls++
	return m.totals, m.totalsErr
}

func (m *mockRepo) DailySales(ctx context.Context, from, to time.Time) ([]DailySales, error) {
	m.dailyFrom, m.dailyTo = from, to
	return m.daily, nil
}

func (m *mockRepo) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	m.topLimit = limit
	return m.products, nil
}

func (m *mockRepo) TopCustomers(ctx context.Context, limit int) ([]TopCustomer, error) {
	m.topLimit = limit
	return m.customers, nil
}

func (m *mockRepo) KPITotals(ctx context.Context, w KPIWindows) (KPITotals, error) {
	m.kpiCalls++
	m.kpiWindows = w
	return m.kpis, nil
}

type fixedBalance decimal.Decimal

func (b fixedBalance) LastBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(b), nil
}

type cacheMetrics struct {
	hits, misses int
}

func (m *cacheMetrics) ReportCacheResult(report string, hit bool) {
	if hit {
		m.hits++
		return
	}
	m.misses++
}

var now = time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, repo Repository) (*Service, *cacheMetrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	metrics := &cacheMetrics{}
	svc := NewService(repo, fixedBalance(decimal.NewFromInt(750)), NewCache(client, time.Minute), metrics, nil)
	svc.clock = func() time.Time { return now }
	return svc, metrics
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestClassifyStock(t *testing.T) {
	cases := map[string]struct {
		qty, min int64
		want     StockStatus
	}{
		"empty":         {0, 5, StockOut},
		"half minimum":  {2, 5, StockVeryLow},
		"at half":       {5, 10, StockVeryLow},
		"at minimum":    {5, 5, StockLow},
		"above minimum": {6, 5, StockGood},
		"zero minimum":  {1, 0, StockGood},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifyStock(tc.qty, tc.min))
		})
	}
}

func TestDashboardCachesUntilBump(t *testing.T) {
	repo := &mockRepo{counts: Counts{
		TotalSales:     dec("1250.50"),
		TotalProducts:  12,
		TotalCustomers: 4,
		TodayProfit:    dec("80.125"),
		LowStockCount:  3,
	}}
	svc, metrics := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	require.True(t, first.TotalSales.Equal(dec("1250.50")))
	require.True(t, first.TodayProfit.Equal(dec("80.13")))
	require.True(t, first.CashBalance.Equal(decimal.NewFromInt(750)))
	require.Equal(t, 3, first.LowStockCount)

	second, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, first.TotalProducts, second.TotalProducts)
	require.Equal(t, 1, repo.countsCalls)
	require.Equal(t, 1, metrics.hits)
	require.Equal(t, 1, metrics.misses)

	require.NoError(t, svc.Bump(ctx))
	_, err = svc.Dashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.countsCalls)
}

func TestLowStockClassifies(t *testing.T) {
	repo := &mockRepo{levels: []StockLevel{
		{ID: 1, Name: "Empty", Quantity: 0, MinQuantity: 5},
		{ID: 2, Name: "Scarce", Quantity: 2, MinQuantity: 5},
		{ID: 3, Name: "Thin", Quantity: 5, MinQuantity: 5},
		{ID: 4, Name: "Plenty", Quantity: 50, MinQuantity: 5},
	}}
	svc, _ := newTestService(t, repo)

	items, err := svc.LowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, StockOut, items[0].Status)
	require.Equal(t, StockVeryLow, items[1].Status)
	require.Equal(t, StockLow, items[2].Status)
}

func TestLowStockEmptyIsNotNil(t *testing.T) {
	svc, _ := newTestService(t, &mockRepo{})
	items, err := svc.LowStock(context.Background())
	require.NoError(t, err)
	require.NotNil(t, items)
	require.Empty(t, items)
}

func TestProfitNetsDiscount(t *testing.T) {
	repo := &mockRepo{totals: ProfitTotals{
		Subtotal:   dec("1000"),
		Discount:   dec("50"),
		Cost:       dec("600"),
		SalesCount: 7,
	}}
	svc, _ := newTestService(t, repo)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	profit, err := svc.Profit(context.Background(), &from, &to)
	require.NoError(t, err)
	require.True(t, profit.TotalSales.Equal(dec("1000")))
	require.True(t, profit.GrossProfit.Equal(dec("400")))
	require.True(t, profit.NetProfit.Equal(dec("350")))
	require.Equal(t, 7, profit.SalesCount)
	require.NotNil(t, profit.From)

	_, err = svc.Profit(context.Background(), &to, &from)
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func TestProfitRangesCacheSeparately(t *testing.T) {
	repo := &mockRepo{totals: ProfitTotals{Subtotal: dec("10"), Discount: decimal.Zero, Cost: dec("4")}}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Profit(ctx, nil, nil)
	require.NoError(t, err)
	_, err = svc.Profit(ctx, &day, nil)
	require.NoError(t, err)
	_, err = svc.Profit(ctx, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, repo.totalsCalls)
}

func TestLoaderErrorIsNotCached(t *testing.T) {
	repo := &mockRepo{totalsErr: errors.New("boom")}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.Profit(ctx, nil, nil)
	require.EqualError(t, err, "boom")

	repo.totalsErr = nil
	repo.totals = ProfitTotals{Subtotal: dec("5"), Discount: decimal.Zero, Cost: decimal.Zero}
	profit, err := svc.Profit(ctx, nil, nil)
	require.NoError(t, err)
	require.True(t, profit.NetProfit.Equal(dec("5")))
	require.Equal(t, 2, repo.totalsCalls)
}

func TestInventoryValue(t *testing.T) {
	repo := &mockRepo{levels: []StockLevel{
		{ID: 1, Quantity: 0, MinQuantity: 5, PurchasePrice: dec("3"), SalePrice: dec("5")},
		{ID: 2, Quantity: 4, MinQuantity: 5, PurchasePrice: dec("10"), SalePrice: dec("15")},
		{ID: 3, Quantity: 20, MinQuantity: 5, PurchasePrice: dec("2.50"), SalePrice: dec("4")},
	}}
	svc, _ := newTestService(t, repo)

	value, err := svc.InventoryValue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, value.TotalItems)
	require.Equal(t, int64(24), value.TotalQuantity)
	require.True(t, value.TotalCostValue.Equal(dec("90")))
	require.True(t, value.TotalSaleValue.Equal(dec("140")))
	require.True(t, value.PotentialProfit.Equal(dec("50")))
	require.Equal(t, StockHealth{Good: 1, Low: 1, Out: 1}, value.StockHealth)
}

func TestTopListsClampLimit(t *testing.T) {
	repo := &mockRepo{}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	products, err := svc.TopProducts(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, products)
	require.Equal(t, DefaultTopLimit, repo.topLimit)

	_, err = svc.TopCustomers(ctx, 5000)
	require.NoError(t, err)
	require.Equal(t, MaxTopLimit, repo.topLimit)
}

func TestSalesTrendFillsGaps(t *testing.T) {
	repo := &mockRepo{daily: []DailySales{
		{Day: time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC), Sales: dec("100"), Profit: dec("30"), Orders: 2},
		{Day: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), Sales: dec("40"), Profit: dec("10"), Orders: 1},
	}}
	svc, _ := newTestService(t, repo)

	trend, err := svc.SalesTrend(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 3, trend.Days)
	require.Equal(t, "daily", trend.Period)
	require.Len(t, trend.Data, 4)
	require.Equal(t, "2024-03-12", trend.Data[0].Date)
	require.True(t, trend.Data[0].Sales.IsZero())
	require.Equal(t, 2, trend.Data[1].Orders)
	require.True(t, trend.Data[1].Sales.Equal(dec("100")))
	require.Equal(t, 0, trend.Data[2].Orders)
	require.Equal(t, "2024-03-15", trend.Data[3].Date)
	require.True(t, repo.dailyFrom.Equal(time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)))
	require.True(t, repo.dailyTo.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)))
}

func TestSalesTrendDefaultsAndClamps(t *testing.T) {
	svc, _ := newTestService(t, &mockRepo{})
	ctx := context.Background()

	trend, err := svc.SalesTrend(ctx, 0)
	require.NoError(t, err)
	require.Len(t, trend.Data, DefaultTrendDays+1)

	trend, err = svc.SalesTrend(ctx, 10000)
	require.NoError(t, err)
	require.Equal(t, MaxTrendDays, trend.Days)
}

func TestServiceWithoutRedis(t *testing.T) {
	repo := &mockRepo{counts: Counts{TotalSales: decimal.Zero, TodayProfit: decimal.Zero}}
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	_, err = svc.Dashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.countsCalls)
	require.NoError(t, svc.Bump(ctx))
}

func TestListenForInvalidationAdoptsNewerVersion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, cache.ListenForInvalidation(ctx, ""))
	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	require.NoError(t, client.Publish(ctx, BumpChannel, "9").Err())
	require.Eventually(t, func() bool {
		v, err := cache.Version(ctx)
		return err == nil && v == 9
	}, time.Second, 10*time.Millisecond)
}

func TestKPIWindows(t *testing.T) {
	w := NewKPIWindows(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), w.WeekStart)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), w.MonthStart)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), w.LastMonthStart)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), w.LastMonthEnd)

	jan := NewKPIWindows(time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), jan.LastMonthStart)
	require.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), jan.LastMonthEnd)
}

func TestKPIsDeriveRatiosAndCache(t *testing.T) {
	repo := &mockRepo{
		kpis: KPITotals{
			TotalRevenue:     dec("900"),
			TodayRevenue:     dec("100"),
			WeekRevenue:      dec("300"),
			MonthRevenue:     dec("600"),
			LastMonthRevenue: dec("400"),
			Subtotal:         dec("1000"),
			Discount:         dec("100"),
			Cost:             dec("550"),
			TotalOrders:      7,
			MonthOrders:      3,
			LastMonthOrders:  4,
			Receivables:      dec("120"),
			Payables:         dec("80"),
		},
		levels: []StockLevel{
			{ID: 1, Quantity: 0, MinQuantity: 5, PurchasePrice: dec("3")},
			{ID: 2, Quantity: 4, MinQuantity: 5, PurchasePrice: dec("10")},
			{ID: 3, Quantity: 20, MinQuantity: 5, PurchasePrice: dec("2.50")},
		},
	}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	kpis, err := svc.KPIs(ctx)
	require.NoError(t, err)
	require.True(t, kpis.GrossProfitMargin.Equal(dec("50")))
	require.True(t, kpis.NetProfitMargin.Equal(dec("38.89")))
	require.True(t, kpis.AverageOrderValue.Equal(dec("128.57")))
	require.True(t, kpis.RevenueGrowth.Equal(dec("50")))
	require.True(t, kpis.OrdersGrowth.Equal(dec("-25")))
	require.True(t, kpis.PendingReceivables.Equal(dec("120")))
	require.True(t, kpis.PendingPayables.Equal(dec("80")))
	require.True(t, kpis.ThisWeekRevenue.Equal(dec("300")))
	require.True(t, kpis.InventoryValue.Equal(dec("90")))
	require.Equal(t, 3, kpis.InventoryItems)
	require.Equal(t, 1, kpis.LowStockItems)
	require.Equal(t, 1, kpis.OutOfStockItems)
	require.Equal(t, 7, kpis.TotalOrders)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), repo.kpiWindows.Today)

	_, err = svc.KPIs(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.kpiCalls)

	require.NoError(t, svc.Bump(ctx))
	_, err = svc.KPIs(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.kpiCalls)
}

func TestComputeKPIsWithoutHistory(t *testing.T) {
	kpis := ComputeKPIs(KPITotals{MonthRevenue: dec("50"), MonthOrders: 1}, InventoryValue{})
	require.True(t, kpis.GrossProfitMargin.IsZero())
	require.True(t, kpis.AverageOrderValue.IsZero())
	require.True(t, kpis.RevenueGrowth.IsZero())
	require.True(t, kpis.OrdersGrowth.IsZero())
}
