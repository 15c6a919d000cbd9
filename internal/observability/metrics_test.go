package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/storeledger/internal/ledger"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `storeledger_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `storeledger_http_request_duration_seconds_bucket{route="/test"`)
}

func TestLedgerCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.DocumentCommitted("sale", ledger.OpCreate)
	metrics.DocumentCommitted("sale", ledger.OpCreate)
	metrics.CashPostFailed("purchase")
	metrics.ReportCacheResult("dashboard", true)
	metrics.ReportCacheResult("dashboard", false)

	body := scrape(t, metrics)
	require.Contains(t, body, `storeledger_documents_total{kind="sale",op="create"} 2`)
	require.Contains(t, body, `storeledger_cash_post_failures_total{reference_type="purchase"} 1`)
	require.Contains(t, body, `storeledger_report_cache_total{report="dashboard",result="hit"} 1`)
	require.Contains(t, body, `storeledger_report_cache_total{report="dashboard",result="miss"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.DocumentCommitted("purchase", ledger.OpDelete)
	metrics.CashPostFailed("sale")
	metrics.ReportCacheResult("profit", true)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
