package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/observability"
	"github.com/odyssey-erp/storeledger/internal/shared"
	_ "github.com/odyssey-erp/storeledger/testing"
)

type pingStub struct{ err error }

func (p pingStub) Ping(ctx context.Context) error { return p.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LEDGER_LOCK_TTL", "5s")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "admin", cfg.PrivilegedRole)
	require.Equal(t, "Cash customer", cfg.WalkInCustomer)
	require.Equal(t, 3, cfg.InvoiceWidth)
	require.Equal(t, 5*time.Second, cfg.LockTTL)
	require.Equal(t, 10*time.Minute, cfg.ReportCacheTTL)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadWidth(t *testing.T) {
	t.Setenv("LEDGER_INVOICE_WIDTH", "0")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestActorMiddleware(t *testing.T) {
	var got ledger.Actor
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/purchases", nil)
	req.Header.Set(HeaderActor, " owner ")
	req.Header.Set(HeaderActorRole, "Admin")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "owner", got.Username)
	require.Equal(t, "admin", got.Role)
	require.True(t, got.Privileged(ledger.RoleAdmin))
}

func TestRouterHealthAndMetrics(t *testing.T) {
	cfg := &Config{AppRequestTimeout: time.Second, AppRateLimit: 1000}
	router := NewRouter(RouterParams{
		Logger:   discardLogger(),
		Config:   cfg,
		Database: pingStub{},
		Metrics:  observability.NewMetrics(),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `storeledger_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestRouterHealthDegraded(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:   discardLogger(),
		Config:   &Config{},
		Database: pingStub{err: errors.New("down")},
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestTestModeDetected(t *testing.T) {
	require.True(t, InTestMode())
}

func TestRouterCORSPreflight(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: discardLogger(),
		Config: &Config{AppCORSOrigins: []string{"https://pos.example.com"}},
	})
	req := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	req.Header.Set("Origin", "https://pos.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", HeaderActor)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "https://pos.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
