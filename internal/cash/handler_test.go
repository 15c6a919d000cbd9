package cash_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/storeledger/internal/app"
	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/ledgertest"
	"github.com/odyssey-erp/storeledger/internal/platform/httpx"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newServer(t *testing.T) (*ledgertest.Store, *httptest.Server) {
	t.Helper()
	store := ledgertest.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := cash.NewService(store.Cash(), cash.NewRegister(cash.RegisterConfig{Logger: logger}), nil, store, logger)
	r := chi.NewRouter()
	r.Use(app.ActorMiddleware)
	r.Route("/cash", cash.NewHandler(logger, svc).MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return store, srv
}

func send(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandlerDepositWithdrawBalance(t *testing.T) {
	store, srv := newServer(t)

	resp := send(t, http.MethodPost, srv.URL+"/cash/deposit", `{"amount":"500"}`, map[string]string{app.HeaderActor: "owner"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	txn := decode[cash.Transaction](t, resp)
	require.Equal(t, cash.TypeDeposit, txn.Type)
	require.Equal(t, "owner", txn.CreatedBy)
	require.True(t, txn.BalanceAfter.Equal(dec("500")))

	resp = send(t, http.MethodPost, srv.URL+"/cash/withdraw", `{"amount":"120.50","description":"rent"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "rent", decode[cash.Transaction](t, resp).Description)

	resp = send(t, http.MethodGet, srv.URL+"/cash/balance", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance := decode[struct {
		Balance decimal.Decimal `json:"balance"`
	}](t, resp)
	require.True(t, balance.Balance.Equal(dec("379.50")))
	require.Len(t, store.CashTransactions(), 2)
	require.Equal(t, 2, store.Bumps())
}

func TestHandlerWithdrawBeyondBalanceIsConflict(t *testing.T) {
	store, srv := newServer(t)
	store.SeedCash(dec("100"))

	resp := send(t, http.MethodPost, srv.URL+"/cash/withdraw", `{"amount":"150"}`,
		map[string]string{app.HeaderActorRole: "admin"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	problem := decode[httpx.ProblemDetail](t, resp)
	require.Equal(t, "Insufficient Cash", problem.Title)
	require.Contains(t, problem.Detail, "shortage 50.00")
	require.Len(t, store.CashTransactions(), 1)
}

func TestHandlerRejectsBadAmountsAndTypes(t *testing.T) {
	store, srv := newServer(t)

	for _, body := range []string{`{"amount":"0"}`, `{"amount":"-5"}`, `{"amount":"0.004"}`} {
		resp := send(t, http.MethodPost, srv.URL+"/cash/deposit", body, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		require.Equal(t, "Invalid Amount", decode[httpx.ProblemDetail](t, resp).Title, body)
	}

	resp := send(t, http.MethodGet, srv.URL+"/cash/transactions?type=refund", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Unknown Transaction Type", decode[httpx.ProblemDetail](t, resp).Title)

	resp = send(t, http.MethodGet, srv.URL+"/cash/affordability?amount=abc", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, store.CashTransactions())
}

func TestHandlerListTransactionsByType(t *testing.T) {
	store, srv := newServer(t)
	store.SeedCash(dec("100"))

	resp := send(t, http.MethodPost, srv.URL+"/cash/withdraw", `{"amount":"10"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = send(t, http.MethodGet, srv.URL+"/cash/transactions?type=withdrawal", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Data []cash.Transaction `json:"data"`
	}](t, resp)
	require.Len(t, list.Data, 1)
	require.Equal(t, cash.TypeWithdrawal, list.Data[0].Type)
}

func TestHandlerAffordabilityByRole(t *testing.T) {
	store, srv := newServer(t)
	store.SeedCash(dec("200"))

	resp := send(t, http.MethodGet, srv.URL+"/cash/affordability?amount=500", "", map[string]string{app.HeaderActorRole: "cashier"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	blocked := decode[cash.Affordability](t, resp)
	require.False(t, blocked.Allowed)
	require.True(t, blocked.Shortage.Equal(dec("300")))

	resp = send(t, http.MethodGet, srv.URL+"/cash/affordability?amount=500", "", map[string]string{app.HeaderActorRole: "admin"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	allowed := decode[cash.Affordability](t, resp)
	require.True(t, allowed.Allowed)
	require.Contains(t, allowed.Warning, "shortage 300.00")
}
