package jobs

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

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/storeledger/internal/jobs"
	"github.com/odyssey-erp/storeledger/internal/reports"
)

type stockStub struct {
	report inventory.IntegrityReport
	err    error
}

func (s stockStub) CheckIntegrity(ctx context.Context) (inventory.IntegrityReport, error) {
	return s.report, s.err
}

type chainStub struct {
	report cash.ChainReport
	calls  int
}

func (s *chainStub) CheckChain(ctx context.Context) (cash.ChainReport, error) {
	s.calls++
	return s.report, nil
}

type lowStockStub struct {
	items []reports.LowStockItem
	bumps int
}

func (s *lowStockStub) Bump(ctx context.Context) error {
	s.bumps++
	return nil
}

func (s *lowStockStub) LowStock(ctx context.Context) ([]reports.LowStockItem, error) {
	return s.items, nil
}

type cleanerStub struct {
	olderThan time.Duration
}

func (s *cleanerStub) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return 4, nil
}

type inspectorStub struct {
	info *asynq.QueueInfo
	err  error
}

func (s inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

var at = time.Date(2024, 3, 15, 2, 0, 0, 0, time.UTC)

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestNewTaskKnownNames(t *testing.T) {
	for _, name := range []string{TaskLedgerIntegrity, TaskLowStockScan, TaskIdempotencyCleanup} {
		task, err := NewTask(name, at)
		require.NoError(t, err)
		require.Equal(t, name, task.Type())
	}
	_, err := NewTask("mail:send", at)
	require.Error(t, err)
}

func TestLedgerIntegrityReportsViolations(t *testing.T) {
	chain := &chainStub{report: cash.ChainReport{Checked: 3, Broken: []int64{2}, LastBalance: decimal.NewFromInt(5), RegisterBalance: decimal.NewFromInt(5)}}
	job := NewLedgerIntegrityJob(stockStub{report: inventory.IntegrityReport{NegativeProducts: []int64{7}}}, chain, nil, testMetrics())
	task, err := NewLedgerIntegrityTask(at)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, chain.calls)
}

func TestLedgerIntegrityStopsOnScanError(t *testing.T) {
	chain := &chainStub{}
	boom := errors.New("boom")
	job := NewLedgerIntegrityJob(stockStub{err: boom}, chain, nil, testMetrics())
	task, err := NewLedgerIntegrityTask(at)
	require.NoError(t, err)

	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
	require.Zero(t, chain.calls)
}

func TestHandlersSkipRetryOnBadPayload(t *testing.T) {
	bad := asynq.NewTask(TaskLedgerIntegrity, []byte("{"))
	job := NewLedgerIntegrityJob(stockStub{}, &chainStub{}, nil, testMetrics())
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	var unconfigured *LowStockScanJob
	require.Error(t, unconfigured.Handle(context.Background(), bad))
}

func TestLowStockScanBumpsCache(t *testing.T) {
	source := &lowStockStub{items: []reports.LowStockItem{{ID: 1, Code: "PROD001", Quantity: 0, MinQuantity: 5, Status: reports.StockOut}}}
	job := NewLowStockScanJob(source, nil, testMetrics())
	task, err := NewLowStockScanTask(at)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, source.bumps)
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	store := &cleanerStub{}
	job := NewIdempotencyCleanupJob(store, 0, nil, testMetrics())
	require.Equal(t, DefaultIdempotencyRetention, job.Retention)

	task, err := NewIdempotencyCleanupTask(at, 0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, DefaultIdempotencyRetention, store.olderThan)

	task, err = NewIdempotencyCleanupTask(at, time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Hour, store.olderThan)
}

func TestHealthEndpoint(t *testing.T) {
	serve := func(inspector QueueInspector) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		h := NewHandler(inspector, slogDiscard())
		r.Route("/jobs", h.MountRoutes)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rr
	}

	rr := serve(inspectorStub{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}})
	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, queueHealth{Queue: QueueDefault, Pending: 3, Retry: 1}, body)

	rr = serve(inspectorStub{err: errors.New("redis down")})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = serve(nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
