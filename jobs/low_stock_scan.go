package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/storeledger/internal/jobs"
	"github.com/odyssey-erp/storeledger/internal/reports"
)

// LowStockSource lists products at or below their minimum.
type LowStockSource interface {
	Bump(ctx context.Context) error
	LowStock(ctx context.Context) ([]reports.LowStockItem, error)
}

// LowStockScanJob refreshes the report cache and logs products to reorder.
type LowStockScanJob struct {
	Reports LowStockSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the low stock handler.
func NewLowStockScanJob(source LowStockSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Reports: source, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload ScheduledPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskLowStockScan)
	logger := j.logger()

	if err := j.Reports.Bump(ctx); err != nil {
		logger.Warn("bump report cache", slog.Any("error", err))
	}
	items, err := j.Reports.LowStock(ctx)
	if err != nil {
		logger.Error("low stock query failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().SetLowStock(len(items))
	for _, item := range items {
		logger.Warn("product needs restock",
			slog.Int64("product_id", item.ID),
			slog.String("code", item.Code),
			slog.Int64("quantity", item.Quantity),
			slog.Int64("min_quantity", item.MinQuantity),
			slog.String("status", string(item.Status)),
		)
	}
	logger.Info("completed low stock scan", slog.Int("products", len(items)))
	return tracker.End(nil)
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
