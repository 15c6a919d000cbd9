package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/storeledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans stock movements and the cash chain.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskLowStockScan refreshes and logs the low stock list.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ScheduledPayload carries scheduling metadata shared by every task.
type ScheduledPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// CleanupPayload overrides the retention window of a cleanup run.
type CleanupPayload struct {
	ScheduledPayload
	Retention time.Duration `json:"retention,omitempty"`
}

// NewLedgerIntegrityTask constructs the integrity scan task.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	return newTask(TaskLedgerIntegrity, ScheduledPayload{ScheduledFor: at})
}

// NewLowStockScanTask constructs the low stock scan task.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	return newTask(TaskLowStockScan, ScheduledPayload{ScheduledFor: at})
}

// NewIdempotencyCleanupTask constructs the cleanup task. A zero retention
// uses the handler's configured default.
func NewIdempotencyCleanupTask(at time.Time, retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{ScheduledPayload: ScheduledPayload{ScheduledFor: at}, Retention: retention})
}

// NewTask builds a task by name with its default payload.
func NewTask(name string, at time.Time) (*asynq.Task, error) {
	switch name {
	case TaskLedgerIntegrity:
		return NewLedgerIntegrityTask(at)
	case TaskLowStockScan:
		return NewLowStockScanTask(at)
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(at, 0)
	default:
		return nil, fmt.Errorf("jobs: unsupported task %s", name)
	}
}

func newTask(name string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(name, body, asynq.Queue(QueueDefault)), nil
}
