package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockAlert notifies operators that a product fell below its
	// reorder level after a ledger decrement.
	TaskLowStockAlert = "inventory:low_stock_alert"
	// TaskIdempotencyCleanup prunes stale idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// LowStockAlertPayload carries the shortfall snapshot taken at posting time.
// Quantities travel as strings to keep decimal precision across the queue.
type LowStockAlertPayload struct {
	ProductID    int64  `json:"product_id"`
	WarehouseID  int64  `json:"warehouse_id"`
	Quantity     string `json:"quantity"`
	ReorderLevel string `json:"reorder_level"`
	Critical     bool   `json:"critical"`
}

// NewLowStockAlertTask constructs an Asynq task for a low stock alert.
func NewLowStockAlertTask(payload LowStockAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, data, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload carries the retention window for key pruning.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for idempotency cleanup.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}
