package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// LowStockEvent is emitted after a committed movement leaves a tracked
// product at or below its reorder level.
type LowStockEvent struct {
	ProductID    int64           `json:"product_id"`
	WarehouseID  int64           `json:"warehouse_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
	Critical     bool            `json:"critical"`
}

// LowStockNotifier receives low stock events, e.g. to enqueue alert jobs.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, evt LowStockEvent) error
}

// MetricsPort records movement counters.
type MetricsPort interface {
	RecordMovement(movementType string)
}
