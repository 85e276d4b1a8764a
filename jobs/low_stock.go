package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// LowStockNotifier enqueues a low stock alert task after a ledger decrement
// crosses the reorder level. Satisfies the ledger's notifier port.
type LowStockNotifier struct {
	client *Client
	logger *slog.Logger
}

// NewLowStockNotifier constructs the notifier.
func NewLowStockNotifier(client *Client, logger *slog.Logger) *LowStockNotifier {
	return &LowStockNotifier{client: client, logger: logger}
}

// NotifyLowStock enqueues the alert. The posting already committed, so a
// failed enqueue is logged and swallowed by the caller.
func (n *LowStockNotifier) NotifyLowStock(ctx context.Context, evt ledger.LowStockEvent) error {
	if n == nil || n.client == nil {
		return nil
	}
	task, err := NewLowStockAlertTask(LowStockAlertPayload{
		ProductID:    evt.ProductID,
		WarehouseID:  evt.WarehouseID,
		Quantity:     evt.Quantity.String(),
		ReorderLevel: evt.ReorderLevel.String(),
		Critical:     evt.Critical,
	})
	if err != nil {
		return err
	}
	_, err = n.client.Enqueue(ctx, task)
	return err
}

// LowStockAlertJob materialises queued alerts into stock_alerts rows that the
// notification surfaces read from.
type LowStockAlertJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	printer *message.Printer
	clock   func() time.Time
}

// NewLowStockAlertJob initialises the low stock alert handler.
func NewLowStockAlertJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockAlertJob {
	return &LowStockAlertJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		printer: message.NewPrinter(language.English),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the alert delivery.
func (j *LowStockAlertJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track("low_stock_alert")
	var payload LowStockAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}

	var productName, warehouseName string
	err := j.Pool.QueryRow(ctx, `SELECT p.name, w.name FROM products p, warehouses w WHERE p.id=$1 AND w.id=$2`,
		payload.ProductID, payload.WarehouseID).Scan(&productName, &warehouseName)
	if err != nil {
		return tracker.End(err)
	}

	severity := "normal"
	if payload.Critical {
		severity = "critical"
	}
	quantity, _ := decimal.NewFromString(payload.Quantity)
	reorder, _ := decimal.NewFromString(payload.ReorderLevel)
	body := j.printer.Sprintf("Stock of %s at %s is down to %v (reorder level %v)",
		productName, warehouseName, quantity.InexactFloat64(), reorder.InexactFloat64())

	_, err = j.Pool.Exec(ctx, `INSERT INTO stock_alerts (product_id, warehouse_id, quantity, reorder_level, severity, body, created_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7)`,
		payload.ProductID, payload.WarehouseID, payload.Quantity, payload.ReorderLevel, severity, body, j.clock())
	if err != nil {
		return tracker.End(err)
	}

	j.Metrics.AddLowStockAlert(severity)
	j.Logger.Info("low stock alert delivered",
		slog.Int64("product_id", payload.ProductID),
		slog.Int64("warehouse_id", payload.WarehouseID),
		slog.String("severity", severity))
	return tracker.End(nil)
}
