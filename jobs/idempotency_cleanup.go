package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// DefaultIdempotencyRetention is how long processed keys are kept before the
// cleanup job prunes them.
const DefaultIdempotencyRetention = 24 * time.Hour

// IdempotencyCleanupJob prunes idempotency keys past their retention window.
type IdempotencyCleanupJob struct {
	Store   *shared.IdempotencyStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track("idempotency_cleanup")
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}
	if payload.OlderThan <= 0 {
		payload.OlderThan = DefaultIdempotencyRetention
	}
	removed, err := j.Store.Cleanup(ctx, payload.OlderThan)
	if err != nil {
		return tracker.End(err)
	}
	j.Logger.Info("idempotency keys pruned", slog.Int64("removed", removed))
	return tracker.End(nil)
}
