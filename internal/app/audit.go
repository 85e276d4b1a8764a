package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditReader serves the audit trail read API.
type AuditReader interface {
	ListByEntity(ctx context.Context, entity, entityID string) ([]shared.AuditLog, error)
}

type auditEntryResponse struct {
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt string         `json:"occurred_at"`
}

// auditLogsHandler returns the trail for one entity, oldest first.
func auditLogsHandler(logger *slog.Logger, reader AuditReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity := r.URL.Query().Get("entity")
		entityID := r.URL.Query().Get("entity_id")
		if entity == "" || entityID == "" {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entity and entity_id query parameters are required")
			return
		}
		logs, err := reader.ListByEntity(r.Context(), entity, entityID)
		if err != nil {
			logger.Error("list audit logs failed", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		entries := make([]auditEntryResponse, len(logs))
		for i, log := range logs {
			entries[i] = auditEntryResponse{
				ActorID:    log.ActorID,
				Action:     log.Action,
				Entity:     log.Entity,
				EntityID:   log.EntityID,
				Meta:       log.Meta,
				OccurredAt: log.At.Format(time.RFC3339),
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"audit_logs": entries})
	}
}
