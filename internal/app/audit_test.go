package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type auditReaderStub struct {
	logs []shared.AuditLog
}

func (s *auditReaderStub) ListByEntity(ctx context.Context, entity, entityID string) ([]shared.AuditLog, error) {
	var matched []shared.AuditLog
	for _, log := range s.logs {
		if log.Entity == entity && log.EntityID == entityID {
			matched = append(matched, log)
		}
	}
	return matched, nil
}

func TestAuditLogsEndpoint(t *testing.T) {
	at := time.Date(2026, 6, 2, 9, 30, 0, 0, time.UTC)
	reader := &auditReaderStub{logs: []shared.AuditLog{
		{ActorID: 7, Action: "adjustment:create", Entity: "inventory_adjustment", EntityID: "42", At: at},
		{ActorID: 8, Action: "adjustment:approve", Entity: "inventory_adjustment", EntityID: "42", At: at.Add(time.Hour)},
		{ActorID: 7, Action: "production:start", Entity: "production_run", EntityID: "3", At: at},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auditLogsHandler(logger, reader)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit-logs?entity=inventory_adjustment&entity_id=42", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		AuditLogs []auditEntryResponse `json:"audit_logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.AuditLogs, 2)
	require.Equal(t, "adjustment:create", got.AuditLogs[0].Action)
	require.Equal(t, "adjustment:approve", got.AuditLogs[1].Action)
}

func TestAuditLogsEndpointRequiresEntity(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auditLogsHandler(logger, &auditReaderStub{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit-logs?entity=production_run", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
