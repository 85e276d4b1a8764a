package adjustment

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func newTestRouter(repo *memoryRepo, settings shared.SettingsProvider) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, newTestService(repo, settings))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id, _ := strconv.ParseInt(req.Header.Get("X-Actor-ID"), 10, 64)
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), id)))
		})
	})
	handler.MountRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", actor)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAdjustmentWorkflowOverHTTP(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, "100")
	router := newTestRouter(repo, &settingsStub{})

	rec := doJSON(t, router, http.MethodPost, "/adjustments", "7", map[string]any{
		"product_id":      1,
		"warehouse_id":    10,
		"adjustment_type": "loss",
		"quantity_change": "-5",
		"reason":          "water damage",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created adjustmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "pending", created.Status)
	require.Equal(t, int64(7), created.CreatedBy)

	path := "/adjustments/" + strconv.FormatInt(created.ID, 10)

	// The creator may not approve their own adjustment.
	rec = doJSON(t, router, http.MethodPost, path+"/approve", "7", map[string]any{"notes": "self"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodPost, path+"/approve", "8", map[string]any{"notes": "verified on site"})
	require.Equal(t, http.StatusOK, rec.Code)

	var approved adjustmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approved))
	require.Equal(t, "applied", approved.Status)
	require.NotNil(t, approved.MovementID)
	require.True(t, repo.quantity(1, 10).Equal(qty("95")))

	// A second approval hits the terminal state.
	rec = doJSON(t, router, http.MethodPost, path+"/approve", "8", map[string]any{"notes": "again"})
	require.Equal(t, http.StatusConflict, rec.Code)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	var fetched adjustmentResponse
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &fetched))
	require.Equal(t, "applied", fetched.Status)
	require.Equal(t, "water damage", fetched.Reason)
}

func TestCreateAdjustmentRejectsMalformedRequests(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), &settingsStub{})

	req := httptest.NewRequest(http.MethodPost, "/adjustments", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/adjustments", "7", map[string]any{
		"product_id":      1,
		"warehouse_id":    10,
		"adjustment_type": "loss",
		"quantity_change": "five",
		"reason":          "typo",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveReportsInsufficientStockWithContext(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, "3")
	router := newTestRouter(repo, &settingsStub{})

	rec := doJSON(t, router, http.MethodPost, "/adjustments", "7", map[string]any{
		"product_id":      1,
		"warehouse_id":    10,
		"adjustment_type": "loss",
		"quantity_change": "-5",
		"reason":          "water damage",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created adjustmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodPost, "/adjustments/"+strconv.FormatInt(created.ID, 10)+"/approve", "8", map[string]any{})
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem struct {
		Title string            `json:"title"`
		Extra map[string]string `json:"extra"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Insufficient Stock", problem.Title)
	require.Equal(t, "5", problem.Extra["requested"])
	require.Equal(t, "3", problem.Extra["available"])
}
