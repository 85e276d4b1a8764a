package production

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

	"github.com/meridian-erp/meridian-erp/internal/formula"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func newTestRouter(svc *Service) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, svc)

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

func doRunJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRunRejectsNonPositiveTarget(t *testing.T) {
	svc := newTestService(newMemoryRepo(), formula.Item{ProductID: materialM, Percentage: qty("50")})
	router := newTestRouter(svc)

	rec := doRunJSON(t, router, http.MethodPost, "/production-runs", map[string]any{
		"formula_id":      testFormula,
		"warehouse_id":    warehouseW,
		"target_quantity": "0",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem struct {
		Status int    `json:"status"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, http.StatusBadRequest, problem.Status)
	require.Contains(t, problem.Detail, "target quantity")
}

func TestStartRunReportsShortfallsWithContext(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(materialM, warehouseW, "10")
	svc := newTestService(repo, formula.Item{ProductID: materialM, Percentage: qty("50")})
	router := newTestRouter(svc)

	rec := doRunJSON(t, router, http.MethodPost, "/production-runs", map[string]any{
		"formula_id":      testFormula,
		"warehouse_id":    warehouseW,
		"target_quantity": "100",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Run struct {
			ID int64 `json:"id"`
		} `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	path := "/production-runs/" + strconv.FormatInt(created.Run.ID, 10) + "/start"
	rec = doRunJSON(t, router, http.MethodPost, path, map[string]any{})
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem struct {
		Extra []struct {
			ProductID string `json:"product_id"`
			Required  string `json:"required"`
			Available string `json:"available"`
		} `json:"extra"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Len(t, problem.Extra, 1)
	require.Equal(t, "1", problem.Extra[0].ProductID)
	require.Equal(t, "50", problem.Extra[0].Required)
	require.Equal(t, "10", problem.Extra[0].Available)
}
