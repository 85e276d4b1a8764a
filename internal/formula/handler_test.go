package formula

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type repoStub struct {
	formulas map[int64]Formula
}

func (r *repoStub) Get(ctx context.Context, id int64) (Formula, error) {
	f, ok := r.formulas[id]
	if !ok {
		return Formula{}, shared.ErrNotFound
	}
	return f, nil
}

func (r *repoStub) ListByProduct(ctx context.Context, finishedProductID int64) ([]Formula, error) {
	var matched []Formula
	for _, f := range r.formulas {
		if f.FinishedProductID == finishedProductID {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

func newFormulaRouter(repo Repository) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	NewHandler(logger, repo).MountRoutes(r)
	return r
}

func TestGetFormulaOverHTTP(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := &repoStub{formulas: map[int64]Formula{
		1: {
			ID: 1, Name: "Blend", FinishedProductID: 9,
			Items:     []Item{{ID: 11, FormulaID: 1, ProductID: 3, Percentage: decimal.NewFromInt(60)}},
			CreatedAt: now, UpdatedAt: now,
		},
	}}
	router := newFormulaRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/formulas/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got formulaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Blend", got.Name)
	require.Len(t, got.Items, 1)
	require.Equal(t, "60", got.Items[0].Percentage)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/formulas/2", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListFormulasRequiresFinishedProduct(t *testing.T) {
	repo := &repoStub{formulas: map[int64]Formula{
		1: {ID: 1, Name: "Blend", FinishedProductID: 9},
		2: {ID: 2, Name: "Other", FinishedProductID: 4},
	}}
	router := newFormulaRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/formulas", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/formulas?finished_product_id=9", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Formulas []formulaResponse `json:"formulas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Formulas, 1)
	require.Equal(t, int64(1), got.Formulas[0].ID)
}
