package formula

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler exposes read-only formula endpoints. Formula maintenance is owned
// by the catalog boundary, so there is no write surface here.
type Handler struct {
	logger *slog.Logger
	repo   Repository
}

// NewHandler constructs the formula handler.
func NewHandler(logger *slog.Logger, repo Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers formula routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/formulas", h.handleListByProduct)
	r.Get("/formulas/{id}", h.handleGet)
}

type formulaResponse struct {
	ID                int64          `json:"id"`
	Name              string         `json:"name"`
	FinishedProductID int64          `json:"finished_product_id"`
	Items             []itemResponse `json:"items"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
}

type itemResponse struct {
	ID         int64  `json:"id"`
	ProductID  int64  `json:"product_id"`
	Percentage string `json:"percentage"`
}

func toFormulaResponse(f Formula) formulaResponse {
	items := make([]itemResponse, len(f.Items))
	for i, item := range f.Items {
		items[i] = itemResponse{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Percentage: item.Percentage.String(),
		}
	}
	return formulaResponse{
		ID:                f.ID,
		Name:              f.Name,
		FinishedProductID: f.FinishedProductID,
		Items:             items,
		CreatedAt:         f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         f.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid formula id")
		return
	}
	f, err := h.repo.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFormulaResponse(f))
}

func (h *Handler) handleListByProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("finished_product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "finished_product_id query parameter is required")
		return
	}
	formulas, err := h.repo.ListByProduct(r.Context(), productID)
	if err != nil {
		h.logger.Error("list formulas failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]formulaResponse, len(formulas))
	for i, f := range formulas {
		items[i] = toFormulaResponse(f)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"formulas": items})
}
