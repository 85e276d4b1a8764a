package adjustment

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for inventory adjustments.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the adjustment handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers adjustment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/adjustments", h.handleList)
	r.Get("/adjustments/{id}", h.handleGet)
	r.Post("/adjustments", h.handleCreate)
	r.Post("/adjustments/{id}/approve", h.handleApprove)
	r.Post("/adjustments/{id}/reject", h.handleReject)
}

type createRequest struct {
	ProductID      int64  `json:"product_id" validate:"required,gt=0"`
	WarehouseID    int64  `json:"warehouse_id" validate:"required,gt=0"`
	BatchID        *int64 `json:"batch_id,omitempty"`
	Type           string `json:"adjustment_type" validate:"required"`
	QuantityChange string `json:"quantity_change" validate:"required"`
	Reason         string `json:"reason" validate:"required"`
}

type decisionRequest struct {
	Notes string `json:"notes"`
}

type adjustmentResponse struct {
	ID             int64  `json:"id"`
	RefID          string `json:"ref_id"`
	ProductID      int64  `json:"product_id"`
	WarehouseID    int64  `json:"warehouse_id"`
	BatchID        *int64 `json:"batch_id,omitempty"`
	Type           string `json:"adjustment_type"`
	QuantityChange string `json:"quantity_change"`
	Reason         string `json:"reason"`
	Status         string `json:"status"`
	CreatedBy      int64  `json:"created_by"`
	ApprovedBy     *int64 `json:"approved_by,omitempty"`
	ApprovalNotes  string `json:"approval_notes,omitempty"`
	MovementID     *int64 `json:"movement_id,omitempty"`
	CreatedAt      string `json:"created_at"`
	AppliedAt      string `json:"applied_at,omitempty"`
}

func toAdjustmentResponse(adj Adjustment) adjustmentResponse {
	resp := adjustmentResponse{
		ID:             adj.ID,
		RefID:          adj.RefID.String(),
		ProductID:      adj.ProductID,
		WarehouseID:    adj.WarehouseID,
		BatchID:        adj.BatchID,
		Type:           string(adj.Type),
		QuantityChange: adj.QuantityChange.String(),
		Reason:         adj.Reason,
		Status:         string(adj.Status),
		CreatedBy:      adj.CreatedBy,
		ApprovedBy:     adj.ApprovedBy,
		ApprovalNotes:  adj.ApprovalNotes,
		MovementID:     adj.MovementID,
		CreatedAt:      adj.CreatedAt.Format(time.RFC3339),
	}
	if adj.AppliedAt != nil {
		resp.AppliedAt = adj.AppliedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quantityChange, err := decimal.NewFromString(req.QuantityChange)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity_change is not a valid decimal")
		return
	}

	adj, err := h.service.Create(r.Context(), CreateInput{
		ProductID:      req.ProductID,
		WarehouseID:    req.WarehouseID,
		BatchID:        req.BatchID,
		Type:           Type(req.Type),
		QuantityChange: quantityChange,
		Reason:         req.Reason,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondAdjustmentError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAdjustmentResponse(adj))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.service.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.service.Reject)
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, id, actorID int64, notes string) (Adjustment, error)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	adj, err := decide(r.Context(), id, shared.ActorFromContext(r.Context()), req.Notes)
	if err != nil {
		h.respondAdjustmentError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAdjustmentResponse(adj))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	adj, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAdjustmentResponse(adj))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{}
	if v := q.Get("product_id"); v != "" {
		filter.ProductID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("warehouse_id"); v != "" {
		filter.WarehouseID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("status"); v != "" {
		filter.Status = Status(v)
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	adjustments, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list adjustments failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]adjustmentResponse, len(adjustments))
	for i, adj := range adjustments {
		items[i] = toAdjustmentResponse(adj)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"adjustments": items,
		"pagination": map[string]int{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

func (h *Handler) respondAdjustmentError(w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.ProblemWithExtra(w, http.StatusConflict, "Insufficient Stock", err.Error(), map[string]string{
			"product_id":   strconv.FormatInt(insufficient.ProductID, 10),
			"warehouse_id": strconv.FormatInt(insufficient.WarehouseID, 10),
			"requested":    insufficient.Requested.String(),
			"available":    insufficient.Available.String(),
		})
	case errors.Is(err, ledger.ErrInventoryNotTracked), errors.Is(err, ledger.ErrWarehouseInactive):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("adjustment operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
