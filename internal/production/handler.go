package production

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for production runs.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/production-runs", h.handleList)
	r.Get("/production-runs/{id}", h.handleGet)
	r.Post("/production-runs", h.handleCreate)
	r.Post("/production-runs/{id}/start", h.handleStart)
	r.Post("/production-runs/{id}/losses", h.handleRecordLoss)
	r.Post("/production-runs/{id}/complete", h.handleComplete)
	r.Post("/production-runs/{id}/cancel", h.handleCancel)
}

type createRunRequest struct {
	FormulaID      int64  `json:"formula_id" validate:"required,gt=0"`
	WarehouseID    int64  `json:"warehouse_id" validate:"required,gt=0"`
	TargetQuantity string `json:"target_quantity" validate:"required"`
	Notes          string `json:"notes"`
}

type recordLossRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  string `json:"quantity" validate:"required"`
	LossType  string `json:"loss_type"`
	Reason    string `json:"reason" validate:"required"`
}

type completeRequest struct {
	ActualOutput    string             `json:"actual_output" validate:"required"`
	WastageQuantity string             `json:"wastage_quantity"`
	Usage           []usageRequestItem `json:"usage"`
}

type usageRequestItem struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  string `json:"actual_quantity" validate:"required"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type runResponse struct {
	ID                int64  `json:"id"`
	RefID             string `json:"ref_id"`
	FormulaID         int64  `json:"formula_id"`
	FinishedProductID int64  `json:"finished_product_id"`
	WarehouseID       int64  `json:"warehouse_id"`
	TargetQuantity    string `json:"target_quantity"`
	ActualOutput      string `json:"actual_output"`
	WastageQuantity   string `json:"wastage_quantity"`
	WastagePercentage string `json:"wastage_percentage"`
	Status            string `json:"status"`
	Notes             string `json:"notes,omitempty"`
	CreatedBy         int64  `json:"created_by"`
	CompletedBy       *int64 `json:"completed_by,omitempty"`
	StartedAt         string `json:"started_at,omitempty"`
	CompletedAt       string `json:"completed_at,omitempty"`
	CreatedAt         string `json:"created_at"`
}

type runItemResponse struct {
	ID              int64  `json:"id"`
	ProductID       int64  `json:"product_id"`
	PlannedQuantity string `json:"planned_quantity"`
	ActualQuantity  string `json:"actual_quantity"`
	Variance        string `json:"variance"`
}

type lossResponse struct {
	ID         int64  `json:"id"`
	ProductID  int64  `json:"product_id"`
	Quantity   string `json:"quantity"`
	LossType   string `json:"loss_type"`
	Reason     string `json:"reason"`
	RecordedBy int64  `json:"recorded_by"`
	RecordedAt string `json:"recorded_at"`
}

func toRunResponse(run Run) runResponse {
	resp := runResponse{
		ID:                run.ID,
		RefID:             run.RefID.String(),
		FormulaID:         run.FormulaID,
		FinishedProductID: run.FinishedProductID,
		WarehouseID:       run.WarehouseID,
		TargetQuantity:    run.TargetQuantity.String(),
		ActualOutput:      run.ActualOutput.String(),
		WastageQuantity:   run.WastageQuantity.String(),
		WastagePercentage: run.WastagePercentage.String(),
		Status:            string(run.Status),
		Notes:             run.Notes,
		CreatedBy:         run.CreatedBy,
		CompletedBy:       run.CompletedBy,
		CreatedAt:         run.CreatedAt.Format(time.RFC3339),
	}
	if run.StartedAt != nil {
		resp.StartedAt = run.StartedAt.Format(time.RFC3339)
	}
	if run.CompletedAt != nil {
		resp.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func toDetailResponse(detail RunDetail) map[string]any {
	items := make([]runItemResponse, len(detail.Items))
	for i, item := range detail.Items {
		items[i] = runItemResponse{
			ID:              item.ID,
			ProductID:       item.ProductID,
			PlannedQuantity: item.PlannedQuantity.String(),
			ActualQuantity:  item.ActualQuantity.String(),
			Variance:        item.Variance.String(),
		}
	}
	losses := make([]lossResponse, len(detail.Losses))
	for i, loss := range detail.Losses {
		losses[i] = lossResponse{
			ID:         loss.ID,
			ProductID:  loss.ProductID,
			Quantity:   loss.Quantity.String(),
			LossType:   loss.LossType,
			Reason:     loss.Reason,
			RecordedBy: loss.RecordedBy,
			RecordedAt: loss.RecordedAt.Format(time.RFC3339),
		}
	}
	return map[string]any{
		"run":    toRunResponse(detail.Run),
		"items":  items,
		"losses": losses,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	target, err := decimal.NewFromString(req.TargetQuantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "target_quantity is not a valid decimal")
		return
	}

	detail, err := h.service.Create(r.Context(), CreateInput{
		FormulaID:      req.FormulaID,
		WarehouseID:    req.WarehouseID,
		TargetQuantity: target,
		Notes:          req.Notes,
		ActorID:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDetailResponse(detail))
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	run, err := h.service.Start(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRunResponse(run))
}

func (h *Handler) handleRecordLoss(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	var req recordLossRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity is not a valid decimal")
		return
	}

	loss, err := h.service.RecordLoss(r.Context(), RecordLossInput{
		RunID:     id,
		ProductID: req.ProductID,
		Quantity:  quantity,
		LossType:  req.LossType,
		Reason:    req.Reason,
		ActorID:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lossResponse{
		ID:         loss.ID,
		ProductID:  loss.ProductID,
		Quantity:   loss.Quantity.String(),
		LossType:   loss.LossType,
		Reason:     loss.Reason,
		RecordedBy: loss.RecordedBy,
		RecordedAt: loss.RecordedAt.Format(time.RFC3339),
	})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	output, err := decimal.NewFromString(req.ActualOutput)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "actual_output is not a valid decimal")
		return
	}
	wastage := decimal.Zero
	if req.WastageQuantity != "" {
		if wastage, err = decimal.NewFromString(req.WastageQuantity); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "wastage_quantity is not a valid decimal")
			return
		}
	}
	usage := make([]ActualUsage, len(req.Usage))
	for i, u := range req.Usage {
		quantity, err := decimal.NewFromString(u.Quantity)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "actual_quantity is not a valid decimal")
			return
		}
		usage[i] = ActualUsage{ProductID: u.ProductID, Quantity: quantity}
	}

	detail, err := h.service.Complete(r.Context(), CompleteInput{
		RunID:           id,
		ActualOutput:    output,
		WastageQuantity: wastage,
		Usage:           usage,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDetailResponse(detail))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	run, err := h.service.Cancel(r.Context(), id, shared.ActorFromContext(r.Context()), req.Reason)
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRunResponse(run))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDetailResponse(detail))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{}
	if v := q.Get("warehouse_id"); v != "" {
		filter.WarehouseID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("finished_product_id"); v != "" {
		filter.FinishedProductID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("status"); v != "" {
		filter.Status = Status(v)
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	runs, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list production runs failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]runResponse, len(runs))
	for i, run := range runs {
		items[i] = toRunResponse(run)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"production_runs": items,
		"pagination": map[string]int{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

func (h *Handler) runID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid production run id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondRunError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientMaterialsError
	switch {
	case errors.As(err, &insufficient):
		shortfalls := make([]map[string]string, len(insufficient.Shortfalls))
		for i, s := range insufficient.Shortfalls {
			shortfalls[i] = map[string]string{
				"product_id": strconv.FormatInt(s.ProductID, 10),
				"required":   s.Required.String(),
				"available":  s.Available.String(),
			}
		}
		httpx.ProblemWithExtra(w, http.StatusConflict, "Insufficient Materials", err.Error(), shortfalls)
	default:
		h.logger.Error("production operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
