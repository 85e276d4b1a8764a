package ledger

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

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock-levels/{warehouseID}/{productID}", h.handleGetAvailable)
	r.Get("/movements", h.handleListMovements)
	r.Post("/transfers", h.handleTransfer)
}

type transferRequest struct {
	ProductID       int64  `json:"product_id" validate:"required,gt=0"`
	FromWarehouseID int64  `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64  `json:"to_warehouse_id" validate:"required,gt=0"`
	BatchID         *int64 `json:"batch_id,omitempty"`
	Quantity        string `json:"quantity" validate:"required"`
	Reason          string `json:"reason" validate:"required"`
}

type movementResponse struct {
	ID                int64  `json:"id"`
	ProductID         int64  `json:"product_id"`
	WarehouseID       int64  `json:"warehouse_id"`
	BatchID           *int64 `json:"batch_id,omitempty"`
	Type              string `json:"movement_type"`
	QuantityDelta     string `json:"quantity_delta"`
	ResultingQuantity string `json:"resulting_quantity"`
	RefKind           string `json:"ref_kind"`
	RefID             string `json:"ref_id"`
	ActorID           int64  `json:"actor_id"`
	Note              string `json:"note,omitempty"`
	PostedAt          string `json:"posted_at"`
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:                m.ID,
		ProductID:         m.ProductID,
		WarehouseID:       m.WarehouseID,
		BatchID:           m.BatchID,
		Type:              string(m.Type),
		QuantityDelta:     m.QuantityDelta.String(),
		ResultingQuantity: m.ResultingQuantity.String(),
		RefKind:           string(m.RefKind),
		RefID:             m.RefID.String(),
		ActorID:           m.ActorID,
		Note:              m.Note,
		PostedAt:          m.PostedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
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

	result, err := h.service.Transfer(r.Context(), TransferInput{
		ProductID:       req.ProductID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		BatchID:         req.BatchID,
		Quantity:        quantity,
		Reason:          req.Reason,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]any{
		"reference": result.Reference.String(),
		"out":       toMovementResponse(result.Out),
		"in":        toMovementResponse(result.In),
	})
}

func (h *Handler) handleGetAvailable(w http.ResponseWriter, r *http.Request) {
	warehouseID, err1 := strconv.ParseInt(chi.URLParam(r, "warehouseID"), 10, 64)
	productID, err2 := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err1 != nil || err2 != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse or product id")
		return
	}
	available, err := h.service.GetAvailable(r.Context(), productID, warehouseID)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id":   productID,
		"warehouse_id": warehouseID,
		"available":    available.String(),
	})
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{}
	if v := q.Get("product_id"); v != "" {
		filter.ProductID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("warehouse_id"); v != "" {
		filter.WarehouseID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("type"); v != "" {
		movementType := MovementType(v)
		if !movementType.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown movement type")
			return
		}
		filter.Types = []MovementType{movementType}
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	movements, pagination, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]movementResponse, len(movements))
	for i, m := range movements {
		items[i] = toMovementResponse(m)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"movements": items,
		"pagination": map[string]int{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

func (h *Handler) respondLedgerError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.ProblemWithExtra(w, http.StatusConflict, "Insufficient Stock", err.Error(), map[string]string{
			"product_id":   strconv.FormatInt(insufficient.ProductID, 10),
			"warehouse_id": strconv.FormatInt(insufficient.WarehouseID, 10),
			"requested":    insufficient.Requested.String(),
			"available":    insufficient.Available.String(),
		})
	case errors.Is(err, ErrZeroDelta), errors.Is(err, ErrInventoryNotTracked), errors.Is(err, ErrWarehouseInactive):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("ledger operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
