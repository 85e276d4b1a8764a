package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for catalog maintenance.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.handleListProducts)
	r.Get("/products/{id}", h.handleGetProduct)
	r.Post("/products", h.handleCreateProduct)
	r.Put("/products/{id}", h.handleUpdateProduct)
	r.Get("/warehouses", h.handleListWarehouses)
	r.Get("/warehouses/{id}", h.handleGetWarehouse)
	r.Post("/warehouses", h.handleCreateWarehouse)
	r.Put("/warehouses/{id}", h.handleUpdateWarehouse)
}

type productRequest struct {
	Code           string `json:"code" validate:"required"`
	Name           string `json:"name" validate:"required"`
	Unit           string `json:"unit" validate:"required"`
	InventoryType  string `json:"inventory_type" validate:"required"`
	TrackInventory bool   `json:"track_inventory"`
	ReorderLevel   string `json:"reorder_level"`
	CriticalLevel  string `json:"critical_level"`
}

type warehouseRequest struct {
	Code    string `json:"code" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Address string `json:"address"`
	Active  bool   `json:"active"`
}

func (req productRequest) toProduct() (Product, error) {
	reorder := decimal.Zero
	critical := decimal.Zero
	var err error
	if req.ReorderLevel != "" {
		if reorder, err = decimal.NewFromString(req.ReorderLevel); err != nil {
			return Product{}, err
		}
	}
	if req.CriticalLevel != "" {
		if critical, err = decimal.NewFromString(req.CriticalLevel); err != nil {
			return Product{}, err
		}
	}
	return Product{
		Code:           req.Code,
		Name:           req.Name,
		Unit:           req.Unit,
		InventoryType:  InventoryType(req.InventoryType),
		TrackInventory: req.TrackInventory,
		ReorderLevel:   reorder,
		CriticalLevel:  critical,
	}, nil
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	filters := h.filters(r)
	if v := r.URL.Query().Get("inventory_type"); v != "" {
		inventoryType := InventoryType(v)
		if !inventoryType.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown inventory type")
			return
		}
		filters.InventoryType = inventoryType
	}
	products, total, err := h.service.ListProducts(r.Context(), filters)
	if err != nil {
		h.logger.Error("list products failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products, "total": total})
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := req.toProduct()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "stock thresholds must be valid decimals")
		return
	}
	created, err := h.service.CreateProduct(r.Context(), product)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := req.toProduct()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "stock thresholds must be valid decimals")
		return
	}
	if err := h.service.UpdateProduct(r.Context(), id, product); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}
	warehouse, err := h.service.GetWarehouse(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}

func (h *Handler) handleListWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, total, err := h.service.ListWarehouses(r.Context(), h.filters(r))
	if err != nil {
		h.logger.Error("list warehouses failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouses": warehouses, "total": total})
}

func (h *Handler) handleCreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.service.CreateWarehouse(r.Context(), Warehouse{
		Code: req.Code, Name: req.Name, Address: req.Address, Active: req.Active,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}
	var req warehouseRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.service.UpdateWarehouse(r.Context(), id, Warehouse{
		Code: req.Code, Name: req.Name, Address: req.Address, Active: req.Active,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) entityID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) filters(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{Search: q.Get("search")}
	filters.ActiveOnly = q.Get("active") == "true"
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	return filters
}
