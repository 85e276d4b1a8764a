package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// CatalogPort exposes the catalog lookups the ledger needs.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error)
}

// Service coordinates stock ledger operations. Every quantity mutation in the
// system goes through ApplyDelta or Transfer (or PostLegs inside another
// module's transaction), so the non-negativity and journal invariants hold
// globally.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	audit       shared.AuditPort
	idempotency *shared.IdempotencyStore
	alerts      LowStockNotifier
	metrics     MetricsPort
	logger      *slog.Logger
}

// NewService builds Service. audit, idempotency, alerts and metrics are optional.
func NewService(repo RepositoryPort, catalogPort CatalogPort, audit shared.AuditPort, idem *shared.IdempotencyStore, alerts LowStockNotifier, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalogPort, audit: audit, idempotency: idem, alerts: alerts, metrics: metrics, logger: logger}
}

// ApplyDeltaInput describes one ledger mutation.
type ApplyDeltaInput struct {
	ProductID      int64
	WarehouseID    int64
	BatchID        *int64
	Delta          decimal.Decimal
	Type           MovementType
	Ref            Reference
	ActorID        int64
	Note           string
	IdempotencyKey string
}

// ApplyDelta applies one signed quantity change and journals it, atomically.
func (s *Service) ApplyDelta(ctx context.Context, input ApplyDeltaInput) (Movement, error) {
	if input.Delta.IsZero() {
		return Movement{}, ErrZeroDelta
	}
	if !input.Type.Valid() {
		return Movement{}, fmt.Errorf("%w: unknown movement type %q", shared.ErrInvalidInput, input.Type)
	}
	if err := s.checkCatalog(ctx, input.ProductID, input.WarehouseID); err != nil {
		return Movement{}, err
	}

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "ledger"); err != nil {
			return Movement{}, err
		}
		insertedKey = true
	}

	leg := Leg{ProductID: input.ProductID, WarehouseID: input.WarehouseID, BatchID: input.BatchID,
		Delta: input.Delta, Type: input.Type, Note: input.Note}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements, err := PostLegs(ctx, tx, []Leg{leg}, input.Ref, input.ActorID, time.Now().UTC())
		if err != nil {
			return err
		}
		movement = movements[0]
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Movement{}, err
	}

	s.NotifyPosted(ctx, input.ActorID, []Movement{movement})
	return movement, nil
}

// TransferInput describes a warehouse-to-warehouse move of one product.
type TransferInput struct {
	ProductID       int64
	FromWarehouseID int64
	ToWarehouseID   int64
	BatchID         *int64
	Quantity        decimal.Decimal
	Reason          string
	ActorID         int64
}

// TransferResult carries both movement legs and their shared reference.
type TransferResult struct {
	Reference uuid.UUID
	Out       Movement
	In        Movement
}

// Transfer moves quantity between warehouses as a single atomic posting.
// Both legs share one reference id; if the source decrement fails nothing is
// applied.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if input.FromWarehouseID == input.ToWarehouseID {
		return TransferResult{}, fmt.Errorf("%w: source and destination warehouse must differ", shared.ErrInvalidInput)
	}
	if !input.Quantity.IsPositive() {
		return TransferResult{}, fmt.Errorf("%w: transfer quantity must be positive", shared.ErrInvalidInput)
	}
	if err := s.checkCatalog(ctx, input.ProductID, input.FromWarehouseID); err != nil {
		return TransferResult{}, err
	}
	if _, err := s.warehouse(ctx, input.ToWarehouseID); err != nil {
		return TransferResult{}, err
	}

	ref := Reference{Kind: ReferenceTransfer, ID: uuid.New()}
	legs := []Leg{
		{ProductID: input.ProductID, WarehouseID: input.FromWarehouseID, BatchID: input.BatchID,
			Delta: input.Quantity.Neg(), Type: MovementTransferOut, Note: input.Reason},
		{ProductID: input.ProductID, WarehouseID: input.ToWarehouseID, BatchID: input.BatchID,
			Delta: input.Quantity, Type: MovementTransferIn, Note: input.Reason},
	}

	var result TransferResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements, err := PostLegs(ctx, tx, legs, ref, input.ActorID, time.Now().UTC())
		if err != nil {
			return err
		}
		result = TransferResult{Reference: ref.ID, Out: movements[0], In: movements[1]}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	s.NotifyPosted(ctx, input.ActorID, []Movement{result.Out, result.In})
	return result, nil
}

// GetAvailable returns quantity minus reserved, summed across batches.
func (s *Service) GetAvailable(ctx context.Context, productID, warehouseID int64) (decimal.Decimal, error) {
	availability, err := s.repo.GetAvailability(ctx, warehouseID, []int64{productID})
	if err != nil {
		return decimal.Zero, err
	}
	return availability[productID], nil
}

// GetAvailability returns available quantity per product at one warehouse.
// Products without stock level rows report zero.
func (s *Service) GetAvailability(ctx context.Context, warehouseID int64, productIDs []int64) (map[int64]decimal.Decimal, error) {
	availability, err := s.repo.GetAvailability(ctx, warehouseID, productIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range productIDs {
		if _, ok := availability[id]; !ok {
			availability[id] = decimal.Zero
		}
	}
	return availability, nil
}

// ListMovements returns journal rows newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) checkCatalog(ctx context.Context, productID, warehouseID int64) error {
	if s.catalog == nil {
		return nil
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !product.TrackInventory {
		return ErrInventoryNotTracked
	}
	if _, err := s.warehouse(ctx, warehouseID); err != nil {
		return err
	}
	return nil
}

func (s *Service) warehouse(ctx context.Context, warehouseID int64) (catalog.Warehouse, error) {
	if s.catalog == nil {
		return catalog.Warehouse{}, nil
	}
	warehouse, err := s.catalog.GetWarehouse(ctx, warehouseID)
	if err != nil {
		return catalog.Warehouse{}, err
	}
	if !warehouse.Active {
		return catalog.Warehouse{}, ErrWarehouseInactive
	}
	return warehouse, nil
}

// NotifyPosted records audit/metrics and fires low stock alerts for committed
// movements. Best effort: the posting already committed. Modules that post
// legs inside their own transactions call this after commit.
func (s *Service) NotifyPosted(ctx context.Context, actorID int64, movements []Movement) {
	for _, m := range movements {
		if s.metrics != nil {
			s.metrics.RecordMovement(string(m.Type))
		}
		if s.audit != nil {
			_ = s.audit.Record(ctx, shared.AuditLog{
				ActorID:  actorID,
				Action:   fmt.Sprintf("ledger:%s", m.Type),
				Entity:   "stock_movement",
				EntityID: fmt.Sprintf("%d", m.ID),
				Meta: map[string]any{
					"product_id":   m.ProductID,
					"warehouse_id": m.WarehouseID,
					"delta":        m.QuantityDelta.String(),
					"resulting":    m.ResultingQuantity.String(),
					"ref_kind":     string(m.RefKind),
					"ref_id":       m.RefID.String(),
				},
			})
		}
		s.maybeAlertLowStock(ctx, m)
	}
}

func (s *Service) maybeAlertLowStock(ctx context.Context, m Movement) {
	if s.alerts == nil || s.catalog == nil || !m.QuantityDelta.IsNegative() {
		return
	}
	product, err := s.catalog.GetProduct(ctx, m.ProductID)
	if err != nil {
		s.logger.Warn("low stock check failed", slog.Any("error", err), slog.Int64("product_id", m.ProductID))
		return
	}
	if !product.ReorderLevel.IsPositive() || m.ResultingQuantity.GreaterThan(product.ReorderLevel) {
		return
	}
	evt := LowStockEvent{
		ProductID:    m.ProductID,
		WarehouseID:  m.WarehouseID,
		Quantity:     m.ResultingQuantity,
		ReorderLevel: product.ReorderLevel,
		Critical:     product.CriticalLevel.IsPositive() && m.ResultingQuantity.LessThanOrEqual(product.CriticalLevel),
	}
	if err := s.alerts.NotifyLowStock(ctx, evt); err != nil {
		s.logger.Warn("low stock notify failed", slog.Any("error", err), slog.Int64("product_id", m.ProductID))
	}
}
