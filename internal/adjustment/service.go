package adjustment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Settings keys consulted by the approval policy, group "inventory".
const (
	settingsGroup           = "inventory"
	settingRequireApproval  = "adjustment_require_approval"
	settingAutoApproveLimit = "adjustment_auto_approve_threshold"
)

// CatalogPort exposes the catalog lookups the workflow needs.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error)
}

// LedgerHooks receives committed movements for audit, metrics and alerting.
type LedgerHooks interface {
	NotifyPosted(ctx context.Context, actorID int64, movements []ledger.Movement)
}

// Service runs the adjustment approval workflow. The ledger effect of an
// adjustment is posted in the same transaction as its status change, so an
// adjustment is applied exactly once or not at all.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	settings    shared.SettingsProvider
	hooks       LedgerHooks
	audit       shared.AuditPort
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
}

// NewService builds Service. settings, hooks, audit and idempotency are optional.
func NewService(repo RepositoryPort, catalogPort CatalogPort, settings shared.SettingsProvider, hooks LedgerHooks, audit shared.AuditPort, idem *shared.IdempotencyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalogPort, settings: settings, hooks: hooks, audit: audit, idempotency: idem, logger: logger}
}

// CreateInput describes a requested stock correction.
type CreateInput struct {
	ProductID      int64
	WarehouseID    int64
	BatchID        *int64
	Type           Type
	QuantityChange decimal.Decimal
	Reason         string
	ActorID        int64
	IdempotencyKey string
}

// Create records an adjustment. Depending on the approval policy it is either
// left pending for a second pair of eyes or applied to the ledger immediately,
// in one transaction with the row insert.
func (s *Service) Create(ctx context.Context, input CreateInput) (Adjustment, error) {
	if !input.Type.Valid() {
		return Adjustment{}, fmt.Errorf("%w: unknown adjustment type %q", shared.ErrInvalidInput, input.Type)
	}
	if strings.TrimSpace(input.Reason) == "" {
		return Adjustment{}, fmt.Errorf("%w: adjustment reason is required", shared.ErrInvalidInput)
	}
	if input.QuantityChange.IsZero() {
		return Adjustment{}, fmt.Errorf("%w: quantity change must be non zero", shared.ErrInvalidInput)
	}
	if err := s.checkCatalog(ctx, input.ProductID, input.WarehouseID); err != nil {
		return Adjustment{}, err
	}

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "adjustment"); err != nil {
			return Adjustment{}, err
		}
		insertedKey = true
	}

	now := time.Now().UTC()
	adj := Adjustment{
		RefID:          uuid.New(),
		ProductID:      input.ProductID,
		WarehouseID:    input.WarehouseID,
		BatchID:        input.BatchID,
		Type:           input.Type,
		QuantityChange: input.QuantityChange,
		Reason:         input.Reason,
		Status:         StatusPending,
		CreatedBy:      input.ActorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	autoApply := s.autoApplies(ctx, input.QuantityChange)
	var posted []ledger.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if autoApply {
			movements, err := s.postEffect(ctx, tx, &adj, now)
			if err != nil {
				return err
			}
			posted = movements
			adj.Status = StatusApplied
			adj.AppliedAt = &now
		}
		id, err := tx.Insert(ctx, adj)
		if err != nil {
			return err
		}
		adj.ID = id
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Adjustment{}, err
	}

	s.notify(ctx, input.ActorID, "adjustment:create", adj, posted)
	return adj, nil
}

// Approve applies a pending adjustment. The approver must not be its creator.
// The status flip and the stock effect commit together.
func (s *Service) Approve(ctx context.Context, id, approverID int64, notes string) (Adjustment, error) {
	var adj Adjustment
	var posted []ledger.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return fmt.Errorf("%w: adjustment is %s, expected pending", shared.ErrInvalidState, current.Status)
		}
		if current.CreatedBy == approverID {
			return fmt.Errorf("%w: adjustment creator cannot approve it", shared.ErrRoleSeparation)
		}
		now := time.Now().UTC()
		movements, err := s.postEffect(ctx, tx, &current, now)
		if err != nil {
			return err
		}
		current.Status = StatusApplied
		current.ApprovedBy = &approverID
		current.ApprovalNotes = notes
		current.AppliedAt = &now
		current.UpdatedAt = now
		if err := tx.UpdateDecision(ctx, current); err != nil {
			return err
		}
		adj = current
		posted = movements
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}

	s.notify(ctx, approverID, "adjustment:approve", adj, posted)
	return adj, nil
}

// Reject declines a pending adjustment without touching the ledger.
// Rejection notes are mandatory so the decision is traceable.
func (s *Service) Reject(ctx context.Context, id, actorID int64, notes string) (Adjustment, error) {
	if strings.TrimSpace(notes) == "" {
		return Adjustment{}, fmt.Errorf("%w: rejection notes are required", shared.ErrInvalidInput)
	}
	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return fmt.Errorf("%w: adjustment is %s, expected pending", shared.ErrInvalidState, current.Status)
		}
		now := time.Now().UTC()
		current.Status = StatusRejected
		current.ApprovedBy = &actorID
		current.ApprovalNotes = notes
		current.UpdatedAt = now
		if err := tx.UpdateDecision(ctx, current); err != nil {
			return err
		}
		adj = current
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}

	s.notify(ctx, actorID, "adjustment:reject", adj, nil)
	return adj, nil
}

// Get returns one adjustment by id.
func (s *Service) Get(ctx context.Context, id int64) (Adjustment, error) {
	return s.repo.Get(ctx, id)
}

// List returns adjustments newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Adjustment, shared.Pagination, error) {
	return s.repo.List(ctx, filter)
}

// postEffect posts the single ledger leg of adj inside tx and stores the
// resulting movement id on adj.
func (s *Service) postEffect(ctx context.Context, tx TxRepository, adj *Adjustment, at time.Time) ([]ledger.Movement, error) {
	leg := ledger.Leg{
		ProductID:   adj.ProductID,
		WarehouseID: adj.WarehouseID,
		BatchID:     adj.BatchID,
		Delta:       adj.QuantityChange,
		Type:        adj.Type.MovementType(adj.QuantityChange),
		Note:        adj.Reason,
	}
	ref := ledger.Reference{Kind: ledger.ReferenceAdjustment, ID: adj.RefID}
	movements, err := ledger.PostLegs(ctx, tx.Ledger(), []ledger.Leg{leg}, ref, adj.CreatedBy, at)
	if err != nil {
		return nil, err
	}
	adj.MovementID = &movements[0].ID
	return movements, nil
}

// autoApplies decides whether the adjustment skips the approval queue.
// Approval is required by default; small corrections under the configured
// threshold pass straight through.
func (s *Service) autoApplies(ctx context.Context, quantityChange decimal.Decimal) bool {
	if s.settings == nil {
		return false
	}
	if !shared.GetBool(ctx, s.settings, settingsGroup, settingRequireApproval, true) {
		return true
	}
	threshold := shared.GetDecimal(ctx, s.settings, settingsGroup, settingAutoApproveLimit, decimal.Zero)
	return threshold.IsPositive() && quantityChange.Abs().LessThanOrEqual(threshold)
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
		return ledger.ErrInventoryNotTracked
	}
	warehouse, err := s.catalog.GetWarehouse(ctx, warehouseID)
	if err != nil {
		return err
	}
	if !warehouse.Active {
		return ledger.ErrWarehouseInactive
	}
	return nil
}

// notify records the workflow audit trail and forwards committed movements to
// the ledger hooks. Best effort, everything already committed.
func (s *Service) notify(ctx context.Context, actorID int64, action string, adj Adjustment, movements []ledger.Movement) {
	if s.audit != nil {
		meta := map[string]any{
			"adjustment_type": string(adj.Type),
			"product_id":      adj.ProductID,
			"warehouse_id":    adj.WarehouseID,
			"quantity_change": adj.QuantityChange.String(),
			"status":          string(adj.Status),
		}
		if adj.MovementID != nil {
			meta["movement_id"] = *adj.MovementID
		}
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "inventory_adjustment",
			EntityID: fmt.Sprintf("%d", adj.ID),
			Meta:     meta,
		})
	}
	if s.hooks != nil && len(movements) > 0 {
		s.hooks.NotifyPosted(ctx, actorID, movements)
	}
}
