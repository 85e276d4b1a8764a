package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/formula"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// FormulaPort exposes the formula lookups the state machine needs.
type FormulaPort interface {
	Get(ctx context.Context, id int64) (formula.Formula, error)
}

// CatalogPort exposes the catalog lookups the state machine needs.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error)
}

// StockReader answers availability questions outside the posting transaction.
type StockReader interface {
	GetAvailability(ctx context.Context, warehouseID int64, productIDs []int64) (map[int64]decimal.Decimal, error)
}

// LedgerHooks receives committed movements for audit, metrics and alerting.
type LedgerHooks interface {
	NotifyPosted(ctx context.Context, actorID int64, movements []ledger.Movement)
}

// Service drives the production run state machine. Materials are only
// consumed at Complete, in one transaction with the finished goods credit
// and the status flip.
type Service struct {
	repo     RepositoryPort
	formulas FormulaPort
	catalog  CatalogPort
	stock    StockReader
	hooks    LedgerHooks
	audit    shared.AuditPort
	logger   *slog.Logger
}

// NewService builds Service. hooks and audit are optional.
func NewService(repo RepositoryPort, formulas FormulaPort, catalogPort CatalogPort, stock StockReader, hooks LedgerHooks, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, formulas: formulas, catalog: catalogPort, stock: stock, hooks: hooks, audit: audit, logger: logger}
}

// CreateInput describes a planned manufacturing batch.
type CreateInput struct {
	FormulaID      int64
	WarehouseID    int64
	TargetQuantity decimal.Decimal
	Notes          string
	ActorID        int64
}

// Create resolves the formula into planned material lines and records the run
// as planned. Nothing moves in the ledger yet.
func (s *Service) Create(ctx context.Context, input CreateInput) (RunDetail, error) {
	f, err := s.formulas.Get(ctx, input.FormulaID)
	if err != nil {
		return RunDetail{}, err
	}
	requirements, err := formula.Resolve(f, input.TargetQuantity)
	if err != nil {
		return RunDetail{}, err
	}
	if err := s.checkCatalog(ctx, f.FinishedProductID, input.WarehouseID); err != nil {
		return RunDetail{}, err
	}

	now := time.Now().UTC()
	run := Run{
		RefID:             uuid.New(),
		FormulaID:         input.FormulaID,
		FinishedProductID: f.FinishedProductID,
		WarehouseID:       input.WarehouseID,
		TargetQuantity:    input.TargetQuantity,
		Status:            StatusPlanned,
		Notes:             input.Notes,
		CreatedBy:         input.ActorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	items := make([]RunItem, len(requirements))
	for i, req := range requirements {
		items[i] = RunItem{ProductID: req.ProductID, PlannedQuantity: req.RequiredQuantity}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertRun(ctx, run)
		if err != nil {
			return err
		}
		run.ID = id
		for i := range items {
			items[i].RunID = id
		}
		return tx.InsertItems(ctx, id, items)
	})
	if err != nil {
		return RunDetail{}, err
	}

	s.recordAudit(ctx, input.ActorID, "production:create", run, nil)
	stored, err := s.repo.ListItems(ctx, run.ID)
	if err == nil {
		items = stored
	}
	return RunDetail{Run: run, Items: items}, nil
}

// Start checks that every material is available at the run's warehouse and
// moves the run to in progress. Read-only with respect to stock, so it is
// safe to retry after replenishment.
func (s *Service) Start(ctx context.Context, runID, actorID int64) (Run, error) {
	var run Run
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRunForUpdate(ctx, runID)
		if err != nil {
			return err
		}
		if current.Status != StatusPlanned {
			return fmt.Errorf("%w: run is %s, expected planned", shared.ErrInvalidState, current.Status)
		}
		items, err := tx.GetItems(ctx, runID)
		if err != nil {
			return err
		}
		if err := s.checkAvailability(ctx, current.WarehouseID, items); err != nil {
			return err
		}
		now := time.Now().UTC()
		current.Status = StatusInProgress
		current.StartedAt = &now
		current.UpdatedAt = now
		if err := tx.UpdateRun(ctx, current); err != nil {
			return err
		}
		run = current
		return nil
	})
	if err != nil {
		return Run{}, err
	}

	s.recordAudit(ctx, actorID, "production:start", run, nil)
	return run, nil
}

// RecordLossInput describes wastage noticed during a run.
type RecordLossInput struct {
	RunID     int64
	ProductID int64
	Quantity  decimal.Decimal
	LossType  string
	Reason    string
	ActorID   int64
}

// RecordLoss attaches a loss record to an in-progress run. Informational
// only; the ledger is reconciled through actual usage at Complete.
func (s *Service) RecordLoss(ctx context.Context, input RecordLossInput) (Loss, error) {
	if !input.Quantity.IsPositive() {
		return Loss{}, fmt.Errorf("%w: loss quantity must be positive", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(input.Reason) == "" {
		return Loss{}, fmt.Errorf("%w: loss reason is required", shared.ErrInvalidInput)
	}
	if input.LossType == "" {
		input.LossType = "wastage"
	}

	loss := Loss{
		RunID:      input.RunID,
		ProductID:  input.ProductID,
		Quantity:   input.Quantity,
		LossType:   input.LossType,
		Reason:     input.Reason,
		RecordedBy: input.ActorID,
		RecordedAt: time.Now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		run, err := tx.GetRunForUpdate(ctx, input.RunID)
		if err != nil {
			return err
		}
		if run.Status != StatusInProgress {
			return fmt.Errorf("%w: run is %s, losses can only be recorded in progress", shared.ErrInvalidState, run.Status)
		}
		id, err := tx.InsertLoss(ctx, loss)
		if err != nil {
			return err
		}
		loss.ID = id
		return nil
	})
	if err != nil {
		return Loss{}, err
	}
	return loss, nil
}

// ActualUsage is the measured consumption of one material at completion.
type ActualUsage struct {
	ProductID int64
	Quantity  decimal.Decimal
}

// CompleteInput describes the measured outcome of a run.
type CompleteInput struct {
	RunID           int64
	ActualOutput    decimal.Decimal
	WastageQuantity decimal.Decimal
	Usage           []ActualUsage
	ActorID         int64
}

// Complete consumes every material by its actual usage, credits the finished
// product by the actual output and flips the run to completed, all in one
// transaction. If any decrement hits insufficient stock the whole completion
// rolls back and the run stays in progress.
func (s *Service) Complete(ctx context.Context, input CompleteInput) (RunDetail, error) {
	if !input.ActualOutput.IsPositive() {
		return RunDetail{}, fmt.Errorf("%w: actual output must be positive", shared.ErrInvalidInput)
	}
	if input.WastageQuantity.IsNegative() {
		return RunDetail{}, fmt.Errorf("%w: wastage quantity cannot be negative", shared.ErrInvalidInput)
	}

	var detail RunDetail
	var posted []ledger.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		run, err := tx.GetRunForUpdate(ctx, input.RunID)
		if err != nil {
			return err
		}
		if run.Status != StatusInProgress {
			return fmt.Errorf("%w: run is %s, expected in progress", shared.ErrInvalidState, run.Status)
		}
		items, err := tx.GetItems(ctx, input.RunID)
		if err != nil {
			return err
		}

		usage := make(map[int64]decimal.Decimal, len(input.Usage))
		for _, u := range input.Usage {
			if u.Quantity.IsNegative() {
				return fmt.Errorf("%w: actual usage for product %d cannot be negative", shared.ErrInvalidInput, u.ProductID)
			}
			usage[u.ProductID] = u.Quantity
		}
		known := make(map[int64]bool, len(items))
		for _, item := range items {
			known[item.ProductID] = true
		}
		for productID := range usage {
			if !known[productID] {
				return fmt.Errorf("%w: product %d is not a material of this run", shared.ErrInvalidInput, productID)
			}
		}

		now := time.Now().UTC()
		legs := make([]ledger.Leg, 0, len(items)+1)
		for i := range items {
			actual, ok := usage[items[i].ProductID]
			if !ok {
				actual = items[i].PlannedQuantity
			}
			items[i].ActualQuantity = actual
			items[i].Variance = actual.Sub(items[i].PlannedQuantity)
			if err := tx.UpdateItem(ctx, items[i]); err != nil {
				return err
			}
			if actual.IsPositive() {
				legs = append(legs, ledger.Leg{
					ProductID:   items[i].ProductID,
					WarehouseID: run.WarehouseID,
					Delta:       actual.Neg(),
					Type:        ledger.MovementProductionConsume,
				})
			}
		}
		legs = append(legs, ledger.Leg{
			ProductID:   run.FinishedProductID,
			WarehouseID: run.WarehouseID,
			Delta:       input.ActualOutput,
			Type:        ledger.MovementProductionYield,
		})

		ref := ledger.Reference{Kind: ledger.ReferenceProductionRun, ID: run.RefID}
		movements, err := ledger.PostLegs(ctx, tx.Ledger(), legs, ref, input.ActorID, now)
		if err != nil {
			var insufficient *ledger.InsufficientStockError
			if errors.As(err, &insufficient) {
				return &InsufficientMaterialsError{Shortfalls: []Shortfall{{
					ProductID: insufficient.ProductID,
					Required:  insufficient.Requested,
					Available: insufficient.Available,
				}}}
			}
			return err
		}

		run.Status = StatusCompleted
		run.ActualOutput = input.ActualOutput
		run.WastageQuantity = input.WastageQuantity
		run.WastagePercentage = input.WastageQuantity.Div(run.TargetQuantity).Mul(oneHundred)
		run.CompletedBy = &input.ActorID
		run.CompletedAt = &now
		run.UpdatedAt = now
		if err := tx.UpdateRun(ctx, run); err != nil {
			return err
		}
		detail = RunDetail{Run: run, Items: items}
		posted = movements
		return nil
	})
	if err != nil {
		return RunDetail{}, err
	}

	s.recordAudit(ctx, input.ActorID, "production:complete", detail.Run, posted)
	if s.hooks != nil {
		s.hooks.NotifyPosted(ctx, input.ActorID, posted)
	}
	return detail, nil
}

// Cancel terminates a planned or in-progress run. No ledger effect: stock is
// only consumed at Complete, which never happened.
func (s *Service) Cancel(ctx context.Context, runID, actorID int64, reason string) (Run, error) {
	if strings.TrimSpace(reason) == "" {
		return Run{}, fmt.Errorf("%w: cancellation reason is required", shared.ErrInvalidInput)
	}
	var run Run
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRunForUpdate(ctx, runID)
		if err != nil {
			return err
		}
		if current.Status == StatusCompleted || current.Status == StatusCancelled {
			return fmt.Errorf("%w: run is %s and cannot be cancelled", shared.ErrInvalidState, current.Status)
		}
		now := time.Now().UTC()
		current.Status = StatusCancelled
		if current.Notes != "" {
			current.Notes += "\n"
		}
		current.Notes += "Cancelled: " + reason
		current.UpdatedAt = now
		if err := tx.UpdateRun(ctx, current); err != nil {
			return err
		}
		run = current
		return nil
	})
	if err != nil {
		return Run{}, err
	}

	s.recordAudit(ctx, actorID, "production:cancel", run, nil)
	return run, nil
}

// Get returns one run with its items and losses.
func (s *Service) Get(ctx context.Context, id int64) (RunDetail, error) {
	run, err := s.repo.Get(ctx, id)
	if err != nil {
		return RunDetail{}, err
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return RunDetail{}, err
	}
	losses, err := s.repo.ListLosses(ctx, id)
	if err != nil {
		return RunDetail{}, err
	}
	return RunDetail{Run: run, Items: items, Losses: losses}, nil
}

// List returns runs newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Run, shared.Pagination, error) {
	return s.repo.List(ctx, filter)
}

// checkAvailability collects every material shortfall before failing, so one
// retry can fix all of them.
func (s *Service) checkAvailability(ctx context.Context, warehouseID int64, items []RunItem) error {
	if s.stock == nil {
		return nil
	}
	productIDs := make([]int64, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}
	availability, err := s.stock.GetAvailability(ctx, warehouseID, productIDs)
	if err != nil {
		return err
	}
	var shortfalls []Shortfall
	for _, item := range items {
		available := availability[item.ProductID]
		if available.LessThan(item.PlannedQuantity) {
			shortfalls = append(shortfalls, Shortfall{
				ProductID: item.ProductID,
				Required:  item.PlannedQuantity,
				Available: available,
			})
		}
	}
	if len(shortfalls) > 0 {
		sort.Slice(shortfalls, func(i, j int) bool { return shortfalls[i].ProductID < shortfalls[j].ProductID })
		return &InsufficientMaterialsError{Shortfalls: shortfalls}
	}
	return nil
}

func (s *Service) checkCatalog(ctx context.Context, finishedProductID, warehouseID int64) error {
	if s.catalog == nil {
		return nil
	}
	product, err := s.catalog.GetProduct(ctx, finishedProductID)
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

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, run Run, movements []ledger.Movement) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"formula_id":          run.FormulaID,
		"finished_product_id": run.FinishedProductID,
		"warehouse_id":        run.WarehouseID,
		"target_quantity":     run.TargetQuantity.String(),
		"status":              string(run.Status),
	}
	if len(movements) > 0 {
		ids := make([]int64, len(movements))
		for i, m := range movements {
			ids[i] = m.ID
		}
		meta["movement_ids"] = ids
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "production_run",
		EntityID: fmt.Sprintf("%d", run.ID),
		Meta:     meta,
	})
}

var oneHundred = decimal.NewFromInt(100)
