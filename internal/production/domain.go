package production

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the production run lifecycle state.
type Status string

const (
	// StatusPlanned means requirements are materialized but nothing moved.
	StatusPlanned Status = "planned"
	// StatusInProgress means the availability check passed and work started.
	StatusInProgress Status = "in_progress"
	// StatusCompleted is terminal; materials consumed and output credited.
	StatusCompleted Status = "completed"
	// StatusCancelled is terminal; no stock was ever moved.
	StatusCancelled Status = "cancelled"
)

// Run is one manufacturing batch tracked from planning through completion.
// Stock only moves at completion, in a single transaction.
type Run struct {
	ID                int64
	RefID             uuid.UUID
	FormulaID         int64
	FinishedProductID int64
	WarehouseID       int64
	TargetQuantity    decimal.Decimal
	ActualOutput      decimal.Decimal
	WastageQuantity   decimal.Decimal
	WastagePercentage decimal.Decimal
	Status            Status
	Notes             string
	CreatedBy         int64
	CompletedBy       *int64
	StartedAt         *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RunItem is one raw material line of a run. PlannedQuantity comes from the
// formula resolver; ActualQuantity and Variance are filled at completion.
type RunItem struct {
	ID              int64
	RunID           int64
	ProductID       int64
	PlannedQuantity decimal.Decimal
	ActualQuantity  decimal.Decimal
	Variance        decimal.Decimal
}

// Loss is an append-only wastage record attached while a run is in progress.
// Losses are informational; stock reconciliation happens at completion.
type Loss struct {
	ID         int64
	RunID      int64
	ProductID  int64
	Quantity   decimal.Decimal
	LossType   string
	Reason     string
	RecordedBy int64
	RecordedAt time.Time
}

// RunDetail bundles a run with its items and losses.
type RunDetail struct {
	Run    Run
	Items  []RunItem
	Losses []Loss
}

// ListFilter narrows run listings.
type ListFilter struct {
	WarehouseID       int64
	FinishedProductID int64
	Status            Status
	Page              int
	PerPage           int
}

// Shortfall reports one material whose availability does not cover the need.
type Shortfall struct {
	ProductID int64
	Required  decimal.Decimal
	Available decimal.Decimal
}

// ErrInsufficientMaterials is matched by errors.Is against
// InsufficientMaterialsError.
var ErrInsufficientMaterials = errors.New("production: insufficient materials")

// InsufficientMaterialsError aggregates every material shortfall found, not
// just the first, so the operator can replenish in one go.
type InsufficientMaterialsError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientMaterialsError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = fmt.Sprintf("product %d requires %s, available %s", s.ProductID, s.Required, s.Available)
	}
	return "production: insufficient materials: " + strings.Join(parts, "; ")
}

// Unwrap lets callers match the sentinel without the detail.
func (e *InsufficientMaterialsError) Unwrap() error { return ErrInsufficientMaterials }
