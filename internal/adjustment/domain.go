package adjustment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// Type enumerates the reasons a stock correction is made.
type Type string

const (
	TypeLoss            Type = "loss"
	TypeDrying          Type = "drying"
	TypeDamage          Type = "damage"
	TypeExpiry          Type = "expiry"
	TypeCountCorrection Type = "count_correction"
	TypeTheft           Type = "theft"
	TypeFound           Type = "found"
	TypeOther           Type = "other"
)

// Valid reports whether t is a known adjustment type.
func (t Type) Valid() bool {
	switch t {
	case TypeLoss, TypeDrying, TypeDamage, TypeExpiry, TypeCountCorrection, TypeTheft, TypeFound, TypeOther:
		return true
	}
	return false
}

// MovementType maps the adjustment to its journal movement type. Shrinkage
// types with a negative change are journalled as loss; everything else as a
// plain adjustment.
func (t Type) MovementType(quantityChange decimal.Decimal) ledger.MovementType {
	if quantityChange.IsNegative() {
		switch t {
		case TypeLoss, TypeDrying, TypeDamage, TypeExpiry, TypeTheft:
			return ledger.MovementLoss
		}
	}
	return ledger.MovementAdjustment
}

// Status is the adjustment workflow state.
type Status string

const (
	// StatusPending awaits dual-control approval.
	StatusPending Status = "pending"
	// StatusRejected is terminal, no ledger effect.
	StatusRejected Status = "rejected"
	// StatusApplied is terminal; the ledger effect has been posted exactly once.
	StatusApplied Status = "applied"
)

// Adjustment is a manually initiated stock correction.
type Adjustment struct {
	ID             int64
	RefID          uuid.UUID
	ProductID      int64
	WarehouseID    int64
	BatchID        *int64
	Type           Type
	QuantityChange decimal.Decimal
	Reason         string
	Status         Status
	CreatedBy      int64
	ApprovedBy     *int64
	ApprovalNotes  string
	MovementID     *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	AppliedAt      *time.Time
}

// ListFilter narrows adjustment listings.
type ListFilter struct {
	ProductID   int64
	WarehouseID int64
	Status      Status
	Page        int
	PerPage     int
}
