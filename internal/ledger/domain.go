package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementTransferIn is the receiving leg of a warehouse transfer.
	MovementTransferIn MovementType = "transfer_in"
	// MovementTransferOut is the sending leg of a warehouse transfer.
	MovementTransferOut MovementType = "transfer_out"
	// MovementAdjustment records a manual stock correction.
	MovementAdjustment MovementType = "adjustment"
	// MovementProductionConsume records raw material consumption by a production run.
	MovementProductionConsume MovementType = "production_consume"
	// MovementProductionYield records finished goods credited by a production run.
	MovementProductionYield MovementType = "production_yield"
	// MovementLoss records stock written off as loss.
	MovementLoss MovementType = "loss"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementTransferIn, MovementTransferOut, MovementAdjustment,
		MovementProductionConsume, MovementProductionYield, MovementLoss:
		return true
	}
	return false
}

// ReferenceKind identifies the operation a movement originated from.
type ReferenceKind string

const (
	// ReferenceAdjustment links movements to an inventory adjustment.
	ReferenceAdjustment ReferenceKind = "adjustment"
	// ReferenceTransfer links the two legs of a warehouse transfer.
	ReferenceTransfer ReferenceKind = "transfer"
	// ReferenceProductionRun links movements to a production run.
	ReferenceProductionRun ReferenceKind = "production_run"
)

// Reference is the polymorphic link from a movement to its causing operation.
type Reference struct {
	Kind ReferenceKind
	ID   uuid.UUID
}

// StockKey identifies one stock level row. BatchID is optional.
type StockKey struct {
	ProductID   int64
	WarehouseID int64
	BatchID     *int64
}

// Less orders keys by (product, warehouse, batch) so concurrent multi-key
// postings acquire row locks in the same order.
func (k StockKey) Less(other StockKey) bool {
	if k.ProductID != other.ProductID {
		return k.ProductID < other.ProductID
	}
	if k.WarehouseID != other.WarehouseID {
		return k.WarehouseID < other.WarehouseID
	}
	return batchOrd(k.BatchID) < batchOrd(other.BatchID)
}

func batchOrd(b *int64) int64 {
	if b == nil {
		return -1
	}
	return *b
}

// StockLevel is the authoritative on-hand quantity for one key.
// Rows are created on first movement and never deleted.
type StockLevel struct {
	ProductID        int64
	WarehouseID      int64
	BatchID          *int64
	Quantity         decimal.Decimal
	ReservedQuantity decimal.Decimal
	UpdatedAt        time.Time
}

// Key returns the stock key of the row.
func (l StockLevel) Key() StockKey {
	return StockKey{ProductID: l.ProductID, WarehouseID: l.WarehouseID, BatchID: l.BatchID}
}

// Available returns quantity minus reserved quantity.
func (l StockLevel) Available() decimal.Decimal {
	return l.Quantity.Sub(l.ReservedQuantity)
}

// Movement is one immutable journal row. It is written exactly once per
// ledger mutation and never updated or deleted.
type Movement struct {
	ID                int64
	ProductID         int64
	WarehouseID       int64
	BatchID           *int64
	Type              MovementType
	QuantityDelta     decimal.Decimal
	ResultingQuantity decimal.Decimal
	RefKind           ReferenceKind
	RefID             uuid.UUID
	ActorID           int64
	Note              string
	PostedAt          time.Time
}

// Leg is one mutation inside a multi-key posting.
type Leg struct {
	ProductID   int64
	WarehouseID int64
	BatchID     *int64
	Delta       decimal.Decimal
	Type        MovementType
	Note        string
}

// MovementFilter selects journal rows for listing.
type MovementFilter struct {
	ProductID   int64
	WarehouseID int64
	Types       []MovementType
	From        time.Time
	To          time.Time
	Page        int
	PerPage     int
}

// ErrInsufficientStock is matched by errors.Is against InsufficientStockError.
var ErrInsufficientStock = errors.New("ledger: insufficient stock")

// InsufficientStockError reports the shortfall that blocked a decrement.
type InsufficientStockError struct {
	ProductID   int64
	WarehouseID int64
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock for product %d at warehouse %d: requested %s, available %s",
		e.ProductID, e.WarehouseID, e.Requested, e.Available)
}

// Unwrap lets callers match the sentinel without the detail.
func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ErrZeroDelta indicates an apply-delta call with delta = 0.
var ErrZeroDelta = errors.New("ledger: quantity delta must be non zero")

// ErrInventoryNotTracked indicates the product does not track inventory.
var ErrInventoryNotTracked = errors.New("ledger: product does not track inventory")

// ErrWarehouseInactive indicates the warehouse is disabled for movements.
var ErrWarehouseInactive = errors.New("ledger: warehouse is inactive")
