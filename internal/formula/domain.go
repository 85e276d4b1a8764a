package formula

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Formula is a percentage-based bill of materials for one output product.
type Formula struct {
	ID                int64
	Name              string
	FinishedProductID int64
	Items             []Item
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Item is one input material line. Percentage is the proportion of the total
// output quantity this material contributes; the percentages of a formula are
// not required to sum to 100 (byproduct and loss headroom is allowed).
type Item struct {
	ID         int64
	FormulaID  int64
	ProductID  int64
	Percentage decimal.Decimal
}

// Requirement is the resolved input quantity for one material.
type Requirement struct {
	ProductID        int64
	RequiredQuantity decimal.Decimal
}

// Resolution errors wrap shared.ErrInvalidInput so transport layers map them
// to validation failures.
var (
	// ErrInvalidTarget indicates a non-positive target quantity.
	ErrInvalidTarget = fmt.Errorf("%w: target quantity must be positive", shared.ErrInvalidInput)
	// ErrInvalidPercentage indicates a negative percentage on a formula item.
	ErrInvalidPercentage = fmt.Errorf("%w: item percentage cannot be negative", shared.ErrInvalidInput)
	// ErrEmptyFormula indicates a formula without items.
	ErrEmptyFormula = fmt.Errorf("%w: formula has no items", shared.ErrInvalidInput)
)
