package formula

import "github.com/shopspring/decimal"

var oneHundred = decimal.NewFromInt(100)

// Resolve computes the required input quantity per material for the given
// target output quantity. Pure function: no rounding is applied — callers
// persist full precision and round only at presentation boundaries.
func Resolve(f Formula, targetQuantity decimal.Decimal) ([]Requirement, error) {
	if !targetQuantity.IsPositive() {
		return nil, ErrInvalidTarget
	}
	if len(f.Items) == 0 {
		return nil, ErrEmptyFormula
	}
	requirements := make([]Requirement, 0, len(f.Items))
	for _, item := range f.Items {
		if item.Percentage.IsNegative() {
			return nil, ErrInvalidPercentage
		}
		requirements = append(requirements, Requirement{
			ProductID:        item.ProductID,
			RequiredQuantity: targetQuantity.Mul(item.Percentage).Div(oneHundred),
		})
	}
	return requirements, nil
}
