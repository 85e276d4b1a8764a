package catalog

import (
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func validateProduct(p Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("%w: product code is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(p.Unit) == "" {
		return fmt.Errorf("%w: unit of measure is required", shared.ErrInvalidInput)
	}
	if !p.InventoryType.Valid() {
		return fmt.Errorf("%w: unknown inventory type %q", shared.ErrInvalidInput, p.InventoryType)
	}
	if p.ReorderLevel.IsNegative() || p.CriticalLevel.IsNegative() {
		return fmt.Errorf("%w: stock thresholds cannot be negative", shared.ErrInvalidInput)
	}
	return nil
}

func validateWarehouse(w Warehouse) error {
	if strings.TrimSpace(w.Code) == "" {
		return fmt.Errorf("%w: warehouse code is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: warehouse name is required", shared.ErrInvalidInput)
	}
	return nil
}
