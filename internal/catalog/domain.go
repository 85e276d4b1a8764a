package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryType classifies a product's role in production.
type InventoryType string

const (
	// InventoryRawMaterial marks inputs consumed by production runs.
	InventoryRawMaterial InventoryType = "raw_material"
	// InventoryFinishedGood marks outputs credited by production runs.
	InventoryFinishedGood InventoryType = "finished_good"
)

// Valid reports whether t is a known inventory type.
func (t InventoryType) Valid() bool {
	return t == InventoryRawMaterial || t == InventoryFinishedGood
}

// Product represents a catalog product referenced by ledger entries.
type Product struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	InventoryType  InventoryType   `json:"inventory_type"`
	TrackInventory bool            `json:"track_inventory"`
	ReorderLevel   decimal.Decimal `json:"reorder_level"`
	CriticalLevel  decimal.Decimal `json:"critical_level"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Warehouse represents a physical stock location.
type Warehouse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilters narrows product/warehouse listings.
type ListFilters struct {
	Search        string
	InventoryType InventoryType
	ActiveOnly    bool
	Page          int
	PerPage       int
}
