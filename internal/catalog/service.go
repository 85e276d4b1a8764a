package catalog

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service exposes catalog lookups and maintenance operations.
type Service struct {
	repo Repository
}

// NewService constructs the catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetProduct looks a product up by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", shared.ErrInvalidInput)
	}
	return s.repo.GetProduct(ctx, id)
}

// ListProducts lists products matching the filters.
func (s *Service) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, filters)
}

// CreateProduct validates and persists a product.
func (s *Service) CreateProduct(ctx context.Context, product Product) (Product, error) {
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}
	return s.repo.CreateProduct(ctx, product)
}

// UpdateProduct validates and updates a product.
func (s *Service) UpdateProduct(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid product id", shared.ErrInvalidInput)
	}
	if err := validateProduct(product); err != nil {
		return err
	}
	return s.repo.UpdateProduct(ctx, id, product)
}

// GetWarehouse looks a warehouse up by id.
func (s *Service) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, fmt.Errorf("%w: invalid warehouse id", shared.ErrInvalidInput)
	}
	return s.repo.GetWarehouse(ctx, id)
}

// ListWarehouses lists warehouses matching the filters.
func (s *Service) ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	return s.repo.ListWarehouses(ctx, filters)
}

// CreateWarehouse validates and persists a warehouse.
func (s *Service) CreateWarehouse(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	if err := validateWarehouse(warehouse); err != nil {
		return Warehouse{}, err
	}
	return s.repo.CreateWarehouse(ctx, warehouse)
}

// UpdateWarehouse validates and updates a warehouse.
func (s *Service) UpdateWarehouse(ctx context.Context, id int64, warehouse Warehouse) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid warehouse id", shared.ErrInvalidInput)
	}
	if err := validateWarehouse(warehouse); err != nil {
		return err
	}
	return s.repo.UpdateWarehouse(ctx, id, warehouse)
}
