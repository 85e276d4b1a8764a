package catalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository reads and writes catalog data in PostgreSQL.
type Repository interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)
	UpdateProduct(ctx context.Context, id int64, product Product) error
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error)
	CreateWarehouse(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	UpdateWarehouse(ctx context.Context, id int64, warehouse Warehouse) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const productColumns = `id, code, name, unit, inventory_type, track_inventory, reorder_level::text, critical_level::text, created_at, updated_at`

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	return scanProduct(row)
}

func (r *repository) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR code ILIKE $` + n + `)`
	}
	if filters.InventoryType != "" {
		args = append(args, string(filters.InventoryType))
		where += ` AND inventory_type = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pagination := shared.NewPagination(filters.Page, filters.PerPage, total)
	args = append(args, pagination.PerPage, pagination.Offset())
	query := `SELECT ` + productColumns + ` FROM products` + where +
		` ORDER BY code ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) CreateProduct(ctx context.Context, product Product) (Product, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO products (code, name, unit, inventory_type, track_inventory, reorder_level, critical_level, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, NOW(), NOW())
RETURNING id, created_at, updated_at`,
		product.Code, product.Name, product.Unit, string(product.InventoryType), product.TrackInventory,
		product.ReorderLevel.String(), product.CriticalLevel.String()).
		Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	return product, err
}

func (r *repository) UpdateProduct(ctx context.Context, id int64, product Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products
SET name=$2, unit=$3, inventory_type=$4, track_inventory=$5, reorder_level=$6::numeric, critical_level=$7::numeric, updated_at=NOW()
WHERE id=$1`,
		id, product.Name, product.Unit, string(product.InventoryType), product.TrackInventory,
		product.ReorderLevel.String(), product.CriticalLevel.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, code, name, address, active, created_at, updated_at FROM warehouses WHERE id=$1`, id)
	return scanWarehouse(row)
}

func (r *repository) ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR code ILIKE $` + n + `)`
	}
	if filters.ActiveOnly {
		where += ` AND active`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pagination := shared.NewPagination(filters.Page, filters.PerPage, total)
	args = append(args, pagination.PerPage, pagination.Offset())
	query := `SELECT id, code, name, address, active, created_at, updated_at FROM warehouses` + where +
		` ORDER BY code ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	warehouses := []Warehouse{}
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, 0, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, total, rows.Err()
}

func (r *repository) CreateWarehouse(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses (code, name, address, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
RETURNING id, created_at, updated_at`,
		warehouse.Code, warehouse.Name, warehouse.Address, warehouse.Active).
		Scan(&warehouse.ID, &warehouse.CreatedAt, &warehouse.UpdatedAt)
	return warehouse, err
}

func (r *repository) UpdateWarehouse(ctx context.Context, id int64, warehouse Warehouse) error {
	tag, err := r.pool.Exec(ctx, `UPDATE warehouses SET name=$2, address=$3, active=$4, updated_at=NOW() WHERE id=$1`,
		id, warehouse.Name, warehouse.Address, warehouse.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	var inventoryType, reorder, critical string
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &inventoryType, &p.TrackInventory, &reorder, &critical, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	p.InventoryType = InventoryType(inventoryType)
	if p.ReorderLevel, err = decimal.NewFromString(reorder); err != nil {
		return Product{}, err
	}
	if p.CriticalLevel, err = decimal.NewFromString(critical); err != nil {
		return Product{}, err
	}
	return p, nil
}

func scanWarehouse(row rowScanner) (Warehouse, error) {
	var w Warehouse
	err := row.Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, shared.ErrNotFound
		}
		return Warehouse{}, err
	}
	return w, nil
}
