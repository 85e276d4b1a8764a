package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by PostLegs.
type TxRepository interface {
	GetStockLevelForUpdate(ctx context.Context, key StockKey) (StockLevel, error)
	UpsertStockLevel(ctx context.Context, level StockLevel) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockLevel(ctx context.Context, key StockKey) (StockLevel, error)
	GetAvailability(ctx context.Context, warehouseID int64, productIDs []int64) (map[int64]decimal.Decimal, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error)
}

// ErrStockLevelNotFound indicates a missing stock level row.
var ErrStockLevelNotFound = errors.New("ledger: stock level not found")

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so other modules can post ledger
// legs inside their own transactional boundary.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetStockLevel reads one stock level row without locking it.
func (r *Repository) GetStockLevel(ctx context.Context, key StockKey) (StockLevel, error) {
	row := r.pool.QueryRow(ctx, `SELECT product_id, warehouse_id, batch_id, quantity::text, reserved_quantity::text, updated_at
FROM stock_levels
WHERE product_id=$1 AND warehouse_id=$2 AND batch_id IS NOT DISTINCT FROM $3`,
		key.ProductID, key.WarehouseID, key.BatchID)
	return scanStockLevel(row)
}

// GetAvailability sums available quantity per product across batches.
func (r *Repository) GetAvailability(ctx context.Context, warehouseID int64, productIDs []int64) (map[int64]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, COALESCE(SUM(quantity - reserved_quantity), 0)::text
FROM stock_levels
WHERE warehouse_id=$1 AND product_id = ANY($2)
GROUP BY product_id`, warehouseID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[int64]decimal.Decimal, len(productIDs))
	for rows.Next() {
		var productID int64
		var raw string
		if err := rows.Scan(&productID, &raw); err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, err
		}
		result[productID] = qty
	}
	return result, rows.Err()
}

// ListMovements returns journal rows newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		where += ` AND product_id = $` + strconv.Itoa(len(args))
	}
	if filter.WarehouseID != 0 {
		args = append(args, filter.WarehouseID)
		where += ` AND warehouse_id = $` + strconv.Itoa(len(args))
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		where += ` AND movement_type = ANY($` + strconv.Itoa(len(args)) + `)`
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += ` AND posted_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += ` AND posted_at <= $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements`+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	pagination := shared.NewPagination(filter.Page, filter.PerPage, total)

	args = append(args, pagination.PerPage, pagination.Offset())
	query := `SELECT id, product_id, warehouse_id, batch_id, movement_type, quantity_delta::text, resulting_quantity::text, ref_kind, ref_id, actor_id, note, posted_at
FROM stock_movements` + where + ` ORDER BY posted_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		movements = append(movements, m)
	}
	return movements, pagination, rows.Err()
}

func (r *txRepository) GetStockLevelForUpdate(ctx context.Context, key StockKey) (StockLevel, error) {
	row := r.tx.QueryRow(ctx, `SELECT product_id, warehouse_id, batch_id, quantity::text, reserved_quantity::text, updated_at
FROM stock_levels
WHERE product_id=$1 AND warehouse_id=$2 AND batch_id IS NOT DISTINCT FROM $3
FOR UPDATE`, key.ProductID, key.WarehouseID, key.BatchID)
	return scanStockLevel(row)
}

func (r *txRepository) UpsertStockLevel(ctx context.Context, level StockLevel) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_levels (product_id, warehouse_id, batch_id, quantity, reserved_quantity, updated_at)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6)
ON CONFLICT (product_id, warehouse_id, COALESCE(batch_id, 0)) DO UPDATE
SET quantity = EXCLUDED.quantity, reserved_quantity = EXCLUDED.reserved_quantity, updated_at = EXCLUDED.updated_at`,
		level.ProductID, level.WarehouseID, level.BatchID,
		level.Quantity.String(), level.ReservedQuantity.String(), level.UpdatedAt)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements
(product_id, warehouse_id, batch_id, movement_type, quantity_delta, resulting_quantity, ref_kind, ref_id, actor_id, note, posted_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11)
RETURNING id`,
		movement.ProductID, movement.WarehouseID, movement.BatchID, string(movement.Type),
		movement.QuantityDelta.String(), movement.ResultingQuantity.String(),
		string(movement.RefKind), movement.RefID, movement.ActorID, movement.Note, movement.PostedAt).Scan(&id)
	return id, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStockLevel(row rowScanner) (StockLevel, error) {
	var level StockLevel
	var qty, reserved string
	var updatedAt *time.Time
	err := row.Scan(&level.ProductID, &level.WarehouseID, &level.BatchID, &qty, &reserved, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{}, ErrStockLevelNotFound
		}
		return StockLevel{}, err
	}
	if level.Quantity, err = decimal.NewFromString(qty); err != nil {
		return StockLevel{}, err
	}
	if level.ReservedQuantity, err = decimal.NewFromString(reserved); err != nil {
		return StockLevel{}, err
	}
	if updatedAt != nil {
		level.UpdatedAt = *updatedAt
	}
	return level, nil
}

func scanMovement(row rowScanner) (Movement, error) {
	var m Movement
	var movementType, refKind, delta, resulting string
	err := row.Scan(&m.ID, &m.ProductID, &m.WarehouseID, &m.BatchID, &movementType, &delta, &resulting,
		&refKind, &m.RefID, &m.ActorID, &m.Note, &m.PostedAt)
	if err != nil {
		return Movement{}, err
	}
	m.Type = MovementType(movementType)
	m.RefKind = ReferenceKind(refKind)
	if m.QuantityDelta, err = decimal.NewFromString(delta); err != nil {
		return Movement{}, err
	}
	if m.ResultingQuantity, err = decimal.NewFromString(resulting); err != nil {
		return Movement{}, err
	}
	return m, nil
}
