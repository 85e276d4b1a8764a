package adjustment

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists adjustments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations of the approval workflow.
// Ledger returns a ledger posting surface bound to the same transaction, so a
// status flip and its stock effect commit or roll back together.
type TxRepository interface {
	Insert(ctx context.Context, adj Adjustment) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Adjustment, error)
	UpdateDecision(ctx context.Context, adj Adjustment) error
	Ledger() ledger.TxRepository
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Adjustment, error)
	List(ctx context.Context, filter ListFilter) ([]Adjustment, shared.Pagination, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("adjustment repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const adjustmentColumns = `id, ref_id, product_id, warehouse_id, batch_id, adjustment_type, quantity_change::text,
reason, status, created_by, approved_by, approval_notes, movement_id, created_at, updated_at, applied_at`

// Get reads one adjustment by id.
func (r *Repository) Get(ctx context.Context, id int64) (Adjustment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM inventory_adjustments WHERE id=$1`, id)
	return scanAdjustment(row)
}

// List returns adjustments newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Adjustment, shared.Pagination, error) {
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
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_adjustments`+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	pagination := shared.NewPagination(filter.Page, filter.PerPage, total)

	args = append(args, pagination.PerPage, pagination.Offset())
	query := `SELECT ` + adjustmentColumns + ` FROM inventory_adjustments` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	adjustments := []Adjustment{}
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, pagination, rows.Err()
}

func (r *txRepository) Insert(ctx context.Context, adj Adjustment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_adjustments
(ref_id, product_id, warehouse_id, batch_id, adjustment_type, quantity_change, reason, status, created_by, approved_by, approval_notes, movement_id, created_at, updated_at, applied_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13, $13, $14)
RETURNING id`,
		adj.RefID, adj.ProductID, adj.WarehouseID, adj.BatchID, string(adj.Type),
		adj.QuantityChange.String(), adj.Reason, string(adj.Status), adj.CreatedBy,
		adj.ApprovedBy, adj.ApprovalNotes, adj.MovementID, adj.CreatedAt, adj.AppliedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Adjustment, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM inventory_adjustments WHERE id=$1 FOR UPDATE`, id)
	return scanAdjustment(row)
}

func (r *txRepository) UpdateDecision(ctx context.Context, adj Adjustment) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_adjustments
SET status=$2, approved_by=$3, approval_notes=$4, movement_id=$5, applied_at=$6, updated_at=$7
WHERE id=$1`,
		adj.ID, string(adj.Status), adj.ApprovedBy, adj.ApprovalNotes, adj.MovementID, adj.AppliedAt, adj.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdjustment(row rowScanner) (Adjustment, error) {
	var adj Adjustment
	var adjustmentType, status, change string
	var updatedAt *time.Time
	err := row.Scan(&adj.ID, &adj.RefID, &adj.ProductID, &adj.WarehouseID, &adj.BatchID,
		&adjustmentType, &change, &adj.Reason, &status, &adj.CreatedBy, &adj.ApprovedBy,
		&adj.ApprovalNotes, &adj.MovementID, &adj.CreatedAt, &updatedAt, &adj.AppliedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, shared.ErrNotFound
		}
		return Adjustment{}, err
	}
	adj.Type = Type(adjustmentType)
	adj.Status = Status(status)
	if adj.QuantityChange, err = decimal.NewFromString(change); err != nil {
		return Adjustment{}, err
	}
	if updatedAt != nil {
		adj.UpdatedAt = *updatedAt
	}
	return adj, nil
}
