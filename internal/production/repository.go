package production

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

// Repository persists production runs in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations of the run state machine.
// Ledger returns a ledger posting surface bound to the same transaction, so
// the completion legs and the status flip commit or roll back together.
type TxRepository interface {
	InsertRun(ctx context.Context, run Run) (int64, error)
	InsertItems(ctx context.Context, runID int64, items []RunItem) error
	GetRunForUpdate(ctx context.Context, id int64) (Run, error)
	GetItems(ctx context.Context, runID int64) ([]RunItem, error)
	UpdateRun(ctx context.Context, run Run) error
	UpdateItem(ctx context.Context, item RunItem) error
	InsertLoss(ctx context.Context, loss Loss) (int64, error)
	Ledger() ledger.TxRepository
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Run, error)
	ListItems(ctx context.Context, runID int64) ([]RunItem, error)
	ListLosses(ctx context.Context, runID int64) ([]Loss, error)
	List(ctx context.Context, filter ListFilter) ([]Run, shared.Pagination, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("production repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const runColumns = `id, ref_id, formula_id, finished_product_id, warehouse_id,
target_quantity::text, actual_output::text, wastage_quantity::text, wastage_percentage::text,
status, notes, created_by, completed_by, started_at, completed_at, created_at, updated_at`

// Get reads one run by id.
func (r *Repository) Get(ctx context.Context, id int64) (Run, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM production_runs WHERE id=$1`, id)
	return scanRun(row)
}

// ListItems returns the material lines of a run.
func (r *Repository) ListItems(ctx context.Context, runID int64) ([]RunItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, run_id, product_id, planned_quantity::text, actual_quantity::text, variance::text
FROM production_run_items WHERE run_id=$1 ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

// ListLosses returns the loss records of a run, oldest first.
func (r *Repository) ListLosses(ctx context.Context, runID int64) ([]Loss, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, run_id, product_id, quantity::text, loss_type, reason, recorded_by, recorded_at
FROM production_losses WHERE run_id=$1 ORDER BY recorded_at, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	losses := []Loss{}
	for rows.Next() {
		var loss Loss
		var quantity string
		if err := rows.Scan(&loss.ID, &loss.RunID, &loss.ProductID, &quantity, &loss.LossType,
			&loss.Reason, &loss.RecordedBy, &loss.RecordedAt); err != nil {
			return nil, err
		}
		if loss.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, err
		}
		losses = append(losses, loss)
	}
	return losses, rows.Err()
}

// List returns runs newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Run, shared.Pagination, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.WarehouseID != 0 {
		args = append(args, filter.WarehouseID)
		where += ` AND warehouse_id = $` + strconv.Itoa(len(args))
	}
	if filter.FinishedProductID != 0 {
		args = append(args, filter.FinishedProductID)
		where += ` AND finished_product_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM production_runs`+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	pagination := shared.NewPagination(filter.Page, filter.PerPage, total)

	args = append(args, pagination.PerPage, pagination.Offset())
	query := `SELECT ` + runColumns + ` FROM production_runs` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		runs = append(runs, run)
	}
	return runs, pagination, rows.Err()
}

func (r *txRepository) InsertRun(ctx context.Context, run Run) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO production_runs
(ref_id, formula_id, finished_product_id, warehouse_id, target_quantity, actual_output, wastage_quantity, wastage_percentage,
 status, notes, created_by, completed_by, started_at, completed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11, $12, $13, $14, $15, $15)
RETURNING id`,
		run.RefID, run.FormulaID, run.FinishedProductID, run.WarehouseID,
		run.TargetQuantity.String(), run.ActualOutput.String(), run.WastageQuantity.String(), run.WastagePercentage.String(),
		string(run.Status), run.Notes, run.CreatedBy, run.CompletedBy, run.StartedAt, run.CompletedAt, run.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItems(ctx context.Context, runID int64, items []RunItem) error {
	for _, item := range items {
		_, err := r.tx.Exec(ctx, `INSERT INTO production_run_items (run_id, product_id, planned_quantity, actual_quantity, variance)
VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric)`,
			runID, item.ProductID, item.PlannedQuantity.String(), item.ActualQuantity.String(), item.Variance.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetRunForUpdate(ctx context.Context, id int64) (Run, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+runColumns+` FROM production_runs WHERE id=$1 FOR UPDATE`, id)
	return scanRun(row)
}

func (r *txRepository) GetItems(ctx context.Context, runID int64) ([]RunItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, run_id, product_id, planned_quantity::text, actual_quantity::text, variance::text
FROM production_run_items WHERE run_id=$1 ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (r *txRepository) UpdateRun(ctx context.Context, run Run) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_runs
SET actual_output=$2::numeric, wastage_quantity=$3::numeric, wastage_percentage=$4::numeric,
    status=$5, notes=$6, completed_by=$7, started_at=$8, completed_at=$9, updated_at=$10
WHERE id=$1`,
		run.ID, run.ActualOutput.String(), run.WastageQuantity.String(), run.WastagePercentage.String(),
		string(run.Status), run.Notes, run.CompletedBy, run.StartedAt, run.CompletedAt, run.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) UpdateItem(ctx context.Context, item RunItem) error {
	_, err := r.tx.Exec(ctx, `UPDATE production_run_items SET actual_quantity=$2::numeric, variance=$3::numeric WHERE id=$1`,
		item.ID, item.ActualQuantity.String(), item.Variance.String())
	return err
}

func (r *txRepository) InsertLoss(ctx context.Context, loss Loss) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO production_losses (run_id, product_id, quantity, loss_type, reason, recorded_by, recorded_at)
VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
RETURNING id`,
		loss.RunID, loss.ProductID, loss.Quantity.String(), loss.LossType, loss.Reason, loss.RecordedBy, loss.RecordedAt).Scan(&id)
	return id, err
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var status, target, output, wastageQty, wastagePct string
	var updatedAt *time.Time
	err := row.Scan(&run.ID, &run.RefID, &run.FormulaID, &run.FinishedProductID, &run.WarehouseID,
		&target, &output, &wastageQty, &wastagePct, &status, &run.Notes, &run.CreatedBy, &run.CompletedBy,
		&run.StartedAt, &run.CompletedAt, &run.CreatedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, shared.ErrNotFound
		}
		return Run{}, err
	}
	run.Status = Status(status)
	if run.TargetQuantity, err = decimal.NewFromString(target); err != nil {
		return Run{}, err
	}
	if run.ActualOutput, err = decimal.NewFromString(output); err != nil {
		return Run{}, err
	}
	if run.WastageQuantity, err = decimal.NewFromString(wastageQty); err != nil {
		return Run{}, err
	}
	if run.WastagePercentage, err = decimal.NewFromString(wastagePct); err != nil {
		return Run{}, err
	}
	if updatedAt != nil {
		run.UpdatedAt = *updatedAt
	}
	return run, nil
}

func collectItems(rows pgx.Rows) ([]RunItem, error) {
	items := []RunItem{}
	for rows.Next() {
		var item RunItem
		var planned, actual, variance string
		if err := rows.Scan(&item.ID, &item.RunID, &item.ProductID, &planned, &actual, &variance); err != nil {
			return nil, err
		}
		var err error
		if item.PlannedQuantity, err = decimal.NewFromString(planned); err != nil {
			return nil, err
		}
		if item.ActualQuantity, err = decimal.NewFromString(actual); err != nil {
			return nil, err
		}
		if item.Variance, err = decimal.NewFromString(variance); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
