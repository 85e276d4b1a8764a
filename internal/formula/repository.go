package formula

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository reads the formula catalog. Formula maintenance is owned by the
// catalog boundary; the engine only consumes formulas.
type Repository interface {
	Get(ctx context.Context, id int64) (Formula, error)
	ListByProduct(ctx context.Context, finishedProductID int64) ([]Formula, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (Formula, error) {
	var f Formula
	err := r.pool.QueryRow(ctx, `SELECT id, name, finished_product_id, created_at, updated_at FROM formulas WHERE id=$1`, id).
		Scan(&f.ID, &f.Name, &f.FinishedProductID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Formula{}, shared.ErrNotFound
		}
		return Formula{}, err
	}
	items, err := r.items(ctx, f.ID)
	if err != nil {
		return Formula{}, err
	}
	f.Items = items
	return f, nil
}

func (r *repository) ListByProduct(ctx context.Context, finishedProductID int64) ([]Formula, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, finished_product_id, created_at, updated_at
FROM formulas WHERE finished_product_id=$1 ORDER BY id ASC`, finishedProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var formulas []Formula
	for rows.Next() {
		var f Formula
		if err := rows.Scan(&f.ID, &f.Name, &f.FinishedProductID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		formulas = append(formulas, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range formulas {
		items, err := r.items(ctx, formulas[i].ID)
		if err != nil {
			return nil, err
		}
		formulas[i].Items = items
	}
	return formulas, nil
}

func (r *repository) items(ctx context.Context, formulaID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, formula_id, product_id, percentage::text
FROM formula_items WHERE formula_id=$1 ORDER BY id ASC`, formulaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		var pct string
		if err := rows.Scan(&item.ID, &item.FormulaID, &item.ProductID, &pct); err != nil {
			return nil, err
		}
		if item.Percentage, err = decimal.NewFromString(pct); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
