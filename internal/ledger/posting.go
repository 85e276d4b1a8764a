package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PostLegs applies every leg inside the caller's transaction: for each leg it
// locks the stock level row, verifies the resulting quantity stays
// non-negative, upserts the new quantity and appends one journal row. Legs are
// processed in (product, warehouse, batch) order regardless of input order so
// concurrent multi-key postings cannot deadlock.
//
// All mutation against stock levels funnels through here; no other code path
// may write a stock level row.
func PostLegs(ctx context.Context, tx TxRepository, legs []Leg, ref Reference, actorID int64, at time.Time) ([]Movement, error) {
	if len(legs) == 0 {
		return nil, errors.New("ledger: at least one leg required")
	}
	for _, leg := range legs {
		if leg.Delta.IsZero() {
			return nil, ErrZeroDelta
		}
		if !leg.Type.Valid() {
			return nil, errors.New("ledger: unknown movement type")
		}
	}

	ordered := make([]int, len(legs))
	for i := range legs {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return legKey(legs[ordered[a]]).Less(legKey(legs[ordered[b]]))
	})

	movements := make([]Movement, len(legs))
	for _, idx := range ordered {
		leg := legs[idx]
		key := legKey(leg)

		level, err := tx.GetStockLevelForUpdate(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrStockLevelNotFound) {
				return nil, err
			}
			level = StockLevel{ProductID: key.ProductID, WarehouseID: key.WarehouseID, BatchID: key.BatchID,
				Quantity: decimal.Zero, ReservedQuantity: decimal.Zero}
		}

		newQty := level.Quantity.Add(leg.Delta)
		if newQty.IsNegative() || newQty.LessThan(level.ReservedQuantity) {
			return nil, &InsufficientStockError{
				ProductID:   key.ProductID,
				WarehouseID: key.WarehouseID,
				Requested:   leg.Delta.Neg(),
				Available:   level.Available(),
			}
		}

		level.Quantity = newQty
		level.UpdatedAt = at
		if err := tx.UpsertStockLevel(ctx, level); err != nil {
			return nil, err
		}

		movement := Movement{
			ProductID:         key.ProductID,
			WarehouseID:       key.WarehouseID,
			BatchID:           key.BatchID,
			Type:              leg.Type,
			QuantityDelta:     leg.Delta,
			ResultingQuantity: newQty,
			RefKind:           ref.Kind,
			RefID:             ref.ID,
			ActorID:           actorID,
			Note:              leg.Note,
			PostedAt:          at,
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return nil, err
		}
		movement.ID = id
		movements[idx] = movement
	}
	return movements, nil
}

func legKey(leg Leg) StockKey {
	return StockKey{ProductID: leg.ProductID, WarehouseID: leg.WarehouseID, BatchID: leg.BatchID}
}
