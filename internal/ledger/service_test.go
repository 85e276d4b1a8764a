package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	levels    map[string]StockLevel
	movements []Movement
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{levels: make(map[string]StockLevel)}
}

func levelKey(key StockKey) string {
	batch := int64(-1)
	if key.BatchID != nil {
		batch = *key.BatchID
	}
	return fmt.Sprintf("%d:%d:%d", key.ProductID, key.WarehouseID, batch)
}

type memoryTx struct {
	repo      *memoryRepo
	staged    map[string]StockLevel
	movements []Movement
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, staged: make(map[string]StockLevel)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for k, level := range tx.staged {
		r.levels[k] = level
	}
	r.movements = append(r.movements, tx.movements...)
	return nil
}

func (r *memoryRepo) GetStockLevel(ctx context.Context, key StockKey) (StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if level, ok := r.levels[levelKey(key)]; ok {
		return level, nil
	}
	return StockLevel{}, ErrStockLevelNotFound
}

func (r *memoryRepo) GetAvailability(ctx context.Context, warehouseID int64, productIDs []int64) (map[int64]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[int64]decimal.Decimal)
	for _, level := range r.levels {
		if level.WarehouseID != warehouseID {
			continue
		}
		for _, id := range productIDs {
			if level.ProductID == id {
				result[id] = result[id].Add(level.Available())
			}
		}
	}
	return result, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Movement
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != 0 && m.WarehouseID != filter.WarehouseID {
			continue
		}
		matched = append(matched, m)
	}
	return matched, shared.NewPagination(filter.Page, filter.PerPage, len(matched)), nil
}

func (tx *memoryTx) GetStockLevelForUpdate(ctx context.Context, key StockKey) (StockLevel, error) {
	if level, ok := tx.staged[levelKey(key)]; ok {
		return level, nil
	}
	if level, ok := tx.repo.levels[levelKey(key)]; ok {
		return level, nil
	}
	return StockLevel{}, ErrStockLevelNotFound
}

func (tx *memoryTx) UpsertStockLevel(ctx context.Context, level StockLevel) error {
	tx.staged[levelKey(level.Key())] = level
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	tx.repo.nextID++
	movement.ID = tx.repo.nextID
	tx.movements = append(tx.movements, movement)
	return movement.ID, nil
}

func qty(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedStock(t *testing.T, svc *Service, productID, warehouseID int64, quantity string) {
	t.Helper()
	_, err := svc.ApplyDelta(context.Background(), ApplyDeltaInput{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Delta:       qty(quantity),
		Type:        MovementAdjustment,
		Ref:         Reference{Kind: ReferenceAdjustment, ID: uuid.New()},
		ActorID:     1,
	})
	require.NoError(t, err)
}

func TestApplyDeltaJournalsEveryMutation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil, nil)
	ctx := context.Background()

	seedStock(t, svc, 1, 1, "10")
	movement, err := svc.ApplyDelta(ctx, ApplyDeltaInput{
		ProductID: 1, WarehouseID: 1, Delta: qty("-4"),
		Type: MovementAdjustment, Ref: Reference{Kind: ReferenceAdjustment, ID: uuid.New()}, ActorID: 2,
	})
	require.NoError(t, err)
	require.True(t, movement.ResultingQuantity.Equal(qty("6")))

	level, err := repo.GetStockLevel(ctx, StockKey{ProductID: 1, WarehouseID: 1})
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(qty("6")))

	// quantity always equals the sum of journal deltas for the key
	sum := decimal.Zero
	for _, m := range repo.movements {
		sum = sum.Add(m.QuantityDelta)
	}
	require.True(t, sum.Equal(level.Quantity))
	require.Len(t, repo.movements, 2)
}

func TestApplyDeltaRejectsZeroDelta(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil, nil, nil)
	_, err := svc.ApplyDelta(context.Background(), ApplyDeltaInput{
		ProductID: 1, WarehouseID: 1, Delta: decimal.Zero,
		Type: MovementAdjustment, ActorID: 1,
	})
	require.ErrorIs(t, err, ErrZeroDelta)
}

func TestApplyDeltaInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil, nil)

	_, err := svc.ApplyDelta(context.Background(), ApplyDeltaInput{
		ProductID: 1, WarehouseID: 1, Delta: qty("-1"),
		Type: MovementAdjustment, Ref: Reference{Kind: ReferenceAdjustment, ID: uuid.New()}, ActorID: 1,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var detail *InsufficientStockError
	require.ErrorAs(t, err, &detail)
	require.True(t, detail.Available.IsZero())
	require.True(t, detail.Requested.Equal(qty("1")))

	// failed posting leaves no trace
	require.Empty(t, repo.movements)
	require.Empty(t, repo.levels)
}

func TestTransferBothLegsOrNeither(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil, nil)
	ctx := context.Background()

	seedStock(t, svc, 1, 1, "20")

	result, err := svc.Transfer(ctx, TransferInput{
		ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: qty("5"), Reason: "rebalance", ActorID: 3,
	})
	require.NoError(t, err)
	require.Equal(t, MovementTransferOut, result.Out.Type)
	require.Equal(t, MovementTransferIn, result.In.Type)
	require.Equal(t, result.Out.RefID, result.In.RefID)
	require.True(t, result.Out.ResultingQuantity.Equal(qty("15")))
	require.True(t, result.In.ResultingQuantity.Equal(qty("5")))

	movementsBefore := len(repo.movements)
	_, err = svc.Transfer(ctx, TransferInput{
		ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: qty("50"), Reason: "too much", ActorID: 3,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	src, err := repo.GetStockLevel(ctx, StockKey{ProductID: 1, WarehouseID: 1})
	require.NoError(t, err)
	dst, err := repo.GetStockLevel(ctx, StockKey{ProductID: 1, WarehouseID: 2})
	require.NoError(t, err)
	require.True(t, src.Quantity.Equal(qty("15")))
	require.True(t, dst.Quantity.Equal(qty("5")))
	require.Len(t, repo.movements, movementsBefore)
}

func TestTransferValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 1, Quantity: qty("5"), ActorID: 1})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: qty("0"), ActorID: 1})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestConcurrentDecrementsSerialize(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil, nil)
	ctx := context.Background()

	const n = 50
	seedStock(t, svc, 1, 1, fmt.Sprintf("%d", n))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyDelta(ctx, ApplyDeltaInput{
				ProductID: 1, WarehouseID: 1, Delta: qty("-1"),
				Type: MovementAdjustment, Ref: Reference{Kind: ReferenceAdjustment, ID: uuid.New()}, ActorID: 1,
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	level, err := repo.GetStockLevel(ctx, StockKey{ProductID: 1, WarehouseID: 1})
	require.NoError(t, err)
	require.True(t, level.Quantity.IsZero())
	require.Len(t, repo.movements, n+1)
}

func TestBatchKeysAreIndependent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil, nil)
	ctx := context.Background()

	batchA := int64(10)
	batchB := int64(11)
	for _, batch := range []*int64{&batchA, &batchB} {
		_, err := svc.ApplyDelta(ctx, ApplyDeltaInput{
			ProductID: 1, WarehouseID: 1, BatchID: batch, Delta: qty("7"),
			Type: MovementAdjustment, Ref: Reference{Kind: ReferenceAdjustment, ID: uuid.New()}, ActorID: 1,
		})
		require.NoError(t, err)
	}

	available, err := svc.GetAvailable(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, available.Equal(qty("14")))
}

type catalogStub struct {
	products   map[int64]catalog.Product
	warehouses map[int64]catalog.Warehouse
}

func (c *catalogStub) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return catalog.Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (c *catalogStub) GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error) {
	w, ok := c.warehouses[id]
	if !ok {
		return catalog.Warehouse{}, shared.ErrNotFound
	}
	return w, nil
}

type alertRecorder struct {
	events []LowStockEvent
}

func (a *alertRecorder) NotifyLowStock(ctx context.Context, evt LowStockEvent) error {
	a.events = append(a.events, evt)
	return nil
}

func TestCatalogGuards(t *testing.T) {
	cat := &catalogStub{
		products: map[int64]catalog.Product{
			1: {ID: 1, TrackInventory: true},
			2: {ID: 2, TrackInventory: false},
		},
		warehouses: map[int64]catalog.Warehouse{
			1: {ID: 1, Active: true},
			2: {ID: 2, Active: false},
		},
	}
	svc := NewService(newMemoryRepo(), cat, nil, nil, nil, nil, nil)
	ctx := context.Background()

	input := ApplyDeltaInput{ProductID: 2, WarehouseID: 1, Delta: qty("1"), Type: MovementAdjustment, ActorID: 1}
	_, err := svc.ApplyDelta(ctx, input)
	require.ErrorIs(t, err, ErrInventoryNotTracked)

	input.ProductID = 1
	input.WarehouseID = 2
	_, err = svc.ApplyDelta(ctx, input)
	require.ErrorIs(t, err, ErrWarehouseInactive)

	input.ProductID = 99
	input.WarehouseID = 1
	_, err = svc.ApplyDelta(ctx, input)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLowStockAlertFires(t *testing.T) {
	cat := &catalogStub{
		products: map[int64]catalog.Product{
			1: {ID: 1, TrackInventory: true, ReorderLevel: qty("10"), CriticalLevel: qty("3")},
		},
		warehouses: map[int64]catalog.Warehouse{1: {ID: 1, Active: true}},
	}
	alerts := &alertRecorder{}
	svc := NewService(newMemoryRepo(), cat, nil, nil, alerts, nil, nil)
	ctx := context.Background()

	seedStock(t, svc, 1, 1, "12")
	require.Empty(t, alerts.events)

	_, err := svc.ApplyDelta(ctx, ApplyDeltaInput{
		ProductID: 1, WarehouseID: 1, Delta: qty("-4"),
		Type: MovementAdjustment, Ref: Reference{Kind: ReferenceAdjustment, ID: uuid.New()}, ActorID: 1,
	})
	require.NoError(t, err)
	require.Len(t, alerts.events, 1)
	require.True(t, alerts.events[0].Quantity.Equal(qty("8")))
	require.False(t, alerts.events[0].Critical)

	_, err = svc.ApplyDelta(ctx, ApplyDeltaInput{
		ProductID: 1, WarehouseID: 1, Delta: qty("-6"),
		Type: MovementAdjustment, Ref: Reference{Kind: ReferenceAdjustment, ID: uuid.New()}, ActorID: 1,
	})
	require.NoError(t, err)
	require.Len(t, alerts.events, 2)
	require.True(t, alerts.events[1].Critical)
}
