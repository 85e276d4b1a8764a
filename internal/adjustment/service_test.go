package adjustment

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	levels      map[string]ledger.StockLevel
	movements   []ledger.Movement
	adjustments map[int64]Adjustment
	nextAdjID   int64
	nextMoveID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		levels:      make(map[string]ledger.StockLevel),
		adjustments: make(map[int64]Adjustment),
	}
}

func levelKey(key ledger.StockKey) string {
	batch := int64(-1)
	if key.BatchID != nil {
		batch = *key.BatchID
	}
	return fmt.Sprintf("%d:%d:%d", key.ProductID, key.WarehouseID, batch)
}

type memoryTx struct {
	repo        *memoryRepo
	levels      map[string]ledger.StockLevel
	movements   []ledger.Movement
	adjustments map[int64]Adjustment
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{
		repo:        r,
		levels:      make(map[string]ledger.StockLevel),
		adjustments: make(map[int64]Adjustment),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for k, level := range tx.levels {
		r.levels[k] = level
	}
	r.movements = append(r.movements, tx.movements...)
	for id, adj := range tx.adjustments {
		r.adjustments[id] = adj
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Adjustment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if adj, ok := r.adjustments[id]; ok {
		return adj, nil
	}
	return Adjustment{}, shared.ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Adjustment, shared.Pagination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Adjustment
	for _, adj := range r.adjustments {
		if filter.Status != "" && adj.Status != filter.Status {
			continue
		}
		matched = append(matched, adj)
	}
	return matched, shared.NewPagination(filter.Page, filter.PerPage, len(matched)), nil
}

func (tx *memoryTx) Insert(ctx context.Context, adj Adjustment) (int64, error) {
	tx.repo.nextAdjID++
	adj.ID = tx.repo.nextAdjID
	tx.adjustments[adj.ID] = adj
	return adj.ID, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Adjustment, error) {
	if adj, ok := tx.adjustments[id]; ok {
		return adj, nil
	}
	if adj, ok := tx.repo.adjustments[id]; ok {
		return adj, nil
	}
	return Adjustment{}, shared.ErrNotFound
}

func (tx *memoryTx) UpdateDecision(ctx context.Context, adj Adjustment) error {
	if _, ok := tx.adjustments[adj.ID]; !ok {
		if _, ok := tx.repo.adjustments[adj.ID]; !ok {
			return shared.ErrNotFound
		}
	}
	tx.adjustments[adj.ID] = adj
	return nil
}

func (tx *memoryTx) Ledger() ledger.TxRepository {
	return &memoryLedgerTx{tx: tx}
}

type memoryLedgerTx struct {
	tx *memoryTx
}

func (l *memoryLedgerTx) GetStockLevelForUpdate(ctx context.Context, key ledger.StockKey) (ledger.StockLevel, error) {
	if level, ok := l.tx.levels[levelKey(key)]; ok {
		return level, nil
	}
	if level, ok := l.tx.repo.levels[levelKey(key)]; ok {
		return level, nil
	}
	return ledger.StockLevel{}, ledger.ErrStockLevelNotFound
}

func (l *memoryLedgerTx) UpsertStockLevel(ctx context.Context, level ledger.StockLevel) error {
	l.tx.levels[levelKey(level.Key())] = level
	return nil
}

func (l *memoryLedgerTx) InsertMovement(ctx context.Context, movement ledger.Movement) (int64, error) {
	l.tx.repo.nextMoveID++
	movement.ID = l.tx.repo.nextMoveID
	l.tx.movements = append(l.tx.movements, movement)
	return movement.ID, nil
}

func (r *memoryRepo) seed(productID, warehouseID int64, quantity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	level := ledger.StockLevel{ProductID: productID, WarehouseID: warehouseID, Quantity: qty(quantity)}
	r.levels[levelKey(level.Key())] = level
}

func (r *memoryRepo) quantity(productID, warehouseID int64) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	level, ok := r.levels[levelKey(ledger.StockKey{ProductID: productID, WarehouseID: warehouseID})]
	if !ok {
		return decimal.Zero
	}
	return level.Quantity
}

type settingsStub struct {
	values map[string]string
}

func (s *settingsStub) Get(ctx context.Context, group, key, def string) (string, error) {
	if v, ok := s.values[group+"/"+key]; ok {
		return v, nil
	}
	return def, nil
}

type catalogStub struct{}

func (c *catalogStub) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	return catalog.Product{ID: id, TrackInventory: true}, nil
}

func (c *catalogStub) GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error) {
	return catalog.Warehouse{ID: id, Active: true}, nil
}

func qty(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestService(repo *memoryRepo, settings shared.SettingsProvider) *Service {
	return NewService(repo, &catalogStub{}, settings, nil, nil, nil, nil)
}

func TestCreateLeavesAdjustmentPendingByDefault(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, "100")
	svc := newTestService(repo, &settingsStub{})

	adj, err := svc.Create(context.Background(), CreateInput{
		ProductID: 1, WarehouseID: 10, Type: TypeLoss,
		QuantityChange: qty("-5"), Reason: "water damage", ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, adj.Status)
	require.Nil(t, adj.MovementID)
	require.Nil(t, adj.AppliedAt)
	require.True(t, repo.quantity(1, 10).Equal(qty("100")), "pending adjustment must not move stock")
	require.Empty(t, repo.movements)
}

func TestCreateAutoAppliesWhenApprovalDisabled(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, "100")
	settings := &settingsStub{values: map[string]string{"inventory/adjustment_require_approval": "false"}}
	svc := newTestService(repo, settings)

	adj, err := svc.Create(context.Background(), CreateInput{
		ProductID: 1, WarehouseID: 10, Type: TypeLoss,
		QuantityChange: qty("-5"), Reason: "water damage", ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, StatusApplied, adj.Status)
	require.NotNil(t, adj.MovementID)
	require.NotNil(t, adj.AppliedAt)
	require.True(t, repo.quantity(1, 10).Equal(qty("95")))
	require.Len(t, repo.movements, 1)
	require.Equal(t, ledger.MovementLoss, repo.movements[0].Type)
	require.Equal(t, ledger.ReferenceAdjustment, repo.movements[0].RefKind)
	require.Equal(t, adj.RefID, repo.movements[0].RefID)
}

func TestCreateAutoApproveThreshold(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, "100")
	settings := &settingsStub{values: map[string]string{
		"inventory/adjustment_require_approval":       "true",
		"inventory/adjustment_auto_approve_threshold": "10",
	}}
	svc := newTestService(repo, settings)

	small, err := svc.Create(context.Background(), CreateInput{
		ProductID: 1, WarehouseID: 10, Type: TypeCountCorrection,
		QuantityChange: qty("-10"), Reason: "cycle count", ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, StatusApplied, small.Status)

	large, err := svc.Create(context.Background(), CreateInput{
		ProductID: 1, WarehouseID: 10, Type: TypeCountCorrection,
		QuantityChange: qty("-10.01"), Reason: "cycle count", ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, large.Status)
	require.True(t, repo.quantity(1, 10).Equal(qty("90")))
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &settingsStub{})

	cases := []CreateInput{
		{ProductID: 1, WarehouseID: 10, Type: "vanished", QuantityChange: qty("-1"), Reason: "r", ActorID: 7},
		{ProductID: 1, WarehouseID: 10, Type: TypeLoss, QuantityChange: qty("-1"), Reason: "   ", ActorID: 7},
		{ProductID: 1, WarehouseID: 10, Type: TypeLoss, QuantityChange: decimal.Zero, Reason: "r", ActorID: 7},
	}
	for _, input := range cases {
		_, err := svc.Create(context.Background(), input)
		require.ErrorIs(t, err, shared.ErrInvalidInput)
	}
}

func TestApproveAppliesExactlyOnce(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, "100")
	svc := newTestService(repo, &settingsStub{})

	adj, err := svc.Create(context.Background(), CreateInput{
		ProductID: 1, WarehouseID: 10, Type: TypeDamage,
		QuantityChange: qty("-20"), Reason: "forklift", ActorID: 7,
	})
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), adj.ID, 8, "confirmed on site")
	require.NoError(t, err)
	require.Equal(t, StatusApplied, approved.Status)
	require.Equal(t, int64(8), *approved.ApprovedBy)
	require.NotNil(t, approved.MovementID)
	require.True(t, repo.quantity(1, 10).Equal(qty("80")))
	require.Len(t, repo.movements, 1)

	_, err = svc.Approve(context.Background(), adj.ID, 9, "again")
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.True(t, repo.quantity(1, 10).Equal(qty("80")), "second approval must not reapply")
	require.Len(t, repo.movements, 1)
}

func TestApproveEnforcesRoleSeparation(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, "100")
	svc := newTestService(repo, &settingsStub{})

	adj, err := svc.Create(context.Background(), CreateInput{
		ProductID: 1, WarehouseID: 10, Type: TypeTheft,
		QuantityChange: qty("-3"), Reason: "missing crate", ActorID: 7,
	})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), adj.ID, 7, "self approve")
	require.ErrorIs(t, err, shared.ErrRoleSeparation)

	stored, err := svc.Get(context.Background(), adj.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.True(t, repo.quantity(1, 10).Equal(qty("100")))
}

func TestApproveInsufficientStockLeavesPending(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, "5")
	svc := newTestService(repo, &settingsStub{})

	adj, err := svc.Create(context.Background(), CreateInput{
		ProductID: 1, WarehouseID: 10, Type: TypeLoss,
		QuantityChange: qty("-8"), Reason: "spoiled", ActorID: 7,
	})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), adj.ID, 8, "ok")
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	stored, err := svc.Get(context.Background(), adj.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.True(t, repo.quantity(1, 10).Equal(qty("5")))
	require.Empty(t, repo.movements)
}

func TestRejectRequiresNotesAndSkipsLedger(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, "100")
	svc := newTestService(repo, &settingsStub{})

	adj, err := svc.Create(context.Background(), CreateInput{
		ProductID: 1, WarehouseID: 10, Type: TypeExpiry,
		QuantityChange: qty("-12"), Reason: "past shelf life", ActorID: 7,
	})
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), adj.ID, 8, "  ")
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	rejected, err := svc.Reject(context.Background(), adj.ID, 8, "recount showed no loss")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.True(t, repo.quantity(1, 10).Equal(qty("100")))
	require.Empty(t, repo.movements)

	_, err = svc.Reject(context.Background(), adj.ID, 8, "again")
	require.ErrorIs(t, err, shared.ErrInvalidState)
}
