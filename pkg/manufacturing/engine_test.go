package manufacturing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// テスト環境一式
type testEnv struct {
	store      *memStore
	engine     *Engine
	production *ProductionManager
	orders     *OrderManager
	catalog    *CatalogManager
	boms       *BOMManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	logger := zap.NewNop()
	config := &Config{
		MovementPageSize: 100,
		SKUPrefix:        "SKU",
	}
	engine := NewEngine(store, logger, config)
	return &testEnv{
		store:      store,
		engine:     engine,
		production: NewProductionManager(store, engine, logger, config),
		orders:     NewOrderManager(store, engine, logger),
		catalog:    NewCatalogManager(store, engine, logger, config),
		boms:       NewBOMManager(store, logger),
	}
}

func (e *testEnv) mustCreateLocation(t *testing.T, code string) *StockLocation {
	t.Helper()
	loc, err := e.catalog.CreateLocation(context.Background(), &StockLocation{
		Code: code, Name: "ロケーション" + code, Type: "warehouse",
	})
	require.NoError(t, err)
	return loc
}

func (e *testEnv) mustRegisterItem(t *testing.T, sku string, itemType ItemType, qty int64, unitCost float64, reorderPoint int64, locationID string) *InventoryItem {
	t.Helper()
	item, err := e.catalog.RegisterItem(context.Background(), &InventoryItem{
		SKU:          sku,
		Name:         "品目" + sku,
		Type:         itemType,
		Quantity:     qty,
		UnitCost:     unitCost,
		ReorderPoint: reorderPoint,
		LocationID:   locationID,
	})
	require.NoError(t, err)
	return item
}

func TestEngine_ApplyReceipt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 0, 500, 10, loc.ID)

	movement, err := env.engine.Apply(ctx, StockTransaction{
		Type:         MovementReceipt,
		SKU:          "PART-001",
		Quantity:     50,
		ToLocationID: loc.ID,
		Reference:    "PO-TEST",
	})
	require.NoError(t, err)

	// 台帳レコードは正の数量で記録される
	assert.Equal(t, MovementReceipt, movement.Type)
	assert.Equal(t, int64(50), movement.Quantity)
	assert.Equal(t, loc.ID, movement.ToLocation)
	assert.NotEmpty(t, movement.MovementID)

	// ロケーション在庫とマスターが一致する
	li, err := env.store.GetLocationInventory(ctx, loc.ID, "PART-001")
	require.NoError(t, err)
	assert.Equal(t, int64(50), li.Quantity)

	item, err := env.store.GetItemBySKU(ctx, "PART-001")
	require.NoError(t, err)
	assert.Equal(t, int64(50), item.Quantity)
	assert.Equal(t, float64(50)*500, item.TotalValue)
	assert.Equal(t, StatusInStock, item.Status)
}

func TestEngine_ApplySale_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 30, 500, 10, loc.ID)

	_, err := env.engine.Apply(ctx, StockTransaction{
		Type:           MovementSale,
		SKU:            "PART-001",
		Quantity:       31,
		FromLocationID: loc.ID,
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// 失敗したトランザクションは何も変更しない
	item, err := env.store.GetItemBySKU(ctx, "PART-001")
	require.NoError(t, err)
	assert.Equal(t, int64(30), item.Quantity)

	movements, err := env.store.ListMovements(ctx, MovementFilter{SKU: "PART-001"})
	require.NoError(t, err)
	require.Len(t, movements, 1) // 初期在庫の入庫のみ
	assert.Equal(t, "INITIAL", movements[0].Reference)
}

func TestEngine_Transfer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	from := env.mustCreateLocation(t, "WH-01")
	to := env.mustCreateLocation(t, "LINE-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 100, 500, 10, from.ID)

	movement, err := env.engine.Apply(ctx, StockTransaction{
		Type:           MovementTransfer,
		SKU:            "PART-001",
		Quantity:       40,
		FromLocationID: from.ID,
		ToLocationID:   to.ID,
	})
	require.NoError(t, err)

	// 移動は両ロケーションを持つ1レコードとして正の数量で記録される
	assert.Equal(t, int64(40), movement.Quantity)
	assert.Equal(t, from.ID, movement.FromLocation)
	assert.Equal(t, to.ID, movement.ToLocation)

	fromInv, err := env.store.GetLocationInventory(ctx, from.ID, "PART-001")
	require.NoError(t, err)
	assert.Equal(t, int64(60), fromInv.Quantity)

	toInv, err := env.store.GetLocationInventory(ctx, to.ID, "PART-001")
	require.NoError(t, err)
	assert.Equal(t, int64(40), toInv.Quantity)

	// マスター合計は変化しない
	item, err := env.store.GetItemBySKU(ctx, "PART-001")
	require.NoError(t, err)
	assert.Equal(t, int64(100), item.Quantity)
}

func TestEngine_Transfer_SameLocationRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 100, 500, 10, loc.ID)

	_, err := env.engine.Apply(ctx, StockTransaction{
		Type:           MovementTransfer,
		SKU:            "PART-001",
		Quantity:       10,
		FromLocationID: loc.ID,
		ToLocationID:   loc.ID,
	})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestEngine_Transfer_RollbackOnDestinationFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	from := env.mustCreateLocation(t, "WH-01")
	to := env.mustCreateLocation(t, "LINE-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 100, 500, 10, from.ID)

	before, err := env.store.ListMovements(ctx, MovementFilter{SKU: "PART-001"})
	require.NoError(t, err)

	// 移動先への書き込みだけを失敗させる
	env.store.failLocationWrite = func(li *LocationInventory) error {
		if li.LocationID == to.ID {
			return fmt.Errorf("書き込み失敗")
		}
		return nil
	}

	_, err = env.engine.Apply(ctx, StockTransaction{
		Type:           MovementTransfer,
		SKU:            "PART-001",
		Quantity:       40,
		FromLocationID: from.ID,
		ToLocationID:   to.ID,
	})
	require.Error(t, err)
	env.store.failLocationWrite = nil

	// 出庫側も含めて全体がロールバックされる
	fromInv, err := env.store.GetLocationInventory(ctx, from.ID, "PART-001")
	require.NoError(t, err)
	assert.Equal(t, int64(100), fromInv.Quantity)

	_, err = env.store.GetLocationInventory(ctx, to.ID, "PART-001")
	assert.ErrorIs(t, err, ErrLocationInventoryNotFound)

	after, err := env.store.ListMovements(ctx, MovementFilter{SKU: "PART-001"})
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestEngine_Adjustment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 100, 500, 95, loc.ID)

	// 棚卸で5個不足が判明
	movement, err := env.engine.Apply(ctx, StockTransaction{
		Type:       MovementAdjustment,
		SKU:        "PART-001",
		Delta:      -8,
		LocationID: loc.ID,
		Notes:      "棚卸差異",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-8), movement.Quantity)

	item, err := env.store.GetItemBySKU(ctx, "PART-001")
	require.NoError(t, err)
	assert.Equal(t, int64(92), item.Quantity)
	assert.Equal(t, StatusLowStock, item.Status)
}

func TestEngine_Adjustment_CannotGoNegative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 10, 500, 5, loc.ID)

	_, err := env.engine.Apply(ctx, StockTransaction{
		Type:       MovementAdjustment,
		SKU:        "PART-001",
		Delta:      -11,
		LocationID: loc.ID,
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestEngine_InvalidTransactionType(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Apply(context.Background(), StockTransaction{
		Type:     MovementType("donation"),
		SKU:      "PART-001",
		Quantity: 5,
	})
	assert.ErrorIs(t, err, ErrInvalidTransactionType)
}

func TestEngine_UnknownSKU(t *testing.T) {
	env := newTestEnv(t)
	loc := env.mustCreateLocation(t, "WH-01")

	_, err := env.engine.Apply(context.Background(), StockTransaction{
		Type:         MovementReceipt,
		SKU:          "NOPE",
		Quantity:     5,
		ToLocationID: loc.ID,
	})
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestEngine_UnknownLocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 0, 500, 10, loc.ID)

	_, err := env.engine.Apply(ctx, StockTransaction{
		Type:         MovementReceipt,
		SKU:          "PART-001",
		Quantity:     5,
		ToLocationID: "no-such-location",
	})
	assert.ErrorIs(t, err, ErrLocationNotFound)
}

// マスター数量は常に符号付き移動量の合計と一致する（移動は正味0）
func TestEngine_Conservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	wh := env.mustCreateLocation(t, "WH-01")
	line := env.mustCreateLocation(t, "LINE-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 0, 100, 10, wh.ID)

	steps := []StockTransaction{
		{Type: MovementReceipt, SKU: "PART-001", Quantity: 120, ToLocationID: wh.ID},
		{Type: MovementTransfer, SKU: "PART-001", Quantity: 30, FromLocationID: wh.ID, ToLocationID: line.ID},
		{Type: MovementConsumption, SKU: "PART-001", Quantity: 20, FromLocationID: line.ID},
		{Type: MovementAdjustment, SKU: "PART-001", Delta: -5, LocationID: wh.ID},
		{Type: MovementSale, SKU: "PART-001", Quantity: 15, FromLocationID: wh.ID},
	}
	for _, step := range steps {
		_, err := env.engine.Apply(ctx, step)
		require.NoError(t, err)
	}

	movements, err := env.store.ListMovements(ctx, MovementFilter{SKU: "PART-001"})
	require.NoError(t, err)

	var net int64
	for _, m := range movements {
		if m.Type == MovementTransfer {
			continue
		}
		net += m.Quantity
	}

	item, err := env.store.GetItemBySKU(ctx, "PART-001")
	require.NoError(t, err)
	assert.Equal(t, net, item.Quantity)
	assert.Equal(t, int64(80), item.Quantity)

	total, err := env.store.SumLocationQuantity(ctx, "PART-001")
	require.NoError(t, err)
	assert.Equal(t, item.Quantity, total)
}

// 成功したトランザクションは必ずちょうど1件の台帳レコードを残す
func TestEngine_AuditCompleteness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 0, 100, 10, loc.ID)

	// 初期在庫0のため登録時の移動はなし
	for i := 0; i < 5; i++ {
		_, err := env.engine.Apply(ctx, StockTransaction{
			Type:         MovementReceipt,
			SKU:          "PART-001",
			Quantity:     10,
			ToLocationID: loc.ID,
		})
		require.NoError(t, err)
	}

	movements, err := env.store.ListMovements(ctx, MovementFilter{SKU: "PART-001"})
	require.NoError(t, err)
	require.Len(t, movements, 5)

	// 移動IDは一意
	seen := make(map[string]bool)
	for _, m := range movements {
		assert.False(t, seen[m.MovementID], "移動IDが重複: %s", m.MovementID)
		seen[m.MovementID] = true
	}
}

func TestEngine_GetMovements_Filters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 0, 100, 10, loc.ID)
	env.mustRegisterItem(t, "PART-002", ItemTypeComponent, 0, 100, 10, loc.ID)

	_, err := env.engine.Apply(ctx, StockTransaction{
		Type: MovementReceipt, SKU: "PART-001", Quantity: 10, ToLocationID: loc.ID, Reference: "PO-1",
	})
	require.NoError(t, err)
	_, err = env.engine.Apply(ctx, StockTransaction{
		Type: MovementReceipt, SKU: "PART-002", Quantity: 10, ToLocationID: loc.ID, Reference: "PO-2",
	})
	require.NoError(t, err)
	_, err = env.engine.Apply(ctx, StockTransaction{
		Type: MovementSale, SKU: "PART-001", Quantity: 3, FromLocationID: loc.ID, Reference: "SO-1",
	})
	require.NoError(t, err)

	bySKU, err := env.engine.GetMovements(ctx, MovementFilter{SKU: "PART-001"})
	require.NoError(t, err)
	assert.Len(t, bySKU, 2)

	byRef, err := env.engine.GetMovements(ctx, MovementFilter{Reference: "PO-2"})
	require.NoError(t, err)
	require.Len(t, byRef, 1)
	assert.Equal(t, "PART-002", byRef[0].SKU)

	byType, err := env.engine.GetMovements(ctx, MovementFilter{Type: MovementSale})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, int64(-3), byType[0].Quantity)
}

func TestEngine_Reconcile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	item := env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 80, 200, 10, loc.ID)

	// マスターを直接壊してドリフトを作る
	item.Quantity = 999
	require.NoError(t, env.store.UpdateItem(ctx, item))

	result, err := env.engine.Reconcile(ctx, "PART-001")
	require.NoError(t, err)
	assert.True(t, result.Corrected)
	assert.Equal(t, int64(80), result.Quantity)
	assert.Equal(t, float64(80)*200, result.TotalValue)
	assert.Equal(t, StatusInStock, result.Status)

	// 連続実行しても結果は変わらない
	again, err := env.engine.Reconcile(ctx, "PART-001")
	require.NoError(t, err)
	assert.False(t, again.Corrected)
	assert.Equal(t, result.Quantity, again.Quantity)
	assert.Equal(t, result.TotalValue, again.TotalValue)
}

func TestEngine_Receipt_UpdatesUnitCost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 10, 100, 2, loc.ID)

	newCost := 120.0
	_, err := env.engine.Apply(ctx, StockTransaction{
		Type:         MovementReceipt,
		SKU:          "PART-001",
		Quantity:     10,
		ToLocationID: loc.ID,
		UnitCost:     &newCost,
	})
	require.NoError(t, err)

	item, err := env.store.GetItemBySKU(ctx, "PART-001")
	require.NoError(t, err)
	assert.Equal(t, 120.0, item.UnitCost)
	assert.Equal(t, float64(20)*120, item.TotalValue)
}

func TestStockTransaction_Validate(t *testing.T) {
	tests := []struct {
		name string
		tx   StockTransaction
		ok   bool
	}{
		{"入庫の正常系", StockTransaction{Type: MovementReceipt, SKU: "A", Quantity: 1, ToLocationID: "L1"}, true},
		{"入庫で数量ゼロ", StockTransaction{Type: MovementReceipt, SKU: "A", Quantity: 0, ToLocationID: "L1"}, false},
		{"出庫でロケーション欠落", StockTransaction{Type: MovementSale, SKU: "A", Quantity: 1}, false},
		{"調整でデルタゼロ", StockTransaction{Type: MovementAdjustment, SKU: "A", LocationID: "L1"}, false},
		{"SKU欠落", StockTransaction{Type: MovementReceipt, Quantity: 1, ToLocationID: "L1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tx.Normalize()
			err := tt.tx.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	assert.Equal(t, "insufficient_stock", Kind(ErrInsufficientStock))
	assert.Equal(t, "not_found", Kind(ErrItemNotFound))
	assert.Equal(t, "validation_error", Kind(NewValidationError("f", "m", "v")))
	assert.Equal(t, "invalid_order_state", Kind(fmt.Errorf("wrap: %w", ErrInvalidOrderState)))
	assert.Equal(t, "internal_error", Kind(errors.New("その他")))
	assert.True(t, IsNotFound(ErrBOMNotFound))
}
