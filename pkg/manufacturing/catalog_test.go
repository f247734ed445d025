package manufacturing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogManager_RegisterItem_GeneratesSKU(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")

	first, err := env.catalog.RegisterItem(ctx, &InventoryItem{
		Name: "テスト品目1", Type: ItemTypeComponent, LocationID: loc.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "SKU-0001", first.SKU)

	second, err := env.catalog.RegisterItem(ctx, &InventoryItem{
		Name: "テスト品目2", Type: ItemTypeComponent, LocationID: loc.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "SKU-0002", second.SKU)
}

func TestCatalogManager_RegisterItem_DuplicateSKU(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 0, 100, 5, loc.ID)

	_, err := env.catalog.RegisterItem(ctx, &InventoryItem{
		SKU: "PART-001", Name: "重複品目", Type: ItemTypeComponent, LocationID: loc.ID,
	})
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestCatalogManager_RegisterItem_OpeningStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")

	item, err := env.catalog.RegisterItem(ctx, &InventoryItem{
		SKU: "PART-001", Name: "テスト品目", Type: ItemTypeComponent,
		Quantity: 30, UnitCost: 100, ReorderPoint: 5, LocationID: loc.ID,
	})
	require.NoError(t, err)

	// 初期数量は台帳経由で記帳され、戻り値にも反映される
	assert.Equal(t, int64(30), item.Quantity)
	assert.Equal(t, 3000.0, item.TotalValue)
	assert.Equal(t, StatusInStock, item.Status)

	movements, err := env.store.ListMovements(ctx, MovementFilter{SKU: "PART-001"})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, MovementReceipt, movements[0].Type)
	assert.Equal(t, "INITIAL", movements[0].Reference)
	assert.Equal(t, "catalog", movements[0].PerformedBy)

	li, err := env.store.GetLocationInventory(ctx, loc.ID, "PART-001")
	require.NoError(t, err)
	assert.Equal(t, int64(30), li.Quantity)
}

func TestCatalogManager_RegisterItem_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		item *InventoryItem
	}{
		{"品目名欠落", &InventoryItem{Type: ItemTypeComponent}},
		{"無効なタイプ", &InventoryItem{Name: "品目", Type: ItemType("gadget")}},
		{"負の単価", &InventoryItem{Name: "品目", Type: ItemTypeComponent, UnitCost: -1}},
		{"負の初期数量", &InventoryItem{Name: "品目", Type: ItemTypeComponent, Quantity: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.catalog.RegisterItem(ctx, tt.item)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestCatalogManager_UpdateItem_QuantityIsLedgerOwned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	item := env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 30, 100, 5, loc.ID)

	patch := &InventoryItem{
		Name:         "改名した品目",
		Type:         ItemTypeComponent,
		UnitCost:     150,
		ReorderPoint: 10,
		Quantity:     9999, // 無視される
	}
	updated, err := env.catalog.UpdateItem(ctx, item.ID, patch)
	require.NoError(t, err)

	assert.Equal(t, "改名した品目", updated.Name)
	assert.Equal(t, 150.0, updated.UnitCost)
	assert.Equal(t, int64(10), updated.ReorderPoint)
	// 数量はマスター更新では変わらない
	assert.Equal(t, int64(30), updated.Quantity)
}

func TestCatalogManager_UpdateItem_PartialPatchKeepsNumericFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	item := env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 30, 100, 5, loc.ID)

	// 名称だけのパッチで単価・発注点・評価額が消えてはならない
	updated, err := env.catalog.UpdateItem(ctx, item.ID, &InventoryItem{Name: "改名した品目"})
	require.NoError(t, err)

	assert.Equal(t, "改名した品目", updated.Name)
	assert.Equal(t, 100.0, updated.UnitCost)
	assert.Equal(t, int64(5), updated.ReorderPoint)
	assert.Equal(t, 3000.0, updated.TotalValue)
}

func TestCatalogManager_DeleteItem_GuardedByActiveBOM(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	finished := env.mustRegisterItem(t, "DEV-100", ItemTypeFinishedGood, 0, 0, 2, loc.ID)

	bom, err := env.boms.Create(ctx, &BOM{
		ProductSKU:      "DEV-100",
		InventoryItemID: finished.ID,
		Components:      []BOMComponent{{SKU: "A", Quantity: 1, UnitCost: 1}},
	})
	require.NoError(t, err)

	err = env.catalog.DeleteItem(ctx, finished.ID)
	assert.ErrorIs(t, err, ErrLinkedEntityConflict)

	// 部品表を削除すれば品目も削除できる
	require.NoError(t, env.boms.Delete(ctx, bom.ID))
	require.NoError(t, env.catalog.DeleteItem(ctx, finished.ID))

	_, err = env.catalog.GetItem(ctx, finished.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestCatalogManager_ListLowStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loc := env.mustCreateLocation(t, "WH-01")
	env.mustRegisterItem(t, "OK-001", ItemTypeComponent, 100, 10, 5, loc.ID)
	env.mustRegisterItem(t, "LOW-001", ItemTypeComponent, 3, 10, 5, loc.ID)
	env.mustRegisterItem(t, "OUT-001", ItemTypeComponent, 0, 10, 5, loc.ID)

	low, err := env.catalog.ListLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)

	statuses := map[string]StockStatus{}
	for _, item := range low {
		statuses[item.SKU] = item.Status
	}
	assert.Equal(t, StatusLowStock, statuses["LOW-001"])
	assert.Equal(t, StatusOutOfStock, statuses["OUT-001"])
}

func TestCatalogManager_CreateLocation_DuplicateCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustCreateLocation(t, "WH-01")

	_, err := env.catalog.CreateLocation(ctx, &StockLocation{
		Code: "WH-01", Name: "重複ロケーション", Type: "warehouse",
	})
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestCatalogManager_CreateSupplier_DuplicateCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.catalog.CreateSupplier(ctx, &Supplier{
		Code: "SUP-001", Name: "サプライヤーA",
	})
	require.NoError(t, err)

	_, err = env.catalog.CreateSupplier(ctx, &Supplier{
		Code: "SUP-001", Name: "サプライヤーB",
	})
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestCatalogManager_ListLocationInventory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	wh := env.mustCreateLocation(t, "WH-01")
	line := env.mustCreateLocation(t, "LINE-01")
	env.mustRegisterItem(t, "PART-001", ItemTypeComponent, 50, 100, 5, wh.ID)

	_, err := env.engine.Apply(ctx, StockTransaction{
		Type: MovementTransfer, SKU: "PART-001", Quantity: 20,
		FromLocationID: wh.ID, ToLocationID: line.ID,
	})
	require.NoError(t, err)

	rows, err := env.catalog.ListLocationInventory(ctx, line.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "PART-001", rows[0].SKU)
	assert.Equal(t, int64(20), rows[0].Quantity)

	_, err = env.catalog.ListLocationInventory(ctx, "no-such-location")
	assert.ErrorIs(t, err, ErrLocationNotFound)
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, StatusOutOfStock, DeriveStatus(0, 5))
	assert.Equal(t, StatusOutOfStock, DeriveStatus(-1, 5))
	assert.Equal(t, StatusLowStock, DeriveStatus(5, 5))
	assert.Equal(t, StatusInStock, DeriveStatus(6, 5))
}
