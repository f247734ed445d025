package manufacturing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CatalogManager manages the item master, stock locations and suppliers.
// Item quantities are owned by the ledger; registration hands any opening
// stock to the transaction engine instead of writing quantities directly.
// 品目マスター・ロケーション・仕入先を管理する。数量は台帳が所有する
// ため、登録時の初期在庫は直接書かずトランザクションエンジンに渡す。
type CatalogManager struct {
	store  Store       // ストレージ層
	engine *Engine     // 在庫トランザクションエンジン
	logger *zap.Logger // ログ
	config *Config     // 設定
}

// NewCatalogManager creates a new catalog manager
// 新しいカタログマネージャーを作成
func NewCatalogManager(store Store, engine *Engine, logger *zap.Logger, config *Config) *CatalogManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config == nil {
		config = &Config{MovementPageSize: 100, SKUPrefix: "SKU"}
	}
	return &CatalogManager{
		store:  store,
		engine: engine,
		logger: logger,
		config: config,
	}
}

func validItemType(t ItemType) bool {
	switch t {
	case ItemTypeRawMaterial, ItemTypeComponent, ItemTypeFinishedGood, ItemTypeWorkInProgress:
		return true
	}
	return false
}

// RegisterItem creates an inventory item. An empty SKU is assigned from
// the sequence. An opening quantity is booked as a receipt movement with
// reference INITIAL so the audit ledger explains the starting stock.
// 在庫品目を作成する。SKUが空の場合は連番から採番する。初期数量は
// 参照INITIALの入庫として記帳し、監査台帳が初期在庫を説明できるように
// する。
func (cm *CatalogManager) RegisterItem(ctx context.Context, item *InventoryItem) (*InventoryItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, NewValidationError("name", "品目名は必須です", item.Name)
	}
	if !validItemType(item.Type) {
		return nil, NewValidationError("type", "無効な品目タイプです", string(item.Type))
	}
	if item.UnitCost < 0 {
		return nil, NewValidationError("unitCost", "単価は負の値にできません", fmt.Sprintf("%g", item.UnitCost))
	}
	if item.ReorderPoint < 0 {
		return nil, NewValidationError("reorderPoint", "発注点は負の値にできません", fmt.Sprintf("%d", item.ReorderPoint))
	}
	if item.Quantity < 0 {
		return nil, NewValidationError("quantity", "初期数量は負の値にできません", fmt.Sprintf("%d", item.Quantity))
	}

	openingQty := item.Quantity

	err := cm.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		item.SKU = strings.TrimSpace(item.SKU)
		if item.SKU == "" {
			seq, err := tx.NextSKUSequence(ctx)
			if err != nil {
				return NewStorageError("next_sku_sequence", "SKUの採番に失敗しました", err)
			}
			item.SKU = fmt.Sprintf("%s-%04d", cm.config.SKUPrefix, seq)
		} else {
			if _, err := tx.GetItemBySKU(ctx, item.SKU); err == nil {
				return fmt.Errorf("%w: %s", ErrDuplicateCode, item.SKU)
			} else if !errors.Is(err, ErrItemNotFound) {
				return err
			}
		}

		if item.LocationID == "" {
			item.LocationID = cm.config.DefaultLocationID
		}
		if item.LocationID != "" {
			if _, err := tx.GetLocation(ctx, item.LocationID); err != nil {
				return err
			}
		}

		// 数量は台帳経由でのみ変わる
		item.ID = NewEntityID()
		item.Quantity = 0
		item.AllocatedQuantity = 0
		item.Recalculate()
		now := time.Now()
		item.CreatedAt = now
		item.UpdatedAt = now

		if err := tx.CreateItem(ctx, item); err != nil {
			return NewStorageError("create_item", "在庫品目の作成に失敗しました", err)
		}

		if openingQty > 0 {
			if item.LocationID == "" {
				return NewValidationError("locationId", "初期数量にはロケーションが必要です", "")
			}
			unitCost := item.UnitCost
			receipt := StockTransaction{
				Type:         MovementReceipt,
				SKU:          item.SKU,
				Quantity:     openingQty,
				ToLocationID: item.LocationID,
				UnitCost:     &unitCost,
				Reference:    "INITIAL",
				PerformedBy:  "catalog",
			}
			receipt.Normalize()
			if err := receipt.Validate(); err != nil {
				return err
			}
			if _, err := cm.engine.applyLocked(ctx, tx, receipt); err != nil {
				return err
			}
			// applyLockedがマスターを更新済みのため読み直す
			refreshed, err := tx.GetItemBySKU(ctx, item.SKU)
			if err != nil {
				return err
			}
			*item = *refreshed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cm.logger.Info("在庫品目登録完了",
		zap.String("item_id", item.ID),
		zap.String("sku", item.SKU),
		zap.String("name", item.Name),
		zap.Int64("opening_quantity", openingQty),
	)

	return item, nil
}

// UpdateItem updates the writable master fields of an item. Zero-value
// patch fields leave the item unchanged. Quantity and allocation are
// ledger-owned and cannot be set here.
// 品目マスターの入力項目を更新する。ゼロ値の項目は変更しない。
// 数量と引当は台帳が所有するためここでは変更できない。
func (cm *CatalogManager) UpdateItem(ctx context.Context, id string, patch *InventoryItem) (*InventoryItem, error) {
	if patch.Type != "" && !validItemType(patch.Type) {
		return nil, NewValidationError("type", "無効な品目タイプです", string(patch.Type))
	}
	if patch.UnitCost < 0 {
		return nil, NewValidationError("unitCost", "単価は負の値にできません", fmt.Sprintf("%g", patch.UnitCost))
	}

	var updated *InventoryItem
	err := cm.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		item, err := tx.GetItem(ctx, id)
		if err != nil {
			return err
		}

		if patch.Name != "" {
			item.Name = patch.Name
		}
		if patch.Category != "" {
			item.Category = patch.Category
		}
		if patch.Type != "" {
			item.Type = patch.Type
		}
		if patch.Supplier != "" {
			item.Supplier = patch.Supplier
		}
		if patch.LocationID != "" {
			if _, err := tx.GetLocation(ctx, patch.LocationID); err != nil {
				return err
			}
			item.LocationID = patch.LocationID
		}
		if patch.UnitCost > 0 {
			item.UnitCost = patch.UnitCost
		}
		if patch.ReorderPoint > 0 {
			item.ReorderPoint = patch.ReorderPoint
		}
		if patch.ReorderQty > 0 {
			item.ReorderQty = patch.ReorderQty
		}
		item.Recalculate()
		item.UpdatedAt = time.Now()

		if err := tx.UpdateItem(ctx, item); err != nil {
			return NewStorageError("update_item", "在庫品目の更新に失敗しました", err)
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	cm.logger.Info("在庫品目更新完了", zap.String("sku", updated.SKU))
	return updated, nil
}

// GetItem retrieves one item by ID
// 品目をIDで1件取得
func (cm *CatalogManager) GetItem(ctx context.Context, id string) (*InventoryItem, error) {
	return cm.store.GetItem(ctx, id)
}

// GetItemBySKU retrieves one item by SKU
// 品目をSKUで1件取得
func (cm *CatalogManager) GetItemBySKU(ctx context.Context, sku string) (*InventoryItem, error) {
	return cm.store.GetItemBySKU(ctx, sku)
}

// ListItems retrieves all items
// 品目を一覧取得
func (cm *CatalogManager) ListItems(ctx context.Context) ([]InventoryItem, error) {
	items, err := cm.store.ListItems(ctx)
	if err != nil {
		return nil, NewStorageError("list_items", "在庫品目の取得に失敗しました", err)
	}
	return items, nil
}

// ListLowStock retrieves items whose available quantity is at or below
// the reorder point
// 利用可能数量が発注点以下の品目を一覧取得
func (cm *CatalogManager) ListLowStock(ctx context.Context) ([]InventoryItem, error) {
	items, err := cm.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]InventoryItem, 0)
	for _, item := range items {
		if item.Status != StatusInStock {
			low = append(low, item)
		}
	}
	return low, nil
}

// DeleteItem removes an item unless an active bill of materials still
// references it
// 有効な部品表から参照されていない限り品目を削除
func (cm *CatalogManager) DeleteItem(ctx context.Context, id string) error {
	err := cm.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		item, err := tx.GetItem(ctx, id)
		if err != nil {
			return err
		}
		count, err := tx.CountActiveBOMsByItem(ctx, id)
		if err != nil {
			return NewStorageError("count_active_boms", "部品表参照の確認に失敗しました", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s は%d件の部品表から参照されています", ErrLinkedEntityConflict, item.SKU, count)
		}
		if err := tx.DeleteItem(ctx, id); err != nil {
			return NewStorageError("delete_item", "在庫品目の削除に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cm.logger.Info("在庫品目削除完了", zap.String("item_id", id))
	return nil
}

// CreateLocation registers a stock location with a unique code
// 一意なコードを持つロケーションを登録
func (cm *CatalogManager) CreateLocation(ctx context.Context, loc *StockLocation) (*StockLocation, error) {
	loc.Code = strings.TrimSpace(loc.Code)
	if loc.Code == "" {
		return nil, NewValidationError("code", "ロケーションコードは必須です", loc.Code)
	}
	if strings.TrimSpace(loc.Name) == "" {
		return nil, NewValidationError("name", "ロケーション名は必須です", loc.Name)
	}

	err := cm.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		locations, err := tx.ListLocations(ctx)
		if err != nil {
			return NewStorageError("list_locations", "ロケーションの取得に失敗しました", err)
		}
		for _, existing := range locations {
			if existing.Code == loc.Code {
				return fmt.Errorf("%w: %s", ErrDuplicateCode, loc.Code)
			}
		}

		loc.ID = NewEntityID()
		if loc.Status == "" {
			loc.Status = "active"
		}
		loc.CreatedAt = time.Now()
		if err := tx.CreateLocation(ctx, loc); err != nil {
			return NewStorageError("create_location", "ロケーションの作成に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cm.logger.Info("ロケーション登録完了",
		zap.String("location_id", loc.ID),
		zap.String("code", loc.Code),
	)
	return loc, nil
}

// GetLocation retrieves one location
// ロケーションを1件取得
func (cm *CatalogManager) GetLocation(ctx context.Context, id string) (*StockLocation, error) {
	return cm.store.GetLocation(ctx, id)
}

// ListLocations retrieves all locations
// ロケーションを一覧取得
func (cm *CatalogManager) ListLocations(ctx context.Context) ([]StockLocation, error) {
	locations, err := cm.store.ListLocations(ctx)
	if err != nil {
		return nil, NewStorageError("list_locations", "ロケーションの取得に失敗しました", err)
	}
	return locations, nil
}

// ListLocationInventory retrieves the per-SKU stock held at one location
// ロケーションが保持するSKU別在庫を一覧取得
func (cm *CatalogManager) ListLocationInventory(ctx context.Context, locationID string) ([]LocationInventory, error) {
	if _, err := cm.store.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}
	rows, err := cm.store.ListLocationInventoryByLocation(ctx, locationID)
	if err != nil {
		return nil, NewStorageError("list_location_inventory", "ロケーション在庫の取得に失敗しました", err)
	}
	return rows, nil
}

// CreateSupplier registers a supplier with a unique code
// 一意なコードを持つ仕入先を登録
func (cm *CatalogManager) CreateSupplier(ctx context.Context, s *Supplier) (*Supplier, error) {
	s.Code = strings.TrimSpace(s.Code)
	if s.Code == "" {
		return nil, NewValidationError("code", "仕入先コードは必須です", s.Code)
	}
	if strings.TrimSpace(s.Name) == "" {
		return nil, NewValidationError("name", "仕入先名は必須です", s.Name)
	}

	err := cm.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		suppliers, err := tx.ListSuppliers(ctx)
		if err != nil {
			return NewStorageError("list_suppliers", "仕入先の取得に失敗しました", err)
		}
		for _, existing := range suppliers {
			if existing.Code == s.Code {
				return fmt.Errorf("%w: %s", ErrDuplicateCode, s.Code)
			}
		}

		s.ID = NewEntityID()
		if s.Status == "" {
			s.Status = "active"
		}
		s.CreatedAt = time.Now()
		if err := tx.CreateSupplier(ctx, s); err != nil {
			return NewStorageError("create_supplier", "仕入先の作成に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cm.logger.Info("仕入先登録完了", zap.String("code", s.Code), zap.String("name", s.Name))
	return s, nil
}

// GetSupplier retrieves one supplier
// 仕入先を1件取得
func (cm *CatalogManager) GetSupplier(ctx context.Context, id string) (*Supplier, error) {
	return cm.store.GetSupplier(ctx, id)
}

// ListSuppliers retrieves all suppliers
// 仕入先を一覧取得
func (cm *CatalogManager) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	suppliers, err := cm.store.ListSuppliers(ctx)
	if err != nil {
		return nil, NewStorageError("list_suppliers", "仕入先の取得に失敗しました", err)
	}
	return suppliers, nil
}
