package manufacturing

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ScaleComponents expands a bill of materials to the component quantities
// required to produce orderQty units. Line order is preserved.
// 部品表を指図数量分の所要量へ展開する。行の順序は維持される。
func ScaleComponents(bom *BOM, orderQty int64) []ComponentRequirement {
	reqs := make([]ComponentRequirement, 0, len(bom.Components))
	for _, c := range bom.Components {
		reqs = append(reqs, ComponentRequirement{
			SKU:      c.SKU,
			Name:     c.Name,
			Quantity: c.Quantity * orderQty,
			UnitCost: c.UnitCost,
		})
	}
	return reqs
}

// TotalMaterialCost sums the per-line material cost of a component list
// 構成部品リストの材料費合計
func TotalMaterialCost(components []BOMComponent) float64 {
	var total float64
	for _, c := range components {
		total += float64(c.Quantity) * c.UnitCost
	}
	return total
}

// BOMManager manages bills of materials
// 部品表を管理
type BOMManager struct {
	store  Store       // ストレージ層
	logger *zap.Logger // ログ
}

// NewBOMManager creates a new BOM manager
// 新しい部品表マネージャーを作成
func NewBOMManager(store Store, logger *zap.Logger) *BOMManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BOMManager{store: store, logger: logger}
}

// validate checks the writable fields of a bill of materials.
// Cost fields are ignored here because they are always recomputed.
// 部品表の入力項目を検証する。原価項目は常に再計算されるため対象外。
func (bm *BOMManager) validate(b *BOM) error {
	if strings.TrimSpace(b.ProductSKU) == "" {
		return NewValidationError("productSku", "完成品SKUは必須です", b.ProductSKU)
	}
	if strings.TrimSpace(b.InventoryItemID) == "" {
		return NewValidationError("inventoryItemId", "完成品の品目IDは必須です", b.InventoryItemID)
	}
	if len(b.Components) == 0 {
		return NewValidationError("components", "構成部品は1件以上必要です", "")
	}
	for _, c := range b.Components {
		if strings.TrimSpace(c.SKU) == "" {
			return NewValidationError("components.sku", "構成部品のSKUは必須です", c.SKU)
		}
		if c.Quantity <= 0 {
			return NewValidationError("components.quantity", "構成部品の所要量は正の値である必要があります", c.SKU)
		}
		if c.UnitCost < 0 {
			return NewValidationError("components.unitCost", "構成部品の単価は負の値にできません", c.SKU)
		}
	}
	if b.LaborCost < 0 {
		return NewValidationError("laborCost", "労務費は負の値にできません", "")
	}
	if b.OverheadCost < 0 {
		return NewValidationError("overheadCost", "間接費は負の値にできません", "")
	}
	return nil
}

// recost rewrites every derived cost field from the component lines
// 構成部品の行から導出原価をすべて再計算
func (bm *BOMManager) recost(b *BOM) {
	for i := range b.Components {
		b.Components[i].TotalCost = float64(b.Components[i].Quantity) * b.Components[i].UnitCost
	}
	b.TotalMaterialCost = TotalMaterialCost(b.Components)
	b.TotalCost = b.TotalMaterialCost + b.LaborCost + b.OverheadCost
}

// Create registers a bill of materials for an existing finished-good item
// 既存の完成品品目に対して部品表を登録
func (bm *BOMManager) Create(ctx context.Context, b *BOM) (*BOM, error) {
	if err := bm.validate(b); err != nil {
		return nil, err
	}

	err := bm.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		item, err := tx.GetItem(ctx, b.InventoryItemID)
		if err != nil {
			return err
		}
		if b.ProductName == "" {
			b.ProductName = item.Name
		}

		b.ID = NewEntityID()
		if b.Status == "" {
			b.Status = BOMStatusActive
		}
		if b.Version == "" {
			b.Version = "1.0"
		}
		bm.recost(b)
		now := time.Now()
		b.CreatedAt = now
		b.UpdatedAt = now

		if err := tx.CreateBOM(ctx, b); err != nil {
			return NewStorageError("create_bom", "部品表の作成に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	bm.logger.Info("部品表作成完了",
		zap.String("bom_id", b.ID),
		zap.String("product_sku", b.ProductSKU),
		zap.Int("components", len(b.Components)),
		zap.Float64("total_cost", b.TotalCost),
	)

	return b, nil
}

// Update replaces the writable fields of an existing bill of materials
// 既存の部品表の入力項目を置き換える
func (bm *BOMManager) Update(ctx context.Context, id string, b *BOM) (*BOM, error) {
	if err := bm.validate(b); err != nil {
		return nil, err
	}

	var updated *BOM
	err := bm.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetBOM(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.GetItem(ctx, b.InventoryItemID); err != nil {
			return err
		}

		current.ProductSKU = b.ProductSKU
		current.ProductName = b.ProductName
		current.InventoryItemID = b.InventoryItemID
		current.Components = b.Components
		current.LaborCost = b.LaborCost
		current.OverheadCost = b.OverheadCost
		if b.Version != "" {
			current.Version = b.Version
		}
		if b.Status != "" {
			current.Status = b.Status
		}
		bm.recost(current)
		current.UpdatedAt = time.Now()

		if err := tx.UpdateBOM(ctx, current); err != nil {
			return NewStorageError("update_bom", "部品表の更新に失敗しました", err)
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	bm.logger.Info("部品表更新完了", zap.String("bom_id", updated.ID))
	return updated, nil
}

// Get retrieves one bill of materials
// 部品表を1件取得
func (bm *BOMManager) Get(ctx context.Context, id string) (*BOM, error) {
	return bm.store.GetBOM(ctx, id)
}

// List retrieves all bills of materials
// 部品表を一覧取得
func (bm *BOMManager) List(ctx context.Context) ([]BOM, error) {
	boms, err := bm.store.ListBOMs(ctx)
	if err != nil {
		return nil, NewStorageError("list_boms", "部品表の取得に失敗しました", err)
	}
	return boms, nil
}

// Delete removes a bill of materials
// 部品表を削除
func (bm *BOMManager) Delete(ctx context.Context, id string) error {
	err := bm.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetBOM(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteBOM(ctx, id); err != nil {
			return NewStorageError("delete_bom", "部品表の削除に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	bm.logger.Info("部品表削除完了", zap.String("bom_id", id))
	return nil
}
