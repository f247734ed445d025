package manufacturing

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Engine applies stock transactions against the ledger. Every Apply call
// runs inside one storage transaction so the movement record, the location
// rows and the master aggregate never diverge.
// 在庫トランザクションを台帳へ適用するエンジン。Applyは常に1つの
// ストレージトランザクション内で実行され、移動記録・ロケーション在庫・
// マスター集計が乖離しないことを保証する。
type Engine struct {
	store  Store       // ストレージ層
	logger *zap.Logger // ログ
	config *Config     // 設定
}

// インターフェースを実装することを明示
var _ StockEngine = (*Engine)(nil)

// Config holds configuration for the manufacturing engines
// 製造エンジンの設定を保持
type Config struct {
	DefaultLocationID string `yaml:"default_location_id"` // デフォルトロケーション
	MovementPageSize  int    `yaml:"movement_page_size"`  // 移動一覧のデフォルト件数
	SKUPrefix         string `yaml:"sku_prefix"`          // 自動採番SKUの接頭辞
}

// NewEngine creates a new stock transaction engine
// 新しい在庫トランザクションエンジンを作成
func NewEngine(store Store, logger *zap.Logger, config *Config) *Engine {
	if config == nil {
		config = &Config{
			MovementPageSize: 100,
			SKUPrefix:        "SKU",
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		store:  store,
		logger: logger,
		config: config,
	}
}

// Apply validates and applies one stock transaction atomically
// 1件の在庫トランザクションを検証しアトミックに適用
func (e *Engine) Apply(ctx context.Context, req StockTransaction) (*StockMovement, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var movement *StockMovement
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		movement, err = e.applyLocked(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("在庫トランザクション適用完了",
		zap.String("movement_id", movement.MovementID),
		zap.String("type", string(req.Type)),
		zap.String("sku", req.SKU),
		zap.Int64("quantity", movement.Quantity),
		zap.String("reference", req.Reference),
	)

	return movement, nil
}

// applyLocked applies a validated transaction inside an already-open
// storage transaction. Callers that drive several transactions as one
// unit (production completion, order shipping) call this directly.
// 検証済みトランザクションを、既に開いているストレージトランザクション
// 内で適用する。複数件を1単位として扱う呼び出し元はこれを直接使う。
func (e *Engine) applyLocked(ctx context.Context, tx Tx, req StockTransaction) (*StockMovement, error) {
	item, err := tx.GetItemBySKUForUpdate(ctx, req.SKU)
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case MovementReceipt:
		// 入庫時に単価が指定されていればマスター単価を更新
		if req.UnitCost != nil {
			item.UnitCost = *req.UnitCost
		}
		if _, err := e.applyLocationDelta(ctx, tx, item, req.ToLocationID, req.Quantity); err != nil {
			return nil, err
		}

	case MovementSale, MovementConsumption:
		if _, err := e.applyLocationDelta(ctx, tx, item, req.FromLocationID, -req.Quantity); err != nil {
			return nil, err
		}

	case MovementTransfer:
		// 出庫側を先に処理し、不足時はロケーションを作らない
		if _, err := e.applyLocationDelta(ctx, tx, item, req.FromLocationID, -req.Quantity); err != nil {
			return nil, err
		}
		if _, err := e.applyLocationDelta(ctx, tx, item, req.ToLocationID, req.Quantity); err != nil {
			return nil, err
		}

	case MovementAdjustment:
		if _, err := e.applyLocationDelta(ctx, tx, item, req.LocationID, req.Delta); err != nil {
			return nil, err
		}

	default:
		return nil, ErrInvalidTransactionType
	}

	// マスター集計は常にロケーション在庫の合計から再導出
	total, err := tx.SumLocationQuantity(ctx, item.SKU)
	if err != nil {
		return nil, NewStorageError("sum_location_quantity", "ロケーション在庫の集計に失敗しました", err)
	}
	item.Quantity = total
	item.Recalculate()
	item.UpdatedAt = time.Now()
	if err := tx.UpdateItem(ctx, item); err != nil {
		return nil, NewStorageError("update_item", "品目マスターの更新に失敗しました", err)
	}

	movement := &StockMovement{
		Date:         time.Now(),
		Type:         req.Type,
		ItemName:     item.Name,
		SKU:          item.SKU,
		Quantity:     e.movementQuantity(req),
		FromLocation: req.FromLocationID,
		ToLocation:   req.ToLocationID,
		Reference:    req.Reference,
		PerformedBy:  req.PerformedBy,
		Notes:        req.Notes,
	}
	if err := tx.AppendMovement(ctx, movement); err != nil {
		return nil, NewStorageError("append_movement", "在庫移動の記録に失敗しました", err)
	}

	return movement, nil
}

// movementQuantity returns the signed quantity recorded on the ledger.
// Transfers are recorded as a positive magnitude because the net change
// to the master aggregate is zero.
// 台帳に記録する符号付き数量。移動はマスターへの正味変化が0のため
// 正の数量で記録する。
func (e *Engine) movementQuantity(req StockTransaction) int64 {
	switch req.Type {
	case MovementTransfer:
		return req.Quantity
	case MovementAdjustment:
		return req.Delta
	default:
		return req.signedDelta()
	}
}

// applyLocationDelta upserts one (location, SKU) row by a signed delta.
// A withdrawal that would drive the row negative fails with
// ErrInsufficientStock before any write.
// ロケーション×SKUの在庫行へ符号付き変化量をupsertする。
// 行が負になる出庫は書き込み前にErrInsufficientStockで失敗する。
func (e *Engine) applyLocationDelta(ctx context.Context, tx Tx, item *InventoryItem, locationID string, delta int64) (*LocationInventory, error) {
	li, err := tx.GetLocationInventoryForUpdate(ctx, locationID, item.SKU)
	if err != nil {
		if !errors.Is(err, ErrLocationInventoryNotFound) {
			return nil, err
		}
		// 初回の移動でロケーション在庫行を遅延作成する
		if _, err := tx.GetLocation(ctx, locationID); err != nil {
			return nil, err
		}
		li = &LocationInventory{
			LocationID:   locationID,
			SKU:          item.SKU,
			ItemName:     item.Name,
			Quantity:     0,
			UnitCost:     item.UnitCost,
			ReorderPoint: item.ReorderPoint,
		}
		if li.Quantity+delta < 0 {
			return nil, ErrInsufficientStock
		}
		li.Quantity += delta
		li.UnitCost = item.UnitCost
		li.RecalculateStatus()
		li.UpdatedAt = time.Now()
		if err := tx.CreateLocationInventory(ctx, li); err != nil {
			return nil, NewStorageError("create_location_inventory", "ロケーション在庫の作成に失敗しました", err)
		}
		return li, nil
	}

	if li.Quantity+delta < 0 {
		return nil, ErrInsufficientStock
	}
	li.Quantity += delta
	li.UnitCost = item.UnitCost
	li.RecalculateStatus()
	li.UpdatedAt = time.Now()
	if err := tx.UpdateLocationInventory(ctx, li); err != nil {
		return nil, NewStorageError("update_location_inventory", "ロケーション在庫の更新に失敗しました", err)
	}
	return li, nil
}

// ReconcileResult is the corrected master summary for one SKU
// 1SKUの修正後マスター集計
type ReconcileResult struct {
	SKU        string      `json:"sku"`
	Quantity   int64       `json:"quantity"`
	TotalValue float64     `json:"totalValue"`
	Status     StockStatus `json:"status"`
	Corrected  bool        `json:"corrected"` // ドリフトを修正したかどうか
}

// Reconcile recomputes the master aggregate of one SKU from its location
// rows and repairs any drift. Running it twice in a row is a no-op.
// 1SKUのマスター集計をロケーション在庫から再計算しドリフトを修正する。
// 2回連続で実行しても結果は変わらない。
func (e *Engine) Reconcile(ctx context.Context, sku string) (*ReconcileResult, error) {
	var result *ReconcileResult
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		item, err := tx.GetItemBySKUForUpdate(ctx, sku)
		if err != nil {
			return err
		}

		total, err := tx.SumLocationQuantity(ctx, sku)
		if err != nil {
			return NewStorageError("sum_location_quantity", "ロケーション在庫の集計に失敗しました", err)
		}

		corrected := item.Quantity != total
		item.Quantity = total
		item.Recalculate()
		if corrected {
			item.UpdatedAt = time.Now()
			if err := tx.UpdateItem(ctx, item); err != nil {
				return NewStorageError("update_item", "品目マスターの更新に失敗しました", err)
			}
		}

		result = &ReconcileResult{
			SKU:        item.SKU,
			Quantity:   item.Quantity,
			TotalValue: item.TotalValue,
			Status:     item.Status,
			Corrected:  corrected,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Corrected {
		e.logger.Warn("マスター集計のドリフトを修正しました",
			zap.String("sku", result.SKU),
			zap.Int64("quantity", result.Quantity),
		)
	}

	return result, nil
}

// GetMovements lists ledger entries matching the filter, newest first
// 条件に一致する台帳レコードを新しい順に一覧
func (e *Engine) GetMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	if filter.Limit <= 0 {
		filter.Limit = e.config.MovementPageSize
	}
	movements, err := e.store.ListMovements(ctx, filter)
	if err != nil {
		return nil, NewStorageError("list_movements", "在庫移動の取得に失敗しました", err)
	}
	return movements, nil
}
