package manufacturing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ProductionManager drives the production order state machine. Creation
// allocates component stock, completion consumes it and receives the
// finished good, cancellation releases it. Each transition is one
// storage transaction.
// 製造指図の状態機械を駆動する。作成時に構成部品を引き当て、完了時に
// 消費して完成品を入庫し、取消時に引当を解放する。各遷移は1つの
// ストレージトランザクションで行う。
type ProductionManager struct {
	store  Store       // ストレージ層
	engine *Engine     // 在庫トランザクションエンジン
	logger *zap.Logger // ログ
	config *Config     // 設定
}

// インターフェースを実装することを明示
var _ ProductionEngine = (*ProductionManager)(nil)

// NewProductionManager creates a new production manager
// 新しい製造マネージャーを作成
func NewProductionManager(store Store, engine *Engine, logger *zap.Logger, config *Config) *ProductionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config == nil {
		config = &Config{MovementPageSize: 100, SKUPrefix: "SKU"}
	}
	return &ProductionManager{
		store:  store,
		engine: engine,
		logger: logger,
		config: config,
	}
}

// CreateProductionOrderRequest is the input for a new production order
// 新規製造指図の入力
type CreateProductionOrderRequest struct {
	BOMID          string `json:"bomId"`
	Quantity       int64  `json:"quantity"`
	LocationID     string `json:"locationId,omitempty"`     // 完成品の入庫先（省略時はデフォルト）
	AllocationType string `json:"allocationType,omitempty"` // 引当方式
	Notes          string `json:"notes,omitempty"`
}

// CreateOrder creates a production order and allocates component stock.
// When any component lacks available stock the whole creation fails and
// nothing is reserved.
// 製造指図を作成し構成部品を引き当てる。1つでも利用可能在庫が不足する
// 場合、作成全体が失敗し何も予約されない。
func (pm *ProductionManager) CreateOrder(ctx context.Context, req CreateProductionOrderRequest) (*ProductionOrder, error) {
	if strings.TrimSpace(req.BOMID) == "" {
		return nil, NewValidationError("bomId", "部品表IDは必須です", req.BOMID)
	}
	if req.Quantity <= 0 {
		return nil, NewValidationError("quantity", "生産数量は正の値である必要があります", strconv.FormatInt(req.Quantity, 10))
	}

	var order *ProductionOrder
	err := pm.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		bom, err := tx.GetBOM(ctx, req.BOMID)
		if err != nil {
			return err
		}
		if bom.Status != BOMStatusActive {
			return NewValidationError("bomId", "無効な部品表では生産できません", bom.ID)
		}

		// 構成部品を引き当てる（利用可能数量 = 在庫 - 引当済み）
		requirements := ScaleComponents(bom, req.Quantity)
		for _, c := range requirements {
			item, err := tx.GetItemBySKUForUpdate(ctx, c.SKU)
			if err != nil {
				return err
			}
			if item.Available() < c.Quantity {
				return fmt.Errorf("%w: %s (必要: %d, 利用可能: %d)",
					ErrInsufficientComponentStock, c.SKU, c.Quantity, item.Available())
			}
			item.AllocatedQuantity += c.Quantity
			item.Recalculate()
			item.UpdatedAt = time.Now()
			if err := tx.UpdateItem(ctx, item); err != nil {
				return NewStorageError("update_item", "構成部品の引当更新に失敗しました", err)
			}
		}

		seq, err := tx.NextWorkOrderSequence(ctx)
		if err != nil {
			return NewStorageError("next_work_order_sequence", "指図番号の採番に失敗しました", err)
		}

		locationID := strings.TrimSpace(req.LocationID)
		if locationID == "" {
			locationID = pm.config.DefaultLocationID
		}
		if locationID != "" {
			if _, err := tx.GetLocation(ctx, locationID); err != nil {
				return err
			}
		}

		allocationType := req.AllocationType
		if allocationType == "" {
			allocationType = "automatic"
		}

		now := time.Now()
		order = &ProductionOrder{
			ID:              NewEntityID(),
			WorkOrderNumber: fmt.Sprintf("WO%04d", seq),
			BOMID:           bom.ID,
			ProductSKU:      bom.ProductSKU,
			Quantity:        req.Quantity,
			Status:          OrderStatusRequested,
			AllocationType:  allocationType,
			Allocations:     requirements,
			LocationID:      locationID,
			Notes:           req.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.CreateProductionOrder(ctx, order); err != nil {
			return NewStorageError("create_production_order", "製造指図の作成に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pm.logger.Info("製造指図作成完了",
		zap.String("order_id", order.ID),
		zap.String("work_order_number", order.WorkOrderNumber),
		zap.String("product_sku", order.ProductSKU),
		zap.Int64("quantity", order.Quantity),
	)

	return order, nil
}

// StartOrder moves an order from requested to in_production
// 指図を受付済みから生産中へ遷移
func (pm *ProductionManager) StartOrder(ctx context.Context, orderID string) (*ProductionOrder, error) {
	var order *ProductionOrder
	err := pm.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = tx.GetProductionOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderStatusRequested {
			return fmt.Errorf("%w: %s から生産を開始できません", ErrInvalidOrderState, order.Status)
		}
		order.Status = OrderStatusInProduction
		order.UpdatedAt = time.Now()
		if err := tx.UpdateProductionOrder(ctx, order); err != nil {
			return NewStorageError("update_production_order", "製造指図の更新に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pm.logger.Info("生産開始", zap.String("work_order_number", order.WorkOrderNumber))
	return order, nil
}

// CompleteOrder consumes the allocated components and receives the
// finished good, all inside one transaction. The finished good is valued
// at the consumed material cost divided by the produced quantity.
// A terminal order cannot be completed again.
// 引当済みの構成部品を消費し完成品を入庫する。全体を1つの
// トランザクションで行う。完成品は消費した材料費を実生産数量で
// 割った単価で評価する。終端状態の指図は再完了できない。
func (pm *ProductionManager) CompleteOrder(ctx context.Context, orderID string, quantityProduced int64) (*ProductionOrder, error) {
	var order *ProductionOrder
	err := pm.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = tx.GetProductionOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return fmt.Errorf("%w: %s の指図は完了できません", ErrInvalidOrderState, order.Status)
		}
		if quantityProduced <= 0 {
			quantityProduced = order.Quantity
		}

		// 作成時のスナップショットに基づいて引当を解放してから消費する。
		// 消費は各部品の主保管ロケーションから行う。
		var consumedCost float64
		for _, c := range order.Allocations {
			item, err := tx.GetItemBySKUForUpdate(ctx, c.SKU)
			if err != nil {
				return err
			}
			item.AllocatedQuantity -= c.Quantity
			if item.AllocatedQuantity < 0 {
				item.AllocatedQuantity = 0
			}
			item.Recalculate()
			item.UpdatedAt = time.Now()
			if err := tx.UpdateItem(ctx, item); err != nil {
				return NewStorageError("update_item", "構成部品の引当解放に失敗しました", err)
			}
			consumedCost += float64(c.Quantity) * item.UnitCost

			fromLocation := item.LocationID
			if fromLocation == "" {
				fromLocation = pm.config.DefaultLocationID
			}
			consume := StockTransaction{
				Type:           MovementConsumption,
				SKU:            c.SKU,
				Quantity:       c.Quantity,
				FromLocationID: fromLocation,
				Reference:      order.WorkOrderNumber,
				PerformedBy:    "production",
			}
			consume.Normalize()
			if err := consume.Validate(); err != nil {
				return err
			}
			if _, err := pm.engine.applyLocked(ctx, tx, consume); err != nil {
				return err
			}
		}

		unitCost := consumedCost / float64(quantityProduced)
		receipt := StockTransaction{
			Type:         MovementReceipt,
			SKU:          order.ProductSKU,
			Quantity:     quantityProduced,
			ToLocationID: order.LocationID,
			UnitCost:     &unitCost,
			Reference:    order.WorkOrderNumber,
			PerformedBy:  "production",
		}
		receipt.Normalize()
		if err := receipt.Validate(); err != nil {
			return err
		}
		if _, err := pm.engine.applyLocked(ctx, tx, receipt); err != nil {
			return err
		}

		now := time.Now()
		order.Status = OrderStatusCompleted
		order.QuantityProduced = quantityProduced
		order.CompletedAt = &now
		order.UpdatedAt = now
		if err := tx.UpdateProductionOrder(ctx, order); err != nil {
			return NewStorageError("update_production_order", "製造指図の更新に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pm.logger.Info("生産完了",
		zap.String("work_order_number", order.WorkOrderNumber),
		zap.String("product_sku", order.ProductSKU),
		zap.Int64("quantity_produced", order.QuantityProduced),
	)

	return order, nil
}

// CancelOrder releases the component allocations without any stock
// movement. A terminal order cannot be cancelled.
// 在庫移動を発生させずに構成部品の引当を解放する。
// 終端状態の指図は取消できない。
func (pm *ProductionManager) CancelOrder(ctx context.Context, orderID string) (*ProductionOrder, error) {
	var order *ProductionOrder
	err := pm.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = tx.GetProductionOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return fmt.Errorf("%w: %s の指図は取消できません", ErrInvalidOrderState, order.Status)
		}

		// 作成時のスナップショットに基づいて解放する
		for _, c := range order.Allocations {
			item, err := tx.GetItemBySKUForUpdate(ctx, c.SKU)
			if err != nil {
				return err
			}
			item.AllocatedQuantity -= c.Quantity
			if item.AllocatedQuantity < 0 {
				item.AllocatedQuantity = 0
			}
			item.Recalculate()
			item.UpdatedAt = time.Now()
			if err := tx.UpdateItem(ctx, item); err != nil {
				return NewStorageError("update_item", "構成部品の引当解放に失敗しました", err)
			}
		}

		order.Status = OrderStatusCancelled
		order.UpdatedAt = time.Now()
		if err := tx.UpdateProductionOrder(ctx, order); err != nil {
			return NewStorageError("update_production_order", "製造指図の更新に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pm.logger.Info("製造指図取消", zap.String("work_order_number", order.WorkOrderNumber))
	return order, nil
}

// GetOrder retrieves one production order
// 製造指図を1件取得
func (pm *ProductionManager) GetOrder(ctx context.Context, orderID string) (*ProductionOrder, error) {
	return pm.store.GetProductionOrder(ctx, orderID)
}

// ListOrders retrieves all production orders
// 製造指図を一覧取得
func (pm *ProductionManager) ListOrders(ctx context.Context) ([]ProductionOrder, error) {
	orders, err := pm.store.ListProductionOrders(ctx)
	if err != nil {
		return nil, NewStorageError("list_production_orders", "製造指図の取得に失敗しました", err)
	}
	return orders, nil
}
