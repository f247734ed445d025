package manufacturing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OrderManager handles sales and purchase orders. Shipping a sales order
// and receiving a purchase order are the only points where these orders
// touch stock, and each runs as one transaction covering every line.
// 受注と発注を扱う。受注の出荷と発注の入荷だけが在庫に触れる箇所で、
// いずれも全明細を1つのトランザクションで処理する。
type OrderManager struct {
	store  Store       // ストレージ層
	engine *Engine     // 在庫トランザクションエンジン
	logger *zap.Logger // ログ
}

// NewOrderManager creates a new order manager
// 新しいオーダーマネージャーを作成
func NewOrderManager(store Store, engine *Engine, logger *zap.Logger) *OrderManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderManager{store: store, engine: engine, logger: logger}
}

// validateLines checks line items shared by sales and purchase orders
// 受注・発注で共通の明細検証
func validateLines(lines []OrderLine) error {
	if len(lines) == 0 {
		return NewValidationError("lines", "明細は1件以上必要です", "")
	}
	for _, l := range lines {
		if strings.TrimSpace(l.SKU) == "" {
			return NewValidationError("lines.sku", "明細のSKUは必須です", l.SKU)
		}
		if l.Quantity <= 0 {
			return NewValidationError("lines.quantity", "明細の数量は正の値である必要があります", l.SKU)
		}
		if l.UnitPrice < 0 {
			return NewValidationError("lines.unitPrice", "明細の単価は負の値にできません", l.SKU)
		}
	}
	return nil
}

// recalcLineTotals returns the subtotal of the given lines
// 明細の小計を返す
func recalcLineTotals(lines []OrderLine) float64 {
	var subtotal float64
	for _, l := range lines {
		subtotal += float64(l.Quantity) * l.UnitPrice
	}
	return subtotal
}

// newOrderNumber builds a short human-readable order number
// 短い可読なオーダー番号を生成
func newOrderNumber(prefix string) string {
	id := NewEntityID()
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(id[:8]))
}

// CreateSalesOrder registers a sales order without touching stock
// 在庫に触れずに受注を登録
func (om *OrderManager) CreateSalesOrder(ctx context.Context, o *SalesOrder) (*SalesOrder, error) {
	if err := validateLines(o.Lines); err != nil {
		return nil, err
	}
	if strings.TrimSpace(o.LocationID) == "" {
		return nil, NewValidationError("locationId", "出荷元ロケーションは必須です", o.LocationID)
	}

	err := om.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetLocation(ctx, o.LocationID); err != nil {
			return err
		}
		for i := range o.Lines {
			item, err := tx.GetItemBySKU(ctx, o.Lines[i].SKU)
			if err != nil {
				return err
			}
			if o.Lines[i].ItemName == "" {
				o.Lines[i].ItemName = item.Name
			}
		}

		o.ID = NewEntityID()
		if o.OrderNumber == "" {
			o.OrderNumber = newOrderNumber("SO")
		}
		if o.Status == "" {
			o.Status = SalesStatusConfirmed
		}
		o.Subtotal = recalcLineTotals(o.Lines)
		o.Total = o.Subtotal
		now := time.Now()
		o.CreatedAt = now
		o.UpdatedAt = now

		if err := tx.CreateSalesOrder(ctx, o); err != nil {
			return NewStorageError("create_sales_order", "受注の作成に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	om.logger.Info("受注作成完了",
		zap.String("order_number", o.OrderNumber),
		zap.String("customer", o.Customer),
		zap.Float64("total", o.Total),
	)
	return o, nil
}

// ShipSalesOrder ships every line of a sales order as sale transactions.
// Any line with insufficient stock rolls back the whole shipment.
// An already shipped or cancelled order cannot be shipped.
// 受注の全明細を販売トランザクションとして出荷する。1明細でも在庫が
// 不足すれば出荷全体がロールバックされる。出荷済み・取消済みの受注は
// 出荷できない。
func (om *OrderManager) ShipSalesOrder(ctx context.Context, id string) (*SalesOrder, error) {
	var order *SalesOrder
	err := om.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = tx.GetSalesOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status == SalesStatusShipped || order.Status == SalesStatusCancelled {
			return fmt.Errorf("%w: %s の受注は出荷できません", ErrInvalidOrderState, order.Status)
		}

		for _, line := range order.Lines {
			sale := StockTransaction{
				Type:           MovementSale,
				SKU:            line.SKU,
				Quantity:       line.Quantity,
				FromLocationID: order.LocationID,
				Reference:      order.OrderNumber,
				PerformedBy:    "sales",
			}
			sale.Normalize()
			if err := sale.Validate(); err != nil {
				return err
			}
			if _, err := om.engine.applyLocked(ctx, tx, sale); err != nil {
				return err
			}
		}

		now := time.Now()
		order.Status = SalesStatusShipped
		order.ShippedAt = &now
		order.UpdatedAt = now
		if err := tx.UpdateSalesOrder(ctx, order); err != nil {
			return NewStorageError("update_sales_order", "受注の更新に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	om.logger.Info("受注出荷完了", zap.String("order_number", order.OrderNumber))
	return order, nil
}

// GetSalesOrder retrieves one sales order
// 受注を1件取得
func (om *OrderManager) GetSalesOrder(ctx context.Context, id string) (*SalesOrder, error) {
	return om.store.GetSalesOrder(ctx, id)
}

// ListSalesOrders retrieves all sales orders
// 受注を一覧取得
func (om *OrderManager) ListSalesOrders(ctx context.Context) ([]SalesOrder, error) {
	orders, err := om.store.ListSalesOrders(ctx)
	if err != nil {
		return nil, NewStorageError("list_sales_orders", "受注の取得に失敗しました", err)
	}
	return orders, nil
}

// CreatePurchaseOrder registers a purchase order without touching stock
// 在庫に触れずに発注を登録
func (om *OrderManager) CreatePurchaseOrder(ctx context.Context, o *PurchaseOrder) (*PurchaseOrder, error) {
	if err := validateLines(o.Lines); err != nil {
		return nil, err
	}
	if strings.TrimSpace(o.LocationID) == "" {
		return nil, NewValidationError("locationId", "入荷先ロケーションは必須です", o.LocationID)
	}

	err := om.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetLocation(ctx, o.LocationID); err != nil {
			return err
		}
		for i := range o.Lines {
			item, err := tx.GetItemBySKU(ctx, o.Lines[i].SKU)
			if err != nil {
				return err
			}
			if o.Lines[i].ItemName == "" {
				o.Lines[i].ItemName = item.Name
			}
		}

		o.ID = NewEntityID()
		if o.OrderNumber == "" {
			o.OrderNumber = newOrderNumber("PO")
		}
		if o.Status == "" {
			o.Status = PurchaseStatusOrdered
		}
		o.Subtotal = recalcLineTotals(o.Lines)
		o.Total = o.Subtotal
		now := time.Now()
		o.CreatedAt = now
		o.UpdatedAt = now

		if err := tx.CreatePurchaseOrder(ctx, o); err != nil {
			return NewStorageError("create_purchase_order", "発注の作成に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	om.logger.Info("発注作成完了",
		zap.String("order_number", o.OrderNumber),
		zap.String("supplier", o.Supplier),
		zap.Float64("total", o.Total),
	)
	return o, nil
}

// ReceivePurchaseOrder receives every line of a purchase order as receipt
// transactions at the line unit price. An already received or cancelled
// order cannot be received.
// 発注の全明細を明細単価での入庫トランザクションとして入荷する。
// 入荷済み・取消済みの発注は入荷できない。
func (om *OrderManager) ReceivePurchaseOrder(ctx context.Context, id string) (*PurchaseOrder, error) {
	var order *PurchaseOrder
	err := om.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = tx.GetPurchaseOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status == PurchaseStatusReceived || order.Status == PurchaseStatusCancelled {
			return fmt.Errorf("%w: %s の発注は入荷できません", ErrInvalidOrderState, order.Status)
		}

		for _, line := range order.Lines {
			unitCost := line.UnitPrice
			receipt := StockTransaction{
				Type:         MovementReceipt,
				SKU:          line.SKU,
				Quantity:     line.Quantity,
				ToLocationID: order.LocationID,
				UnitCost:     &unitCost,
				Reference:    order.OrderNumber,
				PerformedBy:  "purchasing",
			}
			receipt.Normalize()
			if err := receipt.Validate(); err != nil {
				return err
			}
			if _, err := om.engine.applyLocked(ctx, tx, receipt); err != nil {
				return err
			}
		}

		now := time.Now()
		order.Status = PurchaseStatusReceived
		order.ReceivedAt = &now
		order.UpdatedAt = now
		if err := tx.UpdatePurchaseOrder(ctx, order); err != nil {
			return NewStorageError("update_purchase_order", "発注の更新に失敗しました", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	om.logger.Info("発注入荷完了", zap.String("order_number", order.OrderNumber))
	return order, nil
}

// GetPurchaseOrder retrieves one purchase order
// 発注を1件取得
func (om *OrderManager) GetPurchaseOrder(ctx context.Context, id string) (*PurchaseOrder, error) {
	return om.store.GetPurchaseOrder(ctx, id)
}

// ListPurchaseOrders retrieves all purchase orders
// 発注を一覧取得
func (om *OrderManager) ListPurchaseOrders(ctx context.Context) ([]PurchaseOrder, error) {
	orders, err := om.store.ListPurchaseOrders(ctx)
	if err != nil {
		return nil, NewStorageError("list_purchase_orders", "発注の取得に失敗しました", err)
	}
	return orders, nil
}
