// Package manufacturing provides the inventory ledger and production order core
// 製造業向けの在庫台帳と製造指図のコア機能を提供
package manufacturing

import (
	"time"

	"github.com/google/uuid"
)

// ItemType classifies an inventory item within the production flow
// 生産フローにおける在庫品目の分類
type ItemType string

const (
	ItemTypeRawMaterial    ItemType = "raw_material"     // 原材料
	ItemTypeComponent      ItemType = "component"        // 構成部品
	ItemTypeFinishedGood   ItemType = "finished_good"    // 完成品
	ItemTypeWorkInProgress ItemType = "work_in_progress" // 仕掛品
)

// StockStatus is the derived availability status of an item or location row
// 品目・ロケーション在庫の導出ステータス
type StockStatus string

const (
	StatusInStock    StockStatus = "in_stock"     // 在庫あり
	StatusLowStock   StockStatus = "low_stock"    // 低在庫
	StatusOutOfStock StockStatus = "out_of_stock" // 在庫切れ
)

// DeriveStatus derives a stock status from an available quantity and reorder point
// 利用可能数量と発注点からステータスを導出
func DeriveStatus(available, reorderPoint int64) StockStatus {
	switch {
	case available <= 0:
		return StatusOutOfStock
	case available <= reorderPoint:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// InventoryItem is the SKU-level master aggregate summarizing stock across all locations
// 全ロケーションの在庫を集約するSKU単位のマスター集計
type InventoryItem struct {
	ID                string      `json:"id" db:"id"`                           // 品目ID
	SKU               string      `json:"sku" db:"sku"`                         // SKU（一意）
	Name              string      `json:"name" db:"name"`                       // 品目名
	Category          string      `json:"category" db:"category"`               // カテゴリ
	Type              ItemType    `json:"type" db:"type"`                       // 品目タイプ
	Quantity          int64       `json:"quantity" db:"quantity"`               // 全ロケーション合計数量
	AllocatedQuantity int64       `json:"allocatedQuantity" db:"allocated_qty"` // 引当済み数量（ソフト予約）
	UnitCost          float64     `json:"unitCost" db:"unit_cost"`              // 単価
	TotalValue        float64     `json:"totalValue" db:"total_value"`          // 在庫評価額 = quantity × unitCost
	ReorderPoint      int64       `json:"reorderPoint" db:"reorder_point"`      // 発注点
	ReorderQty        int64       `json:"reorderQty" db:"reorder_qty"`          // 発注数量
	Status            StockStatus `json:"status" db:"status"`                   // 導出ステータス
	LocationID        string      `json:"locationId" db:"location_id"`          // 主保管ロケーション
	Supplier          string      `json:"supplier" db:"supplier"`               // 仕入先
	CreatedAt         time.Time   `json:"createdAt" db:"created_at"`            // 作成日時
	UpdatedAt         time.Time   `json:"updatedAt" db:"updated_at"`            // 更新日時
}

// Available returns the quantity not reserved by production orders
// 製造指図に引き当てられていない数量を返す
func (i *InventoryItem) Available() int64 {
	return i.Quantity - i.AllocatedQuantity
}

// Recalculate refreshes the derived fields from quantity, cost and allocation
// 数量・単価・引当から導出フィールドを再計算
func (i *InventoryItem) Recalculate() {
	i.TotalValue = float64(i.Quantity) * i.UnitCost
	i.Status = DeriveStatus(i.Available(), i.ReorderPoint)
}

// LocationInventory is the per-(location, SKU) quantity record, upserted on every movement
// ロケーション×SKU単位の在庫記録（移動のたびにupsert）
type LocationInventory struct {
	LocationID   string      `json:"locationId" db:"location_id"`     // ロケーションID
	SKU          string      `json:"sku" db:"sku"`                    // SKU
	ItemName     string      `json:"itemName" db:"item_name"`         // 品目名
	Quantity     int64       `json:"quantity" db:"quantity"`          // 在庫数量（負の値は不正）
	UnitCost     float64     `json:"unitCost" db:"unit_cost"`         // 単価
	ReorderPoint int64       `json:"reorderPoint" db:"reorder_point"` // 発注点
	Status       StockStatus `json:"status" db:"status"`              // 導出ステータス
	UpdatedAt    time.Time   `json:"updatedAt" db:"updated_at"`       // 最終更新日時
}

// RecalculateStatus refreshes the derived status from quantity vs reorder point
// 数量と発注点からステータスを再計算
func (li *LocationInventory) RecalculateStatus() {
	li.Status = DeriveStatus(li.Quantity, li.ReorderPoint)
}

// MovementType defines the kind of quantity-changing event
// 数量変動イベントの種別を定義
type MovementType string

const (
	MovementReceipt     MovementType = "receipt"     // 入庫
	MovementTransfer    MovementType = "transfer"    // ロケーション間移動
	MovementAdjustment  MovementType = "adjustment"  // 棚卸調整
	MovementConsumption MovementType = "consumption" // 生産消費
	MovementSale        MovementType = "sale"        // 販売出庫
)

// StockMovement is one immutable entry of the append-only audit ledger
// 追記専用監査台帳の不変レコード
type StockMovement struct {
	MovementID   string       `json:"movementId" db:"movement_id"`     // 連番ID（例: MOV0001）
	Date         time.Time    `json:"date" db:"date"`                  // 発生日時
	Type         MovementType `json:"type" db:"type"`                  // 移動種別
	ItemName     string       `json:"itemName" db:"item_name"`         // 品目名
	SKU          string       `json:"sku" db:"sku"`                    // SKU
	Quantity     int64        `json:"quantity" db:"quantity"`          // 符号付き数量（入庫は正、出庫は負）
	FromLocation string       `json:"fromLocation" db:"from_location"` // 移動元（出庫・移動時）
	ToLocation   string       `json:"toLocation" db:"to_location"`     // 移動先（入庫・移動時）
	Reference    string       `json:"reference" db:"reference"`        // 参照番号（発注・指図など）
	PerformedBy  string       `json:"performedBy" db:"performed_by"`   // 実行者
	Notes        string       `json:"notes" db:"notes"`                // 備考
}

// MovementFilter narrows a stock-movement listing
// 在庫移動一覧の絞り込み条件
type MovementFilter struct {
	Reference string       `json:"reference"`
	SKU       string       `json:"sku"`
	Type      MovementType `json:"type"`
	Limit     int          `json:"limit"`
}

// BOMStatus defines the lifecycle status of a bill of materials
// 部品表のライフサイクルステータスを定義
type BOMStatus string

const (
	BOMStatusActive   BOMStatus = "active"   // 有効
	BOMStatusInactive BOMStatus = "inactive" // 無効
)

// BOMComponent is one line of a bill of materials; Quantity is per one unit of output
// 部品表の1行（Quantityは完成品1単位あたりの所要量）
type BOMComponent struct {
	SKU       string  `json:"sku"`       // 構成部品SKU
	Name      string  `json:"name"`      // 構成部品名
	Quantity  int64   `json:"quantity"`  // 完成品1単位あたりの所要量
	UnitCost  float64 `json:"unitCost"`  // 単価
	TotalCost float64 `json:"totalCost"` // 行合計 = quantity × unitCost（常にサーバー側で再計算）
}

// BOM is a bill of materials attached to a finished-good inventory item
// 完成品の在庫品目に紐づく部品表
type BOM struct {
	ID                string         `json:"id" db:"id"`                                 // BOM ID
	ProductSKU        string         `json:"productSku" db:"product_sku"`                // 完成品SKU
	ProductName       string         `json:"productName" db:"product_name"`              // 完成品名
	Version           string         `json:"version" db:"version"`                       // バージョン
	Status            BOMStatus      `json:"status" db:"status"`                         // ステータス
	InventoryItemID   string         `json:"inventoryItemId" db:"inventory_item_id"`     // 完成品の品目ID（必須）
	Components        []BOMComponent `json:"components" db:"components"`                 // 構成部品（順序付き）
	TotalMaterialCost float64        `json:"totalMaterialCost" db:"total_material_cost"` // Σ 行合計（再計算のみ）
	LaborCost         float64        `json:"laborCost" db:"labor_cost"`                  // 労務費
	OverheadCost      float64        `json:"overheadCost" db:"overhead_cost"`            // 間接費
	TotalCost         float64        `json:"totalCost" db:"total_cost"`                  // 材料費 + 労務費 + 間接費
	CreatedAt         time.Time      `json:"createdAt" db:"created_at"`                  // 作成日時
	UpdatedAt         time.Time      `json:"updatedAt" db:"updated_at"`                  // 更新日時
}

// OrderStatus is the production order state machine state
// 製造指図の状態機械の状態
type OrderStatus string

const (
	OrderStatusRequested    OrderStatus = "requested"     // 受付済み（初期状態）
	OrderStatusInProduction OrderStatus = "in_production" // 生産中
	OrderStatusCompleted    OrderStatus = "completed"     // 完了（終端）
	OrderStatusCancelled    OrderStatus = "cancelled"     // 取消（終端）
)

// Terminal reports whether the status is final
// 終端状態かどうかを返す
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// ProductionOrder is a request to produce a quantity of a finished good from a BOM
// 部品表に基づいて完成品を生産する指図
type ProductionOrder struct {
	ID               string      `json:"id" db:"id"`                              // 指図ID
	WorkOrderNumber  string      `json:"workOrderNumber" db:"work_order_number"`  // 連番の指図番号（例: WO0001）
	BOMID            string      `json:"bomId" db:"bom_id"`                       // 部品表ID
	ProductSKU       string      `json:"productSku" db:"product_sku"`             // 完成品SKU
	Quantity         int64       `json:"quantity" db:"quantity"`                  // 生産予定数量
	QuantityProduced int64       `json:"quantityProduced" db:"quantity_produced"` // 実生産数量（完了時に設定）
	Status           OrderStatus `json:"status" db:"status"`                      // 状態
	AllocationType   string      `json:"allocationType" db:"allocation_type"`     // 引当方式
	// Allocations is the component requirement snapshot taken at creation.
	// Release and consumption use this snapshot, not the current BOM, so
	// later BOM edits cannot unbalance the reservations.
	// 作成時点の所要量スナップショット。解放と消費は現在の部品表ではなく
	// このスナップショットに基づくため、後からの部品表編集で引当の
	// 均衡が崩れない。
	Allocations []ComponentRequirement `json:"allocations" db:"allocations"`
	LocationID  string                 `json:"locationId" db:"location_id"`   // 完成品の入庫ロケーション
	Notes       string                 `json:"notes" db:"notes"`              // 備考
	CreatedAt   time.Time              `json:"createdAt" db:"created_at"`     // 作成日時
	UpdatedAt   time.Time              `json:"updatedAt" db:"updated_at"`     // 更新日時
	CompletedAt *time.Time             `json:"completedAt" db:"completed_at"` // 完了日時
}

// OrderLine is one line item of a sales or purchase order
// 受注・発注の明細行
type OrderLine struct {
	SKU       string  `json:"sku"`       // SKU
	ItemName  string  `json:"itemName"`  // 品目名
	Quantity  int64   `json:"quantity"`  // 数量
	UnitPrice float64 `json:"unitPrice"` // 単価
}

// SalesOrderStatus defines sales order lifecycle states
// 受注のライフサイクル状態を定義
type SalesOrderStatus string

const (
	SalesStatusDraft     SalesOrderStatus = "draft"     // 下書き
	SalesStatusConfirmed SalesOrderStatus = "confirmed" // 確定
	SalesStatusShipped   SalesOrderStatus = "shipped"   // 出荷済み
	SalesStatusCancelled SalesOrderStatus = "cancelled" // 取消
)

// SalesOrder is a customer order; shipping it drives one sale transaction per line
// 顧客からの受注（出荷時に明細ごとの販売トランザクションを実行）
type SalesOrder struct {
	ID          string           `json:"id" db:"id"`                    // 受注ID
	OrderNumber string           `json:"orderNumber" db:"order_number"` // 受注番号
	Customer    string           `json:"customer" db:"customer"`        // 顧客名
	Lines       []OrderLine      `json:"lines" db:"lines"`              // 明細
	Status      SalesOrderStatus `json:"status" db:"status"`            // 状態
	LocationID  string           `json:"locationId" db:"location_id"`   // 出荷元ロケーション
	Subtotal    float64          `json:"subtotal" db:"subtotal"`        // 小計（再計算のみ）
	Total       float64          `json:"total" db:"total"`              // 合計
	CreatedAt   time.Time        `json:"createdAt" db:"created_at"`     // 作成日時
	UpdatedAt   time.Time        `json:"updatedAt" db:"updated_at"`     // 更新日時
	ShippedAt   *time.Time       `json:"shippedAt" db:"shipped_at"`     // 出荷日時
}

// PurchaseOrderStatus defines purchase order lifecycle states
// 発注のライフサイクル状態を定義
type PurchaseOrderStatus string

const (
	PurchaseStatusDraft     PurchaseOrderStatus = "draft"     // 下書き
	PurchaseStatusOrdered   PurchaseOrderStatus = "ordered"   // 発注済み
	PurchaseStatusReceived  PurchaseOrderStatus = "received"  // 入荷済み
	PurchaseStatusCancelled PurchaseOrderStatus = "cancelled" // 取消
)

// PurchaseOrder is a supplier order; receiving it drives one receipt transaction per line
// 仕入先への発注（入荷時に明細ごとの入庫トランザクションを実行）
type PurchaseOrder struct {
	ID          string              `json:"id" db:"id"`                    // 発注ID
	OrderNumber string              `json:"orderNumber" db:"order_number"` // 発注番号
	Supplier    string              `json:"supplier" db:"supplier"`        // 仕入先
	Lines       []OrderLine         `json:"lines" db:"lines"`              // 明細
	Status      PurchaseOrderStatus `json:"status" db:"status"`            // 状態
	LocationID  string              `json:"locationId" db:"location_id"`   // 入荷先ロケーション
	Subtotal    float64             `json:"subtotal" db:"subtotal"`        // 小計（再計算のみ）
	Total       float64             `json:"total" db:"total"`              // 合計
	CreatedAt   time.Time           `json:"createdAt" db:"created_at"`     // 作成日時
	UpdatedAt   time.Time           `json:"updatedAt" db:"updated_at"`     // 更新日時
	ReceivedAt  *time.Time          `json:"receivedAt" db:"received_at"`   // 入荷日時
}

// StockLocation is a warehouse, production line or store referenced by inventory rows
// 在庫記録から参照される倉庫・生産ライン・店舗
type StockLocation struct {
	ID        string    `json:"id" db:"id"`                // ロケーションID
	Code      string    `json:"code" db:"code"`            // コード（一意）
	Name      string    `json:"name" db:"name"`            // 名称
	Type      string    `json:"type" db:"type"`            // タイプ（倉庫、生産ラインなど）
	Status    string    `json:"status" db:"status"`        // ステータス
	CreatedAt time.Time `json:"createdAt" db:"created_at"` // 作成日時
}

// Supplier is a vendor referenced by items and purchase orders
// 品目と発注から参照される仕入先
type Supplier struct {
	ID        string    `json:"id" db:"id"`                // 仕入先ID
	Code      string    `json:"code" db:"code"`            // コード（一意）
	Name      string    `json:"name" db:"name"`            // 名称
	Email     string    `json:"email" db:"email"`          // 連絡先メール
	Phone     string    `json:"phone" db:"phone"`          // 電話番号
	Status    string    `json:"status" db:"status"`        // ステータス
	CreatedAt time.Time `json:"createdAt" db:"created_at"` // 作成日時
}

// ComponentRequirement is a BOM line scaled to an order quantity
// 指図数量にスケールした部品表の所要量
type ComponentRequirement struct {
	SKU      string  `json:"sku"`      // 構成部品SKU
	Name     string  `json:"name"`     // 構成部品名
	Quantity int64   `json:"quantity"` // 所要量 = 行数量 × 指図数量
	UnitCost float64 `json:"unitCost"` // 単価
}

// NewEntityID generates a new entity ID
// 新しいエンティティIDを生成
func NewEntityID() string {
	return uuid.New().String()
}
