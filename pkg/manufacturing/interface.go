package manufacturing

import (
	"context"
)

// Tx is the set of persistence operations available inside one atomic unit.
// Every engine performs all reads and writes of a logical operation through a
// single Tx so that movement, location and master rows commit or roll back
// together.
// 1つのアトミック単位の中で利用できる永続化操作の集合。
// エンジンは1つの論理操作のすべての読み書きを単一のTx経由で行い、
// 移動記録・ロケーション在庫・マスターを一括でコミット/ロールバックする。
type Tx interface {
	// 在庫品目 - Inventory items
	CreateItem(ctx context.Context, item *InventoryItem) error
	GetItem(ctx context.Context, id string) (*InventoryItem, error)
	GetItemBySKU(ctx context.Context, sku string) (*InventoryItem, error)
	GetItemBySKUForUpdate(ctx context.Context, sku string) (*InventoryItem, error)
	UpdateItem(ctx context.Context, item *InventoryItem) error
	DeleteItem(ctx context.Context, id string) error
	ListItems(ctx context.Context) ([]InventoryItem, error)
	NextSKUSequence(ctx context.Context) (int64, error)

	// ロケーション在庫 - Per-location inventory
	GetLocationInventory(ctx context.Context, locationID, sku string) (*LocationInventory, error)
	GetLocationInventoryForUpdate(ctx context.Context, locationID, sku string) (*LocationInventory, error)
	CreateLocationInventory(ctx context.Context, li *LocationInventory) error
	UpdateLocationInventory(ctx context.Context, li *LocationInventory) error
	ListLocationInventoryByLocation(ctx context.Context, locationID string) ([]LocationInventory, error)
	ListLocationInventoryBySKU(ctx context.Context, sku string) ([]LocationInventory, error)
	SumLocationQuantity(ctx context.Context, sku string) (int64, error)

	// 在庫移動台帳 - Stock movement ledger (append-only)
	AppendMovement(ctx context.Context, m *StockMovement) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)

	// ロケーション - Stock locations
	CreateLocation(ctx context.Context, loc *StockLocation) error
	GetLocation(ctx context.Context, id string) (*StockLocation, error)
	ListLocations(ctx context.Context) ([]StockLocation, error)

	// 仕入先 - Suppliers
	CreateSupplier(ctx context.Context, s *Supplier) error
	GetSupplier(ctx context.Context, id string) (*Supplier, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)

	// 部品表 - Bills of materials
	CreateBOM(ctx context.Context, b *BOM) error
	GetBOM(ctx context.Context, id string) (*BOM, error)
	UpdateBOM(ctx context.Context, b *BOM) error
	DeleteBOM(ctx context.Context, id string) error
	ListBOMs(ctx context.Context) ([]BOM, error)
	CountActiveBOMsByItem(ctx context.Context, inventoryItemID string) (int, error)

	// 製造指図 - Production orders
	CreateProductionOrder(ctx context.Context, o *ProductionOrder) error
	GetProductionOrder(ctx context.Context, id string) (*ProductionOrder, error)
	GetProductionOrderForUpdate(ctx context.Context, id string) (*ProductionOrder, error)
	UpdateProductionOrder(ctx context.Context, o *ProductionOrder) error
	ListProductionOrders(ctx context.Context) ([]ProductionOrder, error)
	NextWorkOrderSequence(ctx context.Context) (int64, error)

	// 受注 - Sales orders
	CreateSalesOrder(ctx context.Context, o *SalesOrder) error
	GetSalesOrder(ctx context.Context, id string) (*SalesOrder, error)
	GetSalesOrderForUpdate(ctx context.Context, id string) (*SalesOrder, error)
	UpdateSalesOrder(ctx context.Context, o *SalesOrder) error
	ListSalesOrders(ctx context.Context) ([]SalesOrder, error)

	// 発注 - Purchase orders
	CreatePurchaseOrder(ctx context.Context, o *PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, id string) (*PurchaseOrder, error)
	GetPurchaseOrderForUpdate(ctx context.Context, id string) (*PurchaseOrder, error)
	UpdatePurchaseOrder(ctx context.Context, o *PurchaseOrder) error
	ListPurchaseOrders(ctx context.Context) ([]PurchaseOrder, error)
}

// Store is the persistence layer. Reads outside a transaction go through the
// embedded Tx; mutations must run inside WithinTx.
// 永続化層。トランザクション外の読み取りは埋め込みTxを、
// 変更は必ずWithinTxの中を通す。
type Store interface {
	Tx

	// WithinTx runs fn inside one atomic transaction. The Tx passed to fn
	// locks rows it reads with the ForUpdate variants; if fn returns an
	// error every write is rolled back.
	// fnを1つのアトミックなトランザクション内で実行する。
	// fnがエラーを返した場合、すべての書き込みはロールバックされる。
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// StockEngine applies typed stock transactions atomically
// 型付き在庫トランザクションをアトミックに適用
type StockEngine interface {
	Apply(ctx context.Context, req StockTransaction) (*StockMovement, error)
	Reconcile(ctx context.Context, sku string) (*ReconcileResult, error)
	GetMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)
}

// ProductionEngine drives the production order lifecycle and component allocation
// 製造指図のライフサイクルと部品引当を駆動
type ProductionEngine interface {
	CreateOrder(ctx context.Context, req CreateProductionOrderRequest) (*ProductionOrder, error)
	StartOrder(ctx context.Context, orderID string) (*ProductionOrder, error)
	CompleteOrder(ctx context.Context, orderID string, quantityProduced int64) (*ProductionOrder, error)
	CancelOrder(ctx context.Context, orderID string) (*ProductionOrder, error)
	GetOrder(ctx context.Context, orderID string) (*ProductionOrder, error)
	ListOrders(ctx context.Context) ([]ProductionOrder, error)
}
