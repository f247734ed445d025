package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nemonet1337/seizoGoERP/internal/config"
	"github.com/nemonet1337/seizoGoERP/pkg/manufacturing"
	"github.com/nemonet1337/seizoGoERP/pkg/manufacturing/storage"
)

// デモデータ投入ツール。公開エンジンのみを経由し、生SQLでは書き込まない。
func main() {
	log.Println("seizoGoERP デモデータ投入ツール")

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	store, err := storage.NewPostgreSQLStore(cfg.DSN(), logger)
	if err != nil {
		logger.Fatal("データベース接続に失敗しました", zap.Error(err))
	}
	defer store.Close()

	engineConfig := &manufacturing.Config{
		DefaultLocationID: cfg.Manufacturing.DefaultLocationID,
		MovementPageSize:  cfg.Manufacturing.MovementPageSize,
		SKUPrefix:         cfg.Manufacturing.SKUPrefix,
	}
	engine := manufacturing.NewEngine(store, logger, engineConfig)
	production := manufacturing.NewProductionManager(store, engine, logger, engineConfig)
	orders := manufacturing.NewOrderManager(store, engine, logger)
	catalog := manufacturing.NewCatalogManager(store, engine, logger, engineConfig)
	boms := manufacturing.NewBOMManager(store, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := seed(ctx, catalog, boms, production, orders); err != nil {
		logger.Fatal("デモデータ投入に失敗しました", zap.Error(err))
	}

	logger.Info("デモデータ投入が完了しました")
}

func seed(
	ctx context.Context,
	catalog *manufacturing.CatalogManager,
	boms *manufacturing.BOMManager,
	production *manufacturing.ProductionManager,
	orders *manufacturing.OrderManager,
) error {
	// ロケーション
	warehouse, err := catalog.CreateLocation(ctx, &manufacturing.StockLocation{
		Code: "WH-01", Name: "中央倉庫", Type: "warehouse",
	})
	if err != nil {
		return err
	}
	line, err := catalog.CreateLocation(ctx, &manufacturing.StockLocation{
		Code: "LINE-01", Name: "組立ライン1", Type: "production_line",
	})
	if err != nil {
		return err
	}

	// 仕入先
	if _, err := catalog.CreateSupplier(ctx, &manufacturing.Supplier{
		Code: "SUP-001", Name: "東和金属工業", Email: "sales@towa-metal.example.jp", Phone: "03-1234-5678",
	}); err != nil {
		return err
	}
	if _, err := catalog.CreateSupplier(ctx, &manufacturing.Supplier{
		Code: "SUP-002", Name: "佐藤電子部品", Email: "info@sato-denshi.example.jp", Phone: "06-8765-4321",
	}); err != nil {
		return err
	}

	// 原材料と構成部品
	frame, err := catalog.RegisterItem(ctx, &manufacturing.InventoryItem{
		SKU: "FRAME-STD", Name: "標準フレーム", Category: "構造部品",
		Type: manufacturing.ItemTypeComponent, Quantity: 200, UnitCost: 1200,
		ReorderPoint: 50, ReorderQty: 100, LocationID: warehouse.ID, Supplier: "東和金属工業",
	})
	if err != nil {
		return err
	}
	board, err := catalog.RegisterItem(ctx, &manufacturing.InventoryItem{
		SKU: "PCB-A1", Name: "制御基板A1", Category: "電子部品",
		Type: manufacturing.ItemTypeComponent, Quantity: 300, UnitCost: 800,
		ReorderPoint: 80, ReorderQty: 200, LocationID: warehouse.ID, Supplier: "佐藤電子部品",
	})
	if err != nil {
		return err
	}
	screwSet, err := catalog.RegisterItem(ctx, &manufacturing.InventoryItem{
		SKU: "SCREW-M4", Name: "M4ネジセット", Category: "締結部品",
		Type: manufacturing.ItemTypeRawMaterial, Quantity: 1000, UnitCost: 15,
		ReorderPoint: 300, ReorderQty: 1000, LocationID: warehouse.ID, Supplier: "東和金属工業",
	})
	if err != nil {
		return err
	}

	// 完成品
	device, err := catalog.RegisterItem(ctx, &manufacturing.InventoryItem{
		SKU: "DEV-100", Name: "制御装置DEV-100", Category: "完成品",
		Type: manufacturing.ItemTypeFinishedGood, UnitCost: 0,
		ReorderPoint: 10, ReorderQty: 20, LocationID: line.ID,
	})
	if err != nil {
		return err
	}

	// 部品表
	bom, err := boms.Create(ctx, &manufacturing.BOM{
		ProductSKU:      device.SKU,
		ProductName:     device.Name,
		InventoryItemID: device.ID,
		Components: []manufacturing.BOMComponent{
			{SKU: frame.SKU, Name: frame.Name, Quantity: 1, UnitCost: frame.UnitCost},
			{SKU: board.SKU, Name: board.Name, Quantity: 2, UnitCost: board.UnitCost},
			{SKU: screwSet.SKU, Name: screwSet.Name, Quantity: 8, UnitCost: screwSet.UnitCost},
		},
		LaborCost:    500,
		OverheadCost: 300,
	})
	if err != nil {
		return err
	}

	// 製造指図をライフサイクル一巡させる
	order, err := production.CreateOrder(ctx, manufacturing.CreateProductionOrderRequest{
		BOMID:      bom.ID,
		Quantity:   10,
		LocationID: line.ID,
		Notes:      "デモロット",
	})
	if err != nil {
		return err
	}
	if _, err := production.StartOrder(ctx, order.ID); err != nil {
		return err
	}
	if _, err := production.CompleteOrder(ctx, order.ID, 10); err != nil {
		return err
	}

	// 受注を作成して出荷
	so, err := orders.CreateSalesOrder(ctx, &manufacturing.SalesOrder{
		Customer:   "株式会社ミツバ商事",
		LocationID: line.ID,
		Lines: []manufacturing.OrderLine{
			{SKU: device.SKU, Quantity: 4, UnitPrice: 9800},
		},
	})
	if err != nil {
		return err
	}
	if _, err := orders.ShipSalesOrder(ctx, so.ID); err != nil {
		return err
	}

	// 発注を作成して入荷
	po, err := orders.CreatePurchaseOrder(ctx, &manufacturing.PurchaseOrder{
		Supplier:   "佐藤電子部品",
		LocationID: warehouse.ID,
		Lines: []manufacturing.OrderLine{
			{SKU: board.SKU, Quantity: 100, UnitPrice: 780},
		},
	})
	if err != nil {
		return err
	}
	if _, err := orders.ReceivePurchaseOrder(ctx, po.ID); err != nil {
		return err
	}

	return nil
}
