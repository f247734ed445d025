package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nemonet1337/seizoGoERP/internal/config"
	"github.com/nemonet1337/seizoGoERP/pkg/manufacturing"
	"github.com/nemonet1337/seizoGoERP/pkg/manufacturing/storage"
)

func main() {
	// .envがあれば読み込む
	_ = godotenv.Load()

	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	// ログ設定
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	// データベース接続
	store, err := storage.NewPostgreSQLStore(cfg.DSN(), logger)
	if err != nil {
		logger.Fatal("データベース接続に失敗しました", zap.Error(err))
	}
	defer store.Close()

	// エンジン初期化
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

	// HTTPハンドラー設定
	handlers := NewHandlers(engine, production, orders, catalog, boms, store, logger)
	router := setupRouter(handlers, cfg)

	// HTTPサーバー設定
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	// グレースフルシャットダウン設定
	go func() {
		logger.Info("製造業務APIサーバーを開始します", zap.Int("port", cfg.API.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー開始に失敗しました", zap.Error(err))
		}
	}()

	// シャットダウンシグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	// グレースフルシャットダウン
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("サーバーシャットダウンに失敗しました", zap.Error(err))
	}

	logger.Info("サーバーが正常に停止しました")
}

// newLogger builds a zap logger from the logging configuration
// ログ設定からzapロガーを構築
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level

	return zapCfg.Build()
}

// setupRouter sets up HTTP routes
// HTTPルートを設定
func setupRouter(handlers *Handlers, cfg *config.Config) *mux.Router {
	router := mux.NewRouter()

	// ヘルスチェックとメトリクス
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	if cfg.API.EnableMetrics {
		registerMetrics()
		router.Handle("/metrics", metricsHandler()).Methods("GET")
		router.Use(metricsMiddleware)
	}

	// 製造APIルート
	mfg := router.PathPrefix("/api/manufacturing").Subrouter()

	// 在庫トランザクションと台帳
	mfg.HandleFunc("/stock-transactions", handlers.ApplyStockTransaction).Methods("POST")
	mfg.HandleFunc("/stock-movements", handlers.ListStockMovements).Methods("GET")
	mfg.HandleFunc("/inventory/{sku}/reconcile", handlers.Reconcile).Methods("POST")

	// 品目マスター
	mfg.HandleFunc("/inventory", handlers.CreateItem).Methods("POST")
	mfg.HandleFunc("/inventory", handlers.ListItems).Methods("GET")
	mfg.HandleFunc("/inventory/low-stock", handlers.ListLowStock).Methods("GET")
	mfg.HandleFunc("/inventory/sku/{sku}", handlers.GetItemBySKU).Methods("GET")
	mfg.HandleFunc("/inventory/{id}", handlers.GetItem).Methods("GET")
	mfg.HandleFunc("/inventory/{id}", handlers.UpdateItem).Methods("PATCH")
	mfg.HandleFunc("/inventory/{id}", handlers.DeleteItem).Methods("DELETE")

	// ロケーション別在庫
	mfg.HandleFunc("/location-inventory/{locationId}", handlers.GetLocationInventory).Methods("GET")

	// 部品表
	mfg.HandleFunc("/boms", handlers.CreateBOM).Methods("POST")
	mfg.HandleFunc("/boms", handlers.ListBOMs).Methods("GET")
	mfg.HandleFunc("/boms/{id}", handlers.GetBOM).Methods("GET")
	mfg.HandleFunc("/boms/{id}", handlers.UpdateBOM).Methods("PATCH")
	mfg.HandleFunc("/boms/{id}", handlers.DeleteBOM).Methods("DELETE")

	// 製造指図
	mfg.HandleFunc("/production-orders", handlers.CreateProductionOrder).Methods("POST")
	mfg.HandleFunc("/production-orders", handlers.ListProductionOrders).Methods("GET")
	mfg.HandleFunc("/production-orders/{id}", handlers.GetProductionOrder).Methods("GET")
	mfg.HandleFunc("/production-orders/{id}", handlers.PatchProductionOrder).Methods("PATCH")

	// ロケーションと仕入先
	mfg.HandleFunc("/locations", handlers.CreateLocation).Methods("POST")
	mfg.HandleFunc("/locations", handlers.ListLocations).Methods("GET")
	mfg.HandleFunc("/locations/{id}", handlers.GetLocation).Methods("GET")
	mfg.HandleFunc("/suppliers", handlers.CreateSupplier).Methods("POST")
	mfg.HandleFunc("/suppliers", handlers.ListSuppliers).Methods("GET")

	// 受注と発注
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sales-orders", handlers.CreateSalesOrder).Methods("POST")
	api.HandleFunc("/sales-orders", handlers.ListSalesOrders).Methods("GET")
	api.HandleFunc("/sales-orders/{id}", handlers.PatchSalesOrder).Methods("PATCH")
	api.HandleFunc("/purchase-orders", handlers.CreatePurchaseOrder).Methods("POST")
	api.HandleFunc("/purchase-orders", handlers.ListPurchaseOrders).Methods("GET")
	api.HandleFunc("/purchase-orders/{id}", handlers.PatchPurchaseOrder).Methods("PATCH")

	// CORS設定（開発用）
	if cfg.API.EnableCORS {
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

				if r.Method == "OPTIONS" {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		})
	}

	// ログ機能
	router.Use(loggingMiddleware(handlers.logger))

	return router
}

// loggingMiddleware logs HTTP requests
// HTTPリクエストをログ出力するミドルウェア
func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// リクエスト処理
			next.ServeHTTP(w, r)

			// ログ出力
			logger.Info("HTTPリクエスト",
				zap.String("method", r.Method),
				zap.String("url", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
