package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nemonet1337/seizoGoERP/pkg/manufacturing"
)

// Handlers holds HTTP handlers for the manufacturing API
// 製造API用のHTTPハンドラーを保持
type Handlers struct {
	engine     *manufacturing.Engine
	production *manufacturing.ProductionManager
	orders     *manufacturing.OrderManager
	catalog    *manufacturing.CatalogManager
	boms       *manufacturing.BOMManager
	store      manufacturing.Store
	logger     *zap.Logger
}

// NewHandlers creates new HTTP handlers
// 新しいHTTPハンドラーを作成
func NewHandlers(
	engine *manufacturing.Engine,
	production *manufacturing.ProductionManager,
	orders *manufacturing.OrderManager,
	catalog *manufacturing.CatalogManager,
	boms *manufacturing.BOMManager,
	store manufacturing.Store,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:     engine,
		production: production,
		orders:     orders,
		catalog:    catalog,
		boms:       boms,
		store:      store,
		logger:     logger,
	}
}

// APIResponse represents standard API response format
// 標準的なAPIレスポンス形式を表現
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError carries a machine-readable kind and a human-readable message
// 機械可読な種別と人間向けメッセージを持つエラー
type APIError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// HealthCheck handles health check requests
// ヘルスチェックリクエストを処理
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(APIResponse{
		Success: code == http.StatusOK,
		Data: map[string]interface{}{
			"status":  status,
			"service": "seizoGoERP",
		},
	})
}

// ApplyStockTransaction handles stock transaction requests
// 在庫トランザクションリクエストを処理
func (h *Handlers) ApplyStockTransaction(w http.ResponseWriter, r *http.Request) {
	var req manufacturing.StockTransaction
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}

	movement, err := h.engine.Apply(r.Context(), req)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	movementCounter.WithLabelValues(string(movement.Type)).Inc()
	h.sendStatus(w, http.StatusCreated, movement)
}

// ListStockMovements handles ledger listing requests
// 台帳一覧リクエストを処理
func (h *Handlers) ListStockMovements(w http.ResponseWriter, r *http.Request) {
	filter := manufacturing.MovementFilter{
		Reference: r.URL.Query().Get("reference"),
		SKU:       r.URL.Query().Get("sku"),
		Type:      manufacturing.MovementType(r.URL.Query().Get("type")),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}

	movements, err := h.engine.GetMovements(r.Context(), filter)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, movements)
}

// Reconcile handles master aggregate reconciliation requests
// マスター集計の整合リクエストを処理
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	result, err := h.engine.Reconcile(r.Context(), sku)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, result)
}

// CreateItem handles item registration requests
// 品目登録リクエストを処理
func (h *Handlers) CreateItem(w http.ResponseWriter, r *http.Request) {
	var item manufacturing.InventoryItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}

	created, err := h.catalog.RegisterItem(r.Context(), &item)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendStatus(w, http.StatusCreated, created)
}

// GetItem handles item retrieval requests
// 品目取得リクエストを処理
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.GetItem(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, item)
}

// GetItemBySKU handles item retrieval by SKU
// SKUによる品目取得リクエストを処理
func (h *Handlers) GetItemBySKU(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.GetItemBySKU(r.Context(), mux.Vars(r)["sku"])
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, item)
}

// UpdateItem handles item update requests
// 品目更新リクエストを処理
func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var patch manufacturing.InventoryItem
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}

	updated, err := h.catalog.UpdateItem(r.Context(), mux.Vars(r)["id"], &patch)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, updated)
}

// DeleteItem handles item deletion requests
// 品目削除リクエストを処理
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteItem(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, map[string]string{"message": "在庫品目を削除しました"})
}

// ListItems handles item listing requests
// 品目一覧リクエストを処理
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListItems(r.Context())
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, items)
}

// ListLowStock handles low-stock report requests
// 低在庫レポートリクエストを処理
func (h *Handlers) ListLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListLowStock(r.Context())
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, items)
}

// GetLocationInventory handles per-location stock listing requests
// ロケーション別在庫一覧リクエストを処理
func (h *Handlers) GetLocationInventory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.catalog.ListLocationInventory(r.Context(), mux.Vars(r)["locationId"])
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, rows)
}

// CreateBOM handles BOM creation requests
// 部品表作成リクエストを処理
func (h *Handlers) CreateBOM(w http.ResponseWriter, r *http.Request) {
	var bom manufacturing.BOM
	if err := json.NewDecoder(r.Body).Decode(&bom); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}

	created, err := h.boms.Create(r.Context(), &bom)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendStatus(w, http.StatusCreated, created)
}

// GetBOM handles BOM retrieval requests
// 部品表取得リクエストを処理
func (h *Handlers) GetBOM(w http.ResponseWriter, r *http.Request) {
	bom, err := h.boms.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, bom)
}

// UpdateBOM handles BOM update requests
// 部品表更新リクエストを処理
func (h *Handlers) UpdateBOM(w http.ResponseWriter, r *http.Request) {
	var bom manufacturing.BOM
	if err := json.NewDecoder(r.Body).Decode(&bom); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}

	updated, err := h.boms.Update(r.Context(), mux.Vars(r)["id"], &bom)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, updated)
}

// DeleteBOM handles BOM deletion requests
// 部品表削除リクエストを処理
func (h *Handlers) DeleteBOM(w http.ResponseWriter, r *http.Request) {
	if err := h.boms.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, map[string]string{"message": "部品表を削除しました"})
}

// ListBOMs handles BOM listing requests
// 部品表一覧リクエストを処理
func (h *Handlers) ListBOMs(w http.ResponseWriter, r *http.Request) {
	boms, err := h.boms.List(r.Context())
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, boms)
}

// CreateProductionOrder handles production order creation requests
// 製造指図作成リクエストを処理
func (h *Handlers) CreateProductionOrder(w http.ResponseWriter, r *http.Request) {
	var req manufacturing.CreateProductionOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}

	order, err := h.production.CreateOrder(r.Context(), req)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendStatus(w, http.StatusCreated, order)
}

// PatchProductionOrderRequest carries a requested status transition
// 状態遷移の要求を表現
type PatchProductionOrderRequest struct {
	Status           manufacturing.OrderStatus `json:"status"`
	QuantityProduced int64                     `json:"quantityProduced,omitempty"`
}

// PatchProductionOrder handles production order state transitions
// 製造指図の状態遷移リクエストを処理
func (h *Handlers) PatchProductionOrder(w http.ResponseWriter, r *http.Request) {
	var req PatchProductionOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}

	id := mux.Vars(r)["id"]
	var order *manufacturing.ProductionOrder
	var err error
	switch req.Status {
	case manufacturing.OrderStatusInProduction:
		order, err = h.production.StartOrder(r.Context(), id)
	case manufacturing.OrderStatusCompleted:
		order, err = h.production.CompleteOrder(r.Context(), id, req.QuantityProduced)
	case manufacturing.OrderStatusCancelled:
		order, err = h.production.CancelOrder(r.Context(), id)
	default:
		h.sendError(w, http.StatusBadRequest, "validation_error", "サポートされていない状態遷移です")
		return
	}
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, order)
}

// GetProductionOrder handles production order retrieval requests
// 製造指図取得リクエストを処理
func (h *Handlers) GetProductionOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.production.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, order)
}

// ListProductionOrders handles production order listing requests
// 製造指図一覧リクエストを処理
func (h *Handlers) ListProductionOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.production.ListOrders(r.Context())
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, orders)
}

// CreateSalesOrder handles sales order creation requests
// 受注作成リクエストを処理
func (h *Handlers) CreateSalesOrder(w http.ResponseWriter, r *http.Request) {
	var order manufacturing.SalesOrder
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}

	created, err := h.orders.CreateSalesOrder(r.Context(), &order)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendStatus(w, http.StatusCreated, created)
}

// PatchSalesOrder handles sales order status transitions
// 受注の状態遷移リクエストを処理
func (h *Handlers) PatchSalesOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status manufacturing.SalesOrderStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}
	if req.Status != manufacturing.SalesStatusShipped {
		h.sendError(w, http.StatusBadRequest, "validation_error", "サポートされていない状態遷移です")
		return
	}

	order, err := h.orders.ShipSalesOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, order)
}

// ListSalesOrders handles sales order listing requests
// 受注一覧リクエストを処理
func (h *Handlers) ListSalesOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListSalesOrders(r.Context())
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, orders)
}

// CreatePurchaseOrder handles purchase order creation requests
// 発注作成リクエストを処理
func (h *Handlers) CreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var order manufacturing.PurchaseOrder
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}

	created, err := h.orders.CreatePurchaseOrder(r.Context(), &order)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendStatus(w, http.StatusCreated, created)
}

// PatchPurchaseOrder handles purchase order status transitions
// 発注の状態遷移リクエストを処理
func (h *Handlers) PatchPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status manufacturing.PurchaseOrderStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}
	if req.Status != manufacturing.PurchaseStatusReceived {
		h.sendError(w, http.StatusBadRequest, "validation_error", "サポートされていない状態遷移です")
		return
	}

	order, err := h.orders.ReceivePurchaseOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, order)
}

// ListPurchaseOrders handles purchase order listing requests
// 発注一覧リクエストを処理
func (h *Handlers) ListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListPurchaseOrders(r.Context())
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, orders)
}

// CreateLocation handles location registration requests
// ロケーション登録リクエストを処理
func (h *Handlers) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var loc manufacturing.StockLocation
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}

	created, err := h.catalog.CreateLocation(r.Context(), &loc)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendStatus(w, http.StatusCreated, created)
}

// GetLocation handles location retrieval requests
// ロケーション取得リクエストを処理
func (h *Handlers) GetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.catalog.GetLocation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, loc)
}

// ListLocations handles location listing requests
// ロケーション一覧リクエストを処理
func (h *Handlers) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.catalog.ListLocations(r.Context())
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, locations)
}

// CreateSupplier handles supplier registration requests
// 仕入先登録リクエストを処理
func (h *Handlers) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var s manufacturing.Supplier
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_error", "無効なリクエスト形式です")
		return
	}

	created, err := h.catalog.CreateSupplier(r.Context(), &s)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendStatus(w, http.StatusCreated, created)
}

// ListSuppliers handles supplier listing requests
// 仕入先一覧リクエストを処理
func (h *Handlers) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.catalog.ListSuppliers(r.Context())
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, suppliers)
}

// sendDomainError maps a domain error to an HTTP status and responds
// ドメインエラーをHTTPステータスへ対応付けて応答
func (h *Handlers) sendDomainError(w http.ResponseWriter, err error) {
	kind := manufacturing.Kind(err)
	status := http.StatusBadRequest
	switch kind {
	case "not_found":
		status = http.StatusNotFound
	case "internal_error":
		status = http.StatusInternalServerError
		h.logger.Error("内部エラー", zap.Error(err))
	}
	h.sendError(w, status, kind, err.Error())
}

// sendSuccess sends a successful API response
// 成功APIレスポンスを送信
func (h *Handlers) sendSuccess(w http.ResponseWriter, data interface{}) {
	h.sendStatus(w, http.StatusOK, data)
}

// sendStatus sends a successful API response with an explicit status code
// ステータスコードを指定して成功APIレスポンスを送信
func (h *Handlers) sendStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: true,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("レスポンス送信に失敗しました", zap.Error(err))
	}
}

// sendError sends an error API response
// エラーAPIレスポンスを送信
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error:   &APIError{Kind: kind, Message: message},
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("エラーレスポンス送信に失敗しました", zap.Error(err))
	}
}
