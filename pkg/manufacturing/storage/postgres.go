package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nemonet1337/seizoGoERP/pkg/manufacturing"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx
// *sql.DBと*sql.Txが共有するdatabase/sqlのサブセット
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// pgTx implements manufacturing.Tx over either a live transaction or the
// plain connection pool. Row locks only take effect inside a transaction.
// manufacturing.Txをトランザクションまたはコネクションプール上で実装する。
// 行ロックはトランザクション内でのみ有効。
type pgTx struct {
	q      querier
	logger *zap.Logger
}

// PostgreSQLStore implements the manufacturing.Store interface using PostgreSQL
// PostgreSQLを使用したmanufacturing.Storeインターフェースの実装
type PostgreSQLStore struct {
	*pgTx
	db     *sql.DB
	logger *zap.Logger
}

// インターフェースを実装することを明示
var _ manufacturing.Store = (*PostgreSQLStore)(nil)

// NewPostgreSQLStore creates a new PostgreSQL store instance
// 新しいPostgreSQLストアインスタンスを作成
func NewPostgreSQLStore(dsn string, logger *zap.Logger) (*PostgreSQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続テスト
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("データベースpingに失敗しました: %w", err)
	}

	// 接続プール設定
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgreSQLStore{
		pgTx:   &pgTx{q: db, logger: logger},
		db:     db,
		logger: logger,
	}, nil
}

// WithinTx runs fn inside one database transaction
// fnを1つのデータベーストランザクション内で実行
func (s *PostgreSQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx manufacturing.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}

	tx := &pgTx{q: sqlTx, logger: s.logger}
	if err := fn(ctx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Error("ロールバックに失敗しました", zap.Error(rbErr))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗しました: %w", err)
	}
	return nil
}

// Ping checks database connectivity
// データベース接続を確認
func (s *PostgreSQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection pool
// データベース接続プールを閉じる
func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const itemColumns = `id, sku, name, category, type, quantity, allocated_qty, unit_cost, total_value,
		reorder_point, reorder_qty, status, location_id, supplier, created_at, updated_at`

func scanItem(row interface{ Scan(...interface{}) error }) (*manufacturing.InventoryItem, error) {
	item := &manufacturing.InventoryItem{}
	err := row.Scan(
		&item.ID,
		&item.SKU,
		&item.Name,
		&item.Category,
		&item.Type,
		&item.Quantity,
		&item.AllocatedQuantity,
		&item.UnitCost,
		&item.TotalValue,
		&item.ReorderPoint,
		&item.ReorderQty,
		&item.Status,
		&item.LocationID,
		&item.Supplier,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CreateItem creates a new inventory item record
// 新しい在庫品目記録を作成
func (t *pgTx) CreateItem(ctx context.Context, item *manufacturing.InventoryItem) error {
	query := `
		INSERT INTO inventory_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := t.q.ExecContext(ctx, query,
		item.ID, item.SKU, item.Name, item.Category, item.Type,
		item.Quantity, item.AllocatedQuantity, item.UnitCost, item.TotalValue,
		item.ReorderPoint, item.ReorderQty, item.Status, item.LocationID,
		item.Supplier, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", manufacturing.ErrDuplicateCode, item.SKU)
		}
		return fmt.Errorf("在庫品目作成に失敗しました: %w", err)
	}
	return nil
}

// GetItem retrieves an inventory item by ID
// 在庫品目をIDで取得
func (t *pgTx) GetItem(ctx context.Context, id string) (*manufacturing.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE id = $1`
	item, err := scanItem(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrItemNotFound
		}
		return nil, fmt.Errorf("在庫品目取得に失敗しました: %w", err)
	}
	return item, nil
}

// GetItemBySKU retrieves an inventory item by SKU
// 在庫品目をSKUで取得
func (t *pgTx) GetItemBySKU(ctx context.Context, sku string) (*manufacturing.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE sku = $1`
	item, err := scanItem(t.q.QueryRowContext(ctx, query, sku))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrItemNotFound
		}
		return nil, fmt.Errorf("在庫品目取得に失敗しました: %w", err)
	}
	return item, nil
}

// GetItemBySKUForUpdate retrieves an item by SKU with a row lock
// 在庫品目をSKUで行ロック付き取得
func (t *pgTx) GetItemBySKUForUpdate(ctx context.Context, sku string) (*manufacturing.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE sku = $1 FOR UPDATE`
	item, err := scanItem(t.q.QueryRowContext(ctx, query, sku))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrItemNotFound
		}
		return nil, fmt.Errorf("在庫品目取得に失敗しました: %w", err)
	}
	return item, nil
}

// UpdateItem updates an inventory item record
// 在庫品目記録を更新
func (t *pgTx) UpdateItem(ctx context.Context, item *manufacturing.InventoryItem) error {
	query := `
		UPDATE inventory_items
		SET sku = $2, name = $3, category = $4, type = $5, quantity = $6, allocated_qty = $7,
			unit_cost = $8, total_value = $9, reorder_point = $10, reorder_qty = $11,
			status = $12, location_id = $13, supplier = $14, updated_at = $15
		WHERE id = $1`

	result, err := t.q.ExecContext(ctx, query,
		item.ID, item.SKU, item.Name, item.Category, item.Type,
		item.Quantity, item.AllocatedQuantity, item.UnitCost, item.TotalValue,
		item.ReorderPoint, item.ReorderQty, item.Status, item.LocationID,
		item.Supplier, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("在庫品目更新に失敗しました: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return manufacturing.ErrItemNotFound
	}
	return nil
}

// DeleteItem removes an inventory item record
// 在庫品目記録を削除
func (t *pgTx) DeleteItem(ctx context.Context, id string) error {
	result, err := t.q.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("在庫品目削除に失敗しました: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return manufacturing.ErrItemNotFound
	}
	return nil
}

// ListItems retrieves all inventory items
// すべての在庫品目を取得
func (t *pgTx) ListItems(ctx context.Context) ([]manufacturing.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items ORDER BY sku`
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("在庫品目一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []manufacturing.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("在庫品目の読み取りに失敗しました: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// NextSKUSequence returns the next value of the SKU numbering sequence
// SKU採番シーケンスの次の値を返す
func (t *pgTx) NextSKUSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := t.q.QueryRowContext(ctx, `SELECT nextval('sku_seq')`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("SKUシーケンス取得に失敗しました: %w", err)
	}
	return seq, nil
}

const locationInventoryColumns = `location_id, sku, item_name, quantity, unit_cost, reorder_point, status, updated_at`

func scanLocationInventory(row interface{ Scan(...interface{}) error }) (*manufacturing.LocationInventory, error) {
	li := &manufacturing.LocationInventory{}
	err := row.Scan(
		&li.LocationID,
		&li.SKU,
		&li.ItemName,
		&li.Quantity,
		&li.UnitCost,
		&li.ReorderPoint,
		&li.Status,
		&li.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return li, nil
}

// GetLocationInventory retrieves one (location, SKU) stock row
// ロケーション×SKUの在庫行を取得
func (t *pgTx) GetLocationInventory(ctx context.Context, locationID, sku string) (*manufacturing.LocationInventory, error) {
	query := `SELECT ` + locationInventoryColumns + ` FROM location_inventory WHERE location_id = $1 AND sku = $2`
	li, err := scanLocationInventory(t.q.QueryRowContext(ctx, query, locationID, sku))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrLocationInventoryNotFound
		}
		return nil, fmt.Errorf("ロケーション在庫取得に失敗しました: %w", err)
	}
	return li, nil
}

// GetLocationInventoryForUpdate retrieves one stock row with a row lock
// ロケーション×SKUの在庫行を行ロック付き取得
func (t *pgTx) GetLocationInventoryForUpdate(ctx context.Context, locationID, sku string) (*manufacturing.LocationInventory, error) {
	query := `SELECT ` + locationInventoryColumns + ` FROM location_inventory WHERE location_id = $1 AND sku = $2 FOR UPDATE`
	li, err := scanLocationInventory(t.q.QueryRowContext(ctx, query, locationID, sku))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrLocationInventoryNotFound
		}
		return nil, fmt.Errorf("ロケーション在庫取得に失敗しました: %w", err)
	}
	return li, nil
}

// CreateLocationInventory creates a new (location, SKU) stock row
// 新しいロケーション×SKUの在庫行を作成
func (t *pgTx) CreateLocationInventory(ctx context.Context, li *manufacturing.LocationInventory) error {
	query := `
		INSERT INTO location_inventory (` + locationInventoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := t.q.ExecContext(ctx, query,
		li.LocationID, li.SKU, li.ItemName, li.Quantity,
		li.UnitCost, li.ReorderPoint, li.Status, li.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ロケーション在庫は既に存在します: %s/%s", li.LocationID, li.SKU)
		}
		return fmt.Errorf("ロケーション在庫作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateLocationInventory updates a (location, SKU) stock row
// ロケーション×SKUの在庫行を更新
func (t *pgTx) UpdateLocationInventory(ctx context.Context, li *manufacturing.LocationInventory) error {
	query := `
		UPDATE location_inventory
		SET item_name = $3, quantity = $4, unit_cost = $5, reorder_point = $6, status = $7, updated_at = $8
		WHERE location_id = $1 AND sku = $2`

	result, err := t.q.ExecContext(ctx, query,
		li.LocationID, li.SKU, li.ItemName, li.Quantity,
		li.UnitCost, li.ReorderPoint, li.Status, li.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ロケーション在庫更新に失敗しました: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return manufacturing.ErrLocationInventoryNotFound
	}
	return nil
}

// ListLocationInventoryByLocation retrieves all stock rows at one location
// 指定ロケーションのすべての在庫行を取得
func (t *pgTx) ListLocationInventoryByLocation(ctx context.Context, locationID string) ([]manufacturing.LocationInventory, error) {
	query := `SELECT ` + locationInventoryColumns + ` FROM location_inventory WHERE location_id = $1 ORDER BY sku`
	return t.listLocationInventory(ctx, query, locationID)
}

// ListLocationInventoryBySKU retrieves all stock rows for one SKU
// 指定SKUのすべての在庫行を取得
func (t *pgTx) ListLocationInventoryBySKU(ctx context.Context, sku string) ([]manufacturing.LocationInventory, error) {
	query := `SELECT ` + locationInventoryColumns + ` FROM location_inventory WHERE sku = $1 ORDER BY location_id`
	return t.listLocationInventory(ctx, query, sku)
}

func (t *pgTx) listLocationInventory(ctx context.Context, query string, arg interface{}) ([]manufacturing.LocationInventory, error) {
	rows, err := t.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("ロケーション在庫一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []manufacturing.LocationInventory
	for rows.Next() {
		li, err := scanLocationInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("ロケーション在庫の読み取りに失敗しました: %w", err)
		}
		result = append(result, *li)
	}
	return result, rows.Err()
}

// SumLocationQuantity sums the stock of one SKU across all locations
// 1SKUの全ロケーション在庫を合計
func (t *pgTx) SumLocationQuantity(ctx context.Context, sku string) (int64, error) {
	var total int64
	query := `SELECT COALESCE(SUM(quantity), 0) FROM location_inventory WHERE sku = $1`
	if err := t.q.QueryRowContext(ctx, query, sku).Scan(&total); err != nil {
		return 0, fmt.Errorf("ロケーション在庫の集計に失敗しました: %w", err)
	}
	return total, nil
}

// AppendMovement inserts one ledger record, assigning the next movement ID
// 台帳レコードを1件追加し、次の移動IDを採番
func (t *pgTx) AppendMovement(ctx context.Context, m *manufacturing.StockMovement) error {
	query := `
		INSERT INTO stock_movements (movement_id, date, type, item_name, sku, quantity,
			from_location, to_location, reference, performed_by, notes)
		VALUES ('MOV' || lpad(nextval('movement_id_seq')::text, 4, '0'),
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING movement_id`

	err := t.q.QueryRowContext(ctx, query,
		m.Date, m.Type, m.ItemName, m.SKU, m.Quantity,
		m.FromLocation, m.ToLocation, m.Reference, m.PerformedBy, m.Notes,
	).Scan(&m.MovementID)
	if err != nil {
		return fmt.Errorf("在庫移動記録に失敗しました: %w", err)
	}
	return nil
}

// ListMovements retrieves ledger records matching the filter, newest first
// 条件に一致する台帳レコードを新しい順に取得
func (t *pgTx) ListMovements(ctx context.Context, filter manufacturing.MovementFilter) ([]manufacturing.StockMovement, error) {
	query := `
		SELECT movement_id, date, type, item_name, sku, quantity,
			from_location, to_location, reference, performed_by, notes
		FROM stock_movements
		WHERE ($1 = '' OR reference = $1)
			AND ($2 = '' OR sku = $2)
			AND ($3 = '' OR type = $3)
		ORDER BY date DESC, movement_id DESC`
	args := []interface{}{filter.Reference, filter.SKU, string(filter.Type)}
	if filter.Limit > 0 {
		query += ` LIMIT $4`
		args = append(args, filter.Limit)
	}

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("在庫移動一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var movements []manufacturing.StockMovement
	for rows.Next() {
		var m manufacturing.StockMovement
		err := rows.Scan(
			&m.MovementID, &m.Date, &m.Type, &m.ItemName, &m.SKU, &m.Quantity,
			&m.FromLocation, &m.ToLocation, &m.Reference, &m.PerformedBy, &m.Notes,
		)
		if err != nil {
			return nil, fmt.Errorf("在庫移動の読み取りに失敗しました: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// CreateLocation creates a new stock location
// 新しいロケーションを作成
func (t *pgTx) CreateLocation(ctx context.Context, loc *manufacturing.StockLocation) error {
	query := `
		INSERT INTO stock_locations (id, code, name, type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := t.q.ExecContext(ctx, query, loc.ID, loc.Code, loc.Name, loc.Type, loc.Status, loc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", manufacturing.ErrDuplicateCode, loc.Code)
		}
		return fmt.Errorf("ロケーション作成に失敗しました: %w", err)
	}
	return nil
}

// GetLocation retrieves a stock location by ID
// ロケーションをIDで取得
func (t *pgTx) GetLocation(ctx context.Context, id string) (*manufacturing.StockLocation, error) {
	query := `SELECT id, code, name, type, status, created_at FROM stock_locations WHERE id = $1`
	loc := &manufacturing.StockLocation{}
	err := t.q.QueryRowContext(ctx, query, id).Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Type, &loc.Status, &loc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrLocationNotFound
		}
		return nil, fmt.Errorf("ロケーション取得に失敗しました: %w", err)
	}
	return loc, nil
}

// ListLocations retrieves all stock locations
// すべてのロケーションを取得
func (t *pgTx) ListLocations(ctx context.Context) ([]manufacturing.StockLocation, error) {
	query := `SELECT id, code, name, type, status, created_at FROM stock_locations ORDER BY code`
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ロケーション一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var locations []manufacturing.StockLocation
	for rows.Next() {
		var loc manufacturing.StockLocation
		if err := rows.Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Type, &loc.Status, &loc.CreatedAt); err != nil {
			return nil, fmt.Errorf("ロケーションの読み取りに失敗しました: %w", err)
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// CreateSupplier creates a new supplier
// 新しい仕入先を作成
func (t *pgTx) CreateSupplier(ctx context.Context, s *manufacturing.Supplier) error {
	query := `
		INSERT INTO suppliers (id, code, name, email, phone, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.q.ExecContext(ctx, query, s.ID, s.Code, s.Name, s.Email, s.Phone, s.Status, s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", manufacturing.ErrDuplicateCode, s.Code)
		}
		return fmt.Errorf("仕入先作成に失敗しました: %w", err)
	}
	return nil
}

// GetSupplier retrieves a supplier by ID
// 仕入先をIDで取得
func (t *pgTx) GetSupplier(ctx context.Context, id string) (*manufacturing.Supplier, error) {
	query := `SELECT id, code, name, email, phone, status, created_at FROM suppliers WHERE id = $1`
	s := &manufacturing.Supplier{}
	err := t.q.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Code, &s.Name, &s.Email, &s.Phone, &s.Status, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrSupplierNotFound
		}
		return nil, fmt.Errorf("仕入先取得に失敗しました: %w", err)
	}
	return s, nil
}

// ListSuppliers retrieves all suppliers
// すべての仕入先を取得
func (t *pgTx) ListSuppliers(ctx context.Context) ([]manufacturing.Supplier, error) {
	query := `SELECT id, code, name, email, phone, status, created_at FROM suppliers ORDER BY code`
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("仕入先一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var suppliers []manufacturing.Supplier
	for rows.Next() {
		var s manufacturing.Supplier
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Email, &s.Phone, &s.Status, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("仕入先の読み取りに失敗しました: %w", err)
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

const bomColumns = `id, product_sku, product_name, version, status, inventory_item_id, components,
		total_material_cost, labor_cost, overhead_cost, total_cost, created_at, updated_at`

func scanBOM(row interface{ Scan(...interface{}) error }) (*manufacturing.BOM, error) {
	b := &manufacturing.BOM{}
	var componentsJSON []byte
	err := row.Scan(
		&b.ID, &b.ProductSKU, &b.ProductName, &b.Version, &b.Status, &b.InventoryItemID,
		&componentsJSON, &b.TotalMaterialCost, &b.LaborCost, &b.OverheadCost, &b.TotalCost,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(componentsJSON, &b.Components); err != nil {
		return nil, fmt.Errorf("構成部品の復元に失敗しました: %w", err)
	}
	return b, nil
}

// CreateBOM creates a new bill of materials; components are stored as JSONB
// 新しい部品表を作成（構成部品はJSONBとして保存）
func (t *pgTx) CreateBOM(ctx context.Context, b *manufacturing.BOM) error {
	componentsJSON, err := json.Marshal(b.Components)
	if err != nil {
		return fmt.Errorf("構成部品の変換に失敗しました: %w", err)
	}

	query := `
		INSERT INTO boms (` + bomColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = t.q.ExecContext(ctx, query,
		b.ID, b.ProductSKU, b.ProductName, b.Version, b.Status, b.InventoryItemID,
		componentsJSON, b.TotalMaterialCost, b.LaborCost, b.OverheadCost, b.TotalCost,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("部品表作成に失敗しました: %w", err)
	}
	return nil
}

// GetBOM retrieves a bill of materials by ID
// 部品表をIDで取得
func (t *pgTx) GetBOM(ctx context.Context, id string) (*manufacturing.BOM, error) {
	query := `SELECT ` + bomColumns + ` FROM boms WHERE id = $1`
	b, err := scanBOM(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrBOMNotFound
		}
		return nil, fmt.Errorf("部品表取得に失敗しました: %w", err)
	}
	return b, nil
}

// UpdateBOM updates a bill of materials
// 部品表を更新
func (t *pgTx) UpdateBOM(ctx context.Context, b *manufacturing.BOM) error {
	componentsJSON, err := json.Marshal(b.Components)
	if err != nil {
		return fmt.Errorf("構成部品の変換に失敗しました: %w", err)
	}

	query := `
		UPDATE boms
		SET product_sku = $2, product_name = $3, version = $4, status = $5, inventory_item_id = $6,
			components = $7, total_material_cost = $8, labor_cost = $9, overhead_cost = $10,
			total_cost = $11, updated_at = $12
		WHERE id = $1`

	result, err := t.q.ExecContext(ctx, query,
		b.ID, b.ProductSKU, b.ProductName, b.Version, b.Status, b.InventoryItemID,
		componentsJSON, b.TotalMaterialCost, b.LaborCost, b.OverheadCost, b.TotalCost,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("部品表更新に失敗しました: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return manufacturing.ErrBOMNotFound
	}
	return nil
}

// DeleteBOM removes a bill of materials
// 部品表を削除
func (t *pgTx) DeleteBOM(ctx context.Context, id string) error {
	result, err := t.q.ExecContext(ctx, `DELETE FROM boms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("部品表削除に失敗しました: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return manufacturing.ErrBOMNotFound
	}
	return nil
}

// ListBOMs retrieves all bills of materials
// すべての部品表を取得
func (t *pgTx) ListBOMs(ctx context.Context) ([]manufacturing.BOM, error) {
	query := `SELECT ` + bomColumns + ` FROM boms ORDER BY product_sku, version`
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("部品表一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var boms []manufacturing.BOM
	for rows.Next() {
		b, err := scanBOM(rows)
		if err != nil {
			return nil, fmt.Errorf("部品表の読み取りに失敗しました: %w", err)
		}
		boms = append(boms, *b)
	}
	return boms, rows.Err()
}

// CountActiveBOMsByItem counts active BOMs referencing one inventory item
// 指定品目を参照する有効な部品表の件数
func (t *pgTx) CountActiveBOMsByItem(ctx context.Context, inventoryItemID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM boms WHERE inventory_item_id = $1 AND status = 'active'`
	if err := t.q.QueryRowContext(ctx, query, inventoryItemID).Scan(&count); err != nil {
		return 0, fmt.Errorf("部品表件数取得に失敗しました: %w", err)
	}
	return count, nil
}

const productionOrderColumns = `id, work_order_number, bom_id, product_sku, quantity, quantity_produced,
		status, allocation_type, allocations, location_id, notes, created_at, updated_at, completed_at`

func scanProductionOrder(row interface{ Scan(...interface{}) error }) (*manufacturing.ProductionOrder, error) {
	o := &manufacturing.ProductionOrder{}
	var allocationsJSON []byte
	err := row.Scan(
		&o.ID, &o.WorkOrderNumber, &o.BOMID, &o.ProductSKU, &o.Quantity, &o.QuantityProduced,
		&o.Status, &o.AllocationType, &allocationsJSON, &o.LocationID, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt, &o.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(allocationsJSON, &o.Allocations); err != nil {
		return nil, fmt.Errorf("引当スナップショットの復元に失敗しました: %w", err)
	}
	return o, nil
}

// CreateProductionOrder creates a new production order; the allocation
// snapshot is stored as JSONB
// 新しい製造指図を作成（引当スナップショットはJSONBとして保存）
func (t *pgTx) CreateProductionOrder(ctx context.Context, o *manufacturing.ProductionOrder) error {
	allocationsJSON, err := json.Marshal(o.Allocations)
	if err != nil {
		return fmt.Errorf("引当スナップショットの変換に失敗しました: %w", err)
	}

	query := `
		INSERT INTO production_orders (` + productionOrderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = t.q.ExecContext(ctx, query,
		o.ID, o.WorkOrderNumber, o.BOMID, o.ProductSKU, o.Quantity, o.QuantityProduced,
		o.Status, o.AllocationType, allocationsJSON, o.LocationID, o.Notes,
		o.CreatedAt, o.UpdatedAt, o.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", manufacturing.ErrDuplicateCode, o.WorkOrderNumber)
		}
		return fmt.Errorf("製造指図作成に失敗しました: %w", err)
	}
	return nil
}

// GetProductionOrder retrieves a production order by ID
// 製造指図をIDで取得
func (t *pgTx) GetProductionOrder(ctx context.Context, id string) (*manufacturing.ProductionOrder, error) {
	query := `SELECT ` + productionOrderColumns + ` FROM production_orders WHERE id = $1`
	o, err := scanProductionOrder(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrOrderNotFound
		}
		return nil, fmt.Errorf("製造指図取得に失敗しました: %w", err)
	}
	return o, nil
}

// GetProductionOrderForUpdate retrieves a production order with a row lock
// 製造指図を行ロック付き取得
func (t *pgTx) GetProductionOrderForUpdate(ctx context.Context, id string) (*manufacturing.ProductionOrder, error) {
	query := `SELECT ` + productionOrderColumns + ` FROM production_orders WHERE id = $1 FOR UPDATE`
	o, err := scanProductionOrder(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrOrderNotFound
		}
		return nil, fmt.Errorf("製造指図取得に失敗しました: %w", err)
	}
	return o, nil
}

// UpdateProductionOrder updates a production order
// 製造指図を更新
func (t *pgTx) UpdateProductionOrder(ctx context.Context, o *manufacturing.ProductionOrder) error {
	query := `
		UPDATE production_orders
		SET quantity = $2, quantity_produced = $3, status = $4, allocation_type = $5,
			location_id = $6, notes = $7, updated_at = $8, completed_at = $9
		WHERE id = $1`

	result, err := t.q.ExecContext(ctx, query,
		o.ID, o.Quantity, o.QuantityProduced, o.Status, o.AllocationType,
		o.LocationID, o.Notes, o.UpdatedAt, o.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("製造指図更新に失敗しました: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return manufacturing.ErrOrderNotFound
	}
	return nil
}

// ListProductionOrders retrieves all production orders
// すべての製造指図を取得
func (t *pgTx) ListProductionOrders(ctx context.Context) ([]manufacturing.ProductionOrder, error) {
	query := `SELECT ` + productionOrderColumns + ` FROM production_orders ORDER BY work_order_number DESC`
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("製造指図一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var orders []manufacturing.ProductionOrder
	for rows.Next() {
		o, err := scanProductionOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("製造指図の読み取りに失敗しました: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// NextWorkOrderSequence returns the next value of the work order sequence
// 指図番号シーケンスの次の値を返す
func (t *pgTx) NextWorkOrderSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := t.q.QueryRowContext(ctx, `SELECT nextval('work_order_seq')`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("指図番号シーケンス取得に失敗しました: %w", err)
	}
	return seq, nil
}

const salesOrderColumns = `id, order_number, customer, lines, status, location_id, subtotal, total,
		created_at, updated_at, shipped_at`

func scanSalesOrder(row interface{ Scan(...interface{}) error }) (*manufacturing.SalesOrder, error) {
	o := &manufacturing.SalesOrder{}
	var linesJSON []byte
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.Customer, &linesJSON, &o.Status, &o.LocationID,
		&o.Subtotal, &o.Total, &o.CreatedAt, &o.UpdatedAt, &o.ShippedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return nil, fmt.Errorf("明細の復元に失敗しました: %w", err)
	}
	return o, nil
}

// CreateSalesOrder creates a new sales order; lines are stored as JSONB
// 新しい受注を作成（明細はJSONBとして保存）
func (t *pgTx) CreateSalesOrder(ctx context.Context, o *manufacturing.SalesOrder) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("明細の変換に失敗しました: %w", err)
	}

	query := `
		INSERT INTO sales_orders (` + salesOrderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = t.q.ExecContext(ctx, query,
		o.ID, o.OrderNumber, o.Customer, linesJSON, o.Status, o.LocationID,
		o.Subtotal, o.Total, o.CreatedAt, o.UpdatedAt, o.ShippedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", manufacturing.ErrDuplicateCode, o.OrderNumber)
		}
		return fmt.Errorf("受注作成に失敗しました: %w", err)
	}
	return nil
}

// GetSalesOrder retrieves a sales order by ID
// 受注をIDで取得
func (t *pgTx) GetSalesOrder(ctx context.Context, id string) (*manufacturing.SalesOrder, error) {
	query := `SELECT ` + salesOrderColumns + ` FROM sales_orders WHERE id = $1`
	o, err := scanSalesOrder(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrOrderNotFound
		}
		return nil, fmt.Errorf("受注取得に失敗しました: %w", err)
	}
	return o, nil
}

// GetSalesOrderForUpdate retrieves a sales order with a row lock
// 受注を行ロック付き取得
func (t *pgTx) GetSalesOrderForUpdate(ctx context.Context, id string) (*manufacturing.SalesOrder, error) {
	query := `SELECT ` + salesOrderColumns + ` FROM sales_orders WHERE id = $1 FOR UPDATE`
	o, err := scanSalesOrder(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrOrderNotFound
		}
		return nil, fmt.Errorf("受注取得に失敗しました: %w", err)
	}
	return o, nil
}

// UpdateSalesOrder updates a sales order
// 受注を更新
func (t *pgTx) UpdateSalesOrder(ctx context.Context, o *manufacturing.SalesOrder) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("明細の変換に失敗しました: %w", err)
	}

	query := `
		UPDATE sales_orders
		SET customer = $2, lines = $3, status = $4, location_id = $5, subtotal = $6,
			total = $7, updated_at = $8, shipped_at = $9
		WHERE id = $1`

	result, err := t.q.ExecContext(ctx, query,
		o.ID, o.Customer, linesJSON, o.Status, o.LocationID, o.Subtotal,
		o.Total, o.UpdatedAt, o.ShippedAt,
	)
	if err != nil {
		return fmt.Errorf("受注更新に失敗しました: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return manufacturing.ErrOrderNotFound
	}
	return nil
}

// ListSalesOrders retrieves all sales orders
// すべての受注を取得
func (t *pgTx) ListSalesOrders(ctx context.Context) ([]manufacturing.SalesOrder, error) {
	query := `SELECT ` + salesOrderColumns + ` FROM sales_orders ORDER BY created_at DESC`
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("受注一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var orders []manufacturing.SalesOrder
	for rows.Next() {
		o, err := scanSalesOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("受注の読み取りに失敗しました: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

const purchaseOrderColumns = `id, order_number, supplier, lines, status, location_id, subtotal, total,
		created_at, updated_at, received_at`

func scanPurchaseOrder(row interface{ Scan(...interface{}) error }) (*manufacturing.PurchaseOrder, error) {
	o := &manufacturing.PurchaseOrder{}
	var linesJSON []byte
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.Supplier, &linesJSON, &o.Status, &o.LocationID,
		&o.Subtotal, &o.Total, &o.CreatedAt, &o.UpdatedAt, &o.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return nil, fmt.Errorf("明細の復元に失敗しました: %w", err)
	}
	return o, nil
}

// CreatePurchaseOrder creates a new purchase order; lines are stored as JSONB
// 新しい発注を作成（明細はJSONBとして保存）
func (t *pgTx) CreatePurchaseOrder(ctx context.Context, o *manufacturing.PurchaseOrder) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("明細の変換に失敗しました: %w", err)
	}

	query := `
		INSERT INTO purchase_orders (` + purchaseOrderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = t.q.ExecContext(ctx, query,
		o.ID, o.OrderNumber, o.Supplier, linesJSON, o.Status, o.LocationID,
		o.Subtotal, o.Total, o.CreatedAt, o.UpdatedAt, o.ReceivedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", manufacturing.ErrDuplicateCode, o.OrderNumber)
		}
		return fmt.Errorf("発注作成に失敗しました: %w", err)
	}
	return nil
}

// GetPurchaseOrder retrieves a purchase order by ID
// 発注をIDで取得
func (t *pgTx) GetPurchaseOrder(ctx context.Context, id string) (*manufacturing.PurchaseOrder, error) {
	query := `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders WHERE id = $1`
	o, err := scanPurchaseOrder(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrOrderNotFound
		}
		return nil, fmt.Errorf("発注取得に失敗しました: %w", err)
	}
	return o, nil
}

// GetPurchaseOrderForUpdate retrieves a purchase order with a row lock
// 発注を行ロック付き取得
func (t *pgTx) GetPurchaseOrderForUpdate(ctx context.Context, id string) (*manufacturing.PurchaseOrder, error) {
	query := `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders WHERE id = $1 FOR UPDATE`
	o, err := scanPurchaseOrder(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, manufacturing.ErrOrderNotFound
		}
		return nil, fmt.Errorf("発注取得に失敗しました: %w", err)
	}
	return o, nil
}

// UpdatePurchaseOrder updates a purchase order
// 発注を更新
func (t *pgTx) UpdatePurchaseOrder(ctx context.Context, o *manufacturing.PurchaseOrder) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("明細の変換に失敗しました: %w", err)
	}

	query := `
		UPDATE purchase_orders
		SET supplier = $2, lines = $3, status = $4, location_id = $5, subtotal = $6,
			total = $7, updated_at = $8, received_at = $9
		WHERE id = $1`

	result, err := t.q.ExecContext(ctx, query,
		o.ID, o.Supplier, linesJSON, o.Status, o.LocationID, o.Subtotal,
		o.Total, o.UpdatedAt, o.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("発注更新に失敗しました: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return manufacturing.ErrOrderNotFound
	}
	return nil
}

// ListPurchaseOrders retrieves all purchase orders
// すべての発注を取得
func (t *pgTx) ListPurchaseOrders(ctx context.Context) ([]manufacturing.PurchaseOrder, error) {
	query := `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders ORDER BY created_at DESC`
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("発注一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var orders []manufacturing.PurchaseOrder
	for rows.Next() {
		o, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("発注の読み取りに失敗しました: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
