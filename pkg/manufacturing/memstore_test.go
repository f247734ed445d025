package manufacturing

import (
	"context"
	"fmt"
	"sync"
)

// memStore is an in-memory Store for tests. WithinTx takes a deep snapshot
// of all state and restores it when the callback fails, mirroring the
// rollback behavior of the SQL implementation.
// テスト用のインメモリStore。WithinTxは全状態のスナップショットを取り、
// コールバック失敗時に復元することでSQL実装のロールバックを再現する。
type memStore struct {
	mu sync.Mutex

	items            map[string]*InventoryItem // by ID
	skuIndex         map[string]string         // SKU -> ID
	locationInv      map[string]*LocationInventory
	movements        []StockMovement
	locations        map[string]*StockLocation
	suppliers        map[string]*Supplier
	boms             map[string]*BOM
	productionOrders map[string]*ProductionOrder
	salesOrders      map[string]*SalesOrder
	purchaseOrders   map[string]*PurchaseOrder

	movementSeq  int64
	workOrderSeq int64
	skuSeq       int64

	// 失敗注入フック（ロールバック検証用）
	failLocationWrite func(li *LocationInventory) error
}

func newMemStore() *memStore {
	return &memStore{
		items:            make(map[string]*InventoryItem),
		skuIndex:         make(map[string]string),
		locationInv:      make(map[string]*LocationInventory),
		locations:        make(map[string]*StockLocation),
		suppliers:        make(map[string]*Supplier),
		boms:             make(map[string]*BOM),
		productionOrders: make(map[string]*ProductionOrder),
		salesOrders:      make(map[string]*SalesOrder),
		purchaseOrders:   make(map[string]*PurchaseOrder),
	}
}

var _ Store = (*memStore)(nil)

func invKey(locationID, sku string) string {
	return locationID + "|" + sku
}

type memSnapshot struct {
	items            map[string]*InventoryItem
	skuIndex         map[string]string
	locationInv      map[string]*LocationInventory
	movements        []StockMovement
	locations        map[string]*StockLocation
	suppliers        map[string]*Supplier
	boms             map[string]*BOM
	productionOrders map[string]*ProductionOrder
	salesOrders      map[string]*SalesOrder
	purchaseOrders   map[string]*PurchaseOrder
	movementSeq      int64
	workOrderSeq     int64
	skuSeq           int64
}

func (s *memStore) snapshot() *memSnapshot {
	snap := &memSnapshot{
		items:            make(map[string]*InventoryItem, len(s.items)),
		skuIndex:         make(map[string]string, len(s.skuIndex)),
		locationInv:      make(map[string]*LocationInventory, len(s.locationInv)),
		movements:        append([]StockMovement(nil), s.movements...),
		locations:        make(map[string]*StockLocation, len(s.locations)),
		suppliers:        make(map[string]*Supplier, len(s.suppliers)),
		boms:             make(map[string]*BOM, len(s.boms)),
		productionOrders: make(map[string]*ProductionOrder, len(s.productionOrders)),
		salesOrders:      make(map[string]*SalesOrder, len(s.salesOrders)),
		purchaseOrders:   make(map[string]*PurchaseOrder, len(s.purchaseOrders)),
		movementSeq:      s.movementSeq,
		workOrderSeq:     s.workOrderSeq,
		skuSeq:           s.skuSeq,
	}
	for k, v := range s.items {
		c := *v
		snap.items[k] = &c
	}
	for k, v := range s.skuIndex {
		snap.skuIndex[k] = v
	}
	for k, v := range s.locationInv {
		c := *v
		snap.locationInv[k] = &c
	}
	for k, v := range s.locations {
		c := *v
		snap.locations[k] = &c
	}
	for k, v := range s.suppliers {
		c := *v
		snap.suppliers[k] = &c
	}
	for k, v := range s.boms {
		c := *v
		c.Components = append([]BOMComponent(nil), v.Components...)
		snap.boms[k] = &c
	}
	for k, v := range s.productionOrders {
		c := *v
		c.Allocations = append([]ComponentRequirement(nil), v.Allocations...)
		snap.productionOrders[k] = &c
	}
	for k, v := range s.salesOrders {
		c := *v
		c.Lines = append([]OrderLine(nil), v.Lines...)
		snap.salesOrders[k] = &c
	}
	for k, v := range s.purchaseOrders {
		c := *v
		c.Lines = append([]OrderLine(nil), v.Lines...)
		snap.purchaseOrders[k] = &c
	}
	return snap
}

func (s *memStore) restore(snap *memSnapshot) {
	s.items = snap.items
	s.skuIndex = snap.skuIndex
	s.locationInv = snap.locationInv
	s.movements = snap.movements
	s.locations = snap.locations
	s.suppliers = snap.suppliers
	s.boms = snap.boms
	s.productionOrders = snap.productionOrders
	s.salesOrders = snap.salesOrders
	s.purchaseOrders = snap.purchaseOrders
	s.movementSeq = snap.movementSeq
	s.workOrderSeq = snap.workOrderSeq
	s.skuSeq = snap.skuSeq
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) Ping(ctx context.Context) error { return nil }
func (s *memStore) Close() error                   { return nil }

// 在庫品目

func (s *memStore) CreateItem(ctx context.Context, item *InventoryItem) error {
	if _, ok := s.skuIndex[item.SKU]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, item.SKU)
	}
	c := *item
	s.items[item.ID] = &c
	s.skuIndex[item.SKU] = item.ID
	return nil
}

func (s *memStore) GetItem(ctx context.Context, id string) (*InventoryItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	c := *item
	return &c, nil
}

func (s *memStore) GetItemBySKU(ctx context.Context, sku string) (*InventoryItem, error) {
	id, ok := s.skuIndex[sku]
	if !ok {
		return nil, ErrItemNotFound
	}
	return s.GetItem(ctx, id)
}

func (s *memStore) GetItemBySKUForUpdate(ctx context.Context, sku string) (*InventoryItem, error) {
	return s.GetItemBySKU(ctx, sku)
}

func (s *memStore) UpdateItem(ctx context.Context, item *InventoryItem) error {
	if _, ok := s.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	c := *item
	s.items[item.ID] = &c
	s.skuIndex[item.SKU] = item.ID
	return nil
}

func (s *memStore) DeleteItem(ctx context.Context, id string) error {
	item, ok := s.items[id]
	if !ok {
		return ErrItemNotFound
	}
	delete(s.skuIndex, item.SKU)
	delete(s.items, id)
	return nil
}

func (s *memStore) ListItems(ctx context.Context) ([]InventoryItem, error) {
	items := make([]InventoryItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, *item)
	}
	return items, nil
}

func (s *memStore) NextSKUSequence(ctx context.Context) (int64, error) {
	s.skuSeq++
	return s.skuSeq, nil
}

// ロケーション在庫

func (s *memStore) GetLocationInventory(ctx context.Context, locationID, sku string) (*LocationInventory, error) {
	li, ok := s.locationInv[invKey(locationID, sku)]
	if !ok {
		return nil, ErrLocationInventoryNotFound
	}
	c := *li
	return &c, nil
}

func (s *memStore) GetLocationInventoryForUpdate(ctx context.Context, locationID, sku string) (*LocationInventory, error) {
	return s.GetLocationInventory(ctx, locationID, sku)
}

func (s *memStore) CreateLocationInventory(ctx context.Context, li *LocationInventory) error {
	if s.failLocationWrite != nil {
		if err := s.failLocationWrite(li); err != nil {
			return err
		}
	}
	c := *li
	s.locationInv[invKey(li.LocationID, li.SKU)] = &c
	return nil
}

func (s *memStore) UpdateLocationInventory(ctx context.Context, li *LocationInventory) error {
	if s.failLocationWrite != nil {
		if err := s.failLocationWrite(li); err != nil {
			return err
		}
	}
	if _, ok := s.locationInv[invKey(li.LocationID, li.SKU)]; !ok {
		return ErrLocationInventoryNotFound
	}
	c := *li
	s.locationInv[invKey(li.LocationID, li.SKU)] = &c
	return nil
}

func (s *memStore) ListLocationInventoryByLocation(ctx context.Context, locationID string) ([]LocationInventory, error) {
	var rows []LocationInventory
	for _, li := range s.locationInv {
		if li.LocationID == locationID {
			rows = append(rows, *li)
		}
	}
	return rows, nil
}

func (s *memStore) ListLocationInventoryBySKU(ctx context.Context, sku string) ([]LocationInventory, error) {
	var rows []LocationInventory
	for _, li := range s.locationInv {
		if li.SKU == sku {
			rows = append(rows, *li)
		}
	}
	return rows, nil
}

func (s *memStore) SumLocationQuantity(ctx context.Context, sku string) (int64, error) {
	var total int64
	for _, li := range s.locationInv {
		if li.SKU == sku {
			total += li.Quantity
		}
	}
	return total, nil
}

// 在庫移動台帳

func (s *memStore) AppendMovement(ctx context.Context, m *StockMovement) error {
	s.movementSeq++
	m.MovementID = fmt.Sprintf("MOV%04d", s.movementSeq)
	s.movements = append(s.movements, *m)
	return nil
}

func (s *memStore) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	var result []StockMovement
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if filter.Reference != "" && m.Reference != filter.Reference {
			continue
		}
		if filter.SKU != "" && m.SKU != filter.SKU {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		result = append(result, m)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// ロケーション

func (s *memStore) CreateLocation(ctx context.Context, loc *StockLocation) error {
	for _, existing := range s.locations {
		if existing.Code == loc.Code {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, loc.Code)
		}
	}
	c := *loc
	s.locations[loc.ID] = &c
	return nil
}

func (s *memStore) GetLocation(ctx context.Context, id string) (*StockLocation, error) {
	loc, ok := s.locations[id]
	if !ok {
		return nil, ErrLocationNotFound
	}
	c := *loc
	return &c, nil
}

func (s *memStore) ListLocations(ctx context.Context) ([]StockLocation, error) {
	locations := make([]StockLocation, 0, len(s.locations))
	for _, loc := range s.locations {
		locations = append(locations, *loc)
	}
	return locations, nil
}

// 仕入先

func (s *memStore) CreateSupplier(ctx context.Context, sup *Supplier) error {
	for _, existing := range s.suppliers {
		if existing.Code == sup.Code {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, sup.Code)
		}
	}
	c := *sup
	s.suppliers[sup.ID] = &c
	return nil
}

func (s *memStore) GetSupplier(ctx context.Context, id string) (*Supplier, error) {
	sup, ok := s.suppliers[id]
	if !ok {
		return nil, ErrSupplierNotFound
	}
	c := *sup
	return &c, nil
}

func (s *memStore) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	suppliers := make([]Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		suppliers = append(suppliers, *sup)
	}
	return suppliers, nil
}

// 部品表

func (s *memStore) CreateBOM(ctx context.Context, b *BOM) error {
	c := *b
	c.Components = append([]BOMComponent(nil), b.Components...)
	s.boms[b.ID] = &c
	return nil
}

func (s *memStore) GetBOM(ctx context.Context, id string) (*BOM, error) {
	b, ok := s.boms[id]
	if !ok {
		return nil, ErrBOMNotFound
	}
	c := *b
	c.Components = append([]BOMComponent(nil), b.Components...)
	return &c, nil
}

func (s *memStore) UpdateBOM(ctx context.Context, b *BOM) error {
	if _, ok := s.boms[b.ID]; !ok {
		return ErrBOMNotFound
	}
	c := *b
	c.Components = append([]BOMComponent(nil), b.Components...)
	s.boms[b.ID] = &c
	return nil
}

func (s *memStore) DeleteBOM(ctx context.Context, id string) error {
	if _, ok := s.boms[id]; !ok {
		return ErrBOMNotFound
	}
	delete(s.boms, id)
	return nil
}

func (s *memStore) ListBOMs(ctx context.Context) ([]BOM, error) {
	boms := make([]BOM, 0, len(s.boms))
	for _, b := range s.boms {
		c := *b
		c.Components = append([]BOMComponent(nil), b.Components...)
		boms = append(boms, c)
	}
	return boms, nil
}

func (s *memStore) CountActiveBOMsByItem(ctx context.Context, inventoryItemID string) (int, error) {
	count := 0
	for _, b := range s.boms {
		if b.InventoryItemID == inventoryItemID && b.Status == BOMStatusActive {
			count++
		}
	}
	return count, nil
}

// 製造指図

func (s *memStore) CreateProductionOrder(ctx context.Context, o *ProductionOrder) error {
	c := *o
	c.Allocations = append([]ComponentRequirement(nil), o.Allocations...)
	s.productionOrders[o.ID] = &c
	return nil
}

func (s *memStore) GetProductionOrder(ctx context.Context, id string) (*ProductionOrder, error) {
	o, ok := s.productionOrders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	c := *o
	c.Allocations = append([]ComponentRequirement(nil), o.Allocations...)
	return &c, nil
}

func (s *memStore) GetProductionOrderForUpdate(ctx context.Context, id string) (*ProductionOrder, error) {
	return s.GetProductionOrder(ctx, id)
}

func (s *memStore) UpdateProductionOrder(ctx context.Context, o *ProductionOrder) error {
	if _, ok := s.productionOrders[o.ID]; !ok {
		return ErrOrderNotFound
	}
	c := *o
	c.Allocations = append([]ComponentRequirement(nil), o.Allocations...)
	s.productionOrders[o.ID] = &c
	return nil
}

func (s *memStore) ListProductionOrders(ctx context.Context) ([]ProductionOrder, error) {
	orders := make([]ProductionOrder, 0, len(s.productionOrders))
	for _, o := range s.productionOrders {
		orders = append(orders, *o)
	}
	return orders, nil
}

func (s *memStore) NextWorkOrderSequence(ctx context.Context) (int64, error) {
	s.workOrderSeq++
	return s.workOrderSeq, nil
}

// 受注

func (s *memStore) CreateSalesOrder(ctx context.Context, o *SalesOrder) error {
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	s.salesOrders[o.ID] = &c
	return nil
}

func (s *memStore) GetSalesOrder(ctx context.Context, id string) (*SalesOrder, error) {
	o, ok := s.salesOrders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	return &c, nil
}

func (s *memStore) GetSalesOrderForUpdate(ctx context.Context, id string) (*SalesOrder, error) {
	return s.GetSalesOrder(ctx, id)
}

func (s *memStore) UpdateSalesOrder(ctx context.Context, o *SalesOrder) error {
	if _, ok := s.salesOrders[o.ID]; !ok {
		return ErrOrderNotFound
	}
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	s.salesOrders[o.ID] = &c
	return nil
}

func (s *memStore) ListSalesOrders(ctx context.Context) ([]SalesOrder, error) {
	orders := make([]SalesOrder, 0, len(s.salesOrders))
	for _, o := range s.salesOrders {
		orders = append(orders, *o)
	}
	return orders, nil
}

// 発注

func (s *memStore) CreatePurchaseOrder(ctx context.Context, o *PurchaseOrder) error {
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	s.purchaseOrders[o.ID] = &c
	return nil
}

func (s *memStore) GetPurchaseOrder(ctx context.Context, id string) (*PurchaseOrder, error) {
	o, ok := s.purchaseOrders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	return &c, nil
}

func (s *memStore) GetPurchaseOrderForUpdate(ctx context.Context, id string) (*PurchaseOrder, error) {
	return s.GetPurchaseOrder(ctx, id)
}

func (s *memStore) UpdatePurchaseOrder(ctx context.Context, o *PurchaseOrder) error {
	if _, ok := s.purchaseOrders[o.ID]; !ok {
		return ErrOrderNotFound
	}
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	s.purchaseOrders[o.ID] = &c
	return nil
}

func (s *memStore) ListPurchaseOrders(ctx context.Context) ([]PurchaseOrder, error) {
	orders := make([]PurchaseOrder, 0, len(s.purchaseOrders))
	for _, o := range s.purchaseOrders {
		orders = append(orders, *o)
	}
	return orders, nil
}
