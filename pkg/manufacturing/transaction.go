package manufacturing

import (
	"fmt"
	"strconv"
	"strings"
)

// StockTransaction is one requested ledger entry before it is applied.
// Quantity is always a positive magnitude; the movement type decides the
// sign of the resulting delta. Adjustments carry the signed Delta instead.
// 適用前の在庫トランザクション要求。Quantityは常に正の数量であり、
// 符号は移動種別が決める。調整のみ符号付きのDeltaを使う。
type StockTransaction struct {
	Type           MovementType `json:"type"`
	SKU            string       `json:"sku"`
	Quantity       int64        `json:"quantity,omitempty"`
	Delta          int64        `json:"delta,omitempty"`
	FromLocationID string       `json:"fromLocationId,omitempty"`
	ToLocationID   string       `json:"toLocationId,omitempty"`
	LocationID     string       `json:"locationId,omitempty"`
	UnitCost       *float64     `json:"unitCost,omitempty"`
	Reference      string       `json:"reference,omitempty"`
	PerformedBy    string       `json:"performedBy,omitempty"`
	Notes          string       `json:"notes,omitempty"`
}

// Normalize trims identifiers and fills per-type location defaults
// 識別子を整形し、種別ごとのロケーション既定値を補完
func (t *StockTransaction) Normalize() {
	t.SKU = strings.TrimSpace(t.SKU)
	t.FromLocationID = strings.TrimSpace(t.FromLocationID)
	t.ToLocationID = strings.TrimSpace(t.ToLocationID)
	t.LocationID = strings.TrimSpace(t.LocationID)
	t.Reference = strings.TrimSpace(t.Reference)

	switch t.Type {
	case MovementReceipt:
		if t.ToLocationID == "" {
			t.ToLocationID = t.LocationID
		}
	case MovementSale, MovementConsumption:
		if t.FromLocationID == "" {
			t.FromLocationID = t.LocationID
		}
	case MovementAdjustment:
		if t.LocationID == "" {
			if t.Delta >= 0 {
				t.LocationID = t.ToLocationID
			} else {
				t.LocationID = t.FromLocationID
			}
		}
		// HTTPクライアントはquantityのみを送ることがある
		if t.Delta == 0 && t.Quantity != 0 {
			t.Delta = t.Quantity
		}
	}
}

// Validate rejects the request before any ledger side effect happens.
// An unknown movement type is its own error kind so callers can
// distinguish it from plain field validation.
// 台帳への副作用が起きる前に要求を検証する。未知の移動種別は
// 通常の項目検証と区別できる独自のエラー種別とする。
func (t *StockTransaction) Validate() error {
	switch t.Type {
	case MovementReceipt:
		if t.SKU == "" {
			return NewValidationError("sku", "SKUは必須です", t.SKU)
		}
		if t.Quantity <= 0 {
			return NewValidationError("quantity", "数量は正の値である必要があります", strconv.FormatInt(t.Quantity, 10))
		}
		if t.ToLocationID == "" {
			return NewValidationError("toLocationId", "入庫先ロケーションは必須です", t.ToLocationID)
		}
	case MovementSale, MovementConsumption:
		if t.SKU == "" {
			return NewValidationError("sku", "SKUは必須です", t.SKU)
		}
		if t.Quantity <= 0 {
			return NewValidationError("quantity", "数量は正の値である必要があります", strconv.FormatInt(t.Quantity, 10))
		}
		if t.FromLocationID == "" {
			return NewValidationError("fromLocationId", "出庫元ロケーションは必須です", t.FromLocationID)
		}
	case MovementTransfer:
		if t.SKU == "" {
			return NewValidationError("sku", "SKUは必須です", t.SKU)
		}
		if t.Quantity <= 0 {
			return NewValidationError("quantity", "数量は正の値である必要があります", strconv.FormatInt(t.Quantity, 10))
		}
		if t.FromLocationID == "" {
			return NewValidationError("fromLocationId", "移動元ロケーションは必須です", t.FromLocationID)
		}
		if t.ToLocationID == "" {
			return NewValidationError("toLocationId", "移動先ロケーションは必須です", t.ToLocationID)
		}
		if t.FromLocationID == t.ToLocationID {
			return NewValidationError("toLocationId", "移動元と移動先のロケーションは別である必要があります", t.ToLocationID)
		}
	case MovementAdjustment:
		if t.SKU == "" {
			return NewValidationError("sku", "SKUは必須です", t.SKU)
		}
		if t.Delta == 0 {
			return NewValidationError("delta", "調整量は0以外である必要があります", strconv.FormatInt(t.Delta, 10))
		}
		if t.LocationID == "" {
			return NewValidationError("locationId", "調整対象ロケーションは必須です", t.LocationID)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidTransactionType, t.Type)
	}
	return nil
}

// signedDelta returns the change applied to the master quantity
// マスター数量へ適用される符号付き変化量
func (t *StockTransaction) signedDelta() int64 {
	switch t.Type {
	case MovementReceipt:
		return t.Quantity
	case MovementSale, MovementConsumption:
		return -t.Quantity
	case MovementAdjustment:
		return t.Delta
	case MovementTransfer:
		return 0
	}
	return 0
}
