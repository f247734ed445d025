package manufacturing

import (
	"errors"
	"fmt"
)

// Common manufacturing core errors
// 製造コア共通のエラー定義

var (
	// ErrItemNotFound is returned when an inventory item doesn't exist
	// 在庫品目が存在しない場合のエラー
	ErrItemNotFound = errors.New("在庫品目が見つかりません")

	// ErrLocationNotFound is returned when a stock location doesn't exist
	// ロケーションが存在しない場合のエラー
	ErrLocationNotFound = errors.New("ロケーションが見つかりません")

	// ErrLocationInventoryNotFound is returned when no per-location record exists
	// ロケーション在庫記録が存在しない場合のエラー
	ErrLocationInventoryNotFound = errors.New("ロケーション在庫記録が見つかりません")

	// ErrBOMNotFound is returned when a bill of materials doesn't exist
	// 部品表が存在しない場合のエラー
	ErrBOMNotFound = errors.New("部品表が見つかりません")

	// ErrOrderNotFound is returned when a production, sales or purchase order doesn't exist
	// 指図・受注・発注が存在しない場合のエラー
	ErrOrderNotFound = errors.New("オーダーが見つかりません")

	// ErrSupplierNotFound is returned when a supplier doesn't exist
	// 仕入先が存在しない場合のエラー
	ErrSupplierNotFound = errors.New("仕入先が見つかりません")

	// ErrInsufficientStock is returned when a transaction would drive a quantity negative
	// トランザクションが在庫を負の値にしてしまう場合のエラー
	ErrInsufficientStock = errors.New("在庫が不足しています")

	// ErrInsufficientComponentStock is returned when allocation exceeds unallocated stock
	// 引当が未引当在庫を超える場合のエラー
	ErrInsufficientComponentStock = errors.New("構成部品の在庫が不足しています")

	// ErrInvalidTransactionType is returned for an unrecognized transaction type
	// 未知のトランザクション種別に対するエラー
	ErrInvalidTransactionType = errors.New("無効なトランザクション種別です")

	// ErrInvalidOrderState is returned when transitioning a terminal order
	// 終端状態のオーダーを遷移させようとした場合のエラー
	ErrInvalidOrderState = errors.New("オーダーの状態遷移が許可されていません")

	// ErrDuplicateCode is returned on unique code collisions
	// 一意コードの重複に対するエラー
	ErrDuplicateCode = errors.New("コードは既に使用されています")

	// ErrLinkedEntityConflict is returned when deleting an entity still referenced
	// 参照されているエンティティを削除しようとした場合のエラー
	ErrLinkedEntityConflict = errors.New("関連エンティティから参照されているため削除できません")
)

// ValidationError represents a field validation failure with details
// 詳細付きフィールドバリデーションエラーを表現
type ValidationError struct {
	Field   string `json:"field"`   // エラーフィールド
	Message string `json:"message"` // エラーメッセージ
	Value   string `json:"value"`   // 無効な値
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("バリデーションエラー [%s]: %s (値: %s)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new validation error
// 新しいバリデーションエラーを作成
func NewValidationError(field, message, value string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// StorageError represents a storage layer failure
// ストレージ層のエラーを表現
type StorageError struct {
	Operation string `json:"operation"` // 操作名
	Message   string `json:"message"`   // エラーメッセージ
	Cause     error  `json:"cause"`     // 原因エラー
}

func (e StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ストレージエラー [%s]: %s (原因: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("ストレージエラー [%s]: %s", e.Operation, e.Message)
}

func (e StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new storage error
// 新しいストレージエラーを作成
func NewStorageError(operation, message string, cause error) *StorageError {
	return &StorageError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// Kind returns a machine-readable error kind for API responses
// APIレスポンス用の機械可読なエラー種別を返す
func Kind(err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return "validation_error"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInsufficientComponentStock):
		return "insufficient_component_stock"
	case errors.Is(err, ErrInvalidTransactionType):
		return "invalid_transaction_type"
	case errors.Is(err, ErrInvalidOrderState):
		return "invalid_order_state"
	case errors.Is(err, ErrDuplicateCode):
		return "duplicate_code"
	case errors.Is(err, ErrLinkedEntityConflict):
		return "linked_entity_conflict"
	case errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrLocationNotFound),
		errors.Is(err, ErrLocationInventoryNotFound),
		errors.Is(err, ErrBOMNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrSupplierNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}

// IsNotFound reports whether the error is one of the not-found sentinels
// not-found系のエラーかどうかを返す
func IsNotFound(err error) bool {
	return Kind(err) == "not_found"
}
