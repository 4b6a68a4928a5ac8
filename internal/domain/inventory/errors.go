package inventory

import "errors"

// Inventory ドメインのエラー定義
var (
	ErrItemNotFound     = errors.New("商品が見つかりません")
	ErrOutOfStock       = errors.New("在庫が不足しています")
	ErrSKURequired      = errors.New("SKUは必須です")
	ErrNameRequired     = errors.New("商品名は必須です")
	ErrInvalidPrice     = errors.New("価格が不正です")
	ErrInvalidQuantity  = errors.New("数量が不正です")
	ErrSKUAlreadyExists = errors.New("同じSKUの商品が既に存在します")
)
