package inventory

import "time"

// Item は在庫を持つ商品エンティティを表す
type Item struct {
	ID        string
	SKU       string
	Name      string
	Price     int
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewItem は新しい商品を作成する
func NewItem(sku, name string, price, stock int) *Item {
	now := time.Now()
	return &Item{
		SKU:       sku,
		Name:      name,
		Price:     price,
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate は商品の検証を行う
func (i *Item) Validate() error {
	if i.SKU == "" {
		return ErrSKURequired
	}
	if i.Name == "" {
		return ErrNameRequired
	}
	if i.Price < 0 {
		return ErrInvalidPrice
	}
	if i.Stock < 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// CanReserve は指定数量を引き当てられるかを返す
func (i *Item) CanReserve(quantity int) bool {
	return quantity > 0 && i.Stock >= quantity
}
