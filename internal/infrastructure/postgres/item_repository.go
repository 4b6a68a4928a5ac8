package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/biud436/blog-api-server-sub000/internal/domain/inventory"
	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

type itemRow struct {
	ID        string    `db:"id"`
	SKU       string    `db:"sku"`
	Name      string    `db:"name"`
	Price     int       `db:"price"`
	Stock     int       `db:"stock"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *itemRow) toEntity() *inventory.Item {
	return &inventory.Item{
		ID: r.ID, SKU: r.SKU, Name: r.Name, Price: r.Price, Stock: r.Stock,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type ItemRepository struct{ db *sqlx.DB }

func NewItemRepository(db *sqlx.DB) *ItemRepository { return &ItemRepository{db: db} }

func (r *ItemRepository) Create(ctx context.Context, h transaction.Handle, item *inventory.Item) error {
	q, err := queryer(r.db, h)
	if err != nil {
		return err
	}
	query := `INSERT INTO items (sku, name, price, stock, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := q.QueryRowxContext(ctx, query, item.SKU, item.Name, item.Price, item.Stock, item.CreatedAt, item.UpdatedAt).Scan(&item.ID); err != nil {
		if isUniqueViolation(err) {
			return inventory.ErrSKUAlreadyExists
		}
		return fmt.Errorf("商品作成に失敗: %w", translateError(err))
	}
	return nil
}

func (r *ItemRepository) GetByID(ctx context.Context, h transaction.Handle, id string) (*inventory.Item, error) {
	q, err := queryer(r.db, h)
	if err != nil {
		return nil, err
	}
	var row itemRow
	query := `SELECT id, sku, name, price, stock, created_at, updated_at FROM items WHERE id = $1`
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrItemNotFound
		}
		return nil, fmt.Errorf("商品取得に失敗: %w", translateError(err))
	}
	return row.toEntity(), nil
}

// DecreaseStock は在庫が足りる場合だけ減らす
func (r *ItemRepository) DecreaseStock(ctx context.Context, h transaction.Handle, id string, quantity int) error {
	if quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}
	q, err := queryer(r.db, h)
	if err != nil {
		return err
	}
	query := `UPDATE items SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1`
	result, err := q.ExecContext(ctx, query, quantity, id)
	if err != nil {
		return fmt.Errorf("在庫引当に失敗: %w", translateError(err))
	}
	rows, _ := result.RowsAffected()
	if rows == 1 {
		return nil
	}

	// 商品がないのか在庫が足りないのかを区別する
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("商品確認に失敗: %w", translateError(err))
	}
	if !exists {
		return inventory.ErrItemNotFound
	}
	return inventory.ErrOutOfStock
}

func (r *ItemRepository) IncreaseStock(ctx context.Context, h transaction.Handle, id string, quantity int) error {
	if quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}
	q, err := queryer(r.db, h)
	if err != nil {
		return err
	}
	result, err := q.ExecContext(ctx, `UPDATE items SET stock = stock + $1, updated_at = NOW() WHERE id = $2`, quantity, id)
	if err != nil {
		return fmt.Errorf("在庫戻しに失敗: %w", translateError(err))
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return inventory.ErrItemNotFound
	}
	return nil
}

var _ inventory.Repository = (*ItemRepository)(nil)
