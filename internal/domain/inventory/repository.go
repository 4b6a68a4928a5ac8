package inventory

import (
	"context"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

// Repository は商品リポジトリのインターフェース
// h が nil の場合はトランザクション外で実行する
type Repository interface {
	// Create は新しい商品を作成する
	Create(ctx context.Context, h transaction.Handle, item *Item) error

	// GetByID はIDから商品を取得する
	GetByID(ctx context.Context, h transaction.Handle, id string) (*Item, error)

	// DecreaseStock は在庫を減らす。不足している場合は ErrOutOfStock
	DecreaseStock(ctx context.Context, h transaction.Handle, id string, quantity int) error

	// IncreaseStock は在庫を戻す
	IncreaseStock(ctx context.Context, h transaction.Handle, id string, quantity int) error
}
