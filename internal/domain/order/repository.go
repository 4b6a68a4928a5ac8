package order

import (
	"context"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

// Repository は注文リポジトリのインターフェース
type Repository interface {
	// Create は新しい注文と明細を作成する（トランザクション必須）
	Create(ctx context.Context, h transaction.Handle, o *Order) error

	// GetByID はIDから注文を取得する
	GetByID(ctx context.Context, h transaction.Handle, id string) (*Order, error)

	// GetByIdempotencyKey は冪等性キーから注文を取得する
	GetByIdempotencyKey(ctx context.Context, key string) (*Order, error)

	// LockByID は行ロックを取って注文を取得する（トランザクション必須）
	LockByID(ctx context.Context, h transaction.Handle, id string) (*Order, error)

	// Update は注文の状態を更新する（トランザクション必須）
	Update(ctx context.Context, h transaction.Handle, o *Order) error

	// GetExpiredPending は期限切れの支払い待ち注文のIDを返す
	GetExpiredPending(ctx context.Context, limit int) ([]string, error)
}
