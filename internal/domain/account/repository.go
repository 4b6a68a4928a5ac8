package account

import (
	"context"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

// Repository はアカウントリポジトリのインターフェース
type Repository interface {
	// Create は新しいアカウントを作成する
	Create(ctx context.Context, h transaction.Handle, a *Account) error

	// GetByID はIDからアカウントを取得する
	GetByID(ctx context.Context, h transaction.Handle, id string) (*Account, error)

	// UpdateBalance は残高を更新する（トランザクション必須）
	UpdateBalance(ctx context.Context, h transaction.Handle, a *Account) error
}
