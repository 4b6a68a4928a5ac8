package postgres

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
	"github.com/biud436/blog-api-server-sub000/internal/transactional"
)

// SessionHandle は gorm のトランザクション用サブセッション
type SessionHandle struct {
	DB *gorm.DB
}

var _ transaction.Handle = (*SessionHandle)(nil)

// Kind はハンドルの種類
func (s *SessionHandle) Kind() transaction.HandleKind {
	return transaction.HandleKindSession
}

// SessionRunner は gorm の Transaction でメソッドを実行する
type SessionRunner struct {
	db *gorm.DB
}

var _ transactional.SessionRunner = (*SessionRunner)(nil)

// NewSessionRunner は新しい SessionRunner を作成する
func NewSessionRunner(db *gorm.DB) *SessionRunner {
	return &SessionRunner{db: db}
}

// Transaction は fn を gorm のトランザクション内で実行する
// fn がエラーを返すかパニックした場合、gorm がロールバックする
func (r *SessionRunner) Transaction(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, h transaction.Handle) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &SessionHandle{DB: tx})
	}, opts)
	return translateError(err)
}
