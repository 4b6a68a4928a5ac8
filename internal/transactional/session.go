package transactional

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

// Body は物理トランザクション内で実行される処理
type Body func(ctx context.Context, h transaction.Handle) error

// Executor は物理トランザクションを開き、Body の結果でコミットまたはロールバックする
// Body のエラーはそのまま返し、開始・コミットの失敗は ErrBegin / ErrCommit でラップする
type Executor interface {
	Execute(ctx context.Context, iso transaction.IsolationLevel, key MethodKey, body Body) error
}

// SessionRunner は ORM セッションのトランザクション実行を抽象化する
// 実装は postgres.SessionRunner（gorm）
type SessionRunner interface {
	Transaction(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, h transaction.Handle) error) error
}

// SessionExecutor はセッションのネイティブなトランザクション実行に委譲する
type SessionExecutor struct {
	runner SessionRunner
}

var _ Executor = (*SessionExecutor)(nil)

// NewSessionExecutor は SessionExecutor を作成する
func NewSessionExecutor(runner SessionRunner) *SessionExecutor {
	return &SessionExecutor{runner: runner}
}

// Execute はセッションのトランザクション内で body を実行する
func (e *SessionExecutor) Execute(ctx context.Context, iso transaction.IsolationLevel, key MethodKey, body Body) error {
	var ran, bodyFailed bool
	err := e.runner.Transaction(ctx, &sql.TxOptions{Isolation: iso.SQL()}, func(ctx context.Context, h transaction.Handle) error {
		ran = true
		if err := body(ctx, h); err != nil {
			bodyFailed = true
			return err
		}
		return nil
	})

	switch {
	case err == nil:
		return nil
	case !ran:
		return fmt.Errorf("%s: %w: %w", key, transaction.ErrBegin, err)
	case bodyFailed:
		return err
	default:
		return fmt.Errorf("%s: %w: %w", key, transaction.ErrCommit, err)
	}
}
