package transactional

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/logger"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/metrics"
)

// Pool はコネクションをチェックアウトする
// 実装は postgres.Pool（sqlx）
type Pool interface {
	Checkout(ctx context.Context) (Conn, error)
}

// Conn はチェックアウトしたコネクション
type Conn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (transaction.Tx, error)
	// Release はコネクションをプールに返す。1回だけ呼ばれる
	Release() error
}

// ExplicitExecutor はコネクションのチェックアウトから解放までを自前で行う
type ExplicitExecutor struct {
	pool    Pool
	metrics *metrics.Metrics
}

var _ Executor = (*ExplicitExecutor)(nil)

// NewExplicitExecutor は ExplicitExecutor を作成する。m は nil でもよい
func NewExplicitExecutor(pool Pool, m *metrics.Metrics) *ExplicitExecutor {
	return &ExplicitExecutor{pool: pool, metrics: m}
}

// Execute はチェックアウトしたコネクション上のトランザクションで body を実行する
// コネクションはパニックやキャンセルを含むすべての経路で解放される
func (e *ExplicitExecutor) Execute(ctx context.Context, iso transaction.IsolationLevel, key MethodKey, body Body) error {
	log := logger.FromContext(ctx)

	conn, err := e.pool.Checkout(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", key, transaction.ErrCheckout, err)
	}
	defer func() {
		if err := conn.Release(); err != nil {
			log.Error("コネクションの解放に失敗", zap.String("method", key.String()), zap.Error(err))
			if e.metrics != nil {
				e.metrics.ConnectionReleaseFailures.Inc()
			}
		}
	}()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: iso.SQL()})
	if err != nil {
		return fmt.Errorf("%s: %w: %w", key, transaction.ErrBegin, err)
	}

	defer func() {
		if r := recover(); r != nil {
			e.rollback(log, key, tx)
			panic(r)
		}
	}()

	if err := body(ctx, tx); err != nil {
		e.rollback(log, key, tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w: %w", key, transaction.ErrCommit, err)
	}
	return nil
}

// ロールバックの失敗はログに残すだけで、呼び出し元には元のエラーを返す
// context のキャンセルで database/sql が既にロールバックしていれば ErrTxDone になるので記録しない
func (e *ExplicitExecutor) rollback(log *zap.Logger, key MethodKey, tx transaction.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Error("ロールバックに失敗", zap.String("method", key.String()), zap.Error(err))
	}
}
