package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	"gorm.io/gorm"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
	"github.com/biud436/blog-api-server-sub000/internal/transactional"
)

// gorm のセッションから取り出した *sql.Tx を sqlx で扱うためのマッパー
var mapper = reflectx.NewMapperFunc("db", sqlx.NameMapper)

// TxHandle は sqlx.Tx を transaction.Tx インターフェースでラップする
type TxHandle struct {
	*sqlx.Tx
}

var _ transaction.Tx = (*TxHandle)(nil)

// Kind はハンドルの種類
func (t *TxHandle) Kind() transaction.HandleKind {
	return transaction.HandleKindExplicit
}

// Commit はトランザクションをコミットする
// SERIALIZABLE ではコミット時に直列化失敗が返ることがある
func (t *TxHandle) Commit() error {
	return translateError(t.Tx.Commit())
}

// Rollback はトランザクションをロールバックする
func (t *TxHandle) Rollback() error {
	return t.Tx.Rollback()
}

// Pool は sqlx.DB からコネクションをチェックアウトする
type Pool struct {
	db *sqlx.DB
}

var _ transactional.Pool = (*Pool)(nil)

// NewPool は新しい Pool を作成する
func NewPool(db *sqlx.DB) *Pool {
	return &Pool{db: db}
}

// Checkout はコネクションを1本確保する
func (p *Pool) Checkout(ctx context.Context) (transactional.Conn, error) {
	conn, err := p.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

// Conn はチェックアウトしたコネクション
type Conn struct {
	conn *sqlx.Conn
}

// BeginTx はコネクション上でトランザクションを開始する
func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (transaction.Tx, error) {
	tx, err := c.conn.BeginTxx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &TxHandle{Tx: tx}, nil
}

// Release はコネクションをプールに返す
func (c *Conn) Release() error {
	return c.conn.Close()
}

// SQLX はハンドルから *sqlx.Tx を取り出す
// セッションハンドルの場合は gorm が保持している *sql.Tx を包む
func SQLX(h transaction.Handle) (*sqlx.Tx, error) {
	switch v := h.(type) {
	case *TxHandle:
		return v.Tx, nil
	case *SessionHandle:
		sqlTx, ok := v.DB.Statement.ConnPool.(*sql.Tx)
		if !ok {
			return nil, fmt.Errorf("%w: セッションがトランザクション中ではありません", transaction.ErrHandleKind)
		}
		return &sqlx.Tx{Tx: sqlTx, Mapper: mapper}, nil
	case nil:
		return nil, transaction.ErrNoTransaction
	}
	return nil, fmt.Errorf("%w: %T", transaction.ErrHandleKind, h)
}

// Gorm はハンドルに束縛された *gorm.DB を返す
// 明示ハンドルの場合は base から新しいセッションを作り、その *sql.Tx を使わせる
func Gorm(ctx context.Context, base *gorm.DB, h transaction.Handle) (*gorm.DB, error) {
	switch v := h.(type) {
	case *SessionHandle:
		return v.DB.WithContext(ctx), nil
	case *TxHandle:
		s := base.Session(&gorm.Session{Context: ctx, NewDB: true})
		s.Statement.ConnPool = v.Tx.Tx
		return s, nil
	case nil:
		return nil, transaction.ErrNoTransaction
	}
	return nil, fmt.Errorf("%w: %T", transaction.ErrHandleKind, h)
}

// queryer はハンドルがあればトランザクションを、なければ db を返す
func queryer(db *sqlx.DB, h transaction.Handle) (sqlx.ExtContext, error) {
	if h == nil {
		return db, nil
	}
	return SQLX(h)
}
