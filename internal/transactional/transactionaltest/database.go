// Package transactionaltest はトランザクション制御をテストするためのインメモリのデータベースを提供する
//
// Database は transactional.Pool と transactional.SessionRunner の両方を実装し、
// チェックアウト・開始・コミット・ロールバック・解放をイベントとして記録する。
package transactionaltest

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
	"github.com/biud436/blog-api-server-sub000/internal/transactional"
)

// ErrTxDone は終了済みトランザクションへの操作。database/sql と同じ値を返す
var ErrTxDone = sql.ErrTxDone

// Database は記録用のインメモリデータベース
// エラー系のフィールドは使用前に設定する
type Database struct {
	CheckoutErr error
	BeginErr    error
	CommitErr   error
	RollbackErr error
	ReleaseErr  error

	mu        sync.Mutex
	events    []string
	committed []string
	nextID    int
	checkouts int
	releases  int
}

var (
	_ transactional.Pool          = (*Database)(nil)
	_ transactional.SessionRunner = (*Database)(nil)
	_ transaction.Tx              = (*Tx)(nil)
)

// NewDatabase は空の Database を作成する
func NewDatabase() *Database {
	return &Database{}
}

func (db *Database) record(format string, args ...any) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.events = append(db.events, fmt.Sprintf(format, args...))
}

// Events は記録されたイベントを順に返す
func (db *Database) Events() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.events)
}

// Count は prefix で始まるイベントの数を返す
func (db *Database) Count(prefix string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, e := range db.events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

// Committed はコミット済みの書き込みを返す
func (db *Database) Committed() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.committed)
}

// Checkouts はチェックアウト回数
func (db *Database) Checkouts() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.checkouts
}

// Releases は解放回数
func (db *Database) Releases() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.releases
}

// newTx はトランザクションを開始する
// database/sql と同じく ctx がキャンセルされた時点で自動的にロールバックする
func (db *Database) newTx(ctx context.Context, kind transaction.HandleKind, opts *sql.TxOptions) *Tx {
	db.mu.Lock()
	db.nextID++
	id := db.nextID
	db.mu.Unlock()

	level := sql.LevelDefault
	if opts != nil {
		level = opts.Isolation
	}
	db.record("begin:%s:%d:%s", kind, id, level)
	tx := &Tx{ID: id, Isolation: level, kind: kind, db: db}
	context.AfterFunc(ctx, tx.abort)
	return tx
}

// Checkout はコネクションをチェックアウトする
func (db *Database) Checkout(ctx context.Context) (transactional.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if db.CheckoutErr != nil {
		db.record("checkout_failed")
		return nil, db.CheckoutErr
	}
	db.mu.Lock()
	db.checkouts++
	db.mu.Unlock()
	db.record("checkout")
	return &Conn{db: db}, nil
}

// Transaction はセッションのトランザクション実行を模倣する
// fn がエラーを返すかパニックした場合はロールバックする
func (db *Database) Transaction(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, h transaction.Handle) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if db.BeginErr != nil {
		db.record("begin_failed")
		return db.BeginErr
	}
	tx := db.newTx(ctx, transaction.HandleKindSession, opts)

	panicked := true
	defer func() {
		if panicked {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		panicked = false
		_ = tx.Rollback()
		return err
	}
	panicked = false
	return tx.Commit()
}

// Conn はチェックアウトしたコネクション
type Conn struct {
	db       *Database
	released bool
}

// BeginTx はトランザクションを開始する
func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (transaction.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.db.BeginErr != nil {
		c.db.record("begin_failed")
		return nil, c.db.BeginErr
	}
	return c.db.newTx(ctx, transaction.HandleKindExplicit, opts), nil
}

// Release はコネクションを解放する
func (c *Conn) Release() error {
	c.db.mu.Lock()
	c.db.releases++
	double := c.released
	c.released = true
	c.db.mu.Unlock()

	if double {
		c.db.record("release_twice")
	} else {
		c.db.record("release")
	}
	return c.db.ReleaseErr
}

// Tx は書き込みを溜めてコミット時に反映するトランザクション
type Tx struct {
	ID        int
	Isolation sql.IsolationLevel

	kind   transaction.HandleKind
	db     *Database
	mu     sync.Mutex
	writes []string
	done   bool
}

// Kind はハンドルの種類
func (t *Tx) Kind() transaction.HandleKind { return t.kind }

// Exec は書き込みを記録する
func (t *Tx) Exec(stmt string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.writes = append(t.writes, stmt)
	return nil
}

// Commit は書き込みを反映する
func (t *Tx) Commit() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return ErrTxDone
	}
	t.done = true
	writes := t.writes
	t.mu.Unlock()

	if t.db.CommitErr != nil {
		t.db.record("commit_failed:%d", t.ID)
		return t.db.CommitErr
	}
	t.db.mu.Lock()
	t.db.committed = append(t.db.committed, writes...)
	t.db.mu.Unlock()
	t.db.record("commit:%d", t.ID)
	return nil
}

// Rollback は書き込みを破棄する
func (t *Tx) Rollback() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return ErrTxDone
	}
	t.done = true
	t.writes = nil
	t.mu.Unlock()

	t.db.record("rollback:%d", t.ID)
	return t.db.RollbackErr
}

// abort は ctx のキャンセルによるロールバック。RollbackErr は返さない
func (t *Tx) abort() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.writes = nil
	t.mu.Unlock()

	t.db.record("rollback:%d", t.ID)
}

// Exec はハンドルが *Tx なら書き込みを記録する
func Exec(h transaction.Handle, stmt string) error {
	tx, ok := h.(*Tx)
	if !ok {
		return fmt.Errorf("%w: %T", transaction.ErrHandleKind, h)
	}
	return tx.Exec(stmt)
}
