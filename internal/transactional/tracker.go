package transactional

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

// Token は呼び出しチェーン内で論理的に有効なトランザクションを表す
// 所有フレームが作成し、context.Context に載せて入れ子の呼び出しへ渡す
type Token struct {
	id          string
	key         MethodKey
	isolation   transaction.IsolationLevel
	propagation transaction.Propagation
	mode        HandleMode
	startedAt   time.Time

	depth        atomic.Int32
	rollbackOnly atomic.Bool

	mu            sync.Mutex
	handle        transaction.Handle
	afterCommit   []func(context.Context)
	afterRollback []func(context.Context)
}

func newToken(key MethodKey, d Descriptor, iso transaction.IsolationLevel) *Token {
	return &Token{
		id:          uuid.NewString(),
		key:         key,
		isolation:   iso,
		propagation: d.Propagation,
		mode:        d.Handle,
		startedAt:   time.Now(),
	}
}

// ID はトランザクションの識別子
func (t *Token) ID() string { return t.id }

// Method はトランザクションを開始したメソッド
func (t *Token) Method() MethodKey { return t.key }

// Isolation は物理トランザクションの分離レベル
func (t *Token) Isolation() transaction.IsolationLevel { return t.isolation }

// Propagation は開始したメソッドの伝播方式
func (t *Token) Propagation() transaction.Propagation { return t.propagation }

// HandleMode は物理トランザクションの実行経路
func (t *Token) HandleMode() HandleMode { return t.mode }

// StartedAt はトークンの作成時刻
func (t *Token) StartedAt() time.Time { return t.startedAt }

// Depth は論理トランザクションの深さ
func (t *Token) Depth() int { return int(t.depth.Load()) }

// Active はトランザクションが論理的に有効かを返す
func (t *Token) Active() bool { return t.depth.Load() > 0 }

// RollbackOnly はチェーンがロールバック専用かを返す
func (t *Token) RollbackOnly() bool { return t.rollbackOnly.Load() }

// Handle はチェーンに束縛されたハンドル。終了後は nil
func (t *Token) Handle() transaction.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle
}

func (t *Token) markRollbackOnly() {
	t.rollbackOnly.Store(true)
}

func (t *Token) join() {
	t.depth.Add(1)
}

// end は深さを1減らし、0になったらハンドルを外す
func (t *Token) end() int {
	depth := t.depth.Add(-1)
	if depth <= 0 {
		t.depth.Store(0)
		t.mu.Lock()
		t.handle = nil
		t.mu.Unlock()
		return 0
	}
	return int(depth)
}

func (t *Token) callbacks(committed bool) []func(context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if committed {
		return t.afterCommit
	}
	return t.afterRollback
}

type tokenKey struct{}

func begin(ctx context.Context, tok *Token, h transaction.Handle) context.Context {
	tok.mu.Lock()
	tok.handle = h
	tok.mu.Unlock()
	tok.depth.Store(1)
	return context.WithValue(ctx, tokenKey{}, tok)
}

// TokenFrom は有効なトークンを返す
func TokenFrom(ctx context.Context) (*Token, bool) {
	tok, _ := ctx.Value(tokenKey{}).(*Token)
	if tok == nil || !tok.Active() {
		return nil, false
	}
	return tok, true
}

// IsActive はチェーン内でトランザクションが有効かを返す
func IsActive(ctx context.Context) bool {
	_, ok := TokenFrom(ctx)
	return ok
}

// CurrentHandle はチェーンに束縛されたハンドルを返す
func CurrentHandle(ctx context.Context) (transaction.Handle, bool) {
	tok, ok := TokenFrom(ctx)
	if !ok {
		return nil, false
	}
	h := tok.Handle()
	return h, h != nil
}

// Snapshot は Suspend で退避したトークン
type Snapshot struct {
	token *Token
}

// Token は退避したトークン。退避時に無効だった場合は nil
func (s Snapshot) Token() *Token { return s.token }

// Suspend は外側のトランザクションを隠した context を返す
func Suspend(ctx context.Context) (context.Context, Snapshot) {
	tok, _ := TokenFrom(ctx)
	return context.WithValue(ctx, tokenKey{}, (*Token)(nil)), Snapshot{token: tok}
}

// Resume は Suspend で退避したトークンを戻した context を返す
func Resume(ctx context.Context, s Snapshot) context.Context {
	return context.WithValue(ctx, tokenKey{}, s.token)
}

// AfterCommit はチェーンのコミット後に実行する処理を登録する
func AfterCommit(ctx context.Context, fn func(context.Context)) error {
	tok, ok := TokenFrom(ctx)
	if !ok {
		return transaction.ErrNoTransaction
	}
	tok.mu.Lock()
	tok.afterCommit = append(tok.afterCommit, fn)
	tok.mu.Unlock()
	return nil
}

// AfterRollback はチェーンのロールバック後に実行する処理を登録する
func AfterRollback(ctx context.Context, fn func(context.Context)) error {
	tok, ok := TokenFrom(ctx)
	if !ok {
		return transaction.ErrNoTransaction
	}
	tok.mu.Lock()
	tok.afterRollback = append(tok.afterRollback, fn)
	tok.mu.Unlock()
	return nil
}

// SetRollbackOnly はエラーを返さずにチェーン全体をロールバックさせる
func SetRollbackOnly(ctx context.Context) error {
	tok, ok := TokenFrom(ctx)
	if !ok {
		return transaction.ErrNoTransaction
	}
	tok.markRollbackOnly()
	return nil
}

type isolationKey struct{}

// WithIsolation は次に呼ぶトランザクショナルメソッドの分離レベルを上書きする
// 上書きはそのメソッドにだけ適用され、入れ子の呼び出しには引き継がれない
func WithIsolation(ctx context.Context, level transaction.IsolationLevel) context.Context {
	return context.WithValue(ctx, isolationKey{}, level)
}

func takeIsolation(ctx context.Context) (context.Context, transaction.IsolationLevel) {
	level, _ := ctx.Value(isolationKey{}).(transaction.IsolationLevel)
	if level == transaction.IsolationUnspecified {
		return ctx, level
	}
	return context.WithValue(ctx, isolationKey{}, transaction.IsolationUnspecified), level
}
