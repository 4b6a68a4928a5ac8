package transactional

import "context"

// HookKind はフックの発火タイミング
type HookKind int

const (
	// HookBeforeTransaction はトランザクション開始前。エラーを返すと開始しない
	HookBeforeTransaction HookKind = iota
	// HookAfterTransaction はトランザクション開始直後、メソッド本体の前
	HookAfterTransaction
	// HookCommit はコミット後
	HookCommit
	// HookRollback はロールバック後
	HookRollback
)

func (k HookKind) String() string {
	switch k {
	case HookBeforeTransaction:
		return "before_transaction"
	case HookAfterTransaction:
		return "after_transaction"
	case HookCommit:
		return "commit"
	case HookRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// HookFunc はフック本体。cause はロールバック時の原因エラー
type HookFunc func(ctx context.Context, tok *Token, cause error) error

// Hook はゾーンに登録されたフック
type Hook struct {
	Kind HookKind
	Name string
	Fn   HookFunc
}

// BeforeTransactionHook を実装したゾーンは、自身が開始するトランザクションの前に呼ばれる
type BeforeTransactionHook interface {
	BeforeTransaction(ctx context.Context, tok *Token) error
}

// AfterTransactionHook はトランザクション開始直後に呼ばれる
// エラーを返すとメソッド本体のエラーと同様にロールバックされる
type AfterTransactionHook interface {
	AfterTransaction(ctx context.Context, tok *Token) error
}

// CommitHook はコミット成功後に呼ばれる
type CommitHook interface {
	OnCommit(ctx context.Context, tok *Token)
}

// RollbackHook はロールバック後に呼ばれる
type RollbackHook interface {
	OnRollback(ctx context.Context, tok *Token, cause error)
}

func discoverHooks(zone Zone) []Hook {
	var hooks []Hook
	if h, ok := zone.(BeforeTransactionHook); ok {
		hooks = append(hooks, Hook{Kind: HookBeforeTransaction, Name: "BeforeTransaction", Fn: func(ctx context.Context, tok *Token, _ error) error {
			return h.BeforeTransaction(ctx, tok)
		}})
	}
	if h, ok := zone.(AfterTransactionHook); ok {
		hooks = append(hooks, Hook{Kind: HookAfterTransaction, Name: "AfterTransaction", Fn: func(ctx context.Context, tok *Token, _ error) error {
			return h.AfterTransaction(ctx, tok)
		}})
	}
	if h, ok := zone.(CommitHook); ok {
		hooks = append(hooks, Hook{Kind: HookCommit, Name: "OnCommit", Fn: func(ctx context.Context, tok *Token, _ error) error {
			h.OnCommit(ctx, tok)
			return nil
		}})
	}
	if h, ok := zone.(RollbackHook); ok {
		hooks = append(hooks, Hook{Kind: HookRollback, Name: "OnRollback", Fn: func(ctx context.Context, tok *Token, cause error) error {
			h.OnRollback(ctx, tok, cause)
			return nil
		}})
	}
	return hooks
}
