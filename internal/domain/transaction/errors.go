package transaction

import "errors"

// トランザクション制御のエラー定義
var (
	ErrNoTransaction        = errors.New("アクティブなトランザクションがありません")
	ErrRollbackOnly         = errors.New("トランザクションはロールバック専用としてマークされています")
	ErrIsolationConflict    = errors.New("参加先トランザクションの分離レベルが要求より弱いです")
	ErrSerializationFailure = errors.New("トランザクションの直列化に失敗しました")
	ErrHandleKind           = errors.New("ハンドルの種類が一致しません")
	ErrCheckout             = errors.New("コネクションの取得に失敗しました")
	ErrBegin                = errors.New("トランザクション開始に失敗しました")
	ErrCommit               = errors.New("コミットに失敗しました")
	ErrUnfinishedJoin       = errors.New("参加中のフレームが終了していません")
	ErrPanicked             = errors.New("メソッドがパニックしました")
)
