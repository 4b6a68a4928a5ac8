package order

import "errors"

// Order ドメインのエラー定義
var (
	ErrOrderNotFound               = errors.New("注文が見つかりません")
	ErrOrderNotPending             = errors.New("注文は支払い待ちではありません")
	ErrOrderExpired                = errors.New("注文の支払い期限が切れています")
	ErrOrderAlreadyCancelled       = errors.New("注文は既にキャンセルされています")
	ErrOrderAlreadyPaid            = errors.New("注文は既に支払い済みです")
	ErrAccountIDRequired           = errors.New("アカウントIDは必須です")
	ErrLinesRequired               = errors.New("注文明細は必須です")
	ErrInvalidLine                 = errors.New("注文明細が不正です")
	ErrIdempotencyKeyRequired      = errors.New("冪等性キーは必須です")
	ErrIdempotencyKeyAlreadyExists = errors.New("同じ冪等性キーの注文が既に存在します")
	ErrOrderInProgress             = errors.New("同じ冪等性キーの注文を処理中です")
)
