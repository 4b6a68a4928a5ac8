package account

import "errors"

// Account ドメインのエラー定義
var (
	ErrAccountNotFound   = errors.New("アカウントが見つかりません")
	ErrInsufficientFunds = errors.New("残高が不足しています")
	ErrInvalidAmount     = errors.New("金額が不正です")
	ErrOwnerRequired     = errors.New("所有者は必須です")
	ErrSameAccount       = errors.New("同じアカウント間では送金できません")
)
