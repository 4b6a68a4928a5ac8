package account

import "time"

// Account は残高を持つアカウントエンティティを表す
type Account struct {
	ID        string
	Owner     string
	Balance   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount は新しいアカウントを作成する
func NewAccount(owner string, initialBalance int) *Account {
	now := time.Now()
	return &Account{
		Owner:     owner,
		Balance:   initialBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate はアカウントの検証を行う
func (a *Account) Validate() error {
	if a.Owner == "" {
		return ErrOwnerRequired
	}
	if a.Balance < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Withdraw は残高から amount を引く
func (a *Account) Withdraw(amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Balance < amount {
		return ErrInsufficientFunds
	}
	a.Balance -= amount
	a.UpdatedAt = time.Now()
	return nil
}

// Deposit は残高に amount を足す
func (a *Account) Deposit(amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	a.Balance += amount
	a.UpdatedAt = time.Now()
	return nil
}
