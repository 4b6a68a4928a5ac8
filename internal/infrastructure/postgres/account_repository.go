package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/biud436/blog-api-server-sub000/internal/domain/account"
	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

type accountRow struct {
	ID        string    `db:"id"`
	Owner     string    `db:"owner"`
	Balance   int       `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type AccountRepository struct{ db *sqlx.DB }

func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, h transaction.Handle, a *account.Account) error {
	q, err := queryer(r.db, h)
	if err != nil {
		return err
	}
	query := `INSERT INTO accounts (owner, balance, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := q.QueryRowxContext(ctx, query, a.Owner, a.Balance, a.CreatedAt, a.UpdatedAt).Scan(&a.ID); err != nil {
		return fmt.Errorf("アカウント作成に失敗: %w", translateError(err))
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, h transaction.Handle, id string) (*account.Account, error) {
	q, err := queryer(r.db, h)
	if err != nil {
		return nil, err
	}
	var row accountRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT id, owner, balance, created_at, updated_at FROM accounts WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrAccountNotFound
		}
		return nil, fmt.Errorf("アカウント取得に失敗: %w", translateError(err))
	}
	return &account.Account{
		ID: row.ID, Owner: row.Owner, Balance: row.Balance, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}, nil
}

// UpdateBalance は読み取った残高をそのまま書き戻す
// 並行更新の検出は分離レベルに任せる
func (r *AccountRepository) UpdateBalance(ctx context.Context, h transaction.Handle, a *account.Account) error {
	tx, err := SQLX(h)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3`, a.Balance, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("残高更新に失敗: %w", translateError(err))
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}

var _ account.Repository = (*AccountRepository)(nil)
