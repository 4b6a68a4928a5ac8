package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/biud436/blog-api-server-sub000/internal/domain/order"
	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

type orderRow struct {
	ID             string     `db:"id"`
	AccountID      string     `db:"account_id"`
	Status         string     `db:"status"`
	IdempotencyKey string     `db:"idempotency_key"`
	TotalAmount    int        `db:"total_amount"`
	ExpiresAt      time.Time  `db:"expires_at"`
	PaidAt         *time.Time `db:"paid_at"`
	CancelledAt    *time.Time `db:"cancelled_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

type orderLineRow struct {
	ItemID    string `db:"item_id"`
	Quantity  int    `db:"quantity"`
	UnitPrice int    `db:"unit_price"`
}

const orderColumns = `id, account_id, status, idempotency_key, total_amount, expires_at, paid_at, cancelled_at, created_at, updated_at`

type OrderRepository struct{ db *sqlx.DB }

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, h transaction.Handle, o *order.Order) error {
	tx, err := SQLX(h)
	if err != nil {
		return err
	}
	query := `INSERT INTO orders (account_id, status, idempotency_key, total_amount, expires_at, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := tx.QueryRowxContext(ctx, query, o.AccountID, string(o.Status), o.IdempotencyKey, o.TotalAmount, o.ExpiresAt, o.CreatedAt, o.UpdatedAt).Scan(&o.ID); err != nil {
		if isUniqueViolation(err) {
			return order.ErrIdempotencyKeyAlreadyExists
		}
		return fmt.Errorf("注文作成に失敗: %w", translateError(err))
	}

	itemIDs := make([]string, len(o.Lines))
	quantities := make([]int64, len(o.Lines))
	prices := make([]int64, len(o.Lines))
	for i, l := range o.Lines {
		itemIDs[i] = l.ItemID
		quantities[i] = int64(l.Quantity)
		prices[i] = int64(l.UnitPrice)
	}
	lineQuery := `INSERT INTO order_lines (order_id, item_id, quantity, unit_price)
		SELECT $1, unnest($2::uuid[]), unnest($3::int[]), unnest($4::bigint[])`
	if _, err := tx.ExecContext(ctx, lineQuery, o.ID, pq.Array(itemIDs), pq.Array(quantities), pq.Array(prices)); err != nil {
		return fmt.Errorf("注文明細作成に失敗: %w", translateError(err))
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, h transaction.Handle, id string) (*order.Order, error) {
	q, err := queryer(r.db, h)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return r.get(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key)
}

// LockByID は SELECT ... FOR UPDATE で注文を取得する
func (r *OrderRepository) LockByID(ctx context.Context, h transaction.Handle, id string) (*order.Order, error) {
	tx, err := SQLX(h)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *OrderRepository) get(ctx context.Context, q sqlx.QueryerContext, query string, arg any) (*order.Order, error) {
	var row orderRow
	if err := sqlx.GetContext(ctx, q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("注文取得に失敗: %w", translateError(err))
	}
	var lines []orderLineRow
	if err := sqlx.SelectContext(ctx, q, &lines, `SELECT item_id, quantity, unit_price FROM order_lines WHERE order_id = $1 ORDER BY item_id`, row.ID); err != nil {
		return nil, fmt.Errorf("注文明細取得に失敗: %w", translateError(err))
	}
	return toOrderEntity(&row, lines), nil
}

func (r *OrderRepository) Update(ctx context.Context, h transaction.Handle, o *order.Order) error {
	tx, err := SQLX(h)
	if err != nil {
		return err
	}
	query := `UPDATE orders SET status = $1, paid_at = $2, cancelled_at = $3, updated_at = $4 WHERE id = $5`
	result, err := tx.ExecContext(ctx, query, string(o.Status), o.PaidAt, o.CancelledAt, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("注文更新に失敗: %w", translateError(err))
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) GetExpiredPending(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	query := `SELECT id FROM orders WHERE status = 'pending' AND expires_at < NOW() ORDER BY expires_at LIMIT $1`
	if err := r.db.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("期限切れ注文取得に失敗: %w", err)
	}
	return ids, nil
}

func toOrderEntity(row *orderRow, lines []orderLineRow) *order.Order {
	o := &order.Order{
		ID: row.ID, AccountID: row.AccountID, Status: order.Status(row.Status),
		IdempotencyKey: row.IdempotencyKey, TotalAmount: row.TotalAmount, ExpiresAt: row.ExpiresAt,
		PaidAt: row.PaidAt, CancelledAt: row.CancelledAt, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	o.Lines = make([]order.Line, len(lines))
	for i, l := range lines {
		o.Lines[i] = order.Line{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return o
}

var _ order.Repository = (*OrderRepository)(nil)
