package audit

import (
	"context"
	"errors"
	"time"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

// ErrSubjectRequired は対象が空の監査ログ
var ErrSubjectRequired = errors.New("監査ログの対象は必須です")

// Entry は監査ログ
// 呼び出し元のトランザクションがロールバックされても残る
type Entry struct {
	ID        int64
	TxID      string
	Subject   string
	Action    string
	Detail    string
	CreatedAt time.Time
}

// Validate は監査ログの検証を行う
func (e *Entry) Validate() error {
	if e.Subject == "" || e.Action == "" {
		return ErrSubjectRequired
	}
	return nil
}

// Repository は監査ログリポジトリのインターフェース
type Repository interface {
	// Append は監査ログを追加する（トランザクション必須）
	Append(ctx context.Context, h transaction.Handle, e *Entry) error

	// ListBySubject は対象の監査ログを新しい順に返す
	ListBySubject(ctx context.Context, subject string, limit int) ([]*Entry, error)
}
