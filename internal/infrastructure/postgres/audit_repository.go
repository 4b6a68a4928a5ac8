package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/biud436/blog-api-server-sub000/internal/domain/audit"
	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

type auditEntryModel struct {
	ID        int64 `gorm:"primaryKey"`
	TxID      string
	Subject   string
	Action    string
	Detail    string
	CreatedAt time.Time
}

func (auditEntryModel) TableName() string { return "audit_entries" }

// AuditRepository は gorm で監査ログを扱う
type AuditRepository struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ctx context.Context, h transaction.Handle, e *audit.Entry) error {
	db, err := Gorm(ctx, r.db, h)
	if err != nil {
		return err
	}
	m := auditEntryModel{TxID: e.TxID, Subject: e.Subject, Action: e.Action, Detail: e.Detail, CreatedAt: e.CreatedAt}
	if err := db.Create(&m).Error; err != nil {
		return fmt.Errorf("監査ログ作成に失敗: %w", translateError(err))
	}
	e.ID = m.ID
	return nil
}

func (r *AuditRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]*audit.Entry, error) {
	var models []auditEntryModel
	if err := r.db.WithContext(ctx).Where("subject = ?", subject).Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("監査ログ取得に失敗: %w", err)
	}
	entries := make([]*audit.Entry, len(models))
	for i, m := range models {
		entries[i] = &audit.Entry{
			ID: m.ID, TxID: m.TxID, Subject: m.Subject, Action: m.Action, Detail: m.Detail, CreatedAt: m.CreatedAt,
		}
	}
	return entries, nil
}

var _ audit.Repository = (*AuditRepository)(nil)
