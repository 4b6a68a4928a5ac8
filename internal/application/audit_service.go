package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/biud436/blog-api-server-sub000/internal/domain/audit"
	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/logger"
	"github.com/biud436/blog-api-server-sub000/internal/transactional"
)

// AuditZone は監査サービスのゾーン名
const AuditZone = "AuditService"

// 監査ログは呼び出し元と独立したトランザクションで書く
var auditTable = transactional.Table{
	"Record": {
		Propagation: transaction.PropagationStartNew,
		Handle:      transactional.HandleSession,
		Inject:      true,
	},
}

// AuditService は監査ログを記録する
type AuditService struct {
	repo   audit.Repository
	record transactional.Func[RecordAuditInput, *audit.Entry]
}

// NewAuditService はゾーンを登録して AuditService を作成する
func NewAuditService(ic *transactional.Interceptor, repo audit.Repository) (*AuditService, error) {
	s := &AuditService{repo: repo}
	if err := ic.Registry().RegisterZone(s, auditTable); err != nil {
		return nil, err
	}
	s.record = transactional.Bind(ic, s, "Record", s.doRecord)
	return s, nil
}

func (s *AuditService) ZoneName() string { return AuditZone }

type RecordAuditInput struct {
	// TxID は呼び出し元のトランザクションID。空なら Record が埋める
	TxID    string
	Subject string
	Action  string
	Detail  string
}

// Record は監査ログを独立したトランザクションで書き込む
// 呼び出し元が後でロールバックしても残る
func (s *AuditService) Record(ctx context.Context, input RecordAuditInput) (*audit.Entry, error) {
	if input.TxID == "" {
		if tok, ok := transactional.TokenFrom(ctx); ok {
			input.TxID = tok.ID()
		}
	}
	return s.record(ctx, nil, input)
}

func (s *AuditService) doRecord(ctx context.Context, h transaction.Handle, input RecordAuditInput) (*audit.Entry, error) {
	e := &audit.Entry{
		TxID:    input.TxID,
		Subject: input.Subject,
		Action:  input.Action,
		Detail:  input.Detail,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Append(ctx, h, e); err != nil {
		return nil, fmt.Errorf("監査ログの書き込みに失敗: %w", err)
	}
	logger.FromContext(ctx).Debug("監査ログを記録",
		zap.String("subject", e.Subject),
		zap.String("action", e.Action),
		zap.String("caller_tx_id", e.TxID),
	)
	return e, nil
}

func (s *AuditService) ListBySubject(ctx context.Context, subject string, limit int) ([]*audit.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListBySubject(ctx, subject, limit)
}
