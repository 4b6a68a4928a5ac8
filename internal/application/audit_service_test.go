package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/biud436/blog-api-server-sub000/internal/domain/audit"
)

func TestAuditService_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("セッションハンドルの独立したトランザクションで書き込む", func(t *testing.T) {
		f := newFixture(t)
		f.expectAudit("login")

		e, err := f.audit.Record(ctx, RecordAuditInput{Subject: "account:acc-1", Action: "login"})
		require.NoError(t, err)
		assert.Empty(t, e.TxID, "トランザクション外からの呼び出し")
		assert.Equal(t, 1, f.db.Count("begin:session:"))
		assert.Equal(t, []string{"audit:login"}, f.db.Committed())
	})

	t.Run("対象が空ならロールバック", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.audit.Record(ctx, RecordAuditInput{Action: "login"})
		assert.ErrorIs(t, err, audit.ErrSubjectRequired)
		assert.Equal(t, 1, f.db.Count("rollback:"))
	})
}

func TestAuditService_ListBySubject(t *testing.T) {
	f := newFixture(t)
	entries := []*audit.Entry{{ID: 1, Subject: "order:key-1", Action: "create_requested"}}
	f.audits.On("ListBySubject", mock.Anything, "order:key-1", 50).Return(entries, nil)

	got, err := f.audit.ListBySubject(context.Background(), "order:key-1", 0)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}
