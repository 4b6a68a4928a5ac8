package application

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/biud436/blog-api-server-sub000/internal/config"
	"github.com/biud436/blog-api-server-sub000/internal/domain/account"
	"github.com/biud436/blog-api-server-sub000/internal/domain/audit"
	"github.com/biud436/blog-api-server-sub000/internal/domain/inventory"
	"github.com/biud436/blog-api-server-sub000/internal/domain/order"
	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/metrics"
	"github.com/biud436/blog-api-server-sub000/internal/transactional"
	"github.com/biud436/blog-api-server-sub000/internal/transactional/transactionaltest"
)

// === Mock implementations ===

// MockItemRepository implements inventory.Repository
type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) Create(ctx context.Context, h transaction.Handle, item *inventory.Item) error {
	args := m.Called(ctx, h, item)
	return args.Error(0)
}

func (m *MockItemRepository) GetByID(ctx context.Context, h transaction.Handle, id string) (*inventory.Item, error) {
	args := m.Called(ctx, h, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Item), args.Error(1)
}

func (m *MockItemRepository) DecreaseStock(ctx context.Context, h transaction.Handle, id string, quantity int) error {
	args := m.Called(ctx, h, id, quantity)
	return args.Error(0)
}

func (m *MockItemRepository) IncreaseStock(ctx context.Context, h transaction.Handle, id string, quantity int) error {
	args := m.Called(ctx, h, id, quantity)
	return args.Error(0)
}

// MockOrderRepository implements order.Repository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, h transaction.Handle, o *order.Order) error {
	args := m.Called(ctx, h, o)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, h transaction.Handle, id string) (*order.Order, error) {
	args := m.Called(ctx, h, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) LockByID(ctx context.Context, h transaction.Handle, id string) (*order.Order, error) {
	args := m.Called(ctx, h, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) Update(ctx context.Context, h transaction.Handle, o *order.Order) error {
	args := m.Called(ctx, h, o)
	return args.Error(0)
}

func (m *MockOrderRepository) GetExpiredPending(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockAccountRepository implements account.Repository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, h transaction.Handle, a *account.Account) error {
	args := m.Called(ctx, h, a)
	return args.Error(0)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, h transaction.Handle, id string) (*account.Account, error) {
	args := m.Called(ctx, h, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdateBalance(ctx context.Context, h transaction.Handle, a *account.Account) error {
	args := m.Called(ctx, h, a)
	return args.Error(0)
}

// MockAuditRepository implements audit.Repository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, h transaction.Handle, e *audit.Entry) error {
	args := m.Called(ctx, h, e)
	return args.Error(0)
}

func (m *MockAuditRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]*audit.Entry, error) {
	args := m.Called(ctx, subject, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Entry), args.Error(1)
}

// exec はモックの呼び出し時にハンドルへ書き込みを記録する
func exec(stmt string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		if h, ok := args.Get(1).(transaction.Handle); ok {
			_ = transactionaltest.Exec(h, stmt)
		}
	}
}

type fixture struct {
	db      *transactionaltest.Database
	metrics *metrics.Metrics

	items    *MockItemRepository
	orders   *MockOrderRepository
	accounts *MockAccountRepository
	audits   *MockAuditRepository

	audit     *AuditService
	inventory *InventoryService
	account   *AccountService
	order     *OrderService
}

// newFixture はインメモリのデータベースとモックのリポジトリで全サービスを組み立てる
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       transactionaltest.NewDatabase(),
		metrics:  metrics.NewWithRegistry(prometheus.NewRegistry()),
		items:    new(MockItemRepository),
		orders:   new(MockOrderRepository),
		accounts: new(MockAccountRepository),
		audits:   new(MockAuditRepository),
	}
	reg := transactional.NewRegistry()
	ic := transactional.NewInterceptor(reg, f.db, f.db, transactional.WithMetrics(f.metrics))

	var err error
	f.audit, err = NewAuditService(ic, f.audits)
	require.NoError(t, err)
	f.inventory, err = NewInventoryService(ic, f.items, nil)
	require.NoError(t, err)
	f.account, err = NewAccountService(ic, f.accounts, f.audit)
	require.NoError(t, err)
	f.order, err = NewOrderService(ic, OrderDeps{
		Repo:      f.orders,
		Inventory: f.inventory,
		Accounts:  f.account,
		Audit:     f.audit,
		Metrics:   f.metrics,
		Config:    config.OrderConfig{},
	})
	require.NoError(t, err)
	reg.Seal()

	t.Cleanup(func() {
		f.items.AssertExpectations(t)
		f.orders.AssertExpectations(t)
		f.accounts.AssertExpectations(t)
		f.audits.AssertExpectations(t)
	})
	return f
}

// expectAudit は監査ログの書き込みを許可する
func (f *fixture) expectAudit(action string) *mock.Call {
	return f.audits.On("Append", mock.Anything, mock.Anything, mock.MatchedBy(func(e *audit.Entry) bool {
		return e.Action == action
	})).Run(exec("audit:" + action)).Return(nil)
}
