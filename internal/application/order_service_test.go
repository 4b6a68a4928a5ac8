package application

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/biud436/blog-api-server-sub000/internal/domain/account"
	"github.com/biud436/blog-api-server-sub000/internal/domain/audit"
	"github.com/biud436/blog-api-server-sub000/internal/domain/inventory"
	"github.com/biud436/blog-api-server-sub000/internal/domain/order"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/apperror"
)

func twoLineOrder() CreateOrderInput {
	return CreateOrderInput{
		AccountID:      "acc-1",
		IdempotencyKey: "key-1",
		Lines: []OrderLineInput{
			{ItemID: "item-1", Quantity: 2},
			{ItemID: "item-2", Quantity: 1},
		},
	}
}

func (f *fixture) expectNewOrder(key string) {
	f.orders.On("GetByIdempotencyKey", mock.Anything, key).Return(nil, order.ErrOrderNotFound).Once()
}

func (f *fixture) expectReserve(itemID string, quantity, price int) {
	f.items.On("DecreaseStock", mock.Anything, mock.Anything, itemID, quantity).Run(exec("decrease:" + itemID)).Return(nil)
	f.items.On("GetByID", mock.Anything, mock.Anything, itemID).Return(&inventory.Item{ID: itemID, Price: price}, nil)
}

func TestOrderService_CreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("在庫を引き当てて1つのトランザクションで注文を作成する", func(t *testing.T) {
		f := newFixture(t)
		f.expectNewOrder("key-1")
		f.expectAudit("create_requested")
		f.expectReserve("item-1", 2, 100)
		f.expectReserve("item-2", 1, 500)
		f.orders.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*order.Order")).Run(exec("insert:order")).Return(nil)

		o, err := f.order.CreateOrder(ctx, twoLineOrder())
		require.NoError(t, err)
		assert.Equal(t, order.StatusPending, o.Status)
		assert.Equal(t, 700, o.TotalAmount)
		assert.Equal(t, 100, o.Lines[0].UnitPrice)

		// 監査ログは別トランザクション、注文と在庫は1つのトランザクション
		assert.Equal(t, 1, f.db.Count("begin:explicit"))
		assert.Equal(t, 1, f.db.Count("begin:session"))
		assert.Equal(t, 2, f.db.Count("commit:"))
		assert.ElementsMatch(t, []string{"audit:create_requested", "decrease:item-1", "decrease:item-2", "insert:order"}, f.db.Committed())
		assert.Equal(t, f.db.Checkouts(), f.db.Releases())
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersTotal.WithLabelValues("created")))
	})

	t.Run("明細の順序に関係なく商品ID順に在庫を引き当てる", func(t *testing.T) {
		f := newFixture(t)
		f.expectNewOrder("key-1")
		f.expectAudit("create_requested")
		f.expectReserve("item-1", 2, 100)
		f.expectReserve("item-2", 1, 500)
		f.orders.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*order.Order")).Run(exec("insert:order")).Return(nil)

		input := twoLineOrder()
		input.Lines[0], input.Lines[1] = input.Lines[1], input.Lines[0]

		o, err := f.order.CreateOrder(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, []string{"audit:create_requested", "decrease:item-1", "decrease:item-2", "insert:order"}, f.db.Committed())

		// 注文の明細はリクエストの順序のまま
		assert.Equal(t, "item-2", o.Lines[0].ItemID)
		assert.Equal(t, 500, o.Lines[0].UnitPrice)
		assert.Equal(t, 100, o.Lines[1].UnitPrice)
	})

	t.Run("在庫不足なら注文全体をロールバックし、呼び出し元は在庫不足を受け取る", func(t *testing.T) {
		f := newFixture(t)
		f.expectNewOrder("key-1")
		f.expectAudit("create_requested")
		f.expectReserve("item-1", 2, 100)
		f.items.On("DecreaseStock", mock.Anything, mock.Anything, "item-2", 1).Return(inventory.ErrOutOfStock)

		o, err := f.order.CreateOrder(ctx, twoLineOrder())
		require.Error(t, err)
		assert.Nil(t, o)
		assert.ErrorIs(t, err, inventory.ErrOutOfStock)

		ae, ok := apperror.From(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusConflict, ae.Status)
		assert.Equal(t, "OUT_OF_STOCK", ae.Code)

		f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		assert.NotContains(t, f.db.Committed(), "decrease:item-1", "先に引き当てた在庫も戻る")
		assert.Equal(t, 1, f.db.Count("rollback:"))
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersTotal.WithLabelValues("rolled_back")))
	})

	t.Run("注文がロールバックされても監査ログは残る", func(t *testing.T) {
		f := newFixture(t)
		f.expectNewOrder("key-1")
		f.expectAudit("create_requested")
		f.expectReserve("item-1", 2, 100)
		f.expectReserve("item-2", 1, 500)
		insertErr := errors.New("insert failed")
		f.orders.On("Create", mock.Anything, mock.Anything, mock.Anything).Run(exec("insert:order")).Return(insertErr)

		_, err := f.order.CreateOrder(ctx, twoLineOrder())
		assert.ErrorIs(t, err, insertErr)
		_, ok := apperror.From(err)
		assert.False(t, ok, "業務エラーに該当しないものはそのまま返る")

		assert.Equal(t, []string{"audit:create_requested"}, f.db.Committed())
	})

	t.Run("監査ログには呼び出し元のトランザクションIDが入る", func(t *testing.T) {
		f := newFixture(t)
		f.expectNewOrder("key-1")
		var entry *audit.Entry
		f.audits.On("Append", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			entry = args.Get(2).(*audit.Entry)
		}).Return(nil)
		f.items.On("DecreaseStock", mock.Anything, mock.Anything, "item-1", 2).Return(inventory.ErrItemNotFound)

		_, err := f.order.CreateOrder(ctx, twoLineOrder())
		ae, ok := apperror.From(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, ae.Status)

		require.NotNil(t, entry)
		assert.NotEmpty(t, entry.TxID)
		assert.Equal(t, "order:key-1", entry.Subject)
	})

	t.Run("同じ冪等性キーの注文があればそれを返す", func(t *testing.T) {
		f := newFixture(t)
		existing := &order.Order{ID: "order-1", IdempotencyKey: "key-1", Status: order.StatusPending}
		f.orders.On("GetByIdempotencyKey", mock.Anything, "key-1").Return(existing, nil)

		o, err := f.order.CreateOrder(ctx, twoLineOrder())
		require.NoError(t, err)
		assert.Same(t, existing, o)
		assert.Empty(t, f.db.Events(), "トランザクションを開始しない")
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersTotal.WithLabelValues("duplicate")))
	})

	t.Run("確定時に冪等性キーが重複したら先に確定した注文を返す", func(t *testing.T) {
		f := newFixture(t)
		f.expectNewOrder("key-1")
		f.expectAudit("create_requested")
		f.expectReserve("item-1", 2, 100)
		f.expectReserve("item-2", 1, 500)
		f.orders.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(order.ErrIdempotencyKeyAlreadyExists)
		winner := &order.Order{ID: "order-1", IdempotencyKey: "key-1"}
		f.orders.On("GetByIdempotencyKey", mock.Anything, "key-1").Return(winner, nil).Once()

		o, err := f.order.CreateOrder(ctx, twoLineOrder())
		require.NoError(t, err)
		assert.Same(t, winner, o)
		assert.Equal(t, 1, f.db.Count("rollback:"))
	})

	t.Run("不正な注文は引き当て前に拒否する", func(t *testing.T) {
		f := newFixture(t)
		f.expectNewOrder("key-1")

		_, err := f.order.CreateOrder(ctx, CreateOrderInput{AccountID: "acc-1", IdempotencyKey: "key-1"})
		ae, ok := apperror.From(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, ae.Status)
		assert.ErrorIs(t, err, order.ErrLinesRequired)
		assert.Empty(t, f.db.Committed())
	})
}

func pendingOrder(total int) *order.Order {
	o := order.NewOrder("acc-1", "key-1", []order.Line{{ItemID: "item-1", Quantity: 1, UnitPrice: total}}, time.Hour)
	o.ID = "order-1"
	return o
}

func TestOrderService_PayOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("代金を引き落として支払い済みにする", func(t *testing.T) {
		f := newFixture(t)
		f.orders.On("LockByID", mock.Anything, mock.Anything, "order-1").Return(pendingOrder(300), nil)
		f.accounts.On("GetByID", mock.Anything, mock.Anything, "acc-1").Return(&account.Account{ID: "acc-1", Balance: 1000}, nil)
		f.accounts.On("UpdateBalance", mock.Anything, mock.Anything, mock.MatchedBy(func(a *account.Account) bool {
			return a.Balance == 700
		})).Run(exec("update:balance")).Return(nil)
		f.orders.On("Update", mock.Anything, mock.Anything, mock.Anything).Run(exec("update:order")).Return(nil)

		o, err := f.order.PayOrder(ctx, "order-1")
		require.NoError(t, err)
		assert.Equal(t, order.StatusPaid, o.Status)
		assert.Equal(t, []string{"update:balance", "update:order"}, f.db.Committed())
		assert.Equal(t, 1, f.db.Count("begin:"), "Charge は参加する")
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersTotal.WithLabelValues("paid")))
	})

	t.Run("残高不足なら注文は支払い待ちのまま", func(t *testing.T) {
		f := newFixture(t)
		f.orders.On("LockByID", mock.Anything, mock.Anything, "order-1").Return(pendingOrder(300), nil)
		f.accounts.On("GetByID", mock.Anything, mock.Anything, "acc-1").Return(&account.Account{ID: "acc-1", Balance: 100}, nil)

		_, err := f.order.PayOrder(ctx, "order-1")
		ae, ok := apperror.From(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnprocessableEntity, ae.Status)
		assert.Equal(t, "INSUFFICIENT_FUNDS", ae.Code)
		f.orders.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, f.db.Committed())
	})

	t.Run("存在しない注文は404", func(t *testing.T) {
		f := newFixture(t)
		f.orders.On("LockByID", mock.Anything, mock.Anything, "missing").Return(nil, order.ErrOrderNotFound)

		_, err := f.order.PayOrder(ctx, "missing")
		ae, ok := apperror.From(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, ae.Status)
	})
}

func TestOrderService_CancelOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("取り消すと在庫を戻す", func(t *testing.T) {
		f := newFixture(t)
		f.orders.On("LockByID", mock.Anything, mock.Anything, "order-1").Return(pendingOrder(300), nil)
		f.orders.On("Update", mock.Anything, mock.Anything, mock.Anything).Run(exec("update:order")).Return(nil)
		f.items.On("IncreaseStock", mock.Anything, mock.Anything, "item-1", 1).Run(exec("increase:item-1")).Return(nil)
		f.items.On("GetByID", mock.Anything, mock.Anything, "item-1").Return(&inventory.Item{ID: "item-1"}, nil)

		o, err := f.order.CancelOrder(ctx, "order-1")
		require.NoError(t, err)
		assert.Equal(t, order.StatusCancelled, o.Status)
		assert.Equal(t, []string{"update:order", "increase:item-1"}, f.db.Committed())
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersTotal.WithLabelValues("cancelled")))
	})

	t.Run("支払い済みは取り消せない", func(t *testing.T) {
		f := newFixture(t)
		o := pendingOrder(300)
		require.NoError(t, o.MarkPaid())
		f.orders.On("LockByID", mock.Anything, mock.Anything, "order-1").Return(o, nil)

		_, err := f.order.CancelOrder(ctx, "order-1")
		ae, ok := apperror.From(err)
		require.True(t, ok)
		assert.Equal(t, "ORDER_ALREADY_PAID", ae.Code)
	})
}

func TestOrderService_CancelExpiredOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	expired := pendingOrder(100)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	paid := pendingOrder(100)
	paid.ID = "order-paid"
	paid.Status = order.StatusPaid
	paid.ExpiresAt = time.Now().Add(-time.Minute)

	f.orders.On("GetExpiredPending", mock.Anything, expiredOrderBatchSize).Return([]string{"order-1", "order-broken", "order-paid"}, nil)
	f.orders.On("LockByID", mock.Anything, mock.Anything, "order-1").Return(expired, nil)
	f.orders.On("LockByID", mock.Anything, mock.Anything, "order-broken").Return(nil, errors.New("connection reset"))
	f.orders.On("LockByID", mock.Anything, mock.Anything, "order-paid").Return(paid, nil)
	f.orders.On("Update", mock.Anything, mock.Anything, expired).Run(exec("update:order-1")).Return(nil)
	f.items.On("IncreaseStock", mock.Anything, mock.Anything, "item-1", 1).Run(exec("increase:item-1")).Return(nil)
	f.items.On("GetByID", mock.Anything, mock.Anything, "item-1").Return(&inventory.Item{ID: "item-1"}, nil)
	f.expectAudit("expired")

	n, err := f.order.CancelExpiredOrders(ctx)
	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order-broken")

	// 1件ずつ独立したトランザクション
	assert.Equal(t, 3, f.db.Count("begin:explicit"))
	assert.ElementsMatch(t, []string{"update:order-1", "increase:item-1", "audit:expired"}, f.db.Committed())
	assert.Equal(t, order.StatusCancelled, expired.Status)
	assert.Equal(t, order.StatusPaid, paid.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersTotal.WithLabelValues("expired")))
}

func TestOrderService_GetOrder(t *testing.T) {
	f := newFixture(t)
	f.orders.On("GetByID", mock.Anything, nil, "order-1").Return(pendingOrder(100), nil)

	o, err := f.order.GetOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", o.ID)
	assert.Empty(t, f.db.Events())
}
