package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/biud436/blog-api-server-sub000/internal/config"
	"github.com/biud436/blog-api-server-sub000/internal/domain/order"
	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
	redislock "github.com/biud436/blog-api-server-sub000/internal/infrastructure/redis"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/apperror"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/logger"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/metrics"
	"github.com/biud436/blog-api-server-sub000/internal/transactional"
)

// OrderZone は注文サービスのゾーン名
const OrderZone = "OrderService"

var orderErrors = apperror.Map(
	apperror.Rule{Target: order.ErrOrderNotFound, Status: http.StatusNotFound, Code: "ORDER_NOT_FOUND"},
	apperror.Rule{Target: order.ErrOrderNotPending, Status: http.StatusConflict, Code: "ORDER_NOT_PENDING"},
	apperror.Rule{Target: order.ErrOrderExpired, Status: http.StatusConflict, Code: "ORDER_EXPIRED"},
	apperror.Rule{Target: order.ErrOrderAlreadyCancelled, Status: http.StatusConflict, Code: "ORDER_ALREADY_CANCELLED"},
	apperror.Rule{Target: order.ErrOrderAlreadyPaid, Status: http.StatusConflict, Code: "ORDER_ALREADY_PAID"},
	apperror.Rule{Target: order.ErrIdempotencyKeyAlreadyExists, Status: http.StatusConflict, Code: "DUPLICATE_ORDER"},
	apperror.Rule{Target: order.ErrAccountIDRequired, Status: http.StatusBadRequest, Code: "INVALID_ORDER"},
	apperror.Rule{Target: order.ErrLinesRequired, Status: http.StatusBadRequest, Code: "INVALID_ORDER"},
	apperror.Rule{Target: order.ErrInvalidLine, Status: http.StatusBadRequest, Code: "INVALID_ORDER"},
	apperror.Rule{Target: order.ErrIdempotencyKeyRequired, Status: http.StatusBadRequest, Code: "INVALID_ORDER"},
)

var orderTable = transactional.Table{
	"CreateOrder": {
		Handle:        transactional.HandleExplicit,
		RollbackError: orderErrors,
	},
	"PayOrder": {
		Handle:        transactional.HandleExplicit,
		RollbackError: orderErrors,
	},
	"CancelOrder": {
		Handle:        transactional.HandleExplicit,
		RollbackError: orderErrors,
	},
	// 期限切れ注文は1件ずつ独立して取り消す
	"CancelExpiredOrder": {
		Propagation: transaction.PropagationStartNew,
		Handle:      transactional.HandleExplicit,
	},
}

const expiredOrderBatchSize = 100

var (
	_ transactional.BeforeTransactionHook = (*OrderService)(nil)
	_ transactional.CommitHook            = (*OrderService)(nil)
	_ transactional.RollbackHook          = (*OrderService)(nil)
)

// OrderService は注文の作成・支払い・取消を扱う
type OrderService struct {
	repo        order.Repository
	inventory   *InventoryService
	accounts    *AccountService
	audit       *AuditService
	lockManager *redislock.LockManager
	metrics     *metrics.Metrics
	cfg         config.OrderConfig

	createOrder        transactional.Func[CreateOrderInput, *order.Order]
	payOrder           transactional.Func[string, *order.Order]
	cancelOrder        transactional.Func[string, *order.Order]
	cancelExpiredOrder transactional.Func[string, bool]
}

// OrderDeps は OrderService の依存
// LockManager と Metrics は nil でもよい
type OrderDeps struct {
	Repo        order.Repository
	Inventory   *InventoryService
	Accounts    *AccountService
	Audit       *AuditService
	LockManager *redislock.LockManager
	Metrics     *metrics.Metrics
	Config      config.OrderConfig
}

// NewOrderService はゾーンを登録して OrderService を作成する
func NewOrderService(ic *transactional.Interceptor, deps OrderDeps) (*OrderService, error) {
	s := &OrderService{
		repo:        deps.Repo,
		inventory:   deps.Inventory,
		accounts:    deps.Accounts,
		audit:       deps.Audit,
		lockManager: deps.LockManager,
		metrics:     deps.Metrics,
		cfg:         deps.Config,
	}
	if s.cfg.PaymentTimeout <= 0 {
		s.cfg.PaymentTimeout = order.DefaultPaymentTimeout
	}
	if s.cfg.LockTTL <= 0 {
		s.cfg.LockTTL = 10 * time.Second
	}
	if err := ic.Registry().RegisterZone(s, orderTable); err != nil {
		return nil, err
	}
	s.createOrder = transactional.Bind(ic, s, "CreateOrder", s.doCreateOrder)
	s.payOrder = transactional.Bind(ic, s, "PayOrder", s.doPayOrder)
	s.cancelOrder = transactional.Bind(ic, s, "CancelOrder", s.doCancelOrder)
	s.cancelExpiredOrder = transactional.Bind(ic, s, "CancelExpiredOrder", s.doCancelExpiredOrder)
	return s, nil
}

func (s *OrderService) ZoneName() string { return OrderZone }

type OrderLineInput struct {
	ItemID   string
	Quantity int
}

type CreateOrderInput struct {
	AccountID      string
	IdempotencyKey string
	Lines          []OrderLineInput
}

// CreateOrder は在庫を引き当てて注文を作成する
// 同じ冪等性キーの注文が既にあればそれを返す
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*order.Order, error) {
	// 冪等性チェック
	existing, err := s.repo.GetByIdempotencyKey(ctx, input.IdempotencyKey)
	if err == nil {
		s.count("duplicate")
		return existing, nil
	}
	if !errors.Is(err, order.ErrOrderNotFound) {
		return nil, fmt.Errorf("冪等性チェックに失敗: %w", err)
	}

	if s.lockManager != nil {
		lock, err := s.lockManager.AcquireLockWithRetry(ctx, "orders:"+input.IdempotencyKey, s.cfg.LockTTL, 3, 100*time.Millisecond)
		if err != nil {
			if errors.Is(err, redislock.ErrLockNotAcquired) {
				s.count("lock_failed")
				return nil, apperror.Conflict("ORDER_IN_PROGRESS", order.ErrOrderInProgress.Error(), order.ErrOrderInProgress)
			}
			return nil, fmt.Errorf("ロック取得に失敗: %w", err)
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				logger.FromContext(ctx).Warn("ロック解放に失敗", zap.String("key", lock.Key()), zap.Error(err))
			}
		}()
	}

	o, err := s.createOrder(ctx, nil, input)
	if errors.Is(err, order.ErrIdempotencyKeyAlreadyExists) {
		// ロックの外で同じキーが先に確定した
		if existing, getErr := s.repo.GetByIdempotencyKey(ctx, input.IdempotencyKey); getErr == nil {
			s.count("duplicate")
			return existing, nil
		}
	}
	return o, err
}

func (s *OrderService) doCreateOrder(ctx context.Context, h transaction.Handle, input CreateOrderInput) (*order.Order, error) {
	lines := make([]order.Line, len(input.Lines))
	for i, l := range input.Lines {
		lines[i] = order.Line{ItemID: l.ItemID, Quantity: l.Quantity}
	}
	if err := order.NewOrder(input.AccountID, input.IdempotencyKey, lines, s.cfg.PaymentTimeout).Validate(); err != nil {
		return nil, err
	}

	// 注文がロールバックされても受付の記録は残す
	s.record(ctx, "order:"+input.IdempotencyKey, "create_requested", fmt.Sprintf("account=%s lines=%d", input.AccountID, len(lines)))

	// 商品IDの順に行ロックを取る（ソートしてデッドロック防止）
	for _, i := range byItemID(lines) {
		item, err := s.inventory.ReserveInventory(ctx, h, StockInput{ItemID: lines[i].ItemID, Quantity: lines[i].Quantity})
		if err != nil {
			return nil, err
		}
		lines[i].UnitPrice = item.Price
	}

	o := order.NewOrder(input.AccountID, input.IdempotencyKey, lines, s.cfg.PaymentTimeout)
	if err := s.repo.Create(ctx, h, o); err != nil {
		return nil, err
	}
	return o, nil
}

// PayOrder は口座から代金を引き落として注文を支払い済みにする
func (s *OrderService) PayOrder(ctx context.Context, id string) (*order.Order, error) {
	return s.payOrder(ctx, nil, id)
}

func (s *OrderService) doPayOrder(ctx context.Context, h transaction.Handle, id string) (*order.Order, error) {
	o, err := s.repo.LockByID(ctx, h, id)
	if err != nil {
		return nil, err
	}
	if err := o.MarkPaid(); err != nil {
		return nil, err
	}
	if _, err := s.accounts.Charge(ctx, h, ChargeInput{AccountID: o.AccountID, Amount: o.TotalAmount}); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, h, o); err != nil {
		return nil, err
	}
	return o, nil
}

// CancelOrder は注文を取り消して在庫を戻す
func (s *OrderService) CancelOrder(ctx context.Context, id string) (*order.Order, error) {
	return s.cancelOrder(ctx, nil, id)
}

func (s *OrderService) doCancelOrder(ctx context.Context, h transaction.Handle, id string) (*order.Order, error) {
	o, err := s.repo.LockByID(ctx, h, id)
	if err != nil {
		return nil, err
	}
	if err := s.cancel(ctx, h, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderService) cancel(ctx context.Context, h transaction.Handle, o *order.Order) error {
	if err := o.Cancel(); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, h, o); err != nil {
		return err
	}
	for _, i := range byItemID(o.Lines) {
		l := o.Lines[i]
		if _, err := s.inventory.ReleaseInventory(ctx, h, StockInput{ItemID: l.ItemID, Quantity: l.Quantity}); err != nil {
			return err
		}
	}
	return nil
}

// byItemID は明細を商品ID順に並べた添字を返す。明細自体の順序は変えない
func byItemID(lines []order.Line) []int {
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return strings.Compare(lines[a].ItemID, lines[b].ItemID)
	})
	return idx
}

// CancelExpiredOrders は支払い期限切れの注文を取り消し、取り消した件数を返す
// 1件の失敗は他の取り消しに影響しない
func (s *OrderService) CancelExpiredOrders(ctx context.Context) (int, error) {
	ids, err := s.repo.GetExpiredPending(ctx, expiredOrderBatchSize)
	if err != nil {
		return 0, fmt.Errorf("期限切れ注文の取得に失敗: %w", err)
	}

	var errs []error
	cancelled := 0
	for _, id := range ids {
		ok, err := s.cancelExpiredOrder(ctx, nil, id)
		if err != nil {
			logger.FromContext(ctx).Error("期限切れ注文の取消に失敗", zap.String("order_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if ok {
			cancelled++
			s.count("expired")
		}
	}
	return cancelled, errors.Join(errs...)
}

func (s *OrderService) doCancelExpiredOrder(ctx context.Context, h transaction.Handle, id string) (bool, error) {
	o, err := s.repo.LockByID(ctx, h, id)
	if err != nil {
		return false, err
	}
	// ロックを取るまでに支払われたもの
	if !o.IsPending() || !o.IsExpired() {
		return false, nil
	}
	if err := s.cancel(ctx, h, o); err != nil {
		return false, err
	}
	s.record(ctx, "order:"+o.ID, "expired", "")
	return true, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	return s.repo.GetByID(ctx, nil, id)
}

func (s *OrderService) record(ctx context.Context, subject, action, detail string) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Record(ctx, RecordAuditInput{Subject: subject, Action: action, Detail: detail}); err != nil {
		logger.FromContext(ctx).Warn("監査ログを記録できません", zap.String("subject", subject), zap.Error(err))
	}
}

func (s *OrderService) count(status string) {
	if s.metrics != nil {
		s.metrics.OrdersTotal.WithLabelValues(status).Inc()
	}
}

// BeforeTransaction はこのゾーンが開始するトランザクションごとに呼ばれる
func (s *OrderService) BeforeTransaction(ctx context.Context, tok *transactional.Token) error {
	logger.FromContext(ctx).Debug("注文トランザクションを開始", zap.String("isolation", tok.Isolation().String()))
	return nil
}

func (s *OrderService) OnCommit(ctx context.Context, tok *transactional.Token) {
	switch tok.Method().Method {
	case "CreateOrder":
		s.count("created")
	case "PayOrder":
		s.count("paid")
	case "CancelOrder":
		s.count("cancelled")
	}
}

func (s *OrderService) OnRollback(ctx context.Context, tok *transactional.Token, cause error) {
	reason := "error"
	if ae, ok := apperror.From(cause); ok {
		reason = ae.Code
	}
	s.count("rolled_back")
	logger.FromContext(ctx).Info("注文トランザクションをロールバック",
		zap.Duration("elapsed", time.Since(tok.StartedAt())),
		zap.String("reason", reason),
		zap.Error(cause),
	)
}
