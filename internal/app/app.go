// Package app は設定から依存関係を組み立て、HTTP サーバーとワーカーを構成する
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/biud436/blog-api-server-sub000/internal/api"
	"github.com/biud436/blog-api-server-sub000/internal/api/handler"
	"github.com/biud436/blog-api-server-sub000/internal/api/middleware"
	"github.com/biud436/blog-api-server-sub000/internal/application"
	"github.com/biud436/blog-api-server-sub000/internal/config"
	"github.com/biud436/blog-api-server-sub000/internal/infrastructure/postgres"
	redisinfra "github.com/biud436/blog-api-server-sub000/internal/infrastructure/redis"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/logger"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/metrics"
	"github.com/biud436/blog-api-server-sub000/internal/transactional"
	"github.com/biud436/blog-api-server-sub000/internal/worker"
)

const stockCacheTTL = 30 * time.Second

// App は組み立て済みのアプリケーション
type App struct {
	Echo    *echo.Echo
	DB      *sqlx.DB
	Redis   *redis.Client
	Cleaner *worker.ExpiredOrderCleaner

	Orders    *application.OrderService
	Accounts  *application.AccountService
	Inventory *application.InventoryService
	Audit     *application.AuditService
}

// New は依存関係を組み立てる
// Redis に接続できない場合は分散ロックと在庫キャッシュなしで動作する
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*App, error) {
	log := logger.Get()

	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		return nil, err
	}
	version, err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info("マイグレーション適用済み", zap.Uint("version", version))

	gdb, err := postgres.NewGorm(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{DB: db}

	var (
		lockManager *redisinfra.LockManager
		stockCache  *redisinfra.StockCache
	)
	rc := redisinfra.NewClient(&cfg.Redis)
	if err := redisinfra.Ping(ctx, rc); err != nil {
		log.Warn("Redisなしで起動します", zap.Error(err))
		rc.Close()
	} else {
		a.Redis = rc
		lockManager = redisinfra.NewLockManager(rc, m)
		stockCache = redisinfra.NewStockCache(rc, stockCacheTTL)
	}

	reg := transactional.NewRegistry()
	ic := transactional.NewInterceptor(reg,
		postgres.NewSessionRunner(gdb),
		postgres.NewPool(db),
		transactional.WithMetrics(m),
		transactional.WithTracerProvider(otel.GetTracerProvider()),
		transactional.WithStrictIsolation(cfg.Transaction.StrictIsolation),
		transactional.WithDefaultIsolation(cfg.Transaction.DefaultIsolation),
	)

	if err := a.buildServices(ic, db, gdb, lockManager, stockCache, m, cfg.Order); err != nil {
		a.Close()
		return nil, err
	}
	// 以降のメソッド登録は受け付けない
	reg.Seal()
	log.Info("トランザクション定義を登録", zap.Int("methods", reg.Len()))

	a.Echo = a.buildEcho(cfg, m)
	a.Cleaner = worker.NewExpiredOrderCleaner(a.Orders, cfg.Worker.ExpiredOrderInterval)
	return a, nil
}

// buildServices はサービスを依存順に生成する
func (a *App) buildServices(
	ic *transactional.Interceptor,
	db *sqlx.DB,
	gdb *gorm.DB,
	lockManager *redisinfra.LockManager,
	stockCache *redisinfra.StockCache,
	m *metrics.Metrics,
	orderCfg config.OrderConfig,
) error {
	var err error
	if a.Audit, err = application.NewAuditService(ic, postgres.NewAuditRepository(gdb)); err != nil {
		return fmt.Errorf("AuditService: %w", err)
	}
	if a.Inventory, err = application.NewInventoryService(ic, postgres.NewItemRepository(db), stockCache); err != nil {
		return fmt.Errorf("InventoryService: %w", err)
	}
	if a.Accounts, err = application.NewAccountService(ic, postgres.NewAccountRepository(db), a.Audit); err != nil {
		return fmt.Errorf("AccountService: %w", err)
	}
	a.Orders, err = application.NewOrderService(ic, application.OrderDeps{
		Repo:        postgres.NewOrderRepository(db),
		Inventory:   a.Inventory,
		Accounts:    a.Accounts,
		Audit:       a.Audit,
		LockManager: lockManager,
		Metrics:     m,
		Config:      orderCfg,
	})
	if err != nil {
		return fmt.Errorf("OrderService: %w", err)
	}
	return nil
}

func (a *App) buildEcho(cfg *config.Config, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Validator = api.NewValidator()
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	middleware.SetupMiddleware(e, m)

	checks := []handler.Check{{Name: "postgres", Fn: func(ctx context.Context) error { return postgres.Ping(ctx, a.DB) }}}
	if a.Redis != nil {
		checks = append(checks, handler.Check{Name: "redis", Fn: func(ctx context.Context) error { return redisinfra.Ping(ctx, a.Redis) }})
	}
	health := handler.NewHealthHandler(checks...)
	e.GET("/health", health.Check)
	e.GET("/ready", health.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(cfg.Metrics))

	v1 := e.Group("/api/v1")
	handler.NewItemHandler(a.Inventory).RegisterRoutes(v1)
	handler.NewAccountHandler(a.Accounts).RegisterRoutes(v1)
	handler.NewOrderHandler(a.Orders).RegisterRoutes(v1)
	return e
}

// Close は接続を閉じる
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
