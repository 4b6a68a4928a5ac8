package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/biud436/blog-api-server-sub000/internal/app"
	"github.com/biud436/blog-api-server-sub000/internal/config"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/logger"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/metrics"
)

func main() {
	cfg := config.Load()

	logger.Set(logger.NewLogger(cfg.Env))
	defer logger.Sync()

	m := metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, m)
	if err != nil {
		logger.Fatal("初期化に失敗しました", zap.Error(err))
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	// 期限切れ注文のクリーナー
	g.Go(func() error {
		a.Cleaner.Start(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("サーバーを起動します", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Env))
		if err := a.Echo.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("サーバーをシャットダウンしています...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.Echo.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("サーバーが異常終了しました", zap.Error(err))
		return
	}
	logger.Info("サーバーが正常にシャットダウンしました")
}
