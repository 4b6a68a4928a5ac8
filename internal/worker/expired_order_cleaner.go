package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/biud436/blog-api-server-sub000/internal/pkg/logger"
)

// OrderCleaner は支払い期限切れの注文を取り消すインターフェース
type OrderCleaner interface {
	CancelExpiredOrders(ctx context.Context) (int, error)
}

// ExpiredOrderCleaner は期限切れ注文を定期的に取り消すワーカー
// 注文ごとに独立したトランザクションで処理されるため、一部が失敗しても残りは確定する
type ExpiredOrderCleaner struct {
	orders   OrderCleaner
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewExpiredOrderCleaner は新しいクリーナーを作成
func NewExpiredOrderCleaner(orders OrderCleaner, interval time.Duration) *ExpiredOrderCleaner {
	return &ExpiredOrderCleaner{
		orders:   orders,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start はクリーナーを開始する。停止するまでブロックする
func (c *ExpiredOrderCleaner) Start(ctx context.Context) {
	logger.Info("期限切れ注文クリーナー開始", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("期限切れ注文クリーナー停止（コンテキストキャンセル）")
			return
		case <-c.stopCh:
			logger.Info("期限切れ注文クリーナー停止（シグナル受信）")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// Stop はクリーナーを停止し、実行中の処理の終了を待つ
// Start より後に呼ぶこと
func (c *ExpiredOrderCleaner) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

func (c *ExpiredOrderCleaner) cleanup(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Debug("期限切れ注文のクリーンアップ開始")

	count, err := c.orders.CancelExpiredOrders(ctx)
	if err != nil {
		// 取り消せた分は確定しているので件数も残す
		log.Error("期限切れ注文のクリーンアップで一部失敗", zap.Int("cancelled", count), zap.Error(err))
		return
	}

	if count > 0 {
		log.Info("期限切れ注文を取り消し", zap.Int("count", count))
	} else {
		log.Debug("期限切れ注文なし")
	}
}
