package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// StockCache は商品在庫数のキャッシュを管理する
// 在庫を変更したトランザクションのコミット後に無効化される
type StockCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStockCache は新しいStockCacheインスタンスを作成する
func NewStockCache(client *redis.Client, ttl time.Duration) *StockCache {
	return &StockCache{client: client, ttl: ttl}
}

// GetStock は商品の在庫数をキャッシュから取得する
func (c *StockCache) GetStock(ctx context.Context, itemID string) (int, error) {
	val, err := c.client.Get(ctx, c.stockKey(itemID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetStock は商品の在庫数をキャッシュに保存する
func (c *StockCache) SetStock(ctx context.Context, itemID string, stock int) error {
	if err := c.client.Set(ctx, c.stockKey(itemID), stock, c.ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate は商品のキャッシュを無効化する
func (c *StockCache) Invalidate(ctx context.Context, itemIDs ...string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = c.stockKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *StockCache) stockKey(itemID string) string {
	return fmt.Sprintf("items:stock:%s", itemID)
}
