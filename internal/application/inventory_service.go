package application

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/biud436/blog-api-server-sub000/internal/domain/inventory"
	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
	redisinfra "github.com/biud436/blog-api-server-sub000/internal/infrastructure/redis"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/apperror"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/logger"
	"github.com/biud436/blog-api-server-sub000/internal/transactional"
)

// InventoryZone は在庫サービスのゾーン名
const InventoryZone = "InventoryService"

var inventoryErrors = apperror.Map(
	apperror.Rule{Target: inventory.ErrOutOfStock, Status: http.StatusConflict, Code: "OUT_OF_STOCK"},
	apperror.Rule{Target: inventory.ErrItemNotFound, Status: http.StatusNotFound, Code: "ITEM_NOT_FOUND"},
	apperror.Rule{Target: inventory.ErrInvalidQuantity, Status: http.StatusBadRequest, Code: "INVALID_QUANTITY"},
	apperror.Rule{Target: inventory.ErrSKUAlreadyExists, Status: http.StatusConflict, Code: "SKU_ALREADY_EXISTS"},
)

var inventoryTable = transactional.Table{
	"CreateItem": {
		Handle:        transactional.HandleExplicit,
		RollbackError: inventoryErrors,
	},
	"ReserveInventory": {
		Handle:        transactional.HandleExplicit,
		RollbackError: inventoryErrors,
	},
	"ReleaseInventory": {
		Handle:        transactional.HandleExplicit,
		RollbackError: inventoryErrors,
	},
}

// InventoryService は商品と在庫を扱う
type InventoryService struct {
	repo  inventory.Repository
	cache *redisinfra.StockCache

	createItem       transactional.Func[CreateItemInput, *inventory.Item]
	reserveInventory transactional.Func[StockInput, *inventory.Item]
	releaseInventory transactional.Func[StockInput, *inventory.Item]
}

// NewInventoryService はゾーンを登録して InventoryService を作成する
// cache は nil でもよい
func NewInventoryService(ic *transactional.Interceptor, repo inventory.Repository, cache *redisinfra.StockCache) (*InventoryService, error) {
	s := &InventoryService{repo: repo, cache: cache}
	if err := ic.Registry().RegisterZone(s, inventoryTable); err != nil {
		return nil, err
	}
	s.createItem = transactional.Bind(ic, s, "CreateItem", s.doCreateItem)
	s.reserveInventory = transactional.Bind(ic, s, "ReserveInventory", s.doReserveInventory)
	s.releaseInventory = transactional.Bind(ic, s, "ReleaseInventory", s.doReleaseInventory)
	return s, nil
}

func (s *InventoryService) ZoneName() string { return InventoryZone }

type CreateItemInput struct {
	SKU   string
	Name  string
	Price int
	Stock int
}

// StockInput は在庫の引当・戻しの対象
type StockInput struct {
	ItemID   string
	Quantity int
}

func (s *InventoryService) CreateItem(ctx context.Context, input CreateItemInput) (*inventory.Item, error) {
	return s.createItem(ctx, nil, input)
}

// ReserveInventory は在庫を引き当てる。実行中のトランザクションがあれば参加する
func (s *InventoryService) ReserveInventory(ctx context.Context, h transaction.Handle, input StockInput) (*inventory.Item, error) {
	return s.reserveInventory(ctx, h, input)
}

// ReleaseInventory は引き当てた在庫を戻す。実行中のトランザクションがあれば参加する
func (s *InventoryService) ReleaseInventory(ctx context.Context, h transaction.Handle, input StockInput) (*inventory.Item, error) {
	return s.releaseInventory(ctx, h, input)
}

func (s *InventoryService) doCreateItem(ctx context.Context, h transaction.Handle, input CreateItemInput) (*inventory.Item, error) {
	item := inventory.NewItem(input.SKU, input.Name, input.Price, input.Stock)
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, h, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *InventoryService) doReserveInventory(ctx context.Context, h transaction.Handle, input StockInput) (*inventory.Item, error) {
	if input.Quantity <= 0 {
		return nil, inventory.ErrInvalidQuantity
	}
	if err := s.repo.DecreaseStock(ctx, h, input.ItemID, input.Quantity); err != nil {
		return nil, err
	}
	item, err := s.repo.GetByID(ctx, h, input.ItemID)
	if err != nil {
		return nil, err
	}
	s.invalidateAfterCommit(ctx, input.ItemID)
	return item, nil
}

func (s *InventoryService) doReleaseInventory(ctx context.Context, h transaction.Handle, input StockInput) (*inventory.Item, error) {
	if input.Quantity <= 0 {
		return nil, inventory.ErrInvalidQuantity
	}
	if err := s.repo.IncreaseStock(ctx, h, input.ItemID, input.Quantity); err != nil {
		return nil, err
	}
	item, err := s.repo.GetByID(ctx, h, input.ItemID)
	if err != nil {
		return nil, err
	}
	s.invalidateAfterCommit(ctx, input.ItemID)
	return item, nil
}

// invalidateAfterCommit はコミットされた場合だけキャッシュを捨てる
func (s *InventoryService) invalidateAfterCommit(ctx context.Context, itemID string) {
	if s.cache == nil {
		return
	}
	err := transactional.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.cache.Invalidate(ctx, itemID); err != nil {
			logger.FromContext(ctx).Warn("キャッシュ無効化エラー", zap.String("item_id", itemID), zap.Error(err))
		}
	})
	if err != nil {
		logger.FromContext(ctx).Warn("コミット後の処理を登録できません", zap.Error(err))
	}
}

func (s *InventoryService) GetItem(ctx context.Context, id string) (*inventory.Item, error) {
	return s.repo.GetByID(ctx, nil, id)
}

// GetStock は在庫数を返す。キャッシュがあれば先に参照する
func (s *InventoryService) GetStock(ctx context.Context, id string) (int, error) {
	if s.cache != nil {
		stock, err := s.cache.GetStock(ctx, id)
		if err == nil {
			logger.Debug("キャッシュヒット", zap.String("item_id", id), zap.Int("stock", stock))
			return stock, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	item, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.SetStock(ctx, id, item.Stock); err != nil {
			logger.Warn("キャッシュ保存エラー", zap.Error(err))
		}
	}
	return item.Stock, nil
}
