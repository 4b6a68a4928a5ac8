package handler

import (
	"context"

	"github.com/biud436/blog-api-server-sub000/internal/application"
	"github.com/biud436/blog-api-server-sub000/internal/domain/account"
	"github.com/biud436/blog-api-server-sub000/internal/domain/inventory"
	"github.com/biud436/blog-api-server-sub000/internal/domain/order"
)

// OrderServiceInterface は注文サービスのインターフェース
type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, input application.CreateOrderInput) (*order.Order, error)
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	PayOrder(ctx context.Context, id string) (*order.Order, error)
	CancelOrder(ctx context.Context, id string) (*order.Order, error)
}

// AccountServiceInterface は口座サービスのインターフェース
type AccountServiceInterface interface {
	OpenAccount(ctx context.Context, input application.OpenAccountInput) (*account.Account, error)
	GetAccount(ctx context.Context, id string) (*account.Account, error)
	TransferFunds(ctx context.Context, input application.TransferInput) (*application.TransferResult, error)
}

// InventoryServiceInterface は在庫サービスのインターフェース
type InventoryServiceInterface interface {
	CreateItem(ctx context.Context, input application.CreateItemInput) (*inventory.Item, error)
	GetItem(ctx context.Context, id string) (*inventory.Item, error)
	GetStock(ctx context.Context, id string) (int, error)
}
