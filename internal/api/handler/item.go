package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/biud436/blog-api-server-sub000/internal/application"
	"github.com/biud436/blog-api-server-sub000/internal/domain/inventory"
)

type ItemHandler struct {
	service InventoryServiceInterface
}

func NewItemHandler(s InventoryServiceInterface) *ItemHandler {
	return &ItemHandler{service: s}
}

// RegisterRoutes は商品のルートを登録する
func (h *ItemHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/items", h.Create)
	g.GET("/items/:id", h.GetByID)
	g.GET("/items/:id/stock", h.GetStock)
}

type CreateItemRequest struct {
	SKU   string `json:"sku" validate:"required,max=64" example:"TSHIRT-M"`
	Name  string `json:"name" validate:"required,max=255" example:"Tシャツ M"`
	Price int    `json:"price" validate:"min=0" example:"2000"`
	Stock int    `json:"stock" validate:"min=0" example:"100"`
}

type ItemResponse struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Price     int       `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
}

type StockResponse struct {
	ItemID string `json:"item_id"`
	Stock  int    `json:"stock"`
}

func toItemResponse(i *inventory.Item) ItemResponse {
	return ItemResponse{ID: i.ID, SKU: i.SKU, Name: i.Name, Price: i.Price, Stock: i.Stock, CreatedAt: i.CreatedAt}
}

// Create godoc
// @Summary 商品を登録
// @Tags items
// @Accept json
// @Produce json
// @Param request body CreateItemRequest true "商品情報"
// @Success 201 {object} ItemResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "SKUの重複"
// @Router /items [post]
func (h *ItemHandler) Create(c echo.Context) error {
	var req CreateItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	item, err := h.service.CreateItem(c.Request().Context(), application.CreateItemInput{
		SKU: req.SKU, Name: req.Name, Price: req.Price, Stock: req.Stock,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toItemResponse(item))
}

// GetByID godoc
// @Summary 商品を取得
// @Tags items
// @Produce json
// @Param id path string true "商品ID"
// @Failure 400 {object} api.ErrorResponse "IDの形式が不正"
// @Success 200 {object} ItemResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /items/{id} [get]
func (h *ItemHandler) GetByID(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	item, err := h.service.GetItem(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, inventory.ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, toItemResponse(item))
}

// GetStock godoc
// @Summary 在庫数を取得
// @Description キャッシュがあればキャッシュから返します
// @Tags items
// @Produce json
// @Param id path string true "商品ID"
// @Failure 400 {object} api.ErrorResponse "IDの形式が不正"
// @Success 200 {object} StockResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /items/{id}/stock [get]
func (h *ItemHandler) GetStock(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	stock, err := h.service.GetStock(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, inventory.ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, StockResponse{ItemID: id, Stock: stock})
}
