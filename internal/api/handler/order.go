package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/biud436/blog-api-server-sub000/internal/application"
	"github.com/biud436/blog-api-server-sub000/internal/domain/order"
)

// HeaderIdempotencyKey はボディで省略した冪等性キーを受け取るヘッダー
const HeaderIdempotencyKey = "Idempotency-Key"

type OrderHandler struct {
	service OrderServiceInterface
}

func NewOrderHandler(s OrderServiceInterface) *OrderHandler {
	return &OrderHandler{service: s}
}

// RegisterRoutes は注文のルートを登録する
func (h *OrderHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/orders", h.Create)
	g.GET("/orders/:id", h.GetByID)
	g.POST("/orders/:id/pay", h.Pay)
	g.POST("/orders/:id/cancel", h.Cancel)
}

type OrderLineRequest struct {
	ItemID   string `json:"item_id" validate:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	Quantity int    `json:"quantity" validate:"required,min=1" example:"2"`
}

type CreateOrderRequest struct {
	AccountID      string             `json:"account_id" validate:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	IdempotencyKey string             `json:"idempotency_key" validate:"required" example:"order-2025-001"`
	Lines          []OrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type OrderLineResponse struct {
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int    `json:"unit_price"`
}

type OrderResponse struct {
	ID          string              `json:"id"`
	AccountID   string              `json:"account_id"`
	Status      string              `json:"status" example:"pending"`
	Lines       []OrderLineResponse `json:"lines"`
	TotalAmount int                 `json:"total_amount" example:"10000"`
	ExpiresAt   time.Time           `json:"expires_at"`
	PaidAt      *time.Time          `json:"paid_at,omitempty"`
	CancelledAt *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

func toOrderResponse(o *order.Order) OrderResponse {
	lines := make([]OrderLineResponse, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = OrderLineResponse{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return OrderResponse{
		ID: o.ID, AccountID: o.AccountID, Status: string(o.Status),
		Lines: lines, TotalAmount: o.TotalAmount, ExpiresAt: o.ExpiresAt,
		PaidAt: o.PaidAt, CancelledAt: o.CancelledAt, CreatedAt: o.CreatedAt,
	}
}

// Create godoc
// @Summary 注文を作成
// @Description 在庫を引き当てて注文を作成します（支払い期限付き）
// @Tags orders
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "冪等性キー（ボディで省略した場合）"
// @Param request body CreateOrderRequest true "注文情報"
// @Success 201 {object} OrderResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "在庫不足・処理中"
// @Router /orders [post]
func (h *OrderHandler) Create(c echo.Context) error {
	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Request().Header.Get(HeaderIdempotencyKey)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	lines := make([]application.OrderLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = application.OrderLineInput{ItemID: l.ItemID, Quantity: l.Quantity}
	}
	o, err := h.service.CreateOrder(c.Request().Context(), application.CreateOrderInput{
		AccountID: req.AccountID, IdempotencyKey: req.IdempotencyKey, Lines: lines,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toOrderResponse(o))
}

// GetByID godoc
// @Summary 注文を取得
// @Tags orders
// @Produce json
// @Param id path string true "注文ID"
// @Failure 400 {object} api.ErrorResponse "IDの形式が不正"
// @Success 200 {object} OrderResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /orders/{id} [get]
func (h *OrderHandler) GetByID(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	o, err := h.service.GetOrder(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

// Pay godoc
// @Summary 注文を支払う
// @Description 口座から代金を引き落とし、注文を支払い済みにします
// @Tags orders
// @Produce json
// @Param id path string true "注文ID"
// @Failure 400 {object} api.ErrorResponse "IDの形式が不正"
// @Success 200 {object} OrderResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Failure 422 {object} api.ErrorResponse "残高不足"
// @Router /orders/{id}/pay [post]
func (h *OrderHandler) Pay(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	o, err := h.service.PayOrder(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

// Cancel godoc
// @Summary 注文を取り消す
// @Description 注文を取り消し、在庫を戻します
// @Tags orders
// @Produce json
// @Param id path string true "注文ID"
// @Failure 400 {object} api.ErrorResponse "IDの形式が不正"
// @Success 200 {object} OrderResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /orders/{id}/cancel [post]
func (h *OrderHandler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	o, err := h.service.CancelOrder(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}
