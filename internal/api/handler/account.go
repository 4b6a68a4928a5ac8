package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/biud436/blog-api-server-sub000/internal/application"
	"github.com/biud436/blog-api-server-sub000/internal/domain/account"
)

type AccountHandler struct {
	service AccountServiceInterface
}

func NewAccountHandler(s AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: s}
}

// RegisterRoutes は口座と送金のルートを登録する
func (h *AccountHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/accounts", h.Create)
	g.GET("/accounts/:id", h.GetByID)
	g.POST("/transfers", h.Transfer)
}

type CreateAccountRequest struct {
	Owner          string `json:"owner" validate:"required,max=255" example:"tanaka"`
	InitialBalance int    `json:"initial_balance" validate:"min=0" example:"10000"`
}

type TransferRequest struct {
	FromAccountID string `json:"from_account_id" validate:"required,uuid"`
	ToAccountID   string `json:"to_account_id" validate:"required,uuid,nefield=FromAccountID"`
	Amount        int    `json:"amount" validate:"required,min=1" example:"500"`
}

type AccountResponse struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Balance   int       `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TransferResponse struct {
	From AccountResponse `json:"from"`
	To   AccountResponse `json:"to"`
}

func toAccountResponse(a *account.Account) AccountResponse {
	return AccountResponse{ID: a.ID, Owner: a.Owner, Balance: a.Balance, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt}
}

// Create godoc
// @Summary 口座を開設
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body CreateAccountRequest true "口座情報"
// @Success 201 {object} AccountResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /accounts [post]
func (h *AccountHandler) Create(c echo.Context) error {
	var req CreateAccountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.service.OpenAccount(c.Request().Context(), application.OpenAccountInput{
		Owner: req.Owner, InitialBalance: req.InitialBalance,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toAccountResponse(a))
}

// GetByID godoc
// @Summary 口座を取得
// @Tags accounts
// @Produce json
// @Param id path string true "口座ID"
// @Failure 400 {object} api.ErrorResponse "IDの形式が不正"
// @Success 200 {object} AccountResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /accounts/{id} [get]
func (h *AccountHandler) GetByID(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.service.GetAccount(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(a))
}

// Transfer godoc
// @Summary 送金
// @Description SERIALIZABLE で送金します。同時更新と競合した場合は409を返します
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body TransferRequest true "送金情報"
// @Success 200 {object} TransferResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "直列化の失敗"
// @Failure 422 {object} api.ErrorResponse "残高不足"
// @Router /transfers [post]
func (h *AccountHandler) Transfer(c echo.Context) error {
	var req TransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.service.TransferFunds(c.Request().Context(), application.TransferInput{
		FromAccountID: req.FromAccountID, ToAccountID: req.ToAccountID, Amount: req.Amount,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TransferResponse{From: toAccountResponse(res.From), To: toAccountResponse(res.To)})
}
