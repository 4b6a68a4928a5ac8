package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/apperror"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Details   string `json:"details,omitempty"`
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
// ロールバック時に変換された業務エラーはそのステータスとコードで返す
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	resp := ErrorResponse{
		Error: "内部サーバーエラー",
		Code:  http.StatusInternalServerError,
	}

	var (
		he *echo.HTTPError
		ve validator.ValidationErrors
	)
	if ae, ok := apperror.From(err); ok {
		resp.Code = ae.Status
		resp.Error = ae.Message
		resp.ErrorCode = ae.Code
	} else if errors.As(err, &he) {
		resp.Code = he.Code
		if m, ok := he.Message.(string); ok {
			resp.Error = m
		} else {
			resp.Error = http.StatusText(he.Code)
		}
	} else if errors.As(err, &ve) {
		resp.Code = http.StatusBadRequest
		resp.Error = "入力値が不正です"
		resp.ErrorCode = "VALIDATION_FAILED"
		resp.Details = ve.Error()
	} else if errors.Is(err, transaction.ErrSerializationFailure) {
		// コミット時の直列化の失敗は変換されずに届く
		resp.Code = http.StatusConflict
		resp.Error = "同時に更新されたため処理できませんでした。再試行してください"
		resp.ErrorCode = "SERIALIZATION_FAILURE"
	}

	// エラーログを出力（5xx エラーの場合）
	if resp.Code >= 500 {
		logger.FromContext(c.Request().Context()).Error("サーバーエラー",
			zap.Int("status", resp.Code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(resp.Code)
	} else {
		err = c.JSON(resp.Code, resp)
	}
	if err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
