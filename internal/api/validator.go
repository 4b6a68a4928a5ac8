package api

import (
	"github.com/go-playground/validator/v10"
)

// CustomValidator はEcho用のカスタムバリデーター
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator は新しいバリデーターを作成する
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate はリクエストのバリデーションを実行する
// 失敗時は validator.ValidationErrors を返し、CustomHTTPErrorHandler が400に変換する
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
