// Package apperror は HTTP レイヤーがそのまま返せる業務エラーを定義する
// トランザクショナルなメソッドの RollbackError から Map で生成して使う
package apperror

import (
	"errors"
	"net/http"
)

// Error は HTTP ステータスとエラーコードを持つ業務エラー
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap は元のエラーを返す
func (e *Error) Unwrap() error {
	return e.Err
}

// New は Error を作成する
func New(status int, code, message string, err error) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

// Conflict は 409 を返す Error
func Conflict(code, message string, err error) *Error {
	return New(http.StatusConflict, code, message, err)
}

// NotFound は 404 を返す Error
func NotFound(code, message string, err error) *Error {
	return New(http.StatusNotFound, code, message, err)
}

// BadRequest は 400 を返す Error
func BadRequest(code, message string, err error) *Error {
	return New(http.StatusBadRequest, code, message, err)
}

// Unprocessable は 422 を返す Error
func Unprocessable(code, message string, err error) *Error {
	return New(http.StatusUnprocessableEntity, code, message, err)
}

// Rule は Target に一致するエラーを Error に変換する規則
type Rule struct {
	Target  error
	Status  int
	Code    string
	Message string
}

// Map は規則を順に照合するファクトリを返す
// 既に *Error のものや、どの規則にも一致しないものには nil を返す
func Map(rules ...Rule) func(error) error {
	return func(err error) error {
		if _, ok := From(err); ok {
			return nil
		}
		for _, r := range rules {
			if errors.Is(err, r.Target) {
				message := r.Message
				if message == "" {
					message = r.Target.Error()
				}
				return New(r.Status, r.Code, message, err)
			}
		}
		return nil
	}
}

// From はエラーチェーンから *Error を取り出す
func From(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
