package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// pathID はパスパラメータ :id を UUID として検証し、正規形で返す
// 主キーは UUID 型なので、形式が違うものは DB に渡さず400にする
func pathID(c echo.Context) (string, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "IDの形式が不正です")
	}
	return id.String(), nil
}
