package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/biud436/blog-api-server-sub000/internal/app"
	"github.com/biud436/blog-api-server-sub000/internal/config"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/metrics"
)

var testApp *app.App

// TestMain はE2Eテストのエントリポイント
// パッケージ全体で1回だけアプリケーションを組み立てる
func TestMain(m *testing.M) {
	cfg := config.Load()
	cfg.Database.MigrationsPath = "../migrations"

	a, err := app.New(context.Background(), cfg, metrics.NewWithRegistry(prometheus.NewRegistry()))
	if err != nil {
		os.Exit(0) // DB未起動時はスキップ
	}
	testApp = a

	code := m.Run()

	cleanupTables()
	a.Close()

	os.Exit(code)
}

// cleanupTables はテーブルをクリーンアップ
func cleanupTables() {
	testApp.DB.Exec("TRUNCATE TABLE order_lines, orders, audit_entries, accounts, items CASCADE")
	if testApp.Redis != nil {
		testApp.Redis.FlushDB(context.Background())
	}
}

// getTestApp は共有アプリケーションを取得（テスト前にテーブルをクリーンアップ）
func getTestApp(t *testing.T) *app.App {
	t.Helper()
	if testApp == nil {
		t.Skip("テスト環境が利用できません")
	}
	cleanupTables()
	return testApp
}

// request はHTTPリクエストを実行
func request(a *app.App, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v: %s", err, rec.Body.String())
	}
	return resp
}
