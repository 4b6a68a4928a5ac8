package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 環境変数をクリア
	envVars := []string{
		"APP_ENV", "PORT", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT", "SERVER_SHUTDOWN_TIMEOUT",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_MIGRATIONS_PATH",
		"REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB",
		"TX_DEFAULT_ISOLATION", "TX_STRICT_ISOLATION",
		"WORKER_EXPIRED_ORDER_INTERVAL", "ORDER_PAYMENT_TIMEOUT", "ORDER_LOCK_TTL",
		"METRICS_USER", "METRICS_PASSWORD",
	}
	for _, env := range envVars {
		t.Setenv(env, "")
	}

	cfg := Load()

	assert.Equal(t, "development", cfg.Env)

	// Server defaults
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	// Database defaults
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "orders", cfg.Database.DBName)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)
	assert.Equal(t, "migrations", cfg.Database.MigrationsPath)

	// Redis defaults
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 0, cfg.Redis.DB)

	// Transaction defaults
	assert.Equal(t, transaction.RepeatableRead, cfg.Transaction.DefaultIsolation)
	assert.False(t, cfg.Transaction.StrictIsolation)

	assert.Equal(t, time.Minute, cfg.Worker.ExpiredOrderInterval)
	assert.Equal(t, 15*time.Minute, cfg.Order.PaymentTimeout)
	assert.Equal(t, 10*time.Second, cfg.Order.LockTTL)
	assert.False(t, cfg.Metrics.AuthEnabled())
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_HOST", "db.example.com")
	t.Setenv("DB_MAX_OPEN_CONNS", "50")
	t.Setenv("REDIS_DB", "1")
	t.Setenv("TX_DEFAULT_ISOLATION", "read_committed")
	t.Setenv("TX_STRICT_ISOLATION", "true")
	t.Setenv("WORKER_EXPIRED_ORDER_INTERVAL", "30s")

	cfg := Load()

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, transaction.ReadCommitted, cfg.Transaction.DefaultIsolation)
	assert.True(t, cfg.Transaction.StrictIsolation)
	assert.Equal(t, 30*time.Second, cfg.Worker.ExpiredOrderInterval)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T, cfg *Config)
	}{
		{"不正な整数", "DB_MAX_OPEN_CONNS", "many", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		}},
		{"不正な真偽値", "TX_STRICT_ISOLATION", "maybe", func(t *testing.T, cfg *Config) {
			assert.False(t, cfg.Transaction.StrictIsolation)
		}},
		{"不正な分離レベル", "TX_DEFAULT_ISOLATION", "snapshot", func(t *testing.T, cfg *Config) {
			assert.Equal(t, transaction.RepeatableRead, cfg.Transaction.DefaultIsolation)
		}},
		{"不正な期間", "SERVER_READ_TIMEOUT", "soon", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			tt.check(t, Load())
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host: "localhost", Port: "5432", User: "user", Password: "pass", DBName: "db", SSLMode: "disable",
	}
	assert.Equal(t, "host=localhost port=5432 user=user password=pass dbname=db sslmode=disable", cfg.DSN())
}

func TestMetricsConfig_AuthEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  MetricsConfig
		want bool
	}{
		{"両方設定", MetricsConfig{User: "user", Password: "pass"}, true},
		{"ユーザーのみ", MetricsConfig{User: "user"}, false},
		{"パスワードのみ", MetricsConfig{Password: "pass"}, false},
		{"未設定", MetricsConfig{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.AuthEnabled())
		})
	}
}
