package config

import (
	"os"
	"strconv"
	"time"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

// Config はアプリケーション設定を表す
type Config struct {
	Env         string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Transaction TransactionConfig
	Worker      WorkerConfig
	Order       OrderConfig
	Metrics     MetricsConfig
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

// RedisConfig はRedis設定
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// TransactionConfig はトランザクション制御の設定
type TransactionConfig struct {
	// DefaultIsolation は分離レベル未指定のメソッドに使う
	DefaultIsolation transaction.IsolationLevel
	// StrictIsolation は参加先の分離レベルが要求より弱い場合にエラーにする
	StrictIsolation bool
}

// WorkerConfig はバックグラウンドワーカーの設定
type WorkerConfig struct {
	ExpiredOrderInterval time.Duration
}

// OrderConfig は注文の設定
type OrderConfig struct {
	PaymentTimeout time.Duration
	LockTTL        time.Duration
}

// MetricsConfig は /metrics の Basic 認証設定
// User と Password の両方が設定されている場合だけ認証を要求する
type MetricsConfig struct {
	User     string
	Password string
}

// AuthEnabled は認証が有効かどうかを返す
func (c *MetricsConfig) AuthEnabled() bool {
	return c.User != "" && c.Password != ""
}

// Load は環境変数から設定を読み込む
func Load() *Config {
	return &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "orders"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Transaction: TransactionConfig{
			DefaultIsolation: getIsolationEnv("TX_DEFAULT_ISOLATION", transaction.DefaultIsolation),
			StrictIsolation:  getBoolEnv("TX_STRICT_ISOLATION", false),
		},
		Worker: WorkerConfig{
			ExpiredOrderInterval: getDurationEnv("WORKER_EXPIRED_ORDER_INTERVAL", time.Minute),
		},
		Order: OrderConfig{
			PaymentTimeout: getDurationEnv("ORDER_PAYMENT_TIMEOUT", 15*time.Minute),
			LockTTL:        getDurationEnv("ORDER_LOCK_TTL", 10*time.Second),
		},
		Metrics: MetricsConfig{
			User:     getEnv("METRICS_USER", ""),
			Password: getEnv("METRICS_PASSWORD", ""),
		},
	}
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIsolationEnv(key string, defaultValue transaction.IsolationLevel) transaction.IsolationLevel {
	if value := os.Getenv(key); value != "" {
		if level, err := transaction.ParseIsolationLevel(value); err == nil && level != transaction.IsolationUnspecified {
			return level
		}
	}
	return defaultValue
}
