package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 物理トランザクションの総数（zone, method, propagation, outcome）
	// outcome: commit, rollback, begin_failed, commit_failed, aborted, panic
	TransactionsTotal *prometheus.CounterVec

	// 物理トランザクションの所要時間（zone, method, outcome）
	TransactionDuration *prometheus.HistogramVec

	// 実行中の物理トランザクション数（handle: session, explicit）
	ActiveTransactions *prometheus.GaugeVec

	// 既存トランザクションに参加した呼び出し数（zone, method, propagation）
	JoinedCallsTotal *prometheus.CounterVec

	// コネクション解放の失敗数
	ConnectionReleaseFailures prometheus.Counter

	// 注文の処理結果（status: created, paid, cancelled, expired, rolled_back, lock_failed, duplicate）
	OrdersTotal *prometheus.CounterVec

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_total",
				Help: "Total number of physical transactions by outcome",
			},
			[]string{"zone", "method", "propagation", "outcome"},
		),
		TransactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transaction_duration_seconds",
				Help:    "Physical transaction duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"zone", "method", "outcome"},
		),
		ActiveTransactions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_transactions",
				Help: "Current number of open physical transactions",
			},
			[]string{"handle"},
		),
		JoinedCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_joined_calls_total",
				Help: "Total number of transactional calls that joined an active transaction",
			},
			[]string{"zone", "method", "propagation"},
		),
		ConnectionReleaseFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "transaction_connection_release_failures_total",
				Help: "Total number of failures while releasing a checked-out connection",
			},
		),
		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_total",
				Help: "Total number of order placement attempts",
			},
			[]string{"status"},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TransactionsTotal,
		m.TransactionDuration,
		m.ActiveTransactions,
		m.JoinedCallsTotal,
		m.ConnectionReleaseFailures,
		m.OrdersTotal,
		m.DistributedLockDuration,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
