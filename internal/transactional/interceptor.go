package transactional

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/logger"
	"github.com/biud436/blog-api-server-sub000/internal/pkg/metrics"
)

const tracerName = "github.com/biud436/blog-api-server-sub000/internal/transactional"

// Func はトランザクショナルにできるメソッドの形
// h はハンドル引数で、注入が有効なら実行中のハンドルに差し替えられる
type Func[Req, Res any] func(ctx context.Context, h transaction.Handle, req Req) (Res, error)

// Option は Interceptor の設定
type Option func(*Interceptor)

// WithMetrics はトランザクションのメトリクスを記録する
func WithMetrics(m *metrics.Metrics) Option {
	return func(ic *Interceptor) { ic.metrics = m }
}

// WithTracerProvider はスパンの出力先を指定する。既定は otel のグローバルプロバイダ
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(ic *Interceptor) { ic.tracer = tp.Tracer(tracerName) }
}

// WithStrictIsolation は参加先の分離レベルが要求より弱い場合にエラーにする
func WithStrictIsolation(strict bool) Option {
	return func(ic *Interceptor) { ic.strict = strict }
}

// WithDefaultIsolation は分離レベル未指定のメソッドに使う既定値を指定する
func WithDefaultIsolation(level transaction.IsolationLevel) Option {
	return func(ic *Interceptor) {
		if level != transaction.IsolationUnspecified {
			ic.defaultIsolation = level
		}
	}
}

// Interceptor はメソッドを伝播方式に従ってトランザクションでラップする
type Interceptor struct {
	registry         *Registry
	resolver         *Resolver
	session          Executor
	explicit         Executor
	metrics          *metrics.Metrics
	tracer           trace.Tracer
	strict           bool
	defaultIsolation transaction.IsolationLevel
}

// NewInterceptor は Interceptor を作成する
// runner と pool はどちらかが nil でもよいが、その経路を使うメソッドは ErrNoExecutionPath で失敗する
func NewInterceptor(reg *Registry, runner SessionRunner, pool Pool, opts ...Option) *Interceptor {
	ic := &Interceptor{
		registry:         reg,
		resolver:         NewResolver(reg),
		tracer:           otel.Tracer(tracerName),
		defaultIsolation: transaction.DefaultIsolation,
	}
	for _, opt := range opts {
		opt(ic)
	}
	if runner != nil {
		ic.session = NewSessionExecutor(runner)
	}
	if pool != nil {
		ic.explicit = NewExplicitExecutor(pool, ic.metrics)
	}
	return ic
}

// Registry はメソッド定義のレジストリを返す
func (ic *Interceptor) Registry() *Registry {
	return ic.registry
}

// Bind はゾーンのメソッドをラップする。起動時に一度だけ呼ぶ
// 定義が登録されていないメソッドはそのまま返す
func Bind[Req, Res any](ic *Interceptor, zone Zone, method string, fn Func[Req, Res]) Func[Req, Res] {
	key := MethodKey{Zone: zone.ZoneName(), Method: method}
	d, ok := ic.registry.Describe(key)
	if !ok {
		return fn
	}
	return func(ctx context.Context, h transaction.Handle, req Req) (Res, error) {
		var res Res
		err := ic.invoke(ctx, key, d, h, func(ctx context.Context, h transaction.Handle) error {
			out, err := fn(ctx, h, req)
			if err != nil {
				return err
			}
			res = out
			return nil
		})
		if err != nil {
			var zero Res
			return zero, err
		}
		return res, nil
	}
}

func (ic *Interceptor) invoke(ctx context.Context, key MethodKey, d Descriptor, h transaction.Handle, call Body) error {
	ctx, override := takeIsolation(ctx)
	requested := override.Or(d.Isolation)

	if tok, ok := TokenFrom(ctx); ok && d.Propagation != transaction.PropagationStartNew {
		return ic.join(ctx, tok, key, d, requested, h, call)
	}
	return ic.open(ctx, key, d, requested.Or(ic.defaultIsolation), h, call)
}

// join は実行中の物理トランザクションに参加する
// NESTED もセーブポイントを使わないため同じ経路を通る
func (ic *Interceptor) join(ctx context.Context, tok *Token, key MethodKey, d Descriptor, requested transaction.IsolationLevel, h transaction.Handle, call Body) error {
	if requested != transaction.IsolationUnspecified && requested.Stricter(tok.Isolation()) {
		if ic.strict {
			return fmt.Errorf("%s: %s を要求しましたが実行中のトランザクションは %s です: %w",
				key, requested, tok.Isolation(), transaction.ErrIsolationConflict)
		}
		logger.FromContext(ctx).Warn("参加先トランザクションの分離レベルが要求より弱いため、そのまま参加します",
			zap.String("method", key.String()),
			zap.String("requested", requested.String()),
			zap.String("active", tok.Isolation().String()),
		)
	}

	tok.join()
	defer tok.end()

	if ic.metrics != nil {
		ic.metrics.JoinedCallsTotal.WithLabelValues(key.Zone, key.Method, d.Propagation.String()).Inc()
	}

	if d.injects() {
		h = tok.Handle()
	}
	if err := call(ctx, h); err != nil {
		tok.markRollbackOnly()
		return ic.resolver.Resolve(key, err)
	}
	return nil
}

// open は新しい物理トランザクションを開き、このフレームが所有する
// 実行中のトランザクションがあれば一時停止し、終了後の context で元に戻す
func (ic *Interceptor) open(ctx context.Context, key MethodKey, d Descriptor, iso transaction.IsolationLevel, h transaction.Handle, call Body) error {
	exec := ic.executorFor(d.Handle)
	if exec == nil {
		return fmt.Errorf("%s: %w: %s", key, ErrNoExecutionPath, d.Handle)
	}

	ctx, snap := Suspend(ctx)
	tok := newToken(key, d, iso)

	log := logger.FromContext(ctx).With(zap.String("tx_id", tok.ID()), zap.String("method", key.String()))
	ctx = logger.WithContext(ctx, log)
	ctx, span := ic.tracer.Start(ctx, "transaction "+key.String(), trace.WithAttributes(
		attribute.String("tx.id", tok.ID()),
		attribute.String("tx.isolation", iso.String()),
		attribute.String("tx.propagation", d.Propagation.String()),
		attribute.String("tx.handle", d.Handle.String()),
	))
	defer span.End()

	if outer := snap.Token(); outer != nil {
		span.SetAttributes(attribute.String("tx.suspended_id", outer.ID()))
		log.Debug("外側のトランザクションを一時停止", zap.String("suspended_tx_id", outer.ID()))
	}

	start := time.Now()
	if err := ic.runHooks(ctx, key.Zone, HookBeforeTransaction, tok, nil); err != nil {
		ic.record(key, d, "aborted", start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "before transaction hook failed")
		return err
	}

	var began, finished bool
	var bodyErr error
	defer func() {
		if finished {
			return
		}
		// パニック中。Goexit では r が nil になる
		r := recover()
		if began {
			tok.end()
			ic.activeAdd(d, -1)
		}
		ic.record(key, d, "panic", start)
		if r == nil {
			return
		}

		cause := fmt.Errorf("%s: %w: %v", key, transaction.ErrPanicked, r)
		log.Error("パニックによりトランザクションをロールバックしました", zap.Any("panic", r))
		span.RecordError(cause)
		span.SetStatus(codes.Error, "panic")
		if began {
			hookCtx := Resume(ctx, snap)
			_ = ic.runHooks(hookCtx, key.Zone, HookRollback, tok, cause)
			runCallbacks(hookCtx, tok.callbacks(false))
		}
		panic(r)
	}()

	err := exec.Execute(ctx, iso, key, func(txCtx context.Context, raw transaction.Handle) error {
		txCtx = begin(txCtx, tok, raw)
		began = true
		ic.activeAdd(d, 1)
		log.Debug("トランザクション開始", zap.String("isolation", iso.String()), zap.String("handle", d.Handle.String()))

		bodyErr = ic.runOwned(txCtx, key, d, tok, h, raw, call)
		return bodyErr
	})
	finished = true
	if began {
		tok.end()
		ic.activeAdd(d, -1)
	}

	hookCtx := Resume(ctx, snap)
	switch {
	case err == nil:
		log.Debug("コミット完了", zap.Duration("elapsed", time.Since(start)))
		ic.record(key, d, "commit", start)
		_ = ic.runHooks(hookCtx, key.Zone, HookCommit, tok, nil)
		runCallbacks(hookCtx, tok.callbacks(true))
		return nil
	case !began:
		log.Error("トランザクションを開始できません", zap.Error(err))
		ic.record(key, d, "begin_failed", start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return err
	case bodyErr != nil:
		log.Debug("ロールバック完了", zap.Error(err))
		ic.record(key, d, "rollback", start)
	default:
		log.Error("コミットに失敗", zap.Error(err))
		ic.record(key, d, "commit_failed", start)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	_ = ic.runHooks(hookCtx, key.Zone, HookRollback, tok, err)
	runCallbacks(hookCtx, tok.callbacks(false))
	return err
}

func (ic *Interceptor) runOwned(ctx context.Context, key MethodKey, d Descriptor, tok *Token, h, raw transaction.Handle, call Body) error {
	if err := ic.runHooks(ctx, key.Zone, HookAfterTransaction, tok, nil); err != nil {
		tok.markRollbackOnly()
		return ic.resolver.Resolve(key, err)
	}

	if d.injects() {
		h = raw
	}
	if err := call(ctx, h); err != nil {
		tok.markRollbackOnly()
		return ic.resolver.Resolve(key, err)
	}

	// 内側の失敗を握りつぶしてもコミットしない
	if tok.RollbackOnly() {
		return fmt.Errorf("%s: %w", key, transaction.ErrRollbackOnly)
	}
	// チェーン内で起動したゴルーチンがまだ参加中なら、その下でコミットしない
	if depth := tok.Depth(); depth > 1 {
		tok.markRollbackOnly()
		return fmt.Errorf("%s: %d 個: %w", key, depth-1, transaction.ErrUnfinishedJoin)
	}
	return nil
}

// runHooks は開始前後のフックでは最初のエラーを返す
// コミット・ロールバック後のフックのエラーはログに残して続行する
func (ic *Interceptor) runHooks(ctx context.Context, zone string, kind HookKind, tok *Token, cause error) error {
	for _, hook := range ic.registry.hooksOf(zone, kind) {
		err := hook.Fn(ctx, tok, cause)
		if err == nil {
			continue
		}
		if kind == HookBeforeTransaction || kind == HookAfterTransaction {
			return fmt.Errorf("%s.%s: %w", zone, hook.Name, err)
		}
		logger.FromContext(ctx).Error("フックの実行に失敗",
			zap.String("zone", zone),
			zap.String("hook", hook.Name),
			zap.Error(err),
		)
	}
	return nil
}

func runCallbacks(ctx context.Context, fns []func(context.Context)) {
	for _, fn := range fns {
		fn(ctx)
	}
}

func (ic *Interceptor) executorFor(mode HandleMode) Executor {
	if mode == HandleExplicit {
		return ic.explicit
	}
	return ic.session
}

func (ic *Interceptor) record(key MethodKey, d Descriptor, outcome string, start time.Time) {
	if ic.metrics == nil {
		return
	}
	ic.metrics.TransactionsTotal.WithLabelValues(key.Zone, key.Method, d.Propagation.String(), outcome).Inc()
	ic.metrics.TransactionDuration.WithLabelValues(key.Zone, key.Method, outcome).Observe(time.Since(start).Seconds())
}

func (ic *Interceptor) activeAdd(d Descriptor, delta float64) {
	if ic.metrics == nil {
		return
	}
	ic.metrics.ActiveTransactions.WithLabelValues(d.Handle.String()).Add(delta)
}
