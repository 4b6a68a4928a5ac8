// Package transactional はメソッド単位の宣言的トランザクション制御を提供する
//
// サービスは Zone として自身の Table を Registry に登録し、コンストラクタで
// Bind によってメソッドをラップする。呼び出しチェーンのトランザクション状態は
// context.Context に載せて運ぶため、並行する独立したチェーンは互いに干渉しない。
package transactional

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

// レジストリのエラー定義
var (
	ErrRegistrySealed    = errors.New("レジストリは封印済みです")
	ErrDuplicateMethod   = errors.New("メソッドは既に登録されています")
	ErrInvalidDescriptor = errors.New("トランザクション定義が不正です")
	ErrNoExecutionPath   = errors.New("実行経路が設定されていません")
)

// HandleMode はメソッドが使うハンドルの種類
type HandleMode int

const (
	// HandleSession は ORM セッションの Transaction を使う（既定）
	HandleSession HandleMode = iota
	// HandleExplicit はコネクションをチェックアウトして明示的にトランザクションを張る
	HandleExplicit
)

func (m HandleMode) String() string {
	if m == HandleExplicit {
		return "explicit"
	}
	return "session"
}

// Descriptor はトランザクショナルなメソッドの定義
// 登録後は変更されない
type Descriptor struct {
	Isolation   transaction.IsolationLevel
	Propagation transaction.Propagation
	Handle      HandleMode
	// Inject はハンドル引数に実行中のハンドルを差し込む。HandleExplicit では常に有効
	Inject bool
	// RollbackError はロールバック前に呼ばれ、非 nil を返すとそのエラーに置き換わる
	RollbackError func(error) error
}

func (d Descriptor) injects() bool {
	return d.Handle == HandleExplicit || d.Inject
}

func (d Descriptor) validate() error {
	if !d.Isolation.Valid() {
		return fmt.Errorf("%w: 分離レベル %d", ErrInvalidDescriptor, d.Isolation)
	}
	if !d.Propagation.Valid() {
		return fmt.Errorf("%w: 伝播方式 %d", ErrInvalidDescriptor, d.Propagation)
	}
	if d.Handle != HandleSession && d.Handle != HandleExplicit {
		return fmt.Errorf("%w: ハンドル種別 %d", ErrInvalidDescriptor, d.Handle)
	}
	return nil
}

// MethodKey はゾーン名とメソッド名の組
type MethodKey struct {
	Zone   string
	Method string
}

func (k MethodKey) String() string {
	return k.Zone + "." + k.Method
}

// Table はゾーンが静的に宣言するメソッド名から定義への対応表
type Table map[string]Descriptor

// Zone はメソッドをラップできるサービス
// フック用のインターフェース（hooks.go）を任意で実装できる
type Zone interface {
	ZoneName() string
}

// Registry はメソッド定義とフックを保持する
// 書き込みはコピーオンライトで行い、読み取りはロックを取らない
type Registry struct {
	mu      sync.Mutex
	sealed  atomic.Bool
	methods atomic.Pointer[map[MethodKey]Descriptor]
	hooks   atomic.Pointer[map[string][]Hook]
}

// NewRegistry は空のレジストリを作成する
func NewRegistry() *Registry {
	r := &Registry{}
	methods := map[MethodKey]Descriptor{}
	hooks := map[string][]Hook{}
	r.methods.Store(&methods)
	r.hooks.Store(&hooks)
	return r
}

// Register はメソッド定義を登録する
func (r *Registry) Register(key MethodKey, d Descriptor) error {
	if key.Zone == "" || key.Method == "" {
		return fmt.Errorf("%w: メソッドキーが空です", ErrInvalidDescriptor)
	}
	if err := d.validate(); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return ErrRegistrySealed
	}
	current := *r.methods.Load()
	if _, exists := current[key]; exists {
		return fmt.Errorf("%s: %w", key, ErrDuplicateMethod)
	}
	next := maps.Clone(current)
	next[key] = d
	r.methods.Store(&next)
	return nil
}

// Describe はメソッド定義を返す
func (r *Registry) Describe(key MethodKey) (Descriptor, bool) {
	d, ok := (*r.methods.Load())[key]
	return d, ok
}

// RegisterHook はゾーンにフックを登録する
func (r *Registry) RegisterHook(zone string, kind HookKind, name string, fn HookFunc) error {
	if zone == "" || fn == nil {
		return fmt.Errorf("%w: フック %s の登録内容が不正です", ErrInvalidDescriptor, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return ErrRegistrySealed
	}
	next := maps.Clone(*r.hooks.Load())
	next[zone] = append(slices.Clone(next[zone]), Hook{Kind: kind, Name: name, Fn: fn})
	r.hooks.Store(&next)
	return nil
}

// HooksFor はゾーンに登録されたフックを登録順に返す
func (r *Registry) HooksFor(zone string) []Hook {
	return slices.Clone((*r.hooks.Load())[zone])
}

func (r *Registry) hooksOf(zone string, kind HookKind) []Hook {
	var out []Hook
	for _, h := range (*r.hooks.Load())[zone] {
		if h.Kind == kind {
			out = append(out, h)
		}
	}
	return out
}

// RegisterZone はゾーンの Table を登録し、実装しているフックを検出して登録する
func (r *Registry) RegisterZone(zone Zone, table Table) error {
	name := zone.ZoneName()
	methods := make([]string, 0, len(table))
	for method := range table {
		methods = append(methods, method)
	}
	slices.Sort(methods)
	for _, method := range methods {
		if err := r.Register(MethodKey{Zone: name, Method: method}, table[method]); err != nil {
			return err
		}
	}
	for _, h := range discoverHooks(zone) {
		if err := r.RegisterHook(name, h.Kind, h.Name, h.Fn); err != nil {
			return err
		}
	}
	return nil
}

// Seal 以降の登録はすべて ErrRegistrySealed になる
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed.Store(true)
}

// Sealed は封印済みかを返す
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Len は登録済みメソッド数を返す
func (r *Registry) Len() int {
	return len(*r.methods.Load())
}
