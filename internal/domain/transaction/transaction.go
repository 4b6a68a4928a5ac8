package transaction

import (
	"database/sql"
	"fmt"
	"strings"
)

// IsolationLevel はトランザクション分離レベルを表す
// ゼロ値は「指定なし」で、解決時に RepeatableRead になる
type IsolationLevel int

const (
	IsolationUnspecified IsolationLevel = iota
	ReadUncommitted
	ReadCommitted
	RepeatableRead
	Serializable
)

// DefaultIsolation は分離レベル未指定時の既定値
const DefaultIsolation = RepeatableRead

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "UNSPECIFIED"
	}
}

// Or は未指定の場合に fallback を返す
func (l IsolationLevel) Or(fallback IsolationLevel) IsolationLevel {
	if l == IsolationUnspecified {
		return fallback
	}
	return l
}

// SQL は database/sql の分離レベルへ変換する
func (l IsolationLevel) SQL() sql.IsolationLevel {
	switch l {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// Stricter は l が other より強い分離を要求するかを返す
func (l IsolationLevel) Stricter(other IsolationLevel) bool {
	return l.Or(DefaultIsolation) > other.Or(DefaultIsolation)
}

// Valid は既知の分離レベルかを返す
func (l IsolationLevel) Valid() bool {
	return l >= IsolationUnspecified && l <= Serializable
}

// ParseIsolationLevel は "read committed" / "READ_COMMITTED" / "serializable" などを解釈する
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer("_", " ", "-", " ").Replace(normalized)
	switch normalized {
	case "":
		return IsolationUnspecified, nil
	case "READ UNCOMMITTED":
		return ReadUncommitted, nil
	case "READ COMMITTED":
		return ReadCommitted, nil
	case "REPEATABLE READ":
		return RepeatableRead, nil
	case "SERIALIZABLE":
		return Serializable, nil
	}
	return IsolationUnspecified, fmt.Errorf("不明な分離レベルです: %q", s)
}

// Propagation は入れ子呼び出し時のトランザクション伝播方式を表す
type Propagation int

const (
	// PropagationJoin は実行中のトランザクションに参加し、なければ開始する（既定）
	PropagationJoin Propagation = iota
	// PropagationStartNew は実行中のトランザクションを一時停止し、独立したトランザクションを開始する
	PropagationStartNew
	// PropagationNested は同じ接続を共有しつつ別の論理単位として扱う
	// セーブポイントは使わないため、物理的には Join と同じ振る舞いになる
	PropagationNested
)

func (p Propagation) String() string {
	switch p {
	case PropagationJoin:
		return "join"
	case PropagationStartNew:
		return "start_new"
	case PropagationNested:
		return "nested"
	default:
		return "unknown"
	}
}

// Valid は既知の伝播方式かを返す
func (p Propagation) Valid() bool {
	return p >= PropagationJoin && p <= PropagationNested
}

// HandleKind はハンドルの種類
type HandleKind int

const (
	// HandleKindSession は ORM セッションが管理するトランザクション
	HandleKindSession HandleKind = iota + 1
	// HandleKindExplicit はチェックアウトした接続に束縛された明示的トランザクション
	HandleKindExplicit
)

func (k HandleKind) String() string {
	switch k {
	case HandleKindSession:
		return "session"
	case HandleKindExplicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// Handle はトランザクションに束縛されたハンドル
// ドメイン層がインフラ層（sqlx, gorm）に依存しないようにするための抽象化
// 具象型の取り出しは postgres.SQLX / postgres.Gorm を使う
type Handle interface {
	Kind() HandleKind
}

// Tx はコミット・ロールバックを自前で行う明示的トランザクション
type Tx interface {
	Handle
	// Commit はトランザクションをコミットする
	Commit() error
	// Rollback はトランザクションをロールバックする
	Rollback() error
}
