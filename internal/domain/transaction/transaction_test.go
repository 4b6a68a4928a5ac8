package transaction

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolationLevel_SQL(t *testing.T) {
	tests := []struct {
		name     string
		level    IsolationLevel
		expected sql.IsolationLevel
	}{
		{"未指定", IsolationUnspecified, sql.LevelDefault},
		{"READ UNCOMMITTED", ReadUncommitted, sql.LevelReadUncommitted},
		{"READ COMMITTED", ReadCommitted, sql.LevelReadCommitted},
		{"REPEATABLE READ", RepeatableRead, sql.LevelRepeatableRead},
		{"SERIALIZABLE", Serializable, sql.LevelSerializable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.SQL())
		})
	}
}

func TestIsolationLevel_Or(t *testing.T) {
	assert.Equal(t, RepeatableRead, IsolationUnspecified.Or(DefaultIsolation))
	assert.Equal(t, Serializable, Serializable.Or(DefaultIsolation))
}

func TestIsolationLevel_Stricter(t *testing.T) {
	assert.True(t, Serializable.Stricter(RepeatableRead))
	assert.False(t, ReadCommitted.Stricter(RepeatableRead))
	assert.False(t, RepeatableRead.Stricter(IsolationUnspecified), "未指定は既定値として比較する")
	assert.True(t, IsolationUnspecified.Stricter(ReadCommitted))
}

func TestParseIsolationLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected IsolationLevel
	}{
		{"", IsolationUnspecified},
		{"read uncommitted", ReadUncommitted},
		{"READ_COMMITTED", ReadCommitted},
		{"repeatable-read", RepeatableRead},
		{" Serializable ", Serializable},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseIsolationLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}

	t.Run("不明な値はエラー", func(t *testing.T) {
		_, err := ParseIsolationLevel("snapshot")
		assert.Error(t, err)
	})
}

func TestPropagation_String(t *testing.T) {
	assert.Equal(t, "join", PropagationJoin.String())
	assert.Equal(t, "start_new", PropagationStartNew.String())
	assert.Equal(t, "nested", PropagationNested.String())
	assert.False(t, Propagation(9).Valid())
}
