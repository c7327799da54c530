package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func drawStore(rt *rapid.T) (*Store, []string) {
	n := rapid.IntRange(0, 8).Draw(rt, "n")
	s := NewStore(nil)
	chrono := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p%d", i)
		chrono[i] = id
		s.Prepend(pairWithSelector(id, "#"+id))
	}
	return s, chrono
}

// TestProperty_Store_ChronologicalIndexing 客户端索引 i 始终指向第 i 个录制的 Pair。
func TestProperty_Store_ChronologicalIndexing(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s, chrono := drawStore(rt)
		if len(chrono) == 0 {
			return
		}
		i := rapid.IntRange(0, len(chrono)-1).Draw(rt, "i")

		removed, err := s.RemoveAt(i)
		require.NoError(rt, err)
		assert.Equal(rt, chrono[i], removed.ID)
		assert.Equal(rt, len(chrono)-1, s.Len())
	})
}

// TestProperty_Store_InsertThenRemoveRoundTrip 在 i 插入后于 i 删除得到同一个 Pair，且其余顺序不变。
func TestProperty_Store_InsertThenRemoveRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s, chrono := drawStore(rt)
		before := ids(s.Pairs())
		i := rapid.IntRange(0, len(chrono)).Draw(rt, "i")

		require.NoError(rt, s.InsertAt(i, pairWithSelector("new", "#new")))
		removed, err := s.RemoveAt(i)
		require.NoError(rt, err)

		assert.Equal(rt, "new", removed.ID)
		assert.Equal(rt, before, ids(s.Pairs()))
	})
}

// TestProperty_Store_OutOfRangeLeavesStoreUnchanged 越界索引一律拒绝且不修改内容。
func TestProperty_Store_OutOfRangeLeavesStoreUnchanged(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s, chrono := drawStore(rt)
		before := ids(s.Pairs())

		bad := rapid.OneOf(
			rapid.IntRange(-50, -1),
			rapid.IntRange(len(chrono)+1, len(chrono)+50),
		).Draw(rt, "bad")

		_, errRemove := s.RemoveAt(bad)
		errInsert := s.InsertAt(bad, pairWithSelector("x", "#x"))
		errReplace := s.ReplaceAt(bad, pairWithSelector("x", "#x"))

		assert.ErrorIs(rt, errRemove, ErrIndexOutOfRange)
		assert.ErrorIs(rt, errInsert, ErrIndexOutOfRange)
		assert.ErrorIs(rt, errReplace, ErrIndexOutOfRange)
		assert.Equal(rt, before, ids(s.Pairs()))
	})
}
