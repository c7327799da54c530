package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairWithSelector(id, sel string) Pair {
	return Pair{
		ID:    id,
		Where: Where{Selectors: []string{sel}},
		What:  []Action{FlagAction(), {Action: ActionClick, Args: []any{sel}}, WaitForIdleAction()},
	}
}

func ids(wf Workflow) []string {
	out := make([]string, len(wf))
	for i, p := range wf {
		out[i] = p.ID
	}
	return out
}

// --- Prepend / ordering ---

func TestStore_PrependKeepsNewestFirst(t *testing.T) {
	s := NewStore(nil)
	s.Prepend(pairWithSelector("A", "#a"))
	s.Prepend(pairWithSelector("B", "#b"))

	assert.Equal(t, []string{"B", "A"}, ids(s.Pairs()))

	// chronological index 1 is B, which lives at storage position 0
	pos, ok := StoragePos(1, s.Len())
	require.True(t, ok)
	assert.Equal(t, 0, pos)
}

func TestStore_PairsReturnsCopy(t *testing.T) {
	s := NewStore(Workflow{pairWithSelector("A", "#a")})
	got := s.Pairs()
	got[0].What[1].Args[0] = "mutated"

	assert.Equal(t, "#a", s.Pairs()[0].What[1].Args[0])
}

// --- exact singleton matching ---

func TestStore_FindExactSelector(t *testing.T) {
	s := NewStore(Workflow{
		{ID: "multi", Where: Where{Selectors: []string{"#x", "#y"}}, What: []Action{WaitForIdleAction()}},
		pairWithSelector("single", "#x"),
	})

	assert.Equal(t, 1, s.FindExactSelector("#x"))
	assert.Equal(t, -1, s.FindExactSelector("#y"), "containment must not match")
	assert.Equal(t, -1, s.FindExactSelector("#z"))
}

func TestStore_MergeIntoBeforeTrailingWait(t *testing.T) {
	s := NewStore(Workflow{pairWithSelector("A", "#a")})

	ok := s.MergeInto("#a", []Action{{Action: ActionClick, Args: []any{"#a"}}})
	require.True(t, ok)

	what := s.Pairs()[0].What
	require.Len(t, what, 4)
	assert.Equal(t, ActionFlag, what[0].Action)
	assert.Equal(t, ActionClick, what[1].Action)
	assert.Equal(t, ActionClick, what[2].Action)
	assert.Equal(t, ActionWaitForLoadState, what[3].Action)
}

func TestStore_MergeIntoWithoutTrailingWait(t *testing.T) {
	s := NewStore(Workflow{{ID: "A", Where: Where{Selectors: []string{"#a"}}, What: []Action{{Action: ActionPress, Args: []any{"#a", "x"}}}}})

	require.True(t, s.MergeInto("#a", []Action{{Action: ActionPress, Args: []any{"#a", "y"}}}))
	what := s.Pairs()[0].What
	require.Len(t, what, 2)
	assert.Equal(t, "y", what[1].Args[1])
}

func TestStore_MergeIntoMissing(t *testing.T) {
	s := NewStore(Workflow{pairWithSelector("A", "#a")})
	assert.False(t, s.MergeInto("#nope", []Action{{Action: ActionClick}}))
	assert.Len(t, s.Pairs()[0].What, 3)
}

// --- index-addressed mutation ---

func TestStore_RemoveAt(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		wantErr bool
		want    []string
	}{
		{name: "oldest", index: 0, want: []string{"C", "B"}},
		{name: "middle", index: 1, want: []string{"C", "A"}},
		{name: "newest", index: 2, want: []string{"B", "A"}},
		{name: "negative", index: -1, wantErr: true, want: []string{"C", "B", "A"}},
		{name: "equal to length", index: 3, wantErr: true, want: []string{"C", "B", "A"}},
		{name: "beyond length", index: 4, wantErr: true, want: []string{"C", "B", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(nil)
			for _, id := range []string{"A", "B", "C"} {
				s.Prepend(pairWithSelector(id, "#"+id))
			}

			_, err := s.RemoveAt(tt.index)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIndexOutOfRange)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, ids(s.Pairs()))
		})
	}
}

func TestStore_InsertAt(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		wantErr bool
		want    []string
	}{
		{name: "oldest slot", index: 0, want: []string{"B", "A", "N"}},
		{name: "between", index: 1, want: []string{"B", "N", "A"}},
		{name: "length prepends", index: 2, want: []string{"N", "B", "A"}},
		{name: "negative", index: -1, wantErr: true, want: []string{"B", "A"}},
		{name: "beyond length", index: 3, wantErr: true, want: []string{"B", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(nil)
			s.Prepend(pairWithSelector("A", "#a"))
			s.Prepend(pairWithSelector("B", "#b"))

			err := s.InsertAt(tt.index, pairWithSelector("N", "#n"))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIndexOutOfRange)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, ids(s.Pairs()))
		})
	}
}

func TestStore_InsertAtEmpty(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.InsertAt(0, pairWithSelector("N", "#n")))
	assert.Equal(t, []string{"N"}, ids(s.Pairs()))
}

func TestStore_ReplaceAt(t *testing.T) {
	s := NewStore(nil)
	s.Prepend(pairWithSelector("A", "#a"))
	s.Prepend(pairWithSelector("B", "#b"))

	require.NoError(t, s.ReplaceAt(0, pairWithSelector("X", "#x")))
	assert.Equal(t, []string{"B", "X"}, ids(s.Pairs()))

	err := s.ReplaceAt(2, pairWithSelector("Y", "#y"))
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, []string{"B", "X"}, ids(s.Pairs()))
}

func TestStore_Replace(t *testing.T) {
	s := NewStore(Workflow{pairWithSelector("A", "#a")})
	s.Replace(Workflow{pairWithSelector("X", "#x"), pairWithSelector("Y", "#y")})
	assert.Equal(t, []string{"X", "Y"}, ids(s.Pairs()))
}
