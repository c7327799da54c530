package interpret

import (
	"context"
	"fmt"
	"testing"

	"github.com/BaSui01/browserflow/testutil/mocks"
	"github.com/BaSui01/browserflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Conditions(t *testing.T) {
	page := mocks.NewMockPage().
		WithURL("https://shop.example.com/cart").
		WithSelector("#checkout", "").
		WithCookie("session", "abc")
	executed := map[string]bool{"login": true}

	tests := []struct {
		name  string
		where workflow.Where
		want  bool
	}{
		{"empty matches", workflow.Where{}, true},
		{"url literal", workflow.Where{URL: &workflow.URLMatcher{Literal: "https://shop.example.com/cart"}}, true},
		{"url literal mismatch", workflow.Where{URL: &workflow.URLMatcher{Literal: "https://shop.example.com/"}}, false},
		{"url regex", workflow.Where{URL: &workflow.URLMatcher{Regex: `^https://shop\..*/cart$`}}, true},
		{"url regex mismatch", workflow.Where{URL: &workflow.URLMatcher{Regex: `/login$`}}, false},
		{"selector present", workflow.Where{Selectors: []string{"#checkout"}}, true},
		{"selector absent", workflow.Where{Selectors: []string{"#checkout", "#gone"}}, false},
		{"cookie match", workflow.Where{Cookies: map[string]string{"session": "abc"}}, true},
		{"cookie value mismatch", workflow.Where{Cookies: map[string]string{"session": "xyz"}}, false},
		{"cookie missing", workflow.Where{Cookies: map[string]string{"other": "1"}}, false},
		{"after executed", workflow.Where{After: "login"}, true},
		{"after pending", workflow.Where{After: "pay"}, false},
		{"before pending", workflow.Where{Before: "pay"}, true},
		{"before executed", workflow.Where{Before: "login"}, false},
		{
			"and all",
			workflow.Where{And: []workflow.Where{{Selectors: []string{"#checkout"}}, {After: "login"}}},
			true,
		},
		{
			"and one fails",
			workflow.Where{And: []workflow.Where{{Selectors: []string{"#checkout"}}, {After: "pay"}}},
			false,
		},
		{
			"or any",
			workflow.Where{Or: []workflow.Where{{Selectors: []string{"#gone"}}, {Cookies: map[string]string{"session": "abc"}}}},
			true,
		},
		{
			"or none",
			workflow.Where{Or: []workflow.Where{{Selectors: []string{"#gone"}}, {After: "pay"}}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &matcher{state: newPageState(page), executed: executed}
			got, err := m.matches(context.Background(), tt.where)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatcher_InvalidRegex(t *testing.T) {
	m := &matcher{state: newPageState(mocks.NewMockPage()), executed: map[string]bool{}}
	_, err := m.matches(context.Background(), workflow.Where{URL: &workflow.URLMatcher{Regex: "("}})
	assert.Error(t, err)
}

func TestPageState_CachesSelectorLookups(t *testing.T) {
	page := mocks.NewMockPage().WithSelector("#a", "")
	s := newPageState(page)

	ok, err := s.has(context.Background(), "#a")
	require.NoError(t, err)
	assert.True(t, ok)

	page.RemoveSelector("#a")
	ok, _ = s.has(context.Background(), "#a")
	assert.True(t, ok, "lookups are cached within one matching round")

	ok, _ = newPageState(page).has(context.Background(), "#a")
	assert.False(t, ok)
}

func TestCompileRegex_BoundedCache(t *testing.T) {
	regexCache.Purge()
	t.Cleanup(regexCache.Purge)

	first, err := compileRegex(`^https://a\.example/`)
	require.NoError(t, err)
	again, err := compileRegex(`^https://a\.example/`)
	require.NoError(t, err)
	assert.Same(t, first, again)

	for i := range regexCacheSize * 2 {
		_, err := compileRegex(fmt.Sprintf(`^/item/%d$`, i))
		require.NoError(t, err)
	}
	assert.Equal(t, regexCacheSize, regexCache.Len())
	assert.False(t, regexCache.Contains(`^https://a\.example/`), "oldest entry evicted")

	_, err = compileRegex("(")
	assert.Error(t, err)
	assert.False(t, regexCache.Contains("("), "invalid patterns are not cached")
}
