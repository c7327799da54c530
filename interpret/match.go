package interpret

import (
	"context"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/BaSui01/browserflow/driver"
	"github.com/BaSui01/browserflow/workflow"
)

// pageState 惰性读取页面状态，单次匹配轮内缓存
type pageState struct {
	page    driver.Page
	url     *string
	cookies map[string]string
	present map[string]bool
}

func newPageState(page driver.Page) *pageState {
	return &pageState{page: page, present: make(map[string]bool)}
}

func (s *pageState) currentURL(ctx context.Context) (string, error) {
	if s.url == nil {
		u, err := s.page.URL(ctx)
		if err != nil {
			return "", err
		}
		s.url = &u
	}
	return *s.url, nil
}

func (s *pageState) cookie(ctx context.Context, name string) (string, bool, error) {
	if s.cookies == nil {
		c, err := s.page.Cookies(ctx)
		if err != nil {
			return "", false, err
		}
		s.cookies = c
	}
	v, ok := s.cookies[name]
	return v, ok, nil
}

func (s *pageState) has(ctx context.Context, selector string) (bool, error) {
	if ok, seen := s.present[selector]; seen {
		return ok, nil
	}
	ok, err := s.page.HasSelector(ctx, selector)
	if err != nil {
		return false, err
	}
	s.present[selector] = ok
	return ok, nil
}

const regexCacheSize = 256

// regexCache 导入的录制可能带来任意多的 $regex，按 LRU 淘汰
var regexCache, _ = lru.New[string, *regexp.Regexp](regexCacheSize)

func compileRegex(expr string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Get(expr); ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	regexCache.Add(expr, re)
	return re, nil
}

// matcher 评估 where 条件。executed 记录已执行过的 Pair id。
type matcher struct {
	state    *pageState
	executed map[string]bool
}

func (m *matcher) matches(ctx context.Context, w workflow.Where) (bool, error) {
	if w.URL != nil {
		cur, err := m.state.currentURL(ctx)
		if err != nil {
			return false, err
		}
		if w.URL.Regex != "" {
			re, err := compileRegex(w.URL.Regex)
			if err != nil {
				return false, err
			}
			if !re.MatchString(cur) {
				return false, nil
			}
		} else if w.URL.Literal != cur {
			return false, nil
		}
	}

	for _, sel := range w.Selectors {
		ok, err := m.state.has(ctx, sel)
		if err != nil || !ok {
			return false, err
		}
	}

	for name, want := range w.Cookies {
		got, ok, err := m.state.cookie(ctx, name)
		if err != nil || !ok || got != want {
			return false, err
		}
	}

	// $before: 引用的 Pair 尚未执行；$after: 引用的 Pair 已执行
	if w.Before != "" && m.executed[w.Before] {
		return false, nil
	}
	if w.After != "" && !m.executed[w.After] {
		return false, nil
	}

	for _, sub := range w.And {
		ok, err := m.matches(ctx, sub)
		if err != nil || !ok {
			return false, err
		}
	}

	if len(w.Or) > 0 {
		matched := false
		for _, sub := range w.Or {
			ok, err := m.matches(ctx, sub)
			if err != nil {
				return false, err
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}
