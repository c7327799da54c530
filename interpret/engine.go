package interpret

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/BaSui01/browserflow/driver"
	"github.com/BaSui01/browserflow/workflow"
	"go.uber.org/zap"
)

// Engine 默认解释器：按存储顺序挑选第一个条件满足且未用尽次数的 Pair 执行
type Engine struct {
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewEngine creates the default interpreter.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger.With(zap.String("component", "interpreter_engine"))}
}

// NewEngineFactory returns a Factory producing fresh engines.
func NewEngineFactory(logger *zap.Logger) Factory {
	return func() Interpreter { return NewEngine(logger) }
}

// Run implements Interpreter.
func (e *Engine) Run(ctx context.Context, page driver.Page, wf workflow.Workflow, opts Options, hooks Hooks) error {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	hooks = withDefaults(hooks)
	maxRepeats := opts.MaxRepeats
	if maxRepeats <= 0 {
		maxRepeats = 1
	}

	counts := make([]int, len(wf))
	executed := make(map[string]bool)

	for step := 0; step < len(wf)*maxRepeats; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		idx, err := e.next(ctx, page, wf, counts, maxRepeats, executed)
		if err != nil {
			return err
		}
		if idx < 0 {
			hooks.Debug("no matching pair, done")
			return nil
		}

		counts[idx]++
		if wf[idx].ID != "" {
			executed[wf[idx].ID] = true
		}
		hooks.ActivePair(idx)
		if opts.Debug {
			hooks.Debug(fmt.Sprintf("pair %d matched", idx))
		}

		for _, action := range wf[idx].What {
			if err := e.execute(ctx, page, action, hooks); err != nil {
				return fmt.Errorf("pair %d %s: %w", idx, action.Action, err)
			}
		}
	}
	hooks.Debug("repeat limit reached")
	return nil
}

// Stop implements Interpreter.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (e *Engine) next(ctx context.Context, page driver.Page, wf workflow.Workflow, counts []int, maxRepeats int, executed map[string]bool) (int, error) {
	m := &matcher{state: newPageState(page), executed: executed}
	for i, pair := range wf {
		if counts[i] >= maxRepeats {
			continue
		}
		ok, err := m.matches(ctx, pair.Where)
		if err != nil {
			if ctx.Err() != nil {
				return -1, ctx.Err()
			}
			e.logger.Debug("where evaluation failed", zap.Int("pair_index", i), zap.Error(err))
			continue
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

func (e *Engine) execute(ctx context.Context, page driver.Page, a workflow.Action, hooks Hooks) error {
	switch a.Action {
	case workflow.ActionFlag:
		return hooks.Flag(ctx)

	case workflow.ActionClick:
		sel, ok := a.StringArg(0)
		if !ok || sel == "" {
			hooks.Debug("click without selector skipped")
			return nil
		}
		hooks.Debug("click " + sel)
		return page.Click(ctx, sel)

	case workflow.ActionPress:
		sel, _ := a.StringArg(0)
		key, ok := a.StringArg(1)
		if !ok || sel == "" {
			hooks.Debug("press without target skipped")
			return nil
		}
		hooks.Debug("press " + key + " on " + sel)
		return page.Press(ctx, sel, key)

	case workflow.ActionGoto:
		url, ok := a.StringArg(0)
		if !ok {
			return fmt.Errorf("goto requires a url")
		}
		hooks.Debug("goto " + url)
		return page.Navigate(ctx, url)

	case workflow.ActionWaitForLoadState:
		state, _ := a.StringArg(0)
		return page.WaitForLoadState(ctx, state)

	case workflow.ActionScroll:
		pages := intArg(a, 0, 1)
		hooks.Debug("scroll " + strconv.Itoa(pages))
		return page.Scroll(ctx, pages)

	case workflow.ActionScreenshot:
		opts := screenshotOptions(a)
		data, err := page.Screenshot(ctx, opts)
		if err != nil {
			return err
		}
		hooks.Binary(data, "image/jpeg")
		return nil

	case workflow.ActionScrape:
		sel, ok := a.StringArg(0)
		if !ok || sel == "" {
			hooks.Debug("scrape without selector skipped")
			return nil
		}
		text, err := page.Text(ctx, sel)
		if err != nil {
			return err
		}
		hooks.Serializable(map[string]any{"selector": sel, "text": text})
		return nil

	default:
		hooks.Debug("unsupported action " + a.Action + " skipped")
		return nil
	}
}

// intArg 兼容 JSON 解码后的 float64
func intArg(a workflow.Action, i, def int) int {
	if i >= len(a.Args) {
		return def
	}
	switch v := a.Args[i].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func screenshotOptions(a workflow.Action) driver.ScreenshotOptions {
	var opts driver.ScreenshotOptions
	if len(a.Args) == 0 {
		return opts
	}
	settings, ok := a.Args[0].(map[string]any)
	if !ok {
		return opts
	}
	if v, ok := settings["fullPage"].(bool); ok {
		opts.FullPage = v
	}
	switch q := settings["quality"].(type) {
	case int:
		opts.Quality = q
	case float64:
		opts.Quality = int(q)
	}
	return opts
}

func withDefaults(h Hooks) Hooks {
	if h.ActivePair == nil {
		h.ActivePair = func(int) {}
	}
	if h.Debug == nil {
		h.Debug = func(string) {}
	}
	if h.Serializable == nil {
		h.Serializable = func(any) {}
	}
	if h.Binary == nil {
		h.Binary = func([]byte, string) {}
	}
	if h.Flag == nil {
		h.Flag = func(context.Context) error { return nil }
	}
	return h
}
