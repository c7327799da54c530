package recorder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/browserflow/driver"
	"github.com/BaSui01/browserflow/internal/metrics"
	"github.com/BaSui01/browserflow/transport"
	"github.com/BaSui01/browserflow/types"
	"github.com/BaSui01/browserflow/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScrollSettings 滚动动作参数
type ScrollSettings struct {
	Pages int `json:"pages"`
}

// ScreenshotSettings 截图动作参数
type ScreenshotSettings struct {
	FullPage bool `json:"fullPage"`
	Quality  int  `json:"quality,omitempty"`
}

func (s ScreenshotSettings) args() map[string]any {
	out := map[string]any{"fullPage": s.FullPage}
	if s.Quality > 0 {
		out["quality"] = s.Quality
	}
	return out
}

// Generator 将交互事件转换为工作流变更
type Generator struct {
	store   *workflow.Store
	channel transport.Channel
	metrics *metrics.Collector
	logger  *zap.Logger

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	created time.Time
	lastURL string
}

// NewGenerator creates a generator that notifies channel after every mutation.
// collector may be nil.
func NewGenerator(channel transport.Channel, collector *metrics.Collector, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		store:   workflow.NewStore(nil),
		channel: channel,
		metrics: collector,
		logger:  logger.With(zap.String("component", "workflow_generator")),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	g.created = g.now()
	return g
}

// =============================================================================
// 🎯 交互录制
// =============================================================================

// resolveSelector 解析坐标处的选择器，失败或为空时返回 nil
func (g *Generator) resolveSelector(ctx context.Context, page driver.Page, x, y float64) []string {
	sel, err := page.SelectorAt(ctx, x, y)
	if err != nil {
		g.logger.Debug("selector not resolved", zap.Float64("x", x), zap.Float64("y", y), zap.Error(err))
		return nil
	}
	if sel == "" {
		return nil
	}
	return []string{sel}
}

func (g *Generator) where(ctx context.Context, page driver.Page, selectors []string) workflow.Where {
	w := workflow.Where{Selectors: selectors}
	if url, err := page.URL(ctx); err == nil && url != "" {
		w.URL = &workflow.URLMatcher{Literal: url}
	}
	return w
}

func firstOrEmpty(selectors []string) []any {
	if len(selectors) == 0 {
		return nil
	}
	return []any{selectors[0]}
}

// RecordClick records a click at viewport coordinates.
func (g *Generator) RecordClick(ctx context.Context, page driver.Page, x, y float64) {
	sels := g.resolveSelector(ctx, page, x, y)
	g.AddOrMerge(ctx, workflow.Pair{
		Where: g.where(ctx, page, sels),
		What:  []workflow.Action{{Action: workflow.ActionClick, Args: firstOrEmpty(sels)}},
	})
}

// RecordKeyInput records a key press on the element at the coordinates.
func (g *Generator) RecordKeyInput(ctx context.Context, page driver.Page, key string, x, y float64) {
	sels := g.resolveSelector(ctx, page, x, y)
	sel := ""
	if len(sels) > 0 {
		sel = sels[0]
	}
	g.AddOrMerge(ctx, workflow.Pair{
		Where: g.where(ctx, page, sels),
		What:  []workflow.Action{{Action: workflow.ActionPress, Args: []any{sel, key}}},
	})
}

// RecordNavigate records a top-level navigation. Repeated URLs are ignored.
func (g *Generator) RecordNavigate(ctx context.Context, url string) {
	g.mu.Lock()
	prev := g.lastURL
	if url == "" || url == prev {
		g.mu.Unlock()
		return
	}
	g.lastURL = url
	g.mu.Unlock()

	if prev == "" {
		// 会话首个 URL 只作为后续导航的起点
		return
	}
	g.AddOrMerge(ctx, workflow.Pair{
		Where: workflow.Where{URL: &workflow.URLMatcher{Literal: prev}},
		What:  []workflow.Action{{Action: workflow.ActionGoto, Args: []any{url}}},
	})
}

// RecordScroll records a scroll by whole viewport pages.
func (g *Generator) RecordScroll(ctx context.Context, page driver.Page, settings ScrollSettings) {
	g.AddOrMerge(ctx, workflow.Pair{
		Where: g.where(ctx, page, nil),
		What:  []workflow.Action{{Action: workflow.ActionScroll, Args: []any{settings.Pages}}},
	})
}

// RecordScreenshot records a screenshot action.
func (g *Generator) RecordScreenshot(ctx context.Context, page driver.Page, settings ScreenshotSettings) {
	g.AddOrMerge(ctx, workflow.Pair{
		Where: g.where(ctx, page, nil),
		What:  []workflow.Action{{Action: workflow.ActionScreenshot, Args: []any{settings.args()}}},
	})
}

// RecordScrape records text extraction from selector.
func (g *Generator) RecordScrape(ctx context.Context, page driver.Page, selector string) {
	var sels []string
	if selector != "" {
		sels = []string{selector}
	}
	g.AddOrMerge(ctx, workflow.Pair{
		Where: g.where(ctx, page, sels),
		What:  []workflow.Action{{Action: workflow.ActionScrape, Args: firstOrEmpty(sels)}},
	})
}

// =============================================================================
// 🔄 折叠策略
// =============================================================================

// AddOrMerge folds pair into the workflow.
func (g *Generator) AddOrMerge(ctx context.Context, pair workflow.Pair) {
	if len(pair.What) > 0 {
		if sel, ok := pair.What[0].SingleSelectorArg(); ok && pair.Where.HasSelector(sel) {
			if g.store.MergeInto(sel, pair.What) {
				g.logger.Debug("merged actions into existing pair", zap.String("selector", sel))
				g.mutated(ctx, "merge")
				return
			}
		}
	}

	wrapped := pair.Clone()
	if wrapped.ID == "" {
		wrapped.ID = g.newID()
	}
	wrapped.What = wrap(wrapped.What)
	g.store.Prepend(wrapped)
	g.mutated(ctx, "add")
}

// wrap 加上首部 flag 与尾部等待
func wrap(what []workflow.Action) []workflow.Action {
	out := make([]workflow.Action, 0, len(what)+2)
	out = append(out, workflow.FlagAction())
	out = append(out, what...)
	if n := len(what); n > 0 && (what[n-1].IsWaitForIdle() || what[n-1].Action == workflow.ActionPress) {
		return out
	}
	return append(out, workflow.WaitForIdleAction())
}

// =============================================================================
// ✏️ 按索引编辑
// =============================================================================

func (g *Generator) rejectIndex(op string, index int, err error) error {
	g.logger.Warn("workflow edit rejected",
		zap.String("operation", op),
		zap.Int("index", index),
		zap.Int("length", g.store.Len()),
		zap.Error(err))
	return types.NewError(types.ErrIndexOutOfRange, op+" rejected").WithCause(err)
}

// RemoveAt removes the pair at client index.
func (g *Generator) RemoveAt(ctx context.Context, index int) error {
	if _, err := g.store.RemoveAt(index); err != nil {
		return g.rejectIndex("remove", index, err)
	}
	g.mutated(ctx, "remove")
	return nil
}

// InsertAt inserts pair at client index; index == length prepends.
func (g *Generator) InsertAt(ctx context.Context, index int, pair workflow.Pair) error {
	if err := g.store.InsertAt(index, pair); err != nil {
		return g.rejectIndex("insert", index, err)
	}
	g.mutated(ctx, "insert")
	return nil
}

// ReplaceAt replaces the pair at client index.
func (g *Generator) ReplaceAt(ctx context.Context, index int, pair workflow.Pair) error {
	if err := g.store.ReplaceAt(index, pair); err != nil {
		return g.rejectIndex("replace", index, err)
	}
	g.mutated(ctx, "replace")
	return nil
}

// UpdatePair is ReplaceAt for the updatePair client event.
func (g *Generator) UpdatePair(ctx context.Context, index int, pair workflow.Pair) error {
	return g.ReplaceAt(ctx, index, pair)
}

// =============================================================================
// 💾 持久化
// =============================================================================

// Export returns the persisted form with flag markers stripped.
func (g *Generator) Export(name string) workflow.Recording {
	wf := workflow.StripFlags(g.store.Pairs())
	g.mu.Lock()
	created := g.created
	g.mu.Unlock()
	return workflow.Recording{
		Meta: workflow.RecordingMeta{
			Name:       name,
			CreateDate: created,
			UpdateDate: g.now(),
			Pairs:      len(wf),
		},
		Recording: workflow.RecordingBody{Workflow: wf},
	}
}

// Import replaces the workflow, restoring a flag marker on every pair.
func (g *Generator) Import(ctx context.Context, wf workflow.Workflow) {
	g.store.Replace(workflow.AddFlags(wf))
	g.mutated(ctx, "import")
}

// ImportRecording imports a stored recording and keeps its creation date.
func (g *Generator) ImportRecording(ctx context.Context, rec workflow.Recording) error {
	if err := rec.Validate(); err != nil {
		return types.NewError(types.ErrInvalidRequest, "invalid recording").WithCause(err)
	}
	g.mu.Lock()
	if !rec.Meta.CreateDate.IsZero() {
		g.created = rec.Meta.CreateDate
	}
	g.mu.Unlock()
	g.Import(ctx, rec.Recording.Workflow)
	return nil
}

// Reset clears the workflow for a new recording.
func (g *Generator) Reset(ctx context.Context) {
	g.mu.Lock()
	g.created = g.now()
	g.lastURL = ""
	g.mu.Unlock()
	g.store.Replace(nil)
	g.mutated(ctx, "reset")
}

// Workflow returns a snapshot in storage order.
func (g *Generator) Workflow() workflow.Workflow {
	return g.store.Pairs()
}

// Len returns the number of pairs.
func (g *Generator) Len() int {
	return g.store.Len()
}

func (g *Generator) mutated(ctx context.Context, op string) {
	g.metrics.RecordWorkflowMutation(op)
	if g.channel == nil {
		return
	}
	if err := g.channel.Send(ctx, transport.WorkflowUpdate{Workflow: g.store.Pairs()}); err != nil && !errors.Is(err, context.Canceled) {
		g.logger.Warn("workflow notification failed", zap.String("operation", op), zap.Error(err))
	}
}
