package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/browser"
	"github.com/BaSui01/browserflow/internal/ctxkeys"
	"github.com/BaSui01/browserflow/interpret"
	"github.com/BaSui01/browserflow/recorder"
	"github.com/BaSui01/browserflow/storage"
	"github.com/BaSui01/browserflow/transport"
	"github.com/BaSui01/browserflow/types"
)

// ChannelFunc 返回会话的推送通道，可为 nil
type ChannelFunc func(sessionID string) transport.Channel

// Options 分发器参数
type Options struct {
	// Recordings 保存录制；nil 时 save 事件被拒绝
	Recordings *storage.RecordingRepository
	// Channels 用于 save 等操作的回执
	Channels ChannelFunc
	// Interpret 客户端未指定时使用的回放参数
	Interpret interpret.Options
	// RunTimeout 单次交互式回放上限，0 表示不限
	RunTimeout time.Duration
}

// Dispatcher 把客户端事件路由到会话、生成器与回放控制器
type Dispatcher struct {
	pool    *browser.Pool
	opts    Options
	logger  *zap.Logger
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher over pool.
func NewDispatcher(pool *browser.Pool, opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		pool:    pool,
		opts:    opts,
		logger:  logger.With(zap.String("component", "dispatcher")),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Handler adapts the dispatcher to transport.Hub.Serve.
func (d *Dispatcher) Handler() transport.Handler {
	return d.Handle
}

// Close 取消所有进行中的交互式回放并等待其退出
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

// Handle routes ev to the session registered under sessionID.
func (d *Dispatcher) Handle(ctx context.Context, sessionID string, ev transport.ClientEvent) error {
	session, ok := d.pool.Get(sessionID)
	if !ok {
		d.logger.Warn("event for unknown session",
			zap.String("session_id", sessionID),
			zap.String("event", ev.EventName()),
		)
		return types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
	}
	ctx = ctxkeys.WithSessionID(ctx, sessionID)

	switch e := ev.(type) {
	case transport.MouseDown, transport.MouseMove, transport.Wheel, transport.KeyDown, transport.KeyUp:
		return session.HandleInput(ctx, e)
	case transport.AddTab:
		return session.AddTab(ctx)
	case transport.CloseTab:
		return session.CloseTab(ctx, e.Index, e.IsCurrent)
	case transport.ChangeTab:
		return session.ChangeTab(ctx, e.Index)
	case transport.Rerender:
		return session.Rerender(ctx)
	case transport.ActionRequest:
		return d.action(ctx, session, e)
	case transport.Save:
		return d.save(ctx, session, e.FileName)
	case transport.NewRecording:
		session.Generator().Reset(ctx)
		return nil
	case transport.UpdatePair:
		return session.Generator().UpdatePair(ctx, e.Index, e.Pair)
	case transport.Pause:
		session.Controller().Pause()
		return nil
	case transport.Resume:
		return session.Controller().Resume()
	case transport.Step:
		return session.Controller().Step()
	case transport.Breakpoints:
		session.Controller().SetBreakpoints(e.List)
		return nil
	case transport.Interpret:
		return d.interpret(session, e)
	case transport.StopInterpret:
		return session.Controller().Stop(ctx)
	default:
		return fmt.Errorf("%w: %s", transport.ErrUnknownEvent, ev.EventName())
	}
}

// =============================================================================
// 🎬 非指针动作
// =============================================================================

type scrapeSettings struct {
	Selector string `json:"selector"`
}

func decodeSettings(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return types.NewError(types.ErrInvalidRequest, "invalid action settings").WithCause(err)
	}
	return nil
}

func (d *Dispatcher) action(ctx context.Context, session *browser.RemoteSession, req transport.ActionRequest) error {
	page := session.CurrentPage()
	if page == nil {
		return types.NewError(types.ErrNoActivePage, "no active page")
	}
	gen := session.Generator()

	switch req.Action {
	case "scroll":
		settings := recorder.ScrollSettings{Pages: 1}
		if err := decodeSettings(req.Settings, &settings); err != nil {
			return err
		}
		gen.RecordScroll(ctx, page, settings)
	case "screenshot":
		var settings recorder.ScreenshotSettings
		if err := decodeSettings(req.Settings, &settings); err != nil {
			return err
		}
		gen.RecordScreenshot(ctx, page, settings)
	case "scrape":
		var settings scrapeSettings
		if err := decodeSettings(req.Settings, &settings); err != nil {
			return err
		}
		gen.RecordScrape(ctx, page, settings.Selector)
	default:
		return types.NewError(types.ErrInvalidRequest, "unsupported action: "+req.Action)
	}
	return nil
}

// =============================================================================
// 💾 保存
// =============================================================================

func (d *Dispatcher) save(ctx context.Context, session *browser.RemoteSession, name string) error {
	if d.opts.Recordings == nil {
		return types.NewError(types.ErrInternalError, "recording storage not configured")
	}
	if err := storage.ValidateName(name); err != nil {
		return types.NewError(types.ErrInvalidRequest, "invalid recording name").WithCause(err)
	}

	rec, err := d.opts.Recordings.Save(ctx, session.Generator().Export(name))
	if err != nil {
		d.logger.Error("save recording failed",
			append(ctxkeys.Fields(ctx), zap.String("name", name), zap.Error(err))...)
		if errors.Is(err, storage.ErrInvalidInput) {
			return types.NewError(types.ErrInvalidRequest, "invalid recording").WithCause(err)
		}
		return types.NewFatalError(types.ErrInternalError, "save recording failed").WithCause(err)
	}

	d.logger.Info("recording saved",
		append(ctxkeys.Fields(ctx), zap.String("name", name), zap.Int("pairs", rec.Meta.Pairs))...)
	d.notify(ctx, session.ID(), transport.Log{Message: fmt.Sprintf("recording %q saved (%d pairs)", name, rec.Meta.Pairs)})
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, sessionID string, ev transport.ServerEvent) {
	if d.opts.Channels == nil {
		return
	}
	ch := d.opts.Channels(sessionID)
	if ch == nil {
		return
	}
	if err := ch.Send(ctx, ev); err != nil {
		d.logger.Debug("notification failed", zap.String("event", ev.EventName()), zap.Error(err))
	}
}

// =============================================================================
// ▶️ 交互式回放
// =============================================================================

// interpretOptions 合并客户端参数与默认值
func (d *Dispatcher) interpretOptions(req transport.Interpret) interpret.Options {
	opts := d.opts.Interpret
	if req.MaxRepeats > 0 {
		opts.MaxRepeats = req.MaxRepeats
	}
	if req.Concurrency > 0 {
		opts.MaxConcurrency = req.Concurrency
	}
	if req.Params != nil {
		opts.Params = req.Params
	}
	return opts
}

func (d *Dispatcher) interpret(session *browser.RemoteSession, req transport.Interpret) error {
	page := session.CurrentPage()
	if page == nil {
		return types.NewError(types.ErrNoActivePage, "no active page")
	}
	ctrl := session.Controller()
	if ctrl.State().Active() {
		return interpret.ErrAlreadyRunning
	}

	wf := session.Generator().Workflow()
	opts := d.interpretOptions(req)

	ctx := ctxkeys.WithSessionID(d.baseCtx, session.ID())
	cancel := context.CancelFunc(func() {})
	if d.opts.RunTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.opts.RunTimeout)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		if err := ctrl.Run(ctx, wf, page, opts); err != nil {
			d.logger.Warn("interpretation ended with error", append(ctxkeys.Fields(ctx), zap.Error(err))...)
		}
	}()
	return nil
}
