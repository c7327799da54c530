package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/browserflow/driver"
	"github.com/BaSui01/browserflow/interpret"
	"github.com/BaSui01/browserflow/internal/metrics"
	"github.com/BaSui01/browserflow/recorder"
	"github.com/BaSui01/browserflow/transport"
	"github.com/BaSui01/browserflow/types"
	"go.uber.org/zap"
)

// StreamState 推流状态
type StreamState string

const (
	StreamOff      StreamState = "off"
	StreamStarting StreamState = "starting"
	StreamActive   StreamState = "active"
)

const jpegDataURIPrefix = "data:image/jpeg;base64,"

// SessionConfig 会话参数
type SessionConfig struct {
	Screencast driver.ScreencastOptions `json:"screencast" yaml:"screencast"`
	// AckDelay 收到帧后延迟多久确认
	AckDelay time.Duration `json:"ack_delay" yaml:"ack_delay"`
	// Interpreter 为每次回放创建解释器，nil 时使用默认引擎
	Interpreter interpret.Factory `json:"-" yaml:"-"`
}

// DefaultSessionConfig 返回默认会话参数
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Screencast: driver.ScreencastOptions{Quality: 75, MaxWidth: 1280, MaxHeight: 720},
		AckDelay:   100 * time.Millisecond,
	}
}

// RemoteSession 一个远程浏览器会话
type RemoteSession struct {
	id         string
	launcher   driver.Launcher
	channel    transport.Channel
	config     SessionConfig
	generator  *recorder.Generator
	controller *interpret.Controller
	metrics    *metrics.Collector
	logger     *zap.Logger

	// tabMu 串行化标签页操作
	tabMu sync.Mutex

	mu          sync.RWMutex
	initialized bool
	browser     driver.Browser
	pages       []driver.Page
	current     int
	stream      StreamState
	castPage    driver.Page
	viewport    driver.Viewport

	ackMu       sync.Mutex
	pendingAcks map[*time.Timer]struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewRemoteSession creates an uninitialized session. channel and collector may be nil.
func NewRemoteSession(id string, launcher driver.Launcher, channel transport.Channel, cfg SessionConfig, collector *metrics.Collector, logger *zap.Logger) *RemoteSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AckDelay < 0 {
		cfg.AckDelay = 0
	}
	logger = logger.With(zap.String("session_id", id))
	factory := cfg.Interpreter
	if factory == nil {
		factory = interpret.NewEngineFactory(logger)
	}

	return &RemoteSession{
		id:          id,
		launcher:    launcher,
		channel:     channel,
		config:      cfg,
		generator:   recorder.NewGenerator(channel, collector, logger),
		controller:  interpret.NewController(factory, channel, collector, logger),
		metrics:     collector,
		logger:      logger.With(zap.String("component", "remote_session")),
		current:     -1,
		stream:      StreamOff,
		pendingAcks: make(map[*time.Timer]struct{}),
	}
}

// ID returns the session id.
func (s *RemoteSession) ID() string { return s.id }

// Generator returns the session's workflow generator.
func (s *RemoteSession) Generator() *recorder.Generator { return s.generator }

// Controller returns the session's interpretation controller.
func (s *RemoteSession) Controller() *interpret.Controller { return s.controller }

// Initialized reports whether Initialize succeeded.
func (s *RemoteSession) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Pages returns the open tabs in order.
func (s *RemoteSession) Pages() []driver.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]driver.Page(nil), s.pages...)
}

// CurrentIndex returns the active tab index, or -1.
func (s *RemoteSession) CurrentIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// CurrentPage returns the active page, or nil.
func (s *RemoteSession) CurrentPage() driver.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentLocked()
}

func (s *RemoteSession) currentLocked() driver.Page {
	if s.current < 0 || s.current >= len(s.pages) {
		return nil
	}
	return s.pages[s.current]
}

// StreamState returns the screencast state.
func (s *RemoteSession) StreamState() StreamState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream
}

func (s *RemoteSession) send(ctx context.Context, ev transport.ServerEvent) {
	if s.channel == nil {
		return
	}
	if err := s.channel.Send(ctx, ev); err != nil {
		s.logger.Debug("event delivery failed", zap.String("event", ev.EventName()), zap.Error(err))
	}
}

// =============================================================================
// 🚀 生命周期
// =============================================================================

// Initialize launches the browser and opens the first tab.
func (s *RemoteSession) Initialize(ctx context.Context, opts driver.LaunchOptions) error {
	s.tabMu.Lock()
	defer s.tabMu.Unlock()

	if s.Initialized() {
		return types.NewError(types.ErrInvalidRequest, "session already initialized")
	}

	b, err := s.launcher.Launch(ctx, opts)
	if err != nil {
		s.logger.Error("browser launch failed", zap.Error(err))
		return types.NewFatalError(types.ErrBrowserLaunch, "failed to launch browser").WithCause(err)
	}

	page, err := b.NewPage(ctx)
	if err != nil {
		_ = b.Close(context.WithoutCancel(ctx))
		s.logger.Error("initial page creation failed", zap.Error(err))
		return types.NewFatalError(types.ErrBrowserLaunch, "failed to open initial page").WithCause(err)
	}
	if err := s.preparePage(ctx, page, opts.Viewport); err != nil {
		_ = b.Close(context.WithoutCancel(ctx))
		return types.NewFatalError(types.ErrBrowserLaunch, "failed to prepare initial page").WithCause(err)
	}

	s.mu.Lock()
	s.browser = b
	s.pages = []driver.Page{page}
	s.current = 0
	s.viewport = opts.Viewport
	s.initialized = true
	s.mu.Unlock()

	s.logger.Info("session initialized", zap.Bool("headless", opts.Headless))
	s.send(ctx, transport.Loaded{})
	return nil
}

// preparePage 设置视口并挂载导航监听
func (s *RemoteSession) preparePage(ctx context.Context, page driver.Page, vp driver.Viewport) error {
	if vp.Width > 0 && vp.Height > 0 {
		if err := page.SetViewport(ctx, vp); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
	}
	page.OnNavigate(func(url string) { s.onNavigate(page, url) })
	return nil
}

// onNavigate 只记录当前标签页的导航
func (s *RemoteSession) onNavigate(page driver.Page, url string) {
	if s.CurrentPage() != page {
		return
	}
	ctx := context.Background()
	s.send(ctx, transport.URLChanged{URL: url})
	s.generator.RecordNavigate(ctx, url)
}

// SwitchOff stops streaming and closes the browser. Later calls return the
// first call's result.
func (s *RemoteSession) SwitchOff(ctx context.Context) error {
	if !s.Initialized() {
		return types.NewFatalError(types.ErrNotInitialized, "session was never initialized")
	}

	s.closeOnce.Do(func() {
		s.tabMu.Lock()
		defer s.tabMu.Unlock()

		if err := s.controller.Stop(ctx); err != nil && !errors.Is(err, interpret.ErrNotRunning) {
			s.logger.Warn("stopping interpretation failed", zap.Error(err))
		}

		var errs []error
		if err := s.StopScreencast(ctx, true); err != nil {
			errs = append(errs, err)
		}

		s.mu.Lock()
		b := s.browser
		s.browser = nil
		s.pages = nil
		s.current = -1
		s.mu.Unlock()

		if err := b.Close(ctx); err != nil {
			errs = append(errs, types.NewFatalError(types.ErrInternalError, "failed to close browser").WithCause(err))
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.logger.Error("session switch off finished with errors", zap.Error(s.closeErr))
			return
		}
		s.logger.Info("session switched off")
	})
	return s.closeErr
}

// =============================================================================
// 📺 推流
// =============================================================================

// SubscribeScreencast starts streaming frames of the active tab.
func (s *RemoteSession) SubscribeScreencast(ctx context.Context) error {
	s.mu.Lock()
	page := s.currentLocked()
	if page == nil {
		s.mu.Unlock()
		s.logger.Warn("screencast subscription skipped, no active page")
		return nil
	}
	if s.stream != StreamOff {
		s.mu.Unlock()
		return nil
	}
	s.stream = StreamStarting
	s.castPage = page
	s.mu.Unlock()

	if err := page.StartScreencast(ctx, s.config.Screencast, s.frameHandler(page)); err != nil {
		s.mu.Lock()
		s.stream = StreamOff
		s.castPage = nil
		s.mu.Unlock()
		s.logger.Error("screencast start failed", zap.Error(err))
		return types.NewError(types.ErrScreencastFailure, "failed to start screencast").WithCause(err)
	}

	s.mu.Lock()
	if s.castPage == page {
		s.stream = StreamActive
	}
	s.mu.Unlock()
	s.logger.Debug("screencast subscribed")
	return nil
}

func (s *RemoteSession) frameHandler(page driver.Page) driver.FrameHandler {
	return func(frame driver.ScreencastFrame) {
		s.mu.RLock()
		live := s.castPage == page && s.stream != StreamOff
		s.mu.RUnlock()
		if !live {
			return
		}

		s.metrics.RecordScreencastFrame()
		s.send(context.Background(), transport.Screencast{
			JPEGDataURI: jpegDataURIPrefix + base64.StdEncoding.EncodeToString(frame.Data),
		})
		s.scheduleAck(page, frame.SessionID)
	}
}

// scheduleAck 延迟确认一帧，失败只记录
func (s *RemoteSession) scheduleAck(page driver.Page, sessionID int64) {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(s.config.AckDelay, func() {
		s.ackMu.Lock()
		delete(s.pendingAcks, timer)
		s.ackMu.Unlock()

		err := page.AckScreencastFrame(context.Background(), sessionID)
		s.metrics.RecordScreencastAck(err)
		if err != nil {
			s.logger.Warn("screencast frame ack failed", zap.Int64("frame_session_id", sessionID), zap.Error(err))
		}
	})
	s.pendingAcks[timer] = struct{}{}
}

func (s *RemoteSession) cancelPendingAcks() {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	for t := range s.pendingAcks {
		t.Stop()
		delete(s.pendingAcks, t)
	}
}

// StopScreencast stops streaming. With mustSucceed a stop failure is returned
// as a Fatal error, otherwise it is only logged.
func (s *RemoteSession) StopScreencast(ctx context.Context, mustSucceed bool) error {
	s.mu.Lock()
	page := s.castPage
	if s.stream == StreamOff || page == nil {
		s.mu.Unlock()
		s.logger.Info("screencast stop skipped, not subscribed")
		return nil
	}
	s.stream = StreamOff
	s.castPage = nil
	s.mu.Unlock()

	s.cancelPendingAcks()

	if err := page.StopScreencast(ctx); err != nil {
		if mustSucceed {
			s.logger.Error("screencast stop failed", zap.Error(err))
			return types.NewFatalError(types.ErrScreencastStopped, "failed to stop screencast").WithCause(err)
		}
		s.logger.Warn("screencast stop failed", zap.Error(err))
		return nil
	}
	s.logger.Debug("screencast stopped")
	return nil
}

// SnapshotNow sends one screenshot of the active tab as a screencast event.
func (s *RemoteSession) SnapshotNow(ctx context.Context) error {
	page := s.CurrentPage()
	if page == nil {
		return types.NewError(types.ErrNoActivePage, "no active page")
	}
	data, err := page.Screenshot(ctx, driver.ScreenshotOptions{Quality: s.config.Screencast.Quality})
	if err != nil {
		s.logger.Warn("snapshot failed", zap.Error(err))
		return types.NewAdvisoryError(types.ErrScreencastFailure, "snapshot failed").WithCause(err)
	}
	s.send(ctx, transport.Screencast{JPEGDataURI: jpegDataURIPrefix + base64.StdEncoding.EncodeToString(data)})
	return nil
}

// Rerender 重新推送当前画面
func (s *RemoteSession) Rerender(ctx context.Context) error {
	return s.SnapshotNow(ctx)
}

// =============================================================================
// 🗂️ 标签页
// =============================================================================

func (s *RemoteSession) requireInitialized() *types.Error {
	if !s.Initialized() {
		return types.NewError(types.ErrNotInitialized, "session is not initialized")
	}
	return nil
}

func (s *RemoteSession) rejectTab(op string, err *types.Error) error {
	s.metrics.RecordTabOperation(op, "rejected")
	s.logger.Warn("tab operation rejected", zap.String("operation", op), zap.String("code", string(err.Code)), zap.String("reason", err.Message))
	return err
}

// AddTab opens a new tab and makes it active.
func (s *RemoteSession) AddTab(ctx context.Context) error {
	s.tabMu.Lock()
	defer s.tabMu.Unlock()

	if err := s.requireInitialized(); err != nil {
		return s.rejectTab("add", err)
	}

	s.mu.RLock()
	b, vp := s.browser, s.viewport
	s.mu.RUnlock()
	if b == nil {
		return s.rejectTab("add", types.NewError(types.ErrNotInitialized, "browser is closed"))
	}

	page, err := b.NewPage(ctx)
	if err != nil {
		s.metrics.RecordTabOperation("add", "error")
		s.logger.Error("new tab failed", zap.Error(err))
		return types.NewError(types.ErrInternalError, "failed to open tab").WithCause(err)
	}
	if err := s.preparePage(ctx, page, vp); err != nil {
		_ = page.Close(ctx)
		s.metrics.RecordTabOperation("add", "error")
		return types.NewError(types.ErrInternalError, "failed to prepare tab").WithCause(err)
	}

	s.mu.Lock()
	s.pages = append(s.pages, page)
	index := len(s.pages) - 1
	s.mu.Unlock()

	s.switchTo(ctx, index)
	s.metrics.RecordTabOperation("add", "success")
	s.logger.Info("tab added", zap.Int("index", index))
	s.sendTabs(ctx)
	return nil
}

// CloseTab closes the tab at index. The last remaining tab cannot be closed.
func (s *RemoteSession) CloseTab(ctx context.Context, index int, isCurrent bool) error {
	s.tabMu.Lock()
	defer s.tabMu.Unlock()

	if err := s.requireInitialized(); err != nil {
		return s.rejectTab("close", err)
	}

	s.mu.RLock()
	count, current := len(s.pages), s.current
	s.mu.RUnlock()

	if index < 0 || index >= count {
		return s.rejectTab("close", types.NewError(types.ErrIndexOutOfRange, fmt.Sprintf("tab %d of %d", index, count)))
	}
	if count == 1 {
		return s.rejectTab("close", types.NewError(types.ErrLastTab, "cannot close the last tab"))
	}
	if isCurrent && index != current {
		s.logger.Debug("close tab current flag mismatch", zap.Int("index", index), zap.Int("current", current))
	}

	closingCurrent := index == current
	if closingCurrent {
		if err := s.StopScreencast(ctx, false); err != nil {
			s.logger.Warn("stop before tab close failed", zap.Error(err))
		}
	}

	s.mu.Lock()
	page := s.pages[index]
	s.pages = append(s.pages[:index:index], s.pages[index+1:]...)
	switch {
	case closingCurrent:
		// 右侧相邻页优先，已是最后一页时取左侧
		if index < len(s.pages) {
			s.current = index
		} else {
			s.current = index - 1
		}
	case index < current:
		s.current = current - 1
	}
	next := s.current
	s.mu.Unlock()

	if err := page.Close(ctx); err != nil {
		s.logger.Warn("page close failed", zap.Int("index", index), zap.Error(err))
	}

	if closingCurrent {
		s.activate(ctx, next)
	}
	s.metrics.RecordTabOperation("close", "success")
	s.logger.Info("tab closed", zap.Int("index", index), zap.Int("current", next))
	s.sendTabs(ctx)
	return nil
}

// ChangeTab makes the tab at index active.
func (s *RemoteSession) ChangeTab(ctx context.Context, index int) error {
	s.tabMu.Lock()
	defer s.tabMu.Unlock()

	if err := s.requireInitialized(); err != nil {
		return s.rejectTab("change", err)
	}

	s.mu.RLock()
	count := len(s.pages)
	s.mu.RUnlock()
	if index < 0 || index >= count {
		return s.rejectTab("change", types.NewError(types.ErrIndexOutOfRange, fmt.Sprintf("tab %d of %d", index, count)))
	}

	s.switchTo(ctx, index)
	s.metrics.RecordTabOperation("change", "success")
	s.sendTabs(ctx)
	return nil
}

// switchTo 停止推流后切换到 index 并重新激活，调用方持有 tabMu
func (s *RemoteSession) switchTo(ctx context.Context, index int) {
	if err := s.StopScreencast(ctx, false); err != nil {
		s.logger.Warn("stop before tab switch failed", zap.Error(err))
	}
	s.mu.Lock()
	s.current = index
	s.mu.Unlock()
	s.activate(ctx, index)
}

// activate 调整视口，推送 urlChanged 与快照，重新订阅推流
func (s *RemoteSession) activate(ctx context.Context, index int) {
	s.mu.RLock()
	page, vp := s.currentLocked(), s.viewport
	s.mu.RUnlock()
	if page == nil {
		return
	}

	if vp.Width > 0 && vp.Height > 0 {
		if err := page.SetViewport(ctx, vp); err != nil {
			s.logger.Warn("viewport resize failed", zap.Int("index", index), zap.Error(err))
		}
	}
	if url, err := page.URL(ctx); err == nil {
		s.send(ctx, transport.URLChanged{URL: url})
	}
	if err := s.SnapshotNow(ctx); err != nil {
		s.logger.Debug("snapshot after tab switch failed", zap.Error(err))
	}
	if err := s.SubscribeScreencast(ctx); err != nil {
		s.logger.Warn("resubscribe after tab switch failed", zap.Error(err))
	}
}

func (s *RemoteSession) sendTabs(ctx context.Context) {
	s.mu.RLock()
	pages := append([]driver.Page(nil), s.pages...)
	current := s.current
	s.mu.RUnlock()

	urls := make([]string, len(pages))
	for i, p := range pages {
		if u, err := p.URL(ctx); err == nil {
			urls[i] = u
		}
	}
	s.send(ctx, transport.TabsUpdate{URLs: urls, Current: current})
}

// =============================================================================
// 🖱️ 输入
// =============================================================================

// HandleInput forwards raw input to the active tab and records it.
func (s *RemoteSession) HandleInput(ctx context.Context, ev transport.ClientEvent) error {
	page := s.CurrentPage()
	if page == nil {
		return types.NewError(types.ErrNoActivePage, "no active page")
	}

	var err error
	switch e := ev.(type) {
	case transport.MouseDown:
		// 先解析坐标处元素再派发，点击可能触发导航
		s.generator.RecordClick(ctx, page, e.X, e.Y)
		button := e.Button
		if button == "" {
			button = "left"
		}
		err = page.DispatchMouse(ctx, driver.MouseEvent{Type: driver.MousePressed, X: e.X, Y: e.Y, Button: button, ClickCount: 1})
		if err == nil {
			err = page.DispatchMouse(ctx, driver.MouseEvent{Type: driver.MouseReleased, X: e.X, Y: e.Y, Button: button, ClickCount: 1})
		}
	case transport.MouseMove:
		err = page.DispatchMouse(ctx, driver.MouseEvent{Type: driver.MouseMoved, X: e.X, Y: e.Y})
	case transport.Wheel:
		err = page.DispatchMouse(ctx, driver.MouseEvent{Type: driver.MouseWheel, DeltaX: e.DeltaX, DeltaY: e.DeltaY})
	case transport.KeyDown:
		s.generator.RecordKeyInput(ctx, page, e.Key, e.X, e.Y)
		err = page.DispatchKey(ctx, driver.KeyEvent{Type: driver.KeyDown, Key: e.Key})
	case transport.KeyUp:
		err = page.DispatchKey(ctx, driver.KeyEvent{Type: driver.KeyUp, Key: e.Key})
	default:
		return fmt.Errorf("%w: %s is not an input event", transport.ErrUnknownEvent, ev.EventName())
	}

	if err != nil {
		s.logger.Warn("input dispatch failed", zap.String("event", ev.EventName()), zap.Error(err))
		return types.NewAdvisoryError(types.ErrInternalError, "input dispatch failed").WithCause(err)
	}
	return nil
}
