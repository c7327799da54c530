// =============================================================================
// 🌐 MockLauncher / MockBrowser / MockPage - 浏览器能力模拟实现
// =============================================================================
// 无需真实 Chrome 的 driver 接口实现，支持错误注入、调用记录与事件模拟
//
// 使用方法:
//
//	launcher := mocks.NewMockLauncher()
//	browser, _ := launcher.Launch(ctx, driver.LaunchOptions{})
//	page := launcher.LastBrowser().Page(0)
//	page.EmitFrame(driver.ScreencastFrame{Data: []byte{1}, SessionID: 7})
// =============================================================================
package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BaSui01/browserflow/driver"
)

// ErrMockPageClosed is returned by operations on a closed MockPage.
var ErrMockPageClosed = errors.New("mock page closed")

// =============================================================================
// 🚀 MockLauncher
// =============================================================================

// MockLauncher 是 driver.Launcher 的模拟实现
type MockLauncher struct {
	mu        sync.Mutex
	launchErr error
	browsers  []*MockBrowser
	lastOpts  driver.LaunchOptions
	// NewBrowser 自定义浏览器构造
	NewBrowser func() *MockBrowser
}

// NewMockLauncher 创建新的 MockLauncher
func NewMockLauncher() *MockLauncher {
	return &MockLauncher{}
}

// WithLaunchError 注入启动错误
func (l *MockLauncher) WithLaunchError(err error) *MockLauncher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launchErr = err
	return l
}

// Launch implements driver.Launcher.
func (l *MockLauncher) Launch(ctx context.Context, opts driver.LaunchOptions) (driver.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastOpts = opts
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	var b *MockBrowser
	if l.NewBrowser != nil {
		b = l.NewBrowser()
	} else {
		b = NewMockBrowser()
	}
	l.browsers = append(l.browsers, b)
	return b, nil
}

// LastBrowser returns the most recently launched browser.
func (l *MockLauncher) LastBrowser() *MockBrowser {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.browsers) == 0 {
		return nil
	}
	return l.browsers[len(l.browsers)-1]
}

// LaunchCount 返回启动次数
func (l *MockLauncher) LaunchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.browsers)
}

// LastOptions returns the options of the last Launch call.
func (l *MockLauncher) LastOptions() driver.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastOpts
}

// =============================================================================
// 🖥️ MockBrowser
// =============================================================================

// MockBrowser 是 driver.Browser 的模拟实现
type MockBrowser struct {
	mu         sync.Mutex
	pages      []*MockPage
	closeCalls int
	closeErr   error
	newPageErr error
	// PageURL 新页面的初始 URL
	PageURL string
}

// NewMockBrowser 创建新的 MockBrowser
func NewMockBrowser() *MockBrowser {
	return &MockBrowser{PageURL: "about:blank"}
}

// WithCloseError 注入关闭错误
func (b *MockBrowser) WithCloseError(err error) *MockBrowser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeErr = err
	return b
}

// WithNewPageError 注入打开页面错误
func (b *MockBrowser) WithNewPageError(err error) *MockBrowser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newPageErr = err
	return b
}

// NewPage implements driver.Browser.
func (b *MockBrowser) NewPage(ctx context.Context) (driver.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	p := NewMockPage().WithURL(b.PageURL)
	b.pages = append(b.pages, p)
	return p, nil
}

// Close implements driver.Browser.
func (b *MockBrowser) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeCalls++
	return b.closeErr
}

// Page returns the i-th page ever opened.
func (b *MockBrowser) Page(i int) *MockPage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.pages) {
		return nil
	}
	return b.pages[i]
}

// PageCount 返回打开过的页面数
func (b *MockBrowser) PageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

// CloseCalls 返回 Close 调用次数
func (b *MockBrowser) CloseCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeCalls
}

// =============================================================================
// 📄 MockPage
// =============================================================================

// MockPage 是 driver.Page 的模拟实现
type MockPage struct {
	mu sync.Mutex

	url        string
	selectors  map[string]string // selector -> text
	cookies    map[string]string
	selectorAt string
	screenshot []byte
	viewport   driver.Viewport

	// 错误注入
	selectorAtErr  error
	screenshotErr  error
	startErr       error
	stopErr        error
	ackErr         error
	actionErr      error
	closed         bool
	screencasting  bool
	frameHandler   driver.FrameHandler
	navHandler     driver.NavigateHandler
	screencastOpts driver.ScreencastOptions

	// 调用记录
	acks        []int64
	actions     []string
	mouse       []driver.MouseEvent
	keys        []driver.KeyEvent
	startCalls  int
	stopCalls   int
	screenshots int

	// OnAction 在 Click/Press/Navigate 等回放动作执行后调用
	OnAction func(action string, args ...string)
	// BeforeStop 在 StopScreencast 记录调用之前执行，不持有锁，可用于阻塞
	BeforeStop func()
}

// NewMockPage 创建新的 MockPage
func NewMockPage() *MockPage {
	return &MockPage{
		url:        "about:blank",
		selectors:  make(map[string]string),
		cookies:    make(map[string]string),
		screenshot: []byte{0xff, 0xd8, 0xff},
	}
}

// WithURL 设置当前 URL
func (p *MockPage) WithURL(url string) *MockPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return p
}

// WithSelector 使选择器存在，text 为其文本内容
func (p *MockPage) WithSelector(selector, text string) *MockPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selectors[selector] = text
	return p
}

// RemoveSelector 使选择器不再存在
func (p *MockPage) RemoveSelector(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.selectors, selector)
}

// WithCookie 设置 Cookie
func (p *MockPage) WithCookie(name, value string) *MockPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies[name] = value
	return p
}

// WithSelectorAt 设置坐标解析出的选择器
func (p *MockPage) WithSelectorAt(selector string, err error) *MockPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selectorAt = selector
	p.selectorAtErr = err
	return p
}

// WithScreenshot 设置截图数据与错误
func (p *MockPage) WithScreenshot(data []byte, err error) *MockPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshot = data
	p.screenshotErr = err
	return p
}

// WithScreencastErrors 注入 Start/Stop/Ack 错误
func (p *MockPage) WithScreencastErrors(start, stop, ack error) *MockPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startErr = start
	p.stopErr = stop
	p.ackErr = ack
	return p
}

// WithActionError 注入回放动作错误
func (p *MockPage) WithActionError(err error) *MockPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actionErr = err
	return p
}

func (p *MockPage) record(action string, args ...string) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrMockPageClosed
	}
	entry := action
	for _, a := range args {
		entry += ":" + a
	}
	p.actions = append(p.actions, entry)
	if p.actionErr != nil {
		return nil, p.actionErr
	}
	hook := p.OnAction
	return func() {
		if hook != nil {
			hook(action, args...)
		}
	}, nil
}

func (p *MockPage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrMockPageClosed
	}
	return p.url, nil
}

func (p *MockPage) Navigate(ctx context.Context, url string) error {
	after, err := p.record("goto", url)
	if err != nil {
		return err
	}
	p.EmitNavigate(url)
	after()
	return nil
}

func (p *MockPage) SetViewport(ctx context.Context, vp driver.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport = vp
	return nil
}

func (p *MockPage) Screenshot(ctx context.Context, opts driver.ScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshots++
	if p.screenshotErr != nil {
		return nil, p.screenshotErr
	}
	return append([]byte(nil), p.screenshot...), nil
}

func (p *MockPage) StartScreencast(ctx context.Context, opts driver.ScreencastOptions, handler driver.FrameHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startCalls++
	if p.startErr != nil {
		return p.startErr
	}
	p.screencasting = true
	p.frameHandler = handler
	p.screencastOpts = opts
	return nil
}

func (p *MockPage) AckScreencastFrame(ctx context.Context, sessionID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acks = append(p.acks, sessionID)
	return p.ackErr
}

func (p *MockPage) StopScreencast(ctx context.Context) error {
	if p.BeforeStop != nil {
		p.BeforeStop()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopCalls++
	if p.stopErr != nil {
		return p.stopErr
	}
	p.screencasting = false
	p.frameHandler = nil
	return nil
}

func (p *MockPage) OnNavigate(handler driver.NavigateHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navHandler = handler
}

func (p *MockPage) DispatchMouse(ctx context.Context, ev driver.MouseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mouse = append(p.mouse, ev)
	return nil
}

func (p *MockPage) DispatchKey(ctx context.Context, ev driver.KeyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, ev)
	return nil
}

func (p *MockPage) SelectorAt(ctx context.Context, x, y float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectorAt, p.selectorAtErr
}

func (p *MockPage) HasSelector(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.selectors[selector]
	return ok, nil
}

func (p *MockPage) Cookies(ctx context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.cookies))
	for k, v := range p.cookies {
		out[k] = v
	}
	return out, nil
}

func (p *MockPage) Click(ctx context.Context, selector string) error {
	after, err := p.record("click", selector)
	if err != nil {
		return err
	}
	after()
	return nil
}

func (p *MockPage) Press(ctx context.Context, selector, key string) error {
	after, err := p.record("press", selector, key)
	if err != nil {
		return err
	}
	after()
	return nil
}

func (p *MockPage) WaitForLoadState(ctx context.Context, state string) error {
	after, err := p.record("waitForLoadState", state)
	if err != nil {
		return err
	}
	after()
	return nil
}

func (p *MockPage) Scroll(ctx context.Context, pages int) error {
	after, err := p.record("scroll", fmt.Sprint(pages))
	if err != nil {
		return err
	}
	after()
	return nil
}

func (p *MockPage) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text, ok := p.selectors[selector]
	if !ok {
		return "", fmt.Errorf("selector %q not found", selector)
	}
	return text, nil
}

func (p *MockPage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.screencasting = false
	p.frameHandler = nil
	return nil
}

// =============================================================================
// 🎬 事件模拟与断言辅助
// =============================================================================

// EmitFrame 模拟浏览器推送一帧，未推流时返回 false
func (p *MockPage) EmitFrame(frame driver.ScreencastFrame) bool {
	p.mu.Lock()
	h := p.frameHandler
	p.mu.Unlock()
	if h == nil {
		return false
	}
	h(frame)
	return true
}

// EmitNavigate 模拟主框架导航
func (p *MockPage) EmitNavigate(url string) {
	p.mu.Lock()
	p.url = url
	h := p.navHandler
	p.mu.Unlock()
	if h != nil {
		h(url)
	}
}

// Acks 返回已确认的帧 SessionID
func (p *MockPage) Acks() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.acks...)
}

// Actions 返回回放动作记录，如 "click:#a"
func (p *MockPage) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// MouseEvents 返回派发过的鼠标事件
func (p *MockPage) MouseEvents() []driver.MouseEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]driver.MouseEvent(nil), p.mouse...)
}

// KeyEvents 返回派发过的键盘事件
func (p *MockPage) KeyEvents() []driver.KeyEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]driver.KeyEvent(nil), p.keys...)
}

// Screencasting reports whether a screencast is active.
func (p *MockPage) Screencasting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screencasting
}

// ScreencastCalls 返回 Start/Stop 调用次数
func (p *MockPage) ScreencastCalls() (start, stop int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startCalls, p.stopCalls
}

// ScreenshotCalls 返回截图次数
func (p *MockPage) ScreenshotCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screenshots
}

// Viewport 返回最近一次设置的视口
func (p *MockPage) Viewport() driver.Viewport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport
}

// Closed reports whether Close was called.
func (p *MockPage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
