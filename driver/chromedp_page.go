package driver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const loadStatePollTimeout = 30 * time.Second

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu         sync.Mutex
	onFrame    FrameHandler
	onNavigate NavigateHandler
}

// run executes actions on the tab, aborting when ctx is done.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) onEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventScreencastFrame:
		p.mu.Lock()
		h := p.onFrame
		p.mu.Unlock()
		if h == nil {
			return
		}
		data, err := base64.StdEncoding.DecodeString(e.Data)
		if err != nil {
			p.logger.Warn("bad screencast frame", zap.Error(err))
			return
		}
		h(ScreencastFrame{Data: data, SessionID: e.SessionID})

	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" {
			return
		}
		p.mu.Lock()
		h := p.onNavigate
		p.mu.Unlock()
		if h != nil {
			h(e.Frame.URL)
		}
	}
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to get URL: %w", err)
	}
	return url, nil
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("navigating", zap.String("url", url))
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) SetViewport(ctx context.Context, vp Viewport) error {
	return p.run(ctx, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height)))
}

func (p *chromePage) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	quality := opts.Quality
	if quality <= 0 {
		quality = 80
	}
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(quality)).
			WithCaptureBeyondViewport(opts.FullPage).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

func (p *chromePage) StartScreencast(ctx context.Context, opts ScreencastOptions, handler FrameHandler) error {
	p.mu.Lock()
	p.onFrame = handler
	p.mu.Unlock()

	params := page.StartScreencast().WithFormat(page.ScreencastFormatJpeg)
	if opts.Quality > 0 {
		params = params.WithQuality(int64(opts.Quality))
	}
	if opts.MaxWidth > 0 {
		params = params.WithMaxWidth(int64(opts.MaxWidth))
	}
	if opts.MaxHeight > 0 {
		params = params.WithMaxHeight(int64(opts.MaxHeight))
	}
	if opts.EveryNthFrame > 0 {
		params = params.WithEveryNthFrame(int64(opts.EveryNthFrame))
	}
	if err := p.run(ctx, params); err != nil {
		p.mu.Lock()
		p.onFrame = nil
		p.mu.Unlock()
		return fmt.Errorf("start screencast: %w", err)
	}
	return nil
}

func (p *chromePage) AckScreencastFrame(ctx context.Context, sessionID int64) error {
	return p.run(ctx, page.ScreencastFrameAck(sessionID))
}

func (p *chromePage) StopScreencast(ctx context.Context) error {
	p.mu.Lock()
	p.onFrame = nil
	p.mu.Unlock()
	return p.run(ctx, page.StopScreencast())
}

func (p *chromePage) OnNavigate(handler NavigateHandler) {
	p.mu.Lock()
	p.onNavigate = handler
	p.mu.Unlock()
}

func mouseButton(name string) input.MouseButton {
	switch name {
	case "right":
		return input.Right
	case "middle":
		return input.Middle
	case "", "left":
		return input.Left
	default:
		return input.None
	}
}

func (p *chromePage) DispatchMouse(ctx context.Context, ev MouseEvent) error {
	params := input.DispatchMouseEvent(input.MouseType(ev.Type), ev.X, ev.Y)
	switch ev.Type {
	case MousePressed, MouseReleased:
		clicks := ev.ClickCount
		if clicks <= 0 {
			clicks = 1
		}
		params = params.WithButton(mouseButton(ev.Button)).WithClickCount(int64(clicks))
	case MouseWheel:
		params = params.WithDeltaX(ev.DeltaX).WithDeltaY(ev.DeltaY)
	}
	return p.run(ctx, params)
}

// keyText 可打印单字符按键同时携带 text，使其真正输入到页面
func keyText(key string) string {
	if len([]rune(key)) == 1 {
		return key
	}
	if key == "Enter" {
		return "\r"
	}
	return ""
}

func (p *chromePage) DispatchKey(ctx context.Context, ev KeyEvent) error {
	params := input.DispatchKeyEvent(input.KeyType(ev.Type)).WithKey(ev.Key)
	if ev.Type == KeyDown {
		if text := keyText(ev.Key); text != "" {
			params = params.WithText(text)
		}
	}
	return p.run(ctx, params)
}

// selectorAtScript builds the element-from-point expression.
func selectorAtScript(x, y float64) string {
	return fmt.Sprintf(`(() => {
  let el = document.elementFromPoint(%f, %f);
  if (!el) return "";
  const parts = [];
  while (el && el.nodeType === 1 && el !== document.documentElement) {
    if (el.id) { parts.unshift("#" + CSS.escape(el.id)); break; }
    let idx = 1, sib = el;
    while ((sib = sib.previousElementSibling)) { if (sib.tagName === el.tagName) idx++; }
    parts.unshift(el.tagName.toLowerCase() + ":nth-of-type(" + idx + ")");
    el = el.parentElement;
  }
  return parts.join(" > ");
})()`, x, y)
}

func (p *chromePage) SelectorAt(ctx context.Context, x, y float64) (string, error) {
	var sel string
	if err := p.run(ctx, chromedp.Evaluate(selectorAtScript(x, y), &sel)); err != nil {
		return "", fmt.Errorf("resolve selector: %w", err)
	}
	return sel, nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (p *chromePage) HasSelector(ctx context.Context, selector string) (bool, error) {
	var ok bool
	expr := fmt.Sprintf("document.querySelector(%s) !== null", jsString(selector))
	if err := p.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

func (p *chromePage) Cookies(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out[c.Name] = c.Value
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return out, nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromePage) Press(ctx context.Context, selector, key string) error {
	return p.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.KeyEvent(key),
	)
}

func (p *chromePage) WaitForLoadState(ctx context.Context, state string) error {
	expr := `document.readyState === "complete"`
	if state == "domcontentloaded" {
		expr = `document.readyState !== "loading"`
	}
	var ready bool
	return p.run(ctx, chromedp.Poll(expr, &ready, chromedp.WithPollingTimeout(loadStatePollTimeout)))
}

func (p *chromePage) Scroll(ctx context.Context, pages int) error {
	expr := fmt.Sprintf("window.scrollBy(0, window.innerHeight * %d)", pages)
	return p.run(ctx, chromedp.Evaluate(expr, nil))
}

func (p *chromePage) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return text, nil
}

// Close 关闭标签页（取消对应的 chromedp 子上下文）
func (p *chromePage) Close(ctx context.Context) error {
	p.cancel()
	return nil
}
