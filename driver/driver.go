package driver

import (
	"context"
	"time"
)

// Viewport is a page size in CSS pixels.
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// LaunchOptions 浏览器启动参数
type LaunchOptions struct {
	Headless    bool          `json:"headless" yaml:"headless"`
	ExecPath    string        `json:"exec_path,omitempty" yaml:"exec_path"`
	UserAgent   string        `json:"user_agent,omitempty" yaml:"user_agent"`
	ProxyURL    string        `json:"proxy_url,omitempty" yaml:"proxy_url"`
	Viewport    Viewport      `json:"viewport" yaml:"viewport"`
	NoSandbox   bool          `json:"no_sandbox" yaml:"no_sandbox"`
	ExtraFlags  []string      `json:"extra_flags,omitempty" yaml:"extra_flags"`
	LaunchLimit time.Duration `json:"launch_timeout,omitempty" yaml:"launch_timeout"`
}

// ScreencastOptions 控制推流帧格式
type ScreencastOptions struct {
	Quality   int `json:"quality"`
	MaxWidth  int `json:"max_width"`
	MaxHeight int `json:"max_height"`
	// EveryNthFrame 仅推送第 N 帧，0 表示每帧
	EveryNthFrame int `json:"every_nth_frame"`
}

// ScreencastFrame is one JPEG frame pushed by the browser.
// SessionID must be acknowledged before the browser sends the next frame.
type ScreencastFrame struct {
	Data      []byte
	SessionID int64
}

// ScreenshotOptions controls one-off screenshots.
type ScreenshotOptions struct {
	Quality  int  `json:"quality"`
	FullPage bool `json:"full_page"`
}

// MouseEventType 鼠标事件类型
type MouseEventType string

const (
	MousePressed  MouseEventType = "mousePressed"
	MouseReleased MouseEventType = "mouseReleased"
	MouseMoved    MouseEventType = "mouseMoved"
	MouseWheel    MouseEventType = "mouseWheel"
)

// MouseEvent is raw mouse input forwarded to a page.
type MouseEvent struct {
	Type       MouseEventType
	X, Y       float64
	Button     string
	ClickCount int
	DeltaX     float64
	DeltaY     float64
}

// KeyEventType 键盘事件类型
type KeyEventType string

const (
	KeyDown KeyEventType = "keyDown"
	KeyUp   KeyEventType = "keyUp"
)

// KeyEvent is raw keyboard input forwarded to a page.
type KeyEvent struct {
	Type KeyEventType
	Key  string
}

// FrameHandler receives screencast frames in delivery order.
type FrameHandler func(ScreencastFrame)

// NavigateHandler receives main-frame URL changes.
type NavigateHandler func(url string)

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is an exclusive handle to a running browser process.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page 单个标签页
type Page interface {
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	SetViewport(ctx context.Context, vp Viewport) error
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)

	StartScreencast(ctx context.Context, opts ScreencastOptions, handler FrameHandler) error
	AckScreencastFrame(ctx context.Context, sessionID int64) error
	StopScreencast(ctx context.Context) error
	OnNavigate(handler NavigateHandler)

	DispatchMouse(ctx context.Context, ev MouseEvent) error
	DispatchKey(ctx context.Context, ev KeyEvent) error
	SelectorAt(ctx context.Context, x, y float64) (string, error)

	HasSelector(ctx context.Context, selector string) (bool, error)
	Cookies(ctx context.Context) (map[string]string, error)
	Click(ctx context.Context, selector string) error
	Press(ctx context.Context, selector, key string) error
	WaitForLoadState(ctx context.Context, state string) error
	Scroll(ctx context.Context, pages int) error
	Text(ctx context.Context, selector string) (string, error)

	Close(ctx context.Context) error
}
