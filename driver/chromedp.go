package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromeDPLauncher 基于 chromedp 的 Launcher 实现
type ChromeDPLauncher struct {
	logger *zap.Logger
}

// NewChromeDPLauncher creates a launcher.
func NewChromeDPLauncher(logger *zap.Logger) *ChromeDPLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeDPLauncher{logger: logger.With(zap.String("component", "chromedp_launcher"))}
}

// allocatorOptions 将 LaunchOptions 转换为 chromedp 分配器选项
func allocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		out = append(out, chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height))
	}
	if opts.NoSandbox {
		out = append(out, chromedp.NoSandbox)
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		out = append(out, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ProxyURL != "" {
		out = append(out, chromedp.ProxyServer(opts.ProxyURL))
	}
	for _, f := range opts.ExtraFlags {
		out = append(out, chromedp.Flag(f, true))
	}
	return out
}

// Launch 启动浏览器进程
func (l *ChromeDPLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	// 浏览器生命周期独立于请求上下文
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			l.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	startCtx, cancelStart := context.WithCancel(browserCtx)
	defer cancelStart()
	if opts.LaunchLimit > 0 {
		var cancelTimeout context.CancelFunc
		startCtx, cancelTimeout = context.WithTimeout(startCtx, opts.LaunchLimit)
		defer cancelTimeout()
	}
	stop := context.AfterFunc(ctx, cancelStart)
	defer stop()

	if err := chromedp.Run(startCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	l.logger.Info("chromedp browser started",
		zap.Bool("headless", opts.Headless),
		zap.Int("viewport_w", opts.Viewport.Width),
		zap.Int("viewport_h", opts.Viewport.Height))

	return &chromeBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		logger:      l.logger,
	}, nil
}

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewPage 打开新的标签页
func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("browser closed")
	}

	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	p := &chromePage{ctx: tabCtx, cancel: tabCancel, logger: b.logger}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	if err := p.run(ctx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return p, nil
}

// Close 关闭浏览器进程，重复调用返回 nil
func (b *chromeBrowser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.logger.Info("closing chromedp browser")
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}
