// 配置文件变更监听与热重载。
//
// 基于轮询检测文件修改时间，防抖后重新加载并校验配置，
// 仅在新配置通过校验时回调订阅者。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileOp represents file operation types
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 指示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// ReloadFunc 收到新配置时调用，old 为上一份生效的配置
type ReloadFunc func(old, updated *Config)

// --- 监听器选项 ---

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for file events
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithPollInterval sets how often the file is stat'ed
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.pollInterval = d
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWatcherEnvPrefix 重载时使用的环境变量前缀
func WithWatcherEnvPrefix(prefix string) WatcherOption {
	return func(w *Watcher) {
		w.envPrefix = prefix
	}
}

// Watcher 监听单个配置文件并在变更时重新加载
type Watcher struct {
	mu sync.RWMutex

	path          string
	envPrefix     string
	debounceDelay time.Duration
	pollInterval  time.Duration

	current   *Config
	callbacks []ReloadFunc
	lastMod   time.Time
	exists    bool

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	logger *zap.Logger
}

// NewWatcher 创建配置监听器，initial 为当前生效的配置
func NewWatcher(path string, initial *Config, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config watcher: empty path")
	}
	if initial == nil {
		return nil, errors.New("config watcher: nil initial config")
	}

	w := &Watcher{
		path:          path,
		envPrefix:     "BROWSERFLOW",
		debounceDelay: 100 * time.Millisecond,
		pollInterval:  time.Second,
		current:       initial,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	info, err := os.Stat(path)
	switch {
	case err == nil:
		w.lastMod = info.ModTime()
		w.exists = true
	case os.IsNotExist(err):
		w.logger.Warn("config file does not exist, will watch for creation", zap.String("path", path))
	default:
		return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
	}

	return w, nil
}

// OnReload registers a callback for successful reloads
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Current 返回当前生效的配置
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching for file changes
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx)

	w.logger.Info("config watcher started",
		zap.String("path", w.path),
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop stops the watcher and waits for the loop to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	<-done
	w.logger.Info("config watcher stopped")
}

// IsRunning returns whether the watcher is running
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if op, changed := w.check(); changed {
				w.logger.Debug("config file changed", zap.String("op", op.String()))
				if op == FileOpRemove {
					continue
				}
				// 防抖：连续写入只触发一次重载
				pending = time.After(w.debounceDelay)
			}
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

// check 对比修改时间
func (w *Watcher) check() (FileOp, bool) {
	info, err := os.Stat(w.path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		if os.IsNotExist(err) && w.exists {
			w.exists = false
			return FileOpRemove, true
		}
		return 0, false
	}
	if !w.exists {
		w.exists = true
		w.lastMod = info.ModTime()
		return FileOpCreate, true
	}
	if info.ModTime().After(w.lastMod) {
		w.lastMod = info.ModTime()
		return FileOpWrite, true
	}
	return 0, false
}

// reload 重新加载并校验，失败时保留旧配置
func (w *Watcher) reload() {
	updated, err := NewLoader().
		WithConfigPath(w.path).
		WithEnvPrefix(w.envPrefix).
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	if err != nil {
		w.logger.Warn("config reload rejected, keeping previous config", zap.Error(err))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = updated
	callbacks := make([]ReloadFunc, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("config reloaded", zap.String("path", w.path))
	for _, cb := range callbacks {
		cb(old, updated)
	}
}
