package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/config"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

var (
	// ErrAlreadyStarted Start 被重复调用
	ErrAlreadyStarted = errors.New("server already started")
	// ErrClosed 已关闭的 Manager 不能再启动
	ErrClosed = errors.New("server is closed")
)

type state int

const (
	stateNew state = iota
	stateRunning
	stateClosed
)

// Config 单个监听端口的服务器配置
type Config struct {
	// Name 出现在日志的 server 字段，例如 api、metrics
	Name string

	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	// WriteTimeout 只约束普通请求，websocket 升级前会自行清除
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Name:              "api",
		Addr:              ":8080",
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   30 * time.Second,
	}
}

// ConfigFromServer API 端口的配置，零值字段保留默认
func ConfigFromServer(cfg config.ServerConfig) Config {
	c := DefaultConfig()
	c.Addr = fmt.Sprintf(":%d", cfg.HTTPPort)
	if cfg.ReadTimeout > 0 {
		c.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		c.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		c.ShutdownTimeout = cfg.ShutdownTimeout
	}
	return c
}

// MetricsConfig 指标端口的配置
func MetricsConfig(cfg config.ServerConfig) Config {
	c := ConfigFromServer(cfg)
	c.Name = "metrics"
	c.Addr = fmt.Sprintf(":%d", cfg.MetricsPort)
	return c
}

// Manager 管理一个 http.Server 的启动、关闭与异常退出
type Manager struct {
	server *http.Server
	config Config
	logger *zap.Logger
	errCh  chan error

	mu       sync.RWMutex
	state    state
	listener net.Listener
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "api"
	}
	return &Manager{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
		config: cfg,
		logger: logger.With(zap.String("component", "http_server"), zap.String("server", cfg.Name)),
		errCh:  make(chan error, 1),
	}
}

// OnShutdown 注册关闭钩子；被劫持的 websocket 连接不受 Shutdown 管理，需在这里关闭
func (m *Manager) OnShutdown(fn func()) {
	m.server.RegisterOnShutdown(fn)
}

// =============================================================================
// 🎯 生命周期
// =============================================================================

// Start 监听配置地址并在后台提供服务
func (m *Manager) Start() error {
	l, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	if err := m.Serve(l); err != nil {
		l.Close()
		return err
	}
	return nil
}

// Serve 在给定 listener 上后台提供服务
func (m *Manager) Serve(l net.Listener) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateClosed:
		return ErrClosed
	}
	m.state = stateRunning
	m.listener = l
	m.logger.Info("HTTP server listening", zap.String("addr", l.Addr().String()))

	go func() {
		err := m.server.Serve(l)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		m.logger.Error("HTTP server failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}()
	return nil
}

// Shutdown 优雅关闭，可重复调用；等待时间取 ctx 与 ShutdownTimeout 中较短者
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.state == stateClosed {
		m.mu.Unlock()
		return nil
	}
	started := m.state == stateRunning
	m.state = stateClosed
	m.mu.Unlock()

	if !started {
		return nil
	}

	m.logger.Info("shutting down HTTP server")
	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Wait 阻塞到 ctx 结束、收到 SIGINT/SIGTERM 或服务异常退出，然后关闭服务器。
// 异常退出时返回该错误。
func (m *Manager) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cause error
	select {
	case <-sigCtx.Done():
		m.logger.Info("shutdown requested", zap.NamedError("reason", context.Cause(sigCtx)))
	case cause = <-m.errCh:
		m.logger.Error("server exited unexpectedly", zap.Error(cause))
	}

	if err := m.Shutdown(context.Background()); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Errors 异步服务错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 返回配置的监听地址
func (m *Manager) Addr() string {
	return m.config.Addr
}

// ListenAddr 返回实际监听地址，端口为 0 时可拿到分配的端口；未启动返回空串
func (m *Manager) ListenAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// IsRunning 正在提供服务
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == stateRunning
}
