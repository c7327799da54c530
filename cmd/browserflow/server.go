package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/api/handlers"
	"github.com/BaSui01/browserflow/browser"
	"github.com/BaSui01/browserflow/config"
	"github.com/BaSui01/browserflow/control"
	"github.com/BaSui01/browserflow/driver"
	"github.com/BaSui01/browserflow/internal/metrics"
	"github.com/BaSui01/browserflow/internal/server"
	"github.com/BaSui01/browserflow/internal/telemetry"
	"github.com/BaSui01/browserflow/transport"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 BrowserFlow 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel
	providers  *telemetry.Providers

	// launcher 为 nil 时使用 chromedp
	launcher driver.Launcher

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 领域组件
	components *components
	pool       *browser.Pool
	hub        *transport.Hub
	dispatcher *control.Dispatcher

	// 指标收集器
	metricsCollector *metrics.Collector

	// 配置文件监听
	watcher *config.Watcher

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	shutdownOnce sync.Once
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
		providers:  providers,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("browserflow", s.logger)

	// 2. 存储、会话池、websocket hub、事件分发
	if err := s.initComponents(); err != nil {
		return fmt.Errorf("failed to init components: %w", err)
	}

	// 3. 配置文件监听（仅日志级别热更新）
	if err := s.initWatcher(); err != nil {
		return fmt.Errorf("failed to init config watcher: %w", err)
	}

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("storage", s.cfg.Storage.Type),
		zap.Bool("config_watch_enabled", s.watcher != nil),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initComponents() error {
	c, err := newComponentsWithLauncher(s.cfg, s.logger, s.metricsCollector, s.launcher)
	if err != nil {
		return err
	}
	s.components = c
	s.pool = browser.NewPool(s.metricsCollector, s.logger)
	s.hub = transport.NewHub(hubOptions(s.cfg.Server), s.logger)
	s.dispatcher = control.NewDispatcher(s.pool, control.Options{
		Recordings: c.recordings,
		Channels:   s.hub.Channel,
		Interpret:  interpretOptions(s.cfg.Interpreter),
		RunTimeout: s.cfg.Interpreter.RunTimeout,
	}, s.logger)
	return nil
}

// initWatcher 监听配置文件，变更后调整日志级别
func (s *Server) initWatcher() error {
	if s.configPath == "" {
		return nil
	}
	w, err := config.NewWatcher(s.configPath, s.cfg, config.WithWatcherLogger(s.logger))
	if err != nil {
		return err
	}
	w.OnReload(func(old, updated *config.Config) {
		if old.Log.Level != updated.Log.Level {
			s.level.SetLevel(parseLevel(updated.Log.Level))
			s.logger.Info("log level changed",
				zap.String("from", old.Log.Level),
				zap.String("to", updated.Log.Level),
			)
		}
	})
	if err := w.Start(context.Background()); err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// routes 构建路由与中间件链
func (s *Server) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	health := handlers.NewHealthHandler(s.logger)
	health.SetSessionCounter(s.pool.Len, s.cfg.Browser.MaxSessions)
	health.RegisterCheck(handlers.NewFuncCheck("storage", s.components.ping))
	health.Routes(mux, Version, BuildTime, GitCommit)

	// ========================================
	// API 路由
	// ========================================
	sessions := handlers.NewSessionHandler(s.pool, s.hub, s.dispatcher.Handle, s.components.recordings, handlers.SessionConfig{
		Launcher:    s.components.launcher,
		Launch:      launchOptions(s.cfg.Browser, s.cfg.Screencast),
		Session:     sessionConfig(s.cfg.Screencast),
		MaxSessions: s.cfg.Browser.MaxSessions,
		Metrics:     s.metricsCollector,
	}, s.logger)
	sessions.Routes(mux)

	recordings := handlers.NewRecordingHandler(s.components.recordings, s.components.runs, s.components.runner, interpretOptions(s.cfg.Interpreter), s.logger)
	recordings.Routes(mux)

	// ========================================
	// 构建中间件链
	// ========================================
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares, RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	return Chain(mux, middlewares...)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	s.httpManager = server.NewManager(s.routes(rateLimiterCtx), server.ConfigFromServer(s.cfg.Server), s.logger)
	s.httpManager.OnShutdown(s.hub.CloseAll)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.MetricsConfig(s.cfg.Server), s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		if err := s.httpManager.Wait(context.Background()); err != nil {
			s.logger.Error("HTTP server stopped with error", zap.Error(err))
		}
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 0. 停止 rate limiter 清理 goroutine 与配置监听
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}

	// 1. 关闭 HTTP 服务器（WaitForShutdown 已关闭时为空操作）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 停止交互式回放，关闭全部浏览器
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
	if s.hub != nil {
		s.hub.CloseAll()
	}
	if s.pool != nil {
		if err := s.pool.CloseAll(ctx); err != nil {
			s.logger.Error("browser pool shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 存储与遥测
	if s.components != nil {
		s.components.close()
	}
	if err := s.providers.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
