package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/browser"
	"github.com/BaSui01/browserflow/config"
	"github.com/BaSui01/browserflow/control"
	"github.com/BaSui01/browserflow/driver"
	"github.com/BaSui01/browserflow/internal/database"
	"github.com/BaSui01/browserflow/internal/metrics"
	"github.com/BaSui01/browserflow/interpret"
	"github.com/BaSui01/browserflow/storage"
	"github.com/BaSui01/browserflow/transport"
)

// =============================================================================
// 🔧 配置 → 组件参数
// =============================================================================

func launchOptions(b config.BrowserConfig, sc config.ScreencastConfig) driver.LaunchOptions {
	return driver.LaunchOptions{
		Headless:    b.Headless,
		ExecPath:    b.ExecPath,
		UserAgent:   b.UserAgent,
		ProxyURL:    b.Proxy,
		Viewport:    driver.Viewport{Width: sc.MaxWidth, Height: sc.MaxHeight},
		LaunchLimit: b.LaunchTimeout,
	}
}

func sessionConfig(sc config.ScreencastConfig) browser.SessionConfig {
	cfg := browser.DefaultSessionConfig()
	cfg.Screencast = driver.ScreencastOptions{
		Quality:   sc.Quality,
		MaxWidth:  sc.MaxWidth,
		MaxHeight: sc.MaxHeight,
	}
	cfg.AckDelay = sc.AckDelay
	return cfg
}

func interpretOptions(ic config.InterpreterConfig) interpret.Options {
	return interpret.Options{
		MaxRepeats:     ic.MaxRepeats,
		MaxConcurrency: ic.MaxConcurrency,
		Debug:          ic.Debug,
	}
}

func hubOptions(s config.ServerConfig) transport.HubOptions {
	opts := transport.DefaultHubOptions()
	if s.WSSendBuffer > 0 {
		opts.SendBuffer = s.WSSendBuffer
	}
	if s.WSWriteTimeout > 0 {
		opts.WriteTimeout = s.WSWriteTimeout
	}
	opts.OriginPatterns = s.CORSAllowedOrigins
	return opts
}

// storeConfig 把 storage/redis 配置段合成 storage.StoreConfig
func storeConfig(cfg *config.Config) (storage.StoreConfig, error) {
	sc := storage.DefaultStoreConfig()
	sc.Type = storage.StoreType(cfg.Storage.Type)
	sc.BaseDir = cfg.Storage.BaseDir
	sc.AutoMigrate = cfg.Storage.AutoMigrate
	sc.Redis.KeyPrefix = cfg.Storage.KeyPrefix

	if sc.Type == storage.StoreTypeRedis {
		host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
		if err != nil {
			return sc, fmt.Errorf("invalid redis.addr %q: %w", cfg.Redis.Addr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return sc, fmt.Errorf("invalid redis port %q: %w", portStr, err)
		}
		sc.Redis.Host = host
		sc.Redis.Port = port
		sc.Redis.Password = cfg.Redis.Password
		sc.Redis.DB = cfg.Redis.DB
		sc.Redis.MinIdleConns = cfg.Redis.MinIdleConns
		sc.Redis.TLS = cfg.Redis.TLS
		sc.Redis.CAFile = cfg.Redis.CAFile
		if cfg.Redis.PoolSize > 0 {
			sc.Redis.PoolSize = cfg.Redis.PoolSize
		}
	}
	return sc, nil
}

// =============================================================================
// 🧩 共享组件（serve 与 run 共用）
// =============================================================================

type components struct {
	cfg        *config.Config
	logger     *zap.Logger
	collector  *metrics.Collector
	dbPool     *database.PoolManager
	store      storage.Store
	recordings *storage.RecordingRepository
	runs       *storage.RunRepository
	launcher   driver.Launcher
	runner     *control.Runner
}

// newComponents 打开存储并构建 Runner。launcher 为 nil 时使用 chromedp。
func newComponents(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) (*components, error) {
	return newComponentsWithLauncher(cfg, logger, collector, nil)
}

func newComponentsWithLauncher(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector, launcher driver.Launcher) (*components, error) {
	c := &components{cfg: cfg, logger: logger, collector: collector, launcher: launcher}

	sc, err := storeConfig(cfg)
	if err != nil {
		return nil, err
	}

	deps := storage.Deps{Metrics: collector, Logger: logger}
	if sc.Type == storage.StoreTypeSQL {
		db, err := database.Open(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		c.dbPool, err = database.NewPoolManager(db, database.PoolConfigFromDatabase(cfg.Database), collector, logger)
		if err != nil {
			return nil, err
		}
		deps.DB = c.dbPool.DB()
		deps.Tx = c.dbPool
	}

	c.store, err = storage.NewStore(sc, deps)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	c.recordings = storage.NewRecordingRepository(c.store)
	c.runs = storage.NewRunRepository(c.store)

	if c.launcher == nil {
		c.launcher = driver.NewChromeDPLauncher(logger)
	}
	c.runner = control.NewRunner(c.launcher, c.recordings, c.runs, control.RunnerConfig{
		Launch:  launchOptions(cfg.Browser, cfg.Screencast),
		Session: sessionConfig(cfg.Screencast),
		Timeout: cfg.Interpreter.RunTimeout,
	}, collector, logger)
	return c, nil
}

// ping 供 readiness 检查
func (c *components) ping(ctx context.Context) error {
	var errs []error
	if c.store != nil {
		errs = append(errs, c.store.Ping(ctx))
	}
	if c.dbPool != nil {
		errs = append(errs, c.dbPool.Ping(ctx))
	}
	return errors.Join(errs...)
}

func (c *components) close() {
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Error("storage close error", zap.Error(err))
		}
	}
	if c.dbPool != nil {
		if err := c.dbPool.Close(); err != nil {
			c.logger.Error("database pool close error", zap.Error(err))
		}
	}
}
