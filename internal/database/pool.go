package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/browserflow/config"
	"github.com/BaSui01/browserflow/internal/metrics"
)

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("pool is closed")

// =============================================================================
// 🔌 连接打开
// =============================================================================

// Dialector 根据驱动名选择 GORM 方言
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "mysql":
		return mysql.Open(cfg.DSN()), nil
	case "sqlite":
		if cfg.Name == "" {
			return nil, errors.New("sqlite requires database.name (file path)")
		}
		return sqlite.Open(cfg.DSN()), nil
	case "":
		return nil, errors.New("database driver not configured")
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql, sqlite)", cfg.Driver)
	}
}

// Open 打开数据库连接，GORM 自身的日志保持静默，慢查询等由调用方通过 zap 记录
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger.Info("database connected", zap.String("driver", cfg.Driver))
	return db, nil
}

// =============================================================================
// 🗄️ 连接池管理器
// =============================================================================

// PoolConfig 连接池配置
type PoolConfig struct {
	// Name 指标标签中的数据库名
	Name string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// HealthCheckInterval 为 0 时不启动后台探活
	HealthCheckInterval time.Duration

	// TxRetries 可重试错误的最大重放次数，0 表示不重放
	TxRetries int
	// TxBackoff 首次重放前的等待，之后每次翻倍
	TxBackoff time.Duration
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Name:                "primary",
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
		TxRetries:           3,
		TxBackoff:           50 * time.Millisecond,
	}
}

// PoolConfigFromDatabase 从数据库配置派生连接池配置
func PoolConfigFromDatabase(cfg config.DatabaseConfig) PoolConfig {
	pc := DefaultPoolConfig()
	// sqlite 的 Name 是文件路径，不适合做指标标签
	if cfg.Name != "" && cfg.Driver != "sqlite" {
		pc.Name = cfg.Name
	}
	if cfg.MaxOpenConns > 0 {
		pc.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		pc.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	pc.MaxIdleConns = min(pc.MaxIdleConns, pc.MaxOpenConns)
	return pc
}

// Validate 校验连接池配置
func (c PoolConfig) Validate() error {
	switch {
	case c.MaxOpenConns <= 0:
		return errors.New("max_open_conns must be positive")
	case c.MaxIdleConns <= 0:
		return errors.New("max_idle_conns must be positive")
	case c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	case c.TxRetries < 0:
		return errors.New("tx_retries must not be negative")
	case c.ConnMaxLifetime < 0, c.ConnMaxIdleTime < 0, c.HealthCheckInterval < 0, c.TxBackoff < 0:
		return errors.New("durations must not be negative")
	}
	return nil
}

// PoolManager 持有 GORM DB 与底层 sql.DB，负责池参数、后台探活与写事务重放
type PoolManager struct {
	db        *gorm.DB
	sqlDB     *sql.DB
	config    PoolConfig
	collector *metrics.Collector
	logger    *zap.Logger

	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoolManager 应用池参数；HealthCheckInterval > 0 时启动后台探活
func NewPoolManager(db *gorm.DB, cfg PoolConfig, collector *metrics.Collector, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "primary"
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithCancel(context.Background())
	pm := &PoolManager{
		db:        db,
		sqlDB:     sqlDB,
		config:    cfg,
		collector: collector,
		logger:    logger.With(zap.String("component", "db_pool"), zap.String("database", cfg.Name)),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if cfg.HealthCheckInterval > 0 {
		go pm.monitor(ctx)
	} else {
		close(pm.done)
	}

	pm.logger.Info("database pool initialized",
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("tx_retries", cfg.TxRetries),
	)
	return pm, nil
}

// DB 返回 GORM 数据库实例
func (pm *PoolManager) DB() *gorm.DB {
	return pm.db
}

func (pm *PoolManager) isClosed() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.closed
}

// Ping 检查数据库连接
func (pm *PoolManager) Ping(ctx context.Context) error {
	if pm.isClosed() {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Stats 连接池统计
func (pm *PoolManager) Stats() sql.DBStats {
	return pm.sqlDB.Stats()
}

// Close 停止后台探活并关闭连接池，可重复调用
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		return nil
	}
	pm.closed = true
	pm.mu.Unlock()

	pm.cancel()
	<-pm.done
	pm.logger.Info("closing database pool")
	return pm.sqlDB.Close()
}

// =============================================================================
// 🏥 探活
// =============================================================================

// CheckHealth 探活一次并上报连接数指标
func (pm *PoolManager) CheckHealth(ctx context.Context) error {
	if err := pm.Ping(ctx); err != nil {
		pm.logger.Error("database health check failed", zap.Error(err))
		return err
	}
	stats := pm.Stats()
	pm.collector.RecordDBConnections(pm.config.Name, stats.OpenConnections, stats.Idle)
	pm.logger.Debug("database health check passed",
		zap.Int("open", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int64("wait_count", stats.WaitCount),
	)
	return nil
}

func (pm *PoolManager) monitor(ctx context.Context) {
	defer close(pm.done)

	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_ = pm.CheckHealth(checkCtx)
			cancel()
		}
	}
}

// =============================================================================
// 🔄 写事务
// =============================================================================

// Tx 在事务中执行 fn。死锁、序列化失败、sqlite 锁冲突等错误按 TxBackoff
// 指数退避重放，最多 TxRetries 次；其他错误直接返回。
func (pm *PoolManager) Tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	backoff := pm.config.TxBackoff
	for attempt := 0; ; attempt++ {
		if pm.isClosed() {
			return ErrPoolClosed
		}
		err := pm.db.WithContext(ctx).Transaction(fn)
		if err == nil || !Retryable(err) {
			return err
		}
		if attempt >= pm.config.TxRetries {
			return fmt.Errorf("transaction failed after %d attempts: %w", attempt+1, err)
		}

		pm.logger.Warn("transaction conflict, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// retryableMarkers 各驱动错误信息里表示瞬时冲突的片段（小写）
var retryableMarkers = []string{
	"deadlock",
	"serialization failure",
	"could not serialize access",
	"40001",
	"lock wait timeout",
	"database is locked",
	"database table is locked",
	"bad connection",
	"connection reset",
}

// Retryable 判断错误是否是值得重放的瞬时冲突
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range retryableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
