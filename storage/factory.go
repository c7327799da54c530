package storage

import (
	"fmt"

	"github.com/BaSui01/browserflow/internal/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps 后端所需的外部依赖
type Deps struct {
	// DB is required by the sql backend
	DB *gorm.DB
	// Tx optionally wraps sql writes, e.g. with conflict retries
	Tx      TxRunner
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// NewStore creates a Store based on the configuration
func NewStore(config StoreConfig, deps Deps) (Store, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		s   Store
		err error
	)
	switch config.Type {
	case StoreTypeMemory, "":
		s = NewMemoryStore()
	case StoreTypeFile:
		s, err = NewFileStore(config.BaseDir)
	case StoreTypeRedis:
		s, err = NewRedisStore(config.Redis)
	case StoreTypeSQL:
		s, err = NewSQLStore(deps.DB, config.AutoMigrate, deps.Tx)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	backend := string(config.Type)
	if backend == "" {
		backend = string(StoreTypeMemory)
	}
	logger.Info("storage backend ready", zap.String("component", "storage"), zap.String("backend", backend))
	return Instrument(s, backend, deps.Metrics), nil
}
