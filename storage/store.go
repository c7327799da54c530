package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("storage: not found")
	ErrStoreClosed  = errors.New("storage: store is closed")
	ErrInvalidPath  = errors.New("storage: invalid path")
	ErrInvalidInput = errors.New("storage: invalid input")
)

// StoreType 存储后端类型
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
)

// Store is a byte store addressed by slash-separated relative paths.
type Store interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	// List returns the paths starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	Close() error
	Ping(ctx context.Context) error
}

// StoreConfig 存储配置
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the root directory of the file backend
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`

	// AutoMigrate creates the storage_objects table on start (sql backend)
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
	// DialTimeout bounds the initial ping
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	// TLS enables a hardened TLS connection
	TLS bool `json:"tls" yaml:"tls"`
	// CAFile is a PEM bundle used instead of the system roots
	CAFile       string `json:"ca_file" yaml:"ca_file"`
	MinIdleConns int    `json:"min_idle_conns" yaml:"min_idle_conns"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeFile,
		BaseDir: "./data",
		Redis: RedisStoreConfig{
			Host:        "localhost",
			Port:        6379,
			PoolSize:    10,
			KeyPrefix:   "browserflow:",
			DialTimeout: 5 * time.Second,
		},
		AutoMigrate: true,
	}
}

// CleanPath 校验并规范化存储路径
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}
