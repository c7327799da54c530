// =============================================================================
// 📦 browserflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Browser:     DefaultBrowserConfig(),
		Screencast:  DefaultScreencastConfig(),
		Interpreter: DefaultInterpreterConfig(),
		Storage:     DefaultStorageConfig(),
		Database:    DefaultDatabaseConfig(),
		Redis:       DefaultRedisConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		WSSendBuffer:    64,
		WSWriteTimeout:  10 * time.Second,
	}
}

// DefaultBrowserConfig 返回默认浏览器配置
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:      true,
		LaunchTimeout: 30 * time.Second,
		MaxSessions:   4,
	}
}

// DefaultScreencastConfig 返回默认推流配置
func DefaultScreencastConfig() ScreencastConfig {
	return ScreencastConfig{
		Quality:   75,
		MaxWidth:  1280,
		MaxHeight: 720,
		AckDelay:  100 * time.Millisecond,
	}
}

// DefaultInterpreterConfig 返回默认回放配置
func DefaultInterpreterConfig() InterpreterConfig {
	return InterpreterConfig{
		MaxRepeats:     5,
		MaxConcurrency: 1,
		RunTimeout:     10 * time.Minute,
	}
}

// DefaultStorageConfig 返回默认存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Type:      "file",
		BaseDir:   "./data",
		KeyPrefix: "browserflow:",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "browserflow",
		Password:        "",
		Name:            "browserflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "browserflow",
		SampleRate:   0.1,
	}
}
