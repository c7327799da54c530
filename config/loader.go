// =============================================================================
// 📦 browserflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("BROWSERFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// 密钥类字段可以用 <KEY>_FILE 指向挂载的文件
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 browserflow 的完整配置结构
type Config struct {
	Server      ServerConfig      `yaml:"server" env:"SERVER"`
	Browser     BrowserConfig     `yaml:"browser" env:"BROWSER"`
	Screencast  ScreencastConfig  `yaml:"screencast" env:"SCREENCAST"`
	Interpreter InterpreterConfig `yaml:"interpreter" env:"INTERPRETER"`
	Storage     StorageConfig     `yaml:"storage" env:"STORAGE"`
	Database    DatabaseConfig    `yaml:"database" env:"DATABASE"`
	Redis       RedisConfig       `yaml:"redis" env:"REDIS"`
	Log         LogConfig         `yaml:"log" env:"LOG"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，websocket 连接不受此限制
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 每秒请求数
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源，空表示不启用 CORS
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 每个 websocket 客户端的发送缓冲
	WSSendBuffer int `yaml:"ws_send_buffer" env:"WS_SEND_BUFFER"`
	// 单条 websocket 写超时
	WSWriteTimeout time.Duration `yaml:"ws_write_timeout" env:"WS_WRITE_TIMEOUT"`
}

// BrowserConfig 浏览器启动配置
type BrowserConfig struct {
	Headless bool `yaml:"headless" env:"HEADLESS"`
	// Chrome 可执行文件路径，空则自动查找
	ExecPath  string `yaml:"exec_path" env:"EXEC_PATH"`
	UserAgent string `yaml:"user_agent" env:"USER_AGENT"`
	// 代理地址，例如 http://127.0.0.1:8888
	Proxy         string        `yaml:"proxy" env:"PROXY"`
	LaunchTimeout time.Duration `yaml:"launch_timeout" env:"LAUNCH_TIMEOUT"`
	// 同时存在的远程会话上限
	MaxSessions int `yaml:"max_sessions" env:"MAX_SESSIONS"`
}

// ScreencastConfig 屏幕推流配置
type ScreencastConfig struct {
	Quality   int `yaml:"quality" env:"QUALITY"`
	MaxWidth  int `yaml:"max_width" env:"MAX_WIDTH"`
	MaxHeight int `yaml:"max_height" env:"MAX_HEIGHT"`
	// 收到帧后延迟多久再 ack
	AckDelay time.Duration `yaml:"ack_delay" env:"ACK_DELAY"`
}

// InterpreterConfig 回放默认参数
type InterpreterConfig struct {
	MaxRepeats     int  `yaml:"max_repeats" env:"MAX_REPEATS"`
	MaxConcurrency int  `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	Debug          bool `yaml:"debug" env:"DEBUG"`
	// 无人值守运行的总超时，0 表示不限制
	RunTimeout time.Duration `yaml:"run_timeout" env:"RUN_TIMEOUT"`
}

// StorageConfig 录制与运行记录的存储配置
type StorageConfig struct {
	// 类型: memory, file, redis, sql
	Type string `yaml:"type" env:"TYPE"`
	// file 后端的根目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// redis 后端的 key 前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// sql 后端启动时是否 AutoMigrate，否则依赖 migrate 子命令
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 是否使用 TLS 连接
	TLS bool `yaml:"tls" env:"TLS"`
	// 私有 CA 的 PEM 文件，为空用系统根证书
	CAFile string `yaml:"ca_file" env:"CA_FILE"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名，sqlite 时为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 按 默认值 → YAML → 环境变量 的顺序合成 Config
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 环境变量前缀默认 BROWSERFLOW
func NewLoader() *Loader {
	return &Loader{envPrefix: "BROWSERFLOW"}
}

func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 追加一个在合成完成后执行的校验
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 合成配置。文件不存在时跳过文件层；未知的 YAML 键视为错误
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := decodeFile(l.configPath, cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", l.configPath, err)
	}
	if err := overlayEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	// 空文件等价于没有覆盖
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// =============================================================================
// 🌱 环境变量覆盖
// =============================================================================
// 键名为 <PREFIX>_<SECTION>_<FIELD>，取自 env 标签。
// <KEY>_FILE 指向一个文件时，用其内容（去掉首尾空白）作为值，<KEY> 本身优先。

const fileSuffix = "_FILE"

var durationType = reflect.TypeOf(time.Duration(0))

// envParsers 按 Kind 解析标量，Duration 单独处理
var envParsers = map[reflect.Kind]func(raw string, dst reflect.Value) error{
	reflect.String: func(raw string, dst reflect.Value) error {
		dst.SetString(raw)
		return nil
	},
	reflect.Bool: func(raw string, dst reflect.Value) error {
		b, err := strconv.ParseBool(raw)
		if err == nil {
			dst.SetBool(b)
		}
		return err
	},
	reflect.Int: func(raw string, dst reflect.Value) error {
		n, err := strconv.ParseInt(raw, 10, dst.Type().Bits())
		if err == nil {
			dst.SetInt(n)
		}
		return err
	},
	reflect.Int64: func(raw string, dst reflect.Value) error {
		if dst.Type() == durationType {
			d, err := time.ParseDuration(raw)
			if err == nil {
				dst.SetInt(int64(d))
			}
			return err
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			dst.SetInt(n)
		}
		return err
	},
	reflect.Float64: func(raw string, dst reflect.Value) error {
		f, err := strconv.ParseFloat(raw, 64)
		if err == nil {
			dst.SetFloat(f)
		}
		return err
	},
	reflect.Slice: func(raw string, dst reflect.Value) error {
		if dst.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", dst.Type())
		}
		var items []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		dst.Set(reflect.ValueOf(items))
		return nil
	},
}

// overlayEnv 遍历带 env 标签的字段，收集全部解析错误而不是停在第一个
func overlayEnv(v reflect.Value, prefix string) error {
	var errs []error
	t := v.Type()
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)

		if field.Kind() == reflect.Struct {
			if err := overlayEnv(field, key); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		raw, ok, err := lookupEnv(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		parse, supported := envParsers[field.Kind()]
		if !supported {
			errs = append(errs, fmt.Errorf("%s: unsupported field kind %s", key, field.Kind()))
			continue
		}
		if err := parse(raw, field); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
		}
	}
	return errors.Join(errs...)
}

// lookupEnv 空字符串视为未设置
func lookupEnv(key string) (string, bool, error) {
	if raw := os.Getenv(key); raw != "" {
		return raw, true, nil
	}
	path := os.Getenv(key + fileSuffix)
	if path == "" {
		return "", false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("%s%s: %w", key, fileSuffix, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

var (
	validStorageTypes = map[string]bool{"memory": true, "file": true, "redis": true, "sql": true}
	validDrivers      = map[string]bool{"postgres": true, "mysql": true, "sqlite": true}
	validLogLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, errors.New("invalid HTTP port"))
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, errors.New("invalid metrics port"))
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, errors.New("metrics port must differ from HTTP port"))
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, errors.New("rate_limit_rps must not be negative"))
	}

	if c.Browser.MaxSessions < 0 {
		errs = append(errs, errors.New("browser.max_sessions must not be negative"))
	}

	if c.Screencast.Quality < 0 || c.Screencast.Quality > 100 {
		errs = append(errs, errors.New("screencast.quality must be between 0 and 100"))
	}
	if c.Screencast.MaxWidth <= 0 || c.Screencast.MaxHeight <= 0 {
		errs = append(errs, errors.New("screencast dimensions must be positive"))
	}
	if c.Screencast.AckDelay < 0 {
		errs = append(errs, errors.New("screencast.ack_delay must not be negative"))
	}

	if c.Interpreter.MaxRepeats < 0 {
		errs = append(errs, errors.New("interpreter.max_repeats must not be negative"))
	}

	if !validStorageTypes[c.Storage.Type] {
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}
	if c.Storage.Type == "file" && c.Storage.BaseDir == "" {
		errs = append(errs, errors.New("storage.base_dir is required for file storage"))
	}
	if c.Storage.Type == "sql" && !validDrivers[c.Database.Driver] {
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Storage.Type == "redis" && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required for redis storage"))
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, errors.New("telemetry.sample_rate must be between 0 and 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
