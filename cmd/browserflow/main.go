// =============================================================================
// BrowserFlow 主入口
// =============================================================================
// 远程浏览器录制与回放服务，包含 HTTP/WebSocket 服务、健康检查、Prometheus 指标
//
// 使用方法:
//
//	browserflow serve                        # 启动服务
//	browserflow serve --config config.yaml   # 指定配置文件
//	browserflow run --name login-flow        # 无人值守运行一个录制
//	browserflow version                      # 显示版本信息
//	browserflow health                       # 健康检查
//	browserflow migrate up                   # 运行数据库迁移
//	browserflow migrate status               # 查看迁移状态
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/browserflow/config"
	"github.com/BaSui01/browserflow/internal/telemetry"
	"github.com/BaSui01/browserflow/internal/tlsutil"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "run":
		runRecording(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 按 默认值 → YAML → 环境变量 加载并校验
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithValidator(func(c *config.Config) error { return c.Validate() })
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, level := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting BrowserFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, *configPath, logger, level, providers)
	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	srv.WaitForShutdown()
	logger.Info("BrowserFlow stopped")
}

// =============================================================================
// ▶️ run 命令
// =============================================================================

func runRecording(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	name := fs.String("name", "", "Recording name")
	params := fs.String("params", "", "Interpreter params as a JSON object")
	maxRepeats := fs.Int("max-repeats", 0, "Override interpreter.max_repeats")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "run requires --name")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := initLogger(cfg.Log)
	defer logger.Sync()

	opts := interpretOptions(cfg.Interpreter)
	if *maxRepeats > 0 {
		opts.MaxRepeats = *maxRepeats
	}
	if *params != "" {
		if err := json.Unmarshal([]byte(*params), &opts.Params); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --params: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := newComponents(cfg, logger, nil)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer c.close()

	run, err := c.runner.Run(ctx, *name, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(run)
	if run.Status != "success" {
		os.Exit(2)
	}
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := tlsutil.SecureHTTPClient(5 * time.Second)
	resp, err := client.Get(strings.TrimSuffix(*addr, "/") + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("BrowserFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`BrowserFlow - remote browser recording and replay

Usage:
  browserflow <command> [options]

Commands:
  serve     Start the BrowserFlow server
  run       Run a saved recording to completion
  migrate   Database migration commands
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'run':
  --config <path>       Path to configuration file (YAML)
  --name <recording>    Recording to run
  --params <json>       Interpreter params, e.g. '{"query":"go"}'
  --max-repeats <n>     Override interpreter.max_repeats

Examples:
  browserflow serve --config /etc/browserflow/config.yaml
  browserflow run --name login-flow --params '{"user":"demo"}'
  browserflow migrate up
  browserflow health --addr http://localhost:8080
  browserflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// parseLevel 未知级别回退到 info
func parseLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// initLogger 返回 logger 及其可在运行期调整的级别
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             level,
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger, level
}
