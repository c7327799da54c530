package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/BaSui01/browserflow/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// migrateFlags 各子命令共用的连接参数
type migrateFlags struct {
	configPath string
	dbType     string
	dbURL      string
}

// parseMigrateArgs 拆出子命令、位置参数与 flag，flag 可以出现在任意位置
func parseMigrateArgs(args []string) (migrateFlags, []string, error) {
	var mf migrateFlags
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&mf.configPath, "config", "", "Path to config file")
	fs.StringVar(&mf.dbType, "db-type", "", "Database type (postgres, mysql, sqlite)")
	fs.StringVar(&mf.dbURL, "db-url", "", "Database connection URL")

	var positional []string
	for len(args) > 0 {
		// steps -1 之类的负数是位置参数
		if _, err := strconv.Atoi(args[0]); err == nil {
			positional = append(positional, args[0])
			args = args[1:]
			continue
		}
		if err := fs.Parse(args); err != nil {
			return mf, nil, err
		}
		args = fs.Args()
		if len(args) > 0 {
			positional = append(positional, args[0])
			args = args[1:]
		}
	}
	return mf, positional, nil
}

// newMigrator 优先使用 --db-type/--db-url，否则读取配置文件的 database 段
func newMigrator(mf migrateFlags) (*migration.DefaultMigrator, error) {
	if mf.dbType != "" && mf.dbURL != "" {
		return migration.NewMigratorFromURL(mf.dbType, mf.dbURL)
	}

	cfg, err := loadConfig(mf.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if mf.dbType != "" {
		cfg.Database.Driver = mf.dbType
	}
	return migration.NewMigratorFromConfig(cfg)
}

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	mf, positional, err := parseMigrateArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		printMigrateUsage()
		os.Exit(1)
	}
	if len(positional) == 0 || positional[0] == "help" {
		printMigrateUsage()
		if len(positional) == 0 {
			os.Exit(1)
		}
		return
	}

	migrator, err := newMigrator(mf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	if err := migration.NewCLI(migrator).Run(context.Background(), positional); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		if errors.Is(err, migration.ErrUnknownSubcommand) {
			printMigrateUsage()
		}
		migrator.Close()
		os.Exit(1)
	}
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Print(`Database Migration Commands

Usage:
  browserflow migrate <subcommand> [args] [options]

Subcommands:
`)
	migration.PrintUsage(os.Stdout)
	fmt.Print(`  help              Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  browserflow migrate up
  browserflow migrate status --db-type sqlite --db-url "file:data/browserflow.db?mode=rwc"
  browserflow migrate force 1
`)
}
