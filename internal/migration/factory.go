package migration

import (
	"fmt"

	"github.com/BaSui01/browserflow/config"
)

// NewMigratorFromConfig 使用应用配置中的 database 段
func NewMigratorFromConfig(cfg *config.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database)
}

// NewMigratorFromDatabaseConfig 把 DatabaseConfig 转成迁移连接串
func NewMigratorFromDatabaseConfig(dbCfg config.DatabaseConfig) (*DefaultMigrator, error) {
	dbURL, dbType, err := DatabaseURLFromConfig(dbCfg)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
	})
}

// DatabaseURLFromConfig 返回连接串与方言；sqlite 的 Name 字段是文件路径
func DatabaseURLFromConfig(dbCfg config.DatabaseConfig) (string, DatabaseType, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return "", "", fmt.Errorf("invalid database type: %w", err)
	}

	switch dbType {
	case DatabaseTypePostgres:
		return BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode), dbType, nil
	case DatabaseTypeMySQL:
		return BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, ""), dbType, nil
	default:
		if dbCfg.Name == "" {
			return "", "", fmt.Errorf("sqlite requires database.name (file path)")
		}
		return BuildDatabaseURL(dbType, "", 0, dbCfg.Name, "", "", ""), dbType, nil
	}
}

// NewMigratorFromURL 直接使用命令行给出的方言与连接串
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
	})
}
