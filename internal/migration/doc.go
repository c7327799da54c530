// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 sql 存储后端的表结构版本，基于 golang-migrate，
支持 PostgreSQL、MySQL 与 SQLite。

# 概述

各方言的 SQL 迁移文件通过 embed 内嵌在 migrations/<方言>/ 下，
目前包含 storage_objects 表及其 updated_at 索引。生产环境用
browserflow migrate 子命令建表，storage.auto_migrate 只用于开发。

# 核心类型

  - Migrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info/Close
  - DefaultMigrator：golang-migrate 实现
  - CLI：把子命令参数翻译成 Migrator 调用并输出可读结果
  - NewMigratorFromDatabaseConfig：从 config.DatabaseConfig 创建迁移器

SQLite 使用 golang-migrate 的 sqlite3 方言（cgo 驱动），与运行时
GORM 使用的纯 Go sqlite 驱动注册名不同，可以共存于同一进程。
*/
package migration
