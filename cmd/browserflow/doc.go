// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 BrowserFlow 服务端程序入口。

# 概述

cmd/browserflow 是远程浏览器录制与回放服务的可执行入口，提供
HTTP/WebSocket 服务、无人值守运行、数据库迁移、健康检查和版本查询等子命令。
程序支持 YAML 配置文件加载、结构化日志（zap）、Prometheus 指标采集、
OpenTelemetry 追踪以及日志级别热更新。

# 核心类型

  - Server       — 组合根，管理会话池、websocket hub、HTTP 与 Metrics 双端口
  - components   — serve 与 run 共用的存储、仓库、浏览器启动器与 Runner
  - Middleware   — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、run、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、CORS、RateLimiter（基于 IP）
  - 配置监听：config.Watcher 检测文件变更后调整 zap.AtomicLevel
  - 优雅关闭：信号监听 → 关闭 HTTP → 停止回放 → 关闭浏览器 → 关闭存储与遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
