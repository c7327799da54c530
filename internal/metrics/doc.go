// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的控制平面指标采集能力。

# 概述

Collector 统一注册和记录 Prometheus 指标，使用 promauto 自动注册，
所有指标按 namespace 隔离。Collector 的记录方法对 nil 接收者安全，
业务组件可以不注入 Collector。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 会话指标：活跃会话数、标签页操作（add/close/change 及结果）。
  - Screencast 指标：推送帧数、帧确认结果。
  - 工作流指标：按操作统计的变更次数（merge/insert/remove/replace/import）。
  - 回放指标：解释器状态转换、无人值守运行次数与耗时。
  - 存储指标：按后端与操作统计的耗时与错误。
  - 数据库指标：活跃/空闲连接数。
*/
package metrics
