// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 提供 BrowserFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现会话管理、录制管理、无人值守运行和健康检查的 HTTP 端点，
并把 WebSocket 升级交给 transport.Hub。所有 Handler 遵循标准 net/http
接口，通过 Routes 注册到 Go 1.22 的 http.ServeMux 模式路由。

# 核心类型

  - SessionHandler   — 远程浏览器会话的创建、查询、关闭与录制加载
  - RecordingHandler — 录制列表、读取、删除与运行记录
  - HealthHandler    — /health, /healthz, /ready, /readyz, /version
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、severity
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码

# 错误映射

WriteErr 把 types.Error 与 storage 的哨兵错误统一映射到 HTTP 状态码，
未识别的错误按 INTERNAL_ERROR 处理。
*/
package handlers
