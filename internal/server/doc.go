// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理单个监听端口上 http.Server 的生命周期。

Manager 的状态只会 new → running → closed 单向推进：Start/Serve 非阻塞启动，
Shutdown 可重复调用，Wait 在 SIGINT/SIGTERM、ctx 结束或服务异常退出时触发关闭。
ConfigFromServer 与 MetricsConfig 从 config.ServerConfig 派生 API 与指标端口的配置。

websocket 连接被劫持后不受 http.Server.Shutdown 管理，调用方通过 OnShutdown
注册关闭钩子（transport.Hub.CloseAll）。WriteTimeout 只约束普通 REST 请求。
*/
package server
