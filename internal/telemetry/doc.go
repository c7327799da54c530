// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package telemetry 集中初始化 OpenTelemetry 的 TracerProvider 与 MeterProvider，
// 通过 OTLP gRPC 导出。禁用时使用 noop 实现；无人值守回放的 span 经 Tracer() 创建。
package telemetry
