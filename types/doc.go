// Copyright (c) BrowserFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 BrowserFlow 全局共享的错误类型。

# 概述

types 是最底层的公共包，不依赖任何内部包。控制面的所有组件
（会话注册表、远程浏览器会话、工作流生成器、回放控制器）都通过
这里的 Error / ErrorCode / Severity 表达失败。

# 错误分级

  - Fatal     — 浏览器启动失败、关闭流程中停止录屏失败、对未初始化
    会话执行 SwitchOff 等，向调用方传播，不重试
  - Rejected  — 越界的标签页/工作流索引、未注册的会话 id、重复 resume，
    记录日志，操作无副作用，调用方得到 nil/false 结果
  - Advisory  — 录屏已停止、单帧 ack 失败，仅记录日志

本包不做任何自动重试。
*/
package types
