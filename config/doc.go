// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package config 提供 browserflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → BROWSERFLOW_* 环境变量 的顺序叠加，
// Watcher 在配置文件变更后重新加载并校验，只把通过校验的新配置交给订阅者。
package config
