// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package tlsutil 提供集中式 TLS 配置（TLS 1.2+，仅 AEAD 密码套件）。
//
// Redis 存储后端通过 NewClientConfig 建立连接，可选用私有 CA 文件；
// 命令行子命令访问服务端时使用 SecureHTTPClient。
package tlsutil
