// Copyright (c) BrowserFlow Authors.
// Licensed under the MIT License.

/*
Package transport 定义会话级双向事件通道。

服务端→客户端与客户端→服务端各自是一个封闭的标签联合（ServerEvent /
ClientEvent），线上格式统一为 {"event": 名称, "data": 负载}。未知事件名
在解码边界被拒绝（ErrUnknownEvent）。

Hub 为每个会话 id 维护若干 websocket 客户端（github.com/coder/websocket），
Channel 是会话向客户端推送事件的唯一出口。消费过慢的客户端会被断开。
*/
package transport
