// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 control 把 websocket 客户端事件路由到会话注册表中的 RemoteSession。

Dispatcher.Handle 先按会话 ID 查找会话，找不到时返回 Rejected 的
SESSION_NOT_FOUND；随后按事件类型分派：输入事件交给会话本身，
录制编辑交给 recorder.Generator，回放控制交给 interpret.Controller。
interpret 事件在后台 goroutine 中运行回放，Close 会取消并等待它们。
*/
package control
