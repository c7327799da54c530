// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 browser 管理远程浏览器会话及其注册表。

# 概述

每个 RemoteSession 独占一个浏览器实例与其有序标签页列表，
负责把当前页的画面以 screencast 帧推送给客户端，并把客户端的
鼠标/键盘输入转发到页面、同时交给 recorder.Generator 录制。

# 核心类型

  - RemoteSession：会话生命周期（Initialize / SwitchOff）、标签页
    操作（AddTab / CloseTab / ChangeTab）与推流协议
  - Pool：会话注册表，按 id 查找，由组合根显式构造
  - StreamState：推流状态 off / starting / active

# 推流协议

每收到一帧先推送 screencast 事件，再延迟 AckDelay 确认该帧；
浏览器在收到确认前不会发送下一帧。确认失败只记录日志，不重试。

# 并发

标签页操作由会话内的 tabMu 串行化，ChangeTab 的
停止推流 → 切换 → 调整视口 → urlChanged → 快照 → 重新订阅
作为一个整体执行。
*/
package browser
