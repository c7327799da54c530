// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 driver 定义控制平面所依赖的浏览器能力，并提供基于 chromedp 的实现。

# 核心接口

  - Launcher：启动浏览器进程
  - Browser：浏览器句柄，负责打开新页面与关闭进程
  - Page：单个标签页，提供导航、截图、Screencast 推流、原始输入派发、
    选择器解析以及回放引擎使用的 DOM 操作

# 实现

ChromeDPLauncher 基于 chromedp 的 ExecAllocator 启动 Chrome，每个 Page
对应一个 chromedp 子上下文（即一个 target）。取消子上下文即关闭该标签页。

Page 的事件回调（Screencast 帧、主框架导航）在 chromedp 的事件分发协程中
执行，回调内不得阻塞或同步调用同一页面的其他方法。
*/
package driver
