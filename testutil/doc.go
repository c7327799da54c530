// Copyright 2026 BrowserFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 BrowserFlow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext，自动注册 Cleanup 防止泄漏
  - 断言工具: AssertContains / WaitForChannel
  - 数据工具: PairIDs / ActionNames

# 子包

  - testutil/mocks: MockLauncher / MockBrowser / MockPage（driver 接口）与
    MockChannel（transport.Channel），支持 Builder 模式、错误注入与事件模拟
  - testutil/fixtures: 预置工作流与录制文件样例

# 使用示例

	ctx := testutil.TestContext(t)
	page := mocks.NewMockPage().WithSelectorAt("#login", nil)
	ch := mocks.NewMockChannel()
*/
package testutil
