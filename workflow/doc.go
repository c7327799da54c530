// Copyright (c) BrowserFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 定义录制/回放所用的工作流数据模型。

# 概述

工作流（Workflow）是 where/what 对（Pair）的有序序列：where 描述匹配
条件（URL、选择器、Cookie、$before/$after 顺序引用、$and/$or 组合），
what 是匹配时依次执行的动作序列。

# 存储顺序与客户端索引

实时录制产生的 Pair 插入到头部（最近录制的位于存储位置 0），回放时
最新、最具体的选择器优先被尝试。客户端看到的是录制时间顺序，
索引 i 为按录制先后的 0 基位置：

  - 删除/替换：存储位置 = len-1-i，合法范围 0 <= i < len
  - 插入：存储位置 = len-i，合法范围 0 <= i <= len，i == len 即头部插入

所有按索引寻址的操作都只通过 storagePos / insertPos 计算位置。

# 标记动作

生成器为每个新 Pair 注入首部 "flag" 动作（回放时的可暂停点）和尾部
"waitForLoadState" 动作；持久化前 StripFlags 去掉 flag，加载后
AddFlags 重新注入。
*/
package workflow
