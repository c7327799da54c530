// Copyright (c) BrowserFlow Authors.
// Licensed under the MIT License.

/*
Package recorder 把单次交互（点击、按键、导航、滚动、截图、抓取）转换为
where/what 对并折叠进工作流。

折叠规则：新 Pair 的首个动作只带一个字符串参数，且该参数是新 Pair 的选择器
之一时，查找 where.selectors 恰好等于 [该选择器] 的已有 Pair，找到则把新动作
追加进去（位于其尾部 waitForLoadState 之前）。否则新 Pair 以 flag 开头、以
waitForLoadState 结尾，插入到工作流头部。每次成功折叠都会把完整工作流推送到
传输通道。
*/
package recorder
