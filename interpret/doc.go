// Copyright (c) BrowserFlow Authors.
// Licensed under the MIT License.

/*
Package interpret 驱动工作流回放，并提供暂停/恢复/单步/断点控制。

# 状态机

	Idle ──Run──▶ Running ◀──Resume/Step── Paused
	                │   └──flag 点命中断点或暂停请求──▶ Paused
	                ├──引擎完成──▶ Finished
	                └──Stop──▶ Aborted

每当引擎执行到 flag 动作，便调用 Hooks.Flag。若当前 Pair 索引设有断点或存在
暂停请求，Controller 进入 Paused 并创建一次性 resumeSignal，Flag 阻塞于该信号
（或运行上下文取消）。Resume 触发信号并清除暂停请求；Step 触发信号但保留暂停
请求，使下一个 flag 点再次暂停。同一时刻至多存在一个待触发信号，重复 Resume
返回 ErrNotPaused。

Stop 不需要先 Resume：它停止引擎并取消运行上下文，阻塞中的 Flag 随之返回。

断点与 activePairId 均使用存储顺序的 Pair 索引。

# 无人值守模式

RunToCompletion 使用同一引擎但不支持暂停，聚合调试日志与输出后返回 Summary，
输出键依次为 item-0、item-1……
*/
package interpret
