// =============================================================================
// 📦 测试数据工厂 - 工作流与录制
// =============================================================================
// 提供预定义的工作流、Pair 与录制文件，用于测试
// =============================================================================
package fixtures

import (
	"time"

	"github.com/BaSui01/browserflow/workflow"
)

// FixedTime 测试用固定时间
var FixedTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// ClickPair 返回带 flag 与尾部等待的点击 Pair
func ClickPair(id, selector, url string) workflow.Pair {
	p := workflow.Pair{
		ID:    id,
		Where: workflow.Where{Selectors: []string{selector}},
		What: []workflow.Action{
			workflow.FlagAction(),
			{Action: workflow.ActionClick, Args: []any{selector}},
			workflow.WaitForIdleAction(),
		},
	}
	if url != "" {
		p.Where.URL = &workflow.URLMatcher{Literal: url}
	}
	return p
}

// GotoPair 返回导航 Pair（无 flag）
func GotoPair(id, url string) workflow.Pair {
	return workflow.Pair{
		ID:    id,
		Where: workflow.Where{URL: &workflow.URLMatcher{Literal: "about:blank"}},
		What:  []workflow.Action{{Action: workflow.ActionGoto, Args: []any{url}}},
	}
}

// LoginWorkflow 返回三步登录工作流（存储顺序，最新在前）
func LoginWorkflow() workflow.Workflow {
	return workflow.Workflow{
		ClickPair("submit", "#submit", ""),
		ClickPair("password", "#password", ""),
		ClickPair("username", "#username", ""),
	}
}

// LoginRecording 返回 LoginWorkflow 的持久化形式
func LoginRecording() workflow.Recording {
	wf := workflow.StripFlags(LoginWorkflow())
	return workflow.Recording{
		Meta: workflow.RecordingMeta{
			Name:       "login",
			CreateDate: FixedTime,
			UpdateDate: FixedTime,
			Pairs:      len(wf),
		},
		Recording: workflow.RecordingBody{Workflow: wf},
	}
}
