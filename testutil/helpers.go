// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	assert.Equal(t, []string{"flag", "click"}, testutil.ActionNames(pair))
// =============================================================================
package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/browserflow/workflow"
)

// TestContext 返回带超时的测试上下文，测试结束时自动取消
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// AssertContains 断言字符串包含子串
func AssertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// =============================================================================
// 🔧 工作流
// =============================================================================

// PairIDs 返回工作流中各 Pair 的 id（存储顺序）
func PairIDs(wf workflow.Workflow) []string {
	out := make([]string, len(wf))
	for i, p := range wf {
		out[i] = p.ID
	}
	return out
}

// ActionNames 返回 Pair 的动作名序列
func ActionNames(p workflow.Pair) []string {
	out := make([]string, len(p.What))
	for i, a := range p.What {
		out[i] = a.Action
	}
	return out
}
