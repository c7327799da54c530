// =============================================================================
// 🚀 工作流存储基准测试
// =============================================================================
// 运行方式:
//   go test -bench=. -benchmem ./workflow/...
// =============================================================================

package workflow

import (
	"fmt"
	"testing"
)

func benchWorkflow(n int) Workflow {
	wf := make(Workflow, 0, n)
	for i := 0; i < n; i++ {
		wf = append(wf, Pair{
			Where: Where{Selectors: []string{fmt.Sprintf("#item-%d", i)}},
			What: []Action{
				{Action: ActionClick, Args: []any{fmt.Sprintf("#item-%d", i)}},
				WaitForIdleAction(),
			},
		})
	}
	return wf
}

// BenchmarkStore_MergeInto 合并到最旧的 Pair（最坏的线性查找）
func BenchmarkStore_MergeInto(b *testing.B) {
	s := NewStore(benchWorkflow(200))
	actions := []Action{{Action: ActionPress, Args: []any{"#item-199", "a"}}}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if i%500 == 0 {
			b.StopTimer()
			s.Replace(benchWorkflow(200))
			b.StartTimer()
		}
		s.MergeInto("#item-199", actions)
	}
}

// BenchmarkStore_Prepend 头插新 Pair，每 1000 次重置避免无限增长
func BenchmarkStore_Prepend(b *testing.B) {
	pair := benchWorkflow(1)[0]
	s := NewStore(nil)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if i%1000 == 0 {
			b.StopTimer()
			s = NewStore(nil)
			b.StartTimer()
		}
		s.Prepend(pair)
	}
}

// BenchmarkStore_Pairs 快照深拷贝
func BenchmarkStore_Pairs(b *testing.B) {
	s := NewStore(benchWorkflow(100))

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = s.Pairs()
	}
}

// BenchmarkStore_ConcurrentRead 并发快照与查找
func BenchmarkStore_ConcurrentRead(b *testing.B) {
	s := NewStore(benchWorkflow(100))

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = s.FindExactSelector("#item-50")
		}
	})
}
