package interpret

import (
	"context"
	"sync/atomic"
)

// resumeSignal 一次性恢复信号
type resumeSignal struct {
	fired atomic.Bool
	ch    chan struct{}
}

func newResumeSignal() *resumeSignal {
	return &resumeSignal{ch: make(chan struct{})}
}

// fire releases the waiter. Only the first call has an effect.
func (s *resumeSignal) fire() bool {
	if !s.fired.CompareAndSwap(false, true) {
		return false
	}
	close(s.ch)
	return true
}

func (s *resumeSignal) wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
