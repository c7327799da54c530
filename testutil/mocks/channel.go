// =============================================================================
// 📡 MockChannel - 传输通道模拟实现
// =============================================================================
// 记录会话推送的全部 ServerEvent，便于断言顺序与内容
// =============================================================================
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/browserflow/transport"
)

// MockChannel 是 transport.Channel 的模拟实现
type MockChannel struct {
	mu      sync.Mutex
	events  []transport.ServerEvent
	sendErr error
	notify  chan struct{}
}

// NewMockChannel 创建新的 MockChannel
func NewMockChannel() *MockChannel {
	return &MockChannel{notify: make(chan struct{}, 1)}
}

// WithSendError 注入发送错误（事件仍被记录）
func (c *MockChannel) WithSendError(err error) *MockChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
	return c
}

// Send implements transport.Channel.
func (c *MockChannel) Send(ctx context.Context, ev transport.ServerEvent) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	err := c.sendErr
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return err
}

// Events 返回全部事件
func (c *MockChannel) Events() []transport.ServerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.ServerEvent(nil), c.events...)
}

// Names 返回全部事件名
func (c *MockChannel) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.EventName()
	}
	return out
}

// Count 返回指定名称的事件数
func (c *MockChannel) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.EventName() == name {
			n++
		}
	}
	return n
}

// Reset 清空记录
func (c *MockChannel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// WaitFor 等待指定名称的事件出现至少 n 次
func (c *MockChannel) WaitFor(name string, n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if c.Count(name) >= n {
			return true
		}
		select {
		case <-c.notify:
		case <-deadline.C:
			return c.Count(name) >= n
		}
	}
}

// Last 返回最后一个类型为 T 的事件
func Last[T transport.ServerEvent](c *MockChannel) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if ev, ok := c.events[i].(T); ok {
			return ev, true
		}
	}
	var zero T
	return zero, false
}
