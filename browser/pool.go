package browser

import (
	"context"
	"sync"

	"github.com/BaSui01/browserflow/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool 会话注册表：id → RemoteSession
type Pool struct {
	mu       sync.RWMutex
	sessions map[string]*RemoteSession
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewPool creates an empty registry. collector may be nil.
func NewPool(collector *metrics.Collector, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		sessions: make(map[string]*RemoteSession),
		metrics:  collector,
		logger:   logger.With(zap.String("component", "session_pool")),
	}
}

// Register stores session under id, replacing any previous entry.
func (p *Pool) Register(id string, session *RemoteSession) {
	p.mu.Lock()
	_, replaced := p.sessions[id]
	p.sessions[id] = session
	n := len(p.sessions)
	p.mu.Unlock()

	p.metrics.SetActiveSessions(n)
	if replaced {
		p.logger.Info("session replaced", zap.String("session_id", id))
		return
	}
	p.logger.Info("session registered", zap.String("session_id", id), zap.Int("sessions", n))
}

// Unregister removes id and reports whether it was present.
func (p *Pool) Unregister(id string) bool {
	p.mu.Lock()
	_, ok := p.sessions[id]
	delete(p.sessions, id)
	n := len(p.sessions)
	p.mu.Unlock()

	if !ok {
		p.logger.Warn("unregister of unknown session", zap.String("session_id", id))
		return false
	}
	p.metrics.SetActiveSessions(n)
	p.logger.Info("session unregistered", zap.String("session_id", id), zap.Int("sessions", n))
	return true
}

// Get returns the session registered under id.
func (p *Pool) Get(id string) (*RemoteSession, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[id]
	return s, ok
}

// ActiveID returns some registered id. Which one is unspecified.
func (p *Pool) ActiveID() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for id := range p.sessions {
		return id, true
	}
	return "", false
}

// IDs returns all registered ids.
func (p *Pool) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered sessions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// CloseAll switches off every session concurrently. A session is
// unregistered only after its browser has been closed.
func (p *Pool) CloseAll(ctx context.Context) error {
	p.mu.RLock()
	snapshot := make(map[string]*RemoteSession, len(p.sessions))
	for id, s := range p.sessions {
		snapshot[id] = s
	}
	p.mu.RUnlock()

	var g errgroup.Group
	for id, s := range snapshot {
		g.Go(func() error {
			if s.Initialized() {
				if err := s.SwitchOff(ctx); err != nil {
					p.logger.Error("session switch off failed", zap.String("session_id", id), zap.Error(err))
					return err
				}
			}
			p.unregisterIf(id, s)
			return nil
		})
	}
	err := g.Wait()
	p.logger.Info("sessions closed", zap.Int("count", len(snapshot)), zap.Int("remaining", p.Len()))
	return err
}

// unregisterIf 仅当 id 仍指向 s 时移除
func (p *Pool) unregisterIf(id string, s *RemoteSession) {
	p.mu.Lock()
	if cur, ok := p.sessions[id]; ok && cur == s {
		delete(p.sessions, id)
	}
	n := len(p.sessions)
	p.mu.Unlock()
	p.metrics.SetActiveSessions(n)
}
