package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"

	defaultReadyTimeout = 5 * time.Second
)

// HealthCheck 就绪检查项（存储后端、数据库连接池等）
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus /health 与 /ready 的响应体
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Sessions  *SessionStats          `json:"sessions,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// SessionStats 浏览器会话容量
type SessionStats struct {
	Active int `json:"active"`
	Limit  int `json:"limit,omitempty"`
}

// full 会话数达到上限，新会话会被拒绝
func (s SessionStats) full() bool {
	return s.Limit > 0 && s.Active >= s.Limit
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // pass | fail
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthHandler 存活、就绪与版本端点
type HealthHandler struct {
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.RWMutex
	checks   []HealthCheck
	sessions func() int
	limit    int
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("component", "health")),
		timeout: defaultReadyTimeout,
	}
}

// SetSessionCounter 让 /health 与 /ready 附带活跃会话数；limit<=0 表示不限
func (h *HealthHandler) SetSessionCounter(count func() int, limit int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = count
	h.limit = limit
}

// RegisterCheck 注册就绪检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

func (h *HealthHandler) sessionStats() *SessionStats {
	h.mu.RLock()
	count, limit := h.sessions, h.limit
	h.mu.RUnlock()
	if count == nil {
		return nil
	}
	return &SessionStats{Active: count(), Limit: limit}
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 存活检查，会话已满时报告 degraded（仍返回 200）
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Sessions:  h.sessionStats(),
	}
	if status.Sessions != nil && status.Sessions.full() {
		status.Status = statusDegraded
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleHealthz Kubernetes 存活探针，不做任何依赖检查
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{Status: statusHealthy, Timestamp: time.Now()})
}

// HandleReady 并发执行全部就绪检查，任一失败返回 503
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := h.runChecks(ctx, checks)

	status := HealthStatus{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Sessions:  h.sessionStats(),
		Checks:    results,
	}
	for _, res := range results {
		if res.Status != "pass" {
			status.Status = statusUnhealthy
			WriteJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	WriteJSON(w, http.StatusOK, status)
}

func (h *HealthHandler) runChecks(ctx context.Context, checks []HealthCheck) map[string]CheckResult {
	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex

	var g errgroup.Group
	for _, check := range checks {
		g.Go(func() error {
			start := time.Now()
			err := check.Check(ctx)
			latency := time.Since(start)

			res := CheckResult{Status: "pass", Latency: latency.String()}
			if err != nil {
				res.Status = "fail"
				res.Message = err.Error()
				h.logger.Warn("readiness check failed",
					zap.String("check", check.Name()),
					zap.Duration("latency", latency),
					zap.Error(err),
				)
			}

			mu.Lock()
			results[check.Name()] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// HandleVersion 返回构建信息
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	info := map[string]string{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}

// Routes 注册健康检查路由
func (h *HealthHandler) Routes(mux *http.ServeMux, version, buildTime, gitCommit string) {
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /ready", h.HandleReady)
	mux.HandleFunc("GET /readyz", h.HandleReady)
	mux.HandleFunc("GET /version", h.HandleVersion(version, buildTime, gitCommit))
}

// =============================================================================
// 🔧 函数式检查
// =============================================================================

// FuncCheck 以函数实现的检查，存储后端与数据库连接池都用它接入
type FuncCheck struct {
	name  string
	check func(ctx context.Context) error
}

// NewFuncCheck 创建函数式检查
func NewFuncCheck(name string, check func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, check: check}
}

func (c *FuncCheck) Name() string { return c.name }

func (c *FuncCheck) Check(ctx context.Context) error { return c.check(ctx) }
