package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/browser"
	"github.com/BaSui01/browserflow/driver"
	"github.com/BaSui01/browserflow/internal/metrics"
	"github.com/BaSui01/browserflow/storage"
	"github.com/BaSui01/browserflow/transport"
	"github.com/BaSui01/browserflow/types"
)

// =============================================================================
// 🖥️ 会话 Handler
// =============================================================================

// SessionConfig 会话处理器依赖与参数
type SessionConfig struct {
	Launcher driver.Launcher
	Launch   driver.LaunchOptions
	Session  browser.SessionConfig
	// MaxSessions 同时存在的会话上限，0 表示不限
	MaxSessions int
	Metrics     *metrics.Collector
}

// SessionHandler 会话的创建、查询、关闭与 websocket 接入
type SessionHandler struct {
	pool       *browser.Pool
	hub        *transport.Hub
	handler    transport.Handler
	recordings *storage.RecordingRepository
	config     SessionConfig
	logger     *zap.Logger

	// createMu 保护 pending；上限按 已注册 + 启动中 计算
	createMu sync.Mutex
	pending  int
}

// NewSessionHandler creates a session handler. events receives decoded
// websocket client events; recordings may be nil.
func NewSessionHandler(pool *browser.Pool, hub *transport.Hub, events transport.Handler, recordings *storage.RecordingRepository, cfg SessionConfig, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		pool:       pool,
		hub:        hub,
		handler:    events,
		recordings: recordings,
		config:     cfg,
		logger:     logger.With(zap.String("component", "session_handler")),
	}
}

// CreateSessionRequest 创建会话请求，全部字段可选
type CreateSessionRequest struct {
	// URL 初始化后打开的页面
	URL string `json:"url,omitempty"`
}

// SessionInfo 会话概况
type SessionInfo struct {
	ID               string   `json:"id"`
	Tabs             int      `json:"tabs"`
	CurrentTab       int      `json:"currentTab"`
	Stream           string   `json:"stream"`
	Interpretation   string   `json:"interpretation"`
	Pairs            int      `json:"pairs"`
	ConnectedClients int      `json:"connectedClients"`
	Breakpoints      []int    `json:"breakpoints,omitempty"`
	URLs             []string `json:"urls,omitempty"`
}

// LoadRecordingRequest 将已保存录制载入会话
type LoadRecordingRequest struct {
	Name string `json:"name"`
}

func (h *SessionHandler) info(ctx context.Context, s *browser.RemoteSession) SessionInfo {
	pages := s.Pages()
	urls := make([]string, 0, len(pages))
	for _, p := range pages {
		u, err := p.URL(ctx)
		if err != nil {
			u = ""
		}
		urls = append(urls, u)
	}
	return SessionInfo{
		ID:               s.ID(),
		Tabs:             len(pages),
		CurrentTab:       s.CurrentIndex(),
		Stream:           string(s.StreamState()),
		Interpretation:   string(s.Controller().State()),
		Pairs:            s.Generator().Len(),
		ConnectedClients: h.hub.ClientCount(s.ID()),
		Breakpoints:      s.Controller().Breakpoints(),
		URLs:             urls,
	}
}

// HandleCreate 处理 POST /api/v1/sessions
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := DecodeOptionalJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if !h.reserve() {
		WriteError(w, types.NewError(types.ErrTooManySessions, "session limit reached"), h.logger)
		return
	}

	id := uuid.NewString()
	session := browser.NewRemoteSession(id, h.config.Launcher, h.hub.Channel(id), h.config.Session, h.config.Metrics, h.logger)

	// 浏览器启动成功后才进入注册表
	ctx := r.Context()
	err := session.Initialize(ctx, h.config.Launch)
	h.settle(id, session, err == nil)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}

	if req.URL != "" {
		if page := session.CurrentPage(); page != nil {
			if err := page.Navigate(ctx, req.URL); err != nil {
				h.logger.Warn("initial navigation failed", zap.String("session_id", id), zap.Error(err))
			}
		}
	}

	// 推流在请求结束后继续
	if err := session.SubscribeScreencast(context.WithoutCancel(ctx)); err != nil {
		h.logger.Warn("screencast subscription failed", zap.String("session_id", id), zap.Error(err))
	}

	h.logger.Info("session started", zap.String("session_id", id))
	WriteCreated(w, h.info(ctx, session))
}

// reserve 占用一个启动中名额
func (h *SessionHandler) reserve() bool {
	h.createMu.Lock()
	defer h.createMu.Unlock()
	if h.config.MaxSessions > 0 && h.pool.Len()+h.pending >= h.config.MaxSessions {
		return false
	}
	h.pending++
	return true
}

// settle 释放名额，启动成功时同一临界区内注册
func (h *SessionHandler) settle(id string, session *browser.RemoteSession, ok bool) {
	h.createMu.Lock()
	defer h.createMu.Unlock()
	h.pending--
	if ok {
		h.pool.Register(id, session)
	}
}

// HandleList 处理 GET /api/v1/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]any{"sessions": h.pool.IDs()})
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*browser.RemoteSession, bool) {
	id := r.PathValue("id")
	s, ok := h.pool.Get(id)
	if !ok {
		WriteError(w, types.NewError(types.ErrSessionNotFound, "session not found: "+id), h.logger)
		return nil, false
	}
	return s, true
}

// HandleGet 处理 GET /api/v1/sessions/{id}
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, h.info(r.Context(), s))
}

// HandleDelete 处理 DELETE /api/v1/sessions/{id}：先关闭浏览器，再注销
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 30*time.Second)
	defer cancel()

	err := s.SwitchOff(ctx)
	h.pool.Unregister(s.ID())
	h.hub.CloseSession(s.ID())
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"id": s.ID(), "status": "stopped"})
}

// HandleLoadRecording 处理 POST /api/v1/sessions/{id}/recording
func (h *SessionHandler) HandleLoadRecording(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.recordings == nil {
		WriteError(w, types.NewFatalError(types.ErrInternalError, "recording storage not configured"), h.logger)
		return
	}

	var req LoadRecordingRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if s.Controller().State().Active() {
		WriteError(w, types.NewError(types.ErrAlreadyRunning, "cannot replace workflow during interpretation"), h.logger)
		return
	}

	rec, err := h.recordings.Get(r.Context(), req.Name)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	if err := s.Generator().ImportRecording(r.Context(), rec); err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, h.info(r.Context(), s))
}

// HandleWebSocket 处理 GET /ws/{id}
func (h *SessionHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.lookup(w, r); !ok {
		return
	}

	// 长连接不受服务器 WriteTimeout 约束
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	if err := h.hub.Serve(w, r, r.PathValue("id"), h.handler); err != nil {
		h.logger.Debug("websocket closed", zap.String("session_id", r.PathValue("id")), zap.Error(err))
	}
}

// Routes 注册会话相关路由
func (h *SessionHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sessions", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/sessions", h.HandleList)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.HandleDelete)
	mux.HandleFunc("POST /api/v1/sessions/{id}/recording", h.HandleLoadRecording)
	mux.HandleFunc("GET /ws/{id}", h.HandleWebSocket)
}
