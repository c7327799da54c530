package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/browserflow/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Channel 会话向客户端推送事件的出口
type Channel interface {
	Send(ctx context.Context, ev ServerEvent) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, ev ServerEvent) error

// Send implements Channel.
func (f ChannelFunc) Send(ctx context.Context, ev ServerEvent) error { return f(ctx, ev) }

// Handler processes one decoded client event for a session.
type Handler func(ctx context.Context, sessionID string, ev ClientEvent) error

// HubOptions 配置 Hub
type HubOptions struct {
	// SendBuffer 每个客户端的发送队列长度，满则断开该客户端
	SendBuffer     int
	WriteTimeout   time.Duration
	OriginPatterns []string
	// OnDrop 在慢消费者被断开时调用
	OnDrop func(sessionID string)
}

// DefaultHubOptions returns the defaults used by NewHub.
func DefaultHubOptions() HubOptions {
	return HubOptions{SendBuffer: 64, WriteTimeout: 15 * time.Second}
}

// Hub fans session events out to websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	opts    HubOptions
	logger  *zap.Logger
}

// NewHub creates a Hub.
func NewHub(opts HubOptions, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultHubOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		opts:    opts,
		logger:  logger.With(zap.String("component", "transport_hub")),
	}
}

// Channel binds a Channel to sessionID.
func (h *Hub) Channel(sessionID string) Channel {
	return ChannelFunc(func(ctx context.Context, ev ServerEvent) error {
		return h.Publish(sessionID, ev)
	})
}

// Publish sends ev to every client of sessionID, dropping slow consumers.
// No connected client is not an error.
func (h *Hub) Publish(sessionID string, ev ServerEvent) error {
	data, err := EncodeServerEvent(ev)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[sessionID] {
		if !c.enqueue(data) {
			go h.dropClient(c)
		}
	}
	return nil
}

// ClientCount returns the number of clients attached to sessionID.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Serve upgrades the request and pumps events until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string, handler Handler) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		return err
	}

	c := h.register(sessionID, conn)
	defer h.removeClient(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		if err := c.writeLoop(ctx, h.opts.WriteTimeout); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Debug("write loop ended", zap.String("session_id", sessionID), zap.Error(err))
		}
		cancel()
	}()

	h.logger.Info("client connected", zap.String("session_id", sessionID))
	err = h.readLoop(ctx, c, handler)
	h.logger.Info("client disconnected", zap.String("session_id", sessionID))

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (h *Hub) readLoop(ctx context.Context, c *client, handler Handler) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		ev, err := DecodeClientEvent(data)
		if err != nil {
			h.logger.Warn("rejected client message", zap.String("session_id", c.sessionID), zap.Error(err))
			h.reply(c, Error{Code: string(types.ErrInvalidRequest), Message: err.Error()})
			continue
		}
		if handler == nil {
			continue
		}
		if err := handler(ctx, c.sessionID, ev); err != nil {
			h.logger.Warn("client event failed",
				zap.String("session_id", c.sessionID),
				zap.String("event", ev.EventName()),
				zap.Error(err))
			h.reply(c, Error{Code: errorCode(err), Message: err.Error()})
		}
	}
}

func (h *Hub) register(sessionID string, conn wsConn) *client {
	c := &client{
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, h.opts.SendBuffer),
	}
	h.mu.Lock()
	set, ok := h.clients[sessionID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[sessionID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) dropClient(c *client) {
	if h.removeClient(c) {
		h.logger.Warn("dropping slow client", zap.String("session_id", c.sessionID))
		if h.opts.OnDrop != nil {
			h.opts.OnDrop(c.sessionID)
		}
		c.close(websocket.StatusPolicyViolation, "slow consumer")
	}
}

// removeClient 从 hub 中移除客户端，返回是否实际移除
func (h *Hub) removeClient(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.sessionID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.sessionID)
	}
	close(c.send)
	return true
}

// CloseSession disconnects every client of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.RLock()
	var victims []*client
	for c := range h.clients[sessionID] {
		victims = append(victims, c)
	}
	h.mu.RUnlock()

	for _, c := range victims {
		if h.removeClient(c) {
			go c.close(websocket.StatusGoingAway, "session closed")
		}
	}
}

// CloseAll disconnects every client of every session. Used on server shutdown,
// since hijacked connections are not tracked by http.Server.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.CloseSession(id)
	}
}

type wsConn interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
	Close(status websocket.StatusCode, reason string) error
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
}

type client struct {
	sessionID string
	conn      wsConn
	send      chan []byte

	closeMu sync.Mutex
	closed  bool
}

func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// reply 只回写给发出请求的客户端，队列已满时丢弃
func (h *Hub) reply(c *client, ev ServerEvent) {
	data, err := EncodeServerEvent(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.sessionID][c]; ok {
		c.enqueue(data)
	}
}

func (c *client) writeLoop(ctx context.Context, timeout time.Duration) error {
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, timeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *client) close(status websocket.StatusCode, reason string) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close(status, reason)
}

func errorCode(err error) string {
	if code := types.GetErrorCode(err); code != "" {
		return string(code)
	}
	if errors.Is(err, ErrUnknownEvent) {
		return string(types.ErrInvalidRequest)
	}
	return string(types.ErrInternalError)
}
