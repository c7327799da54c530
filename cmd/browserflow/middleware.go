package main

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/BaSui01/browserflow/api/handlers"
	"github.com/BaSui01/browserflow/internal/ctxkeys"
	"github.com/BaSui01/browserflow/internal/metrics"
	"github.com/BaSui01/browserflow/internal/telemetry"
	"github.com/BaSui01/browserflow/types"
)

// Middleware 类型定义
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串联，第一个在最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestIDFromContext 取请求 id，没有时返回空串
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctxkeys.RequestID(ctx)
	return id
}

// =============================================================================
// 🛡️ 基础中间件
// =============================================================================

// Recovery 捕获 handler panic，返回 500 信封；http.ErrAbortHandler 原样抛出
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					append(ctxkeys.Fields(r.Context()),
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)...,
				)
				handlers.WriteError(w, types.NewFatalError(types.ErrInternalError, "internal server error"), nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID 透传或生成 X-Request-ID，并写入请求上下文
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(handlers.RequestIDHeader)
			if id == "" {
				id = newRequestID()
			}
			w.Header().Set(handlers.RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(ctxkeys.WithRequestID(r.Context(), id)))
		})
	}
}

func newRequestID() string {
	return "req-" + uuid.NewString()
}

// securityHeaders 每个响应都带上的安全头
var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
}

// SecurityHeaders 添加安全响应头
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range securityHeaders {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS 跨域中间件；allowedOrigins 为空时不设置 CORS 头，跨域预检直接拒绝
func CORS(allowedOrigins []string) Middleware {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = struct{}{}
	}
	allowHeaders := "Content-Type, " + handlers.RequestIDHeader

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && origin != ""

			if _, ok := originSet[origin]; ok && origin != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Max-Age", "86400")
				h.Add("Vary", "Origin")
				if preflight {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			} else if preflight {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 📝 日志 / 指标 / 追踪
// =============================================================================

// probePaths 探针请求只记 Debug
var probePaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/ready":   true,
	"/readyz":  true,
}

// RequestLogger 按响应状态选择日志级别：5xx Error、4xx Warn、其余 Info
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			level := zapcore.InfoLevel
			switch {
			case rw.StatusCode >= http.StatusInternalServerError:
				level = zapcore.ErrorLevel
			case rw.StatusCode >= http.StatusBadRequest:
				level = zapcore.WarnLevel
			case probePaths[r.URL.Path]:
				level = zapcore.DebugLevel
			}
			if ce := logger.Check(level, "request"); ce != nil {
				ce.Write(append(ctxkeys.Fields(r.Context()),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", rw.StatusCode),
					zap.Int64("bytes", rw.Bytes),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote_addr", r.RemoteAddr),
				)...)
			}
		})
	}
}

// MetricsMiddleware 记录请求耗时、状态码与收发字节，路径先归一化
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			requestSize := max(r.ContentLength, 0)
			collector.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path), rw.StatusCode,
				time.Since(start), requestSize, rw.Bytes)
		})
	}
}

// idParents 其后的路径段是会话 id、录制名或运行 id
var idParents = map[string]bool{
	"sessions":   true,
	"recordings": true,
	"runs":       true,
	"ws":         true,
}

// normalizePath 把动态路径段替换为 :id，控制指标标签基数
//
//	/api/v1/sessions/5f0c.../recording -> /api/v1/sessions/:id/recording
//	/api/v1/recordings/login/runs/abc  -> /api/v1/recordings/:id/runs/:id
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		if segments[i] != "" && idParents[segments[i-1]] {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

// OTelTracing 为每个请求创建 server span，5xx 标记为错误
func OTelTracing() Middleware {
	tracer := telemetry.Tracer()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			route := normalizePath(r.URL.Path)
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(route),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.StatusCode))
			if rw.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.StatusCode))
			}
		})
	}
}

// =============================================================================
// 🚦 限流
// =============================================================================

const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter 每个客户端 IP 一个令牌桶
type ipLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		rps:      rate.Limit(rps),
		burst:    max(burst, 1),
		visitors: make(map[string]*visitor),
	}
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	l.mu.Unlock()
	return v.limiter.AllowN(now, 1)
}

// sweep 清理超过 ttl 未出现的 IP
func (l *ipLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(l.visitors, ip)
		}
	}
}

func (l *ipLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

// retryAfter 下一个令牌到达前的秒数，至少 1
func (l *ipLimiter) retryAfter() string {
	if l.rps <= 0 {
		return "1"
	}
	return strconv.Itoa(max(int(1/float64(l.rps)), 1))
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// RateLimiter 基于客户端 IP 的限流，ctx 结束时停止后台清理
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	limiter := newIPLimiter(rps, burst)
	go limiter.run(ctx)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiter.allow(ip, time.Now()) {
				logger.Debug("rate limited", zap.String("ip", ip), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", limiter.retryAfter())
				handlers.WriteError(w, types.NewError(types.ErrRateLimited, "too many requests"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
