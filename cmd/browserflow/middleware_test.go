package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := SecurityHeaders()(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	handler := Chain(inner, SecurityHeaders(), RequestID())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID_PreservesClientValue(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "req-client")
	handler.ServeHTTP(w, r)

	assert.Equal(t, "req-client", seen)
	assert.Equal(t, "req-client", w.Header().Get("X-Request-ID"))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestCORS(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantStatus int
		wantHeader string
	}{
		{"no config same origin", nil, http.MethodGet, "", http.StatusOK, ""},
		{"no config preflight refused", nil, http.MethodOptions, "https://ui.example", http.StatusForbidden, ""},
		{"allowed origin", []string{"https://ui.example"}, http.MethodGet, "https://ui.example", http.StatusOK, "https://ui.example"},
		{"allowed preflight", []string{"https://ui.example"}, http.MethodOptions, "https://ui.example", http.StatusNoContent, "https://ui.example"},
		{"other origin", []string{"https://ui.example"}, http.MethodGet, "https://evil.example", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(tt.method, "/api/v1/sessions", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			CORS(tt.allowed)(inner).ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantHeader, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimiter(ctx, 0.001, 2, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(last, r)
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "1000", last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), "RATE_LIMITED")

	// 其他 IP 有独立的配额
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.2:1234"
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIPLimiter_Sweep(t *testing.T) {
	l := newIPLimiter(1, 0)
	assert.Equal(t, 1, l.burst)

	now := time.Now()
	l.allow("10.0.0.1", now.Add(-visitorTTL-time.Second))
	l.allow("10.0.0.2", now)

	l.sweep(now)
	assert.Len(t, l.visitors, 1)
	assert.Contains(t, l.visitors, "10.0.0.2")
}

func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   zapcore.Level
	}{
		{"/api/v1/sessions", http.StatusCreated, zapcore.InfoLevel},
		{"/api/v1/sessions/x", http.StatusNotFound, zapcore.WarnLevel},
		{"/api/v1/sessions", http.StatusBadGateway, zapcore.ErrorLevel},
		{"/healthz", http.StatusOK, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}), RequestID(), RequestLogger(zap.New(core)))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.want, entry.Level)
			fields := entry.ContextMap()
			assert.EqualValues(t, tt.status, fields["status"])
			assert.EqualValues(t, 4, fields["bytes"])
			assert.NotEmpty(t, fields["request_id"])
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/health":                                   "/health",
		"/api/v1/sessions":                          "/api/v1/sessions",
		"/api/v1/sessions/5f0c2a9e-1b7d":            "/api/v1/sessions/:id",
		"/api/v1/sessions/abc/recording":            "/api/v1/sessions/:id/recording",
		"/api/v1/recordings/login-flow/runs":        "/api/v1/recordings/:id/runs",
		"/api/v1/recordings/login-flow/runs/run-42": "/api/v1/recordings/:id/runs/:id",
		"/ws/abc":                                   "/ws/:id",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestMetricsMiddleware_NilCollector(t *testing.T) {
	handler := MetricsMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("ok"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestResponseWriters_Unwrap(t *testing.T) {
	var unwrapped http.ResponseWriter
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		require.True(t, ok)
		unwrapped = u.Unwrap()
	})

	rec := httptest.NewRecorder()
	MetricsMiddleware(nil)(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Same(t, rec, unwrapped)
}

func TestOTelTracing_PassesThrough(t *testing.T) {
	handler := OTelTracing()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}
