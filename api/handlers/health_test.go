package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func getHealth(t *testing.T, h http.HandlerFunc, path string) (int, HealthStatus) {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, path, nil))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return w.Code, status
}

func staticCheck(name string, err error) HealthCheck {
	return NewFuncCheck(name, func(context.Context) error { return err })
}

// =============================================================================
// 🧪 存活检查
// =============================================================================

func TestHealthHandler_HandleHealth(t *testing.T) {
	h := NewHealthHandler(nil)

	code, status := getHealth(t, h.HandleHealth, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
	assert.Nil(t, status.Sessions, "no counter registered")
}

func TestHealthHandler_SessionCapacity(t *testing.T) {
	tests := []struct {
		name   string
		active int
		limit  int
		want   string
	}{
		{"below limit", 1, 2, "healthy"},
		{"at limit", 2, 2, "degraded"},
		{"unlimited", 50, 0, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(zap.NewNop())
			h.SetSessionCounter(func() int { return tt.active }, tt.limit)

			code, status := getHealth(t, h.HandleHealth, "/health")
			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, tt.want, status.Status)
			require.NotNil(t, status.Sessions)
			assert.Equal(t, tt.active, status.Sessions.Active)
			assert.Equal(t, tt.limit, status.Sessions.Limit)
		})
	}
}

func TestHealthHandler_HandleHealthz(t *testing.T) {
	h := NewHealthHandler(nil)
	h.SetSessionCounter(func() int { return 9 }, 1)

	code, status := getHealth(t, h.HandleHealthz, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", status.Status, "liveness ignores capacity")
	assert.Nil(t, status.Sessions)
}

// =============================================================================
// 🧪 就绪检查
// =============================================================================

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name     string
		checks   []HealthCheck
		wantCode int
		want     string
	}{
		{"no checks", nil, http.StatusOK, "healthy"},
		{
			"all pass",
			[]HealthCheck{staticCheck("storage", nil), staticCheck("database", nil)},
			http.StatusOK, "healthy",
		},
		{
			"storage down",
			[]HealthCheck{staticCheck("storage", errors.New("redis: connection refused")), staticCheck("database", nil)},
			http.StatusServiceUnavailable, "unhealthy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(zap.NewNop())
			for _, c := range tt.checks {
				h.RegisterCheck(c)
			}

			code, status := getHealth(t, h.HandleReady, "/ready")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.want, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, "fail", status.Checks["storage"].Status)
				assert.Equal(t, "redis: connection refused", status.Checks["storage"].Message)
				assert.Equal(t, "pass", status.Checks["database"].Status)
			}
		})
	}
}

func TestHealthHandler_ChecksRunConcurrently(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())

	var inFlight, peak atomic.Int32
	slow := func(context.Context) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}
	h.RegisterCheck(NewFuncCheck("a", slow))
	h.RegisterCheck(NewFuncCheck("b", slow))
	h.RegisterCheck(NewFuncCheck("c", slow))

	code, status := getHealth(t, h.HandleReady, "/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, status.Checks, 3)
	assert.Greater(t, peak.Load(), int32(1))
}

func TestHealthHandler_ReadyTimeout(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.timeout = 20 * time.Millisecond
	h.RegisterCheck(NewFuncCheck("storage", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	code, status := getHealth(t, h.HandleReady, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["storage"].Message)
}

// =============================================================================
// 🧪 版本与路由
// =============================================================================

func TestHealthHandler_HandleVersion(t *testing.T) {
	h := NewHealthHandler(nil)

	w := httptest.NewRecorder()
	h.HandleVersion("1.2.0", "2026-01-01T00:00:00Z", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.2.0", data["version"])
	assert.Equal(t, "2026-01-01T00:00:00Z", data["build_time"])
	assert.Equal(t, "abc123", data["git_commit"])
}

func TestHealthHandler_Routes(t *testing.T) {
	h := NewHealthHandler(nil)
	mux := http.NewServeMux()
	h.Routes(mux, "dev", "", "")

	for _, path := range []string{"/health", "/healthz", "/ready", "/readyz", "/version"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
