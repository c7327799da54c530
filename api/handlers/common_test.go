package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/browserflow/storage"
	"github.com/BaSui01/browserflow/types"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// =============================================================================
// 🧪 响应信封
// =============================================================================

func TestWriteJSON_Headers(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, []string{"s1", "s2"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `["s1","s2"]`, w.Body.String())
}

func TestWriteSuccess_EchoesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(RequestIDHeader, "req-42")

	WriteSuccess(w, map[string]int{"pairs": 3})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Nil(t, resp.Error)
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()
	WriteCreated(w, map[string]string{"id": "s1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.RequestID)
}

// =============================================================================
// 🧪 错误响应
// =============================================================================

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        *types.Error
		wantStatus int
		wantLevel  zapcore.Level
	}{
		{
			name:       "rejected tab op",
			err:        types.NewError(types.ErrLastTab, "cannot close the last tab"),
			wantStatus: http.StatusBadRequest,
			wantLevel:  zapcore.WarnLevel,
		},
		{
			name:       "explicit status wins",
			err:        types.NewError(types.ErrInvalidRequest, "nope").WithHTTPStatus(http.StatusTeapot),
			wantStatus: http.StatusTeapot,
			wantLevel:  zapcore.WarnLevel,
		},
		{
			name:       "launch failure",
			err:        types.NewFatalError(types.ErrBrowserLaunch, "chrome not found").WithCause(errors.New("exec: not found")),
			wantStatus: http.StatusBadGateway,
			wantLevel:  zapcore.ErrorLevel,
		},
		{
			name:       "advisory",
			err:        types.NewAdvisoryError(types.ErrNotPaused, "not paused"),
			wantStatus: http.StatusConflict,
			wantLevel:  zapcore.DebugLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			w := httptest.NewRecorder()

			WriteError(w, tt.err, zap.New(core))

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
			assert.Equal(t, string(tt.err.Severity), resp.Error.Severity)

			require.Equal(t, 1, logs.Len())
			assert.Equal(t, tt.wantLevel, logs.All()[0].Level)
		})
	}
}

func TestWriteError_NilLogger(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, types.NewError(types.ErrSessionNotFound, "gone"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWriteErr_MapsStorageErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"not found", fmt.Errorf("read x: %w", storage.ErrNotFound), http.StatusNotFound, types.ErrNotFound},
		{"invalid input", fmt.Errorf("%w: bad name", storage.ErrInvalidInput), http.StatusBadRequest, types.ErrInvalidRequest},
		{"typed error passes through", types.NewError(types.ErrLastTab, "last tab"), http.StatusBadRequest, types.ErrLastTab},
		{"wrapped typed error", fmt.Errorf("close tab: %w", types.NewError(types.ErrIndexOutOfRange, "index 7")), http.StatusBadRequest, types.ErrIndexOutOfRange},
		{"plain error", errors.New("disk on fire"), http.StatusInternalServerError, types.ErrInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErr(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.Equal(t, string(tt.wantCode), resp.Error.Code)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrIndexOutOfRange, http.StatusBadRequest},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrSessionNotFound, http.StatusNotFound},
		{types.ErrAlreadyRunning, http.StatusConflict},
		{types.ErrNotPaused, http.StatusConflict},
		{types.ErrNoActivePage, http.StatusUnprocessableEntity},
		{types.ErrTooManySessions, http.StatusTooManyRequests},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrBrowserLaunch, http.StatusBadGateway},
		{types.ErrInterpreterFailed, http.StatusInternalServerError},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.code), string(tt.code))
	}
}

// =============================================================================
// 🧪 请求体解码
// =============================================================================

type decodeTarget struct {
	FileName string `json:"fileName"`
	Index    int    `json:"index"`
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantStatus int
	}{
		{name: "valid", body: `{"fileName":"login","index":2}`},
		{name: "trailing newline", body: "{\"fileName\":\"login\"}\n"},
		{name: "syntax error", body: `{"fileName":"login",}`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"fileName":"login","extra":1}`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "two objects", body: `{"index":1}{"index":2}`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "empty", body: "", wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "too large", body: `{"fileName":"` + strings.Repeat("x", 2<<20) + `"}`, wantErr: true, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(tt.body))

			var dst decodeTarget
			err := DecodeJSONBody(w, r, &dst, zap.NewNop())
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "login", dst.FileName)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, string(types.ErrInvalidRequest), decodeResponse(t, w).Error.Code)
		})
	}
}

func TestDecodeOptionalJSONBody(t *testing.T) {
	t.Run("no body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/v1/recordings/login/runs", nil)

		dst := decodeTarget{Index: 7}
		require.NoError(t, DecodeOptionalJSONBody(w, r, &dst, nil))
		assert.Equal(t, 7, dst.Index, "target untouched")
		assert.Equal(t, 0, w.Body.Len(), "nothing written")
	})

	t.Run("chunked empty body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		r.ContentLength = -1

		var dst decodeTarget
		assert.NoError(t, DecodeOptionalJSONBody(w, r, &dst, nil))
	})

	t.Run("bad body still rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))

		var dst decodeTarget
		assert.Error(t, DecodeOptionalJSONBody(w, r, &dst, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// =============================================================================
// 🧪 ResponseWriter
// =============================================================================

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.Equal(t, http.StatusCreated, rec.Code)

	n, err := rw.Write([]byte("frame"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.EqualValues(t, 5, rw.Bytes)

	assert.Same(t, rw, NewResponseWriter(rw), "already wrapped")
	assert.Same(t, rec, rw.Unwrap())
}

func TestResponseWriter_ImplicitOK(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())
	_, _ = rw.Write([]byte("{}"))
	assert.True(t, rw.Written)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
}
