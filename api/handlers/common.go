package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/storage"
	"github.com/BaSui01/browserflow/types"
)

// RequestIDHeader 请求 id 头，由中间件写入响应并回填到响应体
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes 请求体上限（录制文件可能较大）
const maxBodyBytes = 1 << 20

// =============================================================================
// 📦 响应信封
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误详情，severity 对应 fatal / rejected / advisory
type ErrorInfo struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
}

// WriteJSON 写入任意 JSON 值
func WriteJSON(w http.ResponseWriter, status int, data any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 头已写出，编码失败无法再改状态码
	_ = json.NewEncoder(w).Encode(data)
}

func writeEnvelope(w http.ResponseWriter, status int, resp Response) {
	resp.Timestamp = time.Now()
	resp.RequestID = w.Header().Get(RequestIDHeader)
	WriteJSON(w, status, resp)
}

// WriteSuccess 写入 200 成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, Response{Success: true, Data: data})
}

// WriteCreated 写入 201 响应
func WriteCreated(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusCreated, Response{Success: true, Data: data})
}

// =============================================================================
// ❌ 错误响应
// =============================================================================

// statusByCode 错误码到 HTTP 状态码，未列出的按 500 处理
var statusByCode = map[types.ErrorCode]int{
	types.ErrInvalidRequest:  http.StatusBadRequest,
	types.ErrIndexOutOfRange: http.StatusBadRequest,
	types.ErrLastTab:         http.StatusBadRequest,

	types.ErrNotFound:        http.StatusNotFound,
	types.ErrSessionNotFound: http.StatusNotFound,

	types.ErrAlreadyRunning: http.StatusConflict,
	types.ErrNotRunning:     http.StatusConflict,
	types.ErrNotPaused:      http.StatusConflict,
	types.ErrNotInitialized: http.StatusConflict,

	types.ErrNoActivePage:    http.StatusUnprocessableEntity,
	types.ErrTooManySessions: http.StatusTooManyRequests,
	types.ErrRateLimited:     http.StatusTooManyRequests,

	types.ErrBrowserLaunch:     http.StatusBadGateway,
	types.ErrScreencastFailure: http.StatusBadGateway,
	types.ErrScreencastStopped: http.StatusBadGateway,
}

// StatusFor 返回错误码对应的 HTTP 状态码
func StatusFor(code types.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError 写出 types.Error；5xx 记 Error，advisory 记 Debug，其余记 Warn
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = StatusFor(err.Code)
	}

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(err.Code)),
			zap.String("severity", string(err.Severity)),
			zap.Int("status", status),
			zap.String("request_id", w.Header().Get(RequestIDHeader)),
		}
		if err.Cause != nil {
			fields = append(fields, zap.Error(err.Cause))
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(err.Message, fields...)
		case err.Severity == types.SeverityAdvisory:
			logger.Debug(err.Message, fields...)
		default:
			logger.Warn(err.Message, fields...)
		}
	}

	writeEnvelope(w, status, Response{
		Error: &ErrorInfo{
			Code:     string(err.Code),
			Message:  err.Message,
			Severity: string(err.Severity),
		},
	})
}

// WriteErr 把任意错误转换为 types.Error 后写出
func WriteErr(w http.ResponseWriter, err error, logger *zap.Logger) {
	WriteError(w, toAPIError(err), logger)
}

// WriteErrorMessage 以指定状态码写出简单错误
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// toAPIError 识别存储层哨兵错误，其余按内部错误处理
func toAPIError(err error) *types.Error {
	if e, ok := types.AsError(err); ok {
		return e
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return types.NewError(types.ErrNotFound, "resource not found").WithCause(err)
	case errors.Is(err, storage.ErrInvalidInput):
		return types.NewError(types.ErrInvalidRequest, err.Error()).WithCause(err)
	default:
		return types.NewFatalError(types.ErrInternalError, "internal error").WithCause(err)
	}
}

// =============================================================================
// 📥 请求体解码
// =============================================================================

var errEmptyBody = errors.New("request body is empty")

// DecodeJSONBody 严格解码单个 JSON 对象；失败时已写出 400
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	return decodeBody(w, r, dst, false, logger)
}

// DecodeOptionalJSONBody 同 DecodeJSONBody，但允许空请求体（dst 保持零值）
func DecodeOptionalJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	return decodeBody(w, r, dst, true, logger)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool, logger *zap.Logger) error {
	var err error
	if r.Body == nil || r.Body == http.NoBody {
		err = errEmptyBody
	} else {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		err = dec.Decode(dst)
		if errors.Is(err, io.EOF) {
			err = errEmptyBody
		} else if err == nil && dec.More() {
			err = errors.New("unexpected data after JSON object")
		}
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errEmptyBody) && optional:
		return nil
	case errors.Is(err, errEmptyBody):
		apiErr := types.NewError(types.ErrInvalidRequest, errEmptyBody.Error())
		WriteError(w, apiErr, logger)
		return apiErr
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		apiErr := types.NewError(types.ErrInvalidRequest, "request body too large").
			WithCause(err).
			WithHTTPStatus(http.StatusRequestEntityTooLarge)
		WriteError(w, apiErr, logger)
		return apiErr
	}
	apiErr := types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err)
	WriteError(w, apiErr, logger)
	return apiErr
}

// =============================================================================
// 📊 响应包装器
// =============================================================================

// ResponseWriter 记录状态码与写出字节数，供日志、指标和追踪中间件使用
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Bytes      int64
	Written    bool
}

// NewResponseWriter 包装 w，默认状态码 200
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader 只记录第一次调用
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.Written {
		return
	}
	rw.StatusCode = code
	rw.Written = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += int64(n)
	return n, err
}

// Unwrap 暴露底层 ResponseWriter，供 http.ResponseController 与 websocket 劫持使用
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
