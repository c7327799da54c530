package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/interpret"
	"github.com/BaSui01/browserflow/storage"
	"github.com/BaSui01/browserflow/types"
)

// =============================================================================
// 📼 录制与运行 Handler
// =============================================================================

// RecordingRunner 回放已保存的录制，control.Runner 实现此接口
type RecordingRunner interface {
	Run(ctx context.Context, name string, opts interpret.Options) (storage.Run, error)
}

// RecordingHandler 录制列表、读取、删除与无人值守运行
type RecordingHandler struct {
	recordings *storage.RecordingRepository
	runs       *storage.RunRepository
	runner     RecordingRunner
	defaults   interpret.Options
	logger     *zap.Logger
}

// NewRecordingHandler creates a recording handler. runner may be nil, in
// which case run requests are rejected.
func NewRecordingHandler(recordings *storage.RecordingRepository, runs *storage.RunRepository, runner RecordingRunner, defaults interpret.Options, logger *zap.Logger) *RecordingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordingHandler{
		recordings: recordings,
		runs:       runs,
		runner:     runner,
		defaults:   defaults,
		logger:     logger.With(zap.String("component", "recording_handler")),
	}
}

// RunRequest 运行参数，零值字段使用服务默认值
type RunRequest struct {
	MaxRepeats     int            `json:"maxRepeats,omitempty"`
	MaxConcurrency int            `json:"maxConcurrency,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
	Debug          bool           `json:"debug,omitempty"`
}

func (h *RecordingHandler) options(req RunRequest) interpret.Options {
	opts := h.defaults
	if req.MaxRepeats > 0 {
		opts.MaxRepeats = req.MaxRepeats
	}
	if req.MaxConcurrency > 0 {
		opts.MaxConcurrency = req.MaxConcurrency
	}
	if req.Params != nil {
		opts.Params = req.Params
	}
	opts.Debug = opts.Debug || req.Debug
	return opts
}

// HandleList 处理 GET /api/v1/recordings
func (h *RecordingHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	metas, err := h.recordings.List(r.Context())
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"recordings": metas})
}

// HandleGet 处理 GET /api/v1/recordings/{name}
func (h *RecordingHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recordings.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, rec)
}

// HandleDelete 处理 DELETE /api/v1/recordings/{name}
func (h *RecordingHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.recordings.Delete(r.Context(), name); err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	h.logger.Info("recording deleted", zap.String("name", name))
	WriteSuccess(w, map[string]string{"name": name, "status": "deleted"})
}

// HandleListRuns 处理 GET /api/v1/recordings/{name}/runs
func (h *RecordingHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.List(r.Context(), r.PathValue("name"))
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"runs": runs})
}

// HandleGetRun 处理 GET /api/v1/recordings/{name}/runs/{runId}
func (h *RecordingHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), r.PathValue("name"), r.PathValue("runId"))
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, run)
}

// HandleRun 处理 POST /api/v1/recordings/{name}/runs，同步执行到结束
func (h *RecordingHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrInternalError, "runner not configured", h.logger)
		return
	}

	var req RunRequest
	if err := DecodeOptionalJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	run, err := h.runner.Run(r.Context(), r.PathValue("name"), h.options(req))
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteCreated(w, run)
}

// Routes 注册录制与运行路由
func (h *RecordingHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/recordings", h.HandleList)
	mux.HandleFunc("GET /api/v1/recordings/{name}", h.HandleGet)
	mux.HandleFunc("DELETE /api/v1/recordings/{name}", h.HandleDelete)
	mux.HandleFunc("GET /api/v1/recordings/{name}/runs", h.HandleListRuns)
	mux.HandleFunc("POST /api/v1/recordings/{name}/runs", h.HandleRun)
	mux.HandleFunc("GET /api/v1/recordings/{name}/runs/{runId}", h.HandleGetRun)
}
