package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/browser"
	"github.com/BaSui01/browserflow/driver"
	"github.com/BaSui01/browserflow/internal/ctxkeys"
	"github.com/BaSui01/browserflow/interpret"
	"github.com/BaSui01/browserflow/internal/metrics"
	"github.com/BaSui01/browserflow/internal/telemetry"
	"github.com/BaSui01/browserflow/storage"
	"github.com/BaSui01/browserflow/types"
)

// =============================================================================
// ⏩ 无人值守运行
// =============================================================================

// RunnerConfig 无人值守运行参数
type RunnerConfig struct {
	Launch  driver.LaunchOptions
	Session browser.SessionConfig
	// Timeout 单次运行上限，0 表示不限
	Timeout time.Duration
}

// Runner 在一次性浏览器中回放已保存的录制并持久化结果
type Runner struct {
	launcher   driver.Launcher
	recordings *storage.RecordingRepository
	runs       *storage.RunRepository
	config     RunnerConfig
	metrics    *metrics.Collector
	logger     *zap.Logger
	tracer     trace.Tracer
	otelRuns   *telemetry.RunInstruments
}

// NewRunner creates a runner. collector may be nil.
func NewRunner(launcher driver.Launcher, recordings *storage.RecordingRepository, runs *storage.RunRepository, cfg RunnerConfig, collector *metrics.Collector, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "runner"))

	instruments, err := telemetry.NewRunInstruments(telemetry.Meter())
	if err != nil {
		logger.Warn("otel run instruments unavailable", zap.Error(err))
	}
	return &Runner{
		launcher:   launcher,
		recordings: recordings,
		runs:       runs,
		config:     cfg,
		metrics:    collector,
		logger:     logger,
		tracer:     telemetry.Tracer(),
		otelRuns:   instruments,
	}
}

// Run replays the recording called name to completion. The returned Run is
// persisted in its final state; a failed or aborted replay is reported through
// Run.Status, not through the error.
func (r *Runner) Run(ctx context.Context, name string, opts interpret.Options) (storage.Run, error) {
	ctx, span := r.tracer.Start(ctx, "browserflow.run", trace.WithAttributes(
		attribute.String("recording.name", name),
	))
	defer span.End()

	rec, err := r.recordings.Get(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recording unavailable")
		return storage.Run{}, recordingError(name, err)
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	session := browser.NewRemoteSession("run-"+uuid.NewString(), r.launcher, nil, r.config.Session, r.metrics, r.logger)
	run := storage.NewRun(name, session.ID(), opts)
	span.SetAttributes(attribute.String("run.id", run.RunID))
	ctx = ctxkeys.WithRunID(ctxkeys.WithSessionID(ctx, session.ID()), run.RunID)
	logger := r.logger.With(append(ctxkeys.Fields(ctx), zap.String("recording", name))...)

	if err := session.Initialize(ctx, r.config.Launch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "browser launch failed")
		return run, err
	}
	defer func() {
		// 运行 ctx 可能已超时，关闭浏览器用独立 ctx
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := session.SwitchOff(closeCtx); err != nil {
			logger.Warn("switch off after run failed", zap.Error(err))
		}
	}()

	if err := r.runs.Save(ctx, run); err != nil {
		logger.Warn("persist running state failed", zap.Error(err))
	}

	logger.Info("unattended run started", zap.Int("pairs", len(rec.Recording.Workflow)))
	sum, runErr := session.Controller().RunToCompletion(ctx, rec.Recording.Workflow, session.CurrentPage(), opts)
	run.Complete(sum, time.Now())
	elapsed := run.FinishedAt.Sub(run.StartedAt)
	r.metrics.RecordRun(string(run.Status), elapsed)
	r.otelRuns.Record(ctx, name, string(run.Status), elapsed)

	span.SetAttributes(attribute.String("run.status", string(run.Status)))
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, string(run.Status))
	}

	// 结果落盘不受运行超时影响
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.runs.Save(saveCtx, run); err != nil {
		logger.Error("persist run failed", zap.Error(err))
		return run, types.NewFatalError(types.ErrInternalError, "failed to persist run").WithCause(err)
	}

	logger.Info("unattended run finished",
		zap.String("status", string(run.Status)),
		zap.String("duration", run.Duration),
	)
	return run, nil
}

func recordingError(name string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return types.NewError(types.ErrNotFound, fmt.Sprintf("recording %q not found", name)).WithCause(err)
	case errors.Is(err, storage.ErrInvalidInput):
		return types.NewError(types.ErrInvalidRequest, "invalid recording name").WithCause(err)
	default:
		return types.NewFatalError(types.ErrInternalError, "failed to load recording").WithCause(err)
	}
}
