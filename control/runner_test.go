package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/browserflow/browser"
	"github.com/BaSui01/browserflow/driver"
	"github.com/BaSui01/browserflow/interpret"
	"github.com/BaSui01/browserflow/storage"
	"github.com/BaSui01/browserflow/testutil/mocks"
	"github.com/BaSui01/browserflow/types"
	"github.com/BaSui01/browserflow/workflow"
)

type runnerFixture struct {
	runner     *Runner
	launcher   *mocks.MockLauncher
	recordings *storage.RecordingRepository
	runs       *storage.RunRepository
}

func newRunnerFixture(t *testing.T, timeout time.Duration, run func(ctx context.Context, page driver.Page, wf workflow.Workflow, opts interpret.Options, hooks interpret.Hooks) error) *runnerFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	f := &runnerFixture{
		launcher:   mocks.NewMockLauncher(),
		recordings: storage.NewRecordingRepository(store),
		runs:       storage.NewRunRepository(store),
	}

	sessionCfg := browser.DefaultSessionConfig()
	sessionCfg.Interpreter = func() interpret.Interpreter { return &testInterpreter{runFn: run} }
	f.runner = NewRunner(f.launcher, f.recordings, f.runs, RunnerConfig{
		Launch:  driver.LaunchOptions{Headless: true, Viewport: driver.Viewport{Width: 800, Height: 600}},
		Session: sessionCfg,
		Timeout: timeout,
	}, nil, nil)

	_, err := f.recordings.Save(context.Background(), workflow.Recording{
		Meta: workflow.RecordingMeta{Name: "scrape-title"},
		Recording: workflow.RecordingBody{Workflow: workflow.Workflow{{
			Where: workflow.Where{Selectors: []string{"h1"}},
			What:  []workflow.Action{{Action: workflow.ActionScrape, Args: []any{"h1"}}},
		}}},
	})
	require.NoError(t, err)
	return f
}

func TestRunner_Success(t *testing.T) {
	var gotPairs int
	f := newRunnerFixture(t, 0, func(ctx context.Context, _ driver.Page, wf workflow.Workflow, _ interpret.Options, hooks interpret.Hooks) error {
		gotPairs = len(wf)
		hooks.Serializable(map[string]any{"h1": "Example Domain"})
		hooks.Binary([]byte{0xff, 0xd8}, "image/jpeg")
		return nil
	})

	run, err := f.runner.Run(context.Background(), "scrape-title", interpret.Options{MaxRepeats: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, gotPairs)
	assert.Equal(t, storage.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.InterpreterSettings.MaxRepeats)
	assert.Contains(t, run.SerializableOutput, "item-0")
	assert.Equal(t, "image/jpeg", run.BinaryOutput["item-0"].MimeType)
	assert.NotEmpty(t, run.Duration)

	stored, err := f.runs.Get(context.Background(), "scrape-title", run.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusSuccess, stored.Status)

	assert.Equal(t, 1, f.launcher.LastBrowser().CloseCalls(), "throwaway browser is closed")
}

func TestRunner_RecordingNotFound(t *testing.T) {
	f := newRunnerFixture(t, 0, nil)

	_, err := f.runner.Run(context.Background(), "missing", interpret.Options{})
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
	assert.Equal(t, 0, f.launcher.LaunchCount())

	_, err = f.runner.Run(context.Background(), "../bad", interpret.Options{})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestRunner_InterpreterFailureIsPersisted(t *testing.T) {
	f := newRunnerFixture(t, 0, func(context.Context, driver.Page, workflow.Workflow, interpret.Options, interpret.Hooks) error {
		return errors.New("selector vanished")
	})

	run, err := f.runner.Run(context.Background(), "scrape-title", interpret.Options{})
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusFailed, run.Status)
	require.NotEmpty(t, run.Log)
	assert.Contains(t, run.Log[len(run.Log)-1], "selector vanished")

	runs, err := f.runs.List(context.Background(), "scrape-title")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.RunStatusFailed, runs[0].Status)
}

func TestRunner_TimeoutAborts(t *testing.T) {
	f := newRunnerFixture(t, 20*time.Millisecond, func(ctx context.Context, _ driver.Page, _ workflow.Workflow, _ interpret.Options, _ interpret.Hooks) error {
		<-ctx.Done()
		return ctx.Err()
	})

	run, err := f.runner.Run(context.Background(), "scrape-title", interpret.Options{})
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusAborted, run.Status)

	stored, err := f.runs.Get(context.Background(), "scrape-title", run.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusAborted, stored.Status)
}

func TestRunner_LaunchFailure(t *testing.T) {
	f := newRunnerFixture(t, 0, nil)
	f.launcher.WithLaunchError(errors.New("chrome not found"))

	_, err := f.runner.Run(context.Background(), "scrape-title", interpret.Options{})
	require.Error(t, err)
	assert.True(t, types.IsFatal(err))

	runs, listErr := f.runs.List(context.Background(), "scrape-title")
	require.NoError(t, listErr)
	assert.Empty(t, runs)
}
