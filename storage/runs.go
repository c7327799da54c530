package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/browserflow/interpret"
	"github.com/google/uuid"
)

// RunStatus 运行状态
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusAborted RunStatus = "aborted"
)

// Run 一次无人值守运行的持久化记录
type Run struct {
	Status              RunStatus                         `json:"status"`
	Name                string                            `json:"name"`
	StartedAt           time.Time                         `json:"startedAt"`
	FinishedAt          time.Time                         `json:"finishedAt"`
	Duration            string                            `json:"duration,omitempty"`
	BrowserID           string                            `json:"browserId"`
	InterpreterSettings interpret.Options                 `json:"interpreterSettings"`
	Log                 []string                          `json:"log"`
	RunID               string                            `json:"runId"`
	SerializableOutput  map[string]any                    `json:"serializableOutput"`
	BinaryOutput        map[string]interpret.BinaryOutput `json:"binaryOutput"`
}

// NewRun starts a run record for the recording called name.
func NewRun(name, browserID string, settings interpret.Options) Run {
	return Run{
		Status:              RunStatusRunning,
		Name:                name,
		StartedAt:           time.Now().UTC(),
		BrowserID:           browserID,
		InterpreterSettings: settings,
		RunID:               uuid.NewString(),
		Log:                 []string{},
	}
}

// Complete fills the outcome from an unattended run summary.
func (r *Run) Complete(sum interpret.Summary, finishedAt time.Time) {
	r.Status = RunStatus(sum.Status)
	r.FinishedAt = finishedAt.UTC()
	r.Duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
	r.Log = sum.Log
	r.SerializableOutput = sum.SerializableOutput
	r.BinaryOutput = sum.BinaryOutput
}

// RunRepository 运行记录仓库
type RunRepository struct {
	store Store
}

// NewRunRepository creates a repository over store.
func NewRunRepository(store Store) *RunRepository {
	return &RunRepository{store: store}
}

func runPath(name, runID string) string { return runsDir + name + "_" + runID + runSuffix }

// Save writes run.
func (r *RunRepository) Save(ctx context.Context, run Run) error {
	if err := ValidateName(run.Name); err != nil {
		return err
	}
	if run.RunID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	return r.store.Write(ctx, runPath(run.Name, run.RunID), data)
}

// Get loads one run.
func (r *RunRepository) Get(ctx context.Context, name, runID string) (Run, error) {
	var run Run
	if err := ValidateName(name); err != nil {
		return run, err
	}
	data, err := r.store.Read(ctx, runPath(name, runID))
	if err != nil {
		return run, err
	}
	if err := json.Unmarshal(data, &run); err != nil {
		return run, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return run, nil
}

// List returns the runs of the recording called name, newest first.
func (r *RunRepository) List(ctx context.Context, name string) ([]Run, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	paths, err := r.store.List(ctx, runsDir+name+"_")
	if err != nil {
		return nil, err
	}
	runs := make([]Run, 0, len(paths))
	for _, p := range paths {
		runID, ok := strings.CutSuffix(strings.TrimPrefix(p, runsDir+name+"_"), runSuffix)
		if !ok {
			continue
		}
		run, err := r.Get(ctx, name, runID)
		if err != nil || run.Name != name {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}
