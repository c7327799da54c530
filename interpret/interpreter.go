package interpret

import (
	"context"
	"fmt"

	"github.com/BaSui01/browserflow/driver"
	"github.com/BaSui01/browserflow/types"
	"github.com/BaSui01/browserflow/workflow"
)

// State 回放状态
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateFinished State = "finished"
	StateAborted  State = "aborted"
)

// Active reports whether a run is in flight.
func (s State) Active() bool { return s == StateRunning || s == StatePaused }

var (
	// ErrNotRunning is returned by Stop when nothing is running.
	ErrNotRunning = types.NewError(types.ErrNotRunning, "interpretation is not running")
	// ErrAlreadyRunning is returned by Run while another run is in flight.
	ErrAlreadyRunning = types.NewError(types.ErrAlreadyRunning, "interpretation already running")
	// ErrNotPaused is returned by Resume/Step without an outstanding pause.
	ErrNotPaused = types.NewError(types.ErrNotPaused, "interpretation is not paused")
)

// Options 回放参数
type Options struct {
	// MaxRepeats 单个 Pair 最多执行次数，<=0 视为 1
	MaxRepeats int            `json:"maxRepeats,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	// MaxConcurrency 保留给支持多页并发的引擎
	MaxConcurrency int  `json:"maxConcurrency,omitempty"`
	Debug          bool `json:"debug,omitempty"`
}

// Hooks are the callbacks an Interpreter reports through.
type Hooks struct {
	ActivePair   func(index int)
	Debug        func(message string)
	Serializable func(data any)
	Binary       func(data []byte, mimeType string)
	// Flag blocks until execution may continue past a flag marker.
	Flag func(ctx context.Context) error
}

// Interpreter executes a workflow against a page.
type Interpreter interface {
	Run(ctx context.Context, page driver.Page, wf workflow.Workflow, opts Options, hooks Hooks) error
	Stop(ctx context.Context) error
}

// Factory creates one Interpreter per run.
type Factory func() Interpreter

// BinaryOutput is one binary item produced by a run.
type BinaryOutput struct {
	MimeType string `json:"mimetype"`
	Data     []byte `json:"data"`
}

// Run status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
)

// Summary 无人值守运行结果
type Summary struct {
	Log                []string                `json:"log"`
	Status             string                  `json:"status"`
	SerializableOutput map[string]any          `json:"serializableOutput"`
	BinaryOutput       map[string]BinaryOutput `json:"binaryOutput"`
}

func itemKey(n int) string { return fmt.Sprintf("item-%d", n) }
