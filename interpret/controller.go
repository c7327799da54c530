package interpret

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/browserflow/driver"
	"github.com/BaSui01/browserflow/internal/metrics"
	"github.com/BaSui01/browserflow/transport"
	"github.com/BaSui01/browserflow/types"
	"github.com/BaSui01/browserflow/workflow"
	"go.uber.org/zap"
)

const logTimeFormat = "2006-01-02 15:04:05"

// run 单次回放的会话状态
type run struct {
	interp Interpreter
	cancel context.CancelFunc
	done   chan struct{}

	activeIndex int
	signal      *resumeSignal
	outputs     *outputs
	aborted     bool
}

// outputs 聚合调试日志与输出
type outputs struct {
	mu           sync.Mutex
	log          []string
	serializable map[string]any
	binary       map[string]BinaryOutput
	serialSeq    int
	binarySeq    int
	now          func() time.Time
}

func newOutputs(now func() time.Time) *outputs {
	return &outputs{
		serializable: make(map[string]any),
		binary:       make(map[string]BinaryOutput),
		now:          now,
	}
}

func (o *outputs) debug(message string) string {
	line := fmt.Sprintf("[%s] %s", o.now().Format(logTimeFormat), message)
	o.mu.Lock()
	o.log = append(o.log, line)
	o.mu.Unlock()
	return line
}

func (o *outputs) addSerializable(data any) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := itemKey(o.serialSeq)
	o.serialSeq++
	o.serializable[key] = data
	return key
}

func (o *outputs) addBinary(data []byte, mimeType string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := itemKey(o.binarySeq)
	o.binarySeq++
	o.binary[key] = BinaryOutput{MimeType: mimeType, Data: append([]byte(nil), data...)}
	return key
}

func (o *outputs) summary(status string) Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Summary{
		Log:                append([]string(nil), o.log...),
		Status:             status,
		SerializableOutput: make(map[string]any, len(o.serializable)),
		BinaryOutput:       make(map[string]BinaryOutput, len(o.binary)),
	}
	for k, v := range o.serializable {
		s.SerializableOutput[k] = v
	}
	for k, v := range o.binary {
		s.BinaryOutput[k] = v
	}
	return s
}

// Controller 回放控制器，每个会话一个
type Controller struct {
	newInterpreter Factory
	channel        transport.Channel
	metrics        *metrics.Collector
	logger         *zap.Logger
	now            func() time.Time

	mu             sync.Mutex
	state          State
	breakpoints    map[int]bool
	pauseRequested bool
	current        *run
}

// NewController creates a controller. channel and collector may be nil.
func NewController(factory Factory, channel transport.Channel, collector *metrics.Collector, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		newInterpreter: factory,
		channel:        channel,
		metrics:        collector,
		logger:         logger.With(zap.String("component", "interpretation_controller")),
		now:            time.Now,
		state:          StateIdle,
		breakpoints:    make(map[int]bool),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveIndex returns the executing pair index, or -1.
func (c *Controller) ActiveIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return -1
	}
	return c.current.activeIndex
}

// Breakpoints returns the breakpoint indices.
func (c *Controller) Breakpoints() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.breakpoints))
	for i := range c.breakpoints {
		out = append(out, i)
	}
	return out
}

// setStateLocked 调用方持有 c.mu
func (c *Controller) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.metrics.RecordInterpretationTransition(string(from), string(to))
	c.logger.Debug("state transition", zap.String("from", string(from)), zap.String("to", string(to)))
}

func (c *Controller) send(ctx context.Context, ev transport.ServerEvent) {
	if c.channel == nil {
		return
	}
	if err := c.channel.Send(context.WithoutCancel(ctx), ev); err != nil {
		c.logger.Debug("event delivery failed", zap.String("event", ev.EventName()), zap.Error(err))
	}
}

// =============================================================================
// ▶️ 交互式回放
// =============================================================================

// Run executes wf on page and blocks until the run finishes or is stopped.
// A run stopped through Stop returns nil with State() == StateAborted.
func (c *Controller) Run(ctx context.Context, wf workflow.Workflow, page driver.Page, opts Options) error {
	if page == nil {
		return types.NewError(types.ErrNoActivePage, "no page to interpret on")
	}

	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		c.logger.Warn("run rejected, interpretation in progress")
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		interp:      c.newInterpreter(),
		cancel:      cancel,
		done:        make(chan struct{}),
		activeIndex: -1,
		outputs:     newOutputs(c.now),
	}
	c.current = r
	c.pauseRequested = false
	c.setStateLocked(StateRunning)
	c.mu.Unlock()

	defer close(r.done)
	defer cancel()

	c.logger.Info("interpretation started", zap.Int("pairs", len(wf)))
	c.send(ctx, transport.InterpretationState{State: string(StateRunning)})
	c.send(ctx, transport.Log{Message: "interpretation started"})

	err := r.interp.Run(runCtx, page, wf, opts, c.hooks(runCtx, r))

	c.mu.Lock()
	if r.aborted || c.current != r {
		c.mu.Unlock()
		return nil
	}
	c.current = nil
	c.pauseRequested = false
	if err != nil {
		c.setStateLocked(StateAborted)
		c.mu.Unlock()

		c.logger.Error("interpretation failed", zap.Error(err))
		c.send(ctx, transport.ActivePairID{Index: -1})
		c.send(ctx, transport.Log{Message: "interpretation failed: " + err.Error()})
		c.send(ctx, transport.InterpretationState{State: string(StateAborted)})
		return types.NewError(types.ErrInterpreterFailed, "interpretation failed").WithCause(err)
	}
	c.setStateLocked(StateFinished)
	c.mu.Unlock()

	c.logger.Info("interpretation finished")
	c.send(ctx, transport.ActivePairID{Index: -1})
	c.send(ctx, transport.Finished{})
	c.send(ctx, transport.InterpretationState{State: string(StateFinished)})
	return nil
}

func (c *Controller) hooks(ctx context.Context, r *run) Hooks {
	return Hooks{
		ActivePair: func(index int) {
			c.mu.Lock()
			r.activeIndex = index
			c.mu.Unlock()
			c.send(ctx, transport.ActivePairID{Index: index})
		},
		Debug: func(message string) {
			c.send(ctx, transport.DebugMessage{Message: r.outputs.debug(message)})
		},
		Serializable: func(data any) {
			r.outputs.addSerializable(data)
			c.send(ctx, transport.SerializableCallback{Data: data})
		},
		Binary: func(data []byte, mimeType string) {
			r.outputs.addBinary(data, mimeType)
			c.send(ctx, transport.BinaryCallback{Data: data, MimeType: mimeType})
		},
		Flag: func(flagCtx context.Context) error {
			return c.atFlag(flagCtx, r)
		},
	}
}

// atFlag 在 flag 点决定继续还是暂停
func (c *Controller) atFlag(ctx context.Context, r *run) error {
	c.mu.Lock()
	if c.current != r || r.aborted {
		c.mu.Unlock()
		return ctx.Err()
	}
	index := r.activeIndex
	breakpoint := c.breakpoints[index]
	if !breakpoint && !c.pauseRequested {
		c.mu.Unlock()
		return nil
	}
	sig := newResumeSignal()
	r.signal = sig
	c.setStateLocked(StatePaused)
	c.mu.Unlock()

	c.logger.Info("interpretation paused", zap.Int("pair_index", index), zap.Bool("breakpoint", breakpoint))
	if breakpoint {
		c.send(ctx, transport.BreakpointHit{Index: index})
	}
	c.send(ctx, transport.InterpretationState{State: string(StatePaused)})

	return sig.wait(ctx)
}

// Resume continues a paused run and clears the pause request.
func (c *Controller) Resume() error {
	return c.release(false)
}

// Step continues a paused run up to the next flag point.
func (c *Controller) Step() error {
	return c.release(true)
}

func (c *Controller) release(keepPaused bool) error {
	c.mu.Lock()
	r := c.current
	if c.state != StatePaused || r == nil || r.signal == nil {
		c.mu.Unlock()
		c.logger.Warn("resume rejected, not paused", zap.Bool("step", keepPaused))
		return ErrNotPaused
	}
	sig := r.signal
	r.signal = nil
	c.pauseRequested = keepPaused
	c.setStateLocked(StateRunning)
	c.mu.Unlock()

	sig.fire()
	c.send(context.Background(), transport.InterpretationState{State: string(StateRunning)})
	return nil
}

// Pause requests a pause at the next flag point. Without a run in progress
// the request is dropped.
func (c *Controller) Pause() {
	c.mu.Lock()
	if !c.state.Active() {
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("pause ignored, not running", zap.String("state", string(state)))
		return
	}
	c.pauseRequested = true
	c.mu.Unlock()
	c.logger.Debug("pause requested")
}

// SetBreakpoints replaces the breakpoint set; list[i] marks pair index i.
func (c *Controller) SetBreakpoints(list []bool) {
	set := make(map[int]bool)
	for i, on := range list {
		if on {
			set[i] = true
		}
	}
	c.mu.Lock()
	c.breakpoints = set
	c.mu.Unlock()
}

// SetBreakpointIndices replaces the breakpoint set with indices.
func (c *Controller) SetBreakpointIndices(indices []int) {
	set := make(map[int]bool, len(indices))
	for _, i := range indices {
		set[i] = true
	}
	c.mu.Lock()
	c.breakpoints = set
	c.mu.Unlock()
}

// Stop aborts the current run, even while paused, and waits for it to unwind.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	r := c.current
	if !c.state.Active() || r == nil {
		c.mu.Unlock()
		c.logger.Warn("stop rejected, nothing is running")
		return ErrNotRunning
	}
	r.aborted = true
	c.setStateLocked(StateAborted)
	c.mu.Unlock()

	stopErr := r.interp.Stop(ctx)
	r.cancel()

	select {
	case <-r.done:
	case <-ctx.Done():
		c.logger.Warn("stop did not observe run exit", zap.Error(ctx.Err()))
	}

	c.mu.Lock()
	if c.current == r {
		c.current = nil
	}
	c.pauseRequested = false
	c.mu.Unlock()

	c.logger.Info("interpretation aborted")
	c.send(ctx, transport.ActivePairID{Index: -1})
	c.send(ctx, transport.InterpretationState{State: string(StateAborted)})

	if stopErr != nil {
		return types.NewError(types.ErrInterpreterFailed, "engine stop failed").WithCause(stopErr)
	}
	return nil
}

// =============================================================================
// ⏩ 无人值守回放
// =============================================================================

// RunToCompletion executes wf without pause semantics and returns the
// aggregated output. It does not touch the interactive state.
func (c *Controller) RunToCompletion(ctx context.Context, wf workflow.Workflow, page driver.Page, opts Options) (Summary, error) {
	return RunToCompletion(ctx, c.newInterpreter(), wf, page, opts, c.logger)
}

// RunToCompletion drives interp over wf with pause-free hooks.
func RunToCompletion(ctx context.Context, interp Interpreter, wf workflow.Workflow, page driver.Page, opts Options, logger *zap.Logger) (Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := newOutputs(time.Now)
	hooks := Hooks{
		ActivePair:   func(int) {},
		Debug:        func(m string) { out.debug(m) },
		Serializable: func(d any) { out.addSerializable(d) },
		Binary:       func(d []byte, mt string) { out.addBinary(d, mt) },
		Flag:         func(context.Context) error { return nil },
	}

	err := interp.Run(ctx, page, wf, opts, hooks)
	switch {
	case err == nil:
		return out.summary(StatusSuccess), nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		logger.Warn("unattended run aborted", zap.Error(err))
		out.debug("run aborted: " + err.Error())
		return out.summary(StatusAborted), err
	default:
		logger.Error("unattended run failed", zap.Error(err))
		out.debug("run failed: " + err.Error())
		return out.summary(StatusFailed), types.NewError(types.ErrInterpreterFailed, "run failed").WithCause(err)
	}
}
