package agent

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/types"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("agent")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		debugLog.Warnf("Failed to initialize agent logger, using stderr fallback: %v", err)
	}
}

const (
	// DefaultUserID owns the namespaces of a single-user installation.
	DefaultUserID = "local"
	// DefaultWorkspaceID is used when no workspace is configured.
	DefaultWorkspaceID = "default"
	// DefaultEventBuffer is the capacity of the Events channel.
	DefaultEventBuffer = 256
)

// Executor runs one task lineage. It is safe for concurrent use; Execute
// calls are serialized.
type Executor struct {
	deps   Deps
	ctl    *controller
	events chan *types.AgentEvent
	now    func() time.Time

	taskID      string
	userID      string
	workspaceID string
	sessionID   string

	settings config.ExecutorSettings
	ctxCfg   config.ContextSettings
	autonomy int
	policies map[string]bool

	beforeRun []BeforeRunHook
	afterRun  []AfterRunHook

	mu      sync.Mutex
	task    string
	state   State
	history []*types.Message
	runID   string
	steps   int
	running bool
	closed  bool
	last    *Result
}

// Option configures an Executor.
type Option func(*Executor)

// WithTaskID sets the task lineage id. A random id is used by default.
func WithTaskID(id string) Option {
	return func(e *Executor) {
		e.taskID = id
	}
}

// WithUserID sets the owner of every namespace the executor writes.
func WithUserID(id string) Option {
	return func(e *Executor) {
		if id != "" {
			e.userID = id
		}
	}
}

// WithWorkspace sets the workspace the task runs in.
func WithWorkspace(id string) Option {
	return func(e *Executor) {
		if id != "" {
			e.workspaceID = id
		}
	}
}

// WithSession sets the session (thread) id.
func WithSession(id string) Option {
	return func(e *Executor) {
		e.sessionID = id
	}
}

// WithSettings replaces the loop limits and timeouts.
func WithSettings(s config.ExecutorSettings) Option {
	return func(e *Executor) {
		e.settings = s
	}
}

// WithContextSettings sets the token budget and selection options.
func WithContextSettings(s config.ContextSettings) Option {
	return func(e *Executor) {
		e.ctxCfg = s
	}
}

// WithMaxSteps limits navigator steps per run.
func WithMaxSteps(n int) Option {
	return func(e *Executor) {
		e.settings.MaxSteps = n
	}
}

// WithMaxFailures sets how many consecutive failures end a run.
func WithMaxFailures(n int) Option {
	return func(e *Executor) {
		e.settings.MaxFailures = n
	}
}

// WithPlanningInterval sets how many navigator steps run between planner calls.
func WithPlanningInterval(n int) Option {
	return func(e *Executor) {
		e.settings.PlanningInterval = n
	}
}

// WithPauseTimeout ends a paused run with status paused after d. Zero waits
// until resume or cancel.
func WithPauseTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.settings.PauseTimeout = d
	}
}

// WithAutonomy sets the approval policy used when no workspace store is
// available.
func WithAutonomy(level int, standing map[string]bool) Option {
	return func(e *Executor) {
		e.autonomy = level
		e.policies = standing
	}
}

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) Option {
	return func(e *Executor) {
		e.events = make(chan *types.AgentEvent, n)
	}
}

// WithBeforeRun appends a hook that runs after the run context is assembled.
func WithBeforeRun(h BeforeRunHook) Option {
	return func(e *Executor) {
		e.beforeRun = append(e.beforeRun, h)
	}
}

// WithAfterRun appends a hook that runs after the built-in persistence.
func WithAfterRun(h AfterRunHook) Option {
	return func(e *Executor) {
		e.afterRun = append(e.afterRun, h)
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an executor for task.
func NewExecutor(task string, deps Deps, opts ...Option) (*Executor, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, types.NewBadRequestError("task cannot be empty", nil)
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	e := &Executor{
		deps:        deps,
		ctl:         newController(),
		now:         time.Now,
		userID:      DefaultUserID,
		workspaceID: DefaultWorkspaceID,
		settings:    config.DefaultExecutorSettings(),
		ctxCfg:      config.DefaultContextSettings(),
		autonomy:    3,
		task:        task,
		state:       StateIdle,
		history:     []*types.Message{types.NewUserMessage(task).WithMetadata(metaKind, kindTask)},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.taskID == "" {
		e.taskID = uuid.NewString()
	}
	if e.sessionID == "" {
		e.sessionID = e.taskID
	}
	if e.events == nil {
		e.events = make(chan *types.AgentEvent, DefaultEventBuffer)
	}
	if e.settings.MaxSteps <= 0 || e.settings.MaxFailures <= 0 || e.settings.PlanningInterval <= 0 {
		return nil, types.NewBadRequestError("max steps, max failures and planning interval must be positive", nil)
	}
	if e.ctxCfg.TokenLimit <= 0 {
		e.ctxCfg.TokenLimit = config.DefaultContextSettings().TokenLimit
	}
	return e, nil
}

// TaskID returns the lineage id.
func (e *Executor) TaskID() string {
	return e.taskID
}

// WorkspaceID returns the workspace the executor runs in.
func (e *Executor) WorkspaceID() string {
	return e.workspaceID
}

// SessionID returns the session id.
func (e *Executor) SessionID() string {
	return e.sessionID
}

// Task returns the current task text.
func (e *Executor) Task() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task
}

// State returns the current state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Running reports whether Execute or ReplayHistory is in progress.
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// LastResult returns the result of the last finished run, or nil.
func (e *Executor) LastResult() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// History returns a copy of the message history.
func (e *Executor) History() []*types.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*types.Message(nil), e.history...)
}

// Events returns the event stream. It is closed by Close.
func (e *Executor) Events() <-chan *types.AgentEvent {
	return e.events
}

// Pause asks the loop to stop at the next iteration boundary.
func (e *Executor) Pause() error {
	if !e.ctl.pause() {
		return types.NewConflictError("task is already paused or cancelled", nil)
	}
	debugLog.Infof("Task %s pause requested", e.taskID)
	return nil
}

// Resume releases a paused loop.
func (e *Executor) Resume() error {
	if !e.ctl.resume() {
		return types.NewConflictError("task is not paused", nil)
	}
	debugLog.Infof("Task %s resumed", e.taskID)
	return nil
}

// Cancel stops the loop at the next iteration boundary. An in-flight
// inference call finishes first.
func (e *Executor) Cancel() {
	if e.ctl.cancel() {
		debugLog.Infof("Task %s cancel requested", e.taskID)
	}
}

// AddFollowUpTask continues the lineage with a new task on the same
// history. Action results that were not marked for retention are dropped.
// Call Execute to run it.
func (e *Executor) AddFollowUpTask(task string) error {
	task = strings.TrimSpace(task)
	if task == "" {
		return types.NewBadRequestError("follow-up task cannot be empty", nil)
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return types.NewConflictError("task is running", nil)
	}
	kept := e.history[:0:0]
	for _, m := range e.history {
		if retained(m) {
			kept = append(kept, m)
		}
	}
	e.history = append(kept, types.NewUserMessage(task).WithMetadata(metaKind, kindFollowUp))
	e.task = task
	e.state = StateIdle
	e.mu.Unlock()

	e.ctl.reset()
	e.emitEvent(types.NewFollowUpEvent(e.taskID, task))
	return nil
}

// Close closes the event stream. The executor must not be used afterwards.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
}

func (e *Executor) setState(s State, step int) {
	e.mu.Lock()
	changed := e.state != s
	e.state = s
	e.mu.Unlock()
	if changed {
		e.emitEvent(types.NewStateChangeEvent(e.taskID, string(s), step))
	}
}

func (e *Executor) appendHistory(msgs ...*types.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, msgs...)
}

// emitEvent sends an event to the stream, blocking while it is full.
// Events emitted after Close are dropped.
func (e *Executor) emitEvent(event *types.AgentEvent) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			debugLog.Warnf("Dropped %s event after the stream closed", event.Type)
		}
	}()
	e.events <- event
}
