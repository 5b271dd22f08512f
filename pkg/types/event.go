package types

import "time"

// AgentEventType defines the type of event emitted by the executor.
type AgentEventType string

const (
	EventTypeTaskStart               AgentEventType = "task_start"                // EventTypeTaskStart indicates a run has started.
	EventTypeTaskCompleted           AgentEventType = "task_completed"            // EventTypeTaskCompleted indicates the planner declared the task done.
	EventTypeTaskMaxSteps            AgentEventType = "task_max_steps"            // EventTypeTaskMaxSteps indicates the step budget was exhausted.
	EventTypeTaskMaxFailures         AgentEventType = "task_max_failures"         // EventTypeTaskMaxFailures indicates too many consecutive failures.
	EventTypeTaskCancelled           AgentEventType = "task_cancelled"            // EventTypeTaskCancelled indicates the run was cancelled.
	EventTypeTaskPaused              AgentEventType = "task_paused"               // EventTypeTaskPaused indicates the run stopped while paused or awaiting a human.
	EventTypeTaskFailed              AgentEventType = "task_failed"               // EventTypeTaskFailed indicates a non-retryable error ended the run.
	EventTypeStateChange             AgentEventType = "state_change"              // EventTypeStateChange indicates an executor state transition.
	EventTypeStepStart               AgentEventType = "step_start"                // EventTypeStepStart indicates a planner or navigator step began.
	EventTypeStepOK                  AgentEventType = "step_ok"                   // EventTypeStepOK indicates a step finished successfully.
	EventTypeStepFailed              AgentEventType = "step_failed"               // EventTypeStepFailed indicates a step failed.
	EventTypeActionStart             AgentEventType = "action_start"              // EventTypeActionStart indicates a browser action is about to run.
	EventTypeActionOK                AgentEventType = "action_ok"                 // EventTypeActionOK indicates a browser action succeeded.
	EventTypeActionFailed            AgentEventType = "action_failed"             // EventTypeActionFailed indicates a browser action failed.
	EventTypeApprovalRequest         AgentEventType = "approval_request"          // EventTypeApprovalRequest indicates the gate is waiting for a human.
	EventTypeApprovalGranted         AgentEventType = "approval_granted"          // EventTypeApprovalGranted indicates the human approved.
	EventTypeApprovalRejected        AgentEventType = "approval_rejected"         // EventTypeApprovalRejected indicates the human rejected.
	EventTypeApprovalTimeout         AgentEventType = "approval_timeout"          // EventTypeApprovalTimeout indicates nobody answered in time.
	EventTypeAPICallStart            AgentEventType = "api_call_start"            // EventTypeAPICallStart indicates an inference call started.
	EventTypeAPICallEnd              AgentEventType = "api_call_end"              // EventTypeAPICallEnd indicates an inference call returned.
	EventTypeTokenUsage              AgentEventType = "token_usage"               // EventTypeTokenUsage carries context token accounting.
	EventTypeContextCompressionStart AgentEventType = "context_compression_start" // EventTypeContextCompressionStart indicates compression began.
	EventTypeContextCompressionDone  AgentEventType = "context_compression_done"  // EventTypeContextCompressionDone indicates compression finished.
	EventTypeContextCompressionError AgentEventType = "context_compression_error" // EventTypeContextCompressionError indicates compression failed.
	EventTypeFollowUp                AgentEventType = "follow_up"                 // EventTypeFollowUp indicates a follow-up task was queued.
	EventTypeError                   AgentEventType = "error"                     // EventTypeError indicates a recoverable error.
)

// AgentEvent represents an event emitted by the executor during a run.
type AgentEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// Error contains error information for failure events.
	Error error

	// Action describes the browser action for action events.
	Action *ActionInfo

	// Approval describes the gate decision for approval events.
	Approval *ApprovalInfo

	// Compression describes a context compression pass.
	Compression *ContextCompression

	// TokenUsage carries token accounting for the assembled context.
	TokenUsage *TokenUsage

	// Timestamp is when the event was created.
	Timestamp time.Time

	// Type indicates the kind of event.
	Type AgentEventType

	// TaskID identifies the run lineage the event belongs to.
	TaskID string

	// Role is the reasoning role (planner or navigator) for step events.
	Role string

	// Content holds free text such as a planner observation or final answer.
	Content string

	// State is the executor state for state change events.
	State string

	// Step is the executor step counter at emission time.
	Step int
}

// ActionInfo describes one browser action.
type ActionInfo struct {
	Params map[string]interface{}
	Name   string
	Result string
}

// ApprovalInfo describes an approval request or its resolution.
type ApprovalInfo struct {
	Actions       []string
	ID            string
	ActionType    string
	RiskLevel     string
	Reason        string
	AutonomyLevel int
}

// ContextCompression contains information about a compression pass.
type ContextCompression struct {
	Strategy         string
	OriginalTokens   int
	CompressedTokens int
	TokensSaved      int
	ItemsRemoved     int
	Duration         string
	ErrorMessage     string
}

// TokenUsage contains token accounting for an assembled prompt.
type TokenUsage struct {
	ContextTokens int
	TokenLimit    int
}

// EventEmitter receives executor events.
type EventEmitter func(*AgentEvent)

func newEvent(t AgentEventType, taskID string) *AgentEvent {
	return &AgentEvent{
		Type:      t,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// NewTaskStartEvent creates a task start event.
func NewTaskStartEvent(taskID, task string) *AgentEvent {
	e := newEvent(EventTypeTaskStart, taskID)
	e.Content = task
	return e
}

// NewTaskEndEvent creates the terminal event for a run outcome.
func NewTaskEndEvent(t AgentEventType, taskID string, step int, content string, err error) *AgentEvent {
	e := newEvent(t, taskID)
	e.Step = step
	e.Content = content
	e.Error = err
	return e
}

// NewStateChangeEvent creates a state change event.
func NewStateChangeEvent(taskID, state string, step int) *AgentEvent {
	e := newEvent(EventTypeStateChange, taskID)
	e.State = state
	e.Step = step
	return e
}

// NewStepStartEvent creates a step start event for a role.
func NewStepStartEvent(taskID, role string, step int) *AgentEvent {
	e := newEvent(EventTypeStepStart, taskID)
	e.Role = role
	e.Step = step
	return e
}

// NewStepOKEvent creates a step success event.
func NewStepOKEvent(taskID, role string, step int, content string) *AgentEvent {
	e := newEvent(EventTypeStepOK, taskID)
	e.Role = role
	e.Step = step
	e.Content = content
	return e
}

// NewStepFailedEvent creates a step failure event.
func NewStepFailedEvent(taskID, role string, step int, err error) *AgentEvent {
	e := newEvent(EventTypeStepFailed, taskID)
	e.Role = role
	e.Step = step
	e.Error = err
	return e
}

// NewActionEvent creates an action start, success or failure event.
func NewActionEvent(t AgentEventType, taskID string, step int, action *ActionInfo, err error) *AgentEvent {
	e := newEvent(t, taskID)
	e.Step = step
	e.Action = action
	e.Error = err
	return e
}

// NewApprovalEvent creates an approval request or resolution event.
func NewApprovalEvent(t AgentEventType, taskID string, info *ApprovalInfo) *AgentEvent {
	e := newEvent(t, taskID)
	e.Approval = info
	return e
}

// NewAPICallStartEvent creates an inference call start event.
func NewAPICallStartEvent(taskID, role string) *AgentEvent {
	e := newEvent(EventTypeAPICallStart, taskID)
	e.Role = role
	return e
}

// NewAPICallEndEvent creates an inference call end event.
func NewAPICallEndEvent(taskID, role, provider string) *AgentEvent {
	e := newEvent(EventTypeAPICallEnd, taskID)
	e.Role = role
	e.Metadata["provider"] = provider
	return e
}

// NewTokenUsageEvent creates a token usage event.
func NewTokenUsageEvent(taskID string, contextTokens, tokenLimit int) *AgentEvent {
	e := newEvent(EventTypeTokenUsage, taskID)
	e.TokenUsage = &TokenUsage{ContextTokens: contextTokens, TokenLimit: tokenLimit}
	return e
}

// NewContextCompressionStartEvent creates a compression start event.
func NewContextCompressionStartEvent(taskID, strategy string, tokens int) *AgentEvent {
	e := newEvent(EventTypeContextCompressionStart, taskID)
	e.Compression = &ContextCompression{Strategy: strategy, OriginalTokens: tokens}
	return e
}

// NewContextCompressionDoneEvent creates a compression completion event.
func NewContextCompressionDoneEvent(taskID string, c *ContextCompression) *AgentEvent {
	e := newEvent(EventTypeContextCompressionDone, taskID)
	e.Compression = c
	return e
}

// NewContextCompressionErrorEvent creates a compression failure event.
func NewContextCompressionErrorEvent(taskID, strategy string, err error) *AgentEvent {
	e := newEvent(EventTypeContextCompressionError, taskID)
	e.Compression = &ContextCompression{Strategy: strategy, ErrorMessage: err.Error()}
	e.Error = err
	return e
}

// NewFollowUpEvent creates a follow-up task event.
func NewFollowUpEvent(taskID, task string) *AgentEvent {
	e := newEvent(EventTypeFollowUp, taskID)
	e.Content = task
	return e
}

// NewErrorEvent creates an error event.
func NewErrorEvent(taskID string, err error) *AgentEvent {
	e := newEvent(EventTypeError, taskID)
	e.Error = err
	return e
}

// WithMetadata adds metadata to the event and returns the event for chaining.
func (e *AgentEvent) WithMetadata(key string, value interface{}) *AgentEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// IsTerminal returns true if the event ends a run.
func (e *AgentEvent) IsTerminal() bool {
	switch e.Type {
	case EventTypeTaskCompleted, EventTypeTaskMaxSteps, EventTypeTaskMaxFailures,
		EventTypeTaskCancelled, EventTypeTaskPaused, EventTypeTaskFailed:
		return true
	}
	return false
}

// IsApprovalEvent returns true if this is an approval-related event.
func (e *AgentEvent) IsApprovalEvent() bool {
	return e.Type == EventTypeApprovalRequest ||
		e.Type == EventTypeApprovalGranted ||
		e.Type == EventTypeApprovalRejected ||
		e.Type == EventTypeApprovalTimeout
}

// IsStepEvent returns true for planner and navigator step events.
func (e *AgentEvent) IsStepEvent() bool {
	return e.Type == EventTypeStepStart || e.Type == EventTypeStepOK || e.Type == EventTypeStepFailed
}

// IsErrorEvent returns true if the event carries an error.
func (e *AgentEvent) IsErrorEvent() bool {
	return e.Error != nil
}
