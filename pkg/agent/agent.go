// Package agent runs browser tasks with a planner and a navigator.
//
// An Executor serves one task lineage: a task and its follow-ups share one
// message history. Each Execute call assembles a run context from memory,
// context, todos and delegation, then alternates planner and navigator
// inference calls until the planner declares the task done or a stop
// condition is reached:
//
//	ex, err := agent.NewExecutor("find the cheapest flight to Lisbon", deps,
//		agent.WithWorkspace("travel"),
//		agent.WithSession("s1"),
//	)
//	res, err := ex.Execute(ctx)
//
// Navigator actions pass the URL firewall and the approval gate before the
// browser Actuator performs them. Every performed action is recorded so a
// session can be replayed with ReplayHistory.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/pilot/pkg/agent/approval"
	agentcontext "github.com/entrhq/pilot/pkg/agent/context"
	"github.com/entrhq/pilot/pkg/agent/memory"
	"github.com/entrhq/pilot/pkg/agent/todo"
	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/inference"
	"github.com/entrhq/pilot/pkg/kv"
	"github.com/entrhq/pilot/pkg/types"
	"github.com/entrhq/pilot/pkg/workspace"
)

// Inferrer runs one inference call. *inference.Router implements it.
type Inferrer interface {
	Invoke(ctx context.Context, req inference.Request) (*inference.Response, error)
}

// Deps are the collaborators of an Executor. Inference and Actuator are
// required; every other dependency is optional and the matching feature is
// skipped when it is nil.
type Deps struct {
	Inference  Inferrer
	Actuator   browser.Actuator
	KV         kv.Store
	Memory     *memory.Store
	Context    *agentcontext.Engine
	Todos      *todo.Store
	Workspaces *workspace.Store
	Gate       *approval.Gate
	Firewall   *browser.Firewall
}

func (d Deps) validate() error {
	if d.Inference == nil {
		return types.NewBadRequestError("executor requires an inference backend", nil)
	}
	if d.Actuator == nil {
		return types.NewBadRequestError("executor requires a browser actuator", nil)
	}
	return nil
}

// Reasoning roles.
const (
	RolePlanner   = "planner"
	RoleNavigator = "navigator"
)

// State is the executor's position in its state machine.
type State string

const (
	StateIdle       State = "idle"
	StatePlanning   State = "planning"
	StateNavigating State = "navigating"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
	StatePaused     State = "paused"
)

// Status is how a run ended.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusMaxSteps    Status = "max_steps_reached"
	StatusMaxFailures Status = "max_failures_reached"
	StatusCancelled   Status = "cancelled"
	StatusPaused      Status = "paused"
	StatusFailed      Status = "failed"
)

func (s Status) eventType() types.AgentEventType {
	switch s {
	case StatusCompleted:
		return types.EventTypeTaskCompleted
	case StatusMaxSteps:
		return types.EventTypeTaskMaxSteps
	case StatusMaxFailures:
		return types.EventTypeTaskMaxFailures
	case StatusCancelled:
		return types.EventTypeTaskCancelled
	case StatusPaused:
		return types.EventTypeTaskPaused
	}
	return types.EventTypeTaskFailed
}

func (s Status) state() State {
	switch s {
	case StatusCompleted:
		return StateDone
	case StatusCancelled:
		return StateCancelled
	case StatusPaused:
		return StatePaused
	}
	return StateFailed
}

// Result describes one finished Execute call.
type Result struct {
	// Err is the error that ended the run, nil when it completed.
	Err error `json:"-"`
	// Context is the run context assembled before the loop started.
	Context     *RunContext     `json:"-"`
	Status      Status          `json:"status"`
	TaskID      string          `json:"taskId"`
	RunID       string          `json:"runId"`
	Task        string          `json:"task"`
	FinalAnswer string          `json:"finalAnswer,omitempty"`
	Reasoning   string          `json:"reasoning,omitempty"`
	Actions     []memory.Action `json:"actions"`
	Steps       int             `json:"steps"`
	Duration    time.Duration   `json:"duration"`
}

func (r *Result) String() string {
	return fmt.Sprintf("%s after %d steps (%d actions)", r.Status, r.Steps, len(r.Actions))
}
