package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/agent/approval"
	"github.com/entrhq/pilot/pkg/types"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
	// statusStopped covers runs that ended early without failing: a
	// rejected approval, a cancel or the step limit.
	statusStopped = "stopped"
)

// Executor runs one task without a human: approval requests are answered
// from the constraints and every performed action is checked against them.
type Executor struct {
	agent          *agent.Executor
	gate           *approval.Gate
	config         *Config
	constraintMgr  *ConstraintManager
	artifactWriter *ArtifactWriter
	logger         *Logger

	mu        sync.Mutex
	summary   *ExecutionSummary
	violation error
}

// Option configures an Executor.
type Option func(*Executor)

// WithOutput sets where progress is printed (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(e *Executor) {
		e.logger = NewLogger(parseLogLevel(e.config.Logging.Verbosity), w)
	}
}

// NewExecutor creates a headless executor. gate must be the gate the agent
// executor was built with; nil runs without approvals.
func NewExecutor(ex *agent.Executor, gate *approval.Gate, config *Config, opts ...Option) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	constraintMgr, err := NewConstraintManager(config.Constraints, config.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to create constraint manager: %w", err)
	}

	e := &Executor{
		agent:          ex,
		gate:           gate,
		config:         config,
		constraintMgr:  constraintMgr,
		artifactWriter: NewArtifactWriter(config.Artifacts.OutputDir),
		logger:         NewLogger(parseLogLevel(config.Logging.Verbosity), nil),
		summary: &ExecutionSummary{
			Task:   config.Task,
			Status: "running",
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes the task and returns the summary. The error is non-nil only
// when the run failed. Run closes the agent executor's event stream.
func (e *Executor) Run(ctx context.Context) (*ExecutionSummary, error) {
	e.summary.StartTime = time.Now()
	e.logger.Header("Pilot headless: " + e.config.Task)

	execCtx := ctx
	if t := e.config.Constraints.Timeout; t > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	eventsDone := make(chan struct{})
	go e.consumeEvents(eventsDone)

	stop := make(chan struct{})
	approvalsDone := make(chan struct{})
	go e.answerApprovals(stop, approvalsDone)

	res, runErr := e.agent.Execute(execCtx)

	close(stop)
	<-approvalsDone
	e.agent.Close()
	<-eventsDone

	return e.finalize(execCtx, res, runErr)
}

// consumeEvents tracks actions, tokens and approvals until the stream
// closes. A performed action that breaks a constraint cancels the run.
func (e *Executor) consumeEvents(done chan struct{}) {
	defer close(done)

	count := 0
	for event := range e.agent.Events() {
		e.logger.Debugf("Event: %s step=%d", event.Type, event.Step)

		switch event.Type {
		case types.EventTypeStepStart:
			if event.Role == agent.RoleNavigator {
				e.logger.Step(fmt.Sprintf("Navigator step %d", event.Step))
			}
		case types.EventTypeStepOK:
			if event.Content != "" {
				e.logger.Verbosef("%s: %s", event.Role, event.Content)
			}
		case types.EventTypeActionStart:
			if a := event.Action; a != nil {
				count++
				target := actionTarget(a)
				e.logger.Action(a.Name, target, count)
				if err := e.constraintMgr.ValidateAction(a.Name, target); err != nil {
					e.violate(err)
				} else if err := e.constraintMgr.RecordAction(); err != nil {
					e.violate(err)
				}
			}
		case types.EventTypeActionOK, types.EventTypeActionFailed:
			e.recordAction(event)
		case types.EventTypeTokenUsage:
			if event.TokenUsage != nil {
				if err := e.constraintMgr.RecordTokenUsage(event.TokenUsage.ContextTokens); err != nil {
					e.violate(err)
				}
			}
		case types.EventTypeApprovalGranted:
			e.mu.Lock()
			e.summary.Metrics.ApprovalsGranted++
			e.mu.Unlock()
		case types.EventTypeApprovalRejected, types.EventTypeApprovalTimeout:
			e.mu.Lock()
			e.summary.Metrics.ApprovalsRejected++
			e.mu.Unlock()
		case types.EventTypeError:
			e.logger.Warningf("%v", event.Error)
		}
	}
}

func (e *Executor) recordAction(event *types.AgentEvent) {
	a := event.Action
	if a == nil {
		return
	}
	rec := ActionRecord{Name: a.Name, Target: actionTarget(a), Result: a.Result, Step: event.Step}
	if event.Error != nil {
		rec.Error = event.Error.Error()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.summary.Actions = append(e.summary.Actions, rec)
	e.summary.Metrics.Actions++
	if rec.Error != "" {
		e.summary.Metrics.FailedActions++
	}
}

// answerApprovals resolves every gate request against the constraints.
func (e *Executor) answerApprovals(stop <-chan struct{}, done chan struct{}) {
	defer close(done)
	if e.gate == nil {
		return
	}

	for {
		select {
		case <-stop:
			return
		case req := <-e.gate.Requests():
			resp := approval.Response{RequestID: req.ID, Approved: true, Reason: "within headless constraints"}
			if err := e.constraintMgr.ValidateRequest(req); err != nil {
				resp.Approved, resp.Reason = false, err.Error()
				e.recordViolation(err)
			}
			e.logger.Approval(resp.Approved, resp.Reason)
			if !e.gate.Respond(resp) {
				e.logger.Warningf("approval request %s expired before it was answered", req.ID)
			}
		}
	}
}

// violate records a constraint violation and cancels the run.
func (e *Executor) violate(err error) {
	e.mu.Lock()
	first := e.violation == nil
	if first {
		e.violation = err
	}
	e.mu.Unlock()

	e.recordViolation(err)
	if first {
		e.logger.Errorf("%v", err)
		e.agent.Cancel()
	}
}

func (e *Executor) recordViolation(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.summary.Violations = append(e.summary.Violations, err.Error())
}

// finalize maps the agent result onto a headless status and writes the
// artifacts.
func (e *Executor) finalize(execCtx context.Context, res *agent.Result, runErr error) (*ExecutionSummary, error) {
	e.mu.Lock()
	s := e.summary
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	s.Metrics.TokensUsed = e.constraintMgr.GetCurrentState().TokensUsed
	if res != nil {
		s.AgentStatus = res.Status
		s.TaskID = res.TaskID
		s.RunID = res.RunID
		s.FinalAnswer = res.FinalAnswer
		s.Metrics.Steps = res.Steps
	}

	var failure error
	switch {
	case e.violation != nil:
		failure = e.violation
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		failure = fmt.Errorf("execution timeout exceeded (%v)", e.config.Constraints.Timeout)
	case runErr != nil:
		failure = runErr
	}

	switch {
	case failure != nil:
		s.Status = statusFailed
		s.Error = failure.Error()
	case res != nil && res.Status == agent.StatusCompleted:
		s.Status = statusSuccess
	default:
		s.Status = statusStopped
		if res != nil {
			s.Error = fmt.Sprintf("run ended as %s", res.Status)
			if res.Err != nil {
				s.Error += ": " + res.Err.Error()
			}
		}
	}
	e.mu.Unlock()

	if e.config.Artifacts.Enabled {
		if err := e.artifactWriter.WriteAll(s); err != nil {
			e.logger.Warningf("failed to write artifacts: %v", err)
		} else {
			e.logger.Infof("Artifacts written to %s", e.config.Artifacts.OutputDir)
		}
	}
	e.logger.Summary(s)

	if s.Status == statusFailed {
		return s, fmt.Errorf("execution failed: %s", s.Error)
	}
	return s, nil
}

func actionTarget(a *types.ActionInfo) string {
	for _, k := range []string{"url", "selector"} {
		if v, ok := a.Params[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
