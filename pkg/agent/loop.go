package agent

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"

	"github.com/entrhq/pilot/pkg/agent/memory"
	"github.com/entrhq/pilot/pkg/metrics"
	"github.com/entrhq/pilot/pkg/types"
)

// Execute runs the current task until the planner declares it done or a
// stop condition is reached. It returns an error only when the run failed
// or tripped the consecutive-failure limit; every other ending is reported
// through Result.Status.
func (e *Executor) Execute(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, types.NewConflictError("task is already running", nil)
	}
	e.running = true
	task := e.task
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	start := e.now()
	if e.deps.Context != nil {
		e.deps.Context.SetEventEmitter(e.taskID, e.emitEvent)
	}
	e.ensureRun(ctx, task)
	e.emitEvent(types.NewTaskStartEvent(e.taskID, task))
	debugLog.Infof("Task %s started in workspace %s: %s", e.taskID, e.workspaceID, task)

	rc := e.BeforeRun(ctx, task)
	res := e.run(ctx, task, rc)
	res.Duration = e.now().Sub(start)
	e.finish(ctx, res)
	e.AfterRun(ctx, res)

	if res.Status == StatusFailed || res.Status == StatusMaxFailures {
		return res, res.Err
	}
	return res, nil
}

// ensureRun allocates the run id on the first Execute. Follow-ups continue
// the same run.
func (e *Executor) ensureRun(ctx context.Context, task string) {
	e.mu.Lock()
	runID := e.runID
	e.mu.Unlock()
	if runID != "" {
		return
	}

	runID = ulid.Make().String()
	if w := e.deps.Workspaces; w != nil {
		run, err := w.CreateRun(ctx, e.workspaceID, e.sessionID, task)
		if err != nil {
			debugLog.Warnf("Failed to register run, using a detached run id: %v", err)
		} else {
			runID = run.ID
		}
	}

	e.mu.Lock()
	e.runID = runID
	e.mu.Unlock()
}

func (e *Executor) currentRun() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// run is the planner/navigator loop.
func (e *Executor) run(ctx context.Context, task string, rc *RunContext) *Result {
	res := &Result{
		TaskID:  e.taskID,
		RunID:   e.currentRun(),
		Task:    task,
		Context: rc,
		Actions: []memory.Action{},
	}

	var (
		failures int
		steps    int
		navDone  bool
		navValue string
		lastEval string
		plan     *PlannerOutput
	)
	for {
		switch e.waitIfPaused(ctx, steps) {
		case waitCancelled:
			res.Status = StatusCancelled
			res.Err = types.NewCancelledError("task cancelled", ctx.Err())
			res.Steps = steps
			return res
		case waitTimedOut:
			res.Status = StatusPaused
			res.Steps = steps
			return res
		}

		if navDone || steps%e.settings.PlanningInterval == 0 {
			out, err := e.plan(ctx, task, rc, steps, lastEval)
			if err != nil {
				if e.handleFailure(res, &failures, err) {
					res.Steps = steps
					return res
				}
				continue
			}
			plan, navDone = out, false
			res.Reasoning = out.Reasoning
			if out.Done {
				res.Status = StatusCompleted
				res.FinalAnswer = out.FinalAnswer
				if res.FinalAnswer == "" {
					res.FinalAnswer = navValue
				}
				res.Steps = steps
				return res
			}
		}

		// A cancel that arrived during the planner call stops the run
		// before the navigator is asked for actions.
		if e.ctl.isCancelled() {
			res.Status = StatusCancelled
			res.Err = types.NewCancelledError("task cancelled", ctx.Err())
			res.Steps = steps
			return res
		}

		if steps >= e.settings.MaxSteps {
			res.Status = StatusMaxSteps
			res.Err = types.NewMaxStepsReachedError(steps)
			res.Steps = steps
			return res
		}

		steps++
		out, err := e.navigate(ctx, task, plan, steps, res)
		if err != nil {
			if errors.Is(err, errApprovalDenied) {
				res.Status = StatusPaused
				res.Err = err
				res.Steps = steps
				return res
			}
			if e.handleFailure(res, &failures, err) {
				res.Steps = steps
				return res
			}
			continue
		}
		failures = 0
		lastEval = out.Evaluation
		navDone = out.done
		if out.done && out.value != "" {
			navValue = out.value
		}
	}
}

// waitIfPaused blocks while the controller is paused, reporting the paused
// state on the way in and the resumed state on the way out.
func (e *Executor) waitIfPaused(ctx context.Context, step int) waitResult {
	if !e.ctl.isPaused() {
		return e.ctl.wait(ctx, 0)
	}
	prev := e.State()
	e.setState(StatePaused, step)
	r := e.ctl.wait(ctx, e.settings.PauseTimeout)
	if r == waitProceed {
		e.setState(prev, step)
	}
	return r
}

// handleFailure applies the failure policy to a step error and reports
// whether the run must stop. Non-retryable errors stop immediately; others
// count toward the consecutive-failure limit.
func (e *Executor) handleFailure(res *Result, failures *int, err error) bool {
	if types.IsNonRetryable(err) {
		res.Status = StatusFailed
		if types.IsKind(err, types.ErrKindCancelled) {
			res.Status = StatusCancelled
		}
		res.Err = err
		return true
	}

	*failures++
	debugLog.Warnf("Task %s step failed (%d/%d): %v", e.taskID, *failures, e.settings.MaxFailures, err)
	e.emitEvent(types.NewErrorEvent(e.taskID, err))
	if *failures >= e.settings.MaxFailures {
		res.Status = StatusMaxFailures
		res.Err = types.NewMaxFailuresReachedError(*failures, err)
		return true
	}
	return false
}

// finish records the terminal state, event and metrics.
func (e *Executor) finish(ctx context.Context, res *Result) {
	e.setState(res.Status.state(), res.Steps)
	content := res.FinalAnswer
	if content == "" && res.Err != nil {
		content = res.Err.Error()
	}
	e.emitEvent(types.NewTaskEndEvent(res.Status.eventType(), e.taskID, res.Steps, content, res.Err))
	metrics.RecordRun(ctx, string(res.Status), res.Duration)

	e.mu.Lock()
	e.steps += res.Steps
	e.last = res
	e.mu.Unlock()
	debugLog.Infof("Task %s finished: %s", e.taskID, res)
}

// detach returns a context that ignores the caller's cancellation but keeps
// its deadline and values. Inference calls run on it so a cancel request
// lets the call finish.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, deadline)
	}
	return context.WithCancel(base)
}
