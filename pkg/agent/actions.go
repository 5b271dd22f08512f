package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/pilot/pkg/agent/approval"
	"github.com/entrhq/pilot/pkg/agent/memory"
	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/kv"
	"github.com/entrhq/pilot/pkg/types"
)

// stepPrefix starts the key of every recorded action.
const stepPrefix = "step/"

// errApprovalDenied ends a run as paused, awaiting a human.
var errApprovalDenied = errors.New("approval denied")

// StepRecord is one performed action, stored for replay.
type StepRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    browser.Action `json:"action"`
	TaskID    string         `json:"taskId"`
	URL       string         `json:"url"`
	Output    string         `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Step      int            `json:"step"`
	Index     int            `json:"index"`
	Success   bool           `json:"success"`
}

// executeActions checks and performs one navigator batch. The firewall
// and the approval gate see the whole batch before anything runs; the
// first failed action ends the batch.
func (e *Executor) executeActions(ctx context.Context, step int, actions []browser.Action, res *Result) (*navOutcome, error) {
	outcome := &navOutcome{}
	runnable := make([]browser.Action, 0, len(actions))
	for _, a := range actions {
		if a.Type == browser.ActionDone {
			outcome.done = true
			outcome.value = a.Value
			break
		}
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if a.Type == browser.ActionNavigate {
			if err := e.deps.Firewall.Check(a.URL); err != nil {
				return nil, err
			}
		}
		runnable = append(runnable, a)
	}

	if err := e.approve(ctx, runnable); err != nil {
		return nil, err
	}

	for i, a := range runnable {
		if e.ctl.isCancelled() || ctx.Err() != nil {
			return nil, types.NewCancelledError("task cancelled between actions", ctx.Err())
		}
		r, err := e.perform(ctx, step, a)
		e.recordStep(ctx, step, i, a, r, err)
		if err != nil {
			e.appendHistory(types.NewUserMessage(fmt.Sprintf("Action %s failed: %v", a, err)).
				WithMetadata(metaKind, kindActionResult).
				WithMetadata(metaRetain, false))
			return nil, err
		}

		result := r.Output
		if result == "" {
			result = r.URL
		}
		res.Actions = append(res.Actions, memory.Action{Type: string(a.Type), Params: a.Params(), Result: result})

		// Extracted text is the only action result worth keeping across follow-ups.
		retain := a.Type == browser.ActionExtract
		e.appendHistory(types.NewUserMessage(fmt.Sprintf("Action %s -> %s", a, result)).
			WithMetadata(metaKind, kindActionResult).
			WithMetadata(metaRetain, retain))
		e.writeHistory(ctx, RoleNavigator, string(a.Type), step, fmt.Sprintf("%s -> %s", a, result))
		if a.Type == browser.ActionNavigate {
			e.storePage(ctx, r.URL)
		}
	}
	return outcome, nil
}

// perform runs one action with its events.
func (e *Executor) perform(ctx context.Context, step int, a browser.Action) (browser.ActionResult, error) {
	info := &types.ActionInfo{Name: string(a.Type), Params: a.Params()}
	e.emitEvent(types.NewActionEvent(types.EventTypeActionStart, e.taskID, step, info, nil))

	r, err := e.deps.Actuator.Perform(ctx, a)
	if err != nil {
		e.emitEvent(types.NewActionEvent(types.EventTypeActionFailed, e.taskID, step, info, err))
		return r, err
	}
	done := *info
	done.Result = r.Output
	if done.Result == "" {
		done.Result = r.URL
	}
	e.emitEvent(types.NewActionEvent(types.EventTypeActionOK, e.taskID, step, &done, nil))
	return r, nil
}

// approve passes actions through the gate. A rejection, or a timeout that
// resolves to reject, returns errApprovalDenied. Cancelling the task ends
// the wait.
func (e *Executor) approve(ctx context.Context, actions []browser.Action) error {
	g := e.deps.Gate
	if g == nil || len(actions) == 0 {
		return nil
	}

	pending := make([]approval.Action, 0, len(actions))
	for _, a := range actions {
		desc := strings.TrimSpace(strings.TrimPrefix(a.String(), string(a.Type)))
		pending = append(pending, approval.Action{Type: string(a.Type), Description: desc})
	}
	actx, stop := e.ctl.bind(ctx)
	defer stop()
	r, err := g.Check(actx, e.policy(ctx), pending)
	if err != nil {
		return err
	}
	if !r.Approved {
		return fmt.Errorf("%w (%s): %s", errApprovalDenied, r.Outcome, r.Reason)
	}
	return nil
}

// policy returns the approval policy of the executor's workspace. It
// falls back to the configured autonomy when the workspace is unknown.
func (e *Executor) policy(ctx context.Context) approval.Policy {
	p := approval.Policy{
		WorkspaceID:       e.workspaceID,
		TaskID:            e.taskID,
		AutonomyLevel:     e.autonomy,
		StandingApprovals: e.policies,
	}
	if w := e.deps.Workspaces; w != nil {
		ws, err := w.Get(ctx, e.workspaceID)
		if err != nil {
			debugLog.Debugf("Using default approval policy for %s: %v", e.workspaceID, err)
			return p
		}
		p.AutonomyLevel = ws.AutonomyLevel
		p.StandingApprovals = ws.ApprovalPolicies
		e.deps.Gate.SetTrust(ws.ID, ws.TrustScore)
	}
	return p
}

func (e *Executor) stepNS(runID string) kv.Namespace {
	return kv.Namespace{UserID: e.userID, WorkspaceID: e.workspaceID, ThreadID: e.sessionID, RunID: runID}
}

// recordStep stores a performed action. Step numbers continue across the
// runs of a lineage so follow-ups never overwrite earlier records.
func (e *Executor) recordStep(ctx context.Context, step, index int, a browser.Action, r browser.ActionResult, actErr error) {
	store := e.deps.KV
	if store == nil {
		return
	}
	e.mu.Lock()
	runID, n := e.runID, e.steps+step
	e.mu.Unlock()

	rec := StepRecord{
		Timestamp: e.now(),
		Action:    a,
		TaskID:    e.taskID,
		URL:       r.URL,
		Output:    r.Output,
		Step:      n,
		Index:     index,
		Success:   actErr == nil,
	}
	if actErr != nil {
		rec.Error = actErr.Error()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		debugLog.Warnf("Failed to encode step record: %v", err)
		return
	}
	key := fmt.Sprintf("%s%06d/%02d", stepPrefix, n, index)
	meta := map[string]string{"action": string(a.Type), "success": fmt.Sprint(rec.Success)}
	if err := store.Put(context.WithoutCancel(ctx), e.stepNS(runID), key, data, meta); err != nil {
		debugLog.Warnf("Failed to record step %s: %v", key, err)
	}
}

// storePage writes the page reached by a navigation to the context engine.
func (e *Executor) storePage(ctx context.Context, url string) {
	c := e.deps.Context
	if c == nil {
		return
	}
	raw, err := e.deps.Actuator.PageHTML(ctx)
	if err != nil || strings.TrimSpace(raw) == "" {
		return
	}
	if _, err := c.WritePage(ctx, e.scope(), url, raw, pagePriority); err != nil {
		debugLog.Warnf("Failed to store page %s: %v", url, err)
	}
}
