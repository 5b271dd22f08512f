package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/kv"
	"github.com/entrhq/pilot/pkg/types"
)

// ReplayOptions controls ReplayHistory.
type ReplayOptions struct {
	// MaxRetries is the number of extra attempts per step.
	MaxRetries int
	// SkipFailures continues past a step that failed every attempt instead
	// of aborting.
	SkipFailures bool
	// DelayBetweenActions is waited between consecutive steps.
	DelayBetweenActions time.Duration
}

// ReplayResult summarizes a replay.
type ReplayResult struct {
	SourceRunID string   `json:"sourceRunId"`
	Errors      []string `json:"errors,omitempty"`
	Total       int      `json:"total"`
	Succeeded   int      `json:"succeeded"`
	Failed      int      `json:"failed"`
	Skipped     int      `json:"skipped"`
}

// ReplayHistory re-executes the successful actions recorded for the latest
// run of a session, in order. Steps are retried up to MaxRetries times;
// navigation targets are checked against the firewall again and risky
// actions pass the approval gate again. Cancel aborts between steps.
func (e *Executor) ReplayHistory(ctx context.Context, sessionID string, opts ReplayOptions) (*ReplayResult, error) {
	if e.deps.KV == nil {
		return nil, types.NewBadRequestError("replay requires a step store", nil)
	}
	if sessionID == "" {
		sessionID = e.sessionID
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, types.NewConflictError("task is already running", nil)
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	records, runID, err := e.recordedSteps(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	res := &ReplayResult{SourceRunID: runID, Total: len(records)}
	debugLog.Infof("Replaying %d steps of run %s", len(records), runID)

	for i, rec := range records {
		if i > 0 && opts.DelayBetweenActions > 0 {
			timer := time.NewTimer(opts.DelayBetweenActions)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
		if e.ctl.isCancelled() || ctx.Err() != nil {
			return res, types.NewCancelledError("replay cancelled", ctx.Err())
		}

		if err := e.replayStep(ctx, i+1, rec.Action, opts.MaxRetries); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("step %d (%s): %v", rec.Step, rec.Action, err))
			if !opts.SkipFailures {
				return res, fmt.Errorf("replay aborted at step %d: %w", rec.Step, err)
			}
			res.Skipped++
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

// replayStep performs one recorded action with bounded retries. Firewall
// and approval refusals are not retried.
func (e *Executor) replayStep(ctx context.Context, step int, a browser.Action, retries int) error {
	if a.Type == browser.ActionNavigate {
		if err := e.deps.Firewall.Check(a.URL); err != nil {
			return err
		}
	}
	if err := e.approve(ctx, []browser.Action{a}); err != nil {
		return err
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if _, err = e.perform(ctx, step, a); err == nil {
			return nil
		}
		if types.IsNonRetryable(err) || ctx.Err() != nil {
			return err
		}
		debugLog.Debugf("Replay of %s failed (attempt %d/%d): %v", a, attempt+1, retries+1, err)
	}
	return err
}

// recordedSteps loads the successful step records of the newest run of a
// session, in execution order.
func (e *Executor) recordedSteps(ctx context.Context, sessionID string) ([]StepRecord, string, error) {
	items, err := e.deps.KV.Search(ctx, kv.Query{
		Namespace:  kv.Namespace{UserID: e.userID, WorkspaceID: e.workspaceID, ThreadID: sessionID},
		KeyPattern: stepPrefix + "*",
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to load recorded steps: %w", err)
	}

	var runID string
	for _, it := range items {
		if it.Namespace.RunID > runID {
			runID = it.Namespace.RunID
		}
	}

	var records []StepRecord
	for _, it := range items {
		if it.Namespace.RunID != runID {
			continue
		}
		var rec StepRecord
		if err := json.Unmarshal(it.Value, &rec); err != nil {
			debugLog.Warnf("Skipping corrupt step record %s: %v", it.Key, err)
			continue
		}
		if rec.Success {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return nil, "", types.NewNotFoundError(fmt.Sprintf("no recorded steps for session %s", sessionID), nil)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Step != records[j].Step {
			return records[i].Step < records[j].Step
		}
		return records[i].Index < records[j].Index
	})
	return records, runID, nil
}
