package agent

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	agentcontext "github.com/entrhq/pilot/pkg/agent/context"
	"github.com/entrhq/pilot/pkg/agent/delegation"
	"github.com/entrhq/pilot/pkg/agent/memory"
	"github.com/entrhq/pilot/pkg/agent/todo"
	"github.com/entrhq/pilot/pkg/types"
)

// Limits for run context assembly.
const (
	maxContextFacts    = 5
	maxContextEpisodes = 3
	maxContextPatterns = 3
)

// BeforeRunHook runs after the built-in run context assembly. Errors are
// logged and never stop the run.
type BeforeRunHook func(ctx context.Context, rc *RunContext) error

// AfterRunHook runs after the built-in persistence of a finished run.
// Errors are logged and never change the result.
type AfterRunHook func(ctx context.Context, res *Result) error

// RunContext is what the executor knows before the loop starts.
type RunContext struct {
	Facts      []memory.FactMatch        `json:"facts"`
	Episodes   []*memory.Episode         `json:"episodes"`
	Patterns   []*memory.WorkflowPattern `json:"patterns"`
	Items      []*agentcontext.Item      `json:"items"`
	Todos      []*todo.Item              `json:"todos"`
	Delegation delegation.Plan           `json:"delegation"`
	Quality    *agentcontext.Quality     `json:"quality,omitempty"`
	Tokens     int                       `json:"tokens"`
}

// Memories returns how many memory records were loaded.
func (rc *RunContext) Memories() int {
	return len(rc.Facts) + len(rc.Episodes) + len(rc.Patterns)
}

func (rc *RunContext) render() string {
	if rc == nil {
		return ""
	}
	var b strings.Builder
	for _, m := range rc.Facts {
		fmt.Fprintf(&b, "fact: %s = %s\n", m.Fact.Key, m.Fact.Value)
	}
	for _, p := range rc.Patterns {
		steps := make([]string, 0, len(p.Steps))
		for _, s := range p.Steps {
			steps = append(steps, s.Action)
		}
		fmt.Fprintf(&b, "pattern %q (success %.0f%%): %s\n", p.Name, p.SuccessRate*100, strings.Join(steps, " -> "))
	}
	for _, ep := range rc.Episodes {
		fmt.Fprintf(&b, "earlier run (%s): %s\n", ep.Outcome, ep.Query)
	}
	for _, it := range rc.Items {
		fmt.Fprintf(&b, "%s: %s\n", it.Type, it.Content)
	}
	for _, t := range rc.Todos {
		fmt.Fprintf(&b, "todo [%s]: %s\n", t.Status, t.Description)
	}
	for _, d := range rc.Delegation.Delegations {
		fmt.Fprintf(&b, "role %s (%.2f): %s\n", d.RoleType, d.Confidence, d.Goal)
	}
	return b.String()
}

// BeforeRun assembles the run context for task. Sources are loaded
// concurrently; a source that fails is left empty.
func (e *Executor) BeforeRun(ctx context.Context, task string) *RunContext {
	rc := &RunContext{}
	ws := e.workspaceID

	g, gctx := errgroup.WithContext(ctx)
	if m := e.deps.Memory; m != nil {
		g.Go(func() error {
			facts, err := m.SearchFacts(gctx, ws, task, maxContextFacts)
			if err != nil {
				debugLog.Warnf("Run context: facts unavailable: %v", err)
				return nil
			}
			rc.Facts = facts
			return nil
		})
		g.Go(func() error {
			eps, err := m.SearchEpisodes(gctx, ws, task, maxContextEpisodes)
			if err != nil {
				debugLog.Warnf("Run context: episodes unavailable: %v", err)
				return nil
			}
			rc.Episodes = eps
			return nil
		})
		g.Go(func() error {
			pats, err := m.GetBestPatterns(gctx, ws, maxContextPatterns)
			if err != nil {
				debugLog.Warnf("Run context: patterns unavailable: %v", err)
				return nil
			}
			rc.Patterns = pats
			return nil
		})
	}
	if c := e.deps.Context; c != nil {
		g.Go(func() error {
			items, err := c.Select(gctx, agentcontext.Scope{WorkspaceID: ws}, task, e.ctxCfg.TokenLimit, e.selectOptions())
			if err != nil {
				debugLog.Warnf("Run context: context items unavailable: %v", err)
				return nil
			}
			rc.Items = items
			return nil
		})
	}
	if t := e.deps.Todos; t != nil {
		g.Go(func() error {
			todos, err := t.Pending(gctx, ws, e.sessionID)
			if err != nil {
				debugLog.Warnf("Run context: todos unavailable: %v", err)
				return nil
			}
			rc.Todos = todos
			return nil
		})
	}
	_ = g.Wait()

	contents := make([]string, 0, len(rc.Items))
	for _, it := range rc.Items {
		contents = append(contents, it.Content)
		rc.Tokens += it.Metadata.TokenCount
	}
	rc.Delegation = delegation.PlanDelegations(task, contents)
	e.recordDelegations(ctx, rc.Delegation)
	if len(rc.Items) > 0 {
		q := agentcontext.AssessQuality(rc.Items)
		rc.Quality = &q
	}
	e.emitEvent(types.NewTokenUsageEvent(e.taskID, rc.Tokens, e.ctxCfg.TokenLimit))

	for _, h := range e.beforeRun {
		if err := h(ctx, rc); err != nil {
			debugLog.Warnf("Before-run hook failed: %v", err)
		}
	}
	debugLog.Debugf("Run context for %s: %d memories, %d items, %d todos, %d delegations",
		e.taskID, rc.Memories(), len(rc.Items), len(rc.Todos), len(rc.Delegation.Delegations))
	return rc
}

// recordDelegations stores each delegated role's goal as a subagent item
// owned by that role. The "main" fallback is the executor itself.
func (e *Executor) recordDelegations(ctx context.Context, plan delegation.Plan) {
	c := e.deps.Context
	if c == nil {
		return
	}
	for _, d := range plan.Delegations {
		if d.RoleID == "main" {
			continue
		}
		_, err := c.Write(ctx, agentcontext.Item{
			Content:      fmt.Sprintf("%s: %s", d.Goal, strings.Join(d.Tasks, "; ")),
			SourceType:   agentcontext.SourceSubagent,
			OwnerAgentID: d.RoleID,
			Payload:      agentcontext.MessagePayload{Role: d.RoleType},
			Metadata: agentcontext.Metadata{
				Source:      e.taskID,
				WorkspaceID: e.workspaceID,
				SessionID:   e.sessionID,
				Tags:        map[string]string{"delegation": string(d.TaskType)},
			},
		})
		if err != nil {
			debugLog.Warnf("Delegation %s not recorded: %v", d.RoleID, err)
		}
	}
}

func (e *Executor) selectOptions() agentcontext.SelectOptions {
	return agentcontext.SelectOptions{
		MaxItems:          e.ctxCfg.MaxItems,
		SemanticThreshold: e.ctxCfg.SemanticThreshold,
		RecencyBias:       e.ctxCfg.RecencyBias,
		PriorityWeighting: e.ctxCfg.PriorityWeighting,
	}
}

// AfterRun persists what the run taught: an episode, a pattern for
// successful runs, facts from the final answer, finished todos, pattern
// statistics and a checkpoint of the history. Failures are logged.
func (e *Executor) AfterRun(ctx context.Context, res *Result) {
	ctx = context.WithoutCancel(ctx)
	success := res.Status == StatusCompleted
	outcome := memory.OutcomeFailure
	if success {
		outcome = memory.OutcomeSuccess
	}

	if m := e.deps.Memory; m != nil {
		reasoning := res.Reasoning
		if res.FinalAnswer != "" {
			reasoning = res.FinalAnswer
		}
		ep, err := m.SaveEpisode(ctx, memory.Episode{
			WorkspaceID: e.workspaceID,
			SessionID:   e.sessionID,
			Query:       res.Task,
			Outcome:     outcome,
			Reasoning:   reasoning,
			Actions:     res.Actions,
			Metadata:    map[string]string{"status": string(res.Status), "taskId": res.TaskID, "runId": res.RunID},
		})
		if err != nil {
			debugLog.Warnf("After-run: failed to save episode: %v", err)
		} else if p, ok := memory.PatternFromEpisode(ep); ok {
			if _, err := m.SavePattern(ctx, e.workspaceID, p); err != nil {
				debugLog.Warnf("After-run: failed to save pattern: %v", err)
			}
		}

		if success {
			for key, value := range memory.ExtractFacts(res.FinalAnswer) {
				if _, err := m.SaveFact(ctx, e.workspaceID, key, value, memory.FactOptions{Source: "task:" + res.TaskID}); err != nil {
					debugLog.Warnf("After-run: failed to save fact %s: %v", key, err)
				}
			}
		}

		if res.Context != nil {
			for _, p := range res.Context.Patterns {
				if _, err := m.UpdatePatternUsage(ctx, e.workspaceID, p.ID, success); err != nil {
					debugLog.Warnf("After-run: failed to update pattern %s: %v", p.ID, err)
				}
			}
		}
	}

	if t := e.deps.Todos; t != nil && success {
		done, err := t.CompleteMatching(ctx, e.workspaceID, e.sessionID, res.Task+" "+res.FinalAnswer)
		if err != nil {
			debugLog.Warnf("After-run: failed to complete todos: %v", err)
		} else if len(done) > 0 {
			debugLog.Infof("After-run: completed %d todos", len(done))
		}
	}

	if w := e.deps.Workspaces; w != nil {
		history := e.History()
		if err := w.SaveHistory(ctx, e.workspaceID, e.sessionID, res.RunID, history); err != nil {
			debugLog.Warnf("After-run: failed to save history: %v", err)
		}
		label := fmt.Sprintf("%s after %d steps", res.Status, res.Steps)
		if _, err := w.CreateCheckpoint(ctx, e.workspaceID, e.sessionID, res.RunID, label, history); err != nil {
			debugLog.Warnf("After-run: failed to create checkpoint: %v", err)
		}
	}

	for _, h := range e.afterRun {
		if err := h(ctx, res); err != nil {
			debugLog.Warnf("After-run hook failed: %v", err)
		}
	}
}
