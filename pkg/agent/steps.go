package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	agentcontext "github.com/entrhq/pilot/pkg/agent/context"
	"github.com/entrhq/pilot/pkg/inference"
	"github.com/entrhq/pilot/pkg/metrics"
	"github.com/entrhq/pilot/pkg/types"
)

const (
	// pageLength bounds the cleaned page text shown to the navigator.
	pageLength = 20000
	// pagePriority ranks stored pages below the default item priority.
	pagePriority = 2
)

// navOutcome is what one successful navigator step reports to the loop.
type navOutcome struct {
	Evaluation string
	value      string
	done       bool
}

// infer runs one structured inference call for role and decodes the reply
// into out. The call runs on a detached context.
func (e *Executor) infer(ctx context.Context, role, system, prompt string, schema map[string]any, out any) error {
	ictx, cancel := detach(ctx)
	defer cancel()

	e.emitEvent(types.NewAPICallStartEvent(e.taskID, role))
	model := e.settings.PlannerModel
	if role == RoleNavigator {
		model = e.settings.NavigatorModel
	}
	resp, err := e.deps.Inference.Invoke(ictx, inference.Request{
		Model:        model,
		System:       system,
		Prompt:       prompt,
		OutputSchema: schema,
		SchemaName:   role + "_output",
	})
	if err != nil {
		return err
	}
	e.emitEvent(types.NewAPICallEndEvent(e.taskID, role, string(resp.ProviderUsed)))

	if err := json.Unmarshal([]byte(resp.Content), out); err != nil {
		return types.NewResponseParseError(resp.Content, err)
	}
	return nil
}

// plan runs the planner role once.
func (e *Executor) plan(ctx context.Context, task string, rc *RunContext, steps int, lastEval string) (*PlannerOutput, error) {
	e.setState(StatePlanning, steps)
	e.emitEvent(types.NewStepStartEvent(e.taskID, RolePlanner, steps))
	e.compactHistory(ctx)

	prompt := buildPlannerPrompt(task, rc, e.progress(ctx, task), e.deps.Actuator.CurrentURL(), steps, lastEval)
	out := new(PlannerOutput)
	if err := e.infer(ctx, RolePlanner, plannerSystemPrompt, prompt, plannerSchema, out); err != nil {
		e.stepFailed(ctx, RolePlanner, steps, err)
		return nil, err
	}

	summary := out.NextSteps
	if out.Done {
		summary = "done: " + out.FinalAnswer
	}
	e.appendHistory(types.NewAssistantMessage(fmt.Sprintf("Plan: %s\nNext: %s", out.Observation, summary)).
		WithMetadata(metaKind, kindPlan).
		WithMetadata(metaRole, RolePlanner))
	e.writeHistory(ctx, RolePlanner, "", steps, fmt.Sprintf("planner: %s -> %s", out.Observation, summary))

	e.emitEvent(types.NewStepOKEvent(e.taskID, RolePlanner, steps, out.Observation))
	metrics.RecordStep(ctx, RolePlanner, "ok")
	return out, nil
}

// navigate runs the navigator role once and performs its actions.
func (e *Executor) navigate(ctx context.Context, task string, plan *PlannerOutput, step int, res *Result) (*navOutcome, error) {
	e.setState(StateNavigating, step)
	e.emitEvent(types.NewStepStartEvent(e.taskID, RoleNavigator, step))

	url := e.deps.Actuator.CurrentURL()
	prompt := buildNavigatorPrompt(task, plan, e.History(), url, e.pageText(ctx))
	out := new(NavigatorOutput)
	if err := e.infer(ctx, RoleNavigator, navigatorSystemPrompt, prompt, navigatorSchema, out); err != nil {
		e.stepFailed(ctx, RoleNavigator, step, err)
		return nil, err
	}
	if len(out.Actions) == 0 {
		err := fmt.Errorf("navigator returned no actions")
		e.stepFailed(ctx, RoleNavigator, step, err)
		return nil, err
	}
	if limit := e.settings.MaxActionsPerStep; limit > 0 && len(out.Actions) > limit {
		debugLog.Warnf("Navigator proposed %d actions, keeping the first %d", len(out.Actions), limit)
		out.Actions = out.Actions[:limit]
	}

	planned := make([]string, 0, len(out.Actions))
	for _, a := range out.Actions {
		planned = append(planned, a.String())
	}
	e.appendHistory(types.NewAssistantMessage(fmt.Sprintf("%s\nGoal: %s\nActions: %s", out.Evaluation, out.NextGoal, strings.Join(planned, "; "))).
		WithMetadata(metaKind, kindNavigation).
		WithMetadata(metaRole, RoleNavigator))

	outcome, err := e.executeActions(ctx, step, out.Actions, res)
	if err != nil {
		e.stepFailed(ctx, RoleNavigator, step, err)
		return nil, err
	}
	outcome.Evaluation = out.Evaluation

	e.emitEvent(types.NewStepOKEvent(e.taskID, RoleNavigator, step, out.NextGoal))
	metrics.RecordStep(ctx, RoleNavigator, "ok")
	return outcome, nil
}

func (e *Executor) stepFailed(ctx context.Context, role string, step int, err error) {
	e.emitEvent(types.NewStepFailedEvent(e.taskID, role, step, err))
	metrics.RecordStep(ctx, role, "error")
}

// pageText returns the cleaned current page, or a placeholder when the page
// cannot be read.
func (e *Executor) pageText(ctx context.Context) string {
	raw, err := e.deps.Actuator.PageHTML(ctx)
	if err != nil {
		debugLog.Warnf("Failed to read page: %v", err)
		return "(page unavailable)"
	}
	if strings.TrimSpace(raw) == "" {
		return "(empty page)"
	}
	page, err := agentcontext.CleanHTML(raw, pageLength)
	if err != nil {
		debugLog.Warnf("Failed to clean page: %v", err)
		return "(page unavailable)"
	}
	return page.HTML
}

func (e *Executor) scope() agentcontext.Scope {
	return agentcontext.Scope{WorkspaceID: e.workspaceID, SessionID: e.sessionID}
}

// progress selects the session's history and pages relevant to task.
func (e *Executor) progress(ctx context.Context, task string) string {
	c := e.deps.Context
	if c == nil {
		return ""
	}
	opts := e.selectOptions()
	opts.SessionID = e.sessionID
	opts.Types = []agentcontext.ItemType{agentcontext.TypeHistory, agentcontext.TypeMemory, agentcontext.TypePage}
	items, err := c.Select(ctx, e.scope(), task, e.ctxCfg.TokenLimit, opts)
	if err != nil {
		debugLog.Warnf("Failed to select session context: %v", err)
		return ""
	}
	var b strings.Builder
	for _, it := range items {
		if it.Metadata.SessionID != e.sessionID {
			continue
		}
		fmt.Fprintf(&b, "%s\n", it.Content)
	}
	return b.String()
}

// writeHistory stores one step in the context engine.
func (e *Executor) writeHistory(ctx context.Context, role, action string, step int, content string) {
	c := e.deps.Context
	if c == nil {
		return
	}
	_, err := c.Write(ctx, agentcontext.Item{
		Content:      content,
		OwnerAgentID: role,
		SourceType:   agentcontext.SourceMain,
		Payload:      agentcontext.HistoryPayload{Role: role, Action: action, Step: step},
		Metadata: agentcontext.Metadata{
			Source:      e.taskID,
			WorkspaceID: e.workspaceID,
			SessionID:   e.sessionID,
		},
	})
	if err != nil {
		debugLog.Warnf("Failed to record step in context: %v", err)
	}
}

// compactHistory compresses the session's step history once it outgrows
// the token budget, replacing removed items with the condensed summary.
func (e *Executor) compactHistory(ctx context.Context) {
	c := e.deps.Context
	if c == nil {
		return
	}
	items, err := c.Items(ctx, e.scope())
	if err != nil {
		debugLog.Warnf("Failed to load session history: %v", err)
		return
	}

	var (
		history []*agentcontext.Item
		tokens  int
	)
	for _, it := range items {
		if it.Type == agentcontext.TypeHistory {
			history = append(history, it)
			tokens += it.Metadata.TokenCount
		}
	}
	if tokens <= e.ctxCfg.TokenLimit {
		return
	}

	res, err := c.Compress(ctx, history, e.ctxCfg.CompressionStrategy, e.ctxCfg.TokenLimit/2)
	if err != nil {
		debugLog.Warnf("Failed to compress session history: %v", err)
		return
	}
	removed := make(map[string]bool, len(res.RemovedIDs))
	for _, id := range res.RemovedIDs {
		removed[id] = true
	}
	known := make(map[string]bool, len(history))
	for _, it := range history {
		known[it.ID] = true
		if removed[it.ID] {
			if err := c.Delete(ctx, it); err != nil {
				debugLog.Warnf("Failed to delete compressed item %s: %v", it.ID, err)
			}
		}
	}
	for _, it := range res.Items {
		if known[it.ID] {
			continue
		}
		if _, err := c.Write(ctx, *it); err != nil {
			debugLog.Warnf("Failed to store condensed history: %v", err)
		}
	}
	debugLog.Infof("Compacted session history: %s", res.Summary)
}
