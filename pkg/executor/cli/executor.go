// Package cli runs a pilot task in the terminal.
//
// The executor prints the agent's events as they arrive, asks for approval
// on stdin when the gate needs a human, and optionally reads follow-up
// tasks after each run:
//
//	ex, _ := agent.NewExecutor("find the cheapest flight to Lisbon", deps)
//	runner := cli.NewExecutor(ex,
//		cli.WithGate(gate),
//		cli.WithFollowUps(true),
//	)
//	if err := runner.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/agent/approval"
	"github.com/entrhq/pilot/pkg/types"
)

// Executor drives one agent.Executor from the terminal.
type Executor struct {
	agent  *agent.Executor
	gate   *approval.Gate
	reader *bufio.Reader
	writer io.Writer

	// Display options
	showReasoning bool

	followUps bool
}

// ExecutorOption is a function that configures an Executor.
type ExecutorOption func(*Executor)

// WithShowReasoning enables/disables printing planner observations and
// state changes.
func WithShowReasoning(show bool) ExecutorOption {
	return func(e *Executor) {
		e.showReasoning = show
	}
}

// WithWriter sets a custom output writer (default is os.Stdout).
func WithWriter(w io.Writer) ExecutorOption {
	return func(e *Executor) {
		e.writer = w
	}
}

// WithReader sets a custom input reader (default is os.Stdin).
func WithReader(r io.Reader) ExecutorOption {
	return func(e *Executor) {
		e.reader = bufio.NewReader(r)
	}
}

// WithGate answers the gate's approval requests from the input reader.
func WithGate(g *approval.Gate) ExecutorOption {
	return func(e *Executor) {
		e.gate = g
	}
}

// WithFollowUps keeps the session open after a run and reads follow-up
// tasks until the user exits.
func WithFollowUps(enabled bool) ExecutorOption {
	return func(e *Executor) {
		e.followUps = enabled
	}
}

// NewExecutor creates a new CLI executor for the given agent executor.
func NewExecutor(ex *agent.Executor, opts ...ExecutorOption) *Executor {
	e := &Executor{
		agent:         ex,
		reader:        bufio.NewReader(os.Stdin),
		writer:        os.Stdout,
		showReasoning: true,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run executes the task, then any follow-ups, and returns the last run's
// result. Run closes the agent executor's event stream before returning.
func (e *Executor) Run(ctx context.Context) (*agent.Result, error) {
	eventsDone := make(chan struct{})
	go e.handleEvents(e.agent.Events(), eventsDone)
	defer func() {
		e.agent.Close()
		<-eventsDone
	}()

	fmt.Fprintln(e.writer, "Pilot")
	fmt.Fprintf(e.writer, "Workspace %s, session %s\n\n", e.agent.WorkspaceID(), e.agent.SessionID())

	for {
		res, err := e.execute(ctx)
		if err != nil || !e.followUps {
			return res, err
		}

		fmt.Fprintln(e.writer, "\nType a follow-up task, or 'exit' to quit.")
		fmt.Fprint(e.writer, "> ")
		input, readErr := e.reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if readErr != nil && input == "" {
			if readErr == io.EOF {
				return res, nil
			}
			return res, fmt.Errorf("failed to read input: %w", readErr)
		}
		if input == "exit" || input == "quit" || input == "" {
			return res, nil
		}
		if err := e.agent.AddFollowUpTask(input); err != nil {
			return res, err
		}
	}
}

// execute runs one Execute call, answering approval requests while it runs.
func (e *Executor) execute(ctx context.Context) (*agent.Result, error) {
	var (
		res *agent.Result
		err error
	)
	e.whileAnswering(func() { res, err = e.agent.Execute(ctx) })
	return res, err
}

// Replay re-executes the recorded steps of a session, answering approval
// requests while it runs.
func (e *Executor) Replay(ctx context.Context, sessionID string, opts agent.ReplayOptions) (*agent.ReplayResult, error) {
	eventsDone := make(chan struct{})
	go e.handleEvents(e.agent.Events(), eventsDone)
	defer func() {
		e.agent.Close()
		<-eventsDone
	}()

	var (
		res *agent.ReplayResult
		err error
	)
	e.whileAnswering(func() { res, err = e.agent.ReplayHistory(ctx, sessionID, opts) })
	if res != nil {
		fmt.Fprintf(e.writer, "\n■ Replayed run %s: %d/%d succeeded, %d failed, %d skipped\n",
			res.SourceRunID, res.Succeeded, res.Total, res.Failed, res.Skipped)
	}
	return res, err
}

// whileAnswering runs fn in the background and prompts for approvals until
// it returns.
func (e *Executor) whileAnswering(fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	var requests <-chan *approval.Request
	if e.gate != nil {
		requests = e.gate.Requests()
	}
	for {
		select {
		case <-done:
			return
		case req := <-requests:
			e.askApproval(req)
		}
	}
}

// askApproval prompts for one approval request. Anything but y/yes rejects.
func (e *Executor) askApproval(req *approval.Request) {
	actions := make([]string, 0, len(req.Actions))
	for _, a := range req.Actions {
		actions = append(actions, strings.TrimSpace(a.Type+" "+a.Description))
	}
	fmt.Fprintf(e.writer, "\n⚠️  Approval needed (%s risk): %s\n", req.Risk, req.Reason)
	fmt.Fprintf(e.writer, "   %s\n", strings.Join(actions, "\n   "))
	fmt.Fprint(e.writer, "Approve? [y/N] ")

	answer, err := e.reader.ReadString('\n')
	if err != nil && answer == "" {
		fmt.Fprintf(e.writer, "\nNo answer (%v), leaving request %s to time out\n", err, req.ID)
		return
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	approved := answer == "y" || answer == "yes"
	if !e.gate.Respond(approval.Response{RequestID: req.ID, Approved: approved}) {
		fmt.Fprintf(e.writer, "Request %s already expired\n", req.ID)
	}
}

// handleEvents renders events until the stream closes.
func (e *Executor) handleEvents(events <-chan *types.AgentEvent, done chan struct{}) {
	defer close(done)

	for event := range events {
		e.handleEvent(event)
	}
}

// handleEvent processes a single event based on its type
func (e *Executor) handleEvent(event *types.AgentEvent) {
	switch event.Type {
	case types.EventTypeTaskStart:
		fmt.Fprintf(e.writer, "▶ Task: %s\n", event.Content)
	case types.EventTypeStateChange:
		if e.showReasoning {
			fmt.Fprintf(e.writer, "[%s]\n", event.State)
		}
	case types.EventTypeStepOK:
		e.handleStepOK(event)
	case types.EventTypeStepFailed:
		fmt.Fprintf(e.writer, "⚠️  %s step %d failed: %v\n", event.Role, event.Step, event.Error)
	case types.EventTypeActionStart:
		e.handleAction(event.Action)
	case types.EventTypeActionOK:
		if event.Action != nil && event.Action.Result != "" {
			fmt.Fprintf(e.writer, "✅ Result: %s\n", event.Action.Result)
		}
	case types.EventTypeActionFailed:
		name := ""
		if event.Action != nil {
			name = event.Action.Name
		}
		fmt.Fprintf(e.writer, "❌ Action Error (%s): %v\n", name, event.Error)
	case types.EventTypeApprovalGranted, types.EventTypeApprovalRejected, types.EventTypeApprovalTimeout:
		if event.Approval != nil {
			fmt.Fprintf(e.writer, "Approval %s: %s\n", strings.TrimPrefix(string(event.Type), "approval_"), event.Approval.Reason)
		}
	case types.EventTypeContextCompressionDone:
		if c := event.Compression; c != nil {
			fmt.Fprintf(e.writer, "🗜  Context compressed (%s): %d tokens saved\n", c.Strategy, c.TokensSaved)
		}
	case types.EventTypeError:
		fmt.Fprintf(e.writer, "\n❌ Error: %v\n", event.Error)
	case types.EventTypeTaskCompleted:
		fmt.Fprintf(e.writer, "\n■ Done after %d steps\n%s\n", event.Step, event.Content)
	case types.EventTypeTaskMaxSteps, types.EventTypeTaskMaxFailures, types.EventTypeTaskCancelled,
		types.EventTypeTaskPaused, types.EventTypeTaskFailed:
		fmt.Fprintf(e.writer, "\n■ %s after %d steps: %s\n", strings.TrimPrefix(string(event.Type), "task_"), event.Step, event.Content)
	}
}

func (e *Executor) handleStepOK(event *types.AgentEvent) {
	if event.Content == "" {
		return
	}
	switch event.Role {
	case agent.RolePlanner:
		if e.showReasoning {
			fmt.Fprintf(e.writer, "\n🧭 Plan: %s\n", event.Content)
		}
	case agent.RoleNavigator:
		fmt.Fprintf(e.writer, "🎯 Goal: %s\n", event.Content)
	}
}

func (e *Executor) handleAction(a *types.ActionInfo) {
	if a == nil {
		return
	}
	keys := make([]string, 0, len(a.Params))
	for k := range a.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, a.Params[k]))
	}
	fmt.Fprintf(e.writer, "🔧 Action: %s %s\n", a.Name, strings.Join(parts, " "))
}
