package api

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/types"
)

// eventHistory is how many recent events a task keeps for GET /v1/tasks/{id}.
const eventHistory = 50

// TaskRequest is the body of POST /v1/tasks.
type TaskRequest struct {
	Task        string `json:"task"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
}

// ExecutorFactory builds the executor for a submitted task.
type ExecutorFactory func(req TaskRequest) (*agent.Executor, error)

// EventView is the wire form of an executor event.
type EventView struct {
	Timestamp time.Time            `json:"timestamp"`
	Type      types.AgentEventType `json:"type"`
	Role      string               `json:"role,omitempty"`
	Content   string               `json:"content,omitempty"`
	State     string               `json:"state,omitempty"`
	Error     string               `json:"error,omitempty"`
	Step      int                  `json:"step"`
}

// TaskView is the wire form of a task.
type TaskView struct {
	Result      *agent.Result `json:"result,omitempty"`
	ID          string        `json:"id"`
	Task        string        `json:"task"`
	WorkspaceID string        `json:"workspaceId"`
	SessionID   string        `json:"sessionId"`
	State       agent.State   `json:"state"`
	Error       string        `json:"error,omitempty"`
	Events      []EventView   `json:"events"`
	Running     bool          `json:"running"`
}

type task struct {
	ex *agent.Executor

	mu     sync.Mutex
	events []EventView
	err    error
}

func (t *task) record(ev *types.AgentEvent) {
	v := EventView{
		Timestamp: ev.Timestamp,
		Type:      ev.Type,
		Role:      ev.Role,
		Content:   ev.Content,
		State:     ev.State,
		Step:      ev.Step,
	}
	if ev.Error != nil {
		v.Error = ev.Error.Error()
	}
	t.mu.Lock()
	t.events = append(t.events, v)
	if len(t.events) > eventHistory {
		t.events = t.events[len(t.events)-eventHistory:]
	}
	t.mu.Unlock()
}

func (t *task) view() TaskView {
	t.mu.Lock()
	events := append([]EventView(nil), t.events...)
	err := t.err
	t.mu.Unlock()

	v := TaskView{
		Result:      t.ex.LastResult(),
		ID:          t.ex.TaskID(),
		Task:        t.ex.Task(),
		WorkspaceID: t.ex.WorkspaceID(),
		SessionID:   t.ex.SessionID(),
		State:       t.ex.State(),
		Events:      events,
		Running:     t.ex.Running(),
	}
	if err != nil {
		v.Error = err.Error()
	}
	return v
}

// TaskManager runs submitted tasks in the background and keeps their
// executors addressable by task id.
type TaskManager struct {
	factory ExecutorFactory

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	tasks  map[string]*task
	runs   sync.WaitGroup
	drains sync.WaitGroup
	closed bool
}

// NewTaskManager creates a manager. Tasks run until they finish or Close
// is called.
func NewTaskManager(factory ExecutorFactory) *TaskManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskManager{
		factory: factory,
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(map[string]*task),
	}
}

// Submit builds an executor for req and starts it.
func (m *TaskManager) Submit(req TaskRequest) (TaskView, error) {
	if strings.TrimSpace(req.Task) == "" {
		return TaskView{}, types.NewBadRequestError("task cannot be empty", nil)
	}
	ex, err := m.factory(req)
	if err != nil {
		return TaskView{}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		ex.Close()
		return TaskView{}, types.NewConflictError("task manager is shutting down", nil)
	}
	t := &task{ex: ex}
	m.tasks[ex.TaskID()] = t
	m.drains.Add(1)
	m.mu.Unlock()

	go m.drain(t)
	if err := m.start(t); err != nil {
		return TaskView{}, err
	}
	debugLog.Infof("Submitted task %s in workspace %s", ex.TaskID(), ex.WorkspaceID())
	return t.view(), nil
}

// Get returns a task by id.
func (m *TaskManager) Get(id string) (TaskView, error) {
	t, err := m.lookup(id)
	if err != nil {
		return TaskView{}, err
	}
	return t.view(), nil
}

// List returns every known task.
func (m *TaskManager) List() []TaskView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TaskView, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.view())
	}
	return out
}

// Pause pauses a task.
func (m *TaskManager) Pause(id string) (TaskView, error) {
	return m.Send(id, types.NewPauseInput())
}

// Resume resumes a paused task.
func (m *TaskManager) Resume(id string) (TaskView, error) {
	return m.Send(id, types.NewResumeInput())
}

// Cancel cancels a task.
func (m *TaskManager) Cancel(id string) (TaskView, error) {
	return m.Send(id, types.NewCancelInput())
}

// FollowUp queues a follow-up on a finished task and runs it.
func (m *TaskManager) FollowUp(id, followUp string) (TaskView, error) {
	return m.Send(id, types.NewFollowUpInput(followUp))
}

// Send applies a control input to a task. Approval answers go to the gate,
// not to a task.
func (m *TaskManager) Send(id string, in *types.Input) (TaskView, error) {
	switch in.Type {
	case types.InputTypePause:
		return m.control(id, func(ex *agent.Executor) error { return ex.Pause() })
	case types.InputTypeResume:
		return m.control(id, func(ex *agent.Executor) error { return ex.Resume() })
	case types.InputTypeCancel:
		return m.control(id, func(ex *agent.Executor) error {
			ex.Cancel()
			return nil
		})
	case types.InputTypeFollowUp:
		t, err := m.lookup(id)
		if err != nil {
			return TaskView{}, err
		}
		if err := t.ex.AddFollowUpTask(in.Content); err != nil {
			return TaskView{}, err
		}
		if err := m.start(t); err != nil {
			return TaskView{}, err
		}
		return t.view(), nil
	default:
		return TaskView{}, types.NewBadRequestError(fmt.Sprintf("input %q cannot be sent to a task", in.Type), nil)
	}
}

func (m *TaskManager) control(id string, fn func(*agent.Executor) error) (TaskView, error) {
	t, err := m.lookup(id)
	if err != nil {
		return TaskView{}, err
	}
	if err := fn(t.ex); err != nil {
		return TaskView{}, err
	}
	return t.view(), nil
}

func (m *TaskManager) lookup(id string) (*task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, types.NewNotFoundError("task "+id, nil)
	}
	return t, nil
}

func (m *TaskManager) start(t *task) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return types.NewConflictError("task manager is shutting down", nil)
	}
	m.runs.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.runs.Done()
		_, err := t.ex.Execute(m.ctx)
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		if err != nil {
			debugLog.Warnf("Task %s failed: %v", t.ex.TaskID(), err)
		}
	}()
	return nil
}

// drain keeps the executor's event channel flowing until it is closed.
func (m *TaskManager) drain(t *task) {
	defer m.drains.Done()
	for ev := range t.ex.Events() {
		t.record(ev)
	}
}

// Close cancels every running task, waits for the runs to return and
// releases the executors.
func (m *TaskManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.runs.Wait()

	m.mu.RLock()
	for _, t := range m.tasks {
		t.ex.Close()
	}
	m.mu.RUnlock()
	m.drains.Wait()
}
