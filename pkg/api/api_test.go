package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/agent/approval"
	"github.com/entrhq/pilot/pkg/agent/memory"
	"github.com/entrhq/pilot/pkg/browser/browsertest"
	"github.com/entrhq/pilot/pkg/inference"
	"github.com/entrhq/pilot/pkg/kv"
	"github.com/entrhq/pilot/pkg/llm/llmtest"
	"github.com/entrhq/pilot/pkg/types"
	"github.com/entrhq/pilot/pkg/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const doneReply = `{"observation":"nothing left","reasoning":"answer known","done":true,"final_answer":"42"}`

type fixture struct {
	handler http.Handler
	tasks   *TaskManager
	gate    *approval.Gate
	spaces  *workspace.Store
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	store := kv.NewMemoryStore()
	provider := llmtest.New()
	provider.Respond = func([]*types.Message) (string, error) { return doneReply, nil }
	router, err := inference.NewRouter(inference.WithLocal(provider))
	require.NoError(t, err)

	spaces := workspace.NewStore(store, "u1")
	deps := agent.Deps{
		Inference:  router,
		Actuator:   browsertest.New(),
		KV:         store,
		Workspaces: spaces,
	}
	tasks := NewTaskManager(func(req TaskRequest) (*agent.Executor, error) {
		return agent.NewExecutor(req.Task, deps,
			agent.WithUserID("u1"),
			agent.WithWorkspace(req.WorkspaceID),
			agent.WithSession(req.SessionID))
	})
	t.Cleanup(tasks.Close)

	gate := approval.NewGate(approval.WithTimeout(time.Second))
	f := &fixture{tasks: tasks, gate: gate, spaces: spaces}
	f.handler = NewRouter(Deps{
		Tasks:      tasks,
		Gate:       gate,
		Inference:  router,
		Workspaces: spaces,
		Memory:     memory.NewStore(store, "u1"),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("pilot_runs_total 1\n"))
		}),
		Token: token,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) waitIdle(t *testing.T, id string) TaskView {
	t.Helper()
	var v TaskView
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/v1/tasks/"+id, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		v = decode[TaskView](t, rec)
		return !v.Running && v.Result != nil
	}, 2*time.Second, 10*time.Millisecond)
	return v
}

func TestTasks_Lifecycle(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/v1/tasks", TaskRequest{Task: "what is the answer", SessionID: "s1"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	created := decode[TaskView](t, rec)
	require.NotEmpty(t, created.ID)

	done := f.waitIdle(t, created.ID)
	assert.Equal(t, agent.StatusCompleted, done.Result.Status)
	assert.Equal(t, "42", done.Result.FinalAnswer)
	assert.Equal(t, agent.StateDone, done.State)
	assert.Equal(t, "default", done.WorkspaceID)

	rec = f.do(t, http.MethodPost, "/v1/tasks/"+created.ID+"/followup", map[string]string{"task": "and again"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	again := f.waitIdle(t, created.ID)
	assert.Equal(t, "and again", again.Task)

	require.Eventually(t, func() bool {
		v := decode[TaskView](t, f.do(t, http.MethodGet, "/v1/tasks/"+created.ID, nil))
		for _, ev := range v.Events {
			if ev.Type == types.EventTypeFollowUp {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	list := decode[[]TaskView](t, f.do(t, http.MethodGet, "/v1/tasks", nil))
	assert.Len(t, list, 1)
}

func TestTasks_Errors(t *testing.T) {
	f := newFixture(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"empty task", http.MethodPost, "/v1/tasks", TaskRequest{Task: " "}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/tasks", map[string]string{"goal": "x"}, http.StatusBadRequest},
		{"missing body", http.MethodPost, "/v1/tasks", nil, http.StatusBadRequest},
		{"unknown task", http.MethodGet, "/v1/tasks/nope", nil, http.StatusNotFound},
		{"cancel unknown task", http.MethodPost, "/v1/tasks/nope/cancel", nil, http.StatusNotFound},
		{"follow-up of unknown task", http.MethodPost, "/v1/tasks/nope/followup", map[string]string{"task": "x"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestTasks_PauseResume(t *testing.T) {
	f := newFixture(t, "")
	created := decode[TaskView](t, f.do(t, http.MethodPost, "/v1/tasks", TaskRequest{Task: "answer"}))
	f.waitIdle(t, created.ID)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/tasks/"+created.ID+"/pause", nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/v1/tasks/"+created.ID+"/pause", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/tasks/"+created.ID+"/resume", nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/v1/tasks/"+created.ID+"/resume", nil).Code)
}

func TestApprovals(t *testing.T) {
	f := newFixture(t, "")

	result := make(chan *approval.Result, 1)
	go func() {
		r, err := f.gate.Check(context.Background(), approval.Policy{WorkspaceID: "w1", AutonomyLevel: 1},
			[]approval.Action{{Type: "click", Description: "#submit"}})
		if err != nil {
			r = nil
		}
		result <- r
	}()

	var pending []*approval.Request
	require.Eventually(t, func() bool {
		pending = decode[[]*approval.Request](t, f.do(t, http.MethodGet, "/v1/approvals", nil))
		return len(pending) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, pending[0].AutonomyLevel)
	assert.Equal(t, "click #submit", pending[0].ActionType)

	rec := f.do(t, http.MethodPost, "/v1/approvals/"+pending[0].ID, decisionRequest{Approved: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	r := <-result
	require.NotNil(t, r)
	assert.True(t, r.Approved)

	rec = f.do(t, http.MethodPost, "/v1/approvals/"+pending[0].ID, decisionRequest{Approved: true})
	assert.Equal(t, http.StatusNotFound, rec.Code, "already answered")
}

func TestInference(t *testing.T) {
	f := newFixture(t, "")

	st := decode[inference.Status](t, f.do(t, http.MethodGet, "/v1/inference", nil))
	assert.Equal(t, "local", st.Preference)

	rec := f.do(t, http.MethodPut, "/v1/inference", preferenceRequest{Preference: "remote"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "remote", decode[inference.Status](t, rec).Preference)

	rec = f.do(t, http.MethodPut, "/v1/inference", preferenceRequest{Preference: "cloudy"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkspaces(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/v1/workspaces", map[string]any{"id": "travel", "name": "Travel"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ws := decode[workspace.Workspace](t, rec)
	assert.Equal(t, workspace.DefaultAutonomy, ws.AutonomyLevel)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"duplicate", http.MethodPost, "/v1/workspaces", map[string]any{"id": "travel", "name": "Again"}, http.StatusConflict},
		{"list", http.MethodGet, "/v1/workspaces", nil, http.StatusOK},
		{"get", http.MethodGet, "/v1/workspaces/travel", nil, http.StatusOK},
		{"get unknown", http.MethodGet, "/v1/workspaces/nope", nil, http.StatusNotFound},
		{"set autonomy", http.MethodPut, "/v1/workspaces/travel/autonomy", autonomyRequest{Level: 5}, http.StatusOK},
		{"autonomy out of range", http.MethodPut, "/v1/workspaces/travel/autonomy", autonomyRequest{Level: 9}, http.StatusBadRequest},
		{"memory stats", http.MethodGet, "/v1/workspaces/travel/memory/stats", nil, http.StatusOK},
		{"memory stats of unknown workspace", http.MethodGet, "/v1/workspaces/nope/memory/stats", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	got, err := f.spaces.Get(context.Background(), "travel")
	require.NoError(t, err)
	assert.Equal(t, 5, got.AutonomyLevel)
}

func TestHealthMetricsAndAuth(t *testing.T) {
	f := newFixture(t, "secret")

	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[healthResponse](t, rec).Status)

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pilot_runs_total")

	rec = f.do(t, http.MethodGet, "/v1/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer secret")
	authed := httptest.NewRecorder()
	f.handler.ServeHTTP(authed, req)
	assert.Equal(t, http.StatusOK, authed.Code)
}

func TestTaskManager_SendRejectsApprovalInput(t *testing.T) {
	f := newFixture(t, "")
	created := decode[TaskView](t, f.do(t, http.MethodPost, "/v1/tasks", TaskRequest{Task: "answer"}))
	f.waitIdle(t, created.ID)

	_, err := f.tasks.Send(created.ID, types.NewApprovalInput("req-1", true))
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindBadRequest))
}
