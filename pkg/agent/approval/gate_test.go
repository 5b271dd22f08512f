package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/types"
)

type mockEventEmitter struct {
	mu     sync.Mutex
	events []*types.AgentEvent
}

func (m *mockEventEmitter) emit(e *types.AgentEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *mockEventEmitter) eventTypes() []types.AgentEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.AgentEventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func (m *mockEventEmitter) first() *types.AgentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[0]
}

type recordingTrust struct {
	mu     sync.Mutex
	deltas []float64
	score  float64
	err    error
}

func (r *recordingTrust) AdjustTrust(_ context.Context, _ string, delta float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.deltas = append(r.deltas, delta)
	r.score += delta
	return r.score, nil
}

var deleteAction = []Action{{Type: "click", Description: "delete account"}}

func supervised() Policy {
	return Policy{WorkspaceID: "w1", TaskID: "t1", AutonomyLevel: 3}
}

// answer responds to the next published request from a goroutine and
// returns a channel that closes once it has.
func answer(t *testing.T, g *Gate, approved bool) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := <-g.Requests()
		g.Respond(Response{RequestID: req.ID, Approved: approved, Reason: "user decision"})
	}()
	return done
}

func TestGate_AutoApproves(t *testing.T) {
	em := &mockEventEmitter{}
	g := NewGate(WithEventEmitter(em.emit))

	policy := Policy{WorkspaceID: "w1", AutonomyLevel: 4}
	res, err := g.Check(t.Context(), policy, []Action{{Type: "scroll", Description: "down"}})
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Equal(t, OutcomeAuto, res.Outcome)
	assert.Nil(t, res.Request)
	assert.Empty(t, em.eventTypes())
	assert.Equal(t, DefaultTrust, g.Trust("w1"))
}

func TestGate_StandingApproval(t *testing.T) {
	g := NewGate()
	policy := Policy{WorkspaceID: "w1", AutonomyLevel: 3, StandingApprovals: map[string]bool{"scroll": true}}

	res, err := g.Check(t.Context(), policy, []Action{{Type: "Scroll"}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuto, res.Outcome)
}

func TestGate_HumanDecision(t *testing.T) {
	tests := []struct {
		name      string
		approved  bool
		outcome   Outcome
		event     types.AgentEventType
		wantTrust float64
	}{
		{"granted", true, OutcomeApproved, types.EventTypeApprovalGranted, 0.6},
		{"rejected", false, OutcomeRejected, types.EventTypeApprovalRejected, 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			em := &mockEventEmitter{}
			rec := &recordingTrust{score: DefaultTrust}
			g := NewGate(WithEventEmitter(em.emit), WithTrustRecorder(rec))

			done := answer(t, g, tt.approved)
			res, err := g.Check(t.Context(), supervised(), deleteAction)
			<-done
			require.NoError(t, err)

			assert.Equal(t, tt.approved, res.Approved)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, RiskHigh, res.Assessment.Level)
			assert.Equal(t, "user decision", res.Reason)
			require.NotNil(t, res.Request)
			assert.Equal(t, "w1", res.Request.WorkspaceID)
			assert.Contains(t, res.Request.Reason, "delete")
			assert.Equal(t, 3, res.Request.AutonomyLevel)
			assert.Equal(t, "click delete account", res.Request.ActionType)

			assert.Equal(t, []types.AgentEventType{types.EventTypeApprovalRequest, tt.event}, em.eventTypes())
			info := em.first().Approval
			require.NotNil(t, info)
			assert.Equal(t, 3, info.AutonomyLevel)
			assert.Equal(t, "click delete account", info.ActionType)
			assert.InDelta(t, tt.wantTrust, g.Trust("w1"), 1e-9)
			assert.Len(t, rec.deltas, 1)
			assert.Empty(t, g.Pending())
		})
	}
}

func TestGate_Timeout(t *testing.T) {
	tests := []struct {
		name     string
		approves bool
	}{
		{"defaults to approve", true},
		{"configured to reject", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			em := &mockEventEmitter{}
			g := NewGate(
				WithTimeout(20*time.Millisecond),
				WithTimeoutApproves(tt.approves),
				WithEventEmitter(em.emit),
			)

			res, err := g.Check(t.Context(), supervised(), deleteAction)
			require.NoError(t, err)
			assert.Equal(t, OutcomeTimeout, res.Outcome)
			assert.Equal(t, tt.approves, res.Approved)
			assert.Equal(t, []types.AgentEventType{types.EventTypeApprovalRequest, types.EventTypeApprovalTimeout}, em.eventTypes())
			assert.Equal(t, DefaultTrust, g.Trust("w1"))
			assert.Empty(t, g.Pending())
		})
	}
}

func TestGate_ContextCancelled(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithCancel(t.Context())

	go func() {
		<-g.Requests()
		cancel()
	}()
	res, err := g.Check(ctx, supervised(), deleteAction)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindCancelled))
	assert.Empty(t, g.Pending())
}

func TestGate_RespondExactlyOnce(t *testing.T) {
	g := NewGate()
	assert.False(t, g.Respond(Response{RequestID: "unknown", Approved: true}))

	var wg sync.WaitGroup
	var res *Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, _ = g.Check(t.Context(), supervised(), deleteAction)
	}()

	req := <-g.Requests()
	require.Len(t, g.Pending(), 1)
	assert.Equal(t, req.ID, g.Pending()[0].ID)

	assert.True(t, g.Respond(Response{RequestID: req.ID, Approved: false}))
	assert.False(t, g.Respond(Response{RequestID: req.ID, Approved: true}))
	wg.Wait()

	require.NotNil(t, res)
	assert.False(t, res.Approved)
}

func TestGate_FullRequestBufferStillPending(t *testing.T) {
	g := NewGate(WithRequestBuffer(0))

	done := make(chan *Result, 1)
	go func() {
		res, _ := g.Check(t.Context(), supervised(), deleteAction)
		done <- res
	}()

	var pending []*Request
	require.Eventually(t, func() bool {
		pending = g.Pending()
		return len(pending) == 1
	}, time.Second, 5*time.Millisecond)

	g.Respond(Response{RequestID: pending[0].ID, Approved: true})
	res := <-done
	require.NotNil(t, res)
	assert.Equal(t, OutcomeApproved, res.Outcome)
}

func TestGate_TrustClampsAndPersists(t *testing.T) {
	rec := &recordingTrust{score: 0.95}
	g := NewGate(WithTrustRecorder(rec))
	g.SetTrust("w1", 0.95)

	done := answer(t, g, true)
	_, err := g.Check(t.Context(), supervised(), deleteAction)
	<-done
	require.NoError(t, err)
	assert.InDelta(t, 1.0, g.Trust("w1"), 1e-9)

	g.SetTrust("w2", -3)
	assert.Equal(t, 0.0, g.Trust("w2"))
}

func TestGate_TrustPersistFailureKeepsLocalScore(t *testing.T) {
	rec := &recordingTrust{err: errors.New("disk full")}
	g := NewGate(WithTrustRecorder(rec))

	done := answer(t, g, false)
	_, err := g.Check(t.Context(), supervised(), deleteAction)
	<-done
	require.NoError(t, err)
	assert.InDelta(t, 0.4, g.Trust("w1"), 1e-9)
}
