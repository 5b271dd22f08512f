package approval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/metrics"
	"github.com/entrhq/pilot/pkg/types"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("approval")
	if err != nil {
		debugLog.Warnf("Failed to initialize approval logger, using stderr fallback: %v", err)
	}
}

const (
	// DefaultTimeout is how long a request waits for a human.
	DefaultTimeout = 5 * time.Minute

	// DefaultRequestBuffer is the capacity of the request channel.
	DefaultRequestBuffer = 16
)

// Outcome is how a check was resolved.
type Outcome string

const (
	OutcomeAuto     Outcome = "auto_approved"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	OutcomeTimeout  Outcome = "timeout"
)

// Policy is the workspace configuration a check runs under.
type Policy struct {
	StandingApprovals map[string]bool
	WorkspaceID       string
	TaskID            string
	AutonomyLevel     int
}

// approvedByPolicy reports whether every action has a standing approval.
func (p Policy) approvedByPolicy(actions []Action) bool {
	if len(actions) == 0 {
		return false
	}
	for _, a := range actions {
		if !p.StandingApprovals[strings.ToLower(a.Type)] {
			return false
		}
	}
	return true
}

// Request asks a human to approve actions.
type Request struct {
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	ID            string    `json:"id"`
	WorkspaceID   string    `json:"workspaceId"`
	TaskID        string    `json:"taskId,omitempty"`
	Risk          RiskLevel `json:"risk"`
	Reason        string    `json:"reason"`
	ActionType    string    `json:"actionType"`
	Actions       []Action  `json:"actions"`
	AutonomyLevel int       `json:"autonomyLevel"`
}

// Response is a human's answer to a Request.
type Response struct {
	RequestID string `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
	Approved  bool   `json:"approved"`
}

// Result is the outcome of Check.
type Result struct {
	Request    *Request   `json:"request,omitempty"`
	Outcome    Outcome    `json:"outcome"`
	Assessment Assessment `json:"assessment"`
	Reason     string     `json:"reason,omitempty"`
	Approved   bool       `json:"approved"`
}

type pending struct {
	req   *Request
	reply chan Response
}

// Gate serializes human approvals. Each open request owns a reply channel
// with room for one response, so a request is resolved exactly once.
type Gate struct {
	requests        chan *Request
	emit            types.EventEmitter
	trust           TrustRecorder
	now             func() time.Time
	timeout         time.Duration
	timeoutApproves bool

	mu      sync.Mutex
	pending map[string]*pending
	scores  map[string]float64
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithTimeout sets how long Check waits for a response.
func WithTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		g.timeout = d
	}
}

// WithTimeoutApproves sets the resolution of a request nobody answered.
// The default is to approve.
func WithTimeoutApproves(approve bool) GateOption {
	return func(g *Gate) {
		g.timeoutApproves = approve
	}
}

// WithEventEmitter receives approval events.
func WithEventEmitter(emit types.EventEmitter) GateOption {
	return func(g *Gate) {
		g.emit = emit
	}
}

// WithTrustRecorder persists trust adjustments.
func WithTrustRecorder(r TrustRecorder) GateOption {
	return func(g *Gate) {
		g.trust = r
	}
}

// WithRequestBuffer sets the request channel capacity.
func WithRequestBuffer(n int) GateOption {
	return func(g *Gate) {
		g.requests = make(chan *Request, n)
	}
}

// NewGate creates a gate.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{
		timeout:         DefaultTimeout,
		timeoutApproves: true,
		now:             time.Now,
		pending:         make(map[string]*pending),
		scores:          make(map[string]float64),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.requests == nil {
		g.requests = make(chan *Request, DefaultRequestBuffer)
	}
	return g
}

// Requests delivers every request that needs a human. Requests that do not
// fit in the buffer are still listed by Pending.
func (g *Gate) Requests() <-chan *Request {
	return g.requests
}

// Pending lists the open requests, oldest first.
func (g *Gate) Pending() []*Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Request, 0, len(g.pending))
	for _, p := range g.pending {
		out = append(out, p.req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Check assesses actions under policy. When approval is required it
// publishes a Request and blocks until Respond, the timeout, or ctx.
func (g *Gate) Check(ctx context.Context, policy Policy, actions []Action) (*Result, error) {
	assessment := AssessRisk(actions)
	texts := make([]string, 0, len(actions))
	for _, a := range actions {
		texts = append(texts, a.text())
	}
	decision := Decision{
		Risk:           assessment.Level,
		ActionType:     strings.Join(texts, "; "),
		AutonomyLevel:  policy.AutonomyLevel,
		PolicyApproved: policy.approvedByPolicy(actions),
	}
	if !RequiresApproval(decision) {
		metrics.RecordApproval(ctx, string(OutcomeAuto))
		return &Result{Approved: true, Outcome: OutcomeAuto, Assessment: assessment}, nil
	}

	now := g.now()
	req := &Request{
		ID:            uuid.NewString(),
		WorkspaceID:   policy.WorkspaceID,
		TaskID:        policy.TaskID,
		Actions:       actions,
		Risk:          assessment.Level,
		Reason:        reason(decision, assessment),
		ActionType:    decision.ActionType,
		AutonomyLevel: decision.AutonomyLevel,
		CreatedAt:     now,
		ExpiresAt:     now.Add(g.timeout),
	}
	reply := make(chan Response, 1)
	g.mu.Lock()
	g.pending[req.ID] = &pending{req: req, reply: reply}
	g.mu.Unlock()

	select {
	case g.requests <- req:
	default:
		debugLog.Warnf("Approval request channel full, request %s only visible via Pending", req.ID)
	}
	g.emitEvent(types.EventTypeApprovalRequest, req, req.Reason)
	debugLog.Infof("Waiting for approval %s (%s risk, workspace %s)", req.ID, req.Risk, req.WorkspaceID)

	return g.await(ctx, req, reply, assessment)
}

func (g *Gate) await(ctx context.Context, req *Request, reply chan Response, assessment Assessment) (*Result, error) {
	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case resp := <-reply:
		return g.resolve(ctx, req, resp, assessment), nil
	case <-timer.C:
		if !g.take(req.ID) {
			return g.resolve(ctx, req, <-reply, assessment), nil
		}
		g.emitEvent(types.EventTypeApprovalTimeout, req, "no response before timeout")
		metrics.RecordApproval(ctx, string(OutcomeTimeout))
		debugLog.Warnf("Approval %s timed out, resolving as approved=%v", req.ID, g.timeoutApproves)
		return &Result{
			Request:    req,
			Approved:   g.timeoutApproves,
			Outcome:    OutcomeTimeout,
			Assessment: assessment,
			Reason:     "no response before timeout",
		}, nil
	case <-ctx.Done():
		if !g.take(req.ID) {
			return g.resolve(ctx, req, <-reply, assessment), nil
		}
		return nil, types.NewCancelledError("approval wait cancelled", ctx.Err())
	}
}

func (g *Gate) resolve(ctx context.Context, req *Request, resp Response, assessment Assessment) *Result {
	outcome, event, delta := OutcomeRejected, types.EventTypeApprovalRejected, -TrustStep
	if resp.Approved {
		outcome, event, delta = OutcomeApproved, types.EventTypeApprovalGranted, TrustStep
	}
	g.emitEvent(event, req, resp.Reason)
	metrics.RecordApproval(ctx, string(outcome))
	g.adjustTrust(ctx, req.WorkspaceID, delta)
	return &Result{
		Request:    req,
		Approved:   resp.Approved,
		Outcome:    outcome,
		Assessment: assessment,
		Reason:     resp.Reason,
	}
}

// take removes an open request. It reports false if someone else already
// took it.
func (g *Gate) take(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pending[id]; !ok {
		return false
	}
	delete(g.pending, id)
	return true
}

// Respond resolves an open request. Unknown, late and repeated responses
// are ignored and reported as false.
func (g *Gate) Respond(resp Response) bool {
	g.mu.Lock()
	p, ok := g.pending[resp.RequestID]
	if ok {
		delete(g.pending, resp.RequestID)
	}
	g.mu.Unlock()
	if !ok {
		debugLog.Debugf("Ignoring response for unknown approval %s", resp.RequestID)
		return false
	}
	p.reply <- resp
	return true
}

func (g *Gate) emitEvent(t types.AgentEventType, req *Request, reason string) {
	if g.emit == nil {
		return
	}
	names := make([]string, 0, len(req.Actions))
	for _, a := range req.Actions {
		names = append(names, a.text())
	}
	g.emit(types.NewApprovalEvent(t, req.TaskID, &types.ApprovalInfo{
		ID:            req.ID,
		Actions:       names,
		ActionType:    req.ActionType,
		RiskLevel:     string(req.Risk),
		Reason:        reason,
		AutonomyLevel: req.AutonomyLevel,
	}))
}

func reason(d Decision, a Assessment) string {
	switch {
	case d.AutonomyLevel <= 2:
		return fmt.Sprintf("autonomy level %d requires approval for every action", d.AutonomyLevel)
	case d.Risk == RiskHigh:
		return fmt.Sprintf("high risk action (%s)", strings.Join(a.MatchedKeywords, ", "))
	case d.Risk == RiskMedium:
		return fmt.Sprintf("medium risk action at autonomy level %d", d.AutonomyLevel)
	case !d.PolicyApproved:
		return "no standing approval for this action"
	}
	return "destructive action"
}
