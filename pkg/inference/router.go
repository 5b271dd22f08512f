package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/llm"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/metrics"
	"github.com/entrhq/pilot/pkg/types"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("inference")
	if err != nil {
		debugLog.Warnf("Failed to initialize inference logger, using stderr fallback: %v", err)
	}
}

// DefaultReadinessTTL is how long a local health check result is trusted.
const DefaultReadinessTTL = 30 * time.Second

// Preferences persists the user's backend choice. *config.Config satisfies it.
type Preferences interface {
	GetInferencePreference() string
	SaveInferencePreference(p string) error
}

// Status describes the router for display.
type Status struct {
	Preference       string  `json:"preference"`
	CurrentProvider  Backend `json:"current_provider"`
	LastProviderUsed Backend `json:"last_provider_used,omitempty"`
	LastError        string  `json:"last_error,omitempty"`
	LocalModel       string  `json:"local_model,omitempty"`
	RemoteModel      string  `json:"remote_model,omitempty"`
	LocalReady       bool    `json:"local_ready"`
}

// Router chooses a backend per call.
type Router struct {
	local    llm.Provider
	bridge   *Bridge
	prefs    Preferences
	now      func() time.Time
	readyTTL time.Duration

	mu         sync.Mutex
	preference string
	localReady bool
	checkedAt  time.Time
	lastErr    error
	lastUsed   Backend
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLocal sets the local backend.
func WithLocal(p llm.Provider) RouterOption {
	return func(r *Router) {
		r.local = p
	}
}

// WithRemote sets the bridge to the remote backend.
func WithRemote(b *Bridge) RouterOption {
	return func(r *Router) {
		r.bridge = b
	}
}

// WithPreferences sets where the backend preference is read and persisted.
func WithPreferences(p Preferences) RouterOption {
	return func(r *Router) {
		r.prefs = p
	}
}

// WithReadinessTTL overrides DefaultReadinessTTL.
func WithReadinessTTL(d time.Duration) RouterOption {
	return func(r *Router) {
		r.readyTTL = d
	}
}

// NewRouter creates a router. At least one backend is required.
func NewRouter(opts ...RouterOption) (*Router, error) {
	r := &Router{
		now:        time.Now,
		readyTTL:   DefaultReadinessTTL,
		preference: config.PreferenceLocal,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.local == nil && r.bridge == nil {
		return nil, fmt.Errorf("inference router needs a local or remote backend")
	}
	return r, nil
}

// Invoke runs req on the preferred ready backend, falling back to remote.
func (r *Router) Invoke(ctx context.Context, req Request) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var localErr error
	if r.Preference() == config.PreferenceLocal && r.LocalReady(ctx) {
		content, err := complete(ctx, r.local, req)
		if err == nil {
			r.record(BackendLocal, nil)
			metrics.RecordInference(ctx, string(BackendLocal), "ok")
			return &Response{Content: content, ProviderUsed: BackendLocal}, nil
		}
		metrics.RecordInference(ctx, string(BackendLocal), "error")
		if types.IsKind(err, types.ErrKindCancelled) || ctx.Err() != nil {
			r.record(BackendLocal, err)
			return nil, err
		}
		debugLog.Warnf("Local inference failed, falling back to remote: %v", err)
		localErr = err
		r.invalidateReadiness()
	}

	if r.bridge == nil {
		if localErr == nil {
			localErr = errors.New("local backend is not ready and no remote backend is configured")
		}
		r.record(BackendLocal, localErr)
		return nil, localErr
	}

	content, err := r.bridge.Call(ctx, req)
	r.record(BackendRemote, err)
	if err != nil {
		metrics.RecordInference(ctx, string(BackendRemote), "error")
		return nil, err
	}
	metrics.RecordInference(ctx, string(BackendRemote), "ok")
	return &Response{Content: content, ProviderUsed: BackendRemote}, nil
}

// InvokeJSON runs a structured request and decodes the result into out.
func (r *Router) InvokeJSON(ctx context.Context, req Request, out any) (Backend, error) {
	if req.OutputSchema == nil {
		req.OutputSchema = map[string]any{"type": "object"}
	}
	resp, err := r.Invoke(ctx, req)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal([]byte(resp.Content), out); err != nil {
		return resp.ProviderUsed, types.NewResponseParseError(resp.Content, err)
	}
	return resp.ProviderUsed, nil
}

// LocalReady reports whether the local backend answered its last health
// check. Results are cached for the readiness TTL.
func (r *Router) LocalReady(ctx context.Context) bool {
	if r.local == nil {
		return false
	}
	hc, ok := r.local.(llm.HealthChecker)
	if !ok {
		return true
	}

	r.mu.Lock()
	if !r.checkedAt.IsZero() && r.now().Sub(r.checkedAt) < r.readyTTL {
		ready := r.localReady
		r.mu.Unlock()
		return ready
	}
	r.mu.Unlock()

	err := hc.Ping(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.localReady = err == nil
	r.checkedAt = r.now()
	if err != nil {
		debugLog.Debugf("Local backend not ready: %v", err)
	}
	return r.localReady
}

func (r *Router) invalidateReadiness() {
	r.mu.Lock()
	r.checkedAt = time.Time{}
	r.mu.Unlock()
}

func (r *Router) record(b Backend, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUsed = b
	r.lastErr = err
}

// Preference returns the current backend preference.
func (r *Router) Preference() string {
	if r.prefs != nil {
		if p := r.prefs.GetInferencePreference(); p != "" {
			return p
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preference
}

// SetPreference changes and persists the backend preference.
func (r *Router) SetPreference(p string) error {
	if p != config.PreferenceLocal && p != config.PreferenceRemote {
		return types.NewBadRequestError(fmt.Sprintf("unknown inference preference %q", p), nil)
	}
	if r.prefs != nil {
		if err := r.prefs.SaveInferencePreference(p); err != nil {
			return fmt.Errorf("failed to persist inference preference: %w", err)
		}
	}
	r.mu.Lock()
	r.preference = p
	r.mu.Unlock()
	debugLog.Infof("Inference preference set to %s", p)
	return nil
}

// Status reports the router state, refreshing local readiness if stale.
func (r *Router) Status(ctx context.Context) Status {
	pref := r.Preference()
	ready := r.LocalReady(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{
		Preference:       pref,
		LocalReady:       ready,
		LastProviderUsed: r.lastUsed,
		CurrentProvider:  BackendRemote,
	}
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}
	if pref == config.PreferenceLocal && ready {
		s.CurrentProvider = BackendLocal
	}
	if r.local != nil {
		s.LocalModel = r.local.GetModel()
	}
	if r.bridge != nil {
		s.RemoteModel = r.bridge.Provider().GetModel()
	}
	return s
}
