// Package workspace manages the isolation roots of pilot: workspaces with
// their autonomy settings, and the runs and checkpoints that let a session
// branch without overwriting its past.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/entrhq/pilot/pkg/kv"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/types"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("workspace")
	if err != nil {
		debugLog.Warnf("Failed to initialize workspace logger, using stderr fallback: %v", err)
	}
}

const (
	workspacePrefix = "workspace/"

	MinAutonomy = 1
	MaxAutonomy = 5

	// DefaultAutonomy applies when a workspace is created without a level.
	DefaultAutonomy = 3
	// DefaultTrust is the initial trust score.
	DefaultTrust = 0.5
)

// ErrNotFound is wrapped by every lookup of a missing workspace, run or
// checkpoint.
var ErrNotFound = errors.New("workspace: not found")

// Workspace is the root of isolation. All memory, context and todo data is
// keyed under its id.
type Workspace struct {
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	ApprovalPolicies map[string]bool `json:"approvalPolicies,omitempty"`
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Color            string          `json:"color,omitempty"`
	AutonomyLevel    int             `json:"autonomyLevel"`
	TrustScore       float64         `json:"trustScore"`
}

// Config is the user-editable surface of a workspace. Nil fields are left
// unchanged by Update.
type Config struct {
	ApprovalPolicies map[string]bool `json:"approvalPolicies,omitempty"`
	Name             *string         `json:"name,omitempty"`
	Color            *string         `json:"color,omitempty"`
	AutonomyLevel    *int            `json:"autonomyLevel,omitempty"`
	TrustScore       *float64        `json:"trustScore,omitempty"`
}

// Store persists workspaces, runs and checkpoints for one user.
type Store struct {
	kv     kv.Store
	now    func() time.Time
	userID string

	// Serializes read-modify-write of workspace records.
	mu sync.Mutex

	defaultAutonomy int
	defaultPolicies map[string]bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithDefaults sets the autonomy level and standing approvals given to new
// workspaces.
func WithDefaults(level int, policies map[string]bool) Option {
	return func(s *Store) {
		s.defaultAutonomy = level
		s.defaultPolicies = maps.Clone(policies)
	}
}

// NewStore creates a workspace store for userID.
func NewStore(store kv.Store, userID string, opts ...Option) *Store {
	s := &Store{
		kv:              store,
		userID:          userID,
		now:             time.Now,
		defaultAutonomy: DefaultAutonomy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) rootNS() kv.Namespace {
	return kv.Namespace{UserID: s.userID}
}

func (s *Store) put(ctx context.Context, ns kv.Namespace, key string, v any, meta map[string]string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("workspace: encode %s: %w", key, err)
	}
	if err := s.kv.Put(ctx, ns, key, raw, meta); err != nil {
		return fmt.Errorf("workspace: write %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, ns kv.Namespace, key string, out any) error {
	item, err := s.kv.Get(ctx, ns, key)
	if errors.Is(err, kv.ErrNotFound) {
		return types.NewNotFoundError(key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("workspace: read %s: %w", key, err)
	}
	if err := json.Unmarshal(item.Value, out); err != nil {
		return fmt.Errorf("workspace: decode %s: %w", key, err)
	}
	return nil
}

// Create adds a workspace. An empty id is allocated; an existing id is a
// conflict.
func (s *Store) Create(ctx context.Context, id string, cfg Config) (*Workspace, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = ulid.Make().String()
	}
	if strings.ContainsAny(id, "/*?[{") {
		return nil, types.NewBadRequestError(fmt.Sprintf("invalid workspace id %q", id), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.get(ctx, s.rootNS(), workspacePrefix+id, new(Workspace)); err == nil {
		return nil, types.NewConflictError(fmt.Sprintf("workspace %s already exists", id), nil)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now()
	ws := &Workspace{
		ID:               id,
		Name:             id,
		AutonomyLevel:    s.defaultAutonomy,
		ApprovalPolicies: maps.Clone(s.defaultPolicies),
		TrustScore:       DefaultTrust,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := apply(ws, cfg); err != nil {
		return nil, err
	}
	if err := s.put(ctx, s.rootNS(), workspacePrefix+id, ws, nil); err != nil {
		return nil, err
	}
	debugLog.Infof("Created workspace %s (autonomy %d)", id, ws.AutonomyLevel)
	return ws, nil
}

// Get returns a workspace.
func (s *Store) Get(ctx context.Context, id string) (*Workspace, error) {
	ws := new(Workspace)
	if err := s.get(ctx, s.rootNS(), workspacePrefix+id, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// List returns every workspace ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*Workspace, error) {
	items, err := s.kv.Search(ctx, kv.Query{Namespace: s.rootNS(), KeyPattern: workspacePrefix + "*"})
	if err != nil {
		return nil, fmt.Errorf("workspace: list: %w", err)
	}
	out := make([]*Workspace, 0, len(items))
	for _, it := range items {
		if it.Namespace.WorkspaceID != "" {
			continue
		}
		ws := new(Workspace)
		if err := json.Unmarshal(it.Value, ws); err != nil {
			debugLog.Warnf("Skipping corrupt workspace record %s: %v", it.Key, err)
			continue
		}
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Update applies cfg to a workspace.
func (s *Store) Update(ctx context.Context, id string, cfg Config) (*Workspace, error) {
	return s.modify(ctx, id, func(ws *Workspace) error {
		return apply(ws, cfg)
	})
}

// Delete removes the workspace record and every key stored under it.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.get(ctx, s.rootNS(), workspacePrefix+id, new(Workspace)); err != nil {
		return err
	}
	items, err := s.kv.Search(ctx, kv.Query{Namespace: kv.Namespace{UserID: s.userID, WorkspaceID: id}})
	if err != nil {
		return fmt.Errorf("workspace: list %s contents: %w", id, err)
	}
	for _, it := range items {
		if err := s.kv.Delete(ctx, it.Namespace, it.Key); err != nil && !errors.Is(err, kv.ErrNotFound) {
			return fmt.Errorf("workspace: delete %s: %w", it.Key, err)
		}
	}
	if err := s.kv.Delete(ctx, s.rootNS(), workspacePrefix+id); err != nil {
		return fmt.Errorf("workspace: delete %s: %w", id, err)
	}
	debugLog.Infof("Deleted workspace %s and %d stored items", id, len(items))
	return nil
}

// SetAutonomyLevel sets the level (1..5) that drives the approval gate.
func (s *Store) SetAutonomyLevel(ctx context.Context, id string, level int) (*Workspace, error) {
	return s.Update(ctx, id, Config{AutonomyLevel: &level})
}

// SetApprovalPolicy grants or revokes the standing approval for an action
// type.
func (s *Store) SetApprovalPolicy(ctx context.Context, id, actionType string, approved bool) (*Workspace, error) {
	actionType = strings.ToLower(strings.TrimSpace(actionType))
	if actionType == "" {
		return nil, types.NewBadRequestError("action type is required", nil)
	}
	return s.modify(ctx, id, func(ws *Workspace) error {
		if ws.ApprovalPolicies == nil {
			ws.ApprovalPolicies = make(map[string]bool)
		}
		if approved {
			ws.ApprovalPolicies[actionType] = true
		} else {
			delete(ws.ApprovalPolicies, actionType)
		}
		return nil
	})
}

// AdjustTrust moves the trust score by delta, clamped to [0, 1], and
// returns the new score.
func (s *Store) AdjustTrust(ctx context.Context, id string, delta float64) (float64, error) {
	ws, err := s.modify(ctx, id, func(ws *Workspace) error {
		ws.TrustScore = min(1, max(0, ws.TrustScore+delta))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return ws.TrustScore, nil
}

func (s *Store) modify(ctx context.Context, id string, fn func(*Workspace) error) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := new(Workspace)
	if err := s.get(ctx, s.rootNS(), workspacePrefix+id, ws); err != nil {
		return nil, err
	}
	if err := fn(ws); err != nil {
		return nil, err
	}
	ws.UpdatedAt = s.now()
	if err := s.put(ctx, s.rootNS(), workspacePrefix+id, ws, nil); err != nil {
		return nil, err
	}
	return ws, nil
}

func apply(ws *Workspace, cfg Config) error {
	if cfg.Name != nil {
		name := strings.TrimSpace(*cfg.Name)
		if name == "" {
			return types.NewBadRequestError("workspace name cannot be empty", nil)
		}
		ws.Name = name
	}
	if cfg.AutonomyLevel != nil {
		if *cfg.AutonomyLevel < MinAutonomy || *cfg.AutonomyLevel > MaxAutonomy {
			return types.NewBadRequestError(fmt.Sprintf("autonomy level must be between %d and %d, got %d", MinAutonomy, MaxAutonomy, *cfg.AutonomyLevel), nil)
		}
		ws.AutonomyLevel = *cfg.AutonomyLevel
	}
	if cfg.TrustScore != nil {
		if *cfg.TrustScore < 0 || *cfg.TrustScore > 1 {
			return types.NewBadRequestError("trust score must be within [0, 1]", nil)
		}
		ws.TrustScore = *cfg.TrustScore
	}
	if cfg.Color != nil {
		ws.Color = *cfg.Color
	}
	if cfg.ApprovalPolicies != nil {
		ws.ApprovalPolicies = make(map[string]bool, len(cfg.ApprovalPolicies))
		for k, v := range cfg.ApprovalPolicies {
			if v {
				ws.ApprovalPolicies[strings.ToLower(k)] = true
			}
		}
	}
	return nil
}
