package todo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/entrhq/pilot/pkg/kv"
	"github.com/entrhq/pilot/pkg/textmatch"
	"github.com/entrhq/pilot/pkg/types"
)

const keyPrefix = "todo/"

// MatchThreshold is the share of a description's words an outcome must
// contain for CompleteMatching to close the item.
const MatchThreshold = 0.5

// Store persists todo lists keyed by (workspace, session). All
// read-modify-write operations are serialized.
type Store struct {
	kv     kv.Store
	now    func() time.Time
	userID string
	mu     sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a todo store for userID.
func NewStore(store kv.Store, userID string, opts ...Option) *Store {
	s := &Store{kv: store, userID: userID, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ns keys one list. Empty ids act as search wildcards in kv, so they are
// rejected.
func (s *Store) ns(workspaceID, sessionID string) (kv.Namespace, error) {
	if strings.TrimSpace(workspaceID) == "" || strings.TrimSpace(sessionID) == "" {
		return kv.Namespace{}, types.NewBadRequestError("todo requires a workspace and a session", nil)
	}
	return kv.Namespace{UserID: s.userID, WorkspaceID: workspaceID, ThreadID: sessionID}, nil
}

func (s *Store) put(ctx context.Context, ws, session string, it *Item) error {
	ns, err := s.ns(ws, session)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("todo: encode %s: %w", it.ID, err)
	}
	meta := map[string]string{"status": string(it.Status)}
	if err := s.kv.Put(ctx, ns, keyPrefix+it.ID, raw, meta); err != nil {
		return fmt.Errorf("todo: write %s: %w", it.ID, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, ws, session, id string) (*Item, error) {
	ns, err := s.ns(ws, session)
	if err != nil {
		return nil, err
	}
	found, err := s.kv.Get(ctx, ns, keyPrefix+id)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, types.NewNotFoundError(fmt.Sprintf("todo %s", id), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("todo: read %s: %w", id, err)
	}
	it := new(Item)
	if err := json.Unmarshal(found.Value, it); err != nil {
		return nil, fmt.Errorf("todo: decode %s: %w", id, err)
	}
	return it, nil
}

// Add validates it and appends it to the list as pending. Dependencies must
// name items already in the same list.
func (s *Store) Add(ctx context.Context, workspaceID, sessionID string, it Item) (*Item, error) {
	if _, err := s.ns(workspaceID, sessionID); err != nil {
		return nil, err
	}
	if err := validate(&it); err != nil {
		return nil, types.NewBadRequestError(err.Error(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dep := range it.Dependencies {
		if _, err := s.get(ctx, workspaceID, sessionID, dep); err != nil {
			return nil, types.NewBadRequestError(fmt.Sprintf("unknown dependency %s", dep), err)
		}
	}
	now := s.now()
	it.ID = IDPrefix + ulid.Make().String()
	it.Status = StatusPending
	it.CreatedAt = now
	it.UpdatedAt = now
	it.StartedAt = time.Time{}
	it.ActualDuration = 0
	if err := s.put(ctx, workspaceID, sessionID, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

// Get returns one item.
func (s *Store) Get(ctx context.Context, workspaceID, sessionID, id string) (*Item, error) {
	return s.get(ctx, workspaceID, sessionID, id)
}

// List returns every item of the list, highest priority first, then oldest
// first.
func (s *Store) List(ctx context.Context, workspaceID, sessionID string) ([]*Item, error) {
	ns, err := s.ns(workspaceID, sessionID)
	if err != nil {
		return nil, err
	}
	found, err := s.kv.Search(ctx, kv.Query{Namespace: ns, KeyPattern: keyPrefix + "*"})
	if err != nil {
		return nil, fmt.Errorf("todo: list: %w", err)
	}
	out := make([]*Item, 0, len(found))
	for _, f := range found {
		it := new(Item)
		if err := json.Unmarshal(f.Value, it); err != nil {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Pending returns the open items (pending or in progress) in List order.
func (s *Store) Pending(ctx context.Context, workspaceID, sessionID string) ([]*Item, error) {
	all, err := s.List(ctx, workspaceID, sessionID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, it := range all {
		if it.Status.Open() {
			out = append(out, it)
		}
	}
	return out, nil
}

// UpdateStatus moves an item to status. Setting the current status again is
// a no-op; any other move outside the allowed transitions, including
// reopening a finished item, returns ErrInvalidTransition.
func (s *Store) UpdateStatus(ctx context.Context, workspaceID, sessionID, id string, status Status) (*Item, error) {
	if !status.Valid() {
		return nil, types.NewBadRequestError(fmt.Sprintf("unknown todo status %q", status), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.get(ctx, workspaceID, sessionID, id)
	if err != nil {
		return nil, err
	}
	if it.Status == status {
		return it, nil
	}
	if !CanTransition(it.Status, status) {
		return nil, types.NewConflictError(fmt.Sprintf("todo %s: %s -> %s", id, it.Status, status), ErrInvalidTransition)
	}
	s.apply(it, status)
	if err := s.put(ctx, workspaceID, sessionID, it); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Store) apply(it *Item, status Status) {
	now := s.now()
	switch {
	case status == StatusInProgress || status == StatusDelegated:
		it.StartedAt = now
	case status.Terminal():
		start := it.StartedAt
		if start.IsZero() {
			start = it.CreatedAt
		}
		it.ActualDuration = now.Sub(start)
	}
	it.Status = status
	it.UpdatedAt = now
}

// CompleteMatching closes every open item whose description is covered by
// outcome, recording its actual duration. The closed items are returned.
func (s *Store) CompleteMatching(ctx context.Context, workspaceID, sessionID, outcome string) ([]*Item, error) {
	all, err := s.Pending(ctx, workspaceID, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var closed []*Item
	for _, it := range all {
		if textmatch.Overlap(it.Description, outcome) < MatchThreshold {
			continue
		}
		current, err := s.get(ctx, workspaceID, sessionID, it.ID)
		if err != nil || !current.Status.Open() {
			continue
		}
		s.apply(current, StatusCompleted)
		if err := s.put(ctx, workspaceID, sessionID, current); err != nil {
			return closed, err
		}
		closed = append(closed, current)
	}
	return closed, nil
}
