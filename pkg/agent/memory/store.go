package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/pilot/pkg/kv"
	"github.com/entrhq/pilot/pkg/llm/tokenizer"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/types"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("memory")
	if err != nil {
		debugLog.Warnf("Failed to initialize memory logger, using stderr fallback: %v", err)
	}
}

const (
	episodePrefix = "episode/"
	factPrefix    = "fact/"
	patternPrefix = "pattern/"
)

// Store persists the three memory tiers in a kv.Store, one namespace per
// (user, workspace). Episodes additionally carry the session as thread.
type Store struct {
	kv     kv.Store
	tokens tokenizer.Counter
	now    func() time.Time
	userID string
}

// Option configures a Store.
type Option func(*Store)

// WithTokenizer sets the token counter used at write time.
func WithTokenizer(c tokenizer.Counter) Option {
	return func(s *Store) {
		s.tokens = c
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a memory store for userID.
func NewStore(store kv.Store, userID string, opts ...Option) *Store {
	s := &Store{
		kv:     store,
		userID: userID,
		tokens: tokenizer.EstimateCounter{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ns scopes a workspace's memories. An empty workspace id would match every
// workspace in a search, so it is rejected.
func (s *Store) ns(workspaceID string) (kv.Namespace, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return kv.Namespace{}, types.NewBadRequestError("memory requires a workspace id", nil)
	}
	return kv.Namespace{UserID: s.userID, WorkspaceID: workspaceID}, nil
}

func (s *Store) put(ctx context.Context, ns kv.Namespace, key string, v any, meta map[string]string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("memory: encode %s: %w", key, err)
	}
	if err := s.kv.Put(ctx, ns, key, raw, meta); err != nil {
		return fmt.Errorf("memory: write %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, ns kv.Namespace, key string, out any) error {
	item, err := s.kv.Get(ctx, ns, key)
	if errors.Is(err, kv.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("memory: read %s: %w", key, err)
	}
	if err := json.Unmarshal(item.Value, out); err != nil {
		return fmt.Errorf("memory: decode %s: %w", key, err)
	}
	return nil
}

// list decodes every item under prefix. Undecodable items are skipped.
func list[T any](ctx context.Context, s *Store, workspaceID, prefix string) ([]*T, error) {
	ns, err := s.ns(workspaceID)
	if err != nil {
		return nil, err
	}
	items, err := s.kv.Search(ctx, kv.Query{Namespace: ns, KeyPattern: prefix + "*"})
	if err != nil {
		return nil, fmt.Errorf("memory: search %s: %w", prefix, err)
	}
	out := make([]*T, 0, len(items))
	for _, it := range items {
		v := new(T)
		if err := json.Unmarshal(it.Value, v); err != nil {
			debugLog.Warnf("Skipping corrupt memory item %s/%s: %v", it.Namespace, it.Key, err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
