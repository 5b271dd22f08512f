package kv

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Items are indexed by user and
// workspace so workspace-scoped searches do not scan other tenants.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Item
	index map[string]map[string]struct{}
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*Item),
		index: make(map[string]map[string]struct{}),
		now:   time.Now,
	}
}

func itemID(ns Namespace, key string) string {
	return ns.UserID + "\x00" + ns.WorkspaceID + "\x00" + ns.ThreadID + "\x00" + ns.RunID + "\x00" + key
}

func indexKey(userID, workspaceID string) string {
	return userID + "\x00" + workspaceID
}

// Put stores value under (ns, key).
func (s *MemoryStore) Put(ctx context.Context, ns Namespace, key string, value []byte, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ns.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := itemID(ns, key)
	now := s.now()
	created := now
	if existing, ok := s.items[id]; ok {
		created = existing.CreatedAt
	}
	s.items[id] = cloneItem(&Item{
		Namespace: ns,
		Key:       key,
		Value:     value,
		Metadata:  metadata,
		CreatedAt: created,
		UpdatedAt: now,
	})

	ik := indexKey(ns.UserID, ns.WorkspaceID)
	if s.index[ik] == nil {
		s.index[ik] = make(map[string]struct{})
	}
	s.index[ik][id] = struct{}{}
	return nil
}

// Get returns a copy of the item or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, ns Namespace, key string) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[itemID(ns, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneItem(it), nil
}

// Search returns matching items ordered by key.
func (s *MemoryStore) Search(ctx context.Context, q Query) ([]*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matcher, err := newKeyMatcher(q.KeyPattern)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []string
	if q.Namespace.UserID != "" && q.Namespace.WorkspaceID != "" {
		for id := range s.index[indexKey(q.Namespace.UserID, q.Namespace.WorkspaceID)] {
			candidates = append(candidates, id)
		}
	} else {
		for id := range s.items {
			candidates = append(candidates, id)
		}
	}

	var out []*Item
	for _, id := range candidates {
		it := s.items[id]
		if !it.Namespace.Matches(q.Namespace) || !matcher.Match(it.Key) || !inTimeRange(it.UpdatedAt, q) {
			continue
		}
		out = append(out, cloneItem(it))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Namespace.String() < out[j].Namespace.String()
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Delete removes (ns, key). Deleting a missing key is not an error.
func (s *MemoryStore) Delete(ctx context.Context, ns Namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := itemID(ns, key)
	delete(s.items, id)
	if set := s.index[indexKey(ns.UserID, ns.WorkspaceID)]; set != nil {
		delete(set, id)
	}
	return nil
}
