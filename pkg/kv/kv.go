// Package kv defines the namespaced key-value contract every persistent
// component is built on, with in-memory and SQLite implementations.
//
// Keys live inside a four-level namespace (user, workspace, thread, run).
// Search treats an empty namespace field as a wildcard, so a query for
// {UserID: "u", WorkspaceID: "w"} sees every thread and run of that workspace.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

var (
	// ErrNotFound is returned when a key does not exist in the namespace.
	ErrNotFound = errors.New("kv: not found")
	// ErrInvalidNamespace is returned when a write targets a namespace without a user.
	ErrInvalidNamespace = errors.New("kv: namespace requires a user id")
)

// Namespace scopes a key. Writes require UserID; the remaining levels are optional.
type Namespace struct {
	UserID      string `json:"userId"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	ThreadID    string `json:"threadId,omitempty"`
	RunID       string `json:"runId,omitempty"`
}

// String renders the namespace as a slash-separated path.
func (n Namespace) String() string {
	parts := []string{n.UserID}
	for _, p := range []string{n.WorkspaceID, n.ThreadID, n.RunID} {
		if p == "" {
			break
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "/")
}

// Matches reports whether n satisfies the partial namespace q.
func (n Namespace) Matches(q Namespace) bool {
	return (q.UserID == "" || q.UserID == n.UserID) &&
		(q.WorkspaceID == "" || q.WorkspaceID == n.WorkspaceID) &&
		(q.ThreadID == "" || q.ThreadID == n.ThreadID) &&
		(q.RunID == "" || q.RunID == n.RunID)
}

func (n Namespace) validate() error {
	if n.UserID == "" {
		return ErrInvalidNamespace
	}
	return nil
}

// Item is a stored value with its bookkeeping.
type Item struct {
	Metadata  map[string]string
	Namespace Namespace
	Key       string
	Value     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Query selects items by partial namespace, key glob and update time.
type Query struct {
	Namespace  Namespace
	KeyPattern string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Store is the persistence contract. Implementations must be safe for
// concurrent use; the last writer for a (namespace, key) pair wins.
type Store interface {
	Put(ctx context.Context, ns Namespace, key string, value []byte, metadata map[string]string) error
	Get(ctx context.Context, ns Namespace, key string) (*Item, error)
	Search(ctx context.Context, q Query) ([]*Item, error)
	Delete(ctx context.Context, ns Namespace, key string) error
}

// keyMatcher compiles a key glob. An empty pattern matches everything.
type keyMatcher struct {
	g      glob.Glob
	prefix string
}

func newKeyMatcher(pattern string) (*keyMatcher, error) {
	if pattern == "" || pattern == "*" {
		return &keyMatcher{}, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("kv: invalid key pattern %q: %w", pattern, err)
	}
	return &keyMatcher{g: g, prefix: literalPrefix(pattern)}, nil
}

func (m *keyMatcher) Match(key string) bool {
	if m.g == nil {
		return true
	}
	return m.g.Match(key)
}

// literalPrefix returns the part of a glob before its first special character.
func literalPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, `*?[{\`); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

func inTimeRange(t time.Time, q Query) bool {
	if !q.Since.IsZero() && t.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && t.After(q.Until) {
		return false
	}
	return true
}

func cloneItem(it *Item) *Item {
	c := *it
	c.Value = append([]byte(nil), it.Value...)
	if it.Metadata != nil {
		c.Metadata = make(map[string]string, len(it.Metadata))
		for k, v := range it.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
