package kv

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func keys(items []*Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Key)
	}
	return out
}

func TestStorePutGet(t *testing.T) {
	ctx := context.Background()
	ns := Namespace{UserID: "u1", WorkspaceID: "ws1"}

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, ns, "fact:deadline", []byte(`"friday"`), map[string]string{"tier": "semantic"}))

			it, err := s.Get(ctx, ns, "fact:deadline")
			require.NoError(t, err)
			assert.Equal(t, `"friday"`, string(it.Value))
			assert.Equal(t, "semantic", it.Metadata["tier"])
			assert.Equal(t, ns, it.Namespace)

			_, err = s.Get(ctx, Namespace{UserID: "u1", WorkspaceID: "other"}, "fact:deadline")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreLastWriterWins(t *testing.T) {
	ctx := context.Background()
	ns := Namespace{UserID: "u1", WorkspaceID: "ws1"}

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, ns, "k", []byte("one"), nil))
			first, err := s.Get(ctx, ns, "k")
			require.NoError(t, err)

			require.NoError(t, s.Put(ctx, ns, "k", []byte("two"), nil))
			second, err := s.Get(ctx, ns, "k")
			require.NoError(t, err)

			assert.Equal(t, "two", string(second.Value))
			assert.Equal(t, first.CreatedAt.UnixNano(), second.CreatedAt.UnixNano())
			assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
		})
	}
}

func TestStoreSearch(t *testing.T) {
	ctx := context.Background()
	u := "u1"

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, Namespace{UserID: u, WorkspaceID: "ws1", ThreadID: "s1"}, "episode:0001", []byte("a"), nil))
			require.NoError(t, s.Put(ctx, Namespace{UserID: u, WorkspaceID: "ws1", ThreadID: "s2"}, "episode:0002", []byte("b"), nil))
			require.NoError(t, s.Put(ctx, Namespace{UserID: u, WorkspaceID: "ws1"}, "fact:team_size", []byte("c"), nil))
			require.NoError(t, s.Put(ctx, Namespace{UserID: u, WorkspaceID: "ws2"}, "episode:0003", []byte("d"), nil))
			require.NoError(t, s.Put(ctx, Namespace{UserID: "u2", WorkspaceID: "ws1"}, "episode:0004", []byte("e"), nil))

			got, err := s.Search(ctx, Query{Namespace: Namespace{UserID: u, WorkspaceID: "ws1"}, KeyPattern: "episode:*"})
			require.NoError(t, err)
			if diff := cmp.Diff([]string{"episode:0001", "episode:0002"}, keys(got)); diff != "" {
				t.Errorf("workspace episodes mismatch (-want +got):\n%s", diff)
			}

			got, err = s.Search(ctx, Query{Namespace: Namespace{UserID: u}, KeyPattern: "episode:*"})
			require.NoError(t, err)
			assert.Equal(t, []string{"episode:0001", "episode:0002", "episode:0003"}, keys(got))

			got, err = s.Search(ctx, Query{Namespace: Namespace{UserID: u, WorkspaceID: "ws1", ThreadID: "s2"}})
			require.NoError(t, err)
			assert.Equal(t, []string{"episode:0002"}, keys(got))

			got, err = s.Search(ctx, Query{Namespace: Namespace{UserID: u, WorkspaceID: "ws1"}, KeyPattern: "*size"})
			require.NoError(t, err)
			assert.Equal(t, []string{"fact:team_size"}, keys(got))

			got, err = s.Search(ctx, Query{Namespace: Namespace{UserID: u}, KeyPattern: "episode:*", Limit: 2})
			require.NoError(t, err)
			assert.Len(t, got, 2)
		})
	}
}

func TestStoreSearchTimeRange(t *testing.T) {
	ctx := context.Background()
	ns := Namespace{UserID: "u1", WorkspaceID: "ws1"}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	mem := NewMemoryStore()
	sqlite, err := OpenSQLite(t.TempDir())
	require.NoError(t, err)
	defer sqlite.Close()

	for name, pair := range map[string]struct {
		s   Store
		set func(func() time.Time)
	}{
		"memory": {mem, func(f func() time.Time) { mem.now = f }},
		"sqlite": {sqlite, func(f func() time.Time) { sqlite.now = f }},
	} {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				at := base.Add(time.Duration(i) * time.Hour)
				pair.set(func() time.Time { return at })
				require.NoError(t, pair.s.Put(ctx, ns, fmt.Sprintf("k%d", i), []byte("v"), nil))
			}

			got, err := pair.s.Search(ctx, Query{
				Namespace: ns,
				Since:     base.Add(30 * time.Minute),
				Until:     base.Add(90 * time.Minute),
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"k1"}, keys(got))
		})
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	ns := Namespace{UserID: "u1", WorkspaceID: "ws1"}

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, ns, "k", []byte("v"), nil))
			require.NoError(t, s.Delete(ctx, ns, "k"))
			_, err := s.Get(ctx, ns, "k")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, s.Delete(ctx, ns, "missing"))
		})
	}
}

func TestStoreRejectsMissingUser(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Put(context.Background(), Namespace{WorkspaceID: "ws"}, "k", []byte("v"), nil)
			assert.ErrorIs(t, err, ErrInvalidNamespace)
		})
	}
}

func TestMemoryStoreConcurrentWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ns := Namespace{UserID: "u1", WorkspaceID: "ws1"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Put(ctx, ns, fmt.Sprintf("k%02d", i), []byte("v"), nil)
		}(i)
	}
	wg.Wait()

	got, err := s.Search(ctx, Query{Namespace: ns})
	require.NoError(t, err)
	assert.Len(t, got, 50)
}

func TestReturnedItemsAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ns := Namespace{UserID: "u1"}

	require.NoError(t, s.Put(ctx, ns, "k", []byte("abc"), nil))
	it, err := s.Get(ctx, ns, "k")
	require.NoError(t, err)
	it.Value[0] = 'z'

	again, err := s.Get(ctx, ns, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again.Value))
}

func TestLiteralPrefix(t *testing.T) {
	tests := map[string]string{
		"episode:*":  "episode:",
		"fact:a?c":   "fact:a",
		"*":          "",
		"plain":      "plain",
		"todo:[ab]x": "todo:",
	}
	for pattern, want := range tests {
		assert.Equal(t, want, literalPrefix(pattern), pattern)
	}
}
