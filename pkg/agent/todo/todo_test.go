package todo

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/kv"
	"github.com/entrhq/pilot/pkg/types"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*Store, *clock) {
	c := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	return NewStore(kv.NewMemoryStore(), "u1", WithClock(c.Now)), c
}

func TestStore_Add(t *testing.T) {
	s, _ := newTestStore()
	ctx := t.Context()

	tests := []struct {
		name     string
		item     Item
		errorMsg string
	}{
		{name: "valid", item: Item{Description: "Book the train"}},
		{name: "empty description", item: Item{Description: "  "}, errorMsg: "cannot be empty"},
		{name: "too long", item: Item{Description: strings.Repeat("x", MaxDescriptionLength+1)}, errorMsg: "maximum length"},
		{name: "priority range", item: Item{Description: "x", Priority: 6}, errorMsg: "between 1 and 5"},
		{name: "unknown dependency", item: Item{Description: "x", Dependencies: []string{"todo_missing"}}, errorMsg: "unknown dependency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := s.Add(ctx, "w1", "s1", tt.item)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				assert.True(t, types.IsKind(err, types.ErrKindBadRequest))
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(it.ID, IDPrefix))
			assert.Equal(t, StatusPending, it.Status)
			assert.Equal(t, DefaultPriority, it.Priority)
		})
	}

	_, err := s.Add(ctx, "w1", "", Item{Description: "x"})
	assert.Error(t, err)
}

func TestStore_ListOrderAndScope(t *testing.T) {
	s, c := newTestStore()
	ctx := t.Context()

	low, err := s.Add(ctx, "w1", "s1", Item{Description: "low", Priority: 1})
	require.NoError(t, err)
	c.Advance(time.Second)
	first, err := s.Add(ctx, "w1", "s1", Item{Description: "first high", Priority: 5})
	require.NoError(t, err)
	c.Advance(time.Second)
	second, err := s.Add(ctx, "w1", "s1", Item{Description: "second high", Priority: 5, Dependencies: []string{first.ID}})
	require.NoError(t, err)
	_, err = s.Add(ctx, "w1", "s2", Item{Description: "other session"})
	require.NoError(t, err)

	all, err := s.List(ctx, "w1", "s1")
	require.NoError(t, err)
	var got []string
	for _, it := range all {
		got = append(got, it.ID)
	}
	assert.Equal(t, []string{first.ID, second.ID, low.ID}, got)
	assert.Equal(t, []string{first.ID}, all[1].Dependencies)
}

func TestStore_EmptyScopeRejected(t *testing.T) {
	s, _ := newTestStore()
	ctx := t.Context()

	it, err := s.Add(ctx, "w1", "s1", Item{Description: "Book the train"})
	require.NoError(t, err)
	_, err = s.Add(ctx, "w2", "s1", Item{Description: "Pay the invoice"})
	require.NoError(t, err)

	tests := []struct {
		name string
		ws   string
		sess string
	}{
		{"empty workspace", "", "s1"},
		{"blank workspace", " ", "s1"},
		{"empty session", "w1", ""},
		{"both empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.List(ctx, tt.ws, tt.sess)
			assert.True(t, types.IsKind(err, types.ErrKindBadRequest))
			_, err = s.Pending(ctx, tt.ws, tt.sess)
			assert.True(t, types.IsKind(err, types.ErrKindBadRequest))
			_, err = s.Get(ctx, tt.ws, tt.sess, it.ID)
			assert.True(t, types.IsKind(err, types.ErrKindBadRequest))
		})
	}

	all, err := s.List(ctx, "w1", "s1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, it.ID, all[0].ID)
}

func TestStore_UpdateStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []Status
		wantErr bool
	}{
		{"pending to completed", []Status{StatusCompleted}, false},
		{"through in progress", []Status{StatusInProgress, StatusCompleted}, false},
		{"delegated then failed", []Status{StatusDelegated, StatusFailed}, false},
		{"same status is a no-op", []Status{StatusInProgress, StatusInProgress}, false},
		{"reopen completed", []Status{StatusCompleted, StatusPending}, true},
		{"reopen failed", []Status{StatusFailed, StatusInProgress}, true},
		{"back to pending", []Status{StatusInProgress, StatusPending}, true},
		{"in progress to delegated", []Status{StatusInProgress, StatusDelegated}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore()
			ctx := t.Context()
			it, err := s.Add(ctx, "w1", "s1", Item{Description: "task"})
			require.NoError(t, err)

			for i, st := range tt.path {
				_, err = s.UpdateStatus(ctx, "w1", "s1", it.ID, st)
				if i < len(tt.path)-1 {
					require.NoError(t, err)
				}
			}
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStore_UpdateStatusErrors(t *testing.T) {
	s, _ := newTestStore()
	ctx := t.Context()

	_, err := s.UpdateStatus(ctx, "w1", "s1", "todo_nope", StatusCompleted)
	assert.ErrorIs(t, err, ErrNotFound)

	it, err := s.Add(ctx, "w1", "s1", Item{Description: "task"})
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "w1", "s1", it.ID, "archived")
	assert.True(t, types.IsKind(err, types.ErrKindBadRequest))
}

func TestStore_ActualDuration(t *testing.T) {
	s, c := newTestStore()
	ctx := t.Context()

	it, err := s.Add(ctx, "w1", "s1", Item{Description: "task", EstimatedDuration: time.Minute})
	require.NoError(t, err)
	c.Advance(time.Minute)
	_, err = s.UpdateStatus(ctx, "w1", "s1", it.ID, StatusInProgress)
	require.NoError(t, err)
	c.Advance(90 * time.Second)
	done, err := s.UpdateStatus(ctx, "w1", "s1", it.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, done.ActualDuration)
}

func TestStore_PendingAndCompleteMatching(t *testing.T) {
	s, c := newTestStore()
	ctx := t.Context()

	email, err := s.Add(ctx, "w1", "s1", Item{Description: "Send status email to client"})
	require.NoError(t, err)
	calendar, err := s.Add(ctx, "w1", "s1", Item{Description: "Schedule dentist appointment"})
	require.NoError(t, err)
	done, err := s.Add(ctx, "w1", "s1", Item{Description: "Send invoice email"})
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "w1", "s1", done.ID, StatusCompleted)
	require.NoError(t, err)

	pending, err := s.Pending(ctx, "w1", "s1")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	c.Advance(5 * time.Minute)
	closed, err := s.CompleteMatching(ctx, "w1", "s1", "I sent the status email to the client at 10:02")
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, email.ID, closed[0].ID)
	assert.Equal(t, StatusCompleted, closed[0].Status)
	assert.Equal(t, 5*time.Minute, closed[0].ActualDuration)

	still, err := s.Get(ctx, "w1", "s1", calendar.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, still.Status)
}
