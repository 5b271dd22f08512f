package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Transitions(t *testing.T) {
	c := newController()

	assert.False(t, c.resume(), "resume while running")
	assert.True(t, c.pause())
	assert.False(t, c.pause(), "pause twice")
	assert.True(t, c.isPaused())
	assert.True(t, c.resume())
	assert.True(t, c.cancel())
	assert.False(t, c.cancel(), "cancel twice")
	assert.False(t, c.pause(), "pause after cancel")

	c.reset()
	assert.False(t, c.isCancelled())
	assert.False(t, c.isPaused())
}

func TestController_Wait(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(c *controller)
		signal  func(c *controller)
		timeout time.Duration
		want    waitResult
	}{
		{
			name:  "not paused proceeds",
			setup: func(*controller) {},
			want:  waitProceed,
		},
		{
			name:   "resume wakes the waiter",
			setup:  func(c *controller) { c.pause() },
			signal: func(c *controller) { c.resume() },
			want:   waitProceed,
		},
		{
			name:   "cancel wakes the waiter",
			setup:  func(c *controller) { c.pause() },
			signal: func(c *controller) { c.cancel() },
			want:   waitCancelled,
		},
		{
			name:    "pause times out",
			setup:   func(c *controller) { c.pause() },
			timeout: 10 * time.Millisecond,
			want:    waitTimedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController()
			tt.setup(c)

			got := make(chan waitResult, 1)
			go func() { got <- c.wait(context.Background(), tt.timeout) }()
			if tt.signal != nil {
				tt.signal(c)
			}

			select {
			case r := <-got:
				assert.Equal(t, tt.want, r)
			case <-time.After(time.Second):
				t.Fatal("wait did not return")
			}
		})
	}
}

func TestController_WaitHonoursContext(t *testing.T) {
	c := newController()
	c.pause()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan waitResult, 1)
	go func() { got <- c.wait(ctx, 0) }()
	cancel()

	assert.Equal(t, waitCancelled, <-got)
}

func TestController_Bind(t *testing.T) {
	c := newController()

	ctx, stop := c.bind(context.Background())
	released, release := c.bind(context.Background())
	release()
	require.NoError(t, ctx.Err())

	c.cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.ErrorIs(t, released.Err(), context.Canceled, "release cancels its own context")
	stop()

	late, stopLate := c.bind(context.Background())
	defer stopLate()
	assert.ErrorIs(t, late.Err(), context.Canceled, "bound after cancel")
	assert.Empty(t, c.bound)
}

func TestDetach(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	parent, cancelParent := context.WithDeadline(context.Background(), deadline)

	ctx, cancel := detach(parent)
	defer cancel()
	cancelParent()

	require.NoError(t, ctx.Err(), "parent cancellation does not reach the detached context")
	got, ok := ctx.Deadline()
	require.True(t, ok)
	assert.Equal(t, deadline, got)
}
