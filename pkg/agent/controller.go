package agent

import (
	"context"
	"sync"
	"time"
)

type waitResult int

const (
	waitProceed waitResult = iota
	waitCancelled
	waitTimedOut
)

// controller carries the out-of-band pause and cancel signals. Every state
// change closes the current changed channel and installs a fresh one, so a
// waiter blocks on a receive instead of polling.
type controller struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
	changed   chan struct{}
	bound     map[int]context.CancelFunc
	nextBound int
}

func newController() *controller {
	return &controller{changed: make(chan struct{}), bound: make(map[int]context.CancelFunc)}
}

// broadcast wakes every waiter. Callers hold mu.
func (c *controller) broadcast() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *controller) pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.cancelled {
		return false
	}
	c.paused = true
	c.broadcast()
	return true
}

func (c *controller) resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused || c.cancelled {
		return false
	}
	c.paused = false
	c.broadcast()
	return true
}

func (c *controller) cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return false
	}
	c.cancelled = true
	for id, stop := range c.bound {
		stop()
		delete(c.bound, id)
	}
	c.broadcast()
	return true
}

// bind derives a context from ctx that cancel also cancels. Blocking calls
// that only watch a context, such as an approval wait, run on it.
func (c *controller) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	bctx, stop := context.WithCancel(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		stop()
		return bctx, stop
	}
	id := c.nextBound
	c.nextBound++
	c.bound[id] = stop
	return bctx, func() {
		c.mu.Lock()
		delete(c.bound, id)
		c.mu.Unlock()
		stop()
	}
}

// reset clears both signals for a follow-up run.
func (c *controller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused, c.cancelled = false, false
	c.broadcast()
}

func (c *controller) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *controller) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// wait returns immediately unless paused. While paused it blocks until
// resume, cancel, ctx cancellation or timeout, whichever comes first. A
// zero timeout waits indefinitely.
func (c *controller) wait(ctx context.Context, timeout time.Duration) waitResult {
	var expired <-chan time.Time
	for {
		c.mu.Lock()
		cancelled, paused, changed := c.cancelled, c.paused, c.changed
		c.mu.Unlock()

		switch {
		case cancelled || ctx.Err() != nil:
			return waitCancelled
		case !paused:
			return waitProceed
		}

		if expired == nil && timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			expired = timer.C
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return waitCancelled
		case <-expired:
			return waitTimedOut
		}
	}
}
