package inference

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/pilot/pkg/llm"
	"github.com/entrhq/pilot/pkg/types"
)

// ErrBridgeClosed is returned by Call after Close.
var ErrBridgeClosed = errors.New("inference bridge is closed")

type bridgeCall struct {
	ctx   context.Context
	reply chan bridgeResult
	req   Request
}

type bridgeResult struct {
	err     error
	content string
}

// Bridge owns the remote provider. Callers hand requests to its workers over
// a channel and wait on a reply channel private to the call.
type Bridge struct {
	provider  llm.Provider
	requests  chan *bridgeCall
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewBridge starts workers goroutines serving provider. workers < 1 means 1.
func NewBridge(provider llm.Provider, workers int) *Bridge {
	if workers < 1 {
		workers = 1
	}
	b := &Bridge{
		provider: provider,
		requests: make(chan *bridgeCall),
		done:     make(chan struct{}),
	}
	b.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go b.serve()
	}
	return b
}

func (b *Bridge) serve() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case call := <-b.requests:
			content, err := complete(call.ctx, b.provider, call.req)
			// reply is buffered; the caller may have given up already.
			call.reply <- bridgeResult{content: content, err: err}
		}
	}
}

// Call sends req to a worker and waits for its result.
func (b *Bridge) Call(ctx context.Context, req Request) (string, error) {
	call := &bridgeCall{ctx: ctx, req: req, reply: make(chan bridgeResult, 1)}

	select {
	case b.requests <- call:
	case <-b.done:
		return "", ErrBridgeClosed
	case <-ctx.Done():
		return "", types.NewCancelledError("remote inference cancelled before dispatch", ctx.Err())
	}

	select {
	case res := <-call.reply:
		return res.content, res.err
	case <-ctx.Done():
		return "", types.NewCancelledError("remote inference cancelled", ctx.Err())
	}
}

// Provider returns the remote provider.
func (b *Bridge) Provider() llm.Provider {
	return b.provider
}

// Close stops the workers and waits for in-flight calls to finish.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}
