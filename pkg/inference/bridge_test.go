package inference

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/llm/llmtest"
	"github.com/entrhq/pilot/pkg/types"
)

func TestBridge_ConcurrentCalls(t *testing.T) {
	remote := &llmtest.Provider{Respond: func(msgs []*types.Message) (string, error) {
		return "echo " + msgs[len(msgs)-1].Content, nil
	}}
	b := NewBridge(remote, 3)
	defer b.Close()

	var wg sync.WaitGroup
	for _, prompt := range []string{"a", "b", "c", "d", "e"} {
		wg.Add(1)
		go func(prompt string) {
			defer wg.Done()
			got, err := b.Call(context.Background(), Request{Prompt: prompt})
			assert.NoError(t, err)
			assert.Equal(t, "echo "+prompt, got)
		}(prompt)
	}
	wg.Wait()
	assert.Len(t, remote.Calls(), 5)
}

func TestBridge_CancelledWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	remote := &llmtest.Provider{Respond: func([]*types.Message) (string, error) {
		<-release
		return "late", nil
	}}
	b := NewBridge(remote, 1)
	defer b.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := b.Call(ctx, Request{Prompt: "slow"})
		errc <- err
	}()

	require.Eventually(t, func() bool { return len(remote.Calls()) == 1 }, timeoutShort, tick)
	cancel()
	err := <-errc
	assert.True(t, types.IsKind(err, types.ErrKindCancelled))
}

func TestBridge_Closed(t *testing.T) {
	b := NewBridge(llmtest.New("x"), 1)
	b.Close()
	b.Close()

	_, err := b.Call(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrBridgeClosed)
}

const (
	timeoutShort = 2 * time.Second
	tick         = 5 * time.Millisecond
)
