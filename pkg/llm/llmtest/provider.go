// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/entrhq/pilot/pkg/llm"
	"github.com/entrhq/pilot/pkg/types"
)

// Provider replays canned replies. When Respond is set it takes precedence
// over Replies. The last entry of Replies repeats once the script runs out.
type Provider struct {
	Respond func(messages []*types.Message) (string, error)
	PingErr error
	Name    string
	Replies []string
	Native  bool

	mu      sync.Mutex
	calls   [][]*types.Message
	schemas []map[string]any
	clones  []string
	pings   int
}

var (
	_ llm.Provider            = (*Provider)(nil)
	_ llm.StructuredCompleter = (*Provider)(nil)
	_ llm.HealthChecker       = (*Provider)(nil)
	_ llm.ModelCloner         = (*Provider)(nil)
)

// New returns a provider that answers with replies in order.
func New(replies ...string) *Provider {
	return &Provider{Replies: replies}
}

func (p *Provider) next(messages []*types.Message) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, messages)
	respond := p.Respond
	var reply string
	if respond == nil && len(p.Replies) > 0 {
		reply = p.Replies[0]
		if len(p.Replies) > 1 {
			p.Replies = p.Replies[1:]
		}
	}
	p.mu.Unlock()

	if respond != nil {
		return respond(messages)
	}
	return reply, nil
}

// StreamCompletion emits the reply one word at a time.
func (p *Provider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	reply, err := p.next(messages)
	if err != nil {
		return nil, err
	}
	out := make(chan *llm.StreamChunk)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(reply, " ") {
			select {
			case out <- &llm.StreamChunk{Content: word}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- &llm.StreamChunk{Finished: true}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// Complete returns the next reply.
func (p *Provider) Complete(_ context.Context, messages []*types.Message) (*types.Message, error) {
	reply, err := p.next(messages)
	if err != nil {
		return nil, err
	}
	return types.NewAssistantMessage(reply), nil
}

// CompleteStructured records the schema and returns the next reply.
func (p *Provider) CompleteStructured(ctx context.Context, messages []*types.Message, _ string, schema map[string]any) (*types.Message, error) {
	p.mu.Lock()
	p.schemas = append(p.schemas, schema)
	p.mu.Unlock()
	return p.Complete(ctx, messages)
}

// Ping returns PingErr.
func (p *Provider) Ping(context.Context) error {
	p.mu.Lock()
	p.pings++
	p.mu.Unlock()
	return p.PingErr
}

// CloneWithModel returns a provider named model that answers from p's script.
func (p *Provider) CloneWithModel(model string) llm.Provider {
	p.mu.Lock()
	p.clones = append(p.clones, model)
	p.mu.Unlock()
	return &Provider{Respond: p.next, Name: model, Native: p.Native, PingErr: p.PingErr}
}

// Clones returns the models passed to CloneWithModel.
func (p *Provider) Clones() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clones...)
}

// Calls returns the message lists received so far.
func (p *Provider) Calls() [][]*types.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]*types.Message(nil), p.calls...)
}

// Schemas returns the schemas passed to CompleteStructured.
func (p *Provider) Schemas() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]any(nil), p.schemas...)
}

// Pings returns how many times Ping was called.
func (p *Provider) Pings() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pings
}

func (p *Provider) GetModelInfo() *types.ModelInfo {
	return &types.ModelInfo{Provider: "test", Name: p.GetModel(), SupportsStreaming: true, SupportsSchema: p.Native}
}

func (p *Provider) GetModel() string {
	if p.Name == "" {
		return "test-model"
	}
	return p.Name
}

func (p *Provider) GetBaseURL() string { return "" }
func (p *Provider) GetAPIKey() string  { return "" }
