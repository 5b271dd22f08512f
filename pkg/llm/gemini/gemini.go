// Package gemini provides an llm.Provider backed by the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"

	"google.golang.org/genai"

	"github.com/entrhq/pilot/pkg/llm"
	"github.com/entrhq/pilot/pkg/types"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Provider implements llm.Provider and llm.StructuredCompleter for Gemini.
type Provider struct {
	client    *genai.Client
	modelInfo *types.ModelInfo
	apiKey    string
	model     string
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model name.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// NewProvider creates a Gemini provider. An empty apiKey falls back to GEMINI_API_KEY.
func NewProvider(ctx context.Context, apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (provide via parameter or GEMINI_API_KEY environment variable)")
	}

	p := &Provider{apiKey: apiKey, model: DefaultModel}
	for _, opt := range opts {
		opt(p)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	p.client = client
	p.modelInfo = &types.ModelInfo{
		Provider:          "gemini",
		Name:              p.model,
		SupportsStreaming: true,
		SupportsSchema:    false,
		MaxTokens:         8192,
		Metadata:          make(map[string]interface{}),
	}
	return p, nil
}

// splitMessages separates system text from the conversation turns.
func splitMessages(messages []*types.Message) (*genai.Content, []*genai.Content) {
	var system string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case types.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if system == "" {
		return nil, contents
	}
	return genai.NewContentFromText(system, genai.RoleUser), contents
}

func (p *Provider) config(messages []*types.Message, jsonMode bool) (*genai.GenerateContentConfig, []*genai.Content) {
	system, contents := splitMessages(messages)
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if jsonMode {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg, contents
}

// StreamCompletion streams a completion.
func (p *Provider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	cfg, contents := p.config(messages, false)
	chunks := make(chan *llm.StreamChunk, 10)

	go func() {
		defer close(chunks)
		first := true
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
			if err != nil {
				chunks <- &llm.StreamChunk{Error: mapError(err)}
				return
			}
			chunk := &llm.StreamChunk{Content: resp.Text()}
			if first {
				chunk.Role = string(types.RoleAssistant)
				first = false
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				chunks <- &llm.StreamChunk{Error: ctx.Err()}
				return
			}
		}
		chunks <- &llm.StreamChunk{Finished: true}
	}()
	return chunks, nil
}

// Complete returns the full response.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	return p.generate(ctx, messages, false)
}

// CompleteStructured asks for JSON output. Gemini's schema dialect differs
// from JSON Schema, so only the MIME type is constrained here; callers still
// validate and repair the payload.
func (p *Provider) CompleteStructured(ctx context.Context, messages []*types.Message, _ string, _ map[string]any) (*types.Message, error) {
	return p.generate(ctx, messages, true)
}

func (p *Provider) generate(ctx context.Context, messages []*types.Message, jsonMode bool) (*types.Message, error) {
	cfg, contents := p.config(messages, jsonMode)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, mapError(err)
	}
	return types.NewAssistantMessage(resp.Text()), nil
}

// mapError converts SDK API errors into typed errors.
func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if typed := types.ErrorFromStatus(apiErr.Code, apiErr.Message); typed != nil {
			return typed
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		if typed := types.ErrorFromStatus(apiErrPtr.Code, apiErrPtr.Message); typed != nil {
			return typed
		}
	}
	if errors.Is(err, context.Canceled) {
		return types.NewCancelledError("gemini request cancelled", err)
	}
	return fmt.Errorf("gemini request failed: %w", err)
}

// CloneWithModel returns a provider sharing the client but using model.
func (p *Provider) CloneWithModel(model string) llm.Provider {
	clone := *p
	clone.model = model
	mi := *p.modelInfo
	mi.Name = model
	clone.modelInfo = &mi
	return &clone
}

// GetModelInfo returns information about the model being used.
func (p *Provider) GetModelInfo() *types.ModelInfo {
	return p.modelInfo
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

// GetBaseURL returns an empty string; the SDK manages endpoints.
func (p *Provider) GetBaseURL() string {
	return ""
}

// GetAPIKey returns the API key being used.
func (p *Provider) GetAPIKey() string {
	return p.apiKey
}
