// Package llm provides abstractions for LLM provider integration.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stream, err := provider.StreamCompletion(ctx, []*types.Message{
//	    types.NewUserMessage("Summarize this page"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for chunk := range stream {
//	    if chunk.IsError() {
//	        log.Fatal(chunk.Error)
//	    }
//	    fmt.Print(chunk.Content)
//	}
package llm

import (
	"context"

	"github.com/entrhq/pilot/pkg/types"
)

// ModelCloner is implemented by providers that can target another model
// while sharing credentials and transport. The router uses it for the
// per-request model override.
type ModelCloner interface {
	CloneWithModel(model string) Provider
}

// Provider is a chat-completion backend. The inference router is its only
// caller; providers know nothing about executor events.
type Provider interface {
	// StreamCompletion streams content deltas. The channel ends with a
	// Finished chunk or an error chunk and is then closed. The returned
	// error covers only failures to start the stream.
	StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *StreamChunk, error)

	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	GetModelInfo() *types.ModelInfo
	GetModel() string
	GetBaseURL() string
	GetAPIKey() string
}

// StructuredCompleter is implemented by providers that can constrain
// decoding to a JSON schema natively.
type StructuredCompleter interface {
	CompleteStructured(ctx context.Context, messages []*types.Message, schemaName string, schema map[string]any) (*types.Message, error)
}

// HealthChecker is implemented by providers that can report readiness
// without spending a completion.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
