// Package inference routes model calls to a local or a remote backend.
//
// A Router prefers the local OpenAI-compatible server when the user asked
// for it and the server answers its health check. Any local failure, and
// every call while the preference is remote, goes through a Bridge: a
// worker that owns the remote provider and serves requests sent over a
// channel.
package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/pilot/pkg/types"
)

// Backend names the tier that produced a response.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Request is one inference call.
type Request struct {
	// OutputSchema, when set, asks for a JSON document matching the schema.
	// The response content is then the extracted JSON text.
	OutputSchema map[string]any
	// OnChunk receives visible text deltas when Stream is set.
	OnChunk    func(string)
	// Model overrides the backend's configured model for this call.
	Model      string
	Prompt     string
	System     string
	SchemaName string
	Stream     bool
}

// Response is the result of a call.
type Response struct {
	Content      string  `json:"content"`
	ProviderUsed Backend `json:"provider_used"`
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return types.NewBadRequestError("inference prompt is empty", nil)
	}
	return nil
}

func (r Request) schemaName() string {
	if r.SchemaName != "" {
		return r.SchemaName
	}
	return "response"
}

// messages builds the chat turns. When the backend cannot constrain decoding
// itself, the schema is spelled out in the system turn.
func (r Request) messages(describeSchema bool) []*types.Message {
	system := r.System
	if r.OutputSchema != nil && describeSchema {
		system = strings.TrimSpace(system + "\n\n" + schemaInstructions(r.OutputSchema))
	}

	var msgs []*types.Message
	if system != "" {
		msgs = append(msgs, types.NewSystemMessage(system))
	}
	return append(msgs, types.NewUserMessage(r.Prompt))
}

func schemaInstructions(schema map[string]any) string {
	doc, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		doc = []byte(fmt.Sprint(schema))
	}
	return "Respond with a single JSON document that matches this JSON Schema. " +
		"Do not add explanations or markdown.\n" + string(doc)
}
