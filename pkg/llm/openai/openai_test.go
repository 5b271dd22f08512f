package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc, opts ...ProviderOption) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]ProviderOption{WithBaseURL(srv.URL), WithModel("test-model")}, opts...)
	p, err := NewProvider("", opts...)
	require.NoError(t, err)
	return p
}

func TestNewProviderRequiresKeyForHostedAPI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	_, err := NewProvider("")
	assert.Error(t, err)

	p, err := NewProvider("", WithBaseURL("http://localhost:11434/v1/"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/v1", p.GetBaseURL())
	assert.Equal(t, "http://localhost:11434/v1", p.GetModelInfo().Metadata["base_url"])
}

func TestStreamCompletion(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintln(w, ": keep-alive")
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"lo"}}]}`)
		fmt.Fprintln(w, `data: not-json`)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`)
		fmt.Fprintln(w, "data: [DONE]")
	})

	msg, err := p.Complete(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, types.RoleAssistant, msg.Role)
	assert.Equal(t, "Hello", msg.Content)
}

func TestStatusCodesBecomeTypedErrors(t *testing.T) {
	tests := []struct {
		status int
		kind   types.ErrorKind
	}{
		{http.StatusUnauthorized, types.ErrKindAuth},
		{http.StatusForbidden, types.ErrKindForbidden},
		{http.StatusBadRequest, types.ErrKindBadRequest},
		{http.StatusTooManyRequests, types.ErrKindQuota},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			_, err := p.Complete(context.Background(), []*types.Message{types.NewUserMessage("hi")})
			require.Error(t, err)
			assert.True(t, types.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestCompleteStructuredSendsSchema(t *testing.T) {
	var captured map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"done\":true}"}}]}`)
	}, WithNativeSchema(true))

	schema := map[string]any{"type": "object", "properties": map[string]any{"done": map[string]any{"type": "boolean"}}}
	msg, err := p.CompleteStructured(context.Background(), []*types.Message{types.NewUserMessage("plan")}, "planner", schema)
	require.NoError(t, err)
	assert.Equal(t, `{"done":true}`, msg.Content)

	assert.Equal(t, false, captured["stream"])
	format, ok := captured["response_format"].(map[string]any)
	require.True(t, ok, "response_format missing: %v", captured)
	assert.Equal(t, "json_schema", format["type"])
	js := format["json_schema"].(map[string]any)
	assert.Equal(t, "planner", js["name"])
	assert.Equal(t, true, js["strict"])
}

func TestCompleteStructuredWithoutNativeSchemaUsesJSONMode(t *testing.T) {
	var captured map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"{}"}}]}`)
	})

	_, err := p.CompleteStructured(context.Background(), []*types.Message{types.NewUserMessage("x")}, "nav", nil)
	require.NoError(t, err)
	format := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
}

func TestPing(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			fmt.Fprint(w, `{"data":[]}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	assert.NoError(t, p.Ping(context.Background()))

	down := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.Error(t, down.Ping(context.Background()))
}

func TestCloneWithModel(t *testing.T) {
	p, err := NewProvider("key", WithModel("gpt-4o"))
	require.NoError(t, err)

	clone := p.CloneWithModel("gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", clone.GetModel())
	assert.Equal(t, "gpt-4o-mini", clone.GetModelInfo().Name)
	assert.Equal(t, "gpt-4o", p.GetModel())
	assert.Equal(t, "gpt-4o", p.GetModelInfo().Name)
}
