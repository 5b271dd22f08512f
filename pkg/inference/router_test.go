package inference

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/llm/llmtest"
	"github.com/entrhq/pilot/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memPrefs struct {
	pref  string
	saved []string
	err   error
}

func (p *memPrefs) GetInferencePreference() string { return p.pref }

func (p *memPrefs) SaveInferencePreference(v string) error {
	if p.err != nil {
		return p.err
	}
	p.pref = v
	p.saved = append(p.saved, v)
	return nil
}

func newTestRouter(t *testing.T, local, remote *llmtest.Provider, pref string) *Router {
	t.Helper()
	var opts []RouterOption
	if local != nil {
		opts = append(opts, WithLocal(local))
	}
	if remote != nil {
		b := NewBridge(remote, 1)
		t.Cleanup(b.Close)
		opts = append(opts, WithRemote(b))
	}
	opts = append(opts, WithPreferences(&memPrefs{pref: pref}))
	r, err := NewRouter(opts...)
	require.NoError(t, err)
	return r
}

func TestRouter_PrefersReadyLocal(t *testing.T) {
	local := llmtest.New("from local")
	remote := llmtest.New("from remote")
	r := newTestRouter(t, local, remote, config.PreferenceLocal)

	resp, err := r.Invoke(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, resp.ProviderUsed)
	assert.Equal(t, "from local", resp.Content)
	assert.Empty(t, remote.Calls())
}

func TestRouter_RemotePreferenceSkipsLocal(t *testing.T) {
	local := llmtest.New("from local")
	remote := llmtest.New("from remote")
	r := newTestRouter(t, local, remote, config.PreferenceRemote)

	resp, err := r.Invoke(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, resp.ProviderUsed)
	assert.Empty(t, local.Calls())
	assert.Zero(t, local.Pings())
}

func TestRouter_UnreadyLocalFallsBackAndCachesHealth(t *testing.T) {
	local := llmtest.New("from local")
	local.PingErr = errors.New("connection refused")
	remote := llmtest.New("from remote")
	r := newTestRouter(t, local, remote, config.PreferenceLocal)

	for i := 0; i < 2; i++ {
		resp, err := r.Invoke(context.Background(), Request{Prompt: "hi"})
		require.NoError(t, err)
		assert.Equal(t, BackendRemote, resp.ProviderUsed)
	}
	assert.Equal(t, 1, local.Pings(), "health result is cached within the TTL")

	now := time.Now().Add(time.Hour)
	r.now = func() time.Time { return now }
	r.LocalReady(context.Background())
	assert.Equal(t, 2, local.Pings())
}

func TestRouter_LocalFailureFallsBack(t *testing.T) {
	local := &llmtest.Provider{Respond: func([]*types.Message) (string, error) {
		return "", errors.New("model crashed")
	}}
	remote := llmtest.New("from remote")
	r := newTestRouter(t, local, remote, config.PreferenceLocal)

	resp, err := r.Invoke(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, resp.ProviderUsed)

	status := r.Status(context.Background())
	assert.Equal(t, BackendRemote, status.LastProviderUsed)
	assert.Empty(t, status.LastError)
	assert.Equal(t, 2, local.Pings(), "readiness is rechecked after a local failure")
}

func TestRouter_NoRemoteSurfacesLocalError(t *testing.T) {
	local := &llmtest.Provider{Respond: func([]*types.Message) (string, error) {
		return "", types.NewAuthError("bad key", nil)
	}}
	r := newTestRouter(t, local, nil, config.PreferenceLocal)

	_, err := r.Invoke(context.Background(), Request{Prompt: "hi"})
	assert.True(t, types.IsKind(err, types.ErrKindAuth))
	assert.Contains(t, r.Status(context.Background()).LastError, "bad key")
}

func TestRouter_StructuredOutput(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"done": map[string]any{"type": "boolean"}},
	}

	t.Run("prompted schema is repaired", func(t *testing.T) {
		local := llmtest.New("<think>let me see</think>Here you go:\n```json\n{\"done\": true}\n```")
		r := newTestRouter(t, local, nil, config.PreferenceLocal)

		var out struct {
			Done bool `json:"done"`
		}
		backend, err := r.InvokeJSON(context.Background(), Request{Prompt: "finished?", System: "You check tasks.", OutputSchema: schema}, &out)
		require.NoError(t, err)
		assert.Equal(t, BackendLocal, backend)
		assert.True(t, out.Done)

		system := local.Calls()[0][0]
		assert.Equal(t, types.RoleSystem, system.Role)
		assert.True(t, strings.HasPrefix(system.Content, "You check tasks."))
		assert.Contains(t, system.Content, "JSON Schema")
	})

	t.Run("native schema is passed through", func(t *testing.T) {
		local := llmtest.New(`{"done": false}`)
		local.Native = true
		r := newTestRouter(t, local, nil, config.PreferenceLocal)

		resp, err := r.Invoke(context.Background(), Request{Prompt: "finished?", OutputSchema: schema})
		require.NoError(t, err)
		assert.JSONEq(t, `{"done": false}`, resp.Content)
		require.Len(t, local.Schemas(), 1)
		assert.Equal(t, schema, local.Schemas()[0])
		assert.Len(t, local.Calls()[0], 1, "no system turn when the backend constrains decoding")
	})

	t.Run("local parse failure falls back", func(t *testing.T) {
		local := llmtest.New("I am not sure")
		remote := llmtest.New(`{"done": true}`)
		r := newTestRouter(t, local, remote, config.PreferenceLocal)

		resp, err := r.Invoke(context.Background(), Request{Prompt: "finished?", OutputSchema: schema})
		require.NoError(t, err)
		assert.Equal(t, BackendRemote, resp.ProviderUsed)
	})

	t.Run("remote parse failure is surfaced", func(t *testing.T) {
		remote := llmtest.New("no json here")
		r := newTestRouter(t, nil, remote, config.PreferenceRemote)

		_, err := r.Invoke(context.Background(), Request{Prompt: "finished?", OutputSchema: schema})
		require.Error(t, err)
		assert.True(t, types.IsKind(err, types.ErrKindResponseParse))
	})
}

func TestRouter_StreamHidesReasoning(t *testing.T) {
	local := llmtest.New("<think>plan</think>Clicking the button now")
	r := newTestRouter(t, local, nil, config.PreferenceLocal)

	var streamed strings.Builder
	resp, err := r.Invoke(context.Background(), Request{
		Prompt:  "go",
		Stream:  true,
		OnChunk: func(s string) { streamed.WriteString(s) },
	})
	require.NoError(t, err)
	assert.Equal(t, "Clicking the button now", resp.Content)
	assert.Equal(t, "Clicking the button now", streamed.String())
}

func TestRouter_EmptyPrompt(t *testing.T) {
	r := newTestRouter(t, llmtest.New("x"), nil, config.PreferenceLocal)
	_, err := r.Invoke(context.Background(), Request{Prompt: "  "})
	assert.True(t, types.IsKind(err, types.ErrKindBadRequest))
}

func TestRouter_Preference(t *testing.T) {
	prefs := &memPrefs{pref: config.PreferenceLocal}
	r, err := NewRouter(WithLocal(llmtest.New("x")), WithPreferences(prefs))
	require.NoError(t, err)

	require.NoError(t, r.SetPreference(config.PreferenceRemote))
	assert.Equal(t, []string{config.PreferenceRemote}, prefs.saved)
	assert.Equal(t, config.PreferenceRemote, r.Preference())

	err = r.SetPreference("cloud")
	assert.True(t, types.IsKind(err, types.ErrKindBadRequest))

	prefs.err = errors.New("read-only")
	assert.Error(t, r.SetPreference(config.PreferenceLocal))
}

func TestRouter_Status(t *testing.T) {
	local := llmtest.New("x")
	local.Name = "qwen"
	remote := llmtest.New("y")
	remote.Name = "gpt"
	r := newTestRouter(t, local, remote, config.PreferenceLocal)

	s := r.Status(context.Background())
	assert.True(t, s.LocalReady)
	assert.Equal(t, BackendLocal, s.CurrentProvider)
	assert.Equal(t, "qwen", s.LocalModel)
	assert.Equal(t, "gpt", s.RemoteModel)
}

func TestNewRouter_RequiresBackend(t *testing.T) {
	_, err := NewRouter()
	assert.Error(t, err)
}

func TestRouter_ModelOverride(t *testing.T) {
	local := llmtest.New("from local")
	r := newTestRouter(t, local, nil, config.PreferenceLocal)

	resp, err := r.Invoke(context.Background(), Request{Prompt: "hi", Model: "small-model"})
	require.NoError(t, err)
	assert.Equal(t, "from local", resp.Content)
	assert.Equal(t, []string{"small-model"}, local.Clones())
	assert.Len(t, local.Calls(), 1, "the clone answers from the same script")

	_, err = r.Invoke(context.Background(), Request{Prompt: "hi", Model: local.GetModel()})
	require.NoError(t, err)
	assert.Len(t, local.Clones(), 1, "the configured model needs no clone")
}
