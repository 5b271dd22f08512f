package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsAndRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, PreferenceLocal, cfg.Inference.GetPreference())
	assert.Equal(t, 3, cfg.Approval.AutonomyLevel())
	assert.Equal(t, 5*time.Minute, cfg.Executor.Settings().ApprovalTimeout)
	assert.Equal(t, "balanced", cfg.Context.Settings().CompressionStrategy)

	require.NoError(t, cfg.SaveInferencePreference(PreferenceRemote))
	assert.Error(t, cfg.SaveInferencePreference("cloud"))

	reloaded, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, PreferenceRemote, reloaded.Inference.GetPreference())
}

func TestNew_LoadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `version: "1"
sections:
  executor:
    max_steps: 12
    approval_timeout: 30s
    approval_timeout_default: reject
  approval:
    autonomy_level: 5
    standing_approvals:
      click: true
  firewall:
    allow: ["https://*.example.com/*"]
  context:
    token_limit: 4000
    semantic_threshold: 0.25
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := New(path)
	require.NoError(t, err)

	exec := cfg.Executor.Settings()
	assert.Equal(t, 12, exec.MaxSteps)
	assert.Equal(t, 30*time.Second, exec.ApprovalTimeout)
	assert.Equal(t, TimeoutReject, exec.ApprovalTimeoutDefault)

	assert.Equal(t, 5, cfg.Approval.AutonomyLevel())
	assert.Equal(t, map[string]bool{"click": true}, cfg.Approval.StandingApprovals())

	allow, deny := cfg.Firewall.Rules()
	assert.Equal(t, []string{"https://*.example.com/*"}, allow)
	assert.NotEmpty(t, deny, "deny list keeps defaults when not configured")

	ctx := cfg.Context.Settings()
	assert.Equal(t, 4000, ctx.TokenLimit)
	assert.InDelta(t, 0.25, ctx.SemanticThreshold, 1e-9)
}

func TestNew_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sections:\n  approval:\n    autonomy_level: 9\n"), 0600))

	_, err := New(path)
	assert.ErrorContains(t, err, "approval")
}

func TestSections_Validate(t *testing.T) {
	tests := []struct {
		name    string
		section Section
		data    map[string]interface{}
		wantErr bool
	}{
		{"inference ok", NewInferenceSection(), map[string]interface{}{"remote_provider": "gemini"}, false},
		{"inference bad provider", NewInferenceSection(), map[string]interface{}{"remote_provider": "acme"}, true},
		{"context bad strategy", NewContextSection(), map[string]interface{}{"compression_strategy": "extreme"}, true},
		{"context threshold range", NewContextSection(), map[string]interface{}{"semantic_threshold": 1.5}, true},
		{"executor zero steps", NewExecutorSection(), map[string]interface{}{"max_steps": 0}, true},
		{"firewall empty pattern", NewFirewallSection(), map[string]interface{}{"deny": []interface{}{" "}}, true},
		{"logging level", NewLoggingSection(), map[string]interface{}{"level": "trace"}, true},
		{"approval level", NewApprovalSection(), map[string]interface{}{"autonomy_level": 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.section.SetData(tt.data))
			err := tt.section.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			tt.section.Reset()
			assert.NoError(t, tt.section.Validate())
		})
	}
}

func TestResolve_Precedence(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("PILOT_LOCAL_MODEL", "")
	t.Setenv("PILOT_INFERENCE", "")

	file := NewInferenceSection().Snapshot()
	file.RemoteAPIKey = "file-key"
	file.LocalModel = "file-model"

	got := Resolve(file, Overrides{})
	assert.Equal(t, "env-key", got.RemoteAPIKey)
	assert.Equal(t, "file-model", got.LocalModel)

	got = Resolve(file, Overrides{RemoteAPIKey: "cli-key", Preference: PreferenceRemote})
	assert.Equal(t, "cli-key", got.RemoteAPIKey)
	assert.Equal(t, PreferenceRemote, got.Preference)
}

func TestBuildProviders(t *testing.T) {
	s := NewInferenceSection().Snapshot()
	s.LocalBaseURL = "http://127.0.0.1:9999/v1/"

	local, err := BuildLocalProvider(s)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999/v1", local.GetBaseURL())
	assert.Equal(t, s.LocalModel, local.GetModel())

	s.RemoteAPIKey = "sk-test"
	remote, err := BuildRemoteProvider(t.Context(), s)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", remote.GetModel())

	s.RemoteAPIKey = ""
	_, err = BuildRemoteProvider(t.Context(), s)
	assert.Error(t, err)

	s.RemoteProvider = "acme"
	_, err = BuildRemoteProvider(t.Context(), s)
	assert.Error(t, err)
}
