package headless

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/agent/approval"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
task: collect invoice totals
workspace: finance
mode: read-only
constraints:
  allowed_urls: ["https://billing.example.com/*"]
  max_risk: low
  timeout: 90s
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "collect invoice totals", cfg.Task)
	assert.Equal(t, "finance", cfg.WorkspaceID)
	assert.Equal(t, ModeReadOnly, cfg.Mode)
	assert.Equal(t, approval.RiskLow, cfg.Constraints.MaxRisk)
	assert.Equal(t, 90*time.Second, cfg.Constraints.Timeout)
	assert.Equal(t, 100, cfg.Constraints.MaxActions, "defaults survive")
	assert.Equal(t, "normal", cfg.Logging.Verbosity)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing task", func(c *Config) { c.Task = "" }},
		{"unknown mode", func(c *Config) { c.Mode = "write" }},
		{"negative timeout", func(c *Config) { c.Constraints.Timeout = -time.Second }},
		{"negative actions", func(c *Config) { c.Constraints.MaxActions = -1 }},
		{"unknown risk", func(c *Config) { c.Constraints.MaxRisk = "extreme" }},
		{"unknown verbosity", func(c *Config) { c.Logging.Verbosity = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Task = "task"
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
