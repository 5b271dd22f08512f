package headless

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/pilot/pkg/agent/approval"
)

// Config represents the configuration for a headless run
type Config struct {
	// Task description
	Task string `yaml:"task" json:"task"`

	// Where the run's memory, history and checkpoints live
	WorkspaceID string `yaml:"workspace" json:"workspace"`
	SessionID   string `yaml:"session" json:"session"`

	// Execution mode
	Mode ExecutionMode `yaml:"mode" json:"mode"`

	// Safety constraints
	Constraints ConstraintConfig `yaml:"constraints" json:"constraints"`

	// Artifacts configuration
	Artifacts ArtifactConfig `yaml:"artifacts" json:"artifacts"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ExecutionMode defines what a headless run may do to a page
type ExecutionMode string

const (
	// ModeReadOnly allows navigation and reading, never clicks or form input
	ModeReadOnly ExecutionMode = "read-only"
	// ModeInteract allows every action
	ModeInteract ExecutionMode = "interact"
)

// ConstraintConfig defines safety constraints for headless execution
type ConstraintConfig struct {
	// Action restrictions. Empty allows every action type.
	AllowedActions []string `yaml:"allowed_actions" json:"allowed_actions"`

	// Navigation targets must match one of these globs. Empty allows all.
	AllowedURLs []string `yaml:"allowed_urls" json:"allowed_urls"`

	// Approval requests above this risk are rejected.
	MaxRisk approval.RiskLevel `yaml:"max_risk" json:"max_risk"`

	// Resource limits
	MaxActions int           `yaml:"max_actions" json:"max_actions"`
	MaxTokens  int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// ArtifactConfig defines artifact generation configuration
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

// Validate checks the run file and fills in the default verbosity.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Task) == "" {
		return fmt.Errorf("task description is required")
	}
	if c.Mode != ModeReadOnly && c.Mode != ModeInteract {
		return fmt.Errorf("invalid mode: %s (must be %q or %q)", c.Mode, ModeReadOnly, ModeInteract)
	}

	limits := []struct {
		name  string
		value int64
	}{
		{"timeout", int64(c.Constraints.Timeout)},
		{"max_actions", int64(c.Constraints.MaxActions)},
		{"max_tokens", int64(c.Constraints.MaxTokens)},
	}
	for _, l := range limits {
		if l.value < 0 {
			return fmt.Errorf("%s cannot be negative", l.name)
		}
	}

	switch c.Constraints.MaxRisk {
	case "", approval.RiskLow, approval.RiskMedium, approval.RiskHigh:
	default:
		return fmt.Errorf("invalid max_risk: %s (must be low, medium or high)", c.Constraints.MaxRisk)
	}

	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	if _, ok := logLevels[c.Logging.Verbosity]; !ok {
		return fmt.Errorf("invalid logging verbosity: %s (must be quiet, normal, verbose or debug)", c.Logging.Verbosity)
	}
	return nil
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Mode: ModeInteract,
		Constraints: ConstraintConfig{
			MaxRisk:    approval.RiskMedium,
			MaxActions: 100,
			MaxTokens:  200000,
			Timeout:    10 * time.Minute,
		},
		Artifacts: ArtifactConfig{
			Enabled:   true,
			OutputDir: ".pilot/artifacts",
		},
	}
}

// LoadConfig reads a YAML run file over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
