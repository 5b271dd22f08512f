package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDExecutor is the identifier for the executor section
	SectionIDExecutor = "executor"

	TimeoutApprove = "approve"
	TimeoutReject  = "reject"
)

// ExecutorSettings holds the loop limits and approval behaviour.
type ExecutorSettings struct {
	// PlannerModel and NavigatorModel override the inference model per role.
	// Empty uses the backend's model.
	PlannerModel           string
	NavigatorModel         string
	ApprovalTimeoutDefault string
	ApprovalTimeout        time.Duration
	PauseTimeout           time.Duration
	ReplayDelay            time.Duration
	MaxSteps               int
	MaxFailures            int
	PlanningInterval       int
	MaxActionsPerStep      int
	ReplayMaxRetries       int
}

// DefaultExecutorSettings returns the defaults used when nothing is configured.
func DefaultExecutorSettings() ExecutorSettings {
	return ExecutorSettings{
		MaxSteps:               100,
		MaxFailures:            3,
		PlanningInterval:       3,
		MaxActionsPerStep:      10,
		ApprovalTimeout:        5 * time.Minute,
		ApprovalTimeoutDefault: TimeoutApprove,
		PauseTimeout:           0,
		ReplayMaxRetries:       3,
		ReplayDelay:            time.Second,
	}
}

// ExecutorSection configures the executor loop.
type ExecutorSection struct {
	settings ExecutorSettings
	mu       sync.RWMutex
}

// NewExecutorSection creates the section with defaults.
func NewExecutorSection() *ExecutorSection {
	return &ExecutorSection{settings: DefaultExecutorSettings()}
}

// ID returns the section identifier.
func (s *ExecutorSection) ID() string {
	return SectionIDExecutor
}

// Title returns the section title.
func (s *ExecutorSection) Title() string {
	return "Executor"
}

// Description returns the section description.
func (s *ExecutorSection) Description() string {
	return "Step and failure budgets, planner cadence, approval timeout and replay behaviour."
}

// Data returns the current configuration data.
func (s *ExecutorSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.settings
	return map[string]interface{}{
		"max_steps":                c.MaxSteps,
		"max_failures":             c.MaxFailures,
		"planning_interval":        c.PlanningInterval,
		"max_actions_per_step":     c.MaxActionsPerStep,
		"approval_timeout":         c.ApprovalTimeout.String(),
		"approval_timeout_default": c.ApprovalTimeoutDefault,
		"pause_timeout":            c.PauseTimeout.String(),
		"replay_max_retries":       c.ReplayMaxRetries,
		"replay_delay":             c.ReplayDelay.String(),
		"planner_model":            c.PlannerModel,
		"navigator_model":          c.NavigatorModel,
	}
}

// SetData updates the configuration from the provided data.
func (s *ExecutorSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := &s.settings

	ints := map[string]*int{
		"max_steps":            &c.MaxSteps,
		"max_failures":         &c.MaxFailures,
		"planning_interval":    &c.PlanningInterval,
		"max_actions_per_step": &c.MaxActionsPerStep,
		"replay_max_retries":   &c.ReplayMaxRetries,
	}
	for key, dst := range ints {
		if v, ok := asInt(data[key]); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"approval_timeout": &c.ApprovalTimeout,
		"pause_timeout":    &c.PauseTimeout,
		"replay_delay":     &c.ReplayDelay,
	}
	for key, dst := range durations {
		v, ok, err := asDuration(data[key])
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if ok {
			*dst = v
		}
	}

	strs := map[string]*string{
		"approval_timeout_default": &c.ApprovalTimeoutDefault,
		"planner_model":            &c.PlannerModel,
		"navigator_model":          &c.NavigatorModel,
	}
	for key, dst := range strs {
		if v, ok := asString(data[key]); ok {
			*dst = v
		}
	}
	return nil
}

// Validate validates the current configuration.
func (s *ExecutorSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.settings

	switch {
	case c.MaxSteps <= 0:
		return fmt.Errorf("max_steps must be positive")
	case c.MaxFailures <= 0:
		return fmt.Errorf("max_failures must be positive")
	case c.PlanningInterval <= 0:
		return fmt.Errorf("planning_interval must be positive")
	case c.MaxActionsPerStep <= 0:
		return fmt.Errorf("max_actions_per_step must be positive")
	case c.ApprovalTimeout <= 0:
		return fmt.Errorf("approval_timeout must be positive")
	case c.ApprovalTimeoutDefault != TimeoutApprove && c.ApprovalTimeoutDefault != TimeoutReject:
		return fmt.Errorf("approval_timeout_default must be %q or %q", TimeoutApprove, TimeoutReject)
	case c.PauseTimeout < 0 || c.ReplayDelay < 0 || c.ReplayMaxRetries < 0:
		return fmt.Errorf("pause_timeout, replay_delay and replay_max_retries must not be negative")
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *ExecutorSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = DefaultExecutorSettings()
}

// Settings returns a copy of the current values.
func (s *ExecutorSection) Settings() ExecutorSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}
