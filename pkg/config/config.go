// Package config loads and persists pilot settings as named YAML sections.
//
// There is no global instance: New builds a Manager with every default
// section registered, and callers pass it (or the typed sections) to the
// components that need them.
package config

import "fmt"

// Config bundles the manager with typed access to the built-in sections.
type Config struct {
	*Manager
	Inference *InferenceSection
	Executor  *ExecutorSection
	Context   *ContextSection
	Firewall  *FirewallSection
	Approval  *ApprovalSection
	Logging   *LoggingSection
}

// New opens the YAML file at path (empty uses ~/.pilot/config.yaml),
// registers the default sections and loads stored values into them.
func New(path string) (*Config, error) {
	store, err := NewFileStore(path)
	if err != nil {
		return nil, err
	}
	return NewWithStore(store)
}

// NewWithStore is New with an explicit Store.
func NewWithStore(store Store) (*Config, error) {
	c := &Config{
		Manager:   NewManager(store),
		Inference: NewInferenceSection(),
		Executor:  NewExecutorSection(),
		Context:   NewContextSection(),
		Firewall:  NewFirewallSection(),
		Approval:  NewApprovalSection(),
		Logging:   NewLoggingSection(),
	}

	for _, s := range []Section{c.Inference, c.Executor, c.Context, c.Firewall, c.Approval, c.Logging} {
		if err := c.RegisterSection(s); err != nil {
			return nil, err
		}
	}
	if err := c.LoadAll(); err != nil {
		return nil, err
	}
	for _, s := range c.GetSections() {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s configuration: %w", s.ID(), err)
		}
	}
	return c, nil
}

// SaveInferencePreference persists a new backend preference.
func (c *Config) SaveInferencePreference(p string) error {
	if err := c.Inference.SetPreference(p); err != nil {
		return err
	}
	return c.SaveSection(SectionIDInference)
}

// GetInferencePreference returns the stored backend preference.
func (c *Config) GetInferencePreference() string {
	return c.Inference.GetPreference()
}
