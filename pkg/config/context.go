package config

import (
	"fmt"
	"sync"
)

// SectionIDContext is the identifier for the context engine section
const SectionIDContext = "context"

// ContextSettings tunes selection and compression.
type ContextSettings struct {
	CompressionStrategy string
	TokenLimit          int
	MaxItems            int
	SemanticThreshold   float64
	RecencyBias         float64
	PriorityWeighting   bool
}

// DefaultContextSettings returns the defaults.
func DefaultContextSettings() ContextSettings {
	return ContextSettings{
		TokenLimit:          8000,
		MaxItems:            20,
		SemanticThreshold:   0,
		RecencyBias:         0.1,
		PriorityWeighting:   true,
		CompressionStrategy: "balanced",
	}
}

// ContextSection configures the context engine.
type ContextSection struct {
	settings ContextSettings
	mu       sync.RWMutex
}

// NewContextSection creates the section with defaults.
func NewContextSection() *ContextSection {
	return &ContextSection{settings: DefaultContextSettings()}
}

// ID returns the section identifier.
func (s *ContextSection) ID() string {
	return SectionIDContext
}

// Title returns the section title.
func (s *ContextSection) Title() string {
	return "Context"
}

// Description returns the section description.
func (s *ContextSection) Description() string {
	return "Token budget and ranking knobs for context selection, plus the default compression strategy."
}

// Data returns the current configuration data.
func (s *ContextSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.settings
	return map[string]interface{}{
		"token_limit":          c.TokenLimit,
		"max_items":            c.MaxItems,
		"semantic_threshold":   c.SemanticThreshold,
		"recency_bias":         c.RecencyBias,
		"priority_weighting":   c.PriorityWeighting,
		"compression_strategy": c.CompressionStrategy,
	}
}

// SetData updates the configuration from the provided data.
func (s *ContextSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := &s.settings

	if v, ok := asInt(data["token_limit"]); ok {
		c.TokenLimit = v
	}
	if v, ok := asInt(data["max_items"]); ok {
		c.MaxItems = v
	}
	if v, ok := asFloat(data["semantic_threshold"]); ok {
		c.SemanticThreshold = v
	}
	if v, ok := asFloat(data["recency_bias"]); ok {
		c.RecencyBias = v
	}
	if v, ok := asBool(data["priority_weighting"]); ok {
		c.PriorityWeighting = v
	}
	if v, ok := asString(data["compression_strategy"]); ok {
		c.CompressionStrategy = v
	}
	return nil
}

// Validate validates the current configuration.
func (s *ContextSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.settings

	if c.TokenLimit <= 0 {
		return fmt.Errorf("token_limit must be positive")
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max_items must not be negative")
	}
	if c.SemanticThreshold < 0 || c.SemanticThreshold > 1 {
		return fmt.Errorf("semantic_threshold must be within [0,1]")
	}
	switch c.CompressionStrategy {
	case "minimal", "balanced", "aggressive":
	default:
		return fmt.Errorf("unknown compression_strategy %q", c.CompressionStrategy)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *ContextSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = DefaultContextSettings()
}

// Settings returns a copy of the current values.
func (s *ContextSection) Settings() ContextSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}
