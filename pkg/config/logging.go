package config

import (
	"fmt"
	"sync"
)

// SectionIDLogging is the identifier for the logging section
const SectionIDLogging = "logging"

// LoggingSection holds the process log level.
type LoggingSection struct {
	level string
	mu    sync.RWMutex
}

// NewLoggingSection creates the section with defaults.
func NewLoggingSection() *LoggingSection {
	return &LoggingSection{level: "info"}
}

func (s *LoggingSection) ID() string          { return SectionIDLogging }
func (s *LoggingSection) Title() string       { return "Logging" }
func (s *LoggingSection) Description() string { return "Minimum level written to the session log." }

func (s *LoggingSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{"level": s.level}
}

func (s *LoggingSection) SetData(data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := asString(data["level"]); ok {
		s.level = v
	}
	return nil
}

func (s *LoggingSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %q", s.level)
}

func (s *LoggingSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = "info"
}

// Level returns the configured level.
func (s *LoggingSection) Level() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}
