package config

import (
	"fmt"
	"maps"
	"sync"
)

// SectionIDApproval is the identifier for the approval defaults section
const SectionIDApproval = "approval"

// ApprovalSection holds the defaults applied to newly created workspaces:
// the starting autonomy level and the standing approvals per action type.
type ApprovalSection struct {
	standing      map[string]bool
	autonomyLevel int
	mu            sync.RWMutex
}

// NewApprovalSection creates the section with defaults.
func NewApprovalSection() *ApprovalSection {
	s := &ApprovalSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *ApprovalSection) ID() string {
	return SectionIDApproval
}

// Title returns the section title.
func (s *ApprovalSection) Title() string {
	return "Approval Defaults"
}

// Description returns the section description.
func (s *ApprovalSection) Description() string {
	return "Autonomy level and standing approvals given to new workspaces. Existing workspaces keep their own settings."
}

// Data returns the current configuration data.
func (s *ApprovalSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	standing := make(map[string]interface{}, len(s.standing))
	for action, ok := range s.standing {
		standing[action] = ok
	}
	return map[string]interface{}{
		"autonomy_level":     s.autonomyLevel,
		"standing_approvals": standing,
	}
}

// SetData updates the configuration from the provided data.
func (s *ApprovalSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := asInt(data["autonomy_level"]); ok {
		s.autonomyLevel = v
	}
	if raw, ok := data["standing_approvals"]; ok {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("invalid standing_approvals type: expected map, got %T", raw)
		}
		standing := make(map[string]bool, len(m))
		for action, value := range m {
			enabled, ok := value.(bool)
			if !ok {
				return fmt.Errorf("invalid value type for action '%s': expected bool, got %T", action, value)
			}
			standing[action] = enabled
		}
		s.standing = standing
	}
	return nil
}

// Validate validates the current configuration.
func (s *ApprovalSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.autonomyLevel < 1 || s.autonomyLevel > 5 {
		return fmt.Errorf("autonomy_level must be between 1 and 5, got %d", s.autonomyLevel)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *ApprovalSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autonomyLevel = 3
	s.standing = map[string]bool{
		"navigate": true,
		"scroll":   true,
		"extract":  true,
	}
}

// AutonomyLevel returns the default autonomy level.
func (s *ApprovalSection) AutonomyLevel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autonomyLevel
}

// StandingApprovals returns a copy of the default standing approvals.
func (s *ApprovalSection) StandingApprovals() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.standing))
	maps.Copy(out, s.standing)
	return out
}
