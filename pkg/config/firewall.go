package config

import (
	"fmt"
	"strings"
	"sync"
)

// SectionIDFirewall is the identifier for the URL firewall section
const SectionIDFirewall = "firewall"

// FirewallSection lists URL glob patterns the navigator may or may not visit.
// Deny patterns win over allow patterns; an empty allow list allows everything
// not denied.
type FirewallSection struct {
	allow []string
	deny  []string
	mu    sync.RWMutex
}

// NewFirewallSection creates the section with defaults.
func NewFirewallSection() *FirewallSection {
	s := &FirewallSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *FirewallSection) ID() string {
	return SectionIDFirewall
}

// Title returns the section title.
func (s *FirewallSection) Title() string {
	return "URL Firewall"
}

// Description returns the section description.
func (s *FirewallSection) Description() string {
	return "Glob patterns for URLs the agent may navigate to. Deny rules take precedence over allow rules."
}

// Data returns the current configuration data.
func (s *FirewallSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"allow": toInterfaces(s.allow),
		"deny":  toInterfaces(s.deny),
	}
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// SetData updates the configuration from the provided data.
func (s *FirewallSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, dst := range map[string]*[]string{"allow": &s.allow, "deny": &s.deny} {
		raw, present := data[key]
		if !present {
			continue
		}
		list, ok := asStringSlice(raw)
		if !ok {
			return fmt.Errorf("invalid %s type: expected list of strings, got %T", key, raw)
		}
		*dst = list
	}
	return nil
}

// Validate validates the current configuration.
func (s *FirewallSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, list := range [][]string{s.allow, s.deny} {
		for i, p := range list {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("pattern at index %d is empty", i)
			}
		}
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *FirewallSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allow = nil
	s.deny = []string{
		"file://*",
		"chrome://*",
		"javascript:*",
	}
}

// Rules returns copies of the allow and deny lists.
func (s *FirewallSection) Rules() (allow, deny []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.allow...), append([]string(nil), s.deny...)
}
