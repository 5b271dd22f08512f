package browser

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/entrhq/pilot/pkg/types"
)

// Firewall filters navigation targets with glob patterns. Deny rules win;
// an empty allow list allows everything that is not denied.
type Firewall struct {
	allow []glob.Glob
	deny  []glob.Glob
}

// NewFirewall compiles the allow and deny patterns.
func NewFirewall(allow, deny []string) (*Firewall, error) {
	f := &Firewall{}
	var err error
	if f.allow, err = compile(allow); err != nil {
		return nil, fmt.Errorf("allow list: %w", err)
	}
	if f.deny, err = compile(deny); err != nil {
		return nil, fmt.Errorf("deny list: %w", err)
	}
	return f, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Allowed reports whether url may be visited. A nil Firewall allows all.
func (f *Firewall) Allowed(url string) bool {
	if f == nil {
		return true
	}
	u := strings.ToLower(strings.TrimSpace(url))
	for _, g := range f.deny {
		if g.Match(u) {
			return false
		}
	}
	if len(f.allow) == 0 {
		return true
	}
	for _, g := range f.allow {
		if g.Match(u) {
			return true
		}
	}
	return false
}

// Check returns a URLNotAllowedError for blocked urls.
func (f *Firewall) Check(url string) error {
	if !f.Allowed(url) {
		return types.NewURLNotAllowedError(url)
	}
	return nil
}
