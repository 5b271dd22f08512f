package approval

import (
	"context"
)

const (
	// DefaultTrust is the score of a workspace with no decisions yet.
	DefaultTrust = 0.5

	// TrustStep is how far one human decision moves the score.
	TrustStep = 0.1

	// RaiseAutonomyAt and LowerAutonomyAt bound the score at which
	// SuggestAutonomy proposes a change.
	RaiseAutonomyAt = 0.8
	LowerAutonomyAt = 0.2
)

// TrustRecorder persists trust changes, typically on the workspace config.
// It returns the new score.
type TrustRecorder interface {
	AdjustTrust(ctx context.Context, workspaceID string, delta float64) (float64, error)
}

// Trust returns the workspace's trust score.
func (g *Gate) Trust(workspaceID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.scores[workspaceID]; ok {
		return s
	}
	return DefaultTrust
}

// SetTrust seeds the score for a workspace, for example from persisted
// config.
func (g *Gate) SetTrust(workspaceID string, score float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scores[workspaceID] = clamp(score)
}

func (g *Gate) adjustTrust(ctx context.Context, workspaceID string, delta float64) {
	g.mu.Lock()
	s, ok := g.scores[workspaceID]
	if !ok {
		s = DefaultTrust
	}
	s = clamp(s + delta)
	g.scores[workspaceID] = s
	g.mu.Unlock()

	if g.trust == nil || workspaceID == "" {
		return
	}
	stored, err := g.trust.AdjustTrust(ctx, workspaceID, delta)
	if err != nil {
		debugLog.Warnf("Failed to persist trust for workspace %s: %v", workspaceID, err)
		return
	}
	g.SetTrust(workspaceID, stored)
}

// SuggestAutonomy proposes a new autonomy level from a trust score. The
// bool is false when no change is suggested.
func SuggestAutonomy(level int, trust float64) (int, bool) {
	switch {
	case trust >= RaiseAutonomyAt && level < 5:
		return level + 1, true
	case trust <= LowerAutonomyAt && level > 1:
		return level - 1, true
	}
	return level, false
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
