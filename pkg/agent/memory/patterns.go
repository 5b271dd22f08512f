package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/entrhq/pilot/pkg/types"
)

const (
	// successAlpha is the EMA weight of the newest outcome.
	successAlpha = 0.1
	// MinPatternActions is the fewest actions a successful run needs to
	// become a pattern.
	MinPatternActions = 3
)

func patternKey(id string) string {
	return patternPrefix + id
}

// Rank is the ordering key of GetBestPatterns.
func (p *WorkflowPattern) Rank() float64 {
	return p.SuccessRate * math.Log(float64(p.UsageCount)+1)
}

// Summary returns the listing view of p.
func (p *WorkflowPattern) Summary() PatternSummary {
	return PatternSummary{
		ID:          p.ID,
		Name:        p.Name,
		StepCount:   len(p.Steps),
		SuccessRate: p.SuccessRate,
		UsageCount:  p.UsageCount,
		LastUsed:    p.LastUsed,
	}
}

func patternText(p *WorkflowPattern) string {
	var b strings.Builder
	b.WriteString(p.Name)
	for _, st := range p.Steps {
		fmt.Fprintf(&b, "\n%s %v %s", st.Action, st.Parameters, st.ExpectedResult)
	}
	return b.String()
}

// SavePattern stores p. A pattern with the same name in the workspace is
// replaced in place, keeping its id, creation time and track record.
func (s *Store) SavePattern(ctx context.Context, workspaceID string, p WorkflowPattern) (*WorkflowPattern, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, types.NewBadRequestError("pattern name is empty", nil)
	}
	if len(p.Steps) == 0 {
		return nil, types.NewBadRequestError("pattern has no steps", nil)
	}
	if p.SuccessRate < 0 || p.SuccessRate > 1 {
		return nil, types.NewBadRequestError("pattern success rate must be within [0,1]", nil)
	}

	ns, err := s.ns(workspaceID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	existing, err := s.GetPattern(ctx, workspaceID, p.Name)
	switch {
	case err == nil:
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		p.SuccessRate = existing.SuccessRate
		p.UsageCount = existing.UsageCount
		p.LastUsed = existing.LastUsed
	case !errors.Is(err, ErrNotFound):
		return nil, err
	default:
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
	}
	p.WorkspaceID = workspaceID
	p.UpdatedAt = now
	p.TokenCount = s.tokens.Count(patternText(&p))

	if err := s.put(ctx, ns, patternKey(p.ID), &p, map[string]string{"name": p.Name}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) patterns(ctx context.Context, workspaceID string) ([]*WorkflowPattern, error) {
	return list[WorkflowPattern](ctx, s, workspaceID, patternPrefix)
}

// GetPattern looks a pattern up by name (case-insensitive).
func (s *Store) GetPattern(ctx context.Context, workspaceID, name string) (*WorkflowPattern, error) {
	all, err := s.patterns(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

// GetPatternByID looks a pattern up by id.
func (s *Store) GetPatternByID(ctx context.Context, workspaceID, id string) (*WorkflowPattern, error) {
	ns, err := s.ns(workspaceID)
	if err != nil {
		return nil, err
	}
	var p WorkflowPattern
	if err := s.get(ctx, ns, patternKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPatterns returns summaries sorted by name.
func (s *Store) ListPatterns(ctx context.Context, workspaceID string) ([]PatternSummary, error) {
	all, err := s.patterns(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]PatternSummary, 0, len(all))
	for _, p := range all {
		out = append(out, p.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetBestPatterns returns up to limit patterns ordered by
// successRate × ln(usageCount+1), highest first.
func (s *Store) GetBestPatterns(ctx context.Context, workspaceID string, limit int) ([]*WorkflowPattern, error) {
	all, err := s.patterns(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		ri, rj := all[i].Rank(), all[j].Rank()
		if ri != rj {
			return ri > rj
		}
		return all[i].Name < all[j].Name
	})
	return truncate(all, limit), nil
}

// UpdatePatternUsage folds one more outcome into the pattern's success rate
// with an exponential moving average and bumps its usage count.
func (s *Store) UpdatePatternUsage(ctx context.Context, workspaceID, id string, success bool) (*WorkflowPattern, error) {
	p, err := s.GetPatternByID(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	p.SuccessRate = successAlpha*outcome + (1-successAlpha)*p.SuccessRate
	p.UsageCount++
	p.LastUsed = s.now()
	p.UpdatedAt = p.LastUsed

	ns, _ := s.ns(workspaceID)
	if err := s.put(ctx, ns, patternKey(p.ID), p, map[string]string{"name": p.Name}); err != nil {
		return nil, err
	}
	return p, nil
}

// PatternFromEpisode derives a pattern from a successful episode with at
// least MinPatternActions actions. It reports false otherwise.
func PatternFromEpisode(ep *Episode) (WorkflowPattern, bool) {
	if ep.Outcome != OutcomeSuccess || len(ep.Actions) < MinPatternActions {
		return WorkflowPattern{}, false
	}
	steps := make([]PatternStep, 0, len(ep.Actions))
	for _, a := range ep.Actions {
		steps = append(steps, PatternStep{
			Action:         a.Type,
			Parameters:     a.Params,
			ExpectedResult: a.Result,
		})
	}
	return WorkflowPattern{
		Name:        patternName(ep.Query),
		Steps:       steps,
		SuccessRate: 1,
		UsageCount:  1,
		LastUsed:    ep.Timestamp,
		Metadata:    map[string]string{"sourceEpisode": ep.ID},
	}, true
}

// patternName turns a task into a short stable name.
func patternName(task string) string {
	words := strings.Fields(strings.ToLower(task))
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, " ")
}
