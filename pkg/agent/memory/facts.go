package memory

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/entrhq/pilot/pkg/textmatch"
	"github.com/entrhq/pilot/pkg/types"
)

// Fact scores. A hit below minFactScore is discarded.
const (
	scoreExactKey     = 1.0
	scoreKeySubstring = 0.8
	scoreValueSubstr  = 0.6
	scoreOverlapScale = 0.4
	minFactScore      = 0.1

	// DefaultConfidence is used when SaveFact is given no confidence.
	DefaultConfidence = 0.8
)

// FactOptions carries optional attributes for SaveFact.
type FactOptions struct {
	Source     string
	Confidence float64
}

func factKey(key string) string {
	return factPrefix + strings.ToLower(strings.TrimSpace(key))
}

// SaveFact inserts a fact or updates the existing fact with the same key,
// incrementing its usage count.
func (s *Store) SaveFact(ctx context.Context, workspaceID, key, value string, opts FactOptions) (*SemanticFact, error) {
	if strings.TrimSpace(key) == "" {
		return nil, types.NewBadRequestError("fact key is empty", nil)
	}
	if opts.Confidence < 0 || opts.Confidence > 1 {
		return nil, types.NewBadRequestError("fact confidence must be within [0,1]", nil)
	}

	ns, err := s.ns(workspaceID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var fact SemanticFact
	err = s.get(ctx, ns, factKey(key), &fact)
	switch {
	case errors.Is(err, ErrNotFound):
		fact = SemanticFact{
			ID:          uuid.NewString(),
			Key:         key,
			WorkspaceID: workspaceID,
			Confidence:  DefaultConfidence,
			Source:      "agent",
		}
	case err != nil:
		return nil, err
	default:
		fact.UsageCount++
	}

	fact.Value = value
	fact.Timestamp = now
	fact.LastUsed = now
	if opts.Confidence > 0 {
		fact.Confidence = opts.Confidence
	}
	if opts.Source != "" {
		fact.Source = opts.Source
	}
	fact.TokenCount = s.tokens.Count(fact.Key + ": " + fact.Value)

	if err := s.put(ctx, ns, factKey(key), &fact, map[string]string{"source": fact.Source}); err != nil {
		return nil, err
	}
	return &fact, nil
}

// GetFact returns the fact stored under key.
func (s *Store) GetFact(ctx context.Context, workspaceID, key string) (*SemanticFact, error) {
	ns, err := s.ns(workspaceID)
	if err != nil {
		return nil, err
	}
	var fact SemanticFact
	if err := s.get(ctx, ns, factKey(key), &fact); err != nil {
		return nil, err
	}
	return &fact, nil
}

// scoreFact ranks one fact against a lowercased query.
func scoreFact(f *SemanticFact, query string) (float64, MatchType) {
	key := strings.ToLower(f.Key)
	value := strings.ToLower(f.Value)
	switch {
	case key == query:
		return scoreExactKey, MatchExact
	case strings.Contains(key, query):
		return scoreKeySubstring, MatchPartial
	case strings.Contains(value, query):
		return scoreValueSubstr, MatchPartial
	}
	return overlapScore(query, key+" "+value) * scoreOverlapScale, MatchSemantic
}

func overlapScore(query, text string) float64 {
	return textmatch.Overlap(query, text)
}

// SearchFacts ranks the workspace's facts against query and returns up to
// limit hits. Every returned fact counts as used: its usage count goes up
// and LastUsed is refreshed.
func (s *Store) SearchFacts(ctx context.Context, workspaceID, query string, limit int) ([]FactMatch, error) {
	ns, err := s.ns(workspaceID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	facts, err := list[SemanticFact](ctx, s, workspaceID, factPrefix)
	if err != nil {
		return nil, err
	}

	var matches []FactMatch
	for _, f := range facts {
		score, mt := scoreFact(f, q)
		if score < minFactScore {
			continue
		}
		matches = append(matches, FactMatch{Fact: f, Score: score, MatchType: mt})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Fact.Confidence != matches[j].Fact.Confidence {
			return matches[i].Fact.Confidence > matches[j].Fact.Confidence
		}
		return matches[i].Fact.Key < matches[j].Fact.Key
	})
	matches = truncate(matches, limit)

	now := s.now()
	for _, m := range matches {
		m.Fact.UsageCount++
		m.Fact.LastUsed = now
		if err := s.put(ctx, ns, factKey(m.Fact.Key), m.Fact, map[string]string{"source": m.Fact.Source}); err != nil {
			debugLog.Warnf("Failed to record usage of fact %s: %v", m.Fact.Key, err)
		}
	}
	return matches, nil
}
