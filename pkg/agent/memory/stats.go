package memory

import "context"

func tier(count, tokens int) TierStats {
	t := TierStats{Count: count, TotalTokens: tokens}
	if count > 0 {
		t.AverageTokens = float64(tokens) / float64(count)
	}
	return t
}

// GetMemoryStats aggregates all three tiers of a workspace. Efficiency is
// (facts used + patterns used + successful episodes) / total items.
func (s *Store) GetMemoryStats(ctx context.Context, workspaceID string) (*Stats, error) {
	eps, err := s.episodes(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	facts, err := list[SemanticFact](ctx, s, workspaceID, factPrefix)
	if err != nil {
		return nil, err
	}
	pats, err := s.patterns(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	st := &Stats{WorkspaceID: workspaceID}

	var epTokens int
	for _, ep := range eps {
		epTokens += ep.TokenCount
		if ep.Outcome == OutcomeSuccess {
			st.SuccessfulEpisodes++
		}
	}
	st.Episodes = tier(len(eps), epTokens)

	var factTokens int
	var confidence float64
	for _, f := range facts {
		factTokens += f.TokenCount
		confidence += f.Confidence
		if f.UsageCount > 0 {
			st.FactsUsed++
		}
	}
	st.Facts = tier(len(facts), factTokens)
	if len(facts) > 0 {
		st.AverageConfidence = confidence / float64(len(facts))
	}

	var patTokens int
	var success float64
	for _, p := range pats {
		patTokens += p.TokenCount
		success += p.SuccessRate
		if p.UsageCount > 0 {
			st.PatternsUsed++
		}
	}
	st.Patterns = tier(len(pats), patTokens)
	if len(pats) > 0 {
		st.AverageSuccessRate = success / float64(len(pats))
	}

	st.TotalItems = len(eps) + len(facts) + len(pats)
	st.TotalTokens = epTokens + factTokens + patTokens
	if st.TotalItems > 0 {
		st.Efficiency = float64(st.FactsUsed+st.PatternsUsed+st.SuccessfulEpisodes) / float64(st.TotalItems)
	}
	return st, nil
}
