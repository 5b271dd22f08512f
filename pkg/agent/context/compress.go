package context

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/pilot/pkg/types"
)

// CompressionResult reports one Compress call.
type CompressionResult struct {
	Items            []*Item  `json:"items"`
	RemovedIDs       []string `json:"removedIds"`
	Summary          string   `json:"summary"`
	Strategy         string   `json:"strategy"`
	OriginalTokens   int      `json:"originalTokens"`
	CompressedTokens int      `json:"compressedTokens"`
	TokensSaved      int      `json:"tokensSaved"`
	FellBack         bool     `json:"fellBack,omitempty"`
}

// Compress reduces items to at most target tokens using the named
// strategy. Inputs are not modified. Items already within target are
// returned unchanged, so compressing a result again is a no-op.
//
// Items are removed from the least important end, skipping the ones the
// strategy preserves. What was removed is condensed into a single memory
// item when the strategy supports it and the item still fits; a failed
// inference call degrades to plain truncation.
func (e *Engine) Compress(ctx context.Context, items []*Item, strategyName string, target int) (*CompressionResult, error) {
	if target <= 0 {
		return nil, types.NewBadRequestError("compression target must be positive", nil)
	}
	strategy, err := StrategyByName(strategyName)
	if err != nil {
		return nil, types.NewBadRequestError(err.Error(), err)
	}

	original := totalTokens(items)
	res := &CompressionResult{
		Strategy:       strategy.Name(),
		OriginalTokens: original,
		RemovedIDs:     []string{},
	}
	kept := make([]*Item, 0, len(items))
	for _, it := range items {
		kept = append(kept, it.Clone())
	}
	if original <= target {
		res.Items = kept
		res.CompressedTokens = original
		res.Summary = fmt.Sprintf("already within budget (%d/%d tokens)", original, target)
		return res, nil
	}

	e.emitEvent(func(taskID string) *types.AgentEvent {
		return types.NewContextCompressionStartEvent(taskID, strategy.Name(), original)
	})
	start := time.Now()

	now := e.now()
	removed := removeForBudget(kept, strategy, target, now)
	removedSet := make(map[string]bool, len(removed))
	for _, it := range removed {
		removedSet[it.ID] = true
		res.RemovedIDs = append(res.RemovedIDs, it.ID)
	}
	survivors := kept[:0]
	for _, it := range kept {
		if !removedSet[it.ID] {
			survivors = append(survivors, it)
		}
	}
	total := totalTokens(survivors)

	var condensed *Item
	if len(removed) > 0 {
		text, err := strategy.Condense(ctx, e.inf, removed)
		if err != nil {
			debugLog.Warnf("Compression strategy %s could not condense %d items, truncating: %v", strategy.Name(), len(removed), err)
			e.emitEvent(func(taskID string) *types.AgentEvent {
				return types.NewContextCompressionErrorEvent(taskID, strategy.Name(), err)
			})
			res.FellBack = true
		} else if text != "" {
			condensed = e.condensedItem(strategy.Name(), text, removed, now)
			if total+condensed.Metadata.TokenCount > target {
				debugLog.Debugf("Dropping %d-token condensed item, over target %d", condensed.Metadata.TokenCount, target)
				condensed = nil
			}
		}
	}
	if condensed != nil {
		survivors = append(survivors, condensed)
		total += condensed.Metadata.TokenCount
	}

	res.Items = survivors
	res.CompressedTokens = total
	res.TokensSaved = original - total
	res.Summary = summarize(res, len(items), condensed != nil, target)

	e.emitEvent(func(taskID string) *types.AgentEvent {
		return types.NewContextCompressionDoneEvent(taskID, &types.ContextCompression{
			Strategy:         res.Strategy,
			OriginalTokens:   res.OriginalTokens,
			CompressedTokens: res.CompressedTokens,
			TokensSaved:      res.TokensSaved,
			ItemsRemoved:     len(res.RemovedIDs),
			Duration:         time.Since(start).String(),
		})
	})
	return res, nil
}

// removeForBudget returns the items to drop, least important first, until
// the rest fits target. Preserved items are never returned.
func removeForBudget(items []*Item, s Strategy, target int, now time.Time) []*Item {
	ranked := make([]*Item, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Metadata.Priority != b.Metadata.Priority {
			return a.Metadata.Priority > b.Metadata.Priority
		}
		if a.Relevance() != b.Relevance() {
			return a.Relevance() > b.Relevance()
		}
		if s.UseRecency() {
			return a.Metadata.Timestamp.After(b.Metadata.Timestamp)
		}
		return false
	})

	total := totalTokens(items)
	var removed []*Item
	for i := len(ranked) - 1; i >= 0 && total > target; i-- {
		it := ranked[i]
		if it.Metadata.Priority >= alwaysKept || s.Preserve(it, now) {
			continue
		}
		removed = append(removed, it)
		total -= it.Metadata.TokenCount
	}
	return removed
}

func (e *Engine) condensedItem(strategy, text string, removed []*Item, now time.Time) *Item {
	var rel float64
	for _, it := range removed {
		rel += it.Relevance()
	}
	rel /= float64(len(removed))
	first := removed[0].Metadata
	return &Item{
		ID:         uuid.NewString(),
		Type:       TypeMemory,
		Content:    text,
		SourceType: SourceMain,
		Payload:    MemoryPayload{Tier: "compressed-" + strategy},
		Metadata: Metadata{
			Timestamp:      now,
			RelevanceScore: &rel,
			Source:         "compression",
			WorkspaceID:    first.WorkspaceID,
			SessionID:      first.SessionID,
			TokenCount:     e.tokens.Count(text),
			Priority:       DefaultPriority,
		},
	}
}

func summarize(res *CompressionResult, inputCount int, condensed bool, target int) string {
	s := fmt.Sprintf("%s compression removed %d of %d items (%d -> %d tokens)",
		res.Strategy, len(res.RemovedIDs), inputCount, res.OriginalTokens, res.CompressedTokens)
	switch {
	case res.FellBack:
		s += "; summarization failed, removed items were truncated"
	case condensed:
		s += "; removed items were condensed into one memory item"
	}
	if res.CompressedTokens > target {
		s += fmt.Sprintf("; still over target %d because the remaining items are preserved", target)
	}
	return s
}
