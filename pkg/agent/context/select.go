package context

import (
	"slices"
	"sort"
	"time"

	"github.com/entrhq/pilot/pkg/textmatch"
)

// SelectOptions narrows and ranks candidates for Select.
type SelectOptions struct {
	Types             []ItemType
	SessionID         string
	MaxItems          int
	SemanticThreshold float64
	RecencyBias       float64
	PriorityWeighting bool
}

type candidate struct {
	item  *Item
	score float64
}

// SelectItems picks items for a prompt under tokenLimit. It is pure: the
// inputs are not modified and the returned items are copies carrying the
// relevance computed for query.
//
// Candidates are ranked by relevance (plus RecencyBias times a recency
// score), then priority when PriorityWeighting is set, then newest first.
// Acceptance is greedy; an item that does not fit is skipped and the scan
// continues. The accepted set is reordered so the most important items sit
// at both ends.
func SelectItems(items []*Item, query string, tokenLimit int, opts SelectOptions, now time.Time) []*Item {
	var cands []candidate
	for _, it := range items {
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, it.Type) {
			continue
		}
		if opts.SessionID != "" && it.Metadata.SessionID != opts.SessionID {
			continue
		}

		c := it.Clone()
		if query != "" {
			rel := textmatch.Overlap(query, c.Content)
			c.Metadata.RelevanceScore = &rel
		}
		rel := c.Relevance()
		if rel < opts.SemanticThreshold {
			continue
		}
		cands = append(cands, candidate{item: c, score: rel + opts.RecencyBias*recency(c, now)})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if opts.PriorityWeighting && a.item.Metadata.Priority != b.item.Metadata.Priority {
			return a.item.Metadata.Priority > b.item.Metadata.Priority
		}
		return a.item.Metadata.Timestamp.After(b.item.Metadata.Timestamp)
	})

	var accepted []*Item
	used := 0
	for _, c := range cands {
		if opts.MaxItems > 0 && len(accepted) >= opts.MaxItems {
			break
		}
		tokens := c.item.Metadata.TokenCount
		if used+tokens > tokenLimit {
			continue
		}
		used += tokens
		accepted = append(accepted, c.item)
	}
	return reorderEnds(accepted)
}

// recency decays from 1 for a fresh item towards 0 over hours.
func recency(it *Item, now time.Time) float64 {
	age := now.Sub(it.Metadata.Timestamp).Hours()
	if age < 0 {
		age = 0
	}
	return 1 / (1 + age)
}

// reorderEnds places items by descending priority alternately at the start
// and the end, so the middle holds the least important ones.
func reorderEnds(items []*Item) []*Item {
	if len(items) < 3 {
		return items
	}
	ranked := slices.Clone(items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Metadata.Priority > ranked[j].Metadata.Priority
	})

	out := make([]*Item, len(ranked))
	left, right := 0, len(ranked)-1
	for i, it := range ranked {
		if i%2 == 0 {
			out[left] = it
			left++
		} else {
			out[right] = it
			right--
		}
	}
	return out
}
