package context

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/pilot/pkg/textmatch"
	"github.com/entrhq/pilot/pkg/types"
)

// DefaultSynthesisTopN is how many items SynthesizeWorkspaces merges when
// TopN is unset.
const DefaultSynthesisTopN = 5

// SynthesisOptions controls SynthesizeWorkspaces.
type SynthesisOptions struct {
	SessionID string
	TopN      int
	Consent   bool
}

type sourced struct {
	item      *Item
	workspace string
	score     float64
}

// SynthesizeWorkspaces merges the items most relevant to query from each
// source workspace into one external item written to target. Sources are
// read concurrently. The caller must have the user's consent.
func (e *Engine) SynthesizeWorkspaces(ctx context.Context, sources []string, target, query string, opts SynthesisOptions) (*Item, error) {
	if !opts.Consent {
		return nil, types.NewForbiddenError(ErrConsentRequired.Error(), ErrConsentRequired)
	}
	if len(sources) == 0 || target == "" {
		return nil, types.NewBadRequestError("synthesis needs source workspaces and a target", nil)
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultSynthesisTopN
	}

	var (
		mu  sync.Mutex
		all []sourced
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, ws := range sources {
		g.Go(func() error {
			items, err := e.Items(gctx, Scope{WorkspaceID: ws})
			if err != nil {
				return fmt.Errorf("workspace %s: %w", ws, err)
			}
			local := make([]sourced, 0, len(items))
			for _, it := range items {
				score := it.Relevance()
				if query != "" {
					score = textmatch.Overlap(query, it.Content)
				}
				local = append(local, sourced{item: it, workspace: ws, score: score})
			}
			mu.Lock()
			all = append(all, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, types.NewNotFoundError("source workspaces have no context items", nil)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].item.Metadata.Timestamp.After(all[j].item.Metadata.Timestamp)
	})
	if len(all) > topN {
		all = all[:topN]
	}

	var (
		b     strings.Builder
		rel   float64
		names []string
	)
	for _, s := range all {
		fmt.Fprintf(&b, "[%s] %s\n", s.workspace, s.item.Content)
		rel += s.score
		if !slices.Contains(names, s.workspace) {
			names = append(names, s.workspace)
		}
	}
	rel /= float64(len(all))
	sort.Strings(names)

	debugLog.Infof("Synthesizing %d items from %d workspaces into %s", len(all), len(names), target)
	return e.Write(ctx, Item{
		Content:    strings.TrimRight(b.String(), "\n"),
		SourceType: SourceMain,
		Payload:    ExternalPayload{Service: "workspace-synthesis", SourceWorkspaces: names},
		Metadata: Metadata{
			RelevanceScore: &rel,
			Source:         "synthesis",
			WorkspaceID:    target,
			SessionID:      opts.SessionID,
			Priority:       DefaultPriority,
		},
	})
}
