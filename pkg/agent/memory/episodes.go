package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/entrhq/pilot/pkg/kv"
	"github.com/entrhq/pilot/pkg/types"
)

func episodeKey(ep *Episode) string {
	// Zero-padded nanos keep keys in chronological order.
	return fmt.Sprintf("%s%020d-%s", episodePrefix, ep.Timestamp.UnixNano(), ep.ID)
}

// SaveEpisode validates and appends ep. ID, timestamp and token count are
// filled in when empty. The stored copy is returned.
func (s *Store) SaveEpisode(ctx context.Context, ep Episode) (*Episode, error) {
	if !ep.Outcome.Valid() {
		return nil, types.NewBadRequestError(ErrInvalidOutcome.Error(), ErrInvalidOutcome).WithDetail("outcome", string(ep.Outcome))
	}
	if ep.WorkspaceID == "" {
		return nil, types.NewBadRequestError("episode requires a workspace id", nil)
	}
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.Timestamp.IsZero() {
		ep.Timestamp = s.now()
	}
	if ep.TokenCount == 0 {
		ep.TokenCount = s.tokens.Count(episodeText(&ep))
	}

	ns := kv.Namespace{UserID: s.userID, WorkspaceID: ep.WorkspaceID, ThreadID: ep.SessionID}
	key := episodeKey(&ep)
	if _, err := s.kv.Get(ctx, ns, key); err == nil {
		return nil, types.NewConflictError(fmt.Sprintf("episode %s already exists", ep.ID), nil)
	}
	meta := map[string]string{"outcome": string(ep.Outcome)}
	if err := s.put(ctx, ns, key, &ep, meta); err != nil {
		return nil, err
	}
	debugLog.Debugf("Saved %s episode %s for workspace %s (%d actions)", ep.Outcome, ep.ID, ep.WorkspaceID, len(ep.Actions))
	return &ep, nil
}

func episodeText(ep *Episode) string {
	var b strings.Builder
	b.WriteString(ep.Query)
	b.WriteString("\n")
	b.WriteString(ep.Reasoning)
	for _, a := range ep.Actions {
		b.WriteString("\n")
		b.WriteString(a.Type)
		b.WriteString(" ")
		b.WriteString(a.Result)
	}
	return b.String()
}

func (s *Store) episodes(ctx context.Context, workspaceID string) ([]*Episode, error) {
	eps, err := list[Episode](ctx, s, workspaceID, episodePrefix)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(eps, func(i, j int) bool {
		return eps[i].Timestamp.After(eps[j].Timestamp)
	})
	return eps, nil
}

// GetRecentEpisodes returns up to limit episodes, newest first. limit <= 0
// returns all of them.
func (s *Store) GetRecentEpisodes(ctx context.Context, workspaceID string, limit int) ([]*Episode, error) {
	eps, err := s.episodes(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return truncate(eps, limit), nil
}

// GetEpisodesByOutcome returns up to limit episodes with the given outcome,
// newest first.
func (s *Store) GetEpisodesByOutcome(ctx context.Context, workspaceID string, outcome Outcome, limit int) ([]*Episode, error) {
	if !outcome.Valid() {
		return nil, types.NewBadRequestError(ErrInvalidOutcome.Error(), ErrInvalidOutcome)
	}
	eps, err := s.episodes(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	out := eps[:0]
	for _, ep := range eps {
		if ep.Outcome == outcome {
			out = append(out, ep)
		}
	}
	return truncate(out, limit), nil
}

// SearchEpisodes ranks episodes by word overlap between query and the
// episode's task text. Episodes without any overlap are omitted.
func (s *Store) SearchEpisodes(ctx context.Context, workspaceID, query string, limit int) ([]*Episode, error) {
	eps, err := s.episodes(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	type scored struct {
		ep    *Episode
		score float64
	}
	var hits []scored
	for _, ep := range eps {
		if sc := overlapScore(query, ep.Query+" "+ep.Reasoning); sc > 0 {
			hits = append(hits, scored{ep, sc})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	out := make([]*Episode, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.ep)
	}
	return truncate(out, limit), nil
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
