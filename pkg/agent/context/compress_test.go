package context

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compressionFixture is 400 tokens: a pinned item, a low-priority item,
// an old normal item and a fresh normal item.
func compressionFixture() []*Item {
	mk := func(id string, priority int, age time.Duration) *Item {
		return &Item{
			ID:      id,
			Type:    TypeHistory,
			Content: "step " + id,
			Payload: HistoryPayload{Role: "navigator", Step: 1},
			Metadata: Metadata{
				Timestamp:   testNow.Add(-age),
				WorkspaceID: "w1",
				SessionID:   "s1",
				TokenCount:  100,
				Priority:    priority,
			},
		}
	}
	return []*Item{
		mk("pinned", 5, 3*time.Hour),
		mk("low", 2, 3*time.Hour),
		mk("old", 3, 3*time.Hour),
		mk("fresh", 3, 10*time.Minute),
	}
}

func ids(items []*Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func fixedEngine(opts ...Option) *Engine {
	base := []Option{WithClock(func() time.Time { return testNow }), WithTokenizer(fixedCounter(10))}
	return newTestEngine(append(base, opts...)...)
}

func TestCompress_Strategies(t *testing.T) {
	tests := []struct {
		name        string
		strategy    string
		target      int
		reply       string
		wantRemoved []string
		wantKept    []string
		wantTokens  int
		wantCalls   int
		condensed   bool
	}{
		{
			name:        "balanced summarizes removed items",
			strategy:    StrategyBalanced,
			target:      250,
			reply:       "I opened the low and old pages.",
			wantRemoved: []string{"low", "old"},
			wantKept:    []string{"pinned", "fresh"},
			wantTokens:  210,
			wantCalls:   1,
			condensed:   true,
		},
		{
			name:        "condensed item dropped when it does not fit",
			strategy:    StrategyBalanced,
			target:      205,
			reply:       "summary",
			wantRemoved: []string{"low", "old"},
			wantKept:    []string{"pinned", "fresh"},
			wantTokens:  200,
			wantCalls:   1,
		},
		{
			name:        "aggressive ignores recency",
			strategy:    StrategyAggressive,
			target:      250,
			reply:       "- fact",
			wantRemoved: []string{"low", "fresh"},
			wantKept:    []string{"pinned", "old"},
			wantTokens:  210,
			wantCalls:   1,
			condensed:   true,
		},
		{
			name:        "minimal truncates without inference",
			strategy:    StrategyMinimal,
			target:      250,
			wantRemoved: []string{"low", "old"},
			wantKept:    []string{"pinned", "fresh"},
			wantTokens:  200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inf := &fakeInferrer{reply: tt.reply}
			e := fixedEngine(WithInferrer(inf))
			in := compressionFixture()

			res, err := e.Compress(t.Context(), in, tt.strategy, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemoved, res.RemovedIDs)
			assert.Equal(t, 400, res.OriginalTokens)
			assert.Equal(t, tt.wantTokens, res.CompressedTokens)
			assert.Equal(t, 400-tt.wantTokens, res.TokensSaved)
			assert.LessOrEqual(t, res.CompressedTokens, tt.target)
			assert.Equal(t, tt.wantCalls, inf.calls())
			assert.False(t, res.FellBack)
			assert.NotEmpty(t, res.Summary)

			got := ids(res.Items)
			if tt.condensed {
				require.Len(t, got, len(tt.wantKept)+1)
				last := res.Items[len(res.Items)-1]
				assert.Equal(t, TypeMemory, last.Type)
				assert.Equal(t, tt.reply, last.Content)
				got = got[:len(got)-1]
			}
			assert.Equal(t, tt.wantKept, got)
			assert.Len(t, in, 4, "input untouched")
		})
	}
}

func TestCompress_InferenceFailureFallsBack(t *testing.T) {
	e := fixedEngine(WithInferrer(&fakeInferrer{err: errors.New("backend down")}))

	res, err := e.Compress(t.Context(), compressionFixture(), StrategyBalanced, 250)
	require.NoError(t, err)
	assert.True(t, res.FellBack)
	assert.Equal(t, []string{"pinned", "fresh"}, ids(res.Items))
	assert.Equal(t, 200, res.CompressedTokens)
	assert.Contains(t, res.Summary, "truncated")
}

func TestCompress_NoInferrerFallsBack(t *testing.T) {
	res, err := fixedEngine().Compress(t.Context(), compressionFixture(), StrategyAggressive, 250)
	require.NoError(t, err)
	assert.True(t, res.FellBack)
	assert.Equal(t, 200, res.CompressedTokens)
}

func TestCompress_Idempotent(t *testing.T) {
	e := fixedEngine(WithInferrer(&fakeInferrer{reply: "I did things."}))

	first, err := e.Compress(t.Context(), compressionFixture(), StrategyBalanced, 250)
	require.NoError(t, err)
	second, err := e.Compress(t.Context(), first.Items, StrategyBalanced, 250)
	require.NoError(t, err)

	assert.Equal(t, ids(first.Items), ids(second.Items))
	assert.Empty(t, second.RemovedIDs)
	assert.Zero(t, second.TokensSaved)
	assert.Equal(t, first.CompressedTokens, second.CompressedTokens)
}

func TestCompress_PreservedItemsStay(t *testing.T) {
	items := compressionFixture()
	for _, it := range items {
		it.Metadata.Priority = 5
	}
	res, err := fixedEngine().Compress(t.Context(), items, StrategyAggressive, 100)
	require.NoError(t, err)
	assert.Empty(t, res.RemovedIDs)
	assert.Len(t, res.Items, 4)
	assert.Contains(t, res.Summary, "still over target")
}

func TestCompress_RejectsBadInput(t *testing.T) {
	e := fixedEngine()
	_, err := e.Compress(t.Context(), nil, "extreme", 100)
	assert.Error(t, err)
	_, err = e.Compress(t.Context(), nil, StrategyBalanced, 0)
	assert.Error(t, err)
}
