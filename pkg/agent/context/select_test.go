package context

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func selectFixture(tokens ...int) []*Item {
	items := make([]*Item, 0, len(tokens))
	for i, n := range tokens {
		items = append(items, &Item{
			ID:   fmt.Sprintf("i%d", i),
			Type: TypeMessage,
			Metadata: Metadata{
				Timestamp:   testNow,
				WorkspaceID: "w1",
				TokenCount:  n,
				Priority:    5 - i%5,
			},
		})
	}
	return items
}

func TestSelectItems_Budget(t *testing.T) {
	tests := []struct {
		name   string
		tokens []int
		limit  int
		want   []string
	}{
		{"skips items that do not fit and keeps scanning", []int{60, 50, 20}, 80, []string{"i0", "i2"}},
		{"everything fits", []int{10, 10}, 80, []string{"i0", "i1"}},
		{"nothing fits", []int{90, 100}, 80, nil},
		{"exact fit", []int{80}, 80, []string{"i0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectItems(selectFixture(tt.tokens...), "", tt.limit, SelectOptions{PriorityWeighting: true}, testNow)
			var gotIDs []string
			for _, it := range got {
				gotIDs = append(gotIDs, it.ID)
			}
			assert.Equal(t, tt.want, gotIDs)
			assert.LessOrEqual(t, totalTokens(got), tt.limit)
		})
	}
}

func TestSelectItems_EmptyOnlyWhenEverythingExceedsBudget(t *testing.T) {
	for limit := 1; limit <= 120; limit += 7 {
		items := selectFixture(30, 70, 110)
		got := SelectItems(items, "", limit, SelectOptions{}, testNow)
		allExceed := true
		for _, it := range items {
			if it.Metadata.TokenCount <= limit {
				allExceed = false
			}
		}
		assert.Equal(t, allExceed, len(got) == 0, "limit %d", limit)
		assert.LessOrEqual(t, totalTokens(got), limit)
	}
}

func TestSelectItems_ReorderEnds(t *testing.T) {
	got := SelectItems(selectFixture(1, 1, 1, 1, 1), "", 100, SelectOptions{PriorityWeighting: true}, testNow)
	var prios []int
	for _, it := range got {
		prios = append(prios, it.Metadata.Priority)
	}
	assert.Equal(t, []int{5, 3, 1, 2, 4}, prios)
}

func TestSelectItems_Filters(t *testing.T) {
	items := []*Item{
		{ID: "m", Type: TypeMessage, Content: "book a table", Metadata: Metadata{Timestamp: testNow, SessionID: "s1", TokenCount: 5, Priority: 3}},
		{ID: "p", Type: TypePage, Content: "restaurant table booking", Metadata: Metadata{Timestamp: testNow, SessionID: "s1", TokenCount: 5, Priority: 3}},
		{ID: "h", Type: TypeHistory, Content: "clicked book", Metadata: Metadata{Timestamp: testNow, SessionID: "s2", TokenCount: 5, Priority: 3}},
	}

	got := SelectItems(items, "", 100, SelectOptions{Types: []ItemType{TypePage, TypeHistory}}, testNow)
	assert.ElementsMatch(t, []string{"p", "h"}, ids(got))

	got = SelectItems(items, "", 100, SelectOptions{SessionID: "s2"}, testNow)
	assert.Equal(t, []string{"h"}, ids(got))

	got = SelectItems(items, "book table", 100, SelectOptions{SemanticThreshold: 0.6}, testNow)
	assert.Equal(t, []string{"m"}, ids(got))

	got = SelectItems(items, "", 100, SelectOptions{MaxItems: 2}, testNow)
	assert.Len(t, got, 2)

	assert.Nil(t, items[0].Metadata.RelevanceScore, "inputs are not modified")
}

func TestSelectItems_RecencyBias(t *testing.T) {
	items := []*Item{
		{ID: "old", Type: TypeMessage, Metadata: Metadata{Timestamp: testNow.Add(-48 * time.Hour), TokenCount: 1, Priority: 3}},
		{ID: "new", Type: TypeMessage, Metadata: Metadata{Timestamp: testNow.Add(-time.Minute), TokenCount: 1, Priority: 3}},
	}
	items[0].Metadata.RelevanceScore = rel(0.55)

	got := SelectItems(items, "", 100, SelectOptions{}, testNow)
	assert.Equal(t, []string{"old", "new"}, ids(got))

	got = SelectItems(items, "", 100, SelectOptions{RecencyBias: 0.5}, testNow)
	assert.Equal(t, []string{"new", "old"}, ids(got))
}
