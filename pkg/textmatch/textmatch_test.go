package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"project", "deadline", "friday"}, Words("The project_deadline is Friday."))
	assert.Empty(t, Words("  -- "))
}

func TestOverlap(t *testing.T) {
	tests := []struct {
		query, text string
		want        float64
	}{
		{"book flight", "Flight booking page: book a flight to Paris", 1},
		{"book hotel", "book a flight", 0.5},
		{"hotel", "flight", 0},
		{"", "anything", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Overlap(tt.query, tt.text), 1e-9, "%q vs %q", tt.query, tt.text)
	}
}

func TestMatchPhrases(t *testing.T) {
	phrases := []string{"delete", "sign in", "pay", "account", "go back"}
	assert.Equal(t, []string{"delete", "account"}, MatchPhrases("Delete my Account", phrases))
	assert.Equal(t, []string{"sign in"}, MatchPhrases("click Sign-In now", phrases))
	assert.Nil(t, MatchPhrases("sign up and repay", phrases), "no partial words")
	assert.Equal(t, []string{"go back"}, MatchPhrases("then go back.", phrases))
}
