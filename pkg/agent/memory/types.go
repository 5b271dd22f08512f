// Package memory stores what the agent learns per workspace in three tiers:
// episodes (what happened in a run), semantic facts (key/value knowledge)
// and workflow patterns (reusable action sequences).
package memory

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a fact, pattern or episode does not exist.
	ErrNotFound = errors.New("memory: not found")
	// ErrInvalidOutcome is returned for an episode outcome other than success or failure.
	ErrInvalidOutcome = errors.New("memory: outcome must be success or failure")
)

// Outcome is the result of a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Valid reports whether o is success or failure.
func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// Action is one step the navigator took.
type Action struct {
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Type   string         `json:"type" yaml:"type"`
	Result string         `json:"result,omitempty" yaml:"result,omitempty"`
}

// Episode records one finished run. Episodes are never modified.
type Episode struct {
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ID          string            `json:"id"`
	WorkspaceID string            `json:"workspaceId"`
	SessionID   string            `json:"sessionId"`
	Query       string            `json:"query"`
	Outcome     Outcome           `json:"outcome"`
	Reasoning   string            `json:"reasoning"`
	Actions     []Action          `json:"actions"`
	TokenCount  int               `json:"tokenCount"`
}

// SemanticFact is a key/value pair learned in a workspace.
type SemanticFact struct {
	Timestamp   time.Time `json:"timestamp"`
	LastUsed    time.Time `json:"lastUsed"`
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Source      string    `json:"source"`
	WorkspaceID string    `json:"workspaceId"`
	Confidence  float64   `json:"confidence"`
	UsageCount  int       `json:"usageCount"`
	TokenCount  int       `json:"tokenCount"`
}

// MatchType says how a fact matched a search.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchPartial  MatchType = "partial"
	MatchSemantic MatchType = "semantic"
)

// FactMatch is a ranked search hit.
type FactMatch struct {
	Fact      *SemanticFact `json:"fact"`
	MatchType MatchType     `json:"matchType"`
	Score     float64       `json:"score"`
}

// PatternStep is one templated action of a workflow pattern.
type PatternStep struct {
	Parameters     map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Action         string         `json:"action" yaml:"action"`
	ExpectedResult string         `json:"expectedResult,omitempty" yaml:"expected_result,omitempty"`
}

// WorkflowPattern is a reusable action sequence with its track record.
type WorkflowPattern struct {
	LastUsed    time.Time         `json:"lastUsed"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	WorkspaceID string            `json:"workspaceId"`
	Steps       []PatternStep     `json:"steps"`
	SuccessRate float64           `json:"successRate"`
	UsageCount  int               `json:"usageCount"`
	TokenCount  int               `json:"tokenCount"`
}

// PatternSummary is the listing view of a pattern.
type PatternSummary struct {
	LastUsed    time.Time `json:"lastUsed"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	StepCount   int       `json:"stepCount"`
	SuccessRate float64   `json:"successRate"`
	UsageCount  int       `json:"usageCount"`
}

// TierStats aggregates one memory tier.
type TierStats struct {
	Count         int     `json:"count"`
	TotalTokens   int     `json:"totalTokens"`
	AverageTokens float64 `json:"averageTokens"`
}

// Stats aggregates all tiers of a workspace.
type Stats struct {
	WorkspaceID        string    `json:"workspaceId"`
	Episodes           TierStats `json:"episodes"`
	Facts              TierStats `json:"facts"`
	Patterns           TierStats `json:"patterns"`
	SuccessfulEpisodes int       `json:"successfulEpisodes"`
	FactsUsed          int       `json:"factsUsed"`
	PatternsUsed       int       `json:"patternsUsed"`
	AverageConfidence  float64   `json:"averageConfidence"`
	AverageSuccessRate float64   `json:"averageSuccessRate"`
	TotalItems         int       `json:"totalItems"`
	TotalTokens        int       `json:"totalTokens"`
	Efficiency         float64   `json:"efficiency"`
}
