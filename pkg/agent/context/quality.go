package context

// Quality thresholds below which AssessQuality reports an issue.
const (
	MinRelevance    = 0.5
	MinCompleteness = 0.34
	MinCoherence    = 0.5
)

// Issue is one quality problem with a suggested fix.
type Issue struct {
	Dimension  string `json:"dimension"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
}

// Quality scores a set of items. Every score is in [0,1].
type Quality struct {
	Issues       []Issue `json:"issues,omitempty"`
	Relevance    float64 `json:"relevance"`
	Completeness float64 `json:"completeness"`
	Coherence    float64 `json:"coherence"`
	Overall      float64 `json:"overall"`
}

// AssessQuality scores items: relevance is the mean relevance score,
// completeness the share of item types present, coherence the inverse of
// the number of distinct (workspace, session) pairs. Overall is the mean.
// An empty set scores zero everywhere.
func AssessQuality(items []*Item) Quality {
	if len(items) == 0 {
		return Quality{Issues: []Issue{{
			Dimension:  "completeness",
			Issue:      "no context items",
			Suggestion: "write the task and the current page before selecting",
		}}}
	}

	var rel float64
	types := make(map[ItemType]struct{})
	scopes := make(map[Scope]struct{})
	for _, it := range items {
		rel += it.Relevance()
		types[it.Type] = struct{}{}
		scopes[Scope{WorkspaceID: it.Metadata.WorkspaceID, SessionID: it.Metadata.SessionID}] = struct{}{}
	}

	q := Quality{
		Relevance:    rel / float64(len(items)),
		Completeness: float64(len(types)) / itemTypeCount,
		Coherence:    1 / float64(len(scopes)),
	}
	q.Overall = (q.Relevance + q.Completeness + q.Coherence) / 3

	if q.Relevance < MinRelevance {
		q.Issues = append(q.Issues, Issue{
			Dimension:  "relevance",
			Issue:      "selected items match the query poorly",
			Suggestion: "raise the semantic threshold or rephrase the query",
		})
	}
	if q.Completeness < MinCompleteness {
		q.Issues = append(q.Issues, Issue{
			Dimension:  "completeness",
			Issue:      "few kinds of context are present",
			Suggestion: "include page content, history and memory alongside messages",
		})
	}
	if q.Coherence < MinCoherence {
		q.Issues = append(q.Issues, Issue{
			Dimension:  "coherence",
			Issue:      "items come from several workspaces or sessions",
			Suggestion: "select within a single session or synthesize workspaces explicitly",
		})
	}
	return q
}
