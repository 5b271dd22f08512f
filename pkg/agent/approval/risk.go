// Package approval pauses execution for a human decision on risky actions.
//
// AssessRisk and RequiresApproval are pure. A Gate publishes requests on a
// channel, waits for a Respond call or its timeout, and tracks how much
// each workspace's user trusts the agent.
package approval

import (
	"strings"

	"github.com/entrhq/pilot/pkg/textmatch"
)

// RiskLevel grades how much damage an action can do.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) rank() int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	}
	return 0
}

var highRiskKeywords = []string{
	"delete", "remove", "payment", "pay", "purchase", "buy", "transfer", "submit order",
	"checkout", "password", "credential", "send money", "unsubscribe", "cancel subscription",
}

var mediumRiskKeywords = []string{
	"click", "fill", "type", "submit", "send", "post", "upload", "select", "login", "sign in",
}

var lowRiskKeywords = []string{
	"read", "scroll", "navigate", "open", "view", "search", "extract", "wait", "go back",
}

// Action is a browser action awaiting a risk decision.
type Action struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

func (a Action) text() string {
	return strings.TrimSpace(a.Type + " " + a.Description)
}

// Assessment is the result of AssessRisk.
type Assessment struct {
	Level           RiskLevel `json:"level"`
	MatchedKeywords []string  `json:"matchedKeywords,omitempty"`
}

// AssessRisk grades actions by keyword. The highest level matched by any
// action wins; no match is low.
func AssessRisk(actions []Action) Assessment {
	out := Assessment{Level: RiskLow}
	for _, a := range actions {
		level, kws := classify(a.text())
		switch {
		case level.rank() > out.Level.rank():
			out = Assessment{Level: level, MatchedKeywords: kws}
		case level == out.Level && len(kws) > 0:
			out.MatchedKeywords = append(out.MatchedKeywords, kws...)
		}
	}
	return out
}

func classify(text string) (RiskLevel, []string) {
	if kws := textmatch.MatchPhrases(text, highRiskKeywords); len(kws) > 0 {
		return RiskHigh, kws
	}
	if kws := textmatch.MatchPhrases(text, mediumRiskKeywords); len(kws) > 0 {
		return RiskMedium, kws
	}
	return RiskLow, textmatch.MatchPhrases(text, lowRiskKeywords)
}

// Decision is the input to RequiresApproval.
type Decision struct {
	Risk           RiskLevel
	ActionType     string
	AutonomyLevel  int
	PolicyApproved bool
}

// RequiresApproval applies the autonomy rules:
//
//	levels 1-2: always
//	high risk:  always
//	level 3:    medium risk, or no standing policy for the action
//	level 4:    medium risk without a standing policy
//	level 5:    only when the action type names a destructive operation
func RequiresApproval(d Decision) bool {
	if d.AutonomyLevel <= 2 || d.Risk == RiskHigh {
		return true
	}
	switch d.AutonomyLevel {
	case 3:
		return d.Risk == RiskMedium || !d.PolicyApproved
	case 4:
		return d.Risk == RiskMedium && !d.PolicyApproved
	}
	return len(textmatch.MatchPhrases(d.ActionType, highRiskKeywords)) > 0
}
