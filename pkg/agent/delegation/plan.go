package delegation

import (
	"fmt"
	"time"

	"github.com/entrhq/pilot/pkg/textmatch"
)

const (
	// MinConfidence is the combined confidence a delegation needs to be kept.
	MinConfidence = 0.5

	// FallbackConfidence is reported for the single main delegation.
	FallbackConfidence = 0.9

	// NoContextSupport is the support score used when there is no context.
	NoContextSupport = 0.5

	categoryWeight = 0.7
	supportWeight  = 0.3

	fallbackDuration = 5 * time.Minute
)

// Delegation assigns part of a task to a role.
type Delegation struct {
	RoleID            string        `json:"roleId"`
	RoleType          string        `json:"roleType"`
	TaskType          TaskType      `json:"taskType"`
	Goal              string        `json:"goal"`
	Reasoning         string        `json:"reasoning"`
	Tasks             []string      `json:"tasks"`
	Confidence        float64       `json:"confidence"`
	Weight            float64       `json:"weight"`
	EstimatedDuration time.Duration `json:"estimatedDuration"`
}

// Plan is the output of PlanDelegations.
type Plan struct {
	Task           string         `json:"task"`
	Classification Classification `json:"classification"`
	Delegations    []Delegation   `json:"delegations"`
	Fallback       bool           `json:"fallback"`
}

// PlanDelegations emits one delegation per category the task matches,
// scored 0.7 x category confidence + 0.3 x context support, where support
// is the share of contextItems mentioning one of the category's keywords.
// Delegations below MinConfidence are dropped; when none remain the plan
// is a single "main" generalist delegation. Weights sum to 1.
func PlanDelegations(task string, contextItems []string) Plan {
	plan := Plan{Task: task, Classification: ClassifyTaskType(task)}

	for _, m := range matches(task) {
		support := contextSupport(m.cat, contextItems)
		combined := categoryWeight*m.cat.confidence + supportWeight*support
		if combined < MinConfidence {
			continue
		}
		plan.Delegations = append(plan.Delegations, Delegation{
			RoleID:            fmt.Sprintf("%s-%d", m.cat.role, len(plan.Delegations)+1),
			RoleType:          m.cat.role,
			TaskType:          m.cat.taskType,
			Goal:              m.cat.goal,
			Tasks:             []string{task},
			Confidence:        combined,
			EstimatedDuration: m.cat.duration,
			Reasoning: fmt.Sprintf("%s matched %v (category %.2f, context support %.2f)",
				m.cat.taskType, m.keywords, m.cat.confidence, support),
		})
	}

	if len(plan.Delegations) == 0 {
		plan.Fallback = true
		plan.Delegations = []Delegation{{
			RoleID:            "main",
			RoleType:          RoleGeneralist,
			TaskType:          TaskGeneral,
			Goal:              "complete the task end to end",
			Tasks:             []string{task},
			Confidence:        FallbackConfidence,
			EstimatedDuration: fallbackDuration,
			Reasoning:         fmt.Sprintf("no category reached %.2f combined confidence", MinConfidence),
		}}
	}

	var sum float64
	for _, d := range plan.Delegations {
		sum += d.Confidence
	}
	for i := range plan.Delegations {
		plan.Delegations[i].Weight = plan.Delegations[i].Confidence / sum
	}
	return plan
}

func contextSupport(c *category, items []string) float64 {
	if len(items) == 0 {
		return NoContextSupport
	}
	hits := 0
	for _, it := range items {
		if len(textmatch.MatchPhrases(it, c.keywords)) > 0 {
			hits++
		}
	}
	return float64(hits) / float64(len(items))
}
