package agent

import (
	"fmt"
	"strings"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/types"
)

// Message metadata keys and values.
const (
	metaKind   = "kind"
	metaRetain = "retain"
	metaRole   = "role"

	kindTask         = "task"
	kindFollowUp     = "follow_up"
	kindPlan         = "plan"
	kindNavigation   = "navigation"
	kindActionResult = "action_result"
)

// historyWindow is how many recent messages the navigator sees.
const historyWindow = 12

const plannerSystemPrompt = `You are the planner of a browser automation agent.

You read the user's task, what the agent already knows and what it has done so far. You decide whether the task is complete and, if not, what the navigator should do next.

<rules>
- Set done to true only when the task is fully accomplished; put the answer for the user in final_answer.
- Keep next_steps short and concrete: one to three browser steps the navigator can take now.
- Prefer known workflow patterns and facts over exploring.
- Never ask the navigator to visit a site unrelated to the task.
</rules>`

const navigatorSystemPrompt = `You are the navigator of a browser automation agent.

You control one browser page. Each turn you receive the task, the planner's next steps and the current page, and you answer with the actions to perform next.

<actions>
- navigate: open url
- click: click the element matching selector
- fill: type value into the element matching selector
- scroll: scroll down by amount pixels
- extract: read the text of selector (the whole page when empty)
- wait: wait for selector, or for amount milliseconds
- go_back: go back one page
- done: the planner's next steps are finished; put any result in value
</actions>

<rules>
- Describe every action in description using plain words, e.g. "submit payment form".
- Return at most a handful of actions; they run in order and stop at the first failure.
- Use CSS selectors that exist on the current page.
</rules>`

var plannerSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"observation":  map[string]any{"type": "string"},
		"reasoning":    map[string]any{"type": "string"},
		"next_steps":   map[string]any{"type": "string"},
		"final_answer": map[string]any{"type": "string"},
		"done":         map[string]any{"type": "boolean"},
	},
	"required": []string{"observation", "reasoning", "next_steps", "done"},
}

var navigatorSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"evaluation": map[string]any{"type": "string"},
		"memory":     map[string]any{"type": "string"},
		"next_goal":  map[string]any{"type": "string"},
		"actions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type": map[string]any{
						"type": "string",
						"enum": []string{"navigate", "click", "fill", "scroll", "extract", "wait", "go_back", "done"},
					},
					"url":         map[string]any{"type": "string"},
					"selector":    map[string]any{"type": "string"},
					"value":       map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"amount":      map[string]any{"type": "integer"},
				},
				"required": []string{"type"},
			},
		},
	},
	"required": []string{"evaluation", "next_goal", "actions"},
}

// PlannerOutput is the planner's structured reply.
type PlannerOutput struct {
	Observation string `json:"observation"`
	Reasoning   string `json:"reasoning"`
	NextSteps   string `json:"next_steps"`
	FinalAnswer string `json:"final_answer,omitempty"`
	Done        bool   `json:"done"`
}

// NavigatorOutput is the navigator's structured reply.
type NavigatorOutput struct {
	Evaluation string           `json:"evaluation"`
	Memory     string           `json:"memory,omitempty"`
	NextGoal   string           `json:"next_goal"`
	Actions    []browser.Action `json:"actions"`
}

func buildPlannerPrompt(task string, rc *RunContext, selected, url string, steps int, lastEval string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<task>\n%s\n</task>\n\n", task)
	if known := rc.render(); known != "" {
		fmt.Fprintf(&b, "<known>\n%s</known>\n\n", known)
	}
	if selected != "" {
		fmt.Fprintf(&b, "<progress>\n%s</progress>\n\n", selected)
	}
	fmt.Fprintf(&b, "Steps taken: %d\nCurrent page: %s\n", steps, url)
	if lastEval != "" {
		fmt.Fprintf(&b, "Navigator's last evaluation: %s\n", lastEval)
	}
	return b.String()
}

func buildNavigatorPrompt(task string, plan *PlannerOutput, history []*types.Message, url, page string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<task>\n%s\n</task>\n\n", task)
	if plan != nil && plan.NextSteps != "" {
		fmt.Fprintf(&b, "<next_steps>\n%s\n</next_steps>\n\n", plan.NextSteps)
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	if len(history) > 0 {
		b.WriteString("<history>\n")
		for _, m := range history {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		}
		b.WriteString("</history>\n\n")
	}
	fmt.Fprintf(&b, "<page url=%q>\n%s\n</page>\n", url, page)
	return b.String()
}

// retained reports whether m survives a follow-up. Only messages explicitly
// marked retain=false are dropped.
func retained(m *types.Message) bool {
	keep, ok := m.Metadata[metaRetain].(bool)
	return !ok || keep
}
