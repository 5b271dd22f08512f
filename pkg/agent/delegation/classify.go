// Package delegation decides which specialised roles should work on a task.
//
// Classification is keyword driven and every decision carries its
// confidence and a reasoning string, so plans can be audited.
package delegation

import (
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/pilot/pkg/textmatch"
)

// TaskType is a task category.
type TaskType string

const (
	TaskResearch    TaskType = "research"
	TaskWriting     TaskType = "writing"
	TaskCalendar    TaskType = "calendar"
	TaskNavigation  TaskType = "navigation"
	TaskFormFilling TaskType = "form_filling"
	TaskEmail       TaskType = "email"
	TaskGeneral     TaskType = "general"
)

// Roles suggested for each category.
const (
	RoleResearcher = "researcher"
	RoleWriter     = "writer"
	RoleScheduler  = "scheduler"
	RoleNavigator  = "navigator"
	RoleFormFiller = "form_filler"
	RoleGeneralist = "generalist"
)

// GeneralConfidence is the confidence reported when nothing matches.
const GeneralConfidence = 0.3

type category struct {
	keywords   []string
	taskType   TaskType
	role       string
	goal       string
	confidence float64
	duration   time.Duration
}

var categories = []category{
	{
		taskType:   TaskResearch,
		confidence: 0.85,
		role:       RoleResearcher,
		goal:       "gather and compare the information the task needs",
		duration:   5 * time.Minute,
		keywords:   []string{"research", "find", "search", "compare", "look up", "investigate", "analyze", "review", "price", "prices"},
	},
	{
		taskType:   TaskWriting,
		confidence: 0.8,
		role:       RoleWriter,
		goal:       "produce the requested text",
		duration:   4 * time.Minute,
		keywords:   []string{"write", "draft", "compose", "summarize", "summary", "edit", "rewrite", "post", "article"},
	},
	{
		taskType:   TaskCalendar,
		confidence: 0.85,
		role:       RoleScheduler,
		goal:       "create or change calendar entries",
		duration:   2 * time.Minute,
		keywords:   []string{"calendar", "schedule", "meeting", "appointment", "reschedule", "event", "invite", "book"},
	},
	{
		taskType:   TaskNavigation,
		confidence: 0.75,
		role:       RoleNavigator,
		goal:       "reach the right page",
		duration:   time.Minute,
		keywords:   []string{"navigate", "go to", "open", "visit", "browse", "website", "page", "click", "tab"},
	},
	{
		taskType:   TaskFormFilling,
		confidence: 0.8,
		role:       RoleFormFiller,
		goal:       "complete and submit the form",
		duration:   3 * time.Minute,
		keywords:   []string{"fill", "form", "sign up", "register", "submit", "apply", "checkout", "application"},
	},
	{
		taskType:   TaskEmail,
		confidence: 0.9,
		role:       RoleWriter,
		goal:       "read, write or send the email",
		duration:   3 * time.Minute,
		keywords:   []string{"email", "e-mail", "mail", "inbox", "reply", "send", "forward", "gmail"},
	},
}

// Classification is the result of ClassifyTaskType.
type Classification struct {
	Type            TaskType `json:"type"`
	SuggestedRole   string   `json:"suggestedRole"`
	Reasoning       string   `json:"reasoning"`
	MatchedKeywords []string `json:"matchedKeywords"`
	Confidence      float64  `json:"confidence"`
}

type match struct {
	cat      *category
	keywords []string
}

func matches(task string) []match {
	var out []match
	for i := range categories {
		c := &categories[i]
		if kws := textmatch.MatchPhrases(task, c.keywords); len(kws) > 0 {
			out = append(out, match{cat: c, keywords: kws})
		}
	}
	return out
}

// ClassifyTaskType picks the matching category with the highest
// confidence, preferring more keyword hits on a tie. A task matching no
// category is general.
func ClassifyTaskType(task string) Classification {
	var best *match
	for _, m := range matches(task) {
		if best == nil ||
			m.cat.confidence > best.cat.confidence ||
			(m.cat.confidence == best.cat.confidence && len(m.keywords) > len(best.keywords)) {
			best = &m
		}
	}
	if best == nil {
		return Classification{
			Type:          TaskGeneral,
			Confidence:    GeneralConfidence,
			SuggestedRole: RoleGeneralist,
			Reasoning:     "no category keywords found",
		}
	}
	return Classification{
		Type:            best.cat.taskType,
		Confidence:      best.cat.confidence,
		SuggestedRole:   best.cat.role,
		MatchedKeywords: best.keywords,
		Reasoning: fmt.Sprintf("matched %s keywords: %s",
			best.cat.taskType, strings.Join(best.keywords, ", ")),
	}
}
