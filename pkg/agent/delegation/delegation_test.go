package delegation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTaskType(t *testing.T) {
	tests := []struct {
		task       string
		want       TaskType
		role       string
		confidence float64
	}{
		{"Send an email to client about status", TaskEmail, RoleWriter, 0.9},
		{"Research the best laptops under 1000 EUR", TaskResearch, RoleResearcher, 0.85},
		{"Draft a blog article about Go generics", TaskWriting, RoleWriter, 0.8},
		{"Schedule a meeting with Ana on Tuesday", TaskCalendar, RoleScheduler, 0.85},
		{"Open the settings page", TaskNavigation, RoleNavigator, 0.75},
		{"Fill the visa application form", TaskFormFilling, RoleFormFiller, 0.8},
		{"Water the plants", TaskGeneral, RoleGeneralist, GeneralConfidence},
	}
	for _, tt := range tests {
		t.Run(tt.task, func(t *testing.T) {
			c := ClassifyTaskType(tt.task)
			assert.Equal(t, tt.want, c.Type)
			assert.Equal(t, tt.role, c.SuggestedRole)
			assert.InDelta(t, tt.confidence, c.Confidence, 1e-9)
			assert.NotEmpty(t, c.Reasoning)
		})
	}
}

func TestClassifyTaskType_HighestConfidenceWins(t *testing.T) {
	c := ClassifyTaskType("open the inbox and reply to Sam")
	assert.Equal(t, TaskEmail, c.Type)
	assert.ElementsMatch(t, []string{"inbox", "reply"}, c.MatchedKeywords)
}

func TestPlanDelegations_EmptyWorkspace(t *testing.T) {
	plan := PlanDelegations("Send an email to client about status", nil)
	require.NotEmpty(t, plan.Delegations)
	assert.False(t, plan.Fallback)
	assert.Equal(t, RoleWriter, plan.Delegations[0].RoleType)
	assert.InDelta(t, 0.7*0.9+0.3*0.5, plan.Delegations[0].Confidence, 1e-9)
	assert.InDelta(t, 1.0, plan.Delegations[0].Weight, 1e-9)
}

func TestPlanDelegations_MultipleRolesWeighted(t *testing.T) {
	plan := PlanDelegations("Research flight prices and send an email with a summary", []string{
		"compare prices on three sites",
		"unrelated note",
	})
	var types []TaskType
	var sum float64
	for _, d := range plan.Delegations {
		types = append(types, d.TaskType)
		sum += d.Weight
		assert.GreaterOrEqual(t, d.Confidence, MinConfidence)
	}
	assert.Equal(t, []TaskType{TaskResearch, TaskWriting, TaskEmail}, types)
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.7*0.85+0.3*0.5, plan.Delegations[0].Confidence, 1e-9)
	assert.Equal(t, "researcher-1", plan.Delegations[0].RoleID)
}

func TestPlanDelegations_FallsBackToMain(t *testing.T) {
	tests := []struct {
		name    string
		task    string
		context []string
	}{
		{"no keywords", "Water the plants", nil},
		{"no keywords with context", "Water the plants", []string{"send the email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanDelegations(tt.task, tt.context)
			require.Len(t, plan.Delegations, 1)
			d := plan.Delegations[0]
			assert.True(t, plan.Fallback)
			assert.Equal(t, "main", d.RoleID)
			assert.Equal(t, RoleGeneralist, d.RoleType)
			assert.InDelta(t, FallbackConfidence, d.Confidence, 1e-9)
			assert.InDelta(t, 1.0, d.Weight, 1e-9)
		})
	}
}
