package headless

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/pilot/pkg/agent"
)

// ArtifactWriter writes a run's report files into one directory.
type ArtifactWriter struct {
	outputDir string
}

// NewArtifactWriter creates a writer for outputDir.
func NewArtifactWriter(outputDir string) *ArtifactWriter {
	return &ArtifactWriter{outputDir: outputDir}
}

// artifact is one report file and how to render it.
type artifact struct {
	name   string
	render func(*ExecutionSummary) ([]byte, error)
}

var artifacts = []artifact{
	{"execution.json", func(s *ExecutionSummary) ([]byte, error) { return json.MarshalIndent(s, "", "  ") }},
	{"summary.md", func(s *ExecutionSummary) ([]byte, error) { return []byte(renderMarkdown(s)), nil }},
	{"metrics.json", func(s *ExecutionSummary) ([]byte, error) { return json.MarshalIndent(s.Metrics, "", "  ") }},
}

// WriteAll writes execution.json, summary.md and metrics.json.
func (w *ArtifactWriter) WriteAll(summary *ExecutionSummary) error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, a := range artifacts {
		data, err := a.render(summary)
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", a.name, err)
		}
		if err := os.WriteFile(filepath.Join(w.outputDir, a.name), data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", a.name, err)
		}
	}
	return nil
}

func renderMarkdown(s *ExecutionSummary) string {
	var md strings.Builder
	fmt.Fprintf(&md, "# Pilot Headless Execution Summary\n\n")
	fmt.Fprintf(&md, "| | |\n|---|---|\n")
	fmt.Fprintf(&md, "| Task | %s |\n| Status | %s |\n", s.Task, s.Status)
	if s.AgentStatus != "" {
		fmt.Fprintf(&md, "| Agent status | %s |\n", s.AgentStatus)
	}
	fmt.Fprintf(&md, "| Started | %s |\n| Finished | %s |\n| Duration | %s |\n\n",
		s.StartTime.Format(time.RFC3339), s.EndTime.Format(time.RFC3339), s.Duration)

	md.WriteString("## Result\n\n")
	if s.Error != "" {
		fmt.Fprintf(&md, "❌ **Error:** %s\n\n", s.Error)
	} else {
		md.WriteString("✅ **Success**\n\n")
	}
	if s.FinalAnswer != "" {
		md.WriteString(s.FinalAnswer + "\n\n")
	}

	if len(s.Actions) > 0 {
		md.WriteString("## Actions\n\n")
		for i, a := range s.Actions {
			mark := "✅"
			if a.Error != "" {
				mark = "❌"
			}
			fmt.Fprintf(&md, "%d. %s step %d `%s` %s\n", i+1, mark, a.Step, a.Name, a.Target)
		}
		md.WriteString("\n")
	}

	if len(s.Violations) > 0 {
		md.WriteString("## Constraint Violations\n\n")
		for _, v := range s.Violations {
			fmt.Fprintf(&md, "- %s\n", v)
		}
		md.WriteString("\n")
	}

	m := s.Metrics
	fmt.Fprintf(&md, "## Metrics\n\n- Steps: %d\n- Actions: %d (%d failed)\n- Approvals: %d granted, %d rejected\n- Tokens used: %s\n",
		m.Steps, m.Actions, m.FailedActions, m.ApprovalsGranted, m.ApprovalsRejected, formatNumber(m.TokensUsed))
	return md.String()
}

// ExecutionSummary contains a complete summary of headless execution
type ExecutionSummary struct {
	Task        string           `json:"task"`
	Status      string           `json:"status"`
	AgentStatus agent.Status     `json:"agent_status,omitempty"`
	TaskID      string           `json:"task_id,omitempty"`
	RunID       string           `json:"run_id,omitempty"`
	FinalAnswer string           `json:"final_answer,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Duration    time.Duration    `json:"duration"`
	Actions     []ActionRecord   `json:"actions"`
	Violations  []string         `json:"violations,omitempty"`
	Metrics     ExecutionMetrics `json:"metrics"`
}

// ActionRecord is one performed browser action
type ActionRecord struct {
	Name   string `json:"name"`
	Target string `json:"target,omitempty"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Step   int    `json:"step"`
}

// ExecutionMetrics contains execution metrics
type ExecutionMetrics struct {
	Steps             int `json:"steps"`
	Actions           int `json:"actions"`
	FailedActions     int `json:"failed_actions"`
	ApprovalsGranted  int `json:"approvals_granted"`
	ApprovalsRejected int `json:"approvals_rejected"`
	TokensUsed        int `json:"tokens_used"`
}
