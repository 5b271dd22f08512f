package headless

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LogLevel is the verbosity of the progress log.
type LogLevel int

const (
	LogLevelQuiet   LogLevel = iota // warnings, errors and the summary
	LogLevelNormal                  // plus steps, actions and approvals
	LogLevelVerbose                 // plus planner output and the action list
	LogLevelDebug                   // plus every event
)

var logLevels = map[string]LogLevel{
	"quiet":   LogLevelQuiet,
	"normal":  LogLevelNormal,
	"verbose": LogLevelVerbose,
	"debug":   LogLevelDebug,
}

// ANSI styles.
const (
	styleReset = "\033[0m"
	styleDim   = "\033[90m"
	styleInfo  = "\033[36m"
	styleNote  = "\033[38;5;217m"
	styleWarn  = "\033[33m"
	styleOK    = "\033[1;32m"
	styleBad   = "\033[1;31m"
	styleTitle = "\033[1;37m"
)

const ruleWidth = 70

// Logger prints headless progress for a terminal or CI log.
type Logger struct {
	w     io.Writer
	level LogLevel
	step  int
}

// NewLogger creates a logger writing to w, or to stdout when w is nil.
func NewLogger(level LogLevel, w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{w: w, level: level}
}

// line writes one styled line when the logger is at least min.
func (l *Logger) line(min LogLevel, style, format string, args ...any) {
	if l.level < min {
		return
	}
	fmt.Fprintf(l.w, "%s%s%s\n", style, fmt.Sprintf(format, args...), styleReset)
}

func (l *Logger) rule() {
	fmt.Fprintf(l.w, "%s%s%s\n", styleTitle, strings.Repeat("=", ruleWidth), styleReset)
}

// Header prints a banner.
func (l *Logger) Header(title string) {
	if l.level < LogLevelNormal {
		return
	}
	fmt.Fprintln(l.w)
	l.rule()
	l.line(LogLevelNormal, styleTitle, "  %s", title)
	l.rule()
}

// Step prints the next numbered step.
func (l *Logger) Step(message string) {
	if l.level < LogLevelNormal {
		return
	}
	l.step++
	fmt.Fprintln(l.w)
	l.line(LogLevelNormal, styleInfo, "[%d] %s", l.step, message)
}

func (l *Logger) Infof(format string, args ...any) {
	l.line(LogLevelNormal, styleNote, format, args...)
}

func (l *Logger) Warningf(format string, args ...any) {
	l.line(LogLevelQuiet, styleWarn, "⚠ Warning: "+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.line(LogLevelQuiet, styleBad, "✗ Error: "+format, args...)
}

func (l *Logger) Verbosef(format string, args ...any) {
	l.line(LogLevelVerbose, styleDim, "→ "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.line(LogLevelDebug, styleDim, "[DEBUG] "+format, args...)
}

// Action logs the count-th browser action. The target is shown from verbose up.
func (l *Logger) Action(name, target string, count int) {
	if l.level >= LogLevelVerbose {
		l.line(LogLevelVerbose, styleInfo, "  🔧 Action: %s %s (#%d)", name, target, count)
		return
	}
	l.line(LogLevelNormal, styleDim, "  • %s (#%d)", name, count)
}

// Approval logs how a gate request was answered.
func (l *Logger) Approval(approved bool, reason string) {
	if approved {
		l.line(LogLevelNormal, styleOK, "  ✓ Approved: %s", reason)
		return
	}
	l.line(LogLevelNormal, styleBad, "  ✗ Rejected: %s", reason)
}

// Summary prints the final report at every level.
func (l *Logger) Summary(s *ExecutionSummary) {
	fmt.Fprintln(l.w)
	l.rule()
	l.line(LogLevelQuiet, styleTitle, "  EXECUTION SUMMARY")
	l.rule()

	switch s.Status {
	case statusSuccess:
		l.line(LogLevelQuiet, styleOK, "  Status: ✓ SUCCESS")
	case statusStopped:
		l.line(LogLevelQuiet, styleWarn, "  Status: ⚠ STOPPED")
	default:
		l.line(LogLevelQuiet, styleBad, "  Status: ✗ FAILED")
	}
	fmt.Fprintf(l.w, "  Task: %s\n  Duration: %s\n", s.Task, s.Duration.Round(time.Second))
	if s.FinalAnswer != "" {
		fmt.Fprintf(l.w, "  Answer: %s\n", s.FinalAnswer)
	}

	m := s.Metrics
	fmt.Fprintf(l.w, "\n  📊 Metrics:\n    Steps: %d\n    Actions: %d (%d failed)\n", m.Steps, m.Actions, m.FailedActions)
	if m.ApprovalsGranted+m.ApprovalsRejected > 0 {
		fmt.Fprintf(l.w, "    Approvals: %d granted, %d rejected\n", m.ApprovalsGranted, m.ApprovalsRejected)
	}
	if m.TokensUsed > 0 {
		fmt.Fprintf(l.w, "    Tokens used: %s\n", formatNumber(m.TokensUsed))
	}

	if l.level >= LogLevelVerbose && len(s.Actions) > 0 {
		fmt.Fprintf(l.w, "\n  🧭 Actions:\n")
		for _, a := range s.Actions {
			fmt.Fprintf(l.w, "    • %s %s\n", a.Name, a.Target)
		}
	}
	if s.Error != "" {
		fmt.Fprintln(l.w)
		l.line(LogLevelQuiet, styleBad, "  Error: %s", s.Error)
	}
	l.rule()
	fmt.Fprintln(l.w)
}

// parseLogLevel maps a verbosity name to a level. Unknown names are normal.
func parseLogLevel(name string) LogLevel {
	if level, ok := logLevels[name]; ok {
		return level
	}
	return LogLevelNormal
}

// formatNumber groups digits in thousands: 1234567 -> 1,234,567.
func formatNumber(n int) string {
	digits := strconv.Itoa(n)
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}
