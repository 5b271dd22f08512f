package headless

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/pilot/pkg/agent/approval"
	"github.com/entrhq/pilot/pkg/browser"
)

// ConstraintManager enforces safety limits during headless execution
type ConstraintManager struct {
	config *ConstraintConfig
	mode   ExecutionMode

	// Runtime state tracking
	actionsPerformed int
	tokensUsed       int
	startTime        time.Time

	urls []glob.Glob

	mu sync.RWMutex
}

// ConstraintViolation represents a constraint violation error
type ConstraintViolation struct {
	Type    ViolationType
	Message string
	Details map[string]interface{}
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("constraint violation (%s): %s", e.Type, e.Message)
}

// ViolationType identifies the type of constraint that was violated
type ViolationType string

const (
	ViolationActionRestriction ViolationType = "action_restriction"
	ViolationURLPattern        ViolationType = "url_pattern"
	ViolationRisk              ViolationType = "risk"
	ViolationActionCount       ViolationType = "action_count"
	ViolationTokenLimit        ViolationType = "token_limit"
	ViolationTimeout           ViolationType = "timeout"
	ViolationReadOnlyMode      ViolationType = "read_only_mode"
)

// NewConstraintManager creates a new constraint manager
func NewConstraintManager(config ConstraintConfig, mode ExecutionMode) (*ConstraintManager, error) {
	urls := make([]glob.Glob, 0, len(config.AllowedURLs))
	for _, p := range config.AllowedURLs {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid url pattern %q: %w", p, err)
		}
		urls = append(urls, g)
	}

	return &ConstraintManager{
		config:    &config,
		mode:      mode,
		startTime: time.Now(),
		urls:      urls,
	}, nil
}

// ValidateAction checks one action against the mode, the allowed action
// types and, for navigation, the allowed URLs.
func (cm *ConstraintManager) ValidateAction(actionType, url string) error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	// done ends the run and is never restricted
	if actionType == string(browser.ActionDone) {
		return nil
	}

	if cm.mode == ModeReadOnly && isPageModifyingAction(actionType) {
		return &ConstraintViolation{
			Type:    ViolationReadOnlyMode,
			Message: fmt.Sprintf("action '%s' is not allowed in read-only mode", actionType),
			Details: map[string]interface{}{
				"action": actionType,
				"mode":   string(cm.mode),
			},
		}
	}

	if len(cm.config.AllowedActions) > 0 && !slices.Contains(cm.config.AllowedActions, actionType) {
		return &ConstraintViolation{
			Type:    ViolationActionRestriction,
			Message: fmt.Sprintf("action '%s' is not in allowed actions list", actionType),
			Details: map[string]interface{}{
				"action":          actionType,
				"allowed_actions": cm.config.AllowedActions,
			},
		}
	}

	if actionType == string(browser.ActionNavigate) && len(cm.urls) > 0 && !cm.urlAllowed(url) {
		return &ConstraintViolation{
			Type:    ViolationURLPattern,
			Message: fmt.Sprintf("url '%s' does not match allowed patterns", url),
			Details: map[string]interface{}{
				"url":          url,
				"allowed_urls": cm.config.AllowedURLs,
			},
		}
	}

	return nil
}

func (cm *ConstraintManager) urlAllowed(url string) bool {
	for _, g := range cm.urls {
		if g.Match(url) {
			return true
		}
	}
	return false
}

// ValidateRequest checks an approval request: its risk first, then every
// action in it.
func (cm *ConstraintManager) ValidateRequest(req *approval.Request) error {
	if limit := cm.config.MaxRisk; limit != "" && riskRank(req.Risk) > riskRank(limit) {
		return &ConstraintViolation{
			Type:    ViolationRisk,
			Message: fmt.Sprintf("%s risk exceeds the %s limit", req.Risk, limit),
			Details: map[string]interface{}{
				"risk":     string(req.Risk),
				"max_risk": string(limit),
			},
		}
	}
	for _, a := range req.Actions {
		if err := cm.ValidateAction(a.Type, requestURL(a)); err != nil {
			return err
		}
	}
	return nil
}

// RecordAction counts a performed action and validates against the limit
func (cm *ConstraintManager) RecordAction() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.actionsPerformed++

	if cm.config.MaxActions > 0 && cm.actionsPerformed > cm.config.MaxActions {
		return &ConstraintViolation{
			Type:    ViolationActionCount,
			Message: fmt.Sprintf("maximum actions exceeded (%d)", cm.config.MaxActions),
			Details: map[string]interface{}{
				"max_actions":       cm.config.MaxActions,
				"actions_performed": cm.actionsPerformed,
			},
		}
	}

	return nil
}

// RecordTokenUsage records token usage and validates against limit
func (cm *ConstraintManager) RecordTokenUsage(tokens int) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.tokensUsed += tokens

	if cm.config.MaxTokens > 0 && cm.tokensUsed > cm.config.MaxTokens {
		return &ConstraintViolation{
			Type:    ViolationTokenLimit,
			Message: fmt.Sprintf("maximum token usage exceeded (%d)", cm.config.MaxTokens),
			Details: map[string]interface{}{
				"max_tokens":  cm.config.MaxTokens,
				"tokens_used": cm.tokensUsed,
			},
		}
	}

	return nil
}

// CheckTimeout checks if execution has exceeded the timeout
func (cm *ConstraintManager) CheckTimeout() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.config.Timeout <= 0 {
		return nil
	}

	elapsed := time.Since(cm.startTime)
	if elapsed > cm.config.Timeout {
		return &ConstraintViolation{
			Type:    ViolationTimeout,
			Message: fmt.Sprintf("execution timeout exceeded (%v)", cm.config.Timeout),
			Details: map[string]interface{}{
				"timeout": cm.config.Timeout,
				"elapsed": elapsed,
			},
		}
	}

	return nil
}

// GetCurrentState returns the current constraint state
func (cm *ConstraintManager) GetCurrentState() *ConstraintState {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return &ConstraintState{
		ActionsPerformed: cm.actionsPerformed,
		TokensUsed:       cm.tokensUsed,
		Elapsed:          time.Since(cm.startTime),
	}
}

// ConstraintState represents the current state of constraint tracking
type ConstraintState struct {
	ActionsPerformed int
	TokensUsed       int
	Elapsed          time.Duration
}

func isPageModifyingAction(actionType string) bool {
	switch browser.ActionType(actionType) {
	case browser.ActionClick, browser.ActionFill:
		return true
	}
	return false
}

// requestURL recovers the navigation target from an approval action, whose
// description starts with the URL.
func requestURL(a approval.Action) string {
	if a.Type != string(browser.ActionNavigate) {
		return ""
	}
	fields := strings.Fields(a.Description)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func riskRank(r approval.RiskLevel) int {
	switch r {
	case approval.RiskLow:
		return 1
	case approval.RiskMedium:
		return 2
	case approval.RiskHigh:
		return 3
	}
	return 0
}
