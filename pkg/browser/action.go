// Package browser executes navigator actions against a real browser.
//
// The executor only depends on the Actuator interface. PlaywrightActuator
// drives a Chromium page through playwright-go, and Firewall decides which
// URLs the agent may visit.
package browser

import (
	"context"
	"fmt"
	"strings"
)

// ActionType names a browser primitive.
type ActionType string

const (
	ActionNavigate ActionType = "navigate"
	ActionClick    ActionType = "click"
	ActionFill     ActionType = "fill"
	ActionScroll   ActionType = "scroll"
	ActionExtract  ActionType = "extract"
	ActionWait     ActionType = "wait"
	ActionGoBack   ActionType = "go_back"

	// ActionDone ends the navigator's turn. The executor handles it; actuators
	// never see it.
	ActionDone ActionType = "done"
)

// Action is one step the navigator wants performed.
type Action struct {
	Type     ActionType `json:"type"`
	URL      string     `json:"url,omitempty"`
	Selector string     `json:"selector,omitempty"`
	Value    string     `json:"value,omitempty"`
	// Description is the navigator's own wording, used for risk assessment.
	Description string `json:"description,omitempty"`
	// Amount is pixels for scroll and milliseconds for a selector-less wait.
	Amount int `json:"amount,omitempty"`
}

// Validate reports missing parameters.
func (a Action) Validate() error {
	switch a.Type {
	case ActionNavigate:
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("navigate requires a url")
		}
	case ActionClick:
		if a.Selector == "" {
			return fmt.Errorf("click requires a selector")
		}
	case ActionFill:
		if a.Selector == "" {
			return fmt.Errorf("fill requires a selector")
		}
	case ActionWait:
		if a.Selector == "" && a.Amount <= 0 {
			return fmt.Errorf("wait requires a selector or a positive amount")
		}
	case ActionScroll, ActionExtract, ActionGoBack, ActionDone:
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// String renders the action for logs, prompts and approval requests.
func (a Action) String() string {
	var b strings.Builder
	b.WriteString(string(a.Type))
	for _, part := range []string{a.URL, a.Selector} {
		if part != "" {
			b.WriteString(" " + part)
		}
	}
	if a.Value != "" {
		fmt.Fprintf(&b, " %q", a.Value)
	}
	if a.Description != "" {
		b.WriteString(" (" + a.Description + ")")
	}
	return b.String()
}

// Params returns the non-empty parameters as a map, for events.
func (a Action) Params() map[string]interface{} {
	p := make(map[string]interface{})
	if a.URL != "" {
		p["url"] = a.URL
	}
	if a.Selector != "" {
		p["selector"] = a.Selector
	}
	if a.Value != "" {
		p["value"] = a.Value
	}
	if a.Amount != 0 {
		p["amount"] = a.Amount
	}
	return p
}

// ActionResult is what an actuator observed after performing an action.
type ActionResult struct {
	// URL is the page URL after the action.
	URL string `json:"url"`
	// Output carries extracted text for extract actions.
	Output string `json:"output,omitempty"`
}

// Actuator performs actions on a browser page.
type Actuator interface {
	Perform(ctx context.Context, a Action) (ActionResult, error)
	CurrentURL() string
	PageHTML(ctx context.Context) (string, error)
}
