// Package browsertest provides an in-memory Actuator for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/pilot/pkg/browser"
)

// Fake records performed actions and simulates navigation. Failures maps
// an action type to the errors returned by its next calls, consumed in
// order.
type Fake struct {
	mu        sync.Mutex
	url       string
	pages     map[string]string
	history   []string
	performed []browser.Action
	failures  map[browser.ActionType][]error
}

// New returns a fake positioned on about:blank.
func New() *Fake {
	return &Fake{
		url:      "about:blank",
		pages:    make(map[string]string),
		failures: make(map[browser.ActionType][]error),
	}
}

// SetPage registers the markup served for url.
func (f *Fake) SetPage(url, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = html
}

// FailNext queues errors for the next calls of an action type.
func (f *Fake) FailNext(t browser.ActionType, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[t] = append(f.failures[t], errs...)
}

// Performed returns a copy of the successful actions, in order.
func (f *Fake) Performed() []browser.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]browser.Action(nil), f.performed...)
}

// Perform implements browser.Actuator.
func (f *Fake) Perform(ctx context.Context, a browser.Action) (browser.ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return browser.ActionResult{}, err
	}
	if err := a.Validate(); err != nil {
		return browser.ActionResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if q := f.failures[a.Type]; len(q) > 0 {
		f.failures[a.Type] = q[1:]
		return browser.ActionResult{URL: f.url}, q[0]
	}

	var out string
	switch a.Type {
	case browser.ActionNavigate:
		f.history = append(f.history, f.url)
		f.url = a.URL
	case browser.ActionGoBack:
		if n := len(f.history); n > 0 {
			f.url = f.history[n-1]
			f.history = f.history[:n-1]
		}
	case browser.ActionExtract:
		out = fmt.Sprintf("text of %s", f.url)
	}
	f.performed = append(f.performed, a)
	return browser.ActionResult{URL: f.url, Output: out}, nil
}

// CurrentURL implements browser.Actuator.
func (f *Fake) CurrentURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

// PageHTML implements browser.Actuator.
func (f *Fake) PageHTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[f.url], nil
}
