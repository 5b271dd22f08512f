// Package todo keeps the per-session task list an agent works through.
package todo

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of an Item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDelegated  Status = "delegated"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const (
	// MaxDescriptionLength is the longest accepted description.
	MaxDescriptionLength = 500

	// DefaultPriority is used when an item is added without one.
	DefaultPriority = 3

	// IDPrefix starts every item ID.
	IDPrefix = "todo_"
)

var (
	ErrNotFound          = errors.New("todo not found")
	ErrInvalidTransition = errors.New("invalid todo status transition")
)

// transitions lists the statuses reachable from each status. Completed and
// failed are terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusDelegated, StatusCompleted, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusFailed},
	StatusDelegated:  {StatusCompleted, StatusFailed},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDelegated, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Open reports whether work on the item is still outstanding.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Item is one entry of a todo list.
type Item struct {
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	StartedAt         time.Time     `json:"startedAt,omitzero"`
	ID                string        `json:"id"`
	Description       string        `json:"description"`
	Status            Status        `json:"status"`
	AssignedAgent     string        `json:"assignedAgent,omitempty"`
	Dependencies      []string      `json:"dependencies,omitempty"`
	Priority          int           `json:"priority"`
	EstimatedDuration time.Duration `json:"estimatedDuration"`
	ActualDuration    time.Duration `json:"actualDuration,omitempty"`
}

func validate(it *Item) error {
	it.Description = strings.TrimSpace(it.Description)
	if it.Description == "" {
		return fmt.Errorf("todo description cannot be empty")
	}
	if len(it.Description) > MaxDescriptionLength {
		return fmt.Errorf("todo description exceeds maximum length of %d characters (got %d)",
			MaxDescriptionLength, len(it.Description))
	}
	if it.Priority == 0 {
		it.Priority = DefaultPriority
	}
	if it.Priority < 1 || it.Priority > 5 {
		return fmt.Errorf("todo priority must be between 1 and 5 (got %d)", it.Priority)
	}
	if it.EstimatedDuration < 0 {
		return fmt.Errorf("todo estimated duration cannot be negative")
	}
	return nil
}
