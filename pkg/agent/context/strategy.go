package context

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/pilot/pkg/inference"
)

const (
	StrategyMinimal    = "minimal"
	StrategyBalanced   = "balanced"
	StrategyAggressive = "aggressive"
)

// Inferrer runs one inference call. *inference.Router satisfies it.
type Inferrer interface {
	Invoke(ctx context.Context, req inference.Request) (*inference.Response, error)
}

// Strategy decides which items survive compression and what replaces the
// ones that do not.
type Strategy interface {
	// Name returns the strategy's identifier.
	Name() string

	// Preserve reports whether it must never be removed.
	Preserve(it *Item, now time.Time) bool

	// UseRecency reports whether newer items rank above older ones of
	// equal priority and relevance.
	UseRecency() bool

	// Condense turns removed items into replacement text. An empty string
	// means the items are dropped outright.
	Condense(ctx context.Context, inf Inferrer, removed []*Item) (string, error)
}

// StrategyByName returns the built-in strategy with the given name.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case StrategyMinimal:
		return minimalStrategy{}, nil
	case StrategyBalanced, "":
		return balancedStrategy{}, nil
	case StrategyAggressive:
		return aggressiveStrategy{}, nil
	}
	return nil, fmt.Errorf("unknown compression strategy %q", name)
}

// alwaysKept is the priority at or above which no strategy removes an item.
const alwaysKept = 5

func youngerThan(it *Item, now time.Time, d time.Duration) bool {
	return now.Sub(it.Metadata.Timestamp) < d
}

// minimalStrategy keeps recent and important items and drops the rest
// without summarizing.
type minimalStrategy struct{}

func (minimalStrategy) Name() string { return StrategyMinimal }

func (minimalStrategy) Preserve(it *Item, now time.Time) bool {
	return it.Metadata.Priority >= 4 || youngerThan(it, now, 30*time.Minute)
}

func (minimalStrategy) UseRecency() bool { return true }

func (minimalStrategy) Condense(context.Context, Inferrer, []*Item) (string, error) {
	return "", nil
}

// balancedStrategy summarizes what it removes.
type balancedStrategy struct{}

func (balancedStrategy) Name() string { return StrategyBalanced }

func (balancedStrategy) Preserve(it *Item, now time.Time) bool {
	return it.Metadata.Priority >= 4 || youngerThan(it, now, 2*time.Hour)
}

func (balancedStrategy) UseRecency() bool { return true }

func (balancedStrategy) Condense(ctx context.Context, inf Inferrer, removed []*Item) (string, error) {
	return condense(ctx, inf, summarizeInstruction, removed)
}

// aggressiveStrategy removes everything below the top priority and keeps
// only extracted facts.
type aggressiveStrategy struct{}

func (aggressiveStrategy) Name() string { return StrategyAggressive }

func (aggressiveStrategy) Preserve(it *Item, _ time.Time) bool {
	return it.Metadata.Priority >= alwaysKept
}

func (aggressiveStrategy) UseRecency() bool { return false }

func (aggressiveStrategy) Condense(ctx context.Context, inf Inferrer, removed []*Item) (string, error) {
	return condense(ctx, inf, extractFactsInstruction, removed)
}

func condense(ctx context.Context, inf Inferrer, instruction string, removed []*Item) (string, error) {
	if inf == nil {
		return "", fmt.Errorf("no inference backend for summarization")
	}
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\n")
	for _, it := range removed {
		fmt.Fprintf(&b, "[%s] %s\n", it.Type, it.Content)
	}

	resp, err := inf.Invoke(ctx, inference.Request{
		System: episodicMemorySystemPrompt,
		Prompt: b.String(),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
