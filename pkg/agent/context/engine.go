// Package context stores, selects and compresses the items that make up an
// agent's prompt context.
//
// Items live in the key-value store under (user, workspace, session).
// Selection is a pure function over the stored items; compression runs a
// Strategy and may call inference to condense what it removes.
package context

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/pilot/pkg/kv"
	"github.com/entrhq/pilot/pkg/llm/tokenizer"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/metrics"
	"github.com/entrhq/pilot/pkg/types"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("context")
	if err != nil {
		debugLog.Warnf("Failed to initialize context logger, using stderr fallback: %v", err)
	}
}

const itemPrefix = "ctx/"

// ErrConsentRequired is returned by SynthesizeWorkspaces without consent.
var ErrConsentRequired = errors.New("cross-workspace synthesis requires user consent")

// Scope addresses the items of one workspace, optionally one session.
type Scope struct {
	WorkspaceID string
	SessionID   string
}

// Engine is the context store for one user.
type Engine struct {
	kv     kv.Store
	tokens tokenizer.Counter
	inf    Inferrer
	now    func() time.Time
	userID string

	mu     sync.RWMutex
	emit   types.EventEmitter
	taskID string
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenizer sets the counter used when items are written.
func WithTokenizer(c tokenizer.Counter) Option {
	return func(e *Engine) {
		e.tokens = c
	}
}

// WithInferrer sets the backend used to summarize during compression.
func WithInferrer(inf Inferrer) Option {
	return func(e *Engine) {
		e.inf = inf
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine over store for userID.
func NewEngine(store kv.Store, userID string, opts ...Option) *Engine {
	e := &Engine{
		kv:     store,
		userID: userID,
		tokens: tokenizer.EstimateCounter{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetEventEmitter routes compression events for taskID to emit.
func (e *Engine) SetEventEmitter(taskID string, emit types.EventEmitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.taskID = taskID
	e.emit = emit
}

func (e *Engine) emitEvent(build func(taskID string) *types.AgentEvent) {
	e.mu.RLock()
	emit, taskID := e.emit, e.taskID
	e.mu.RUnlock()
	if emit != nil {
		emit(build(taskID))
	}
}

// ns scopes items to one workspace. An empty workspace id would match every
// workspace in a search, so it is rejected.
func (e *Engine) ns(s Scope) (kv.Namespace, error) {
	if strings.TrimSpace(s.WorkspaceID) == "" {
		return kv.Namespace{}, types.NewBadRequestError("context requires a workspace id", nil)
	}
	return kv.Namespace{UserID: e.userID, WorkspaceID: s.WorkspaceID, ThreadID: s.SessionID}, nil
}

// Write stores it and returns the stored copy. ID, timestamp, priority,
// relevance and token count get defaults when unset. The type follows the
// payload when one is given.
func (e *Engine) Write(ctx context.Context, it Item) (*Item, error) {
	ns, err := e.ns(Scope{WorkspaceID: it.Metadata.WorkspaceID, SessionID: it.Metadata.SessionID})
	if err != nil {
		return nil, err
	}
	if it.Payload != nil {
		if it.Type != "" && it.Type != it.Payload.Kind() {
			return nil, types.NewBadRequestError(fmt.Sprintf("payload kind %s does not match type %s", it.Payload.Kind(), it.Type), nil)
		}
		it.Type = it.Payload.Kind()
	}
	if !validType(it.Type) {
		return nil, types.NewBadRequestError(fmt.Sprintf("unknown context item type %q", it.Type), nil)
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.SourceType == "" {
		it.SourceType = SourceMain
	}
	if !validSource(it.SourceType) {
		return nil, types.NewBadRequestError(fmt.Sprintf("unknown context source type %q", it.SourceType), nil)
	}
	md := &it.Metadata
	if md.Timestamp.IsZero() {
		md.Timestamp = e.now()
	}
	if md.Priority == 0 {
		md.Priority = DefaultPriority
	}
	if md.Priority < 1 || md.Priority > 5 {
		return nil, types.NewBadRequestError(fmt.Sprintf("priority %d out of range 1..5", md.Priority), nil)
	}
	if md.RelevanceScore == nil {
		r := DefaultRelevance
		md.RelevanceScore = &r
	}
	if md.TokenCount == 0 {
		md.TokenCount = e.tokens.Count(it.Content)
	}

	raw, err := json.Marshal(&it)
	if err != nil {
		return nil, fmt.Errorf("context: encode item: %w", err)
	}
	key := fmt.Sprintf("%s%020d-%s", itemPrefix, md.Timestamp.UnixNano(), it.ID)
	meta := map[string]string{"type": string(it.Type)}
	if err := e.kv.Put(ctx, ns, key, raw, meta); err != nil {
		return nil, fmt.Errorf("context: write item: %w", err)
	}
	return it.Clone(), nil
}

// WritePage cleans rawHTML and stores it as a page item.
func (e *Engine) WritePage(ctx context.Context, scope Scope, url, rawHTML string, priority int) (*Item, error) {
	page, err := CleanHTML(rawHTML, DefaultPageLength)
	if err != nil {
		return nil, types.NewBadRequestError("unparseable page", err)
	}
	return e.Write(ctx, Item{
		Content:    page.HTML,
		SourceType: SourceMain,
		Payload: PagePayload{
			URL:         url,
			Title:       page.Title,
			Description: page.Description,
			Truncated:   page.Truncated,
		},
		Metadata: Metadata{
			Source:      url,
			WorkspaceID: scope.WorkspaceID,
			SessionID:   scope.SessionID,
			Priority:    priority,
		},
	})
}

// Items returns every item in scope, oldest first. An empty SessionID
// covers all sessions of the workspace.
func (e *Engine) Items(ctx context.Context, scope Scope) ([]*Item, error) {
	ns, err := e.ns(scope)
	if err != nil {
		return nil, err
	}
	found, err := e.kv.Search(ctx, kv.Query{Namespace: ns, KeyPattern: itemPrefix + "*"})
	if err != nil {
		return nil, fmt.Errorf("context: search items: %w", err)
	}
	out := make([]*Item, 0, len(found))
	for _, f := range found {
		it := new(Item)
		if err := json.Unmarshal(f.Value, it); err != nil {
			debugLog.Warnf("Skipping corrupt context item %s/%s: %v", f.Namespace, f.Key, err)
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata.Timestamp.Before(out[j].Metadata.Timestamp)
	})
	return out, nil
}

// Select loads the items in scope and runs SelectItems over them.
func (e *Engine) Select(ctx context.Context, scope Scope, query string, tokenLimit int, opts SelectOptions) ([]*Item, error) {
	if tokenLimit <= 0 {
		return nil, types.NewBadRequestError("token limit must be positive", nil)
	}
	if opts.SessionID == "" {
		opts.SessionID = scope.SessionID
	}
	items, err := e.Items(ctx, Scope{WorkspaceID: scope.WorkspaceID})
	if err != nil {
		return nil, err
	}
	selected := SelectItems(items, query, tokenLimit, opts, e.now())
	tokens := totalTokens(selected)
	metrics.RecordSelectedTokens(ctx, tokens)
	debugLog.Debugf("Selected %d of %d items (%d/%d tokens) for workspace %s", len(selected), len(items), tokens, tokenLimit, scope.WorkspaceID)
	return selected, nil
}

// Delete removes one item.
func (e *Engine) Delete(ctx context.Context, it *Item) error {
	ns, err := e.ns(Scope{WorkspaceID: it.Metadata.WorkspaceID, SessionID: it.Metadata.SessionID})
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%020d-%s", itemPrefix, it.Metadata.Timestamp.UnixNano(), it.ID)
	if err := e.kv.Delete(ctx, ns, key); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("context: delete item: %w", err)
	}
	return nil
}

// Snapshot is a read-only copy of a scope.
type Snapshot struct {
	CreatedAt    time.Time `json:"createdAt"`
	Items        []*Item   `json:"items"`
	TotalTokens  int       `json:"totalTokens"`
	QualityScore float64   `json:"qualityScore"`
}

// Isolate returns a deep copy of the items in scope. Later writes do not
// affect it.
func (e *Engine) Isolate(ctx context.Context, scope Scope) (*Snapshot, error) {
	items, err := e.Items(ctx, scope)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		CreatedAt:    e.now(),
		Items:        items,
		TotalTokens:  totalTokens(items),
		QualityScore: AssessQuality(items).Overall,
	}, nil
}
