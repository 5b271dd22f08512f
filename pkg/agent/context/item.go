package context

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// ItemType discriminates the payload carried by an Item.
type ItemType string

const (
	TypeMessage  ItemType = "message"
	TypePage     ItemType = "page"
	TypeExternal ItemType = "external"
	TypeMemory   ItemType = "memory"
	TypeFile     ItemType = "file"
	TypeHistory  ItemType = "history"
)

// itemTypeCount is the number of distinct item types, used for completeness.
const itemTypeCount = 6

// SourceType says whether the main agent or a delegated subagent produced
// an item. Subagent items name their role in OwnerAgentID.
type SourceType string

const (
	SourceMain     SourceType = "main"
	SourceSubagent SourceType = "subagent"
)

func validSource(s SourceType) bool {
	return s == SourceMain || s == SourceSubagent
}

const (
	DefaultPriority  = 3
	DefaultRelevance = 0.5
)

// Payload is the type-specific part of an Item. The set of implementations
// is closed.
type Payload interface {
	Kind() ItemType
	isPayload()
}

// MessagePayload is a chat turn.
type MessagePayload struct {
	Role string `json:"role"`
}

// PagePayload is a cleaned browser page.
type PagePayload struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
}

// ExternalPayload is content from outside the workspace, including
// cross-workspace synthesis results.
type ExternalPayload struct {
	Service          string   `json:"service"`
	SourceWorkspaces []string `json:"sourceWorkspaces,omitempty"`
}

// MemoryPayload references a memory tier record, or a condensed summary.
type MemoryPayload struct {
	Tier  string `json:"tier"`
	RefID string `json:"refId,omitempty"`
}

// FilePayload is an uploaded or downloaded file.
type FilePayload struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// HistoryPayload is one executor step.
type HistoryPayload struct {
	Role   string `json:"role"`
	Action string `json:"action,omitempty"`
	Step   int    `json:"step"`
}

func (MessagePayload) Kind() ItemType  { return TypeMessage }
func (PagePayload) Kind() ItemType     { return TypePage }
func (ExternalPayload) Kind() ItemType { return TypeExternal }
func (MemoryPayload) Kind() ItemType   { return TypeMemory }
func (FilePayload) Kind() ItemType     { return TypeFile }
func (HistoryPayload) Kind() ItemType  { return TypeHistory }

func (MessagePayload) isPayload()  {}
func (PagePayload) isPayload()     {}
func (ExternalPayload) isPayload() {}
func (MemoryPayload) isPayload()   {}
func (FilePayload) isPayload()     {}
func (HistoryPayload) isPayload()  {}

// Metadata describes where an item came from and how it ranks.
type Metadata struct {
	Timestamp      time.Time         `json:"timestamp"`
	RelevanceScore *float64          `json:"relevanceScore,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	Source         string            `json:"source,omitempty"`
	WorkspaceID    string            `json:"workspaceId"`
	SessionID      string            `json:"sessionId,omitempty"`
	TokenCount     int               `json:"tokenCount"`
	Priority       int               `json:"priority"`
}

// Item is a unit of context. Content is written once and never edited.
type Item struct {
	Payload      Payload    `json:"-"`
	ID           string     `json:"id"`
	Type         ItemType   `json:"type"`
	Content      string     `json:"content"`
	OwnerAgentID string     `json:"ownerAgentId,omitempty"`
	SourceType   SourceType `json:"sourceType"`
	Metadata     Metadata   `json:"metadata"`
}

// Relevance returns the relevance score, DefaultRelevance when unset.
func (it *Item) Relevance() float64 {
	if it.Metadata.RelevanceScore == nil {
		return DefaultRelevance
	}
	return *it.Metadata.RelevanceScore
}

// Clone returns a deep copy.
func (it *Item) Clone() *Item {
	c := *it
	if it.Metadata.RelevanceScore != nil {
		r := *it.Metadata.RelevanceScore
		c.Metadata.RelevanceScore = &r
	}
	c.Metadata.Tags = maps.Clone(it.Metadata.Tags)
	if p, ok := it.Payload.(ExternalPayload); ok {
		p.SourceWorkspaces = append([]string(nil), p.SourceWorkspaces...)
		c.Payload = p
	}
	return &c
}

type itemAlias Item

type itemJSON struct {
	*itemAlias
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON encodes the payload next to the type discriminator.
func (it Item) MarshalJSON() ([]byte, error) {
	out := itemJSON{itemAlias: (*itemAlias)(&it)}
	if it.Payload != nil {
		if it.Payload.Kind() != it.Type {
			return nil, fmt.Errorf("item %s: payload kind %s does not match type %s", it.ID, it.Payload.Kind(), it.Type)
		}
		raw, err := json.Marshal(it.Payload)
		if err != nil {
			return nil, err
		}
		out.Payload = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the payload selected by the type discriminator.
func (it *Item) UnmarshalJSON(data []byte) error {
	in := itemJSON{itemAlias: (*itemAlias)(it)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	it.Payload = nil
	if len(in.Payload) == 0 {
		return nil
	}
	p, err := decodePayload(it.Type, in.Payload)
	if err != nil {
		return fmt.Errorf("item %s: %w", it.ID, err)
	}
	it.Payload = p
	return nil
}

func decodePayload(t ItemType, raw json.RawMessage) (Payload, error) {
	switch t {
	case TypeMessage:
		var p MessagePayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypePage:
		var p PagePayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeExternal:
		var p ExternalPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeMemory:
		var p MemoryPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeFile:
		var p FilePayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeHistory:
		var p HistoryPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	}
	return nil, fmt.Errorf("unknown item type %q", t)
}

func validType(t ItemType) bool {
	switch t {
	case TypeMessage, TypePage, TypeExternal, TypeMemory, TypeFile, TypeHistory:
		return true
	}
	return false
}

func totalTokens(items []*Item) int {
	n := 0
	for _, it := range items {
		n += it.Metadata.TokenCount
	}
	return n
}
