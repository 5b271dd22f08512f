// Package parser cleans up raw model output: it separates reasoning blocks
// from visible text and recovers JSON documents from chatty replies.
package parser

import "strings"

// reasoningTags are the block tags local reasoning models wrap their
// chain of thought in.
var reasoningTags = map[string]bool{
	"think":    true,
	"thinking": true,
}

// ThinkFilter splits streamed text into reasoning and visible parts. Tags may
// be split across chunks, so the filter buffers a partial tag until its '>'
// arrives.
type ThinkFilter struct {
	tag       strings.Builder
	inTag     bool
	reasoning bool
}

// NewThinkFilter creates a filter in the visible state.
func NewThinkFilter() *ThinkFilter {
	return &ThinkFilter{}
}

// Write consumes one chunk and returns the reasoning and visible text it
// contained.
func (f *ThinkFilter) Write(chunk string) (reasoning, visible string) {
	var r, v strings.Builder
	emit := func(s string) {
		if f.reasoning {
			r.WriteString(s)
		} else {
			v.WriteString(s)
		}
	}

	for _, ch := range chunk {
		switch {
		case ch == '<':
			if f.inTag {
				emit(f.tag.String())
			}
			f.inTag = true
			f.tag.Reset()
			f.tag.WriteRune(ch)
		case ch == '>' && f.inTag:
			f.tag.WriteRune(ch)
			tag := f.tag.String()
			f.tag.Reset()
			f.inTag = false
			if open, ok := reasoningTag(tag); ok {
				f.reasoning = open
				continue
			}
			emit(tag)
		case f.inTag:
			f.tag.WriteRune(ch)
		default:
			emit(string(ch))
		}
	}
	return r.String(), v.String()
}

// Flush returns a buffered partial tag as plain text.
func (f *ThinkFilter) Flush() (reasoning, visible string) {
	if !f.inTag {
		return "", ""
	}
	text := f.tag.String()
	f.tag.Reset()
	f.inTag = false
	if f.reasoning {
		return text, ""
	}
	return "", text
}

// InReasoning reports whether the filter is inside a reasoning block.
func (f *ThinkFilter) InReasoning() bool {
	return f.reasoning
}

func reasoningTag(tag string) (open bool, ok bool) {
	name := strings.TrimSuffix(strings.TrimPrefix(tag, "<"), ">")
	closing := strings.HasPrefix(name, "/")
	name = strings.ToLower(strings.TrimPrefix(name, "/"))
	if !reasoningTags[name] {
		return false, false
	}
	return !closing, true
}

// StripReasoning removes every reasoning block from a complete reply. An
// unterminated block swallows the rest of the text.
func StripReasoning(text string) string {
	f := NewThinkFilter()
	_, visible := f.Write(text)
	_, tail := f.Flush()
	return visible + tail
}
