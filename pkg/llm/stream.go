package llm

import "strings"

// StreamChunk is one piece of a streamed completion.
type StreamChunk struct {
	Error    error
	Role     string
	Content  string
	Finished bool
}

// IsError returns true if the chunk carries a stream error.
func (c *StreamChunk) IsError() bool {
	return c.Error != nil
}

// Collect drains a stream into a single string, calling onChunk for every
// content delta. It returns the first stream error encountered.
func Collect(stream <-chan *StreamChunk, onChunk func(string)) (string, error) {
	var b strings.Builder
	var firstErr error
	for chunk := range stream {
		if chunk.IsError() {
			if firstErr == nil {
				firstErr = chunk.Error
			}
			continue
		}
		if chunk.Content == "" {
			continue
		}
		b.WriteString(chunk.Content)
		if onChunk != nil {
			onChunk(chunk.Content)
		}
	}
	return b.String(), firstErr
}
