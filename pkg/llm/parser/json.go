package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoJSON is returned when a reply contains no object or array.
	ErrNoJSON = errors.New("no JSON value found in reply")
	// ErrUnrepairable is returned when truncation repair produced nothing valid.
	ErrUnrepairable = errors.New("JSON value is truncated and could not be repaired")
	// ErrMalformed is returned when no candidate in the reply is valid JSON.
	ErrMalformed = errors.New("malformed JSON value")
)

// ExtractJSON recovers the first JSON object or array from a model reply.
//
// Reasoning blocks and markdown code fences are removed first. The first
// complete value wins, so concatenated objects ("{..}{..}") and trailing
// prose are dropped. A balanced but invalid candidate, such as braces in
// prose, is skipped and the scan restarts at the next bracket; the span up
// to the last closing bracket is tried before giving up. When the value is
// cut off, the text is trimmed back to the last element boundary and the
// still-open brackets are closed.
func ExtractJSON(raw string) (string, error) {
	text := stripFences(StripReasoning(raw))
	first := strings.IndexAny(text, "{[")
	if first < 0 {
		return "", ErrNoJSON
	}

	var firstErr error
	for start := first; start >= 0; {
		doc, err := scanValue(text[start:], start)
		if !errors.Is(err, ErrMalformed) {
			return doc, err
		}
		if firstErr == nil {
			firstErr = err
		}
		next := strings.IndexAny(text[start+1:], "{[")
		if next < 0 {
			break
		}
		start += next + 1
	}

	if last := strings.LastIndexAny(text, "}]"); last > first {
		if span := text[first : last+1]; json.Valid([]byte(span)) {
			return span, nil
		}
	}
	return "", firstErr
}

// scanValue reads the value opening body[0]. offset is body's position in
// the reply, for error messages.
func scanValue(body string, offset int) (string, error) {
	type boundary struct {
		end  int
		open []byte
	}
	var (
		stack    []byte
		cuts     []boundary
		inString bool
		escaped  bool
	)

	for i := 0; i < len(body); i++ {
		c := body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 || closerFor(stack[len(stack)-1]) != c {
				return "", fmt.Errorf("%w: mismatched %q at offset %d", ErrMalformed, c, offset+i)
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				candidate := body[:i+1]
				if !json.Valid([]byte(candidate)) {
					return "", fmt.Errorf("%w: invalid value at offset %d", ErrMalformed, offset)
				}
				return candidate, nil
			}
			cuts = append(cuts, boundary{end: i + 1, open: append([]byte(nil), stack...)})
		case ',':
			cuts = append(cuts, boundary{end: i, open: append([]byte(nil), stack...)})
		}
	}

	for j := len(cuts) - 1; j >= 0; j-- {
		candidate := strings.TrimRight(body[:cuts[j].end], " \t\r\n,") + closeAll(cuts[j].open)
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}
	return "", ErrUnrepairable
}

// DecodeJSON extracts the JSON value from raw and unmarshals it into out.
func DecodeJSON(raw string, out any) error {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(doc), out)
}

func closerFor(open byte) byte {
	if open == '{' {
		return '}'
	}
	return ']'
}

func closeAll(open []byte) string {
	var b strings.Builder
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteByte(closerFor(open[i]))
	}
	return b.String()
}

// stripFences returns the body of the first fenced block when it holds JSON.
func stripFences(text string) string {
	const fence = "```"
	open := strings.Index(text, fence)
	if open < 0 {
		return text
	}
	inner := text[open+len(fence):]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.ContainsAny(inner[:nl], "{[") {
		inner = inner[nl+1:]
	}
	if end := strings.Index(inner, fence); end >= 0 {
		inner = inner[:end]
	}
	if !strings.ContainsAny(inner, "{[") {
		return text
	}
	return inner
}
