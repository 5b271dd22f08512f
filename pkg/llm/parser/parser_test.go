package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThinkFilter_SplitAcrossChunks(t *testing.T) {
	f := NewThinkFilter()
	var reasoning, visible string
	for _, chunk := range []string{"Hello <thi", "nk>plan it", "</think> world", " a<b"} {
		r, v := f.Write(chunk)
		reasoning += r
		visible += v
	}
	r, v := f.Flush()
	reasoning += r
	visible += v

	assert.Equal(t, "plan it", reasoning)
	assert.Equal(t, "Hello  world a<b", visible)
	assert.False(t, f.InReasoning())
}

func TestStripReasoning(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripReasoning(`<thinking>hmm {"x":2}</thinking>{"a":1}`))
	assert.Equal(t, "kept ", StripReasoning("kept <think>never closed"))
	assert.Equal(t, "<b>bold</b>", StripReasoning("<b>bold</b>"))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		err  error
	}{
		{name: "plain", raw: `{"done": true}`, want: `{"done": true}`},
		{name: "prose around", raw: `Sure! {"a": [1, 2]} hope that helps`, want: `{"a": [1, 2]}`},
		{name: "fenced", raw: "```json\n{\"a\": \"b\"}\n```", want: `{"a": "b"}`},
		{name: "reasoning first", raw: `<think>{"draft": 1}</think>{"final": 2}`, want: `{"final": 2}`},
		{name: "concatenated objects", raw: `{"a":1}{"b":2}`, want: `{"a":1}`},
		{name: "braces in strings", raw: `{"s": "}{]["}`, want: `{"s": "}{]["}`},
		{name: "escaped quote", raw: `{"s": "say \"hi\" }"}`, want: `{"s": "say \"hi\" }"}`},
		{name: "array", raw: `result: [{"x": 1}, {"x": 2}]`, want: `[{"x": 1}, {"x": 2}]`},
		{name: "truncated after element", raw: `{"actions": [{"a": 1}, {"b": 2}, {"c":`, want: `{"actions": [{"a": 1}, {"b": 2}]}`},
		{name: "truncated in string", raw: `{"x": 1, "y": "unfinish`, want: `{"x": 1}`},
		{name: "braces in prose first", raw: `I will use {the search box} now. {"done": false, "next_steps": "click"}`, want: `{"done": false, "next_steps": "click"}`},
		{name: "invalid outer, valid array", raw: `plan {step one} then [1, 2]`, want: `[1, 2]`},
		{name: "only prose braces", raw: `use {the box} and {the button}`, err: ErrMalformed},
		{name: "no json", raw: "I cannot help with that", err: ErrNoJSON},
		{name: "unrepairable", raw: `{"only": "trunc`, err: ErrUnrepairable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.raw)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestExtractJSON_Mismatched(t *testing.T) {
	_, err := ExtractJSON(`{"a": [1, 2}`)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "offset 11")
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Done  bool   `json:"done"`
		Notes string `json:"notes"`
	}
	require.NoError(t, DecodeJSON("```\n{\"done\": true, \"notes\": \"ok\"}\n```", &out))
	assert.True(t, out.Done)
	assert.Equal(t, "ok", out.Notes)
}
