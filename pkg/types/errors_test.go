package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "auth", err: NewAuthError("bad key", nil), want: true},
		{name: "bad request", err: NewBadRequestError("bad", nil), want: true},
		{name: "forbidden", err: NewForbiddenError("no", nil), want: true},
		{name: "cancelled", err: NewCancelledError("stop", nil), want: true},
		{name: "conflict", err: NewConflictError("dup", nil), want: true},
		{name: "url not allowed", err: NewURLNotAllowedError("https://evil.test"), want: true},
		{name: "context canceled", err: fmt.Errorf("call: %w", context.Canceled), want: true},
		{name: "wrapped auth", err: fmt.Errorf("planner: %w", NewAuthError("bad key", nil)), want: true},
		{name: "parse", err: NewResponseParseError("{", nil), want: false},
		{name: "quota", err: NewQuotaError("slow down", nil), want: false},
		{name: "plain", err: errors.New("timeout"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNonRetryable(tt.err))
		})
	}
}

func TestErrorFromStatus(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{400, ErrKindBadRequest},
		{401, ErrKindAuth},
		{403, ErrKindForbidden},
		{409, ErrKindConflict},
		{429, ErrKindQuota},
	}
	for _, tt := range tests {
		err := ErrorFromStatus(tt.status, "body")
		assert.True(t, IsKind(err, tt.kind), "status %d", tt.status)
	}
	assert.Nil(t, ErrorFromStatus(500, "oops"))
}

func TestErrorUnwrapAndDetails(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := NewResponseParseError(`{"a":`, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `{"a":`, err.Details["raw"])
	assert.Contains(t, err.Error(), "RESPONSE_PARSE")

	steps := NewMaxStepsReachedError(100)
	assert.Equal(t, 100, steps.Details["steps"])
	kind, ok := KindOf(steps)
	assert.True(t, ok)
	assert.Equal(t, ErrKindMaxStepsReached, kind)
}
