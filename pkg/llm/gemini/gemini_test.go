package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/entrhq/pilot/pkg/types"
)

func TestSplitMessages(t *testing.T) {
	system, contents := splitMessages([]*types.Message{
		types.NewSystemMessage("you are a planner"),
		types.NewSystemMessage("answer in JSON"),
		types.NewUserMessage("book a flight"),
		types.NewAssistantMessage("{}"),
	})

	require.NotNil(t, system)
	require.Len(t, system.Parts, 1)
	assert.Equal(t, "you are a planner\n\nanswer in JSON", system.Parts[0].Text)

	require.Len(t, contents, 2)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
}

func TestSplitMessagesWithoutSystem(t *testing.T) {
	system, contents := splitMessages([]*types.Message{types.NewUserMessage("hi")})
	assert.Nil(t, system)
	assert.Len(t, contents, 1)
}

func TestMapError(t *testing.T) {
	err := mapError(fmt.Errorf("call: %w", genai.APIError{Code: 401, Message: "bad key"}))
	assert.True(t, types.IsKind(err, types.ErrKindAuth))

	err = mapError(genai.APIError{Code: 429, Message: "slow down"})
	assert.True(t, types.IsKind(err, types.ErrKindQuota))

	err = mapError(context.Canceled)
	assert.True(t, types.IsKind(err, types.ErrKindCancelled))

	plain := errors.New("network down")
	err = mapError(plain)
	assert.ErrorIs(t, err, plain)
	assert.False(t, types.IsNonRetryable(err))
}

func TestNewProviderRequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := NewProvider(context.Background(), "")
	assert.Error(t, err)
}
