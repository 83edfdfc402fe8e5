package usecase

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/internal/domain"
)

func TestContextBuilderSystemPromptFirst(t *testing.T) {
	cb := NewContextBuilder("You are helpful.", "test-model", 0.7, 20)

	history := []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
	}
	req := cb.Build(history, nil)

	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, 0.7, req.Temperature)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, domain.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "You are helpful.", req.Messages[0].Content)
	assert.Equal(t, "hi", req.Messages[1].Content)
}

func TestContextBuilderNoSystemPrompt(t *testing.T) {
	cb := NewContextBuilder("", "test-model", 0.5, 20)
	req := cb.Build([]domain.Message{{Role: domain.RoleUser, Content: "hi"}}, nil)

	require.Len(t, req.Messages, 1)
	assert.Equal(t, domain.RoleUser, req.Messages[0].Role)
}

func TestContextBuilderTruncation(t *testing.T) {
	cb := NewContextBuilder("sys", "test-model", 0.7, 4)

	var history []domain.Message
	for i := 0; i < 10; i++ {
		history = append(history,
			domain.Message{Role: domain.RoleUser, Content: fmt.Sprintf("q%d", i)},
			domain.Message{Role: domain.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}
	req := cb.Build(history, nil)

	// System prompt + the trailing window.
	require.Len(t, req.Messages, 5)
	assert.Equal(t, "q8", req.Messages[1].Content)
	assert.Equal(t, "a9", req.Messages[4].Content)
}

func TestContextBuilderTruncationKeepsToolGroupsAtomic(t *testing.T) {
	cb := NewContextBuilder("", "test-model", 0.7, 3)

	history := []domain.Message{
		{Role: domain.RoleUser, Content: "old"},
		{Role: domain.RoleUser, Content: "do it"},
		{
			Role:      domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{{ID: "c1", Name: "tool", Arguments: json.RawMessage(`{}`)}},
		},
		{Role: domain.RoleTool, Name: "tool", Content: "result"},
		{Role: domain.RoleAssistant, Content: "done"},
	}
	req := cb.Build(history, nil)

	// The assistant(tool_calls)+tool pair must never be split; 3 messages fit
	// only if the cut lands on a group boundary.
	for i, m := range req.Messages {
		if m.Role == domain.RoleTool {
			require.Greater(t, i, 0)
			prev := req.Messages[i-1]
			assert.True(t, prev.Role == domain.RoleAssistant && len(prev.ToolCalls) > 0,
				"tool result must follow its originating assistant message")
		}
	}
	assert.Equal(t, "done", req.Messages[len(req.Messages)-1].Content)
}

func TestContextBuilderToolSchemasPassedThrough(t *testing.T) {
	cb := NewContextBuilder("sys", "test-model", 0.7, 20)
	schemas := []domain.ToolSchema{{Name: "echo", Parameters: json.RawMessage(`{"type":"object"}`)}}

	req := cb.Build(nil, schemas)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "echo", req.Tools[0].Name)
}

type fixedCounter struct{ perMessage int }

func (f fixedCounter) Count(string) int { return f.perMessage }

func TestContextBuilderEstimateTokens(t *testing.T) {
	cb := NewContextBuilder("sys", "test-model", 0.7, 20)

	req := cb.Build([]domain.Message{{Role: domain.RoleUser, Content: "hi"}}, nil)
	assert.Equal(t, 0, cb.EstimateTokens(req), "no counter configured")

	cb.SetTokenCounter(fixedCounter{perMessage: 7})
	assert.Equal(t, 14, cb.EstimateTokens(req))
}
