package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/internal/domain"
)

type fakeUsageSource struct {
	usage domain.Usage
	model string
}

func (f *fakeUsageSource) Current() domain.Usage { return f.usage }
func (f *fakeUsageSource) Model() string         { return f.model }

func TestContextInfo(t *testing.T) {
	source := &fakeUsageSource{
		usage: domain.Usage{PromptTokens: 1200, CompletionTokens: 300, TotalTokens: 1500},
		model: "openai/gpt-3.5-turbo",
	}

	out, err := handleContextInfo(context.Background(), Args{usageParam: UsageSource(source)})
	require.NoError(t, err)

	assert.Contains(t, out, "Context Window Usage:")
	assert.Contains(t, out, "Model: openai/gpt-3.5-turbo")
	assert.Contains(t, out, "Context limit: 16,385 tokens")
	assert.Contains(t, out, "Prompt tokens: 1,200")
	assert.Contains(t, out, "Completion tokens: 300")
	assert.Contains(t, out, "Total tokens: 1,500")
	assert.Contains(t, out, "Usage: 9.2%")
	assert.Contains(t, out, "Remaining: 14,885 tokens")
}

func TestContextInfoNoUsageYet(t *testing.T) {
	source := &fakeUsageSource{model: "openai/gpt-4o-mini"}

	out, err := handleContextInfo(context.Background(), Args{usageParam: UsageSource(source)})
	require.NoError(t, err)
	assert.Equal(t, "No usage data available yet.\nModel: openai/gpt-4o-mini\nContext limit: 128,000 tokens", out)
}

func TestContextInfoDefaultModel(t *testing.T) {
	source := &fakeUsageSource{}

	out, err := handleContextInfo(context.Background(), Args{usageParam: UsageSource(source)})
	require.NoError(t, err)
	assert.Contains(t, out, "Model: "+domain.DefaultModel)
}

func TestContextInfoMissingSource(t *testing.T) {
	out, err := handleContextInfo(context.Background(), Args{})
	require.NoError(t, err)
	assert.Equal(t, "Error: Runtime context not available", out)
}

func TestGroupDigits(t *testing.T) {
	assert.Equal(t, "0", groupDigits(0))
	assert.Equal(t, "999", groupDigits(999))
	assert.Equal(t, "1,000", groupDigits(1000))
	assert.Equal(t, "12,345", groupDigits(12345))
	assert.Equal(t, "1,234,567", groupDigits(1234567))
	assert.Equal(t, "-12,345", groupDigits(-12345))
}
