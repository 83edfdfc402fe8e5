package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/internal/domain"
)

func TestResolveCapabilitiesEmpty(t *testing.T) {
	resolved := ResolveCapabilities("base prompt", nil)

	assert.Empty(t, resolved.Capabilities)
	assert.Equal(t, []string{"get_context_info"}, resolved.Tools,
		"chat-only agents still get the informational tool")
	assert.Equal(t, "base prompt", resolved.SystemPrompt)
}

func TestResolveCapabilitiesKnown(t *testing.T) {
	resolved := ResolveCapabilities("base", []string{domain.CapFileOperations, domain.CapCodeExecution})

	assert.Equal(t, []string{domain.CapFileOperations, domain.CapCodeExecution}, resolved.Capabilities)
	assert.Equal(t, []string{
		"read_file", "write_file", "list_files", "delete_file",
		"exec_python", "exec_shell",
		"get_context_info",
	}, resolved.Tools)

	// Prompt additions come after the base prompt, in declaration order,
	// separated by blank lines.
	parts := strings.Split(resolved.SystemPrompt, "\n\n")
	assert.Equal(t, "base", parts[0])
	assert.Contains(t, resolved.SystemPrompt, "file operation tools")
	assert.Contains(t, resolved.SystemPrompt, "code execution tools")
}

func TestResolveCapabilitiesUnknownSkipped(t *testing.T) {
	resolved := ResolveCapabilities("base", []string{"time-travel", domain.CapWebAccess})

	assert.Equal(t, []string{domain.CapWebAccess}, resolved.Capabilities)
	assert.Equal(t, []string{"web_search", "web_fetch", "get_context_info"}, resolved.Tools)
	assert.NotContains(t, resolved.SystemPrompt, "time-travel")
}

func TestResolveCapabilitiesDuplicatesOnce(t *testing.T) {
	resolved := ResolveCapabilities("", []string{domain.CapWebAccess, domain.CapWebAccess})

	assert.Equal(t, []string{domain.CapWebAccess}, resolved.Capabilities)
	assert.Equal(t, []string{"web_search", "web_fetch", "get_context_info"}, resolved.Tools)
	assert.Equal(t, 1, strings.Count(resolved.SystemPrompt, "search the web"))
}

func TestScopedToolExecutorFilters(t *testing.T) {
	inner := &mockToolExecutor{tools: map[string]domain.Tool{
		"allowed": &mockTool{name: "allowed"},
		"hidden":  &mockTool{name: "hidden"},
	}}
	scoped := NewScopedToolExecutor(inner, []string{"allowed"})

	got, err := scoped.Get("allowed")
	require.NoError(t, err)
	assert.Equal(t, "allowed", got.Name())

	_, err = scoped.Get("hidden")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrToolNotFound)

	schemas := scoped.Schemas()
	require.Len(t, schemas, 1)
	assert.Equal(t, "allowed", schemas[0].Name)
}

func TestScopedToolExecutorGrantOrder(t *testing.T) {
	inner := &mockToolExecutor{tools: map[string]domain.Tool{
		"a": &mockTool{name: "a"},
		"b": &mockTool{name: "b"},
		"c": &mockTool{name: "c"},
	}}
	scoped := NewScopedToolExecutor(inner, []string{"c", "a", "b", "a"})

	var names []string
	for _, s := range scoped.Schemas() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestScopedToolExecutorUnregisteredGrant(t *testing.T) {
	inner := &mockToolExecutor{tools: map[string]domain.Tool{
		"real": &mockTool{name: "real"},
	}}
	scoped := NewScopedToolExecutor(inner, []string{"real", "ghost"})

	// Granted but unregistered names are absent from the advertised set.
	schemas := scoped.Schemas()
	require.Len(t, schemas, 1)
	assert.Equal(t, "real", schemas[0].Name)

	_, err := scoped.Get("ghost")
	assert.Error(t, err)
}
