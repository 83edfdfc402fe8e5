package usecase

import (
	"strings"

	"agentforge/internal/domain"
)

// contextInfoTool is granted to every agent regardless of capabilities.
// It is informational and safe.
const contextInfoTool = "get_context_info"

// ResolvedCapabilities is the outcome of resolving an agent's capability list:
// the union of granted tool names and the assembled system prompt.
type ResolvedCapabilities struct {
	Capabilities []string // known capability names, declaration order
	Tools        []string // deduplicated, first-seen order
	SystemPrompt string   // base prompt + capability additions, joined by blank lines
}

// ResolveCapabilities maps an ordered capability name list to the tool set and
// system prompt the agent runs with. Duplicate names contribute their tools and
// prompt addition once, at first occurrence. Unknown names are skipped without
// error. An empty list yields the informational tool only and the base prompt
// unchanged.
func ResolveCapabilities(basePrompt string, names []string) ResolvedCapabilities {
	var resolved ResolvedCapabilities

	seen := make(map[string]bool)
	toolSeen := make(map[string]bool)
	promptParts := make([]string, 0, 1+len(names))
	if basePrompt != "" {
		promptParts = append(promptParts, basePrompt)
	}

	for _, name := range names {
		if seen[name] {
			continue
		}
		cap, ok := domain.CapabilityByName(name)
		if !ok {
			continue
		}
		seen[name] = true
		resolved.Capabilities = append(resolved.Capabilities, name)

		for _, tool := range cap.Tools {
			if toolSeen[tool] {
				continue
			}
			toolSeen[tool] = true
			resolved.Tools = append(resolved.Tools, tool)
		}
		promptParts = append(promptParts, cap.PromptAddition)
	}

	if !toolSeen[contextInfoTool] {
		resolved.Tools = append(resolved.Tools, contextInfoTool)
	}

	resolved.SystemPrompt = strings.Join(promptParts, "\n\n")
	return resolved
}

// NewScopedToolExecutor wraps inner with a filter that only exposes the named
// tools in allowedTools. Tools named but not registered are simply absent from
// Schemas; Get on them falls through to the inner executor's not-found error.
func NewScopedToolExecutor(inner domain.ToolExecutor, allowedTools []string) domain.ToolExecutor {
	allowed := make(map[string]bool, len(allowedTools))
	order := make([]string, 0, len(allowedTools))
	for _, name := range allowedTools {
		if !allowed[name] {
			allowed[name] = true
			order = append(order, name)
		}
	}
	return &scopedToolExecutor{inner: inner, allowed: allowed, order: order}
}

type scopedToolExecutor struct {
	inner   domain.ToolExecutor
	allowed map[string]bool
	order   []string
}

func (s *scopedToolExecutor) Get(name string) (domain.Tool, error) {
	if !s.allowed[name] {
		return nil, domain.NewDomainError("ScopedToolExecutor.Get", domain.ErrToolNotFound, name)
	}
	return s.inner.Get(name)
}

// Schemas returns schemas for the allowed tools in grant order. Advertised
// order is stable so the model sees a deterministic tool list.
func (s *scopedToolExecutor) Schemas() []domain.ToolSchema {
	schemas := make([]domain.ToolSchema, 0, len(s.order))
	for _, name := range s.order {
		t, err := s.inner.Get(name)
		if err != nil {
			continue
		}
		schemas = append(schemas, t.Schema())
	}
	return schemas
}
