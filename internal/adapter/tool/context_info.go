package tool

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"agentforge/internal/adapter/llm"
	"agentforge/internal/domain"
)

// usageParam is the hidden parameter carrying the usage source.
const usageParam = "_usage"

// UsageSource reports the token usage and model of the running session.
// The loop's usage tracker satisfies the usage half; wiring code binds the
// model name.
type UsageSource interface {
	Current() domain.Usage
	Model() string
}

// ContextInfoDescriptor returns the context window introspection tool,
// granted to every agent regardless of capabilities.
func ContextInfoDescriptor() Descriptor {
	return Descriptor{
		Name:        "get_context_info",
		Description: "Get information about current context window usage.",
		Params: []ParamSpec{
			{Name: usageParam, Type: TypeObject},
		},
		Handler: handleContextInfo,
	}
}

func handleContextInfo(_ context.Context, args Args) (string, error) {
	source, _ := args.Value(usageParam).(UsageSource)
	if source == nil {
		return "Error: Runtime context not available", nil
	}

	usage := source.Current()
	model := source.Model()
	if model == "" {
		model = domain.DefaultModel
	}
	limit := llm.ContextLimitFor(model)

	if usage.TotalTokens == 0 {
		return fmt.Sprintf("No usage data available yet.\nModel: %s\nContext limit: %s tokens",
			model, groupDigits(limit)), nil
	}

	percent := float64(usage.TotalTokens) / float64(limit) * 100

	lines := []string{
		"Context Window Usage:",
		fmt.Sprintf("  Model: %s", model),
		fmt.Sprintf("  Context limit: %s tokens", groupDigits(limit)),
		fmt.Sprintf("  Prompt tokens: %s", groupDigits(usage.PromptTokens)),
		fmt.Sprintf("  Completion tokens: %s", groupDigits(usage.CompletionTokens)),
		fmt.Sprintf("  Total tokens: %s", groupDigits(usage.TotalTokens)),
		fmt.Sprintf("  Usage: %.1f%%", percent),
		fmt.Sprintf("  Remaining: %s tokens", groupDigits(limit-usage.TotalTokens)),
	}
	return strings.Join(lines, "\n"), nil
}

// groupDigits formats n with thousands separators (12345 -> "12,345").
func groupDigits(n int) string {
	s := strconv.Itoa(n)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
