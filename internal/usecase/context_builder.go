package usecase

import (
	"time"

	"agentforge/internal/domain"
)

// DefaultHistoryWindow is the trailing message window applied when building
// an upstream request. The full session log is kept in memory; only the
// request view is truncated.
const DefaultHistoryWindow = 20

// ContextBuilder constructs the prompt message array for LLM calls.
type ContextBuilder struct {
	systemPrompt string
	model        string
	temperature  float64
	maxMessages  int
	counter      domain.TokenCounter // optional, nil = no estimates
}

// NewContextBuilder creates a new context builder.
func NewContextBuilder(systemPrompt, model string, temperature float64, maxMessages int) *ContextBuilder {
	if maxMessages <= 0 {
		maxMessages = DefaultHistoryWindow
	}
	return &ContextBuilder{
		systemPrompt: systemPrompt,
		model:        model,
		temperature:  temperature,
		maxMessages:  maxMessages,
	}
}

// SetTokenCounter enables prompt token estimation.
func (cb *ContextBuilder) SetTokenCounter(counter domain.TokenCounter) {
	cb.counter = counter
}

// Model returns the model the builder targets.
func (cb *ContextBuilder) Model() string { return cb.model }

// Build assembles: system prompt + truncated conversation history + tools.
func (cb *ContextBuilder) Build(history []domain.Message, tools []domain.ToolSchema) domain.ChatRequest {
	messages := make([]domain.Message, 0, 1+len(history))

	if cb.systemPrompt != "" {
		messages = append(messages, domain.Message{
			Role:      domain.RoleSystem,
			Content:   cb.systemPrompt,
			Timestamp: time.Now(),
		})
	}

	messages = append(messages, cb.truncateHistory(history)...)

	return domain.ChatRequest{
		Model:       cb.model,
		Messages:    messages,
		Tools:       tools,
		Temperature: cb.temperature,
	}
}

// EstimateTokens returns the estimated token count of a request's message
// contents, or 0 when no counter is configured.
func (cb *ContextBuilder) EstimateTokens(req domain.ChatRequest) int {
	if cb.counter == nil {
		return 0
	}
	total := 0
	for _, m := range req.Messages {
		total += cb.counter.Count(m.Content)
	}
	return total
}

// CountTokens estimates the token count of a single text, or 0 when no
// counter is configured.
func (cb *ContextBuilder) CountTokens(text string) int {
	if cb.counter == nil {
		return 0
	}
	return cb.counter.Count(text)
}

func (cb *ContextBuilder) truncateHistory(history []domain.Message) []domain.Message {
	if cb.maxMessages <= 0 || len(history) <= cb.maxMessages {
		return history
	}

	// Partition messages into atomic groups so that
	// [Assistant(tool_calls), ToolResult...] are never split.
	groups := groupMessages(history)

	// Keep groups from the end until we exceed the message budget.
	var kept [][]domain.Message
	total := 0
	for i := len(groups) - 1; i >= 0; i-- {
		groupLen := len(groups[i])
		if total+groupLen > cb.maxMessages && total > 0 {
			break
		}
		kept = append(kept, groups[i])
		total += groupLen
	}

	// Reverse to restore chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	result := make([]domain.Message, 0, total)
	for _, g := range kept {
		result = append(result, g...)
	}
	return result
}

// groupMessages partitions messages into atomic groups.
// An assistant message with tool calls and its immediately following
// tool result messages form a single group. All other messages are
// individual groups.
func groupMessages(msgs []domain.Message) [][]domain.Message {
	var groups [][]domain.Message
	i := 0
	for i < len(msgs) {
		msg := msgs[i]
		if msg.Role == domain.RoleAssistant && len(msg.ToolCalls) > 0 {
			group := []domain.Message{msg}
			j := i + 1
			for j < len(msgs) && msgs[j].Role == domain.RoleTool {
				group = append(group, msgs[j])
				j++
			}
			groups = append(groups, group)
			i = j
		} else {
			groups = append(groups, []domain.Message{msg})
			i++
		}
	}
	return groups
}
