package domain

import "context"

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openrouter").
	Name() string
}

// ToolCallDelta is one fragment of an in-progress tool call on a streaming
// response. Index identifies which call the fragment belongs to; a negative
// Index means the provider omitted it and the fragment continues the most
// recently seen call. Name and Arguments are partial text to be concatenated.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamDelta is a single incremental chunk from a streaming LLM response.
// Err is set when the stream violated the wire protocol (malformed payload,
// truncated record); it ends the turn and no further deltas follow.
type StreamDelta struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
	Done      bool            `json:"done,omitempty"`
	Usage     *Usage          `json:"usage,omitempty"`
	Err       error           `json:"-"`
}

// StreamingLLMProvider extends LLMProvider with streaming support.
type StreamingLLMProvider interface {
	LLMProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}
