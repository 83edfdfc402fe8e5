package domain

// StreamDeltaPayload is the payload for EventStreamDelta events.
// Published for each incremental text chunk during a streaming LLM response.
type StreamDeltaPayload struct {
	Content   string `json:"content,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Iteration int    `json:"iteration"`
}

// StreamCompletedPayload is the payload for EventStreamCompleted events.
// Published once when the full streaming response is available.
type StreamCompletedPayload struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// StreamErrorPayload is the payload for EventStreamError events.
// Published when a streaming response fails mid-stream. Recoverable means
// the session survives the failed turn and can accept new messages.
type StreamErrorPayload struct {
	Error       string `json:"error"`
	Recoverable bool   `json:"recoverable"`
}

// ToolStartPayload is the payload for EventToolCallStarted events.
// Arguments holds the parsed call arguments with hidden parameters removed.
type ToolStartPayload struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResultPayload is the payload for EventToolCallCompleted events.
type ToolResultPayload struct {
	Tool    string `json:"tool"`
	Result  string `json:"result"`
	Success bool   `json:"success"`
}
