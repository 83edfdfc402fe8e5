package gateway

// Client → server message types.
const (
	MsgUserMessage     = "user_message"
	MsgClearHistory    = "clear_history"
	MsgGetCapabilities = "get_capabilities"
)

// Server → client message types.
const (
	MsgStreamChunk  = "stream_chunk"
	MsgToolStart    = "tool_start"
	MsgToolResult   = "tool_result"
	MsgAgentMessage = "agent_message"
	MsgError        = "error"
	MsgInfo         = "info"
)

// ClientFrame is the envelope of messages received from the client.
type ClientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// StreamChunkMsg carries an incremental text delta. IsComplete marks the end
// of the streamed response, always with empty content.
type StreamChunkMsg struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	IsComplete bool   `json:"is_complete"`
}

// ToolStartMsg announces a tool execution with its display arguments.
type ToolStartMsg struct {
	Type      string         `json:"type"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResultMsg carries a finished tool call's result.
type ToolResultMsg struct {
	Type     string `json:"type"`
	ToolName string `json:"tool_name"`
	Result   string `json:"result"`
	Success  bool   `json:"success"`
}

// UsagePayload reports token usage for a completed turn.
type UsagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AgentMessageMsg is the complete agent response ending a successful turn.
type AgentMessageMsg struct {
	Type    string        `json:"type"`
	Content string        `json:"content"`
	Usage   *UsagePayload `json:"usage,omitempty"`
}

// ErrorMsg reports a failure. Recoverable errors leave the connection usable.
type ErrorMsg struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// InfoMsg carries system information: connection banners, capability lists,
// and acknowledgements.
type InfoMsg struct {
	Type         string   `json:"type"`
	Message      string   `json:"message,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Tools        []string `json:"tools,omitempty"`
}
