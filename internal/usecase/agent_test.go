package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockLLM returns scripted responses in order. Once the script is exhausted
// it keeps returning the last response.
type mockLLM struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
	errs      []error
	idx       int
	requests  []domain.ChatRequest
}

func (m *mockLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	i := m.idx
	if i < len(m.errs) && m.errs[i] != nil {
		m.idx++
		return nil, m.errs[i]
	}
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	} else {
		m.idx++
	}
	resp := m.responses[i]
	return &resp, nil
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// mockTool executes a scripted handler.
type mockTool struct {
	name string
	fn   func(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error)
}

func (t *mockTool) Name() string        { return t.name }
func (t *mockTool) Description() string { return "mock tool" }
func (t *mockTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: "mock tool", Parameters: json.RawMessage(`{"type":"object"}`)}
}
func (t *mockTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return t.fn(ctx, params)
}

type mockToolExecutor struct {
	tools map[string]domain.Tool
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, domain.NewDomainError("mock.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema {
	var schemas []domain.ToolSchema
	for _, t := range m.tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}

// recordingBus captures every published event in order.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) ofType(t domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (b *recordingBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

func textResponse(content string) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: content},
		Usage:   domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func toolCallResponse(id, name, args string) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{
			Role: domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{
				{ID: id, Name: name, Arguments: json.RawMessage(args)},
			},
		},
		Usage: domain.Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30},
	}
}

func newTestAgent(llm domain.LLMProvider, opts ...func(*AgentDeps)) *Agent {
	deps := AgentDeps{
		LLM:            llm,
		Tools:          &mockToolExecutor{tools: map[string]domain.Tool{}},
		ContextBuilder: NewContextBuilder("You are a test assistant.", "test-model", 0.7, 50),
		Logger:         newTestLogger(),
		MaxIterations:  10,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return NewAgent(deps)
}

func TestHandleMessageSimple(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{textResponse("Hello there")}}
	agent := newTestAgent(llm)
	session := NewSession("tester")

	reply, err := agent.HandleMessage(context.Background(), session, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", reply)

	msgs := session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
}

func TestHandleMessageToolRound(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{
		toolCallResponse("call-1", "echo", `{"text":"ping"}`),
		textResponse("echoed: ping"),
	}}

	var gotParams json.RawMessage
	tools := &mockToolExecutor{tools: map[string]domain.Tool{
		"echo": &mockTool{name: "echo", fn: func(_ context.Context, params json.RawMessage) (*domain.ToolResult, error) {
			gotParams = params
			return &domain.ToolResult{Content: "ping"}, nil
		}},
	}}
	agent := newTestAgent(llm, func(d *AgentDeps) { d.Tools = tools })
	session := NewSession("tester")

	reply, err := agent.HandleMessage(context.Background(), session, "echo ping")
	require.NoError(t, err)
	assert.Equal(t, "echoed: ping", reply)
	assert.JSONEq(t, `{"text":"ping"}`, string(gotParams))

	// user, assistant(tool_calls), tool, assistant
	msgs := session.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.RoleTool, msgs[2].Role)
	assert.Equal(t, "echo", msgs[2].Name)
	assert.Equal(t, "ping", msgs[2].Content)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "call-1", msgs[2].ToolCalls[0].ID)
}

func TestHandleMessageToolFailureRecovered(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{
		toolCallResponse("call-1", "flaky", `{}`),
		textResponse("the tool failed, sorry"),
	}}
	tools := &mockToolExecutor{tools: map[string]domain.Tool{
		"flaky": &mockTool{name: "flaky", fn: func(context.Context, json.RawMessage) (*domain.ToolResult, error) {
			return nil, errors.New("disk on fire")
		}},
	}}
	agent := newTestAgent(llm, func(d *AgentDeps) { d.Tools = tools })
	session := NewSession("tester")

	reply, err := agent.HandleMessage(context.Background(), session, "do it")
	require.NoError(t, err, "tool failure must not end the turn")
	assert.Equal(t, "the tool failed, sorry", reply)

	// The handler error text is fed back verbatim as the tool message.
	msgs := session.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "disk on fire", msgs[2].Content)
}

func TestHandleMessageUnknownTool(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{
		toolCallResponse("call-1", "nonexistent", `{}`),
		textResponse("done"),
	}}
	agent := newTestAgent(llm)
	session := NewSession("tester")

	_, err := agent.HandleMessage(context.Background(), session, "go")
	require.NoError(t, err)

	msgs := session.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Error: Tool 'nonexistent' not found", msgs[2].Content)
}

func TestHandleMessageInvalidToolArguments(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{
		toolCallResponse("call-1", "echo", `{not valid json`),
		textResponse("done"),
	}}
	executed := false
	tools := &mockToolExecutor{tools: map[string]domain.Tool{
		"echo": &mockTool{name: "echo", fn: func(context.Context, json.RawMessage) (*domain.ToolResult, error) {
			executed = true
			return &domain.ToolResult{Content: "ok"}, nil
		}},
	}}
	agent := newTestAgent(llm, func(d *AgentDeps) { d.Tools = tools })
	session := NewSession("tester")

	_, err := agent.HandleMessage(context.Background(), session, "go")
	require.NoError(t, err)
	assert.False(t, executed, "handler must not run on unparseable arguments")

	msgs := session.Messages()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[2].Content, "Error: Invalid JSON arguments")
}

func TestHandleMessageIterationLimit(t *testing.T) {
	// Model asks for a tool on every round, forever.
	llm := &mockLLM{responses: []domain.ChatResponse{
		toolCallResponse("call-1", "loop", `{}`),
	}}
	tools := &mockToolExecutor{tools: map[string]domain.Tool{
		"loop": &mockTool{name: "loop", fn: func(context.Context, json.RawMessage) (*domain.ToolResult, error) {
			return &domain.ToolResult{Content: "again"}, nil
		}},
	}}
	agent := newTestAgent(llm, func(d *AgentDeps) {
		d.Tools = tools
		d.MaxIterations = 3
	})
	session := NewSession("tester")

	reply, err := agent.HandleMessage(context.Background(), session, "go")
	require.NoError(t, err, "hitting the cap in blocking mode is a normal termination")
	assert.Equal(t, "(tool execution limit reached - please try a simpler request)", reply)
	assert.Equal(t, 3, llm.callCount(), "no upstream request beyond the cap")
}

func TestHandleMessageLLMError(t *testing.T) {
	llm := &mockLLM{errs: []error{fmt.Errorf("boom: %w", domain.ErrProviderError)}}
	bus := &recordingBus{}
	agent := newTestAgent(llm, func(d *AgentDeps) { d.Bus = bus })
	session := NewSession("tester")

	_, err := agent.HandleMessage(context.Background(), session, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderError)
	assert.Len(t, bus.ofType(domain.EventAgentError), 1)
}

func TestHandleMessageUsageAccumulates(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{
		toolCallResponse("call-1", "echo", `{}`),
		textResponse("done"),
	}}
	tools := &mockToolExecutor{tools: map[string]domain.Tool{
		"echo": &mockTool{name: "echo", fn: func(context.Context, json.RawMessage) (*domain.ToolResult, error) {
			return &domain.ToolResult{Content: "ok"}, nil
		}},
	}}
	usage := NewUsageTracker()
	agent := newTestAgent(llm, func(d *AgentDeps) {
		d.Tools = tools
		d.Usage = usage
	})
	session := NewSession("tester")

	_, err := agent.HandleMessage(context.Background(), session, "go")
	require.NoError(t, err)

	total := usage.Total()
	assert.Equal(t, 30, total.PromptTokens)
	assert.Equal(t, 15, total.CompletionTokens)
	assert.Equal(t, 45, total.TotalTokens)
	assert.Equal(t, 15, usage.Last().TotalTokens)
}

func TestHandleMessageUsageEstimatedWhenAbsent(t *testing.T) {
	// Response with no usage stats at all.
	llm := &mockLLM{responses: []domain.ChatResponse{
		{Message: domain.Message{Role: domain.RoleAssistant, Content: "reply"}},
	}}
	usage := NewUsageTracker()
	agent := newTestAgent(llm, func(d *AgentDeps) {
		d.Usage = usage
		d.ContextBuilder.SetTokenCounter(fixedCounter{perMessage: 7})
	})
	session := NewSession("tester")

	_, err := agent.HandleMessage(context.Background(), session, "hello")
	require.NoError(t, err)

	// Prompt = system + user message at 7 tokens each; completion = reply.
	total := usage.Total()
	assert.Equal(t, 14, total.PromptTokens)
	assert.Equal(t, 7, total.CompletionTokens)
	assert.Equal(t, 21, total.TotalTokens)
}

func TestHandleMessageUsageEstimateSkippedWithoutCounter(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{
		{Message: domain.Message{Role: domain.RoleAssistant, Content: "reply"}},
	}}
	usage := NewUsageTracker()
	agent := newTestAgent(llm, func(d *AgentDeps) { d.Usage = usage })
	session := NewSession("tester")

	_, err := agent.HandleMessage(context.Background(), session, "hello")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Total().TotalTokens)
}

func TestHandleMessageToolEventOrdering(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{
		{
			Message: domain.Message{
				Role: domain.RoleAssistant,
				ToolCalls: []domain.ToolCall{
					{ID: "c1", Name: "first", Arguments: json.RawMessage(`{}`)},
					{ID: "c2", Name: "second", Arguments: json.RawMessage(`{}`)},
				},
			},
		},
		textResponse("done"),
	}}
	tools := &mockToolExecutor{tools: map[string]domain.Tool{
		"first": &mockTool{name: "first", fn: func(context.Context, json.RawMessage) (*domain.ToolResult, error) {
			return &domain.ToolResult{Content: "1"}, nil
		}},
		"second": &mockTool{name: "second", fn: func(context.Context, json.RawMessage) (*domain.ToolResult, error) {
			return &domain.ToolResult{Content: "2"}, nil
		}},
	}}
	bus := &recordingBus{}
	agent := newTestAgent(llm, func(d *AgentDeps) {
		d.Tools = tools
		d.Bus = bus
	})
	session := NewSession("tester")

	_, err := agent.HandleMessage(context.Background(), session, "go")
	require.NoError(t, err)

	// Lifecycle events for the second call never precede completion of the
	// first.
	var lifecycle []string
	for _, e := range bus.events {
		switch e.Type {
		case domain.EventToolCallStarted:
			var p domain.ToolStartPayload
			require.NoError(t, json.Unmarshal(e.Payload, &p))
			lifecycle = append(lifecycle, "start:"+p.Tool)
		case domain.EventToolCallCompleted:
			var p domain.ToolResultPayload
			require.NoError(t, json.Unmarshal(e.Payload, &p))
			lifecycle = append(lifecycle, "done:"+p.Tool)
		}
	}
	assert.Equal(t, []string{"start:first", "done:first", "start:second", "done:second"}, lifecycle)
}

func TestHandleMessageCancelledBeforeStart(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{textResponse("never")}}
	agent := newTestAgent(llm)
	session := NewSession("tester")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agent.HandleMessage(ctx, session, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, llm.callCount())
}

func TestSessionLockSerializesTurns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	llm := &mockLLM{responses: []domain.ChatResponse{
		toolCallResponse("c1", "slow", `{}`),
		textResponse("first done"),
	}}
	tools := &mockToolExecutor{tools: map[string]domain.Tool{
		"slow": &mockTool{name: "slow", fn: func(context.Context, json.RawMessage) (*domain.ToolResult, error) {
			close(started)
			<-release
			return &domain.ToolResult{Content: "ok"}, nil
		}},
	}}
	locker := NewSessionLocker()
	agent := newTestAgent(llm, func(d *AgentDeps) {
		d.Tools = tools
		d.SessionLocker = locker
	})
	session := NewSession("tester")

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = agent.HandleMessage(context.Background(), session, "one")
	}()
	<-started

	// A second turn on the same session must not acquire the lock while the
	// first is running.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := agent.HandleMessage(ctx, session, "two")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-firstDone
}
