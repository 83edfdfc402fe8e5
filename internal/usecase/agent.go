package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"agentforge/internal/domain"
	"agentforge/internal/infra/tracer"
)

// iterationLimitNotice is returned as the turn result when the loop hits its
// iteration cap in blocking mode. Hitting the cap is a normal termination.
const iterationLimitNotice = "(tool execution limit reached - please try a simpler request)"

// AgentDeps holds injected dependencies for the agent loop.
type AgentDeps struct {
	LLM            domain.LLMProvider
	Tools          domain.ToolExecutor
	ContextBuilder *ContextBuilder
	Logger         *slog.Logger
	MaxIterations  int
	Bus            domain.EventBus // optional, nil = no events
	SessionLocker  *SessionLocker  // optional, nil = no session locking
	Usage          *UsageTracker   // optional, nil = no usage tracking
}

// Agent orchestrates the multi-turn tool-calling loop.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 10
	}
	return &Agent{deps: deps}
}

// HandleMessage processes a single user message through the blocking loop.
// The returned string is the model's terminal text for the turn.
func (a *Agent) HandleMessage(ctx context.Context, session *Session, userMsg string) (string, error) {
	return a.handleInner(ctx, session, userMsg, nil)
}

// HandleMessageStream processes a user message with token-by-token streaming.
// Text deltas are published as EventStreamDelta events in arrival order. If
// the LLM provider does not implement StreamingLLMProvider, it falls back to
// HandleMessage and emits a single EventStreamCompleted with the full response.
func (a *Agent) HandleMessageStream(ctx context.Context, session *Session, userMsg string) (string, error) {
	sp, canStream := a.deps.LLM.(domain.StreamingLLMProvider)
	if !canStream {
		result, err := a.HandleMessage(ctx, session, userMsg)
		if err == nil {
			a.publishEvent(ctx, domain.EventStreamCompleted, session.ID, domain.StreamCompletedPayload{
				Content: result,
			})
		}
		return result, err
	}
	return a.handleInner(ctx, session, userMsg, sp)
}

// handleInner is the shared loop for both blocking and streaming modes.
// When sp is non-nil, each round streams via ChatStream; when sp is nil, it
// uses synchronous Chat. The state machine is identical either way: a model
// round either ends the turn with text or yields tool calls to execute.
func (a *Agent) handleInner(ctx context.Context, session *Session, userMsg string, sp domain.StreamingLLMProvider) (string, error) {
	streaming := sp != nil

	spanName := "agent.handle_message"
	opName := "Agent.HandleMessage"
	if streaming {
		spanName = "agent.handle_message_stream"
		opName = "Agent.HandleMessageStream"
	}

	ctx, span := tracer.StartSpan(ctx, spanName)
	defer span.End()

	if a.deps.SessionLocker != nil {
		unlock, lockErr := a.deps.SessionLocker.Lock(ctx, session.ID)
		if lockErr != nil {
			return "", domain.NewDomainError(opName, lockErr, "session lock")
		}
		defer unlock()
	}

	ctx = domain.ContextWithSessionID(ctx, session.ID)

	session.AddMessage(domain.Message{
		Role:      domain.RoleUser,
		Content:   userMsg,
		Timestamp: time.Now(),
	})
	a.publishEvent(ctx, domain.EventMessageReceived, session.ID, nil)

	if streaming {
		a.publishEvent(ctx, domain.EventStreamStarted, session.ID, nil)
	}

	var totalUsage domain.Usage

	for i := 0; i < a.deps.MaxIterations; i++ {
		// Cancellation stops further upstream requests. In-flight tool
		// executions have already been awaited or abandoned by this point.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		span.AddEvent("agent.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		chatReq := a.deps.ContextBuilder.Build(session.Messages(), a.deps.Tools.Schemas())

		a.publishEvent(ctx, domain.EventLLMCallStarted, session.ID, nil)
		msg, usage, llmErr := a.callLLM(ctx, session, chatReq, sp, i)
		if llmErr != nil {
			if streaming {
				a.publishEvent(ctx, domain.EventStreamError, session.ID, domain.StreamErrorPayload{
					Error:       llmErr.Error(),
					Recoverable: true,
				})
			}
			a.publishEvent(ctx, domain.EventAgentError, session.ID, map[string]string{"error": llmErr.Error()})
			tracer.RecordError(span, llmErr)
			return "", llmErr
		}
		a.publishEvent(ctx, domain.EventLLMCallCompleted, session.ID, nil)

		// Some providers omit usage stats, streaming backends in particular.
		// Estimate with the token counter so usage surfaces (get_context_info,
		// the /usage command) never read zero after a real round.
		if usage.TotalTokens == 0 {
			prompt := a.deps.ContextBuilder.EstimateTokens(chatReq)
			completion := a.deps.ContextBuilder.CountTokens(msg.Content)
			if prompt+completion > 0 {
				usage = domain.Usage{
					PromptTokens:     prompt,
					CompletionTokens: completion,
					TotalTokens:      prompt + completion,
				}
			}
		}

		totalUsage.Add(usage)
		if a.deps.Usage != nil {
			a.deps.Usage.Record(usage)
		}

		session.AddMessage(msg)

		a.deps.Logger.Debug("llm response",
			"iteration", i,
			"streaming", streaming,
			"tool_calls", len(msg.ToolCalls),
			"tokens", usage.TotalTokens,
		)

		// No tool calls = terminal text, turn is over.
		if len(msg.ToolCalls) == 0 {
			if streaming {
				a.publishEvent(ctx, domain.EventStreamCompleted, session.ID, domain.StreamCompletedPayload{
					Content: msg.Content,
					Usage:   &totalUsage,
				})
			}
			a.publishEvent(ctx, domain.EventMessageSent, session.ID, nil)
			tracer.SetOK(span)
			return msg.Content, nil
		}

		// Execute tool calls sequentially in emission order. Lifecycle events
		// for call N+1 never precede the completion event of call N.
		for _, call := range msg.ToolCalls {
			toolMsg, finished := a.executeToolCall(ctx, session.ID, call)
			if !finished {
				// Cancelled mid-execution: the handler finishes on its own
				// goroutine and its result is discarded.
				return "", ctx.Err()
			}
			session.AddMessage(toolMsg)
		}
	}

	if streaming {
		a.publishEvent(ctx, domain.EventStreamError, session.ID, domain.StreamErrorPayload{
			Error:       fmt.Sprintf("Tool execution limit reached (%d iterations)", a.deps.MaxIterations),
			Recoverable: false,
		})
		tracer.RecordError(span, domain.ErrMaxIterations)
		return "", domain.NewDomainError(opName, domain.ErrMaxIterations, "")
	}

	tracer.SetOK(span)
	return iterationLimitNotice, nil
}

// callLLM performs one model round: a single upstream request with no
// automatic retries. When sp is non-nil it streams and accumulates deltas.
func (a *Agent) callLLM(
	ctx context.Context,
	session *Session,
	chatReq domain.ChatRequest,
	sp domain.StreamingLLMProvider,
	iteration int,
) (domain.Message, domain.Usage, error) {
	if sp == nil {
		llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_call")
		resp, err := a.deps.LLM.Chat(llmCtx, chatReq)
		llmSpan.End()
		if err != nil {
			return domain.Message{}, domain.Usage{}, err
		}
		return resp.Message, resp.Usage, nil
	}

	llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_stream")
	deltaCh, err := sp.ChatStream(llmCtx, chatReq)
	llmSpan.End()
	if err != nil {
		return domain.Message{}, domain.Usage{}, err
	}

	acc := newStreamAccumulator()
	for delta := range deltaCh {
		if delta.Err != nil {
			return domain.Message{}, domain.Usage{}, delta.Err
		}
		acc.addDelta(delta)
		// Forward text immediately, never buffered to turn end. Tool-call
		// fragments stay in the accumulator until the terminal marker.
		if delta.Content != "" {
			a.publishEvent(ctx, domain.EventStreamDelta, session.ID, domain.StreamDeltaPayload{
				Content:   delta.Content,
				Iteration: iteration,
			})
		}
	}
	msg, usage := acc.build()
	return msg, usage, nil
}

// executeToolCall runs one tool call and returns its transcript message.
// Argument parse failures, unknown tools, and handler errors are recovered:
// the error text becomes the call's result so the model can self-correct.
// finished is false only when ctx was cancelled before the handler returned;
// the result is then discarded.
func (a *Agent) executeToolCall(ctx context.Context, sessionID string, call domain.ToolCall) (msg domain.Message, finished bool) {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	// Parse the argument text up front: malformed JSON is rejected before
	// dispatch, and the parsed map feeds the display-argument event payload.
	// The executor receives the raw text; tools own their argument contract.
	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			content := fmt.Sprintf("Error: Invalid JSON arguments: %v", err)
			tracer.RecordError(span, err)
			a.publishToolEvents(ctx, sessionID, call.Name, nil, content, false)
			return a.toolMessage(call, content), true
		}
	}

	a.publishEvent(ctx, domain.EventToolCallStarted, sessionID, domain.ToolStartPayload{
		Tool:      call.Name,
		Arguments: displayArgs(args),
	})

	tool, err := a.deps.Tools.Get(call.Name)
	if err != nil {
		content := fmt.Sprintf("Error: Tool '%s' not found", call.Name)
		tracer.RecordError(span, err)
		a.publishEvent(ctx, domain.EventToolCallCompleted, sessionID, domain.ToolResultPayload{
			Tool: call.Name, Result: content, Success: false,
		})
		return a.toolMessage(call, content), true
	}

	// Run the handler body off the loop goroutine. On cancellation the
	// handler finishes on its own and the outcome is dropped.
	resCh := make(chan *domain.ToolResult, 1)
	errCh := make(chan error, 1)
	go func() {
		result, execErr := tool.Execute(ctx, call.Arguments)
		if execErr != nil {
			errCh <- execErr
			return
		}
		resCh <- result
	}()

	var content string
	success := true
	select {
	case result := <-resCh:
		content = result.Content
		success = !result.IsError
	case execErr := <-errCh:
		content = execErr.Error()
		success = false
		tracer.RecordError(span, execErr)
	case <-ctx.Done():
		return domain.Message{}, false
	}

	a.publishEvent(ctx, domain.EventToolCallCompleted, sessionID, domain.ToolResultPayload{
		Tool: call.Name, Result: content, Success: success,
	})
	if success {
		tracer.SetOK(span)
	}
	return a.toolMessage(call, content), true
}

// toolMessage builds the tool-role transcript message for a call's result.
func (a *Agent) toolMessage(call domain.ToolCall, content string) domain.Message {
	return domain.Message{
		Role:    domain.RoleTool,
		Name:    call.Name,
		Content: content,
		ToolCalls: []domain.ToolCall{{
			ID:   call.ID,
			Name: call.Name,
		}},
		Timestamp: time.Now(),
	}
}

// publishToolEvents emits the started/completed pair for calls that fail
// before dispatch (argument parse errors).
func (a *Agent) publishToolEvents(ctx context.Context, sessionID, tool string, args map[string]any, result string, success bool) {
	a.publishEvent(ctx, domain.EventToolCallStarted, sessionID, domain.ToolStartPayload{Tool: tool, Arguments: args})
	a.publishEvent(ctx, domain.EventToolCallCompleted, sessionID, domain.ToolResultPayload{Tool: tool, Result: result, Success: success})
}

// displayArgs strips injected parameters (leading underscore) from the
// client-facing argument view.
func displayArgs(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}

// publishEvent publishes a domain event on the bus if it is configured.
func (a *Agent) publishEvent(ctx context.Context, eventType domain.EventType, sessionID string, payload any) {
	if a.deps.Bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			a.deps.Logger.Warn("event payload marshal failed", "event", string(eventType), "error", err)
			return
		}
		raw = data
	}
	a.deps.Bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Payload:   raw,
	})
}

// maxAccumulatedToolCalls bounds the number of tool call slots the
// accumulator will track. Fragments with indices beyond the bound are
// dropped to prevent memory exhaustion from malformed streams.
const maxAccumulatedToolCalls = 50

// streamAccumulator collects incremental deltas into a complete message.
// Tool-call fragments are keyed by their wire index, never arrival order.
type streamAccumulator struct {
	content   strings.Builder
	calls     map[int]*pendingToolCall
	lastIndex int
	usage     domain.Usage
}

type pendingToolCall struct {
	id   string
	name strings.Builder
	args strings.Builder
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{
		calls:     make(map[int]*pendingToolCall),
		lastIndex: 0,
	}
}

// addDelta merges a single streaming delta into the accumulator.
// A fragment without an index continues the most recently seen call, which
// matches providers that only stamp the index on a call's first fragment.
func (acc *streamAccumulator) addDelta(delta domain.StreamDelta) {
	acc.content.WriteString(delta.Content)

	for _, tc := range delta.ToolCalls {
		idx := tc.Index
		if idx < 0 {
			idx = acc.lastIndex
		}
		if idx >= maxAccumulatedToolCalls {
			continue
		}
		acc.lastIndex = idx

		pending, ok := acc.calls[idx]
		if !ok {
			pending = &pendingToolCall{}
			acc.calls[idx] = pending
		}
		if tc.ID != "" {
			pending.id = tc.ID
		}
		pending.name.WriteString(tc.Name)
		pending.args.WriteString(tc.Arguments)
	}

	if delta.Usage != nil {
		acc.usage = *delta.Usage
	}
}

// build returns the accumulated message and usage. Tool calls are ordered by
// index. The argument text is carried raw; it is parsed once, at dispatch.
func (acc *streamAccumulator) build() (domain.Message, domain.Usage) {
	indices := make([]int, 0, len(acc.calls))
	for idx := range acc.calls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var toolCalls []domain.ToolCall
	for _, idx := range indices {
		pending := acc.calls[idx]
		toolCalls = append(toolCalls, domain.ToolCall{
			ID:        pending.id,
			Name:      pending.name.String(),
			Arguments: json.RawMessage(pending.args.String()),
		})
	}

	msg := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   acc.content.String(),
		ToolCalls: toolCalls,
		Timestamp: time.Now(),
	}
	return msg, acc.usage
}
