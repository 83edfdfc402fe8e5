package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventMessageReceived   EventType = "message.received"
	EventMessageSent       EventType = "message.sent"
	EventToolCallStarted   EventType = "tool.call.started"
	EventToolCallCompleted EventType = "tool.call.completed"
	EventLLMCallStarted    EventType = "llm.call.started"
	EventLLMCallCompleted  EventType = "llm.call.completed"
	EventStreamStarted     EventType = "stream.started"
	EventStreamDelta       EventType = "stream.delta"
	EventStreamCompleted   EventType = "stream.completed"
	EventStreamError       EventType = "stream.error"
	EventSessionCreated    EventType = "session.created"
	EventSessionCleared    EventType = "session.cleared"
	EventAgentError        EventType = "agent.error"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
// Publish delivers events to each subscriber in publish order; handlers
// must not block.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close prevents new publishes.
	Close()
}
