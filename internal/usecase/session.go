package usecase

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"agentforge/internal/domain"
)

// Session holds the ordered message log for one conversation. Exactly one
// loop owns a session at a time; the SessionLocker enforces that across
// concurrent callers.
type Session struct {
	mu        sync.RWMutex
	ID        string           `json:"id"`         // ULID (internal, globally unique)
	AgentName string           `json:"agent_name"` // owning agent record
	Msgs      []domain.Message `json:"messages"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewSession creates a new empty session with a generated ULID.
func NewSession(agentName string) *Session {
	now := time.Now()
	return &Session{
		ID:        generateULID(now),
		AgentName: agentName,
		Msgs:      make([]domain.Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// AddMessage appends a message and updates the timestamp (thread-safe).
func (s *Session) AddMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Msgs = append(s.Msgs, msg)
	s.UpdatedAt = time.Now()
}

// Messages returns a copy of the message history (thread-safe).
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]domain.Message, len(s.Msgs))
	copy(cp, s.Msgs)
	return cp
}

// Clear drops the entire message history.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Msgs = s.Msgs[:0]
	s.UpdatedAt = time.Now()
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Msgs)
}

// SeedHistory loads persisted history entries as user/assistant messages.
// Called once at session start, before the first turn.
func (s *Session) SeedHistory(entries []domain.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		role := domain.RoleAssistant
		if e.Role == domain.RoleUser {
			role = domain.RoleUser
		}
		s.Msgs = append(s.Msgs, domain.Message{
			Role:      role,
			Content:   e.Content,
			Timestamp: time.Now(),
		})
	}
}

// HistoryEntries converts the session log back to the persisted envelope.
// Tool-role messages and assistant tool-call scaffolding are transcript
// detail, not conversation turns, and are not persisted.
func (s *Session) HistoryEntries() []domain.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.HistoryEntry, 0, len(s.Msgs))
	for _, m := range s.Msgs {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		if m.Role == domain.RoleAssistant && len(m.ToolCalls) > 0 && m.Content == "" {
			continue
		}
		entries = append(entries, domain.HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return entries
}
