package usecase

import (
	"sync"

	"agentforge/internal/domain"
)

// UsageTracker accumulates token usage across model rounds. The gateway and
// CLI read it after a turn; the context info tool reads it mid-turn.
type UsageTracker struct {
	mu    sync.Mutex
	total domain.Usage
	last  domain.Usage
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

// Record adds one model round's usage to the running total.
func (t *UsageTracker) Record(u domain.Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total.Add(u)
	t.last = u
}

// Total returns the accumulated usage since creation or the last Reset.
func (t *UsageTracker) Total() domain.Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Last returns the usage of the most recent model round.
func (t *UsageTracker) Last() domain.Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Reset clears the accumulated totals.
func (t *UsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = domain.Usage{}
	t.last = domain.Usage{}
}
