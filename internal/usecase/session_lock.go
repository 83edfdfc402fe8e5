package usecase

import (
	"context"
	"fmt"
	"sync"
)

// SessionLocker serializes turns per session. A new user message cannot start
// processing while a prior turn on the same session is still running.
type SessionLocker struct {
	mu    sync.Mutex
	locks map[string]*sessionMutex
}

type sessionMutex struct {
	mu       sync.Mutex
	refCount int
}

// NewSessionLocker creates a new session locker.
func NewSessionLocker() *SessionLocker {
	return &SessionLocker{
		locks: make(map[string]*sessionMutex),
	}
}

// Lock acquires the lock for the given session ID. It blocks until the
// lock is acquired or the context is cancelled. Returns an unlock function
// that MUST be called when the turn is complete.
func (sl *SessionLocker) Lock(ctx context.Context, sessionID string) (unlock func(), err error) {
	sl.mu.Lock()
	sm, ok := sl.locks[sessionID]
	if !ok {
		sm = &sessionMutex{}
		sl.locks[sessionID] = sm
	}
	sm.refCount++
	sl.mu.Unlock()

	release := func() {
		sm.mu.Unlock()
		sl.mu.Lock()
		sm.refCount--
		if sm.refCount == 0 {
			delete(sl.locks, sessionID)
		}
		sl.mu.Unlock()
	}

	acquired := make(chan struct{})
	go func() {
		sm.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return release, nil

	case <-ctx.Done():
		// The acquiring goroutine may still win the mutex later; release it
		// as soon as that happens so the session is not locked forever.
		go func() {
			<-acquired
			release()
		}()
		return nil, fmt.Errorf("session lock: %w", ctx.Err())
	}
}

// ActiveCount returns the number of sessions with active or pending locks.
// Intended for testing.
func (sl *SessionLocker) ActiveCount() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.locks)
}
