package auth

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	attempt  Attempt
	consumed bool
}

// MemoryStateBackend keeps login attempts in process memory.
// Not shared between replicas: a callback served by another instance will
// not find the attempt here.
type MemoryStateBackend struct {
	mu     sync.Mutex
	states map[string]memoryEntry // sessionID -> attempt
}

// NewMemoryStateBackend creates an empty in-memory backend.
func NewMemoryStateBackend() *MemoryStateBackend {
	return &MemoryStateBackend{states: make(map[string]memoryEntry)}
}

func (b *MemoryStateBackend) Name() string { return "memory" }

// Save stores the attempt, replacing any earlier one for key.
func (b *MemoryStateBackend) Save(_ context.Context, key string, a Attempt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[key] = memoryEntry{attempt: a}
	return nil
}

func (b *MemoryStateBackend) Get(_ context.Context, key string) (Attempt, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.states[key]
	if !ok || e.consumed {
		return Attempt{}, false, nil
	}
	return e.attempt, true, nil
}

// Delete marks the attempt consumed. The marker stays until Sweep drops it.
func (b *MemoryStateBackend) Delete(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.states[key]
	if !ok || e.consumed {
		return false, nil
	}
	e.consumed = true
	b.states[key] = e
	return true, nil
}

func (b *MemoryStateBackend) Consumed(_ context.Context, key, state string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.states[key]
	return ok && e.consumed && tokensEqual(e.attempt.State, state), nil
}

func (b *MemoryStateBackend) Sweep(_ context.Context, now time.Time, ttl time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for key, e := range b.states {
		if e.attempt.Expired(now, ttl) {
			delete(b.states, key)
			if !e.consumed {
				n++
			}
		}
	}
	return n, nil
}

// Len returns the number of attempts still waiting for a callback.
func (b *MemoryStateBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.states {
		if !e.consumed {
			n++
		}
	}
	return n
}
