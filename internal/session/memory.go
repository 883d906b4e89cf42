package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Sessions are lost on restart
// and are not visible to other replicas.
type MemoryStore struct {
	sessions sync.Map // map[sessionID]*Record
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Get retrieves a session by ID
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	val, ok := s.sessions.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	rec := val.(*Record)

	// Check if expired
	if rec.Expired(s.now()) {
		s.sessions.Delete(id)
		return nil, ErrNotFound
	}

	out := rec.Clone()
	out.ID = id
	return out, nil
}

// Save creates or replaces a session
func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	s.sessions.Store(rec.ID, rec.Clone())
	return nil
}

// Delete removes a session
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.sessions.Delete(id)
	return nil
}

// Prune removes expired sessions and returns how many were dropped.
func (s *MemoryStore) Prune(_ context.Context, now time.Time) (int, error) {
	n := 0
	s.sessions.Range(func(key, value any) bool {
		if value.(*Record).Expired(now) {
			s.sessions.Delete(key)
			n++
		}
		return true
	})
	return n, nil
}

// RunPruner calls Prune every interval until ctx is done.
func RunPruner(ctx context.Context, p Pruner, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			n, err := p.Prune(ctx, now)
			if err != nil {
				logger.Warn("session prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("pruned expired sessions", "count", n)
			}
		}
	}
}
