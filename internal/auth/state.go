package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"todo-backend/internal/session"

	"golang.org/x/oauth2"
)

// DefaultStateTTL is how long a login attempt stays valid.
const DefaultStateTTL = 10 * time.Minute

// stateBytes is the amount of randomness in a state token.
const stateBytes = 32

// StateBackend stores login attempts keyed by session id.
// Implementations must be safe for concurrent use.
type StateBackend interface {
	Save(ctx context.Context, key string, a Attempt) error
	Get(ctx context.Context, key string) (Attempt, bool, error)
	// Delete reports whether this call removed the entry. Only one of several
	// concurrent callers may observe true. A removed attempt is remembered as
	// consumed until it would have expired.
	Delete(ctx context.Context, key string) (bool, error)
	// Consumed reports whether the attempt for key carrying state was removed
	// by an earlier Delete.
	Consumed(ctx context.Context, key, state string) (bool, error)
	// Sweep drops entries older than ttl and returns how many went.
	Sweep(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
	Name() string
}

// Outcome is the result of a state token validation.
type Outcome int

const (
	OutcomeMissing Outcome = iota
	OutcomeMismatch
	OutcomeExpired
	OutcomeValidFromSession
	OutcomeValidFromMemory
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValidFromSession:
		return "session"
	case OutcomeValidFromMemory:
		return "memory"
	case OutcomeExpired:
		return "expired"
	case OutcomeMismatch:
		return "mismatch"
	default:
		return "missing"
	}
}

// Valid reports whether the outcome lets the callback proceed.
func (o Outcome) Valid() bool {
	return o == OutcomeValidFromSession || o == OutcomeValidFromMemory
}

// TokenStore issues and checks CSRF state tokens against two views of the
// same attempt: the session record, which every replica can read, and the
// backend, which may be process-local. The session record wins when it has
// an attempt.
type TokenStore struct {
	backend StateBackend
	ttl     time.Duration
	pkce    bool
	now     func() time.Time
	logger  *slog.Logger
}

// TokenStoreOption configures a TokenStore.
type TokenStoreOption func(*TokenStore)

// WithTTL overrides DefaultStateTTL.
func WithTTL(ttl time.Duration) TokenStoreOption {
	return func(s *TokenStore) { s.ttl = ttl }
}

// WithPKCE makes Issue attach a PKCE code verifier to every attempt.
func WithPKCE(enabled bool) TokenStoreOption {
	return func(s *TokenStore) { s.pkce = enabled }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) { s.now = now }
}

// NewTokenStore creates a token store over backend.
func NewTokenStore(backend StateBackend, logger *slog.Logger, opts ...TokenStoreOption) *TokenStore {
	s := &TokenStore{
		backend: backend,
		ttl:     DefaultStateTTL,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the attempt lifetime.
func (s *TokenStore) TTL() time.Duration {
	return s.ttl
}

// Backend returns the backend name.
func (s *TokenStore) Backend() string {
	return s.backend.Name()
}

// Issue creates a fresh attempt and records it in the backend under key.
// The caller writes the same attempt into the session record.
func (s *TokenStore) Issue(ctx context.Context, key string) (Attempt, error) {
	state, err := newStateToken()
	if err != nil {
		return Attempt{}, err
	}
	a := Attempt{State: state, CreatedAt: s.now()}
	if s.pkce {
		a.CodeVerifier = oauth2.GenerateVerifier()
	}
	if err := s.backend.Save(ctx, key, a); err != nil {
		return Attempt{}, fmt.Errorf("store state: %w", err)
	}
	return a, nil
}

// Validate checks candidate against the attempt pending for key. The session
// record is consulted first; the backend only when the record has no attempt.
// On a valid outcome the matching attempt is returned.
func (s *TokenStore) Validate(ctx context.Context, key, candidate string, rec *session.Record) (Attempt, Outcome, error) {
	now := s.now()

	if rec != nil && rec.HasPendingState() {
		a := Attempt{
			State:        rec.PendingState,
			CodeVerifier: rec.PendingVerifier,
			CreatedAt:    rec.PendingStateCreatedAt,
		}
		switch {
		case !tokensEqual(a.State, candidate):
			return Attempt{}, OutcomeMismatch, nil
		case a.Expired(now, s.ttl):
			return Attempt{}, OutcomeExpired, nil
		default:
			return a, OutcomeValidFromSession, nil
		}
	}

	a, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return Attempt{}, OutcomeMissing, fmt.Errorf("load state: %w", err)
	}
	switch {
	case !ok:
		return Attempt{}, OutcomeMissing, nil
	case !tokensEqual(a.State, candidate):
		return Attempt{}, OutcomeMismatch, nil
	case a.Expired(now, s.ttl):
		return Attempt{}, OutcomeExpired, nil
	default:
		return a, OutcomeValidFromMemory, nil
	}
}

// Consume removes the attempt from both views. It is idempotent; the result
// reports whether this call removed the backend entry.
func (s *TokenStore) Consume(ctx context.Context, key string, rec *session.Record) (bool, error) {
	if rec != nil {
		rec.ClearPending()
	}
	removed, err := s.backend.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("delete state: %w", err)
	}
	return removed, nil
}

// Replayed reports whether the attempt for key carrying candidate was already
// consumed through this backend. A false result with a false Consume means the
// backend never held the attempt.
func (s *TokenStore) Replayed(ctx context.Context, key, candidate string) (bool, error) {
	used, err := s.backend.Consumed(ctx, key, candidate)
	if err != nil {
		return false, fmt.Errorf("check state: %w", err)
	}
	return used, nil
}

// Sweep drops expired attempts from the backend.
func (s *TokenStore) Sweep(ctx context.Context) (int, error) {
	return s.backend.Sweep(ctx, s.now(), s.ttl)
}

// RunSweeper sweeps every interval until ctx is done.
func (s *TokenStore) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Warn("state sweep failed", "backend", s.backend.Name(), "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("swept expired login states", "count", n)
			}
		}
	}
}

func newStateToken() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func tokensEqual(a, b string) bool {
	return a != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
