package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when no live record exists for an id.
var ErrNotFound = errors.New("session not found")

// User is the normalized identity stored in a session and handed to
// protected resources.
type User struct {
	Sub               string `json:"sub"`
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// Record is the server-side state of one browser session. Tokens never
// leave the server; only User is ever rendered to the browser.
type Record struct {
	ID string `json:"-"`

	IsAuthenticated bool   `json:"is_authenticated"`
	User            *User  `json:"user,omitempty"`
	AccessToken     string `json:"access_token,omitempty"`
	IDToken         string `json:"id_token,omitempty"`
	RefreshToken    string `json:"refresh_token,omitempty"`

	// In-flight login attempt. Cleared once the callback consumes it.
	PendingState          string    `json:"pending_state,omitempty"`
	PendingStateCreatedAt time.Time `json:"pending_state_created_at,omitempty"`
	PendingVerifier       string    `json:"pending_verifier,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HasPendingState reports whether a login attempt is waiting for its callback.
func (r *Record) HasPendingState() bool {
	return r.PendingState != ""
}

// ClearPending drops the in-flight login attempt.
func (r *Record) ClearPending() {
	r.PendingState = ""
	r.PendingStateCreatedAt = time.Time{}
	r.PendingVerifier = ""
}

// ClearAuth returns the record to the anonymous state.
func (r *Record) ClearAuth() {
	r.IsAuthenticated = false
	r.User = nil
	r.AccessToken = ""
	r.IDToken = ""
	r.RefreshToken = ""
}

// Expired reports whether the record outlived its lifetime.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Clone returns a deep copy, so stores never share memory with callers.
func (r *Record) Clone() *Record {
	c := *r
	if r.User != nil {
		u := *r.User
		c.User = &u
	}
	return &c
}

// Store persists session records keyed by session id.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns ErrNotFound for unknown or expired ids.
	Get(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
}

// Pruner is implemented by stores that need expired records removed
// periodically. Stores with native expiry (redis) don't implement it.
type Pruner interface {
	Prune(ctx context.Context, now time.Time) (int, error)
}
