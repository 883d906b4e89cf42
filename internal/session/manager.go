package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

// CookieOptions controls the session cookie. Cross-site identity provider
// redirects need SameSite=None together with Secure.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// Manager binds session records to browsers through a signed cookie that
// carries only the session id.
type Manager struct {
	store Store
	codec *securecookie.SecureCookie
	opts  CookieOptions
	now   func() time.Time
}

// NewManager creates a session manager. secret signs the cookie value.
func NewManager(store Store, secret []byte, opts CookieOptions) *Manager {
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	codec := securecookie.New(secret, nil)
	codec.MaxAge(int(opts.MaxAge.Seconds()))
	return &Manager{
		store: store,
		codec: codec,
		opts:  opts,
		now:   time.Now,
	}
}

// Start loads the session named by the request cookie, or begins a new one.
// A new session is not persisted and no cookie is sent until Save is called.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request) (*Session, error) {
	id, ok := m.readCookie(r)
	if ok {
		rec, err := m.store.Get(r.Context(), id)
		switch {
		case err == nil:
			return &Session{Record: rec, manager: m, w: w}, nil
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("load session: %w", err)
		}
	} else {
		id = uuid.NewString()
	}

	// A signed cookie whose record is gone keeps its id, so a login attempt
	// held in the state backend under that id still resolves.
	now := m.now()
	rec := &Record{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(m.opts.MaxAge),
	}
	return &Session{Record: rec, manager: m, w: w, isNew: true}, nil
}

func (m *Manager) readCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.opts.Name)
	if err != nil {
		return "", false
	}
	var id string
	if err := m.codec.Decode(m.opts.Name, c.Value, &id); err != nil || id == "" {
		return "", false
	}
	return id, true
}

func (m *Manager) writeCookie(w http.ResponseWriter, id string) error {
	value, err := m.codec.Encode(m.opts.Name, id)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.Name,
		Value:    value,
		Path:     m.opts.Path,
		Domain:   m.opts.Domain,
		Secure:   m.opts.Secure,
		HttpOnly: m.opts.HTTPOnly,
		SameSite: m.opts.SameSite,
		MaxAge:   int(m.opts.MaxAge.Seconds()),
		Expires:  m.now().Add(m.opts.MaxAge),
	})
	return nil
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.Name,
		Value:    "",
		Path:     m.opts.Path,
		Domain:   m.opts.Domain,
		Secure:   m.opts.Secure,
		HttpOnly: m.opts.HTTPOnly,
		SameSite: m.opts.SameSite,
		MaxAge:   -1,
	})
}

// Session is one request's handle on a session record.
type Session struct {
	*Record

	manager *Manager
	w       http.ResponseWriter
	isNew   bool
}

// IsNew reports whether the session was created by this request.
func (s *Session) IsNew() bool {
	return s.isNew
}

// Save persists the record and sets the session cookie on the response.
// It must run before anything writes the response status.
func (s *Session) Save(ctx context.Context) error {
	if err := s.manager.store.Save(ctx, s.Record); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := s.manager.writeCookie(s.w, s.ID); err != nil {
		return err
	}
	s.isNew = false
	return nil
}

// Touch extends the record lifetime by a full max age from now.
func (s *Session) Touch() {
	s.ExpiresAt = s.manager.now().Add(s.manager.opts.MaxAge)
}

// Destroy deletes the record and expires the cookie. Destroying a session
// that was never saved is not an error.
func (s *Session) Destroy(ctx context.Context) error {
	if err := s.manager.store.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	s.manager.clearCookie(s.w)
	s.ClearAuth()
	s.ClearPending()
	return nil
}
