package auth

import (
	"time"

	"todo-backend/internal/session"
)

// User is the normalized identity exposed to protected resources.
type User = session.User

// UserInfo represents OIDC user claims
type UserInfo struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// unknownSubject is stored when the provider returns no usable identifier.
const unknownSubject = "unknown"

// SubjectID picks the stable identifier for the user:
// sub, then preferred_username, then email, then "unknown".
func (u *UserInfo) SubjectID() string {
	switch {
	case u.Sub != "":
		return u.Sub
	case u.PreferredUsername != "":
		return u.PreferredUsername
	case u.Email != "":
		return u.Email
	default:
		return unknownSubject
	}
}

// Normalize converts provider claims into the session user record.
func (u *UserInfo) Normalize() *User {
	return &User{
		Sub:               u.SubjectID(),
		Name:              u.Name,
		Email:             u.Email,
		PreferredUsername: u.PreferredUsername,
	}
}

// TokenSet is the result of a code exchange.
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	Expiry       time.Time
}

// CallbackParams are the parameters the provider sent back to the callback.
type CallbackParams struct {
	Code  string
	State string
}

// Attempt is one in-flight login, keyed by the session id that started it.
type Attempt struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the attempt is at least ttl old.
func (a Attempt) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(a.CreatedAt) >= ttl
}
