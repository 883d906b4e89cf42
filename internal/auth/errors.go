package auth

import "errors"

var (
	// ErrConfiguration is returned when the identity provider cannot be set up,
	// e.g. blank client credentials.
	ErrConfiguration = errors.New("identity provider misconfigured")
	// ErrExchange covers transport failures, provider errors and state
	// mismatches during the code exchange.
	ErrExchange = errors.New("code exchange failed")
	// ErrUserInfo is returned when the userinfo endpoint rejects the access token.
	ErrUserInfo = errors.New("userinfo request failed")
	// ErrInvalidState is returned when the CSRF state check fails or expired.
	ErrInvalidState = errors.New("invalid_state")
	// ErrMissingParameters is returned for a malformed callback query.
	ErrMissingParameters = errors.New("missing_code_or_state")
	// ErrSessionPersistence is returned when an explicit session save fails.
	ErrSessionPersistence = errors.New("session persistence failed")
	// ErrUnauthenticated is returned by the gate for requests without a login.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// GateError is an ErrUnauthenticated carrying the message shown to the client.
type GateError struct {
	Message string
}

func (e *GateError) Error() string { return "unauthenticated: " + e.Message }

func (e *GateError) Unwrap() error { return ErrUnauthenticated }
