package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"todo-backend/internal/session"
)

// Flow runs the authorization-code login:
// Anonymous -> PendingCallback (Login) -> Authenticated (Callback).
type Flow struct {
	provider    IdentityProvider
	tokens      *TokenStore
	redirectURL string
	frontendURL string
	logger      *slog.Logger
}

// NewFlow creates the login flow. redirectURL is the callback URL registered
// with the provider; frontendURL is where the browser lands afterwards.
func NewFlow(provider IdentityProvider, tokens *TokenStore, redirectURL, frontendURL string, logger *slog.Logger) *Flow {
	return &Flow{
		provider:    provider,
		tokens:      tokens,
		redirectURL: redirectURL,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// Login starts an attempt and returns the provider authorization URL.
// The session is saved before the URL is built so the cookie is on the
// response when the browser navigates away. A newer attempt replaces any
// pending one.
func (f *Flow) Login(ctx context.Context, sess *session.Session) (string, error) {
	if _, err := f.provider.Resolve(ctx); err != nil {
		return "", err
	}

	attempt, err := f.tokens.Issue(ctx, sess.ID)
	if err != nil {
		return "", err
	}

	sess.PendingState = attempt.State
	sess.PendingStateCreatedAt = attempt.CreatedAt
	sess.PendingVerifier = attempt.CodeVerifier

	if err := sess.Save(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionPersistence, err)
	}

	authURL, err := f.provider.AuthCodeURL(ctx, attempt.State, attempt.CodeVerifier)
	if err != nil {
		return "", err
	}

	f.logger.Info("login initiated",
		"session", prefix(sess.ID),
		"state", prefix(attempt.State),
		"state_backend", f.tokens.Backend(),
	)
	return authURL, nil
}

// Callback completes the attempt from the provider redirect and returns
// where to send the browser. Any failure other than ErrSessionPersistence
// still comes with a redirect target carrying ?error=.
func (f *Flow) Callback(ctx context.Context, sess *session.Session, query url.Values) (string, error) {
	log := f.logger.With("session", prefix(sess.ID))

	if providerErr := query.Get("error"); providerErr != "" {
		log.Warn("identity provider returned an error", "error", providerErr)
		return f.errorRedirect(providerErr), fmt.Errorf("provider error: %s", providerErr)
	}

	code, okCode := singleValue(query, "code")
	state, okState := singleValue(query, "state")
	if !okCode || !okState {
		log.Warn("callback missing code or state", "code", okCode, "state", okState)
		return f.errorRedirect(ErrMissingParameters.Error()), ErrMissingParameters
	}

	attempt, outcome, err := f.tokens.Validate(ctx, sess.ID, state, sess.Record)
	if err != nil {
		log.Error("state lookup failed", "error", err)
		return f.errorRedirect(ErrInvalidState.Error()), fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !outcome.Valid() {
		f.logRejectedState(log, sess, state, outcome)
		return f.errorRedirect(ErrInvalidState.Error()), fmt.Errorf("%w: %s", ErrInvalidState, outcome)
	}
	if outcome == OutcomeValidFromMemory {
		log.Warn("state validated from process memory; session cookie did not carry the attempt",
			"state", prefix(state))
	} else {
		log.Info("state validated", "source", outcome.String(), "state", prefix(state))
	}

	// Consume before talking to the provider so the token is single-use even
	// when the exchange fails.
	removed, err := f.tokens.Consume(ctx, sess.ID, sess.Record)
	if err != nil {
		log.Error("failed to consume state", "error", err)
		return f.errorRedirect(ErrInvalidState.Error()), fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !removed {
		// A session-path attempt may legitimately be absent from a process-local
		// backend; it is a replay only when the backend saw it consumed.
		replayed := outcome == OutcomeValidFromMemory
		if !replayed {
			if replayed, err = f.tokens.Replayed(ctx, sess.ID, state); err != nil {
				log.Error("failed to check consumed state", "error", err)
				return f.errorRedirect(ErrInvalidState.Error()), fmt.Errorf("%w: %v", ErrInvalidState, err)
			}
		}
		if replayed {
			log.Warn("state already consumed by a concurrent callback", "source", outcome.String(), "state", prefix(state))
			return f.errorRedirect(ErrInvalidState.Error()), fmt.Errorf("%w: replayed", ErrInvalidState)
		}
	}
	if err := sess.Save(ctx); err != nil {
		log.Error("failed to save session after consuming state", "error", err)
		return "", fmt.Errorf("%w: %v", ErrSessionPersistence, err)
	}

	tokens, err := f.provider.Exchange(ctx, CallbackParams{Code: code, State: state}, f.redirectURL, attempt.State, attempt.CodeVerifier)
	if err != nil {
		log.Error("code exchange failed", "redirect_uri", f.redirectURL, "error", err)
		return f.errorRedirect(err.Error()), err
	}

	info, err := f.provider.UserInfo(ctx, tokens.AccessToken)
	if err != nil {
		log.Error("userinfo failed", "error", err)
		return f.errorRedirect(err.Error()), err
	}

	user := info.Normalize()
	sess.AccessToken = tokens.AccessToken
	sess.IDToken = tokens.IDToken
	sess.RefreshToken = tokens.RefreshToken
	sess.User = user
	sess.IsAuthenticated = true
	sess.Touch()

	if err := sess.Save(ctx); err != nil {
		log.Error("failed to save session after authentication", "error", err)
		return "", fmt.Errorf("%w: %v", ErrSessionPersistence, err)
	}

	log.Info("authentication successful", "user", user.Sub)
	return f.frontendURL, nil
}

// Logout destroys the session. It succeeds when there is nothing to destroy.
func (f *Flow) Logout(ctx context.Context, sess *session.Session) error {
	var sub string
	if sess.User != nil {
		sub = sess.User.Sub
	}
	if err := sess.Destroy(ctx); err != nil {
		return err
	}
	f.logger.Info("logged out", "session", prefix(sess.ID), "user", sub)
	return nil
}

func (f *Flow) logRejectedState(log *slog.Logger, sess *session.Session, received string, outcome Outcome) {
	attrs := []any{
		"outcome", outcome.String(),
		"received", prefix(received),
		"session_state", prefix(sess.PendingState),
		"new_session", sess.IsNew(),
	}
	if outcome == OutcomeMissing && sess.IsNew() {
		// Typical of a callback landing on a replica without the attempt, or a
		// cookie dropped by SameSite/Secure settings.
		attrs = append(attrs, "hint", "session cookie not sent or attempt held by another instance")
	}
	log.Warn("state validation failed", attrs...)
}

func (f *Flow) errorRedirect(reason string) string {
	u, err := url.Parse(f.frontendURL)
	if err != nil {
		return f.frontendURL + "?error=" + url.QueryEscape(reason)
	}
	q := u.Query()
	q.Set("error", reason)
	u.RawQuery = q.Encode()
	return u.String()
}

// singleValue accepts a parameter only when it appears exactly once.
func singleValue(q url.Values, key string) (string, bool) {
	v, ok := q[key]
	if !ok || len(v) != 1 || v[0] == "" {
		return "", false
	}
	return v[0], true
}

// IsPersistenceError reports whether err must abort with a server error
// instead of a redirect.
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrSessionPersistence)
}
