package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"todo-backend/internal/session"
)

// GatePolicy decides how much the gate trusts the session record.
type GatePolicy string

const (
	// PolicySession trusts the session record; freshness is bounded by the
	// session lifetime.
	PolicySession GatePolicy = "session"
	// PolicyStrict re-checks the access token at the userinfo endpoint on
	// every request and destroys the session when it is rejected.
	PolicyStrict GatePolicy = "strict"
)

// Gate guards protected resources using the session record.
type Gate struct {
	sessions *session.Manager
	provider IdentityProvider
	policy   GatePolicy
	logger   *slog.Logger
}

// NewGate creates a gate. provider is only used by PolicyStrict.
func NewGate(sessions *session.Manager, provider IdentityProvider, policy GatePolicy, logger *slog.Logger) *Gate {
	if policy == "" {
		policy = PolicySession
	}
	return &Gate{
		sessions: sessions,
		provider: provider,
		policy:   policy,
		logger:   logger,
	}
}

// Authorize returns the session user or a *GateError.
func (g *Gate) Authorize(ctx context.Context, sess *session.Session) (*User, error) {
	if sess == nil || sess.IsNew() || !sess.IsAuthenticated {
		return nil, &GateError{Message: "Not authenticated"}
	}
	if sess.User == nil {
		return nil, &GateError{Message: "User not found in session"}
	}

	if g.policy == PolicyStrict {
		if _, err := g.provider.UserInfo(ctx, sess.AccessToken); err != nil {
			g.logger.Warn("access token rejected, destroying session",
				"session", prefix(sess.ID), "user", sess.User.Sub, "error", err)
			if derr := sess.Destroy(ctx); derr != nil {
				g.logger.Error("failed to destroy session", "error", derr)
			}
			return nil, &GateError{Message: "Session expired"}
		}
	}
	return sess.User, nil
}

// Middleware rejects unauthenticated requests with 401 and puts the user on
// the request context for the next handler.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := g.sessions.Start(w, r)
			if err != nil {
				g.logger.Error("session load failed", "error", err)
				writeError(w, http.StatusInternalServerError, "Authentication error")
				return
			}

			user, err := g.Authorize(r.Context(), sess)
			if err != nil {
				msg := "Not authenticated"
				var ge *GateError
				if errors.As(err, &ge) {
					msg = ge.Message
				}
				writeError(w, http.StatusUnauthorized, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
