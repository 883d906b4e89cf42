package api

import (
	"log/slog"
	"net/http"

	"todo-backend/internal/auth"
	"todo-backend/internal/session"

	"github.com/gorilla/mux"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	flow     *auth.Flow
	gate     *auth.Gate
	sessions *session.Manager
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(flow *auth.Flow, gate *auth.Gate, sessions *session.Manager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		flow:     flow,
		gate:     gate,
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes registers auth routes
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/login", h.login).Methods(http.MethodGet)
	r.HandleFunc("/callback", h.callback).Methods(http.MethodGet)
	r.HandleFunc("/logout", h.logout).Methods(http.MethodPost)

	// /me runs behind the gate so the user is on the request context.
	r.Handle("/me", h.gate.Middleware()(http.HandlerFunc(h.me))).Methods(http.MethodGet)
}

// login initiates the OIDC flow
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Start(w, r)
	if err != nil {
		h.logger.Error("session not available in /auth/login", "error", err)
		writeJSON(w, http.StatusInternalServerError, Envelope{Message: "Session initialization failed"})
		return
	}

	authURL, err := h.flow.Login(r.Context(), sess)
	if err != nil {
		h.logger.Error("error initiating login", "error", err)
		writeJSON(w, http.StatusInternalServerError, Envelope{
			Message: "Failed to initiate login",
			Error:   err.Error(),
		})
		return
	}

	// Redirect to OIDC provider
	http.Redirect(w, r, authURL, http.StatusFound)
}

// callback handles the provider redirect. Failures redirect the browser to
// the frontend with ?error=, except session persistence failures.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Start(w, r)
	if err != nil {
		h.logger.Error("session not available in /auth/callback", "error", err)
		writeJSON(w, http.StatusInternalServerError, Envelope{Message: "Session initialization failed"})
		return
	}

	target, err := h.flow.Callback(r.Context(), sess, r.URL.Query())
	if auth.IsPersistenceError(err) {
		writeJSON(w, http.StatusInternalServerError, Envelope{Message: "Failed to persist session"})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// logout destroys the server-side session
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Start(w, r)
	if err == nil {
		err = h.flow.Logout(r.Context(), sess)
	}
	if err != nil {
		h.logger.Error("error destroying session", "error", err)
		writeJSON(w, http.StatusInternalServerError, Envelope{Message: "Error during logout"})
		return
	}

	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "Logged out successfully"})
}

// me returns current user information
func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, Envelope{Message: "Not authenticated"})
		return
	}

	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: user})
}
