// Package authtest runs a fake OpenID Connect provider for tests.
package authtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"todo-backend/internal/conf"
)

const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
)

// Provider is a fake identity provider with authorization, token, userinfo
// and discovery endpoints.
type Provider struct {
	Server *httptest.Server

	mu           sync.Mutex
	claims       map[string]any
	failToken    bool
	failUserInfo bool
	codes        map[string]bool
	tokens       map[string]bool
	lastRedirect string
	lastVerifier string
	exchanges    int
}

// NewProvider starts a provider that accepts any code issued via IssueCode
// and answers userinfo with claims.
func NewProvider(t *testing.T, claims map[string]any) *Provider {
	t.Helper()
	p := &Provider{
		claims: claims,
		codes:  make(map[string]bool),
		tokens: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/token", p.token)
	mux.HandleFunc("/me", p.userinfo)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// URL returns the provider base URL.
func (p *Provider) URL() string {
	return p.Server.URL
}

// AuthConfig returns a static-discovery auth config pointing at the provider.
func (p *Provider) AuthConfig() conf.Auth {
	return conf.Auth{
		Discovery:    "static",
		Issuer:       p.URL(),
		AuthURL:      p.URL() + "/auth",
		TokenURL:     p.URL() + "/token",
		UserInfoURL:  p.URL() + "/me",
		ClientID:     ClientID,
		ClientSecret: ClientSecret,
		FrontendURL:  "https://app.example.com",
		GatePolicy:   "session",
	}
}

// IssueCode registers an authorization code the token endpoint will accept.
func (p *Provider) IssueCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[code] = true
}

// SetClaims replaces the userinfo response.
func (p *Provider) SetClaims(claims map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claims = claims
}

// FailToken makes the token endpoint answer invalid_grant.
func (p *Provider) FailToken(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failToken = fail
}

// FailUserInfo makes the userinfo endpoint answer 401.
func (p *Provider) FailUserInfo(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failUserInfo = fail
}

// RevokeTokens invalidates every issued access token.
func (p *Provider) RevokeTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = make(map[string]bool)
}

// LastRedirectURI returns the redirect_uri of the last exchange.
func (p *Provider) LastRedirectURI() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRedirect
}

// LastVerifier returns the code_verifier of the last exchange.
func (p *Provider) LastVerifier() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastVerifier
}

// Exchanges returns how many token requests were made.
func (p *Provider) Exchanges() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchanges
}

func (p *Provider) discovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                 p.URL(),
		"authorization_endpoint": p.URL() + "/auth",
		"token_endpoint":         p.URL() + "/token",
		"userinfo_endpoint":      p.URL() + "/me",
		"jwks_uri":               p.URL() + "/jwks",
	})
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.exchanges++
	p.lastRedirect = r.PostForm.Get("redirect_uri")
	p.lastVerifier = r.PostForm.Get("code_verifier")

	clientID, secret, ok := r.BasicAuth()
	if !ok {
		clientID, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if clientID != ClientID || secret != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	code := r.PostForm.Get("code")
	if p.failToken || !p.codes[code] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	delete(p.codes, code)

	access := "at-" + code
	p.tokens[access] = true
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "rt-" + code,
		"id_token":      "id-" + code,
	})
}

func (p *Provider) userinfo(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failUserInfo || !p.tokens[token] {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	writeJSON(w, http.StatusOK, p.claims)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
