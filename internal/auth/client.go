package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"todo-backend/internal/conf"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// requiredScopes are always requested, whatever the config adds.
var requiredScopes = []string{oidc.ScopeOpenID, "profile", "email"}

// ProviderConfig describes the resolved provider endpoints.
type ProviderConfig struct {
	Mode        string
	Issuer      string
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	JWKSURL     string
}

// IdentityProvider is what the login flow and the gate need from the OIDC client.
type IdentityProvider interface {
	Resolve(ctx context.Context) (*ProviderConfig, error)
	AuthCodeURL(ctx context.Context, state, verifier string) (string, error)
	Exchange(ctx context.Context, params CallbackParams, redirectURI, expectedState, verifier string) (*TokenSet, error)
	UserInfo(ctx context.Context, accessToken string) (*UserInfo, error)
}

// OIDCClient wraps OIDC provider and OAuth2 configuration.
// The provider is built on first use and cached for the life of the process.
type OIDCClient struct {
	cfg         conf.Auth
	redirectURL string
	httpClient  *http.Client
	logger      *slog.Logger

	mu           sync.Mutex
	resolved     *ProviderConfig
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config oauth2.Config
}

// NewOIDCClient creates a new OIDC client. No network call happens here.
func NewOIDCClient(cfg conf.Auth, redirectURL string, logger *slog.Logger) *OIDCClient {
	return &OIDCClient{
		cfg:         cfg,
		redirectURL: redirectURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
	}
}

// Resolve returns the cached provider configuration, building it on the first
// call. A failed build is not cached.
func (c *OIDCClient) Resolve(ctx context.Context) (*ProviderConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved != nil {
		return c.resolved, nil
	}

	if strings.TrimSpace(c.cfg.ClientID) == "" {
		return nil, fmt.Errorf("%w: client id is required but not set", ErrConfiguration)
	}
	if strings.TrimSpace(c.cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("%w: client secret is required but not set", ErrConfiguration)
	}

	ctx = oidc.ClientContext(ctx, c.httpClient)

	var (
		provider *oidc.Provider
		err      error
	)
	switch c.cfg.Discovery {
	case "discovery":
		// Initialize OIDC provider (discovers .well-known/openid-configuration)
		provider, err = oidc.NewProvider(ctx, c.cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
		}
	case "static", "":
		if c.cfg.AuthURL == "" || c.cfg.TokenURL == "" {
			return nil, fmt.Errorf("%w: static provider needs auth and token endpoints", ErrConfiguration)
		}
		if c.cfg.VerifyIDToken && c.cfg.JWKSURL == "" {
			return nil, fmt.Errorf("%w: id token verification needs a jwks url", ErrConfiguration)
		}
		// Static endpoints skip the discovery document and its issuer echo check.
		provider = (&oidc.ProviderConfig{
			IssuerURL:   c.cfg.Issuer,
			AuthURL:     c.cfg.AuthURL,
			TokenURL:    c.cfg.TokenURL,
			UserInfoURL: c.cfg.UserInfoURL,
			JWKSURL:     c.cfg.JWKSURL,
		}).NewProvider(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown discovery mode %q", ErrConfiguration, c.cfg.Discovery)
	}

	var claims struct {
		UserInfoURL string `json:"userinfo_endpoint"`
		JWKSURL     string `json:"jwks_uri"`
	}
	if c.cfg.Discovery == "discovery" {
		_ = provider.Claims(&claims)
	} else {
		claims.UserInfoURL, claims.JWKSURL = c.cfg.UserInfoURL, c.cfg.JWKSURL
	}

	endpoint := provider.Endpoint()
	c.provider = provider
	c.oauth2Config = oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.redirectURL,
		Endpoint:     endpoint,
		Scopes:       mergeScopes(c.cfg.Scopes),
	}
	// Configure JWT verifier. Static providers may not echo an issuer.
	c.verifier = provider.Verifier(&oidc.Config{
		ClientID:        c.cfg.ClientID,
		SkipIssuerCheck: c.cfg.Discovery != "discovery",
	})
	c.resolved = &ProviderConfig{
		Mode:        c.cfg.Discovery,
		Issuer:      c.cfg.Issuer,
		AuthURL:     endpoint.AuthURL,
		TokenURL:    endpoint.TokenURL,
		UserInfoURL: claims.UserInfoURL,
		JWKSURL:     claims.JWKSURL,
	}

	c.logger.Info("OIDC client initialized",
		"mode", c.resolved.Mode,
		"issuer", c.resolved.Issuer,
		"client_id", prefix(c.cfg.ClientID),
		"redirect_url", c.redirectURL,
	)
	return c.resolved, nil
}

// AuthCodeURL returns the authorization URL carrying state verbatim.
// A non-empty verifier adds the S256 PKCE challenge.
func (c *OIDCClient) AuthCodeURL(ctx context.Context, state, verifier string) (string, error) {
	if _, err := c.Resolve(ctx); err != nil {
		return "", err
	}
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return c.oauth2Config.AuthCodeURL(state, opts...), nil
}

// Exchange exchanges the authorization code for tokens. redirectURI must be
// the one the authorization request used; the provider checks it.
func (c *OIDCClient) Exchange(ctx context.Context, params CallbackParams, redirectURI, expectedState, verifier string) (*TokenSet, error) {
	if _, err := c.Resolve(ctx); err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(params.State), []byte(expectedState)) != 1 {
		return nil, fmt.Errorf("%w: state mismatch", ErrExchange)
	}

	ctx = oidc.ClientContext(ctx, c.httpClient)
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("redirect_uri", redirectURI)}
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := c.oauth2Config.Exchange(ctx, params.Code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access_token in response", ErrExchange)
	}

	set := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if raw, ok := tok.Extra("id_token").(string); ok {
		set.IDToken = raw
	}

	if c.cfg.VerifyIDToken {
		if set.IDToken == "" {
			return nil, fmt.Errorf("%w: no id_token in response", ErrExchange)
		}
		if _, err := c.verifier.Verify(ctx, set.IDToken); err != nil {
			return nil, fmt.Errorf("%w: failed to verify ID token: %v", ErrExchange, err)
		}
	}
	return set, nil
}

// UserInfo fetches the user's claims with the given access token.
func (c *OIDCClient) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	if _, err := c.Resolve(ctx); err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrUserInfo)
	}

	ctx = oidc.ClientContext(ctx, c.httpClient)
	info, err := c.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}

	var out UserInfo
	if err := info.Claims(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrUserInfo, err)
	}
	return &out, nil
}

func mergeScopes(extra []string) []string {
	seen := make(map[string]bool, len(requiredScopes)+len(extra))
	scopes := make([]string, 0, len(requiredScopes)+len(extra))
	for _, s := range append(append([]string{}, requiredScopes...), extra...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		scopes = append(scopes, s)
	}
	return scopes
}

// prefix shortens secrets and ids for logging.
func prefix(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8] + "..."
}
