package auth

import (
	"context"
	"net/url"
	"testing"

	"todo-backend/internal/auth/authtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedirectURL = "http://localhost:3000/api/auth/callback"

func TestResolveRequiresClientCredentials(t *testing.T) {
	idp := authtest.NewProvider(t, nil)

	tests := []struct {
		name   string
		id     string
		secret string
	}{
		{name: "missing id", id: " ", secret: authtest.ClientSecret},
		{name: "missing secret", id: authtest.ClientID, secret: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := idp.AuthConfig()
			cfg.ClientID, cfg.ClientSecret = tt.id, tt.secret
			c := NewOIDCClient(cfg, testRedirectURL, discardLogger())

			_, err := c.Resolve(context.Background())
			assert.ErrorIs(t, err, ErrConfiguration)

			_, err = c.AuthCodeURL(context.Background(), "state", "")
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestResolveStaticRequiresEndpoints(t *testing.T) {
	idp := authtest.NewProvider(t, nil)
	cfg := idp.AuthConfig()
	cfg.TokenURL = ""

	_, err := NewOIDCClient(cfg, testRedirectURL, discardLogger()).Resolve(context.Background())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestResolveDiscovery(t *testing.T) {
	idp := authtest.NewProvider(t, nil)
	cfg := idp.AuthConfig()
	cfg.Discovery = "discovery"
	cfg.AuthURL, cfg.TokenURL, cfg.UserInfoURL = "", "", ""

	c := NewOIDCClient(cfg, testRedirectURL, discardLogger())
	pc, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, idp.URL()+"/auth", pc.AuthURL)
	assert.Equal(t, idp.URL()+"/token", pc.TokenURL)
	assert.Equal(t, idp.URL()+"/me", pc.UserInfoURL)

	again, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Same(t, pc, again)
}

func TestAuthCodeURLCarriesStateAndScopes(t *testing.T) {
	idp := authtest.NewProvider(t, nil)
	cfg := idp.AuthConfig()
	cfg.Scopes = []string{"offline_access", "email"}
	c := NewOIDCClient(cfg, testRedirectURL, discardLogger())

	raw, err := c.AuthCodeURL(context.Background(), "abc123", "")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "abc123", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, authtest.ClientID, q.Get("client_id"))
	assert.Equal(t, testRedirectURL, q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email offline_access", q.Get("scope"))
	assert.Empty(t, q.Get("code_challenge"))

	raw, err = c.AuthCodeURL(context.Background(), "abc123", "verifier-verifier-verifier-verifier-verifier")
	require.NoError(t, err)
	u, err = url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	assert.NotEmpty(t, u.Query().Get("code_challenge"))
}

func TestExchange(t *testing.T) {
	idp := authtest.NewProvider(t, nil)
	idp.IssueCode("c1")
	c := NewOIDCClient(idp.AuthConfig(), testRedirectURL, discardLogger())

	set, err := c.Exchange(context.Background(), CallbackParams{Code: "c1", State: "s"}, testRedirectURL, "s", "my-verifier")
	require.NoError(t, err)
	assert.Equal(t, "at-c1", set.AccessToken)
	assert.Equal(t, "id-c1", set.IDToken)
	assert.Equal(t, "rt-c1", set.RefreshToken)
	assert.Equal(t, testRedirectURL, idp.LastRedirectURI())
	assert.Equal(t, "my-verifier", idp.LastVerifier())
}

func TestExchangeStateMismatch(t *testing.T) {
	idp := authtest.NewProvider(t, nil)
	idp.IssueCode("c1")
	c := NewOIDCClient(idp.AuthConfig(), testRedirectURL, discardLogger())

	_, err := c.Exchange(context.Background(), CallbackParams{Code: "c1", State: "x"}, testRedirectURL, "y", "")
	assert.ErrorIs(t, err, ErrExchange)
	assert.Zero(t, idp.Exchanges())
}

func TestExchangeRejectedCode(t *testing.T) {
	idp := authtest.NewProvider(t, nil)
	c := NewOIDCClient(idp.AuthConfig(), testRedirectURL, discardLogger())

	_, err := c.Exchange(context.Background(), CallbackParams{Code: "unknown", State: "s"}, testRedirectURL, "s", "")
	assert.ErrorIs(t, err, ErrExchange)
}

func TestUserInfo(t *testing.T) {
	idp := authtest.NewProvider(t, map[string]any{
		"sub":                "u-1",
		"email":              "a@example.com",
		"email_verified":     true,
		"name":               "Ada",
		"preferred_username": "ada",
	})
	idp.IssueCode("c1")
	c := NewOIDCClient(idp.AuthConfig(), testRedirectURL, discardLogger())

	set, err := c.Exchange(context.Background(), CallbackParams{Code: "c1", State: "s"}, testRedirectURL, "s", "")
	require.NoError(t, err)

	info, err := c.UserInfo(context.Background(), set.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", info.Sub)
	assert.Equal(t, "a@example.com", info.Email)
	assert.True(t, info.EmailVerified)
	assert.Equal(t, "Ada", info.Name)
	assert.Equal(t, "ada", info.PreferredUsername)

	idp.FailUserInfo(true)
	_, err = c.UserInfo(context.Background(), set.AccessToken)
	assert.ErrorIs(t, err, ErrUserInfo)

	_, err = c.UserInfo(context.Background(), "")
	assert.ErrorIs(t, err, ErrUserInfo)
}

func TestMergeScopes(t *testing.T) {
	assert.Equal(t, []string{"openid", "profile", "email"}, mergeScopes(nil))
	assert.Equal(t, []string{"openid", "profile", "email", "groups"}, mergeScopes([]string{"groups", "openid", ""}))
}
