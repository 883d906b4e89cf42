package conf

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the config structure.
type Config struct {
	Server  Server  `yaml:"server"`
	Log     Log     `yaml:"log"`
	Auth    Auth    `yaml:"auth"`
	State   State   `yaml:"state"`
	Session Session `yaml:"session"`
	Redis   Redis   `yaml:"redis"`
}

// Server is the server config.
type Server struct {
	Addr    string `yaml:"addr" env:"SERVER_ADDR"`
	BaseURL string `yaml:"base_url" env:"SERVER_BASE_URL"`
}

// Log is the logger config.
type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // text | json
}

// Auth is the authentication config.
type Auth struct {
	// Discovery selects how provider endpoints are resolved: "static" or "discovery".
	Discovery    string   `yaml:"discovery" env:"OPENID_DISCOVERY"`
	Issuer       string   `yaml:"issuer" env:"OPENID_ISSUER_URL"`
	AuthURL      string   `yaml:"auth_url" env:"OPENID_AUTH_URL"`
	TokenURL     string   `yaml:"token_url" env:"OPENID_TOKEN_URL"`
	UserInfoURL  string   `yaml:"userinfo_url" env:"OPENID_USERINFO_URL"`
	JWKSURL      string   `yaml:"jwks_url" env:"OPENID_JWKS_URL"`
	ClientID     string   `yaml:"client_id" env:"OPENID_CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" env:"OPENID_CLIENT_SECRET"`
	RedirectURL  string   `yaml:"redirect_url" env:"OPENID_REDIRECT_URI"` // Optional: if not set, auto-constructed from server.base_url
	FrontendURL  string   `yaml:"frontend_url" env:"FRONTEND_URL"`
	Scopes       []string `yaml:"scopes" env:"OPENID_SCOPES" envSeparator:" "`

	UsePKCE       bool `yaml:"use_pkce" env:"OPENID_USE_PKCE"`
	VerifyIDToken bool `yaml:"verify_id_token" env:"OPENID_VERIFY_ID_TOKEN"`

	// GatePolicy is "session" (trust the session record) or "strict" (re-check the access token).
	GatePolicy string `yaml:"gate_policy" env:"AUTH_GATE_POLICY"`
}

// State is the CSRF state token store config.
type State struct {
	Backend       string        `yaml:"backend" env:"STATE_BACKEND"` // memory | redis
	TTL           time.Duration `yaml:"ttl" env:"STATE_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"STATE_SWEEP_INTERVAL"`
}

// Session is the server-side session config.
type Session struct {
	Backend    string        `yaml:"backend" env:"SESSION_BACKEND"` // memory | sqlite | redis
	SQLitePath string        `yaml:"sqlite_path" env:"SESSION_SQLITE_PATH"`
	Secret     string        `yaml:"secret" env:"SESSION_SECRET"`
	CookieName string        `yaml:"cookie_name" env:"SESSION_COOKIE_NAME"`
	MaxAge     time.Duration `yaml:"max_age" env:"SESSION_MAX_AGE"`
	Secure     *bool         `yaml:"secure" env:"SESSION_COOKIE_SECURE"`
	HTTPOnly   *bool         `yaml:"http_only" env:"SESSION_COOKIE_HTTP_ONLY"`
	SameSite   string        `yaml:"same_site" env:"SESSION_COOKIE_SAME_SITE"` // lax | strict | none
	PruneEvery time.Duration `yaml:"prune_interval" env:"SESSION_PRUNE_INTERVAL"`
}

// Redis is the shared store config, used by the redis state and session backends.
type Redis struct {
	Addr      string `yaml:"addr" env:"REDIS_ADDR"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX"`
}

// GetRedirectURL returns the OIDC callback URL
// If RedirectURL is explicitly configured, use it
// Otherwise, construct from server base_url + hardcoded callback path
func (a *Auth) GetRedirectURL(serverBaseURL string) string {
	if a.RedirectURL != "" {
		return a.RedirectURL
	}
	return strings.TrimRight(serverBaseURL, "/") + "/api/auth/callback"
}

// CookieSameSite maps the configured same_site value onto net/http.
func (s *Session) CookieSameSite() http.SameSite {
	switch strings.ToLower(s.SameSite) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	default:
		return http.SameSiteNoneMode
	}
}

// Load loads config from file.
// A missing file is not an error: everything can come from the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, err
		}
	}

	// Override config from env vars if present
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:3000"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Auth.Discovery == "" {
		c.Auth.Discovery = "static"
	}
	if c.Auth.FrontendURL == "" {
		c.Auth.FrontendURL = "http://localhost:5173"
	}
	if c.Auth.GatePolicy == "" {
		c.Auth.GatePolicy = "session"
	}
	if c.State.Backend == "" {
		c.State.Backend = "memory"
	}
	if c.State.TTL == 0 {
		c.State.TTL = 10 * time.Minute
	}
	if c.State.SweepInterval == 0 {
		c.State.SweepInterval = 10 * time.Minute
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.SQLitePath == "" {
		c.Session.SQLitePath = "data/sessions.db"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "todo.sid"
	}
	if c.Session.MaxAge == 0 {
		c.Session.MaxAge = 24 * time.Hour
	}
	if c.Session.Secure == nil {
		secure := true
		c.Session.Secure = &secure
	}
	if c.Session.HTTPOnly == nil {
		httpOnly := true
		c.Session.HTTPOnly = &httpOnly
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "none"
	}
	if c.Session.PruneEvery == 0 {
		c.Session.PruneEvery = 15 * time.Minute
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "todo:"
	}
}

// Validate rejects combinations the server cannot run with. Client
// credentials are checked on first use of the identity provider instead.
func (c *Config) Validate() error {
	switch c.Auth.Discovery {
	case "static":
		if c.Auth.AuthURL == "" || c.Auth.TokenURL == "" {
			return fmt.Errorf("auth: static discovery requires auth_url and token_url")
		}
	case "discovery":
		if c.Auth.Issuer == "" {
			return fmt.Errorf("auth: discovery requires issuer")
		}
	default:
		return fmt.Errorf("auth: unknown discovery mode %q", c.Auth.Discovery)
	}
	switch c.Auth.GatePolicy {
	case "session", "strict":
	default:
		return fmt.Errorf("auth: unknown gate policy %q", c.Auth.GatePolicy)
	}
	switch c.State.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("state: unknown backend %q", c.State.Backend)
	}
	switch c.Session.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("session: unknown backend %q", c.Session.Backend)
	}
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session: secret must be at least 32 bytes")
	}
	if c.Session.CookieSameSite() == http.SameSiteNoneMode && !*c.Session.Secure {
		return fmt.Errorf("session: same_site=none requires secure cookies")
	}
	return nil
}
