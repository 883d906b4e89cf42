// Package app wires the long-lived components of the backend. Everything
// that outlives a request is owned by an App, so several independent
// instances can coexist in one process (tests do this).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"todo-backend/internal/api"
	"todo-backend/internal/auth"
	"todo-backend/internal/biz"
	"todo-backend/internal/conf"
	"todo-backend/internal/data"
	"todo-backend/internal/server"
	"todo-backend/internal/service"
	"todo-backend/internal/session"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// App is the application context.
type App struct {
	cfg    *conf.Config
	logger *slog.Logger

	Provider auth.IdentityProvider
	Tokens   *auth.TokenStore
	Sessions *session.Manager
	Flow     *auth.Flow
	Gate     *auth.Gate
	Handler  http.Handler

	redis   *redis.Client
	pruner  session.Pruner
	closers []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	provider auth.IdentityProvider
	redis    *redis.Client
}

// WithProvider replaces the OIDC client built from config.
func WithProvider(p auth.IdentityProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithRedis supplies an existing redis client instead of dialing cfg.Redis.
func WithRedis(c *redis.Client) Option {
	return func(o *options) { o.redis = c }
}

// New builds the application from cfg.
func New(ctx context.Context, cfg *conf.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger, redis: o.redis}

	if a.redis == nil && (cfg.State.Backend == "redis" || cfg.Session.Backend == "redis") {
		client, err := data.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
	}

	// session 存储
	store, err := a.sessionStore(cfg.Session)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sessions = session.NewManager(store, []byte(cfg.Session.Secret), session.CookieOptions{
		Name:     cfg.Session.CookieName,
		Secure:   *cfg.Session.Secure,
		HTTPOnly: *cfg.Session.HTTPOnly,
		SameSite: cfg.Session.CookieSameSite(),
		MaxAge:   cfg.Session.MaxAge,
	})

	// state 存储
	var backend auth.StateBackend
	switch cfg.State.Backend {
	case "redis":
		backend = data.NewRedisStateBackend(a.redis, cfg.Redis.KeyPrefix, cfg.State.TTL)
	default:
		backend = auth.NewMemoryStateBackend()
	}
	a.Tokens = auth.NewTokenStore(backend, logger,
		auth.WithTTL(cfg.State.TTL),
		auth.WithPKCE(cfg.Auth.UsePKCE),
	)

	// auth 层
	redirectURL := cfg.Auth.GetRedirectURL(cfg.Server.BaseURL)
	a.Provider = o.provider
	if a.Provider == nil {
		a.Provider = auth.NewOIDCClient(cfg.Auth, redirectURL, logger)
	}
	a.Flow = auth.NewFlow(a.Provider, a.Tokens, redirectURL, cfg.Auth.FrontendURL, logger)
	a.Gate = auth.NewGate(a.Sessions, a.Provider, auth.GatePolicy(cfg.Auth.GatePolicy), logger)

	// biz / service / api 层
	todoUsecase := biz.NewTodoUsecase(data.NewMemoryTodoRepo())
	todoHandler := api.NewTodoHandler(service.NewTodoService(todoUsecase), logger)
	authHandler := api.NewAuthHandler(a.Flow, a.Gate, a.Sessions, logger)
	router := api.NewRouter(todoHandler, authHandler, a.Gate.Middleware())
	a.Handler = api.Wrap(router, origin(cfg.Auth.FrontendURL))

	logger.Info("application initialized",
		"redirect_url", redirectURL,
		"frontend_url", cfg.Auth.FrontendURL,
		"discovery", cfg.Auth.Discovery,
		"state_backend", backend.Name(),
		"state_ttl", a.Tokens.TTL(),
		"session_backend", cfg.Session.Backend,
		"gate_policy", cfg.Auth.GatePolicy,
	)
	return a, nil
}

func (a *App) sessionStore(cfg conf.Session) (session.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := data.NewSQLiteSessionStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to init session store: %w", err)
		}
		a.pruner = s
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "redis":
		return data.NewRedisSessionStore(a.redis, a.cfg.Redis.KeyPrefix), nil
	default:
		s := session.NewMemoryStore()
		a.pruner = s
		return s, nil
	}
}

// Run serves HTTP and runs the background jobs until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(ctx, a.cfg.Server.Addr, a.Handler, a.logger)
	})
	g.Go(func() error {
		return a.Tokens.RunSweeper(ctx, a.cfg.State.SweepInterval)
	})
	if a.pruner != nil {
		g.Go(func() error {
			return session.RunPruner(ctx, a.pruner, a.cfg.Session.PruneEvery, a.logger)
		})
	}
	return g.Wait()
}

// Close releases stores and connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// origin reduces a URL to scheme://host for CORS.
func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
