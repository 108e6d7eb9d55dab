// Package app wires the services an outer API layer consumes.
package app

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	auditmetrics "projectdesk/internal/audit/metrics"
	auditservice "projectdesk/internal/audit/service"
	auditmemory "projectdesk/internal/audit/store/memory"
	auditpostgres "projectdesk/internal/audit/store/postgres"
	"projectdesk/internal/identity/cache"
	"projectdesk/internal/identity/provider"
	"projectdesk/internal/platform/config"
	"projectdesk/internal/platform/metrics"
	"projectdesk/internal/platform/middleware"
	"projectdesk/internal/platform/postgres"
	"projectdesk/internal/platform/redis"
	"projectdesk/internal/platform/txscope"
	projectmetrics "projectdesk/internal/project/metrics"
	projectservice "projectdesk/internal/project/service"
	projectmemory "projectdesk/internal/project/store/memory"
	projectpostgres "projectdesk/internal/project/store/postgres"
	userservice "projectdesk/internal/user/service"
	usermemory "projectdesk/internal/user/store/memory"
	userpostgres "projectdesk/internal/user/store/postgres"
)

type App struct {
	Projects *projectservice.Service
	Users    *userservice.Service
	Audit    *auditservice.Service
	Identity *provider.Provider

	log     *slog.Logger
	closers []func() error
}

type stores struct {
	projects interface {
		projectservice.Store
		userservice.CreatorDetacher
	}
	users userservice.Store
	audit auditservice.Store
	tx    txscope.Scope
}

// New connects to Postgres (and Redis when configured) and builds the services.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer) (*App, error) {
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a, err := build(ctx, cfg, log, reg, postgresStores(db, cfg))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.closers = append([]func() error{db.Close}, a.closers...)
	return a, nil
}

// NewInMemory builds the services over in-memory stores for tests and local runs.
func NewInMemory(cfg config.Config, log *slog.Logger, reg prometheus.Registerer) *App {
	projects := projectmemory.NewInMemoryStore()
	cfg.Redis.URL = ""
	a, _ := build(context.Background(), cfg, log, reg, stores{
		projects: projects,
		users:    usermemory.NewInMemoryStore(),
		audit:    auditmemory.NewInMemoryStore(projects),
		tx:       txscope.NewInMemory(cfg.TxTimeout),
	})
	return a
}

func postgresStores(db *sql.DB, cfg config.Config) stores {
	return stores{
		projects: projectpostgres.New(db),
		users:    userpostgres.New(db),
		audit:    auditpostgres.New(db),
		tx:       txscope.NewPostgres(db, cfg.TxTimeout),
	}
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer, st stores) (*App, error) {
	a := &App{log: log}

	providerOpts := []provider.Option{provider.WithLogger(log), provider.WithTTL(cfg.Auth.TokenTTL)}
	userOpts := []userservice.Option{userservice.WithLogger(log), userservice.WithMetrics(metrics.New(reg))}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client != nil {
		identityCache := cache.NewRedis(client.Client, cfg.Auth.IdentityCacheTTL)
		providerOpts = append(providerOpts, provider.WithCache(identityCache))
		userOpts = append(userOpts, userservice.WithIdentityCache(identityCache))
		a.closers = append(a.closers, client.Close)
	}

	a.Audit = auditservice.New(st.audit,
		auditservice.WithLogger(log),
		auditservice.WithMetrics(auditmetrics.New(reg)),
	)
	a.Projects = projectservice.New(st.projects, a.Audit, st.tx,
		projectservice.WithLogger(log),
		projectservice.WithMetrics(projectmetrics.New(reg)),
	)
	a.Users = userservice.New(st.users, st.projects, st.tx, userOpts...)
	a.Identity = provider.New(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, st.users, providerOpts...)
	return a, nil
}

// Authenticated wraps an outer API handler so every request carries a request id
// and a resolved actor.
func (a *App) Authenticated(next http.Handler) http.Handler {
	return middleware.RequestID(middleware.RequireIdentity(a.Identity, a.log)(next))
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
