// Package app wires the Glowlogy server runtime: config, logging, storage
// backends, the booking and intake services, HTTP routes and the
// invalidation feed.
package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"glowlogy/cmd/internal/api"
	"glowlogy/cmd/internal/booking"
	"glowlogy/cmd/internal/cache"
	"glowlogy/cmd/internal/catalog"
	"glowlogy/cmd/internal/coord"
	"glowlogy/cmd/internal/docstore"
	"glowlogy/cmd/internal/events"
	"glowlogy/cmd/internal/identity"
	"glowlogy/cmd/internal/inquiry"
	"glowlogy/cmd/internal/policy"
	"glowlogy/cmd/internal/ratelimit"
	"glowlogy/cmd/internal/realtime"
	"glowlogy/cmd/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App owns every long-lived dependency of the server.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool
	closers   []namedCloser

	metrics  *telemetry.Metrics
	policy   *policy.Policy
	store    docstore.Store
	cache    *cache.Tiered
	local    *ratelimit.Memory
	shared   *ratelimit.Postgres
	bookings *booking.Service

	hub *realtime.Hub
	ws  *realtime.WSGateway
	api *api.Handler
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

// New constructs a fully wired App. On error every resource opened so far is
// released.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	a := &App{cfg: cfg, log: log, metrics: telemetry.NewMetrics()}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	shutdownTracer, err := telemetry.InitTracer(ctx, log, "glowlogy", cfg.Version, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.onClose("tracer", shutdownTracer)

	a.policy, err = policy.Load(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		return nil, err
	}
	limiter, err := a.openLimiter(ctx)
	if err != nil {
		return nil, err
	}
	pub, err := a.openEvents()
	if err != nil {
		return nil, err
	}

	a.hub = realtime.NewHub(log, slices.Sorted(maps.Keys(a.policy.Cache.TTL)), a.metrics)
	a.cache.OnInvalidate(a.hub.Publish)
	a.ws = realtime.NewWSGateway(log, a.hub, realtime.GatewayConfig{
		AllowedOrigins: cfg.WSAllowedOrigins,
		OriginRequired: cfg.WSOriginRequired,
	})

	co := coord.New(a.metrics)
	limits := a.policy.Limits()

	a.bookings, err = booking.NewService(booking.Deps{
		Store:   a.store,
		Cache:   a.cache,
		Limiter: limiter,
		Coord:   co,
		Events:  pub,
		Log:     log,
	},
		booking.WithPolicy(limits.Booking),
		booking.WithSlots(a.policy.Slots),
		booking.WithBatchWindow(cfg.BatchWindow),
		booking.WithBatchObserver(a.metrics),
	)
	if err != nil {
		return nil, err
	}

	inquiries, err := inquiry.NewService(inquiry.Deps{
		Store:   a.store,
		Limiter: limiter,
		Events:  pub,
		Log:     log,
	},
		inquiry.WithPolicy(inquiry.KindContact, limits.Contact),
		inquiry.WithPolicy(inquiry.KindMembership, limits.Membership),
		inquiry.WithPolicy(inquiry.KindCallback, limits.Callback),
		inquiry.WithPolicy(inquiry.KindNewsletter, limits.Newsletter),
	)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.New(catalog.Deps{
		Store: a.store,
		Cache: a.cache,
		Coord: co,
		Log:   log,
	}, catalog.WithBatchWindow(cfg.BatchWindow), catalog.WithBatchObserver(a.metrics))
	if err != nil {
		return nil, err
	}

	ids, err := a.identityResolver()
	if err != nil {
		return nil, err
	}

	a.api, err = api.NewHandler(log, api.Config{
		MaxBodyBytes:   cfg.MaxBodyBytes,
		SessionCookie:  cfg.SessionCookie,
		CookieDomain:   cfg.CookieDomain,
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: api.ParseSameSite(cfg.CookieSameSite),
	}, api.Deps{
		Bookings:  a.bookings,
		Inquiries: inquiries,
		Catalog:   cat,
		Identity:  ids,
	}, api.WithObserver(a.metrics))
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Bookings exposes the booking service for CLI commands.
func (a *App) Bookings() *booking.Service { return a.bookings }

// Cache exposes the tiered cache for CLI commands.
func (a *App) Cache() *cache.Tiered { return a.cache }

// Handler returns the complete HTTP handler: routes plus middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.metrics, a.ws, a.api)
	return WithRequestLogging(WithSecurityHeaders(WithCORS(mux, a.cfg, a.log)), a.log, a.metrics)
}

// Run starts the HTTP server and the janitor and blocks until context
// cancellation or a fatal server error. Resources are closed on return.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled, "version", a.cfg.Version)

	jctx, stopJanitor := context.WithCancel(ctx)
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		a.runJanitor(jctx, nonZeroDuration(a.cfg.JanitorInterval, 5*time.Minute))
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	stopJanitor()
	<-janitorDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}
	a.Close(shutdownCtx)

	a.log.Info("server.stopped")
	return runErr
}

// Close releases resources in reverse order of acquisition. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			a.log.Error("app.close.fail", "resource", c.name, "err", err)
		}
	}
	a.closers = nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// openStore decides between the Postgres document store and the in-memory dev store.
func (a *App) openStore(ctx context.Context) error {
	if strings.TrimSpace(a.cfg.DatabaseURL) == "" {
		a.log.Warn("db.disabled.memory_store")
		a.store = docstore.Traced(docstore.NewMemory())
		return nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	// Ownership model: the app owns the pool; stores built on it do not close it.
	a.dbPool, a.dbEnabled = pool, true
	a.onClose("db", func(context.Context) error { pool.Close(); return nil })

	pg, err := docstore.NewPostgres(pool)
	if err != nil {
		return err
	}
	if a.cfg.DBAutoMigrate {
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("docstore schema: %w", err)
		}
	}
	a.store = docstore.Traced(pg)
	a.log.Info("db.enabled.postgres_store")
	return nil
}

func (a *App) openCache(ctx context.Context) error {
	var kv cache.KV
	if path := strings.TrimSpace(a.cfg.CachePath); path != "" {
		var opts []cache.SQLiteOption
		if a.cfg.CacheQuotaPages > 0 {
			opts = append(opts, cache.WithQuotaPages(a.cfg.CacheQuotaPages))
		}
		sq, err := cache.OpenSQLiteKV(ctx, path, opts...)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		a.onClose("cache", func(context.Context) error { return sq.Close() })
		kv = sq
		a.log.Info("cache.durable.sqlite", "path", path)
	} else {
		kv = cache.NewMemoryKV(0)
		a.log.Info("cache.durable.memory")
	}

	a.cache = cache.New(kv,
		cache.WithTTLs(a.policy.Cache.TTL),
		cache.WithKeyPrefix(a.cfg.CacheKeyPrefix),
		cache.WithLogger(a.log),
		cache.WithObserver(a.metrics),
	)
	return nil
}

func (a *App) openLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	a.local = ratelimit.NewMemory()
	if !a.cfg.SharedRateLimits {
		return a.local, nil
	}
	if a.dbPool == nil {
		return nil, errors.New("shared rate limits require a database")
	}
	pg, err := ratelimit.NewPostgres(a.dbPool)
	if err != nil {
		return nil, err
	}
	if a.cfg.DBAutoMigrate {
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ratelimit schema: %w", err)
		}
	}
	a.shared = pg
	a.log.Info("ratelimit.shared.postgres")
	return ratelimit.NewLayered(a.local, pg), nil
}

func (a *App) openEvents() (events.Publisher, error) {
	if strings.TrimSpace(a.cfg.AMQPURL) == "" {
		a.log.Info("events.disabled")
		return events.Noop{}, nil
	}
	pub, err := events.DialAMQP(a.cfg.AMQPURL, a.cfg.AMQPExchange)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	a.onClose("events", func(context.Context) error { return pub.Close() })
	a.log.Info("events.enabled.amqp", "exchange", a.cfg.AMQPExchange)
	return pub, nil
}

func (a *App) identityResolver() (identity.Resolver, error) {
	if a.cfg.IdentitySecret == "" {
		a.log.Warn("identity.disabled.guest_only")
		return identity.Guest{}, nil
	}
	v, err := identity.NewTokenVerifier([]byte(a.cfg.IdentitySecret),
		identity.WithIssuer(a.cfg.IdentityIssuer),
		identity.WithAudience(a.cfg.IdentityAudience),
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
