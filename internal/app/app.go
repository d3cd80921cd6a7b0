// Package app wires the dev session server: configuration, refresh token
// storage, signing keys, the HTTP router and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/sessionkit/internal/devserver"
	"github.com/aussiebroadwan/sessionkit/pkg/jwtx"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore/redisstore"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore/sqlite"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the session server with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store   sessionstore.Store
	closers []io.Closer

	keys         *jwtx.EdDSAKeys
	service      *devserver.Service
	housekeeping *devserver.Housekeeping // only for stores that need sweeping

	server *http.Server
	router *devserver.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "sessiond",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}
	if err := app.initServices(); err != nil {
		app.closeStore()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler exposes the router, mainly for in-process tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	if app.housekeeping != nil {
		app.housekeeping.Start()
	}

	app.logger.Info("session server starting",
		"addr", app.cfg.Addr,
		"store", app.cfg.Store,
		"version", BuildVersion,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down session server...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.housekeeping != nil {
		app.housekeeping.Stop()
	}

	if err := app.closeStore(); err != nil {
		return err
	}

	app.logger.Info("session server stopped")
	return nil
}

// initStore opens the refresh token store selected by cfg.Store.
func (app *Application) initStore() error {
	switch app.cfg.Store {
	case StoreSQLite:
		st, err := sqlite.Open(app.cfg.DatabaseFile)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		app.store = st
		app.closers = append(app.closers, st)
		app.housekeeping = devserver.NewHousekeeping(st, app.logger, app.cfg.HousekeepingInterval)
		app.logger.Info("database migrations applied successfully", "file", app.cfg.DatabaseFile)

	case StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("failed to connect to redis at %s: %w", app.cfg.RedisAddr, err)
		}
		app.store = redisstore.New(rdb, "sessiond:")
		app.closers = append(app.closers, rdb)

	default:
		app.store = sessionstore.NewMemory()
	}
	return nil
}

func (app *Application) closeStore() error {
	var errs []error
	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			app.logger.Error("error closing store", "error", err)
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

// initServices creates the signing keys, seeds accounts and builds the
// session service.
func (app *Application) initServices() error {
	keys, err := jwtx.GenerateEdDSAKeys(app.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keys = keys

	users := devserver.NewUsers()
	if app.cfg.SeedUsers != "" {
		seeds, err := devserver.ParseSeedUsers(app.cfg.SeedUsers)
		if err != nil {
			return fmt.Errorf("invalid SEED_USERS: %w", err)
		}
		if err := users.Seed(seeds); err != nil {
			return err
		}
		app.logger.Info("seeded users", "count", len(seeds))
	}

	app.service = &devserver.Service{
		Users:     users,
		Refresh:   devserver.NewRefreshTokens(app.store, app.cfg.RefreshTokenTTL),
		Signer:    keys,
		Issuer:    app.cfg.Issuer,
		AccessTTL: app.cfg.AccessTokenTTL,
		Now:       time.Now,
	}
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := devserver.NewRouter(app.service, app.keys, BuildVersion, reg, app.logger)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              app.cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
