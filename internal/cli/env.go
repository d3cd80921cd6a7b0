package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/sessionkit/pkg/authsdk"
	"github.com/aussiebroadwan/sessionkit/pkg/broadcast"
	"github.com/aussiebroadwan/sessionkit/pkg/broadcast/redisbus"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore/redisstore"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore/sqlite"
	"github.com/redis/go-redis/v9"
)

// UserAgent identifies sessionctl to the session API.
const UserAgent = "sessionctl"

// Store backends for the persisted session.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Env is the client stack of one sessionctl invocation. Every invocation is
// its own execution context; invocations share the session through the
// store and hear each other's sign-outs through the channel.
type Env struct {
	Client  *authsdk.RequestClient
	Session *authsdk.Session
	Channel broadcast.Channel

	closers []func() error
}

// NewEnv wires an SDK client, request client, refresh coordinator and
// session over store and ch.
func NewEnv(baseURL string, store sessionstore.Store, ch broadcast.Channel, opts ...authsdk.Option) *Env {
	opts = append([]authsdk.Option{authsdk.WithChannel(ch)}, opts...)

	sdk := authsdk.NewSDKClient(baseURL, opts...)
	headers := authsdk.NewDefaultHeaders()
	headers.Set("User-Agent", UserAgent)
	coord := authsdk.NewRefreshCoordinator(sdk, store, headers, opts...)
	client := authsdk.NewRequestClient(sdk, store, headers, coord, opts...)

	return &Env{
		Client:  client,
		Session: authsdk.NewSession(client, opts...),
		Channel: ch,
	}
}

// Close releases the store and channel connections.
func (e *Env) Close() error {
	var errs []error
	if e.Session != nil {
		errs = append(errs, e.Session.Close())
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

// OpenFunc builds the Env for one command.
type OpenFunc func(ctx context.Context, cfg Config, logger *slog.Logger) (*Env, error)

// Open is the default OpenFunc. The sqlite store shares the session between
// processes on one machine; sign-out notifications cross processes only when
// a Redis address is configured.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Env, error) {
	var (
		store   sessionstore.Store
		ch      broadcast.Channel = broadcast.NewHub()
		closers []func() error
	)

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	if cfg.Store == StoreRedis || cfg.RedisAddr != "" {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = DefaultRedisAddr
		}
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		closers = append(closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
		}
		ch = redisbus.New(rdb, broadcast.DefaultTopic, logger)
		if cfg.Store == StoreRedis {
			store = redisstore.New(rdb, "sessionctl:")
		}
	}

	switch cfg.Store {
	case StoreRedis:
	case StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.DatabaseFile), 0o700); err != nil {
			closeAll()
			return nil, fmt.Errorf("create session directory: %w", err)
		}
		st, err := sqlite.Open(cfg.DatabaseFile)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open session store: %w", err)
		}
		store = st
		closers = append(closers, st.Close)
	default:
		closeAll()
		return nil, fmt.Errorf("unknown store %q (want sqlite or redis)", cfg.Store)
	}

	nav := authsdk.NavigatorFunc(func(ctx context.Context, path string) {
		logger.DebugContext(ctx, "navigate", slog.String("path", path))
	})

	env := NewEnv(cfg.APIURL, store, ch,
		authsdk.WithLogger(logger),
		authsdk.WithNavigator(nav),
	)
	env.closers = closers
	return env, nil
}
