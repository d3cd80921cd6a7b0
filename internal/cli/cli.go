// Package cli implements sessionctl, a command-line execution context for a
// session API. Each invocation loads the persisted session, runs one
// command and exits.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
	"github.com/spf13/cobra"
)

const (
	DefaultAPIURL    = "http://localhost:8080"
	DefaultRedisAddr = "localhost:6379"
)

// Config holds the global flags.
type Config struct {
	APIURL       string
	Store        string
	DatabaseFile string
	RedisAddr    string
	Verbose      bool
}

// Runtime carries the I/O streams and the Env factory shared by commands.
type Runtime struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Open builds the per-command Env. Defaults to the package Open.
	Open OpenFunc

	cfg    Config
	logger *slog.Logger
}

func NewRuntime(in io.Reader, out, errOut io.Writer) *Runtime {
	return &Runtime{In: in, Out: out, Err: errOut, Open: Open}
}

// NewRootCommand returns the sessionctl command tree.
func NewRootCommand(r *Runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Sign in to a session API and make authenticated requests",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if r.cfg.Verbose {
				level = "debug"
			}
			r.logger = slogx.New(slogx.Config{
				Service: "sessionctl",
				Env:     "cli",
				Level:   level,
				Format:  "text",
				Output:  r.Err,
			})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&r.cfg.APIURL, "api-url", envOr("SESSIONCTL_API_URL", DefaultAPIURL), "session API base URL")
	flags.StringVar(&r.cfg.Store, "store", envOr("SESSIONCTL_STORE", StoreSQLite), "session store: sqlite or redis")
	flags.StringVar(&r.cfg.DatabaseFile, "db", envOr("SESSIONCTL_DATABASE_FILE", defaultDatabaseFile()), "sqlite session file")
	flags.StringVar(&r.cfg.RedisAddr, "redis-addr", os.Getenv("SESSIONCTL_REDIS_ADDR"), "redis address for the store and sign-out notifications")
	flags.BoolVarP(&r.cfg.Verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		r.loginCommand(),
		r.whoamiCommand(),
		r.getCommand(),
		r.logoutCommand(),
		r.watchCommand(),
	)
	return root
}

// withEnv opens an Env for the duration of fn.
func (r *Runtime) withEnv(ctx context.Context, fn func(*Env) error) error {
	logger := r.logger
	if logger == nil {
		logger = slogx.Discard()
	}
	env, err := r.Open(ctx, r.cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			logger.Warn("failed to close session", "error", err)
		}
	}()
	return fn(env)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultDatabaseFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "sessionctl.db"
	}
	return filepath.Join(dir, "sessionctl", "session.db")
}
