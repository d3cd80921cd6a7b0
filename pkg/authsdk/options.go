package authsdk

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/broadcast"
	"github.com/aussiebroadwan/sessionkit/pkg/idx"
)

const (
	// DefaultRefreshTimeout bounds a single call to POST /refresh.
	DefaultRefreshTimeout = 15 * time.Second

	DefaultLandingPath       = "/"
	DefaultAuthenticatedPath = "/dashboard"
)

// Paths are the navigation targets used by Session.
type Paths struct {
	// Landing is where unauthenticated users go (sign-out, session loss).
	Landing string
	// Authenticated is where users go after signing in.
	Authenticated string
}

type options struct {
	logger         *slog.Logger
	httpClient     *http.Client
	metrics        *Metrics
	refreshTimeout time.Duration
	navigator      Navigator
	channel        broadcast.Channel
	paths          Paths
	contextID      string
}

// Option configures SDKClient, RefreshCoordinator, RequestClient and Session.
// Each constructor reads the options relevant to it and ignores the rest.
type Option func(*options)

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithMetrics records refresh activity in m.
func WithMetrics(m *Metrics) Option { return func(o *options) { o.metrics = m } }

func WithRefreshTimeout(d time.Duration) Option { return func(o *options) { o.refreshTimeout = d } }

func WithNavigator(n Navigator) Option { return func(o *options) { o.navigator = n } }

// WithChannel connects the session to its peers for sign-out signals.
func WithChannel(c broadcast.Channel) Option { return func(o *options) { o.channel = c } }

func WithPaths(p Paths) Option { return func(o *options) { o.paths = p } }

// WithContextID fixes the execution-context id used as broadcast origin.
func WithContextID(id string) Option { return func(o *options) { o.contextID = id } }

func buildOptions(opts []Option) options {
	o := options{
		logger:         slog.Default(),
		refreshTimeout: DefaultRefreshTimeout,
		navigator:      NopNavigator{},
		paths: Paths{
			Landing:       DefaultLandingPath,
			Authenticated: DefaultAuthenticatedPath,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.paths.Landing == "" {
		o.paths.Landing = DefaultLandingPath
	}
	if o.paths.Authenticated == "" {
		o.paths.Authenticated = DefaultAuthenticatedPath
	}
	if o.contextID == "" {
		o.contextID = idx.WithPrefix("ctx")
	}
	return o
}
