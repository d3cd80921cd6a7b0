// Package devserver is a reference backend for the session endpoints:
// POST /sessions, POST /refresh and GET /me, plus a permission-gated
// GET /users. Access tokens are short-lived EdDSA JWTs; refresh tokens are
// opaque and rotate on every use.
package devserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/authz"
	"github.com/aussiebroadwan/sessionkit/pkg/httpx"
	"github.com/aussiebroadwan/sessionkit/pkg/jwtx"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UsersPermission gates GET /users.
const UsersPermission = "users.list"

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	service      *Service
	verifier     jwtx.Verifier
	metrics      *Metrics
	gatherer     prometheus.Gatherer
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	// LoginLimit and RefreshLimit rate-limit the session endpoints;
	// ReadLimit applies per principal to authenticated reads.
	LoginLimit   httpx.RateLimitConfig
	RefreshLimit httpx.RateLimitConfig
	ReadLimit    httpx.RateLimitConfig
}

// NewRouter builds the router. reg may be nil, in which case no metrics are
// recorded or exposed.
func NewRouter(
	svc *Service,
	verifier jwtx.Verifier,
	buildVersion string,
	reg *prometheus.Registry,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		service:      svc,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		LoginLimit:   httpx.StrictLimit,
		RefreshLimit: httpx.ModerateLimit,
		ReadLimit:    httpx.ModerateLimit,
	}
	if reg != nil {
		r.metrics = NewMetrics(reg)
		r.gatherer = reg
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSessions()
	r.registerUsers()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSessions() {
	// Brute-force protection per IP and e-mail.
	r.Mux.Handle("POST /sessions",
		httpx.Chain(&SessionsHandler{Service: r.service, Metrics: r.metrics},
			httpx.RateLimitByIPAndJSONField(r.LoginLimit, "email"),
		),
	)

	r.Mux.Handle("POST /refresh",
		httpx.Chain(&RefreshHandler{Service: r.service, Metrics: r.metrics},
			httpx.RateLimitByIP(r.RefreshLimit),
		),
	)

	r.Mux.Handle("GET /me",
		httpx.Chain(MeHandler(r.service),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByPrincipal(r.ReadLimit),
		),
	)
}

func (r *Router) registerUsers() {
	r.Mux.Handle("GET /users",
		httpx.Chain(UsersHandler(r.service),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByPrincipal(r.ReadLimit),
			httpx.RequirePermissions(authz.Requirement{Permissions: []string{UsersPermission}}),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	if r.gatherer != nil {
		r.Mux.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	}
}
