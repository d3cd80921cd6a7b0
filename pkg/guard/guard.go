// Package guard gates server-rendered views behind the persisted session.
//
// Claims are read from the access token WITHOUT verifying its signature
// (see jwtx.Decode). The guard only decides whether to render or redirect;
// the data behind a view must still be fetched with the same token from a
// server that verifies it. Do not use the guard as the only check on data.
package guard

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/sessionkit/pkg/authz"
	"github.com/aussiebroadwan/sessionkit/pkg/jwtx"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
)

const (
	DefaultLandingPath       = "/"
	DefaultAuthenticatedPath = "/dashboard"
)

// Outcome of a guard check.
type Outcome int

const (
	// Allow renders the view.
	Allow Outcome = iota
	// SignedOut redirects to the landing view: there is no usable session.
	SignedOut
	// Forbidden redirects to the authenticated landing view: the user is
	// signed in but lacks the requirement.
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case SignedOut:
		return "signed_out"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Decision is the result of Check.
type Decision struct {
	Outcome Outcome
	// Token is the persisted access token, if any.
	Token string
	// Claims are the decoded token claims. Only set when a requirement was
	// checked.
	Claims jwtx.Claims
	// Err explains a SignedOut outcome caused by a bad token.
	Err error
}

// Redirect is a navigation instruction in place of a rendered view.
type Redirect struct {
	Destination string
	Permanent   bool
}

type options struct {
	landing       string
	authenticated string
	logger        *slog.Logger
}

// Option configures the guard.
type Option func(*options)

// WithPaths overrides the redirect targets.
func WithPaths(landing, authenticated string) Option {
	return func(o *options) {
		if landing != "" {
			o.landing = landing
		}
		if authenticated != "" {
			o.authenticated = authenticated
		}
	}
}

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func buildOptions(opts []Option) options {
	o := options{
		landing:       DefaultLandingPath,
		authenticated: DefaultAuthenticatedPath,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) log(ctx context.Context) *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return slogx.FromContext(ctx)
}

// Check decides whether the session in st may see a view with requirement
// req. A zero requirement only needs a token; the token is not decoded.
// Errors reading the store are returned as is.
func Check(ctx context.Context, st sessionstore.Store, req authz.Requirement) (Decision, error) {
	token, err := sessionstore.AccessToken(ctx, st)
	if err != nil {
		return Decision{}, err
	}
	if token == "" {
		return Decision{Outcome: SignedOut}, nil
	}
	if req.IsZero() {
		return Decision{Outcome: Allow, Token: token}, nil
	}

	claims, err := jwtx.Decode(token)
	if err != nil {
		return Decision{Outcome: SignedOut, Token: token, Err: err}, nil
	}
	if !authz.Check(claims.Authz(), req) {
		return Decision{Outcome: Forbidden, Token: token, Claims: claims}, nil
	}
	return Decision{Outcome: Allow, Token: token, Claims: claims}, nil
}
