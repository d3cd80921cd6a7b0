package guard

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/sessionkit/pkg/authz"
	"github.com/aussiebroadwan/sessionkit/pkg/jwtx"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
)

// PageContext is what a guarded view receives.
type PageContext struct {
	Store  sessionstore.Store
	Token  string
	Claims jwtx.Claims
}

// PageResult is either props to render with or a redirect.
type PageResult[P any] struct {
	Props    P
	Redirect *Redirect
}

// PageFunc produces a server-rendered view.
type PageFunc[P any] func(ctx context.Context, pc PageContext) (PageResult[P], error)

// WithSSRAuth wraps fn so it only runs for a signed-in session meeting req.
//
//   - no token: redirect to "/"
//   - req not met by the decoded claims: redirect to "/dashboard"
//   - undecodable token, or fn fails: persisted tokens are cleared and the
//     result redirects to "/"
//
// The returned PageFunc never returns an error for the cases above. Store
// failures are returned.
func WithSSRAuth[P any](fn PageFunc[P], req authz.Requirement, opts ...Option) PageFunc[P] {
	o := buildOptions(opts)

	return func(ctx context.Context, pc PageContext) (PageResult[P], error) {
		var zero PageResult[P]

		d, err := Check(ctx, pc.Store, req)
		if err != nil {
			return zero, err
		}

		switch d.Outcome {
		case SignedOut:
			if d.Err != nil {
				o.log(ctx).WarnContext(ctx, "guard: undecodable token", slog.String("error", d.Err.Error()))
				if err := sessionstore.ClearTokens(ctx, pc.Store); err != nil {
					return zero, err
				}
			}
			return PageResult[P]{Redirect: &Redirect{Destination: o.landing}}, nil
		case Forbidden:
			return PageResult[P]{Redirect: &Redirect{Destination: o.authenticated}}, nil
		}

		pc.Token = d.Token
		pc.Claims = d.Claims

		res, err := fn(ctx, pc)
		if err != nil {
			o.log(ctx).WarnContext(ctx, "guard: view failed, clearing session", slog.String("error", err.Error()))
			if cerr := sessionstore.ClearTokens(ctx, pc.Store); cerr != nil {
				return zero, cerr
			}
			return PageResult[P]{Redirect: &Redirect{Destination: o.landing}}, nil
		}
		return res, nil
	}
}
