package guard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/sessionkit/pkg/authz"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
)

type ctxKey struct{}

// FromContext returns the PageContext Middleware attached to the request.
func FromContext(ctx context.Context) (PageContext, bool) {
	pc, ok := ctx.Value(ctxKey{}).(PageContext)
	return pc, ok
}

// Middleware applies the guard to plain handlers using the request cookies
// as the session store. Redirects use 302 (303 for non-GET requests).
// The handler's own failures cannot be observed here; use Handler for views
// whose failure should end the session.
func Middleware(req authz.Requirement, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			st := sessionstore.NewCookies(w, r)
			st.Secure = r.TLS != nil

			d, err := Check(ctx, st, req)
			if err != nil {
				o.log(ctx).ErrorContext(ctx, "guard: read session", slog.String("error", err.Error()))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			switch d.Outcome {
			case SignedOut:
				if d.Err != nil {
					_ = sessionstore.ClearTokens(ctx, st)
				}
				redirect(w, r, o.landing)
				return
			case Forbidden:
				redirect(w, r, o.authenticated)
				return
			}

			pc := PageContext{Store: st, Token: d.Token, Claims: d.Claims}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, ctxKey{}, pc)))
		})
	}
}

// RenderFunc writes a view from its props.
type RenderFunc[P any] func(w http.ResponseWriter, r *http.Request, props P)

// Handler serves fn through WithSSRAuth over the request cookies. Redirect
// results become HTTP redirects; props are passed to render.
func Handler[P any](fn PageFunc[P], req authz.Requirement, render RenderFunc[P], opts ...Option) http.Handler {
	o := buildOptions(opts)
	page := WithSSRAuth(fn, req, opts...)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		st := sessionstore.NewCookies(w, r)
		st.Secure = r.TLS != nil

		res, err := page(ctx, PageContext{Store: st})
		if err != nil {
			o.log(ctx).ErrorContext(ctx, "guard: render", slog.String("error", err.Error()))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if res.Redirect != nil {
			status := http.StatusFound
			if res.Redirect.Permanent {
				status = http.StatusPermanentRedirect
			}
			http.Redirect(w, r, res.Redirect.Destination, status)
			return
		}
		render(w, r, res.Props)
	})
}

func redirect(w http.ResponseWriter, r *http.Request, dest string) {
	status := http.StatusFound
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, dest, status)
}
