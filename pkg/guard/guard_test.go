package guard_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/authz"
	"github.com/aussiebroadwan/sessionkit/pkg/guard"
	"github.com/aussiebroadwan/sessionkit/pkg/jwtx"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type props struct {
	Email string
}

func token(t *testing.T, perms, roles []string) string {
	t.Helper()
	keys, err := jwtx.GenerateEdDSAKeys("test")
	require.NoError(t, err)
	tok, err := keys.Sign(jwtx.NewAccessClaims("ada@example.com", perms, roles, time.Minute, "test", time.Now()))
	require.NoError(t, err)
	return tok
}

func storeWith(t *testing.T, access string) *sessionstore.Memory {
	t.Helper()
	st := sessionstore.NewMemory()
	if access != "" {
		require.NoError(t, sessionstore.SaveTokens(t.Context(), st, sessionstore.Tokens{Access: access, Refresh: "r"}))
	}
	return st
}

func TestWithSSRAuth(t *testing.T) {
	t.Parallel()

	view := func(_ context.Context, pc guard.PageContext) (guard.PageResult[props], error) {
		return guard.PageResult[props]{Props: props{Email: pc.Claims.Principal()}}, nil
	}
	failing := func(context.Context, guard.PageContext) (guard.PageResult[props], error) {
		return guard.PageResult[props]{}, errors.New("backend said 401")
	}
	admin := authz.Requirement{Permissions: []string{"users.list"}, Roles: []string{"admin"}}
	opts := []guard.Option{guard.WithLogger(slogx.Discard())}

	tests := []struct {
		name     string
		token    string
		fn       guard.PageFunc[props]
		req      authz.Requirement
		redirect string
		email    string
		cleared  bool
	}{
		{name: "no token", fn: view, req: admin, redirect: "/"},
		{name: "no token without requirement", fn: view, redirect: "/"},
		{name: "allowed", token: token(t, []string{"users.list"}, []string{"admin"}), fn: view, req: admin, email: "ada@example.com"},
		{name: "missing permission", token: token(t, nil, []string{"admin"}), fn: view, req: admin, redirect: "/dashboard"},
		{name: "missing role", token: token(t, []string{"users.list"}, []string{"staff"}), fn: view, req: admin, redirect: "/dashboard"},
		{name: "opaque token without requirement", token: "opaque", fn: view},
		{name: "opaque token with requirement", token: "opaque", fn: view, req: admin, redirect: "/", cleared: true},
		{name: "view fails", token: token(t, []string{"users.list"}, []string{"admin"}), fn: failing, req: admin, redirect: "/", cleared: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := storeWith(t, tt.token)
			page := guard.WithSSRAuth(tt.fn, tt.req, opts...)

			res, err := page(t.Context(), guard.PageContext{Store: st})
			require.NoError(t, err)

			if tt.redirect == "" {
				require.Nil(t, res.Redirect)
				require.Equal(t, tt.email, res.Props.Email)
			} else {
				require.NotNil(t, res.Redirect)
				require.Equal(t, tt.redirect, res.Redirect.Destination)
				require.False(t, res.Redirect.Permanent)
			}

			tokens, err := sessionstore.LoadTokens(t.Context(), st)
			require.NoError(t, err)
			if tt.cleared {
				require.Equal(t, sessionstore.Tokens{}, tokens)
			} else {
				require.Equal(t, tt.token, tokens.Access)
			}
		})
	}
}

func TestWithSSRAuthCustomPaths(t *testing.T) {
	t.Parallel()

	page := guard.WithSSRAuth(func(context.Context, guard.PageContext) (guard.PageResult[props], error) {
		return guard.PageResult[props]{}, nil
	}, authz.Requirement{Roles: []string{"admin"}}, guard.WithPaths("/login", "/home"))

	res, err := page(t.Context(), guard.PageContext{Store: storeWith(t, "")})
	require.NoError(t, err)
	require.Equal(t, "/login", res.Redirect.Destination)

	res, err = page(t.Context(), guard.PageContext{Store: storeWith(t, token(t, nil, []string{"staff"}))})
	require.NoError(t, err)
	require.Equal(t, "/home", res.Redirect.Destination)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	h := guard.Middleware(authz.Requirement{Permissions: []string{"metrics.read"}}, guard.WithLogger(slogx.Discard()))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pc, ok := guard.FromContext(r.Context())
			require.True(t, ok)
			_, _ = io.WriteString(w, pc.Claims.Principal())
		}),
	)

	serve := func(method, tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/metrics", nil)
		if tok != "" {
			req.AddCookie(&http.Cookie{Name: sessionstore.TokenKey, Value: tok})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("allowed", func(t *testing.T) {
		rec := serve(http.MethodGet, token(t, []string{"metrics.read"}, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "ada@example.com", rec.Body.String())
	})

	t.Run("no cookie", func(t *testing.T) {
		rec := serve(http.MethodGet, "")
		require.Equal(t, http.StatusFound, rec.Code)
		require.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("forbidden post", func(t *testing.T) {
		rec := serve(http.MethodPost, token(t, nil, nil))
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/dashboard", rec.Header().Get("Location"))
	})

	t.Run("undecodable token clears cookies", func(t *testing.T) {
		rec := serve(http.MethodGet, "garbage")
		require.Equal(t, http.StatusFound, rec.Code)
		require.Equal(t, "/", rec.Header().Get("Location"))

		cleared := map[string]bool{}
		for _, c := range rec.Result().Cookies() {
			if c.MaxAge < 0 {
				cleared[c.Name] = true
			}
		}
		require.True(t, cleared[sessionstore.TokenKey])
		require.True(t, cleared[sessionstore.RefreshTokenKey])
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()

	var fail bool
	h := guard.Handler(
		func(_ context.Context, pc guard.PageContext) (guard.PageResult[props], error) {
			if fail {
				return guard.PageResult[props]{}, errors.New("boom")
			}
			return guard.PageResult[props]{Props: props{Email: pc.Token}}, nil
		},
		authz.Requirement{},
		func(w http.ResponseWriter, _ *http.Request, p props) { _, _ = io.WriteString(w, p.Email) },
		guard.WithLogger(slogx.Discard()),
	)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: sessionstore.TokenKey, Value: "opaque"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "opaque", rec.Body.String())

	fail = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
	require.Len(t, rec.Result().Cookies(), 2)
}
