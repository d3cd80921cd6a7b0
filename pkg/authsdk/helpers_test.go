package authsdk

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
	"github.com/stretchr/testify/require"
)

// fakeAPI accepts the "current" access token, answers token.expired for the
// "stale" one and token.invalid for anything else.
type fakeAPI struct {
	mu      sync.Mutex
	current string
	stale   string
	refresh string
	user    User
	seen    []string

	nextAccess  string
	nextRefresh string
	refreshErr  *ErrorResponse
	refreshGate chan struct{}
	alwaysStale bool

	refreshCalls atomic.Int32
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		current:     "T2",
		stale:       "T1",
		refresh:     "R1",
		nextAccess:  "T2",
		nextRefresh: "R2",
		user:        User{Email: "ada@example.com", Permissions: []string{"reports.read"}, Roles: []string{"staff"}},
	}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		if f.refreshGate != nil {
			<-f.refreshGate
		}

		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: true, Message: err.Error()})
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.refreshErr != nil {
			writeJSON(w, http.StatusUnauthorized, f.refreshErr)
			return
		}
		if req.RefreshToken != f.refresh {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: true, Code: CodeTokenInvalid, Message: "bad refresh token"})
			return
		}
		writeJSON(w, http.StatusOK, RefreshResponse{Token: f.nextAccess, RefreshToken: f.nextRefresh})
	})

	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: true, Message: err.Error()})
			return
		}
		if creds.Password != "hunter2" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: true, Code: CodeCredentialsInvalid, Message: "bad credentials"})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, SessionResponse{
			Token:        f.current,
			RefreshToken: f.refresh,
			Permissions:  f.user.Permissions,
			Roles:        f.user.Roles,
		})
	})

	protected := func(fn http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))

			f.mu.Lock()
			f.seen = append(f.seen, token)
			current, stale, alwaysStale := f.current, f.stale, f.alwaysStale
			f.mu.Unlock()

			switch {
			case alwaysStale || token == stale:
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: true, Code: CodeTokenExpired, Message: "expired"})
			case token == "" || token != current:
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: true, Code: CodeTokenInvalid, Message: "invalid"})
			default:
				fn(w, r)
			}
		}
	}

	mux.HandleFunc("GET /me", protected(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, f.user)
	}))
	mux.HandleFunc("GET /data", protected(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}))
	mux.HandleFunc("GET /broken", protected(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: true, Code: "internal", Message: "boom"})
	}))

	return mux
}

func (f *fakeAPI) seenTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type harness struct {
	api     *fakeAPI
	server  *httptest.Server
	store   *sessionstore.Memory
	headers *DefaultHeaders
	coord   *RefreshCoordinator
	client  *RequestClient
}

// newHarness wires one execution context against api with the stale token
// T1 and refresh token R1 persisted.
func newHarness(t *testing.T, api *fakeAPI, opts ...Option) *harness {
	t.Helper()

	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	opts = append([]Option{WithLogger(slogx.Discard())}, opts...)

	store := sessionstore.NewMemory()
	require.NoError(t, sessionstore.SaveTokens(t.Context(), store, sessionstore.Tokens{Access: api.stale, Refresh: api.refresh}))

	headers := NewDefaultHeaders()
	headers.SetBearer(api.stale)

	sdk := NewSDKClient(srv.URL, opts...)
	coord := NewRefreshCoordinator(sdk, store, headers, opts...)

	return &harness{
		api:     api,
		server:  srv,
		store:   store,
		headers: headers,
		coord:   coord,
		client:  NewRequestClient(sdk, store, headers, coord, opts...),
	}
}

func (h *harness) waiters() int {
	h.coord.mu.Lock()
	defer h.coord.mu.Unlock()
	return len(h.coord.waiters)
}
