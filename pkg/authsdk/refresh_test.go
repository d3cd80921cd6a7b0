package authsdk

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/broadcast"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestConcurrentExpiryRefreshesOnce(t *testing.T) {
	t.Parallel()

	const callers = 12

	api := newFakeAPI()
	api.refreshGate = make(chan struct{})

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	h := newHarness(t, api, WithMetrics(metrics))

	var g errgroup.Group
	responses := make([]*Response, callers)
	for i := range callers {
		g.Go(func() error {
			resp, err := h.client.Send(t.Context(), Request{Method: http.MethodGet, Path: "/data"})
			responses[i] = resp
			return err
		})
	}

	// Hold the refresh until every caller has queued behind it.
	require.Eventually(t, func() bool { return h.waiters() == callers }, 5*time.Second, 5*time.Millisecond)
	require.True(t, h.coord.InFlight())
	close(api.refreshGate)

	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), api.refreshCalls.Load())
	require.False(t, h.coord.InFlight())

	for _, resp := range responses {
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// Every replay carried the refreshed token.
	seen := api.seenTokens()
	var replays int
	for _, tok := range seen {
		if tok != "T1" {
			require.Equal(t, "T2", tok)
			replays++
		}
	}
	require.Equal(t, callers, replays)

	tokens, err := sessionstore.LoadTokens(t.Context(), h.store)
	require.NoError(t, err)
	require.Equal(t, sessionstore.Tokens{Access: "T2", Refresh: "R2"}, tokens)
	require.Equal(t, "T2", h.headers.Bearer())

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.refreshes.WithLabelValues("success")))
	require.Equal(t, float64(callers-1), testutil.ToFloat64(metrics.waiters))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.refreshInFlight))
}

func TestRefreshFailureRejectsEveryCaller(t *testing.T) {
	t.Parallel()

	const callers = 8

	api := newFakeAPI()
	api.refreshGate = make(chan struct{})
	api.refreshErr = &ErrorResponse{Error: true, Code: CodeTokenInvalid, Message: "revoked"}

	h := newHarness(t, api)

	// Runs after the tokens are gone and before waiters are released.
	var failed []error
	var atFailure []sessionstore.Tokens
	h.coord.OnFailure(func(ctx context.Context, err error) {
		tokens, _ := sessionstore.LoadTokens(ctx, h.store)
		atFailure = append(atFailure, tokens)
		failed = append(failed, err)
	})

	errs := make([]error, callers)
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			_, errs[i] = h.client.Send(t.Context(), Request{Path: "/data"})
			return nil
		})
	}

	require.Eventually(t, func() bool { return h.waiters() == callers }, 5*time.Second, 5*time.Millisecond)
	close(api.refreshGate)
	require.NoError(t, g.Wait())

	require.Equal(t, int32(1), api.refreshCalls.Load())
	require.Len(t, failed, 1)
	require.ErrorIs(t, failed[0], ErrRefreshFailed)
	require.Equal(t, []sessionstore.Tokens{{}}, atFailure)

	for _, err := range errs {
		require.ErrorIs(t, err, ErrRefreshFailed)
		apiErr, ok := AsAPIError(err)
		require.True(t, ok)
		require.Equal(t, CodeTokenInvalid, apiErr.Code)
	}

	tokens, err := sessionstore.LoadTokens(t.Context(), h.store)
	require.NoError(t, err)
	require.Empty(t, tokens.Access)
	require.Empty(t, tokens.Refresh)
	require.Empty(t, h.headers.Bearer())
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	h := newHarness(t, api)
	require.NoError(t, h.store.Delete(t.Context(), sessionstore.RefreshTokenKey))

	_, err := h.client.Send(t.Context(), Request{Path: "/data"})
	require.ErrorIs(t, err, ErrRefreshFailed)
	require.ErrorIs(t, err, ErrNoRefreshToken)
	require.Zero(t, api.refreshCalls.Load())
}

func TestOtherUnauthorizedNeverRefreshes(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	h := newHarness(t, api)
	h.headers.SetBearer("forged")

	var hooked *APIError
	h.client.OnUnauthorized(func(_ context.Context, err *APIError) { hooked = err })

	_, err := h.client.Send(t.Context(), Request{Path: "/data"})

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, CodeTokenInvalid, apiErr.Code)
	require.False(t, errors.Is(err, ErrRefreshFailed))

	require.Zero(t, api.refreshCalls.Load())
	require.Same(t, apiErr, hooked)

	tokens, err := sessionstore.LoadTokens(t.Context(), h.store)
	require.NoError(t, err)
	require.Equal(t, sessionstore.Tokens{}, tokens)
}

func TestNonAuthFailurePassesThrough(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	h := newHarness(t, api)
	h.headers.SetBearer("T2")

	_, err := h.client.Send(t.Context(), Request{Path: "/broken"})
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	require.Zero(t, api.refreshCalls.Load())
	access, err := sessionstore.AccessToken(t.Context(), h.store)
	require.NoError(t, err)
	require.Equal(t, "T1", access)
}

func TestReplayStillExpiredDoesNotLoop(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.alwaysStale = true
	h := newHarness(t, api)

	_, err := h.client.Send(t.Context(), Request{Path: "/data"})
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	require.True(t, apiErr.IsTokenExpired())

	require.Equal(t, int32(1), api.refreshCalls.Load())
	require.Equal(t, []string{"T1", "T2"}, api.seenTokens())
}

func TestStaleRequestReplaysWithoutRefresh(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	h := newHarness(t, api)

	// Another caller already refreshed; this request went out before that.
	h.headers.SetBearer("T2")
	resp, err := h.coord.HandleExpired(t.Context(), Request{Path: "/data", token: "T1"}, h.client.replay)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Zero(t, api.refreshCalls.Load())
	require.Equal(t, []string{"T2"}, api.seenTokens())
}

func TestRefreshedHookVeto(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	h := newHarness(t, api)

	veto := errors.New("wrong user")
	h.coord.OnRefreshed(func(context.Context, sessionstore.Tokens) error { return veto })

	_, err := h.client.Send(t.Context(), Request{Path: "/data"})
	require.ErrorIs(t, err, ErrRefreshFailed)
	require.ErrorIs(t, err, veto)

	tokens, err := sessionstore.LoadTokens(t.Context(), h.store)
	require.NoError(t, err)
	require.Equal(t, sessionstore.Tokens{}, tokens)
	require.False(t, h.coord.InFlight())
}

func TestRefreshPanicSettlesWaiters(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	h := newHarness(t, api)
	hub := &recordingChannel{Hub: broadcast.NewHub()}
	s, nav := newSession(t, h, "ctx_a", hub)
	s.setUser(&api.user)
	h.coord.OnRefreshed(func(context.Context, sessionstore.Tokens) error { panic("hook exploded") })

	_, err := h.client.Send(t.Context(), Request{Path: "/data"})
	require.ErrorIs(t, err, ErrRefreshFailed)
	require.ErrorContains(t, err, "hook exploded")
	require.False(t, h.coord.InFlight())

	// The panic ends the session the same way a rejected refresh does.
	tokens, err := sessionstore.LoadTokens(t.Context(), h.store)
	require.NoError(t, err)
	require.Equal(t, sessionstore.Tokens{}, tokens)
	require.Empty(t, h.headers.Bearer())
	require.False(t, s.IsAuthenticated())
	require.Equal(t, []string{DefaultLandingPath}, nav.visited())
	require.Len(t, hub.messages(), 1)

	// The coordinator is usable again.
	require.NoError(t, sessionstore.SaveTokens(t.Context(), h.store, sessionstore.Tokens{Access: "T1", Refresh: "R1"}))
	h.headers.SetBearer("T1")
	h.coord.hooksMu.Lock()
	h.coord.onRefreshed = nil
	h.coord.hooksMu.Unlock()

	resp, err := h.client.Send(t.Context(), Request{Path: "/data"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(2), api.refreshCalls.Load())
}

func TestFailureHookPanicStillSettles(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.refreshErr = &ErrorResponse{Error: true, Code: CodeTokenInvalid, Message: "revoked"}
	h := newHarness(t, api)

	var later atomic.Bool
	h.coord.OnFailure(func(context.Context, error) { panic("failure hook exploded") })
	h.coord.OnFailure(func(context.Context, error) { later.Store(true) })

	_, err := h.client.Send(t.Context(), Request{Path: "/data"})
	require.ErrorIs(t, err, ErrRefreshFailed)
	require.True(t, later.Load())
	require.False(t, h.coord.InFlight())

	tokens, err := sessionstore.LoadTokens(t.Context(), h.store)
	require.NoError(t, err)
	require.Equal(t, sessionstore.Tokens{}, tokens)
}

func TestRefreshSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.refreshGate = make(chan struct{})
	h := newHarness(t, api)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		_, err := h.client.Send(ctx, Request{Path: "/data"})
		done <- err
	}()

	require.Eventually(t, func() bool { return api.refreshCalls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	close(api.refreshGate)

	// The replay is cancelled with the caller, but the refresh itself landed.
	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	require.Eventually(t, func() bool { return !h.coord.InFlight() }, 5*time.Second, 5*time.Millisecond)

	tokens, err := sessionstore.LoadTokens(t.Context(), h.store)
	require.NoError(t, err)
	require.Equal(t, "T2", tokens.Access)
}
