package authsdk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
)

// RefreshedFunc runs after a refresh has persisted the new tokens and before
// any waiter is released. Returning an error turns the refresh into a failure.
type RefreshedFunc func(ctx context.Context, tokens sessionstore.Tokens) error

// RefreshFailedFunc runs after a failed refresh has cleared the persisted
// tokens and before any waiter is released.
type RefreshFailedFunc func(ctx context.Context, err error)

type refreshResult struct {
	token string
	err   error
}

// RefreshCoordinator makes sure at most one token refresh is in flight.
//
// The first caller that reports an expired token starts a refresh; callers
// arriving while it runs are queued. When the refresh settles every queued
// caller, the starter included, observes the same outcome: either the new
// access token, with which it replays its request, or the same error.
type RefreshCoordinator struct {
	sdk     *SDKClient
	store   sessionstore.Store
	headers *DefaultHeaders
	logger  *slog.Logger
	metrics *Metrics
	timeout time.Duration

	mu       sync.Mutex
	inflight bool
	waiters  []chan refreshResult

	hooksMu     sync.RWMutex
	onRefreshed []RefreshedFunc
	onFailure   []RefreshFailedFunc
}

func NewRefreshCoordinator(
	sdk *SDKClient,
	store sessionstore.Store,
	headers *DefaultHeaders,
	opts ...Option,
) *RefreshCoordinator {
	o := buildOptions(opts)
	return &RefreshCoordinator{
		sdk:     sdk,
		store:   store,
		headers: headers,
		logger:  o.logger,
		metrics: o.metrics,
		timeout: o.refreshTimeout,
	}
}

// OnRefreshed registers fn to run on every successful refresh.
func (c *RefreshCoordinator) OnRefreshed(fn RefreshedFunc) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onRefreshed = append(c.onRefreshed, fn)
}

// OnFailure registers fn to run on every failed refresh.
func (c *RefreshCoordinator) OnFailure(fn RefreshFailedFunc) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onFailure = append(c.onFailure, fn)
}

// InFlight reports whether a refresh is running.
func (c *RefreshCoordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}

// HandleExpired starts or joins a refresh on behalf of req, which failed
// with "token.expired", then replays it with the new token.
//
// It blocks until the refresh settles. Cancelling ctx does not abandon the
// wait; the refresh itself is bounded by the refresh timeout. On failure the
// returned error matches ErrRefreshFailed.
func (c *RefreshCoordinator) HandleExpired(ctx context.Context, req Request, replay ReplayFunc) (*Response, error) {
	ch := make(chan refreshResult, 1)

	c.mu.Lock()
	if !c.inflight {
		// Sent with a token that has since been replaced: a refresh already
		// happened, just resend.
		if current := c.headers.Bearer(); req.token != "" && current != "" && current != req.token {
			c.mu.Unlock()
			c.metrics.staleReplay()
			return replay(ctx, req, current)
		}
	}
	c.waiters = append(c.waiters, ch)
	start := !c.inflight
	c.inflight = true
	c.mu.Unlock()

	if start {
		c.metrics.refreshStarted()
		go c.run(ctx)
	} else {
		c.metrics.waiterJoined()
	}

	res := <-ch
	if res.err != nil {
		return nil, res.err
	}
	return replay(ctx, req, res.token)
}

// run performs one refresh episode and settles its waiters exactly once.
// A panic in the refresh or its hooks counts as a failed refresh.
func (c *RefreshCoordinator) run(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.timeout)
	defer cancel()

	began := time.Now()
	var res refreshResult

	defer func() {
		c.metrics.refreshFinished(res.err == nil, time.Since(began).Seconds())
		c.settle(res)
	}()

	res = c.recovered(ctx, func() refreshResult { return c.refresh(ctx) })
	if res.err != nil {
		c.fail(ctx, res.err)
	}
}

// recovered runs fn, turning a panic into an ErrRefreshFailed result.
func (c *RefreshCoordinator) recovered(ctx context.Context, fn func() refreshResult) (res refreshResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "token refresh panicked", slog.Any("panic", r))
			res = refreshResult{err: fmt.Errorf("%w: panic: %v", ErrRefreshFailed, r)}
		}
	}()
	return fn()
}

func (c *RefreshCoordinator) refresh(ctx context.Context) refreshResult {
	rt, err := sessionstore.RefreshToken(ctx, c.store)
	if err != nil {
		return refreshResult{err: fmt.Errorf("%w: %w", ErrRefreshFailed, err)}
	}
	if rt == "" {
		return refreshResult{err: fmt.Errorf("%w: %w", ErrRefreshFailed, ErrNoRefreshToken)}
	}

	out, err := c.sdk.Refresh(ctx, rt)
	if err != nil {
		return refreshResult{err: fmt.Errorf("%w: %w", ErrRefreshFailed, err)}
	}

	tokens := sessionstore.Tokens{Access: out.Token, Refresh: out.RefreshToken}
	if tokens.Refresh == "" {
		tokens.Refresh = rt
	}
	if err := sessionstore.SaveTokens(ctx, c.store, tokens); err != nil {
		return refreshResult{err: fmt.Errorf("%w: %w", ErrRefreshFailed, err)}
	}
	c.headers.SetBearer(tokens.Access)

	c.hooksMu.RLock()
	hooks := append([]RefreshedFunc(nil), c.onRefreshed...)
	c.hooksMu.RUnlock()

	for _, fn := range hooks {
		if err := fn(ctx, tokens); err != nil {
			return refreshResult{err: fmt.Errorf("%w: %w", ErrRefreshFailed, err)}
		}
	}

	c.logger.DebugContext(ctx, "token refreshed")
	return refreshResult{token: tokens.Access}
}

// fail clears the session and runs the failure hooks. Waiters are released
// afterwards so they never observe a half signed-out session. A panicking
// hook is logged and does not stop the others.
func (c *RefreshCoordinator) fail(ctx context.Context, err error) {
	c.logger.WarnContext(ctx, "token refresh failed", slog.String("error", err.Error()))
	c.clear(ctx)

	c.hooksMu.RLock()
	hooks := append([]RefreshFailedFunc(nil), c.onFailure...)
	c.hooksMu.RUnlock()

	for _, fn := range hooks {
		c.recovered(ctx, func() refreshResult {
			fn(ctx, err)
			return refreshResult{}
		})
	}
}

func (c *RefreshCoordinator) clear(ctx context.Context) {
	if err := sessionstore.ClearTokens(ctx, c.store); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear tokens", slog.String("error", err.Error()))
	}
	c.headers.SetBearer("")
}

// settle drains the waiter queue and clears the in-flight flag in one step.
func (c *RefreshCoordinator) settle(res refreshResult) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inflight = false
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- res
	}
}
