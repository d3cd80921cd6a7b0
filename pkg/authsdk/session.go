package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aussiebroadwan/sessionkit/pkg/authz"
	"github.com/aussiebroadwan/sessionkit/pkg/broadcast"
	"github.com/aussiebroadwan/sessionkit/pkg/jwtx"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
)

// Session is the identity state of one execution context: who is signed in
// and what they may do. It reacts to refresh outcomes and to sign-outs
// published by other contexts on the same channel.
type Session struct {
	id        string
	client    *RequestClient
	logger    *slog.Logger
	metrics   *Metrics
	navigator Navigator
	channel   broadcast.Channel
	paths     Paths

	mu          sync.RWMutex
	user        *User
	claims      authz.Claims
	initialized bool
	unsubscribe func()
}

// NewSession builds the session for one execution context and hooks it into
// the client's refresh coordinator.
func NewSession(client *RequestClient, opts ...Option) *Session {
	o := buildOptions(opts)

	s := &Session{
		id:        o.contextID,
		client:    client,
		logger:    o.logger.With(slog.String("context_id", o.contextID)),
		metrics:   o.metrics,
		navigator: o.navigator,
		channel:   o.channel,
		paths:     o.paths,
	}

	client.OnUnauthorized(func(ctx context.Context, _ *APIError) {
		s.signOut(ctx, true, ReasonUnauthorized)
	})
	if coord := client.Coordinator(); coord != nil {
		coord.OnRefreshed(s.refreshed)
		coord.OnFailure(func(ctx context.Context, _ error) {
			s.signOut(ctx, true, ReasonRefreshFailed)
		})
	}

	return s
}

// ID identifies the execution context. It is the Origin of every message the
// session publishes.
func (s *Session) ID() string { return s.id }

// Init loads the persisted session. Without a stored token the context stays
// signed out and Init returns nil. With one, the user is fetched from
// GET /me; if that fails the session is signed out and the error returned.
// Only the first call does anything.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.mu.Unlock()

	token, err := sessionstore.AccessToken(ctx, s.client.Store())
	if err != nil {
		return err
	}
	if token == "" {
		s.logger.DebugContext(ctx, "no persisted session")
		return nil
	}
	s.client.Headers().SetBearer(token)

	user, err := s.client.Me(ctx)
	if err != nil {
		if !sessionLost(err) {
			s.signOut(ctx, true, ReasonInitFailed)
		}
		return fmt.Errorf("authsdk: load user: %w", err)
	}

	// Me may have refreshed the token; check against the one now in use.
	if err := checkPrincipal(s.client.Headers().Bearer(), user.Email); err != nil {
		s.signOut(ctx, true, ReasonInitFailed)
		return err
	}

	s.setUser(user)
	s.logger.InfoContext(ctx, "session loaded", slog.String("email", user.Email))
	return nil
}

// SignIn creates a session with the given credentials. On failure nothing
// changes and the error (an *APIError with CodeCredentialsInvalid for bad
// credentials) is returned.
func (s *Session) SignIn(ctx context.Context, email, password string) error {
	resp, err := s.client.SDK().CreateSession(ctx, Credentials{Email: email, Password: password})
	if err != nil {
		return err
	}

	tokens := sessionstore.Tokens{Access: resp.Token, Refresh: resp.RefreshToken}
	if err := sessionstore.SaveTokens(ctx, s.client.Store(), tokens); err != nil {
		_ = sessionstore.ClearTokens(ctx, s.client.Store())
		return err
	}
	s.client.Headers().SetBearer(resp.Token)

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	s.setUser(&User{Email: email, Permissions: resp.Permissions, Roles: resp.Roles})
	s.logger.InfoContext(ctx, "signed in", slog.String("email", email))

	s.navigator.Navigate(ctx, s.paths.Authenticated)
	return nil
}

// SignOut clears the persisted and in-memory session and navigates to the
// landing view. With notifyPeers the other contexts on the channel are told
// to sign out as well.
func (s *Session) SignOut(ctx context.Context, notifyPeers bool) error {
	return s.signOut(ctx, notifyPeers, ReasonUser)
}

// Listen subscribes to sign-out messages from other contexts. Close stops
// listening. Without a channel Listen does nothing.
func (s *Session) Listen(ctx context.Context) error {
	if s.channel == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		return nil
	}

	hctx := context.WithoutCancel(ctx)
	cancel, err := s.channel.Subscribe(ctx, func(msg broadcast.Message) {
		if msg.Kind != broadcast.KindSignOut || msg.Origin == s.id {
			return
		}
		s.logger.InfoContext(hctx, "peer signed out", slog.String("origin", msg.Origin))
		_ = s.signOut(hctx, false, ReasonPeer)
	})
	if err != nil {
		return fmt.Errorf("authsdk: subscribe: %w", err)
	}
	s.unsubscribe = cancel
	return nil
}

// Close stops listening for peer messages.
func (s *Session) Close() error {
	s.mu.Lock()
	cancel := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	u.Permissions = append([]string(nil), s.user.Permissions...)
	u.Roles = append([]string(nil), s.user.Roles...)
	return &u
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// Can reports whether the signed-in user has every permission and at least
// one of the roles. It is false when nobody is signed in.
func (s *Session) Can(permissions, roles []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return false
	}
	return authz.Authorize(s.claims, permissions, roles)
}

func (s *Session) setUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
	s.claims = authz.Claims{Permissions: u.Permissions, Roles: u.Roles}
}

func (s *Session) signOut(ctx context.Context, notify bool, reason string) error {
	var errs []error

	if err := sessionstore.ClearTokens(ctx, s.client.Store()); err != nil {
		errs = append(errs, err)
	}
	s.client.Headers().SetBearer("")

	s.mu.Lock()
	s.user = nil
	s.claims = authz.Claims{}
	s.mu.Unlock()

	s.metrics.signedOut(reason)
	s.logger.InfoContext(ctx, "signed out", slog.String("reason", reason))

	s.navigator.Navigate(ctx, s.paths.Landing)

	if notify && s.channel != nil {
		msg := broadcast.Message{Kind: broadcast.KindSignOut, Origin: s.id}
		if err := s.channel.Publish(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "failed to notify peers", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("authsdk: notify peers: %w", err))
		}
	}

	return errors.Join(errs...)
}

// refreshed keeps the cached claims in step with a refreshed token.
func (s *Session) refreshed(_ context.Context, tokens sessionstore.Tokens) error {
	claims, err := jwtx.Decode(tokens.Access)
	if err != nil {
		// Opaque token: nothing to compare or update.
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	if p := claims.Principal(); p != "" && !strings.EqualFold(p, s.user.Email) {
		return ErrPrincipalMismatch
	}
	if len(claims.Permissions) > 0 || len(claims.Roles) > 0 {
		s.user.Permissions = claims.Permissions
		s.user.Roles = claims.Roles
		s.claims = claims.Authz()
	}
	return nil
}

// checkPrincipal fails when token names someone other than email. Tokens
// that do not decode as JWTs are not checked.
func checkPrincipal(token, email string) error {
	claims, err := jwtx.Decode(token)
	if err != nil {
		return nil
	}
	if p := claims.Principal(); p != "" && !strings.EqualFold(p, email) {
		return ErrPrincipalMismatch
	}
	return nil
}

// sessionLost reports errors after which the session has already been
// signed out by the refresh or unauthorized path.
func sessionLost(err error) bool {
	if errors.Is(err, ErrRefreshFailed) {
		return true
	}
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.IsUnauthorized() && !apiErr.IsTokenExpired()
}
