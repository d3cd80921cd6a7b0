package devserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/cryptox"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
)

// DefaultRefreshTokenTTL matches the lifetime of the client-side session.
const DefaultRefreshTokenTTL = sessionstore.DefaultTTL

// ErrRefreshTokenInvalid covers unknown, expired and already used tokens.
var ErrRefreshTokenInvalid = errors.New("devserver: invalid refresh token")

const refreshKeyPrefix = "refresh:"

// RefreshTokens issues opaque refresh tokens and rotates them on use. Only
// the token fingerprint is stored, mapped to the owner's email, in any
// sessionstore.Store (memory, sqlite or redis).
type RefreshTokens struct {
	Store sessionstore.Store
	TTL   time.Duration

	// mu serialises rotation so a token can be redeemed once.
	mu sync.Mutex
}

func NewRefreshTokens(st sessionstore.Store, ttl time.Duration) *RefreshTokens {
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	return &RefreshTokens{Store: st, TTL: ttl}
}

// Issue mints a refresh token for email.
func (r *RefreshTokens) Issue(ctx context.Context, email string) (string, error) {
	token, err := cryptox.NewRefreshToken()
	if err != nil {
		return "", err
	}
	if err := r.Store.Set(ctx, refreshKey(token), email, r.TTL); err != nil {
		return "", fmt.Errorf("devserver: store refresh token: %w", err)
	}
	return token, nil
}

// Rotate redeems token and issues its replacement. The old token stops
// working.
func (r *RefreshTokens) Rotate(ctx context.Context, token string) (email, next string, err error) {
	if token == "" {
		return "", "", ErrRefreshTokenInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := refreshKey(token)
	email, err = r.Store.Get(ctx, key)
	if errors.Is(err, sessionstore.ErrNotFound) {
		return "", "", ErrRefreshTokenInvalid
	}
	if err != nil {
		return "", "", fmt.Errorf("devserver: load refresh token: %w", err)
	}
	if err := r.Store.Delete(ctx, key); err != nil {
		return "", "", fmt.Errorf("devserver: revoke refresh token: %w", err)
	}

	next, err = r.Issue(ctx, email)
	if err != nil {
		return "", "", err
	}
	return email, next, nil
}

func refreshKey(token string) string {
	return refreshKeyPrefix + cryptox.FingerprintToken(token)
}
