// Package sessionstore persists the session's token pair as opaque key/value
// entries with an expiry.
//
// Several execution contexts (processes, browser-like tabs, server handlers)
// may share one backing store; drivers live in sub-packages (sqlite,
// redisstore) next to the in-memory and cookie stores defined here.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Keys and lifetime of the persisted token pair.
const (
	TokenKey        = "nextauth.token"
	RefreshTokenKey = "nextauth.refreshToken"

	DefaultTTL = 30 * 24 * time.Hour
)

// ErrNotFound is returned by Get for keys that are absent or expired.
var ErrNotFound = errors.New("sessionstore: not found")

// Store is the persisted key/value contract. Implementations must be safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Tokens is the persisted access/refresh pair.
type Tokens struct {
	Access  string
	Refresh string
}

// SaveTokens writes both tokens with DefaultTTL.
func SaveTokens(ctx context.Context, st Store, t Tokens) error {
	if err := st.Set(ctx, TokenKey, t.Access, DefaultTTL); err != nil {
		return fmt.Errorf("sessionstore: save access token: %w", err)
	}
	if err := st.Set(ctx, RefreshTokenKey, t.Refresh, DefaultTTL); err != nil {
		return fmt.Errorf("sessionstore: save refresh token: %w", err)
	}
	return nil
}

// LoadTokens reads both tokens. Missing entries come back empty; only
// backend failures are returned as errors.
func LoadTokens(ctx context.Context, st Store) (Tokens, error) {
	access, err := lookup(ctx, st, TokenKey)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := lookup(ctx, st, RefreshTokenKey)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{Access: access, Refresh: refresh}, nil
}

// AccessToken returns the persisted access token or "" when absent.
func AccessToken(ctx context.Context, st Store) (string, error) {
	return lookup(ctx, st, TokenKey)
}

// RefreshToken returns the persisted refresh token or "" when absent.
func RefreshToken(ctx context.Context, st Store) (string, error) {
	return lookup(ctx, st, RefreshTokenKey)
}

// ClearTokens removes both tokens.
func ClearTokens(ctx context.Context, st Store) error {
	if err := st.Delete(ctx, TokenKey, RefreshTokenKey); err != nil {
		return fmt.Errorf("sessionstore: clear tokens: %w", err)
	}
	return nil
}

func lookup(ctx context.Context, st Store, key string) (string, error) {
	v, err := st.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sessionstore: get %s: %w", key, err)
	}
	return v, nil
}
