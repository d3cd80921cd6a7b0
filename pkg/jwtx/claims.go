package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/authz"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the lifetime of access tokens minted by the dev
// server. Short on purpose so clients exercise the refresh path.
const DefaultAccessTokenTTL = 15 * time.Minute

// Claims are the access-token claims shared by the session server and its
// clients. Subject is the principal's email.
type Claims struct {
	jwt.RegisteredClaims

	Email       string   `json:"email,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for email.
func NewAccessClaims(
	email string,
	permissions, roles []string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Email:       email,
		Permissions: permissions,
		Roles:       roles,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// Principal returns the identity the token speaks for: the email claim, or
// the subject when the email claim is absent.
func (c *Claims) Principal() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}

// Authz projects the token onto the permission evaluator's view.
func (c *Claims) Authz() authz.Claims {
	return authz.Claims{Permissions: c.Permissions, Roles: c.Roles}
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry() error {
	return c.ValidateExpiryAt(time.Now().UTC())
}

// ValidateExpiryAt is ValidateExpiry against an explicit clock.
func (c *Claims) ValidateExpiryAt(now time.Time) error {
	if c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
