package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// EdDSAKeys is an Ed25519 signer and matching verifier.
type EdDSAKeys struct {
	issuer string
	key    ed25519.PrivateKey
	pub    ed25519.PublicKey

	// Now is the clock used for expiry checks. Defaults to time.Now.
	Now func() time.Time
}

// NewEdDSAKeys wraps an existing Ed25519 private key.
func NewEdDSAKeys(issuer string, key ed25519.PrivateKey) (*EdDSAKeys, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.New("jwtx: invalid Ed25519 private key size")
	}
	return &EdDSAKeys{
		issuer: issuer,
		key:    key,
		pub:    key.Public().(ed25519.PublicKey),
		Now:    time.Now,
	}, nil
}

// GenerateEdDSAKeys creates an ephemeral key pair, which is all the dev
// server needs: tokens do not survive a restart.
func GenerateEdDSAKeys(issuer string) (*EdDSAKeys, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate Ed25519 key: %w", err)
	}
	return NewEdDSAKeys(issuer, key)
}

func (k *EdDSAKeys) Alg() string { return jwt.SigningMethodEdDSA.Alg() }

// Sign turns claims into a signed compact JWT.
func (k *EdDSAKeys) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(k.key)
}

// Verify checks the signature, issuer and lifetime of token. An expired but
// otherwise valid token yields claims together with ErrExpired, so callers
// can tell "expired" apart from "invalid".
func (k *EdDSAKeys) Verify(token string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return k.pub, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return Claims{}, ErrInvalidSig
		}
		return Claims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidClaim
	}

	if k.issuer != "" && claims.Issuer != k.issuer {
		return Claims{}, ErrIssuer
	}
	if claims.Principal() == "" {
		return Claims{}, ErrInvalidClaim
	}

	now := time.Now
	if k.Now != nil {
		now = k.Now
	}
	if err := claims.ValidateExpiryAt(now().UTC()); err != nil {
		return claims, err
	}
	return claims, nil
}
