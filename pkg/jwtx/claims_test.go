package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestValidateExpiry(t *testing.T) {
	now := time.Now().UTC()

	t.Run("valid token", func(t *testing.T) {
		claims := &jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
		require.NoError(t, claims.ValidateExpiry())
	})

	t.Run("expired token", func(t *testing.T) {
		claims := &jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
			},
		}
		require.ErrorIs(t, claims.ValidateExpiry(), jwtx.ErrExpired)
	})

	t.Run("not yet valid", func(t *testing.T) {
		claims := &jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				NotBefore: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
		require.ErrorIs(t, claims.ValidateExpiry(), jwtx.ErrNotYetValid)
	})

	t.Run("no exp or nbf", func(t *testing.T) {
		require.NoError(t, (&jwtx.Claims{}).ValidateExpiry())
	})
}

func TestPrincipalAndAuthz(t *testing.T) {
	c := jwtx.NewAccessClaims("alice@example.com", []string{"users.list"}, []string{"admin"},
		time.Minute, "test", time.Now())

	require.Equal(t, "alice@example.com", c.Principal())
	require.Equal(t, []string{"users.list"}, c.Authz().Permissions)
	require.Equal(t, []string{"admin"}, c.Authz().Roles)

	c.Email = ""
	require.Equal(t, "alice@example.com", c.Principal())
}
