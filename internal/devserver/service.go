package devserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/authsdk"
	"github.com/aussiebroadwan/sessionkit/pkg/jwtx"
)

// Service implements the session endpoints.
type Service struct {
	Users     *Users
	Refresh   *RefreshTokens
	Signer    jwtx.Signer
	Issuer    string
	AccessTTL time.Duration

	// Now is the clock used to stamp tokens. Defaults to time.Now.
	Now func() time.Time
}

// CreateSession checks credentials and issues a token pair.
func (s *Service) CreateSession(ctx context.Context, email, password string) (authsdk.SessionResponse, error) {
	user, err := s.Users.Authenticate(email, password)
	if err != nil {
		return authsdk.SessionResponse{}, err
	}

	access, err := s.mintAccess(user)
	if err != nil {
		return authsdk.SessionResponse{}, err
	}
	refresh, err := s.Refresh.Issue(ctx, user.Email)
	if err != nil {
		return authsdk.SessionResponse{}, err
	}

	return authsdk.SessionResponse{
		Token:        access,
		RefreshToken: refresh,
		Permissions:  nonNil(user.Permissions),
		Roles:        nonNil(user.Roles),
	}, nil
}

// RefreshSession rotates refreshToken and issues a new access token with
// the user's current permissions and roles.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (authsdk.RefreshResponse, error) {
	email, next, err := s.Refresh.Rotate(ctx, refreshToken)
	if err != nil {
		return authsdk.RefreshResponse{}, err
	}

	user, err := s.Users.Get(email)
	if errors.Is(err, ErrUserNotFound) {
		return authsdk.RefreshResponse{}, ErrRefreshTokenInvalid
	}
	if err != nil {
		return authsdk.RefreshResponse{}, err
	}

	access, err := s.mintAccess(user)
	if err != nil {
		return authsdk.RefreshResponse{}, err
	}
	return authsdk.RefreshResponse{Token: access, RefreshToken: next}, nil
}

// Me describes the user named by verified claims.
func (s *Service) Me(claims jwtx.Claims) (authsdk.User, error) {
	user, err := s.Users.Get(claims.Principal())
	if err != nil {
		return authsdk.User{}, err
	}
	return toSDKUser(user), nil
}

// ListUsers returns every account.
func (s *Service) ListUsers() []authsdk.User {
	users := s.Users.List()
	out := make([]authsdk.User, 0, len(users))
	for _, u := range users {
		out = append(out, toSDKUser(u))
	}
	return out
}

func (s *Service) mintAccess(user User) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ttl := s.AccessTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultAccessTokenTTL
	}

	claims := jwtx.NewAccessClaims(user.Email, user.Permissions, user.Roles, ttl, s.Issuer, now().UTC())
	token, err := s.Signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("devserver: sign access token: %w", err)
	}
	return token, nil
}

func toSDKUser(u User) authsdk.User {
	return authsdk.User{
		Email:       u.Email,
		Permissions: nonNil(u.Permissions),
		Roles:       nonNil(u.Roles),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
