package authsdk

import (
	"context"
	"errors"
	"net/http"
)

// CreateSession exchanges credentials for a token pair (POST /sessions).
// Bad credentials come back as an *APIError with CodeCredentialsInvalid.
func (c *SDKClient) CreateSession(ctx context.Context, creds Credentials) (*SessionResponse, error) {
	var sess SessionResponse
	if err := c.postJSON(ctx, "/sessions", creds, &sess); err != nil {
		return nil, err
	}
	if sess.Token == "" {
		return nil, errors.New("authsdk: session response has no token")
	}
	return &sess, nil
}

// Refresh exchanges a refresh token for a new token pair (POST /refresh).
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	var out RefreshResponse
	if err := c.postJSON(ctx, "/refresh", RefreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("authsdk: refresh response has no token")
	}
	return &out, nil
}

// GetLiveness checks if the service is alive.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/livez", nil, nil)
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}

	return &health, nil
}
