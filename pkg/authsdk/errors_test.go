package authsdk

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		code    string
		message string
		expired bool
	}{
		{
			name:    "expired token",
			status:  http.StatusUnauthorized,
			body:    `{"error":true,"code":"token.expired","message":"Token expired"}`,
			code:    CodeTokenExpired,
			message: "Token expired",
			expired: true,
		},
		{
			name:    "invalid token",
			status:  http.StatusUnauthorized,
			body:    `{"error":true,"code":"token.invalid","message":"Token invalid"}`,
			code:    CodeTokenInvalid,
			message: "Token invalid",
		},
		{
			name:   "expired code on a non-401",
			status: http.StatusForbidden,
			body:   `{"error":true,"code":"token.expired"}`,
			code:   CodeTokenExpired,
		},
		{
			name:    "not json",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			message: "Bad Gateway",
		},
		{
			name:    "empty body",
			status:  http.StatusUnauthorized,
			message: "Unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := parseErrorResponse(tt.status, []byte(tt.body))
			require.Equal(t, tt.status, err.StatusCode)
			require.Equal(t, tt.code, err.Code)
			require.Equal(t, tt.message, err.Message)
			require.Equal(t, tt.expired, err.IsTokenExpired())
		})
	}
}

func TestAsAPIErrorThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := &APIError{StatusCode: http.StatusUnauthorized, Code: CodeTokenInvalid}
	wrapped := fmt.Errorf("%w: %w", ErrRefreshFailed, inner)

	got, ok := AsAPIError(wrapped)
	require.True(t, ok)
	require.Same(t, inner, got)
	require.ErrorIs(t, wrapped, ErrRefreshFailed)

	_, ok = AsAPIError(ErrNotAuthenticated)
	require.False(t, ok)
}

func TestDefaultHeaders(t *testing.T) {
	t.Parallel()

	h := NewDefaultHeaders()
	require.Empty(t, h.Bearer())

	h.SetBearer("abc")
	require.Equal(t, "abc", h.Bearer())

	h.Set("X-Client", "sessionctl")
	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)
	req.Header.Set("X-Client", "override")
	h.Apply(req)

	require.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
	require.Equal(t, "override", req.Header.Get("X-Client"))

	h.SetBearer("")
	require.Empty(t, h.Bearer())
	require.Equal(t, "xyz", bearerToken("bearer xyz"))
	require.Empty(t, bearerToken("Basic xyz"))
}
