package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Application error codes carried in ErrorResponse.Code.
const (
	// CodeTokenExpired is the only code that triggers a refresh.
	CodeTokenExpired       = "token.expired"
	CodeTokenInvalid       = "token.invalid"
	CodeCredentialsInvalid = "credentials.invalid"
)

var (
	// ErrRefreshFailed wraps whatever made a token refresh fail. Every caller
	// waiting on that refresh receives an error matching it.
	ErrRefreshFailed = errors.New("authsdk: token refresh failed")

	// ErrNoRefreshToken means a refresh was needed but none was persisted.
	ErrNoRefreshToken = errors.New("authsdk: no refresh token")

	// ErrPrincipalMismatch means the token and the loaded user disagree about
	// who is signed in.
	ErrPrincipalMismatch = errors.New("authsdk: token principal does not match session user")

	// ErrNotAuthenticated is returned by operations that need a signed-in user.
	ErrNotAuthenticated = errors.New("authsdk: not authenticated")
)

// APIError is a non-2xx answer from the session API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("authsdk: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authsdk: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsTokenExpired reports whether the server rejected the call only because
// the access token expired.
func (e *APIError) IsTokenExpired() bool {
	return e.StatusCode == http.StatusUnauthorized && e.Code == CodeTokenExpired
}

// IsUnauthorized reports a 401 of any cause.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// AsAPIError unwraps err into an *APIError when it is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// parseErrorResponse turns an error body into an *APIError. Bodies that are
// not the expected JSON still produce an error carrying the status.
func parseErrorResponse(status int, body []byte) *APIError {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && (errResp.Code != "" || errResp.Message != "") {
		return &APIError{
			StatusCode: status,
			Code:       errResp.Code,
			Message:    errResp.Message,
		}
	}

	return &APIError{
		StatusCode: status,
		Message:    http.StatusText(status),
	}
}
