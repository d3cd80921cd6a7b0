package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
)

// Request describes an authenticated call. It is kept by value so that it can
// be replayed after a refresh.
type Request struct {
	Method string
	Path   string
	Body   []byte
	Header http.Header

	// token is the bearer the request was last sent with.
	token string
	// replayed is set once the request has been resent after a refresh.
	replayed bool
}

// Response is a fully read 2xx answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ReplayFunc resends req with the given bearer token.
type ReplayFunc func(ctx context.Context, req Request, token string) (*Response, error)

// UnauthorizedFunc is called when the server rejects a call with a 401 that
// a refresh cannot fix.
type UnauthorizedFunc func(ctx context.Context, err *APIError)

// RequestClient sends authenticated requests. All clients of one execution
// context share its DefaultHeaders, store and RefreshCoordinator.
type RequestClient struct {
	sdk     *SDKClient
	store   sessionstore.Store
	headers *DefaultHeaders
	coord   *RefreshCoordinator
	logger  *slog.Logger

	mu             sync.RWMutex
	onUnauthorized []UnauthorizedFunc
}

func NewRequestClient(
	sdk *SDKClient,
	store sessionstore.Store,
	headers *DefaultHeaders,
	coord *RefreshCoordinator,
	opts ...Option,
) *RequestClient {
	o := buildOptions(opts)
	return &RequestClient{
		sdk:     sdk,
		store:   store,
		headers: headers,
		coord:   coord,
		logger:  o.logger,
	}
}

func (c *RequestClient) Store() sessionstore.Store        { return c.store }
func (c *RequestClient) Headers() *DefaultHeaders         { return c.headers }
func (c *RequestClient) SDK() *SDKClient                  { return c.sdk }
func (c *RequestClient) Coordinator() *RefreshCoordinator { return c.coord }

// OnUnauthorized registers fn to run after a non-refreshable 401 has cleared
// the persisted tokens.
func (c *RequestClient) OnUnauthorized(fn UnauthorizedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = append(c.onUnauthorized, fn)
}

// Send issues req with the current bearer token.
//
// A 2xx answer is returned as is. A 401 "token.expired" is handed to the
// RefreshCoordinator and the result of the replay is returned. Any other 401
// signs the session out. Other statuses come back as *APIError with no
// side effect.
func (c *RequestClient) Send(ctx context.Context, req Request) (*Response, error) {
	req.replayed = false
	return c.send(ctx, req, c.currentToken(ctx))
}

// GetJSON sends GET path and decodes the answer into target.
func (c *RequestClient) GetJSON(ctx context.Context, path string, target any) error {
	resp, err := c.Send(ctx, Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	return resp.DecodeJSON(target)
}

// PostJSON sends payload to path and decodes the answer into target, which
// may be nil.
func (c *RequestClient) PostJSON(ctx context.Context, path string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	resp, err := c.Send(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Header: header})
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	return resp.DecodeJSON(target)
}

// Me fetches the signed-in user (GET /me).
func (c *RequestClient) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.GetJSON(ctx, "/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *RequestClient) send(ctx context.Context, req Request, token string) (*Response, error) {
	req.token = token

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	apiErr := parseErrorResponse(resp.StatusCode, resp.Body)
	switch {
	case apiErr.IsTokenExpired():
		if req.replayed {
			// The fresh token was rejected as expired too; refreshing again
			// would loop.
			c.logger.WarnContext(ctx, "replayed request still expired",
				slog.String("method", req.Method),
				slog.String("path", req.Path),
			)
			return nil, apiErr
		}
		return c.coord.HandleExpired(ctx, req, c.replay)

	case apiErr.IsUnauthorized():
		c.unauthorized(ctx, apiErr)
		return nil, apiErr

	default:
		return nil, apiErr
	}
}

func (c *RequestClient) replay(ctx context.Context, req Request, token string) (*Response, error) {
	req.replayed = true
	return c.send(ctx, req, token)
}

func (c *RequestClient) do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.sdk.url(req.Path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	c.headers.Apply(httpReq)
	if req.token != "" {
		httpReq.Header.Set("Authorization", bearerPrefix+req.token)
	}

	httpResp, err := c.sdk.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	b, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       b,
	}, nil
}

// currentToken reads the bearer at call time: the shared header first, then
// the store.
func (c *RequestClient) currentToken(ctx context.Context) string {
	if token := c.headers.Bearer(); token != "" {
		return token
	}
	token, err := sessionstore.AccessToken(ctx, c.store)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to read access token", slog.String("error", err.Error()))
		return ""
	}
	return token
}

func (c *RequestClient) unauthorized(ctx context.Context, apiErr *APIError) {
	c.logger.InfoContext(ctx, "session rejected by server",
		slog.String("code", apiErr.Code),
	)

	if err := sessionstore.ClearTokens(ctx, c.store); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear tokens", slog.String("error", err.Error()))
	}
	c.headers.SetBearer("")

	c.mu.RLock()
	hooks := append([]UnauthorizedFunc(nil), c.onUnauthorized...)
	c.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, apiErr)
	}
}
