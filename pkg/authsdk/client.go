package authsdk

import (
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
)

// DefaultHTTPTimeout bounds every call made through an SDKClient.
const DefaultHTTPTimeout = 10 * time.Second

// SDKClient talks to the session API. It carries no credentials of its own:
// authenticated calls go through a RequestClient built on top of it.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a client for the API rooted at baseURL.
//
// Without WithHTTPClient the client logs outbound calls through
// slogx.Transport at debug level.
func NewSDKClient(baseURL string, opts ...Option) *SDKClient {
	o := buildOptions(opts)

	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   DefaultHTTPTimeout,
			Transport: &slogx.Transport{Logger: o.logger},
		}
	}

	return &SDKClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: hc,
	}
}
