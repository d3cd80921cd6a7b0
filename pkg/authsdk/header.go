package authsdk

import (
	"net/http"
	"strings"
	"sync"
)

const bearerPrefix = "Bearer "

// DefaultHeaders is the header set attached to every outbound request of the
// clients that share it. SignIn and successful refreshes update its bearer
// token so later requests pick up the new one.
type DefaultHeaders struct {
	mu     sync.RWMutex
	header http.Header
}

func NewDefaultHeaders() *DefaultHeaders {
	return &DefaultHeaders{header: http.Header{}}
}

// SetBearer sets "Authorization: Bearer <token>". An empty token removes it.
func (h *DefaultHeaders) SetBearer(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if token == "" {
		h.header.Del("Authorization")
		return
	}
	h.header.Set("Authorization", bearerPrefix+token)
}

// Bearer returns the current bearer token, or "".
func (h *DefaultHeaders) Bearer() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return bearerToken(h.header.Get("Authorization"))
}

// Set adds a header sent with every request, e.g. a User-Agent.
func (h *DefaultHeaders) Set(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.header.Set(key, value)
}

// Apply copies the default headers onto r without overwriting headers r
// already carries.
func (h *DefaultHeaders) Apply(r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, vs := range h.header {
		if _, ok := r.Header[k]; ok {
			continue
		}
		r.Header[k] = append([]string(nil), vs...)
	}
}

func bearerToken(authz string) string {
	if len(authz) < len(bearerPrefix) || !strings.EqualFold(authz[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authz[len(bearerPrefix):])
}
