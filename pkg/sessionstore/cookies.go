package sessionstore

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Cookies is a Store over one HTTP exchange: reads come from the request's
// cookies, writes go to the response as Set-Cookie headers scoped to "/".
// Writes are also visible to later reads on the same value.
type Cookies struct {
	r *http.Request
	w http.ResponseWriter

	// Secure marks written cookies as HTTPS-only.
	Secure bool

	mu      sync.Mutex
	pending map[string]*string // nil value means deleted
}

func NewCookies(w http.ResponseWriter, r *http.Request) *Cookies {
	return &Cookies{r: r, w: w, pending: make(map[string]*string)}
}

func (c *Cookies) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	v, overridden := c.pending[key]
	c.mu.Unlock()

	if overridden {
		if v == nil || *v == "" {
			return "", ErrNotFound
		}
		return *v, nil
	}

	ck, err := c.r.Cookie(key)
	if err != nil || ck.Value == "" {
		return "", ErrNotFound
	}
	return ck.Value, nil
}

func (c *Cookies) Set(_ context.Context, key, value string, ttl time.Duration) error {
	http.SetCookie(c.w, &http.Cookie{
		Name:     key,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	c.mu.Lock()
	c.pending[key] = &value
	c.mu.Unlock()
	return nil
}

func (c *Cookies) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		http.SetCookie(c.w, &http.Cookie{
			Name:     k,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
		})
		c.pending[k] = nil
	}
	return nil
}
