package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/authsdk"
	"github.com/aussiebroadwan/sessionkit/pkg/httpx"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
)

const maxBody = 16 << 10

// SessionsHandler serves POST /sessions.
type SessionsHandler struct {
	Service *Service
	Metrics *Metrics
}

func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var creds authsdk.Credentials
	if err := decodeBody(w, r, &creds); err != nil {
		h.Metrics.session("bad_request")
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}

	resp, err := h.Service.CreateSession(r.Context(), creds.Email, creds.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		h.Metrics.session("invalid_credentials")
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeCredentialsInvalid, "E-mail or password incorrect.")
		return
	case err != nil:
		h.Metrics.session("error")
		log.Error("create session failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
		return
	}

	h.Metrics.session("ok")
	log.Info("session created", "email", creds.Email)
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// RefreshHandler serves POST /refresh.
type RefreshHandler struct {
	Service *Service
	Metrics *Metrics
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req authsdk.RefreshRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.Metrics.refresh("bad_request")
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadRequest, "malformed JSON body")
		return
	}

	resp, err := h.Service.RefreshSession(r.Context(), req.RefreshToken)
	switch {
	case errors.Is(err, ErrRefreshTokenInvalid):
		h.Metrics.refresh("invalid")
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeTokenInvalid, "Refresh token is invalid.")
		return
	case err != nil:
		h.Metrics.refresh("error")
		log.Error("refresh failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
		return
	}

	h.Metrics.refresh("ok")
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// MeHandler serves GET /me. It must run behind httpx.AuthnMiddleware.
func MeHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := httpx.ClaimsFromContext(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeTokenInvalid, "missing bearer token")
			return
		}

		user, err := svc.Me(claims)
		if err != nil {
			// Token for an account that no longer exists.
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeTokenInvalid, "unknown principal")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, user)
	}
}

// UsersHandler serves GET /users.
func UsersHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, svc.ListUsers())
	}
}

// LivezHandler answers liveness probes.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	return dec.Decode(v)
}
