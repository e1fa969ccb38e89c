package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/karibu-labs/darasa/internal/routing"
	"github.com/karibu-labs/darasa/pkg/httperr"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	PrincipalID string  `json:"principal_id"`
	UserID      string  `json:"user_id"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	OrgID       *string `json:"org_id"`
}

// handleLogin verifies credentials against the identity provider, mirrors
// the account into the principal store, and issues a session cookie. Login
// itself never passes through the gateway; it is the route that creates
// what the gateway checks.
func handleLogin(provider identityProvider, principals principalStore, sessions sessionStore, ttl time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAuthnError(w, r, err)
			return
		}

		ident, err := provider.AuthenticatePassword(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, errInvalidCredentials) {
				writeAuthnError(w, r, httperr.NewUnauthenticated("invalid credentials"))
				return
			}
			writeAuthnError(w, r, fmt.Errorf("authenticate: %w", err))
			return
		}

		p, err := principals.UpsertFromAuth(r.Context(), ident.AuthUserID, ident.Email, ident.Role)
		if err != nil {
			writeAuthnError(w, r, fmt.Errorf("upsert principal: %w", err))
			return
		}

		sid, err := sessions.Create(r.Context(), p.ID, time.Now().Add(ttl), r.RemoteAddr, r.UserAgent())
		if err != nil {
			writeAuthnError(w, r, fmt.Errorf("create session: %w", err))
			return
		}
		setSIDCookie(w, sid)

		resp := loginResponse{
			PrincipalID: p.ID,
			UserID:      p.UserID,
			Email:       p.Email,
			Role:        string(p.Role),
		}
		if p.OrgID != "" {
			orgID := p.OrgID
			resp.OrgID = &orgID
		}
		routing.WriteJSON(w, http.StatusCreated, resp)
	})
}

func handleLogout(sessions sessionStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sid, ok := readSID(r); ok {
			_ = sessions.Revoke(r.Context(), sid)
		}
		clearSIDCookie(w)
		w.WriteHeader(http.StatusNoContent)
	})
}

func writeAuthnError(w http.ResponseWriter, r *http.Request, err error) {
	status := httperr.Status(err)
	code := httperr.Code(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logServerError(r, code, err)
		message = "internal error"
		if httperr.IsBackendUnavailable(err) {
			message = "backend unavailable"
		}
	}
	routing.WriteError(w, r, routing.RouteClassAuthn, status, code, message)
}
