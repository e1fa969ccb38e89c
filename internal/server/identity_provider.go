package server

import (
	"context"
	"errors"
	"strings"

	"github.com/karibu-labs/darasa/internal/gotrue"
	"github.com/karibu-labs/darasa/pkg/authz"
	"github.com/karibu-labs/darasa/pkg/httperr"
)

var errInvalidCredentials = errors.New("server: invalid credentials")

type authenticatedIdentity struct {
	AuthUserID string
	Email      string
	Role       authz.Role
}

type identityProvider interface {
	AuthenticatePassword(ctx context.Context, email string, password string) (authenticatedIdentity, error)
}

type gotrueIdentityProvider struct {
	client         *gotrue.Client
	serviceRoleKey string
}

func newGoTrueIdentityProvider(baseURL string, serviceRoleKey string) (identityProvider, error) {
	c, err := gotrue.New(baseURL)
	if err != nil {
		return nil, err
	}
	return &gotrueIdentityProvider{client: c, serviceRoleKey: strings.TrimSpace(serviceRoleKey)}, nil
}

// AuthenticatePassword verifies credentials with the auth service, then
// re-reads the account through the privileged admin surface so the role
// claim comes from service-controlled metadata, not the token response.
func (p *gotrueIdentityProvider) AuthenticatePassword(ctx context.Context, email string, password string) (authenticatedIdentity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := p.client.LoginPassword(ctx, email, password)
	if err != nil {
		var he *gotrue.HTTPError
		if errors.As(err, &he) {
			switch he.StatusCode {
			case 400, 401, 403:
				return authenticatedIdentity{}, errInvalidCredentials
			}
		}
		return authenticatedIdentity{}, httperr.NewBackendUnavailable("auth service: " + err.Error())
	}
	if user.ID == "" {
		return authenticatedIdentity{}, errors.New("server: auth service returned no user id")
	}

	if p.serviceRoleKey == "" {
		return authenticatedIdentity{}, httperr.NewBackendUnavailable("auth service role key not configured")
	}
	verified, err := p.client.AdminGetUser(ctx, p.serviceRoleKey, user.ID)
	if err != nil {
		return authenticatedIdentity{}, httperr.NewBackendUnavailable("auth service admin lookup: " + err.Error())
	}

	rawRole, ok := gotrue.StringClaim(verified.AppMetadata, "role")
	if !ok {
		return authenticatedIdentity{}, errors.New("server: account has no role assignment")
	}
	role, err := authz.ParseRole(rawRole)
	if err != nil {
		return authenticatedIdentity{}, errors.New("server: account role is not in the role vocabulary")
	}

	emailClaim := strings.ToLower(strings.TrimSpace(verified.Email))
	if emailClaim != email {
		return authenticatedIdentity{}, errors.New("server: auth service email mismatch")
	}

	return authenticatedIdentity{
		AuthUserID: verified.ID,
		Email:      email,
		Role:       role,
	}, nil
}
