package server

import (
	"context"

	"github.com/karibu-labs/darasa/pkg/authz"
)

// Identity is the verified caller of one request. It is reconstructed from
// the session on every request and never cached across requests.
type Identity struct {
	UserID string
	Email  string
	Role   authz.Role
	// OrgID is empty when the account has no organization membership
	// (e.g. platform admins).
	OrgID string
}

type identityCtxKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

func currentIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}
