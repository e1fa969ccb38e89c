package server

import "context"

// Org is one school organization (a tenant). Requests reach an org either
// through its hostname or through an explicit path parameter on
// organization-scoped admin routes.
type Org struct {
	ID       string
	Hostname string
	Name     string
}

type orgCtxKey struct{}

func withOrg(ctx context.Context, org Org) context.Context {
	return context.WithValue(ctx, orgCtxKey{}, org)
}

func currentOrg(ctx context.Context) (Org, bool) {
	o, ok := ctx.Value(orgCtxKey{}).(Org)
	return o, ok
}
