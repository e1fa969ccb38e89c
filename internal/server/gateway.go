package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/karibu-labs/darasa/internal/routing"
	"github.com/karibu-labs/darasa/pkg/authz"
	"github.com/karibu-labs/darasa/pkg/httperr"
)

// RoutePolicy is the static authorization contract of one route, declared
// at registration time and immutable afterwards.
type RoutePolicy struct {
	Object string
	Action string
	// RequireOrg demands a non-empty organization membership on the
	// caller's identity.
	RequireOrg   bool
	AllowedRoles []authz.Role
}

// allows reports whether the role is in the route's allow-list. Exact,
// case-sensitive membership; no hierarchy.
func (p RoutePolicy) allows(role authz.Role) bool {
	for _, r := range p.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

type authorizer interface {
	Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error)
	AllowRoles(roles []authz.Role, object string, action string) error
}

// authedHandler runs only after every gateway check has passed. It receives
// the verified identity and the privileged store bundle.
type authedHandler func(w http.ResponseWriter, r *http.Request, id Identity, db *Stores)

// gateway guarantees that no route handler executes without a verified,
// authorized caller. Checks run strictly in order - identity, organization,
// role - and short-circuit on the first failure.
type gateway struct {
	sessions   sessionStore
	principals principalStore
	stores     *Stores
	authorizer authorizer

	registered map[string]struct{}
}

func newGateway(sessions sessionStore, principals principalStore, stores *Stores, a authorizer) *gateway {
	return &gateway{
		sessions:   sessions,
		principals: principals,
		stores:     stores,
		authorizer: a,
		registered: map[string]struct{}{},
	}
}

// handle validates the policy, seeds the authorizer with its role grants,
// and registers the guarded handler on the router. Policy errors are
// startup errors: a misdeclared route must never begin serving.
func (g *gateway) handle(router *routing.Router, method string, path string, policy RoutePolicy, h authedHandler) error {
	if policy.Object == "" || policy.Action == "" {
		return fmt.Errorf("gateway: route %s %s: policy object/action required", method, path)
	}
	if len(policy.AllowedRoles) == 0 {
		return fmt.Errorf("gateway: route %s %s: empty role allow-list", method, path)
	}
	seen := map[authz.Role]struct{}{}
	for _, role := range policy.AllowedRoles {
		if _, err := authz.ParseRole(string(role)); err != nil {
			return fmt.Errorf("gateway: route %s %s: role %q not in vocabulary", method, path, role)
		}
		if _, dup := seen[role]; dup {
			return fmt.Errorf("gateway: route %s %s: duplicate role %q", method, path, role)
		}
		seen[role] = struct{}{}
	}

	key := method + " " + path
	if _, dup := g.registered[key]; dup {
		return fmt.Errorf("gateway: route %s already registered", key)
	}
	g.registered[key] = struct{}{}

	if err := g.authorizer.AllowRoles(policy.AllowedRoles, policy.Object, policy.Action); err != nil {
		return fmt.Errorf("gateway: route %s: %w", key, err)
	}

	router.Handle(routing.RouteClassAPI, method, path, g.wrap(policy, h))
	return nil
}

func (g *gateway) wrap(policy RoutePolicy, h authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Step 1: identity resolution.
		sid, ok := readSID(r)
		if !ok {
			writeAPIError(w, r, httperr.NewUnauthenticated("unauthorized"))
			return
		}
		sess, ok, err := g.sessions.Lookup(r.Context(), sid)
		if err != nil {
			writeAPIError(w, r, fmt.Errorf("session lookup: %w", err))
			return
		}
		if !ok {
			clearSIDCookie(w)
			writeAPIError(w, r, httperr.NewUnauthenticated("unauthorized"))
			return
		}
		principal, ok, err := g.principals.GetByID(r.Context(), sess.PrincipalID)
		if err != nil {
			writeAPIError(w, r, fmt.Errorf("principal lookup: %w", err))
			return
		}
		if !ok || principal.Status != "active" {
			clearSIDCookie(w)
			writeAPIError(w, r, httperr.NewUnauthenticated("unauthorized"))
			return
		}

		id := Identity{
			UserID: principal.UserID,
			Email:  principal.Email,
			Role:   principal.Role,
			OrgID:  principal.OrgID,
		}

		// Step 2: organization check.
		if policy.RequireOrg {
			if id.OrgID == "" {
				writeAPIError(w, r, httperr.NewMissingOrganization("organization membership required"))
				return
			}
			if org, ok := currentOrg(r.Context()); ok && org.ID != id.OrgID {
				writeAPIError(w, r, httperr.NewForbidden("organization not permitted"))
				return
			}
		}

		// Step 3: role check. The route's own allow-list is checked
		// first: routes can share an object/action grant while allowing
		// different role sets, so casbin's object-level rows alone are
		// too coarse. Casbin then enforces the same grant across org
		// domains on top of it.
		if !policy.allows(id.Role) {
			writeAPIError(w, r, httperr.NewForbidden("forbidden"))
			return
		}
		subject := authz.SubjectFromRole(id.Role)
		domain := authz.DomainFromOrgID(id.OrgID)
		allowed, enforced, err := g.authorizer.Authorize(subject, domain, policy.Object, policy.Action)
		if err != nil {
			writeAPIError(w, r, fmt.Errorf("authorize: %w", err))
			return
		}
		if enforced && !allowed {
			writeAPIError(w, r, httperr.NewForbidden("forbidden"))
			return
		}

		// Step 4: dispatch.
		h(w, r.WithContext(withIdentity(r.Context(), id)), id, g.stores)
	})
}

// writeAPIError converts an error kind into the JSON envelope. 5xx causes
// are logged for operators and replaced with a generic message so backend
// details never leak to callers.
func writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
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
	routing.WriteError(w, r, routing.RouteClassAPI, status, code, message)
}

func logServerError(r *http.Request, code string, err error) {
	slog.Error("request failed",
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
}

var errMissingUnderRoot = errors.New("server: config file not found under working tree")

func defaultConfigPath(rel string) (string, error) {
	path := rel
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", fmt.Errorf("%w: %s", errMissingUnderRoot, rel)
}
