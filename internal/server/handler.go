package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/karibu-labs/darasa/internal/config"
	"github.com/karibu-labs/darasa/internal/routing"
	"github.com/karibu-labs/darasa/pkg/authz"
)

// HandlerOptions lets callers substitute any collaborator. Tests pass
// memory stores and stub providers; production leaves fields nil and gets
// Postgres-backed defaults from the environment.
type HandlerOptions struct {
	Config           *config.Config
	Stores           *Stores
	Sessions         sessionStore
	Principals       principalStore
	IdentityProvider identityProvider
	OrgResolver      OrgResolver
	Authorizer       authorizer
}

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = &loaded
	}

	allowlistPath := cfg.AllowlistPath
	if allowlistPath == "" {
		p, err := defaultConfigPath("config/routing/allowlist.yaml")
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}
	allowlist, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}
	classifier, err := routing.NewClassifier(allowlist, "server")
	if err != nil {
		return nil, err
	}

	stores := opts.Stores
	sessions := opts.Sessions
	principals := opts.Principals
	orgResolver := opts.OrgResolver

	var pool *pgxpool.Pool
	needPool := stores == nil || sessions == nil || principals == nil || orgResolver == nil
	if needPool {
		pool, err = pgxpool.New(context.Background(), dbDSNFromEnv())
		if err != nil {
			return nil, fmt.Errorf("server: connect database: %w", err)
		}
	}
	if stores == nil {
		stores = NewPGStores(pool)
	}
	if sessions == nil {
		sessions = newSessionPGStore(pool)
	}
	if principals == nil {
		principals = newPrincipalPGStore(pool)
	}
	if orgResolver == nil {
		orgResolver = newOrgDBResolver(pool)
	}

	az := opts.Authorizer
	if az == nil {
		mode, err := authz.ModeFromEnv()
		if err != nil {
			return nil, err
		}
		modelPath := cfg.AuthzModelPath
		if modelPath == "" {
			modelPath, err = defaultConfigPath("config/access/model.conf")
			if err != nil {
				return nil, err
			}
		}
		az, err = authz.NewAuthorizer(modelPath, mode)
		if err != nil {
			return nil, err
		}
	}

	provider := opts.IdentityProvider
	if provider == nil {
		provider, err = newGoTrueIdentityProvider(cfg.AuthBaseURL, cfg.AuthServiceRoleKey)
		if err != nil {
			return nil, err
		}
	}

	router := routing.NewRouter(classifier)
	registerOpsRoutes(router)
	registerAuthRoutes(router, provider, principals, sessions, time.Duration(cfg.SessionTTLHours)*time.Hour)

	gw := newGateway(sessions, principals, stores, az)
	if err := registerAPIRoutes(gw, router); err != nil {
		return nil, err
	}

	return withOrgContext(orgResolver, cfg.TrustProxy, router), nil
}

func registerOpsRoutes(router *routing.Router) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", ok)
	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", ok)
}

func registerAuthRoutes(router *routing.Router, provider identityProvider, principals principalStore, sessions sessionStore, ttl time.Duration) {
	router.Handle(routing.RouteClassAuthn, http.MethodPost, "/auth/sessions", handleLogin(provider, principals, sessions, ttl))
	router.Handle(routing.RouteClassAuthn, http.MethodPost, "/auth/logout", handleLogout(sessions))
}

// registerAPIRoutes declares every guarded route with its policy. The
// gateway validates each policy and seeds the authorizer before the server
// starts accepting traffic.
func registerAPIRoutes(gw *gateway, router *routing.Router) error {
	staff := []authz.Role{authz.RolePrincipal, authz.RoleAdmin}
	staffAndTeachers := []authz.Role{authz.RolePrincipal, authz.RoleAdmin, authz.RoleTeacher}
	everyone := []authz.Role{authz.RolePrincipal, authz.RoleAdmin, authz.RoleTeacher, authz.RoleParent}

	type route struct {
		method string
		path   string
		policy RoutePolicy
		h      authedHandler
	}
	routes := []route{
		{http.MethodGet, "/api/orgs/{id}",
			RoutePolicy{Object: authz.ObjectOrgs, Action: authz.ActionRead, RequireOrg: false, AllowedRoles: staff},
			handleGetOrg},
		{http.MethodGet, "/api/user-org-id",
			RoutePolicy{Object: authz.ObjectOrgMembership, Action: authz.ActionRead, RequireOrg: false, AllowedRoles: staff},
			handleUserOrgID},

		{http.MethodPost, "/api/students",
			RoutePolicy{Object: authz.ObjectStudents, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staff},
			handleCreateStudent},
		{http.MethodGet, "/api/students",
			RoutePolicy{Object: authz.ObjectStudents, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: everyone},
			handleListStudents},
		{http.MethodGet, "/api/students/{id}",
			RoutePolicy{Object: authz.ObjectStudents, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: everyone},
			handleGetStudent},
		{http.MethodPut, "/api/students/{id}",
			RoutePolicy{Object: authz.ObjectStudents, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staff},
			handleUpdateStudent},
		{http.MethodDelete, "/api/students/{id}",
			RoutePolicy{Object: authz.ObjectStudents, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: []authz.Role{authz.RoleAdmin}},
			handleDeleteStudent},
		{http.MethodPost, "/api/students/{id}/guardians",
			RoutePolicy{Object: authz.ObjectStudents, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staff},
			handleLinkGuardian},
		{http.MethodGet, "/api/students/{id}/guardians",
			RoutePolicy{Object: authz.ObjectStudents, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: staffAndTeachers},
			handleListGuardians},

		{http.MethodPost, "/api/teachers",
			RoutePolicy{Object: authz.ObjectTeachers, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staff},
			handleCreateTeacher},
		{http.MethodGet, "/api/teachers",
			RoutePolicy{Object: authz.ObjectTeachers, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: staffAndTeachers},
			handleListTeachers},
		{http.MethodGet, "/api/teachers/{id}",
			RoutePolicy{Object: authz.ObjectTeachers, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: staff},
			handleGetTeacher},
		{http.MethodPut, "/api/teachers/{id}",
			RoutePolicy{Object: authz.ObjectTeachers, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staff},
			handleUpdateTeacher},
		{http.MethodDelete, "/api/teachers/{id}",
			RoutePolicy{Object: authz.ObjectTeachers, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: []authz.Role{authz.RoleAdmin}},
			handleDeleteTeacher},

		{http.MethodPost, "/api/attendance",
			RoutePolicy{Object: authz.ObjectAttendance, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staffAndTeachers},
			handleRecordAttendance},
		{http.MethodGet, "/api/attendance",
			RoutePolicy{Object: authz.ObjectAttendance, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: everyone},
			handleListAttendance},
		{http.MethodPost, "/api/attendance/rules",
			RoutePolicy{Object: authz.ObjectAttendanceRules, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staff},
			handleCreateAttendanceRule},
		{http.MethodGet, "/api/attendance/rules",
			RoutePolicy{Object: authz.ObjectAttendanceRules, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: staff},
			handleListAttendanceRules},
		{http.MethodDelete, "/api/attendance/rules/{id}",
			RoutePolicy{Object: authz.ObjectAttendanceRules, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staff},
			handleDeleteAttendanceRule},
		{http.MethodPost, "/api/attendance/rules:evaluate",
			RoutePolicy{Object: authz.ObjectAttendanceRules, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: staffAndTeachers},
			handleEvaluateAttendanceRules},

		{http.MethodPost, "/api/messages",
			RoutePolicy{Object: authz.ObjectMessages, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: everyone},
			handleSendMessage},
		{http.MethodGet, "/api/messages",
			RoutePolicy{Object: authz.ObjectMessages, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: everyone},
			handleListMessages},
		{http.MethodPost, "/api/messages/{id}/read",
			RoutePolicy{Object: authz.ObjectMessages, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: everyone},
			handleMarkMessageRead},

		{http.MethodPost, "/api/announcements",
			RoutePolicy{Object: authz.ObjectAnnouncements, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staff},
			handleCreateAnnouncement},
		{http.MethodGet, "/api/announcements",
			RoutePolicy{Object: authz.ObjectAnnouncements, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: everyone},
			handleListAnnouncements},
		{http.MethodGet, "/api/announcements/{id}",
			RoutePolicy{Object: authz.ObjectAnnouncements, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: everyone},
			handleGetAnnouncement},
		{http.MethodDelete, "/api/announcements/{id}",
			RoutePolicy{Object: authz.ObjectAnnouncements, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staff},
			handleDeleteAnnouncement},

		{http.MethodPost, "/api/calendar/events",
			RoutePolicy{Object: authz.ObjectCalendarEvents, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staff},
			handleCreateCalendarEvent},
		{http.MethodGet, "/api/calendar/events",
			RoutePolicy{Object: authz.ObjectCalendarEvents, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: everyone},
			handleListCalendarEvents},
		{http.MethodGet, "/api/calendar/events/{id}",
			RoutePolicy{Object: authz.ObjectCalendarEvents, Action: authz.ActionRead, RequireOrg: true, AllowedRoles: everyone},
			handleGetCalendarEvent},
		{http.MethodPut, "/api/calendar/events/{id}",
			RoutePolicy{Object: authz.ObjectCalendarEvents, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staff},
			handleUpdateCalendarEvent},
		{http.MethodDelete, "/api/calendar/events/{id}",
			RoutePolicy{Object: authz.ObjectCalendarEvents, Action: authz.ActionWrite, RequireOrg: true, AllowedRoles: staff},
			handleDeleteCalendarEvent},
	}

	for _, rt := range routes {
		if err := gw.handle(router, rt.method, rt.path, rt.policy, rt.h); err != nil {
			return err
		}
	}
	return nil
}

// withOrgContext resolves the request host to an organization and stashes
// it on the context. A host with no mapping is not an error: routes that
// need an org enforce it through their policy, and ops routes never do.
func withOrgContext(orgs OrgResolver, trustProxy bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hostname := effectiveHost(r, trustProxy)
		if hostname != "" {
			org, ok, err := orgs.ResolveOrg(r.Context(), hostname)
			if err != nil {
				logServerError(r, "org_resolve_error", err)
				routing.WriteError(w, r, routing.RouteClassAPI, http.StatusInternalServerError, "org_resolve_error", "internal error")
				return
			}
			if ok {
				r = r.WithContext(withOrg(r.Context(), org))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func MustNewHandler() http.Handler {
	h, err := NewHandler()
	if err != nil {
		panic(fmt.Errorf("server: failed to build handler: %w", err))
	}
	return h
}
