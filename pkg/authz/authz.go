// Package authz wraps the casbin enforcer behind the small surface the
// route gateway needs: role subjects, org domains, and an enforcement mode
// switch for staged rollouts.
package authz

import (
	"errors"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
)

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

func ModeFromEnv() (Mode, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("AUTHZ_MODE")))
	if raw == "" {
		return ModeEnforce, nil
	}
	switch Mode(raw) {
	case ModeEnforce, ModeShadow:
		return Mode(raw), nil
	case ModeDisabled:
		if os.Getenv("AUTHZ_UNSAFE_ALLOW_DISABLED") != "1" {
			return "", errors.New("authz: AUTHZ_MODE=disabled requires AUTHZ_UNSAFE_ALLOW_DISABLED=1")
		}
		return ModeDisabled, nil
	default:
		return "", errors.New("authz: invalid AUTHZ_MODE (expected enforce|shadow|disabled)")
	}
}

type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
}

// NewAuthorizer loads the model only; policy rows are added by the route
// registry at startup via AllowRoles, so the policy set always mirrors the
// registered route table.
func NewAuthorizer(modelPath string, mode Mode) (*Authorizer, error) {
	enforcer, err := casbin.NewEnforcer(modelPath)
	if err != nil {
		return nil, err
	}
	return &Authorizer{enforcer: enforcer, mode: mode}, nil
}

// AllowRoles grants object/action to each role across all org domains.
func (a *Authorizer) AllowRoles(roles []Role, object string, action string) error {
	for _, role := range roles {
		if _, ok := knownRoles[role]; !ok {
			return ErrUnknownRole
		}
		if _, err := a.enforcer.AddPolicy(SubjectFromRole(role), "*", object, action); err != nil {
			return err
		}
	}
	return nil
}

func SubjectFromRole(role Role) string {
	r := strings.TrimSpace(string(role))
	if r == "" {
		r = string(RoleAnonymous)
	}
	return "role:" + r
}

func DomainFromOrgID(orgID string) string {
	orgID = strings.ToLower(strings.TrimSpace(orgID))
	if orgID == "" {
		return DomainGlobal
	}
	return orgID
}

// Authorize reports whether the subject may perform action on object within
// domain. enforced=false means the decision is advisory only (shadow or
// disabled mode) and the caller must not reject the request.
func (a *Authorizer) Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error) {
	switch a.mode {
	case ModeDisabled:
		return true, false, nil
	case ModeShadow:
		ok, err := a.enforcer.Enforce(subject, domain, object, action)
		if err != nil {
			return false, false, err
		}
		return ok, false, nil
	case ModeEnforce:
		ok, err := a.enforcer.Enforce(subject, domain, object, action)
		if err != nil {
			return false, true, err
		}
		return ok, true, nil
	default:
		return false, false, errors.New("authz: unknown mode")
	}
}
