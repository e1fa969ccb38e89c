package authz

import (
	"os"
	"path/filepath"
	"testing"
)

const testModel = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.dom == "*" || r.dom == p.dom) && r.obj == p.obj && r.act == p.act
`

func writeTestModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.conf")
	if err := os.WriteFile(path, []byte(testModel), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestModeFromEnv_Default(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeEnforce {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_Shadow(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "shadow")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeShadow {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_DisabledRequiresUnsafe(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "disabled")
	t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatal("expected error")
	}
	t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "1")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeDisabled {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_Invalid(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "nope")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseRole(t *testing.T) {
	for _, raw := range []string{"admin", "principal", "teacher", "parent", "anonymous", " teacher "} {
		if _, err := ParseRole(raw); err != nil {
			t.Fatalf("ParseRole(%q): %v", raw, err)
		}
	}
	for _, raw := range []string{"", "Principal", "ADMIN", "janitor", "teachers"} {
		if _, err := ParseRole(raw); err == nil {
			t.Fatalf("ParseRole(%q): expected error", raw)
		}
	}
}

func TestSubjectFromRole(t *testing.T) {
	if got := SubjectFromRole(RoleParent); got != "role:parent" {
		t.Fatalf("got %q", got)
	}
	if got := SubjectFromRole(Role("")); got != "role:anonymous" {
		t.Fatalf("got %q", got)
	}
}

func TestDomainFromOrgID(t *testing.T) {
	if got := DomainFromOrgID(" ORG-1 "); got != "org-1" {
		t.Fatalf("got %q", got)
	}
	if got := DomainFromOrgID(""); got != DomainGlobal {
		t.Fatalf("got %q", got)
	}
}

func TestAuthorize_EnforceAllowsSeededRoles(t *testing.T) {
	a, err := NewAuthorizer(writeTestModel(t), ModeEnforce)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}
	if err := a.AllowRoles([]Role{RolePrincipal, RoleAdmin}, ObjectTeachers, ActionRead); err != nil {
		t.Fatalf("AllowRoles: %v", err)
	}

	allowed, enforced, err := a.Authorize(SubjectFromRole(RoleAdmin), "org-1", ObjectTeachers, ActionRead)
	if err != nil || !allowed || !enforced {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}

	allowed, enforced, err = a.Authorize(SubjectFromRole(RoleParent), "org-1", ObjectTeachers, ActionRead)
	if err != nil || allowed || !enforced {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}
}

func TestAuthorize_ShadowNeverEnforces(t *testing.T) {
	a, err := NewAuthorizer(writeTestModel(t), ModeShadow)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}
	allowed, enforced, err := a.Authorize(SubjectFromRole(RoleParent), "org-1", ObjectTeachers, ActionRead)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if allowed || enforced {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}
}

func TestAuthorize_DisabledAllowsEverything(t *testing.T) {
	a, err := NewAuthorizer(writeTestModel(t), ModeDisabled)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}
	allowed, enforced, err := a.Authorize("role:nobody", "org-1", "anything", "write")
	if err != nil || !allowed || enforced {
		t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
	}
}

func TestAllowRoles_RejectsUnknownRole(t *testing.T) {
	a, err := NewAuthorizer(writeTestModel(t), ModeEnforce)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}
	if err := a.AllowRoles([]Role{"janitor"}, ObjectStudents, ActionRead); err == nil {
		t.Fatal("expected error")
	}
}
