package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/karibu-labs/darasa/pkg/authz"
)

func createTestTeacher(t *testing.T, env *testEnv, sid, email string) string {
	t.Helper()
	rec := env.request(t, http.MethodPost, "/api/teachers", map[string]any{
		"first_name": "Grace",
		"last_name":  "Mwangi",
		"email":      email,
		"title":      "Ms",
		"subject":    "Mathematics",
	}, sid)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create teacher = %d (body %s)", rec.Code, rec.Body.String())
	}
	id, _ := decodeBody(t, rec)["id"].(string)
	if id == "" {
		t.Fatal("created teacher has no id")
	}
	return id
}

func TestTeacherCRUD(t *testing.T) {
	env := newTestEnv(t)
	adminSID, _ := env.seedSession(t, authz.RoleAdmin, env.orgID)

	teacherID := createTestTeacher(t, env, adminSID, "g.mwangi@one.darasa.test")

	rec := env.request(t, http.MethodGet, "/api/teachers/"+teacherID, nil, adminSID)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["subject"]; got != "Mathematics" {
		t.Fatalf("subject = %v", got)
	}

	rec = env.request(t, http.MethodGet, "/api/teachers", nil, adminSID)
	teachers, _ := decodeBody(t, rec)["teachers"].([]any)
	if len(teachers) != 1 {
		t.Fatalf("list = %d teachers, want 1", len(teachers))
	}

	rec = env.request(t, http.MethodPut, "/api/teachers/"+teacherID, map[string]any{
		"first_name": "Grace",
		"last_name":  "Mwangi",
		"email":      "g.mwangi@one.darasa.test",
		"title":      "Mrs",
		"subject":    "Physics",
	}, adminSID)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d (body %s)", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["subject"]; got != "Physics" {
		t.Fatalf("subject after update = %v", got)
	}

	rec = env.request(t, http.MethodDelete, "/api/teachers/"+teacherID, nil, adminSID)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/teachers/"+teacherID, nil, adminSID)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Teacher not found" {
		t.Fatalf("error = %v, want %q", got, "Teacher not found")
	}
}

func TestCreateTeacher_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	adminSID, _ := env.seedSession(t, authz.RoleAdmin, env.orgID)

	createTestTeacher(t, env, adminSID, "dup@one.darasa.test")

	rec := env.request(t, http.MethodPost, "/api/teachers", map[string]any{
		"first_name": "Another",
		"last_name":  "Person",
		"email":      "dup@one.darasa.test",
	}, adminSID)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate email = %d, want 400", rec.Code)
	}
	if got, _ := decodeBody(t, rec)["error"].(string); !strings.Contains(got, "already exists") {
		t.Fatalf("error = %q, want mention of already exists", got)
	}
}

func TestCreateTeacher_InvalidEmail(t *testing.T) {
	env := newTestEnv(t)
	adminSID, _ := env.seedSession(t, authz.RoleAdmin, env.orgID)

	rec := env.request(t, http.MethodPost, "/api/teachers", map[string]any{
		"first_name": "No",
		"last_name":  "Email",
		"email":      "not-an-email",
	}, adminSID)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid email = %d, want 400", rec.Code)
	}
}

// Teachers may list staff but the detail route is principal/admin only.
func TestGetTeacher_TeacherForbidden(t *testing.T) {
	env := newTestEnv(t)
	adminSID, _ := env.seedSession(t, authz.RoleAdmin, env.orgID)
	teacherSID, _ := env.seedSession(t, authz.RoleTeacher, env.orgID)

	teacherID := createTestTeacher(t, env, adminSID, "detail@one.darasa.test")

	rec := env.request(t, http.MethodGet, "/api/teachers", nil, teacherSID)
	if rec.Code != http.StatusOK {
		t.Fatalf("teacher list = %d, want 200", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/teachers/"+teacherID, nil, teacherSID)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("teacher detail = %d, want 403", rec.Code)
	}
}

func TestDeleteTeacher_PrincipalForbidden(t *testing.T) {
	env := newTestEnv(t)
	adminSID, _ := env.seedSession(t, authz.RoleAdmin, env.orgID)
	principalSID, _ := env.seedSession(t, authz.RolePrincipal, env.orgID)

	teacherID := createTestTeacher(t, env, adminSID, "kept@one.darasa.test")

	rec := env.request(t, http.MethodDelete, "/api/teachers/"+teacherID, nil, principalSID)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("principal delete = %d, want 403", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/teachers/"+teacherID, nil, principalSID)
	if rec.Code != http.StatusOK {
		t.Fatalf("teacher gone after forbidden delete: get = %d", rec.Code)
	}
}
