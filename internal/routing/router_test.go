package routing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(Allowlist{Version: 1, Entrypoints: map[string]Entrypoint{
		"server": {Routes: []AllowlistRoute{
			{Path: "/health", Methods: []string{"GET"}, RouteClass: "ops"},
			{Path: "/api/teachers/{id}", Methods: []string{"GET"}, RouteClass: "api"},
		}},
	}}, "server")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRouter_ExactRoute(t *testing.T) {
	r := NewRouter(testClassifier(t))
	r.Handle(RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestRouter_PatternRouteParams(t *testing.T) {
	r := NewRouter(testClassifier(t))
	var gotID string
	r.Handle(RouteClassAPI, http.MethodGet, "/api/teachers/{id}", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotID = PathParam(req, "id")
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/teachers/t-123", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if gotID != "t-123" {
		t.Fatalf("id=%q", gotID)
	}
}

func TestRouter_NotFound(t *testing.T) {
	r := NewRouter(testClassifier(t))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if env.Code != "not_found" || env.Error != "not found" {
		t.Fatalf("env=%+v", env)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	r := NewRouter(testClassifier(t))
	r.Handle(RouteClassAPI, http.MethodGet, "/api/students", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/students", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestRouter_PanicRecovers(t *testing.T) {
	r := NewRouter(testClassifier(t))
	r.Handle(RouteClassAPI, http.MethodGet, "/api/students", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/students", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if env.Error != "internal error" {
		t.Fatalf("error=%q leaked panic detail?", env.Error)
	}
}

func TestRouter_SameTemplateTwoMethods(t *testing.T) {
	r := NewRouter(testClassifier(t))
	r.Handle(RouteClassAPI, http.MethodGet, "/api/orgs/{id}", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r.Handle(RouteClassAPI, http.MethodPost, "/api/orgs/{id}", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orgs/42", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d", rec.Code)
	}
}
