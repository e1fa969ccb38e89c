package routing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError_APIAlwaysJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/user-org-id", nil)
	WriteError(rec, req, RouteClassAPI, http.StatusBadRequest, "user_id_required", "user_id is required")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Error != "user_id is required" || env.Code != "user_id_required" {
		t.Fatalf("env=%+v", env)
	}
	if env.Meta.Path != "/api/user-org-id" || env.Meta.Method != http.MethodGet {
		t.Fatalf("meta=%+v", env.Meta)
	}
}

// Login/logout exchange JSON bodies, so their errors are JSON regardless
// of the Accept header.
func TestWriteError_AuthnAlwaysJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/sessions", nil)
	WriteError(rec, req, RouteClassAuthn, http.StatusInternalServerError, "backend_unavailable", "backend unavailable")

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Error != "backend unavailable" || env.Code != "backend_unavailable" {
		t.Fatalf("env=%+v", env)
	}
}

func TestWriteError_UIStaysHTMLUnlessJSONRequested(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/somewhere", nil)
	WriteError(rec, req, RouteClassUI, http.StatusNotFound, "not_found", "not found")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content-type=%q", ct)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/somewhere", nil)
	req.Header.Set("Accept", "application/json")
	WriteError(rec, req, RouteClassUI, http.StatusNotFound, "not_found", "not found")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"id": "abc"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d", rec.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["id"] != "abc" {
		t.Fatalf("out=%v", out)
	}
}

func TestTraceIDFromRequest(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", "4bf92f3577b34da6a3ce929d0e0e4736"},
		{"00-00000000000000000000000000000000-00f067aa0ba902b7-01", ""},
		{"00-zzzz2f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", ""},
		{"not-a-traceparent", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/students", nil)
		if tc.header != "" {
			req.Header.Set("traceparent", tc.header)
		}
		if got := traceIDFromRequest(req); got != tc.want {
			t.Fatalf("traceIDFromRequest(%q)=%q want %q", tc.header, got, tc.want)
		}
	}
}
