package routing

import "testing"

func TestParsePathPattern(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{"/api/teachers/{id}", true},
		{"/api/orgs/{id}", true},
		{"/api/students", false}, // no params, handled as exact
		{"api/{id}", false},
		{"/api/{}", false},
		{"/api/x{id}", false},
	}
	for _, tc := range cases {
		if _, ok := parsePathPattern(tc.raw); ok != tc.ok {
			t.Fatalf("parsePathPattern(%q)=%v want %v", tc.raw, ok, tc.ok)
		}
	}
}

func TestPathPatternMatch(t *testing.T) {
	p, ok := parsePathPattern("/api/teachers/{id}")
	if !ok {
		t.Fatal("parse failed")
	}

	cases := []struct {
		path string
		want bool
	}{
		{"/api/teachers/123", true},
		{"/api/teachers/abc-def", true},
		{"/api/teachers", false},
		{"/api/teachers/123/extra", false},
		{"/api/students/123", false},
		{"/api/teachers//", false},
	}
	for _, tc := range cases {
		if got := p.Match(tc.path); got != tc.want {
			t.Fatalf("Match(%q)=%v want %v", tc.path, got, tc.want)
		}
	}
}

func TestPathPatternParams(t *testing.T) {
	p, ok := parsePathPattern("/api/orgs/{id}")
	if !ok {
		t.Fatal("parse failed")
	}
	params := p.Params("/api/orgs/42")
	if params["id"] != "42" {
		t.Fatalf("params=%v", params)
	}
	if p.Params("/api/orgs/42/extra") != nil {
		t.Fatal("expected nil params on length mismatch")
	}
}

func TestZeroPatternNeverMatches(t *testing.T) {
	var p PathPattern
	if p.Match("/anything") {
		t.Fatal("zero pattern matched")
	}
}
