package routing

import "testing"

func TestNewClassifier_Validation(t *testing.T) {
	if _, err := NewClassifier(Allowlist{Version: 1, Entrypoints: map[string]Entrypoint{}}, "server"); err == nil {
		t.Fatal("expected missing entrypoint error")
	}
	if _, err := NewClassifier(Allowlist{Version: 1, Entrypoints: map[string]Entrypoint{
		"server": {},
	}}, "server"); err == nil {
		t.Fatal("expected empty routes error")
	}
	if _, err := NewClassifier(Allowlist{Version: 1, Entrypoints: map[string]Entrypoint{
		"server": {Routes: []AllowlistRoute{{Path: "", RouteClass: "api"}}},
	}}, "server"); err == nil {
		t.Fatal("expected invalid route error")
	}
}

func TestClassify(t *testing.T) {
	c, err := NewClassifier(Allowlist{Version: 1, Entrypoints: map[string]Entrypoint{
		"server": {Routes: []AllowlistRoute{
			{Path: "/health", Methods: []string{"GET"}, RouteClass: "ops"},
			{Path: "/api/attendance/rules:evaluate", Methods: []string{"POST"}, RouteClass: "api"},
			{Path: "/api/orgs/{id}", Methods: []string{"GET"}, RouteClass: "api"},
		}},
	}}, "server")
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		path string
		want RouteClass
	}{
		{"/health", RouteClassOps},
		{"/healthz", RouteClassOps},
		{"/api/attendance/rules:evaluate", RouteClassAPI},
		{"/api/orgs/42", RouteClassAPI},
		{"/api/students", RouteClassAPI},
		{"/auth/sessions", RouteClassAuthn},
		{"/assets/app.css", RouteClassStatic},
		{"/", RouteClassUI},
		{"/apiary", RouteClassUI},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.path); got != tc.want {
			t.Fatalf("Classify(%q)=%q want %q", tc.path, got, tc.want)
		}
	}
}

func TestParseAllowlistYAML(t *testing.T) {
	good := []byte(`
version: 1
entrypoints:
  server:
    routes:
      - path: /health
        methods: [GET]
        route_class: ops
`)
	a, err := ParseAllowlistYAML(good)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(a.Entrypoints["server"].Routes) != 1 {
		t.Fatalf("routes=%d", len(a.Entrypoints["server"].Routes))
	}

	if _, err := ParseAllowlistYAML([]byte("version: 2\nentrypoints: {}")); err == nil {
		t.Fatal("expected version error")
	}
	if _, err := ParseAllowlistYAML([]byte("version: 1")); err == nil {
		t.Fatal("expected missing entrypoints error")
	}
	if _, err := ParseAllowlistYAML([]byte("{")); err == nil {
		t.Fatal("expected yaml error")
	}
}

func TestParseAllowlistYAML_RejectsMalformedRoutes(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unrooted path", `
version: 1
entrypoints:
  server:
    routes:
      - path: api/students
        methods: [GET]
        route_class: api
`},
		{"unknown route class", `
version: 1
entrypoints:
  server:
    routes:
      - path: /api/students
        methods: [GET]
        route_class: admin
`},
		{"lowercase method", `
version: 1
entrypoints:
  server:
    routes:
      - path: /api/students
        methods: [get]
        route_class: api
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseAllowlistYAML([]byte(tc.yaml)); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}
