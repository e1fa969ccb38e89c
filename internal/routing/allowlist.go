package routing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Allowlist is the declared route surface of one server entrypoint. A path
// that is not listed still gets classified by prefix, but listing keeps the
// surface reviewable in one file and pins the class of routes whose prefix
// would misclassify them.
type Allowlist struct {
	Version     int                   `yaml:"version"`
	Entrypoints map[string]Entrypoint `yaml:"entrypoints"`
}

type Entrypoint struct {
	Routes []AllowlistRoute `yaml:"routes"`
}

type AllowlistRoute struct {
	// Path is exact or a `{param}` pattern, always rooted at /.
	Path       string   `yaml:"path"`
	Methods    []string `yaml:"methods"`
	RouteClass string   `yaml:"route_class"`
}

var allowlistRouteClasses = map[string]struct{}{
	string(RouteClassUI):     {},
	string(RouteClassAPI):    {},
	string(RouteClassAuthn):  {},
	string(RouteClassOps):    {},
	string(RouteClassStatic): {},
}

// ParseAllowlistYAML decodes and validates an allowlist. Validation is
// strict: a malformed entry fails startup rather than serving with a hole
// in the route surface.
func ParseAllowlistYAML(b []byte) (Allowlist, error) {
	var a Allowlist
	if err := yaml.Unmarshal(b, &a); err != nil {
		return Allowlist{}, fmt.Errorf("allowlist: %w", err)
	}
	if a.Version != 1 {
		return Allowlist{}, fmt.Errorf("allowlist: unsupported version %d", a.Version)
	}
	if len(a.Entrypoints) == 0 {
		return Allowlist{}, fmt.Errorf("allowlist: missing entrypoints")
	}
	for name, ep := range a.Entrypoints {
		for _, r := range ep.Routes {
			if err := r.validate(); err != nil {
				return Allowlist{}, fmt.Errorf("allowlist: entrypoint %q: %w", name, err)
			}
		}
	}
	return a, nil
}

func (r AllowlistRoute) validate() error {
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("route path %q must start with /", r.Path)
	}
	if _, ok := allowlistRouteClasses[r.RouteClass]; !ok {
		return fmt.Errorf("route %s: unknown route_class %q", r.Path, r.RouteClass)
	}
	for _, m := range r.Methods {
		if m != strings.ToUpper(strings.TrimSpace(m)) || m == "" {
			return fmt.Errorf("route %s: malformed method %q", r.Path, m)
		}
	}
	return nil
}

func LoadAllowlist(path string) (Allowlist, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Allowlist{}, err
	}
	return ParseAllowlistYAML(b)
}
