// Package config loads server configuration from the environment.
package config

import (
	"errors"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	// Env controls log verbosity. Valid values: dev, staging, prod.
	Env string `env:"ENV" env-default:"dev"`

	HTTPAddr   string `env:"HTTP_ADDR" env-default:":8080"`
	TrustProxy bool   `env:"TRUST_PROXY" env-default:"false"`

	SessionTTLHours int `env:"SESSION_TTL_HOURS" env-default:"336"`

	AllowlistPath  string `env:"ALLOWLIST_PATH"`
	AuthzModelPath string `env:"AUTHZ_MODEL_PATH"`

	// AuthBaseURL points at the hosted auth service. ServiceRoleKey is the
	// privileged credential; its absence is a runtime 500 on auth routes,
	// never a startup crash.
	AuthBaseURL        string `env:"AUTH_BASE_URL" env-default:"http://127.0.0.1:9999"`
	AuthServiceRoleKey string `env:"AUTH_SERVICE_ROLE_KEY"`
}

func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTLHours <= 0 {
		return Config{}, errors.New("config: SESSION_TTL_HOURS must be positive")
	}
	return cfg, nil
}
