package config

import (
	"strings"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":                           "postgres://localhost/tessera",
		"ADMIN_JWT_SECRET":                       "admin-secret",
		"USER_JWT_SECRET":                        "user-secret",
		"ADMIN_ACCESS_TOKEN_DURATION_IN_MINUTES": "15",
		"USER_ACCESS_TOKEN_DURATION_IN_MINUTES":  "60",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(baseEnv())
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.HTTPAddr != ":3000" || cfg.TokenClockSkew != 0 || cfg.AllowAdminRegistration {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected cors default %v", cfg.CORSAllowedOrigins)
	}
	tc := cfg.TokenConfig()
	if tc.Admin.TTL != 15*time.Minute || tc.User.TTL != time.Hour {
		t.Fatalf("unexpected ttls %+v", tc)
	}
	if string(tc.Admin.Secret) != "admin-secret" {
		t.Fatalf("unexpected admin secret")
	}
}

func TestLoadRequiresCoreVariables(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL",
		"ADMIN_JWT_SECRET",
		"USER_JWT_SECRET",
		"ADMIN_ACCESS_TOKEN_DURATION_IN_MINUTES",
		"USER_ACCESS_TOKEN_DURATION_IN_MINUTES",
	} {
		t.Run("missing "+key, func(t *testing.T) {
			environ := baseEnv()
			delete(environ, key)
			if _, err := LoadFrom(environ); err == nil || !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error naming %s, got %v", key, err)
			}
		})
		t.Run("empty "+key, func(t *testing.T) {
			environ := baseEnv()
			environ[key] = ""
			if _, err := LoadFrom(environ); err == nil {
				t.Fatalf("expected error for empty %s", key)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]map[string]string{
		"shared secret":   {"USER_JWT_SECRET": "admin-secret"},
		"zero ttl":        {"ADMIN_ACCESS_TOKEN_DURATION_IN_MINUTES": "0"},
		"negative ttl":    {"USER_ACCESS_TOKEN_DURATION_IN_MINUTES": "-5"},
		"negative skew":   {"TOKEN_CLOCK_SKEW": "-1s"},
		"bad algorithm":   {"PASSWORD_ALGORITHM": "md5"},
		"bad log level":   {"LOG_LEVEL": "loud"},
		"no db conns":     {"DB_MAX_OPEN_CONNS": "0"},
		"non-numeric ttl": {"USER_ACCESS_TOKEN_DURATION_IN_MINUTES": "sixty"},
		"zero body limit": {"MAX_BODY_BYTES": "0"},
	}
	for name, override := range cases {
		t.Run(name, func(t *testing.T) {
			environ := baseEnv()
			for k, v := range override {
				environ[k] = v
			}
			if _, err := LoadFrom(environ); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestOptionalOverrides(t *testing.T) {
	environ := baseEnv()
	environ["TOKEN_CLOCK_SKEW"] = "30s"
	environ["ALLOW_ADMIN_REGISTRATION"] = "true"
	environ["CORS_ALLOWED_ORIGINS"] = "https://a.example.com,https://b.example.com"
	environ["LOG_LEVEL"] = "debug"
	environ["PASSWORD_ALGORITHM"] = "bcrypt"

	cfg, err := LoadFrom(environ)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.TokenClockSkew != 30*time.Second || !cfg.AllowAdminRegistration {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.SlogLevel().String() != "DEBUG" {
		t.Fatalf("unexpected level %s", cfg.SlogLevel())
	}
}
