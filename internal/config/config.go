// Package config reads process configuration from the environment once at
// startup. The resulting Config is a value and is never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"tessera.id/internal/auth"
)

// Config is the full process configuration.
type Config struct {
	DatabaseURL       string `env:"DATABASE_URL,required,notEmpty"`
	AdminJWTSecret    string `env:"ADMIN_JWT_SECRET,required,notEmpty"`
	UserJWTSecret     string `env:"USER_JWT_SECRET,required,notEmpty"`
	AdminTokenMinutes int    `env:"ADMIN_ACCESS_TOKEN_DURATION_IN_MINUTES,required,notEmpty"`
	UserTokenMinutes  int    `env:"USER_ACCESS_TOKEN_DURATION_IN_MINUTES,required,notEmpty"`

	HTTPAddr               string        `env:"TESSERA_HTTP_ADDR"        envDefault:":3000"`
	GRPCAddr               string        `env:"TESSERA_GRPC_ADDR"`
	TokenClockSkew         time.Duration `env:"TOKEN_CLOCK_SKEW"         envDefault:"0s"`
	AllowAdminRegistration bool          `env:"ALLOW_ADMIN_REGISTRATION" envDefault:"false"`
	PasswordAlgorithm      string        `env:"PASSWORD_ALGORITHM"       envDefault:"argon2id"`
	RateLimitEnabled       bool          `env:"RATE_LIMIT_ENABLED"       envDefault:"true"`
	CORSAllowedOrigins     []string      `env:"CORS_ALLOWED_ORIGINS"     envDefault:"*" envSeparator:","`
	LogLevel               string        `env:"LOG_LEVEL"                envDefault:"info"`
	DBMaxOpenConns         int           `env:"DB_MAX_OPEN_CONNS"        envDefault:"20"`
	DBConnMaxLifetime      time.Duration `env:"DB_CONN_MAX_LIFETIME"     envDefault:"30m"`
	MigrateOnStart         bool          `env:"MIGRATE_ON_START"         envDefault:"false"`
	MaxBodyBytes           int64         `env:"MAX_BODY_BYTES"           envDefault:"1048576"`
}

// Load parses and validates the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses and validates an explicit environment, ignoring the process one.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks constraints the struct tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.AdminTokenMinutes <= 0 {
		errs = append(errs, errors.New("ADMIN_ACCESS_TOKEN_DURATION_IN_MINUTES must be positive"))
	}
	if c.UserTokenMinutes <= 0 {
		errs = append(errs, errors.New("USER_ACCESS_TOKEN_DURATION_IN_MINUTES must be positive"))
	}
	if c.AdminJWTSecret != "" && c.AdminJWTSecret == c.UserJWTSecret {
		errs = append(errs, errors.New("ADMIN_JWT_SECRET and USER_JWT_SECRET must differ"))
	}
	if c.TokenClockSkew < 0 {
		errs = append(errs, errors.New("TOKEN_CLOCK_SKEW must not be negative"))
	}
	switch strings.ToLower(c.PasswordAlgorithm) {
	case auth.AlgorithmArgon2id, auth.AlgorithmBcrypt:
	default:
		errs = append(errs, fmt.Errorf("PASSWORD_ALGORITHM %q is not supported", c.PasswordAlgorithm))
	}
	if c.DBMaxOpenConns <= 0 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TokenConfig maps the secrets and lifetimes onto the token service.
func (c Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Admin: auth.KindConfig{
			Secret: []byte(c.AdminJWTSecret),
			TTL:    time.Duration(c.AdminTokenMinutes) * time.Minute,
		},
		User: auth.KindConfig{
			Secret: []byte(c.UserJWTSecret),
			TTL:    time.Duration(c.UserTokenMinutes) * time.Minute,
		},
	}
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not a valid level", s)
	}
	return lvl, nil
}
