// Package config reads server settings from the environment.
//
// A .env file in the working directory is loaded first when present; real
// environment variables always win over it (godotenv never overwrites).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds every server setting. Zero values are never used directly;
// Load fills in defaults.
type Config struct {
	Port           int
	Env            string
	DatabaseURL    string
	DBMaxConns     int
	JWTSecret      string
	TokenTTL       time.Duration
	CORSOrigin     string
	RequestTimeout time.Duration
	RedisAddr      string
	AuthRateLimit  int
	LogLevel       slog.Level
}

// IsProduction reports whether internal error details must be hidden.
func (c Config) IsProduction() bool { return c.Env == EnvProduction }

// UsesPostgres reports whether DatabaseURL points at PostgreSQL rather than
// a SQLite file.
func (c Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// Load reads .env (if any) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source, which keeps
// tests independent of the process environment.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}

	cfg := Config{
		Port:           r.integer("PORT", 8080),
		Env:            r.str("APP_ENV", EnvDevelopment),
		DatabaseURL:    r.str("DATABASE_URL", "data/tasks.db"),
		DBMaxConns:     r.integer("DB_MAX_CONNS", 10),
		JWTSecret:      r.str("JWT_SECRET", ""),
		TokenTTL:       r.dur("TOKEN_TTL", 7*24*time.Hour),
		CORSOrigin:     r.str("CORS_ORIGIN", "http://localhost:3000"),
		RequestTimeout: r.dur("REQUEST_TIMEOUT", 15*time.Second),
		RedisAddr:      r.str("REDIS_ADDR", ""),
		AuthRateLimit:  r.integer("AUTH_RATE_LIMIT", 10),
		LogLevel:       r.lvl("LOG_LEVEL", slog.LevelInfo),
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", c.Port))
	}
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		errs = append(errs, fmt.Errorf("config: APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("config: JWT_SECRET is required (generate one with: openssl rand -hex 32)"))
	} else if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("config: JWT_SECRET must be at least 16 characters"))
	}
	if c.DBMaxConns < 1 {
		errs = append(errs, errors.New("config: DB_MAX_CONNS must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("config: TOKEN_TTL must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("config: REQUEST_TIMEOUT must be positive"))
	}
	if c.AuthRateLimit < 1 {
		errs = append(errs, errors.New("config: AUTH_RATE_LIMIT must be positive"))
	}
	return errors.Join(errs...)
}

// reader collects parse errors so one bad variable doesn't hide the next.
type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (r *reader) dur(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) lvl(key string, def slog.Level) slog.Level {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return lvl
}
