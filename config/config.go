/*
Package config loads runtime settings for the back office server.

PURPOSE:
  One Config value built from environment variables, with an optional
  .env file as fallback. Real environment variables always win over the
  file. Command-line flags in cmd/server override both.

VARIABLES:
  PORT              HTTP port (default 8080)
  STORE_DRIVER      sqlite | mongodb | memory (default sqlite)
  SQLITE_PATH       SQLite file, ":memory:" allowed (default backoffice.db)
  MONGODB_URI       required when STORE_DRIVER=mongodb
  MONGODB_DATABASE  default backoffice
  MONGODB_TRANSACTIONS  true to run checkouts in multi-document transactions
  JWT_SECRET        required unless STORE_DRIVER=memory
  JWT_TTL           Go duration (default 1h)
  GEMINI_API_KEY    empty disables the narrative report
  GEMINI_MODEL      default gemini-1.5-flash
  TIMEZONE          IANA name for month boundaries (default Local)
  LOG_LEVEL         logrus level (default info)
  CORS_ORIGINS      comma separated (default *)

SEE ALSO:
  - config/logger.go: logrus setup
  - cmd/server/main.go: flag overrides
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite  = "sqlite"
	DriverMongoDB = "mongodb"
	DriverMemory  = "memory"
)

type Config struct {
	Port int

	StoreDriver       string
	SQLitePath        string
	MongoURI          string
	MongoDatabase     string
	MongoTransactions bool

	JWTSecret string
	JWTTTL    time.Duration

	GeminiAPIKey string
	GeminiModel  string

	Timezone string
	Location *time.Location

	LogLevel    string
	CORSOrigins []string
}

// Load reads the environment, falling back to the given .env files.
// Missing files are skipped.
func Load(files ...string) (*Config, error) {
	fileValues := map[string]string{}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		values, err := godotenv.Read(f)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", f, err)
		}
		for k, v := range values {
			if _, seen := fileValues[k]; !seen {
				fileValues[k] = v
			}
		}
	}

	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := fileValues[key]
		return v, ok
	})
}

// FromLookup builds a Config from an arbitrary key lookup.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	var errs []error

	port, err := strconv.Atoi(get("PORT", "8080"))
	if err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT: invalid port %q", get("PORT", "")))
	}

	ttl, err := time.ParseDuration(get("JWT_TTL", "1h"))
	if err != nil || ttl <= 0 {
		errs = append(errs, fmt.Errorf("JWT_TTL: invalid duration %q", get("JWT_TTL", "")))
	}

	tx, err := strconv.ParseBool(get("MONGODB_TRANSACTIONS", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("MONGODB_TRANSACTIONS: %w", err))
	}

	cfg := &Config{
		Port:              port,
		StoreDriver:       strings.ToLower(get("STORE_DRIVER", DriverSQLite)),
		SQLitePath:        get("SQLITE_PATH", "backoffice.db"),
		MongoURI:          get("MONGODB_URI", ""),
		MongoDatabase:     get("MONGODB_DATABASE", "backoffice"),
		MongoTransactions: tx,
		JWTSecret:         get("JWT_SECRET", ""),
		JWTTTL:            ttl,
		GeminiAPIKey:      get("GEMINI_API_KEY", ""),
		GeminiModel:       get("GEMINI_MODEL", "gemini-1.5-flash"),
		Timezone:          get("TIMEZONE", ""),
		LogLevel:          get("LOG_LEVEL", "info"),
		CORSOrigins:       splitList(get("CORS_ORIGINS", "*")),
	}

	cfg.Location = time.Local
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
		} else {
			cfg.Location = loc
		}
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	switch c.StoreDriver {
	case DriverSQLite, DriverMemory:
	case DriverMongoDB:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI: required for the mongodb driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER: unknown driver %q", c.StoreDriver))
	}
	if c.JWTSecret == "" && c.StoreDriver != DriverMemory {
		errs = append(errs, errors.New("JWT_SECRET: required"))
	}
	return errs
}

// ReportsEnabled reports whether a narrative generator can be built.
func (c *Config) ReportsEnabled() bool {
	return c.GeminiAPIKey != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
