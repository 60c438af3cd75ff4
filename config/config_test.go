package config_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/backoffice/config"
)

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := config.FromLookup(lookupFrom(map[string]string{"JWT_SECRET": "s"}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, config.DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "backoffice.db", cfg.SQLitePath)
	assert.Equal(t, time.Hour, cfg.JWTTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, time.Local, cfg.Location)
	assert.False(t, cfg.ReportsEnabled())
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := config.FromLookup(lookupFrom(map[string]string{
		"PORT":                 "3000",
		"STORE_DRIVER":         "MongoDB",
		"MONGODB_URI":          "mongodb://localhost:27017",
		"MONGODB_TRANSACTIONS": "true",
		"JWT_SECRET":           "s",
		"JWT_TTL":              "15m",
		"GEMINI_API_KEY":       "k",
		"TIMEZONE":             "UTC",
		"CORS_ORIGINS":         "http://a.test, http://b.test,",
	}))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, config.DriverMongoDB, cfg.StoreDriver)
	assert.True(t, cfg.MongoTransactions)
	assert.Equal(t, 15*time.Minute, cfg.JWTTTL)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.True(t, cfg.ReportsEnabled())
}

func TestFromLookup_CollectsAllErrors(t *testing.T) {
	_, err := config.FromLookup(lookupFrom(map[string]string{
		"PORT":         "http",
		"STORE_DRIVER": "mongodb",
		"JWT_TTL":      "soon",
	}))
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "PORT")
	assert.Contains(t, msg, "JWT_TTL")
	assert.Contains(t, msg, "MONGODB_URI")
	assert.Contains(t, msg, "JWT_SECRET")
}

func TestFromLookup_MemoryDriverNeedsNoSecret(t *testing.T) {
	_, err := config.FromLookup(lookupFrom(map[string]string{"STORE_DRIVER": "memory"}))
	assert.NoError(t, err)
}

func TestLoad_EnvironmentWinsOverFile(t *testing.T) {
	// GIVEN: A .env file with PORT and JWT_SECRET, and PORT in the environment
	// WHEN: Loading
	// THEN: Environment PORT wins, secret comes from the file

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=9090\nJWT_SECRET=from-file\nSTORE_DRIVER=sqlite\n"), 0o600))
	t.Setenv("PORT", "7070")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_DRIVER", "")

	cfg, err := config.Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
	// empty environment values fall through to the file
	assert.Equal(t, "from-file", cfg.JWTSecret)
}

func TestLogError_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := config.NewLogger("debug", &buf)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	config.LogError(logger, "api", "createSale", "checkout", map[string]int{"lines": 2}, errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry["msg"])
	assert.Equal(t, "api", entry["module"])
	assert.Equal(t, "createSale", entry["funcName"])
	assert.NotNil(t, entry["data"])
}

func TestNewLogger_UnknownLevel(t *testing.T) {
	logger := config.NewLogger("loud", nil)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
