package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("APPROVALS_DB", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Client.PageSize)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("APPROVALS_DB", "")
	path := filepath.Join(t.TempDir(), "approvals.yaml")
	doc := `
server:
  port: 9090
  shutdown_timeout: 5s
database:
  driver: memory
auth:
  jwt_secret: s3cret
  token_ttl: 1h30m
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "untouched defaults survive")
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 90*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"APPROVALS_JWT_SECRET": "from-env",
		"DATABASE_URL":         "postgres://u:p@localhost/approvals",
		"LOG_LEVEL":            "warn",
		"APPROVALS_TOKEN":      "tok",
	}
	cfg := Defaults()
	cfg.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://u:p@localhost/approvals", cfg.Database.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "tok", cfg.Client.Token)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0
	cfg.Database.Driver = "mongo"
	cfg.Auth.JWTSecret = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "mongo")
	assert.Contains(t, err.Error(), "jwt_secret")

	cfg = Defaults()
	cfg.Database = DatabaseConfig{Driver: DriverPostgres}
	assert.Error(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
