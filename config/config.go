/*
Package config loads server and reviewer settings.

SOURCES (later wins):
  1. Defaults()
  2. YAML file (configs/approvals.yaml, or -config)
  3. Environment:
       APPROVALS_JWT_SECRET  auth.jwt_secret
       DATABASE_URL          database.url (and driver postgres if unset)
       APPROVALS_DB          database.driver
       LOG_LEVEL, LOG_FILE   log.level, log.file
       APPROVALS_API_URL     client.base_url
       APPROVALS_TOKEN       client.token
  4. Command-line flags, applied by the binaries themselves
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/approval-engine/logging"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      logging.Config `yaml:"log"`
	Client   ClientConfig   `yaml:"client"`

	// Chains is the path of the approval chain file. Empty means the
	// built-in full chain for every kind.
	Chains string `yaml:"chains"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	// Scenarios enables the demo scenario endpoints.
	Scenarios bool `yaml:"scenarios"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"` // sqlite file, or ":memory:"
	URL    string `yaml:"url"`  // postgres DSN
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// ClientConfig is read by the reviewer CLI.
type ClientConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
	PageSize  int           `yaml:"page_size"`
	Endpoints string        `yaml:"endpoints"` // optional endpoint template file
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			Scenarios:       true,
		},
		Database: DatabaseConfig{Driver: DriverSQLite, Path: "approvals.db"},
		Auth:     AuthConfig{JWTSecret: "dev-secret-change-me", TokenTTL: 12 * time.Hour},
		Log:      logging.Config{Level: "info", Format: "json"},
		Client: ClientConfig{
			BaseURL:  "http://localhost:8080",
			Timeout:  10 * time.Second,
			PageSize: 10,
		},
	}
}

// Load returns defaults overlaid with the file at path (if any) and the
// environment. A missing file is not an error when path is empty.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("APPROVALS_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := getenv("APPROVALS_DB"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
		if getenv("APPROVALS_DB") == "" {
			c.Database.Driver = DriverPostgres
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := getenv("APPROVALS_API_URL"); v != "" {
		c.Client.BaseURL = v
	}
	if v := getenv("APPROVALS_TOKEN"); v != "" {
		c.Client.Token = v
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Client.PageSize < 1 {
		errs = append(errs, errors.New("client.page_size must be positive"))
	}
	return errors.Join(errs...)
}
