package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test_config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0644))
	return configPath
}

func TestLoadConfig(t *testing.T) {
	configPath := writeConfig(t, `
listen_port: 8080
auth:
  domain: "fnsd.us"
  audience: "Coffee"
database:
  driver: "sqlite"
  path: "/tmp/drinks.db"
cors:
  allowed_origins:
    - "http://localhost:8100"
  allow_credentials: true
`)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ListenPort)
	assert.Equal(t, "https://fnsd.us/", cfg.Auth.IssuerURL())
	assert.Equal(t, "https://fnsd.us/.well-known/jwks.json", cfg.Auth.JWKSEndpoint())
	assert.Equal(t, "Coffee", cfg.Auth.Audience)
	assert.Equal(t, "/tmp/drinks.db", cfg.Database.Path)
	assert.Equal(t, []string{"http://localhost:8100"}, cfg.CORSConfig.AllowedOrigins)

	// Test default values
	assert.Equal(t, 15, cfg.TimeoutSeconds)
	assert.Equal(t, []string{"RS256"}, cfg.Auth.Algorithms)
	assert.Equal(t, 600, cfg.Auth.JWKSCacheTTLSeconds)
	assert.Equal(t, 900, cfg.Auth.JWKSMaxStaleSeconds)
	assert.Equal(t, 5, cfg.Auth.FetchTimeoutSeconds)
	assert.Equal(t, 5, cfg.Auth.Breaker.Threshold)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, []string{"Authorization", "Content-Type"}, cfg.CORSConfig.AllowedHeaders)
}

func TestLoadConfigDefaultsPort(t *testing.T) {
	configPath := writeConfig(t, `
auth:
  issuer: "https://issuer.example.com/"
  audience: "Coffee"
`)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.ListenPort)
	assert.Equal(t, SQLiteDriver, cfg.Database.Driver)
	assert.Equal(t, "database.db", cfg.Database.Path)
	assert.Equal(t, []string{"*"}, cfg.CORSConfig.AllowedOrigins)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
auth:
  domain: "fnsd.us"
  audience: "Coffee"
`)
	t.Setenv("COFFEE_AUTH_AUDIENCE", "Tea")
	t.Setenv("COFFEE_LISTEN_PORT", "9090")
	t.Setenv("COFFEE_AUTH_JWKS_URL", "https://keys.example.com/jwks")

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "Tea", cfg.Auth.Audience)
	assert.Equal(t, 9090, cfg.ListenPort)
	assert.Equal(t, "https://keys.example.com/jwks", cfg.Auth.JWKSEndpoint())
	assert.Equal(t, "fnsd.us", cfg.Auth.Domain)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Auth: AuthConfig{
				Domain:     "fnsd.us",
				Audience:   "Coffee",
				Algorithms: []string{"RS256"},
			},
			Database: DatabaseConfig{Driver: SQLiteDriver},
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "Valid sqlite config",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name: "Valid postgres config",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: PostgresDriver, DSN: "postgres://localhost/coffee"}
			},
			expectError: false,
		},
		{
			name:        "Missing issuer",
			mutate:      func(c *Config) { c.Auth.Domain = "" },
			expectError: true,
		},
		{
			name:        "Missing audience",
			mutate:      func(c *Config) { c.Auth.Audience = "" },
			expectError: true,
		},
		{
			name:        "Symmetric algorithm rejected",
			mutate:      func(c *Config) { c.Auth.Algorithms = []string{"RS256", "HS256"} },
			expectError: true,
		},
		{
			name:        "None algorithm rejected",
			mutate:      func(c *Config) { c.Auth.Algorithms = []string{"none"} },
			expectError: true,
		},
		{
			name: "Discovery with static key file",
			mutate: func(c *Config) {
				c.Auth.Discovery = true
				c.Auth.JWKSFile = "keys.json"
			},
			expectError: true,
		},
		{
			name:        "Postgres without dsn",
			mutate:      func(c *Config) { c.Database = DatabaseConfig{Driver: PostgresDriver} },
			expectError: true,
		},
		{
			name:        "Unknown driver",
			mutate:      func(c *Config) { c.Database.Driver = "mysql" },
			expectError: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuthDurations(t *testing.T) {
	a := AuthConfig{
		LeewaySeconds:                 30,
		JWKSCacheTTLSeconds:           60,
		JWKSMinRefreshIntervalSeconds: -1,
		FetchTimeoutSeconds:           2,
	}
	assert.Equal(t, "30s", a.Leeway().String())
	assert.Equal(t, "1m0s", a.CacheTTL().String())
	assert.Zero(t, a.MinRefreshInterval())
	assert.Equal(t, "2s", a.FetchTimeout().String())
}
