package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v2"

	"github.com/AmeenMohammed/coffee-shop/internal/constants"
	"github.com/AmeenMohammed/coffee-shop/internal/util"
)

// Storage driver for the drinks repository
type Driver string

const (
	SQLiteDriver   Driver = "sqlite"
	PostgresDriver Driver = "postgres"
)

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins" env:"COFFEE_CORS_ALLOWED_ORIGINS"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

type BreakerConfig struct {
	Threshold      int `yaml:"threshold"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// AuthConfig describes the token issuer and how its signing keys are obtained.
type AuthConfig struct {
	// Auth0-style tenant domain, e.g. "fnsd.us". Used to derive Issuer when Issuer is empty.
	Domain   string `yaml:"domain" env:"COFFEE_AUTH_DOMAIN"`
	Issuer   string `yaml:"issuer" env:"COFFEE_AUTH_ISSUER"`
	Audience string `yaml:"audience" env:"COFFEE_AUTH_AUDIENCE"`

	JWKSURL   string `yaml:"jwks_url" env:"COFFEE_AUTH_JWKS_URL"`
	JWKSFile  string `yaml:"jwks_file" env:"COFFEE_AUTH_JWKS_FILE"` // offline key set, skips fetching
	Discovery bool   `yaml:"discovery" env:"COFFEE_AUTH_DISCOVERY"`

	Algorithms    []string `yaml:"algorithms" env:"COFFEE_AUTH_ALGORITHMS"`
	LeewaySeconds int      `yaml:"leeway_seconds" env:"COFFEE_AUTH_LEEWAY_SECONDS"`

	JWKSCacheTTLSeconds int `yaml:"jwks_cache_ttl_seconds"`
	JWKSMaxStaleSeconds int `yaml:"jwks_max_stale_seconds"`
	// Minimum spacing of forced refreshes; negative disables the limit.
	JWKSMinRefreshIntervalSeconds int           `yaml:"jwks_min_refresh_interval_seconds"`
	FetchTimeoutSeconds           int           `yaml:"fetch_timeout_seconds"`
	Breaker                       BreakerConfig `yaml:"breaker"`
}

type DatabaseConfig struct {
	Driver       Driver `yaml:"driver" env:"COFFEE_DATABASE_DRIVER"`
	Path         string `yaml:"path" env:"COFFEE_DATABASE_PATH"`
	DSN          string `yaml:"dsn" env:"COFFEE_DATABASE_DSN"`
	ResetOnStart bool   `yaml:"reset_on_start" env:"COFFEE_DATABASE_RESET_ON_START"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"COFFEE_LOG_LEVEL"`
	Format string `yaml:"format" env:"COFFEE_LOG_FORMAT"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" env:"COFFEE_TRACING_ENABLED"`
	Endpoint     string  `yaml:"endpoint" env:"COFFEE_TRACING_ENDPOINT"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

type Config struct {
	ListenPort     int            `yaml:"listen_port" env:"COFFEE_LISTEN_PORT"`
	TimeoutSeconds int            `yaml:"timeout_seconds"`
	Auth           AuthConfig     `yaml:"auth"`
	Database       DatabaseConfig `yaml:"database"`
	CORSConfig     CORSConfig     `yaml:"cors"`
	Logging        LoggingConfig  `yaml:"logging"`
	Tracing        TracingConfig  `yaml:"tracing"`
}

// IssuerURL returns the configured issuer, deriving "https://<domain>/" when only a domain is set.
func (a *AuthConfig) IssuerURL() string {
	if a.Issuer != "" {
		return a.Issuer
	}
	if a.Domain == "" {
		return ""
	}
	return "https://" + strings.TrimSuffix(a.Domain, "/") + "/"
}

// JWKSEndpoint returns the key set URL, defaulting to the issuer's well-known JWKS path.
func (a *AuthConfig) JWKSEndpoint() string {
	if a.JWKSURL != "" {
		return a.JWKSURL
	}
	issuer := a.IssuerURL()
	if issuer == "" {
		return ""
	}
	return strings.TrimSuffix(issuer, "/") + "/" + constants.JWKSPath
}

func (a *AuthConfig) Leeway() time.Duration {
	return time.Duration(a.LeewaySeconds) * time.Second
}

func (a *AuthConfig) CacheTTL() time.Duration {
	return time.Duration(a.JWKSCacheTTLSeconds) * time.Second
}

func (a *AuthConfig) MaxStale() time.Duration {
	return time.Duration(a.JWKSMaxStaleSeconds) * time.Second
}

// MinRefreshInterval returns zero when forced refreshes are unlimited.
func (a *AuthConfig) MinRefreshInterval() time.Duration {
	if a.JWKSMinRefreshIntervalSeconds < 0 {
		return 0
	}
	return time.Duration(a.JWKSMinRefreshIntervalSeconds) * time.Second
}

func (a *AuthConfig) FetchTimeout() time.Duration {
	return time.Duration(a.FetchTimeoutSeconds) * time.Second
}

// Validate checks the config and fills in derived defaults
func (c *Config) Validate() error {
	if c.Auth.IssuerURL() == "" {
		return fmt.Errorf("auth.domain or auth.issuer is required")
	}
	if c.Auth.Audience == "" {
		return fmt.Errorf("auth.audience is required")
	}
	if len(c.Auth.Algorithms) == 0 {
		return fmt.Errorf("auth.algorithms must not be empty")
	}
	for _, alg := range c.Auth.Algorithms {
		if !util.IsAsymmetricAlgorithm(alg) {
			return fmt.Errorf("auth.algorithms: %q is not an asymmetric signature algorithm", alg)
		}
	}
	if c.Auth.Discovery && c.Auth.JWKSFile != "" {
		return fmt.Errorf("auth.discovery and auth.jwks_file are mutually exclusive")
	}

	switch c.Database.Driver {
	case SQLiteDriver:
		if c.Database.Path == "" {
			c.Database.Path = "database.db" // Default value
		}
	case PostgresDriver:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	if len(c.CORSConfig.AllowedOrigins) == 0 {
		c.CORSConfig.AllowedOrigins = []string{"*"}
	}
	if len(c.CORSConfig.AllowedMethods) == 0 {
		c.CORSConfig.AllowedMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(c.CORSConfig.AllowedHeaders) == 0 {
		c.CORSConfig.AllowedHeaders = []string{"Authorization", "Content-Type"}
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 15 // default
	}
	if c.ListenPort == 0 {
		c.ListenPort = 5000 // default
	}
	if len(c.Auth.Algorithms) == 0 {
		c.Auth.Algorithms = []string{"RS256"}
	}
	if c.Auth.JWKSCacheTTLSeconds == 0 {
		c.Auth.JWKSCacheTTLSeconds = int(constants.DefaultJWKSCacheTTL / time.Second)
	}
	if c.Auth.JWKSMaxStaleSeconds == 0 {
		c.Auth.JWKSMaxStaleSeconds = int(constants.DefaultJWKSMaxStale / time.Second)
	}
	if c.Auth.JWKSMinRefreshIntervalSeconds == 0 {
		c.Auth.JWKSMinRefreshIntervalSeconds = int(constants.DefaultJWKSRefreshBackoff / time.Second)
	}
	if c.Auth.FetchTimeoutSeconds == 0 {
		c.Auth.FetchTimeoutSeconds = int(constants.DefaultJWKSFetchTimeout / time.Second)
	}
	if c.Auth.Breaker.Threshold == 0 {
		c.Auth.Breaker.Threshold = 5
	}
	if c.Auth.Breaker.TimeoutSeconds == 0 {
		c.Auth.Breaker.TimeoutSeconds = 30
	}
	if c.Database.Driver == "" {
		c.Database.Driver = SQLiteDriver
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "coffee-shop"
	}
}

// ApplyEnv overrides config values from COFFEE_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := envdecode.Decode(c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode environment: %w", err)
	}
	return nil
}

// LoadConfig reads a YAML config file into Config struct.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
