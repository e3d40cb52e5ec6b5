// Package common provides shared utilities for GeoScout
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the GeoScout API server.
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Auth        AuthConfig    `toml:"auth"`
	Limits      LimitsConfig  `toml:"limits"`
	Graph       GraphConfig   `toml:"graph"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig selects the record-store backend and local paths.
type StorageConfig struct {
	Backend  string     `toml:"backend"` // "local" (default) or "graph"
	Identity AreaConfig `toml:"identity"`
	Cache    AreaConfig `toml:"cache"`
}

// AreaConfig holds path configuration for a local storage area.
type AreaConfig struct {
	Path string `toml:"path"`
}

// AuthConfig holds token issuance configuration.
//
// Domain drives the claim set: tokens are issued by "api.<domain>" for the
// audiences "www.<domain>" (app), "qr.<domain>" and "backup.<domain>"
// (exchange tokens).
type AuthConfig struct {
	JWTSecret      string `toml:"jwt_secret"`
	Domain         string `toml:"domain"`
	AdminPIN       string `toml:"admin_pin"`        // empty disables the admin endpoints
	AppTokenAge    string `toml:"app_token_age"`    // duration string, default 3 years
	QRTokenAge     string `toml:"qr_token_age"`     // default "1h"
	BackupTokenAge string `toml:"backup_token_age"` // default 5 years
	PairingTTL     string `toml:"pairing_ttl"`      // default "10m"
}

// GetAppTokenAge parses and returns the app bearer token lifetime.
func (c *AuthConfig) GetAppTokenAge() time.Duration {
	d, err := time.ParseDuration(c.AppTokenAge)
	if err != nil {
		return 3 * 365 * 24 * time.Hour
	}
	return d
}

// GetQRTokenAge parses and returns the QR hand-off token lifetime.
func (c *AuthConfig) GetQRTokenAge() time.Duration {
	d, err := time.ParseDuration(c.QRTokenAge)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetBackupTokenAge parses and returns the backup-file token lifetime.
func (c *AuthConfig) GetBackupTokenAge() time.Duration {
	d, err := time.ParseDuration(c.BackupTokenAge)
	if err != nil {
		return 5 * 365 * 24 * time.Hour
	}
	return d
}

// GetPairingTTL parses and returns the pairing-entry lifetime.
func (c *AuthConfig) GetPairingTTL() time.Duration {
	d, err := time.ParseDuration(c.PairingTTL)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// LimitsConfig holds rate-limit windows and attempt counts per endpoint group.
type LimitsConfig struct {
	Interval         string `toml:"interval"`          // window length, default "1m"
	BeginAttempts    int    `toml:"begin_attempts"`    // per IP+uuid, default 5
	CompleteAttempts int    `toml:"complete_attempts"` // per IP+uuid, default 1
	IssueAttempts    int    `toml:"issue_attempts"`    // per IP+uuid, default 5
	ExchangeAttempts int    `toml:"exchange_attempts"` // per IP, default 5
	AdminAttempts    int    `toml:"admin_attempts"`    // per IP, default 10
}

// GetInterval parses and returns the rate-limit window.
func (c *LimitsConfig) GetInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return time.Minute
	}
	return d
}

// GraphConfig holds Microsoft Graph credentials for the SharePoint-backed
// record store. Only used when storage.backend = "graph".
type GraphConfig struct {
	TenantID       string `toml:"tenant_id"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	SiteID         string `toml:"site_id"`
	IdentityListID string `toml:"identity_list_id"`
	CacheListID    string `toml:"cache_list_id"`
	RateLimit      int    `toml:"rate_limit"`
	Timeout        string `toml:"timeout"`
}

// GetTimeout parses and returns the HTTP timeout duration
func (c *GraphConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend:  "local",
			Identity: AreaConfig{Path: "data/identity"},
			Cache:    AreaConfig{Path: "data/cache"},
		},
		Auth: AuthConfig{
			JWTSecret:      "dev-jwt-secret-change-in-production",
			Domain:         "geoscout.uk",
			AppTokenAge:    "26280h", // 3 years
			QRTokenAge:     "1h",
			BackupTokenAge: "43800h", // 5 years
			PairingTTL:     "10m",
		},
		Limits: LimitsConfig{
			Interval:         "1m",
			BeginAttempts:    5,
			CompleteAttempts: 1,
			IssueAttempts:    5,
			ExchangeAttempts: 5,
			AdminAttempts:    10,
		},
		Graph: GraphConfig{
			RateLimit: 5,
			Timeout:   "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if config.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret must not be empty")
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("GEOSCOUT_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("GEOSCOUT_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("GEOSCOUT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("GEOSCOUT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if backend := os.Getenv("GEOSCOUT_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = backend
	}

	// Auth overrides
	if v := os.Getenv("GEOSCOUT_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("GEOSCOUT_DOMAIN"); v != "" {
		config.Auth.Domain = v
	}
	if v := os.Getenv("GEOSCOUT_ADMIN_PIN"); v != "" {
		config.Auth.AdminPIN = v
	}

	// Graph overrides
	if v := os.Getenv("GEOSCOUT_GRAPH_TENANT_ID"); v != "" {
		config.Graph.TenantID = v
	}
	if v := os.Getenv("GEOSCOUT_GRAPH_CLIENT_ID"); v != "" {
		config.Graph.ClientID = v
	}
	if v := os.Getenv("GEOSCOUT_GRAPH_CLIENT_SECRET"); v != "" {
		config.Graph.ClientSecret = v
	}
	if v := os.Getenv("GEOSCOUT_GRAPH_SITE_ID"); v != "" {
		config.Graph.SiteID = v
	}
	if v := os.Getenv("GEOSCOUT_GRAPH_IDENTITY_LIST_ID"); v != "" {
		config.Graph.IdentityListID = v
	}
	if v := os.Getenv("GEOSCOUT_GRAPH_CACHE_LIST_ID"); v != "" {
		config.Graph.CacheListID = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
