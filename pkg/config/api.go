package config

import (
	"fmt"
	"time"
)

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server   APIServerConfig   `yaml:"server" mapstructure:"server"`
	Auth     APIAuthConfig     `yaml:"auth,omitempty" mapstructure:"auth"`
	Database APIDatabaseConfig `yaml:"database" mapstructure:"database"`
	Indexing APIIndexingConfig `yaml:"indexing,omitempty" mapstructure:"indexing"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings.
type APIAuthConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	Users   []BasicAuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// BasicAuthUser defines a basic auth user from config.
type BasicAuthUser struct {
	Username string `yaml:"username" mapstructure:"username"`
	// PasswordHash is a bcrypt hash of the user's password.
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash"`
}

// APIDatabaseConfig contains index database connection settings.
type APIDatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// APIIndexingConfig configures the background indexing service that scans
// results directories and maintains a queryable index in a database.
type APIIndexingConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Interval       string   `yaml:"interval,omitempty" mapstructure:"interval"`
	Concurrency    int      `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
	DiscoveryPaths []string `yaml:"discovery_paths,omitempty" mapstructure:"discovery_paths"`
}

// ScanInterval returns the parsed rescan interval.
func (a APIIndexingConfig) ScanInterval() time.Duration {
	if d, err := time.ParseDuration(a.Interval); err == nil && d > 0 {
		return d
	}

	d, _ := time.ParseDuration(DefaultIndexInterval)

	return d
}

// validDrivers is the list of supported index database drivers.
var validDrivers = map[string]struct{}{
	"sqlite":   {},
	"postgres": {},
}

// ValidateAPI checks the API configuration for errors. Only called by
// commands that start the API server.
func (c *Config) ValidateAPI() error {
	api := &c.API

	if api.Server.Listen == "" {
		return fmt.Errorf("api.server.listen is required")
	}

	if _, ok := validDrivers[api.Database.Driver]; !ok {
		return fmt.Errorf("unknown database driver %q", api.Database.Driver)
	}

	if api.Database.Driver == "postgres" {
		pg := api.Database.Postgres
		if pg.Host == "" || pg.User == "" || pg.Database == "" {
			return fmt.Errorf("postgres driver requires host, user and database")
		}
	}

	if api.Server.RateLimit.Enabled && api.Server.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive")
	}

	if api.Auth.Enabled {
		if len(api.Auth.Users) == 0 {
			return fmt.Errorf("auth is enabled but no users are configured")
		}

		seen := make(map[string]struct{}, len(api.Auth.Users))

		for i, user := range api.Auth.Users {
			if user.Username == "" {
				return fmt.Errorf("auth user %d: username is required", i)
			}

			if _, exists := seen[user.Username]; exists {
				return fmt.Errorf("auth user %d: duplicate username %q", i, user.Username)
			}

			seen[user.Username] = struct{}{}

			if user.PasswordHash == "" {
				return fmt.Errorf("auth user %q: password_hash is required", user.Username)
			}
		}
	}

	if api.Indexing.Enabled {
		if api.Indexing.Interval != "" {
			if _, err := time.ParseDuration(api.Indexing.Interval); err != nil {
				return fmt.Errorf("indexing.interval: %w", err)
			}
		}

		if api.Indexing.Concurrency <= 0 {
			return fmt.Errorf("indexing.concurrency must be positive")
		}
	}

	return nil
}
