package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gatehouse.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Directory DirectoryConfig `yaml:"directory"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
	Events    EventsConfig    `yaml:"events"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// AuthConfig contains authentication strategy and token settings.
type AuthConfig struct {
	// Strategy selects the credential resolution order:
	// local_only, directory_only, local_first, directory_first.
	Strategy string `yaml:"strategy"`

	// RootKey is the root signing key. Token signing secrets are derived
	// from it, so rotating the root key rotates every derived secret.
	RootKey string `yaml:"root_key"`

	// TokenTTLHours is the session token lifetime. Default 168 (7 days).
	TokenTTLHours int `yaml:"token_ttl_hours"`

	// VersionCacheTTL is how long cached token versions stay fresh, in
	// seconds. Bounds revocation latency for passive callers. Default 60.
	VersionCacheTTL int `yaml:"version_cache_ttl"`

	Argon2 Argon2Config `yaml:"argon2"`
}

// Argon2Config contains password hashing cost parameters.
type Argon2Config struct {
	Time      int `yaml:"time"`
	MemoryKiB int `yaml:"memory_kib"`
	Threads   int `yaml:"threads"`
}

// DirectoryConfig contains the external directory (LDAP) settings.
type DirectoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`

	// BindDN and BindPassword are optional service-account credentials.
	// When empty, the initial search runs as an anonymous bind.
	BindDN       string `yaml:"bind_dn"`
	BindPassword string `yaml:"bind_password"`

	// SearchBase and SearchFilter locate the user entry. The filter must
	// contain a ${username} placeholder.
	SearchBase   string `yaml:"search_base"`
	SearchFilter string `yaml:"search_filter"`

	// GroupSearchBase and GroupSearchFilter locate group memberships.
	// The filter substitutes the resolved user DN via ${userDN}.
	// Both empty disables group lookup.
	GroupSearchBase   string `yaml:"group_search_base"`
	GroupSearchFilter string `yaml:"group_search_filter"`

	// GroupRoles maps directory groups to roles, first match wins.
	GroupRoles []GroupRoleMapping `yaml:"group_roles"`

	// ConnectTimeoutSeconds and OperationTimeoutSeconds guard every
	// network step. Defaults: 5 connect, 10 operation.
	ConnectTimeoutSeconds   int `yaml:"connect_timeout"`
	OperationTimeoutSeconds int `yaml:"operation_timeout"`
}

// GroupRoleMapping pairs a directory group DN with the role it grants.
type GroupRoleMapping struct {
	Group string `yaml:"group"`
	Role  string `yaml:"role"`
}

// ConnectTimeout returns the directory connect timeout as a Duration.
func (d DirectoryConfig) ConnectTimeout() time.Duration {
	return time.Duration(d.ConnectTimeoutSeconds) * time.Second
}

// OperationTimeout returns the directory operation timeout as a Duration.
func (d DirectoryConfig) OperationTimeout() time.Duration {
	return time.Duration(d.OperationTimeoutSeconds) * time.Second
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// EventsConfig contains MQTT event bus settings for audit fan-out.
type EventsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         int    `yaml:"qos"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// MetricsConfig contains InfluxDB settings for authentication activity metrics.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Valid auth.strategy values.
const (
	StrategyLocalOnly      = "local_only"
	StrategyDirectoryOnly  = "directory_only"
	StrategyLocalFirst     = "local_first"
	StrategyDirectoryFirst = "directory_first"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GATEHOUSE_SECTION_KEY
// For example: GATEHOUSE_DATABASE_PATH, GATEHOUSE_AUTH_ROOT_KEY
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/gatehouse.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Auth: AuthConfig{
			Strategy:        StrategyLocalOnly,
			TokenTTLHours:   168,
			VersionCacheTTL: 60,
			Argon2: Argon2Config{
				Time:      3,
				MemoryKiB: 64 * 1024,
				Threads:   1,
			},
		},
		Directory: DirectoryConfig{
			SearchFilter:            "(uid=${username})",
			ConnectTimeoutSeconds:   5,
			OperationTimeoutSeconds: 10,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Events: EventsConfig{
			Host:        "localhost",
			Port:        1883,
			ClientID:    "gatehouse-core",
			QoS:         1,
			TopicPrefix: "gatehouse",
		},
		Metrics: MetricsConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Secrets in particular should come from the environment, not the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GATEHOUSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GATEHOUSE_AUTH_STRATEGY"); v != "" {
		cfg.Auth.Strategy = v
	}
	if v := os.Getenv("GATEHOUSE_AUTH_ROOT_KEY"); v != "" {
		cfg.Auth.RootKey = v
	}
	if v := os.Getenv("GATEHOUSE_DIRECTORY_URL"); v != "" {
		cfg.Directory.URL = v
	}
	if v := os.Getenv("GATEHOUSE_DIRECTORY_BIND_PASSWORD"); v != "" {
		cfg.Directory.BindPassword = v
	}
	if v := os.Getenv("GATEHOUSE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GATEHOUSE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("GATEHOUSE_EVENTS_PASSWORD"); v != "" {
		cfg.Events.Password = v
	}
	if v := os.Getenv("GATEHOUSE_METRICS_TOKEN"); v != "" {
		cfg.Metrics.Token = v
	}
}

// validStrategies is the set of accepted auth.strategy values.
var validStrategies = map[string]bool{
	StrategyLocalOnly:      true,
	StrategyDirectoryOnly:  true,
	StrategyLocalFirst:     true,
	StrategyDirectoryFirst: true,
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if !validStrategies[c.Auth.Strategy] {
		errs = append(errs, fmt.Sprintf("auth.strategy %q is not one of local_only, directory_only, local_first, directory_first", c.Auth.Strategy))
	}

	// Weak root keys would let attackers forge session tokens, so the
	// minimum length is enforced rather than recommended.
	const minRootKeyLength = 32
	if c.Auth.RootKey == "" {
		errs = append(errs, "auth.root_key is required (set GATEHOUSE_AUTH_ROOT_KEY environment variable)")
	} else if len(c.Auth.RootKey) < minRootKeyLength {
		errs = append(errs, "auth.root_key must be at least 32 characters")
	}

	if c.Auth.TokenTTLHours <= 0 {
		errs = append(errs, "auth.token_ttl_hours must be positive")
	}
	if c.Auth.VersionCacheTTL <= 0 {
		errs = append(errs, "auth.version_cache_ttl must be positive")
	}

	if c.Directory.Enabled {
		if c.Directory.URL == "" {
			errs = append(errs, "directory.url is required when the directory is enabled")
		}
		if c.Directory.SearchBase == "" {
			errs = append(errs, "directory.search_base is required when the directory is enabled")
		}
		if !strings.Contains(c.Directory.SearchFilter, "${username}") {
			errs = append(errs, "directory.search_filter must contain a ${username} placeholder")
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Metrics.Enabled && c.Metrics.URL == "" {
		errs = append(errs, "metrics.url is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TokenTTL returns the session token lifetime as a Duration.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// VersionCacheTTL returns the token version cache TTL as a Duration.
func (c *Config) VersionCacheTTL() time.Duration {
	return time.Duration(c.Auth.VersionCacheTTL) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
