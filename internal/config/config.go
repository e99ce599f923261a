// Package config loads and validates the service configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the COLLAB_ prefix (e.g., COLLAB_DATABASE_HOST
// overrides database.host in the YAML). The same binary therefore runs with a
// config.yaml in local development and with pure environment variables in containers.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads
const EnvPrefix = "COLLAB"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Invitations   InvitationsConfig   `mapstructure:"invitations"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Notifications NotificationsConfig `mapstructure:"notifications"`

	// v is the viper instance the config was read from; Watch uses it
	v *viper.Viper
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetPublicURL returns the public-facing URL used in links sent to users.
// When server.public_url is set it is returned as-is; otherwise it falls back to server.base_url.
func (s *ServerConfig) GetPublicURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return s.BaseURL
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the Redis connection used by the distributed rate limiter.
// Redis is optional; it is only dialled when Enabled is true.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds session and password settings
type AuthConfig struct {
	// JWTExpiry is the lifetime of session tokens issued at login and registration
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
	// BcryptCost is the bcrypt work factor for password hashes
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// InvitationsConfig holds invitation lifecycle settings
type InvitationsConfig struct {
	// TTL is how long an invitation stays acceptable after it is sent (default 7 days)
	TTL time.Duration `mapstructure:"ttl"`
	// AcceptURLBase is the front-end URL the token is appended to in invitation emails.
	// Defaults to <public url>/invitations.
	AcceptURLBase string      `mapstructure:"accept_url_base"`
	Sweep         SweepConfig `mapstructure:"sweep"`
}

// SweepConfig controls the optional job that deletes long-expired invitations
type SweepConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Schedule is a six-field cron expression (seconds first)
	Schedule string `mapstructure:"schedule"`
	// Retention is how long an expired, unaccepted invitation is kept before deletion
	Retention time.Duration `mapstructure:"retention"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend is "memory" (per process) or "redis" (shared across replicas)
	Backend           string `mapstructure:"backend"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
	// AuthRequestsPerMinute is the stricter limit applied to login and registration
	AuthRequestsPerMinute int `mapstructure:"auth_requests_per_minute"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	// Enabled determines if successful organization mutations are written to audit_logs
	Enabled bool `mapstructure:"enabled"`
	// LogFailedRequests determines if failed mutations (4xx/5xx) are recorded too
	LogFailedRequests bool `mapstructure:"log_failed_requests"`
	// Shippers forward every recorded entry to external destinations as well
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig configures one audit destination. Shippers are only configurable
// from the YAML file; lists do not map onto environment variables.
type AuditShipperConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Type is webhook or file
	Type    string             `mapstructure:"type"`
	Webhook AuditWebhookConfig `mapstructure:"webhook"`
	File    AuditFileConfig    `mapstructure:"file"`
}

// AuditWebhookConfig posts entries as JSON to URL
type AuditWebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
	// BatchSize > 0 posts arrays of up to BatchSize entries instead of one request each
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// AuditFileConfig appends entries as JSON lines to Path
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// NotificationsConfig holds settings for outbound emails
type NotificationsConfig struct {
	// Enabled globally toggles outbound emails. When false invitations are still created
	// but no email is sent.
	Enabled bool `mapstructure:"enabled"`
	// Provider selects the delivery backend: log, smtp or sendgrid
	Provider string `mapstructure:"provider"`
	// From is the sender address shown in emails
	From string `mapstructure:"from"`
	// FromName is the sender display name
	FromName string         `mapstructure:"from_name"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	SendGrid SendGridConfig `mapstructure:"sendgrid"`
}

// SMTPConfig holds outbound mail server configuration
type SMTPConfig struct {
	// Host is the SMTP server hostname
	Host string `mapstructure:"host"`
	// Port is the SMTP server port (587 for STARTTLS, 465 for SMTPS, 25 for plain)
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// UseTLS requires implicit TLS (port 465) or STARTTLS (port 587) and never falls back to cleartext; false = plain SMTP
	UseTLS bool `mapstructure:"use_tls"`
}

// SendGridConfig holds SendGrid API settings
type SendGridConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys, so any error here is a programming bug.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.public_url",
		"server.read_timeout",
		"server.write_timeout",

		// Redis
		"redis.enabled",
		"redis.addr",
		"redis.password",
		"redis.db",

		// Auth
		"auth.jwt_expiry",
		"auth.bcrypt_cost",

		// Invitations
		"invitations.ttl",
		"invitations.accept_url_base",
		"invitations.sweep.enabled",
		"invitations.sweep.schedule",
		"invitations.sweep.retention",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.backend",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.auth_requests_per_minute",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Audit
		"audit.enabled",
		"audit.log_failed_requests",

		// Notifications
		"notifications.enabled",
		"notifications.provider",
		"notifications.from",
		"notifications.from_name",
		"notifications.smtp.host",
		"notifications.smtp.port",
		"notifications.smtp.username",
		"notifications.smtp.password",
		"notifications.smtp.use_tls",
		"notifications.sendgrid.api_key",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/collab-api")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.v = v
	return cfg, nil
}

// decode unmarshals, post-processes and validates the current state of v
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Notifications.SMTP.Password = expandEnv(cfg.Notifications.SMTP.Password)
	cfg.Notifications.SendGrid.APIKey = expandEnv(cfg.Notifications.SendGrid.APIKey)

	if cfg.Invitations.AcceptURLBase == "" {
		cfg.Invitations.AcceptURLBase = strings.TrimRight(cfg.Server.GetPublicURL(), "/") + "/invitations"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "collab")
	v.SetDefault("database.user", "collab")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.jwt_expiry", "24h")
	v.SetDefault("auth.bcrypt_cost", 12)

	// Invitation defaults
	v.SetDefault("invitations.ttl", "168h")
	v.SetDefault("invitations.accept_url_base", "")
	v.SetDefault("invitations.sweep.enabled", false)
	v.SetDefault("invitations.sweep.schedule", "0 30 3 * * *")
	v.SetDefault("invitations.sweep.retention", "720h")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.backend", "memory")
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.rate_limiting.auth_requests_per_minute", 10)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "collab-api")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.log_failed_requests", false)

	// Notifications defaults
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.provider", "log")
	v.SetDefault("notifications.from", "no-reply@localhost")
	v.SetDefault("notifications.from_name", "Collab")
	v.SetDefault("notifications.smtp.port", 587)
	v.SetDefault("notifications.smtp.use_tls", true)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when Redis is enabled")
	}

	if c.Invitations.TTL <= 0 {
		return fmt.Errorf("invitations.ttl must be positive")
	}
	if c.Invitations.Sweep.Enabled {
		if c.Invitations.Sweep.Schedule == "" {
			return fmt.Errorf("invitations.sweep.schedule is required when the sweep is enabled")
		}
		if c.Invitations.Sweep.Retention < 0 {
			return fmt.Errorf("invitations.sweep.retention must not be negative")
		}
	}

	rl := c.Security.RateLimiting
	if rl.Enabled {
		switch rl.Backend {
		case "memory":
		case "redis":
			if !c.Redis.Enabled {
				return fmt.Errorf("security.rate_limiting.backend=redis requires redis.enabled")
			}
		default:
			return fmt.Errorf("invalid rate limiting backend: %s (must be memory or redis)", rl.Backend)
		}
		if rl.RequestsPerMinute <= 0 {
			return fmt.Errorf("security.rate_limiting.requests_per_minute must be positive")
		}
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	if c.Notifications.Enabled {
		switch c.Notifications.Provider {
		case "log":
		case "smtp":
			if c.Notifications.SMTP.Host == "" {
				return fmt.Errorf("notifications.smtp.host is required for the smtp provider")
			}
		case "sendgrid":
			if c.Notifications.SendGrid.APIKey == "" {
				return fmt.Errorf("notifications.sendgrid.api_key is required for the sendgrid provider")
			}
		default:
			return fmt.Errorf("invalid notifications provider: %s (must be log, smtp, or sendgrid)", c.Notifications.Provider)
		}
		if c.Notifications.From == "" {
			return fmt.Errorf("notifications.from is required when notifications are enabled")
		}
	}

	for i, sh := range c.Audit.Shippers {
		if !sh.Enabled {
			continue
		}
		switch sh.Type {
		case "webhook":
			if sh.Webhook.URL == "" {
				return fmt.Errorf("audit.shippers[%d].webhook.url is required", i)
			}
		case "file":
			if sh.File.Path == "" {
				return fmt.Errorf("audit.shippers[%d].file.path is required", i)
			}
		default:
			return fmt.Errorf("invalid audit shipper type: %s (must be webhook or file)", sh.Type)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
