// Package config provides Viper-based configuration loading for the argos server.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// PublicURL is the externally visible base URL, used to build join links.
	PublicURL string `mapstructure:"public_url"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// CoordinatorConfig holds session coordinator settings.
type CoordinatorConfig struct {
	// PinDigits is the width of every pin; the pool holds 10^PinDigits codes.
	PinDigits int `mapstructure:"pin_digits"`
	// InactivityWindow is how long a game may stay idle before the sweep removes it.
	InactivityWindow time.Duration `mapstructure:"inactivity_window"`
	// HostDisconnect is the policy applied when a host connection closes: "keep" or "teardown".
	HostDisconnect string `mapstructure:"host_disconnect"`
	// EnforceTaskRunning rejects submissions while no task is running.
	EnforceTaskRunning bool `mapstructure:"enforce_task_running"`
	// SecretLength is the length of generated session secrets.
	SecretLength int `mapstructure:"secret_length"`
	// ContentQueue is the capacity of the content writer queue.
	ContentQueue int `mapstructure:"content_queue"`
}

// TransportConfig holds WebSocket transport settings.
type TransportConfig struct {
	// AllowedOrigins restricts which origins may open a connection. Empty allows all.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// MaxMessageBytes caps the size of a single inbound frame.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int `mapstructure:"send_buffer"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// RateLimit is the sustained inbound messages per second per connection. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// ContentConfig selects where submitted payloads are persisted.
type ContentConfig struct {
	// Backend is one of "none", "disk", "postgres", "redis".
	Backend string `mapstructure:"backend"`
	// Dir is the root directory of the disk backend.
	Dir string `mapstructure:"dir"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// AutoMigrate applies the embedded schema at startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User), url.QueryEscape(d.Password), d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings for the redis content backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// TTL expires stored payloads; zero keeps them forever.
	TTL time.Duration `mapstructure:"ttl"`
}

// ReaperConfig schedules the stale-game sweep independently of new games.
type ReaperConfig struct {
	// Schedule is a cron spec; empty disables the scheduled sweep.
	Schedule string `mapstructure:"schedule"`
}

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Content     ContentConfig     `mapstructure:"content"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Reaper      ReaperConfig      `mapstructure:"reaper"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateCoordinator(c.Coordinator); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTransport(c.Transport); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateContent(c.Content); err != nil {
		errs = append(errs, err.Error())
	}
	// Backend settings are only checked when that backend is selected.
	switch c.Content.Backend {
	case "postgres":
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	case "redis":
		if err := validateRedis(c.Redis); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateReaper(c.Reaper); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.PublicURL != "" {
		if u, err := url.Parse(s.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("server.public_url must be an absolute URL, got %q", s.PublicURL))
		}
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateCoordinator(c CoordinatorConfig) error {
	var errs []string
	if c.PinDigits < 1 || c.PinDigits > 6 {
		errs = append(errs, fmt.Sprintf("coordinator.pin_digits must be 1-6, got %d", c.PinDigits))
	}
	if c.InactivityWindow <= 0 {
		errs = append(errs, "coordinator.inactivity_window must be positive")
	}
	validPolicies := map[string]bool{"keep": true, "teardown": true}
	if !validPolicies[c.HostDisconnect] {
		errs = append(errs, fmt.Sprintf("coordinator.host_disconnect must be one of [keep, teardown], got %q", c.HostDisconnect))
	}
	if c.SecretLength < 8 {
		errs = append(errs, fmt.Sprintf("coordinator.secret_length must be >= 8, got %d", c.SecretLength))
	}
	if c.ContentQueue < 1 {
		errs = append(errs, fmt.Sprintf("coordinator.content_queue must be >= 1, got %d", c.ContentQueue))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTransport(t TransportConfig) error {
	var errs []string
	if t.MaxMessageBytes < 1 {
		errs = append(errs, fmt.Sprintf("transport.max_message_bytes must be >= 1, got %d", t.MaxMessageBytes))
	}
	if t.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("transport.send_buffer must be >= 1, got %d", t.SendBuffer))
	}
	if t.WriteTimeout <= 0 {
		errs = append(errs, "transport.write_timeout must be positive")
	}
	if t.PongWait <= 0 {
		errs = append(errs, "transport.pong_wait must be positive")
	}
	if t.PingInterval <= 0 || t.PingInterval >= t.PongWait {
		errs = append(errs, "transport.ping_interval must be positive and shorter than transport.pong_wait")
	}
	if t.RateLimit < 0 {
		errs = append(errs, "transport.rate_limit must not be negative")
	}
	if t.RateLimit > 0 && t.RateBurst < 1 {
		errs = append(errs, fmt.Sprintf("transport.rate_burst must be >= 1 when rate limiting, got %d", t.RateBurst))
	}
	for _, origin := range t.AllowedOrigins {
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("transport.allowed_origins entry %q is not an origin", origin))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateContent(c ContentConfig) error {
	validBackends := map[string]bool{"none": true, "disk": true, "postgres": true, "redis": true}
	if !validBackends[c.Backend] {
		return fmt.Errorf("content.backend must be one of [none, disk, postgres, redis], got %q", c.Backend)
	}
	if c.Backend == "disk" && c.Dir == "" {
		return errors.New("content.dir must not be empty for the disk backend")
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(r RedisConfig) error {
	var errs []string
	if r.Addr == "" {
		errs = append(errs, "redis.addr must not be empty")
	}
	if r.DB < 0 {
		errs = append(errs, fmt.Sprintf("redis.db must be >= 0, got %d", r.DB))
	}
	if r.TTL < 0 {
		errs = append(errs, "redis.ttl must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateReaper(r ReaperConfig) error {
	if r.Schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(r.Schedule); err != nil {
		return fmt.Errorf("reaper.schedule %q: %v", r.Schedule, err)
	}
	return nil
}

// Load reads configuration from the given file path, applies .env and environment
// variable overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	v := NewViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance with defaults and ARGOS_ environment overrides applied.
func NewViper() *viper.Viper {
	v := viper.New()

	// Environment variable overrides with ARGOS_ prefix
	v.SetEnvPrefix("ARGOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("coordinator.pin_digits", 4)
	v.SetDefault("coordinator.inactivity_window", "1h")
	v.SetDefault("coordinator.host_disconnect", "keep")
	v.SetDefault("coordinator.enforce_task_running", false)
	v.SetDefault("coordinator.secret_length", 24)
	v.SetDefault("coordinator.content_queue", 256)

	v.SetDefault("transport.allowed_origins", []string{})
	v.SetDefault("transport.max_message_bytes", 8<<20)
	v.SetDefault("transport.send_buffer", 64)
	v.SetDefault("transport.write_timeout", "10s")
	v.SetDefault("transport.pong_wait", "60s")
	v.SetDefault("transport.ping_interval", "54s")
	v.SetDefault("transport.rate_limit", 20)
	v.SetDefault("transport.rate_burst", 40)

	v.SetDefault("content.backend", "disk")
	v.SetDefault("content.dir", "./data/gen")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "argos")
	v.SetDefault("database.password", "argos")
	v.SetDefault("database.name", "argos")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "0s")

	v.SetDefault("reaper.schedule", "")
}
