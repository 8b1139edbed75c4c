package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete mqfetch configuration
type Config struct {
	Mailbox MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Client  ClientConfig  `mapstructure:"client" yaml:"client"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// MailboxConfig selects and tunes the shared mailbox transport
type MailboxConfig struct {
	// Backend is "file" (local directory) or "redis" (default: "file")
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Dir is the mailbox root for the file backend. It also holds the
	// dispatcher lock, the sessions snapshot and the cancel markers.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Codec is the envelope encoding: "json" or "cbor" (default: "json")
	Codec string `mapstructure:"codec" yaml:"codec"`
	// PollIntervalMs is the fallback rescan interval for blocked receivers (default: 200)
	PollIntervalMs int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	// Redis configures the redis backend
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig holds connection settings for the redis backend
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// SessionConfig controls the per-client session workers
type SessionConfig struct {
	// MinPriority and MaxPriority bound the accepted scheduling priority (default: 1..20)
	MinPriority int `mapstructure:"min_priority" yaml:"min_priority"`
	MaxPriority int `mapstructure:"max_priority" yaml:"max_priority"`
	// ChunkSize is the number of bytes per DataChunk (default: 4096, max: 4096)
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"`
	// AllowedPaths is a list of glob patterns a requested path must match.
	// An empty list allows every path.
	AllowedPaths []string `mapstructure:"allowed_paths" yaml:"allowed_paths"`
	// ApplyPriority controls whether workers change their thread's scheduling priority (default: true)
	ApplyPriority bool `mapstructure:"apply_priority" yaml:"apply_priority"`
}

// ServerConfig controls the dispatcher
type ServerConfig struct {
	// ShutdownGraceMs is how long live sessions may keep streaming after a stop request (default: 2000)
	ShutdownGraceMs int `mapstructure:"shutdown_grace_ms" yaml:"shutdown_grace_ms"`
}

// ClientConfig controls the fetch command
type ClientConfig struct {
	// CancelOnInput lets a 'q' keypress on a terminal cancel the transfer (default: true)
	CancelOnInput bool `mapstructure:"cancel_on_input" yaml:"cancel_on_input"`
	// SignalTimeoutMs bounds the best-effort cancel notification on interrupt (default: 1000)
	SignalTimeoutMs int `mapstructure:"signal_timeout_ms" yaml:"signal_timeout_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// File is the log directory; empty means the mailbox directory
	File string `mapstructure:"file" yaml:"file"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files (default: false)
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Backends
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// MaxChunkSize mirrors the protocol limit on DataChunk payloads.
const MaxChunkSize = 4096

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Mailbox: MailboxConfig{
			Backend:        BackendFile,
			Dir:            DefaultMailboxDir(),
			Codec:          "json",
			PollIntervalMs: 200,
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				DB:        0,
				KeyPrefix: "mqfetch",
			},
		},
		Session: SessionConfig{
			MinPriority:   1,
			MaxPriority:   20,
			ChunkSize:     MaxChunkSize,
			AllowedPaths:  []string{},
			ApplyPriority: true,
		},
		Server: ServerConfig{
			ShutdownGraceMs: 2000,
		},
		Client: ClientConfig{
			CancelOnInput:   true,
			SignalTimeoutMs: 1000,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// PollInterval returns the fallback poll interval as a time.Duration
func (c *MailboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ShutdownGrace returns the shutdown grace period as a time.Duration
func (c *ServerConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceMs) * time.Millisecond
}

// SignalTimeout returns the cancel notification timeout as a time.Duration
func (c *ClientConfig) SignalTimeout() time.Duration {
	return time.Duration(c.SignalTimeoutMs) * time.Millisecond
}

// LogDir returns the directory the log file is written to.
func (c *Config) LogDir() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return c.Mailbox.Dir
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Mailbox defaults
	viper.SetDefault("mailbox.backend", defaults.Mailbox.Backend)
	viper.SetDefault("mailbox.dir", defaults.Mailbox.Dir)
	viper.SetDefault("mailbox.codec", defaults.Mailbox.Codec)
	viper.SetDefault("mailbox.poll_interval_ms", defaults.Mailbox.PollIntervalMs)
	viper.SetDefault("mailbox.redis.addr", defaults.Mailbox.Redis.Addr)
	viper.SetDefault("mailbox.redis.password", defaults.Mailbox.Redis.Password)
	viper.SetDefault("mailbox.redis.db", defaults.Mailbox.Redis.DB)
	viper.SetDefault("mailbox.redis.key_prefix", defaults.Mailbox.Redis.KeyPrefix)

	// Session defaults
	viper.SetDefault("session.min_priority", defaults.Session.MinPriority)
	viper.SetDefault("session.max_priority", defaults.Session.MaxPriority)
	viper.SetDefault("session.chunk_size", defaults.Session.ChunkSize)
	viper.SetDefault("session.allowed_paths", defaults.Session.AllowedPaths)
	viper.SetDefault("session.apply_priority", defaults.Session.ApplyPriority)

	// Server defaults
	viper.SetDefault("server.shutdown_grace_ms", defaults.Server.ShutdownGraceMs)

	// Client defaults
	viper.SetDefault("client.cancel_on_input", defaults.Client.CancelOnInput)
	viper.SetDefault("client.signal_timeout_ms", defaults.Client.SignalTimeoutMs)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// DefaultMailboxDir returns the mailbox directory used when none is configured.
// XDG_RUNTIME_DIR is preferred because it is per-user and cleared on logout.
func DefaultMailboxDir() string {
	if rt := os.Getenv("XDG_RUNTIME_DIR"); rt != "" {
		return filepath.Join(rt, "mqfetch")
	}
	return filepath.Join(os.TempDir(), "mqfetch")
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mqfetch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mqfetch"
	}
	return filepath.Join(home, ".config", "mqfetch")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidBackends returns the list of valid mailbox backends
func ValidBackends() []string {
	return []string{BackendFile, BackendRedis}
}
