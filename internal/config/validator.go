package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "session.chunk_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidCodecs returns the list of valid envelope codecs
func ValidCodecs() []string {
	return []string{"json", "cbor"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateMailbox()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateClient()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateMailbox() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidBackends(), c.Mailbox.Backend) {
		errors = append(errors, ValidationError{
			Field:   "mailbox.backend",
			Value:   c.Mailbox.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}

	// The dir also hosts the lock and snapshot, so every backend needs it.
	if strings.TrimSpace(c.Mailbox.Dir) == "" {
		errors = append(errors, ValidationError{
			Field:   "mailbox.dir",
			Value:   c.Mailbox.Dir,
			Message: "must not be empty",
		})
	}

	if c.Mailbox.Codec != "" && !slices.Contains(ValidCodecs(), strings.ToLower(c.Mailbox.Codec)) {
		errors = append(errors, ValidationError{
			Field:   "mailbox.codec",
			Value:   c.Mailbox.Codec,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidCodecs(), ", ")),
		})
	}

	const minPollMs, maxPollMs = 10, 60000
	if c.Mailbox.PollIntervalMs < minPollMs || c.Mailbox.PollIntervalMs > maxPollMs {
		errors = append(errors, ValidationError{
			Field:   "mailbox.poll_interval_ms",
			Value:   c.Mailbox.PollIntervalMs,
			Message: fmt.Sprintf("must be between %d and %d", minPollMs, maxPollMs),
		})
	}

	if c.Mailbox.Backend == BackendRedis {
		if c.Mailbox.Redis.Addr == "" {
			errors = append(errors, ValidationError{
				Field:   "mailbox.redis.addr",
				Value:   c.Mailbox.Redis.Addr,
				Message: "is required for the redis backend",
			})
		}
		if c.Mailbox.Redis.DB < 0 {
			errors = append(errors, ValidationError{
				Field:   "mailbox.redis.db",
				Value:   c.Mailbox.Redis.DB,
				Message: "must be non-negative",
			})
		}
		if c.Mailbox.Redis.KeyPrefix == "" || strings.ContainsAny(c.Mailbox.Redis.KeyPrefix, " \t\n") {
			errors = append(errors, ValidationError{
				Field:   "mailbox.redis.key_prefix",
				Value:   c.Mailbox.Redis.KeyPrefix,
				Message: "must be a non-empty string without whitespace",
			})
		}
	}

	return errors
}

func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.MinPriority < 1 {
		errors = append(errors, ValidationError{
			Field:   "session.min_priority",
			Value:   c.Session.MinPriority,
			Message: "must be at least 1",
		})
	}
	if c.Session.MaxPriority < c.Session.MinPriority {
		errors = append(errors, ValidationError{
			Field:   "session.max_priority",
			Value:   c.Session.MaxPriority,
			Message: fmt.Sprintf("must be >= session.min_priority (%d)", c.Session.MinPriority),
		})
	}
	if c.Session.MaxPriority > 20 {
		errors = append(errors, ValidationError{
			Field:   "session.max_priority",
			Value:   c.Session.MaxPriority,
			Message: "must be at most 20",
		})
	}

	if c.Session.ChunkSize <= 0 || c.Session.ChunkSize > MaxChunkSize {
		errors = append(errors, ValidationError{
			Field:   "session.chunk_size",
			Value:   c.Session.ChunkSize,
			Message: fmt.Sprintf("must be between 1 and %d", MaxChunkSize),
		})
	}

	for i, pattern := range c.Session.AllowedPaths {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("session.allowed_paths[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	return errors
}

func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.ShutdownGraceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "server.shutdown_grace_ms",
			Value:   c.Server.ShutdownGraceMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateClient() []ValidationError {
	var errors []ValidationError

	if c.Client.SignalTimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "client.signal_timeout_ms",
			Value:   c.Client.SignalTimeoutMs,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
