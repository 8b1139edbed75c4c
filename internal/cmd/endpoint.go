package cmd

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mqfetch/internal/config"
	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/logging"
	"github.com/Iron-Ham/mqfetch/internal/mailbox"
	"github.com/Iron-Ham/mqfetch/internal/notify"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

// signaller raises and receives out-of-band cancels on one backend.
type signaller interface {
	notify.Sender
	notify.Listener
}

// endpoint is the mailbox side of a command: the transport plus the cancel
// path that belongs to the same backend.
type endpoint struct {
	Transport mailbox.Transport
	Signal    signaller
	Backend   string

	rdb *redis.Client
}

// Close releases the backend connection, if any.
func (e *endpoint) Close() error {
	if e.rdb == nil {
		return nil
	}
	return e.rdb.Close()
}

// openEndpoint connects to the configured backend. When create is true the
// mailbox is created fresh, which only the server does; otherwise it must
// already exist.
func openEndpoint(ctx context.Context, cfg *config.Config, create bool, logger *logging.Logger) (*endpoint, error) {
	codec, err := protocol.CodecByName(cfg.Mailbox.Codec)
	if err != nil {
		return nil, err
	}
	opts := []mailbox.TransportOption{
		mailbox.WithCodec(codec),
		mailbox.WithPollInterval(cfg.Mailbox.PollInterval()),
	}

	switch cfg.Mailbox.Backend {
	case config.BackendRedis:
		rc := cfg.Mailbox.Redis
		rdb, err := mailbox.DialRedis(ctx, rc.Addr, rc.Password, rc.DB)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mailbox.WithKeyPrefix(rc.KeyPrefix))

		var t *mailbox.RedisTransport
		if create {
			t, err = mailbox.CreateRedisTransport(ctx, rdb, opts...)
		} else {
			t, err = mailbox.OpenRedisTransport(ctx, rdb, opts...)
		}
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return &endpoint{
			Transport: t,
			Signal:    notify.NewRedisSignal(rdb, rc.KeyPrefix, logger),
			Backend:   config.BackendRedis,
			rdb:       rdb,
		}, nil

	case config.BackendFile, "":
		var t *mailbox.FileTransport
		if create {
			t, err = mailbox.CreateFileTransport(cfg.Mailbox.Dir, opts...)
		} else {
			t, err = mailbox.OpenFileTransport(cfg.Mailbox.Dir, opts...)
		}
		if err != nil {
			return nil, err
		}
		return &endpoint{
			Transport: t,
			Signal:    notify.NewFileSignal(cfg.Mailbox.Dir, logger),
			Backend:   config.BackendFile,
		}, nil

	default:
		return nil, errors.NewValidationError("unknown mailbox backend").
			WithField("mailbox.backend").WithValue(cfg.Mailbox.Backend)
	}
}

// loadConfig reads the effective configuration and builds the logger for a
// command. The returned logger must be closed by the caller.
func loadConfig(component string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.Logging.Enabled {
		return cfg, logging.NopLogger(), nil
	}

	logger, err := logging.NewLoggerWithRotation(cfg.LogDir(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.WithComponent(component), nil
}

// noServer rewrites ErrMailboxNotFound into a hint for the operator.
func noServer(err error) error {
	if errors.Is(err, errors.ErrMailboxNotFound) {
		return fmt.Errorf("no server is running (start one with 'mqfetch serve'): %w", err)
	}
	return err
}

// usageArgs marks argument validation failures as usage errors so the
// process exits with the usage status.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return errors.Join(errors.ErrUsage, fmt.Errorf("%w\nusage: %s", err, cmd.UseLine()))
		}
		return nil
	}
}
