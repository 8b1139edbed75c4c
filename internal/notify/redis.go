package notify

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/logging"
)

// RedisSignal raises cancellations on the {prefix}:cancel pub/sub channel.
// Pub/sub is fire-and-forget: a cancel published while no dispatcher is
// subscribed is lost, which matches a server that is not running.
type RedisSignal struct {
	rdb     *redis.Client
	channel string
	logger  *logging.Logger
}

// NewRedisSignal creates a RedisSignal. A nil logger discards output.
func NewRedisSignal(rdb *redis.Client, keyPrefix string, logger *logging.Logger) *RedisSignal {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &RedisSignal{
		rdb:     rdb,
		channel: keyPrefix + ":cancel",
		logger:  logger.WithComponent("notify"),
	}
}

// Channel returns the pub/sub channel name.
func (s *RedisSignal) Channel() string {
	return s.channel
}

// Cancel publishes sessionID.
func (s *RedisSignal) Cancel(ctx context.Context, sessionID string) error {
	if err := validateID(sessionID); err != nil {
		return err
	}
	if err := s.rdb.Publish(ctx, s.channel, sessionID).Err(); err != nil {
		return errors.NewTransportError("redis", "cancel", err)
	}
	return nil
}

// Listen subscribes and calls handler for every published session id.
func (s *RedisSignal) Listen(ctx context.Context, handler func(sessionID string)) error {
	ps := s.rdb.Subscribe(ctx, s.channel)
	defer func() { _ = ps.Close() }()

	// Wait for the subscription confirmation so callers know the listener
	// is live once the first message can arrive.
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.NewTransportError("redis", "subscribe", err)
	}

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := validateID(msg.Payload); err != nil {
				s.logger.Warn("ignoring malformed cancel signal", "payload", msg.Payload)
				continue
			}
			s.logger.Debug("cancel signal received", "session_id", msg.Payload)
			handler(msg.Payload)
		}
	}
}
