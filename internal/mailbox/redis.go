package mailbox

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
	"github.com/Iron-Ham/mqfetch/internal/util"
)

// blockSlice is how long a single BLPOP waits. Receive loops over slices so
// context cancellation and mailbox destruction are noticed between them.
// Redis does not accept blocking timeouts below one second.
const blockSlice = time.Second

// RedisTransport keeps one redis list per channel. It lets clients on other
// hosts share the mailbox.
//
// Keys:
//
//	{prefix}:alive   set while the mailbox exists
//	{prefix}:seq     channel allocation counter
//	{prefix}:ch:{n}  envelopes on channel n
type RedisTransport struct {
	rdb  *redis.Client
	opts transportOptions
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, errors.NewTransportError(BackendRedis, "connect", err)
	}
	return rdb, nil
}

// CreateRedisTransport creates a fresh mailbox, discarding the channels of a
// previous server under the same prefix. Only the dispatcher calls this.
// The alive key names its owner; while a live server on any host holds it,
// creation fails with ErrServerLocked. A key left by a dead process on this
// host is taken over. The allocation counter is kept so channel numbers keep
// increasing.
func CreateRedisTransport(ctx context.Context, rdb *redis.Client, opts ...TransportOption) (*RedisTransport, error) {
	r := &RedisTransport{rdb: rdb, opts: applyTransportOptions(opts)}
	if err := r.claim(ctx); err != nil {
		return nil, err
	}
	if err := r.deleteChannels(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// claim takes the alive key for this process.
func (r *RedisTransport) claim(ctx context.Context) error {
	owner := mailboxOwner()
	ok, err := r.rdb.SetNX(ctx, r.aliveKey(), owner, 0).Result()
	if err != nil {
		return errors.NewTransportError(BackendRedis, "create mailbox", err)
	}
	if ok {
		return nil
	}

	existing, err := r.rdb.Get(ctx, r.aliveKey()).Result()
	if err != nil && err != redis.Nil {
		return errors.NewTransportError(BackendRedis, "read mailbox owner", err)
	}
	if !staleOwner(existing) {
		return fmt.Errorf("%w: %s", errors.ErrServerLocked, existing)
	}

	// Only replace the exact stale value; a server that won meanwhile keeps it.
	var replaced bool
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, r.aliveKey()).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil && current != existing {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.aliveKey(), owner, 0)
			return nil
		})
		replaced = err == nil
		return err
	}, r.aliveKey())
	if err != nil && err != redis.TxFailedErr {
		return errors.NewTransportError(BackendRedis, "take over mailbox", err)
	}
	if !replaced {
		return fmt.Errorf("%w: taken over concurrently", errors.ErrServerLocked)
	}
	return nil
}

// mailboxOwner identifies this process as "hostname:pid".
func mailboxOwner() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return hostname + ":" + strconv.Itoa(os.Getpid())
}

// staleOwner reports whether owner names a process on this host that is no
// longer running. Owners on other hosts cannot be probed and count as live.
func staleOwner(owner string) bool {
	i := strings.LastIndex(owner, ":")
	if i < 0 {
		return false
	}
	hostname, err := os.Hostname()
	if err != nil || owner[:i] != hostname {
		return false
	}
	pid, err := strconv.Atoi(owner[i+1:])
	if err != nil {
		return false
	}
	return !util.ProcessAlive(pid)
}

// OpenRedisTransport attaches to a mailbox created by a running server.
func OpenRedisTransport(ctx context.Context, rdb *redis.Client, opts ...TransportOption) (*RedisTransport, error) {
	r := &RedisTransport{rdb: rdb, opts: applyTransportOptions(opts)}
	alive, err := r.alive(ctx)
	if err != nil {
		return nil, err
	}
	if !alive {
		return nil, errors.ErrMailboxNotFound
	}
	return r, nil
}

// Send appends env to the channel list.
func (r *RedisTransport) Send(ctx context.Context, env protocol.Envelope) error {
	alive, err := r.alive(ctx)
	if err != nil {
		return err
	}
	if !alive {
		return errors.ErrMailboxClosed
	}

	data, err := r.opts.codec.Marshal(env)
	if err != nil {
		return errors.NewTransportError(BackendRedis, "encode envelope", err).WithRetryable(false)
	}
	if err := r.rdb.RPush(ctx, r.channelKey(env.Channel), data).Err(); err != nil {
		return errors.NewTransportError(BackendRedis, "send", err)
	}
	return nil
}

// Receive pops the head of the channel list, blocking in one second slices.
func (r *RedisTransport) Receive(ctx context.Context, ch protocol.Channel) (protocol.Envelope, error) {
	key := r.channelKey(ch)
	for {
		if err := ctx.Err(); err != nil {
			return protocol.Envelope{}, err
		}
		alive, err := r.alive(ctx)
		if err != nil {
			return protocol.Envelope{}, err
		}
		if !alive {
			return protocol.Envelope{}, errors.ErrMailboxClosed
		}

		res, err := r.rdb.BLPop(ctx, blockSlice, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctxErr := contextDone(ctx); ctxErr != nil {
				return protocol.Envelope{}, ctxErr
			}
			return protocol.Envelope{}, errors.NewTransportError(BackendRedis, "receive", err)
		}
		// BLPOP replies with [key, value].
		if len(res) != 2 {
			return protocol.Envelope{}, errors.NewTransportError(BackendRedis, "receive",
				fmt.Errorf("unexpected BLPOP reply of length %d", len(res))).WithRetryable(false)
		}
		env, err := r.opts.codec.Unmarshal([]byte(res[1]))
		if err != nil {
			return protocol.Envelope{}, errors.NewTransportError(BackendRedis, "decode envelope", err).WithRetryable(false)
		}
		return env, nil
	}
}

// Drain deletes the channel list and reports how long it was, atomically.
func (r *RedisTransport) Drain(ctx context.Context, ch protocol.Channel) (int, error) {
	key := r.channelKey(ch)
	var llen *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		llen = pipe.LLen(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, errors.NewTransportError(BackendRedis, "drain", err)
	}
	return int(llen.Val()), nil
}

// Pending reports the channel list length.
func (r *RedisTransport) Pending(ctx context.Context, ch protocol.Channel) (int, error) {
	n, err := r.rdb.LLen(ctx, r.channelKey(ch)).Result()
	if err != nil {
		return 0, errors.NewTransportError(BackendRedis, "pending", err)
	}
	return int(n), nil
}

// Allocate increments the shared counter; INCR never repeats a value.
func (r *RedisTransport) Allocate(ctx context.Context) (protocol.Channel, error) {
	alive, err := r.alive(ctx)
	if err != nil {
		return 0, err
	}
	if !alive {
		return 0, errors.ErrMailboxClosed
	}
	n, err := r.rdb.Incr(ctx, r.key("seq")).Result()
	if err != nil {
		return 0, errors.NewTransportError(BackendRedis, "allocate channel", err)
	}
	return protocol.Channel(n), nil
}

// Destroy clears the alive marker and deletes every channel list.
func (r *RedisTransport) Destroy(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.aliveKey()).Err(); err != nil {
		return errors.NewTransportError(BackendRedis, "destroy mailbox", err)
	}
	return r.deleteChannels(ctx)
}

func (r *RedisTransport) deleteChannels(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, r.key("ch:*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.NewTransportError(BackendRedis, "list channels", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return errors.NewTransportError(BackendRedis, "delete channels", err)
	}
	return nil
}

func (r *RedisTransport) alive(ctx context.Context) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.aliveKey()).Result()
	if err != nil {
		if ctxErr := contextDone(ctx); ctxErr != nil {
			return false, ctxErr
		}
		return false, errors.NewTransportError(BackendRedis, "check mailbox", err)
	}
	return n > 0, nil
}

func (r *RedisTransport) key(suffix string) string {
	return r.opts.keyPrefix + ":" + suffix
}

func (r *RedisTransport) aliveKey() string {
	return r.key("alive")
}

func (r *RedisTransport) channelKey(ch protocol.Channel) string {
	return r.key("ch:" + strconv.FormatInt(int64(ch), 10))
}

// contextDone reports the context error, treating a passed deadline as
// expired even if the context timer has not fired yet. The redis client
// applies the deadline to the socket, so an I/O timeout can win that race.
func contextDone(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
		return context.DeadlineExceeded
	}
	return nil
}
