package mailbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

// backends returns a fresh transport per backend so every contract test runs
// against memory, file and redis alike.
func backends(t *testing.T) map[string]func(t *testing.T) Transport {
	t.Helper()
	return map[string]func(t *testing.T) Transport{
		BackendMemory: func(t *testing.T) Transport {
			return NewMemoryTransport()
		},
		BackendFile: func(t *testing.T) Transport {
			codec, err := protocol.CBOR()
			if err != nil {
				t.Fatalf("CBOR() error = %v", err)
			}
			ft, err := CreateFileTransport(t.TempDir(), WithCodec(codec), WithPollInterval(20*time.Millisecond))
			if err != nil {
				t.Fatalf("CreateFileTransport() error = %v", err)
			}
			return ft
		},
		BackendRedis: func(t *testing.T) Transport {
			mr := miniredis.RunT(t)
			ctx := context.Background()
			rdb, err := DialRedis(ctx, mr.Addr(), "", 0)
			if err != nil {
				t.Fatalf("DialRedis() error = %v", err)
			}
			t.Cleanup(func() { _ = rdb.Close() })
			rt, err := CreateRedisTransport(ctx, rdb, WithKeyPrefix("test"))
			if err != nil {
				t.Fatalf("CreateRedisTransport() error = %v", err)
			}
			return rt
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, tr Transport)) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, mk(t))
		})
	}
}

func TestTransport_FIFOPerChannel(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tr Transport) {
		ctx := context.Background()

		for i := range 5 {
			if err := tr.Send(ctx, protocol.NewChunk(3, []byte(fmt.Sprintf("part-%d", i)))); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
		}
		if err := tr.Send(ctx, protocol.NewStopClient(4)); err != nil {
			t.Fatalf("Send() error = %v", err)
		}

		for i := range 5 {
			env, err := tr.Receive(ctx, 3)
			if err != nil {
				t.Fatalf("Receive() error = %v", err)
			}
			want := fmt.Sprintf("part-%d", i)
			if env.Kind != protocol.KindDataChunk || string(env.Chunk.Data) != want {
				t.Fatalf("Receive() #%d = %+v, want chunk %q", i, env, want)
			}
		}

		env, err := tr.Receive(ctx, 4)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if env.Kind != protocol.KindStopClient || env.Channel != 4 {
			t.Errorf("Receive(4) = %+v", env)
		}
	})
}

func TestTransport_ReceiveBlocksUntilSend(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tr Transport) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		type result struct {
			env protocol.Envelope
			err error
		}
		done := make(chan result, 1)
		go func() {
			env, err := tr.Receive(ctx, protocol.ChannelServer)
			done <- result{env, err}
		}()

		time.Sleep(50 * time.Millisecond)
		req := protocol.ConnectRequest{RequesterID: 77, ReplyChannel: 1, Priority: 5, ResourcePath: "/tmp/x"}
		if err := tr.Send(ctx, protocol.NewConnect(req)); err != nil {
			t.Fatalf("Send() error = %v", err)
		}

		select {
		case r := <-done:
			if r.err != nil {
				t.Fatalf("Receive() error = %v", r.err)
			}
			if r.env.Kind != protocol.KindConnect || *r.env.Connect != req {
				t.Errorf("Receive() = %+v", r.env)
			}
		case <-ctx.Done():
			t.Fatal("Receive() did not return after Send")
		}
	})
}

func TestTransport_ReceiveHonoursContext(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tr Transport) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := tr.Receive(ctx, 9)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Receive() error = %v, want deadline exceeded", err)
		}
	})
}

func TestTransport_DrainAndPending(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tr Transport) {
		ctx := context.Background()

		for range 3 {
			if err := tr.Send(ctx, protocol.NewChunk(5, []byte("x"))); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
		}
		if err := tr.Send(ctx, protocol.NewChunk(6, []byte("y"))); err != nil {
			t.Fatalf("Send() error = %v", err)
		}

		if n, err := tr.Pending(ctx, 5); err != nil || n != 3 {
			t.Fatalf("Pending(5) = %d, %v; want 3", n, err)
		}

		n, err := tr.Drain(ctx, 5)
		if err != nil {
			t.Fatalf("Drain() error = %v", err)
		}
		if n != 3 {
			t.Errorf("Drain() = %d, want 3", n)
		}

		// Draining again is a no-op.
		if n, err := tr.Drain(ctx, 5); err != nil || n != 0 {
			t.Errorf("second Drain() = %d, %v; want 0", n, err)
		}
		if n, _ := tr.Pending(ctx, 5); n != 0 {
			t.Errorf("Pending(5) after drain = %d", n)
		}
		// Other channels are untouched.
		if n, _ := tr.Pending(ctx, 6); n != 1 {
			t.Errorf("Pending(6) = %d, want 1", n)
		}
	})
}

func TestTransport_AllocateUnique(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tr Transport) {
		ctx := context.Background()

		seen := make(map[protocol.Channel]bool)
		for range 10 {
			ch, err := tr.Allocate(ctx)
			if err != nil {
				t.Fatalf("Allocate() error = %v", err)
			}
			if !ch.IsSession() {
				t.Errorf("Allocate() = %v, want a session channel", ch)
			}
			if seen[ch] {
				t.Errorf("Allocate() returned %v twice", ch)
			}
			seen[ch] = true
		}
	})
}

func TestTransport_Destroy(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tr Transport) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			_, err := tr.Receive(ctx, protocol.ChannelServer)
			done <- err
		}()
		time.Sleep(50 * time.Millisecond)

		if err := tr.Destroy(ctx); err != nil {
			t.Fatalf("Destroy() error = %v", err)
		}
		if err := tr.Destroy(ctx); err != nil {
			t.Errorf("second Destroy() error = %v", err)
		}

		select {
		case err := <-done:
			if !errors.Is(err, errors.ErrMailboxClosed) {
				t.Errorf("blocked Receive() error = %v, want ErrMailboxClosed", err)
			}
		case <-ctx.Done():
			t.Fatal("blocked Receive() not released by Destroy")
		}

		if err := tr.Send(ctx, protocol.NewStopServer()); !errors.Is(err, errors.ErrMailboxClosed) {
			t.Errorf("Send() after Destroy error = %v, want ErrMailboxClosed", err)
		}
		if _, err := tr.Allocate(ctx); !errors.Is(err, errors.ErrMailboxClosed) {
			t.Errorf("Allocate() after Destroy error = %v, want ErrMailboxClosed", err)
		}
	})
}
