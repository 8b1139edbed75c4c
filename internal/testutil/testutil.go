// Package testutil provides testing utilities for mqfetch tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/mqfetch/internal/mailbox"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

// DefaultTimeout bounds how long helpers wait for asynchronous work.
const DefaultTimeout = 5 * time.Second

// Receiver is the part of a mailbox transport the collectors need.
type Receiver interface {
	Receive(ctx context.Context, ch protocol.Channel) (protocol.Envelope, error)
}

// GatedTransport lets the first Allow sends through and blocks every later
// send until its context ends. It freezes a worker mid-stream.
type GatedTransport struct {
	mailbox.Transport
	Allow int64

	sends atomic.Int64
}

// Send forwards env or blocks, depending on how many sends came before.
func (g *GatedTransport) Send(ctx context.Context, env protocol.Envelope) error {
	if g.sends.Add(1) > g.Allow {
		<-ctx.Done()
		return ctx.Err()
	}
	return g.Transport.Send(ctx, env)
}

// Blocked reports whether a send is being held back.
func (g *GatedTransport) Blocked() bool {
	return g.sends.Load() > g.Allow
}

// SetupResourceFs creates an in-memory filesystem holding the given files.
// The files map contains absolute paths to file contents.
func SetupResourceFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return fs
}

// SetupResourceDir creates a temporary directory holding the given files and
// returns its path. The files map contains relative paths to file contents.
// The directory is removed when the test completes.
func SetupResourceDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for path, content := range files {
		fullPath := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return dir
}

// CollectSession receives envelopes on ch until StopClient arrives and
// returns all of them, StopClient included. The test fails if the session
// does not stop within DefaultTimeout.
func CollectSession(t *testing.T, r Receiver, ch protocol.Channel) []protocol.Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	var envs []protocol.Envelope
	for {
		env, err := r.Receive(ctx, ch)
		if err != nil {
			t.Fatalf("Receive(%s) error = %v after %d envelopes", ch, err, len(envs))
		}
		envs = append(envs, env)
		if env.Kind == protocol.KindStopClient {
			return envs
		}
	}
}

// ReceiveOne receives a single envelope on ch, failing the test on timeout.
func ReceiveOne(t *testing.T, r Receiver, ch protocol.Channel) protocol.Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	env, err := r.Receive(ctx, ch)
	if err != nil {
		t.Fatalf("Receive(%s) error = %v", ch, err)
	}
	return env
}

// Kinds returns the kind of every envelope, in order.
func Kinds(envs []protocol.Envelope) []protocol.Kind {
	kinds := make([]protocol.Kind, len(envs))
	for i, env := range envs {
		kinds[i] = env.Kind
	}
	return kinds
}

// Payload concatenates the bytes of every DataChunk in envs.
func Payload(envs []protocol.Envelope) []byte {
	var data []byte
	for _, env := range envs {
		if env.Kind == protocol.KindDataChunk && env.Chunk != nil {
			data = append(data, env.Chunk.Data...)
		}
	}
	return data
}

// WaitFor polls cond until it returns true, failing the test after
// DefaultTimeout.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(DefaultTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
