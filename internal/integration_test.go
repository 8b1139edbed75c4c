// Package internal contains integration tests that run the dispatcher, its
// session workers and clients together over a shared mailbox, checking that
// the packages compose the way the command line wires them.
package internal

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/mqfetch/internal/client"
	"github.com/Iron-Ham/mqfetch/internal/event"
	"github.com/Iron-Ham/mqfetch/internal/mailbox"
	"github.com/Iron-Ham/mqfetch/internal/notify"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
	"github.com/Iron-Ham/mqfetch/internal/server"
	"github.com/Iron-Ham/mqfetch/internal/session"
	"github.com/Iron-Ham/mqfetch/internal/testutil"
)

// stack is a running dispatcher plus the mailbox its clients use.
type stack struct {
	mb   *mailbox.Mailbox
	bus  *event.Bus
	done chan error
}

// startStack runs a dispatcher over t until the test ends or stop is called.
func startStack(t *testing.T, tr mailbox.Transport, fs afero.Fs, listener notify.Listener) *stack {
	t.Helper()

	policy, err := session.NewPolicy(1, 20, 8, nil)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}

	bus := event.NewBus()
	mb := mailbox.New(tr, mailbox.WithBus(bus))
	d := server.New(server.Config{
		Transport:     mb,
		Listener:      listener,
		Worker:        session.WorkerConfig{Fs: fs, Policy: policy},
		ShutdownGrace: time.Second,
		Bus:           bus,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &stack{mb: mb, bus: bus, done: make(chan error, 1)}
	go func() { s.done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-s.done:
		case <-time.After(testutil.DefaultTimeout):
			t.Error("dispatcher did not stop")
		}
	})
	return s
}

// stop asks the dispatcher to shut down through the mailbox and waits for it.
func (s *stack) stop(t *testing.T) {
	t.Helper()
	if err := s.mb.Send(context.Background(), protocol.NewStopServer()); err != nil {
		t.Fatalf("Send(StopServer) error = %v", err)
	}
	select {
	case err := <-s.done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
		s.done <- err
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("dispatcher did not stop")
	}
}

// fetch runs one client against the stack and returns what it printed.
func fetch(ctx context.Context, tr mailbox.Transport, canceller notify.Sender, prio int, path string) (string, *client.Agent, error) {
	var out bytes.Buffer
	agent := client.New(client.Config{
		Transport: tr,
		Canceller: canceller,
		Stdout:    &out,
		Stderr:    &bytes.Buffer{},
	})
	err := agent.Run(ctx, prio, path)
	return out.String(), agent, err
}

// TestEventBusIntegration checks the events a full session publishes, in
// the order an observer sees them.
func TestEventBusIntegration(t *testing.T) {
	fs := testutil.SetupResourceFs(t, map[string]string{"/srv/a.txt": "twenty bytes of data"})
	s := startStack(t, mailbox.NewMemoryTransport(), fs, nil)

	var (
		mu    sync.Mutex
		types []string
		sent  int
	)
	s.bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		if e.EventType() == event.TypeMailboxSent {
			sent++
			return
		}
		types = append(types, e.EventType())
	})

	out, agent, err := fetch(context.Background(), s.mb, nil, 3, "/srv/a.txt")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "twenty bytes of data" || !agent.Complete() {
		t.Errorf("output = %q, complete = %v", out, agent.Complete())
	}
	s.stop(t)

	mu.Lock()
	defer mu.Unlock()
	expected := []string{event.TypeSessionAccepted, event.TypeSessionEnded, event.TypeServerStopped}
	if fmt.Sprint(types) != fmt.Sprint(expected) {
		t.Errorf("events = %v, want %v", types, expected)
	}
	// connect, identity, 3 chunks of 8, end-of-data, StopClient, StopServer
	if sent != 8 {
		t.Errorf("mailbox.sent events = %d, want 8", sent)
	}
}

// TestConcurrentClients runs many clients over one mailbox and checks that
// every one of them receives exactly its own resource.
func TestConcurrentClients(t *testing.T) {
	const clients = 8

	files := make(map[string]string, clients)
	for i := range clients {
		files[fmt.Sprintf("/srv/file-%d.txt", i)] = strings.Repeat(fmt.Sprintf("<%d>", i), 10+i*7)
	}
	fs := testutil.SetupResourceFs(t, files)
	s := startStack(t, mailbox.NewMemoryTransport(), fs, nil)

	ended := make(chan event.SessionEndedEvent, clients)
	s.bus.Subscribe(event.TypeSessionEnded, func(e event.Event) {
		ended <- e.(event.SessionEndedEvent)
	})

	ctx, cancel := context.WithTimeout(context.Background(), testutil.DefaultTimeout)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for path, want := range files {
		wg.Go(func() {
			got, _, err := fetch(ctx, s.mb, nil, 1+len(want)%20, path)
			switch {
			case err != nil:
				errs <- fmt.Errorf("%s: %w", path, err)
			case got != want:
				errs <- fmt.Errorf("%s: got %q, want %q", path, got, want)
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	for range clients {
		select {
		case e := <-ended:
			if e.Outcome != session.OutcomeCompleted.String() {
				t.Errorf("session %s outcome = %s, want completed", e.SessionID, e.Outcome)
			}
		case <-time.After(testutil.DefaultTimeout):
			t.Fatal("not every session ended")
		}
	}
}

// TestRedisMailboxEndToEnd serves a session over the redis backend with the
// CBOR codec, with the redis pub/sub cancel path attached, then has a
// second one rejected.
func TestRedisMailboxEndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	rdb, err := mailbox.DialRedis(ctx, mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("DialRedis() error = %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	codec, err := protocol.CodecByName(protocol.CodecCBOR)
	if err != nil {
		t.Fatalf("CodecByName() error = %v", err)
	}
	tr, err := mailbox.CreateRedisTransport(ctx, rdb, mailbox.WithCodec(codec), mailbox.WithKeyPrefix("it"))
	if err != nil {
		t.Fatalf("CreateRedisTransport() error = %v", err)
	}
	signal := notify.NewRedisSignal(rdb, "it", nil)

	content := strings.Repeat("redis ", 30)
	fs := testutil.SetupResourceFs(t, map[string]string{"/srv/r.txt": content})
	s := startStack(t, tr, fs, signal)

	clientTr, err := mailbox.OpenRedisTransport(ctx, rdb, mailbox.WithCodec(codec), mailbox.WithKeyPrefix("it"))
	if err != nil {
		t.Fatalf("OpenRedisTransport() error = %v", err)
	}
	out, _, err := fetch(ctx, clientTr, signal, 10, "/srv/r.txt")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != content {
		t.Errorf("output = %q, want %q", out, content)
	}

	out, agent, err := fetch(ctx, clientTr, signal, 50, "/srv/r.txt")
	if err != nil {
		t.Fatalf("Run(priority 50) error = %v", err)
	}
	if agent.Complete() || out != "invalid priority; 1 <= priority <= 20\n" {
		t.Errorf("rejected session output = %q, complete = %v", out, agent.Complete())
	}

	s.stop(t)
	if _, err := mailbox.OpenRedisTransport(ctx, rdb, mailbox.WithKeyPrefix("it")); err == nil {
		t.Error("mailbox still open after the server stopped")
	}
}
