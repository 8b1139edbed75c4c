package notify

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/Iron-Ham/mqfetch/internal/errors"
)

// collector records delivered session ids.
type collector struct {
	mu  sync.Mutex
	ids []string
	got chan string
}

func newCollector() *collector {
	return &collector{got: make(chan string, 16)}
}

func (c *collector) handle(id string) {
	c.mu.Lock()
	c.ids = append(c.ids, id)
	c.mu.Unlock()
	c.got <- id
}

func (c *collector) wait(t *testing.T, want string) {
	t.Helper()
	select {
	case id := <-c.got:
		if id != want {
			t.Errorf("delivered %q, want %q", id, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("signal %q not delivered", want)
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"sess-1-2-3", false},
		{"", true},
		{"..", true},
		{"../etc", true},
		{`a\b`, true},
	}
	for _, tt := range tests {
		err := validateID(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("validateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("validateID(%q) error should match ErrInvalidInput", tt.id)
		}
	}
}

func TestFileSignal_CancelBeforeListen(t *testing.T) {
	s := NewFileSignal(t.TempDir(), nil)
	if err := s.Cancel(context.Background(), "sess-1"); !errors.Is(err, errors.ErrMailboxNotFound) {
		t.Errorf("Cancel() without listener error = %v, want ErrMailboxNotFound", err)
	}
}

func TestFileSignal_DeliversAndConsumes(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSignal(dir, nil)

	// A marker left over from a previous run is delivered at start.
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(context.Background(), "sess-stale"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := newCollector()
	done := make(chan error, 1)
	go func() { done <- s.Listen(ctx, c.handle) }()

	c.wait(t, "sess-stale")

	if err := s.Cancel(ctx, "sess-live"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	c.wait(t, "sess-live")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Listen() error = %v", err)
	}

	if entries, _ := os.ReadDir(s.Dir()); len(entries) != 0 {
		t.Errorf("markers left behind: %d", len(entries))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.ids) != 2 {
		t.Errorf("delivered %v, want exactly two signals", c.ids)
	}
}

func TestFileSignal_IgnoresHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSignal(dir, nil)
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	hidden := filepath.Join(s.Dir(), ".sess-1.tmp")
	if err := os.WriteFile(hidden, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	called := false
	s.scan(func(string) { called = true })
	if called {
		t.Error("hidden staging file should not be delivered")
	}
	if _, err := os.Stat(hidden); err != nil {
		t.Error("hidden staging file should be left alone")
	}
}

func TestRedisSignal(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedisSignal(rdb, "test", nil)
	if s.Channel() != "test:cancel" {
		t.Errorf("Channel() = %q", s.Channel())
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := newCollector()
	done := make(chan error, 1)
	go func() { done <- s.Listen(ctx, c.handle) }()

	// Wait until the listener is subscribed; pub/sub drops earlier messages.
	deadline := time.Now().Add(5 * time.Second)
	for {
		subs, err := rdb.PubSubNumSub(ctx, s.Channel()).Result()
		if err == nil && subs[s.Channel()] > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("listener never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.Cancel(ctx, "sess-42"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	c.wait(t, "sess-42")

	if err := s.Cancel(ctx, "../bad"); err == nil {
		t.Error("Cancel() should reject malformed ids")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Listen() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Listen() did not return after cancel")
	}
}
