package mailbox

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

// Transport is the shared mailbox. It stores envelopes tagged with a channel
// and hands them out in FIFO order per channel.
//
// Implementations must be safe for concurrent use by multiple goroutines and,
// for the file and redis backends, by multiple processes.
type Transport interface {
	// Send delivers env to env.Channel.
	Send(ctx context.Context, env protocol.Envelope) error

	// Receive blocks until an envelope tagged ch is available and removes it.
	// It returns ErrMailboxClosed once the mailbox is destroyed and the
	// context error when ctx ends first.
	Receive(ctx context.Context, ch protocol.Channel) (protocol.Envelope, error)

	// Drain discards every pending envelope tagged ch and returns how many
	// were removed. Draining an empty channel is not an error.
	Drain(ctx context.Context, ch protocol.Channel) (int, error)

	// Pending reports how many envelopes tagged ch are waiting.
	Pending(ctx context.Context, ch protocol.Channel) (int, error)

	// Allocate reserves a session channel that no other participant holds.
	// Channels are never handed out twice during the mailbox lifetime.
	Allocate(ctx context.Context) (protocol.Channel, error)

	// Destroy tears down the mailbox. Calling it more than once is safe.
	Destroy(ctx context.Context) error
}

// Backend names reported in transport errors.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// sequencer hands out strictly increasing sequence numbers within a
// process. Wall clock nanos keep numbers from different processes roughly
// ordered; the per-process floor keeps a single sender strictly FIFO even if
// the clock steps backwards.
type sequencer struct {
	mu   sync.Mutex
	last int64
}

var seq sequencer

func (s *sequencer) next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := time.Now().UnixNano()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n
	return n
}

// generateID produces a sortable, unique envelope name using the sequence
// number and the PID.
func generateID() string {
	return fmt.Sprintf("%020d-%010d", seq.next(), os.Getpid())
}
