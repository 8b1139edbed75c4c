package mailbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

const (
	// mailboxDir is the directory name within the base directory that holds the mailbox.
	mailboxDir = "mailbox"

	// stagingDir holds envelopes being written or claimed.
	stagingDir = "tmp"

	channelPrefix = "ch."
	envelopeExt   = ".env"

	// maxAllocateAttempts bounds the retries when concurrent clients race
	// for the same channel directory.
	maxAllocateAttempts = 64
)

// FileTransport stores every envelope as a file under
// {dir}/mailbox/ch.{channel}/. File names sort in send order, so a directory
// listing is the channel's FIFO. Writes and claims go through a staging
// directory and an atomic rename, which makes the transport safe across
// processes sharing the directory.
type FileTransport struct {
	root     string
	opts     transportOptions
	closeMu  sync.Once
	closedCh chan struct{}
}

// CreateFileTransport creates a fresh mailbox in dir, discarding anything a
// previous server left behind. Only the dispatcher calls this.
func CreateFileTransport(dir string, opts ...TransportOption) (*FileTransport, error) {
	f := newFileTransport(dir, opts)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewTransportError(BackendFile, "create directory", err).WithRetryable(false)
	}
	if err := os.RemoveAll(f.root); err != nil {
		return nil, errors.NewTransportError(BackendFile, "remove stale mailbox", err).WithRetryable(false)
	}
	for _, d := range []string{
		f.root,
		filepath.Join(f.root, stagingDir),
		f.channelDir(protocol.ChannelServer),
		f.channelDir(protocol.ChannelAccept),
	} {
		if err := os.Mkdir(d, 0o755); err != nil {
			return nil, errors.NewTransportError(BackendFile, "create directory", err).WithRetryable(false)
		}
	}
	return f, nil
}

// OpenFileTransport attaches to a mailbox created by a running server.
// It returns ErrMailboxNotFound when there is none.
func OpenFileTransport(dir string, opts ...TransportOption) (*FileTransport, error) {
	f := newFileTransport(dir, opts)
	if !f.exists() {
		return nil, errors.ErrMailboxNotFound
	}
	return f, nil
}

func newFileTransport(dir string, opts []TransportOption) *FileTransport {
	return &FileTransport{
		root:     filepath.Join(dir, mailboxDir),
		opts:     applyTransportOptions(opts),
		closedCh: make(chan struct{}),
	}
}

// Root returns the mailbox directory.
func (f *FileTransport) Root() string {
	return f.root
}

// Send writes env into its channel directory.
func (f *FileTransport) Send(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !f.exists() {
		return errors.ErrMailboxClosed
	}

	data, err := f.opts.codec.Marshal(env)
	if err != nil {
		return errors.NewTransportError(BackendFile, "encode envelope", err).WithRetryable(false)
	}

	dir := f.channelDir(env.Channel)
	if err := os.Mkdir(dir, 0o755); err != nil && !os.IsExist(err) {
		if os.IsNotExist(err) {
			return errors.ErrMailboxClosed
		}
		return errors.NewTransportError(BackendFile, "create channel", err)
	}

	name := generateID()
	tmp := filepath.Join(f.root, stagingDir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		if !f.exists() {
			return errors.ErrMailboxClosed
		}
		return errors.NewTransportError(BackendFile, "write envelope", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name+envelopeExt)); err != nil {
		_ = os.Remove(tmp)
		if !f.exists() {
			return errors.ErrMailboxClosed
		}
		return errors.NewTransportError(BackendFile, "publish envelope", err)
	}
	return nil
}

// Receive claims the oldest envelope on ch. It waits on fsnotify events for
// the channel directory and rescans every poll interval in case an event
// was missed.
func (f *FileTransport) Receive(ctx context.Context, ch protocol.Channel) (protocol.Envelope, error) {
	dir := f.channelDir(ch)

	var (
		watcher *fsnotify.Watcher
		events  <-chan fsnotify.Event
		armed   bool
	)
	defer func() {
		if watcher != nil {
			_ = watcher.Close()
		}
	}()

	ticker := time.NewTicker(f.opts.pollInterval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return protocol.Envelope{}, err
		}

		env, ok, err := f.claimNext(dir)
		if err != nil {
			return protocol.Envelope{}, err
		}
		if ok {
			return env, nil
		}
		if !f.exists() {
			return protocol.Envelope{}, errors.ErrMailboxClosed
		}

		if !armed {
			armed = true
			if err := os.Mkdir(dir, 0o755); err != nil && !os.IsExist(err) {
				if os.IsNotExist(err) {
					return protocol.Envelope{}, errors.ErrMailboxClosed
				}
				return protocol.Envelope{}, errors.NewTransportError(BackendFile, "create channel", err)
			}
			if watcher = f.watch(dir); watcher != nil {
				events = watcher.Events
			}
			// Rescan once before sleeping so an envelope that landed
			// between the scan and the watch is not missed.
			continue
		}

		select {
		case <-ctx.Done():
			return protocol.Envelope{}, ctx.Err()
		case <-f.closedCh:
			return protocol.Envelope{}, errors.ErrMailboxClosed
		case _, open := <-events:
			if !open {
				events = nil
			}
		case <-ticker.C:
		}
	}
}

// watch returns a watcher on dir, or nil when notifications are unavailable
// and the receiver has to rely on polling.
func (f *FileTransport) watch(dir string) *fsnotify.Watcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil
	}
	return w
}

// claimNext atomically takes ownership of the oldest envelope in dir.
func (f *FileTransport) claimNext(dir string) (protocol.Envelope, bool, error) {
	names, err := f.envelopeNames(dir)
	if err != nil {
		return protocol.Envelope{}, false, err
	}

	for _, name := range names {
		claimed := filepath.Join(f.root, stagingDir, name+"."+generateID())
		if err := os.Rename(filepath.Join(dir, name), claimed); err != nil {
			if os.IsNotExist(err) {
				// Another receiver won the race, or the mailbox is gone.
				if !f.exists() {
					return protocol.Envelope{}, false, errors.ErrMailboxClosed
				}
				continue
			}
			return protocol.Envelope{}, false, errors.NewTransportError(BackendFile, "claim envelope", err)
		}

		data, err := os.ReadFile(claimed)
		_ = os.Remove(claimed)
		if err != nil {
			return protocol.Envelope{}, false, errors.NewTransportError(BackendFile, "read envelope", err)
		}
		env, err := f.opts.codec.Unmarshal(data)
		if err != nil {
			return protocol.Envelope{}, false, errors.NewTransportError(BackendFile, "decode envelope", err).WithRetryable(false)
		}
		return env, true, nil
	}
	return protocol.Envelope{}, false, nil
}

// envelopeNames lists the pending envelope files in dir in send order.
// A missing directory has no envelopes.
func (f *FileTransport) envelopeNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewTransportError(BackendFile, "list channel", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), envelopeExt) {
			continue
		}
		names = append(names, e.Name())
	}
	// os.ReadDir returns entries sorted by name.
	return names, nil
}

// Drain removes every pending envelope on ch.
func (f *FileTransport) Drain(_ context.Context, ch protocol.Channel) (int, error) {
	dir := f.channelDir(ch)
	names, err := f.envelopeNames(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range names {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, errors.NewTransportError(BackendFile, "drain channel", err)
		}
		removed++
	}
	return removed, nil
}

// Pending counts the envelope files on ch.
func (f *FileTransport) Pending(_ context.Context, ch protocol.Channel) (int, error) {
	names, err := f.envelopeNames(f.channelDir(ch))
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// Allocate creates the directory for a fresh session channel. The channel
// number is one past the highest one in use; a concurrent client that
// creates the same directory first makes Mkdir fail and we try the next.
func (f *FileTransport) Allocate(ctx context.Context) (protocol.Channel, error) {
	for range maxAllocateAttempts {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		highest, err := f.highestChannel()
		if err != nil {
			return 0, err
		}
		ch := highest + 1
		if err := os.Mkdir(f.channelDir(ch), 0o755); err != nil {
			if os.IsExist(err) {
				continue
			}
			if os.IsNotExist(err) {
				return 0, errors.ErrMailboxClosed
			}
			return 0, errors.NewTransportError(BackendFile, "allocate channel", err)
		}
		return ch, nil
	}
	return 0, errors.NewTransportError(BackendFile, "allocate channel",
		fmt.Errorf("no free channel after %d attempts", maxAllocateAttempts))
}

func (f *FileTransport) highestChannel() (protocol.Channel, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.ErrMailboxClosed
		}
		return 0, errors.NewTransportError(BackendFile, "list channels", err)
	}

	highest := protocol.Channel(0)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), channelPrefix) {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(e.Name(), channelPrefix), 10, 64)
		if err != nil {
			continue
		}
		if ch := protocol.Channel(n); ch.IsSession() && ch > highest {
			highest = ch
		}
	}
	return highest, nil
}

// Destroy removes the mailbox tree. Receivers in this process wake up
// immediately; receivers in other processes notice on their next scan.
func (f *FileTransport) Destroy(_ context.Context) error {
	f.closeMu.Do(func() { close(f.closedCh) })
	if err := os.RemoveAll(f.root); err != nil {
		return errors.NewTransportError(BackendFile, "destroy mailbox", err)
	}
	return nil
}

func (f *FileTransport) channelDir(ch protocol.Channel) string {
	return filepath.Join(f.root, channelPrefix+strconv.FormatInt(int64(ch), 10))
}

func (f *FileTransport) exists() bool {
	_, err := os.Stat(f.root)
	return err == nil
}
