package notify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/logging"
)

const (
	// signalsDir is the directory name within the base directory that holds markers.
	signalsDir = "signals"

	// rescanInterval picks up markers whose create event was lost.
	rescanInterval = time.Second
)

// FileSignal raises cancellations as marker files in {dir}/signals.
type FileSignal struct {
	dir    string
	logger *logging.Logger
}

// NewFileSignal creates a FileSignal rooted at the given base directory.
// A nil logger discards output.
func NewFileSignal(dir string, logger *logging.Logger) *FileSignal {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &FileSignal{
		dir:    filepath.Join(dir, signalsDir),
		logger: logger.WithComponent("notify"),
	}
}

// Dir returns the marker directory.
func (s *FileSignal) Dir() string {
	return s.dir
}

// Cancel creates the marker for sessionID. Creating an existing marker is
// not an error.
func (s *FileSignal) Cancel(_ context.Context, sessionID string) error {
	if err := validateID(sessionID); err != nil {
		return err
	}
	if _, err := os.Stat(s.dir); err != nil {
		if os.IsNotExist(err) {
			return errors.ErrMailboxNotFound
		}
		return errors.NewTransportError("file", "cancel", err)
	}

	tmp := filepath.Join(s.dir, "."+sessionID+".tmp")
	if err := os.WriteFile(tmp, nil, 0o644); err != nil {
		return errors.NewTransportError("file", "cancel", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, sessionID)); err != nil {
		_ = os.Remove(tmp)
		return errors.NewTransportError("file", "cancel", err)
	}
	return nil
}

// Listen watches the marker directory and calls handler once per marker.
// Markers left over from before Listen started are delivered first.
func (s *FileSignal) Listen(ctx context.Context, handler func(sessionID string)) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.NewTransportError("file", "listen", err).WithRetryable(false)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("fsnotify unavailable, polling for cancel markers", "error", err.Error())
	} else {
		defer func() { _ = watcher.Close() }()
		if err := watcher.Add(s.dir); err != nil {
			s.logger.Warn("failed to watch cancel markers, polling", "error", err.Error())
		}
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if watcher != nil {
		events = watcher.Events
		errs = watcher.Errors
	}

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	s.scan(handler)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			s.deliver(filepath.Base(ev.Name), handler)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("cancel marker watch error", "error", err.Error())

		case <-ticker.C:
			s.scan(handler)
		}
	}
}

// scan delivers every marker currently present.
func (s *FileSignal) scan(handler func(string)) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("failed to scan cancel markers", "error", err.Error())
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		s.deliver(e.Name(), handler)
	}
}

// deliver consumes the marker name and calls handler. Removing the marker
// first means a marker seen by both the watcher and a rescan is handled once.
func (s *FileSignal) deliver(name string, handler func(string)) {
	if strings.HasPrefix(name, ".") {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		return
	}
	s.logger.Debug("cancel signal received", "session_id", name)
	handler(name)
}
