package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/session"
)

// SnapshotFileName is the live session listing within the mailbox directory.
const SnapshotFileName = "sessions.yaml"

// Snapshot is the dispatcher's view of its live sessions.
type Snapshot struct {
	PID       int                   `yaml:"pid"`
	Backend   string                `yaml:"backend"`
	UpdatedAt time.Time             `yaml:"updated_at"`
	Accepted  int                   `yaml:"accepted"`
	Sessions  []session.SessionInfo `yaml:"sessions"`
}

// WriteSnapshot replaces the snapshot in dir atomically.
func WriteSnapshot(dir string, s Snapshot) error {
	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := filepath.Join(dir, SnapshotFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads the snapshot in dir. It returns a NotFoundError when no
// dispatcher has written one.
func ReadSnapshot(dir string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, SnapshotFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("snapshot", dir).WithCause(err)
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &s, nil
}

// RemoveSnapshot deletes the snapshot in dir. A missing snapshot is not an error.
func RemoveSnapshot(dir string) error {
	err := os.Remove(filepath.Join(dir, SnapshotFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
