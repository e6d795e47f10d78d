// Package resume persists per-stage checkpoints so an interrupted build can
// continue where it stopped.
//
// A store is a flat directory, one file per checkpoint, named after the
// stage. The file payload is optional stage data such as a source hash.
// Records are written atomically so a crash never leaves a half-written
// checkpoint behind.
package resume

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.podman.io/storage/pkg/fileutils"
	"go.podman.io/storage/pkg/ioutils"
)

// ErrStoreUnavailable means the checkpoint directory could not be prepared.
// It is fatal before any stage runs.
var ErrStoreUnavailable = errors.New("gstage4: checkpoint store unavailable")

// Store is the checkpoint store for one working root. A disabled store
// answers negatively and ignores writes, but never errors.
type Store struct {
	dir     string
	enabled bool
	log     *slog.Logger
}

// Open prepares the store directory when enabled.
func Open(dir string, enabled bool, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if enabled {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, dir, err)
		}
	}
	return &Store{dir: dir, enabled: enabled, log: log}, nil
}

// Enabled reports whether checkpoints are being tracked.
func (s *Store) Enabled() bool { return s.enabled }

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// IsSatisfied reports whether the named checkpoint has been recorded.
func (s *Store) IsSatisfied(point string) bool {
	if !s.enabled {
		return false
	}
	return fileutils.Exists(s.path(point)) == nil
}

// Record marks the checkpoint as reached, storing optional data with it.
func (s *Store) Record(point, data string) error {
	if !s.enabled {
		return nil
	}
	if err := ioutils.AtomicWriteFile(s.path(point), []byte(data), 0o644); err != nil {
		return fmt.Errorf("record checkpoint %s: %w", point, err)
	}
	s.log.Debug("checkpoint recorded", slog.String("point", point))
	return nil
}

// Data returns the payload recorded with the checkpoint.
func (s *Store) Data(point string) (string, bool) {
	if !s.enabled {
		return "", false
	}
	b, err := os.ReadFile(s.path(point))
	if err != nil {
		return "", false
	}
	return string(b), true
}

// Discard removes one checkpoint. A missing checkpoint is a no-op.
func (s *Store) Discard(point string) error {
	if !s.enabled {
		return nil
	}
	if err := os.Remove(s.path(point)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard checkpoint %s: %w", point, err)
	}
	return nil
}

// Clear removes every checkpoint but keeps the store directory.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("clear checkpoints: %w", err)
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("clear checkpoints: %w", err)
		}
	}
	s.log.Debug("checkpoints cleared", slog.String("dir", s.dir))
	return nil
}

// Remove deletes the store directory tree entirely.
func (s *Store) Remove() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove checkpoint store: %w", err)
	}
	return nil
}

func (s *Store) path(point string) string {
	return filepath.Join(s.dir, point)
}
