// Package mount manages the bind mounts a build needs inside its working
// root: host directories, tmpfs work areas and the shared memory mount.
//
// Mounts are applied in table order and always released in reverse. A
// failure while mounting rolls the already-mounted entries back; a failure
// while unmounting escalates to killing chroot processes and retrying
// once, and anything still stuck makes the whole release fail so callers
// never run destructive work over live mounts.
package mount

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fpemud-os/gstage4/internal/fsutil"
	"github.com/fpemud-os/gstage4/internal/logfields"
)

var (
	// ErrMountFailed is wrapped by bind errors after rollback completed.
	ErrMountFailed = errors.New("gstage4: mount failed")
	// ErrUnmountFailed means at least one mount could not be released even
	// after escalation. The working root must be treated as unsafe.
	ErrUnmountFailed = errors.New("gstage4: could not unmount one or more bind mounts")
)

// Kind selects how an entry is mounted.
type Kind int

const (
	// KindNone disables an entry: its target directory is still created
	// but nothing is mounted.
	KindNone Kind = iota
	KindBind
	KindTmpfs
	KindShm
	KindDevfs
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBind:
		return "bind"
	case KindTmpfs:
		return "tmpfs"
	case KindShm:
		return "shm"
	case KindDevfs:
		return "devfs"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Entry is one mount in the table. Target is relative to the working root.
type Entry struct {
	Name    string
	Source  string
	Target  string
	Kind    Kind
	Options string
}

// ProcKiller kills processes still holding the working root, returning how
// many were signalled. Used for unmount escalation.
type ProcKiller func(root string) (int, error)

// mounter is the syscall seam, replaced by a recording fake in tests.
type mounter interface {
	Mount(e Entry, target string) error
	Unmount(target string) error
	IsMounted(target string) (bool, error)
}

// Table tracks the configured entries and which of them are currently
// mounted, in mount order.
type Table struct {
	root    string
	entries []Entry
	mounted []string
	m       mounter
	log     *slog.Logger
}

// NewTable builds a table over the working root.
func NewTable(root string, entries []Entry, log *slog.Logger) *Table {
	if log == nil {
		log = slog.Default()
	}
	return &Table{root: root, entries: entries, m: newPlatformMounter(), log: log}
}

// Root returns the working root the table operates on.
func (t *Table) Root() string { return t.root }

// Active returns the names of currently mounted entries in mount order.
func (t *Table) Active() []string {
	out := make([]string, len(t.mounted))
	copy(out, t.mounted)
	return out
}

func (t *Table) entry(name string) (Entry, bool) {
	for _, e := range t.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

func (t *Table) target(e Entry) string {
	return filepath.Join(t.root, e.Target)
}

// BindAll mounts every enabled entry in table order. On failure the
// entries mounted so far are released again before the error is returned,
// so a failed bind never leaves the root partially mounted.
func (t *Table) BindAll(ctx context.Context) error {
	for _, e := range t.entries {
		if err := ctx.Err(); err != nil {
			return t.rollback(ctx, err)
		}
		target := t.target(e)
		if e.Kind == KindBind {
			if err := fsutil.EnsureDir(e.Source); err != nil {
				return t.rollback(ctx, err)
			}
		}
		if err := fsutil.EnsureDir(target); err != nil {
			return t.rollback(ctx, err)
		}
		if e.Kind == KindNone {
			continue
		}
		if err := t.m.Mount(e, target); err != nil {
			err = fmt.Errorf("%w: %s (%s on %s): %w", ErrMountFailed, e.Name, e.Kind, target, err)
			return t.rollback(ctx, err)
		}
		t.mounted = append(t.mounted, e.Name)
		t.log.Debug("mounted", logfields.Mount(e.Name), logfields.Path(target))
	}
	return nil
}

// rollback releases whatever BindAll already mounted and returns cause,
// joined with the release error if that failed too.
func (t *Table) rollback(ctx context.Context, cause error) error {
	if len(t.mounted) == 0 {
		return cause
	}
	t.log.Warn("bind failed, releasing mounts", logfields.Error(cause))
	if uerr := t.UnbindAll(ctx, nil); uerr != nil {
		return errors.Join(cause, uerr)
	}
	return cause
}

// UnbindAll releases the mounted entries in reverse mount order. Entries
// whose targets vanished or were unmounted externally are skipped. When an
// unmount fails, kill (if given) reaps chroot processes and the unmount is
// retried once; entries that still fail are collected and reported
// together while the rest of the table is still released.
func (t *Table) UnbindAll(ctx context.Context, kill ProcKiller) error {
	var failures []error
	var still []string

	for i := len(t.mounted) - 1; i >= 0; i-- {
		name := t.mounted[i]
		e, ok := t.entry(name)
		if !ok {
			continue
		}
		target := t.target(e)

		if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		mounted, err := t.m.IsMounted(target)
		if err != nil {
			t.log.Warn("mount state unknown, skipping", logfields.Mount(name), logfields.Error(err))
			continue
		}
		if !mounted {
			continue
		}

		if err := t.unmountWithEscalation(target, kill); err != nil {
			failures = append(failures, fmt.Errorf("%s (%s): %w", name, target, err))
			still = append([]string{name}, still...)
			continue
		}
		t.log.Debug("unmounted", logfields.Mount(name), logfields.Path(target))
	}

	t.mounted = still
	if len(failures) > 0 {
		return fmt.Errorf("%w: %w", ErrUnmountFailed, errors.Join(failures...))
	}
	return nil
}

func (t *Table) unmountWithEscalation(target string, kill ProcKiller) error {
	err := t.m.Unmount(target)
	if err == nil {
		return nil
	}
	if kill != nil {
		n, kerr := kill(t.root)
		if kerr != nil {
			t.log.Warn("killing chroot processes failed", logfields.Error(kerr))
		} else if n > 0 {
			t.log.Warn("killed processes holding the build root", logfields.Count(n))
		}
	}
	return t.m.Unmount(target)
}

// SafetyCheck scans for mounts left active under the root, for example by
// a crashed previous run, and releases them. It must pass before any
// destructive operation on the root. Failure to release is terminal.
func (t *Table) SafetyCheck(ctx context.Context, kill ProcKiller) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var active []string
	for _, e := range t.entries {
		if e.Kind == KindNone {
			continue
		}
		target := t.target(e)
		if _, err := os.Stat(target); err != nil {
			continue
		}
		mounted, err := t.m.IsMounted(target)
		if err != nil || !mounted {
			continue
		}
		active = append(active, e.Name)
	}
	if len(active) == 0 {
		return nil
	}

	t.log.Warn("active mounts found under build root", slog.Any("mounts", active))
	t.mounted = active
	return t.UnbindAll(ctx, kill)
}
