package pipeline

import (
	"errors"
	"fmt"

	"go.podman.io/storage/pkg/lockfile"
)

// ErrBusy means another process holds the lock for this working root.
var ErrBusy = errors.New("gstage4: working root is locked by another process")

// AcquireLock takes the cross-process lock guarding one working root. With
// block set it waits for the current holder; otherwise a held lock fails
// with ErrBusy. The returned release function must be called exactly once.
func AcquireLock(path string, block bool) (release func(), err error) {
	lf, err := lockfile.GetLockFile(path)
	if err != nil {
		return nil, fmt.Errorf("create lock file %s: %w", path, err)
	}

	if block {
		lf.Lock()
	} else if err := lf.TryLock(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBusy, path)
	}
	return lf.Unlock, nil
}
