//go:build linux

package mount

import (
	"fmt"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

// unixMounter drives the real mount syscalls.
type unixMounter struct{}

func newPlatformMounter() mounter { return unixMounter{} }

func (unixMounter) Mount(e Entry, target string) error {
	switch e.Kind {
	case KindBind:
		return unix.Mount(e.Source, target, "", unix.MS_BIND, "")
	case KindTmpfs:
		source := e.Source
		if source == "" {
			source = "tmpfs"
		}
		return unix.Mount(source, target, "tmpfs", 0, e.Options)
	case KindShm:
		return unix.Mount("shmfs", target, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, e.Options)
	case KindDevfs:
		// Only meaningful on FreeBSD style hosts; kept so a table built for
		// one is rejected loudly rather than silently skipped.
		return unix.Mount("none", target, "devfs", 0, "")
	}
	return fmt.Errorf("unmountable kind %s", e.Kind)
}

func (unixMounter) Unmount(target string) error {
	return unix.Unmount(target, 0)
}

func (unixMounter) IsMounted(target string) (bool, error) {
	return mountinfo.Mounted(target)
}
