//go:build linux

package chroot

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// KillProcs terminates every process whose root directory resolves into
// root and returns how many were signalled. Unreadable /proc entries are
// skipped; those belong to other users and cannot hold our mounts anyway
// when we created them. Refuses to operate on "/" so a mis-derived working
// root can never take down the host.
func KillProcs(root string) (int, error) {
	root = filepath.Clean(root)
	if root == "/" || root == "." || root == "" {
		return 0, errors.New("gstage4: refusing to kill processes rooted at /")
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, err
	}

	self := os.Getpid()
	killed := 0
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid == self {
			continue
		}
		link, err := os.Readlink(filepath.Join("/proc", e.Name(), "root"))
		if err != nil {
			continue
		}
		if link != root && !strings.HasPrefix(link, root+"/") {
			continue
		}
		if err := unix.Kill(pid, unix.SIGKILL); err == nil {
			killed++
		}
	}
	return killed, nil
}
