//go:build !linux

package chroot

import "errors"

// KillProcs requires /proc root links and is only implemented on linux.
func KillProcs(root string) (int, error) {
	return 0, errors.New("gstage4: process reaping is only supported on linux")
}
