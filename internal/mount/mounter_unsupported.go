//go:build !linux

package mount

import "errors"

var errUnsupported = errors.New("gstage4: mounts are only supported on linux")

type unsupportedMounter struct{}

func newPlatformMounter() mounter { return unsupportedMounter{} }

func (unsupportedMounter) Mount(Entry, string) error { return errUnsupported }

func (unsupportedMounter) Unmount(string) error { return errUnsupported }

func (unsupportedMounter) IsMounted(string) (bool, error) { return false, errUnsupported }
