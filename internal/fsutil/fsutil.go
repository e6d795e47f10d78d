// Package fsutil provides small filesystem helpers shared by the build stages.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir %s: %w", dir, err)
	}
	return nil
}

// EnsureDirs creates every listed directory.
func EnsureDirs(dirs ...string) error {
	for _, d := range dirs {
		if err := EnsureDir(d); err != nil {
			return err
		}
	}
	return nil
}

// ClearDir removes the contents of dir but keeps the directory itself.
// A missing dir is created empty.
func ClearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return EnsureDir(dir)
		}
		return fmt.Errorf("clear dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("clear dir %s: %w", dir, err)
		}
	}
	return nil
}

// ClearPath removes path entirely, whether file, symlink or directory tree.
func ClearPath(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("clear path %s: %w", path, err)
	}
	return nil
}

// ClearGlob removes everything matching the glob pattern. Patterns with no
// matches are a no-op, mirroring shell rm -rf on an empty glob.
func ClearGlob(pattern string) error {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("clear glob %s: %w", pattern, err)
	}
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			return fmt.Errorf("clear glob %s: %w", pattern, err)
		}
	}
	return nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// CopyFile copies src to dst, replacing dst and preserving the source's
// permission bits.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}
