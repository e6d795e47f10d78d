package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
	"go.podman.io/storage/pkg/archive"

	"github.com/fpemud-os/gstage4/internal/fsutil"
	"github.com/fpemud-os/gstage4/internal/logfields"
)

// Archive packs srcDir into destBase plus the codec's canonical extension.
// The archive is written to a temporary name and renamed into place, so a
// crashed capture never leaves a plausible-looking artifact behind.
func (t *Transferrer) Archive(ctx context.Context, srcDir, destBase, codecName string) (string, error) {
	codec, ok := WriteCodec(codecName)
	if !ok {
		return "", fmt.Errorf("%w: cannot write %q archives", ErrFailed, codecName)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := fsutil.EnsureDir(filepath.Dir(destBase)); err != nil {
		return "", err
	}

	final := destBase + codec.Extensions[0]
	tmp := final + ".tmp"
	if err := t.writeArchive(srcDir, tmp, codec); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailed, err)
	}
	t.log.Info("archive written", logfields.Source(srcDir), logfields.Dest(final))
	return final, nil
}

func (t *Transferrer) writeArchive(srcDir, path string, codec Codec) error {
	rc, err := archive.TarWithOptions(srcDir, &archive.TarOptions{Compression: archive.Uncompressed})
	if err != nil {
		return fmt.Errorf("%w: tar %s: %w", ErrFailed, srcDir, err)
	}
	defer rc.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}
	defer f.Close()

	// The storage compressors cannot write xz; the xz library used for
	// reading them can.
	var w io.WriteCloser
	if codec.Compression == archive.Xz {
		w, err = xz.NewWriter(f)
	} else {
		w, err = archive.CompressStream(f, codec.Compression)
	}
	if err != nil {
		return fmt.Errorf("%w: compress %s: %w", ErrFailed, codec.Name, err)
	}

	if _, err := io.Copy(w, rc); err != nil {
		w.Close()
		return fmt.Errorf("%w: pack %s: %w", ErrFailed, srcDir, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: finish %s: %w", ErrFailed, codec.Name, err)
	}
	return f.Sync()
}
