package digest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	godigest "github.com/opencontainers/go-digest"
	"go.podman.io/storage/pkg/archive"
	"go.podman.io/storage/pkg/ioutils"
)

// WriteDigests writes <artifact>.DIGESTS containing one section per
// algorithm in the classic release-media format:
//
//	# SHA512 HASH
//	<hex>  <basename>
func WriteDigests(artifact string, algos []godigest.Algorithm) (string, error) {
	var buf bytes.Buffer
	base := filepath.Base(artifact)
	for _, algo := range algos {
		d, err := Hash(artifact, algo)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&buf, "# %s HASH\n", strings.ToUpper(string(algo)))
		fmt.Fprintf(&buf, "%s  %s\n", d.Encoded(), base)
	}

	out := artifact + ".DIGESTS"
	if err := ioutils.AtomicWriteFile(out, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write digests: %w", err)
	}
	return out, nil
}

// WriteContents writes <artifact>.CONTENTS.gz, a gzip-compressed listing of
// the tar members (mode, size, name per line).
func WriteContents(artifact string) (string, error) {
	f, err := os.Open(artifact)
	if err != nil {
		return "", fmt.Errorf("write contents: %w", err)
	}
	defer f.Close()

	rc, err := archive.DecompressStream(f)
	if err != nil {
		return "", fmt.Errorf("write contents: %w", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("write contents: %w", err)
		}
		fmt.Fprintf(gz, "%s %12d %s\n", hdr.FileInfo().Mode(), hdr.Size, hdr.Name)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("write contents: %w", err)
	}

	out := artifact + ".CONTENTS.gz"
	if err := ioutils.AtomicWriteFile(out, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write contents: %w", err)
	}
	return out, nil
}
