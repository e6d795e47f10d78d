// Package transfer moves filesystem trees between archives, seed
// directories and the working chroot, with hash-gated skipping on top of
// the checkpoint store.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	godigest "github.com/opencontainers/go-digest"
	"go.podman.io/storage/pkg/archive"
	"go.podman.io/storage/pkg/fileutils"
	"go.podman.io/storage/pkg/ioutils"

	"github.com/fpemud-os/gstage4/internal/digest"
	"github.com/fpemud-os/gstage4/internal/fsutil"
	"github.com/fpemud-os/gstage4/internal/logfields"
	"github.com/fpemud-os/gstage4/internal/resume"
)

// ErrFailed is wrapped by every transfer error.
var ErrFailed = errors.New("gstage4: transfer failed")

// Source is a located transfer input: either a directory or an archive
// with its codec.
type Source struct {
	Path  string
	IsDir bool
	Codec Codec
}

type (
	syncFunc  func(ctx context.Context, src, dest string) error
	untarFunc func(src, dest string) error
)

// Transferrer performs tree transfers. The sync and untar functions are
// replaceable for tests.
type Transferrer struct {
	log   *slog.Logger
	sync  syncFunc
	untar untarFunc
	gates map[string]string // source path -> gate data, hashes are expensive
}

// New returns a Transferrer using rsync for directory sources and the tar
// codec table for archives.
func New(log *slog.Logger) *Transferrer {
	if log == nil {
		log = slog.Default()
	}
	return &Transferrer{
		log:   log,
		sync:  rsyncTree,
		untar: archive.UntarPath,
		gates: make(map[string]string),
	}
}

// Locate resolves a source base path to a concrete source. A directory at
// the base path wins; otherwise archives are tried in codec table order.
func (t *Transferrer) Locate(base string) (Source, error) {
	if fsutil.IsDir(base) {
		return Source{Path: base, IsDir: true}, nil
	}
	for _, c := range codecs {
		for _, ext := range c.Extensions {
			p := base + ext
			if fileutils.Exists(p) == nil {
				return Source{Path: p, Codec: c}, nil
			}
		}
	}
	return Source{}, fmt.Errorf("%w: no source at %s (tried directory and %s)",
		ErrFailed, base, strings.Join(AcceptedExtensions(), " "))
}

// GateData computes the checkpoint payload identifying a source. Archives
// hash their content; directories are identified by path only, since a
// present seed directory is taken as-is and freshness is the sync's job.
func (t *Transferrer) GateData(src Source, algo godigest.Algorithm) (string, error) {
	if src.IsDir {
		return "dir:" + src.Path, nil
	}
	if d, ok := t.gates[src.Path]; ok {
		return d, nil
	}
	d, err := digest.Hash(src.Path, algo)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFailed, err)
	}
	t.gates[src.Path] = d.String()
	return d.String(), nil
}

// Request describes one gated transfer.
type Request struct {
	// SourceBase is resolved with Locate.
	SourceBase string
	Dest       string

	// Store and Point drive the skip gate. With a nil Store the gate
	// falls back to HashFile alone, and with neither every request
	// transfers.
	Store *resume.Store
	Point string
	Algo  godigest.Algorithm

	// ClearStore wipes all checkpoints before the destination is rewritten,
	// invalidating everything that was built on the old content.
	ClearStore bool

	// HashFile optionally mirrors the gate data next to the destination so
	// an out-of-band wipe of a cache directory invalidates the gate.
	HashFile string
}

// Result reports what a gated transfer did. Expected outcomes are data
// here, not errors.
type Result struct {
	Done    bool
	Skipped bool
	Reason  string
	Source  string
	Hash    string
}

// ExtractGated transfers the source into the destination unless the
// checkpoint gate proves the destination is already current. The gate
// requires a satisfied checkpoint, matching gate data, a matching hash
// file when configured, and an existing destination. A skipped transfer
// never touches the destination.
func (t *Transferrer) ExtractGated(ctx context.Context, req Request) (Result, error) {
	src, err := t.Locate(req.SourceBase)
	if err != nil {
		return Result{}, err
	}
	data, err := t.GateData(src, req.Algo)
	if err != nil {
		return Result{}, err
	}

	reason, valid := t.gateValid(req, data)
	if valid {
		t.log.Info("transfer skipped, checkpoint valid",
			logfields.Source(src.Path), logfields.Dest(req.Dest))
		return Result{Skipped: true, Reason: "checkpoint valid", Source: src.Path, Hash: data}, nil
	}
	if reason != "" {
		t.log.Info("transfer gate invalid", logfields.Reason(reason),
			logfields.Source(src.Path), logfields.Dest(req.Dest))
	}

	// The old checkpoint must not outlive the gate decision: a crash
	// between here and Record would leave a satisfied point over a
	// half-written destination.
	if req.Store != nil {
		if req.ClearStore {
			if err := req.Store.Clear(); err != nil {
				return Result{}, err
			}
		} else if err := req.Store.Discard(req.Point); err != nil {
			return Result{}, err
		}
	}
	if err := t.Run(ctx, src, req.Dest); err != nil {
		return Result{}, err
	}
	if req.HashFile != "" {
		if err := ioutils.AtomicWriteFile(req.HashFile, []byte(data), 0o644); err != nil {
			return Result{}, fmt.Errorf("%w: write hash file: %w", ErrFailed, err)
		}
	}
	if req.Store != nil {
		if err := req.Store.Record(req.Point, data); err != nil {
			return Result{}, err
		}
	}
	return Result{Done: true, Source: src.Path, Hash: data}, nil
}

// gateValid decides whether the destination can be kept. The empty reason
// with ok=false means there was no checkpoint to begin with.
func (t *Transferrer) gateValid(req Request, data string) (reason string, ok bool) {
	if req.Store == nil && req.HashFile == "" {
		return "", false
	}
	if req.Store != nil {
		if !req.Store.IsSatisfied(req.Point) {
			return "", false
		}
		prev, _ := req.Store.Data(req.Point)
		if prev != data {
			return "source changed", false
		}
	}
	if req.HashFile != "" {
		b, err := os.ReadFile(req.HashFile)
		if err != nil || strings.TrimSpace(string(b)) != data {
			return "cache hash mismatch", false
		}
	}
	if fileutils.Exists(req.Dest) != nil {
		return "destination missing", false
	}
	return "", true
}

// Run performs the transfer without any gating. Directory sources are
// synced with deletion of extraneous destination files; archives are
// extracted into a cleared destination.
func (t *Transferrer) Run(ctx context.Context, src Source, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if src.IsDir {
		if err := fsutil.EnsureDir(dest); err != nil {
			return err
		}
		if err := t.sync(ctx, src.Path, dest); err != nil {
			return fmt.Errorf("%w: sync %s to %s: %w", ErrFailed, src.Path, dest, err)
		}
	} else {
		if err := fsutil.ClearDir(dest); err != nil {
			return err
		}
		if err := t.untar(src.Path, dest); err != nil {
			return fmt.Errorf("%w: extract %s to %s: %w", ErrFailed, src.Path, dest, err)
		}
	}
	t.log.Info("transfer complete", logfields.Source(src.Path), logfields.Dest(dest))
	return nil
}

// CopyTree copies the contents of one directory into another, preserving
// ownership, modes and xattrs.
func (t *Transferrer) CopyTree(ctx context.Context, src, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := archive.NewDefaultArchiver().CopyWithTar(src, dest); err != nil {
		return fmt.Errorf("%w: copy %s to %s: %w", ErrFailed, src, dest, err)
	}
	return nil
}

// rsyncTree mirrors src into dest. rsync owns the delete-extraneous
// semantics seed syncing needs.
func rsyncTree(ctx context.Context, src, dest string) error {
	cmd := exec.CommandContext(ctx, "rsync", "-a", "--delete", src+"/", dest+"/")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("rsync: %v: %s", err, bytes.TrimSpace(out))
	}
	return nil
}
