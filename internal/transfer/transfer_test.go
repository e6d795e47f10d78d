package transfer

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	godigest "github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.podman.io/storage/pkg/archive"

	"github.com/fpemud-os/gstage4/internal/resume"
)

func newTestTransferrer(t *testing.T) *Transferrer {
	t.Helper()
	x := New(nil)
	// Tests never shell out or hit the real extractor unless they opt in.
	x.sync = func(ctx context.Context, src, dest string) error {
		t.Fatalf("unexpected sync %s -> %s", src, dest)
		return nil
	}
	x.untar = func(src, dest string) error {
		t.Fatalf("unexpected untar %s -> %s", src, dest)
		return nil
	}
	return x
}

func openStore(t *testing.T) *resume.Store {
	t.Helper()
	s, err := resume.Open(filepath.Join(t.TempDir(), "autoresume"), true, nil)
	require.NoError(t, err)
	return s
}

func TestLocatePrefersDirectory(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "stage3")
	require.NoError(t, os.Mkdir(base, 0o755))
	require.NoError(t, os.WriteFile(base+".tar.xz", []byte("x"), 0o644))

	src, err := New(nil).Locate(base)
	require.NoError(t, err)
	assert.True(t, src.IsDir)
	assert.Equal(t, base, src.Path)
}

func TestLocateArchiveOrder(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "stage3")
	require.NoError(t, os.WriteFile(base+".tar.gz", []byte("gz"), 0o644))
	require.NoError(t, os.WriteFile(base+".tbz2", []byte("bz"), 0o644))

	src, err := New(nil).Locate(base)
	require.NoError(t, err)
	assert.False(t, src.IsDir)
	assert.Equal(t, base+".tbz2", src.Path, "bz2 precedes gz in the codec table")
	assert.Equal(t, "tar.bz2", src.Codec.Name)
}

func TestLocateMissing(t *testing.T) {
	_, err := New(nil).Locate(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailed)
}

func TestGateData(t *testing.T) {
	x := New(nil)

	dirSrc := Source{Path: "/some/seed", IsDir: true}
	data, err := x.GateData(dirSrc, godigest.SHA512)
	require.NoError(t, err)
	assert.Equal(t, "dir:/some/seed", data)

	path := filepath.Join(t.TempDir(), "a.tar")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
	first, err := x.GateData(Source{Path: path}, godigest.SHA512)
	require.NoError(t, err)
	assert.Equal(t, godigest.SHA512.FromBytes([]byte("content")).String(), first)

	// The gate data is cached per path for the life of the Transferrer.
	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))
	second, err := x.GateData(Source{Path: path}, godigest.SHA512)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func gatedFixture(t *testing.T) (x *Transferrer, req Request) {
	t.Helper()
	dir := t.TempDir()
	base := filepath.Join(dir, "stage3")
	require.NoError(t, os.WriteFile(base+".tar.xz", []byte("seed archive"), 0o644))
	dest := filepath.Join(dir, "chroot")
	require.NoError(t, os.MkdirAll(dest, 0o755))

	x = newTestTransferrer(t)
	return x, Request{
		SourceBase: base,
		Dest:       dest,
		Store:      openStore(t),
		Point:      "unpack",
		Algo:       godigest.SHA512,
	}
}

func TestExtractGatedSkips(t *testing.T) {
	x, req := gatedFixture(t)

	hash := godigest.SHA512.FromBytes([]byte("seed archive")).String()
	require.NoError(t, req.Store.Record("unpack", hash))

	// The fatal test doubles prove the destination is never written.
	res, err := x.ExtractGated(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.False(t, res.Done)
	assert.Equal(t, hash, res.Hash)
}

func TestExtractGatedSourceChanged(t *testing.T) {
	x, req := gatedFixture(t)
	req.ClearStore = true

	require.NoError(t, req.Store.Record("unpack", "sha512:stale"))
	require.NoError(t, req.Store.Record("run_local", ""))

	var untarred []string
	x.untar = func(src, dest string) error {
		untarred = append(untarred, src)
		return nil
	}

	res, err := x.ExtractGated(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Done)
	require.Len(t, untarred, 1)

	// Downstream checkpoints died with the old chroot; unpack re-recorded.
	assert.False(t, req.Store.IsSatisfied("run_local"))
	data, ok := req.Store.Data("unpack")
	require.True(t, ok)
	assert.Equal(t, res.Hash, data)
}

func TestExtractGatedFailureDropsStalePoint(t *testing.T) {
	x, req := gatedFixture(t)

	require.NoError(t, req.Store.Record("unpack", "sha512:stale"))

	x.untar = func(src, dest string) error {
		return errors.New("short read")
	}

	_, err := x.ExtractGated(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailed)

	// A rerun must see the stage as never-started, not as satisfied with
	// stale data over a half-written destination.
	assert.False(t, req.Store.IsSatisfied("unpack"))
}

func TestExtractGatedDestMissing(t *testing.T) {
	x, req := gatedFixture(t)

	hash := godigest.SHA512.FromBytes([]byte("seed archive")).String()
	require.NoError(t, req.Store.Record("unpack", hash))
	require.NoError(t, os.RemoveAll(req.Dest))

	ran := false
	x.untar = func(src, dest string) error {
		ran = true
		return nil
	}

	res, err := x.ExtractGated(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Done, "matching hash with a missing destination must re-extract")
	assert.True(t, ran)
}

func TestExtractGatedHashFile(t *testing.T) {
	x, req := gatedFixture(t)
	req.HashFile = filepath.Join(filepath.Dir(req.Dest), ".gstage4-hash")

	hash := godigest.SHA512.FromBytes([]byte("seed archive")).String()
	require.NoError(t, req.Store.Record("unpack", hash))
	require.NoError(t, os.WriteFile(req.HashFile, []byte("sha512:wiped"), 0o644))

	ran := false
	x.untar = func(src, dest string) error {
		ran = true
		return nil
	}

	res, err := x.ExtractGated(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, ran, "a mismatching cache hash file must force the transfer")
	assert.True(t, res.Done)

	b, err := os.ReadFile(req.HashFile)
	require.NoError(t, err)
	assert.Equal(t, hash, string(b))
}

func TestExtractGatedNoStore(t *testing.T) {
	x, req := gatedFixture(t)
	req.Store = nil

	ran := 0
	x.untar = func(src, dest string) error {
		ran++
		return nil
	}

	for range 2 {
		res, err := x.ExtractGated(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, res.Done)
	}
	assert.Equal(t, 2, ran, "without a store every call transfers")
}

func TestRunDirSource(t *testing.T) {
	x := newTestTransferrer(t)
	var gotSrc, gotDest string
	x.sync = func(ctx context.Context, src, dest string) error {
		gotSrc, gotDest = src, dest
		return nil
	}

	dir := t.TempDir()
	dest := filepath.Join(dir, "chroot")
	require.NoError(t, x.Run(context.Background(), Source{Path: "/seed", IsDir: true}, dest))
	assert.Equal(t, "/seed", gotSrc)
	assert.Equal(t, dest, gotDest)
	assert.DirExists(t, dest)
}

func TestRunSyncError(t *testing.T) {
	x := newTestTransferrer(t)
	x.sync = func(ctx context.Context, src, dest string) error {
		return errors.New("rsync: connection gone")
	}
	err := x.Run(context.Background(), Source{Path: "/seed", IsDir: true}, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailed)
}

func TestArchive(t *testing.T) {
	x := New(nil)
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "etc-hostname"), []byte("buildhost"), 0o644))

	destBase := filepath.Join(t.TempDir(), "builds", "stage4-amd64-2026.1")
	final, err := x.Archive(context.Background(), srcDir, destBase, "tar.gz")
	require.NoError(t, err)
	assert.Equal(t, destBase+".tar.gz", final)
	assert.NoFileExists(t, final+".tmp")

	// Read it back through the codec machinery and look for the member.
	f, err := os.Open(final)
	require.NoError(t, err)
	defer f.Close()
	rc, err := archive.DecompressStream(f)
	require.NoError(t, err)
	defer rc.Close()

	found := false
	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if filepath.Base(hdr.Name) == "etc-hostname" {
			found = true
		}
	}
	assert.True(t, found, "archive should contain the packed file")
}

func TestArchiveRejectsReadOnlyCodec(t *testing.T) {
	x := New(nil)
	_, err := x.Archive(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "out"), "tar.bz2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailed)
}

func TestCodecTable(t *testing.T) {
	c, ok := CodecByName("tar.xz")
	require.True(t, ok)
	assert.Equal(t, ".tar.xz", c.Extensions[0])

	_, ok = WriteCodec("tar.bz2")
	assert.False(t, ok, "bzip2 archives are read-only")

	assert.Contains(t, CodecNames(), "tar.zst")
	assert.Contains(t, AcceptedExtensions(), ".tbz2")
}
