package build

import (
	"context"
	"os"

	"github.com/fpemud-os/gstage4/internal/config"
	"github.com/fpemud-os/gstage4/internal/fsutil"
	"github.com/fpemud-os/gstage4/internal/logfields"
	"github.com/fpemud-os/gstage4/internal/pipeline"
	"github.com/fpemud-os/gstage4/internal/transfer"
)

// unpack populates the working root from the seed stage. With the seedcache
// option a previously built chroot tree is preferred over the stage archive.
// The transfer gates itself on the seed content hash; a changed seed clears
// every resume point and starts the tree over.
func (b *Builder) unpack(ctx context.Context) (pipeline.Result, error) {
	source := b.paths.SourceBase
	if b.profile.Options.Has(config.OptSeedCache) && fsutil.IsDir(b.paths.SeedDir) {
		b.log.Info("using cached seed tree", logfields.Source(b.paths.SeedDir))
		source = b.paths.SeedDir
	}

	res, err := b.xfer.ExtractGated(ctx, transfer.Request{
		SourceBase: source,
		Dest:       b.paths.ChrootDir,
		Store:      b.store,
		Point:      "unpack",
		Algo:       b.hashAlgo(),
		ClearStore: true,
	})
	if err != nil {
		return fail(err)
	}
	if res.Skipped {
		return skipped(res.Reason)
	}

	// Seed stages do not always ship a world-writable /tmp.
	tmp := b.chrootPath("tmp")
	if err := fsutil.EnsureDir(tmp); err != nil {
		return fail(err)
	}
	if err := os.Chmod(tmp, 0o777|os.ModeSticky); err != nil {
		return fail(err)
	}
	return done(res.Hash)
}

// unpackRepo extracts the repository snapshot. With the snapcache option the
// snapshot lands in a shared cache directory gated by an on-disk hash file
// and is bind-mounted into the chroot later; otherwise it is extracted
// directly into the chroot's repo location and gated by the resume store.
func (b *Builder) unpackRepo(ctx context.Context) (pipeline.Result, error) {
	req := transfer.Request{
		SourceBase: b.paths.SnapshotBase,
		Dest:       b.paths.ChrootRepoDir,
		Store:      b.store,
		Point:      "unpack_repo",
		Algo:       b.hashAlgo(),
	}
	if b.profile.Options.Has(config.OptSnapCache) {
		req.Dest = b.paths.SnapcacheRepo
		req.Store = nil
		req.Point = ""
		req.HashFile = b.paths.SnapcacheHashFile
	}

	res, err := b.xfer.ExtractGated(ctx, req)
	if err != nil {
		return fail(err)
	}
	if res.Skipped {
		return skipped(res.Reason)
	}
	return done(res.Hash)
}
