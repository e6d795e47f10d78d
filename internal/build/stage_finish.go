package build

import (
	"context"
	"os"

	godigest "github.com/opencontainers/go-digest"

	"github.com/fpemud-os/gstage4/internal/chroot"
	"github.com/fpemud-os/gstage4/internal/config"
	"github.com/fpemud-os/gstage4/internal/digest"
	"github.com/fpemud-os/gstage4/internal/fsutil"
	"github.com/fpemud-os/gstage4/internal/logfields"
	"github.com/fpemud-os/gstage4/internal/pipeline"
)

// removeStage deletes profile-listed paths from the finished tree.
func (b *Builder) removeStage(ctx context.Context) (pipeline.Result, error) {
	for _, x := range b.profile.Rm {
		b.log.Info("removing", logfields.Path(x))
		if err := fsutil.ClearPath(b.chrootPath(x)); err != nil {
			return fail(err)
		}
	}
	return done("")
}

// emptyStage clears the contents of profile-listed directories. Paths that
// are not real directories are skipped with a warning, matching the
// behavior for removed-then-emptied paths across profiles.
func (b *Builder) emptyStage(ctx context.Context) (pipeline.Result, error) {
	for _, x := range b.profile.Empty {
		target := b.chrootPath(x)
		fi, err := os.Lstat(target)
		if err != nil || !fi.IsDir() {
			b.log.Warn("not a directory, skipping", logfields.Path(x))
			continue
		}
		b.log.Info("emptying directory", logfields.Path(x))
		if err := fsutil.ClearDir(target); err != nil {
			return fail(err)
		}
	}
	return done("")
}

func (b *Builder) unbindStage(ctx context.Context) (pipeline.Result, error) {
	if err := b.mounts.UnbindAll(ctx, chroot.KillProcs); err != nil {
		return fail(err)
	}
	return done("")
}

// captureStage archives the finished working root into the final artifact
// and writes the contents listing and digest manifest next to it when the
// profile asks for them.
func (b *Builder) captureStage(ctx context.Context) (pipeline.Result, error) {
	artifact, err := b.xfer.Archive(ctx, b.paths.ChrootDir, b.paths.TargetBase, b.profile.CompressionMode)
	if err != nil {
		return fail(err)
	}
	b.log.Info("capture complete", logfields.Path(artifact))

	if b.profile.Contents {
		if _, err := digest.WriteContents(artifact); err != nil {
			return fail(err)
		}
	}
	if len(b.profile.Digests) > 0 {
		algos := make([]godigest.Algorithm, 0, len(b.profile.Digests))
		for _, name := range b.profile.Digests {
			if algo, ok := digest.Known(name); ok {
				algos = append(algos, algo)
			}
		}
		if _, err := digest.WriteDigests(artifact, algos); err != nil {
			return fail(err)
		}
	}
	return done(artifact)
}

// clearResume wipes resume points but keeps the working tree, for the
// keepwork completion flavor.
func (b *Builder) clearResume(ctx context.Context) (pipeline.Result, error) {
	if err := b.store.Clear(); err != nil {
		return fail(err)
	}
	return done("")
}

func (b *Builder) removeResume(ctx context.Context) (pipeline.Result, error) {
	if err := b.store.Remove(); err != nil {
		return fail(err)
	}
	return done("")
}

// removeChroot discards the working root. The safety check is what makes
// this destructive step legal: it refuses while anything is still mounted
// underneath.
func (b *Builder) removeChroot(ctx context.Context) (pipeline.Result, error) {
	if err := b.mounts.SafetyCheck(ctx, chroot.KillProcs); err != nil {
		return fail(err)
	}
	if err := fsutil.ClearPath(b.paths.ChrootDir); err != nil {
		return fail(err)
	}
	return done("")
}

// purgeStage resets the working state before (or instead of) a build:
// resume points, the working tree, and unless tmpOnly the binary package
// and kernel caches too.
func (b *Builder) purgeStage(tmpOnly bool) pipeline.Stage {
	run := func(ctx context.Context) (pipeline.Result, error) {
		b.log.Info("purging working state", logfields.Path(b.paths.ChrootDir))
		if err := b.store.Clear(); err != nil {
			return fail(err)
		}
		if err := b.mounts.SafetyCheck(ctx, chroot.KillProcs); err != nil {
			return fail(err)
		}
		if err := fsutil.ClearDir(b.paths.ChrootDir); err != nil {
			return fail(err)
		}
		if tmpOnly {
			return done("")
		}
		if b.profile.Options.Has(config.OptPkgCache) {
			if err := fsutil.ClearDir(b.paths.PkgcacheDir); err != nil {
				return fail(err)
			}
		}
		if b.profile.Options.Has(config.OptKernCache) {
			if err := fsutil.ClearDir(b.paths.KerncacheDir); err != nil {
				return fail(err)
			}
		}
		return done("")
	}
	return pipeline.Stage{Name: "purge", Run: run}
}
