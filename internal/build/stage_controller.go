package build

import (
	"context"
	"fmt"
	"sort"

	"go.podman.io/storage/pkg/ioutils"

	"github.com/fpemud-os/gstage4/internal/chroot"
	"github.com/fpemud-os/gstage4/internal/config"
	"github.com/fpemud-os/gstage4/internal/fsutil"
	"github.com/fpemud-os/gstage4/internal/logfields"
	"github.com/fpemud-os/gstage4/internal/pipeline"
)

// Stages in this file hand control to the target's controller script. The
// script's exit code is the only success signal observed; everything it
// prints goes straight to the build's stdout and stderr.

// runLocal executes the target's main build script. Targets without a
// controller script simply have nothing to run here.
func (b *Builder) runLocal(ctx context.Context) (pipeline.Result, error) {
	if !b.ctl.Available() {
		return skipped("no controller script")
	}
	if err := b.ctl.Run(ctx, "run"); err != nil {
		return fail(err)
	}
	return done("")
}

func (b *Builder) buildPackages(ctx context.Context) (pipeline.Result, error) {
	if err := b.ctl.Run(ctx, "build_packages", b.profile.Packages...); err != nil {
		return fail(err)
	}
	return done("")
}

// buildKernel merges every configured kernel in name order. Each kernel
// keeps its own resume point so a failed kernel N does not force kernels
// 1..N-1 to rebuild on the next run.
func (b *Builder) buildKernel(ctx context.Context) (pipeline.Result, error) {
	if err := b.ctl.Run(ctx, "pre-kmerge"); err != nil {
		return fail(err)
	}

	names := make([]string, 0, len(b.profile.Kernels))
	for name := range b.profile.Kernels {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		point := "build_kernel_" + name
		if b.store.IsSatisfied(point) {
			b.log.Info("kernel already built, skipping", logfields.Path(name))
			continue
		}
		extra := chroot.KernelEnv(b.profile.Kernels[name])
		if err := b.ctl.RunWith(ctx, extra, "kernel", name); err != nil {
			return fail(err)
		}
		if err := b.store.Record(point, ""); err != nil {
			return fail(err)
		}
	}

	if err := b.ctl.Run(ctx, "post-kmerge"); err != nil {
		return fail(err)
	}
	return done("")
}

func (b *Builder) bootloader(ctx context.Context) (pipeline.Result, error) {
	if err := b.ctl.Run(ctx, "bootloader", b.paths.TargetBase); err != nil {
		return fail(err)
	}
	return done("")
}

// rcUpdate adjusts runlevel membership; the service lists travel in the
// controller environment.
func (b *Builder) rcUpdate(ctx context.Context) (pipeline.Result, error) {
	if err := b.ctl.Run(ctx, "rc-update"); err != nil {
		return fail(err)
	}
	return done("")
}

func (b *Builder) livecdUpdate(ctx context.Context) (pipeline.Result, error) {
	if err := b.ctl.Run(ctx, "livecd-update"); err != nil {
		return fail(err)
	}
	return done("")
}

func (b *Builder) preclean(ctx context.Context) (pipeline.Result, error) {
	if err := b.ctl.Run(ctx, "preclean"); err != nil {
		return fail(err)
	}
	return done("")
}

func (b *Builder) unmergeStage(ctx context.Context) (pipeline.Result, error) {
	if err := b.ctl.Run(ctx, "unmerge", b.profile.Unmerge...); err != nil {
		return fail(err)
	}
	return done("")
}

// cleanStage undoes the chroot_setup mutations and strips build-time litter
// before the tree is captured. Requires the tree to be unbound already.
func (b *Builder) cleanStage(ctx context.Context) (pipeline.Result, error) {
	for _, pat := range []string{"etc/resolv.conf", "var/tmp/*", "tmp/*", "root/*"} {
		if err := fsutil.ClearGlob(b.chrootPath(pat)); err != nil {
			return fail(err)
		}
	}

	if err := restoreStash(b.chrootPath("etc/hosts"), false); err != nil {
		return fail(err)
	}
	if b.profile.Interpreter != "" {
		if err := restoreStash(b.chrootPath(b.profile.Interpreter), true); err != nil {
			return fail(err)
		}
	}

	if !b.profile.Options.Has(config.OptStickyConfig) {
		if err := fsutil.ClearPath(b.chrootPath(localOverlay)); err != nil {
			return fail(err)
		}
		conf := b.makeConf(false)
		if err := ioutils.AtomicWriteFile(b.chrootPath("etc/portage/make.conf"), []byte(conf), 0o644); err != nil {
			return fail(fmt.Errorf("write make.conf: %w", err))
		}
	}

	if b.ctl.Available() {
		if err := b.ctl.Run(ctx, "clean"); err != nil {
			return fail(err)
		}
	}
	return done("")
}

func (b *Builder) targetSetup(ctx context.Context) (pipeline.Result, error) {
	if err := b.ctl.Run(ctx, "target_image_setup", b.paths.TargetBase); err != nil {
		return fail(err)
	}
	return done("")
}
