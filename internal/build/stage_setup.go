package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.podman.io/storage/pkg/fileutils"
	"go.podman.io/storage/pkg/ioutils"

	"github.com/fpemud-os/gstage4/internal/chroot"
	"github.com/fpemud-os/gstage4/internal/config"
	"github.com/fpemud-os/gstage4/internal/fsutil"
	"github.com/fpemud-os/gstage4/internal/logfields"
	"github.com/fpemud-os/gstage4/internal/pipeline"
)

// configProfileLink points /etc/portage/make.profile at the requested
// profile inside the repo tree. The link is relative so it stays valid
// both inside and outside the chroot.
func (b *Builder) configProfileLink(ctx context.Context) (pipeline.Result, error) {
	if err := fsutil.EnsureDir(b.chrootPath("etc/portage")); err != nil {
		return fail(err)
	}
	link := b.chrootPath("etc/portage/make.profile")
	if err := fsutil.ClearPath(link); err != nil {
		return fail(err)
	}
	rel := filepath.Join("../../var/db/repos", b.paths.RepoName, "profiles", b.profile.Profile)
	if err := os.Symlink(rel, link); err != nil {
		return fail(fmt.Errorf("profile link: %w", err))
	}
	return done(b.profile.Profile)
}

// setupConfdir overlays the host portage configuration directory onto the
// chroot's /etc/portage.
func (b *Builder) setupConfdir(ctx context.Context) (pipeline.Result, error) {
	if !fsutil.IsDir(b.profile.PortageConfDir) {
		return fail(fmt.Errorf("portage_confdir %s is not a directory", b.profile.PortageConfDir))
	}
	if err := b.xfer.CopyTree(ctx, b.profile.PortageConfDir, b.chrootPath("etc/portage")); err != nil {
		return fail(err)
	}
	return done("")
}

// portageOverlay merges every configured overlay tree into the chroot's
// local repository. Missing overlays are logged and skipped.
func (b *Builder) portageOverlay(ctx context.Context) (pipeline.Result, error) {
	copied := 0
	for _, src := range b.profile.PortageOverlay {
		if !fsutil.IsDir(src) {
			b.log.Warn("overlay missing, skipping", logfields.Source(src))
			continue
		}
		b.log.Info("copying overlay", logfields.Source(src), logfields.Dest(localOverlay))
		if err := b.xfer.CopyTree(ctx, src, b.chrootPath(localOverlay)); err != nil {
			return fail(err)
		}
		copied++
	}
	if copied == 0 {
		return skipped("no overlay trees found")
	}
	return done("")
}

// baseDirs guarantees the directories every later stage assumes, with the
// sticky bit on the world-writable ones.
func (b *Builder) baseDirs(ctx context.Context) (pipeline.Result, error) {
	if err := fsutil.EnsureDirs(
		b.chrootPath("etc"),
		b.chrootPath("root"),
		b.chrootPath("tmp"),
		b.chrootPath("var/tmp"),
	); err != nil {
		return fail(err)
	}
	for _, d := range []string{"tmp", "var/tmp"} {
		if err := os.Chmod(b.chrootPath(d), 0o777|os.ModeSticky); err != nil {
			return fail(err)
		}
	}
	return done("")
}

func (b *Builder) bindStage(ctx context.Context) (pipeline.Result, error) {
	if err := b.mounts.BindAll(ctx); err != nil {
		return fail(err)
	}
	return done("")
}

// chrootSetup prepares the tree for chrooted execution: name resolution,
// the hosts file, an optional foreign-arch interpreter, and make.conf.
// Files it replaces are kept next to the original with a .gstage4 suffix
// so the clean stage can restore them.
func (b *Builder) chrootSetup(ctx context.Context) (pipeline.Result, error) {
	if err := fsutil.EnsureDir(b.chrootPath("etc")); err != nil {
		return fail(err)
	}
	if err := fsutil.CopyFile("/etc/resolv.conf", b.chrootPath("etc/resolv.conf")); err != nil {
		return fail(err)
	}

	hosts := b.chrootPath("etc/hosts")
	if err := stashFile(hosts); err != nil {
		return fail(err)
	}
	if err := fsutil.CopyFile("/etc/hosts", hosts); err != nil {
		return fail(err)
	}

	if b.profile.Interpreter != "" {
		dest := b.chrootPath(b.profile.Interpreter)
		if err := fsutil.EnsureDir(filepath.Dir(dest)); err != nil {
			return fail(err)
		}
		if err := stashFile(dest); err != nil {
			return fail(err)
		}
		if err := fsutil.CopyFile(b.profile.Interpreter, dest); err != nil {
			return fail(err)
		}
	}

	if err := fsutil.EnsureDir(b.chrootPath("etc/portage")); err != nil {
		return fail(err)
	}
	conf := b.makeConf(true)
	if err := ioutils.AtomicWriteFile(b.chrootPath("etc/portage/make.conf"), []byte(conf), 0o644); err != nil {
		return fail(fmt.Errorf("write make.conf: %w", err))
	}
	return done("")
}

// makeConf renders the chroot's make.conf. Setup-only entries (the local
// overlay) are included while the build runs and dropped again by the
// clean stage unless sticky-config keeps them.
func (b *Builder) makeConf(setup bool) string {
	p := b.profile
	var w strings.Builder

	fmt.Fprintf(&w, "COMMON_FLAGS=%q\n", p.CFlags)
	w.WriteString("CFLAGS=\"${COMMON_FLAGS}\"\n")
	if p.CxxFlags == "" || p.CxxFlags == p.CFlags {
		w.WriteString("CXXFLAGS=\"${COMMON_FLAGS}\"\n")
	} else {
		fmt.Fprintf(&w, "CXXFLAGS=%q\n", p.CxxFlags)
	}
	if p.LdFlags != "" {
		fmt.Fprintf(&w, "LDFLAGS=%q\n", p.LdFlags)
	}
	if p.CHost != "" {
		fmt.Fprintf(&w, "CHOST=%q\n", p.CHost)
	}
	if p.Options.Has(config.OptBindist) {
		w.WriteString("USE=\"${USE} bindist\"\n")
	}
	w.WriteString("DISTDIR=\"/var/cache/distfiles\"\n")
	w.WriteString("PKGDIR=\"/var/cache/binpkgs\"\n")
	if setup && len(p.PortageOverlay) > 0 {
		fmt.Fprintf(&w, "PORTDIR_OVERLAY=%q\n", localOverlay)
	}
	return w.String()
}

// setupEnvironment computes the controller export set. It runs on every
// invocation, resumed or not, because the environment is never persisted.
func (b *Builder) setupEnvironment(ctx context.Context) (pipeline.Result, error) {
	b.ctl.SetEnv(chroot.BuildEnv(b.profile, b.paths))
	return done("")
}

// rootOverlay copies each configured tree over the chroot root, last one
// winning on conflicts.
func (b *Builder) rootOverlay(ctx context.Context) (pipeline.Result, error) {
	for _, src := range b.profile.RootOverlay {
		if !fsutil.IsDir(src) {
			b.log.Warn("root overlay missing, skipping", logfields.Source(src))
			continue
		}
		if err := b.xfer.CopyTree(ctx, src, b.paths.ChrootDir); err != nil {
			return fail(err)
		}
	}
	return done("")
}

// stashFile moves path aside to path+".gstage4" when it exists. An already
// present stash is left alone so the oldest original survives repeated
// setup runs.
func stashFile(path string) error {
	if fileutils.Exists(path) != nil {
		return nil
	}
	backup := path + ".gstage4"
	if fileutils.Exists(backup) == nil {
		return nil
	}
	if err := os.Rename(path, backup); err != nil {
		return fmt.Errorf("stash %s: %w", path, err)
	}
	return nil
}

// restoreStash puts a stashed original back in place. Without a stash the
// installed copy is removed when drop is set, or kept otherwise.
func restoreStash(path string, drop bool) error {
	backup := path + ".gstage4"
	if fileutils.Exists(backup) != nil {
		if drop {
			return fsutil.ClearPath(path)
		}
		return nil
	}
	if err := fsutil.ClearPath(path); err != nil {
		return err
	}
	if err := os.Rename(backup, path); err != nil {
		return fmt.Errorf("restore %s: %w", path, err)
	}
	return nil
}
