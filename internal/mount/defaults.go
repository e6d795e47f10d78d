package mount

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fpemud-os/gstage4/internal/config"
)

// DefaultTable builds the mount table a build needs, in mount order. The
// order matters: nested targets like /dev/pts mount after /dev and are
// therefore released first.
func DefaultTable(p *config.Profile, paths config.Paths, log *slog.Logger) *Table {
	repo := Entry{Name: "portdir", Kind: KindNone, Target: filepath.Join("/var/db/repos", paths.RepoName)}
	if p.Options.Has(config.OptSnapCache) {
		repo.Kind = KindBind
		repo.Source = paths.SnapcacheRepo
	}

	portTmp := Entry{Name: "port_tmpdir", Kind: KindNone, Target: "/var/tmp/portage"}
	if p.PortageTmpfsGB > 0 {
		portTmp.Kind = KindTmpfs
		portTmp.Options = fmt.Sprintf("size=%dG", p.PortageTmpfsGB)
	}

	entries := []Entry{
		{Name: "proc", Kind: KindBind, Source: "/proc", Target: "/proc"},
		{Name: "dev", Kind: KindBind, Source: "/dev", Target: "/dev"},
		repo,
		{Name: "distdir", Kind: KindBind, Source: p.DistDir, Target: "/var/cache/distfiles"},
		portTmp,
		{Name: "devpts", Kind: KindBind, Source: "/dev/pts", Target: "/dev/pts"},
		{Name: "shm", Kind: KindShm, Target: "/dev/shm"},
		{Name: "run", Kind: KindTmpfs, Target: "/run"},
	}

	if p.Options.Has(config.OptPkgCache) {
		entries = append(entries, Entry{Name: "pkgdir", Kind: KindBind, Source: paths.PkgcacheDir, Target: "/var/cache/binpkgs"})
	}
	if p.Options.Has(config.OptKernCache) {
		entries = append(entries, Entry{Name: "kerncache", Kind: KindBind, Source: paths.KerncacheDir, Target: "/tmp/kerncache"})
	}
	if p.PortLogDir != "" {
		entries = append(entries, Entry{Name: "port_logdir", Kind: KindBind, Source: p.PortLogDir, Target: "/var/log/portage"})
	}

	return NewTable(paths.ChrootDir, entries, log)
}
