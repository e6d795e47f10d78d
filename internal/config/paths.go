package config

import (
	"fmt"
	"path/filepath"
)

// Paths holds every filesystem location derived from a profile. It is
// computed once so path composition rules live in a single place.
type Paths struct {
	// TargetSubpath is rel_type/target-subarch-version_stamp, the relative
	// identity used under both tmp/ and builds/.
	TargetSubpath string

	ChrootDir string // working root: storedir/tmp/<target_subpath>
	ResumeDir string // checkpoint store: <chroot>.autoresume
	LockFile  string // cross-process run lock: <chroot>.lock

	SourceBase string // seed archive base: storedir/builds/<source_subpath>
	SeedDir    string // seed chroot dir used with the seedcache option
	TargetBase string // capture artifact base: storedir/builds/<target_subpath>

	SnapshotBase      string // repo snapshot archive base
	SnapcacheDir      string // extracted snapshot cache root
	SnapcacheRepo     string // repo dir inside the snapshot cache
	SnapcacheHashFile string // on-disk mirror of the snapshot gate hash

	PkgcacheDir  string // binary package cache bound into the chroot
	KerncacheDir string // kernel artifact cache bound into the chroot

	RepoName       string // basename of repodir, e.g. "gentoo"
	ChrootRepoDir  string // repo location inside the chroot
	ControllerFile string // target controller script
}

// Paths derives all locations from the profile. Call after validation.
func (p *Profile) Paths() Paths {
	subpath := filepath.Join(p.RelType, fmt.Sprintf("%s-%s-%s", p.Target, p.SubArch, p.Version))
	chroot := filepath.Join(p.StoreDir, "tmp", subpath)
	repoName := filepath.Base(p.RepoDir)

	cacheName := fmt.Sprintf("%s-%s", p.Target, p.SubArch)
	if p.Options.Has(OptVersionedCache) {
		cacheName = fmt.Sprintf("%s-%s", cacheName, p.Version)
	}

	pkgcache := p.PkgcachePath
	if pkgcache == "" {
		pkgcache = filepath.Join(p.StoreDir, "packages", p.RelType, cacheName)
	}
	kerncache := p.KerncachePath
	if kerncache == "" {
		kerncache = filepath.Join(p.StoreDir, "kerncache", p.RelType, cacheName)
	}

	snapcache := filepath.Join(p.StoreDir, "snapshot_cache", p.Snapshot)

	return Paths{
		TargetSubpath:     subpath,
		ChrootDir:         chroot,
		ResumeDir:         chroot + ".autoresume",
		LockFile:          chroot + ".lock",
		SourceBase:        filepath.Join(p.StoreDir, "builds", p.SourceSubpath),
		SeedDir:           filepath.Join(p.StoreDir, "tmp", p.SourceSubpath),
		TargetBase:        filepath.Join(p.StoreDir, "builds", subpath),
		SnapshotBase:      filepath.Join(p.StoreDir, "snapshots", repoName+"-"+p.Snapshot),
		SnapcacheDir:      snapcache,
		SnapcacheRepo:     filepath.Join(snapcache, repoName),
		SnapcacheHashFile: filepath.Join(snapcache, ".gstage4-hash"),
		PkgcacheDir:       pkgcache,
		KerncacheDir:      kerncache,
		RepoName:          repoName,
		ChrootRepoDir:     filepath.Join(chroot, "var/db/repos", repoName),
		ControllerFile:    filepath.Join(p.ShareDir, "targets", p.Target, "controller.sh"),
	}
}
