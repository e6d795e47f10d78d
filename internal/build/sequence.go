package build

import (
	"github.com/fpemud-os/gstage4/internal/config"
	"github.com/fpemud-os/gstage4/internal/pipeline"
)

// Sequence computes the ordered stage list for the profile. Purge-only
// option flavors collapse the run to a single cleanup stage; everything
// else is the full build with conditional stages dropped when the profile
// gives them nothing to do.
func (b *Builder) Sequence() []pipeline.Stage {
	p := b.profile

	if p.Options.Has(config.OptPurgeTmpOnly) {
		return []pipeline.Stage{b.purgeStage(true)}
	}
	if p.Options.Has(config.OptPurgeOnly) {
		return []pipeline.Stage{b.purgeStage(false)}
	}

	var seq []pipeline.Stage
	add := func(name string, resumable bool, run stageFunc) {
		seq = append(seq, pipeline.Stage{Name: name, Resumable: resumable, Run: run})
	}

	if p.Options.Has(config.OptPurge) {
		seq = append(seq, b.purgeStage(false))
	}

	// Seed and repo extraction gate themselves on content hashes, so the
	// runner must not skip them on a bare resume point.
	add("unpack", false, b.unpack)
	add("unpack_repo", false, b.unpackRepo)

	add("config_profile_link", true, b.configProfileLink)
	if p.PortageConfDir != "" {
		add("setup_confdir", true, b.setupConfdir)
	}
	if len(p.PortageOverlay) > 0 {
		add("portage_overlay", false, b.portageOverlay)
	}
	add("base_dirs", false, b.baseDirs)
	add("bind", false, b.bindStage)
	add("chroot_setup", true, b.chrootSetup)
	add("setup_environment", false, b.setupEnvironment)
	add("run_local", true, b.runLocal)
	if len(p.Packages) > 0 {
		add("build_packages", true, b.buildPackages)
	}
	if len(p.Kernels) > 0 {
		add("build_kernel", true, b.buildKernel)
	}
	if p.Bootloader != "" {
		add("bootloader", true, b.bootloader)
	}
	if len(p.RootOverlay) > 0 {
		add("root_overlay", false, b.rootOverlay)
	}
	if len(p.RcAdd)+len(p.RcDel) > 0 {
		add("rcupdate", true, b.rcUpdate)
	}
	if p.LiveCDUpdate {
		add("livecd_update", true, b.livecdUpdate)
	}
	add("preclean", true, b.preclean)
	if len(p.Unmerge) > 0 {
		add("unmerge", true, b.unmergeStage)
	}
	add("unbind", false, b.unbindStage)
	if len(p.Rm) > 0 {
		add("remove", false, b.removeStage)
	}
	if len(p.Empty) > 0 {
		add("empty", false, b.emptyStage)
	}
	add("clean", true, b.cleanStage)
	if p.FSType != "" {
		add("target_setup", true, b.targetSetup)
	}
	if !p.Options.Has(config.OptFetch) {
		add("capture", true, b.captureStage)
	}

	switch {
	case p.Options.Has(config.OptKeepWork):
		add("clear_resume", false, b.clearResume)
	case p.Options.Has(config.OptSeedCache):
		add("remove_resume", false, b.removeResume)
	default:
		add("remove_resume", false, b.removeResume)
		add("remove_chroot", false, b.removeChroot)
	}

	return seq
}
