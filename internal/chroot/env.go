package chroot

import (
	"os"
	"sort"
	"strings"

	"github.com/fpemud-os/gstage4/internal/config"
)

// Controller scripts run under a minimal, fully explicit environment: a
// fixed PATH, the caller's TERM and one clst_ variable per exported
// profile setting. Nothing else from the host environment leaks through.

const scriptPath = "/bin:/sbin:/usr/bin:/usr/sbin"

// portLogdirClean is handed to portage alongside PORT_LOGDIR so stale
// build logs are pruned inside the chroot.
const portLogdirClean = `find "${PORT_LOGDIR}" -type f ! -name "summary.log*" -mtime +30 -delete`

var varSanitizer = strings.NewReplacer("/", "_", "-", "_", ".", "_")

// BuildEnv computes the controller environment from a validated profile.
// Variable names are prefixed with clst_ and sanitized (each of "/", "-"
// and "." becomes "_"), list values are space-joined, path values lose any
// trailing slash and option words are exported upper-cased with the value
// "true". The result is sorted and safe to share: invocations copy it and
// never write back.
func BuildEnv(p *config.Profile, paths config.Paths) []string {
	vars := map[string]string{
		"PATH": scriptPath,
		"TERM": termVar(),
	}

	set := func(name, value string) {
		if value == "" {
			return
		}
		vars["clst_"+varSanitizer.Replace(name)] = value
	}
	setPath := func(name, value string) {
		set(name, strings.TrimRight(value, "/"))
	}
	setList := func(name string, values []string) {
		set(name, strings.Join(values, " "))
	}

	set("target", p.Target)
	set("subarch", p.SubArch)
	set("rel_type", p.RelType)
	set("version_stamp", p.Version)
	set("profile", p.Profile)
	set("snapshot", p.Snapshot)
	set("source_subpath", p.SourceSubpath)
	set("target_subpath", paths.TargetSubpath)
	set("repo_name", paths.RepoName)

	setPath("chroot_path", paths.ChrootDir)
	setPath("target_path", paths.TargetBase)
	setPath("sharedir", p.ShareDir)
	setPath("distdir", p.DistDir)
	setPath("repo_dir", p.RepoDir)
	if p.Options.Has(config.OptPkgCache) {
		setPath("pkgcache_path", paths.PkgcacheDir)
	}
	if p.Options.Has(config.OptKernCache) {
		setPath("kerncache_path", paths.KerncacheDir)
	}

	set("cflags", p.CFlags)
	set("cxxflags", p.CxxFlags)
	set("ldflags", p.LdFlags)
	set("chost", p.CHost)
	set("makeopts", p.MakeOpts)
	set("interpreter", p.Interpreter)
	if p.MakeOpts != "" {
		vars["MAKEOPTS"] = p.MakeOpts
	}

	setList("packages", p.Packages)
	setList("unmerge", p.Unmerge)
	setList("empty", p.Empty)
	setList("rm", p.Rm)
	set("bootloader", p.Bootloader)
	set("fstype", p.FSType)
	set("fsops", p.FSOps)
	setList("rcadd", toggleWords(p.RcAdd))
	setList("rcdel", toggleWords(p.RcDel))
	set("compression_mode", p.CompressionMode)
	set("hash_function", p.HashFunction)

	if len(p.Kernels) > 0 {
		names := make([]string, 0, len(p.Kernels))
		for name := range p.Kernels {
			names = append(names, name)
		}
		sort.Strings(names)
		setList("boot_kernel", names)
		for _, name := range names {
			k := p.Kernels[name]
			set("boot_kernel_"+name+"_sources", k.Sources)
			set("boot_kernel_"+name+"_config", k.Config)
			set("boot_kernel_"+name+"_extraversion", k.ExtraVersion)
			setList("boot_kernel_"+name+"_packages", k.Packages)
		}
	}

	for _, opt := range p.Options.Words() {
		vars["clst_"+strings.ToUpper(varSanitizer.Replace(opt))] = "true"
	}

	if p.PortLogDir != "" {
		vars["PORT_LOGDIR"] = strings.TrimRight(p.PortLogDir, "/")
		vars["PORT_LOGDIR_CLEAN"] = portLogdirClean
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// KernelEnv returns the per-invocation variables added when building one
// kernel. The kernel name itself travels as a script argument.
func KernelEnv(k config.Kernel) []string {
	return []string{"clst_kextraversion=" + k.ExtraVersion}
}

func toggleWords(toggles []config.ServiceToggle) []string {
	words := make([]string, 0, len(toggles))
	for _, t := range toggles {
		words = append(words, t.Service+":"+t.Runlevel)
	}
	return words
}

func termVar() string {
	if t := os.Getenv("TERM"); t != "" {
		return t
	}
	return "dumb"
}
