// Package config defines the typed build profile and its validation.
//
// A profile is loaded from a YAML file once, validated once, and treated as
// immutable afterwards. Stages never consult raw key/value data; every value
// they need is a field here or derived in Paths.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every configuration error, including unknown
// profile keys, unknown option words and missing required fields.
var ErrInvalid = errors.New("gstage4: invalid profile")

// Kernel describes one kernel to build inside the chroot.
type Kernel struct {
	Sources      string   `yaml:"sources"`
	Config       string   `yaml:"config,omitempty"`
	ExtraVersion string   `yaml:"extraversion,omitempty"`
	Packages     []string `yaml:"packages,omitempty"`
}

// ServiceToggle names an init service and the runlevel it is toggled in.
type ServiceToggle struct {
	Service  string `yaml:"service"`
	Runlevel string `yaml:"runlevel,omitempty"`
}

// Profile is the complete, typed build configuration.
type Profile struct {
	// Identity. These name the build and locate its inputs and outputs.
	Target        string `yaml:"target"`
	SubArch       string `yaml:"subarch"`
	RelType       string `yaml:"rel_type"`
	Version       string `yaml:"version_stamp"`
	Profile       string `yaml:"profile"`
	Snapshot      string `yaml:"snapshot"`
	SourceSubpath string `yaml:"source_subpath"`

	// Host paths. All have working defaults.
	StoreDir       string   `yaml:"storedir,omitempty"`
	ShareDir       string   `yaml:"sharedir,omitempty"`
	DistDir        string   `yaml:"distdir,omitempty"`
	RepoDir        string   `yaml:"repodir,omitempty"`
	PortageConfDir string   `yaml:"portage_confdir,omitempty"`
	PortageOverlay []string `yaml:"portage_overlay,omitempty"`
	RootOverlay    []string `yaml:"root_overlay,omitempty"`
	PkgcachePath   string   `yaml:"pkgcache_path,omitempty"`
	KerncachePath  string   `yaml:"kerncache_path,omitempty"`
	PortLogDir     string   `yaml:"port_logdir,omitempty"`

	// Toolchain tuning. Empty fields are filled from the platform registry.
	CFlags         string `yaml:"cflags,omitempty"`
	CxxFlags       string `yaml:"cxxflags,omitempty"`
	LdFlags        string `yaml:"ldflags,omitempty"`
	CHost          string `yaml:"chost,omitempty"`
	MakeOpts       string `yaml:"makeopts,omitempty"`
	Interpreter    string `yaml:"interpreter,omitempty"`
	PortageTmpfsGB int    `yaml:"portage_tmpfs_gb,omitempty"`

	// Content selection, consumed by the controller stages.
	Packages     []string          `yaml:"packages,omitempty"`
	Kernels      map[string]Kernel `yaml:"kernels,omitempty"`
	Bootloader   string            `yaml:"bootloader,omitempty"`
	FSType       string            `yaml:"fstype,omitempty"`
	FSOps        string            `yaml:"fsops,omitempty"`
	RcAdd        []ServiceToggle   `yaml:"rcadd,omitempty"`
	RcDel        []ServiceToggle   `yaml:"rcdel,omitempty"`
	Unmerge      []string          `yaml:"unmerge,omitempty"`
	Empty        []string          `yaml:"empty,omitempty"`
	Rm           []string          `yaml:"rm,omitempty"`
	LiveCDUpdate bool              `yaml:"livecd_update,omitempty"`

	// Capture settings.
	CompressionMode string   `yaml:"compression_mode,omitempty"`
	HashFunction    string   `yaml:"hash_function,omitempty"`
	Digests         []string `yaml:"digests,omitempty"`
	Contents        bool     `yaml:"contents,omitempty"`

	Options OptionSet `yaml:"options,omitempty"`
}

// Load reads, expands, decodes and validates a profile file.
// Unknown YAML keys are rejected.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	// Expand environment variables in the YAML content before decoding.
	expanded := os.ExpandEnv(string(data))

	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}

	p.applyDefaults()
	p.fillToolchain()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// applyDefaults fills every optional field that has a defined default.
// It is the only place defaults are assigned.
func (p *Profile) applyDefaults() {
	if p.StoreDir == "" {
		p.StoreDir = filepath.Join(xdg.DataHome, "gstage4")
	}
	if p.ShareDir == "" {
		p.ShareDir = "/usr/share/gstage4"
	}
	if p.DistDir == "" {
		p.DistDir = "/var/cache/distfiles"
	}
	if p.RepoDir == "" {
		p.RepoDir = "/var/db/repos/gentoo"
	}
	if p.RelType == "" {
		p.RelType = "default"
	}
	if p.CompressionMode == "" {
		p.CompressionMode = "tar.xz"
	}
	if p.HashFunction == "" {
		p.HashFunction = "sha512"
	}
	if len(p.Digests) == 0 {
		p.Digests = []string{p.HashFunction}
	}
	for i := range p.RcAdd {
		if p.RcAdd[i].Runlevel == "" {
			p.RcAdd[i].Runlevel = "default"
		}
	}
	for i := range p.RcDel {
		if p.RcDel[i].Runlevel == "" {
			p.RcDel[i].Runlevel = "default"
		}
	}
	if p.Options == nil {
		p.Options = OptionSet{}
	}
}
