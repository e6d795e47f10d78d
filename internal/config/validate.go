package config

import (
	"fmt"
	"strings"

	"github.com/fpemud-os/gstage4/internal/digest"
	"github.com/fpemud-os/gstage4/internal/platform"
	"github.com/fpemud-os/gstage4/internal/transfer"
)

// fillToolchain copies toolchain defaults from the platform registry into
// unset profile fields. Unknown subarches are left alone; Validate reports
// them.
func (p *Profile) fillToolchain() {
	spec, ok := platform.Lookup(p.SubArch)
	if !ok {
		return
	}
	if p.CHost == "" {
		p.CHost = spec.CHost
	}
	if p.CFlags == "" {
		p.CFlags = spec.CFlags
	}
	if p.CxxFlags == "" {
		p.CxxFlags = p.CFlags
	}
}

// Validate checks the whole profile and reports every problem at once.
// All returned errors wrap ErrInvalid.
func (p *Profile) Validate() error {
	var problems []string

	required := []struct {
		name  string
		value string
	}{
		{"target", p.Target},
		{"subarch", p.SubArch},
		{"rel_type", p.RelType},
		{"version_stamp", p.Version},
		{"profile", p.Profile},
		{"snapshot", p.Snapshot},
		{"source_subpath", p.SourceSubpath},
	}
	for _, r := range required {
		if r.value == "" {
			problems = append(problems, fmt.Sprintf("missing required field %q", r.name))
		}
	}

	if p.SubArch != "" {
		if _, ok := platform.Lookup(p.SubArch); !ok {
			problems = append(problems, fmt.Sprintf("unknown subarch %q (supported: %s)",
				p.SubArch, strings.Join(platform.IDs(), ", ")))
		}
	}

	if bad := p.Options.unknown(); len(bad) > 0 {
		problems = append(problems, fmt.Sprintf("unknown options: %s", strings.Join(bad, ", ")))
	}

	if _, ok := transfer.WriteCodec(p.CompressionMode); !ok {
		problems = append(problems, fmt.Sprintf("unsupported compression_mode %q (supported: %s)",
			p.CompressionMode, strings.Join(transfer.CodecNames(), ", ")))
	}

	if _, ok := digest.Known(p.HashFunction); !ok {
		problems = append(problems, fmt.Sprintf("unknown hash_function %q", p.HashFunction))
	}
	for _, d := range p.Digests {
		if _, ok := digest.Known(d); !ok {
			problems = append(problems, fmt.Sprintf("unknown digest %q", d))
		}
	}

	for name, k := range p.Kernels {
		if name == "" {
			problems = append(problems, "kernel with empty name")
		}
		if k.Sources == "" {
			problems = append(problems, fmt.Sprintf("kernel %q: missing sources", name))
		}
	}

	for _, st := range p.RcAdd {
		if st.Service == "" {
			problems = append(problems, "rcadd entry with empty service")
		}
	}
	for _, st := range p.RcDel {
		if st.Service == "" {
			problems = append(problems, "rcdel entry with empty service")
		}
	}

	if p.PortageTmpfsGB < 0 {
		problems = append(problems, "portage_tmpfs_gb must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
