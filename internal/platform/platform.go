// Package platform holds the static registry of supported build platforms.
// Each entry maps a subarch name to its toolchain defaults; there is no
// dynamic discovery or plugin loading.
package platform

import "sort"

// Spec describes one supported subarch.
type Spec struct {
	ID     string
	Family string
	CHost  string
	CFlags string
	// Tags carry capability hints consumed by stage logic, for example
	// "multilib" or "interpreted" for subarches that need a userland
	// emulator inside the chroot.
	Tags []string
}

var registry = map[string]Spec{
	"amd64": {
		ID:     "amd64",
		Family: "amd64",
		CHost:  "x86_64-pc-linux-gnu",
		CFlags: "-O2 -pipe",
		Tags:   []string{"multilib"},
	},
	"x86": {
		ID:     "x86",
		Family: "x86",
		CHost:  "i686-pc-linux-gnu",
		CFlags: "-O2 -march=i686 -pipe",
	},
	"i486": {
		ID:     "i486",
		Family: "x86",
		CHost:  "i486-pc-linux-gnu",
		CFlags: "-O2 -march=i486 -pipe",
	},
	"arm64": {
		ID:     "arm64",
		Family: "arm64",
		CHost:  "aarch64-unknown-linux-gnu",
		CFlags: "-O2 -pipe",
	},
	"armv7a": {
		ID:     "armv7a",
		Family: "arm",
		CHost:  "armv7a-unknown-linux-gnueabihf",
		CFlags: "-O2 -march=armv7-a -mfpu=vfpv3-d16 -mfloat-abi=hard -pipe",
		Tags:   []string{"interpreted"},
	},
	"armv6j": {
		ID:     "armv6j",
		Family: "arm",
		CHost:  "armv6j-unknown-linux-gnueabihf",
		CFlags: "-O2 -march=armv6j -mfpu=vfp -mfloat-abi=hard -pipe",
		Tags:   []string{"interpreted"},
	},
	"riscv64": {
		ID:     "riscv64",
		Family: "riscv",
		CHost:  "riscv64-unknown-linux-gnu",
		CFlags: "-O2 -pipe",
	},
	"ppc64le": {
		ID:     "ppc64le",
		Family: "ppc64le",
		CHost:  "powerpc64le-unknown-linux-gnu",
		CFlags: "-O2 -pipe",
	},
	"ppc64": {
		ID:     "ppc64",
		Family: "ppc64",
		CHost:  "powerpc64-unknown-linux-gnu",
		CFlags: "-O2 -pipe",
	},
	"sparc64": {
		ID:     "sparc64",
		Family: "sparc",
		CHost:  "sparc64-unknown-linux-gnu",
		CFlags: "-O2 -mcpu=ultrasparc -pipe",
	},
}

// Lookup returns the spec for a subarch name.
func Lookup(subarch string) (Spec, bool) {
	s, ok := registry[subarch]
	return s, ok
}

// IDs returns all registered subarch names, sorted, for error messages.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasTag reports whether the spec carries the given capability tag.
func (s Spec) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
