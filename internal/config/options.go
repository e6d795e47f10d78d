package config

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Option is one recognized behavior flag from the profile's options list.
type Option string

const (
	OptAutoResume      Option = "autoresume"
	OptSeedCache       Option = "seedcache"
	OptSnapCache       Option = "snapcache"
	OptPkgCache        Option = "pkgcache"
	OptKernCache       Option = "kerncache"
	OptKeepWork        Option = "keepwork"
	OptFetch           Option = "fetch"
	OptBindist         Option = "bindist"
	OptVersionedCache  Option = "versioned_cache"
	OptStickyConfig    Option = "sticky-config"
	OptClearAutoResume Option = "clear-autoresume"
	OptPurge           Option = "purge"
	OptPurgeOnly       Option = "purgeonly"
	OptPurgeTmpOnly    Option = "purgetmponly"
)

var knownOptions = map[Option]struct{}{
	OptAutoResume:      {},
	OptSeedCache:       {},
	OptSnapCache:       {},
	OptPkgCache:        {},
	OptKernCache:       {},
	OptKeepWork:        {},
	OptFetch:           {},
	OptBindist:         {},
	OptVersionedCache:  {},
	OptStickyConfig:    {},
	OptClearAutoResume: {},
	OptPurge:           {},
	OptPurgeOnly:       {},
	OptPurgeTmpOnly:    {},
}

// OptionSet holds the profile's option words. Membership is checked with
// Has; unknown words survive decoding so Validate can report all of them.
type OptionSet map[Option]struct{}

// Has reports whether the option is set.
func (s OptionSet) Has(o Option) bool {
	_, ok := s[o]
	return ok
}

// Set adds an option word.
func (s OptionSet) Set(o Option) {
	s[o] = struct{}{}
}

// Words returns the set as a sorted string slice.
func (s OptionSet) Words() []string {
	out := make([]string, 0, len(s))
	for o := range s {
		out = append(out, string(o))
	}
	sort.Strings(out)
	return out
}

// unknown returns the option words not in the recognized vocabulary, sorted.
func (s OptionSet) unknown() []string {
	var bad []string
	for o := range s {
		if _, ok := knownOptions[o]; !ok {
			bad = append(bad, string(o))
		}
	}
	sort.Strings(bad)
	return bad
}

// UnmarshalYAML decodes a sequence of option words into the set.
func (s *OptionSet) UnmarshalYAML(value *yaml.Node) error {
	var words []string
	if err := value.Decode(&words); err != nil {
		return fmt.Errorf("options must be a list of words: %w", err)
	}
	set := make(OptionSet, len(words))
	for _, w := range words {
		set.Set(Option(w))
	}
	*s = set
	return nil
}

// MarshalYAML renders the set back as a sorted word list.
func (s OptionSet) MarshalYAML() (any, error) {
	return s.Words(), nil
}
