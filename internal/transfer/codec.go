package transfer

import "go.podman.io/storage/pkg/archive"

// Codec binds a profile compression name to its tar compression and the
// file extensions it is recognized under. The first extension is canonical
// and used when writing.
type Codec struct {
	Name        string
	Compression archive.Compression
	Extensions  []string
	// CanWrite marks codecs usable for capture. Every codec can be read.
	CanWrite bool
}

// The table order defines the search preference when locating archives.
var codecs = []Codec{
	{Name: "tar.xz", Compression: archive.Xz, Extensions: []string{".tar.xz", ".txz"}, CanWrite: true},
	{Name: "tar.bz2", Compression: archive.Bzip2, Extensions: []string{".tar.bz2", ".tbz2"}},
	{Name: "tar.gz", Compression: archive.Gzip, Extensions: []string{".tar.gz", ".tgz"}, CanWrite: true},
	{Name: "tar.zst", Compression: archive.Zstd, Extensions: []string{".tar.zst"}, CanWrite: true},
	{Name: "tar", Compression: archive.Uncompressed, Extensions: []string{".tar"}, CanWrite: true},
}

// CodecByName looks a codec up by its profile name.
func CodecByName(name string) (Codec, bool) {
	for _, c := range codecs {
		if c.Name == name {
			return c, true
		}
	}
	return Codec{}, false
}

// WriteCodec looks up a codec that can produce archives.
func WriteCodec(name string) (Codec, bool) {
	c, ok := CodecByName(name)
	if !ok || !c.CanWrite {
		return Codec{}, false
	}
	return c, true
}

// CodecNames returns the writable codec names in table order, for error
// messages about compression_mode.
func CodecNames() []string {
	var names []string
	for _, c := range codecs {
		if c.CanWrite {
			names = append(names, c.Name)
		}
	}
	return names
}

// AcceptedExtensions returns every recognized archive extension in search
// order.
func AcceptedExtensions() []string {
	var exts []string
	for _, c := range codecs {
		exts = append(exts, c.Extensions...)
	}
	return exts
}
