// Package digest computes artifact hashes and writes the manifest files
// published next to captured images.
package digest

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"os"

	godigest "github.com/opencontainers/go-digest"
)

// Known maps a profile hash name to a usable algorithm. Only algorithms
// with a registered implementation are accepted.
func Known(name string) (godigest.Algorithm, bool) {
	algo := godigest.Algorithm(name)
	if !algo.Available() {
		return "", false
	}
	return algo, true
}

// Hash streams the file through the algorithm.
func Hash(path string, algo godigest.Algorithm) (godigest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	d, err := algo.FromReader(f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return d, nil
}
