package version

import "fmt"

// Version contains the application version information.
// This should be set via build-time ldflags in production:
// go build -ldflags "-X github.com/fpemud-os/gstage4/internal/version.Version=v0.4.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the single version line printed by the version command.
func String() string {
	return fmt.Sprintf("gstage4 %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
