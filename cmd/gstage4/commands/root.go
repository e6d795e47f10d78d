// Package commands wires the gstage4 command line.
package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/fpemud-os/gstage4/internal/config"
	"github.com/fpemud-os/gstage4/internal/logfields"
	"github.com/fpemud-os/gstage4/internal/version"
)

// CLI is the root command tree.
type CLI struct {
	Global

	Build   BuildCmd   `cmd:"" help:"Run the build pipeline for a profile."`
	Purge   PurgeCmd   `cmd:"" help:"Discard a profile's working state."`
	History HistoryCmd `cmd:"" help:"List journaled runs or show one run's stage events."`
	Version VersionCmd `cmd:"" help:"Show version and build info."`
}

// Execute parses the command line and runs the selected command. Profile
// errors exit 2 so scripts can tell bad input from failed builds.
func Execute() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("gstage4"),
		kong.Description("Resumable Gentoo stage and live-disk image builder."),
		kong.Vars{"version": version.String()},
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli.Global)
	if err == nil {
		return
	}
	slog.Error("command failed", logfields.Error(err))
	if errors.Is(err, config.ErrInvalid) {
		os.Exit(2)
	}
	os.Exit(1)
}
