package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/fpemud-os/gstage4/internal/build"
	"github.com/fpemud-os/gstage4/internal/config"
)

// PurgeCmd implements the 'purge' command: it forces the purge-only path
// regardless of the profile's own options.
type PurgeCmd struct {
	Profile string `arg:"" help:"Path to the build profile YAML." type:"existingfile"`
	TmpOnly bool   `help:"Purge only the working tree, keep the package and kernel caches."`
	NoWait  bool   `help:"Fail immediately when another process holds the working root lock."`
}

func (c *PurgeCmd) Run(g *Global) error {
	p, err := config.Load(c.Profile)
	if err != nil {
		return err
	}
	if c.TmpOnly {
		p.Options.Set(config.OptPurgeTmpOnly)
	} else {
		p.Options.Set(config.OptPurgeOnly)
	}

	js, err := g.openJournal()
	if err != nil {
		return err
	}
	if js != nil {
		defer js.Close()
	}

	b, err := build.New(build.Params{
		Profile:  p,
		Journal:  js,
		Log:      slog.Default(),
		LockWait: !c.NoWait,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return b.Run(ctx)
}
