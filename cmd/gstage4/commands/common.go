package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/fpemud-os/gstage4/internal/fsutil"
	"github.com/fpemud-os/gstage4/internal/journal"
)

// Global holds the flags shared by every command.
type Global struct {
	LogLevel  string           `help:"Log level." enum:"debug,info,warn,error" default:"info"`
	LogFormat string           `help:"Log output format." enum:"text,json" default:"text"`
	EnvFile   string           `help:"Load environment variables from this file; profiles may reference them with ${VAR}." type:"path"`
	Journal   string           `help:"Run journal database path. Empty uses the user data dir." type:"path"`
	NoJournal bool             `help:"Disable the run journal."`
	Ver       kong.VersionFlag `name:"version" help:"Show version and exit."`
}

// AfterApply runs after flag parsing; it loads the env file and installs
// the default logger before any command code runs.
func (g *Global) AfterApply() error {
	if g.EnvFile != "" {
		if err := godotenv.Load(g.EnvFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(g.LogLevel)); err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if g.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func (g *Global) journalPath() string {
	if g.Journal != "" {
		return g.Journal
	}
	return filepath.Join(xdg.DataHome, "gstage4", "journal.db")
}

// openJournal returns nil without error when the journal is disabled.
func (g *Global) openJournal() (*journal.Store, error) {
	if g.NoJournal {
		return nil, nil
	}
	path := g.journalPath()
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	js, err := journal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return js, nil
}
