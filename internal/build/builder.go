// Package build assembles the stage pipeline for one profile and runs it
// against a working root.
package build

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	godigest "github.com/opencontainers/go-digest"

	"github.com/fpemud-os/gstage4/internal/chroot"
	"github.com/fpemud-os/gstage4/internal/config"
	"github.com/fpemud-os/gstage4/internal/digest"
	"github.com/fpemud-os/gstage4/internal/fsutil"
	"github.com/fpemud-os/gstage4/internal/journal"
	"github.com/fpemud-os/gstage4/internal/logfields"
	"github.com/fpemud-os/gstage4/internal/mount"
	"github.com/fpemud-os/gstage4/internal/pipeline"
	"github.com/fpemud-os/gstage4/internal/resume"
	"github.com/fpemud-os/gstage4/internal/transfer"
)

// Params configures a Builder.
type Params struct {
	Profile *config.Profile

	// Journal is optional run history; nil disables it.
	Journal *journal.Store

	Log *slog.Logger

	// LockWait blocks on the working root lock instead of failing with
	// pipeline.ErrBusy while another process holds it.
	LockWait bool
}

// Builder owns one working root for the duration of one run.
type Builder struct {
	profile  *config.Profile
	paths    config.Paths
	store    *resume.Store
	mounts   *mount.Table
	ctl      *chroot.Controller
	xfer     *transfer.Transferrer
	journal  *journal.Store
	log      *slog.Logger
	runID    string
	lockWait bool
}

// New wires a builder from a validated profile.
func New(params Params) (*Builder, error) {
	p := params.Profile
	log := params.Log
	if log == nil {
		log = slog.Default()
	}
	paths := p.Paths()

	store, err := resume.Open(paths.ResumeDir, p.Options.Has(config.OptAutoResume), log)
	if err != nil {
		return nil, err
	}

	return &Builder{
		profile:  p,
		paths:    paths,
		store:    store,
		mounts:   mount.DefaultTable(p, paths, log),
		ctl:      chroot.NewController(paths.ControllerFile, log),
		xfer:     transfer.New(log),
		journal:  params.Journal,
		log:      log,
		runID:    uuid.NewString(),
		lockWait: params.LockWait,
	}, nil
}

// RunID identifies this run in logs and the journal.
func (b *Builder) RunID() string { return b.runID }

// Run executes the computed stage sequence under the working root lock.
func (b *Builder) Run(ctx context.Context) error {
	if err := fsutil.EnsureDir(filepath.Dir(b.paths.ChrootDir)); err != nil {
		return err
	}

	release, err := pipeline.AcquireLock(b.paths.LockFile, b.lockWait)
	if err != nil {
		return err
	}
	defer release()

	log := b.log.With(
		logfields.RunID(b.runID),
		logfields.Target(b.profile.Target),
		logfields.SubArch(b.profile.SubArch))
	log.Info("build starting",
		logfields.Version(b.profile.Version),
		logfields.Path(b.paths.ChrootDir))

	// A crashed previous run can leave processes and mounts behind. Both
	// must be gone before any stage touches the tree.
	if n, err := chroot.KillProcs(b.paths.ChrootDir); err != nil {
		log.Debug("process scan unavailable", logfields.Error(err))
	} else if n > 0 {
		log.Warn("killed stray processes in the working root", logfields.Count(n))
	}
	if err := b.mounts.SafetyCheck(ctx, chroot.KillProcs); err != nil {
		return err
	}

	if b.profile.Options.Has(config.OptClearAutoResume) {
		log.Info("clearing resume points on request")
		if err := b.store.Clear(); err != nil {
			return err
		}
	}

	b.journalStart(ctx, log)
	start := time.Now()

	runner := &pipeline.Runner{
		Store: b.store,
		Rec:   b.recorder(log),
		Log:   log,
		OnFailure: func(ctx context.Context) error {
			return b.mounts.UnbindAll(ctx, chroot.KillProcs)
		},
	}
	err = runner.Run(ctx, b.Sequence())

	b.journalFinish(err, log)
	if err != nil {
		log.Error("build failed",
			logfields.Error(err),
			logfields.DurationMS(float64(time.Since(start).Milliseconds())))
		return err
	}
	log.Info("build finished",
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}

func (b *Builder) journalStart(ctx context.Context, log *slog.Logger) {
	if b.journal == nil {
		return
	}
	err := b.journal.RunStarted(ctx, b.runID, b.profile.Target, b.profile.SubArch, b.profile.Version)
	if err != nil {
		log.Warn("journal write failed", logfields.Error(err))
	}
}

func (b *Builder) journalFinish(runErr error, log *slog.Logger) {
	if b.journal == nil {
		return
	}
	status := journal.StatusSucceeded
	if runErr != nil {
		status = journal.StatusFailed
	}
	// The build context may already be cancelled; the final journal row
	// should still land.
	if err := b.journal.RunFinished(context.Background(), b.runID, status); err != nil {
		log.Warn("journal write failed", logfields.Error(err))
	}
}

// recorder adapts the journal to the pipeline's stage events.
func (b *Builder) recorder(log *slog.Logger) pipeline.Recorder {
	if b.journal == nil {
		return nil
	}
	return runRecorder{store: b.journal, runID: b.runID, log: log}
}

type runRecorder struct {
	store *journal.Store
	runID string
	log   *slog.Logger
}

func (r runRecorder) StageEvent(stage, event, detail string) {
	if err := r.store.StageEvent(context.Background(), r.runID, stage, event, detail); err != nil {
		r.log.Warn("journal write failed", logfields.Error(err), logfields.Stage(stage))
	}
}

// hashAlgo returns the profile's gate hash algorithm. Profile validation
// guarantees it is known.
func (b *Builder) hashAlgo() godigest.Algorithm {
	algo, _ := digest.Known(b.profile.HashFunction)
	return algo
}
