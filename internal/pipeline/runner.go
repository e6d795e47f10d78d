package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fpemud-os/gstage4/internal/logfields"
	"github.com/fpemud-os/gstage4/internal/resume"
)

// ErrStageFailed is joined into every stage failure so callers can tell
// pipeline failures from setup errors.
var ErrStageFailed = errors.New("gstage4: stage failed")

// Recorder receives stage transitions. Implementations must be cheap and
// must not fail the build.
type Recorder interface {
	StageEvent(stage, event, detail string)
}

type nopRecorder struct{}

func (nopRecorder) StageEvent(stage, event, detail string) {}

// Runner executes stages in order against one resume store.
type Runner struct {
	Store *resume.Store
	Rec   Recorder
	Log   *slog.Logger

	// OnFailure runs after a stage fails or the context is cancelled,
	// before the error propagates. Used to release mounts; its error is
	// joined into the returned one so an UnbindAll failure stays visible.
	OnFailure func(ctx context.Context) error
}

// Run executes the stages. Resumable stages whose resume point is
// satisfied are skipped; the rest run, and resumable successes record a
// new resume point with the stage's data payload.
func (r *Runner) Run(ctx context.Context, stages []Stage) error {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	rec := r.Rec
	if rec == nil {
		rec = nopRecorder{}
	}

	for _, st := range stages {
		select {
		case <-ctx.Done():
			rec.StageEvent(st.Name, "canceled", ctx.Err().Error())
			return r.fail(ctx, log, fmt.Errorf("stage %s: %w", st.Name, ctx.Err()))
		default:
		}

		if st.Resumable && r.Store.IsSatisfied(st.Name) {
			log.Info("resume point satisfied, skipping", logfields.Stage(st.Name))
			rec.StageEvent(st.Name, "skipped", "resume point satisfied")
			continue
		}

		log.Info("stage starting", logfields.Stage(st.Name))
		rec.StageEvent(st.Name, "started", "")
		t0 := time.Now()

		res, err := st.Run(ctx)
		dur := time.Since(t0)
		if err != nil {
			log.Error("stage failed", logfields.Stage(st.Name), logfields.Error(err))
			rec.StageEvent(st.Name, "failed", err.Error())
			return r.fail(ctx, log, fmt.Errorf("stage %s: %w", st.Name, errors.Join(ErrStageFailed, err)))
		}

		if res.Skipped {
			log.Info("stage skipped", logfields.Stage(st.Name), logfields.Reason(res.Reason))
			rec.StageEvent(st.Name, "skipped", res.Reason)
			continue
		}

		log.Info("stage finished", logfields.Stage(st.Name), logfields.DurationMS(float64(dur.Milliseconds())))
		rec.StageEvent(st.Name, "finished", res.Data)

		if st.Resumable {
			if err := r.Store.Record(st.Name, res.Data); err != nil {
				log.Error("recording resume point failed", logfields.Stage(st.Name), logfields.Error(err))
				return r.fail(ctx, log, fmt.Errorf("stage %s: %w", st.Name, errors.Join(ErrStageFailed, err)))
			}
		}
	}
	return nil
}

// fail runs the compensation hook and joins its error, if any, into cause.
func (r *Runner) fail(ctx context.Context, log *slog.Logger, cause error) error {
	if r.OnFailure == nil {
		return cause
	}
	if err := r.OnFailure(ctx); err != nil {
		log.Error("failure cleanup did not complete", logfields.Error(err))
		return errors.Join(cause, err)
	}
	return cause
}
