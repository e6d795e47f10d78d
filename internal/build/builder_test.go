package build

import (
	"context"
	"errors"
	"testing"

	"github.com/fpemud-os/gstage4/internal/config"
	"github.com/fpemud-os/gstage4/internal/journal"
	"github.com/fpemud-os/gstage4/internal/pipeline"
	"github.com/fpemud-os/gstage4/internal/transfer"
)

func TestNewBuilder(t *testing.T) {
	b := newTestBuilder(t, testProfile(t))
	if b.RunID() == "" {
		t.Error("empty run id")
	}
	if b.store.Enabled() {
		t.Error("resume store enabled without the autoresume option")
	}
	other := newTestBuilder(t, testProfile(t, config.OptAutoResume))
	if !other.store.Enabled() {
		t.Error("autoresume did not enable the resume store")
	}
	if other.RunID() == b.RunID() {
		t.Error("run ids collide")
	}
	if got := b.hashAlgo(); string(got) != "sha512" {
		t.Errorf("hash algo = %s, want sha512", got)
	}
}

// A missing seed archive is the first thing the pipeline hits; the failure
// must stop the run, be classified as a stage failure, and land in the
// journal with the stage trail.
func TestRunRecordsFailure(t *testing.T) {
	js, err := journal.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { js.Close() })

	p := testProfile(t, config.OptAutoResume)
	b, err := New(Params{Profile: p, Journal: js})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	err = b.Run(ctx)
	if err == nil {
		t.Fatal("run succeeded with no seed archive")
	}
	if !errors.Is(err, pipeline.ErrStageFailed) || !errors.Is(err, transfer.ErrFailed) {
		t.Errorf("err = %v, want a stage failure wrapping the transfer error", err)
	}

	runs, err := js.Runs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != b.RunID() {
		t.Fatalf("runs = %+v, want exactly this run", runs)
	}
	if runs[0].Status != journal.StatusFailed {
		t.Errorf("status = %s, want failed", runs[0].Status)
	}
	if runs[0].Target != "stage4" || runs[0].SubArch != "amd64" {
		t.Errorf("run identity = %s/%s", runs[0].Target, runs[0].SubArch)
	}

	events, err := js.Events(ctx, b.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) < 2 {
		t.Fatalf("events = %+v, want started and failed", events)
	}
	if events[0].Stage != "unpack" || events[0].Event != "started" {
		t.Errorf("first event = %+v", events[0])
	}
	last := events[len(events)-1]
	if last.Stage != "unpack" || last.Event != "failed" {
		t.Errorf("last event = %+v", last)
	}

	// The lock must be free again for the next attempt.
	retry, err := New(Params{Profile: p, Journal: js})
	if err != nil {
		t.Fatal(err)
	}
	if err := retry.Run(ctx); err == nil {
		t.Fatal("retry succeeded with no seed archive")
	}
	runs, err = js.Runs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("got %d journaled runs, want 2", len(runs))
	}
}

func TestRunWithoutJournal(t *testing.T) {
	b := newTestBuilder(t, testProfile(t))
	if err := b.Run(context.Background()); err == nil {
		t.Fatal("run succeeded with no seed archive")
	}
}
