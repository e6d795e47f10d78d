// Package pipeline executes build stages in a fixed order with resume
// skips and fail-stop semantics.
//
// The stage list is data: callers assemble it once from configuration and
// hand it to a Runner. Stages run strictly in order, the first failure
// stops the pipeline, and a compensating hook gets a chance to release
// mounts before the error propagates.
package pipeline

import "context"

// Result is what a stage body reports on success.
type Result struct {
	// Data is persisted with the stage's resume point, typically a
	// content digest the next run validates against.
	Data string

	// Skipped marks bodies that decided no work was needed. Expected
	// condition, not an error; Reason says why.
	Skipped bool
	Reason  string
}

// Stage is one named, checkpointable unit of pipeline work.
type Stage struct {
	Name string

	// Resumable stages are skipped when their resume point is satisfied
	// and get a new resume point recorded after running. Stages that
	// manage their own resume points, or must always run, leave this
	// false.
	Resumable bool

	Run func(ctx context.Context) (Result, error)
}
