// Package chroot drives the per-target controller script and controls
// processes running inside the working root.
//
// The heavy in-chroot work (emerging packages, building kernels,
// installing the bootloader) is delegated to an external shell script, one
// verb per build step. The Go side owns sequencing, environment
// construction and failure propagation.
package chroot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"time"

	"go.podman.io/storage/pkg/fileutils"

	"github.com/fpemud-os/gstage4/internal/logfields"
)

// ErrScriptFailed wraps every controller script failure, carrying the verb
// and, when the script ran at all, its exit code.
var ErrScriptFailed = errors.New("gstage4: controller script failed")

// cmdRunner is the process-spawn seam, replaced by a recording fake in
// tests.
type cmdRunner interface {
	Run(ctx context.Context, env []string, name string, args ...string) error
}

// execRunner spawns the script with stdio passed through, so emerge output
// shows up live instead of being buffered for hours.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Controller invokes the target's controller script. The environment is
// set once, after the profile is fully resolved, and every invocation runs
// against a private copy of it.
type Controller struct {
	script string
	env    []string
	log    *slog.Logger
	run    cmdRunner
}

// NewController wraps the controller script at the given path. The script
// may be absent; callers check Available before controller-driven steps.
func NewController(script string, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{script: script, log: log, run: execRunner{}}
}

// Script returns the controller script path.
func (c *Controller) Script() string { return c.script }

// Available reports whether the controller script exists. Targets that
// ship no script skip every controller-driven step.
func (c *Controller) Available() bool {
	return fileutils.Exists(c.script) == nil
}

// SetEnv replaces the environment used for subsequent invocations. The
// slice is copied.
func (c *Controller) SetEnv(env []string) {
	c.env = slices.Clone(env)
}

// Env returns a copy of the configured environment.
func (c *Controller) Env() []string {
	return slices.Clone(c.env)
}

// Run invokes `<script> <verb> [args...]` with the configured environment
// and fails on any non-zero exit.
func (c *Controller) Run(ctx context.Context, verb string, args ...string) error {
	return c.RunWith(ctx, nil, verb, args...)
}

// RunWith adds per-invocation variables on top of the configured
// environment without modifying it.
func (c *Controller) RunWith(ctx context.Context, extra []string, verb string, args ...string) error {
	env := append(slices.Clone(c.env), extra...)

	start := time.Now()
	c.log.Info("controller step starting", logfields.Verb(verb))

	err := c.run.Run(ctx, env, c.script, append([]string{verb}, args...)...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: %s exited %d", ErrScriptFailed, verb, exitErr.ExitCode())
		}
		return fmt.Errorf("%w: %s: %w", ErrScriptFailed, verb, err)
	}

	c.log.Info("controller step finished",
		logfields.Verb(verb),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}
