package build

import (
	"context"
	"path/filepath"

	"github.com/fpemud-os/gstage4/internal/pipeline"
)

type stageFunc = func(context.Context) (pipeline.Result, error)

// localOverlay is where profile overlay trees land inside the chroot.
const localOverlay = "/var/db/repos/local"

// chrootPath resolves a path inside the working root.
func (b *Builder) chrootPath(elem ...string) string {
	return filepath.Join(append([]string{b.paths.ChrootDir}, elem...)...)
}

func done(data string) (pipeline.Result, error) {
	return pipeline.Result{Data: data}, nil
}

func skipped(reason string) (pipeline.Result, error) {
	return pipeline.Result{Skipped: true, Reason: reason}, nil
}

func fail(err error) (pipeline.Result, error) {
	return pipeline.Result{}, err
}
