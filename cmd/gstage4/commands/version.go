package commands

import (
	"fmt"

	"github.com/fpemud-os/gstage4/internal/version"
)

// VersionCmd prints version and build information.
type VersionCmd struct{}

func (c *VersionCmd) Run(_ *Global) error {
	fmt.Println(version.String())
	return nil
}
