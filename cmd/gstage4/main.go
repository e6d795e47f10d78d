package main

import "github.com/fpemud-os/gstage4/cmd/gstage4/commands"

func main() {
	commands.Execute()
}
