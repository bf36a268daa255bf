package main

import (
	"os"

	"github.com/spherical/lecture-ingest/cmd/lecture-ingest/commands"
	"github.com/spherical/lecture-ingest/cmd/lecture-ingest/ui"
)

func main() {
	if err := commands.Execute(); err != nil {
		ui.Error("%v", err)
		os.Exit(1)
	}
}
