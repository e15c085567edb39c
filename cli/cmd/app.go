package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/glean/types"
)

// NewApp assembles the glean command tree.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:    "glean",
		Usage:   "Compress, OCR and catalog captured screenshots",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Commands: []*cli.Command{
			ProcessCommand(),
			ParseCommand(),
			WorkerCommand(),
			ServeCommand(),
			RecordsCommand(),
			VersionCommand(commit),
		},
	}
}
