// Package main provides the glean CLI entrypoint.
//
// Usage:
//
//	glean <command> [subcommand] [options]
//
// Exit codes for `process`:
//   - 0: done
//   - 1: retryable abort
//   - 2: unparseable job message
//   - 3: invalid configuration
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/glean/cli/cmd"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := cmd.NewApp(commit)
	app.ExitErrHandler = func(_ *cli.Context, err error) {
		if err == nil {
			return
		}
		msg, code := exitStatus(err)
		if msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitStatus maps an action error to the line printed on stderr and the
// process exit code. Codes from cli.Exit are kept, anywhere in the chain.
func exitStatus(err error) (string, int) {
	var ec cli.ExitCoder
	if !errors.As(err, &ec) {
		return "Error: " + err.Error(), 1
	}
	code := ec.ExitCode()
	msg := ec.Error()
	// cli.Exit("", N) reports "exit status N".
	if msg == fmt.Sprintf("exit status %d", code) {
		msg = ""
	}
	return msg, code
}
