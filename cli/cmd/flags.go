// Package cmd provides CLI commands for the glean binary.
package cmd

import "github.com/urfave/cli/v2"

// EnvConfig names the environment variable that points at glean.yaml.
const EnvConfig = "GLEAN_CONFIG"

// Shared flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// ConfigFlag is the path of the YAML configuration file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to glean.yaml (optional; environment overrides still apply)",
		EnvVars: []string{EnvConfig},
	}

	// EnvFileFlag loads .env files before the configuration is read.
	EnvFileFlag = &cli.StringSliceFlag{
		Name:  "env-file",
		Usage: "Load environment variables from a .env file (repeatable)",
	}

	// LogLevelFlag overrides log.level.
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
	}
)

// OutputFlags returns the flags of commands that render a result.
func OutputFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, NoColorFlag}
}

// ConfigFlags returns the flags of commands that read the configuration.
func ConfigFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, EnvFileFlag, LogLevelFlag}
}

func withFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
