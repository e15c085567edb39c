// Package config loads glean.yaml, .env files and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
)

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// ExpandEnv replaces variable references in input:
//   - ${VAR} expands to the value, or "" if unset
//   - ${VAR:-default} expands to the value, or default if unset or empty
//   - ${VAR:?message} expands to the value, and fails with message if unset or empty
//
// Every missing required variable is reported in the returned error.
func ExpandEnv(input string) (string, error) {
	var errs []error
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}

		name, op, arg := groups[1], groups[2], groups[3]
		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}

		switch op {
		case "-":
			return arg
		case "?":
			if arg == "" {
				arg = "required"
			}
			errs = append(errs, fmt.Errorf("%s: %s", name, arg))
		}
		return ""
	})
	if len(errs) > 0 {
		return "", fmt.Errorf("missing environment variables: %w", errors.Join(errs...))
	}
	return out, nil
}
