package capture

import (
	"strconv"
	"strings"
	"time"
)

// DefaultPrefix is the key prefix of uploaded screenshots.
const DefaultPrefix = "screenshots"

// Domain returns the host part of a capture target ("example.com/about"
// → "example.com").
func Domain(target string) string {
	domain, _, _ := strings.Cut(target, "/")
	return domain
}

// ObjectKey returns <prefix>/<domain>/<epoch>-<target>.png with "." in the
// target replaced by "_" and "/" by "-". The layout is what the job
// reference parser expects in its default grammar.
func ObjectKey(prefix, target string, at time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	name := strings.NewReplacer(".", "_", "/", "-").Replace(target)
	return strings.TrimSuffix(prefix, "/") + "/" + Domain(target) + "/" +
		strconv.FormatInt(at.Unix(), 10) + "-" + name + ".png"
}
