// Package capture takes website screenshots with an external browser
// command. The browser is opaque: it is handed a URL and an output path and
// must leave a PNG there.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/justapithecus/glean/log"
)

// commandContext is swapped in tests.
var commandContext = exec.CommandContext

// Placeholders substituted in command templates.
const (
	PlaceholderURL = "{url}"
	PlaceholderOut = "{out}"
)

// DefaultTimeout bounds one capture.
const DefaultTimeout = 60 * time.Second

// DefaultCommand is a headless Chromium screenshot at the capture width.
var DefaultCommand = []string{
	"chromium-browser",
	"--headless",
	"--no-sandbox",
	"--single-process",
	"--disable-dev-shm-usage",
	"--hide-scrollbars",
	"--window-size=1440,900",
	"--screenshot=" + PlaceholderOut,
	PlaceholderURL,
}

// ErrNoOutput is returned when the command exits cleanly without writing
// a screenshot.
var ErrNoOutput = errors.New("capture produced no output")

// Capturer writes a screenshot of url to out.
type Capturer interface {
	Capture(ctx context.Context, url, out string) error
}

// Command runs a browser command template.
type Command struct {
	argv    []string
	timeout time.Duration
	logger  *log.Logger
}

// NewCommand creates a Command. An empty argv selects DefaultCommand and a
// non-positive timeout selects DefaultTimeout.
func NewCommand(argv []string, timeout time.Duration, logger *log.Logger) (*Command, error) {
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	if !hasPlaceholder(argv, PlaceholderOut) {
		return nil, fmt.Errorf("capture command must reference %s", PlaceholderOut)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Command{argv: argv, timeout: timeout, logger: logger}, nil
}

// Capture runs the command and checks that out was written.
// The command is killed when the timeout expires.
func (c *Command) Capture(ctx context.Context, url, out string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := expand(c.argv, url, out)
	cmd := commandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	fields := map[string]any{"url": url, "duration_ms": time.Since(start).Milliseconds()}
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Warn("capture timed out", fields)
			return fmt.Errorf("capture %s: %w", url, ctx.Err())
		}
		fields["stderr"] = firstLine(stderr.String())
		c.logger.Warn("capture failed", fields)
		return fmt.Errorf("capture %s: %w: %s", url, err, firstLine(stderr.String()))
	}

	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("capture %s: %w", url, ErrNoOutput)
	}
	fields["size"] = info.Size()
	c.logger.Debug("capture done", fields)
	return nil
}

func expand(argv []string, url, out string) []string {
	r := strings.NewReplacer(PlaceholderURL, url, PlaceholderOut, out)
	args := make([]string, len(argv))
	for i, a := range argv {
		args[i] = r.Replace(a)
	}
	return args
}

func hasPlaceholder(argv []string, p string) bool {
	for _, a := range argv {
		if strings.Contains(a, p) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

var _ Capturer = (*Command)(nil)
