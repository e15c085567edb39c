// Package compress shrinks PNG working copies with pngquant.
//
// Compression is best effort. Every failure mode (missing binary, non-zero
// exit, timeout, output not smaller) passes the original through untouched
// and is reported in CompressResult.Reason instead of as an error.
package compress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/justapithecus/glean/iox"
	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/types"
)

var commandContext = exec.CommandContext

// Defaults.
const (
	DefaultBinary  = "pngquant"
	DefaultSpeed   = 1
	DefaultTimeout = 30 * time.Second

	// waitDelay bounds how long Wait blocks on I/O after the process is killed.
	waitDelay = 2 * time.Second
)

// pngquant exit codes for a skipped conversion.
const (
	exitQualityTooLow = 99
	exitNotSmaller    = 98
)

// Pass-through reasons.
const (
	ReasonDisabled    = "disabled"
	ReasonUnavailable = "tool unavailable"
	ReasonTimeout     = "timeout"
	ReasonNotSmaller  = "output not smaller"
	ReasonQuality     = "quality below minimum"
	ReasonFailed      = "tool failed"
	ReasonStatFailed  = "stat failed"
)

// Option configures a Compressor.
type Option func(*Compressor)

// WithBinary overrides the pngquant binary name or path.
func WithBinary(binary string) Option {
	return func(c *Compressor) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithSpeed sets pngquant's --speed (1 slowest/best .. 11 fastest).
func WithSpeed(speed int) Option {
	return func(c *Compressor) {
		if speed >= 1 && speed <= 11 {
			c.speed = speed
		}
	}
}

// WithTimeout bounds a single compression run.
func WithTimeout(d time.Duration) Option {
	return func(c *Compressor) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDisabled turns the compressor into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(c *Compressor) {
		c.disabled = disabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Compressor) {
		c.logger = logger
	}
}

// Compressor runs pngquant against a working copy.
// It holds no per-job state and is safe for concurrent use.
type Compressor struct {
	binary   string
	speed    int
	timeout  time.Duration
	disabled bool
	logger   *log.Logger
}

// New creates a Compressor with defaults applied.
func New(opts ...Option) *Compressor {
	c := &Compressor{
		binary:  DefaultBinary,
		speed:   DefaultSpeed,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compress attempts to shrink blob in place.
// The working copy is replaced only by a strictly smaller output, so
// AfterSize <= BeforeSize holds for every result.
func (c *Compressor) Compress(ctx context.Context, blob *types.ArtifactBlob) types.CompressResult {
	start := time.Now()
	result := types.CompressResult{BeforeSize: blob.Size, AfterSize: blob.Size}
	finish := func(reason string) types.CompressResult {
		result.Reason = reason
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	if c.disabled {
		return finish(ReasonDisabled)
	}
	if err := blob.Refresh(); err != nil {
		c.logger.Warn("compression skipped", map[string]any{"path": blob.Path, "error": err.Error()})
		return finish(ReasonStatFailed)
	}
	result.BeforeSize = blob.Size
	result.AfterSize = blob.Size

	out := blob.Path + ".pngquant"
	defer func() { _ = os.Remove(out) }()

	if reason := c.run(ctx, blob.Path, out); reason != "" {
		return finish(reason)
	}

	info, err := os.Stat(out)
	if err != nil {
		// --skip-if-larger may exit 0 without writing output on older builds.
		return finish(ReasonNotSmaller)
	}
	if info.Size() >= blob.Size {
		return finish(ReasonNotSmaller)
	}
	if err := iox.ReplaceFile(out, blob.Path); err != nil {
		c.logger.Warn("compression output discarded", map[string]any{"path": blob.Path, "error": err.Error()})
		return finish(ReasonFailed)
	}

	blob.Size = info.Size()
	result.AfterSize = info.Size()
	result.Applied = true
	return finish("")
}

// run executes pngquant. It returns "" on a clean exit or the pass-through reason.
func (c *Compressor) run(ctx context.Context, in, out string) string {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{
		"--force",
		"--skip-if-larger",
		"--speed", strconv.Itoa(c.speed),
		"--output", out,
		"--", in,
	}
	cmd := commandContext(runCtx, c.binary, args...) //nolint:gosec
	cmd.WaitDelay = waitDelay

	output, err := cmd.CombinedOutput()
	if err == nil {
		return ""
	}

	fields := map[string]any{"path": in, "binary": c.binary, "error": err.Error()}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		c.logger.Warn("compression timed out", fields)
		return ReasonTimeout
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("compression tool unavailable", fields)
		return ReasonUnavailable
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case exitNotSmaller:
			c.logger.Debug("compression skipped: output not smaller", fields)
			return ReasonNotSmaller
		case exitQualityTooLow:
			c.logger.Debug("compression skipped: quality too low", fields)
			return ReasonQuality
		}
		fields["exit_code"] = exitErr.ExitCode()
		fields["output"] = truncate(string(output), 512)
		c.logger.Warn("compression failed", fields)
		return fmt.Sprintf("%s (exit %d)", ReasonFailed, exitErr.ExitCode())
	}

	c.logger.Warn("compression failed", fields)
	return ReasonFailed
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
