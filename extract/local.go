package extract

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
	"github.com/justapithecus/glean/types"
)

var commandContext = exec.CommandContext

// Local defaults.
const (
	DefaultTesseract = "tesseract"
	DefaultLanguage  = "eng"
)

// LocalOptions configures the local OCR backend.
type LocalOptions struct {
	// Binary is the tesseract executable (default "tesseract").
	Binary string
	// Language is the tesseract language pack (default "eng").
	Language string
}

// Local runs tesseract against the working copy.
type Local struct {
	binary   string
	language string
	logger   *log.Logger
}

// NewLocal creates the local OCR backend.
func NewLocal(opts LocalOptions, logger *log.Logger) *Local {
	l := &Local{binary: DefaultTesseract, language: DefaultLanguage, logger: logger}
	if opts.Binary != "" {
		l.binary = opts.Binary
	}
	if opts.Language != "" {
		l.language = opts.Language
	}
	return l
}

// Backend returns types.BackendLocal.
func (l *Local) Backend() types.Backend { return types.BackendLocal }

// Extract runs `tesseract <path> stdout -l <lang>`. The process is killed
// when the timeout fires.
func (l *Local) Extract(ctx context.Context, in Input, timeout time.Duration) types.ExtractionResult {
	return guard(ctx, types.BackendLocal, timeout, l.logger, func(ctx context.Context) (string, error) {
		info, err := os.Stat(in.Path)
		if in.Path == "" || (err == nil && info.Size() == 0) {
			return "", errEmptyInput
		}
		if err != nil {
			return "", fmt.Errorf("stat input: %w", err)
		}

		cmd := commandContext(ctx, l.binary, in.Path, "stdout", "-l", l.language) //nolint:gosec
		cmd.WaitDelay = overhead / 2
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return "", fmt.Errorf("tesseract exit %d: %s", exitErr.ExitCode(), firstLine(stderr.String()))
			}
			return "", fmt.Errorf("run tesseract: %w", err)
		}
		return strings.TrimSpace(stdout.String()), nil
	})
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var _ Extractor = (*Local)(nil)
