// Package extract turns an artifact into text through one of three
// interchangeable backends: a local OCR engine, a document text detection
// service and a general-purpose vision service.
//
// Extraction never fails past this boundary. Errors, timeouts and panics
// inside a backend all become an ExtractionResult with Succeeded false and
// empty Text, so the pipeline always proceeds to record.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/types"
)

// DefaultTimeout applies when Extract is called with a non-positive timeout.
const DefaultTimeout = 30 * time.Second

// overhead bounds how long Extract waits for a backend to return after
// its timeout has fired.
const overhead = 2 * time.Second

// Failure reasons.
const (
	ReasonTimeout    = "timeout"
	ReasonEmptyInput = "empty input"
	ReasonCanceled   = "canceled"
)

var (
	errEmptyInput = errors.New(ReasonEmptyInput)
	errPanic      = errors.New("backend panic")
)

// Input locates the artifact to extract from. Path is the local working
// copy; Bucket and Key locate the stored copy for services that read from
// the object store directly.
type Input struct {
	Path   string
	Bucket string
	Key    string
}

// stored reports whether the input names an object store location.
func (in Input) stored() bool {
	return in.Bucket != "" && in.Key != ""
}

// Extractor is a text extraction backend.
type Extractor interface {
	// Backend identifies the provider.
	Backend() types.Backend
	// Extract returns within timeout plus a bounded overhead and always
	// populates DurationMs.
	Extract(ctx context.Context, in Input, timeout time.Duration) types.ExtractionResult
}

// JoinFragments joins detected text fragments with single spaces,
// preserving detection order. Empty fragments are dropped.
func JoinFragments(fragments []string) string {
	kept := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f != "" {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

type outcome struct {
	text string
	err  error
}

// guard runs fn under timeout, converting errors, timeouts and panics into
// a failed result.
func guard(ctx context.Context, backend types.Backend, timeout time.Duration, logger *log.Logger,
	fn func(context.Context) (string, error),
) types.ExtractionResult {
	start := time.Now()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", errPanic, r)}
			}
		}()
		text, err := fn(runCtx)
		done <- outcome{text: text, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-runCtx.Done():
		select {
		case o = <-done:
		case <-time.After(overhead):
			o = outcome{err: runCtx.Err()}
		}
	}

	res := types.ExtractionResult{
		Backend:    backend,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if o.err == nil {
		res.Text = o.text
		res.Succeeded = true
		return res
	}

	res.Reason = reasonFor(runCtx, ctx, o.err)
	logger.Warn("text extraction failed", map[string]any{
		"backend":     string(backend),
		"reason":      res.Reason,
		"duration_ms": res.DurationMs,
	})
	return res
}

func reasonFor(runCtx, parent context.Context, err error) string {
	switch {
	case errors.Is(err, errEmptyInput):
		return ReasonEmptyInput
	case parent.Err() != nil:
		return ReasonCanceled
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return err.Error()
	}
}

// readInput loads the working copy for backends that upload bytes.
func readInput(path string) ([]byte, error) {
	if path == "" {
		return nil, errEmptyInput
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, errEmptyInput
	}
	return data, nil
}
