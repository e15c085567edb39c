// Package adapter defines the outbound notification boundary.
//
// After an artifact is stored, its location is announced to a downstream
// system (a queue, a pub/sub channel or an HTTP endpoint). Publishing is
// best effort from the pipeline's point of view: failures are logged and
// counted, never turned into job failures.
package adapter

import (
	"context"

	"github.com/justapithecus/glean/types"
)

// Adapter announces stored artifact locations to a downstream system.
type Adapter interface {
	// Send delivers body, typically a location from Location.
	// Must respect context cancellation and deadlines.
	Send(ctx context.Context, body string) error

	// Close releases adapter resources.
	Close() error
}

// Location builds the canonical location of a stored artifact. It is the
// message body consumed by the job reference parser.
func Location(bucket, key string) string {
	return types.Location(bucket, key)
}
