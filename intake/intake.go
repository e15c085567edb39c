// Package intake consumes job messages from a queue and hands them to a
// handler, settling each message from the handler's result.
//
// A message is acknowledged (deleted) when the handler succeeds or fails
// permanently, and released for redelivery when the failure is retryable.
// Redelivery is the only retry mechanism. On shutdown the source stops
// receiving and waits for in-flight handlers to return.
//
// Each handler runs under a deadline that ends before the broker's
// visibility window (SQS) or ack wait (NATS) does, so the orchestrator's
// budget checks abort a slow job before the broker hands it to another
// worker.
package intake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/justapithecus/glean/pipeline"
	"github.com/justapithecus/glean/store"
)

// DefaultConcurrency is the number of parallel handlers.
const DefaultConcurrency = 4

// Message is one delivered job message.
type Message struct {
	// ID is the broker's message identifier.
	ID string
	// Body is the raw job message.
	Body string
	// Attempt is the delivery count, 1 on first delivery, 0 when unknown.
	Attempt int
	// ReceivedAt is when the message was received by this process.
	ReceivedAt time.Time
}

// Handler processes one message. Handlers run concurrently.
type Handler func(ctx context.Context, msg Message) error

// Source delivers messages until ctx is canceled.
type Source interface {
	Run(ctx context.Context, h Handler) error
}

// Settlement is what happens to a message after its handler returns.
type Settlement string

const (
	// SettleAck removes the message from the queue.
	SettleAck Settlement = "ack"
	// SettleRetry makes the message visible for redelivery.
	SettleRetry Settlement = "retry"
)

// Settle decides the settlement for a handler result.
func Settle(err error) Settlement {
	if pipeline.Retryable(err) {
		return SettleRetry
	}
	return SettleAck
}

// Settlement margin bounds: the part of the broker window kept back from
// the handler for settlement calls.
const (
	minSettleMargin = 5 * time.Second
	maxSettleMargin = 30 * time.Second
)

// jobDeadline is the handler budget inside a broker window of the given
// length.
func jobDeadline(window time.Duration) time.Duration {
	margin := min(max(window/10, minSettleMargin), maxSettleMargin)
	if d := window - margin; d > 0 {
		return d
	}
	return window / 2
}

// RedeliveryDelay is how long a released message stays hidden. Aborts
// caused by a permanent object-store failure (missing object, denied
// access) wait out the whole window; other retryable failures come back
// at once.
func RedeliveryDelay(err error, window time.Duration) time.Duration {
	var se *store.Error
	if errors.As(err, &se) && !se.Transient() {
		return window
	}
	return 0
}

// pool bounds the number of concurrently running handlers.
type pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func newPool(n int) *pool {
	if n <= 0 {
		n = DefaultConcurrency
	}
	return &pool{sem: make(chan struct{}, n)}
}

// Go runs fn once a slot is free. It returns false without running fn
// when ctx is done first.
func (p *pool) Go(ctx context.Context, fn func()) bool {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		fn()
	}()
	return true
}

// Wait blocks until every started fn has returned.
func (p *pool) Wait() {
	p.wg.Wait()
}

// nextBackoff doubles d within [min, max].
func nextBackoff(d, minDelay, maxDelay time.Duration) time.Duration {
	if d <= 0 {
		return minDelay
	}
	d *= 2
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// sleep waits for d or until ctx is done. Returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
