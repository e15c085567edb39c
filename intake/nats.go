package intake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/justapithecus/glean/log"
)

// NATS defaults.
const (
	DefaultNATSSubject = "glean.jobs"
	DefaultNATSQueue   = "glean-workers"
	DefaultAckWait     = 10 * time.Minute
)

// NATSConfig configures the JetStream source.
type NATSConfig struct {
	// URL is the server URL (default nats://127.0.0.1:4222).
	URL string
	// Subject carries job messages (default glean.jobs).
	Subject string
	// Queue is the queue group and durable consumer name (default glean-workers).
	Queue string
	// Concurrency is the number of parallel handlers (default 4).
	Concurrency int
	// AckWait is how long the server waits for a settlement (default 10m).
	AckWait time.Duration
}

func (c NATSConfig) withDefaults() NATSConfig {
	if c.URL == "" {
		c.URL = natsgo.DefaultURL
	}
	if c.Subject == "" {
		c.Subject = DefaultNATSSubject
	}
	if c.Queue == "" {
		c.Queue = DefaultNATSQueue
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	return c
}

// acker is the settlement surface of a JetStream message.
type acker interface {
	Ack(opts ...natsgo.AckOpt) error
	Nak(opts ...natsgo.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...natsgo.AckOpt) error
}

// NATSSource consumes a JetStream subject through a durable queue consumer
// with explicit acknowledgement.
type NATSSource struct {
	config NATSConfig
	logger *log.Logger
}

// NewNATS creates a JetStream source. The connection is made by Run.
func NewNATS(cfg NATSConfig, logger *log.Logger) *NATSSource {
	if logger == nil {
		logger = log.NewNop()
	}
	return &NATSSource{config: cfg.withDefaults(), logger: logger}
}

// Run subscribes and dispatches messages until ctx is canceled, then
// unsubscribes and waits for in-flight handlers. Messages buffered but not
// yet started are Nak'd.
func (s *NATSSource) Run(ctx context.Context, h Handler) error {
	nc, err := natsgo.Connect(s.config.URL, natsgo.Name("glean-intake"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		return fmt.Errorf("nats jetstream: %w", err)
	}

	ch := make(chan *natsgo.Msg, s.config.Concurrency)
	sub, err := js.ChanQueueSubscribe(s.config.Subject, s.config.Queue, ch,
		natsgo.ManualAck(),
		natsgo.AckExplicit(),
		natsgo.AckWait(s.config.AckWait),
		natsgo.MaxAckPending(s.config.Concurrency*2),
		natsgo.Durable(s.config.Queue),
	)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", s.config.Subject, err)
	}

	s.logger.Info("nats intake subscribed", map[string]any{
		"subject": s.config.Subject,
		"queue":   s.config.Queue,
	})

	p := newPool(s.config.Concurrency)
	s.consume(ctx, ch, p, h)

	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, natsgo.ErrConnectionClosed) {
		s.logger.Warn("nats unsubscribe failed", map[string]any{"error": err.Error()})
	}
	p.Wait()
	for {
		select {
		case m := <-ch:
			_ = m.Nak()
		default:
			return nil
		}
	}
}

func (s *NATSSource) consume(ctx context.Context, ch <-chan *natsgo.Msg, p *pool, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-ch:
			msg := natsMessage(m)
			if !p.Go(ctx, func() { s.handle(ctx, h, msg, m) }) {
				_ = m.Nak()
				return
			}
		}
	}
}

func (s *NATSSource) handle(ctx context.Context, h Handler, msg Message, m acker) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobDeadline(s.config.AckWait))
	err := h(hctx, msg)
	cancel()

	fields := map[string]any{"message_id": msg.ID, "attempt": msg.Attempt}
	switch Settle(err) {
	case SettleAck:
		if err != nil {
			fields["error"] = err.Error()
			s.logger.Error("dropping message after permanent failure", fields)
		}
		if aerr := m.Ack(); aerr != nil {
			fields["error"] = aerr.Error()
			s.logger.Warn("nats ack failed", fields)
		}
	case SettleRetry:
		delay := RedeliveryDelay(err, s.config.AckWait)
		fields["error"] = err.Error()
		fields["delay_s"] = int(delay / time.Second)
		s.logger.Warn("releasing message for redelivery", fields)
		var nerr error
		if delay > 0 {
			nerr = m.NakWithDelay(delay)
		} else {
			nerr = m.Nak()
		}
		if nerr != nil {
			fields["error"] = nerr.Error()
			s.logger.Warn("nats nak failed", fields)
		}
	}
}

func natsMessage(m *natsgo.Msg) Message {
	msg := Message{Body: string(m.Data), ReceivedAt: time.Now()}
	if meta, err := m.Metadata(); err == nil {
		msg.ID = strconv.FormatUint(meta.Sequence.Stream, 10)
		msg.Attempt = int(meta.NumDelivered)
	}
	return msg
}

var _ Source = (*NATSSource)(nil)
