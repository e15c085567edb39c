// Package nats implements a NATS publish adapter.
//
// Publishes locations on a subject, through JetStream when enabled so the
// message is persisted for durable consumers.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/justapithecus/glean/adapter"
)

// DefaultSubject is the default publish subject.
const DefaultSubject = "glean.artifacts"

// Config configures the NATS adapter.
type Config struct {
	// URL is the NATS server URL (required).
	URL string
	// Subject is the publish subject (default: glean.artifacts).
	Subject string
	// JetStream publishes through JetStream and waits for the ack.
	JetStream bool
}

// publisher is the subset of a NATS connection or JetStream context used
// by Adapter.
type publisher interface {
	publish(ctx context.Context, subject string, data []byte) error
}

type corePublisher struct{ nc *natsgo.Conn }

func (p corePublisher) publish(_ context.Context, subject string, data []byte) error {
	if err := p.nc.Publish(subject, data); err != nil {
		return err
	}
	return p.nc.Flush()
}

type jsPublisher struct{ js natsgo.JetStreamContext }

func (p jsPublisher) publish(ctx context.Context, subject string, data []byte) error {
	_, err := p.js.Publish(subject, data, natsgo.Context(ctx))
	return err
}

// Adapter publishes locations on a NATS subject.
type Adapter struct {
	subject string
	pub     publisher
	nc      *natsgo.Conn
}

// New connects to NATS and creates the adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats adapter requires a URL")
	}
	nc, err := natsgo.Connect(cfg.URL,
		natsgo.Name("glean-adapter"),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats adapter: connect: %w", err)
	}

	var pub publisher = corePublisher{nc: nc}
	if cfg.JetStream {
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("nats adapter: jetstream: %w", err)
		}
		pub = jsPublisher{js: js}
	}

	a := newAdapter(pub, cfg.Subject)
	a.nc = nc
	return a, nil
}

func newAdapter(pub publisher, subject string) *Adapter {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Adapter{subject: subject, pub: pub}
}

// Send publishes body on the configured subject.
func (a *Adapter) Send(ctx context.Context, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("nats: context canceled: %w", err)
	}
	if err := a.pub.publish(ctx, a.subject, []byte(body)); err != nil {
		return fmt.Errorf("nats: publish %s: %w", a.subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (a *Adapter) Close() error {
	if a.nc == nil {
		return nil
	}
	return a.nc.Drain()
}

var _ adapter.Adapter = (*Adapter)(nil)
