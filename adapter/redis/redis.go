// Package redis announces stored artifact locations through Redis.
//
// In publish mode (the default) each location is PUBLISHed on a channel
// and only reaches subscribers connected at that moment. In list mode it is
// LPUSHed onto a list, which downstream workers drain with BRPOP, so
// locations survive until someone consumes them.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/glean/adapter"
)

// Delivery modes.
const (
	ModePublish = "publish"
	ModeList    = "list"
)

// DefaultChannel is the default channel or list name.
const DefaultChannel = "glean:artifacts"

// DefaultTimeout bounds a single Redis command.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db] (required).
	URL string
	// Channel is the pub/sub channel, or the list key in list mode.
	Channel string
	// Mode is publish or list (default publish).
	Mode string
	// Timeout bounds each command (default 5s).
	Timeout time.Duration
	// Retries is the number of retries after a failed command.
	Retries int
	// Backoff is the delay before the first retry (default 500ms).
	Backoff time.Duration
}

// Adapter delivers locations to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New validates cfg and creates the client. No connection is made until
// the first Send.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModePublish
	case ModePublish, ModeList:
	default:
		return nil, fmt.Errorf("redis adapter: mode %q must be %s or %s", cfg.Mode, ModePublish, ModeList)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Send delivers location, retrying failed commands with backoff.
func (a *Adapter) Send(ctx context.Context, location string) error {
	err := adapter.Retry(ctx, 1+a.config.Retries, a.config.Backoff, func(ctx context.Context) error {
		cmdCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.deliver(cmdCtx, location)
	})
	if err != nil {
		return fmt.Errorf("redis %s %s: %w", a.config.Mode, a.config.Channel, err)
	}
	return nil
}

func (a *Adapter) deliver(ctx context.Context, location string) error {
	if a.config.Mode == ModeList {
		return a.client.LPush(ctx, a.config.Channel, location).Err()
	}
	return a.client.Publish(ctx, a.config.Channel, location).Err()
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
