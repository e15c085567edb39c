package config

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/justapithecus/glean/types"
)

// ErrInvalid matches every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Storage.Backend {
	case "s3":
	case "fs":
		if c.Storage.Path == "" {
			add("storage.path is required for the fs backend")
		}
	case "memory":
	default:
		add("storage.backend %q must be s3, fs, or memory", c.Storage.Backend)
	}

	switch c.Metadata.Backend {
	case "dynamodb":
		if c.Metadata.Table == "" {
			add("metadata.table is required for the dynamodb backend (or set %s)", EnvMetadataTable)
		}
	case "postgres":
		if c.Metadata.DSN == "" {
			add("metadata.dsn is required for the postgres backend")
		}
	case "sqlite":
		if c.Metadata.Path == "" {
			add("metadata.path is required for the sqlite backend")
		}
	default:
		add("metadata.backend %q must be dynamodb, postgres, or sqlite", c.Metadata.Backend)
	}

	switch c.Queue.Type {
	case "":
	case "sqs", "redis", "webhook", "nats":
		if c.Queue.URL == "" {
			add("queue.url is required for the %s adapter", c.Queue.Type)
		}
	default:
		add("queue.type %q must be sqs, redis, webhook, or nats", c.Queue.Type)
	}
	if c.Queue.Type == "redis" && c.Queue.Mode != "" && c.Queue.Mode != "publish" && c.Queue.Mode != "list" {
		add("queue.mode %q must be publish or list", c.Queue.Mode)
	}

	switch c.Intake.Type {
	case "sqs", "nats":
	default:
		add("intake.type %q must be sqs or nats", c.Intake.Type)
	}
	if c.Intake.Concurrency < 1 {
		add("intake.concurrency must be at least 1")
	}

	if _, err := types.ParseBackend(c.Extraction.Backend); err != nil {
		add("extraction.backend: %v", err)
	}
	if c.Extraction.Timeout.Duration <= 0 {
		add("extraction.timeout must be positive")
	}

	if !c.Compression.Disabled && (c.Compression.Speed < 1 || c.Compression.Speed > 11) {
		add("compression.speed must be between 1 and 11")
	}

	if err := c.Grammar.Validate(); err != nil {
		add("grammar: %v", err)
	}

	if c.StageTimeout.Duration <= 0 {
		add("stage_timeout must be positive")
	}
	if c.MinStageBudget.Duration < 0 {
		add("min_stage_budget must not be negative")
	}
	if c.JobTimeout.Duration < 0 {
		add("job_timeout must not be negative")
	}

	for _, cidr := range c.Server.IPAllowlist {
		if _, err := ParseCIDR(cidr); err != nil {
			add("server.ip_allowlist: %v", err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// ParseCIDR parses a CIDR or a bare address (treated as a single host).
func ParseCIDR(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid CIDR %q", s)
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
