package config

import (
	"fmt"
	"time"

	"github.com/justapithecus/glean/jobref"
)

// Config is the glean.yaml configuration. Every section is optional;
// Defaults supplies the values a bare deployment runs with.
type Config struct {
	// Bucket receives compressed artifacts and captures.
	// Empty re-uses the source bucket of each job.
	Bucket         string            `yaml:"bucket"`
	Storage        StorageConfig     `yaml:"storage"`
	Metadata       MetadataConfig    `yaml:"metadata"`
	Queue          QueueConfig       `yaml:"queue"`
	Intake         IntakeConfig      `yaml:"intake"`
	Extraction     ExtractionConfig  `yaml:"extraction"`
	Compression    CompressionConfig `yaml:"compression"`
	Grammar        jobref.Grammar    `yaml:"grammar"`
	StageTimeout   Duration          `yaml:"stage_timeout"`
	MinStageBudget Duration          `yaml:"min_stage_budget"`
	JobTimeout     Duration          `yaml:"job_timeout"`
	WorkDir        string            `yaml:"work_dir"`
	Server         ServerConfig      `yaml:"server"`
	Metrics        MetricsConfig     `yaml:"metrics"`
	Log            LogConfig         `yaml:"log"`
}

// StorageConfig selects the object store.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	// OutputPrefix is prepended to source keys for compressed copies.
	OutputPrefix string   `yaml:"output_prefix"`
	StorageClass string   `yaml:"storage_class"`
	ACL          string   `yaml:"acl"`
	PresignTTL   Duration `yaml:"presign_ttl"`
}

// MetadataConfig selects the record store.
type MetadataConfig struct {
	Backend string `yaml:"backend"`
	Table   string `yaml:"table"`
	Region  string `yaml:"region"`
	DSN     string `yaml:"dsn"`
	Path    string `yaml:"path"`
}

// QueueConfig configures the outbound adapter. An empty Type disables it.
type QueueConfig struct {
	Type      string            `yaml:"type"`
	URL       string            `yaml:"url"`
	Region    string            `yaml:"region"`
	Channel   string            `yaml:"channel,omitempty"`
	Mode      string            `yaml:"mode,omitempty"`
	Subject   string            `yaml:"subject,omitempty"`
	JetStream bool              `yaml:"jetstream,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Secret    string            `yaml:"secret,omitempty"`
	Timeout   Duration          `yaml:"timeout,omitempty"`
	Retries   *int              `yaml:"retries,omitempty"`
	Backoff   Duration          `yaml:"backoff,omitempty"`
}

// IntakeConfig configures the inbound job source used by the worker.
type IntakeConfig struct {
	Type        string `yaml:"type"`
	Concurrency int    `yaml:"concurrency"`

	// SQS
	QueueURL          string   `yaml:"queue_url"`
	Region            string   `yaml:"region"`
	WaitTime          Duration `yaml:"wait_time"`
	MaxMessages       int      `yaml:"max_messages"`
	VisibilityTimeout Duration `yaml:"visibility_timeout"`

	// NATS
	URL        string   `yaml:"url"`
	Subject    string   `yaml:"subject"`
	QueueGroup string   `yaml:"queue_group"`
	AckWait    Duration `yaml:"ack_wait"`
}

// ExtractionConfig selects the text extraction backend.
type ExtractionConfig struct {
	Backend  string   `yaml:"backend"`
	Timeout  Duration `yaml:"timeout"`
	Region   string   `yaml:"region"`
	Binary   string   `yaml:"binary"`
	Language string   `yaml:"language"`
}

// CompressionConfig configures pngquant.
type CompressionConfig struct {
	Disabled bool     `yaml:"disabled"`
	Binary   string   `yaml:"binary"`
	Speed    int      `yaml:"speed"`
	Timeout  Duration `yaml:"timeout"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// IPAllowlist holds the CIDRs allowed to request captures.
	// Empty allows every client.
	IPAllowlist []string `yaml:"ip_allowlist"`
	// TrustedProxies may set X-Forwarded-For. Empty uses the peer address.
	TrustedProxies []string      `yaml:"trusted_proxies"`
	Capture        CaptureConfig `yaml:"capture"`
}

// CaptureConfig configures the screenshot command.
type CaptureConfig struct {
	// Command is the argv template; {url} and {out} are substituted.
	Command []string `yaml:"command"`
	Timeout Duration `yaml:"timeout"`
	Prefix  string   `yaml:"prefix"`
}

// MetricsConfig configures the worker's metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns the configuration of a bare deployment: S3 storage,
// DynamoDB records, local OCR, no outbound queue.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Backend:      "s3",
			OutputPrefix: "compressed/",
			StorageClass: "ONEZONE_IA",
			PresignTTL:   Duration{time.Hour},
		},
		Metadata: MetadataConfig{Backend: "dynamodb"},
		Intake: IntakeConfig{
			Type:              "sqs",
			Concurrency:       4,
			WaitTime:          Duration{20 * time.Second},
			MaxMessages:       10,
			VisibilityTimeout: Duration{5 * time.Minute},
			AckWait:           Duration{10 * time.Minute},
		},
		Extraction: ExtractionConfig{
			Backend:  "local",
			Timeout:  Duration{30 * time.Second},
			Language: "eng",
		},
		Compression: CompressionConfig{
			Speed:   1,
			Timeout: Duration{30 * time.Second},
		},
		StageTimeout:   Duration{30 * time.Second},
		MinStageBudget: Duration{2 * time.Second},
		JobTimeout:     Duration{4 * time.Minute},
		Server: ServerConfig{
			Addr: ":8080",
			Capture: CaptureConfig{
				Timeout: Duration{60 * time.Second},
				Prefix:  "screenshots",
			},
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		Log:     LogConfig{Level: "info"},
	}
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
