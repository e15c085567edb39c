package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides. The lowercase names are the ones the original
// deployments were configured with.
const (
	EnvBucket            = "s3bucket"
	EnvMetadataTable     = "dynamodb_table"
	EnvQueue             = "sqsqueue"
	EnvIPAllowlist       = "ip_allowlist"
	EnvExtractionBackend = "GLEAN_EXTRACTION_BACKEND"
	EnvExtractionTimeout = "GLEAN_EXTRACTION_TIMEOUT_MS"
	EnvStageTimeout      = "GLEAN_STAGE_TIMEOUT_MS"
	EnvJobTimeout        = "GLEAN_JOB_TIMEOUT_MS"
	EnvIntakeQueue       = "GLEAN_INTAKE_QUEUE_URL"
	EnvLogLevel          = "GLEAN_LOG_LEVEL"
)

// LoadEnvFiles loads KEY=VALUE files into the process environment.
// Variables that are already set are not overwritten.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads the configuration and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read builds the effective configuration without validating it: Defaults,
// then the YAML file at path (skipped when path is empty), then environment
// overrides.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
		}

		expanded, err := ExpandEnv(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvBucket); ok {
		cfg.Bucket = v
	}
	if v, ok := get(EnvMetadataTable); ok {
		cfg.Metadata.Backend = "dynamodb"
		cfg.Metadata.Table = v
	}
	if v, ok := get(EnvQueue); ok {
		cfg.Queue.Type = "sqs"
		cfg.Queue.URL = v
	}
	if v, ok := get(EnvIPAllowlist); ok {
		cfg.Server.IPAllowlist = splitList(v)
	}
	if v, ok := get(EnvExtractionBackend); ok {
		cfg.Extraction.Backend = v
	}
	if v, ok := get(EnvExtractionTimeout); ok {
		d, err := millis(EnvExtractionTimeout, v)
		if err != nil {
			return err
		}
		cfg.Extraction.Timeout = Duration{d}
	}
	if v, ok := get(EnvStageTimeout); ok {
		d, err := millis(EnvStageTimeout, v)
		if err != nil {
			return err
		}
		cfg.StageTimeout = Duration{d}
	}
	if v, ok := get(EnvJobTimeout); ok {
		d, err := millis(EnvJobTimeout, v)
		if err != nil {
			return err
		}
		cfg.JobTimeout = Duration{d}
	}
	if v, ok := get(EnvIntakeQueue); ok {
		cfg.Intake.Type = "sqs"
		cfg.Intake.QueueURL = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	return nil
}

func millis(name, v string) (time.Duration, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer of milliseconds, got %q", name, v)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// splitList splits on commas and whitespace, dropping empty items.
func splitList(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}
