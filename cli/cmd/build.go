package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/glean/adapter"
	natsadapter "github.com/justapithecus/glean/adapter/nats"
	redisadapter "github.com/justapithecus/glean/adapter/redis"
	sqsadapter "github.com/justapithecus/glean/adapter/sqs"
	"github.com/justapithecus/glean/adapter/webhook"
	"github.com/justapithecus/glean/awsconf"
	"github.com/justapithecus/glean/compress"
	"github.com/justapithecus/glean/config"
	"github.com/justapithecus/glean/extract"
	"github.com/justapithecus/glean/intake"
	"github.com/justapithecus/glean/jobref"
	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/metrics"
	"github.com/justapithecus/glean/pipeline"
	"github.com/justapithecus/glean/record"
	"github.com/justapithecus/glean/store"
	"github.com/justapithecus/glean/types"
)

const serviceName = "glean"

// loadConfig reads env files and the configuration named by the shared
// flags. Failures exit with the invalid-configuration code.
func loadConfig(c *cli.Context, validate bool) (*config.Config, error) {
	if err := config.LoadEnvFiles(c.StringSlice(EnvFileFlag.Name)...); err != nil {
		return nil, configError(err)
	}
	cfg, err := config.Read(c.String(ConfigFlag.Name))
	if err != nil {
		return nil, configError(err)
	}
	if lvl := c.String(LogLevelFlag.Name); lvl != "" {
		cfg.Log.Level = lvl
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, configError(err)
		}
	}
	return cfg, nil
}

func configError(err error) error {
	return cli.Exit(fmt.Sprintf("configuration: %v", err), pipeline.ExitCodeInvalidConfig)
}

func newLogger(cfg *config.Config) *log.Logger {
	return log.NewLogger(serviceName, cfg.Log.Level)
}

// app holds the long-lived components built from a configuration.
type app struct {
	cfg       *config.Config
	logger    *log.Logger
	metrics   *metrics.Collector
	store     store.Store
	recorder  record.Recorder
	publisher adapter.Adapter
	pipeline  *pipeline.Orchestrator
}

// buildApp constructs every component of the pipeline. The caller must
// Close the result.
func buildApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.NewCollector()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	parser, err := jobref.NewParser(cfg.Grammar)
	if err != nil {
		return nil, configError(err)
	}
	if a.store, err = buildStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	extractor, err := buildExtractor(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}
	if a.recorder, err = buildRecorder(ctx, cfg, logger); err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	if a.publisher, err = buildPublisher(ctx, cfg.Queue); err != nil {
		return nil, fmt.Errorf("queue adapter: %w", err)
	}

	a.pipeline, err = pipeline.New(pipeline.Config{
		Bucket:            cfg.Bucket,
		KeyPrefix:         cfg.Storage.OutputPrefix,
		StorageClass:      cfg.Storage.StorageClass,
		ACL:               cfg.Storage.ACL,
		StageTimeout:      cfg.StageTimeout.Duration,
		ExtractionTimeout: cfg.Extraction.Timeout.Duration,
		MinStageBudget:    cfg.MinStageBudget.Duration,
		JobTimeout:        cfg.JobTimeout.Duration,
		WorkDir:           cfg.WorkDir,
	}, pipeline.Deps{
		Parser:     parser,
		Store:      a.store,
		Compressor: buildCompressor(cfg, logger),
		Extractor:  extractor,
		Recorder:   a.recorder,
		Publisher:  a.publisher,
		Logger:     logger,
		Metrics:    a.metrics,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases the recorder and publisher and flushes the logger.
func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("close queue adapter", map[string]any{"error": err.Error()})
		}
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.logger.Warn("close recorder", map[string]any{"error": err.Error()})
		}
	}
	_ = a.logger.Sync()
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	return store.New(ctx, store.Config{
		Backend: cfg.Storage.Backend,
		Path:    cfg.Storage.Path,
		S3: store.S3Config{
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.S3PathStyle,
			PresignTTL:   cfg.Storage.PresignTTL.Duration,
		},
	})
}

func buildRecorder(ctx context.Context, cfg *config.Config, logger *log.Logger) (record.Recorder, error) {
	return record.New(ctx, record.Config{
		Backend: cfg.Metadata.Backend,
		Table:   cfg.Metadata.Table,
		Region:  cfg.Metadata.Region,
		DSN:     cfg.Metadata.DSN,
		Path:    cfg.Metadata.Path,
	}, logger)
}

// buildExtractor resolves AWS credentials only for the cloud backends.
func buildExtractor(ctx context.Context, cfg *config.Config, logger *log.Logger) (extract.Extractor, error) {
	backend, err := types.ParseBackend(cfg.Extraction.Backend)
	if err != nil {
		return nil, err
	}
	local := extract.LocalOptions{
		Binary:   cfg.Extraction.Binary,
		Language: cfg.Extraction.Language,
	}
	deps := extract.Deps{Local: local, Logger: logger}
	if backend != types.BackendLocal {
		awsCfg, err := awsconf.Load(ctx, awsconf.Options{Region: cfg.Extraction.Region})
		if err != nil {
			return nil, err
		}
		deps = extract.AWSDeps(awsCfg, local, logger)
	}
	return extract.New(backend, deps)
}

func buildCompressor(cfg *config.Config, logger *log.Logger) *compress.Compressor {
	return compress.New(
		compress.WithBinary(cfg.Compression.Binary),
		compress.WithSpeed(cfg.Compression.Speed),
		compress.WithTimeout(cfg.Compression.Timeout.Duration),
		compress.WithDisabled(cfg.Compression.Disabled),
		compress.WithLogger(logger),
	)
}

// buildPublisher returns nil when no outbound queue is configured.
func buildPublisher(ctx context.Context, q config.QueueConfig) (adapter.Adapter, error) {
	retries := func(def int) int {
		if q.Retries != nil {
			return *q.Retries
		}
		return def
	}

	var (
		a   adapter.Adapter
		err error
	)
	switch q.Type {
	case "":
		return nil, nil
	case "sqs":
		a, err = sqsadapter.New(ctx, sqsadapter.Config{
			QueueURL: q.URL,
			Region:   q.Region,
			Timeout:  q.Timeout.Duration,
		})
	case "redis":
		a, err = redisadapter.New(redisadapter.Config{
			URL:     q.URL,
			Channel: q.Channel,
			Mode:    q.Mode,
			Timeout: q.Timeout.Duration,
			Retries: retries(redisadapter.DefaultRetries),
			Backoff: q.Backoff.Duration,
		})
	case "webhook":
		a, err = webhook.New(webhook.Config{
			URL:     q.URL,
			Headers: q.Headers,
			Secret:  q.Secret,
			Timeout: q.Timeout.Duration,
			Retries: retries(webhook.DefaultRetries),
			Backoff: q.Backoff.Duration,
		})
	case "nats":
		a, err = natsadapter.New(natsadapter.Config{
			URL:       q.URL,
			Subject:   q.Subject,
			JetStream: q.JetStream,
		})
	default:
		return nil, fmt.Errorf("unknown queue type %q", q.Type)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func buildSource(ctx context.Context, cfg *config.Config, logger *log.Logger) (intake.Source, error) {
	in := cfg.Intake
	switch in.Type {
	case "sqs":
		src, err := intake.NewSQS(ctx, intake.SQSConfig{
			QueueURL:          in.QueueURL,
			Region:            in.Region,
			Concurrency:       in.Concurrency,
			WaitTime:          in.WaitTime.Duration,
			MaxMessages:       in.MaxMessages,
			VisibilityTimeout: in.VisibilityTimeout.Duration,
		}, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "nats":
		return intake.NewNATS(intake.NATSConfig{
			URL:         in.URL,
			Subject:     in.Subject,
			Queue:       in.QueueGroup,
			Concurrency: in.Concurrency,
			AckWait:     in.AckWait.Duration,
		}, logger), nil
	default:
		return nil, errors.New("intake.type must be sqs or nats")
	}
}
