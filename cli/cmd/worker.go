package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/glean/intake"
	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/metrics"
)

const metricsShutdownTimeout = 5 * time.Second

// WorkerCommand returns the worker command, which consumes job messages
// from the configured intake until interrupted.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Consume job messages from the intake queue",
		Flags: withFlags(ConfigFlags(), []cli.Flag{
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Parallel jobs (overrides intake.concurrency)",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Serve /metrics (overrides metrics.enabled)",
			},
		}),
		Action: workerAction,
	}
}

func workerAction(c *cli.Context) error {
	cfg, err := loadConfig(c, false)
	if err != nil {
		return err
	}
	if n := c.Int("concurrency"); n > 0 {
		cfg.Intake.Concurrency = n
	}
	if c.Bool("metrics") {
		cfg.Metrics.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return configError(err)
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	logger := newLogger(cfg)
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return exitOnBuild(err)
	}
	defer a.Close()

	src, err := buildSource(ctx, cfg, logger)
	if err != nil {
		return exitOnBuild(err)
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Addr, a.metrics, logger)
	}

	logger.Info("worker started", map[string]any{
		"intake":      cfg.Intake.Type,
		"concurrency": cfg.Intake.Concurrency,
		"backend":     cfg.Extraction.Backend,
	})
	err = src.Run(ctx, func(ctx context.Context, msg intake.Message) error {
		_, err := a.pipeline.Process(ctx, msg.Body)
		return err
	})
	logger.Info("worker stopped", nil)
	return err
}

// serveMetrics exposes the collector until ctx is canceled.
func serveMetrics(ctx context.Context, addr string, m *metrics.Collector, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", map[string]any{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics listener failed", map[string]any{"error": err.Error()})
	}
}
