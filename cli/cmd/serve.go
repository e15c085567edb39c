package cmd

import (
	"net/netip"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/glean/api"
	"github.com/justapithecus/glean/capture"
	"github.com/justapithecus/glean/config"
	"github.com/justapithecus/glean/store"
)

// ServeCommand returns the serve command, which runs the HTTP API.
// Capture is enabled when a destination bucket is configured.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API (job submission and screenshot capture)",
		Flags: withFlags(ConfigFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides server.addr)",
			},
			&cli.BoolFlag{
				Name:  "no-capture",
				Usage: "Disable GET /v1/capture",
			},
		}),
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c, true)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	allowlist, err := parseAllowlist(cfg.Server.IPAllowlist)
	if err != nil {
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

	deps := api.Deps{
		Processor: a.pipeline,
		Store:     a.store,
		Publisher: a.publisher,
		Metrics:   a.metrics,
		Logger:    logger,
	}
	if p, ok := a.store.(store.Presigner); ok {
		deps.Presigner = p
	}
	if cfg.Bucket != "" && !c.Bool("no-capture") {
		capturer, err := capture.NewCommand(cfg.Server.Capture.Command, cfg.Server.Capture.Timeout.Duration, logger)
		if err != nil {
			return configError(err)
		}
		deps.Capturer = capturer
	}

	gin.SetMode(gin.ReleaseMode)
	srv, err := api.NewServer(api.Config{
		Addr:           cfg.Server.Addr,
		Bucket:         cfg.Bucket,
		CapturePrefix:  cfg.Server.Capture.Prefix,
		Allowlist:      allowlist,
		TrustedProxies: cfg.Server.TrustedProxies,
		WorkDir:        cfg.WorkDir,
	}, deps)
	if err != nil {
		return configError(err)
	}
	return srv.Run(ctx)
}

func parseAllowlist(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, s := range cidrs {
		p, err := config.ParseCIDR(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
