package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/glean/cli/render"
	"github.com/justapithecus/glean/pipeline"
)

// ProcessResponse is the rendered outcome of one job.
type ProcessResponse struct {
	State      string `json:"state" yaml:"state"`
	JobKey     string `json:"job_key,omitempty" yaml:"job_key,omitempty"`
	StoredKey  string `json:"stored_key,omitempty" yaml:"stored_key,omitempty"`
	BeforeSize int64  `json:"before_size" yaml:"before_size"`
	AfterSize  int64  `json:"after_size" yaml:"after_size"`
	Backend    string `json:"backend,omitempty" yaml:"backend,omitempty"`
	Extracted  bool   `json:"extracted" yaml:"extracted"`
	TextLength int    `json:"text_length" yaml:"text_length"`
	Published  bool   `json:"published" yaml:"published"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ProcessCommand returns the process command.
//
// Exit codes:
//   - 0: done
//   - 1: retryable abort (fetch, store or persist)
//   - 2: unparseable job message
//   - 3: invalid configuration
func ProcessCommand() *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Run one job message through the pipeline",
		Flags: withFlags(ConfigFlags(), OutputFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:     "message",
				Aliases:  []string{"m"},
				Usage:    "Job message (artifact location)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
		}),
		Action: processAction,
	}
}

func processAction(c *cli.Context) error {
	cfg, err := loadConfig(c, true)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	a, err := buildApp(ctx, cfg, newLogger(cfg))
	if err != nil {
		return exitOnBuild(err)
	}
	defer a.Close()

	result, perr := a.pipeline.Process(ctx, c.String("message"))
	if !c.Bool("quiet") {
		if err := r.Render(processResponse(result, perr)); err != nil {
			return err
		}
	}
	if perr != nil {
		msg := ""
		if c.Bool("quiet") {
			msg = perr.Error()
		}
		return cli.Exit(msg, pipeline.ExitCode(perr))
	}
	return nil
}

func processResponse(result *pipeline.Result, err error) ProcessResponse {
	resp := ProcessResponse{}
	if err != nil {
		resp.Error = err.Error()
	}
	if result == nil {
		resp.State = string(pipeline.StateAborted)
		return resp
	}
	resp.State = string(result.State)
	resp.BeforeSize = result.Compression.BeforeSize
	resp.AfterSize = result.Compression.AfterSize
	resp.Backend = string(result.Extraction.Backend)
	resp.Extracted = result.Extraction.Succeeded
	resp.TextLength = len(result.Extraction.Text)
	resp.Published = result.Published
	resp.DurationMs = result.Duration.Milliseconds()
	if result.Reference.Bucket != "" {
		resp.JobKey = result.Reference.JobKey()
	}
	if result.Record != nil {
		resp.StoredKey = result.Record.StoredKey
	}
	return resp
}

// exitOnBuild keeps exit codes already chosen by the builders and treats
// every other construction failure as invalid configuration.
func exitOnBuild(err error) error {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return err
	}
	return configError(err)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
