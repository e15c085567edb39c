package cmd

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/glean/cli/render"
	"github.com/justapithecus/glean/jobref"
	"github.com/justapithecus/glean/pipeline"
)

// ParseResponse is the rendered artifact reference of a job message.
type ParseResponse struct {
	Bucket     string `json:"bucket" yaml:"bucket"`
	Key        string `json:"key" yaml:"key"`
	Domain     string `json:"domain" yaml:"domain"`
	CapturedAt int64  `json:"captured_at" yaml:"captured_at"`
	JobKey     string `json:"job_key" yaml:"job_key"`
	SourceURL  string `json:"source_url" yaml:"source_url"`
}

// ParseCommand returns the parse command. It applies the configured grammar
// to a message without touching any backend.
func ParseCommand() *cli.Command {
	return &cli.Command{
		Name:  "parse",
		Usage: "Parse a job message with the configured grammar",
		Flags: withFlags(ConfigFlags(), OutputFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:     "message",
				Aliases:  []string{"m"},
				Usage:    "Job message (artifact location)",
				Required: true,
			},
		}),
		Action: parseAction,
	}
}

func parseAction(c *cli.Context) error {
	cfg, err := loadConfig(c, false)
	if err != nil {
		return err
	}
	parser, err := jobref.NewParser(cfg.Grammar)
	if err != nil {
		return configError(err)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ref, err := parser.Parse(c.String("message"))
	if err != nil {
		if errors.Is(err, jobref.ErrParse) {
			return cli.Exit(err.Error(), pipeline.ExitCodeParse)
		}
		return err
	}

	return r.Render(ParseResponse{
		Bucket:     ref.Bucket,
		Key:        ref.Key,
		Domain:     ref.Domain,
		CapturedAt: ref.CapturedAt,
		JobKey:     ref.JobKey(),
		SourceURL:  ref.SourceURL(),
	})
}
