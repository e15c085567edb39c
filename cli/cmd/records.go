package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/glean/cli/render"
	"github.com/justapithecus/glean/cli/tui"
	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/record"
	"github.com/justapithecus/glean/types"
)

// recordLister is implemented by recorders that can enumerate records.
type recordLister interface {
	List(ctx context.Context, limit int) ([]*types.ProcessingRecord, error)
}

// RecordsCommand returns the records command group. Reads need a
// sqlite or postgres metadata backend.
func RecordsCommand() *cli.Command {
	flags := withFlags(ConfigFlags(), OutputFlags())
	return &cli.Command{
		Name:  "records",
		Usage: "Read processing records",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Show the record of one job",
				Flags: withFlags(flags, []cli.Flag{
					&cli.StringFlag{
						Name:     "job-key",
						Aliases:  []string{"k"},
						Usage:    "Job key (<bucket>/<key>)",
						Required: true,
					},
				}),
				Action: recordsGetAction,
			},
			{
				Name:  "list",
				Usage: "List the most recently processed records",
				Flags: withFlags(flags, []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum records to show",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "tui",
						Usage: "Browse the records interactively",
					},
				}),
				Action: recordsListAction,
			},
		},
	}
}

// openRecords opens the configured recorder for reading.
func openRecords(c *cli.Context) (record.Recorder, error) {
	cfg, err := loadConfig(c, false)
	if err != nil {
		return nil, err
	}
	rec, err := buildRecorder(c.Context, cfg, log.NewNop())
	if err != nil {
		return nil, exitOnBuild(err)
	}
	return rec, nil
}

func recordsGetAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	rec, err := openRecords(c)
	if err != nil {
		return err
	}
	defer func() { _ = rec.Close() }()

	reader, ok := rec.(record.Reader)
	if !ok {
		return cli.Exit("records get: metadata backend does not support reads (use sqlite or postgres)", 1)
	}
	got, err := reader.Get(c.Context, c.String("job-key"))
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return cli.Exit(fmt.Sprintf("record not found: %s", c.String("job-key")), 1)
		}
		return err
	}
	return r.Render(got)
}

func recordsListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	rec, err := openRecords(c)
	if err != nil {
		return err
	}
	defer func() { _ = rec.Close() }()

	lister, ok := rec.(recordLister)
	if !ok {
		return cli.Exit("records list: metadata backend does not support listing (use sqlite)", 1)
	}
	records, err := lister.List(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return tui.RunRecords(records)
	}
	return r.Render(records)
}
