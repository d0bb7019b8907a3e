package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/yungbote/docsearch-backend/internal/app"
	"github.com/yungbote/docsearch-backend/internal/data/repos"
	"github.com/yungbote/docsearch-backend/internal/modules/taxonomy"
	"github.com/yungbote/docsearch-backend/internal/services"
)

func main() {
	_ = godotenv.Load()
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "docctl:", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "docctl",
		Usage: "Operate the document archive: seed the taxonomy and recover stuck or failed documents",
		Commands: []*cli.Command{
			{
				Name:   "seed-taxonomy",
				Usage:  "Load taxonomy terms and synonyms from a YAML file",
				Action: seedTaxonomyCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Path to the taxonomy YAML",
						Value:   "configs/taxonomy.yaml",
						EnvVars: []string{"TAXONOMY_SEED_PATH"},
					},
				},
			},
			{
				Name:   "counts",
				Usage:  "Print document counts per status",
				Action: countsCommand,
			},
			{
				Name:   "failed",
				Usage:  "List failed documents",
				Action: failedCommand,
				Flags:  failedFilterFlags(),
			},
			{
				Name:   "stuck",
				Usage:  "List documents processing for longer than --older-than",
				Action: stuckCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Minimum time in PROCESSING",
						Value: 30 * time.Minute,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum documents to list",
						Value: 100,
					},
				},
			},
			{
				Name:   "recover",
				Usage:  "Apply retry, markFailed, or delete to documents",
				Action: recoverCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "action",
						Aliases:  []string{"a"},
						Usage:    "retry | markFailed | delete",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:     "id",
						Usage:    "Document id (repeatable)",
						Required: true,
					},
				},
			},
			{
				Name:   "reprocess-batch",
				Usage:  "Resubmit failed documents in throttled batches",
				Action: reprocessBatchCommand,
				Flags: append(failedFilterFlags(),
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Documents submitted per batch",
						Value: 10,
					},
					&cli.DurationFlag{
						Name:  "delay",
						Usage: "Pause between batches",
						Value: 5 * time.Second,
					},
				),
			},
		},
	}
}

func failedFilterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "limit", Usage: "Maximum documents to select", Value: 100},
		&cli.StringFlag{Name: "filename", Usage: "Filename substring"},
		&cli.StringFlag{Name: "stage", Usage: "Stage that failed (extraction, analysis, taxonomy, embedding, recovery)"},
		&cli.StringFlag{Name: "batch-id", Usage: "Only documents of this upload batch"},
		&cli.TimestampFlag{Name: "after", Usage: "Failed at or after (RFC3339)", Layout: time.RFC3339},
		&cli.TimestampFlag{Name: "before", Usage: "Failed at or before (RFC3339)", Layout: time.RFC3339},
	}
}

func failedFilterFromFlags(c *cli.Context) (repos.FailedFilter, error) {
	f := repos.FailedFilter{
		Limit:            c.Int("limit"),
		FilenameContains: strings.TrimSpace(c.String("filename")),
		Stage:            strings.TrimSpace(c.String("stage")),
		FailedAfter:      c.Timestamp("after"),
		FailedBefore:     c.Timestamp("before"),
	}
	if raw := strings.TrimSpace(c.String("batch-id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, fmt.Errorf("invalid --batch-id: %w", err)
		}
		f.BatchJobID = &id
	}
	return f, nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				return nil, fmt.Errorf("invalid document id %q", part)
			}
			out = append(out, id)
		}
	}
	return out, nil
}

// withApp wires the service layer without running jobs or serving HTTP.
// Jobs queued here are picked up by the running workers.
func withApp(c *cli.Context, fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.LoadConfig()
	cfg.JobRunner = app.RunnerNone
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func seedTaxonomyCommand(c *cli.Context) error {
	seed, err := taxonomy.LoadSeedFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	return withApp(c, func(ctx context.Context, a *app.App) error {
		stats, err := a.Services.Taxonomy.Seed(ctx, seed)
		if err != nil {
			return err
		}
		return printJSON(c, stats)
	})
}

func countsCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		counts, err := a.Services.Recovery.CountByStatus(ctx)
		if err != nil {
			return err
		}
		return printJSON(c, counts)
	})
}

func failedCommand(c *cli.Context) error {
	f, err := failedFilterFromFlags(c)
	if err != nil {
		return err
	}
	return withApp(c, func(ctx context.Context, a *app.App) error {
		docs, err := a.Services.Recovery.ListFailed(ctx, f)
		if err != nil {
			return err
		}
		return printJSON(c, docs)
	})
}

func stuckCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		docs, err := a.Services.Recovery.ListStuck(ctx, c.Duration("older-than"), c.Int("limit"))
		if err != nil {
			return err
		}
		return printJSON(c, docs)
	})
}

func recoverCommand(c *cli.Context) error {
	action := c.String("action")
	if !services.ValidAction(action) {
		return fmt.Errorf("unknown action %q (want retry, markFailed or delete)", action)
	}
	ids, err := parseIDs(c.StringSlice("id"))
	if err != nil {
		return err
	}
	return withApp(c, func(ctx context.Context, a *app.App) error {
		outcomes, err := a.Services.Recovery.Recover(ctx, ids, action)
		if err != nil {
			return err
		}
		return printJSON(c, outcomes)
	})
}

func reprocessBatchCommand(c *cli.Context) error {
	f, err := failedFilterFromFlags(c)
	if err != nil {
		return err
	}
	return withApp(c, func(ctx context.Context, a *app.App) error {
		report, err := a.Services.Recovery.ReprocessBatch(ctx, services.ReprocessRequest{
			Filter:    f,
			BatchSize: c.Int("batch-size"),
			Delay:     c.Duration("delay"),
		})
		if err != nil {
			return err
		}
		return printJSON(c, report)
	})
}
