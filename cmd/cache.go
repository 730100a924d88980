package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/keyfinder/internal/formatter"
	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

// CacheShow prints one cached key.
func (r *Runner) CacheShow(ctx context.Context, cmd *cli.Command) error {
	trackID := strings.TrimSpace(cmd.StringArg("track-id"))
	if trackID == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	s, err := r.openStore(ctx)
	if err != nil {
		return err
	}

	rec, err := s.keys.Get(ctx, trackID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(rec, cmd.Bool("pretty"))
	}
	return r.writeBytes(formatter.KeysToText([]*models.KeyRecord{rec}))
}

// CacheList lists cached keys, newest first.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	s, err := r.openStore(ctx)
	if err != nil {
		return err
	}

	records, err := s.keys.List(ctx, int(cmd.Int("limit")), int(cmd.Int("offset")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, cmd.Bool("pretty"))
	}

	data, err := formatter.RenderKeys(format, records)
	if err != nil {
		return err
	}

	if output := cmd.String("output"); output != "" {
		if err := formatter.WriteExport(output, data); err != nil {
			return err
		}
		r.logger.Info("cache exported", "path", output, "records", len(records))
		return r.writePlain("✓ %d keys written to %s\n", len(records), output)
	}
	return r.writeBytes(data)
}

// CacheDelete removes one cached key so the next lookup resolves it again.
func (r *Runner) CacheDelete(ctx context.Context, cmd *cli.Command) error {
	trackID := strings.TrimSpace(cmd.StringArg("track-id"))
	if trackID == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	s, err := r.openStore(ctx)
	if err != nil {
		return err
	}

	if err := s.keys.Delete(ctx, trackID); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted cached key for %s\n", trackID)
}

// CacheStats prints the number of cached keys.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openStore(ctx)
	if err != nil {
		return err
	}

	count, err := s.keys.Count(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("Cached keys: %d (%s)\n", count, s.driver)
}

// cacheCommand handles key cache administration
func cacheCommand(r *Runner) *cli.Command {
	trackArg := func() []cli.Argument {
		return []cli.Argument{&cli.StringArg{Name: "track-id"}}
	}

	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and manage the key cache",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show the cached key for a track",
				Arguments: trackArg(),
				Flags:     outputFlags(),
				Action:    r.CacheShow,
			},
			{
				Name:  "list",
				Usage: "List cached keys, newest first",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of keys",
						Value: 50,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of keys to skip",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, csv or markdown",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the export to a file",
					},
				}, outputFlags()...),
				Action: r.CacheList,
			},
			{
				Name:      "delete",
				Usage:     "Delete the cached key for a track",
				Arguments: trackArg(),
				Action:    r.CacheDelete,
			},
			{
				Name:   "stats",
				Usage:  "Count cached keys",
				Action: r.CacheStats,
			},
		},
	}
}
