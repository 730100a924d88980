package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/keyfinder/internal/formatter"
	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/music"
	"github.com/desertthunder/keyfinder/internal/shared"
	"github.com/desertthunder/keyfinder/internal/tasks"
)

// Key resolves the key of one track, answering from the cache when possible.
func (r *Runner) Key(ctx context.Context, cmd *cli.Command) error {
	trackID := strings.TrimSpace(cmd.StringArg("track-id"))
	if trackID == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	s, err := r.openStore(ctx)
	if err != nil {
		return err
	}

	// Cached keys need no Spotify credentials.
	rec, cached := r.cachedKey(ctx, s, trackID)
	if rec == nil {
		if err := r.pipeline(ctx); err != nil {
			return err
		}

		res, err := r.keys.Resolve(ctx, trackID, credentialInputs(cmd))
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("%w: no key for track %s", shared.ErrNotFound, trackID)
		}
		rec, cached = res.Record, res.Cached
	}

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			Cached bool `json:"cached"`
			*models.KeyRecord
			Pitch string `json:"pitch"`
		}{cached, rec, formatter.Pitch(rec)}, cmd.Bool("pretty"))
	}

	r.writePlain("%s  %s", formatter.OK(formatter.Pitch(rec)), rec.TrackID)
	if c := formatter.Confidence(rec.Confidence); c != "" {
		r.writePlain("  confidence %s", c)
	}
	if cached {
		r.writePlain("  %s", formatter.Help("(cached)"))
	}
	r.writePlain("\n")
	if rec.Title != "" {
		r.writePlain("  %s - %s\n", rec.Artist, rec.Title)
	}
	if rec.ExternalRecordingID != "" {
		r.writePlain("  mbid %s\n", rec.ExternalRecordingID)
	}
	return nil
}

func (r *Runner) cachedKey(ctx context.Context, s *store, trackID string) (*models.KeyRecord, bool) {
	rec, err := s.keys.Get(ctx, trackID)
	if err != nil {
		if !isNotFound(err) {
			r.logger.Warn("cache read failed", "track_id", trackID, "error", err)
		}
		return nil, false
	}
	return rec, true
}

// Features fetches audio features for the given track ids.
func (r *Runner) Features(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one track id", shared.ErrMissingArgument)
	}

	if err := r.pipeline(ctx); err != nil {
		return err
	}

	found, err := r.features.FetchFeatures(ctx, ids, credentialInputs(cmd))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := make([]*models.FeatureRecord, len(ids))
		for i, id := range ids {
			out[i] = found[id]
		}
		return r.writeJSON(map[string]any{"audio_features": out}, cmd.Bool("pretty"))
	}

	for _, id := range ids {
		f := found[id]
		if f == nil {
			r.writePlain("%s  %s\n", id, formatter.Warn("no features"))
			continue
		}
		r.writePlain("%s  %s  %.1f BPM  %d/4  energy %.2f  valence %.2f\n",
			id, formatter.OK(music.PitchName(f.Key, f.Mode)), f.Tempo, f.TimeSignature, f.Energy, f.Valence)
	}
	return nil
}

// Playlist reports a playlist's tracks with their features and, with --keys, their keys.
func (r *Runner) Playlist(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.String("id")
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	if err := r.pipeline(ctx); err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			r.logger.Info(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
		}
	}()

	opts := tasks.ReportOpts{WithKeys: cmd.Bool("keys")}
	report, err := r.reports.Report(ctx, playlistID, credentialInputs(cmd), opts, progress)
	close(progress)
	wg.Wait()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, cmd.Bool("pretty"))
	}

	data, err := formatter.RenderReport(format, report.PlaylistID, report.Tracks)
	if err != nil {
		return err
	}

	if output := cmd.String("output"); output != "" {
		if err := formatter.WriteExport(output, data); err != nil {
			return err
		}
		return r.writePlain("✓ Report written to %s (%d tracks, %d features, %d keys)\n",
			output, len(report.Tracks), report.FeaturesFound, report.KeysFound)
	}
	return r.writeBytes(data)
}

// Playlists lists the user's playlists.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	if err := r.pipeline(ctx); err != nil {
		return err
	}

	token, err := r.userToken(ctx, cmd)
	if err != nil {
		return err
	}

	playlists, err := r.spotify.Playlists(ctx, token.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if limit := int(cmd.Int("limit")); limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		if p.Owner != "" {
			r.writePlain("   Owner: %s\n", p.Owner)
		}
		if p.Public {
			r.writePlain("   Visibility: Public\n")
		} else {
			r.writePlain("   Visibility: Private\n")
		}
		r.writePlain("\n")
	}

	return nil
}

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "account",
			Aliases: []string{"a"},
			Usage:   "Spotify user id with a stored refresh token",
			Sources: cli.EnvVars("KEYFINDER_ACCOUNT"),
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Spotify access token used when no account is bound",
			Sources: cli.EnvVars("SPOTIFY_ACCESS_TOKEN"),
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
		},
	}
}

func keyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "key",
		Usage: "Resolve the musical key of a Spotify track",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "track-id",
			},
		},
		Flags:  append(credentialFlags(), outputFlags()...),
		Action: r.Key,
	}
}

func featuresCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "features",
		Usage:     "Fetch Spotify audio features for one or more tracks",
		ArgsUsage: "<track-id>...",
		Flags:     append(credentialFlags(), outputFlags()...),
		Action:    r.Features,
	}
}

func playlistCommand(r *Runner) *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "id",
			Usage:    "Playlist ID",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "keys",
			Usage: "Also resolve keys (one track at a time)",
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
			Usage:   "Write the report to a file",
		},
	}
	flags = append(flags, credentialFlags()...)

	return &cli.Command{
		Name:   "playlist",
		Usage:  "Report a playlist's tracks with features and keys",
		Flags:  append(flags, outputFlags()...),
		Action: r.Playlist,
	}
}

func playlistsCommand(r *Runner) *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of playlists to show",
			Value: 50,
		},
	}
	flags = append(flags, credentialFlags()...)

	return &cli.Command{
		Name:   "playlists",
		Usage:  "List the user's Spotify playlists",
		Flags:  append(flags, outputFlags()...),
		Action: r.Playlists,
	}
}
