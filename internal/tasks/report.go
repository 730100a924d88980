package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

// PlaylistReport joins a playlist's tracks with their audio features and keys.
type PlaylistReport struct {
	PlaylistID    string                 `json:"playlist_id"`
	Tracks        []models.PlaylistTrack `json:"items"`
	FeaturesFound int                    `json:"features_found"`
	KeysFound     int                    `json:"keys_found"`
}

// ReportOpts controls what a playlist report includes.
type ReportOpts struct {
	WithKeys bool // resolve keys through the cache-aside pipeline, one track at a time
}

// ReportEngine builds playlist reports.
type ReportEngine struct {
	creds     CredentialResolver
	playlists PlaylistSource
	features  *FeatureFetcher
	resolver  *KeyResolver
	logger    *log.Logger
}

// NewReportEngine creates a ReportEngine. A nil resolver disables key resolution.
func NewReportEngine(creds CredentialResolver, playlists PlaylistSource, features *FeatureFetcher, resolver *KeyResolver, logger *log.Logger) *ReportEngine {
	return &ReportEngine{
		creds:     creds,
		playlists: playlists,
		features:  features,
		resolver:  resolver,
		logger:    shared.WithLogger(logger, "component", "report"),
	}
}

// Report lists the playlist's tracks and attaches features and, optionally, keys.
//
// Unlike the key pipeline this is an outer operation: a missing credential or a
// failed track listing is returned as an error. Missing features or keys are not.
func (e *ReportEngine) Report(ctx context.Context, playlistID string, in models.CredentialInputs, opts ReportOpts, progress chan<- ProgressUpdate) (*PlaylistReport, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}
	if e.creds == nil || e.playlists == nil {
		return nil, fmt.Errorf("%w: playlist source", shared.ErrServiceUnavailable)
	}

	token, err := e.creds.Resolve(ctx, in)
	if err != nil {
		return nil, err
	}

	sendProgress(progress, fetchTracksUpdate(playlistID))
	tracks, err := e.playlists.PlaylistTracks(ctx, token.Value, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist tracks: %w", err)
	}

	report := &PlaylistReport{PlaylistID: playlistID, Tracks: tracks}

	// Reuse the resolved token so per-track work does not exchange the refresh token again.
	reuse := models.CredentialInputs{LocalAccessToken: token.Value}

	if e.features != nil && len(tracks) > 0 {
		ids := make([]string, len(tracks))
		for i, tr := range tracks {
			ids[i] = tr.ID
		}

		sendProgress(progress, fetchFeaturesUpdate(len(ids)))
		features, err := e.features.FetchFeatures(ctx, ids, reuse)
		if err != nil {
			return nil, err
		}
		for i := range report.Tracks {
			if f := features[report.Tracks[i].ID]; f != nil {
				report.Tracks[i].Features = f
				report.FeaturesFound++
			}
		}
	}

	if opts.WithKeys && e.resolver != nil {
		total := len(report.Tracks)
		for i := range report.Tracks {
			tr := &report.Tracks[i]
			sendProgress(progress, resolveKeyUpdate(i+1, total, tr))

			rec, err := e.resolver.ResolveKey(ctx, tr.ID, reuse)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				tr.Key = rec
				report.KeysFound++
			}
			sendProgress(progress, resolvedKeyUpdate(i+1, total, tr))
		}
	}

	e.logger.Debug("report built", "playlist_id", playlistID, "tracks", len(tracks), "features", report.FeaturesFound, "keys", report.KeysFound)
	sendProgress(progress, completeUpdate(report))
	return report, nil
}
