package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

func playlistTracks() []models.PlaylistTrack {
	return []models.PlaylistTrack{
		{TrackMetadata: models.TrackMetadata{ID: "track-1", Title: "Teardrop", Artist: "Massive Attack"}},
		{TrackMetadata: models.TrackMetadata{ID: "track-2", Title: "Unknown", Artist: "Nobody"}},
	}
}

func TestReportEngine(t *testing.T) {
	ctx := context.Background()
	in := models.CredentialInputs{AccountKey: "wizzler"}

	t.Run("features and keys", func(t *testing.T) {
		f := newResolverFixture()
		features := NewFeatureFetcher(f.creds, &fakeFeatures{known: map[string]*models.FeatureRecord{
			"track-1": {ID: "track-1", Tempo: 80},
		}}, quietLogger())
		engine := NewReportEngine(f.creds, &fakePlaylists{tracks: playlistTracks()}, features, f.resolver, quietLogger())

		progress := make(chan ProgressUpdate, 32)
		report, err := engine.Report(ctx, "p1", in, ReportOpts{WithKeys: true}, progress)
		close(progress)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(report.Tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(report.Tracks))
		}
		if report.FeaturesFound != 1 || report.KeysFound != 1 {
			t.Errorf("expected 1 feature and 1 key, got %d/%d", report.FeaturesFound, report.KeysFound)
		}
		if report.Tracks[0].Features == nil || report.Tracks[0].Key == nil {
			t.Error("expected first track to carry features and key")
		}
		if report.Tracks[1].Features != nil || report.Tracks[1].Key != nil {
			t.Error("expected second track to carry nothing")
		}
		if f.creds.resolves != 1+1+2 {
			t.Errorf("expected one resolve per stage and track, got %d", f.creds.resolves)
		}

		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		if len(phases) == 0 || phases[0] != FetchTracks || phases[len(phases)-1] != Complete {
			t.Errorf("unexpected phases %v", phases)
		}
	})

	t.Run("without keys", func(t *testing.T) {
		f := newResolverFixture()
		engine := NewReportEngine(f.creds, &fakePlaylists{tracks: playlistTracks()}, nil, f.resolver, quietLogger())

		report, err := engine.Report(ctx, "p1", in, ReportOpts{}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if report.KeysFound != 0 || f.catalog.calls != 0 {
			t.Error("keys should not be resolved")
		}
	})

	t.Run("full progress channel does not block", func(t *testing.T) {
		f := newResolverFixture()
		engine := NewReportEngine(f.creds, &fakePlaylists{tracks: playlistTracks()}, nil, f.resolver, quietLogger())

		progress := make(chan ProgressUpdate)
		if _, err := engine.Report(ctx, "p1", in, ReportOpts{WithKeys: true}, progress); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("not authenticated", func(t *testing.T) {
		creds := &fakeCreds{userErr: shared.ErrNotAuthenticated}
		engine := NewReportEngine(creds, &fakePlaylists{}, nil, nil, quietLogger())

		if _, err := engine.Report(ctx, "p1", in, ReportOpts{}, nil); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("listing failure", func(t *testing.T) {
		engine := NewReportEngine(&fakeCreds{user: userToken("u")}, &fakePlaylists{err: errBoom}, nil, nil, quietLogger())

		if _, err := engine.Report(ctx, "p1", in, ReportOpts{}, nil); !errors.Is(err, errBoom) {
			t.Errorf("expected errBoom, got %v", err)
		}
	})

	t.Run("missing playlist id", func(t *testing.T) {
		engine := NewReportEngine(&fakeCreds{}, &fakePlaylists{}, nil, nil, quietLogger())

		if _, err := engine.Report(ctx, "", in, ReportOpts{}, nil); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}
