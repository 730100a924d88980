package tasks

import (
	"context"

	"github.com/desertthunder/keyfinder/internal/models"
)

// KeyStore is the cache consulted before and written after a resolution.
//
// Get returns an error wrapping shared.ErrNotFound on a miss.
type KeyStore interface {
	Get(ctx context.Context, trackID string) (*models.KeyRecord, error)
	Upsert(ctx context.Context, rec *models.KeyRecord) error
}

// CredentialResolver is satisfied by *credentials.Provider.
type CredentialResolver interface {
	Resolve(ctx context.Context, in models.CredentialInputs) (*models.CredentialToken, error)
	ServiceToken(ctx context.Context) (*models.CredentialToken, error)
}

// TrackCatalog looks up descriptive track metadata.
type TrackCatalog interface {
	TrackMetadata(ctx context.Context, token, trackID string) (*models.TrackMetadata, error)
}

// RecordingSearcher maps title/artist/duration to an external recording id.
type RecordingSearcher interface {
	Search(ctx context.Context, title, artist string, durationMs int64) (string, error)
}

// Analyzer fetches the key analysis for an external recording id.
type Analyzer interface {
	HighLevel(ctx context.Context, mbid string) (*models.KeyAnalysis, error)
}

// FeatureSource is the bulk audio-features endpoint.
type FeatureSource interface {
	AudioFeatures(ctx context.Context, token string, trackIDs []string) ([]*models.FeatureRecord, error)
}

// PlaylistSource lists the tracks of a playlist.
type PlaylistSource interface {
	PlaylistTracks(ctx context.Context, token, playlistID string) ([]models.PlaylistTrack, error)
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
