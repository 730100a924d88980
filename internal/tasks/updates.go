package tasks

import (
	"fmt"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/music"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchTracks Phase = iota
	FetchFeatures
	ResolveKeys
	Complete
)

func (p Phase) String() string {
	switch p {
	case FetchTracks:
		return "fetch_tracks"
	case FetchFeatures:
		return "fetch_features"
	case ResolveKeys:
		return "resolve_keys"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func fetchTracksUpdate(playlistID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching tracks for playlist %s...", playlistID),
	}
}

func fetchFeaturesUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchFeatures,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching audio features for %d tracks...", count),
	}
}

func resolveKeyUpdate(step, total int, tr *models.PlaylistTrack) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveKeys,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s", step, total, tr.Artist, tr.Title),
	}
}

func resolvedKeyUpdate(step, total int, tr *models.PlaylistTrack) ProgressUpdate {
	name := "no key"
	if tr.Key != nil {
		name = music.PitchName(tr.Key.Key, tr.Key.Mode)
	}
	return ProgressUpdate{
		Phase:   ResolveKeys,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s: %s", step, total, tr.Title, name),
		Data:    tr.Key,
	}
}

func completeUpdate(report *PlaylistReport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%d tracks, %d with features, %d with keys", len(report.Tracks), report.FeaturesFound, report.KeysFound),
		Data:    report,
	}
}
