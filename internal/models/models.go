// package models defines the data model for the key resolution service
package models

import (
	"fmt"
	"time"
)

// Source identifies the analysis service that produced a [KeyRecord].
type Source string

// SourceAcousticBrainz is the only analysis source currently wired.
const SourceAcousticBrainz Source = "acousticbrainz"

const (
	ModeMinor = 0
	ModeMajor = 1
)

// KeyRecord is the canonical resolved key for a track.
type KeyRecord struct {
	TrackID             string    `json:"track_id"`
	Key                 int       `json:"key"`  // pitch class, 0 = C
	Mode                int       `json:"mode"` // 0 minor, 1 major
	Confidence          *float64  `json:"confidence,omitempty"`
	Source              Source    `json:"source"`
	ExternalRecordingID string    `json:"mbid,omitempty"` // MusicBrainz recording id; empty on legacy rows
	Title               string    `json:"title,omitempty"`
	Artist              string    `json:"artist,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Validate checks the populated-record invariant: track id, key, mode and source.
func (k *KeyRecord) Validate() error {
	if k.TrackID == "" {
		return fmt.Errorf("track id is required")
	}
	if k.Key < 0 || k.Key > 11 {
		return fmt.Errorf("key %d out of range 0..11", k.Key)
	}
	if k.Mode != ModeMinor && k.Mode != ModeMajor {
		return fmt.Errorf("mode %d must be 0 or 1", k.Mode)
	}
	if k.Source == "" {
		return fmt.Errorf("source is required")
	}
	return nil
}

// SameResolution reports whether two records carry the same evidence.
//
// Title, artist, confidence and timestamps are ignored.
func (k *KeyRecord) SameResolution(o *KeyRecord) bool {
	if k == nil || o == nil {
		return k == o
	}
	return k.TrackID == o.TrackID &&
		k.Key == o.Key &&
		k.Mode == o.Mode &&
		k.Source == o.Source &&
		k.ExternalRecordingID == o.ExternalRecordingID
}

// UserAccount binds a Spotify user to its refresh token.
type UserAccount struct {
	ExternalUserID string    `json:"spotify_id"`
	RefreshToken   string    `json:"-"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CandidateMatch is one recording returned by a catalog search.
type CandidateMatch struct {
	ExternalID string
	Score      float64 // higher is better
	DurationMs int64   // zero when the service did not report a length
}

// TrackMetadata is the descriptive data needed to search the catalog for a track.
type TrackMetadata struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	DurationMs int64  `json:"duration_ms"`
}

// KeyAnalysis is the decoded result of an analysis document.
type KeyAnalysis struct {
	Key        int
	Mode       int
	Confidence *float64
}

// FeatureRecord mirrors one entry of the Spotify audio-features payload.
type FeatureRecord struct {
	ID               string  `json:"id"`
	Key              int     `json:"key"`
	Mode             int     `json:"mode"`
	Tempo            float64 `json:"tempo"`
	TimeSignature    int     `json:"time_signature"`
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Loudness         float64 `json:"loudness"`
	Speechiness      float64 `json:"speechiness"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Valence          float64 `json:"valence"`
	DurationMs       int64   `json:"duration_ms"`
}

// Playlist is a summary of a user playlist.
type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	TrackCount int    `json:"track_count"`
	Public     bool   `json:"public"`
}

// PlaylistTrack is one playlist entry joined with whatever analysis is available.
type PlaylistTrack struct {
	TrackMetadata
	AddedAt  string         `json:"added_at,omitempty"`
	Features *FeatureRecord `json:"audio_features"`
	Key      *KeyRecord     `json:"key"`
}
